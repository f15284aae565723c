// Package point implements the hierarchical addressing scheme:
// a Point is `route :: segments`, ordered, leaf-only (no aliasing).
package point

import (
	"fmt"
	"strings"
)

// Route names which of the six addressing spaces a Point lives in. All six
// variants are carried here.
type Route uint8

const (
	// Local addresses a Point relative to the current Star.
	Local Route = iota
	// Global addresses the well-known process constants (GLOBAL::central, ...).
	Global
	// Remote addresses the peer side of a Hyperway (REMOTE::endpoint).
	Remote
	// Domain addresses a point via a registered DNS-style domain name.
	Domain
	// Tag addresses a point via an operator-assigned tag name ([tag]).
	Tag
	// Star addresses a point via an explicit star key (<<star-key>>).
	Star
)

func (r Route) String() string {
	switch r {
	case Local:
		return "LOCAL"
	case Global:
		return "GLOBAL"
	case Remote:
		return "REMOTE"
	case Domain:
		return "domain"
	case Tag:
		return "tag"
	case Star:
		return "star"
	default:
		return "unknown"
	}
}

// SegmentKind types a single path element of a Point.
type SegmentKind uint8

const (
	// Space names a top-level namespace (e.g. an organization).
	Space SegmentKind = iota
	// Base names an ordinary resource segment.
	Base
	// FilesystemRoot marks the boundary after which Filesystem segments may appear.
	FilesystemRoot
	// Directory names a path component under a FilesystemRoot.
	Directory
	// File names a terminal file component under a FilesystemRoot.
	File
	// Version names a semver-shaped segment.
	Version
)

func (k SegmentKind) String() string {
	switch k {
	case Space:
		return "space"
	case Base:
		return "base"
	case FilesystemRoot:
		return "filesystem-root"
	case Directory:
		return "directory"
	case File:
		return "file"
	case Version:
		return "version"
	default:
		return "unknown"
	}
}

// Segment is one typed element of a Point's path.
type Segment struct {
	Kind SegmentKind
	Name string
}

func (s Segment) String() string { return s.Name }

// Point is a hierarchical address: a Route plus an ordered Segment list.
// Points are immutable values; Push/Parent return new Points rather than
// mutating the receiver.
type Point struct {
	RouteSpace Route
	RouteKey   string // populated for Domain/Tag/Star routes
	Segments   []Segment
}

// New builds a Point in the given route with the given segments.
func New(route Route, segments ...Segment) Point {
	cp := make([]Segment, len(segments))
	copy(cp, segments)
	return Point{RouteSpace: route, Segments: cp}
}

// NewKeyed builds a Point in a keyed route (Domain/Tag/Star).
func NewKeyed(route Route, key string, segments ...Segment) Point {
	p := New(route, segments...)
	p.RouteKey = key
	return p
}

// Root reports whether this Point has no segments.
func (p Point) Root() bool { return len(p.Segments) == 0 }

// Push returns a new Point with seg appended, validating filesystem
// segment placement.
func (p Point) Push(seg Segment) (Point, error) {
	if err := p.validatePush(seg); err != nil {
		return Point{}, err
	}
	next := make([]Segment, len(p.Segments)+1)
	copy(next, p.Segments)
	next[len(p.Segments)] = seg
	return Point{RouteSpace: p.RouteSpace, RouteKey: p.RouteKey, Segments: next}, nil
}

func (p Point) validatePush(seg Segment) error {
	switch seg.Kind {
	case Directory, File:
		if !p.hasFilesystemRoot() {
			return fmt.Errorf("point: %s segment %q requires a prior filesystem-root segment", seg.Kind, seg.Name)
		}
	}
	return nil
}

func (p Point) hasFilesystemRoot() bool {
	for _, s := range p.Segments {
		if s.Kind == FilesystemRoot {
			return true
		}
	}
	return false
}

// Parent returns the Point with its last segment removed. The second return
// is false for a Root point (no parent).
func (p Point) Parent() (Point, bool) {
	if p.Root() {
		return Point{}, false
	}
	parent := make([]Segment, len(p.Segments)-1)
	copy(parent, p.Segments[:len(p.Segments)-1])
	return Point{RouteSpace: p.RouteSpace, RouteKey: p.RouteKey, Segments: parent}, true
}

// HasParent reports whether Parent would succeed.
func (p Point) HasParent() bool { return !p.Root() }

// Last returns the final segment, if any.
func (p Point) Last() (Segment, bool) {
	if p.Root() {
		return Segment{}, false
	}
	return p.Segments[len(p.Segments)-1], true
}

// String renders the Point using the abstract grammar:
// `[<route>::]<segment>(:<segment>)*`.
func (p Point) String() string {
	var b strings.Builder
	switch p.RouteSpace {
	case Local:
		// LOCAL is the default route and is always elided.
	case Global:
		b.WriteString("GLOBAL::")
	case Remote:
		b.WriteString("REMOTE::")
	case Domain:
		b.WriteString(p.RouteKey)
		b.WriteString("::")
	case Tag:
		b.WriteString("[")
		b.WriteString(p.RouteKey)
		b.WriteString("]::")
	case Star:
		b.WriteString("<<")
		b.WriteString(p.RouteKey)
		b.WriteString(">>::")
	}
	names := make([]string, len(p.Segments))
	for i, s := range p.Segments {
		names[i] = s.Name
	}
	b.WriteString(strings.Join(names, ":"))
	return b.String()
}

// Key returns a stable string usable as a map/store key; it is identical to
// String(), which already carries the key of keyed routes.
func (p Point) Key() string { return p.String() }

// ParseKey reconstructs a Point from a string previously produced by Key(),
// the inverse used by the registry and access evaluator when a Point has
// been serialized as a plain string.
// Segment typing beyond Base is not recoverable from the key alone; callers
// needing richer segment kinds should retain the original Point instead.
func ParseKey(key string) (Point, error) {
	route := Local
	routeKey := ""
	body := key
	if idx := strings.Index(key, "::"); idx >= 0 {
		prefix := key[:idx]
		switch {
		case prefix == "GLOBAL":
			route = Global
		case prefix == "REMOTE":
			route = Remote
		case prefix == "LOCAL":
			route = Local
		case strings.HasPrefix(prefix, "<<") && strings.HasSuffix(prefix, ">>"):
			route, routeKey = Star, prefix[2:len(prefix)-2]
		case strings.HasPrefix(prefix, "[") && strings.HasSuffix(prefix, "]"):
			route, routeKey = Tag, prefix[1:len(prefix)-1]
		default:
			route, routeKey = Domain, prefix
		}
		body = key[idx+2:]
	}
	if body == "" {
		return NewKeyed(route, routeKey), nil
	}
	names := strings.Split(body, ":")
	segs := make([]Segment, len(names))
	for i, n := range names {
		segs[i] = Segment{Kind: Base, Name: n}
	}
	return NewKeyed(route, routeKey, segs...), nil
}

// Less defines the total order over Points: first by
// route, then by segment sequence (lexicographic over Name, then Kind).
func (p Point) Less(o Point) bool {
	if p.RouteSpace != o.RouteSpace {
		return p.RouteSpace < o.RouteSpace
	}
	if p.RouteKey != o.RouteKey {
		return p.RouteKey < o.RouteKey
	}
	n := len(p.Segments)
	if len(o.Segments) < n {
		n = len(o.Segments)
	}
	for i := 0; i < n; i++ {
		if p.Segments[i].Name != o.Segments[i].Name {
			return p.Segments[i].Name < o.Segments[i].Name
		}
		if p.Segments[i].Kind != o.Segments[i].Kind {
			return p.Segments[i].Kind < o.Segments[i].Kind
		}
	}
	return len(p.Segments) < len(o.Segments)
}

// Equal reports structural equality.
func (p Point) Equal(o Point) bool { return p.Key() == o.Key() }

// Ancestors returns every Point from Root down to (but excluding) p, in
// root-to-leaf order. Used by the registry's Query.
func (p Point) Ancestors() []Point {
	out := make([]Point, 0, len(p.Segments))
	cur := Point{RouteSpace: p.RouteSpace, RouteKey: p.RouteKey}
	for _, seg := range p.Segments[:len(p.Segments)] {
		out = append(out, cur)
		next, err := cur.Push(seg)
		if err != nil {
			break
		}
		cur = next
	}
	return out
}

// Well-known process points. These are configuration, not mutable state.
var (
	GlobalCentral  = NewKeyed(Global, "", Segment{Kind: Base, Name: "central"})
	GlobalExecutor = NewKeyed(Global, "", Segment{Kind: Base, Name: "executor"})
	LocalPortal    = New(Local, Segment{Kind: Base, Name: "portal"})
	LocalHypergate = New(Local, Segment{Kind: Base, Name: "hypergate"})
	LocalEndpoint  = New(Local, Segment{Kind: Base, Name: "endpoint"})
	RemoteEndpoint = New(Remote, Segment{Kind: Base, Name: "endpoint"})
	LocalClient    = New(Local, Segment{Kind: Base, Name: "client"})
	LocalClientRunner = New(Local, Segment{Kind: Base, Name: "client"}, Segment{Kind: Base, Name: "runner"})

	// HyperUser is the super-user particle the access evaluator short-circuits
	// to Super for.
	HyperUser = NewKeyed(Global, "", Segment{Kind: Base, Name: "hyperuser"})
)
