package point

import "strings"

// HopKind names how a single selector hop matches a path segment.
type HopKind uint8

const (
	// Exact matches a literal segment name.
	Exact HopKind = iota
	// Wildcard ("*") matches exactly one segment, of any name.
	Wildcard
	// Recursive ("**") matches zero or more segments and does not consume a
	// level on its own.
	Recursive
)

// Hop is one element of a Selector: a segment-name pattern plus optional
// kind-bracket patterns.
type Hop struct {
	Kind        HopKind
	Name        string // literal name when Kind == Exact
	BaseFilter  *BaseKind
	SubFilter   string
	SpecVersion string // version-req pattern, "" means unconstrained
}

// Selector is an ordered list of Hops matched against every registered
// point by registry.Select.
type Selector struct {
	Route Route
	Hops  []Hop
}

// Matches reports whether p satisfies the full selector — "matches are
// filtered to require the entire selector matches the hierarchy, not just
// the current hop".
func (s Selector) Matches(p Point, kindOf func(Point) (Kind, bool)) bool {
	if p.RouteSpace != s.Route {
		return false
	}
	return matchHops(s.Hops, p.Segments, p, kindOf)
}

func matchHops(hops []Hop, segs []Segment, full Point, kindOf func(Point) (Kind, bool)) bool {
	if len(hops) == 0 {
		return len(segs) == 0
	}
	hop := hops[0]
	if hop.Kind == Recursive {
		// Recursive may consume zero or more segments before the remainder
		// of the selector takes over. A kind bracket on a terminal Recursive
		// hop constrains the matched point itself (`**<Mechtron>`).
		for i := 0; i <= len(segs); i++ {
			if matchHops(hops[1:], segs[i:], full, kindOf) {
				if len(hops) == 1 && hopHasKindFilter(hop) {
					return kindFilterMatches(hop, full, kindOf)
				}
				return true
			}
		}
		return false
	}
	if len(segs) == 0 {
		return false
	}
	if !hopMatchesSegment(hop, segs[0], full, kindOf) {
		return false
	}
	return matchHops(hops[1:], segs[1:], full, kindOf)
}

func hopMatchesSegment(hop Hop, seg Segment, full Point, kindOf func(Point) (Kind, bool)) bool {
	switch hop.Kind {
	case Wildcard:
		// fine, any name
	case Exact:
		if hop.Name != seg.Name {
			return false
		}
	}
	if !hopHasKindFilter(hop) {
		return true
	}
	return kindFilterMatches(hop, full, kindOf)
}

func hopHasKindFilter(hop Hop) bool {
	return hop.BaseFilter != nil || hop.SubFilter != "" || hop.SpecVersion != ""
}

// kindFilterMatches checks a hop's kind bracket against the point the
// selector is resolving; callers supply kinds via a closure backed by the
// already-registered particle table.
func kindFilterMatches(hop Hop, full Point, kindOf func(Point) (Kind, bool)) bool {
	if kindOf == nil {
		return false
	}
	k, ok := kindOf(full)
	if !ok {
		return false
	}
	if hop.BaseFilter != nil && *hop.BaseFilter != k.Base {
		return false
	}
	if hop.SubFilter != "" && hop.SubFilter != k.Sub {
		return false
	}
	if hop.SpecVersion != "" {
		if k.Specific == nil || !k.Specific.MatchesVersionRange(hop.SpecVersion) {
			return false
		}
	}
	return true
}

// ParseSelector parses the abstract grammar:
// `[<route>::]<segment-pattern>(:<segment-pattern>)*` where a segment
// pattern is `*`, `**`, a literal name, or `name<Base<Sub<Specific>>>`.
func ParseSelector(s string) (Selector, error) {
	route := Local
	body := s
	if idx := strings.Index(s, "::"); idx >= 0 {
		switch s[:idx] {
		case "GLOBAL":
			route = Global
		case "LOCAL":
			route = Local
		case "REMOTE":
			route = Remote
		}
		body = s[idx+2:]
	}
	if body == "" {
		return Selector{Route: route}, nil
	}
	parts := strings.Split(body, ":")
	hops := make([]Hop, 0, len(parts))
	for _, part := range parts {
		hops = append(hops, parseHop(part))
	}
	return Selector{Route: route, Hops: hops}, nil
}

func parseHop(part string) Hop {
	name := part
	var base *BaseKind
	sub, specVersion := "", ""
	if i := strings.Index(part, "<"); i >= 0 && strings.HasSuffix(part, ">") {
		name = part[:i]
		inner := part[i+1 : len(part)-1]
		fields := strings.SplitN(inner, "<", 3)
		if len(fields) > 0 && fields[0] != "" {
			for bk, bn := range baseKindNames {
				if bn == fields[0] {
					b := bk
					base = &b
				}
			}
		}
		if len(fields) > 1 {
			sub = strings.TrimSuffix(fields[1], ">")
		}
		if len(fields) > 2 {
			specVersion = strings.TrimSuffix(fields[2], ">")
		}
	}
	switch name {
	case "**":
		return Hop{Kind: Recursive, BaseFilter: base, SubFilter: sub, SpecVersion: specVersion}
	case "*":
		return Hop{Kind: Wildcard, BaseFilter: base, SubFilter: sub, SpecVersion: specVersion}
	default:
		return Hop{Kind: Exact, Name: name, BaseFilter: base, SubFilter: sub, SpecVersion: specVersion}
	}
}
