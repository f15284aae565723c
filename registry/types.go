// Package registry implements the persistent point catalog: particle
// lifecycle, properties, access grants, and selectors, backed by an
// embedded indexed store (tidwall/buntdb).
package registry

import "github.com/luxfi/hyperlane/point"

// Status is the particle lifecycle state, wire-form exact.
type Status uint8

const (
	Unknown Status = iota
	Pending
	Init
	Ready
	Panic
	Fatal
	Done
)

var statusNames = [...]string{"Unknown", "Pending", "Init", "Ready", "Panic", "Fatal", "Done"}

func (s Status) String() string {
	if int(s) < len(statusNames) {
		return statusNames[s]
	}
	return "Unknown"
}

// ParseStatus parses the wire-form string back into a Status.
func ParseStatus(s string) (Status, bool) {
	for i, n := range statusNames {
		if n == s {
			return Status(i), true
		}
	}
	return Unknown, false
}

// Stub is the minimal identity of a registered particle.
type Stub struct {
	Point  point.Point
	Kind   point.Kind
	Status Status
}

// Property is a single key/value/locked tuple. A Locked
// property cannot be unset or overwritten.
type Property struct {
	Key    string
	Value  string
	Locked bool
}

// Location names the Star and, optionally, the Host Particle a record is
// pinned to. A record with Star == nil is unprovisioned.
type Location struct {
	Star *point.Point
	Host *point.Point
}

// Provisioned reports whether this Location names a Star.
func (l Location) Provisioned() bool { return l.Star != nil }

// Details bundles a Stub with its resolved properties.
type Details struct {
	Stub       Stub
	Properties map[string]Property
}

// Record is the full persisted particle row.
type Record struct {
	Details  Details
	Location Location
	Owner    string
	Sequence int64
}

// Strategy controls register()'s behavior on a duplicate point.
type Strategy uint8

const (
	// Commit fails with Dupe on an existing point.
	Commit Strategy = iota
	// Ensure succeeds with no change on an existing point.
	Ensure
	// Override succeeds with no change on an existing point (same as Ensure
	// at the registry layer; the distinction is meaningful to callers that
	// also push property overrides alongside).
	Override
)

// PropertyMod is a Set or Unset mutation applied transactionally alongside
// register/set_properties.
type PropertyMod struct {
	Key   string
	Value string
	Unset bool
}

// Registration is the input to Register.
type Registration struct {
	Point      point.Point
	Kind       point.Kind
	Owner      string
	Strategy   Strategy
	Properties []PropertyMod
}

// ResetMode gates a full wipe.
type ResetMode uint8

const (
	ResetNone ResetMode = iota
	Scorch
)
