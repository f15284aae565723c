package registry

import (
	"github.com/luxfi/hyperlane/access"
	"github.com/luxfi/hyperlane/point"
)

// Registry is the persistent point catalog contract. All
// operations take explicit Points and return Kind-tagged errors (package errs).
type Registry interface {
	Register(reg Registration) error
	AssignStar(p point.Point, star point.Point) error
	AssignHost(p point.Point, host point.Point) error
	SetStatus(p point.Point, status Status) error
	SetProperties(p point.Point, mods []PropertyMod) error
	Sequence(p point.Point) (int64, error)
	Record(p point.Point) (Record, error)
	Query(p point.Point) ([]HierarchyEntry, error)
	Select(sel point.Selector) ([]point.Point, error)
	Delete(sel point.Selector) (int, error)

	Grant(g access.Grant) (string, error)
	GrantsAt(root point.Point) ([]access.Grant, error)
	RemoveAccess(id string, by point.Point, eval AccessEvaluator) error
	ListAccess(to *point.Point, onSelector point.Selector) ([]access.Grant, error)
	Chown(sel point.Selector, newOwner point.Point, by point.Point, eval AccessEvaluator) error

	Scorch() error
	SetResetMode(mode ResetMode) error
}

// HierarchyEntry is one (segment, kind) tuple produced by Query while
// walking a point's ancestry.
type HierarchyEntry struct {
	Point point.Point
	Kind  point.Kind
}

// AccessEvaluator is the minimal seam Chown/RemoveAccess need from package
// accesseval, injected to avoid an import cycle: accesseval depends on
// Registry to read grants, while Registry's Chown needs an evaluator to
// check the caller's rights.
type AccessEvaluator interface {
	Access(to point.Point, on point.Point) (access.Access, error)
}
