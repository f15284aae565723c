// Package accesseval implements the access-grant evaluator: given a
// requesting particle and a target particle, it walks the
// target's point hierarchy applying Or/And permission masks, privilege
// grants, and Super grants to resolve an access.Access result.
package accesseval

import (
	"github.com/luxfi/hyperlane/access"
	"github.com/luxfi/hyperlane/point"
	"github.com/luxfi/hyperlane/registry"
	"github.com/luxfi/log"
)

// maxDelegationDepth bounds the recursive "does the grantor itself have
// rights" check, guarding against a misconfigured grant cycle.
const maxDelegationDepth = 32

// Evaluator resolves access.Access results by reading grants from a
// registry.Registry. It implements registry.AccessEvaluator so Chown and
// RemoveAccess can call back into it.
type Evaluator struct {
	reg registry.Registry
	log log.Logger
}

// New builds an Evaluator backed by reg.
func New(reg registry.Registry, logger log.Logger) *Evaluator {
	if logger == nil {
		logger = log.NewNoOpLogger()
	}
	return &Evaluator{reg: reg, log: logger}
}

// Access resolves access(to, on).
func (e *Evaluator) Access(to point.Point, on point.Point) (access.Access, error) {
	return e.access(to, on, 0)
}

func (e *Evaluator) access(to point.Point, on point.Point, depth int) (access.Access, error) {
	if depth > maxDelegationDepth {
		e.log.Warn("accesseval: delegation depth exceeded", "to", to.String(), "on", on.String())
		return access.Access{}, nil
	}

	onRec, err := e.reg.Record(on)
	if err != nil {
		return access.Access{}, err
	}
	hasOwner := onRec.Owner != "" && onRec.Owner == to.Key()

	if to.Equal(point.HyperUser) {
		if hasOwner {
			return access.Access{Kind: access.SuperOwner}, nil
		}
		return access.Access{Kind: access.SuperAccess}, nil
	}
	if to.Equal(on) && hasOwner {
		return access.Access{Kind: access.Owner}, nil
	}

	onHier, err := e.reg.Query(on)
	if err != nil {
		return access.Access{}, err
	}
	toHier, err := e.reg.Query(to)
	if err != nil {
		return access.Access{}, err
	}
	kindOf := kindIndex(onHier, toHier)

	privileges := map[string]struct{}{}
	perms := access.NewPermissions()
	var andMasks []access.Permissions // collected leaf-to-root; applied root-to-leaf below
	superResult := access.ResultKind(access.None)

	for _, level := range leafToRoot(on) {
		grants, err := e.reg.GrantsAt(level)
		if err != nil {
			return access.Access{}, err
		}
		for _, g := range grants {
			onSel, err := point.ParseSelector(g.OnSelector)
			if err != nil || !onSel.Matches(on, kindOf) {
				continue
			}
			toSel, err := point.ParseSelector(g.ToSelector)
			if err != nil || !toSel.Matches(to, kindOf) {
				continue
			}
			byParticle, err := point.ParseKey(g.ByParticle)
			if err != nil {
				continue
			}
			byAccess, err := e.access(byParticle, on, depth+1)
			if err != nil {
				return access.Access{}, err
			}

			switch g.Kind {
			case access.SuperGrant:
				if byAccess.Kind == access.SuperAccess || byAccess.Kind == access.SuperOwner {
					superResult = access.SuperAccess
				}
			case access.PrivilegeGrant:
				if byAccess.HasFull() {
					privileges[g.Privilege] = struct{}{}
				}
			case access.PermissionsMaskGrant:
				if !byAccess.HasFull() {
					continue
				}
				if g.Mode == access.Or {
					perms = perms.Or(g.Permissions)
				} else {
					andMasks = append(andMasks, g.Permissions)
				}
			}
		}
	}

	if superResult == access.SuperAccess {
		if hasOwner {
			return access.Access{Kind: access.SuperOwner}, nil
		}
		return access.Access{Kind: access.SuperAccess}, nil
	}
	if hasOwner {
		return access.Access{Kind: access.Owner}, nil
	}

	// Deferred And-masks were collected leaf-to-root; apply root-to-leaf so
	// deeper (leaf-ward) masks subtract last.
	for i := len(andMasks) - 1; i >= 0; i-- {
		perms = perms.And(andMasks[i])
	}

	return access.Access{Kind: access.Enumerated, Privileges: privileges, Permissions: perms}, nil
}

// leafToRoot returns p, then its parent, grandparent, ..., down to Root,
// the ancestry walk order grants are gathered in.
func leafToRoot(p point.Point) []point.Point {
	out := []point.Point{p}
	cur := p
	for {
		parent, ok := cur.Parent()
		if !ok {
			break
		}
		out = append(out, parent)
		cur = parent
	}
	return out
}

// kindIndex builds a lookup closure over precomputed hierarchy entries, the
// way registry.Store.Select builds one in-transaction, so selector kind
// brackets can be matched without a Record round trip per candidate.
func kindIndex(hiers ...[]registry.HierarchyEntry) func(point.Point) (point.Kind, bool) {
	m := map[string]point.Kind{}
	for _, h := range hiers {
		for _, e := range h {
			m[e.Point.Key()] = e.Kind
		}
	}
	return func(p point.Point) (point.Kind, bool) {
		k, ok := m[p.Key()]
		return k, ok
	}
}
