// Package access defines the access-grant model and the bitset permissions
// representation grants are expressed in.
package access

import (
	"github.com/bits-and-blooms/bitset"
)

// Permission is one bit in the Permissions bitset, following the
// wire-compact "csd-rwx" notation: child permissions (create, select,
// delete) then particle permissions (read, write, execute).
type Permission uint

const (
	PermRead Permission = iota
	PermWrite
	PermExecute
	PermCreate
	PermSelect
	PermDelete
)

// Permissions is a small bitset of Permission flags.
type Permissions struct {
	bits *bitset.BitSet
}

// NewPermissions builds an empty Permissions set.
func NewPermissions() Permissions { return Permissions{bits: bitset.New(8)} }

// Full returns a Permissions with every known bit set.
func Full() Permissions {
	p := NewPermissions()
	for _, perm := range []Permission{PermRead, PermWrite, PermExecute, PermCreate, PermSelect, PermDelete} {
		p = p.Set(perm)
	}
	return p
}

// Set returns a copy of p with perm set.
func (p Permissions) Set(perm Permission) Permissions {
	out := Permissions{bits: p.clone()}
	out.bits.Set(uint(perm))
	return out
}

// Has reports whether perm is set.
func (p Permissions) Has(perm Permission) bool {
	if p.bits == nil {
		return false
	}
	return p.bits.Test(uint(perm))
}

func (p Permissions) clone() *bitset.BitSet {
	if p.bits == nil {
		return bitset.New(8)
	}
	return p.bits.Clone()
}

// Or returns the bitwise OR of p and o, the accumulation rule Or-mask
// grants compose with.
func (p Permissions) Or(o Permissions) Permissions {
	out := Permissions{bits: p.clone()}
	if o.bits != nil {
		out.bits.InPlaceUnion(o.bits)
	}
	return out
}

// And returns the bitwise AND of p and o, the restriction rule And-mask
// grants compose with: ancestors restrict descendants.
func (p Permissions) And(o Permissions) Permissions {
	out := Permissions{bits: p.clone()}
	if o.bits != nil {
		out.bits.InPlaceIntersection(o.bits)
	} else {
		out.bits.ClearAll()
	}
	return out
}

// Equal reports bitwise equality.
func (p Permissions) Equal(o Permissions) bool {
	a, b := p.clone(), o.clone()
	return a.Equal(b)
}

// MarshalBinary serializes the underlying bitset for storage, delegating to
// bits-and-blooms/bitset's own wire format rather than hand-rolling one.
func (p Permissions) MarshalBinary() ([]byte, error) {
	return p.clone().MarshalBinary()
}

// UnmarshalBinary restores a Permissions from MarshalBinary's output.
func (p *Permissions) UnmarshalBinary(data []byte) error {
	b := bitset.New(8)
	if len(data) > 0 {
		if err := b.UnmarshalBinary(data); err != nil {
			return err
		}
	}
	p.bits = b
	return nil
}

// MaskMode controls how a PermissionsMask grant composes up the point
// ancestry.
type MaskMode uint8

const (
	Or MaskMode = iota
	And
)

// GrantKind tags the three kinds of access assertion.
type GrantKind uint8

const (
	SuperGrant GrantKind = iota
	PrivilegeGrant
	PermissionsMaskGrant
)

// Grant is an access assertion tied to a pair of selectors and an
// authorizer. OnSelector/ToSelector hold selector strings in the
// point.Selector grammar; registry stores them as given and they are parsed
// where they are matched.
type Grant struct {
	ID          string
	Kind        GrantKind
	Privilege   string      // valid when Kind == PrivilegeGrant
	Mode        MaskMode    // valid when Kind == PermissionsMaskGrant
	Permissions Permissions // valid when Kind == PermissionsMaskGrant
	OnSelector  string
	ToSelector  string
	ByParticle  string
}

// ResultKind tags the shape of an Access evaluation result.
type ResultKind uint8

const (
	None ResultKind = iota
	Owner
	SuperAccess
	SuperOwner
	Enumerated
)

// Access is the result of evaluating access(to, on).
type Access struct {
	Kind        ResultKind
	Privileges  map[string]struct{}
	Permissions Permissions
}

// HasFull reports whether this Access grants unrestricted rights — "Owner or
// Super".11's has_full().
func (a Access) HasFull() bool {
	return a.Kind == Owner || a.Kind == SuperAccess || a.Kind == SuperOwner
}

// HasPrivilege reports whether name was granted, directly or via full access.
func (a Access) HasPrivilege(name string) bool {
	if a.HasFull() {
		return true
	}
	_, ok := a.Privileges[name]
	return ok
}

// HasPermission reports whether perm was granted, directly or via full access.
func (a Access) HasPermission(perm Permission) bool {
	if a.HasFull() {
		return true
	}
	return a.Permissions.Has(perm)
}
