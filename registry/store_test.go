package registry

import (
	"testing"

	"github.com/luxfi/hyperlane/access"
	"github.com/luxfi/hyperlane/errs"
	"github.com/luxfi/hyperlane/point"
	"github.com/stretchr/testify/require"
)

func pt(names ...string) point.Point {
	segs := make([]point.Segment, len(names))
	for i, n := range names {
		segs[i] = point.Segment{Kind: point.Base, Name: n}
	}
	return point.New(point.Local, segs...)
}

func newStore(t *testing.T) *Store {
	t.Helper()
	s, err := NewStore(":memory:", nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestRegisterDupeAndEnsure(t *testing.T) {
	s := newStore(t)
	p := pt("space")
	reg := Registration{Point: p, Kind: point.Kind{Base: point.SpaceKind}, Owner: "u"}

	require.NoError(t, s.Register(reg))
	err := s.Register(reg)
	require.Error(t, err)
	require.True(t, errs.Is(err, errs.Dupe))

	reg.Strategy = Ensure
	require.NoError(t, s.Register(reg))
	reg.Strategy = Override
	require.NoError(t, s.Register(reg))
}

func TestLockedPropertySurvivesSet(t *testing.T) {
	s := newStore(t)
	p := pt("space")
	require.NoError(t, s.Register(Registration{Point: p, Kind: point.Kind{Base: point.SpaceKind}, Owner: "u"}))

	require.NoError(t, s.SetProperties(p, []PropertyMod{{Key: "token", Value: "v1"}}))
	// Lock it directly through a mutate the way a driver registration would.
	require.NoError(t, s.mutate(p, func(wr *wireRecord) error {
		prop := wr.Properties["token"]
		prop.Locked = true
		wr.Properties["token"] = prop
		return nil
	}))

	require.NoError(t, s.SetProperties(p, []PropertyMod{{Key: "token", Value: "v2"}}))
	rec, err := s.Record(p)
	require.NoError(t, err)
	require.Equal(t, "v1", rec.Details.Properties["token"].Value)

	err = s.SetProperties(p, []PropertyMod{{Key: "token", Unset: true}})
	require.Error(t, err)
	require.True(t, errs.Is(err, errs.Forbidden))
}

func TestSequenceIncrements(t *testing.T) {
	s := newStore(t)
	p := pt("space")
	require.NoError(t, s.Register(Registration{Point: p, Kind: point.Kind{Base: point.SpaceKind}, Owner: "u"}))

	n1, err := s.Sequence(p)
	require.NoError(t, err)
	n2, err := s.Sequence(p)
	require.NoError(t, err)
	require.Equal(t, n1+1, n2)
}

func TestSelectRecursiveAndKindFilter(t *testing.T) {
	s := newStore(t)
	require.NoError(t, s.Register(Registration{Point: pt("space"), Kind: point.Kind{Base: point.SpaceKind}, Owner: "u"}))
	require.NoError(t, s.Register(Registration{Point: pt("space", "app"), Kind: point.Kind{Base: point.App}, Owner: "u"}))
	require.NoError(t, s.Register(Registration{Point: pt("space", "app", "worker"), Kind: point.Kind{Base: point.Mechtron}, Owner: "u"}))

	sel, err := point.ParseSelector("space:**")
	require.NoError(t, err)
	got, err := s.Select(sel)
	require.NoError(t, err)
	require.Len(t, got, 3)

	sel, err = point.ParseSelector("space:**<Mechtron>")
	require.NoError(t, err)
	got, err = s.Select(sel)
	require.NoError(t, err)
	require.Len(t, got, 1)
	require.True(t, got[0].Equal(pt("space", "app", "worker")))

	// Idempotent over unchanged state.
	again, err := s.Select(sel)
	require.NoError(t, err)
	require.Equal(t, got, again)
}

func TestDeleteRemovesSelection(t *testing.T) {
	s := newStore(t)
	require.NoError(t, s.Register(Registration{Point: pt("space"), Kind: point.Kind{Base: point.SpaceKind}, Owner: "u"}))
	require.NoError(t, s.Register(Registration{Point: pt("space", "app"), Kind: point.Kind{Base: point.App}, Owner: "u"}))

	sel, err := point.ParseSelector("space:*")
	require.NoError(t, err)
	n, err := s.Delete(sel)
	require.NoError(t, err)
	require.Equal(t, 1, n)

	_, err = s.Record(pt("space", "app"))
	require.True(t, errs.Is(err, errs.NotFound))
}

func TestScorchGuard(t *testing.T) {
	s := newStore(t)
	require.NoError(t, s.Register(Registration{Point: pt("space"), Kind: point.Kind{Base: point.SpaceKind}, Owner: "u"}))

	err := s.Scorch()
	require.Error(t, err)
	require.ErrorIs(t, err, errs.ErrNoScorch)

	require.NoError(t, s.SetResetMode(Scorch))
	require.NoError(t, s.Scorch())

	_, err = s.Record(pt("space"))
	require.True(t, errs.Is(err, errs.NotFound))

	// The guard resets; a second scorch requires re-arming.
	err = s.Scorch()
	require.ErrorIs(t, err, errs.ErrNoScorch)
}

// fakeEval grants Super to exactly one principal.
type fakeEval struct{ super point.Point }

func (f fakeEval) Access(to point.Point, _ point.Point) (access.Access, error) {
	if to.Equal(f.super) {
		return access.Access{Kind: access.SuperAccess}, nil
	}
	return access.Access{Kind: access.Enumerated, Permissions: access.Full()}, nil
}

func TestChownRequiresSuper(t *testing.T) {
	s := newStore(t)
	require.NoError(t, s.Register(Registration{Point: pt("space"), Kind: point.Kind{Base: point.SpaceKind}, Owner: "old"}))

	admin := pt("users", "admin")
	mortal := pt("users", "mortal")
	sel, err := point.ParseSelector("space")
	require.NoError(t, err)

	// Full permissions without Super are not enough.
	err = s.Chown(sel, pt("users", "new-owner"), mortal, fakeEval{super: admin})
	require.Error(t, err)
	require.True(t, errs.Is(err, errs.Forbidden))

	require.NoError(t, s.Chown(sel, pt("users", "new-owner"), admin, fakeEval{super: admin}))
	rec, err := s.Record(pt("space"))
	require.NoError(t, err)
	require.Equal(t, pt("users", "new-owner").Key(), rec.Owner)
}

func TestGrantListAndRemove(t *testing.T) {
	s := newStore(t)
	require.NoError(t, s.Register(Registration{Point: pt("space"), Kind: point.Kind{Base: point.SpaceKind}, Owner: "u"}))
	require.NoError(t, s.Register(Registration{Point: pt("space", "app"), Kind: point.Kind{Base: point.App}, Owner: "u"}))

	_, perms, err := access.ParseMask("+csd-Rwx")
	require.NoError(t, err)
	id, err := s.Grant(access.Grant{
		Kind:        access.PermissionsMaskGrant,
		Mode:        access.Or,
		Permissions: perms,
		OnSelector:  "space:**",
		ToSelector:  "space:**",
		ByParticle:  pt("space").Key(),
	})
	require.NoError(t, err)

	got, err := s.GrantsAt(pt("space"))
	require.NoError(t, err)
	require.Len(t, got, 1)
	require.Equal(t, id, got[0].ID)

	sel, err := point.ParseSelector("space:**")
	require.NoError(t, err)
	listed, err := s.ListAccess(nil, sel)
	require.NoError(t, err)
	require.Len(t, listed, 1)

	admin := pt("users", "admin")
	require.NoError(t, s.RemoveAccess(id, admin, fakeEval{super: admin}))
	got, err = s.GrantsAt(pt("space"))
	require.NoError(t, err)
	require.Empty(t, got)
}
