package traversal

import (
	"context"
	"testing"

	"github.com/luxfi/hyperlane/errs"
	"github.com/luxfi/hyperlane/layer"
	"github.com/luxfi/hyperlane/point"
	"github.com/luxfi/hyperlane/registry"
	"github.com/luxfi/hyperlane/surface"
	"github.com/luxfi/hyperlane/wave"
	"github.com/stretchr/testify/require"
)

func pt(names ...string) point.Point {
	segs := make([]point.Segment, len(names))
	for i, n := range names {
		segs[i] = point.Segment{Kind: point.Base, Name: n}
	}
	return point.New(point.Local, segs...)
}

type exits struct {
	up   []Traversal
	down []Traversal
}

func (e *exits) exitUp(_ context.Context, t Traversal) error {
	e.up = append(e.up, t)
	return nil
}

func (e *exits) exitDown(_ context.Context, t Traversal) error {
	e.down = append(e.down, t)
	return nil
}

func newEngine(t *testing.T, field, shell Handler) (*Engine, *exits, *registry.Store) {
	t.Helper()
	reg, err := registry.NewStore(":memory:", nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = reg.Close() })
	e := &exits{}
	return New(reg, field, shell, SinkFunc(e.exitUp), SinkFunc(e.exitDown), nil), e, reg
}

func registerOn(t *testing.T, reg *registry.Store, p point.Point, base point.BaseKind, star point.Point) {
	t.Helper()
	require.NoError(t, reg.Register(registry.Registration{Point: p, Kind: point.Kind{Base: base}, Owner: "test"}))
	require.NoError(t, reg.AssignStar(p, star))
}

func TestGravityArrivalWalksToCore(t *testing.T) {
	var visited []layer.Layer
	spy := HandlerFunc(func(_ context.Context, tr *Traversal) error {
		visited = append(visited, tr.Layer)
		return nil
	})
	engine, sinks, reg := newEngine(t, spy, spy)

	worker := pt("space", "worker")
	registerOn(t, reg, worker, point.Mechtron, pt("star-a"))

	ping := wave.NewPing(surface.New(pt("space"), surface.Core), surface.New(worker, surface.Core), wave.Core{Method: wave.MethodBounce})
	err := engine.Inject(context.Background(), Injection{
		Wave:        ping,
		Injector:    surface.New(pt("star-a"), surface.Gravity),
		FromGravity: true,
	})
	require.NoError(t, err)

	// Field and Shell visited on the way down, then the Portal exit point
	// takes the traversal toward the Core sink.
	require.Equal(t, []layer.Layer{layer.Field, layer.Shell}, visited)
	require.Len(t, sinks.down, 1)
	require.Empty(t, sinks.up)
	require.Equal(t, layer.ToCore, sinks.down[0].Dir)
}

func TestOutboundWaveExitsTowardFabric(t *testing.T) {
	engine, sinks, reg := newEngine(t, nil, nil)

	app := pt("space", "app")
	other := pt("space", "other")
	registerOn(t, reg, other, point.Mechtron, pt("star-a"))

	ping := wave.NewPing(surface.New(app, surface.Core), surface.New(other, surface.Core), wave.Core{Method: wave.MethodBounce})
	err := engine.Inject(context.Background(), Injection{
		Wave:     ping,
		Injector: surface.New(app, surface.Shell),
	})
	require.NoError(t, err)
	require.Len(t, sinks.up, 1)
	require.Empty(t, sinks.down)
	require.Equal(t, layer.Fabric, sinks.up[0].Dir)
}

func TestShellRejectionReflects(t *testing.T) {
	deny := HandlerFunc(func(_ context.Context, _ *Traversal) error {
		return errs.Wrapf(errs.Forbidden, "shell denies")
	})
	engine, sinks, reg := newEngine(t, nil, deny)

	worker := pt("space", "worker")
	registerOn(t, reg, worker, point.Mechtron, pt("star-a"))

	ping := wave.NewPing(surface.New(pt("space"), surface.Core), surface.New(worker, surface.Core), wave.Core{Method: wave.MethodBounce})
	err := engine.Inject(context.Background(), Injection{
		Wave:        ping,
		Injector:    surface.New(pt("star-a"), surface.Gravity),
		FromGravity: true,
	})
	require.NoError(t, err)

	require.Len(t, sinks.up, 1)
	reply := sinks.up[0].Wave
	require.Equal(t, wave.PongVariant, reply.Variant())
	require.Equal(t, 403, reply.Status)
	require.Equal(t, ping.ID, reply.ReflectionOf)
}

func TestUnprovisionedRippleShardDropped(t *testing.T) {
	engine, sinks, reg := newEngine(t, nil, nil)

	worker := pt("space", "worker")
	require.NoError(t, reg.Register(registry.Registration{Point: worker, Kind: point.Kind{Base: point.Mechtron}, Owner: "test"}))

	ripple := wave.NewRipple(surface.New(pt("space"), surface.Core),
		[]surface.Surface{surface.New(worker, surface.Core)},
		wave.Core{Method: wave.MethodBounce}, wave.BounceBacks{Kind: wave.BounceCount, Count: 1})
	err := engine.Inject(context.Background(), Injection{
		Wave:        ripple,
		Injector:    surface.New(pt("star-a"), surface.Gravity),
		FromGravity: true,
	})
	require.NoError(t, err)
	require.Empty(t, sinks.up)
	require.Empty(t, sinks.down)
}

func TestSignalRejectionIsSilent(t *testing.T) {
	deny := HandlerFunc(func(_ context.Context, _ *Traversal) error {
		return errs.Wrapf(errs.Forbidden, "shell denies")
	})
	engine, sinks, reg := newEngine(t, nil, deny)

	worker := pt("space", "worker")
	registerOn(t, reg, worker, point.Mechtron, pt("star-a"))

	sig := wave.NewSignal(surface.New(pt("space"), surface.Core), surface.New(worker, surface.Core), wave.Core{Method: wave.MethodBounce})
	err := engine.Inject(context.Background(), Injection{
		Wave:        sig,
		Injector:    surface.New(pt("star-a"), surface.Gravity),
		FromGravity: true,
	})
	require.NoError(t, err)
	require.Empty(t, sinks.up)
	require.Empty(t, sinks.down)
}

func TestInterLayerDeliveryWithinParticle(t *testing.T) {
	engine, sinks, reg := newEngine(t, nil, nil)

	app := pt("space", "app")
	registerOn(t, reg, app, point.App, pt("star-a"))

	// Shell-to-Core within one particle walks core-ward.
	ping := wave.NewPing(surface.New(app, surface.Shell), surface.New(app, surface.Core), wave.Core{Method: wave.MethodBounce})
	err := engine.Inject(context.Background(), Injection{
		Wave:     ping,
		Injector: surface.New(app, surface.Shell),
	})
	require.NoError(t, err)
	require.Len(t, sinks.down, 1)
	require.Equal(t, layer.ToCore, sinks.down[0].Dir)
	require.Equal(t, layer.Core, sinks.down[0].Dest)
}
