package star

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/luxfi/hyperlane/exchange"
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

func newStore(t *testing.T) *registry.Store {
	t.Helper()
	s, err := registry.NewStore(":memory:", nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func newStar(t *testing.T, ctx context.Context, reg registry.Registry, name string) *Star {
	t.Helper()
	s, err := New(Config{
		Key:      name,
		Point:    pt(name),
		Kind:     point.Kind{Base: point.StarKind},
		Registry: reg,
		Drivers: map[point.BaseKind]Driver{
			point.Mechtron:  BounceDriver(),
			point.SpaceKind: BounceDriver(),
		},
		Timeouts: exchange.Timeouts{High: 5 * time.Second, Med: 2 * time.Second, Low: time.Second},
	})
	require.NoError(t, err)
	t.Cleanup(s.Close)
	go func() { _ = s.Run(ctx) }()
	return s
}

func place(t *testing.T, reg registry.Registry, p point.Point, base point.BaseKind, star point.Point) {
	t.Helper()
	require.NoError(t, reg.Register(registry.Registration{Point: p, Kind: point.Kind{Base: base}, Owner: "test"}))
	require.NoError(t, reg.AssignStar(p, star))
	require.NoError(t, reg.SetStatus(p, registry.Ready))
}

func TestSingleHopDelivery(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	reg := newStore(t)
	a := newStar(t, ctx, reg, "star-a")

	app := pt("space", "app")
	worker := pt("space", "app", "worker")
	place(t, reg, pt("space"), point.SpaceKind, a.Point())
	place(t, reg, app, point.SpaceKind, a.Point())
	place(t, reg, worker, point.Mechtron, a.Point())

	ping := wave.NewPing(
		surface.New(app, surface.Core),
		surface.New(worker, surface.Core),
		wave.Core{Method: wave.MethodBounce, Body: "Empty"},
	)
	pong, err := a.Ping(ctx, ping)
	require.NoError(t, err)
	require.Equal(t, wave.PongVariant, pong.Variant())
	require.Equal(t, 200, pong.Status)
	require.True(t, pong.From.Point.Equal(worker))
	require.Equal(t, "Empty", pong.Core.Body)
	require.Equal(t, ping.ID, pong.ReflectionOf)
}

func TestCrossStarShard(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	reg := newStore(t)
	a := newStar(t, ctx, reg, "star-a")
	b := newStar(t, ctx, reg, "star-b")
	Link(a, b)

	p1 := pt("p1")
	p2 := pt("p2")
	place(t, reg, p1, point.Mechtron, a.Point())
	place(t, reg, p2, point.Mechtron, b.Point())

	ripple := wave.NewRipple(
		surface.New(p1, surface.Core),
		[]surface.Surface{surface.New(p2, surface.Core)},
		wave.Core{Method: wave.MethodBounce},
		wave.BounceBacks{Kind: wave.BounceCount, Count: 1},
	)
	echoes, err := a.Ripple(ctx, ripple)
	require.NoError(t, err)
	require.Len(t, echoes, 1)
	require.Equal(t, wave.EchoVariant, echoes[0].Variant())
	require.Equal(t, 200, echoes[0].Status)
	require.Equal(t, ripple.ID, echoes[0].ReflectionOf)
}

// countingDriver records how many waves terminate at it.
type countingDriver struct{ n atomic.Int64 }

func (d *countingDriver) Handle(_ context.Context, w wave.Wave) (int, any, error) {
	d.n.Add(1)
	return 200, w.Core.Body, nil
}

func TestHopCeilingDrops(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	reg := newStore(t)
	a := newStar(t, ctx, reg, "star-a")

	counting := &countingDriver{}
	worker := pt("worker")
	place(t, reg, worker, point.Mechtron, a.Point())
	a.drivers[point.Mechtron] = counting

	sig := wave.NewSignal(surface.New(worker, surface.Core), surface.New(worker, surface.Core), wave.Core{Method: wave.MethodBounce})
	transport := wave.WrapTransport(sig, surface.New(a.Point(), surface.Core), surface.New(a.Point(), surface.Core))
	transport.Hops = wave.MaxHops
	hop := wave.WrapHop(transport, surface.New(a.Point(), surface.Core), surface.New(a.Point(), surface.Core))

	require.NoError(t, a.enqueue(ctx, call{kind: callFromHyperway, wave: hop}))
	time.Sleep(100 * time.Millisecond)
	require.Equal(t, int64(0), counting.n.Load())

	// Under the ceiling the same signal terminates at the driver.
	transport.Hops = 0
	hop = wave.WrapHop(transport, surface.New(a.Point(), surface.Core), surface.New(a.Point(), surface.Core))
	require.NoError(t, a.enqueue(ctx, call{kind: callFromHyperway, wave: hop}))
	require.Eventually(t, func() bool { return counting.n.Load() == 1 }, 5*time.Second, time.Millisecond)
}

func TestLoopFreeForwarding(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	reg := newStore(t)
	a := newStar(t, ctx, reg, "star-a")
	b := newStar(t, ctx, reg, "star-b")
	Link(a, b)

	p2 := pt("p2")
	place(t, reg, p2, point.Mechtron, b.Point())
	counting := &countingDriver{}
	b.drivers[point.Mechtron] = counting

	// A ripple whose history already contains B never re-shards to B.
	ripple := wave.NewRipple(
		surface.New(a.Point(), surface.Core),
		[]surface.Surface{surface.New(p2, surface.Core)},
		wave.Core{Method: wave.MethodBounce},
		wave.BounceBacks{Kind: wave.BounceNone},
	)
	ripple.History = []point.Point{b.Point()}
	require.NoError(t, a.Gravity(ctx, ripple))
	time.Sleep(100 * time.Millisecond)
	require.Equal(t, int64(0), counting.n.Load())
}

func TestWrangleRecordsPeerKinds(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	reg := newStore(t)
	a := newStar(t, ctx, reg, "star-a")
	b := newStar(t, ctx, reg, "star-b")
	Link(a, b)

	require.NoError(t, a.Wrangle(ctx))
	stars := a.WrangledStarsFor(point.Mechtron)
	require.Len(t, stars, 1)
	require.True(t, stars[0].Equal(b.Point()))
}

func TestGlobalExecutorHandled(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	reg := newStore(t)
	a := newStar(t, ctx, reg, "star-a")

	ping := wave.NewPing(
		surface.New(a.Point(), surface.Core),
		surface.New(point.GlobalExecutor, surface.Core),
		wave.Core{Method: "Cmd::Status", Body: "check"},
	)
	pong, err := a.Ping(ctx, ping)
	require.NoError(t, err)
	require.Equal(t, 200, pong.Status)
	require.Equal(t, "check", pong.Core.Body)
}
