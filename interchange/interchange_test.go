package interchange

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/luxfi/hyperlane/errs"
	"github.com/luxfi/hyperlane/hyperlane"
	"github.com/luxfi/hyperlane/hyperway"
	"github.com/luxfi/hyperlane/point"
	"github.com/luxfi/hyperlane/surface"
	"github.com/luxfi/hyperlane/wave"
	"github.com/stretchr/testify/require"
)

func surf(name string) surface.Surface {
	return surface.New(point.New(point.Local, point.Segment{Kind: point.Base, Name: name}), surface.Core)
}

type capture struct {
	mu    sync.Mutex
	waves []wave.Wave
}

func (c *capture) Send(w wave.Wave) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.waves = append(c.waves, w)
	return nil
}

func (c *capture) snapshot() []wave.Wave {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]wave.Wave, len(c.waves))
	copy(out, c.waves)
	return out
}

func TestRouteReachesMountedPeer(t *testing.T) {
	central := hyperlane.New("central", nil, nil)
	ic := New(central, nil, nil)

	peer := surf("peer")
	ep := ic.Mount(hyperway.Stub{Agent: "peer", Remote: peer}, nil)
	got := &capture{}
	ep.AttachConsumer(got)

	ping := wave.NewPing(surf("caller"), peer, wave.Core{Method: wave.MethodBounce})
	require.NoError(t, ic.Route(context.Background(), ping))
	require.Eventually(t, func() bool { return len(got.snapshot()) == 1 }, time.Second, time.Millisecond)
	require.Equal(t, ping.ID, got.snapshot()[0].ID)
}

func TestRouteRejectsRipples(t *testing.T) {
	central := hyperlane.New("central", nil, nil)
	ic := New(central, nil, nil)

	ripple := wave.NewRipple(surf("caller"), []surface.Surface{surf("peer")}, wave.Core{}, wave.BounceBacks{})
	err := ic.Route(context.Background(), ripple)
	require.Error(t, err)
	require.True(t, errs.Is(err, errs.Transport))
}

func TestRouteUnknownPeerFails(t *testing.T) {
	central := hyperlane.New("central", nil, nil)
	ic := New(central, nil, nil)

	ping := wave.NewPing(surf("caller"), surf("nobody"), wave.Core{Method: wave.MethodBounce})
	err := ic.Route(context.Background(), ping)
	require.Error(t, err)
	require.True(t, errs.Is(err, errs.Transport))
}

func TestInboundRelaysToCentral(t *testing.T) {
	central := hyperlane.New("central", nil, nil)
	got := &capture{}
	central.AttachConsumer(got)
	ic := New(central, nil, nil)

	peer := surf("peer")
	ep := ic.Mount(hyperway.Stub{Agent: "peer-agent", Remote: peer}, nil)

	ping := wave.NewPing(peer, surf("local"), wave.Core{Method: wave.MethodBounce})
	require.NoError(t, ep.Send(context.Background(), ping))
	require.Eventually(t, func() bool { return len(got.snapshot()) == 1 }, time.Second, time.Millisecond)

	// The inbound lane's spoof guard forces identity.
	in := got.snapshot()[0]
	require.Equal(t, peer, in.From)
	require.Equal(t, "peer-agent", in.Agent)
}

func TestRemoveDropsHyperway(t *testing.T) {
	central := hyperlane.New("central", nil, nil)
	ic := New(central, nil, nil)

	peer := surf("peer")
	ep := ic.Mount(hyperway.Stub{Agent: "peer", Remote: peer}, nil)
	require.True(t, ic.Mounted(peer))

	ic.Remove(peer)
	require.False(t, ic.Mounted(peer))
	require.Error(t, ep.Send(context.Background(), wave.NewPing(peer, surf("local"), wave.Core{})))
}

func TestSingularToOverride(t *testing.T) {
	central := hyperlane.New("central", nil, nil)
	got := &capture{}
	central.AttachConsumer(got)
	ic := New(central, nil, nil)
	override := surf("hypergate")
	ic.SetOverrideTo(override)

	peer := surf("peer")
	ep := ic.Mount(hyperway.Stub{Agent: "peer", Remote: peer}, nil)

	ping := wave.NewPing(peer, surf("somewhere-else"), wave.Core{Method: wave.MethodBounce})
	require.NoError(t, ep.Send(context.Background(), ping))
	require.Eventually(t, func() bool { return len(got.snapshot()) == 1 }, time.Second, time.Millisecond)

	to, ok := got.snapshot()[0].To()
	require.True(t, ok)
	require.Equal(t, override, to)
}
