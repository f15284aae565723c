package wave

import (
	"testing"

	"github.com/luxfi/hyperlane/point"
	"github.com/luxfi/hyperlane/surface"
	"github.com/stretchr/testify/require"
)

func worker() point.Point {
	return point.New(point.Local, point.Segment{Kind: point.Base, Name: "space"}, point.Segment{Kind: point.Base, Name: "worker"})
}

func TestReflectPingProducesPong(t *testing.T) {
	from := surface.New(point.New(point.Local, point.Segment{Kind: point.Base, Name: "space"}), surface.Core)
	to := surface.New(worker(), surface.Core)

	ping := NewPing(from, to, Core{Method: MethodBounce, Body: "Empty"})
	require.True(t, ping.Variant().Directed())

	pong := ping.Reflect(to, 200, "Empty")
	require.Equal(t, PongVariant, pong.Variant())
	require.Equal(t, ping.ID, pong.ReflectionOf)
	require.Equal(t, 200, pong.Status)
	require.True(t, pong.Variant().Reflects())
}

func TestRippleReflectsToEcho(t *testing.T) {
	from := surface.New(worker(), surface.Core)
	ripple := NewRipple(from, nil, Core{Method: MethodBounce}, BounceBacks{Kind: BounceCount, Count: 1})
	echo := ripple.Reflect(from, 200, nil)
	require.Equal(t, EchoVariant, echo.Variant())
}

func TestHopCarriesCountAndCeiling(t *testing.T) {
	inner := NewSignal(surface.New(worker(), surface.Core), surface.New(worker(), surface.Core), Core{Method: MethodTransport})
	inner.Hops = 3
	star := surface.New(point.New(point.Local, point.Segment{Kind: point.Base, Name: "star-a"}), surface.Core)
	hop := WrapHop(inner, star, star)
	require.Equal(t, 3, hop.Hops)
	hop.Hops = 255
	require.False(t, hop.ExceedsMaxHops())
	hop = hop.IncrementHops()
	require.True(t, hop.ExceedsMaxHops())
}

func TestWrapUnwrapTransportRoundTrip(t *testing.T) {
	innerTo := surface.New(worker(), surface.Core)
	ping := NewPing(surface.New(worker(), surface.Core), innerTo, Core{Method: MethodBounce})
	sig := WrapTransport(ping, surface.New(worker(), surface.Core), surface.New(worker(), surface.Core))
	require.True(t, IsTransport(sig))
	got, err := UnwrapTransport(sig)
	require.NoError(t, err)
	require.Equal(t, ping.ID, got.ID)
}
