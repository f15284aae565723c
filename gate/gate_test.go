package gate

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/luxfi/hyperlane/hyperlane"
	"github.com/luxfi/hyperlane/hyperway"
	"github.com/luxfi/hyperlane/interchange"
	"github.com/luxfi/hyperlane/point"
	"github.com/luxfi/hyperlane/surface"
	"github.com/luxfi/hyperlane/wave"
	"github.com/stretchr/testify/require"
)

func starSurf(name string) surface.Surface {
	return surface.New(point.New(point.Local, point.Segment{Kind: point.Base, Name: name}), surface.Core)
}

type captureSink struct {
	mu    sync.Mutex
	waves []wave.Wave
}

func (s *captureSink) Send(w wave.Wave) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.waves = append(s.waves, w)
	return nil
}

func (s *captureSink) snapshot() []wave.Wave {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]wave.Wave, len(s.waves))
	copy(out, s.waves)
	return out
}

func newGate(t *testing.T) (*InterchangeGate, *interchange.Interchange) {
	t.Helper()
	central := hyperlane.New("central", nil, nil)
	ic := interchange.New(central, nil, nil)
	greeter := FixedGreeter{Hop: starSurf("star-a"), Transport: starSurf("star-a")}
	return NewInterchangeGate(AnonAuthenticator{}, greeter, ic, nil), ic
}

func TestKnockDeliversGreetPongFirst(t *testing.T) {
	g, _ := newGate(t)
	ep, err := g.Knock(context.Background(), Knock{Kind: "control"})
	require.NoError(t, err)

	sink := &captureSink{}
	ep.AttachConsumer(sink)
	require.Eventually(t, func() bool { return len(sink.snapshot()) == 1 }, time.Second, time.Millisecond)

	first := sink.snapshot()[0]
	require.Equal(t, wave.PongVariant, first.Variant())
	require.Equal(t, 200, first.Status)
	greet, ok := first.Core.Body.(Greet)
	require.True(t, ok)
	require.Equal(t, starSurf("star-a"), greet.Hop)
	require.Equal(t, ep.Remote(), greet.Surface)
}

func TestTokenAuthStatuses(t *testing.T) {
	auth := TokenAuthenticator{Tokens: map[string]string{"secret": "ops"}}

	_, err := auth.Auth(context.Background(), Knock{})
	require.Error(t, err)
	require.Equal(t, 400, StatusOf(err))

	_, err = auth.Auth(context.Background(), Knock{Auth: map[string]string{"token": "wrong"}})
	require.Error(t, err)
	require.Equal(t, 401, StatusOf(err))

	stub, err := auth.Auth(context.Background(), Knock{Auth: map[string]string{"token": "secret"}})
	require.NoError(t, err)
	require.Equal(t, "ops", stub.Agent)
}

func TestMountGateRejectsUnknownPeer(t *testing.T) {
	central := hyperlane.New("central", nil, nil)
	ic := interchange.New(central, nil, nil)
	remote := starSurf("star-b")
	auth := StubAuthenticator{Stubs: map[string]hyperway.Stub{
		remote.Point.Key(): {Agent: "star-b", Remote: remote},
	}}
	greeter := FixedGreeter{Hop: starSurf("star-a"), Transport: starSurf("star-a")}
	g := NewMountGate(auth, greeter, ic, nil)

	_, err := g.Knock(context.Background(), Knock{Remote: &remote})
	require.Error(t, err)
	require.Equal(t, 403, StatusOf(err))

	ic.Mount(hyperway.Stub{Agent: "star-b", Remote: remote}, nil)
	ep, err := g.Knock(context.Background(), Knock{Remote: &remote})
	require.NoError(t, err)
	require.Equal(t, remote, ep.Remote())
}

func TestVersionGateUnlock(t *testing.T) {
	g, _ := newGate(t)
	vg := NewVersionGate("1.2.0", g)

	_, err := vg.Unlock("0.9.0")
	require.Error(t, err)

	handle, err := vg.Unlock("1.2.0")
	require.NoError(t, err)
	require.NotNil(t, handle)
}

func TestGateFactoryKnocks(t *testing.T) {
	g, _ := newGate(t)
	f := &GateFactory{Gate: g, Knock: Knock{Kind: "control"}}
	ep, err := f.Create(context.Background())
	require.NoError(t, err)
	require.NotNil(t, ep)
}
