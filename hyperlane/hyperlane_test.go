package hyperlane

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/luxfi/hyperlane/point"
	"github.com/luxfi/hyperlane/surface"
	"github.com/luxfi/hyperlane/wave"
	"github.com/stretchr/testify/require"
)

func pingTo(name string) wave.Wave {
	p := point.New(point.Local, point.Segment{Kind: point.Base, Name: name})
	s := surface.New(p, surface.Core)
	return wave.NewPing(s, s, wave.Core{Method: "Cmd::Bounce"})
}

type recordingSink struct {
	mu       sync.Mutex
	received []wave.Wave
	failNext bool
}

func (s *recordingSink) Send(w wave.Wave) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failNext {
		s.failNext = false
		return errors.New("sink unavailable")
	}
	s.received = append(s.received, w)
	return nil
}

func (s *recordingSink) snapshot() []wave.Wave {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]wave.Wave, len(s.received))
	copy(out, s.received)
	return out
}

func TestFIFOOrderAcrossAttach(t *testing.T) {
	h := New("test", nil, nil)
	ctx := context.Background()
	require.NoError(t, h.Send(ctx, pingTo("a")))
	require.NoError(t, h.Send(ctx, pingTo("b")))

	sink := &recordingSink{}
	h.AttachConsumer(sink)
	require.Eventually(t, func() bool { return len(sink.snapshot()) == 2 }, time.Second, time.Millisecond)

	require.NoError(t, h.Send(ctx, pingTo("c")))
	require.Eventually(t, func() bool { return len(sink.snapshot()) == 3 }, time.Second, time.Millisecond)

	got := sink.snapshot()
	names := []string{got[0].Recipients.Surface.Point.String(), got[1].Recipients.Surface.Point.String(), got[2].Recipients.Surface.Point.String()}
	require.Equal(t, []string{"a", "b", "c"}, names)
}

func TestDropsOldestWhenFull(t *testing.T) {
	h := New("test", nil, nil)
	h.capacity = 2
	ctx := context.Background()
	require.NoError(t, h.Send(ctx, pingTo("a")))
	require.NoError(t, h.Send(ctx, pingTo("b")))
	require.NoError(t, h.Send(ctx, pingTo("c")))
	require.Equal(t, 2, h.Len())

	sink := &recordingSink{}
	h.AttachConsumer(sink)
	require.Eventually(t, func() bool { return len(sink.snapshot()) == 2 }, time.Second, time.Millisecond)
	got := sink.snapshot()
	require.Equal(t, "b", got[0].Recipients.Surface.Point.String())
	require.Equal(t, "c", got[1].Recipients.Surface.Point.String())
}

func TestResetConsumerRequeuesAtHead(t *testing.T) {
	h := New("test", nil, nil)
	ctx := context.Background()
	require.NoError(t, h.Send(ctx, pingTo("a")))

	sink := &recordingSink{failNext: true}
	h.AttachConsumer(sink)
	require.Eventually(t, func() bool { return h.sinkDetached() }, time.Second, time.Millisecond)
	require.Equal(t, 1, h.Len())

	sink2 := &recordingSink{}
	h.AttachConsumer(sink2)
	require.Eventually(t, func() bool { return len(sink2.snapshot()) == 1 }, time.Second, time.Millisecond)
	require.Equal(t, "a", sink2.snapshot()[0].Recipients.Surface.Point.String())
}

// sinkDetached is a test-only accessor exercising the same locking path as
// production code.
func (h *Hyperlane) sinkDetached() bool {
	if err := h.acquire(context.Background()); err != nil {
		return false
	}
	defer h.release()
	return h.sink == nil
}

func TestTransformRewritesField(t *testing.T) {
	h := New("test", nil, nil)
	h.Transform(func(w wave.Wave) wave.Wave {
		w.Agent = "rewritten"
		return w
	})
	require.NoError(t, h.Send(context.Background(), pingTo("a")))

	sink := &recordingSink{}
	h.AttachConsumer(sink)
	require.Eventually(t, func() bool { return len(sink.snapshot()) == 1 }, time.Second, time.Millisecond)
	require.Equal(t, "rewritten", sink.snapshot()[0].Agent)
}
