package star

import (
	"context"
	"time"

	"github.com/luxfi/hyperlane/point"
	"github.com/luxfi/hyperlane/surface"
	"github.com/luxfi/hyperlane/wave"
)

// Wrangle runs one discovery sweep: a Search ping to every adjacent Star,
// recording which kinds live behind each.
func (s *Star) Wrangle(ctx context.Context) error {
	s.mu.Lock()
	peers := make([]Stub, 0, len(s.adjacent))
	for _, stub := range s.adjacent {
		peers = append(peers, stub)
	}
	s.mu.Unlock()

	for _, peer := range peers {
		ping := wave.NewPing(
			s.coreSurf,
			surface.New(peer.Point, surface.Core),
			wave.Core{Method: wave.MethodSearch},
		)
		ping.Handling.Wait = wave.WaitLow
		reply, err := s.Ping(ctx, ping)
		if err != nil || reply.Status != 200 {
			s.log.Debug("wrangle: peer did not answer search", "peer", peer.Point.String())
			continue
		}
		kinds, ok := reply.Core.Body.([]string)
		if !ok {
			continue
		}
		s.recordWrangle(peer.Point, kinds)
	}
	return nil
}

func (s *Star) recordWrangle(peer point.Point, kinds []string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, k := range kinds {
		stars := s.wrangled[k]
		known := false
		for _, p := range stars {
			if p.Equal(peer) {
				known = true
				break
			}
		}
		if !known {
			s.wrangled[k] = append(stars, peer)
		}
	}
}

// WrangledStarsFor reports the adjacent Stars known to host kind base,
// from the most recent sweeps.
func (s *Star) WrangledStarsFor(base point.BaseKind) []point.Point {
	s.mu.Lock()
	defer s.mu.Unlock()
	stars := s.wrangled[base.String()]
	out := make([]point.Point, len(stars))
	copy(out, stars)
	return out
}

// StartWrangling sweeps immediately and then on every tick of interval
// until ctx is done, keeping the kind map fresh as the mesh changes.
func (s *Star) StartWrangling(ctx context.Context, interval time.Duration) {
	go func() {
		_ = s.Wrangle(ctx)
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				_ = s.Wrangle(ctx)
			case <-ctx.Done():
				return
			case <-s.closed:
				return
			}
		}
	}()
}
