// Package exchange implements the per-Surface exchanger:
// correlation of reflected waves back to the directed waves that expect
// them, with per-wait-class timeouts and synthesized 408 replies so
// callers never hang indefinitely.
package exchange

import (
	"sync"
	"time"

	"github.com/luxfi/hyperlane/metrics"
	"github.com/luxfi/hyperlane/surface"
	"github.com/luxfi/hyperlane/wave"
	"github.com/luxfi/log"
)

// Timeouts is a Surface's timeout table, indexed by wave.WaitClass.
type Timeouts struct {
	High time.Duration
	Med  time.Duration
	Low  time.Duration
}

// DefaultTimeouts are the nominal per-class waits used when a Surface does
// not configure its own table.
var DefaultTimeouts = Timeouts{
	High: 30 * time.Second,
	Med:  10 * time.Second,
	Low:  5 * time.Second,
}

// For returns the timeout for class.
func (t Timeouts) For(class wave.WaitClass) time.Duration {
	switch class {
	case wave.WaitHigh:
		return t.High
	case wave.WaitLow:
		return t.Low
	default:
		return t.Med
	}
}

// slot is one open exchange: a directed wave awaiting its reflections.
type slot struct {
	origin wave.Wave
	mode   wave.BounceBackKind
	want   int
	got    []wave.Wave
	done   chan []wave.Wave
	timer  *time.Timer
}

// Exchanger tracks the open directed waves of a single Surface. All slots
// are owned here until satisfied or timed out.
type Exchanger struct {
	surf     surface.Surface
	timeouts Timeouts

	mu   sync.Mutex
	open map[string]*slot

	log log.Logger
	m   *metrics.Fabric
}

// New builds an Exchanger for surf using the given timeout table.
func New(surf surface.Surface, timeouts Timeouts, logger log.Logger, m *metrics.Fabric) *Exchanger {
	if logger == nil {
		logger = log.NewNoOpLogger()
	}
	return &Exchanger{
		surf:     surf,
		timeouts: timeouts,
		open:     map[string]*slot{},
		log:      logger,
		m:        m,
	}
}

// Open registers w's expected reflections and returns a channel that will
// receive them exactly once. The second return is false when w expects no
// reflection (Signals, and Ripples with BounceNone) and no slot was opened.
//
// A Ping is a single bounce-back; a Ripple with
// Count(n) accumulates until n replies or timeout; a Ripple with Timer
// accumulates until the timer fires; BounceNone and Signals are
// fire-and-forget.
func (e *Exchanger) Open(w wave.Wave) (<-chan []wave.Wave, bool) {
	var mode wave.BounceBackKind
	want := 0
	wait := e.timeouts.For(w.Handling.Wait)

	switch w.Variant() {
	case wave.PingVariant:
		mode = wave.BounceSingle
		want = 1
	case wave.RippleVariant:
		mode = w.BounceBacks.Kind
		switch mode {
		case wave.BounceNone:
			return nil, false
		case wave.BounceSingle:
			want = 1
		case wave.BounceCount:
			want = w.BounceBacks.Count
		case wave.BounceTimer:
			wait = w.BounceBacks.Timer
		}
	default:
		return nil, false
	}

	s := &slot{
		origin: w,
		mode:   mode,
		want:   want,
		done:   make(chan []wave.Wave, 1),
	}
	key := w.ID.UUID.String()

	e.mu.Lock()
	e.open[key] = s
	s.timer = time.AfterFunc(wait, func() { e.expire(key, w.Handling.Wait) })
	e.mu.Unlock()

	return s.done, true
}

// Reflect routes a reflected wave to its open slot. It reports whether the
// wave was consumed by an exchange; unconsumed reflections are the caller's
// to broadcast.
func (e *Exchanger) Reflect(w wave.Wave) bool {
	if !w.Variant().Reflects() || w.ReflectionOf.IsZero() {
		return false
	}
	key := w.ReflectionOf.UUID.String()

	e.mu.Lock()
	s, ok := e.open[key]
	if !ok {
		e.mu.Unlock()
		return false
	}
	s.got = append(s.got, w)
	complete := s.mode != wave.BounceTimer && len(s.got) >= s.want
	if complete {
		delete(e.open, key)
		s.timer.Stop()
	}
	e.mu.Unlock()

	if complete {
		s.done <- s.got
	}
	return true
}

// expire completes a still-open slot at its deadline. A timer-mode Ripple
// completes with whatever accumulated; anything else that never saw a reply
// completes with a synthesized 408 reflection.
func (e *Exchanger) expire(key string, class wave.WaitClass) {
	e.mu.Lock()
	s, ok := e.open[key]
	if ok {
		delete(e.open, key)
	}
	e.mu.Unlock()
	if !ok {
		return
	}
	if s.mode != wave.BounceTimer && len(s.got) == 0 {
		s.got = append(s.got, wave.Timeout(s.origin, e.surf))
		if e.m != nil {
			e.m.ExchangeTimeout.WithLabelValues(classLabel(class)).Inc()
		}
		e.log.Debug("exchange: synthesized 408 for expired slot", "wave", s.origin.ID.String())
	}
	s.done <- s.got
}

func classLabel(class wave.WaitClass) string {
	switch class {
	case wave.WaitHigh:
		return "high"
	case wave.WaitLow:
		return "low"
	default:
		return "med"
	}
}

// OpenCount reports the number of unexpired slots, for tests and health
// checks.
func (e *Exchanger) OpenCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.open)
}
