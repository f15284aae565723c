// Package hyperlane implements the one-way in-memory FIFO channel of the
// transport layer: a bounded queue with a filter chain and a single
// attachable consumer.
package hyperlane

import (
	"context"
	"fmt"
	"time"

	"github.com/luxfi/hyperlane/errs"
	"github.com/luxfi/hyperlane/metrics"
	"github.com/luxfi/hyperlane/wave"
	"github.com/luxfi/log"
)

// DefaultCapacity is the nominal lane bound.
const DefaultCapacity = 1024

// enqueueTimeout is how long a producer waits before treating a send as
// lost.
const enqueueTimeout = 5 * time.Second

// Filter rewrites one field of a wave on enqueue: agent, layer, to, from,
// or a wrap into Transport/Hop.
type Filter func(wave.Wave) wave.Wave

// Sink is the consumer side a Hyperlane delivers to. Send returning an
// error triggers reset_consumer.
type Sink interface {
	Send(w wave.Wave) error
}

// Hyperlane is a bounded, filtered, single-consumer FIFO queue. All state
// is guarded by a single channel-backed ticket so Send can bound its wait
// with a timeout the way a plain sync.Mutex cannot.
type Hyperlane struct {
	ticket chan struct{}
	notify chan struct{}

	queue    []wave.Wave
	capacity int
	filters  []Filter
	sink     Sink
	pumping  bool
	closed   bool

	name string
	log  log.Logger
	m    *metrics.Fabric
}

// New builds an empty Hyperlane with DefaultCapacity, labeled name for logs
// and metrics.
func New(name string, logger log.Logger, m *metrics.Fabric) *Hyperlane {
	if logger == nil {
		logger = log.NewNoOpLogger()
	}
	h := &Hyperlane{
		ticket:   make(chan struct{}, 1),
		notify:   make(chan struct{}, 1),
		capacity: DefaultCapacity,
		name:     name,
		log:      logger,
		m:        m,
	}
	h.ticket <- struct{}{}
	return h
}

func (h *Hyperlane) acquire(ctx context.Context) error {
	select {
	case <-h.ticket:
		return nil
	case <-time.After(enqueueTimeout):
		return errs.Wrapf(errs.Transport, "hyperlane %s: send timed out acquiring lane", h.name)
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (h *Hyperlane) release() { h.ticket <- struct{}{} }

func (h *Hyperlane) wake() {
	select {
	case h.notify <- struct{}{}:
	default:
	}
}

// Transform appends filter to the chain applied on every future enqueue.
func (h *Hyperlane) Transform(f Filter) {
	if err := h.acquire(context.Background()); err != nil {
		return
	}
	defer h.release()
	h.filters = append(h.filters, f)
}

// Send enqueues w, applying the filter chain, evicting the oldest queued
// wave if the lane is at capacity.
func (h *Hyperlane) Send(ctx context.Context, w wave.Wave) error {
	if err := h.acquire(ctx); err != nil {
		return err
	}
	defer h.release()
	if h.closed {
		return errs.Wrap(errs.Transport, errs.ErrClosed)
	}
	for _, f := range h.filters {
		w = f(w)
	}
	if len(h.queue) >= h.capacity {
		h.queue = h.queue[1:]
		if h.m != nil {
			h.m.LaneDropped.WithLabelValues(h.name).Inc()
		}
		h.log.Debug("hyperlane: dropped oldest queued wave at capacity", "lane", h.name)
	}
	h.queue = append(h.queue, w)
	if h.m != nil {
		h.m.LaneQueueDepth.WithLabelValues(h.name).Set(float64(len(h.queue)))
	}
	h.wake()
	return nil
}

// AttachConsumer installs sink as the lane's consumer, flushing any queued
// waves to it in FIFO order before delivering new sends. At most one
// consumer is attached at a time.
func (h *Hyperlane) AttachConsumer(sink Sink) {
	if err := h.acquire(context.Background()); err != nil {
		return
	}
	h.sink = sink
	startPump := !h.pumping
	if startPump {
		h.pumping = true
	}
	h.release()
	if startPump {
		go h.pump()
	}
	h.wake()
}

// DetachConsumer removes the current consumer, if any; the lane waits for
// a new one.
func (h *Hyperlane) DetachConsumer() {
	if err := h.acquire(context.Background()); err != nil {
		return
	}
	h.sink = nil
	h.release()
}

// pump is the lane's single long-lived task: drain queue to sink until
// sink.Send fails (resetConsumer) or the lane closes.
func (h *Hyperlane) pump() {
	for {
		<-h.notify
		for {
			if err := h.acquire(context.Background()); err != nil {
				return
			}
			if h.closed {
				h.pumping = false
				h.release()
				return
			}
			if h.sink == nil {
				h.pumping = false
				h.release()
				return
			}
			if len(h.queue) == 0 {
				h.release()
				break
			}
			w := h.queue[0]
			sink := h.sink
			h.release()

			if err := sink.Send(w); err != nil {
				// The pump ends here; a fresh one starts on the next attach.
				h.resetConsumer(err)
				return
			}

			if err := h.acquire(context.Background()); err != nil {
				return
			}
			if len(h.queue) > 0 {
				h.queue = h.queue[1:]
			}
			if h.m != nil {
				h.m.LaneQueueDepth.WithLabelValues(h.name).Set(float64(len(h.queue)))
			}
			h.release()
		}
	}
}

// resetConsumer detaches the failed sink; the undelivered wave is already
// at the head of the queue since pump never popped it before the failed
// send.
func (h *Hyperlane) resetConsumer(cause error) {
	if err := h.acquire(context.Background()); err != nil {
		return
	}
	h.sink = nil
	h.pumping = false
	h.release()
	h.log.Warn("hyperlane: consumer reset", "lane", h.name, "error", fmt.Sprint(cause))
}

// Close marks the lane closed; further Sends fail with ErrClosed.
func (h *Hyperlane) Close() {
	if err := h.acquire(context.Background()); err != nil {
		return
	}
	h.closed = true
	h.release()
	h.wake()
}

// Len reports the current queue depth, for tests and health checks.
func (h *Hyperlane) Len() int {
	if err := h.acquire(context.Background()); err != nil {
		return 0
	}
	defer h.release()
	return len(h.queue)
}
