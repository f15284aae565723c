// Package hyperway implements the bidirectional Hyperlane pair: two
// one-way lanes plus near/far endpoint views, with the
// inbound lane pre-filtered so a peer cannot spoof its identity.
package hyperway

import (
	"context"
	"sync"

	"github.com/luxfi/hyperlane/hyperlane"
	"github.com/luxfi/hyperlane/metrics"
	"github.com/luxfi/hyperlane/surface"
	"github.com/luxfi/hyperlane/wave"
	"github.com/luxfi/log"
)

// Hyperway pairs an inbound and outbound Hyperlane with a known remote
// Surface.
type Hyperway struct {
	Inbound  *hyperlane.Hyperlane
	Outbound *hyperlane.Hyperlane
	Remote   surface.Surface
}

// New builds a Hyperway to remote, pre-configuring the inbound lane with
// filters that force from=remote and agent=agent so a peer on the far
// endpoint cannot spoof either field.
func New(remote surface.Surface, agent string, logger log.Logger, m *metrics.Fabric) *Hyperway {
	hw := &Hyperway{
		Inbound:  hyperlane.New("inbound:"+remote.String(), logger, m),
		Outbound: hyperlane.New("outbound:"+remote.String(), logger, m),
		Remote:   remote,
	}
	hw.Inbound.Transform(func(w wave.Wave) wave.Wave {
		w.From = remote
		return w
	})
	hw.Inbound.Transform(func(w wave.Wave) wave.Wave {
		w.Agent = agent
		return w
	})
	return hw
}

// Endpoint is one side's view of a Hyperway: it sends into one lane and
// attaches a consumer to the other.
type Endpoint struct {
	send *hyperlane.Hyperlane
	recv *hyperlane.Hyperlane
	remote surface.Surface

	dropOnce   sync.Once
	dropNotify chan<- struct{}
}

// Send enqueues w on this endpoint's send-side lane.
func (e *Endpoint) Send(ctx context.Context, w wave.Wave) error { return e.send.Send(ctx, w) }

// AttachConsumer installs sink on this endpoint's receive-side lane.
func (e *Endpoint) AttachConsumer(sink hyperlane.Sink) { e.recv.AttachConsumer(sink) }

// Remote reports the Hyperway's known peer Surface.
func (e *Endpoint) Remote() surface.Surface { return e.remote }

// Drop signals, once, that this endpoint's owner has released it, so the
// interchange can remove the backing Hyperway.
func (e *Endpoint) Drop() {
	e.dropOnce.Do(func() {
		if e.dropNotify == nil {
			return
		}
		select {
		case e.dropNotify <- struct{}{}:
		default:
		}
	})
}

// NearEndpoint returns the view used by the local interchange: send into
// Outbound, receive from Inbound.
func (hw *Hyperway) NearEndpoint(dropNotify chan<- struct{}) *Endpoint {
	return &Endpoint{send: hw.Outbound, recv: hw.Inbound, remote: hw.Remote, dropNotify: dropNotify}
}

// FarEndpoint returns the view used by the peer side (or a local mount):
// send into Inbound, receive from Outbound.
func (hw *Hyperway) FarEndpoint(dropNotify chan<- struct{}) *Endpoint {
	return &Endpoint{send: hw.Inbound, recv: hw.Outbound, remote: hw.Remote, dropNotify: dropNotify}
}

// Mirror returns the peer side's view of the same lane pair: what this
// Hyperway sends on Outbound the mirror receives as its Inbound, and vice
// versa. Used to share one lane pair between two in-process interchanges
// (a star-to-star link). The mirror's inbound carries the same spoof-guard
// filters as a fresh Hyperway's.
func (hw *Hyperway) Mirror(remote surface.Surface, agent string) *Hyperway {
	m := &Hyperway{Inbound: hw.Outbound, Outbound: hw.Inbound, Remote: remote}
	m.Inbound.Transform(func(w wave.Wave) wave.Wave {
		w.From = remote
		return w
	})
	m.Inbound.Transform(func(w wave.Wave) wave.Wave {
		w.Agent = agent
		return w
	})
	return m
}

// Close closes both lanes, used when the interchange removes this Hyperway.
func (hw *Hyperway) Close() {
	hw.Inbound.Close()
	hw.Outbound.Close()
}
