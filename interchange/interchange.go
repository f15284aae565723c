// Package interchange implements the multi-Hyperway switchboard: a
// per-Star map from remote Surface to Hyperway, with
// add/remove/mount/route and a singular-to override used by gates.
package interchange

import (
	"context"
	"sync"

	"github.com/luxfi/hyperlane/errs"
	"github.com/luxfi/hyperlane/hyperlane"
	"github.com/luxfi/hyperlane/hyperway"
	"github.com/luxfi/hyperlane/metrics"
	"github.com/luxfi/hyperlane/surface"
	"github.com/luxfi/hyperlane/wave"
	"github.com/luxfi/log"
)

// Interchange is a switchboard of Hyperways for a single Star.
type Interchange struct {
	mu  sync.Mutex
	ways map[string]*hyperway.Hyperway

	overrideTo *surface.Surface

	central *hyperlane.Hyperlane // the Star's central call channel
	log     log.Logger
	m       *metrics.Fabric
}

// New builds an Interchange that relays every mounted Hyperway's inbound
// traffic into central, the Star dispatcher's call channel.
func New(central *hyperlane.Hyperlane, logger log.Logger, m *metrics.Fabric) *Interchange {
	if logger == nil {
		logger = log.NewNoOpLogger()
	}
	return &Interchange{
		ways:    map[string]*hyperway.Hyperway{},
		central: central,
		log:     logger,
		m:       m,
	}
}

type centralSink struct{ central *hyperlane.Hyperlane }

func (c centralSink) Send(w wave.Wave) error {
	return c.central.Send(context.Background(), w)
}

// Add inserts hw for remote and begins relaying its inbound receiver into
// the central call channel. The returned near endpoint removes the
// Hyperway when dropped.
func (ic *Interchange) Add(remote surface.Surface, hw *hyperway.Hyperway) *hyperway.Endpoint {
	ic.mu.Lock()
	ic.ways[remote.Point.Key()] = hw
	if ic.overrideTo != nil {
		forceOverride(hw, *ic.overrideTo)
	}
	ic.mu.Unlock()

	hw.Inbound.AttachConsumer(centralSink{ic.central})
	if ic.m != nil {
		ic.m.InterchangeRoute.WithLabelValues("added").Inc()
	}

	drop := make(chan struct{}, 1)
	go ic.watchDrop(remote, drop)
	return hw.NearEndpoint(drop)
}

// Mount returns a far endpoint for stub.Remote, creating a fresh Hyperway
// (or reusing one already mounted), optionally pre-seeding it with a
// single wave delivered before anything else, used by gates handing a
// freshly connected peer its Pong/Greet.
func (ic *Interchange) Mount(stub hyperway.Stub, initWave *wave.Wave) *hyperway.Endpoint {
	ic.mu.Lock()
	hw, exists := ic.ways[stub.Remote.Point.Key()]
	if !exists {
		hw = hyperway.New(stub.Remote, stub.Agent, ic.log, ic.m)
		ic.ways[stub.Remote.Point.Key()] = hw
		if ic.overrideTo != nil {
			forceOverride(hw, *ic.overrideTo)
		}
	}
	ic.mu.Unlock()

	if !exists {
		hw.Inbound.AttachConsumer(centralSink{ic.central})
	}
	drop := make(chan struct{}, 1)
	go ic.watchDrop(stub.Remote, drop)

	if initWave != nil {
		_ = hw.Outbound.Send(context.Background(), *initWave)
	}
	return hw.FarEndpoint(drop)
}

func (ic *Interchange) watchDrop(remote surface.Surface, drop <-chan struct{}) {
	<-drop
	ic.Remove(remote)
}

// Mounted reports whether a Hyperway is currently mounted for remote, used
// by the mount-gate variant that refuses to fabricate ways for unknown
// peers.
func (ic *Interchange) Mounted(remote surface.Surface) bool {
	ic.mu.Lock()
	defer ic.mu.Unlock()
	_, ok := ic.ways[remote.Point.Key()]
	return ok
}

// Remove deletes remote's entry; the Hyperway and its lanes are dropped.
func (ic *Interchange) Remove(remote surface.Surface) {
	ic.mu.Lock()
	hw, ok := ic.ways[remote.Point.Key()]
	delete(ic.ways, remote.Point.Key())
	ic.mu.Unlock()
	if ok {
		hw.Close()
		if ic.m != nil {
			ic.m.InterchangeRoute.WithLabelValues("removed").Inc()
		}
		ic.log.Debug("interchange: removed hyperway", "remote", remote.String())
	}
}

// Route places w on the outbound lane of the Hyperway matching w's single
// recipient. Ripples addressed directly to the interchange are rejected —
// they must be wrapped in Hop or Transport first.
func (ic *Interchange) Route(ctx context.Context, w wave.Wave) error {
	if w.Variant() == wave.RippleVariant {
		return errs.Wrap(errs.Transport, errs.ErrNoForwarder)
	}
	to, ok := w.To()
	if !ok {
		return errs.Wrapf(errs.Transport, "interchange: wave %s has no single recipient to route", w.ID)
	}
	ic.mu.Lock()
	hw, ok := ic.ways[to.Point.Key()]
	ic.mu.Unlock()
	if !ok {
		if ic.m != nil {
			ic.m.InterchangeRoute.WithLabelValues("no_hyperway").Inc()
		}
		return errs.Wrapf(errs.Transport, "interchange: no hyperway mounted for %s", to.Point)
	}
	err := hw.Outbound.Send(ctx, w)
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	if ic.m != nil {
		ic.m.InterchangeRoute.WithLabelValues(outcome).Inc()
	}
	return err
}

// SetOverrideTo rewrites every mounted and future Hyperway's inbound `to`
// filter to override, used when a gate wants all traffic to arrive at one
// Surface.
func (ic *Interchange) SetOverrideTo(override surface.Surface) {
	ic.mu.Lock()
	defer ic.mu.Unlock()
	ic.overrideTo = &override
	for _, hw := range ic.ways {
		forceOverride(hw, override)
	}
}

func forceOverride(hw *hyperway.Hyperway, to surface.Surface) {
	hw.Inbound.Transform(func(w wave.Wave) wave.Wave {
		if w.Recipients.Kind == wave.Single {
			w.Recipients.Surface = to
		}
		return w
	})
}
