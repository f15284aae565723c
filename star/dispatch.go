package star

import (
	"context"
	"time"

	"github.com/luxfi/hyperlane/errs"
	"github.com/luxfi/hyperlane/point"
	"github.com/luxfi/hyperlane/surface"
	"github.com/luxfi/hyperlane/traversal"
	"github.com/luxfi/hyperlane/wave"
)

// Run is the Star's central dispatcher: exactly one call variant is
// processed per step, single-threaded and cooperative.
func (s *Star) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-s.closed:
			return nil
		case c := <-s.calls:
			start := time.Now()
			s.dispatch(ctx, c)
			if s.m != nil {
				s.m.StarDispatch.WithLabelValues(callNames[c.kind]).Observe(time.Since(start).Seconds())
			}
		}
	}
}

func (s *Star) dispatch(ctx context.Context, c call) {
	var err error
	switch c.kind {
	case callFromHyperway:
		err = s.fromHyperway(ctx, c.wave)
	case callToGravity:
		err = s.toGravity(ctx, c.wave)
	case callShard:
		err = s.shard(ctx, c.wave)
	case callToHyperway:
		err = s.toHyperway(ctx, c.wave)
	case callInjection:
		err = s.engine.Inject(ctx, c.inj)
	}
	if err != nil {
		s.log.Warn("dispatch failed", "variant", callNames[c.kind], "error", err.Error())
	}
}

// fromHyperway processes a Signal carrying a Hop: unwrap, increment hops,
// drop past the ceiling, then either inject locally, forward, or fail.
func (s *Star) fromHyperway(ctx context.Context, w wave.Wave) error {
	if !wave.IsHop(w) {
		return errs.Wrapf(errs.Transport, "star: hyperway delivered a non-hop %s wave %s", w.Variant(), w.ID)
	}
	transportSig, err := wave.UnwrapHop(w)
	if err != nil {
		return errs.Wrap(errs.Transport, err)
	}
	transportSig = transportSig.IncrementHops()
	if transportSig.ExceedsMaxHops() {
		s.log.Warn("dropping wave past hop ceiling", "wave", transportSig.ID.String(), "hops", transportSig.Hops)
		return nil
	}

	to, ok := transportSig.To()
	if !ok {
		return errs.Wrapf(errs.Transport, "star: transport %s has no recipient", transportSig.ID)
	}
	if to.Point.Equal(s.point) {
		inner, err := wave.UnwrapTransport(transportSig)
		if err != nil {
			return errs.Wrap(errs.Transport, err)
		}
		return s.injectLocal(ctx, inner)
	}
	if s.kind.Forwarder() {
		return s.enqueue(ctx, call{kind: callToHyperway, wave: transportSig})
	}
	return errs.Wrapf(errs.Transport, "star: %s is not a forwarder for transport to %s", s.point, to.Point)
}

// toGravity records this Star in the wave's history, dispatches global
// executor traffic directly, and forwards the rest to Shard.
func (s *Star) toGravity(ctx context.Context, w wave.Wave) error {
	w = w.AppendHistory(s.point)
	if to, ok := w.To(); ok && to.Point.Equal(point.GlobalExecutor) {
		return s.handleGlobal(ctx, w)
	}
	return s.enqueue(ctx, call{kind: callShard, wave: w})
}

func (s *Star) handleGlobal(ctx context.Context, w wave.Wave) error {
	status, body, err := s.global.Handle(ctx, w)
	if err != nil {
		s.reflectErr(ctx, w, err)
		return nil
	}
	if w.Variant() == wave.SignalVariant {
		return nil
	}
	reply := w.Reflect(surface.New(point.GlobalExecutor, surface.Core), status, body)
	return s.enqueue(ctx, call{kind: callToGravity, wave: reply})
}

// injectLocal delivers a wave already resolved to this Star: reflections
// feed the exchanger, everything else enters the traversal engine at the
// Gravity layer of a synthetic injector Surface.
func (s *Star) injectLocal(ctx context.Context, w wave.Wave) error {
	if w.Variant().Reflects() && s.exch.Reflect(w) {
		return nil
	}
	return s.enqueue(ctx, call{kind: callInjection, inj: traversal.Injection{
		Wave:        w,
		Injector:    s.gravitySurf,
		FromGravity: true,
	}})
}

// shard resolves recipient location: self-destined pieces are re-injected
// at the Gravity layer for local traversal, remote ones are wrapped in a
// Transport. Ripples partition their recipient set per destination Star,
// skipping Stars already in history.
func (s *Star) shard(ctx context.Context, w wave.Wave) error {
	switch w.Recipients.Kind {
	case wave.Single:
		to, _ := w.To()
		dest, err := s.loc.Locate(ctx, to.Point)
		if err != nil {
			s.reflectErr(ctx, w, err)
			return nil
		}
		if dest.Equal(s.point) {
			return s.injectLocal(ctx, w)
		}
		return s.transportTo(ctx, w, dest)
	case wave.Multi:
		shards := map[string][]surface.Surface{}
		stars := map[string]point.Point{}
		for _, to := range w.Recipients.Multi_ {
			dest, err := s.loc.Locate(ctx, to.Point)
			if err != nil {
				s.log.Debug("shard: skipping unlocatable recipient", "point", to.Point.String(), "error", err.Error())
				continue
			}
			if w.Visited(dest) {
				continue
			}
			shards[dest.Key()] = append(shards[dest.Key()], to)
			stars[dest.Key()] = dest
		}
		for key, subs := range shards {
			shard := w
			shard.Recipients = wave.MultiRecipients(subs)
			if stars[key].Equal(s.point) {
				if err := s.injectLocal(ctx, shard); err != nil {
					s.log.Warn("shard: local injection failed", "star", key, "error", err.Error())
				}
				continue
			}
			if err := s.transportTo(ctx, shard, stars[key]); err != nil {
				s.log.Warn("shard: transport failed", "star", key, "error", err.Error())
			}
		}
		return nil
	case wave.Stars:
		for _, dest := range w.Recipients.StarSet {
			if w.Visited(dest) {
				continue
			}
			shard := w
			shard.Recipients = wave.SingleRecipient(surface.New(dest, surface.Core))
			if dest.Equal(s.point) {
				if err := s.injectLocal(ctx, shard); err != nil {
					s.log.Warn("shard: local injection failed", "star", dest.String(), "error", err.Error())
				}
				continue
			}
			if err := s.transportTo(ctx, shard, dest); err != nil {
				s.log.Warn("shard: transport failed", "star", dest.String(), "error", err.Error())
			}
		}
		return nil
	}
	return errs.Wrapf(errs.Internal, "star: wave %s has unknown recipients kind", w.ID)
}

// transportTo wraps w in a Transport addressed from this Star to dest's
// Core and hands it to ToHyperway.
func (s *Star) transportTo(ctx context.Context, w wave.Wave, dest point.Point) error {
	transport := wave.WrapTransport(w, s.coreSurf, surface.New(dest, surface.Core))
	transport.History = w.History
	transport.Hops = w.Hops
	return s.enqueue(ctx, call{kind: callToHyperway, wave: transport})
}

// toHyperway wraps a Transport in a Hop and routes it: to self, to the
// adjacent peer, or to any adjacent forwarder. With no adjacent forwarder
// the send fails (the ripple-search discovery wave is an open question;
// the first-forwarder pick relies on the receiver to re-forward).
func (s *Star) toHyperway(ctx context.Context, transportSig wave.Wave) error {
	to, ok := transportSig.To()
	if !ok {
		return errs.Wrapf(errs.Transport, "star: transport %s has no recipient", transportSig.ID)
	}
	next := to.Point
	if !next.Equal(s.point) && !s.isAdjacent(next) {
		fwd, ok := s.firstForwarder()
		if !ok {
			return errs.Wrap(errs.Transport, errs.ErrNoForwarder)
		}
		next = fwd
	}
	hop := wave.WrapHop(transportSig, s.coreSurf, surface.New(next, surface.Core))
	return s.ic.Route(ctx, hop)
}

func (s *Star) isAdjacent(p point.Point) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.adjacent[p.Key()]
	return ok
}

func (s *Star) firstForwarder() (point.Point, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var best *Stub
	for _, stub := range s.adjacent {
		if !stub.Kind.Forwarder() {
			continue
		}
		if best == nil || stub.Point.Less(best.Point) {
			b := stub
			best = &b
		}
	}
	if best == nil {
		return point.Point{}, false
	}
	return best.Point, true
}

// exitUp is the engine's Fabric sink: the wave re-enters gravity.
func (s *Star) exitUp(ctx context.Context, t traversal.Traversal) error {
	return s.enqueue(ctx, call{kind: callToGravity, wave: t.Wave})
}

// exitDown is the engine's Core sink: the wave terminates at the target
// Particle's driver, whose result becomes the reflection pushed back in
// the opposite direction.
func (s *Star) exitDown(ctx context.Context, t traversal.Traversal) error {
	base := t.Record.Details.Stub.Kind.Base
	driver, ok := s.drivers[base]
	if !ok {
		s.reflectErr(ctx, t.Wave, errs.Wrapf(errs.NotFound, "star: no driver for kind %s", base))
		return nil
	}
	status, body, err := driver.Handle(ctx, t.Wave)
	if err != nil {
		s.reflectErr(ctx, t.Wave, err)
		return nil
	}
	if !reflectionRequested(t.Wave) {
		return nil
	}
	reply := t.Wave.Reflect(t.To, status, body)
	return s.enqueue(ctx, call{kind: callToGravity, wave: reply})
}

func reflectionRequested(w wave.Wave) bool {
	switch w.Variant() {
	case wave.PingVariant:
		return true
	case wave.RippleVariant:
		return w.BounceBacks.Kind != wave.BounceNone
	default:
		return false
	}
}

// reflectErr synthesizes an error reflection where the variant permits;
// Signal failures are logged only.
func (s *Star) reflectErr(ctx context.Context, w wave.Wave, cause error) {
	if !w.Variant().Directed() || w.Variant() == wave.SignalVariant {
		s.log.Warn("unreflectable failure", "wave", w.ID.String(), "error", cause.Error())
		return
	}
	reply := w.Reflect(s.coreSurf, errs.Status(cause), cause)
	if err := s.enqueue(ctx, call{kind: callToGravity, wave: reply}); err != nil {
		s.log.Warn("failed to enqueue error reflection", "wave", w.ID.String(), "error", err.Error())
	}
}
