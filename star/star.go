// Package star implements the per-Star routing core: the
// shared skeleton (registry handle, adjacency, exchanger, interchange) and
// the single-threaded dispatcher that shards outbound waves, wraps and
// unwraps Transport/Hop envelopes, and hands local traffic to the layer
// traversal engine.
package star

import (
	"context"
	"sync"

	"github.com/luxfi/hyperlane/errs"
	"github.com/luxfi/hyperlane/exchange"
	"github.com/luxfi/hyperlane/hyperlane"
	"github.com/luxfi/hyperlane/hyperway"
	"github.com/luxfi/hyperlane/interchange"
	"github.com/luxfi/hyperlane/locator"
	"github.com/luxfi/hyperlane/metrics"
	"github.com/luxfi/hyperlane/point"
	"github.com/luxfi/hyperlane/registry"
	"github.com/luxfi/hyperlane/surface"
	"github.com/luxfi/hyperlane/traversal"
	"github.com/luxfi/hyperlane/wave"
	"github.com/luxfi/log"
)

// Stub is one adjacency entry: a neighboring Star's point and kind, the
// kind marking whether it forwards.
type Stub struct {
	Point point.Point
	Kind  point.Kind
}

// Driver terminates a wave at a Particle's Core layer, producing the
// status and body of the reflection (when one is requested).
type Driver interface {
	Handle(ctx context.Context, w wave.Wave) (status int, body any, err error)
}

// Config carries the explicit constructor arguments a Star needs.
type Config struct {
	Key      string
	Point    point.Point
	Kind     point.Kind
	Registry registry.Registry
	Adjacent []Stub
	// Central names the Star hosting Root's children; defaults to Point.
	Central point.Point
	// Drivers maps a particle's base kind to its Core-layer handler.
	Drivers map[point.BaseKind]Driver
	// Field and Shell are the engine-implemented layers; nil means pass-through.
	Field traversal.Handler
	Shell traversal.Handler
	// Global handles waves addressed to GLOBAL::executor; nil bounces 200.
	Global   Driver
	Timeouts exchange.Timeouts
	Logger   log.Logger
	Metrics  *metrics.Fabric
}

// callKind tags the dispatcher call variants.
type callKind uint8

const (
	callFromHyperway callKind = iota
	callToGravity
	callShard
	callToHyperway
	callInjection
)

var callNames = [...]string{"from_hyperway", "to_gravity", "shard", "to_hyperway", "injection"}

type call struct {
	kind callKind
	wave wave.Wave
	inj  traversal.Injection
}

// Star is one routing node of the mesh.
type Star struct {
	key   string
	point point.Point
	kind  point.Kind

	coreSurf    surface.Surface
	gravitySurf surface.Surface

	reg registry.Registry
	loc *locator.Locator

	mu       sync.Mutex
	adjacent map[string]Stub
	mounts   map[string]hyperway.Stub
	wrangled map[string][]point.Point

	exch    *exchange.Exchanger
	engine  *traversal.Engine
	ic      *interchange.Interchange
	central *hyperlane.Hyperlane

	calls   chan call
	drivers map[point.BaseKind]Driver
	global  Driver

	closed chan struct{}
	once   sync.Once

	log log.Logger
	m   *metrics.Fabric
}

// New wires a Star: central lane, interchange, exchanger, traversal
// engine, locator, self loopback Hyperway, and the Star's own registry
// row (Ensure strategy, assigned to itself, Ready).
func New(cfg Config) (*Star, error) {
	logger := cfg.Logger
	if logger == nil {
		logger = log.NewNoOpLogger()
	}
	coreSurf := surface.New(cfg.Point, surface.Core)
	timeouts := cfg.Timeouts
	if timeouts == (exchange.Timeouts{}) {
		timeouts = exchange.DefaultTimeouts
	}
	central := cfg.Central
	if central.Root() {
		central = cfg.Point
	}

	s := &Star{
		key:         cfg.Key,
		point:       cfg.Point,
		kind:        cfg.Kind,
		coreSurf:    coreSurf,
		gravitySurf: surface.New(cfg.Point, surface.Gravity),
		reg:         cfg.Registry,
		adjacent:    map[string]Stub{},
		mounts:      map[string]hyperway.Stub{},
		wrangled:    map[string][]point.Point{},
		calls:       make(chan call, 1024),
		drivers:     cfg.Drivers,
		global:      cfg.Global,
		closed:      make(chan struct{}),
		log:         logger.New("star", cfg.Point.String()),
		m:           cfg.Metrics,
	}
	if s.drivers == nil {
		s.drivers = map[point.BaseKind]Driver{}
	}
	if _, ok := s.drivers[point.StarKind]; !ok {
		s.drivers[point.StarKind] = &starDriver{star: s}
	}
	if s.global == nil {
		s.global = bounceDriver{}
	}
	for _, stub := range cfg.Adjacent {
		s.adjacent[stub.Point.Key()] = stub
	}

	s.central = hyperlane.New("central:"+cfg.Point.String(), logger, cfg.Metrics)
	s.ic = interchange.New(s.central, logger, cfg.Metrics)
	s.exch = exchange.New(coreSurf, timeouts, logger, cfg.Metrics)
	s.engine = traversal.New(
		cfg.Registry,
		cfg.Field,
		cfg.Shell,
		traversal.SinkFunc(s.exitUp),
		traversal.SinkFunc(s.exitDown),
		logger,
	)
	s.loc = locator.New(cfg.Registry, transmitter{s}, coreSurf, central, logger)

	// Loopback Hyperway: ToHyperway may address this Star itself (uniform
	// hop handling); its traffic re-enters the central lane here.
	self := hyperway.New(coreSurf, "star", logger, cfg.Metrics)
	self.Outbound.AttachConsumer(centralSink{s.central})
	s.ic.Add(coreSurf, self)

	s.central.AttachConsumer(callSink{s})

	if err := cfg.Registry.Register(registry.Registration{
		Point:    cfg.Point,
		Kind:     cfg.Kind,
		Owner:    point.HyperUser.Key(),
		Strategy: registry.Ensure,
	}); err != nil {
		return nil, err
	}
	if err := cfg.Registry.AssignStar(cfg.Point, cfg.Point); err != nil {
		return nil, err
	}
	if err := cfg.Registry.SetStatus(cfg.Point, registry.Ready); err != nil {
		return nil, err
	}
	return s, nil
}

// centralSink relays a lane into the central call channel.
type centralSink struct{ central *hyperlane.Hyperlane }

func (c centralSink) Send(w wave.Wave) error { return c.central.Send(context.Background(), w) }

// callSink turns central-lane arrivals into FromHyperway dispatcher calls.
type callSink struct{ s *Star }

func (c callSink) Send(w wave.Wave) error {
	return c.s.enqueue(context.Background(), call{kind: callFromHyperway, wave: w})
}

func (s *Star) enqueue(ctx context.Context, c call) error {
	select {
	case s.calls <- c:
		return nil
	case <-s.closed:
		return errs.Wrap(errs.Transport, errs.ErrClosed)
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Point returns this Star's point.
func (s *Star) Point() point.Point { return s.point }

// Kind returns this Star's kind.
func (s *Star) Kind() point.Kind { return s.kind }

// Registry returns the Star's registry handle.
func (s *Star) Registry() registry.Registry { return s.reg }

// Interchange exposes the Star's switchboard, used by gates fronting it.
func (s *Star) Interchange() *interchange.Interchange { return s.ic }

// Gravity is the Star's send channel: the entry point external writers
// produce waves into.
func (s *Star) Gravity(ctx context.Context, w wave.Wave) error {
	return s.enqueue(ctx, call{kind: callToGravity, wave: w})
}

// Mount records and mounts a peer's Hyperway through the interchange,
// tracking it in the Star's mount state table.
func (s *Star) Mount(stub hyperway.Stub, init *wave.Wave) *hyperway.Endpoint {
	s.mu.Lock()
	s.mounts[stub.Remote.Point.Key()] = stub
	s.mu.Unlock()
	return s.ic.Mount(stub, init)
}

// AddAdjacent links a neighbor into the adjacency map and mounts its
// Hyperway.
func (s *Star) AddAdjacent(stub Stub, hw *hyperway.Hyperway) {
	s.mu.Lock()
	s.adjacent[stub.Point.Key()] = stub
	s.mu.Unlock()
	s.ic.Add(surface.New(stub.Point, surface.Core), hw)
}

// Link joins two in-process Stars over one shared lane pair, updating both
// adjacency maps.
func Link(a, b *Star) {
	hw := hyperway.New(surface.New(b.point, surface.Core), "star", a.log, a.m)
	a.AddAdjacent(Stub{Point: b.point, Kind: b.kind}, hw)
	mirror := hw.Mirror(surface.New(a.point, surface.Core), "star")
	b.AddAdjacent(Stub{Point: a.point, Kind: a.kind}, mirror)
}

// Close stops the dispatcher and the Star's lanes.
func (s *Star) Close() {
	s.once.Do(func() {
		close(s.closed)
		s.central.Close()
	})
}

// transmitter adapts the Star into the locator's Transmitter seam.
type transmitter struct{ s *Star }

func (t transmitter) Ping(ctx context.Context, w wave.Wave) (wave.Wave, error) {
	return t.s.Ping(ctx, w)
}

// Ping sends a directed wave through gravity and waits for its reflection
// via the Star's exchanger.
func (s *Star) Ping(ctx context.Context, w wave.Wave) (wave.Wave, error) {
	ch, ok := s.exch.Open(w)
	if !ok {
		return wave.Wave{}, errs.Wrapf(errs.Internal, "star: wave %s expects no reflection", w.ID)
	}
	if err := s.Gravity(ctx, w); err != nil {
		return wave.Wave{}, err
	}
	select {
	case replies := <-ch:
		return replies[0], nil
	case <-ctx.Done():
		return wave.Wave{}, errs.Wrap(errs.Timeout, ctx.Err())
	}
}

// Ripple sends a multi-recipient wave and collects its echoes per the
// wave's bounce-back policy.
func (s *Star) Ripple(ctx context.Context, w wave.Wave) ([]wave.Wave, error) {
	ch, ok := s.exch.Open(w)
	if !ok {
		// Fire-and-forget ripple.
		return nil, s.Gravity(ctx, w)
	}
	if err := s.Gravity(ctx, w); err != nil {
		return nil, err
	}
	select {
	case replies := <-ch:
		return replies, nil
	case <-ctx.Done():
		return nil, errs.Wrap(errs.Timeout, ctx.Err())
	}
}
