// Package traversal implements the per-Particle layer pipeline: each wave
// walks an ordered subset of layers (the target
// Kind's traversal plan) in a direction decided by origin, destination,
// and injection site, with Field and Shell implemented by the engine and
// every other layer an exit point.
package traversal

import (
	"context"

	"github.com/luxfi/hyperlane/errs"
	"github.com/luxfi/hyperlane/layer"
	"github.com/luxfi/hyperlane/point"
	"github.com/luxfi/hyperlane/registry"
	"github.com/luxfi/hyperlane/surface"
	"github.com/luxfi/hyperlane/wave"
	"github.com/luxfi/log"
)

// Injection is one wave entering the engine at a specific Surface.
type Injection struct {
	Wave wave.Wave
	// Injector is the Surface the wave was injected at.
	Injector surface.Surface
	// FromGravity marks a wave just unwrapped from a Transport.
	FromGravity bool
}

// Traversal is the engine's cursor state for one wave: the wave itself,
// the target record, the plan, and the current position and direction.
type Traversal struct {
	Wave   wave.Wave
	To     surface.Surface
	Record registry.Record
	Plan   []layer.Layer
	Layer  layer.Layer
	Dir    layer.Direction
	Dest   layer.Layer
}

// Handler is a Field or Shell layer implementation: it may inspect or
// rewrite the traversal's wave, or reject it by returning an error,
// surfaced as a reflected error.
type Handler interface {
	Visit(ctx context.Context, t *Traversal) error
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc func(ctx context.Context, t *Traversal) error

// Visit calls f.
func (f HandlerFunc) Visit(ctx context.Context, t *Traversal) error { return f(ctx, t) }

// PassThrough is the identity Handler.
var PassThrough = HandlerFunc(func(context.Context, *Traversal) error { return nil })

// Sink receives a traversal leaving the engine: exit_up back toward
// gravity for the Fabric direction, exit_down to the driver for the Core
// direction.
type Sink interface {
	Exit(ctx context.Context, t Traversal) error
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(ctx context.Context, t Traversal) error

// Exit calls f.
func (f SinkFunc) Exit(ctx context.Context, t Traversal) error { return f(ctx, t) }

// Engine walks injections through traversal plans.
type Engine struct {
	reg      registry.Registry
	field    Handler
	shell    Handler
	exitUp   Sink
	exitDown Sink
	log      log.Logger
}

// New builds an Engine. field/shell default to PassThrough when nil.
func New(reg registry.Registry, field, shell Handler, exitUp, exitDown Sink, logger log.Logger) *Engine {
	if field == nil {
		field = PassThrough
	}
	if shell == nil {
		shell = PassThrough
	}
	if logger == nil {
		logger = log.NewNoOpLogger()
	}
	return &Engine{reg: reg, field: field, shell: shell, exitUp: exitUp, exitDown: exitDown, log: logger}
}

// Inject walks inj through its target's plan. Multi-recipient waves are
// split into one walk per recipient Surface.
func (e *Engine) Inject(ctx context.Context, inj Injection) error {
	if inj.Wave.Recipients.Kind == wave.Multi {
		for _, to := range inj.Wave.Recipients.Multi_ {
			sub := inj
			sub.Wave.Recipients = wave.SingleRecipient(to)
			if err := e.injectSingle(ctx, sub, to); err != nil {
				return err
			}
		}
		return nil
	}
	to, ok := inj.Wave.To()
	if !ok {
		return errs.Wrapf(errs.Internal, "traversal: wave %s has no resolvable recipient", inj.Wave.ID)
	}
	return e.injectSingle(ctx, inj, to)
}

func (e *Engine) injectSingle(ctx context.Context, inj Injection, to surface.Surface) error {
	rec, err := e.reg.Record(to.Point)
	if err != nil {
		if inj.Wave.Variant() == wave.RippleVariant {
			// An unknown target for a ripple shard is dropped on this Star.
			e.log.Debug("traversal: dropping ripple shard for unknown point", "point", to.Point.String())
			return nil
		}
		return e.reject(ctx, inj, to, err)
	}
	if !rec.Location.Provisioned() && inj.Wave.Variant() == wave.RippleVariant {
		// Provisioning happens via shard on the sender side; an unprovisioned
		// ripple target just loses this shard.
		e.log.Debug("traversal: dropping ripple shard for unprovisioned point", "point", to.Point.String())
		return nil
	}

	t := Traversal{
		Wave:   inj.Wave,
		To:     to,
		Record: rec,
		Plan:   rec.Details.Stub.Kind.TraversalPlan(),
	}
	t.Dir, t.Dest = decide(inj, to)

	if len(t.Plan) == 0 {
		// Undefined in the source when direction cannot be determined; treat
		// as a Fabric exit with a logged warning.
		e.log.Warn("traversal: empty plan, exiting toward fabric", "point", to.Point.String())
		t.Dir = layer.Fabric
		return e.exitUp.Exit(ctx, t)
	}

	t.Layer = inj.Injector.Layer
	if !planContains(t.Plan, t.Layer) {
		// The injection layer is off-plan; advance one step toward the
		// direction before visiting.
		next, ok := nearest(t.Plan, t.Layer, t.Dir)
		if !ok {
			return e.exit(ctx, t)
		}
		t.Layer = next
	}
	return e.walk(ctx, inj, t)
}

// decide resolves direction and destination layer from the injection site
// and the wave's origin and target.
func decide(inj Injection, to surface.Surface) (layer.Direction, layer.Layer) {
	w := inj.Wave
	switch {
	case inj.FromGravity:
		return layer.ToCore, to.Layer
	case to.Point.RouteSpace == point.Global:
		return layer.Fabric, layer.Gravity
	case to.Point.Equal(w.From.Point):
		if inj.Injector.Layer == to.Layer {
			// Degenerate: already at the destination layer; exits immediately.
			return layer.Fabric, to.Layer
		}
		if to.Layer > inj.Injector.Layer {
			return layer.ToCore, to.Layer
		}
		return layer.Fabric, to.Layer
	default:
		return layer.Fabric, layer.Gravity
	}
}

// walk visits layers, advancing the plan cursor, until the destination is
// reached or an exit-point layer takes the traversal.
func (e *Engine) walk(ctx context.Context, inj Injection, t Traversal) error {
	for {
		switch t.Layer {
		case layer.Field:
			if err := e.field.Visit(ctx, &t); err != nil {
				return e.reject(ctx, inj, t.To, err)
			}
		case layer.Shell:
			if err := e.shell.Visit(ctx, &t); err != nil {
				return e.reject(ctx, inj, t.To, err)
			}
		default:
			// Every other layer is an exit point.
			return e.exit(ctx, t)
		}
		if t.Layer == t.Dest {
			// Delivered regardless of remaining plan entries.
			return e.exit(ctx, t)
		}
		next, ok := layer.Step(t.Plan, t.Layer, t.Dir)
		if !ok {
			return e.exit(ctx, t)
		}
		t.Layer = next
	}
}

// exit hands the traversal to the sink matching its direction: a Fabric
// exit emits back to gravity, a Core exit to the driver sink.
func (e *Engine) exit(ctx context.Context, t Traversal) error {
	if t.Dir == layer.Fabric {
		return e.exitUp.Exit(ctx, t)
	}
	return e.exitDown.Exit(ctx, t)
}

// reject surfaces a layer rejection or lookup failure as a reflected error
// wave where the variant permits; Signals cannot reflect and are logged
// only.
func (e *Engine) reject(ctx context.Context, inj Injection, to surface.Surface, cause error) error {
	if inj.Wave.Variant() == wave.SignalVariant {
		e.log.Warn("traversal: signal rejected", "wave", inj.Wave.ID.String(), "error", cause.Error())
		return nil
	}
	reply := inj.Wave.Reflect(to, errs.Status(cause), nil)
	t := Traversal{Wave: reply, To: inj.Wave.From, Dir: layer.Fabric, Dest: layer.Gravity}
	return e.exitUp.Exit(ctx, t)
}

func planContains(plan []layer.Layer, l layer.Layer) bool {
	for _, p := range plan {
		if p == l {
			return true
		}
	}
	return false
}

// nearest finds the first plan layer strictly beyond l in direction d: the
// next core-ward layer for ToCore, the next fabric-ward layer for Fabric.
func nearest(plan []layer.Layer, l layer.Layer, d layer.Direction) (layer.Layer, bool) {
	if d == layer.ToCore {
		for _, p := range plan {
			if p > l {
				return p, true
			}
		}
		return 0, false
	}
	for i := len(plan) - 1; i >= 0; i-- {
		if plan[i] < l {
			return plan[i], true
		}
	}
	return 0, false
}
