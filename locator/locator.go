// Package locator implements the smart locator: resolve a
// point to its hosting Star via the registry, provisioning on demand by
// pinging the parent's Star with a Provision request.
package locator

import (
	"context"

	"github.com/luxfi/hyperlane/errs"
	"github.com/luxfi/hyperlane/point"
	"github.com/luxfi/hyperlane/registry"
	"github.com/luxfi/hyperlane/surface"
	"github.com/luxfi/hyperlane/wave"
	"github.com/luxfi/log"
)

// Transmitter sends a directed wave and waits for its reflection — the
// star transmitter seam the locator provisions through.
type Transmitter interface {
	Ping(ctx context.Context, w wave.Wave) (wave.Wave, error)
}

// ProvisionRequest is the body of a Provision ping.
type ProvisionRequest struct {
	Point point.Point
	State []byte
}

// Locator resolves point → Star, provisioning unassigned points through
// their parent's Star.
type Locator struct {
	reg registry.Registry
	tx  Transmitter
	// self is the origin Surface provisioning pings are sent from.
	self surface.Surface
	// central hosts the children of Root, which has no Star of its own.
	central point.Point
	log     log.Logger
}

// New builds a Locator. central names the Star that hosts Root's children.
func New(reg registry.Registry, tx Transmitter, self surface.Surface, central point.Point, logger log.Logger) *Locator {
	if logger == nil {
		logger = log.NewNoOpLogger()
	}
	return &Locator{reg: reg, tx: tx, self: self, central: central, log: logger}
}

// Locate returns the Star hosting p, provisioning it first if the registry
// record carries no location.
func (l *Locator) Locate(ctx context.Context, p point.Point) (point.Point, error) {
	rec, err := l.reg.Record(p)
	if err != nil {
		return point.Point{}, err
	}
	if rec.Location.Provisioned() {
		return *rec.Location.Star, nil
	}
	return l.provision(ctx, p, nil)
}

// provision ensures p's parent is provisioned, then asks the parent's Star
// to place p. On 200 the reply body's Location is adopted; on failure p's
// status is set to Panic, with duplicate registration distinguished from
// other failures.
func (l *Locator) provision(ctx context.Context, p point.Point, state []byte) (point.Point, error) {
	parent, ok := p.Parent()
	if !ok {
		return point.Point{}, errs.Wrapf(errs.Provisioning, "locator: %s has no parent to provision through", p)
	}

	parentStar := l.central
	if !parent.Root() {
		// Root is treated as already provisioned; everything else recurses.
		star, err := l.Locate(ctx, parent)
		if err != nil {
			return point.Point{}, errs.Wrapf(errs.Provisioning, "locator: parent %s of %s: %w", parent, p, err)
		}
		parentStar = star
	}

	ping := wave.NewPing(
		l.self,
		surface.New(parentStar, surface.Core),
		wave.Core{Method: wave.MethodProvision, Body: ProvisionRequest{Point: p, State: state}},
	)
	reply, err := l.tx.Ping(ctx, ping)
	if err != nil {
		return point.Point{}, errs.Wrapf(errs.Provisioning, "locator: provision ping for %s: %w", p, err)
	}
	if reply.Status != 200 {
		if statusErr := l.reg.SetStatus(p, registry.Panic); statusErr != nil {
			l.log.Warn("locator: failed to mark panicked point", "point", p.String(), "error", statusErr.Error())
		}
		if cause, isErr := reply.Core.Body.(error); isErr && errs.Is(cause, errs.Dupe) {
			return point.Point{}, errs.Wrapf(errs.Dupe, "locator: %s already provisioned elsewhere", p)
		}
		return point.Point{}, errs.Wrapf(errs.Provisioning, "locator: provision of %s refused with status %d", p, reply.Status)
	}

	loc, ok := reply.Core.Body.(registry.Location)
	if !ok || loc.Star == nil {
		return point.Point{}, errs.Wrapf(errs.Provisioning, "locator: provision reply for %s carries no location", p)
	}
	if err := l.reg.AssignStar(p, *loc.Star); err != nil {
		return point.Point{}, err
	}
	if loc.Host != nil {
		if err := l.reg.AssignHost(p, *loc.Host); err != nil {
			return point.Point{}, err
		}
	}
	l.log.Debug("locator: provisioned", "point", p.String(), "star", loc.Star.String())
	return *loc.Star, nil
}
