package star

import (
	"context"
	"sort"

	"github.com/luxfi/hyperlane/errs"
	"github.com/luxfi/hyperlane/locator"
	"github.com/luxfi/hyperlane/registry"
	"github.com/luxfi/hyperlane/wave"
)

// bounceDriver answers every directed wave with 200 and an echo of its
// body — the Cmd::Bounce behavior and the default GLOBAL::executor
// handler.
type bounceDriver struct{}

func (bounceDriver) Handle(_ context.Context, w wave.Wave) (int, any, error) {
	return 200, w.Core.Body, nil
}

// BounceDriver returns the echoing Driver, for kinds whose only contract
// under test is Cmd::Bounce.
func BounceDriver() Driver { return bounceDriver{} }

// starDriver terminates waves addressed to a Star particle itself: it
// serves Provision requests from child locators, Search sweeps from
// wranglers, and Bounce.
type starDriver struct{ star *Star }

func (d *starDriver) Handle(ctx context.Context, w wave.Wave) (int, any, error) {
	switch w.Core.Method {
	case wave.MethodProvision:
		return d.provision(w)
	case wave.MethodSearch:
		return 200, d.star.hostedKinds(), nil
	case wave.MethodBounce:
		return 200, w.Core.Body, nil
	default:
		if w.Variant().Reflects() {
			// Stray reflections that traversed all the way down are inert.
			return 200, nil, nil
		}
		return 0, nil, errs.Wrapf(errs.NotFound, "star: no handler for method %q", w.Core.Method)
	}
}

// provision places the requested point on this Star: the parent's Star
// adopts the child and answers with the
// assigned Location.
func (d *starDriver) provision(w wave.Wave) (int, any, error) {
	req, ok := w.Core.Body.(locator.ProvisionRequest)
	if !ok {
		return 0, nil, errs.Wrapf(errs.Internal, "star: provision body is not a request")
	}
	rec, err := d.star.reg.Record(req.Point)
	if err != nil {
		return 0, nil, err
	}
	if rec.Location.Provisioned() {
		return 0, nil, errs.Wrapf(errs.Dupe, "star: %s is already provisioned on %s", req.Point, rec.Location.Star)
	}
	self := d.star.point
	if err := d.star.reg.AssignStar(req.Point, self); err != nil {
		return 0, nil, err
	}
	if err := d.star.reg.SetStatus(req.Point, registry.Init); err != nil {
		return 0, nil, err
	}
	return 200, registry.Location{Star: &self}, nil
}

// hostedKinds reports the base kinds this Star can terminate, for wrangle
// replies.
func (s *Star) hostedKinds() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, 0, len(s.drivers)+1)
	seen := map[string]struct{}{s.kind.Base.String(): {}}
	out = append(out, s.kind.Base.String())
	for base := range s.drivers {
		if _, ok := seen[base.String()]; ok {
			continue
		}
		seen[base.String()] = struct{}{}
		out = append(out, base.String())
	}
	sort.Strings(out)
	return out
}
