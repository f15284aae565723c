// Package gate implements the knock-and-greet admission protocol: a peer
// Knocks, an Authenticator resolves its identity to a
// hyperway.Stub, a Greeter assigns its Surface and hop/transport anchors,
// and the gate hands back a far endpoint whose first delivered wave is a
// Pong carrying the Greet.
package gate

import (
	"context"
	"fmt"

	"github.com/luxfi/hyperlane/errs"
	"github.com/luxfi/hyperlane/hyperway"
	"github.com/luxfi/hyperlane/interchange"
	"github.com/luxfi/hyperlane/surface"
	"github.com/luxfi/hyperlane/wave"
	"github.com/luxfi/log"
)

// Knock is the admission request a peer opens with.
type Knock struct {
	Kind   string
	Remote *surface.Surface
	Auth   map[string]string
}

// Greet is the admission response: the peer's assigned Surface plus the
// hop and transport anchors it must address its traffic to.
type Greet struct {
	Surface   surface.Surface
	Agent     string
	Hop       surface.Surface
	Transport surface.Surface
}

// Authenticator resolves a Knock to a hyperway.Stub or fails with a
// statusError (400/401/403/503).
type Authenticator interface {
	Auth(ctx context.Context, k Knock) (hyperway.Stub, error)
}

// Greeter assigns a freshly admitted stub its Greet.
type Greeter interface {
	Greet(ctx context.Context, stub hyperway.Stub) (Greet, error)
}

// HyperGate admits peers into an interchange.
type HyperGate interface {
	Knock(ctx context.Context, k Knock) (*hyperway.Endpoint, error)
}

// statusError carries the HTTP-like code a failed knock maps to.
type statusError struct {
	status int
	err    error
}

func (e *statusError) Error() string { return fmt.Sprintf("gate: %d: %s", e.status, e.err) }
func (e *statusError) Unwrap() error { return e.err }

// AuthError builds an AuthFailure-kinded error carrying status, one of
// 400, 401, 403, 503.
func AuthError(status int, msg string) error {
	return errs.Wrap(errs.AuthFailure, &statusError{status: status, err: fmt.Errorf("%s", msg)})
}

// StatusOf extracts the status from a failed knock, defaulting to the
// errs taxonomy mapping when no explicit status was attached.
func StatusOf(err error) int {
	for e := err; e != nil; {
		if se, ok := e.(*statusError); ok {
			return se.status
		}
		u, ok := e.(interface{ Unwrap() error })
		if !ok {
			break
		}
		e = u.Unwrap()
	}
	return errs.Status(err)
}

// GreetPong builds the Pong that seeds a freshly mounted endpoint: status
// 200, method Greet, body the Greet itself, addressed to the peer's
// assigned Surface.
func GreetPong(g Greet) wave.Wave {
	return wave.Wave{
		ID:         wave.NewID(wave.PongVariant),
		Agent:      g.Agent,
		From:       g.Transport,
		Recipients: wave.SingleRecipient(g.Surface),
		Core:       wave.Core{Method: wave.MethodGreet, Body: g},
		Status:     200,
	}
}

// InterchangeGate creates a fresh Hyperway per knock, for anonymous or
// token-authenticated external peers.
type InterchangeGate struct {
	auth    Authenticator
	greeter Greeter
	ic      *interchange.Interchange
	log     log.Logger
}

// NewInterchangeGate wires an InterchangeGate over ic.
func NewInterchangeGate(auth Authenticator, greeter Greeter, ic *interchange.Interchange, logger log.Logger) *InterchangeGate {
	if logger == nil {
		logger = log.NewNoOpLogger()
	}
	return &InterchangeGate{auth: auth, greeter: greeter, ic: ic, log: logger}
}

// Knock runs the knock-and-greet sequence: auth, greet, mount, seed the
// Greet Pong, return the far endpoint. Dropping the endpoint removes the
// Hyperway via the interchange's drop watcher.
func (g *InterchangeGate) Knock(ctx context.Context, k Knock) (*hyperway.Endpoint, error) {
	stub, err := g.auth.Auth(ctx, k)
	if err != nil {
		g.log.Debug("gate: knock rejected", "status", StatusOf(err))
		return nil, err
	}
	greet, err := g.greeter.Greet(ctx, stub)
	if err != nil {
		return nil, err
	}
	pong := GreetPong(greet)
	ep := g.ic.Mount(stub, &pong)
	g.log.Debug("gate: admitted peer", "remote", stub.Remote.String(), "agent", stub.Agent)
	return ep, nil
}

// MountGate mounts an already-configured Hyperway by stub, for peers whose
// identity is known a priori (star-to-star).
type MountGate struct {
	auth    Authenticator
	greeter Greeter
	ic      *interchange.Interchange
	log     log.Logger
}

// NewMountGate wires a MountGate over ic.
func NewMountGate(auth Authenticator, greeter Greeter, ic *interchange.Interchange, logger log.Logger) *MountGate {
	if logger == nil {
		logger = log.NewNoOpLogger()
	}
	return &MountGate{auth: auth, greeter: greeter, ic: ic, log: logger}
}

// Knock admits only peers whose Hyperway is already mounted; an unknown
// stub is a 403.
func (g *MountGate) Knock(ctx context.Context, k Knock) (*hyperway.Endpoint, error) {
	stub, err := g.auth.Auth(ctx, k)
	if err != nil {
		return nil, err
	}
	if !g.ic.Mounted(stub.Remote) {
		return nil, AuthError(403, fmt.Sprintf("no mounted hyperway for %s", stub.Remote))
	}
	greet, err := g.greeter.Greet(ctx, stub)
	if err != nil {
		return nil, err
	}
	pong := GreetPong(greet)
	return g.ic.Mount(stub, &pong), nil
}

// VersionGate fronts a HyperGate with a version check: peers must Unlock
// with the matching version before receiving the gate handle.
type VersionGate struct {
	version string
	gate    HyperGate
}

// NewVersionGate builds a VersionGate requiring version.
func NewVersionGate(version string, gate HyperGate) *VersionGate {
	return &VersionGate{version: version, gate: gate}
}

// Unlock returns the HyperGate handle when version matches; mismatch
// returns a string error and no handle.
func (v *VersionGate) Unlock(version string) (HyperGate, error) {
	if version != v.version {
		return nil, fmt.Errorf("gate: version mismatch: gate speaks %s, peer speaks %s", v.version, version)
	}
	return v.gate, nil
}

// EndpointFactory is the abstract transport seam: a line
// protocol (TCP/QUIC/...) would implement it by dialing and knocking; the
// in-process form knocks a local gate directly.
type EndpointFactory interface {
	Create(ctx context.Context) (*hyperway.Endpoint, error)
}

// GateFactory is the in-process EndpointFactory: every Create knocks the
// wrapped gate with a fixed Knock.
type GateFactory struct {
	Gate  HyperGate
	Knock Knock
}

// Create knocks the gate.
func (f *GateFactory) Create(ctx context.Context) (*hyperway.Endpoint, error) {
	return f.Gate.Knock(ctx, f.Knock)
}
