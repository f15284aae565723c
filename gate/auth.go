package gate

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/luxfi/hyperlane/hyperway"
	"github.com/luxfi/hyperlane/point"
	"github.com/luxfi/hyperlane/surface"
)

// AnonAuthenticator admits every knock, assigning a fresh anonymous remote
// Surface per connection unless the knock names one.
type AnonAuthenticator struct{}

// Auth assigns the knock a fresh REMOTE::endpoint:<uuid> identity.
func (AnonAuthenticator) Auth(_ context.Context, k Knock) (hyperway.Stub, error) {
	remote := surface.New(
		point.New(point.Remote,
			point.Segment{Kind: point.Base, Name: "endpoint"},
			point.Segment{Kind: point.Base, Name: uuid.NewString()},
		),
		surface.Core,
	)
	if k.Remote != nil {
		remote = *k.Remote
	}
	return hyperway.Stub{Agent: "anonymous", Remote: remote}, nil
}

// TokenAuthenticator admits knocks presenting a known token under the
// "token" auth key, mapping each token to an agent identity.
type TokenAuthenticator struct {
	// Tokens maps token value to agent name.
	Tokens map[string]string
}

// Auth resolves the knock's token to an agent, or fails 400 when no token
// was presented and 401 when the token is unknown.
func (a TokenAuthenticator) Auth(_ context.Context, k Knock) (hyperway.Stub, error) {
	token, ok := k.Auth["token"]
	if !ok || token == "" {
		return hyperway.Stub{}, AuthError(400, "knock carries no token")
	}
	agent, ok := a.Tokens[token]
	if !ok {
		return hyperway.Stub{}, AuthError(401, "unknown token")
	}
	remote := surface.New(
		point.New(point.Remote,
			point.Segment{Kind: point.Base, Name: "endpoint"},
			point.Segment{Kind: point.Base, Name: agent},
		),
		surface.Core,
	)
	if k.Remote != nil {
		remote = *k.Remote
	}
	return hyperway.Stub{Agent: agent, Remote: remote}, nil
}

// StubAuthenticator admits only pre-registered stubs, for the mount-gate
// path where peer identity is known a priori.
type StubAuthenticator struct {
	// Stubs maps the knock's expected Remote key to its stub.
	Stubs map[string]hyperway.Stub
}

// Auth requires the knock to name a Remote matching a registered stub.
func (a StubAuthenticator) Auth(_ context.Context, k Knock) (hyperway.Stub, error) {
	if k.Remote == nil {
		return hyperway.Stub{}, AuthError(400, "knock names no remote")
	}
	stub, ok := a.Stubs[k.Remote.Point.Key()]
	if !ok {
		return hyperway.Stub{}, AuthError(403, fmt.Sprintf("unknown remote %s", k.Remote))
	}
	return stub, nil
}

// FixedGreeter greets every stub with the same hop and transport anchors,
// assigning the stub's own Remote as its Surface.
type FixedGreeter struct {
	Hop       surface.Surface
	Transport surface.Surface
}

// Greet assigns the stub its Surface and the gate's anchors.
func (g FixedGreeter) Greet(_ context.Context, stub hyperway.Stub) (Greet, error) {
	return Greet{
		Surface:   stub.Remote,
		Agent:     stub.Agent,
		Hop:       g.Hop,
		Transport: g.Transport,
	}, nil
}
