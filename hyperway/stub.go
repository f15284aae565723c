package hyperway

import "github.com/luxfi/hyperlane/surface"

// Stub is the minimal identity needed to construct a Hyperway: the
// negotiated agent string and the remote Surface, produced by
// gate.Authenticator.Auth and consumed by interchange.Mount.
type Stub struct {
	Agent  string
	Remote surface.Surface
}
