package wave

import (
	"fmt"

	"github.com/luxfi/hyperlane/surface"
)

// WrapTransport nests inner in a Signal whose body is the inner Wave and
// whose method is Sys::Transport; inner stays addressed to its final
// Particle Surface. from/to name the Signal's own envelope addressing
// (sender Star surface, destination Star surface at Core layer).
func WrapTransport(inner Wave, from, to surface.Surface) Wave {
	return NewSignal(from, to, Core{Method: MethodTransport, Body: inner})
}

// UnwrapTransport extracts the inner Wave from a Sys::Transport signal.
func UnwrapTransport(w Wave) (Wave, error) {
	if w.Core.Method != MethodTransport {
		return Wave{}, fmt.Errorf("wave: not a transport signal (method=%q)", w.Core.Method)
	}
	inner, ok := w.Core.Body.(Wave)
	if !ok {
		return Wave{}, fmt.Errorf("wave: transport body is not a Wave")
	}
	return inner, nil
}

// WrapHop nests a Transport signal in another Signal whose method is
// Sys::Hop, addressed to the next Star. The hop count is carried forward
// unchanged here; the receiving Star increments it on unwrap.
func WrapHop(transportSig Wave, from, nextStar surface.Surface) Wave {
	hop := NewSignal(from, nextStar, Core{Method: MethodHop, Body: transportSig})
	hop.History = transportSig.History
	hop.Hops = transportSig.Hops
	return hop
}

// UnwrapHop extracts the inner Transport signal from a Sys::Hop signal,
// carrying the outer Hops count forward for the receiving Star to
// increment.
func UnwrapHop(w Wave) (Wave, error) {
	if w.Core.Method != MethodHop {
		return Wave{}, fmt.Errorf("wave: not a hop signal (method=%q)", w.Core.Method)
	}
	inner, ok := w.Core.Body.(Wave)
	if !ok {
		return Wave{}, fmt.Errorf("wave: hop body is not a Wave")
	}
	inner.Hops = w.Hops
	inner.History = w.History
	return inner, nil
}

// IsHop reports whether w is a Sys::Hop signal.
func IsHop(w Wave) bool { return w.Variant() == SignalVariant && w.Core.Method == MethodHop }

// IsTransport reports whether w is a Sys::Transport signal.
func IsTransport(w Wave) bool { return w.Variant() == SignalVariant && w.Core.Method == MethodTransport }
