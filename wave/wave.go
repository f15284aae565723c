package wave

import (
	"time"

	"github.com/luxfi/hyperlane/point"
	"github.com/luxfi/hyperlane/surface"
)

// WaitClass selects a timeout bucket from a Surface's timeout table.
type WaitClass uint8

const (
	WaitHigh WaitClass = iota
	WaitMed
	WaitLow
)

// Handling carries a wave's scheduling hints.
type Handling struct {
	Priority int
	Retries  int
	Wait     WaitClass
}

// Scope narrows where a wave's effects are permitted to reach; left as an
// opaque string tag (e.g. "local", "global").
type Scope string

// RecipientsKind tags the shape of a wave's destination set.
type RecipientsKind uint8

const (
	Single RecipientsKind = iota
	Multi
	Stars
)

// Recipients is the destination set: Single | Multi | Stars.
type Recipients struct {
	Kind    RecipientsKind
	Surface surface.Surface   // valid when Kind == Single
	Multi_  []surface.Surface // valid when Kind == Multi
	StarSet []point.Point     // valid when Kind == Stars
}

// SingleRecipient builds a Recipients naming exactly one Surface.
func SingleRecipient(s surface.Surface) Recipients { return Recipients{Kind: Single, Surface: s} }

// MultiRecipients builds a Recipients naming an explicit Surface set.
func MultiRecipients(ss []surface.Surface) Recipients { return Recipients{Kind: Multi, Multi_: ss} }

// StarRecipients builds a Recipients naming a set of Stars directly.
func StarRecipients(stars []point.Point) Recipients { return Recipients{Kind: Stars, StarSet: stars} }

// BounceBackKind tags a Ripple's expected reflection policy.
type BounceBackKind uint8

const (
	BounceNone BounceBackKind = iota
	BounceSingle
	BounceCount
	BounceTimer
)

// BounceBacks is the Ripple reflection-policy union.
type BounceBacks struct {
	Kind  BounceBackKind
	Count int
	Timer time.Duration
}

// Core is the method+body pair carried by directed waves and by the
// Transport/Hop signal bodies.
type Core struct {
	Method string
	Body   any
}

// Well-known hyper-methods.
const (
	MethodProvision = "Provision"
	MethodAssign    = "Assign"
	MethodTransport = "Sys::Transport"
	MethodHop       = "Sys::Hop"
	MethodSearch    = "Search"
	MethodKnock     = "Knock"
	MethodGreet     = "Greet"
	MethodBounce    = "Cmd::Bounce"
	MethodReset     = "Reset"
	MethodClose     = "Close"
)

// Wave is the envelope moved through the fabric. It is never aliased after
// creation: every component that forwards a Wave does so by value or by
// producing a new Wave; no aliased mutation.
type Wave struct {
	ID       ID
	Agent    string
	Handling Handling
	Scope    Scope
	From     surface.Surface

	Recipients Recipients // destination; a Pong/Echo is addressed to its origin's From
	Core       Core

	Session *string
	Hops    int
	History []point.Point

	// ReflectionOf is set for Pong/Echo.
	ReflectionOf ID
	// Status carries the HTTP-like status code of a reflected wave.
	Status int

	BounceBacks BounceBacks // meaningful only for Ripple
}

// Variant reports the shape of this wave from its ID.
func (w Wave) Variant() Variant { return w.ID.Variant }

// To resolves the single-recipient Surface a directed Ping/Signal targets,
// or the zero Surface and false if this wave has Multi/Stars recipients.
func (w Wave) To() (surface.Surface, bool) {
	if w.Recipients.Kind != Single {
		return surface.Surface{}, false
	}
	return w.Recipients.Surface, true
}

// AppendHistory returns a copy of w with star appended to History.
func (w Wave) AppendHistory(star point.Point) Wave {
	next := make([]point.Point, len(w.History)+1)
	copy(next, w.History)
	next[len(w.History)] = star
	w.History = next
	return w
}

// Visited reports whether star already appears in History, used to keep
// mesh forwarding loop-free.
func (w Wave) Visited(star point.Point) bool {
	for _, s := range w.History {
		if s.Equal(star) {
			return true
		}
	}
	return false
}

// IncrementHops returns a copy of w with Hops incremented by one.
func (w Wave) IncrementHops() Wave {
	w.Hops++
	return w
}

// MaxHops is the forwarding ceiling; a wave incremented past it is dropped.
const MaxHops = 255

// ExceedsMaxHops reports whether w has been forwarded past the ceiling.
func (w Wave) ExceedsMaxHops() bool { return w.Hops > MaxHops }

// NewPing builds a directed, single-recipient Ping wave.
func NewPing(from surface.Surface, to surface.Surface, core Core) Wave {
	return Wave{
		ID:         NewID(PingVariant),
		From:       from,
		Recipients: SingleRecipient(to),
		Core:       core,
	}
}

// NewSignal builds a fire-and-forget Signal wave.
func NewSignal(from surface.Surface, to surface.Surface, core Core) Wave {
	return Wave{
		ID:         NewID(SignalVariant),
		From:       from,
		Recipients: SingleRecipient(to),
		Core:       core,
	}
}

// NewRipple builds a directed, multi-recipient Ripple wave.
func NewRipple(from surface.Surface, to []surface.Surface, core Core, bb BounceBacks) Wave {
	return Wave{
		ID:          NewID(RippleVariant),
		From:        from,
		Recipients:  MultiRecipients(to),
		Core:        core,
		BounceBacks: bb,
	}
}

// Reflect builds the Pong (for a Ping/Signal-origin) or Echo (for a
// Ripple-origin) reply to directed, at the given status, carrying body.
func (w Wave) Reflect(from surface.Surface, status int, body any) Wave {
	v := PongVariant
	if w.Variant() == RippleVariant {
		v = EchoVariant
	}
	return Wave{
		ID:           NewID(v),
		From:         from,
		Recipients:   SingleRecipient(w.From),
		Core:         Core{Method: w.Core.Method, Body: body},
		Status:       status,
		ReflectionOf: w.ID,
		Session:      w.Session,
		History:      w.History,
	}
}

// Timeout builds the synthetic 408 reflection for an exchange that never
// receives a reply.
func Timeout(w Wave, from surface.Surface) Wave {
	return w.Reflect(from, 408, nil)
}
