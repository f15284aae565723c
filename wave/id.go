// Package wave implements the typed message envelope of the fabric:
// Ping/Pong/Ripple/Echo/Signal waves, their Transport/Hop nesting, and
// reflection bookkeeping.
package wave

import (
	"fmt"

	"github.com/google/uuid"
)

// Variant tags which of the five wave shapes an envelope carries.
type Variant uint8

const (
	PingVariant Variant = iota
	PongVariant
	RippleVariant
	EchoVariant
	SignalVariant
)

func (v Variant) String() string {
	switch v {
	case PingVariant:
		return "Ping"
	case PongVariant:
		return "Pong"
	case RippleVariant:
		return "Ripple"
	case EchoVariant:
		return "Echo"
	case SignalVariant:
		return "Signal"
	default:
		return "Unknown"
	}
}

// Directed reports whether this variant originates a request
// (Ping/Ripple/Signal).
func (v Variant) Directed() bool {
	return v == PingVariant || v == RippleVariant || v == SignalVariant
}

// Reflects reports whether this variant is a reply (Pong/Echo).
func (v Variant) Reflects() bool {
	return v == PongVariant || v == EchoVariant
}

// ID is a kind-tagged UUID identifying a wave.
type ID struct {
	Variant Variant
	UUID    uuid.UUID
}

// NewID mints a fresh ID for the given variant.
func NewID(v Variant) ID { return ID{Variant: v, UUID: uuid.New()} }

func (id ID) String() string { return fmt.Sprintf("%s-%s", id.Variant, id.UUID) }

// IsZero reports whether id was never assigned.
func (id ID) IsZero() bool { return id.UUID == uuid.Nil }
