// Package errs defines the error-kind taxonomy shared across the fabric.
//
// Every fallible operation in this module returns an error that can be
// inspected with KindOf(err). Components that can reflect a failure back to
// the wave's origin (see package wave) translate a Kind into an HTTP-like
// status code with Status(err).
package errs

import (
	"errors"
	"fmt"
)

// Kind classifies why an operation failed, independent of the Go type
// carrying the error.
type Kind uint8

const (
	// Internal marks an invariant violation; surfaced as a 500.
	Internal Kind = iota
	// Parse marks a malformed point/selector/kind/version string.
	Parse
	// NotFound marks a registry lookup miss.
	NotFound
	// Dupe marks a unique-constraint violation on register.
	Dupe
	// AuthFailure marks a rejected knock.
	AuthFailure
	// Forbidden marks an access evaluator denial.
	Forbidden
	// Transport marks a send failure, a gone peer, max-hops, or no forwarder.
	Transport
	// Provisioning marks a failed recursive provision.
	Provisioning
	// Timeout marks an expired exchange.
	Timeout
)

func (k Kind) String() string {
	switch k {
	case Parse:
		return "parse"
	case NotFound:
		return "not-found"
	case Dupe:
		return "dupe"
	case AuthFailure:
		return "auth-failure"
	case Forbidden:
		return "forbidden"
	case Transport:
		return "transport"
	case Provisioning:
		return "provisioning"
	case Timeout:
		return "timeout"
	default:
		return "internal"
	}
}

// taggedError wraps an underlying error with a Kind, preserving the
// original for errors.Is/As.
type taggedError struct {
	kind Kind
	err  error
}

func (e *taggedError) Error() string { return fmt.Sprintf("%s: %s", e.kind, e.err) }
func (e *taggedError) Unwrap() error { return e.err }

// New builds a Kind-tagged error from a message.
func New(kind Kind, msg string) error {
	return &taggedError{kind: kind, err: errors.New(msg)}
}

// Wrap tags an existing error with a Kind, preserving it for errors.Is/As.
func Wrap(kind Kind, err error) error {
	if err == nil {
		return nil
	}
	return &taggedError{kind: kind, err: err}
}

// Wrapf is Wrap with fmt.Errorf-style formatting of the wrapped message.
func Wrapf(kind Kind, format string, args ...any) error {
	return &taggedError{kind: kind, err: fmt.Errorf(format, args...)}
}

// KindOf extracts the Kind tagged onto err, defaulting to Internal.
func KindOf(err error) Kind {
	var te *taggedError
	if errors.As(err, &te) {
		return te.kind
	}
	return Internal
}

// Is reports whether err was tagged with kind.
func Is(err error, kind Kind) bool {
	return KindOf(err) == kind
}

// Status maps a Kind to the HTTP-like status code carried on reflected
// waves.
func Status(err error) int {
	if err == nil {
		return 200
	}
	switch KindOf(err) {
	case Parse:
		return 400
	case AuthFailure:
		return 401
	case Forbidden:
		return 403
	case NotFound:
		return 404
	case Timeout:
		return 408
	case Dupe, Transport, Provisioning:
		return 500
	default:
		return 500
	}
}

// Sentinel errors reused across packages.
var (
	// ErrNoForwarder is returned when a Star must hop but has no adjacent forwarder.
	ErrNoForwarder = errors.New("no adjacent forwarder available")
	// ErrMaxHops is returned when a Hop envelope exceeds the hop ceiling.
	ErrMaxHops = errors.New("hop count exceeded ceiling")
	// ErrUnprovisioned is returned when a record has no assigned Star.
	ErrUnprovisioned = errors.New("point is not provisioned")
	// ErrNoScorch is returned when scorch is attempted without the Scorch mode row.
	ErrNoScorch = errors.New("reset_mode is not Scorch; insert Scorch first")
	// ErrLocked is returned when a caller attempts to unset a locked property.
	ErrLocked = errors.New("property is locked")
	// ErrClosed is returned when an operation is attempted on a closed actor.
	ErrClosed = errors.New("actor is closed")
)
