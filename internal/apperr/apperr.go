// Package apperr defines the closed set of failure kinds surfaced by the
// patient store and the platform capabilities.
//
// Callers inside the process branch on Kind; transports flatten an error to
// its message text only at the boundary.
package apperr

import (
	"errors"
	"fmt"
)

// Kind classifies a failure.
type Kind int

const (
	// KindIO covers store and query failures that are not otherwise classified.
	KindIO Kind = iota
	KindNotFound
	KindConstraint
	KindUnsupported
	KindInvalidArgument
)

func (k Kind) String() string {
	switch k {
	case KindNotFound:
		return "not-found"
	case KindConstraint:
		return "constraint-violation"
	case KindUnsupported:
		return "unsupported"
	case KindInvalidArgument:
		return "invalid-argument"
	default:
		return "io-failure"
	}
}

// ParseKind is the inverse of Kind.String. Unknown names map to KindIO.
func ParseKind(s string) Kind {
	for _, k := range []Kind{KindNotFound, KindConstraint, KindUnsupported, KindInvalidArgument} {
		if k.String() == s {
			return k
		}
	}
	return KindIO
}

// Error carries a Kind alongside a human-readable message and an optional cause.
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	if e.Err == nil {
		return e.Message
	}
	if e.Message == "" {
		return e.Err.Error()
	}
	return fmt.Sprintf("%s: %v", e.Message, e.Err)
}

func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// New returns an error of the given kind with no underlying cause.
func New(kind Kind, format string, args ...interface{}) error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Wrap attaches a kind and message to err. It returns nil if err is nil.
func Wrap(kind Kind, err error, message string) error {
	if err == nil {
		return nil
	}
	return &Error{Kind: kind, Message: message, Err: err}
}

// KindOf reports the kind of the first *Error in err's chain.
// Errors that carry no kind are treated as KindIO.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindIO
}

// Is reports whether err carries the given kind.
func Is(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}

// Message flattens err to the opaque text shown to the frontend.
func Message(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
