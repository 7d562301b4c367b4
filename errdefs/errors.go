// Package errdefs defines the error kinds shared by the micmon packages.
//
// Errors carry a Kind so callers can branch with errors.Is:
//
//	if errors.Is(err, errdefs.ErrResource) { ... }
package errdefs

import "errors"

// Kind classifies a failure.
type Kind string

const (
	// KindConfiguration covers invalid or missing caller-supplied settings.
	KindConfiguration Kind = "CONFIGURATION"
	// KindResource covers missing binaries, files and failed process launches.
	KindResource Kind = "RESOURCE"
	// KindDataIntegrity covers malformed archives and out-of-range labels.
	KindDataIntegrity Kind = "DATA_INTEGRITY"
)

// Sentinels matched by (*Error).Is.
var (
	ErrConfiguration = &Error{Kind: KindConfiguration, Message: "configuration error"}
	ErrResource      = &Error{Kind: KindResource, Message: "resource error"}
	ErrDataIntegrity = &Error{Kind: KindDataIntegrity, Message: "data integrity error"}
)

// Error is a classified failure.
type Error struct {
	Kind    Kind   `json:"kind"`
	Op      string `json:"op,omitempty"`
	Message string `json:"message"`
	Cause   error  `json:"-"`
}

func (e *Error) Error() string {
	msg := e.Message
	if e.Op != "" {
		msg = e.Op + ": " + msg
	}
	if e.Cause != nil {
		return msg + ": " + e.Cause.Error()
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// Is reports whether target is an *Error of the same kind. A target with an
// empty message matches on kind alone, as the sentinels do.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	if t == ErrConfiguration || t == ErrResource || t == ErrDataIntegrity {
		return e.Kind == t.Kind
	}
	return e == t
}

// New creates a classified error.
func New(kind Kind, op, message string, cause error) *Error {
	return &Error{Kind: kind, Op: op, Message: message, Cause: cause}
}

// Configuration is shorthand for New(KindConfiguration, ...).
func Configuration(op, message string, cause error) *Error {
	return New(KindConfiguration, op, message, cause)
}

// Resource is shorthand for New(KindResource, ...).
func Resource(op, message string, cause error) *Error {
	return New(KindResource, op, message, cause)
}

// DataIntegrity is shorthand for New(KindDataIntegrity, ...).
func DataIntegrity(op, message string, cause error) *Error {
	return New(KindDataIntegrity, op, message, cause)
}

// KindOf returns the kind of the first *Error in err's chain, or "".
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}
