// Package hosterr defines the canonical host-level error enumeration
// shared by the validator, marketplace, host, budget and security
// packages: a typed Kind plus an Unwrap chain so errors.Is/errors.As keep
// working across component boundaries.
package hosterr

import (
	"errors"
	"fmt"
	"strings"
)

// Kind tags the category of a host-level failure.
type Kind string

const (
	SchemaError       Kind = "SchemaError"
	ArityMismatch     Kind = "ArityMismatch"
	TypeMismatch      Kind = "TypeMismatch"
	SecurityViolation Kind = "SecurityViolation"
	MissingCapability Kind = "MissingCapability"
	TimeoutError      Kind = "TimeoutError"
	NetworkError      Kind = "NetworkError"
	ProviderError     Kind = "ProviderError"
	SandboxError      Kind = "SandboxError"
	BudgetExhausted   Kind = "BudgetExhausted"
	BudgetWarning     Kind = "BudgetWarning"
	Cancelled         Kind = "Cancelled"
	InternalError     Kind = "InternalError"
	Generic           Kind = "Generic"
)

// Error is the canonical host error type. Path and Provider are populated
// for SchemaError and ProviderError respectively; both are optional
// elsewhere.
type Error struct {
	Kind     Kind
	Message  string
	Path     string
	Provider string
	Cause    error
}

// New constructs an Error with no wrapped cause.
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Newf constructs an Error with a formatted message.
func Newf(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Wrap constructs an Error carrying an underlying cause, preserving the
// errors.Is/As chain through Unwrap.
func Wrap(kind Kind, message string, cause error) *Error {
	return &Error{Kind: kind, Message: message, Cause: cause}
}

// WithPath returns a copy of e with Path set, used for schema errors
// entering a capability so the error names the offending field.
func (e *Error) WithPath(path string) *Error {
	cp := *e
	cp.Path = path
	return &cp
}

// WithProvider returns a copy of e with Provider set, used for schema/
// provider errors leaving a capability ("provider-tagged").
func (e *Error) WithProvider(provider string) *Error {
	cp := *e
	cp.Provider = provider
	return &cp
}

func (e *Error) Error() string {
	msg := string(e.Kind) + ": " + e.Message
	if e.Path != "" {
		msg += " (path=" + e.Path + ")"
	}
	if e.Provider != "" {
		msg += " (provider=" + e.Provider + ")"
	}
	if e.Cause != nil {
		msg += ": " + e.Cause.Error()
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Cause }

// Is supports errors.Is(err, hosterr.New(kind, "")) style kind checks by
// comparing Kind when the target is also an *Error.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Kind == t.Kind
}

// KindOf extracts the Kind from err if it is (or wraps) a *Error; returns
// Generic otherwise.
func KindOf(err error) Kind {
	var he *Error
	if errors.As(err, &he) {
		return he.Kind
	}
	return Generic
}

// Classify maps free-form provider error text to a best-guess Kind. It is
// not authoritative, just a convenience over free-form provider errors for
// telemetry.
func Classify(msg string) Kind {
	lower := strings.ToLower(msg)
	switch {
	case strings.Contains(lower, "schema") || strings.Contains(lower, "validation"):
		return SchemaError
	case strings.Contains(lower, "not found") || strings.Contains(lower, "missing capability") || strings.Contains(lower, "no provider"):
		return MissingCapability
	case strings.Contains(lower, "timeout") || strings.Contains(lower, "deadline"):
		return TimeoutError
	case strings.Contains(lower, "network") || strings.Contains(lower, "connection") || strings.Contains(lower, "dial"):
		return NetworkError
	default:
		return ProviderError
	}
}
