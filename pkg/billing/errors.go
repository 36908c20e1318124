package billing

import (
	"errors"
	"fmt"
)

// ErrorKind classifies failures for callers
type ErrorKind string

const (
	KindInvalidInput         ErrorKind = "invalid_input"
	KindConflict             ErrorKind = "conflict"
	KindNoEligibleContracts  ErrorKind = "no_eligible_contracts"
	KindNotFound             ErrorKind = "not_found"
	KindInvalidConfiguration ErrorKind = "invalid_configuration"
	KindInternal             ErrorKind = "internal"
)

// Error is the error type returned by every billing and export operation
type Error struct {
	Kind    ErrorKind
	Message string
	Details map[string]string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil && e.Kind == KindInternal {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

// InvalidInput reports a user-correctable input problem
func InvalidInput(format string, args ...any) *Error {
	return &Error{Kind: KindInvalidInput, Message: fmt.Sprintf(format, args...)}
}

// Conflict reports that the requested resource already exists
func Conflict(format string, args ...any) *Error {
	return &Error{Kind: KindConflict, Message: fmt.Sprintf(format, args...)}
}

// NotFound reports a missing resource. It is also used for cross-organization access.
func NotFound(format string, args ...any) *Error {
	return &Error{Kind: KindNotFound, Message: fmt.Sprintf(format, args...)}
}

// InvalidConfiguration reports missing or invalid organization settings
func InvalidConfiguration(format string, args ...any) *Error {
	return &Error{Kind: KindInvalidConfiguration, Message: fmt.Sprintf(format, args...)}
}

// Internal wraps an unexpected infrastructure failure
func Internal(message string, err error) *Error {
	return &Error{Kind: KindInternal, Message: message, Err: err}
}

// ErrNoEligibleContracts is returned when no contract qualifies for the billing month
var ErrNoEligibleContracts = &Error{
	Kind:    KindNoEligibleContracts,
	Message: "no eligible contracts for this billing month",
}

// KindOf returns the kind of err, or KindInternal for foreign errors
func KindOf(err error) ErrorKind {
	var be *Error
	if errors.As(err, &be) {
		return be.Kind
	}
	return KindInternal
}

// IsKind reports whether err is a billing error of the given kind
func IsKind(err error, kind ErrorKind) bool {
	if err == nil {
		return false
	}
	return KindOf(err) == kind
}
