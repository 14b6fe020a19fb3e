// Package errors provides code-carrying domain errors.
//
// Services translate infrastructure sentinels (pkg/platform/sentinel) into
// these errors so transport layers can map them to responses without
// inspecting store internals.
package errors

import (
	"errors"
	"fmt"
)

// Code classifies a domain error for transport mapping and caller branching.
type Code string

const (
	// CodeBadRequest marks malformed input at the transport boundary.
	CodeBadRequest Code = "bad_request"
	// CodeValidation marks input that parsed but violates domain rules.
	CodeValidation Code = "validation"
	// CodeInvalidInput marks programmer errors in the calling layer, e.g.
	// an unrecognized related-object kind passed to the audit recorder.
	// These signal bugs and are logged with full context before returning.
	CodeInvalidInput Code = "invalid_input"
	// CodeForbidden marks access denials: inactive registry, missing or
	// unaccepted invitation, ownership mismatch.
	CodeForbidden Code = "forbidden"
	// CodeUnauthorized marks missing or invalid actor credentials.
	CodeUnauthorized Code = "unauthorized"
	// CodeNotFound marks a missing entity.
	CodeNotFound Code = "not_found"
	// CodeConflict marks uniqueness violations (duplicate registry slug,
	// duplicate invitation) surfaced from concurrent creation.
	CodeConflict Code = "conflict"
	// CodeInvariantViolation marks an entity in a state that forbids the
	// requested transition.
	CodeInvariantViolation Code = "invariant_violation"
	// CodeInternal marks unexpected infrastructure failures.
	CodeInternal Code = "internal"
)

// Error is a domain error with a stable code and a human-readable message.
type Error struct {
	Code    Code
	Message string
	cause   error
}

func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error { return e.cause }

// New creates a domain error with the given code and message.
func New(code Code, message string) error {
	return &Error{Code: code, Message: message}
}

// Newf creates a domain error with a formatted message.
func Newf(code Code, format string, args ...any) error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// Wrap attaches a code and message to an underlying error, preserving the
// cause for errors.Is/As chains.
func Wrap(err error, code Code, message string) error {
	if err == nil {
		return nil
	}
	return &Error{Code: code, Message: message, cause: err}
}

// HasCode reports whether any error in the chain carries the given code.
func HasCode(err error, code Code) bool {
	var domainErr *Error
	if errors.As(err, &domainErr) {
		return domainErr.Code == code
	}
	return false
}

// Is is an alias for HasCode kept for call-site readability.
func Is(err error, code Code) bool {
	return HasCode(err, code)
}

// CodeOf returns the code of the outermost domain error in the chain, or
// CodeInternal when the error carries no code.
func CodeOf(err error) Code {
	var domainErr *Error
	if errors.As(err, &domainErr) {
		return domainErr.Code
	}
	return CodeInternal
}
