// Package domainerrors defines the coded error type returned across service
// boundaries. Stores return sentinel errors (see pkg/platform/sentinel); services
// translate them into a *Error carrying one of the Codes below so transports can
// map failures without string matching.
package domainerrors

import (
	"errors"
	"fmt"
)

// Code classifies a domain failure.
type Code string

const (
	CodeNotFound               Code = "not_found"
	CodeInvalidStateTransition Code = "invalid_state_transition"
	CodeConcurrencyConflict    Code = "concurrency_conflict"
	CodeValidation             Code = "validation_error"
	CodeConflict               Code = "conflict"
	CodePublishFailure         Code = "publish_failure"
	CodeLockUnavailable        Code = "lock_unavailable"
	CodeTimeout                Code = "timeout"
	CodeInternal               Code = "internal"
)

// Error is a domain error with a stable code and a caller-facing reason.
type Error struct {
	Code    Code
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// New creates a coded error without a cause.
func New(code Code, message string) error {
	return &Error{Code: code, Message: message}
}

// Newf is New with formatting.
func Newf(code Code, format string, args ...any) error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// Wrap attaches a code and message to an underlying error.
func Wrap(err error, code Code, message string) error {
	if err == nil {
		return nil
	}
	return &Error{Code: code, Message: message, Err: err}
}

// HasCode reports whether any *Error in err's chain carries code.
func HasCode(err error, code Code) bool {
	for err != nil {
		var de *Error
		if !errors.As(err, &de) {
			return false
		}
		if de.Code == code {
			return true
		}
		err = de.Err
	}
	return false
}

// Is is an alias for HasCode kept for call sites that read better with it.
func Is(err error, code Code) bool {
	return HasCode(err, code)
}

// CodeOf returns the outermost code in err's chain, or CodeInternal.
func CodeOf(err error) Code {
	var de *Error
	if errors.As(err, &de) {
		return de.Code
	}
	return CodeInternal
}

// Reason returns the caller-facing message of the outermost *Error, or a
// generic message for uncoded errors so internals are not leaked.
func Reason(err error) string {
	var de *Error
	if errors.As(err, &de) {
		return de.Message
	}
	return "internal error"
}
