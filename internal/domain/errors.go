package domain

import (
	"errors"
	"fmt"
)

// ErrorCode identifies a failure class of the directory.
type ErrorCode string

const (
	CodeValidation        ErrorCode = "validation_error"
	CodeDuplicateAgent    ErrorCode = "duplicate_agent"
	CodeUnknownAgent      ErrorCode = "unknown_agent"
	CodeUnknownSession    ErrorCode = "unknown_session"
	CodeInactiveAgent     ErrorCode = "inactive_agent"
	CodeNoCapableTarget   ErrorCode = "no_capable_target"
	CodeInvalidTransition ErrorCode = "invalid_state_transition"
	CodeStaleState        ErrorCode = "stale_state"
	CodeConflict          ErrorCode = "conflict"
	CodeInvalidSignature  ErrorCode = "invalid_signature"
	CodeTokenExpired      ErrorCode = "token_expired"
	CodeInternal          ErrorCode = "internal_error"
)

// Error is a classified failure. Two Errors match under errors.Is when their
// codes are equal, so callers compare against the sentinels below.
type Error struct {
	Code    ErrorCode
	Message string
	Field   string
	cause   error
}

func (e *Error) Error() string {
	if e.Message == "" {
		return string(e.Code)
	}
	if e.Field != "" {
		return fmt.Sprintf("%s: %s: %s", e.Code, e.Field, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Is matches any *Error with the same code.
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return t.Code == e.Code
}

func (e *Error) Unwrap() error { return e.cause }

// Retryable reports whether re-reading and retrying can succeed.
func (e *Error) Retryable() bool {
	return e.Code == CodeStaleState
}

var (
	ErrValidation        = &Error{Code: CodeValidation}
	ErrDuplicateAgent    = &Error{Code: CodeDuplicateAgent}
	ErrUnknownAgent      = &Error{Code: CodeUnknownAgent}
	ErrUnknownSession    = &Error{Code: CodeUnknownSession}
	ErrInactiveAgent     = &Error{Code: CodeInactiveAgent}
	ErrNoCapableTarget   = &Error{Code: CodeNoCapableTarget}
	ErrInvalidTransition = &Error{Code: CodeInvalidTransition}
	ErrStaleState        = &Error{Code: CodeStaleState}
	ErrConflict          = &Error{Code: CodeConflict}
	ErrInvalidSignature  = &Error{Code: CodeInvalidSignature}
	ErrTokenExpired      = &Error{Code: CodeTokenExpired}
	ErrInternal          = &Error{Code: CodeInternal}
)

// NewError builds a classified error with a formatted message.
func NewError(code ErrorCode, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// FieldError builds a validation error pinned to a request field.
func FieldError(field, format string, args ...any) *Error {
	return &Error{Code: CodeValidation, Field: field, Message: fmt.Sprintf(format, args...)}
}

// Internal wraps an infrastructure failure. The cause stays reachable via
// errors.Unwrap but is not part of the message.
func Internal(msg string, cause error) *Error {
	return &Error{Code: CodeInternal, Message: msg, cause: cause}
}

// CodeOf returns the code of err, or CodeInternal for unclassified errors.
func CodeOf(err error) ErrorCode {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return CodeInternal
}

// AsError returns err as *Error, classifying unknown errors as internal.
func AsError(err error) *Error {
	var e *Error
	if errors.As(err, &e) {
		return e
	}
	return Internal("internal error", err)
}
