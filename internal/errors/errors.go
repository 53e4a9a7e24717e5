// Package errors defines the coded error taxonomy shared by all services.
// Every error that can surface to a caller carries a stable machine-readable
// code plus a human-readable message; unexpected errors degrade to
// CodeInternal without leaking internals.
package errors

import (
	stderrors "errors"
	"fmt"
	"net/http"
)

// Stable error codes
const (
	CodeNotFound         = "not_found"
	CodeAlreadyExists    = "already_exists"
	CodeNoPermission     = "no_permission"
	CodeInvalidArguments = "invalid_arguments"
	CodeInvalidCursor    = "invalid_cursor"
	CodeNotSupported     = "not_supported"
	CodeClockRegression  = "clock_regression"
	CodeLockTimeout      = "lock_acquisition_timeout"
	CodePublishFailure   = "publish_failure"
	CodeInternal         = "internal_error"
)

// Error is a coded service error
type Error struct {
	Code    string                 `json:"code"`
	Message string                 `json:"message"`
	Details map[string]interface{} `json:"details,omitempty"`
	cause   error
}

func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error {
	return e.cause
}

// WithDetail attaches a detail entry and returns the error for chaining
func (e *Error) WithDetail(key string, value interface{}) *Error {
	if e.Details == nil {
		e.Details = make(map[string]interface{})
	}
	e.Details[key] = value
	return e
}

// New creates a coded error
func New(code, message string) *Error {
	return &Error{Code: code, Message: message}
}

// Wrap creates a coded error wrapping a cause
func Wrap(code, message string, cause error) *Error {
	return &Error{Code: code, Message: message, cause: cause}
}

// NotFound reports an absent entity
func NotFound(format string, args ...interface{}) *Error {
	return New(CodeNotFound, fmt.Sprintf(format, args...))
}

// AlreadyExists reports a duplicate create
func AlreadyExists(format string, args ...interface{}) *Error {
	return New(CodeAlreadyExists, fmt.Sprintf(format, args...))
}

// NoPermission reports an actor mismatch on a mutation
func NoPermission(format string, args ...interface{}) *Error {
	return New(CodeNoPermission, fmt.Sprintf(format, args...))
}

// InvalidArguments reports malformed input
func InvalidArguments(format string, args ...interface{}) *Error {
	return New(CodeInvalidArguments, fmt.Sprintf(format, args...))
}

// InvalidCursor reports an unparsable or inconsistent pagination cursor
func InvalidCursor(format string, args ...interface{}) *Error {
	return New(CodeInvalidCursor, fmt.Sprintf(format, args...))
}

// NotSupported reports an unhandled sort/direction combination
func NotSupported(format string, args ...interface{}) *Error {
	return New(CodeNotSupported, fmt.Sprintf(format, args...))
}

// ClockRegression reports the system clock moving backward during id
// generation. Fatal for the generating node; never retried.
func ClockRegression(current, last int64) *Error {
	return New(CodeClockRegression,
		fmt.Sprintf("invalid system clock, current: %d last: %d", current, last))
}

// LockTimeout reports a distributed lock that could not be acquired within
// its bounded wait. Retryable by the caller.
func LockTimeout(lockKey string) *Error {
	return New(CodeLockTimeout, fmt.Sprintf("failed to acquire lock %q within wait timeout", lockKey))
}

// PublishFailure reports a bus publication failure that was recorded in the
// event history rather than silently dropped.
func PublishFailure(topic string, cause error) *Error {
	return Wrap(CodePublishFailure, fmt.Sprintf("failed to publish to topic %q", topic), cause)
}

// Internal reports an unexpected error without leaking internals
func Internal(cause error) *Error {
	return Wrap(CodeInternal, "internal error", cause)
}

// CodeOf extracts the stable code from err, or CodeInternal for uncoded errors
func CodeOf(err error) string {
	var coded *Error
	if stderrors.As(err, &coded) {
		return coded.Code
	}
	return CodeInternal
}

// HasCode reports whether err carries the given code
func HasCode(err error, code string) bool {
	return err != nil && CodeOf(err) == code
}

// IsNotFound reports whether err carries CodeNotFound
func IsNotFound(err error) bool {
	return HasCode(err, CodeNotFound)
}

// IsAlreadyExists reports whether err carries CodeAlreadyExists
func IsAlreadyExists(err error) bool {
	return HasCode(err, CodeAlreadyExists)
}

// IsInvalidCursor reports whether err carries CodeInvalidCursor
func IsInvalidCursor(err error) bool {
	return HasCode(err, CodeInvalidCursor)
}

// IsLockTimeout reports whether err carries CodeLockTimeout
func IsLockTimeout(err error) bool {
	return HasCode(err, CodeLockTimeout)
}

// HTTPStatus maps a stable code to its HTTP status
func HTTPStatus(code string) int {
	switch code {
	case CodeInvalidArguments, CodeInvalidCursor:
		return http.StatusBadRequest
	case CodeNoPermission:
		return http.StatusForbidden
	case CodeNotFound:
		return http.StatusNotFound
	case CodeAlreadyExists, CodeLockTimeout:
		return http.StatusConflict
	case CodeNotSupported:
		return http.StatusNotImplemented
	default:
		return http.StatusInternalServerError
	}
}
