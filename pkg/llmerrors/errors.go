// Package llmerrors provides structured error classification for backend and
// infrastructure failures in the agent execution path.
package llmerrors

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

// ErrorType categorizes a failure for retry and surfacing decisions.
type ErrorType int8

const (
	// ErrorTypeUnknown is the default for unclassified errors.
	ErrorTypeUnknown ErrorType = iota

	// Retryable error types.

	// ErrorTypeBackendUnavailable represents transient backend failures
	// (5xx, EOF, connection reset).
	ErrorTypeBackendUnavailable
	// ErrorTypeRateLimited represents rate limiting (429, quota exceeded);
	// may carry a retry-after hint.
	ErrorTypeRateLimited
	// ErrorTypeTimeout represents a request that exceeded its deadline.
	ErrorTypeTimeout
	// ErrorTypeCircuitOpen represents a fast-fail rejection by an open
	// circuit breaker. Retryable later, never retried inline.
	ErrorTypeCircuitOpen
	// ErrorTypeBulkheadRejected represents a fast-fail rejection by a full
	// bulkhead (no concurrency slot, queue full, or queue-wait timeout).
	ErrorTypeBulkheadRejected

	// Non-retryable error types.

	// ErrorTypeAuth represents authentication or authorization failures.
	ErrorTypeAuth
	// ErrorTypeToolNotFound represents a tool call naming an unregistered
	// tool. Absorbed into a tool-result message; the run continues.
	ErrorTypeToolNotFound
	// ErrorTypeToolExecution represents a tool that ran and failed.
	// Absorbed into a tool-result message; the run continues.
	ErrorTypeToolExecution
	// ErrorTypeMaxIterations represents a run that breached its iteration cap.
	ErrorTypeMaxIterations
	// ErrorTypeCancelled represents caller cancellation. Terminal.
	ErrorTypeCancelled
)

// String returns the label used in logs and metrics.
func (et ErrorType) String() string {
	switch et {
	case ErrorTypeBackendUnavailable:
		return "backend_unavailable"
	case ErrorTypeRateLimited:
		return "rate_limited"
	case ErrorTypeTimeout:
		return "timeout"
	case ErrorTypeCircuitOpen:
		return "circuit_open"
	case ErrorTypeBulkheadRejected:
		return "bulkhead_rejected"
	case ErrorTypeAuth:
		return "auth_failed"
	case ErrorTypeToolNotFound:
		return "tool_not_found"
	case ErrorTypeToolExecution:
		return "tool_execution_failed"
	case ErrorTypeMaxIterations:
		return "max_iterations_exceeded"
	case ErrorTypeCancelled:
		return "cancelled"
	case ErrorTypeUnknown:
		return "unknown"
	default:
		return "invalid"
	}
}

// Error is a classified failure with retry metadata.
type Error struct {
	Err        error         // Wrapped underlying error
	Message    string        // Human-readable message
	Type       ErrorType     // Classified error type
	StatusCode int           // HTTP status code when applicable
	RetryAfter time.Duration // Server-provided backoff hint, zero when absent
}

// Error implements the error interface.
func (e *Error) Error() string {
	switch {
	case e.Message != "":
		return fmt.Sprintf("llm error (%s): %s", e.Type, e.Message)
	case e.Err != nil:
		return fmt.Sprintf("llm error (%s): %v", e.Type, e.Err)
	default:
		return fmt.Sprintf("llm error (%s): status %d", e.Type, e.StatusCode)
	}
}

// Unwrap returns the underlying error for errors.Is/As chains.
func (e *Error) Unwrap() error {
	return e.Err
}

// IsRetryable reports whether a retry executor may re-attempt this error.
// Circuit-open and bulkhead rejections are "retryable later": the caller may
// try again, but inline retry loops must not hammer them.
func (e *Error) IsRetryable() bool {
	switch e.Type {
	case ErrorTypeBackendUnavailable, ErrorTypeRateLimited, ErrorTypeTimeout:
		return true
	default:
		return false
	}
}

// New creates a classified error with a message.
func New(errorType ErrorType, message string) *Error {
	return &Error{Type: errorType, Message: message}
}

// Newf creates a classified error with a formatted message.
func Newf(errorType ErrorType, format string, args ...any) *Error {
	return &Error{Type: errorType, Message: fmt.Sprintf(format, args...)}
}

// Wrap creates a classified error wrapping a cause.
func Wrap(errorType ErrorType, cause error, message string) *Error {
	return &Error{Type: errorType, Err: cause, Message: message}
}

// Wrapf creates a classified error wrapping a cause with a formatted message.
func Wrapf(errorType ErrorType, cause error, format string, args ...any) *Error {
	return &Error{Type: errorType, Err: cause, Message: fmt.Sprintf(format, args...)}
}

// WithStatus creates a classified error carrying an HTTP status code.
func WithStatus(errorType ErrorType, statusCode int, message string) *Error {
	return &Error{Type: errorType, StatusCode: statusCode, Message: message}
}

// RateLimited creates a rate-limit error carrying a retry-after hint.
func RateLimited(retryAfter time.Duration, message string) *Error {
	return &Error{Type: ErrorTypeRateLimited, RetryAfter: retryAfter, Message: message}
}

// Is reports whether err is a classified error of the given type.
func Is(err error, errorType ErrorType) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Type == errorType
	}
	return false
}

// TypeOf returns the classified type of err, or ErrorTypeUnknown.
// Context cancellation and deadline errors classify without wrapping.
func TypeOf(err error) ErrorType {
	var e *Error
	if errors.As(err, &e) {
		return e.Type
	}
	if errors.Is(err, context.Canceled) {
		return ErrorTypeCancelled
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return ErrorTypeTimeout
	}
	return ErrorTypeUnknown
}

// IsRetryable reports whether err may be re-attempted by a retry executor.
// Unclassified errors fall back to string matching on common transport
// failure patterns, mirroring what backend adapters tend to surface.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}

	var e *Error
	if errors.As(err, &e) {
		return e.IsRetryable()
	}

	errStr := err.Error()
	if strings.Contains(errStr, "timeout") ||
		strings.Contains(errStr, "connection") ||
		strings.Contains(errStr, "temporary") {
		return true
	}
	if strings.Contains(errStr, "rate") || strings.Contains(errStr, "429") {
		return true
	}
	if strings.Contains(errStr, "500") ||
		strings.Contains(errStr, "502") ||
		strings.Contains(errStr, "503") ||
		strings.Contains(errStr, "504") {
		return true
	}
	return false
}
