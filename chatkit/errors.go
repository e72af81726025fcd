package chatkit

import (
	"errors"
	"fmt"
)

// ErrorCode represents a categorized error type.
type ErrorCode int

const (
	ErrorUnknown ErrorCode = iota

	// ErrorConnectionFailed covers transport-level failures: dial errors,
	// dropped connections, failed writes. Bounded automatic retry applies.
	ErrorConnectionFailed

	// ErrorConnectionLost is surfaced when an operation requires a live
	// connection and there is none, and as the terminal state once the
	// reconnect budget is exhausted.
	ErrorConnectionLost

	// ErrorServer carries an error frame sent by the server.
	ErrorServer

	// ErrorSerialization covers malformed frames and encode failures.
	ErrorSerialization

	// ErrorInvalidConfig is returned for unusable configuration.
	ErrorInvalidConfig

	// ErrorRequestFailed wraps REST call failures, normalized through the
	// HTTP status message table.
	ErrorRequestFailed
)

// String returns the string representation of an ErrorCode.
func (e ErrorCode) String() string {
	switch e {
	case ErrorUnknown:
		return "unknown"
	case ErrorConnectionFailed:
		return "connection_failed"
	case ErrorConnectionLost:
		return "connection_lost"
	case ErrorServer:
		return "server_error"
	case ErrorSerialization:
		return "serialization_error"
	case ErrorInvalidConfig:
		return "invalid_config"
	case ErrorRequestFailed:
		return "request_failed"
	default:
		return fmt.Sprintf("unknown_code_%d", e)
	}
}

// ChatError is a structured error with code and context.
type ChatError struct {
	Code    ErrorCode
	Message string
	Wrapped error
}

// Error implements the error interface.
func (e *ChatError) Error() string {
	if e.Wrapped != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Wrapped)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the wrapped error for errors.Unwrap support.
func (e *ChatError) Unwrap() error {
	return e.Wrapped
}

// Is implements errors.Is comparison by code.
func (e *ChatError) Is(target error) bool {
	t, ok := target.(*ChatError)
	if !ok {
		return false
	}
	return e.Code == t.Code
}

// NewError creates a ChatError with the given code and message.
func NewError(code ErrorCode, message string) *ChatError {
	return &ChatError{Code: code, Message: message}
}

// WrapError wraps an existing error with a ChatError.
func WrapError(code ErrorCode, message string, err error) *ChatError {
	return &ChatError{Code: code, Message: message, Wrapped: err}
}

// IsConnectionError reports whether err is connection-related.
func IsConnectionError(err error) bool {
	if err == nil {
		return false
	}
	var ce *ChatError
	if !errors.As(err, &ce) {
		return false
	}
	return ce.Code == ErrorConnectionFailed || ce.Code == ErrorConnectionLost
}

// StatusError is implemented by REST errors that carry an HTTP status,
// so failures can be normalized without depending on the REST package.
type StatusError interface {
	error
	HTTPStatus() int
}

// httpStatusMessages is the fixed table mapping REST statuses to the
// message shown in the session error slot.
var httpStatusMessages = map[int]string{
	400: "invalid request",
	401: "session expired, please sign in again",
	403: "permission denied",
	404: "resource not found",
	408: "request timed out",
	409: "conflicting request",
	422: "invalid request data",
	429: "too many requests, slow down",
	500: "server error, try again later",
	502: "service temporarily unavailable",
	503: "service temporarily unavailable",
	504: "service temporarily unavailable",
}

// MessageForStatus returns the fixed human-readable message for an HTTP
// status code.
func MessageForStatus(status int) string {
	if msg, ok := httpStatusMessages[status]; ok {
		return msg
	}
	return "request failed"
}
