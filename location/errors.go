package location

import (
	"errors"
	"fmt"
)

// ErrorCode classifies engine failures for callers.
type ErrorCode string

const (
	CodeInvalidInput       ErrorCode = "INVALID_INPUT"
	CodeNotFound           ErrorCode = "NOT_FOUND"
	CodeNetworkError       ErrorCode = "NETWORK_ERROR"
	CodeServiceUnavailable ErrorCode = "SERVICE_UNAVAILABLE"
	CodeResolutionFailed   ErrorCode = "RESOLUTION_FAILED"
	CodeRegistrationFailed ErrorCode = "REGISTRATION_FAILED"
	CodeCeilingExceeded    ErrorCode = "CEILING_EXCEEDED"
	CodeUnknown            ErrorCode = "UNKNOWN"
)

var (
	// ErrServiceUnavailable is returned by remote collaborators that are up
	// but refusing work (throttled, overloaded, maintenance).
	ErrServiceUnavailable = errors.New("service unavailable")
	// ErrInvalidQuery is returned by remote collaborators for malformed input.
	ErrInvalidQuery = errors.New("invalid query")
)

// Error is the typed error surfaced by the engine.
type Error struct {
	Code ErrorCode
	Op   string
	Err  error
}

// NewError wraps err with a code and the failing operation.
func NewError(code ErrorCode, op string, err error) *Error {
	return &Error{Code: code, Op: op, Err: err}
}

func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %s", e.Op, e.Code)
	}
	return fmt.Sprintf("%s: %s: %v", e.Op, e.Code, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// CodeOf extracts the outermost engine error code from err.
// Errors that carry no code map to UNKNOWN; nil maps to an empty code.
func CodeOf(err error) ErrorCode {
	if err == nil {
		return ""
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return CodeUnknown
}

// IsCode reports whether err carries code.
func IsCode(err error, code ErrorCode) bool {
	return CodeOf(err) == code
}
