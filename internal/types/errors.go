package types

import (
	"errors"
	"fmt"
)

// ErrorCode represents a namespaced error code for Warp framework errors.
type ErrorCode string

// Configuration error codes
const (
	CONFIG_LOAD_FAILED       ErrorCode = "CONFIG_LOAD_FAILED"
	CONFIG_PARSE_FAILED      ErrorCode = "CONFIG_PARSE_FAILED"
	CONFIG_VALIDATION_FAILED ErrorCode = "CONFIG_VALIDATION_FAILED"
	CONFIG_NOT_FOUND         ErrorCode = "CONFIG_NOT_FOUND"
)

// Store backend error codes
const (
	BACKEND_OPEN_FAILED  ErrorCode = "BACKEND_OPEN_FAILED"
	BACKEND_PROBE_FAILED ErrorCode = "BACKEND_PROBE_FAILED"
)

// Cache error codes
const (
	CACHE_UNAVAILABLE   ErrorCode = "CACHE_UNAVAILABLE"
	CACHE_ENCODE_FAILED ErrorCode = "CACHE_ENCODE_FAILED"
)

// WarpError represents a structured error with error code, message, and optional cause.
// It supports error wrapping and retryability hints for error handling logic.
type WarpError struct {
	Code      ErrorCode
	Message   string
	Retryable bool
	Cause     error
}

// Error implements the error interface, returning a formatted error message.
// Format: "[CODE] message" or "[CODE] message: cause" if cause exists.
func (e *WarpError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause error for error unwrapping chains.
// This enables using errors.Is() and errors.As() with wrapped errors.
func (e *WarpError) Unwrap() error {
	return e.Cause
}

// Is checks if the target error matches this error by error code.
// Returns true if target is a WarpError with the same Code.
func (e *WarpError) Is(target error) bool {
	var warpErr *WarpError
	if errors.As(target, &warpErr) {
		return e.Code == warpErr.Code
	}
	return false
}

// NewError creates a new non-retryable WarpError with the given code and message.
func NewError(code ErrorCode, message string) *WarpError {
	return &WarpError{
		Code:      code,
		Message:   message,
		Retryable: false,
		Cause:     nil,
	}
}

// NewRetryableError creates a new retryable WarpError with the given code and message.
// Use this for transient errors that may succeed on retry (e.g., network timeouts).
func NewRetryableError(code ErrorCode, message string) *WarpError {
	return &WarpError{
		Code:      code,
		Message:   message,
		Retryable: true,
		Cause:     nil,
	}
}

// WrapError creates a new non-retryable WarpError that wraps an existing error.
// The wrapped error is accessible via Unwrap() for error chain inspection.
func WrapError(code ErrorCode, message string, cause error) *WarpError {
	return &WarpError{
		Code:      code,
		Message:   message,
		Retryable: false,
		Cause:     cause,
	}
}
