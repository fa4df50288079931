package ckg

import (
	"errors"
	"fmt"
	"strings"

	"github.com/juanbermudez/warp-agent-system-sub000/internal/types"
)

// CKGErrorCode represents specific error codes for knowledge graph operations.
type CKGErrorCode string

// Knowledge graph error codes
const (
	ErrCodeValidationFailed    CKGErrorCode = "VALIDATION_FAILED"
	ErrCodeQueryFailed         CKGErrorCode = "QUERY_FAILED"
	ErrCodeNodeNotFound        CKGErrorCode = "NODE_NOT_FOUND"
	ErrCodeRelationshipFailed  CKGErrorCode = "RELATIONSHIP_FAILED"
	ErrCodeBackendUnavailable  CKGErrorCode = "BACKEND_UNAVAILABLE"
	ErrCodeCycleDetected       CKGErrorCode = "CYCLE_DETECTED"
	ErrCodeSerializationFailed CKGErrorCode = "SERIALIZATION_FAILED"
	ErrCodeWriteFailed         CKGErrorCode = "WRITE_FAILED"
	ErrCodeInvalidConfig       CKGErrorCode = "INVALID_CONFIG"
)

// CKGError represents a structured error for knowledge graph operations.
// It includes error code, message, underlying cause, and additional
// context for debugging and error handling.
type CKGError struct {
	Code      CKGErrorCode   // Error code for programmatic handling
	Message   string         // Human-readable error message
	Cause     error          // Underlying error (if any)
	Context   map[string]any // Additional context for debugging
	Retryable bool           // Whether the operation can be retried
}

// Error implements the error interface, returning a formatted error message.
// Format: "[CODE] message" or "[CODE] message: cause" if cause exists.
func (e *CKGError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause error for error unwrapping chains.
func (e *CKGError) Unwrap() error {
	return e.Cause
}

// Is checks if the target error matches this error by error code.
// Returns true if target is a CKGError with the same Code.
func (e *CKGError) Is(target error) bool {
	var ckgErr *CKGError
	if errors.As(target, &ckgErr) {
		return e.Code == ckgErr.Code
	}
	return false
}

// WithContext adds additional context to the error for debugging.
// Returns the error for method chaining.
func (e *CKGError) WithContext(key string, value any) *CKGError {
	if e.Context == nil {
		e.Context = make(map[string]any)
	}
	e.Context[key] = value
	return e
}

// NewValidationError creates a malformed-request error. Validation errors
// are raised before any backend is touched and are never retryable.
func NewValidationError(message string) *CKGError {
	return &CKGError{
		Code:      ErrCodeValidationFailed,
		Message:   message,
		Context:   make(map[string]any),
		Retryable: false,
	}
}

// NewQueryError creates a query execution error.
func NewQueryError(message string, cause error) *CKGError {
	return &CKGError{
		Code:      ErrCodeQueryFailed,
		Message:   message,
		Cause:     cause,
		Context:   make(map[string]any),
		Retryable: false,
	}
}

// NewNodeNotFoundError creates a node not found error. Note that plain
// lookups represent absence as a nil node, not an error; this error is
// for operations that require the node to exist (e.g. property updates).
func NewNodeNotFoundError(nodeType NodeType, id types.ID) *CKGError {
	return &CKGError{
		Code:    ErrCodeNodeNotFound,
		Message: fmt.Sprintf("node not found: %s/%s", nodeType, id),
		Context: map[string]any{
			"node_type": nodeType.String(),
			"node_id":   id.String(),
		},
		Retryable: false,
	}
}

// NewRelationshipError creates a relationship operation error.
func NewRelationshipError(message string, cause error) *CKGError {
	return &CKGError{
		Code:      ErrCodeRelationshipFailed,
		Message:   message,
		Cause:     cause,
		Context:   make(map[string]any),
		Retryable: false,
	}
}

// NewBackendUnavailableError creates an error for a backend that cannot
// serve the requested capability (e.g. vector search on the local store)
// or cannot be reached at all. Retryable: the native engine may return.
func NewBackendUnavailableError(capability string, cause error) *CKGError {
	return &CKGError{
		Code:    ErrCodeBackendUnavailable,
		Message: fmt.Sprintf("backend cannot serve %s", capability),
		Cause:   cause,
		Context: map[string]any{
			"capability": capability,
		},
		Retryable: true,
	}
}

// NewCycleDetectedError creates a dependency cycle error naming the tasks
// that could not be scheduled.
func NewCycleDetectedError(members []types.ID) *CKGError {
	types.SortIDs(members)
	names := make([]string, len(members))
	for i, id := range members {
		names[i] = id.String()
	}
	return &CKGError{
		Code:    ErrCodeCycleDetected,
		Message: fmt.Sprintf("dependency cycle among tasks: %s", strings.Join(names, ", ")),
		Context: map[string]any{
			"task_ids": names,
		},
		Retryable: false,
	}
}

// NewSerializationError creates a malformed metadata round-trip error.
func NewSerializationError(message string, cause error) *CKGError {
	return &CKGError{
		Code:      ErrCodeSerializationFailed,
		Message:   message,
		Cause:     cause,
		Context:   make(map[string]any),
		Retryable: false,
	}
}

// NewWriteError creates a node or timepoint write failure error.
func NewWriteError(message string, cause error) *CKGError {
	return &CKGError{
		Code:      ErrCodeWriteFailed,
		Message:   message,
		Cause:     cause,
		Context:   make(map[string]any),
		Retryable: false,
	}
}

// NewConfigError creates a configuration error.
func NewConfigError(message string, cause error) *CKGError {
	return &CKGError{
		Code:      ErrCodeInvalidConfig,
		Message:   message,
		Cause:     cause,
		Context:   make(map[string]any),
		Retryable: false,
	}
}

// CycleMembers extracts the task IDs named by a CYCLE_DETECTED error.
// Returns nil if the error is not a cycle error.
func CycleMembers(err error) []types.ID {
	var ckgErr *CKGError
	if !errors.As(err, &ckgErr) || ckgErr.Code != ErrCodeCycleDetected {
		return nil
	}
	names, _ := ckgErr.Context["task_ids"].([]string)
	ids := make([]types.ID, 0, len(names))
	for _, n := range names {
		ids = append(ids, types.ID(n))
	}
	return ids
}
