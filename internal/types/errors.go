package types

import (
	"errors"
	"fmt"
)

// ErrorCode represents a namespaced error code for URAICS service errors.
type ErrorCode string

// Configuration error codes
const (
	CONFIG_LOAD_FAILED       ErrorCode = "CONFIG_LOAD_FAILED"
	CONFIG_PARSE_FAILED      ErrorCode = "CONFIG_PARSE_FAILED"
	CONFIG_VALIDATION_FAILED ErrorCode = "CONFIG_VALIDATION_FAILED"
)

// Relational data source error codes
const (
	DB_OPEN_FAILED     ErrorCode = "DB_OPEN_FAILED"
	DB_QUERY_FAILED    ErrorCode = "DB_QUERY_FAILED"
	DB_POOL_TIMEOUT    ErrorCode = "DB_POOL_TIMEOUT"
	DB_CONNECTION_LOST ErrorCode = "DB_CONNECTION_LOST"
)

// Graph store error codes
const (
	GRAPH_CONNECTION_FAILED ErrorCode = "GRAPH_CONNECTION_FAILED"
	GRAPH_CONNECTION_CLOSED ErrorCode = "GRAPH_CONNECTION_CLOSED"
	GRAPH_QUERY_FAILED      ErrorCode = "GRAPH_QUERY_FAILED"
	GRAPH_INVALID_CONFIG    ErrorCode = "GRAPH_INVALID_CONFIG"
	GRAPH_NODE_NOT_FOUND    ErrorCode = "GRAPH_NODE_NOT_FOUND"
)

// Client-input error codes. These map to 4xx responses at the API
// boundary and must never be conflated with data-source failures.
const (
	RISK_UNKNOWN        ErrorCode = "RISK_UNKNOWN"
	FILTER_INVALID_DATE ErrorCode = "FILTER_INVALID_DATE"
	FILTER_INVALID      ErrorCode = "FILTER_INVALID"
)

// ServiceError represents a structured error with error code, message, and
// optional cause. It supports error wrapping and retryability hints for
// error handling logic.
type ServiceError struct {
	Code      ErrorCode
	Message   string
	Retryable bool
	Cause     error
}

// Error implements the error interface, returning a formatted error message.
// Format: "[CODE] message" or "[CODE] message: cause" if cause exists.
func (e *ServiceError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause error for error unwrapping chains.
func (e *ServiceError) Unwrap() error {
	return e.Cause
}

// Is checks if the target error matches this error by error code.
func (e *ServiceError) Is(target error) bool {
	var svcErr *ServiceError
	if errors.As(target, &svcErr) {
		return e.Code == svcErr.Code
	}
	return false
}

// IsClientError reports whether the error represents invalid caller input
// rather than a server-side fault.
func (e *ServiceError) IsClientError() bool {
	switch e.Code {
	case RISK_UNKNOWN, FILTER_INVALID_DATE, FILTER_INVALID:
		return true
	default:
		return false
	}
}

// NewError creates a new non-retryable ServiceError with the given code and message.
func NewError(code ErrorCode, message string) *ServiceError {
	return &ServiceError{
		Code:    code,
		Message: message,
	}
}

// NewRetryableError creates a new retryable ServiceError with the given code
// and message. Use this for transient errors that may succeed on retry.
func NewRetryableError(code ErrorCode, message string) *ServiceError {
	return &ServiceError{
		Code:      code,
		Message:   message,
		Retryable: true,
	}
}

// WrapError creates a new non-retryable ServiceError that wraps an existing
// error. The wrapped error is accessible via Unwrap() for chain inspection.
func WrapError(code ErrorCode, message string, cause error) *ServiceError {
	return &ServiceError{
		Code:    code,
		Message: message,
		Cause:   cause,
	}
}

// ErrorCodeOf extracts the error code from err, walking the unwrap chain.
// Returns an empty code when err carries no ServiceError.
func ErrorCodeOf(err error) ErrorCode {
	var svcErr *ServiceError
	if errors.As(err, &svcErr) {
		return svcErr.Code
	}
	return ""
}

// IsClientError reports whether any error in the chain is a client-input error.
func IsClientError(err error) bool {
	var svcErr *ServiceError
	if errors.As(err, &svcErr) {
		return svcErr.IsClientError()
	}
	return false
}
