package errors

import (
	"encoding/json"
	"fmt"
)

// ErrorCode represents a specific error condition
type ErrorCode string

const (
	// Configuration errors
	ErrCodeConfigNotFound ErrorCode = "CONFIG_NOT_FOUND"
	ErrCodeConfigInvalid  ErrorCode = "CONFIG_INVALID"

	// Coordination backend errors
	ErrCodeBackendUnreachable ErrorCode = "BACKEND_UNREACHABLE"
	ErrCodeBackendStatus      ErrorCode = "BACKEND_STATUS"
	ErrCodeBackendDecode      ErrorCode = "BACKEND_DECODE"
	ErrCodeApproveFailed      ErrorCode = "APPROVE_FAILED"
	ErrCodeRouteMutation      ErrorCode = "ROUTE_MUTATION_FAILED"

	// Fact store errors
	ErrCodeStoreIO      ErrorCode = "STORE_IO"
	ErrCodeStoreCorrupt ErrorCode = "STORE_CORRUPT"

	// Transport errors
	ErrCodeBrokerUnavailable ErrorCode = "BROKER_UNAVAILABLE"
	ErrCodeWatchFailed       ErrorCode = "WATCH_FAILED"

	// General errors
	ErrCodeInternal     ErrorCode = "INTERNAL_ERROR"
	ErrCodeInvalidInput ErrorCode = "INVALID_INPUT"
)

// RelayError represents a structured error with context
type RelayError struct {
	Code    ErrorCode              `json:"code"`
	Message string                 `json:"message"`
	Details map[string]interface{} `json:"details,omitempty"`
	Cause   error                  `json:"-"`
}

// Error implements the error interface
func (e *RelayError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s (caused by: %v)", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap implements the errors.Unwrap interface
func (e *RelayError) Unwrap() error {
	return e.Cause
}

// WithDetail adds a detail to the error
func (e *RelayError) WithDetail(key string, value interface{}) *RelayError {
	if e.Details == nil {
		e.Details = make(map[string]interface{})
	}
	e.Details[key] = value
	return e
}

// ToJSON converts the error to JSON
func (e *RelayError) ToJSON() string {
	data, _ := json.MarshalIndent(e, "", "  ")
	return string(data)
}

// New creates a new RelayError
func New(code ErrorCode, message string) *RelayError {
	return &RelayError{
		Code:    code,
		Message: message,
	}
}

// Wrap wraps an existing error with a RelayError
func Wrap(err error, code ErrorCode, message string) *RelayError {
	return &RelayError{
		Code:    code,
		Message: message,
		Cause:   err,
	}
}

// Is checks if an error is a specific RelayError code
func Is(err error, code ErrorCode) bool {
	if err == nil {
		return false
	}

	relayErr, ok := err.(*RelayError)
	if !ok {
		// Try to unwrap
		if unwrapper, ok := err.(interface{ Unwrap() error }); ok {
			return Is(unwrapper.Unwrap(), code)
		}
		return false
	}

	return relayErr.Code == code
}

// GetCode extracts the error code from an error
func GetCode(err error) ErrorCode {
	if err == nil {
		return ""
	}

	relayErr, ok := err.(*RelayError)
	if !ok {
		// Try to unwrap
		if unwrapper, ok := err.(interface{ Unwrap() error }); ok {
			return GetCode(unwrapper.Unwrap())
		}
		return ""
	}

	return relayErr.Code
}
