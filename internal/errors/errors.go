// Package errors provides a standardized error handling framework for the web server.
// It defines the error taxonomy shared by the decorator pipeline, wrapping functions,
// and classification methods so every layer reports failures the same way.
package errors

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"
)

// Standard error types for the application
var (
	ErrFieldMissing = errors.New("field missing")
	ErrHandler      = errors.New("handler error")
	ErrTimeout      = errors.New("timed out")
	ErrTransport    = errors.New("transport error")
	ErrRateLimit    = errors.New("rate limit error")
	ErrValidation   = errors.New("validation error")
	ErrForbidden    = errors.New("forbidden")
	ErrInternal     = errors.New("internal error")
)

// errorType is a custom error with a specific type
type errorType struct {
	baseErr error
	msg     string
	cause   error
	details map[string]interface{}
}

type ErrorWithDetails interface {
	Error() string
	Details() map[string]interface{}
}

// Error implements the error interface
func (e *errorType) Error() string {
	if e == nil {
		return ""
	}

	base := e.baseErr.Error()
	if e.msg != "" {
		base = fmt.Sprintf("%s: %s", base, e.msg)
	}

	if len(e.details) > 0 {
		detailsJSON, err := json.Marshal(e.details)
		if err == nil {
			base += fmt.Sprintf(" - details: %s", detailsJSON)
		}
	}

	if e.cause != nil {
		base += fmt.Sprintf(" - caused by: %v", e.cause)
	}

	return base
}

// Unwrap returns the underlying cause of the error
func (e *errorType) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.cause
}

// Is reports whether the error is of the specified type
func (e *errorType) Is(target error) bool {
	if e == nil {
		return target == nil
	}
	return errors.Is(e.baseErr, target)
}

// Details implements ErrorWithDetails
func (e *errorType) Details() map[string]interface{} {
	if e == nil {
		return nil
	}
	return e.details
}

// NewFieldMissingError reports that a named field was absent from a field map
func NewFieldMissingError(name string) error {
	return &errorType{
		baseErr: ErrFieldMissing,
		msg:     name,
		details: map[string]interface{}{"field": name},
	}
}

// NewHandlerError re-wraps a failure produced by a wrapped handler.
// A nil cause yields nil so callers can wrap unconditionally.
func NewHandlerError(cause error) error {
	if cause == nil {
		return nil
	}
	if IsHandlerError(cause) {
		return cause
	}
	return &errorType{
		baseErr: ErrHandler,
		cause:   cause,
	}
}

// NewTimeoutError reports that the deadline elapsed before the handler completed
func NewTimeoutError(after time.Duration) error {
	return &errorType{
		baseErr: ErrTimeout,
		msg:     fmt.Sprintf("no response after %v", after),
		details: map[string]interface{}{"timeout_ms": after.Milliseconds()},
	}
}

// NewTransportError creates a connection-level I/O error
func NewTransportError(msg string, cause error) error {
	return &errorType{
		baseErr: ErrTransport,
		msg:     msg,
		cause:   cause,
	}
}

// NewRateLimitError creates a new rate limit error
func NewRateLimitError(msg string, cause error) error {
	return &errorType{
		baseErr: ErrRateLimit,
		msg:     msg,
		cause:   cause,
	}
}

// NewValidationError creates a new validation error
func NewValidationError(msg string) error {
	return &errorType{
		baseErr: ErrValidation,
		msg:     msg,
	}
}

// NewForbiddenError reports a client that is not allowed to call the server
func NewForbiddenError(msg string) error {
	return &errorType{
		baseErr: ErrForbidden,
		msg:     msg,
	}
}

// NewInternalError creates a new internal error
func NewInternalError(msg string) error {
	return &errorType{
		baseErr: ErrInternal,
		msg:     msg,
	}
}

// Wrap wraps an error with additional context
func Wrap(err error, msg string) error {
	if err == nil {
		return nil
	}

	if customErr, ok := err.(*errorType); ok {
		combined := msg
		if customErr.msg != "" {
			combined = msg + ": " + customErr.msg
		}
		return &errorType{
			baseErr: customErr.baseErr,
			msg:     combined,
			cause:   customErr.cause,
			details: customErr.details,
		}
	}

	// If it's a standard error, wrap it as an internal error
	return &errorType{
		baseErr: ErrInternal,
		msg:     msg,
		cause:   err,
	}
}

// Unwrap returns the wrapped error, following Go 1.13 error unwrapping convention
func Unwrap(err error) error {
	return errors.Unwrap(err)
}

// WithDetails adds detail information to an error
func WithDetails(err error, details map[string]interface{}) error {
	if err == nil {
		return nil
	}

	if customErr, ok := err.(*errorType); ok {
		return &errorType{
			baseErr: customErr.baseErr,
			msg:     customErr.msg,
			cause:   customErr.cause,
			details: details,
		}
	}

	return &errorType{
		baseErr: ErrInternal,
		msg:     err.Error(),
		details: details,
	}
}

// IsFieldMissingError checks if the error reports an absent field
func IsFieldMissingError(err error) bool {
	return err != nil && errors.Is(err, ErrFieldMissing)
}

// IsHandlerError checks if the error is a wrapped handler failure
func IsHandlerError(err error) bool {
	return err != nil && errors.Is(err, ErrHandler)
}

// IsTimeoutError checks if the error is a deadline expiry
func IsTimeoutError(err error) bool {
	return err != nil && errors.Is(err, ErrTimeout)
}

// IsTransportError checks if the error is a connection-level failure
func IsTransportError(err error) bool {
	return err != nil && errors.Is(err, ErrTransport)
}

// IsRateLimitError checks if the error is a rate limit error
func IsRateLimitError(err error) bool {
	return err != nil && errors.Is(err, ErrRateLimit)
}

// IsValidationError checks if the error is a validation error
func IsValidationError(err error) bool {
	return err != nil && errors.Is(err, ErrValidation)
}

// IsForbiddenError checks if the error rejects the caller outright
func IsForbiddenError(err error) bool {
	return err != nil && errors.Is(err, ErrForbidden)
}

// IsInternalError checks if the error is an internal error
func IsInternalError(err error) bool {
	return err != nil && errors.Is(err, ErrInternal)
}

// GetDetails returns error details if available, nil otherwise
func GetDetails(err error) map[string]interface{} {
	if err == nil {
		return nil
	}

	var detailedErr ErrorWithDetails
	if errors.As(err, &detailedErr) {
		return detailedErr.Details()
	}

	return nil
}

// StatusCode maps an error onto the HTTP status the driver answers with.
// Timeouts keep their own status so clients can tell them apart from failures.
func StatusCode(err error) int {
	switch {
	case err == nil:
		return http.StatusOK
	case IsTimeoutError(err):
		return http.StatusGatewayTimeout
	case IsRateLimitError(err):
		return http.StatusServiceUnavailable
	case IsValidationError(err):
		return http.StatusBadRequest
	case IsForbiddenError(err):
		return http.StatusForbidden
	default:
		return http.StatusInternalServerError
	}
}

// ErrorResponse provides a consistent structure for error responses
type ErrorResponse struct {
	Status    string                 `json:"status"`
	Message   string                 `json:"message"`
	ErrorType string                 `json:"error_type"`
	Details   map[string]interface{} `json:"details,omitempty"`
}

// ToErrorResponse converts an error to a standardized ErrorResponse
func ToErrorResponse(err error) ErrorResponse {
	if err == nil {
		return ErrorResponse{
			Status:  "error",
			Message: "Unknown error",
		}
	}

	response := ErrorResponse{
		Status:  "error",
		Message: err.Error(),
		Details: GetDetails(err),
	}

	switch {
	case IsTimeoutError(err):
		response.ErrorType = "timeout"
	case IsRateLimitError(err):
		response.ErrorType = "rate_limit"
	case IsValidationError(err):
		response.ErrorType = "validation"
	case IsForbiddenError(err):
		response.ErrorType = "forbidden"
	case IsTransportError(err):
		response.ErrorType = "transport"
	case IsHandlerError(err):
		response.ErrorType = "handler"
	case IsFieldMissingError(err):
		response.ErrorType = "field_missing"
	default:
		response.ErrorType = "internal"
	}

	return response
}
