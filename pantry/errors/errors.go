// errors/errors.go
package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// Error is an API error: a machine-readable code, a message safe to show to
// the caller, and the HTTP status it maps to.
type Error struct {
	Code    string         `json:"code"`
	Message string         `json:"message"`
	Details map[string]any `json:"details,omitempty"`

	// Status and Err stay server side.
	Status int   `json:"-"`
	Err    error `json:"-"`
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying error for errors.Is/As support.
func (e *Error) Unwrap() error {
	return e.Err
}

// WithDetail adds a single detail to the error.
func (e *Error) WithDetail(key string, value any) *Error {
	if e.Details == nil {
		e.Details = make(map[string]any)
	}
	e.Details[key] = value
	return e
}

// WithDetails replaces the error's details.
func (e *Error) WithDetails(details map[string]any) *Error {
	e.Details = details
	return e
}

// Wrap records the underlying cause.
func (e *Error) Wrap(err error) *Error {
	e.Err = err
	return e
}

// HTTPStatus returns the HTTP status code for the error.
func (e *Error) HTTPStatus() int {
	if e.Status == 0 {
		return http.StatusInternalServerError
	}
	return e.Status
}

// New creates a new Error with code, message, and HTTP status.
func New(code, message string, status int) *Error {
	return &Error{Code: code, Message: message, Status: status}
}

// Wrap creates a new Error wrapping an existing error.
func Wrap(err error, code, message string, status int) *Error {
	return &Error{Code: code, Message: message, Status: status, Err: err}
}

// From extracts an *Error from err if possible, or wraps it as an internal
// error whose message hides the cause.
func From(err error) *Error {
	if err == nil {
		return nil
	}
	var e *Error
	if errors.As(err, &e) {
		return e
	}
	return &Error{
		Code:    CodeInternalError,
		Message: "an internal error occurred",
		Status:  http.StatusInternalServerError,
		Err:     err,
	}
}

// Is and As re-export the standard library helpers so callers that import
// this package as "errors" keep them.
func Is(err, target error) bool { return errors.Is(err, target) }

func As(err error, target any) bool { return errors.As(err, target) }

// Error codes.
const (
	CodeBadRequest         = "bad_request"
	CodeUnauthorized       = "unauthorized"
	CodeNotFound           = "not_found"
	CodeMethodNotAllowed   = "method_not_allowed"
	CodeTooManyRequests    = "too_many_requests"
	CodeInternalError      = "internal_error"
	CodeServiceUnavailable = "service_unavailable"
	CodeValidationFailed   = "validation_failed"

	// CodeInvalidCredentials: the credential pair failed the format policy.
	CodeInvalidCredentials = "invalid_credentials"
	// CodeAuthFailed: the authentication backend refused or failed.
	CodeAuthFailed = "auth_failed"
)

// BadRequest creates a 400 Bad Request error.
func BadRequest(message string) *Error {
	return New(CodeBadRequest, message, http.StatusBadRequest)
}

// Unauthorized creates a 401 Unauthorized error.
func Unauthorized(message string) *Error {
	return New(CodeUnauthorized, message, http.StatusUnauthorized)
}

// NotFound creates a 404 Not Found error.
func NotFound(message string) *Error {
	return New(CodeNotFound, message, http.StatusNotFound)
}

// MethodNotAllowed creates a 405 Method Not Allowed error.
func MethodNotAllowed(message string) *Error {
	return New(CodeMethodNotAllowed, message, http.StatusMethodNotAllowed)
}

// TooManyRequests creates a 429 Too Many Requests error.
func TooManyRequests(message string) *Error {
	return New(CodeTooManyRequests, message, http.StatusTooManyRequests)
}

// Internal creates a 500 Internal Server Error.
func Internal(message string) *Error {
	return New(CodeInternalError, message, http.StatusInternalServerError)
}

// ServiceUnavailable creates a 503 Service Unavailable error.
func ServiceUnavailable(message string) *Error {
	return New(CodeServiceUnavailable, message, http.StatusServiceUnavailable)
}

// InvalidCredentials creates a 422 error for a credential pair that failed
// the format policy. Attach the per-field flags with WithDetails.
func InvalidCredentials(message string) *Error {
	return New(CodeInvalidCredentials, message, http.StatusUnprocessableEntity)
}

// AuthFailed creates a 502 error carrying the authentication backend's
// message unchanged.
func AuthFailed(message string) *Error {
	return New(CodeAuthFailed, message, http.StatusBadGateway)
}

// ValidationErrors collects field-level problems with a request body.
type ValidationErrors struct {
	Errors []FieldError `json:"errors"`
}

// FieldError is a problem with a single request field.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// NewValidationErrors creates an empty ValidationErrors.
func NewValidationErrors() *ValidationErrors {
	return &ValidationErrors{Errors: make([]FieldError, 0)}
}

// Error implements the error interface.
func (v *ValidationErrors) Error() string {
	if len(v.Errors) == 0 {
		return "validation failed"
	}
	return fmt.Sprintf("validation failed: %s: %s", v.Errors[0].Field, v.Errors[0].Message)
}

// Add adds a field error.
func (v *ValidationErrors) Add(field, message string) *ValidationErrors {
	v.Errors = append(v.Errors, FieldError{Field: field, Message: message})
	return v
}

// HasErrors reports whether any field error was added.
func (v *ValidationErrors) HasErrors() bool {
	return len(v.Errors) > 0
}

// ToError converts v to a 400 *Error, or nil when there is nothing to report.
func (v *ValidationErrors) ToError() *Error {
	if !v.HasErrors() {
		return nil
	}
	return New(CodeValidationFailed, v.Errors[0].Message, http.StatusBadRequest).WithDetail("errors", v.Errors)
}
