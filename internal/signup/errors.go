package signup

import (
	"errors"
	"strings"

	"github.com/dalemusser/docverify/pantry/validate"
)

// InvalidCredentialsError reports an email-variant attempt whose
// credentials failed the format policy. The backend was not called.
type InvalidCredentialsError struct {
	Result validate.CredentialResult
}

func (e *InvalidCredentialsError) Error() string {
	return "signup: invalid credentials: " + strings.Join(e.Result.InvalidFields(), ", ")
}

// BackendError is returned by a Backend when the auth service rejected the
// request. Message is human readable and is shown to the user as-is.
type BackendError struct {
	Message string
	// Status is the upstream HTTP status, if any.
	Status int
	Err    error
}

func (e *BackendError) Error() string { return e.Message }

func (e *BackendError) Unwrap() error { return e.Err }

// AuthError is returned by Service when the backend call failed.
type AuthError struct {
	Method  Method
	Message string
	Err     error
}

func (e *AuthError) Error() string { return e.Message }

func (e *AuthError) Unwrap() error { return e.Err }

// unavailableMessage replaces error text that did not come from the auth
// service itself (network failures, decoding errors).
const unavailableMessage = "Authentication service unavailable"

// userMessage returns the text shown to the user for a backend failure.
func userMessage(err error) string {
	var be *BackendError
	if errors.As(err, &be) && be.Message != "" {
		return be.Message
	}
	return unavailableMessage
}
