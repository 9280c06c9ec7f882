// Package validate checks signup credentials against the site's format
// policy before anything is sent to an authentication backend.
//
// The checks are structural only. A credential pair that fails them is
// reported through boolean flags; nothing in this package returns an error
// or panics on malformed input.
//
// Basic usage:
//
//	res := validate.ValidateCredentials(email, password)
//	if !res.IsValid {
//	    // tell the user which field failed using res.IsEmailValid / res.IsPasswordValid
//	}
//
// To trace each check at debug level, build a CredentialValidator with a logger:
//
//	v := validate.NewCredentialValidator(logger)
//	res := v.Validate(email, password)
package validate

import (
	"unicode/utf8"

	"go.uber.org/zap"
)

// CredentialResult is the outcome of checking one email/password pair.
// IsValid is true if and only if both IsEmailValid and IsPasswordValid are.
type CredentialResult struct {
	IsEmailValid    bool `json:"isEmailValid"`
	IsPasswordValid bool `json:"isPasswordValid"`
	IsValid         bool `json:"isValid"`
}

// InvalidFields returns the names of the fields that failed, in form order.
func (r CredentialResult) InvalidFields() []string {
	var out []string
	if !r.IsEmailValid {
		out = append(out, "email")
	}
	if !r.IsPasswordValid {
		out = append(out, "password")
	}
	return out
}

// CredentialValidator checks credential pairs and optionally traces each
// check. The zero value is not usable; call NewCredentialValidator.
// It holds no mutable state and is safe for concurrent use.
type CredentialValidator struct {
	logger *zap.Logger
}

// NewCredentialValidator returns a validator that traces each call to logger
// at debug level. A nil logger disables tracing.
func NewCredentialValidator(logger *zap.Logger) *CredentialValidator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CredentialValidator{logger: logger}
}

// Validate checks email and password independently and combines the flags.
// The password itself is never logged; only its length is.
func (v *CredentialValidator) Validate(email, password string) CredentialResult {
	emailOK := EmailFormatValid(email)
	passwordOK := PasswordPolicyValid(password)

	if ce := v.logger.Check(zap.DebugLevel, "credential check"); ce != nil {
		ce.Write(
			zap.String("email", email),
			zap.Int("password_len", utf8.RuneCountInString(password)),
			zap.Bool("email_valid", emailOK),
			zap.Bool("password_valid", passwordOK),
		)
	}

	return CredentialResult{
		IsEmailValid:    emailOK,
		IsPasswordValid: passwordOK,
		IsValid:         emailOK && passwordOK,
	}
}

var untraced = NewCredentialValidator(nil)

// ValidateCredentials checks a credential pair without tracing.
func ValidateCredentials(email, password string) CredentialResult {
	return untraced.Validate(email, password)
}
