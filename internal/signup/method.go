package signup

import (
	"errors"
	"fmt"
	"strings"
)

// Kind tags the Method variant.
type Kind string

const (
	KindEmail    Kind = "email"
	KindProvider Kind = "oauth"
)

// Method is how a user signs up: either with an email and password, or
// through a named third-party provider. The zero value is not a valid
// method; build one with EmailMethod, ProviderMethod or ParseMethod.
type Method struct {
	kind     Kind
	provider string
}

// EmailMethod is the email and password variant.
func EmailMethod() Method {
	return Method{kind: KindEmail}
}

// ProviderMethod is the third-party provider variant for name (e.g. "google").
func ProviderMethod(name string) Method {
	return Method{kind: KindProvider, provider: strings.ToLower(name)}
}

// Kind reports which variant m is.
func (m Method) Kind() Kind { return m.kind }

// Provider returns the provider name, or "" for the email variant.
func (m Method) Provider() string { return m.provider }

// String is "email" or "oauth:<provider>", for log fields. Metrics label
// by Kind only.
func (m Method) String() string {
	if m.kind == KindProvider {
		return string(KindProvider) + ":" + m.provider
	}
	return string(m.kind)
}

var (
	// ErrUnknownMethod is returned by ParseMethod for unrecognized tags.
	ErrUnknownMethod = errors.New("signup: unknown method")

	// ErrInvalidRole is returned by ParseRole for unrecognized roles.
	ErrInvalidRole = errors.New("signup: invalid role")
)

// ParseMethod maps the wire tag to a Method. "email" selects the email
// variant. "oauth" (or "provider") requires a provider name. Any other
// non-empty tag is taken as the provider name itself, so {"method":"google"}
// works as a shorthand.
func ParseMethod(tag, provider string) (Method, error) {
	tag = strings.ToLower(strings.TrimSpace(tag))
	provider = strings.TrimSpace(provider)

	switch tag {
	case "":
		return Method{}, fmt.Errorf("%w: empty", ErrUnknownMethod)
	case string(KindEmail), "password":
		return EmailMethod(), nil
	case string(KindProvider), "provider":
		if provider == "" {
			return Method{}, fmt.Errorf("%w: oauth without provider", ErrUnknownMethod)
		}
		return ProviderMethod(provider), nil
	default:
		return ProviderMethod(tag), nil
	}
}

// Role is the kind of account being created.
type Role string

const (
	RoleOwner     Role = "owner"
	RoleValidator Role = "validator"
)

// ParseRole maps s to a Role. Empty means RoleOwner.
func ParseRole(s string) (Role, error) {
	switch Role(strings.ToLower(strings.TrimSpace(s))) {
	case "", RoleOwner:
		return RoleOwner, nil
	case RoleValidator:
		return RoleValidator, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidRole, s)
	}
}

// Credentials is the email and password pair for the email variant.
type Credentials struct {
	Email    string
	Password string
}

// Registration is what an email-variant backend call receives.
type Registration struct {
	Email    string
	Password string
	Role     Role
}
