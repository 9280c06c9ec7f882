// Package users persists accounts created by the local auth backend.
package users

import (
	"context"
	"errors"
	"strings"
	"time"
)

var (
	// ErrNotFound is returned when no user matches a lookup.
	ErrNotFound = errors.New("users: not found")

	// ErrDuplicateEmail is returned by Create when the email (compared
	// case-insensitively) or the provider identity is already registered.
	ErrDuplicateEmail = errors.New("users: email already registered")
)

// User is a stored account. Password users have a PasswordHash and an empty
// Provider; provider users have Provider and ProviderID set instead.
type User struct {
	ID           string
	Email        string
	PasswordHash string
	Role         string
	Provider     string
	ProviderID   string
	CreatedAt    time.Time
}

// Store persists users.
type Store interface {
	Create(ctx context.Context, u *User) error
	ByID(ctx context.Context, id string) (*User, error)
	ByEmail(ctx context.Context, email string) (*User, error)
	ByProvider(ctx context.Context, provider, providerID string) (*User, error)
}

// NormalizeEmail returns the key emails are compared under. Only case is
// folded; addresses are otherwise stored exactly as entered.
func NormalizeEmail(email string) string {
	return strings.ToLower(email)
}
