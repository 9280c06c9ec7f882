// Package local is a self-hosted signup backend: accounts live in the users
// store, passwords are hashed with Argon2id, and sessions carry HS256
// access tokens. Provider signups run the OAuth2 code flow directly.
package local

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/dalemusser/docverify/internal/signup"
	"github.com/dalemusser/docverify/internal/users"
	"github.com/dalemusser/docverify/pantry/auth/oauth2"
	"github.com/dalemusser/docverify/pantry/auth/token"
	"github.com/dalemusser/docverify/pantry/crypto"
	"github.com/dalemusser/docverify/pantry/session"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Messages returned to users through signup.BackendError.
const (
	MsgAlreadyRegistered = "User already registered"
	MsgUnknownProvider   = "Unsupported sign-in provider"
	MsgInvalidState      = "Sign-in link is invalid or has expired"
	MsgNoEmail           = "The provider did not share an email address"
	MsgProviderFailed    = "Could not sign in with the provider"
)

// pendingTTL bounds how long a provider redirect stays usable.
const pendingTTL = 10 * time.Minute

// Config wires a Backend.
type Config struct {
	Users  users.Store
	Tokens *token.Manager

	// Providers enabled for provider signups, keyed by Provider.Name().
	Providers []*oauth2.Provider

	// HashParams defaults to crypto.DefaultArgon2Params().
	HashParams *crypto.Argon2Params

	Logger *zap.Logger
}

// Backend implements signup.Backend.
type Backend struct {
	users     users.Store
	tokens    *token.Manager
	providers map[string]*oauth2.Provider
	params    *crypto.Argon2Params
	logger    *zap.Logger
	now       func() time.Time
}

var _ signup.Backend = (*Backend)(nil)

// New validates cfg and returns a Backend.
func New(cfg Config) (*Backend, error) {
	if cfg.Users == nil {
		return nil, errors.New("local: Users is required")
	}
	if cfg.Tokens == nil {
		return nil, errors.New("local: Tokens is required")
	}
	b := &Backend{
		users:     cfg.Users,
		tokens:    cfg.Tokens,
		providers: make(map[string]*oauth2.Provider, len(cfg.Providers)),
		params:    cfg.HashParams,
		logger:    cfg.Logger,
		now:       time.Now,
	}
	if b.params == nil {
		b.params = crypto.DefaultArgon2Params()
	}
	if b.logger == nil {
		b.logger = zap.NewNop()
	}
	for _, p := range cfg.Providers {
		if p != nil {
			b.providers[p.Name()] = p
		}
	}
	return b, nil
}

// SignUpWithPassword creates a password account and signs it in.
func (b *Backend) SignUpWithPassword(ctx context.Context, reg signup.Registration) (*session.Session, error) {
	hash, err := crypto.HashPassword(reg.Password, b.params)
	if err != nil {
		return nil, fmt.Errorf("local: hash password: %w", err)
	}

	u := &users.User{
		ID:           uuid.NewString(),
		Email:        reg.Email,
		PasswordHash: hash,
		Role:         string(reg.Role),
		CreatedAt:    b.now().UTC(),
	}
	if err := b.users.Create(ctx, u); err != nil {
		return nil, createError(err)
	}

	b.logger.Info("account created",
		zap.String("user_id", u.ID),
		zap.String("role", u.Role),
	)
	return b.issue(u, "email")
}

// SignUpWithProvider starts the provider's authorization code flow. The
// role rides along in the OAuth2 state and is applied on completion.
func (b *Backend) SignUpWithProvider(ctx context.Context, provider string, role signup.Role) (*session.Session, error) {
	p, ok := b.providers[provider]
	if !ok {
		return nil, &signup.BackendError{Message: MsgUnknownProvider, Status: http.StatusBadRequest}
	}
	url, err := p.Begin(ctx, string(role))
	if err != nil {
		return nil, err
	}
	return &session.Session{
		Provider:    provider,
		Role:        string(role),
		RedirectURL: url,
		ExpiresAt:   b.now().Add(pendingTTL),
	}, nil
}

// CompleteProvider exchanges the callback code, links or creates the user
// and signs them in.
func (b *Backend) CompleteProvider(ctx context.Context, provider, state, code string) (*session.Session, error) {
	p, ok := b.providers[provider]
	if !ok {
		return nil, &signup.BackendError{Message: MsgUnknownProvider, Status: http.StatusBadRequest}
	}

	profile, payload, err := p.Finish(ctx, state, code)
	switch {
	case errors.Is(err, oauth2.ErrInvalidState), errors.Is(err, oauth2.ErrMissingCode):
		return nil, &signup.BackendError{Message: MsgInvalidState, Status: http.StatusBadRequest, Err: err}
	case err != nil:
		return nil, &signup.BackendError{Message: MsgProviderFailed, Status: http.StatusBadGateway, Err: err}
	}

	u, err := b.users.ByProvider(ctx, provider, profile.ID)
	if errors.Is(err, users.ErrNotFound) {
		u, err = b.createProviderUser(ctx, provider, profile, payload)
	}
	if err != nil {
		return nil, err
	}
	return b.issue(u, provider)
}

func (b *Backend) createProviderUser(ctx context.Context, provider string, profile *oauth2.User, rolePayload string) (*users.User, error) {
	if profile.Email == "" {
		return nil, &signup.BackendError{Message: MsgNoEmail, Status: http.StatusUnprocessableEntity}
	}
	role, err := signup.ParseRole(rolePayload)
	if err != nil {
		role = signup.RoleOwner
	}

	u := &users.User{
		ID:         uuid.NewString(),
		Email:      profile.Email,
		Role:       string(role),
		Provider:   provider,
		ProviderID: profile.ID,
		CreatedAt:  b.now().UTC(),
	}
	if err := b.users.Create(ctx, u); err != nil {
		return nil, createError(err)
	}
	b.logger.Info("account created",
		zap.String("user_id", u.ID),
		zap.String("provider", provider),
		zap.String("role", u.Role),
	)
	return u, nil
}

// issue builds a signed-in session for u.
func (b *Backend) issue(u *users.User, provider string) (*session.Session, error) {
	access, exp, err := b.tokens.Issue(u.ID, u.Email, u.Role, provider)
	if err != nil {
		return nil, fmt.Errorf("local: issue token: %w", err)
	}
	refresh, err := crypto.GenerateToken()
	if err != nil {
		return nil, fmt.Errorf("local: refresh token: %w", err)
	}
	return &session.Session{
		UserID:       u.ID,
		Email:        u.Email,
		Role:         u.Role,
		Provider:     provider,
		AccessToken:  access,
		RefreshToken: refresh,
		ExpiresAt:    exp,
	}, nil
}

func createError(err error) error {
	if errors.Is(err, users.ErrDuplicateEmail) {
		return &signup.BackendError{Message: MsgAlreadyRegistered, Status: http.StatusUnprocessableEntity, Err: err}
	}
	return fmt.Errorf("local: create user: %w", err)
}
