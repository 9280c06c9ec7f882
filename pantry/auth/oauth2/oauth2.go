// auth/oauth2/oauth2.go
package oauth2

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/dalemusser/docverify/pantry/crypto"
	"go.uber.org/zap"
	"golang.org/x/oauth2"
)

var (
	// ErrInvalidState is returned when a callback carries an unknown, reused
	// or expired state value.
	ErrInvalidState = errors.New("oauth2: invalid or expired state")

	// ErrMissingCode is returned when a callback has no authorization code.
	ErrMissingCode = errors.New("oauth2: missing authorization code")
)

// User represents the profile retrieved from an OAuth2 provider after a
// successful code exchange.
type User struct {
	ID            string    `json:"id"`             // Provider-specific user ID
	Email         string    `json:"email"`          // User's email address
	EmailVerified bool      `json:"email_verified"` // Whether email is verified by provider
	Name          string    `json:"name"`           // Display name
	Picture       string    `json:"picture"`        // Profile picture URL
	Provider      string    `json:"provider"`       // OAuth provider name (e.g., "google", "github")
	AccessToken   string    `json:"-"`              // OAuth access token (not serialized)
	RefreshToken  string    `json:"-"`              // OAuth refresh token (not serialized)
	TokenExpiry   time.Time `json:"token_expiry"`   // When the access token expires
}

// StateStore holds OAuth2 state values between the redirect and the callback.
// State is used to prevent CSRF attacks during the OAuth flow; the payload
// carries whatever the caller needs back on the callback (the signup role).
type StateStore interface {
	// Save stores a state value with its payload until expiresAt.
	Save(ctx context.Context, state, payload string, expiresAt time.Time) error

	// Consume removes a state and returns its payload. ok is false when the
	// state is unknown or expired. A state can be consumed only once.
	Consume(ctx context.Context, state string) (payload string, ok bool, err error)
}

// UserInfoFetcher retrieves user information from an OAuth2 provider.
// Each provider (Google, GitHub) has its own endpoint and response format.
type UserInfoFetcher func(ctx context.Context, token *oauth2.Token) (*User, error)

// Config holds the configuration for an OAuth2 provider.
type Config struct {
	// Name identifies this provider (e.g., "google", "github").
	Name string

	// OAuth2Config is the standard oauth2 configuration.
	OAuth2Config *oauth2.Config

	// FetchUserInfo retrieves user information after the code exchange.
	FetchUserInfo UserInfoFetcher

	// StateStore persists OAuth2 state for CSRF protection.
	StateStore StateStore

	// StateDuration controls how long OAuth2 state remains valid.
	// Default: 10 minutes.
	StateDuration time.Duration

	// Logger for logging authentication events.
	Logger *zap.Logger
}

// Provider runs the authorization code flow for one provider.
type Provider struct {
	config Config
	logger *zap.Logger
}

// NewProvider creates a new OAuth2 provider with the given configuration.
func NewProvider(cfg Config) (*Provider, error) {
	if cfg.OAuth2Config == nil {
		return nil, errors.New("oauth2: OAuth2Config is required")
	}
	if cfg.FetchUserInfo == nil {
		return nil, errors.New("oauth2: FetchUserInfo is required")
	}
	if cfg.StateStore == nil {
		return nil, errors.New("oauth2: StateStore is required")
	}
	if cfg.Name == "" {
		cfg.Name = "oauth2"
	}
	if cfg.StateDuration == 0 {
		cfg.StateDuration = 10 * time.Minute
	}

	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Provider{config: cfg, logger: logger}, nil
}

// Name returns the provider name.
func (p *Provider) Name() string { return p.config.Name }

// Begin generates and stores a state value and returns the provider's
// authorization URL the user should be sent to. The state is bound to this
// provider: providers sharing a StateStore reject each other's states.
func (p *Provider) Begin(ctx context.Context, payload string) (string, error) {
	state, err := crypto.GenerateToken()
	if err != nil {
		return "", fmt.Errorf("failed to generate state: %w", err)
	}

	expiresAt := time.Now().Add(p.config.StateDuration)
	if err := p.config.StateStore.Save(ctx, state, p.config.Name+"|"+payload, expiresAt); err != nil {
		p.logger.Error("failed to save OAuth2 state",
			zap.String("provider", p.config.Name),
			zap.Error(err),
		)
		return "", fmt.Errorf("failed to save state: %w", err)
	}

	url := p.config.OAuth2Config.AuthCodeURL(state, oauth2.AccessTypeOffline)

	p.logger.Debug("initiating OAuth2 flow",
		zap.String("provider", p.config.Name),
		zap.String("redirect_url", url),
	)
	return url, nil
}

// Finish validates the state, exchanges the code for tokens and fetches the
// user's profile. It returns the payload stored by Begin.
func (p *Provider) Finish(ctx context.Context, state, code string) (*User, string, error) {
	if state == "" {
		return nil, "", ErrInvalidState
	}
	stored, ok, err := p.config.StateStore.Consume(ctx, state)
	if err != nil {
		return nil, "", fmt.Errorf("failed to validate state: %w", err)
	}
	issuer, payload, _ := strings.Cut(stored, "|")
	if ok && issuer != p.config.Name {
		p.logger.Warn("OAuth2 state issued for another provider",
			zap.String("provider", p.config.Name),
			zap.String("issued_for", issuer),
		)
		return nil, "", ErrInvalidState
	}
	if !ok {
		p.logger.Warn("invalid or expired OAuth2 state",
			zap.String("provider", p.config.Name),
		)
		return nil, "", ErrInvalidState
	}
	if code == "" {
		return nil, "", ErrMissingCode
	}

	token, err := p.config.OAuth2Config.Exchange(ctx, code)
	if err != nil {
		p.logger.Error("failed to exchange OAuth2 code",
			zap.String("provider", p.config.Name),
			zap.Error(err),
		)
		return nil, "", fmt.Errorf("failed to exchange code: %w", err)
	}

	user, err := p.config.FetchUserInfo(ctx, token)
	if err != nil {
		p.logger.Error("failed to fetch user info",
			zap.String("provider", p.config.Name),
			zap.Error(err),
		)
		return nil, "", fmt.Errorf("failed to fetch user info: %w", err)
	}

	user.Provider = p.config.Name
	user.AccessToken = token.AccessToken
	user.RefreshToken = token.RefreshToken
	user.TokenExpiry = token.Expiry

	p.logger.Info("OAuth2 authentication successful",
		zap.String("provider", p.config.Name),
		zap.String("user_id", user.ID),
		zap.String("email", user.Email),
	)
	return user, payload, nil
}
