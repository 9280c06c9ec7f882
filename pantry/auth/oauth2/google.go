// auth/oauth2/google.go
package oauth2

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"go.uber.org/zap"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
)

const googleUserInfoURL = "https://www.googleapis.com/oauth2/v2/userinfo"

// GoogleConfig holds configuration for Google OAuth2 authentication.
type GoogleConfig struct {
	// ClientID is the Google OAuth2 client ID.
	ClientID string

	// ClientSecret is the Google OAuth2 client secret.
	ClientSecret string

	// RedirectURL is the callback URL registered with Google.
	// Example: "https://docverify.example/auth/google/callback"
	RedirectURL string

	// Scopes are the OAuth2 scopes to request.
	// Default: openid, email, profile
	Scopes []string

	// StateStore persists OAuth2 state for CSRF protection.
	StateStore StateStore

	// Endpoint and UserInfoURL override Google's endpoints. Tests point
	// them at a local server.
	Endpoint    oauth2.Endpoint
	UserInfoURL string
}

// Google creates a new OAuth2 provider configured for Google authentication.
func Google(cfg GoogleConfig, logger *zap.Logger) (*Provider, error) {
	if cfg.ClientID == "" {
		return nil, errors.New("oauth2/google: ClientID is required")
	}
	if cfg.ClientSecret == "" {
		return nil, errors.New("oauth2/google: ClientSecret is required")
	}
	if cfg.RedirectURL == "" {
		return nil, errors.New("oauth2/google: RedirectURL is required")
	}
	if cfg.StateStore == nil {
		return nil, errors.New("oauth2/google: StateStore is required")
	}

	scopes := cfg.Scopes
	if len(scopes) == 0 {
		scopes = []string{
			"openid",
			"https://www.googleapis.com/auth/userinfo.email",
			"https://www.googleapis.com/auth/userinfo.profile",
		}
	}

	endpoint := cfg.Endpoint
	if endpoint.AuthURL == "" {
		endpoint = google.Endpoint
	}
	userInfoURL := cfg.UserInfoURL
	if userInfoURL == "" {
		userInfoURL = googleUserInfoURL
	}

	return NewProvider(Config{
		Name: "google",
		OAuth2Config: &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			RedirectURL:  cfg.RedirectURL,
			Scopes:       scopes,
			Endpoint:     endpoint,
		},
		FetchUserInfo: googleUserInfoFetcher(userInfoURL),
		StateStore:    cfg.StateStore,
		Logger:        logger,
	})
}

// googleUserInfo represents the response from Google's userinfo endpoint.
type googleUserInfo struct {
	ID            string `json:"id"`
	Email         string `json:"email"`
	EmailVerified bool   `json:"verified_email"`
	Name          string `json:"name"`
	Picture       string `json:"picture"`
}

func googleUserInfoFetcher(url string) UserInfoFetcher {
	return func(ctx context.Context, token *oauth2.Token) (*User, error) {
		client := oauth2.NewClient(ctx, oauth2.StaticTokenSource(token))

		resp, err := client.Get(url)
		if err != nil {
			return nil, fmt.Errorf("failed to fetch user info: %w", err)
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			return nil, fmt.Errorf("unexpected status code: %d", resp.StatusCode)
		}

		var info googleUserInfo
		if err := json.NewDecoder(resp.Body).Decode(&info); err != nil {
			return nil, fmt.Errorf("failed to decode user info: %w", err)
		}

		return &User{
			ID:            info.ID,
			Email:         info.Email,
			EmailVerified: info.EmailVerified,
			Name:          info.Name,
			Picture:       info.Picture,
		}, nil
	}
}
