// auth/oauth2/github.go
package oauth2

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/github"
)

const githubAPIBase = "https://api.github.com"

// GitHubConfig holds configuration for GitHub OAuth2 authentication.
type GitHubConfig struct {
	// ClientID is the GitHub OAuth2 client ID.
	ClientID string

	// ClientSecret is the GitHub OAuth2 client secret.
	ClientSecret string

	// RedirectURL is the callback URL registered with GitHub.
	// Example: "https://docverify.example/auth/github/callback"
	RedirectURL string

	// Scopes are the OAuth2 scopes to request.
	// Default: user:email, read:user
	Scopes []string

	// StateStore persists OAuth2 state for CSRF protection.
	StateStore StateStore

	// Endpoint and APIBase override GitHub's endpoints.
	Endpoint oauth2.Endpoint
	APIBase  string
}

// GitHub creates a new OAuth2 provider configured for GitHub authentication.
func GitHub(cfg GitHubConfig, logger *zap.Logger) (*Provider, error) {
	if cfg.ClientID == "" {
		return nil, errors.New("oauth2/github: ClientID is required")
	}
	if cfg.ClientSecret == "" {
		return nil, errors.New("oauth2/github: ClientSecret is required")
	}
	if cfg.RedirectURL == "" {
		return nil, errors.New("oauth2/github: RedirectURL is required")
	}
	if cfg.StateStore == nil {
		return nil, errors.New("oauth2/github: StateStore is required")
	}

	scopes := cfg.Scopes
	if len(scopes) == 0 {
		scopes = []string{"user:email", "read:user"}
	}

	endpoint := cfg.Endpoint
	if endpoint.AuthURL == "" {
		endpoint = github.Endpoint
	}
	apiBase := strings.TrimRight(cfg.APIBase, "/")
	if apiBase == "" {
		apiBase = githubAPIBase
	}

	return NewProvider(Config{
		Name: "github",
		OAuth2Config: &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			RedirectURL:  cfg.RedirectURL,
			Scopes:       scopes,
			Endpoint:     endpoint,
		},
		FetchUserInfo: githubUserInfoFetcher(apiBase),
		StateStore:    cfg.StateStore,
		Logger:        logger,
	})
}

// githubUserInfo represents the response from GitHub's user endpoint.
type githubUserInfo struct {
	ID        int64  `json:"id"`
	Login     string `json:"login"`
	Name      string `json:"name"`
	Email     string `json:"email"`
	AvatarURL string `json:"avatar_url"`
}

// githubEmail represents an email from GitHub's emails endpoint.
type githubEmail struct {
	Email    string `json:"email"`
	Primary  bool   `json:"primary"`
	Verified bool   `json:"verified"`
}

func githubUserInfoFetcher(apiBase string) UserInfoFetcher {
	return func(ctx context.Context, token *oauth2.Token) (*User, error) {
		client := oauth2.NewClient(ctx, oauth2.StaticTokenSource(token))

		resp, err := client.Get(apiBase + "/user")
		if err != nil {
			return nil, fmt.Errorf("failed to fetch user info: %w", err)
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			return nil, fmt.Errorf("unexpected status code: %d", resp.StatusCode)
		}

		var info githubUserInfo
		if err := json.NewDecoder(resp.Body).Decode(&info); err != nil {
			return nil, fmt.Errorf("failed to decode user info: %w", err)
		}

		// If email is not public, fetch from emails endpoint
		email := info.Email
		emailVerified := true
		if email == "" {
			email, emailVerified, _ = fetchGitHubPrimaryEmail(client, apiBase)
		}

		name := info.Name
		if name == "" {
			name = info.Login
		}

		return &User{
			ID:            strconv.FormatInt(info.ID, 10),
			Email:         email,
			EmailVerified: emailVerified,
			Name:          name,
			Picture:       info.AvatarURL,
		}, nil
	}
}

// fetchGitHubPrimaryEmail retrieves the primary verified email from GitHub.
func fetchGitHubPrimaryEmail(client *http.Client, apiBase string) (string, bool, error) {
	resp, err := client.Get(apiBase + "/user/emails")
	if err != nil {
		return "", false, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", false, fmt.Errorf("unexpected status code: %d", resp.StatusCode)
	}

	var emails []githubEmail
	if err := json.NewDecoder(resp.Body).Decode(&emails); err != nil {
		return "", false, err
	}

	for _, e := range emails {
		if e.Primary && e.Verified {
			return e.Email, true, nil
		}
	}
	for _, e := range emails {
		if e.Verified {
			return e.Email, true, nil
		}
	}
	if len(emails) > 0 {
		return emails[0].Email, emails[0].Verified, nil
	}
	return "", false, nil
}
