// Package hosted is a signup backend that delegates to a hosted
// GoTrue-compatible auth API (the /auth/v1 endpoints).
package hosted

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/dalemusser/docverify/internal/signup"
	"github.com/dalemusser/docverify/pantry/auth/oauth2"
	"github.com/dalemusser/docverify/pantry/auth/token"
	"github.com/dalemusser/docverify/pantry/crypto"
	"github.com/dalemusser/docverify/pantry/session"
	"github.com/dalemusser/docverify/pantry/timeout"
	"go.uber.org/zap"
	xoauth2 "golang.org/x/oauth2"
)

// MsgInvalidState is returned when a callback's state is unknown or used.
const MsgInvalidState = "Sign-in link is invalid or has expired"

// Config wires a Backend.
type Config struct {
	// BaseURL is the project URL; endpoints live under /auth/v1.
	BaseURL string

	// APIKey is sent as the apikey header and bearer token.
	APIKey string

	// CallbackURL is where the auth service sends the browser after a
	// provider signup, e.g. "https://docverify.example/auth/{provider}/callback".
	// "{provider}" is replaced with the provider name.
	CallbackURL string

	// States holds PKCE verifiers between redirect and callback.
	// Default: an in-memory store.
	States oauth2.StateStore

	// HTTPClient defaults to timeout.NewClient with its defaults.
	HTTPClient *http.Client

	Logger *zap.Logger
}

// Backend implements signup.Backend against the hosted API.
type Backend struct {
	base     string
	apiKey   string
	callback string
	states   oauth2.StateStore
	client   *http.Client
	logger   *zap.Logger
	now      func() time.Time
}

var _ signup.Backend = (*Backend)(nil)

// pendingTTL bounds how long a provider redirect stays usable.
const pendingTTL = 10 * time.Minute

// New validates cfg and returns a Backend.
func New(cfg Config) (*Backend, error) {
	base := strings.TrimRight(cfg.BaseURL, "/")
	if base == "" {
		return nil, errors.New("hosted: BaseURL is required")
	}
	if _, err := url.ParseRequestURI(base); err != nil {
		return nil, fmt.Errorf("hosted: BaseURL: %w", err)
	}
	if cfg.APIKey == "" {
		return nil, errors.New("hosted: APIKey is required")
	}
	b := &Backend{
		base:     base,
		apiKey:   cfg.APIKey,
		callback: cfg.CallbackURL,
		states:   cfg.States,
		client:   cfg.HTTPClient,
		logger:   cfg.Logger,
		now:      time.Now,
	}
	if b.states == nil {
		b.states = oauth2.NewMemoryStateStore()
	}
	if b.client == nil {
		b.client = timeout.NewClient(timeout.ClientConfig{})
	}
	if b.logger == nil {
		b.logger = zap.NewNop()
	}
	return b, nil
}

type signupRequest struct {
	Email    string         `json:"email"`
	Password string         `json:"password"`
	Data     map[string]any `json:"data,omitempty"`
}

type pkceRequest struct {
	AuthCode     string `json:"auth_code"`
	CodeVerifier string `json:"code_verifier"`
}

// authResponse covers both shapes /signup returns: a session when the
// account is usable immediately, or a bare user when confirmation is
// pending.
type authResponse struct {
	AccessToken  string   `json:"access_token"`
	RefreshToken string   `json:"refresh_token"`
	ExpiresIn    int64    `json:"expires_in"`
	User         *apiUser `json:"user"`

	// bare user fields
	ID    string `json:"id"`
	Email string `json:"email"`
}

type apiUser struct {
	ID           string         `json:"id"`
	Email        string         `json:"email"`
	UserMetadata map[string]any `json:"user_metadata"`
}

// SignUpWithPassword calls POST /auth/v1/signup.
func (b *Backend) SignUpWithPassword(ctx context.Context, reg signup.Registration) (*session.Session, error) {
	var resp authResponse
	err := b.do(ctx, http.MethodPost, "/auth/v1/signup", nil, signupRequest{
		Email:    reg.Email,
		Password: reg.Password,
		Data:     map[string]any{"role": string(reg.Role)},
	}, &resp)
	if err != nil {
		return nil, err
	}
	sess := b.toSession(resp, "email")
	if sess.Role == "" {
		sess.Role = string(reg.Role)
	}
	return sess, nil
}

// SignUpWithProvider builds the /auth/v1/authorize URL for provider with a
// PKCE challenge. The provider, role and verifier are kept under a fresh
// state value which the callback URL carries back.
func (b *Backend) SignUpWithProvider(ctx context.Context, provider string, role signup.Role) (*session.Session, error) {
	state, err := crypto.GenerateToken()
	if err != nil {
		return nil, fmt.Errorf("hosted: state: %w", err)
	}
	verifier := xoauth2.GenerateVerifier()
	expiresAt := b.now().Add(pendingTTL)
	if err := b.states.Save(ctx, state, provider+"|"+string(role)+"|"+verifier, expiresAt); err != nil {
		return nil, fmt.Errorf("hosted: save state: %w", err)
	}

	redirectTo, err := b.callbackURL(provider, state)
	if err != nil {
		return nil, err
	}
	q := url.Values{}
	q.Set("provider", provider)
	q.Set("redirect_to", redirectTo)
	q.Set("code_challenge", xoauth2.S256ChallengeFromVerifier(verifier))
	q.Set("code_challenge_method", "s256")

	return &session.Session{
		Provider:    provider,
		Role:        string(role),
		RedirectURL: b.base + "/auth/v1/authorize?" + q.Encode(),
		ExpiresAt:   expiresAt,
	}, nil
}

// CompleteProvider exchanges the callback code with grant_type=pkce.
func (b *Backend) CompleteProvider(ctx context.Context, provider, state, code string) (*session.Session, error) {
	payload, ok, err := b.states.Consume(ctx, state)
	if err != nil {
		return nil, fmt.Errorf("hosted: load state: %w", err)
	}
	parts := strings.SplitN(payload, "|", 3)
	if !ok || len(parts) != 3 || parts[0] != provider || code == "" {
		return nil, &signup.BackendError{Message: MsgInvalidState, Status: http.StatusBadRequest}
	}

	var resp authResponse
	role, verifier := parts[1], parts[2]
	q := url.Values{"grant_type": {"pkce"}}
	if err := b.do(ctx, http.MethodPost, "/auth/v1/token", q, pkceRequest{AuthCode: code, CodeVerifier: verifier}, &resp); err != nil {
		return nil, err
	}
	sess := b.toSession(resp, provider)
	if sess.Role == "" {
		sess.Role = role
	}
	return sess, nil
}

func (b *Backend) callbackURL(provider, state string) (string, error) {
	if b.callback == "" {
		return "", errors.New("hosted: CallbackURL is required for provider signups")
	}
	u, err := url.Parse(strings.ReplaceAll(b.callback, "{provider}", url.PathEscape(provider)))
	if err != nil {
		return "", fmt.Errorf("hosted: CallbackURL: %w", err)
	}
	q := u.Query()
	q.Set("state", state)
	u.RawQuery = q.Encode()
	return u.String(), nil
}

func (b *Backend) toSession(resp authResponse, provider string) *session.Session {
	sess := &session.Session{
		Provider:     provider,
		AccessToken:  resp.AccessToken,
		RefreshToken: resp.RefreshToken,
		UserID:       resp.ID,
		Email:        resp.Email,
	}
	if resp.User != nil {
		sess.UserID = resp.User.ID
		sess.Email = resp.User.Email
		if role, ok := resp.User.UserMetadata["role"].(string); ok {
			sess.Role = role
		}
	}

	if resp.AccessToken == "" {
		b.logger.Info("signup awaiting confirmation", zap.String("user_id", sess.UserID))
		return sess
	}

	// the token's exp claim is authoritative; expires_in is the fallback
	// (its role claim is the database role, not ours)
	claims, err := token.ParseUnverified(resp.AccessToken)
	if err == nil && claims.ExpiresAt != nil {
		sess.ExpiresAt = claims.ExpiresAt.Time
	} else if resp.ExpiresIn > 0 {
		sess.ExpiresAt = b.now().Add(time.Duration(resp.ExpiresIn) * time.Second)
	}
	return sess
}

// do sends a JSON request and decodes a 2xx JSON response into out.
// Non-2xx responses become *signup.BackendError.
func (b *Backend) do(ctx context.Context, method, path string, query url.Values, body, out any) error {
	var rdr io.Reader
	if body != nil {
		buf, err := json.Marshal(body)
		if err != nil {
			return err
		}
		rdr = bytes.NewReader(buf)
	}

	u := b.base + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, method, u, rdr)
	if err != nil {
		return err
	}
	req.Header.Set("apikey", b.apiKey)
	req.Header.Set("Authorization", "Bearer "+b.apiKey)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := b.client.Do(req)
	if err != nil {
		return fmt.Errorf("hosted: %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("hosted: read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return apiError(resp.StatusCode, data)
	}
	if out == nil || len(data) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("hosted: decode response: %w", err)
	}
	return nil
}

type errorBody struct {
	Msg              string `json:"msg"`
	ErrorDescription string `json:"error_description"`
	Message          string `json:"message"`
	Error            string `json:"error"`
}

// apiError extracts the service's message. The first non-empty of msg,
// error_description, message and error wins.
func apiError(status int, data []byte) error {
	var eb errorBody
	_ = json.Unmarshal(data, &eb)
	msg := firstNonEmpty(eb.Msg, eb.ErrorDescription, eb.Message, eb.Error)
	if msg == "" {
		msg = http.StatusText(status)
	}
	return &signup.BackendError{
		Message: msg,
		Status:  status,
		Err:     fmt.Errorf("hosted: status %d", status),
	}
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}
