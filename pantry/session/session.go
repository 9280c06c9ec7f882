// Package session persists the session object an authentication backend
// returns after a successful signup, and ties it to the browser through a
// cookie holding the session ID.
package session

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"errors"
	"net/http"
	"time"
)

// Session is the identity an authentication backend hands back on signup.
//
// A pending session has a RedirectURL and no tokens yet: the user still has
// to finish a provider flow in the browser. A session with neither belongs
// to an account whose email address is not confirmed yet.
type Session struct {
	ID           string    `json:"id"`
	UserID       string    `json:"user_id,omitempty"`
	Email        string    `json:"email,omitempty"`
	Role         string    `json:"role,omitempty"`
	Provider     string    `json:"provider"`
	AccessToken  string    `json:"access_token,omitempty"`
	RefreshToken string    `json:"refresh_token,omitempty"`
	RedirectURL  string    `json:"redirect_url,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
	ExpiresAt    time.Time `json:"expires_at"`
}

// IsExpired returns true if the session has expired.
func (s *Session) IsExpired() bool {
	return time.Now().After(s.ExpiresAt)
}

// Pending reports whether the session still waits on a provider redirect.
func (s *Session) Pending() bool {
	return s.RedirectURL != "" && s.AccessToken == ""
}

// Confirmed reports whether the backend issued an access token. Only
// confirmed sessions authenticate requests.
func (s *Session) Confirmed() bool {
	return s.AccessToken != ""
}

// AwaitingConfirmation reports whether the account exists but must confirm
// its email address before it gets tokens.
func (s *Session) AwaitingConfirmation() bool {
	return s.AccessToken == "" && s.RedirectURL == ""
}

// MarshalBinary implements encoding.BinaryMarshaler.
func (s *Session) MarshalBinary() ([]byte, error) {
	return json.Marshal(s)
}

// UnmarshalBinary implements encoding.BinaryUnmarshaler.
func (s *Session) UnmarshalBinary(data []byte) error {
	return json.Unmarshal(data, s)
}

// Store defines the interface for session storage backends.
type Store interface {
	// Load retrieves a session by ID.
	// Returns ErrNotFound if the session doesn't exist and ErrExpired if it
	// has passed its expiry.
	Load(ctx context.Context, id string) (*Session, error)

	// Save stores a session under its ID.
	Save(ctx context.Context, s *Session) error

	// Delete removes a session by ID. Deleting a missing session is not an error.
	Delete(ctx context.Context, id string) error

	// Close releases any resources.
	Close() error
}

// Common errors
var (
	ErrNotFound       = errors.New("session: not found")
	ErrExpired        = errors.New("session: expired")
	ErrInvalidSession = errors.New("session: invalid session")
)

// NewID creates a cryptographically secure session ID.
func NewID() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}

// DefaultCookieName is the cookie under which the session ID is kept.
const DefaultCookieName = "docverify_session"

// Config configures the session manager.
type Config struct {
	// CookieName is the name of the session cookie.
	// Default: "docverify_session".
	CookieName string

	// MaxAge caps the cookie lifetime. Sessions that carry their own expiry
	// use the earlier of the two.
	// Default: 24 hours.
	MaxAge time.Duration

	// Path is the cookie path.
	// Default: "/".
	Path string

	// Domain is the cookie domain.
	// Default: "" (current domain).
	Domain string

	// Secure sets the Secure flag on the cookie.
	Secure bool

	// SameSite sets the SameSite attribute.
	// Default: http.SameSiteLaxMode.
	SameSite http.SameSite
}

// Manager binds stored sessions to requests through a cookie.
type Manager struct {
	store  Store
	config Config
}

// NewManager creates a session manager with the given store and config.
func NewManager(store Store, cfg Config) *Manager {
	if cfg.CookieName == "" {
		cfg.CookieName = DefaultCookieName
	}
	if cfg.MaxAge == 0 {
		cfg.MaxAge = 24 * time.Hour
	}
	if cfg.Path == "" {
		cfg.Path = "/"
	}
	if cfg.SameSite == 0 {
		cfg.SameSite = http.SameSiteLaxMode
	}
	return &Manager{store: store, config: cfg}
}

// CookieName returns the configured cookie name.
func (m *Manager) CookieName() string {
	return m.config.CookieName
}

// Store returns the underlying session store.
func (m *Manager) Store() Store {
	return m.store
}

// Save persists s, assigning an ID and expiry if missing.
func (m *Manager) Save(ctx context.Context, s *Session) error {
	if s == nil {
		return ErrInvalidSession
	}
	now := time.Now()
	if s.ID == "" {
		id, err := NewID()
		if err != nil {
			return err
		}
		s.ID = id
	}
	if s.CreatedAt.IsZero() {
		s.CreatedAt = now
	}
	if s.ExpiresAt.IsZero() || s.ExpiresAt.After(now.Add(m.config.MaxAge)) {
		s.ExpiresAt = now.Add(m.config.MaxAge)
	}
	return m.store.Save(ctx, s)
}

// Issue saves s and sets the session cookie on w.
func (m *Manager) Issue(w http.ResponseWriter, r *http.Request, s *Session) error {
	if err := m.Save(r.Context(), s); err != nil {
		return err
	}
	m.SetCookie(w, s)
	return nil
}

// SetCookie points the session cookie at an already saved session.
func (m *Manager) SetCookie(w http.ResponseWriter, s *Session) {
	http.SetCookie(w, &http.Cookie{
		Name:     m.config.CookieName,
		Value:    s.ID,
		Path:     m.config.Path,
		Domain:   m.config.Domain,
		MaxAge:   int(time.Until(s.ExpiresAt).Seconds()),
		Secure:   m.config.Secure,
		HttpOnly: true,
		SameSite: m.config.SameSite,
	})
}

// Current loads the session named by the request cookie.
// Expired sessions are deleted and reported as ErrExpired.
func (m *Manager) Current(r *http.Request) (*Session, error) {
	cookie, err := r.Cookie(m.config.CookieName)
	if err != nil || cookie.Value == "" {
		return nil, ErrNotFound
	}
	s, err := m.store.Load(r.Context(), cookie.Value)
	if err != nil {
		if errors.Is(err, ErrExpired) {
			_ = m.store.Delete(r.Context(), cookie.Value)
		}
		return nil, err
	}
	return s, nil
}

// Destroy deletes the current session (if any) and clears the cookie.
func (m *Manager) Destroy(w http.ResponseWriter, r *http.Request) error {
	var err error
	if cookie, cerr := r.Cookie(m.config.CookieName); cerr == nil && cookie.Value != "" {
		err = m.store.Delete(r.Context(), cookie.Value)
	}

	http.SetCookie(w, &http.Cookie{
		Name:     m.config.CookieName,
		Value:    "",
		Path:     m.config.Path,
		Domain:   m.config.Domain,
		MaxAge:   -1,
		Secure:   m.config.Secure,
		HttpOnly: true,
		SameSite: m.config.SameSite,
	})

	return err
}

// Close closes the underlying store.
func (m *Manager) Close() error {
	return m.store.Close()
}
