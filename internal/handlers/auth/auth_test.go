package auth

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/dalemusser/docverify/internal/authbackend/hosted"
	"github.com/dalemusser/docverify/internal/authbackend/local"
	"github.com/dalemusser/docverify/internal/signup"
	"github.com/dalemusser/docverify/internal/users"
	"github.com/dalemusser/docverify/pantry/auth/token"
	"github.com/dalemusser/docverify/pantry/crypto"
	"github.com/dalemusser/docverify/pantry/session"
	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const goodPassword = "Str0ng!pass"

type env struct {
	router   chi.Router
	sessions *session.Manager
}

func newEnv(t *testing.T, backend signup.Backend, cfg Config) *env {
	t.Helper()
	store := session.NewMemoryStore()
	t.Cleanup(func() { store.Close() })
	mgr := session.NewManager(store, session.Config{})

	svc, err := signup.New(signup.Config{Backend: backend, Sessions: mgr})
	require.NoError(t, err)

	cfg.Signup, cfg.Sessions = svc, mgr
	h, err := New(cfg)
	require.NoError(t, err)
	t.Cleanup(h.Close)

	r := chi.NewRouter()
	h.Routes(r)
	return &env{router: r, sessions: mgr}
}

func localBackend(t *testing.T) signup.Backend {
	t.Helper()
	tokens, err := token.NewManager(token.Config{Secret: []byte(strings.Repeat("k", 32))})
	require.NoError(t, err)
	b, err := local.New(local.Config{
		Users:      users.NewMemoryStore(),
		Tokens:     tokens,
		HashParams: crypto.TestArgon2Params(),
	})
	require.NoError(t, err)
	return b
}

func (e *env) do(method, path, body string, cookies ...*http.Cookie) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	req.RemoteAddr = "203.0.113.7:5000"
	for _, c := range cookies {
		req.AddCookie(c)
	}
	rec := httptest.NewRecorder()
	e.router.ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	return out
}

func sessionCookie(rec *httptest.ResponseRecorder) *http.Cookie {
	for _, c := range rec.Result().Cookies() {
		if c.Name == session.DefaultCookieName {
			return c
		}
	}
	return nil
}

type stubBackend struct {
	calls int
	err   error
}

func (b *stubBackend) SignUpWithPassword(context.Context, signup.Registration) (*session.Session, error) {
	b.calls++
	return nil, b.err
}

func (b *stubBackend) SignUpWithProvider(_ context.Context, provider string, _ signup.Role) (*session.Session, error) {
	b.calls++
	if b.err != nil {
		return nil, b.err
	}
	return &session.Session{RedirectURL: "https://accounts.example/authorize?p=" + provider}, nil
}

func (b *stubBackend) CompleteProvider(_ context.Context, provider, state, code string) (*session.Session, error) {
	b.calls++
	if state != "ok" {
		return nil, &signup.BackendError{Message: "Sign-in link is invalid or has expired"}
	}
	return &session.Session{UserID: "u-9", Email: "octo@example.com", AccessToken: "tok", Provider: provider}, nil
}

func TestValidateCredentials(t *testing.T) {
	e := newEnv(t, &stubBackend{}, Config{})

	tests := []struct {
		name             string
		body             string
		email, pass, all bool
	}{
		{"valid", `{"email":"test@example.com","password":"` + goodPassword + `"}`, true, true, true},
		{"bad email", `{"email":"invalidemail","password":"` + goodPassword + `"}`, false, true, false},
		{"weak password", `{"email":"test@example.com","password":"password"}`, true, false, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := e.do(http.MethodPost, "/api/credentials/validate", tt.body)
			require.Equal(t, http.StatusOK, rec.Code)
			got := decode(t, rec)
			assert.Equal(t, tt.email, got["isEmailValid"])
			assert.Equal(t, tt.pass, got["isPasswordValid"])
			assert.Equal(t, tt.all, got["isValid"])
		})
	}
}

func TestValidateCredentials_RejectsNonJSON(t *testing.T) {
	e := newEnv(t, &stubBackend{}, Config{})
	req := httptest.NewRequest(http.MethodPost, "/api/credentials/validate", strings.NewReader("email=x"))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rec := httptest.NewRecorder()
	e.router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnsupportedMediaType, rec.Code)
}

func TestSignup_EmailCreatesSession(t *testing.T) {
	e := newEnv(t, localBackend(t), Config{})

	rec := e.do(http.MethodPost, "/api/signup",
		`{"method":"email","email":"owner@example.com","password":"`+goodPassword+`","role":"owner"}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	body := decode(t, rec)
	notice := body["notice"].(map[string]any)
	assert.Equal(t, "Account created", notice["title"])
	sess := body["session"].(map[string]any)
	assert.Equal(t, "owner@example.com", sess["email"])
	assert.Equal(t, "owner", sess["role"])

	cookie := sessionCookie(rec)
	require.NotNil(t, cookie)
	assert.Equal(t, sess["id"], cookie.Value)

	rec = e.do(http.MethodGet, "/api/session", "", cookie)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "owner@example.com", decode(t, rec)["email"])

	rec = e.do(http.MethodPost, "/api/logout", "", cookie)
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = e.do(http.MethodGet, "/api/session", "", cookie)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

// unconfirmedBackend is a hosted backend whose auth API answers signups
// with a bare user, as it does while email confirmation is pending.
func unconfirmedBackend(t *testing.T) signup.Backend {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			Email string `json:"email"`
		}
		_ = json.NewDecoder(r.Body).Decode(&body)
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{"id": "user-1", "email": body.Email})
	}))
	t.Cleanup(srv.Close)
	b, err := hosted.New(hosted.Config{BaseURL: srv.URL, APIKey: "anon-key"})
	require.NoError(t, err)
	return b
}

func TestSignup_AwaitingConfirmationGetsNoSession(t *testing.T) {
	e := newEnv(t, unconfirmedBackend(t), Config{})

	rec := e.do(http.MethodPost, "/api/signup",
		`{"method":"email","email":"new@example.com","password":"`+goodPassword+`"}`)
	require.Equal(t, http.StatusAccepted, rec.Code, rec.Body.String())

	got := decode(t, rec)
	assert.Nil(t, got["session"])
	notice := got["notice"].(map[string]any)
	assert.Equal(t, "Confirm your email", notice["title"])
	assert.Equal(t, "Check your email to confirm your account.", notice["description"])
	assert.Nil(t, sessionCookie(rec))
}

func TestSignup_DuplicateEmail(t *testing.T) {
	e := newEnv(t, localBackend(t), Config{})
	body := `{"method":"email","email":"dup@example.com","password":"` + goodPassword + `"}`

	require.Equal(t, http.StatusCreated, e.do(http.MethodPost, "/api/signup", body).Code)

	rec := e.do(http.MethodPost, "/api/signup", body)
	require.Equal(t, http.StatusBadGateway, rec.Code)
	got := decode(t, rec)
	assert.Equal(t, "auth_failed", got["error"].(map[string]any)["code"])
	assert.Equal(t, local.MsgAlreadyRegistered, got["error"].(map[string]any)["message"])
	assert.Equal(t, local.MsgAlreadyRegistered, got["notice"].(map[string]any)["description"])
}

func TestSignup_InvalidCredentialsSkipBackend(t *testing.T) {
	backend := &stubBackend{}
	e := newEnv(t, backend, Config{})

	rec := e.do(http.MethodPost, "/api/signup", `{"method":"email","email":"invalidemail","password":"`+goodPassword+`"}`)
	require.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.Zero(t, backend.calls)

	got := decode(t, rec)
	errBody := got["error"].(map[string]any)
	assert.Equal(t, "invalid_credentials", errBody["code"])
	details := errBody["details"].(map[string]any)
	assert.Equal(t, false, details["isEmailValid"])
	assert.Equal(t, true, details["isPasswordValid"])
	assert.Equal(t, false, details["isValid"])
	assert.Equal(t, "Signup failed", got["notice"].(map[string]any)["title"])
	assert.Nil(t, sessionCookie(rec))
}

func TestSignup_BadRequest(t *testing.T) {
	e := newEnv(t, &stubBackend{}, Config{})

	tests := []struct {
		name string
		body string
	}{
		{"malformed", `{"method":`},
		{"unknown field", `{"method":"email","nickname":"x"}`},
		{"missing method", `{"email":"a@b.co"}`},
		{"oauth without provider", `{"method":"oauth"}`},
		{"bad role", `{"method":"email","role":"admin"}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := e.do(http.MethodPost, "/api/signup", tt.body)
			assert.Equal(t, http.StatusBadRequest, rec.Code, rec.Body.String())
		})
	}
}

func TestSignup_ProviderRedirects(t *testing.T) {
	backend := &stubBackend{}
	e := newEnv(t, backend, Config{})

	rec := e.do(http.MethodPost, "/api/signup", `{"method":"oauth","provider":"google","role":"validator"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	got := decode(t, rec)
	assert.Equal(t, "https://accounts.example/authorize?p=google", got["redirect_url"])
	assert.Equal(t, "Redirecting to Google", got["notice"].(map[string]any)["title"])
	assert.Nil(t, sessionCookie(rec), "pending sessions get no cookie")
}

func TestSignup_BackendMessagePassesThrough(t *testing.T) {
	backend := &stubBackend{err: &signup.BackendError{Message: "Signups are disabled"}}
	e := newEnv(t, backend, Config{})

	rec := e.do(http.MethodPost, "/api/signup", `{"method":"github"}`)
	require.Equal(t, http.StatusBadGateway, rec.Code)
	got := decode(t, rec)
	assert.Equal(t, "Signups are disabled", got["error"].(map[string]any)["message"])
	assert.Equal(t, "Signups are disabled", got["notice"].(map[string]any)["description"])
}

func TestProviderCallback(t *testing.T) {
	e := newEnv(t, &stubBackend{}, Config{AfterSignupURL: "/welcome"})

	rec := e.do(http.MethodGet, "/auth/github/callback?state=ok&code=abc", "")
	require.Equal(t, http.StatusFound, rec.Code)
	assert.Equal(t, "/welcome", rec.Header().Get("Location"))
	cookie := sessionCookie(rec)
	require.NotNil(t, cookie)

	rec = e.do(http.MethodGet, "/api/session", "", cookie)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "github", decode(t, rec)["provider"])

	rec = e.do(http.MethodGet, "/auth/github/callback?state=stale&code=abc", "")
	assert.Equal(t, http.StatusBadGateway, rec.Code)

	rec = e.do(http.MethodGet, "/auth/github/callback?code=abc", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = e.do(http.MethodGet, "/auth/github/callback?error=access_denied&error_description=User+cancelled", "")
	require.Equal(t, http.StatusBadGateway, rec.Code)
	assert.Equal(t, "User cancelled", decode(t, rec)["error"].(map[string]any)["message"])
}

func TestProviderCallback_IgnoresOffsiteRedirect(t *testing.T) {
	e := newEnv(t, &stubBackend{}, Config{AfterSignupURL: "//evil.example/phish"})

	rec := e.do(http.MethodGet, "/auth/google/callback?state=ok&code=abc", "")
	require.Equal(t, http.StatusFound, rec.Code)
	assert.Equal(t, "/dashboard", rec.Header().Get("Location"))
}

func TestSignup_RateLimited(t *testing.T) {
	e := newEnv(t, &stubBackend{}, Config{SignupPerMinute: 1, SignupBurst: 2})
	body := `{"method":"google"}`

	for i := 0; i < 2; i++ {
		require.Equal(t, http.StatusOK, e.do(http.MethodPost, "/api/signup", body).Code)
	}
	rec := e.do(http.MethodPost, "/api/signup", body)
	require.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.NotEmpty(t, rec.Header().Get("Retry-After"))
	assert.Equal(t, "too_many_requests", decode(t, rec)["error"].(map[string]any)["code"])
}

func TestSignup_RateLimitIgnoresForwardedFor(t *testing.T) {
	e := newEnv(t, &stubBackend{}, Config{SignupPerMinute: 1, SignupBurst: 1})

	accepted := 0
	for i := 0; i < 20; i++ {
		req := httptest.NewRequest(http.MethodPost, "/api/signup", strings.NewReader(`{"method":"google"}`))
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("X-Forwarded-For", fmt.Sprintf("10.0.0.%d", i))
		req.RemoteAddr = "203.0.113.7:5000"
		rec := httptest.NewRecorder()
		e.router.ServeHTTP(rec, req)
		if rec.Code == http.StatusOK {
			accepted++
		}
	}
	assert.Equal(t, 1, accepted)
}

func TestSession_RequiresCookie(t *testing.T) {
	e := newEnv(t, &stubBackend{}, Config{})
	rec := e.do(http.MethodGet, "/api/session", "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = e.do(http.MethodGet, "/api/session", "", &http.Cookie{Name: session.DefaultCookieName, Value: "nope"})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestNew_RequiresDependencies(t *testing.T) {
	_, err := New(Config{})
	assert.Error(t, err)
}
