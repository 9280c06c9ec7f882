package oauth2

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"
)

// fakeProvider serves a token endpoint plus Google and GitHub style
// profile endpoints.
func fakeProvider(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/token", func(w http.ResponseWriter, r *http.Request) {
		_ = r.ParseForm()
		if r.PostForm.Get("code") != "good-code" {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusBadRequest)
			_, _ = w.Write([]byte(`{"error":"invalid_grant"}`))
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"access_token":  "provider-access",
			"refresh_token": "provider-refresh",
			"token_type":    "Bearer",
			"expires_in":    3600,
		})
	})
	authorized := func(r *http.Request) bool {
		return r.Header.Get("Authorization") == "Bearer provider-access"
	}
	mux.HandleFunc("/userinfo", func(w http.ResponseWriter, r *http.Request) {
		if !authorized(r) {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"id": "g-123", "email": "owner@example.com", "verified_email": true, "name": "Owner",
		})
	})
	mux.HandleFunc("/user", func(w http.ResponseWriter, r *http.Request) {
		if !authorized(r) {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"id": 42, "login": "octo"})
	})
	mux.HandleFunc("/user/emails", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode([]map[string]any{
			{"email": "other@example.com", "primary": false, "verified": true},
			{"email": "octo@example.com", "primary": true, "verified": true},
		})
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func endpoint(srv *httptest.Server) oauth2.Endpoint {
	return oauth2.Endpoint{
		AuthURL:   srv.URL + "/authorize",
		TokenURL:  srv.URL + "/token",
		AuthStyle: oauth2.AuthStyleInParams,
	}
}

func stateFrom(t *testing.T, authURL string) string {
	t.Helper()
	u, err := url.Parse(authURL)
	require.NoError(t, err)
	state := u.Query().Get("state")
	require.NotEmpty(t, state)
	return state
}

func TestGoogle_Flow(t *testing.T) {
	srv := fakeProvider(t)
	p, err := Google(GoogleConfig{
		ClientID:     "cid",
		ClientSecret: "secret",
		RedirectURL:  "https://docverify.example/auth/google/callback",
		StateStore:   NewMemoryStateStore(),
		Endpoint:     endpoint(srv),
		UserInfoURL:  srv.URL + "/userinfo",
	}, nil)
	require.NoError(t, err)
	assert.Equal(t, "google", p.Name())

	ctx := context.Background()
	authURL, err := p.Begin(ctx, "validator")
	require.NoError(t, err)
	assert.Contains(t, authURL, srv.URL+"/authorize")
	assert.Contains(t, authURL, "client_id=cid")
	state := stateFrom(t, authURL)

	user, payload, err := p.Finish(ctx, state, "good-code")
	require.NoError(t, err)
	assert.Equal(t, "validator", payload)
	assert.Equal(t, "g-123", user.ID)
	assert.Equal(t, "owner@example.com", user.Email)
	assert.Equal(t, "google", user.Provider)
	assert.Equal(t, "provider-access", user.AccessToken)
	assert.Equal(t, "provider-refresh", user.RefreshToken)
	assert.False(t, user.TokenExpiry.IsZero())

	// state is single use
	_, _, err = p.Finish(ctx, state, "good-code")
	assert.ErrorIs(t, err, ErrInvalidState)
}

func TestGitHub_FallsBackToEmailsEndpoint(t *testing.T) {
	srv := fakeProvider(t)
	p, err := GitHub(GitHubConfig{
		ClientID:     "cid",
		ClientSecret: "secret",
		RedirectURL:  "https://docverify.example/auth/github/callback",
		StateStore:   NewMemoryStateStore(),
		Endpoint:     endpoint(srv),
		APIBase:      srv.URL,
	}, nil)
	require.NoError(t, err)

	ctx := context.Background()
	authURL, err := p.Begin(ctx, "owner")
	require.NoError(t, err)

	user, _, err := p.Finish(ctx, stateFrom(t, authURL), "good-code")
	require.NoError(t, err)
	assert.Equal(t, "42", user.ID)
	assert.Equal(t, "octo@example.com", user.Email)
	assert.True(t, user.EmailVerified)
	assert.Equal(t, "octo", user.Name)
}

func TestFinish_Errors(t *testing.T) {
	srv := fakeProvider(t)
	p, err := Google(GoogleConfig{
		ClientID: "cid", ClientSecret: "secret", RedirectURL: "https://x/cb",
		StateStore: NewMemoryStateStore(), Endpoint: endpoint(srv), UserInfoURL: srv.URL + "/userinfo",
	}, nil)
	require.NoError(t, err)
	ctx := context.Background()

	_, _, err = p.Finish(ctx, "", "good-code")
	assert.ErrorIs(t, err, ErrInvalidState)

	_, _, err = p.Finish(ctx, "never-issued", "good-code")
	assert.ErrorIs(t, err, ErrInvalidState)

	authURL, err := p.Begin(ctx, "")
	require.NoError(t, err)
	_, _, err = p.Finish(ctx, stateFrom(t, authURL), "")
	assert.ErrorIs(t, err, ErrMissingCode)

	authURL, err = p.Begin(ctx, "")
	require.NoError(t, err)
	_, _, err = p.Finish(ctx, stateFrom(t, authURL), "bad-code")
	assert.Error(t, err)
	assert.NotErrorIs(t, err, ErrInvalidState)
}

func TestFinish_RejectsStateFromOtherProvider(t *testing.T) {
	srv := fakeProvider(t)
	states := NewMemoryStateStore()
	google, err := Google(GoogleConfig{
		ClientID: "cid", ClientSecret: "secret", RedirectURL: "https://x/auth/google/callback",
		StateStore: states, Endpoint: endpoint(srv), UserInfoURL: srv.URL + "/userinfo",
	}, nil)
	require.NoError(t, err)
	github, err := GitHub(GitHubConfig{
		ClientID: "cid", ClientSecret: "secret", RedirectURL: "https://x/auth/github/callback",
		StateStore: states, Endpoint: endpoint(srv), APIBase: srv.URL,
	}, nil)
	require.NoError(t, err)
	ctx := context.Background()

	authURL, err := google.Begin(ctx, "owner")
	require.NoError(t, err)
	_, _, err = github.Finish(ctx, stateFrom(t, authURL), "good-code")
	assert.ErrorIs(t, err, ErrInvalidState)
}

func TestProviderConfigValidation(t *testing.T) {
	_, err := Google(GoogleConfig{ClientSecret: "s", RedirectURL: "r", StateStore: NewMemoryStateStore()}, nil)
	assert.Error(t, err)
	_, err = GitHub(GitHubConfig{ClientID: "c", ClientSecret: "s", RedirectURL: "r"}, nil)
	assert.Error(t, err)
	_, err = NewProvider(Config{OAuth2Config: &oauth2.Config{}})
	assert.Error(t, err)
}

func TestStateStores(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	stores := map[string]StateStore{
		"memory": NewMemoryStateStore(),
		"redis":  NewRedisStateStore(client, ""),
	}
	for name, store := range stores {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			require.NoError(t, store.Save(ctx, "s1", "owner", time.Now().Add(time.Minute)))

			payload, ok, err := store.Consume(ctx, "s1")
			require.NoError(t, err)
			assert.True(t, ok)
			assert.Equal(t, "owner", payload)

			_, ok, err = store.Consume(ctx, "s1")
			require.NoError(t, err)
			assert.False(t, ok)

			require.NoError(t, store.Save(ctx, "old", "owner", time.Now().Add(-time.Second)))
			_, ok, err = store.Consume(ctx, "old")
			require.NoError(t, err)
			assert.False(t, ok)
		})
	}

	assert.False(t, mr.Exists(DefaultStateKeyPrefix+"s1"))
}

func TestMemoryStateStore_Cleanup(t *testing.T) {
	s := NewMemoryStateStore()
	ctx := context.Background()
	require.NoError(t, s.Save(ctx, "live", "", time.Now().Add(time.Minute)))
	require.NoError(t, s.Save(ctx, "dead", "", time.Now().Add(-time.Minute)))
	assert.Equal(t, 1, s.Cleanup())
}

func TestRedisStateStore_TTL(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	s := NewRedisStateStore(client, "test:state:")
	ctx := context.Background()
	require.NoError(t, s.Save(ctx, "abc", "owner", time.Now().Add(time.Minute)))
	assert.True(t, mr.Exists("test:state:abc"))
	assert.Greater(t, mr.TTL("test:state:abc"), time.Duration(0))

	mr.FastForward(2 * time.Minute)
	_, ok, err := s.Consume(ctx, "abc")
	require.NoError(t, err)
	assert.False(t, ok)
}
