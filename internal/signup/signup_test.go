package signup

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/dalemusser/docverify/pantry/notify"
	"github.com/dalemusser/docverify/pantry/session"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeBackend struct {
	passwordCalls []Registration
	providerCalls []string
	roles         []Role
	err           error
	unconfirmed   bool
}

func (b *fakeBackend) SignUpWithPassword(_ context.Context, reg Registration) (*session.Session, error) {
	b.passwordCalls = append(b.passwordCalls, reg)
	if b.err != nil {
		return nil, b.err
	}
	if b.unconfirmed {
		return &session.Session{UserID: "user-1", Email: reg.Email}, nil
	}
	return &session.Session{
		UserID:      "user-1",
		Email:       reg.Email,
		AccessToken: "access",
		ExpiresAt:   time.Now().Add(time.Hour),
	}, nil
}

func (b *fakeBackend) SignUpWithProvider(_ context.Context, provider string, role Role) (*session.Session, error) {
	b.providerCalls = append(b.providerCalls, provider)
	b.roles = append(b.roles, role)
	if b.err != nil {
		return nil, b.err
	}
	return &session.Session{
		RedirectURL: "https://accounts.example/authorize?provider=" + provider,
		ExpiresAt:   time.Now().Add(10 * time.Minute),
	}, nil
}

func (b *fakeBackend) CompleteProvider(_ context.Context, provider, state, code string) (*session.Session, error) {
	if b.err != nil {
		return nil, b.err
	}
	if state != "good-state" {
		return nil, &BackendError{Message: "Invalid or expired sign-in link"}
	}
	return &session.Session{
		UserID:      "user-2",
		Email:       "octo@example.com",
		AccessToken: "access-" + code,
		RedirectURL: "leftover",
		ExpiresAt:   time.Now().Add(time.Hour),
	}, nil
}

type recorder struct {
	notices []notify.Notice
	to      []notify.Recipient
	err     error
}

func (r *recorder) Notify(_ context.Context, to notify.Recipient, n notify.Notice) error {
	r.notices = append(r.notices, n)
	r.to = append(r.to, to)
	return r.err
}

type harness struct {
	svc     *Service
	backend *fakeBackend
	store   *session.MemoryStore
	notes   *recorder
	metrics *Metrics
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	store := session.NewMemoryStore()
	t.Cleanup(func() { _ = store.Close() })

	h := &harness{
		backend: &fakeBackend{},
		store:   store,
		notes:   &recorder{},
		metrics: NewMetrics(),
	}
	svc, err := New(Config{
		Backend:  h.backend,
		Sessions: session.NewManager(store, session.Config{}),
		Notifier: h.notes,
		Metrics:  h.metrics,
	})
	require.NoError(t, err)
	h.svc = svc
	return h
}

func TestAttempt_EmailSuccessStoresSession(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	out, err := h.svc.Attempt(ctx, EmailMethod(), Credentials{Email: "owner@example.com", Password: "Passw0rd!"}, RoleValidator)
	require.NoError(t, err)

	require.Len(t, h.backend.passwordCalls, 1)
	assert.Equal(t, RoleValidator, h.backend.passwordCalls[0].Role)

	require.NotEmpty(t, out.Session.ID)
	stored, err := h.store.Load(ctx, out.Session.ID)
	require.NoError(t, err)
	assert.Equal(t, "owner@example.com", stored.Email)
	assert.Equal(t, "validator", stored.Role)
	assert.Equal(t, "email", stored.Provider)

	assert.Equal(t, "Account created", out.Notice.Title)
	assert.Equal(t, notify.KindSuccess, out.Notice.Kind)
	require.Len(t, h.notes.notices, 1)
	assert.Equal(t, "user-1", h.notes.to[0].UserID)

	assert.Equal(t, 1.0, testutil.ToFloat64(h.metrics.attempts.WithLabelValues("email", outcomeSuccess)))
	assert.Equal(t, 1.0, testutil.ToFloat64(h.metrics.checks.WithLabelValues("password", "valid")))
}

func TestAttempt_AwaitingConfirmationIsNotStored(t *testing.T) {
	h := newHarness(t)
	h.backend.unconfirmed = true

	out, err := h.svc.Attempt(context.Background(), EmailMethod(), Credentials{Email: "new@example.com", Password: "Passw0rd!"}, RoleOwner)
	require.NoError(t, err)

	assert.True(t, out.Session.AwaitingConfirmation())
	assert.Empty(t, out.Session.ID)
	assert.Equal(t, ConfirmEmailNotice, out.Notice)
	assert.Zero(t, h.store.Size())
	assert.Empty(t, h.notes.notices)
	assert.Equal(t, 1.0, testutil.ToFloat64(h.metrics.attempts.WithLabelValues("email", outcomeUnconfirmed)))
	assert.Equal(t, 0.0, testutil.ToFloat64(h.metrics.attempts.WithLabelValues("email", outcomeSuccess)))
}

func TestAttempt_InvalidCredentialsNeverReachBackend(t *testing.T) {
	tests := []struct {
		name       string
		creds      Credentials
		wantFields []string
	}{
		{"bad email", Credentials{Email: "not-an-email", Password: "Passw0rd!"}, []string{"email"}},
		{"weak password", Credentials{Email: "a@b.co", Password: "password"}, []string{"password"}},
		{"both", Credentials{Email: "", Password: ""}, []string{"email", "password"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t)
			_, err := h.svc.Attempt(context.Background(), EmailMethod(), tt.creds, RoleOwner)

			var ierr *InvalidCredentialsError
			require.ErrorAs(t, err, &ierr)
			assert.Equal(t, tt.wantFields, ierr.Result.InvalidFields())
			assert.Empty(t, h.backend.passwordCalls)
			assert.Equal(t, 0, h.store.Size())

			require.Len(t, h.notes.notices, 1)
			assert.Equal(t, "Signup failed", h.notes.notices[0].Title)
			assert.Equal(t, notify.KindError, h.notes.notices[0].Kind)
			assert.Equal(t, 1.0, testutil.ToFloat64(h.metrics.attempts.WithLabelValues("email", outcomeInvalid)))
		})
	}
}

func TestAttempt_ProviderSkipsValidator(t *testing.T) {
	h := newHarness(t)

	// credentials are ignored for the provider variant
	out, err := h.svc.Attempt(context.Background(), ProviderMethod("Google"), Credentials{Email: "junk"}, RoleOwner)
	require.NoError(t, err)

	assert.Equal(t, []string{"google"}, h.backend.providerCalls)
	assert.True(t, out.Session.Pending())
	assert.Equal(t, "google", out.Session.Provider)
	assert.Equal(t, "Redirecting to Google", out.Notice.Title)
	assert.Equal(t, notify.KindInfo, out.Notice.Kind)
	assert.Equal(t, 1, h.store.Size())
	assert.Equal(t, 0.0, testutil.ToFloat64(h.metrics.checks.WithLabelValues("email", "invalid")))
}

func TestAttempt_BackendMessagePassesThrough(t *testing.T) {
	h := newHarness(t)
	h.backend.err = &BackendError{Message: "User already registered", Status: 422}

	_, err := h.svc.Attempt(context.Background(), EmailMethod(), Credentials{Email: "dup@example.com", Password: "Passw0rd!"}, RoleOwner)

	var aerr *AuthError
	require.ErrorAs(t, err, &aerr)
	assert.Equal(t, "User already registered", aerr.Message)
	assert.Equal(t, "User already registered", err.Error())
	assert.Equal(t, KindEmail, aerr.Method.Kind())

	var berr *BackendError
	assert.ErrorAs(t, err, &berr)

	require.Len(t, h.notes.notices, 1)
	assert.Equal(t, notify.Failure("Signup failed", "User already registered"), h.notes.notices[0])
	assert.Len(t, h.backend.passwordCalls, 1, "no retry")
	assert.Equal(t, 0, h.store.Size())
}

func TestAttempt_NonBackendErrorIsMasked(t *testing.T) {
	h := newHarness(t)
	h.backend.err = errors.New("dial tcp 10.0.0.1:443: connection refused")

	_, err := h.svc.Attempt(context.Background(), ProviderMethod("github"), Credentials{}, RoleOwner)

	var aerr *AuthError
	require.ErrorAs(t, err, &aerr)
	assert.Equal(t, unavailableMessage, aerr.Message)
	assert.Contains(t, aerr.Unwrap().Error(), "connection refused")
}

func TestAttempt_NotifierFailureDoesNotFailSignup(t *testing.T) {
	h := newHarness(t)
	h.notes.err = errors.New("smtp down")

	out, err := h.svc.Attempt(context.Background(), EmailMethod(), Credentials{Email: "owner@example.com", Password: "Passw0rd!"}, RoleOwner)
	require.NoError(t, err)
	assert.NotNil(t, out.Session)
}

func TestAttempt_ZeroMethod(t *testing.T) {
	h := newHarness(t)
	_, err := h.svc.Attempt(context.Background(), Method{}, Credentials{}, RoleOwner)
	assert.ErrorIs(t, err, ErrUnknownMethod)
}

func TestComplete(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	out, err := h.svc.Complete(ctx, "github", "good-state", "abc")
	require.NoError(t, err)
	assert.False(t, out.Session.Pending())
	assert.Empty(t, out.Session.RedirectURL)
	assert.Equal(t, "github", out.Session.Provider)
	assert.Equal(t, "Signed up with GitHub.", out.Notice.Description)

	stored, err := h.store.Load(ctx, out.Session.ID)
	require.NoError(t, err)
	assert.Equal(t, "access-abc", stored.AccessToken)

	_, err = h.svc.Complete(ctx, "github", "bad-state", "abc")
	var aerr *AuthError
	require.ErrorAs(t, err, &aerr)
	assert.Equal(t, "Invalid or expired sign-in link", aerr.Message)
}

func TestNew_RequiresCollaborators(t *testing.T) {
	_, err := New(Config{Sessions: session.NewManager(session.NewMemoryStore(), session.Config{})})
	assert.Error(t, err)
	_, err = New(Config{Backend: &fakeBackend{}})
	assert.Error(t, err)
}

func TestParseMethod(t *testing.T) {
	tests := []struct {
		tag, provider string
		want          Method
		wantErr       bool
	}{
		{"email", "", EmailMethod(), false},
		{"EMAIL", "ignored", EmailMethod(), false},
		{"oauth", "google", ProviderMethod("google"), false},
		{"oauth", "", Method{}, true},
		{"github", "", ProviderMethod("github"), false},
		{"", "", Method{}, true},
	}
	for _, tt := range tests {
		got, err := ParseMethod(tt.tag, tt.provider)
		if tt.wantErr {
			assert.ErrorIs(t, err, ErrUnknownMethod, "%q/%q", tt.tag, tt.provider)
			continue
		}
		require.NoError(t, err)
		assert.Equal(t, tt.want, got)
	}
	assert.Equal(t, "oauth:google", ProviderMethod("Google").String())
	assert.Equal(t, "email", EmailMethod().String())
}

func TestParseRole(t *testing.T) {
	r, err := ParseRole("")
	require.NoError(t, err)
	assert.Equal(t, RoleOwner, r)

	r, err = ParseRole("Validator")
	require.NoError(t, err)
	assert.Equal(t, RoleValidator, r)

	_, err = ParseRole("admin")
	assert.ErrorIs(t, err, ErrInvalidRole)
}

func TestDisplayName(t *testing.T) {
	assert.Equal(t, "Google", DisplayName("google"))
	assert.Equal(t, "GitHub", DisplayName("github"))
	assert.Equal(t, "Éclair", DisplayName("éclair"))
	assert.Equal(t, "provider", DisplayName(""))
}
