package bootstrap

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/dalemusser/docverify/config"
	"github.com/dalemusser/docverify/pantry/email"
	"github.com/dalemusser/docverify/pantry/urlutil"
)

// Auth backends selectable with auth_backend.
const (
	BackendLocal  = "local"
	BackendHosted = "hosted"
)

// appKeys are the docverify settings on top of the core config.
var appKeys = []config.AppKey{
	{Name: "auth_backend", Default: BackendLocal, Desc: "Signup backend: local | hosted"},

	{Name: "database_driver", Default: "sqlite", Desc: "User store driver: sqlite | postgres | memory"},
	{Name: "database_dsn", Default: "docverify.db", Desc: "User store DSN (file path for sqlite)"},
	{Name: "redis_addr", Default: "", Desc: "Redis address or URL for sessions and OAuth state; empty keeps them in memory"},

	{Name: "session_ttl", Default: "24h", Desc: "Session lifetime"},
	{Name: "session_secure_cookie", Default: false, Desc: "Set the Secure flag on the session cookie"},
	{Name: "after_signup_url", Default: "/dashboard", Desc: "Where provider callbacks redirect"},

	{Name: "jwt_secret", Default: "", Desc: "HS256 key for local access tokens (32+ bytes)"},
	{Name: "jwt_issuer", Default: "docverify", Desc: "Issuer claim for local access tokens"},

	{Name: "hosted_auth_url", Default: "", Desc: "Hosted auth project URL"},
	{Name: "hosted_auth_key", Default: "", Desc: "Hosted auth API key"},
	{Name: "hosted_callback_url", Default: "", Desc: "Provider callback URL; {provider} is replaced"},

	{Name: "google_client_id", Default: "", Desc: "Google OAuth client ID (local backend)"},
	{Name: "google_client_secret", Default: "", Desc: "Google OAuth client secret"},
	{Name: "google_redirect_url", Default: "", Desc: "Google OAuth redirect URL"},
	{Name: "github_client_id", Default: "", Desc: "GitHub OAuth client ID (local backend)"},
	{Name: "github_client_secret", Default: "", Desc: "GitHub OAuth client secret"},
	{Name: "github_redirect_url", Default: "", Desc: "GitHub OAuth redirect URL"},

	{Name: "smtp_host", Default: "", Desc: "SMTP host for notice emails; empty disables them"},
	{Name: "smtp_port", Default: 587, Desc: "SMTP port"},
	{Name: "smtp_username", Default: "", Desc: "SMTP username"},
	{Name: "smtp_password", Default: "", Desc: "SMTP password"},
	{Name: "smtp_from", Default: "", Desc: "Sender address for notice emails"},
	{Name: "smtp_from_name", Default: "docverify", Desc: "Sender display name"},

	{Name: "signup_rate_per_minute", Default: 10, Desc: "Signup attempts per minute per client IP; 0 disables"},
	{Name: "signup_burst", Default: 5, Desc: "Signup burst per client IP"},
}

// OAuthClient is one provider's client registration.
type OAuthClient struct {
	ID          string
	Secret      string
	RedirectURL string
}

// Enabled reports whether the provider is configured.
func (c OAuthClient) Enabled() bool { return c.ID != "" }

// AppConfig holds docverify's settings.
type AppConfig struct {
	AuthBackend string

	DatabaseDriver string
	DatabaseDSN    string
	RedisAddr      string

	SessionTTL          time.Duration
	SessionSecureCookie bool
	AfterSignupURL      string

	JWTSecret string
	JWTIssuer string

	HostedAuthURL     string
	HostedAuthKey     string
	HostedCallbackURL string

	Google OAuthClient
	GitHub OAuthClient

	SMTP email.Config

	SignupPerMinute int
	SignupBurst     int
}

// newAppConfig converts the resolved key values and checks that the
// selected backend has what it needs.
func newAppConfig(v config.AppConfigValues) (AppConfig, error) {
	cfg := AppConfig{
		AuthBackend:         strings.ToLower(strings.TrimSpace(v.String("auth_backend"))),
		DatabaseDriver:      strings.ToLower(strings.TrimSpace(v.String("database_driver"))),
		DatabaseDSN:         v.String("database_dsn"),
		RedisAddr:           strings.TrimSpace(v.String("redis_addr")),
		SessionTTL:          v.Duration("session_ttl", 24*time.Hour),
		SessionSecureCookie: v.Bool("session_secure_cookie"),
		AfterSignupURL:      v.String("after_signup_url"),
		JWTSecret:           v.String("jwt_secret"),
		JWTIssuer:           v.String("jwt_issuer"),
		HostedAuthURL:       v.String("hosted_auth_url"),
		HostedAuthKey:       v.String("hosted_auth_key"),
		HostedCallbackURL:   v.String("hosted_callback_url"),
		Google: OAuthClient{
			ID:          v.String("google_client_id"),
			Secret:      v.String("google_client_secret"),
			RedirectURL: v.String("google_redirect_url"),
		},
		GitHub: OAuthClient{
			ID:          v.String("github_client_id"),
			Secret:      v.String("github_client_secret"),
			RedirectURL: v.String("github_redirect_url"),
		},
		SMTP: email.Config{
			Host:        v.String("smtp_host"),
			Port:        v.Int("smtp_port"),
			Username:    v.String("smtp_username"),
			Password:    v.String("smtp_password"),
			FromAddress: v.String("smtp_from"),
			FromName:    v.String("smtp_from_name"),
		},
		SignupPerMinute: v.Int("signup_rate_per_minute"),
		SignupBurst:     v.Int("signup_burst"),
	}

	var errs []error
	switch cfg.AuthBackend {
	case BackendLocal:
		switch cfg.DatabaseDriver {
		case "memory", "sqlite", "sqlite3", "postgres", "postgresql", "pgx":
		default:
			errs = append(errs, fmt.Errorf("database_driver: unsupported %q", cfg.DatabaseDriver))
		}
		if cfg.DatabaseDriver != "memory" && cfg.DatabaseDSN == "" {
			errs = append(errs, errors.New("database_dsn is required"))
		}
	case BackendHosted:
		if cfg.HostedAuthURL == "" || cfg.HostedAuthKey == "" {
			errs = append(errs, errors.New("hosted backend requires hosted_auth_url and hosted_auth_key"))
		} else if !urlutil.IsValidAbsHTTPURL(cfg.HostedAuthURL) {
			errs = append(errs, fmt.Errorf("hosted_auth_url: not an http(s) URL: %q", cfg.HostedAuthURL))
		}
		if cfg.HostedCallbackURL != "" && !urlutil.IsValidAbsHTTPURL(cfg.HostedCallbackURL) {
			errs = append(errs, fmt.Errorf("hosted_callback_url: not an http(s) URL: %q", cfg.HostedCallbackURL))
		}
	default:
		errs = append(errs, fmt.Errorf("auth_backend must be %q or %q, got %q", BackendLocal, BackendHosted, cfg.AuthBackend))
	}
	for name, c := range map[string]OAuthClient{"google": cfg.Google, "github": cfg.GitHub} {
		if c.Enabled() && !urlutil.IsValidAbsHTTPURL(c.RedirectURL) {
			errs = append(errs, fmt.Errorf("%s_redirect_url: not an http(s) URL: %q", name, c.RedirectURL))
		}
	}
	if cfg.SessionTTL <= 0 {
		errs = append(errs, errors.New("session_ttl must be positive"))
	}
	if cfg.SignupPerMinute < 0 || cfg.SignupBurst < 0 {
		errs = append(errs, errors.New("signup_rate_per_minute and signup_burst must not be negative"))
	}
	if cfg.SMTP.Host != "" && cfg.SMTP.FromAddress == "" {
		errs = append(errs, errors.New("smtp_from is required when smtp_host is set"))
	}
	return cfg, errors.Join(errs...)
}
