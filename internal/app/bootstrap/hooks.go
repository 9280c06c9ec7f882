// Package bootstrap wires docverify into the app lifecycle: config keys,
// store connections, migrations and the HTTP handler.
package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/dalemusser/docverify/app"
	"github.com/dalemusser/docverify/config"
	"github.com/dalemusser/docverify/internal/authbackend/hosted"
	"github.com/dalemusser/docverify/internal/authbackend/local"
	authhandlers "github.com/dalemusser/docverify/internal/handlers/auth"
	"github.com/dalemusser/docverify/internal/signup"
	"github.com/dalemusser/docverify/internal/users"
	"github.com/dalemusser/docverify/metrics"
	"github.com/dalemusser/docverify/pantry/auth/oauth2"
	"github.com/dalemusser/docverify/pantry/auth/token"
	"github.com/dalemusser/docverify/pantry/crypto"
	dbredis "github.com/dalemusser/docverify/pantry/db/redis"
	"github.com/dalemusser/docverify/pantry/email"
	"github.com/dalemusser/docverify/pantry/health"
	"github.com/dalemusser/docverify/pantry/notify"
	"github.com/dalemusser/docverify/pantry/session"
	"github.com/dalemusser/docverify/pantry/validate"
	"github.com/dalemusser/docverify/pantry/version"
	"github.com/dalemusser/docverify/router"
	"go.uber.org/zap"
)

// LoadConfig loads the core config and the docverify keys.
func LoadConfig(logger *zap.Logger) (*config.CoreConfig, AppConfig, error) {
	coreCfg, values, err := config.LoadWithAppConfig(logger, nil, appKeys)
	if err != nil {
		return nil, AppConfig{}, err
	}
	appCfg, err := newAppConfig(values)
	if err != nil {
		return nil, AppConfig{}, err
	}
	return coreCfg, appCfg, nil
}

// ConnectDB opens the user store (local backend only) and the session and
// OAuth state stores.
func ConnectDB(ctx context.Context, coreCfg *config.CoreConfig, appCfg AppConfig, logger *zap.Logger) (DBDeps, error) {
	deps := DBDeps{closers: &closers{}}

	if appCfg.AuthBackend == BackendLocal {
		if appCfg.DatabaseDriver == "memory" {
			deps.Users = users.NewMemoryStore()
			logger.Warn("using in-memory user store; accounts are lost on restart")
		} else {
			db, dialect, err := users.Open(appCfg.DatabaseDriver, appCfg.DatabaseDSN, coreCfg.DBConnectTimeout)
			if err != nil {
				return DBDeps{}, err
			}
			deps.SQL, deps.Dialect = db, dialect
			deps.Users = users.NewSQLStore(db, dialect)
			logger.Info("connected to user store", zap.String("dialect", string(dialect)))
		}
	}

	if appCfg.RedisAddr != "" {
		client, err := dbredis.Connect(appCfg.RedisAddr, coreCfg.DBConnectTimeout)
		if err != nil {
			closeDeps(deps, logger)
			return DBDeps{}, fmt.Errorf("connect redis: %w", err)
		}
		deps.Redis = client
		deps.Sessions = session.NewRedisStore(client)
		deps.States = oauth2.NewRedisStateStore(client, "")
		logger.Info("connected to redis")
	} else {
		deps.Sessions = session.NewMemoryStore()
		states := oauth2.NewMemoryStateStore()
		deps.stopStateCleanup = states.StartCleanupTask(5 * time.Minute)
		deps.States = states
	}
	return deps, nil
}

// EnsureSchema creates the users table when a SQL store is in use.
func EnsureSchema(ctx context.Context, coreCfg *config.CoreConfig, appCfg AppConfig, deps DBDeps, logger *zap.Logger) error {
	s, ok := deps.Users.(*users.SQLStore)
	if !ok {
		return nil
	}
	if err := s.Migrate(ctx); err != nil {
		return err
	}
	logger.Info("user store schema ready")
	return nil
}

// BuildHandler constructs the HTTP handler for the service.
func BuildHandler(coreCfg *config.CoreConfig, appCfg AppConfig, deps DBDeps, logger *zap.Logger) (http.Handler, error) {
	backend, err := newBackend(coreCfg, appCfg, deps, logger)
	if err != nil {
		return nil, err
	}

	sessions := session.NewManager(deps.Sessions, session.Config{
		MaxAge: appCfg.SessionTTL,
		Secure: appCfg.SessionSecureCookie || coreCfg.HTTP.UseHTTPS,
	})

	signupMetrics := signup.NewMetrics()
	metrics.Register(logger, signupMetrics.Collectors()...)

	svc, err := signup.New(signup.Config{
		Backend:   backend,
		Sessions:  sessions,
		Notifier:  newNotifier(appCfg, logger),
		Validator: validate.NewCredentialValidator(logger.Named("credentials")),
		Metrics:   signupMetrics,
		Logger:    logger.Named("signup"),
	})
	if err != nil {
		return nil, err
	}

	h, err := authhandlers.New(authhandlers.Config{
		Signup:          svc,
		Sessions:        sessions,
		Validator:       validate.NewCredentialValidator(logger.Named("credentials")),
		SignupPerMinute: float64(appCfg.SignupPerMinute),
		SignupBurst:     appCfg.SignupBurst,
		AfterSignupURL:  appCfg.AfterSignupURL,
		Logger:          logger,
	})
	if err != nil {
		return nil, err
	}
	deps.onShutdown(h.Close)

	r := router.New(coreCfg, logger)
	health.Mount(r, deps.healthChecks(), logger)
	r.Handle("/metrics", metrics.Handler())
	version.Mount(r)
	h.Routes(r)
	return r, nil
}

// Shutdown closes the stores opened by ConnectDB.
func Shutdown(ctx context.Context, deps DBDeps, logger *zap.Logger) error {
	closeDeps(deps, logger)
	return nil
}

func closeDeps(deps DBDeps, logger *zap.Logger) {
	deps.runShutdown()
	if deps.stopStateCleanup != nil {
		deps.stopStateCleanup()
	}
	// RedisStore.Close closes the shared client
	if deps.Sessions != nil {
		if err := deps.Sessions.Close(); err != nil {
			logger.Warn("closing session store", zap.Error(err))
		}
	} else if deps.Redis != nil {
		_ = deps.Redis.Close()
	}
	if deps.SQL != nil {
		if err := deps.SQL.Close(); err != nil {
			logger.Warn("closing user store", zap.Error(err))
		}
	}
}

func newBackend(coreCfg *config.CoreConfig, appCfg AppConfig, deps DBDeps, logger *zap.Logger) (signup.Backend, error) {
	if appCfg.AuthBackend == BackendHosted {
		return hosted.New(hosted.Config{
			BaseURL:     appCfg.HostedAuthURL,
			APIKey:      appCfg.HostedAuthKey,
			CallbackURL: appCfg.HostedCallbackURL,
			States:      deps.States,
			Logger:      logger.Named("hosted"),
		})
	}

	secret := appCfg.JWTSecret
	if secret == "" {
		if coreCfg.Env == "prod" {
			return nil, errors.New("jwt_secret is required in prod")
		}
		var err error
		if secret, err = crypto.RandomBase64URL(32); err != nil {
			return nil, err
		}
		logger.Warn("jwt_secret not set; using a random key, tokens will not survive a restart")
	}
	tokens, err := token.NewManager(token.Config{
		Secret: []byte(secret),
		Issuer: appCfg.JWTIssuer,
	})
	if err != nil {
		return nil, err
	}

	var providers []*oauth2.Provider
	if appCfg.Google.Enabled() {
		p, err := oauth2.Google(oauth2.GoogleConfig{
			ClientID:     appCfg.Google.ID,
			ClientSecret: appCfg.Google.Secret,
			RedirectURL:  appCfg.Google.RedirectURL,
			StateStore:   deps.States,
		}, logger)
		if err != nil {
			return nil, err
		}
		providers = append(providers, p)
	}
	if appCfg.GitHub.Enabled() {
		p, err := oauth2.GitHub(oauth2.GitHubConfig{
			ClientID:     appCfg.GitHub.ID,
			ClientSecret: appCfg.GitHub.Secret,
			RedirectURL:  appCfg.GitHub.RedirectURL,
			StateStore:   deps.States,
		}, logger)
		if err != nil {
			return nil, err
		}
		providers = append(providers, p)
	}

	return local.New(local.Config{
		Users:     deps.Users,
		Tokens:    tokens,
		Providers: providers,
		Logger:    logger.Named("local"),
	})
}

// newNotifier always logs notices and mails them too when SMTP is set.
func newNotifier(appCfg AppConfig, logger *zap.Logger) notify.Notifier {
	if appCfg.SMTP.Host == "" {
		return signupNotifier(logger, nil)
	}
	return signupNotifier(logger, email.NewSender(appCfg.SMTP))
}

// signupNotifier mails success notices only. Failure notices would go to
// whatever address an anonymous client typed and would tell it whether the
// address is registered.
func signupNotifier(logger *zap.Logger, mailer notify.Mailer) notify.Notifier {
	log := notify.NewLogNotifier(logger.Named("notify"))
	if mailer == nil {
		return log
	}
	return notify.Multi(log, notify.NewEmailNotifier(mailer, "docverify: ", notify.KindSuccess))
}

// Hooks wires docverify into the app lifecycle.
var Hooks = app.Hooks[AppConfig, DBDeps]{
	Name:         "docverify",
	LoadConfig:   LoadConfig,
	ConnectDB:    ConnectDB,
	EnsureSchema: EnsureSchema,
	BuildHandler: BuildHandler,
	Shutdown:     Shutdown,
}
