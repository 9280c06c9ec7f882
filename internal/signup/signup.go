// Package signup runs a signup attempt against an authentication backend.
//
// An attempt is a tagged variant: the email variant checks the credential
// pair with the credential validator before anything leaves the process,
// the provider variant goes straight to the backend, which answers with a
// pending session carrying the URL the browser must visit next. The
// resulting session is stored, unless the account still has to confirm its
// email address, and a notice is produced for the user.
package signup

import (
	"context"
	"errors"
	"fmt"
	"unicode"
	"unicode/utf8"

	"github.com/dalemusser/docverify/pantry/notify"
	"github.com/dalemusser/docverify/pantry/session"
	"github.com/dalemusser/docverify/pantry/validate"
	"go.uber.org/zap"
)

// Backend is the external authentication service.
type Backend interface {
	// SignUpWithPassword creates an account and returns its session.
	SignUpWithPassword(ctx context.Context, reg Registration) (*session.Session, error)

	// SignUpWithProvider starts a provider flow and returns a pending
	// session whose RedirectURL the browser should follow.
	SignUpWithProvider(ctx context.Context, provider string, role Role) (*session.Session, error)

	// CompleteProvider finishes a provider flow from its callback.
	CompleteProvider(ctx context.Context, provider, state, code string) (*session.Session, error)
}

// SessionSaver persists sessions. *session.Manager satisfies it.
type SessionSaver interface {
	Save(ctx context.Context, s *session.Session) error
}

// Config wires a Service.
type Config struct {
	Backend  Backend
	Sessions SessionSaver

	// Optional.
	Notifier  notify.Notifier
	Validator *validate.CredentialValidator
	Metrics   *Metrics
	Logger    *zap.Logger
}

// Service runs signup attempts.
type Service struct {
	backend   Backend
	sessions  SessionSaver
	notifier  notify.Notifier
	validator *validate.CredentialValidator
	metrics   *Metrics
	logger    *zap.Logger
}

// Outcome is a successful attempt: the session and the notice shown to the
// user. A session that is AwaitingConfirmation is not stored and must not
// be bound to the browser.
type Outcome struct {
	Session *session.Session
	Notice  notify.Notice
}

// ConfirmEmailNotice is shown when the account was created but its email
// address must be confirmed before the user can sign in.
var ConfirmEmailNotice = notify.Info("Confirm your email", "Check your email to confirm your account.")

// New builds a Service. Backend and Sessions are required.
func New(cfg Config) (*Service, error) {
	if cfg.Backend == nil {
		return nil, errors.New("signup: Backend is required")
	}
	if cfg.Sessions == nil {
		return nil, errors.New("signup: Sessions is required")
	}
	s := &Service{
		backend:   cfg.Backend,
		sessions:  cfg.Sessions,
		notifier:  cfg.Notifier,
		validator: cfg.Validator,
		metrics:   cfg.Metrics,
		logger:    cfg.Logger,
	}
	if s.notifier == nil {
		s.notifier = notify.Nop
	}
	if s.logger == nil {
		s.logger = zap.NewNop()
	}
	if s.validator == nil {
		s.validator = validate.NewCredentialValidator(s.logger)
	}
	return s, nil
}

// Attempt signs a user up with method. creds is only read for the email
// variant. Failures are *InvalidCredentialsError (backend not called) or
// *AuthError (backend refused or failed); there is no retry.
func (s *Service) Attempt(ctx context.Context, method Method, creds Credentials, role Role) (*Outcome, error) {
	var (
		sess *session.Session
		err  error
	)
	to := notify.Recipient{}

	switch method.Kind() {
	case KindEmail:
		to.Email = creds.Email
		result := s.validator.Validate(creds.Email, creds.Password)
		s.metrics.check(result)
		if !result.IsValid {
			s.metrics.attempt(method, outcomeInvalid)
			ierr := &InvalidCredentialsError{Result: result}
			s.notify(ctx, to, NoticeFor(ierr))
			return nil, ierr
		}
		sess, err = s.backend.SignUpWithPassword(ctx, Registration{
			Email:    creds.Email,
			Password: creds.Password,
			Role:     role,
		})
	case KindProvider:
		sess, err = s.backend.SignUpWithProvider(ctx, method.Provider(), role)
	default:
		return nil, ErrUnknownMethod
	}

	if err != nil {
		return nil, s.fail(ctx, method, to, err)
	}
	if sess == nil {
		return nil, s.fail(ctx, method, to, errors.New("backend returned no session"))
	}
	if sess.Provider == "" {
		sess.Provider = providerLabel(method)
	}
	if sess.Role == "" {
		sess.Role = string(role)
	}
	if sess.AwaitingConfirmation() {
		return s.awaitingConfirmation(method, sess), nil
	}

	if err := s.sessions.Save(ctx, sess); err != nil {
		s.metrics.attempt(method, outcomeStoreError)
		s.logger.Error("failed to store session", zap.String("method", method.String()), zap.Error(err))
		return nil, fmt.Errorf("signup: store session: %w", err)
	}

	var n notify.Notice
	if method.Kind() == KindProvider {
		name := DisplayName(method.Provider())
		n = notify.Info("Redirecting to "+name, "Continue signing up with "+name+".")
	} else {
		n = notify.Success("Account created", "Signed up as "+sess.Email+".")
	}
	to.UserID, to.Email = sess.UserID, firstNonEmpty(sess.Email, to.Email)
	s.notify(ctx, to, n)
	s.metrics.attempt(method, outcomeSuccess)

	s.logger.Info("signup succeeded",
		zap.String("method", method.String()),
		zap.String("user_id", sess.UserID),
		zap.Bool("pending", sess.Pending()),
	)
	return &Outcome{Session: sess, Notice: n}, nil
}

// Complete finishes a provider signup from its callback and stores the
// resulting session.
func (s *Service) Complete(ctx context.Context, provider, state, code string) (*Outcome, error) {
	method := ProviderMethod(provider)
	sess, err := s.backend.CompleteProvider(ctx, method.Provider(), state, code)
	if err != nil {
		return nil, s.fail(ctx, method, notify.Recipient{}, err)
	}
	if sess == nil {
		return nil, s.fail(ctx, method, notify.Recipient{}, errors.New("backend returned no session"))
	}
	if sess.Provider == "" {
		sess.Provider = method.Provider()
	}
	sess.RedirectURL = ""
	if sess.AwaitingConfirmation() {
		return s.awaitingConfirmation(method, sess), nil
	}

	if err := s.sessions.Save(ctx, sess); err != nil {
		s.metrics.attempt(method, outcomeStoreError)
		return nil, fmt.Errorf("signup: store session: %w", err)
	}

	n := notify.Success("Account created", "Signed up with "+DisplayName(method.Provider())+".")
	s.notify(ctx, notify.Recipient{UserID: sess.UserID, Email: sess.Email}, n)
	s.metrics.attempt(method, outcomeSuccess)
	return &Outcome{Session: sess, Notice: n}, nil
}

// awaitingConfirmation reports an account the backend created without
// tokens. Nothing is stored and no notice is sent out of band.
func (s *Service) awaitingConfirmation(method Method, sess *session.Session) *Outcome {
	s.metrics.attempt(method, outcomeUnconfirmed)
	s.logger.Info("signup awaiting email confirmation",
		zap.String("method", method.String()),
		zap.String("user_id", sess.UserID),
	)
	return &Outcome{Session: sess, Notice: ConfirmEmailNotice}
}

func (s *Service) fail(ctx context.Context, method Method, to notify.Recipient, err error) error {
	s.metrics.attempt(method, outcomeBackendError)
	aerr := &AuthError{Method: method, Message: userMessage(err), Err: err}
	s.logger.Warn("signup failed",
		zap.String("method", method.String()),
		zap.String("message", aerr.Message),
		zap.Error(err),
	)
	s.notify(ctx, to, NoticeFor(aerr))
	return aerr
}

// notify delivers n out of band. Failures are logged and never change the
// outcome of the attempt.
func (s *Service) notify(ctx context.Context, to notify.Recipient, n notify.Notice) {
	if err := s.notifier.Notify(ctx, to, n); err != nil {
		s.logger.Warn("notification failed", zap.String("title", n.Title), zap.Error(err))
	}
}

// NoticeFor returns the user notice for an Attempt or Complete error.
func NoticeFor(err error) notify.Notice {
	var ierr *InvalidCredentialsError
	if errors.As(err, &ierr) {
		return notify.Failure("Signup failed", invalidDescription(ierr.Result))
	}
	var aerr *AuthError
	if errors.As(err, &aerr) {
		return notify.Failure("Signup failed", aerr.Message)
	}
	return notify.Failure("Signup failed", "Something went wrong. Please try again.")
}

const (
	emailHint    = "Enter a valid email address."
	passwordHint = "Password must be at least 8 characters with upper and lower case letters, a digit and a special character."
)

func invalidDescription(r validate.CredentialResult) string {
	switch {
	case !r.IsEmailValid && !r.IsPasswordValid:
		return emailHint + " " + passwordHint
	case !r.IsEmailValid:
		return emailHint
	default:
		return passwordHint
	}
}

var displayNames = map[string]string{
	"github": "GitHub",
	"gitlab": "GitLab",
}

// DisplayName returns a provider name for user-facing text.
func DisplayName(provider string) string {
	if name, ok := displayNames[provider]; ok {
		return name
	}
	if provider == "" {
		return "provider"
	}
	r, size := utf8.DecodeRuneInString(provider)
	return string(unicode.ToUpper(r)) + provider[size:]
}

func providerLabel(m Method) string {
	if m.Kind() == KindEmail {
		return string(KindEmail)
	}
	return m.Provider()
}

func firstNonEmpty(a, b string) string {
	if a != "" {
		return a
	}
	return b
}
