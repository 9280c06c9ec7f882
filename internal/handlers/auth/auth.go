// Package auth serves the JSON signup API: the credential check, signup
// attempts for both variants, the provider callback, and the current
// session.
package auth

import (
	"errors"
	"net/http"
	"time"

	"github.com/dalemusser/docverify/httputil"
	"github.com/dalemusser/docverify/internal/signup"
	"github.com/dalemusser/docverify/middleware"
	apperr "github.com/dalemusser/docverify/pantry/errors"
	"github.com/dalemusser/docverify/pantry/notify"
	"github.com/dalemusser/docverify/pantry/ratelimit"
	"github.com/dalemusser/docverify/pantry/session"
	"github.com/dalemusser/docverify/pantry/urlutil"
	"github.com/dalemusser/docverify/pantry/validate"
	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

// Config wires a Handler.
type Config struct {
	Signup   *signup.Service
	Sessions *session.Manager

	// Validator defaults to an untraced validator.
	Validator *validate.CredentialValidator

	// SignupPerMinute and SignupBurst limit POST /api/signup per client IP.
	// Zero SignupPerMinute disables the limit.
	SignupPerMinute float64
	SignupBurst     int

	// AfterSignupURL is the same-origin path the provider callback sends
	// the browser to. Default: "/dashboard".
	AfterSignupURL string

	Logger *zap.Logger
}

// Handler holds the dependencies of the auth routes.
type Handler struct {
	signup    *signup.Service
	sessions  *session.Manager
	validator *validate.CredentialValidator
	limiter   *ratelimit.KeyLimiter
	afterURL  string
	logger    *zap.Logger
}

// New validates cfg and returns a Handler. Call Close to stop the rate
// limiter's sweeper.
func New(cfg Config) (*Handler, error) {
	if cfg.Signup == nil {
		return nil, errors.New("auth: Signup is required")
	}
	if cfg.Sessions == nil {
		return nil, errors.New("auth: Sessions is required")
	}
	h := &Handler{
		signup:    cfg.Signup,
		sessions:  cfg.Sessions,
		validator: cfg.Validator,
		afterURL:  urlutil.SafeRedirect(cfg.AfterSignupURL, "/dashboard"),
		logger:    cfg.Logger,
	}
	if h.logger == nil {
		h.logger = zap.NewNop()
	}
	if h.validator == nil {
		h.validator = validate.NewCredentialValidator(nil)
	}
	if cfg.SignupPerMinute > 0 {
		burst := cfg.SignupBurst
		if burst < 1 {
			burst = 1
		}
		h.limiter = ratelimit.NewKeyLimiter(cfg.SignupPerMinute/60, burst, time.Hour)
	}
	return h, nil
}

// Close releases the rate limiter.
func (h *Handler) Close() {
	if h.limiter != nil {
		h.limiter.Stop()
	}
}

// Routes mounts the auth API on r.
func (h *Handler) Routes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(middleware.RequireJSON)
		r.Post("/api/credentials/validate", apperr.WrapHandler(h.validateCredentials, h.logger))

		r.Group(func(r chi.Router) {
			if h.limiter != nil {
				r.Use(ratelimit.MiddlewareWithLimiter(h.limiter, ratelimit.Config{
					OnLimited: func(w http.ResponseWriter, r *http.Request) {
						apperr.Write(w, apperr.TooManyRequests("too many signup attempts, try again later"))
					},
				}))
			}
			r.Post("/api/signup", apperr.WrapHandler(h.postSignup, h.logger))
		})
	})

	r.Get("/auth/{provider}/callback", apperr.WrapHandler(h.providerCallback, h.logger))

	r.Group(func(r chi.Router) {
		r.Use(session.Middleware(h.sessions))
		r.With(session.RequireSession()).Get("/api/session", h.getSession)
		r.Post("/api/logout", apperr.WrapHandler(h.logout, h.logger))
	})
}

type credentialsRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (h *Handler) validateCredentials(w http.ResponseWriter, r *http.Request) error {
	var req credentialsRequest
	if err := httputil.BindJSON(r, &req); err != nil {
		return apperr.BadRequest(err.Error())
	}
	httputil.WriteJSON(w, http.StatusOK, h.validator.Validate(req.Email, req.Password))
	return nil
}

type signupRequest struct {
	Method   string `json:"method"`
	Provider string `json:"provider,omitempty"`
	Email    string `json:"email,omitempty"`
	Password string `json:"password,omitempty"`
	Role     string `json:"role,omitempty"`
}

type signupResponse struct {
	Session     *session.Session `json:"session,omitempty"`
	RedirectURL string           `json:"redirect_url,omitempty"`
	Notice      notify.Notice    `json:"notice"`
}

// failureResponse is the error envelope plus the notice shown to the user.
type failureResponse struct {
	Error  *apperr.Error `json:"error"`
	Notice notify.Notice `json:"notice"`
}

func (h *Handler) postSignup(w http.ResponseWriter, r *http.Request) error {
	var req signupRequest
	if err := httputil.BindJSON(r, &req); err != nil {
		return apperr.BadRequest(err.Error())
	}

	verrs := apperr.NewValidationErrors()
	method, err := signup.ParseMethod(req.Method, req.Provider)
	if err != nil {
		verrs.Add("method", err.Error())
	}
	role, err := signup.ParseRole(req.Role)
	if err != nil {
		verrs.Add("role", err.Error())
	}
	if verrs.HasErrors() {
		return verrs.ToError()
	}

	out, err := h.signup.Attempt(r.Context(), method, signup.Credentials{
		Email:    req.Email,
		Password: req.Password,
	}, role)
	if err != nil {
		return h.writeSignupFailure(w, err)
	}

	switch {
	case out.Session.Pending():
		httputil.WriteJSON(w, http.StatusOK, signupResponse{
			RedirectURL: out.Session.RedirectURL,
			Notice:      out.Notice,
		})
		return nil
	case out.Session.AwaitingConfirmation():
		// no cookie until the address is confirmed
		httputil.WriteJSON(w, http.StatusAccepted, signupResponse{Notice: out.Notice})
		return nil
	}
	h.sessions.SetCookie(w, out.Session)
	httputil.WriteJSON(w, http.StatusCreated, signupResponse{Session: out.Session, Notice: out.Notice})
	return nil
}

// writeSignupFailure answers invalid credentials with 422 and backend
// failures with 502, both carrying the notice. Anything else is returned
// for the generic error writer.
func (h *Handler) writeSignupFailure(w http.ResponseWriter, err error) error {
	var ierr *signup.InvalidCredentialsError
	if errors.As(err, &ierr) {
		e := apperr.InvalidCredentials("credentials do not meet the format policy").
			WithDetail("isEmailValid", ierr.Result.IsEmailValid).
			WithDetail("isPasswordValid", ierr.Result.IsPasswordValid).
			WithDetail("isValid", ierr.Result.IsValid)
		httputil.WriteJSON(w, e.HTTPStatus(), failureResponse{Error: e, Notice: signup.NoticeFor(err)})
		return nil
	}
	var aerr *signup.AuthError
	if errors.As(err, &aerr) {
		e := apperr.AuthFailed(aerr.Message)
		httputil.WriteJSON(w, e.HTTPStatus(), failureResponse{Error: e, Notice: signup.NoticeFor(err)})
		return nil
	}
	if errors.Is(err, signup.ErrUnknownMethod) {
		return apperr.BadRequest(err.Error())
	}
	return apperr.Internal("signup could not be completed").Wrap(err)
}

func (h *Handler) providerCallback(w http.ResponseWriter, r *http.Request) error {
	provider := chi.URLParam(r, "provider")
	q := r.URL.Query()

	if e := q.Get("error"); e != "" {
		msg := q.Get("error_description")
		if msg == "" {
			msg = e
		}
		return apperr.AuthFailed(msg)
	}
	state, code := q.Get("state"), q.Get("code")
	if state == "" || code == "" {
		return apperr.BadRequest("missing state or code")
	}

	out, err := h.signup.Complete(r.Context(), provider, state, code)
	if err != nil {
		return h.writeSignupFailure(w, err)
	}
	if !out.Session.Confirmed() {
		httputil.WriteJSON(w, http.StatusAccepted, signupResponse{Notice: out.Notice})
		return nil
	}
	h.sessions.SetCookie(w, out.Session)
	http.Redirect(w, r, h.afterURL, http.StatusFound)
	return nil
}

func (h *Handler) getSession(w http.ResponseWriter, r *http.Request) {
	httputil.WriteJSON(w, http.StatusOK, session.FromContext(r.Context()))
}

func (h *Handler) logout(w http.ResponseWriter, r *http.Request) error {
	if err := h.sessions.Destroy(w, r); err != nil {
		return apperr.Internal("could not end session").Wrap(err)
	}
	w.WriteHeader(http.StatusNoContent)
	return nil
}
