// session/middleware.go
package session

import (
	"context"
	"net/http"

	"github.com/dalemusser/docverify/httputil"
)

type contextKey string

const sessionContextKey contextKey = "session"

// Middleware loads the current session, if any, into the request context.
// Requests without a valid session pass through unchanged.
func Middleware(m *Manager) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if s, err := m.Current(r); err == nil {
				r = r.WithContext(NewContext(r.Context(), s))
			}
			next.ServeHTTP(w, r)
		})
	}
}

// NewContext returns a copy of ctx carrying s.
func NewContext(ctx context.Context, s *Session) context.Context {
	return context.WithValue(ctx, sessionContextKey, s)
}

// FromContext retrieves the session from the request context.
// Returns nil if no session is in context.
func FromContext(ctx context.Context) *Session {
	s, _ := ctx.Value(sessionContextKey).(*Session)
	return s
}

// RequireSession responds 401 with a JSON error unless Middleware placed a
// confirmed session in the context.
func RequireSession() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			s := FromContext(r.Context())
			if s == nil || !s.Confirmed() {
				httputil.JSONError(w, http.StatusUnauthorized, "unauthorized", "sign up or log in first")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
