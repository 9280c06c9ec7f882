// health/health.go
package health

import (
	"context"
	"net/http"
	"time"

	"github.com/dalemusser/docverify/httputil"
	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

// Check probes one dependency and returns nil when it is healthy.
type Check func(ctx context.Context) error

// Response is the JSON body of the health endpoint.
type Response struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks,omitempty"`
}

// checkTimeout bounds each probe so a hung dependency cannot hang /health.
const checkTimeout = 3 * time.Second

// Handler runs checks on every request. With no checks it is a plain
// liveness probe ({"status":"ok"}). Any failing check turns the response
// into a 503 with "status":"error" and the per-check results.
func Handler(checks map[string]Check, logger *zap.Logger) http.Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if len(checks) == 0 {
			httputil.WriteJSON(w, http.StatusOK, Response{Status: "ok"})
			return
		}

		results := make(map[string]string, len(checks))
		failed := false
		for name, check := range checks {
			if check == nil {
				results[name] = "ok"
				continue
			}
			ctx, cancel := context.WithTimeout(r.Context(), checkTimeout)
			err := check(ctx)
			cancel()
			if err != nil {
				failed = true
				results[name] = "error: " + err.Error()
				logger.Warn("health check failed", zap.String("check", name), zap.Error(err))
				continue
			}
			results[name] = "ok"
		}

		status, code := "ok", http.StatusOK
		if failed {
			status, code = "error", http.StatusServiceUnavailable
		}
		httputil.WriteJSON(w, code, Response{Status: status, Checks: results})
	})
}

// Mount attaches GET /health to r.
//
//	health.Mount(r, map[string]health.Check{
//	    "users": userStore.HealthCheck,
//	}, logger)
func Mount(r chi.Router, checks map[string]Check, logger *zap.Logger) {
	r.Method(http.MethodGet, "/health", Handler(checks, logger))
}
