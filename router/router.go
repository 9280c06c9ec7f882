// router/router.go
package router

import (
	"github.com/dalemusser/docverify/config"
	"github.com/dalemusser/docverify/logging"
	"github.com/dalemusser/docverify/metrics"
	"github.com/dalemusser/docverify/middleware"
	apperr "github.com/dalemusser/docverify/pantry/errors"
	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"
)

// New returns a chi.Router with the standard middleware stack, in order:
// request ID, real IP (trusted proxies only), panic recovery, metrics, access log, body size
// limit, security headers, CORS and compression. Unmatched routes and
// methods get JSON errors.
//
// Routes (health, metrics, the API) are mounted by the caller.
func New(coreCfg *config.CoreConfig, logger *zap.Logger) chi.Router {
	r := chi.NewRouter()

	r.Use(chimw.RequestID)
	r.Use(middleware.RealIP(coreCfg.TrustedProxyNets))
	r.Use(logging.Recoverer(logger))
	r.Use(metrics.HTTPMetrics)
	r.Use(logging.RequestLogger(logger))

	r.Use(middleware.LimitBodySize(coreCfg.MaxRequestBodyBytes))
	r.Use(middleware.SecurityHeadersFromConfig(coreCfg))
	r.Use(middleware.CORSFromConfig(coreCfg))
	r.Use(middleware.CompressFromConfig(coreCfg))

	r.NotFound(apperr.NotFoundHandler().ServeHTTP)
	r.MethodNotAllowed(apperr.MethodNotAllowedHandler().ServeHTTP)

	return r
}
