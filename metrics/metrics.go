// metrics/metrics.go
package metrics

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// reqDuration is labeled by chi route pattern, not raw path, so path
// parameters such as {provider} do not multiply series.
var reqDuration = prometheus.NewHistogramVec(
	prometheus.HistogramOpts{
		Namespace: "docverify",
		Name:      "http_request_duration_seconds",
		Help:      "Duration of HTTP requests.",
		// signup calls an upstream auth service, so leave room above 1s
		Buckets: []float64{0.01, 0.05, 0.1, 0.3, 1, 2.5, 5},
	},
	[]string{"path", "method", "status"},
)

// RegisterDefault registers the Go runtime and process collectors and the
// HTTP request histogram with the default registry. Call once at startup.
func RegisterDefault(logger *zap.Logger) {
	Register(logger,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		reqDuration,
	)
}

// Register adds application collectors (for example the signup counters)
// to the default registry. Collectors that are already registered are
// skipped; any other failure is fatal because it means two collectors
// disagree about a metric's shape.
func Register(logger *zap.Logger, cs ...prometheus.Collector) {
	for _, c := range cs {
		if err := prometheus.Register(c); err != nil {
			var are prometheus.AlreadyRegisteredError
			if errors.As(err, &are) {
				continue
			}
			if logger != nil {
				logger.Fatal("failed to register collector", zap.Error(err))
			}
			panic("metrics: failed to register collector: " + err.Error())
		}
	}
}

// unmatchedRoute labels requests that matched no route, so path scans
// cannot grow the series count.
const unmatchedRoute = "unmatched"

// HTTPMetrics records each request into the duration histogram. Mount it
// after the recoverer so panics are recorded as 500s.
func HTTPMetrics(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		protoMajor := r.ProtoMajor
		if protoMajor < 1 {
			protoMajor = 1
		}
		ww := middleware.NewWrapResponseWriter(w, protoMajor)

		next.ServeHTTP(ww, r)

		status := ww.Status()
		if status == 0 {
			// handler wrote nothing or only a body
			status = http.StatusOK
		}
		if status < 100 || status > 599 {
			status = http.StatusInternalServerError
		}

		reqDuration.WithLabelValues(
			routeLabel(r),
			r.Method,
			strconv.Itoa(status),
		).Observe(time.Since(start).Seconds())
	})
}

func routeLabel(r *http.Request) string {
	if rctx := chi.RouteContext(r.Context()); rctx != nil {
		if pattern := rctx.RoutePattern(); pattern != "" {
			return pattern
		}
	}
	return unmatchedRoute
}

// Handler exposes the default registry in the Prometheus text format.
func Handler() http.Handler {
	return promhttp.Handler()
}
