package signup

import (
	"github.com/dalemusser/docverify/pantry/validate"
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics counts signup attempts and credential checks. Collectors are not
// registered; pass Collectors() to the metrics package at startup.
type Metrics struct {
	attempts *prometheus.CounterVec
	checks   *prometheus.CounterVec
}

// NewMetrics builds unregistered counters.
func NewMetrics() *Metrics {
	return &Metrics{
		attempts: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "docverify_signup_attempts_total",
				Help: "Signup attempts by method and outcome.",
			},
			[]string{"method", "outcome"},
		),
		checks: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "docverify_credential_checks_total",
				Help: "Credential format checks by field and result.",
			},
			[]string{"field", "result"},
		),
	}
}

// Collectors returns the counters for registration.
func (m *Metrics) Collectors() []prometheus.Collector {
	return []prometheus.Collector{m.attempts, m.checks}
}

const (
	outcomeSuccess      = "success"
	outcomeUnconfirmed  = "awaiting_confirmation"
	outcomeInvalid      = "invalid_credentials"
	outcomeBackendError = "backend_error"
	outcomeStoreError   = "store_error"
)

func (m *Metrics) attempt(method Method, outcome string) {
	if m == nil {
		return
	}
	// provider names come from the request, so only the kind is a label
	m.attempts.WithLabelValues(string(method.Kind()), outcome).Inc()
}

func (m *Metrics) check(r validate.CredentialResult) {
	if m == nil {
		return
	}
	m.checks.WithLabelValues("email", validLabel(r.IsEmailValid)).Inc()
	m.checks.WithLabelValues("password", validLabel(r.IsPasswordValid)).Inc()
}

func validLabel(ok bool) string {
	if ok {
		return "valid"
	}
	return "invalid"
}
