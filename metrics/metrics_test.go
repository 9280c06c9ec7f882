package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHTTPMetrics_UsesRoutePattern(t *testing.T) {
	r := chi.NewRouter()
	r.Use(HTTPMetrics)
	r.Get("/auth/{provider}/callback", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusFound)
	})

	before := testutil.CollectAndCount(reqDuration)
	for _, p := range []string{"google", "github"} {
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/auth/"+p+"/callback", nil))
		require.Equal(t, http.StatusFound, rec.Code)
	}
	assert.Equal(t, before+1, testutil.CollectAndCount(reqDuration), "both providers share one series")
}

func TestRegister_SkipsDuplicates(t *testing.T) {
	c := prometheus.NewCounter(prometheus.CounterOpts{Name: "docverify_test_register_total", Help: "test"})
	t.Cleanup(func() { prometheus.Unregister(c) })

	assert.NotPanics(t, func() {
		Register(nil, c)
		Register(nil, c)
	})
}

func TestHandler_ExposesRegistered(t *testing.T) {
	RegisterDefault(nil)

	rec := httptest.NewRecorder()
	Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, strings.Contains(rec.Body.String(), "go_goroutines"))
}

func TestHTTPMetrics_UnmatchedPathsShareOneSeries(t *testing.T) {
	r := chi.NewRouter()
	r.Use(HTTPMetrics)
	r.Get("/api/session", func(w http.ResponseWriter, r *http.Request) {})

	before := testutil.CollectAndCount(reqDuration)
	for _, p := range []string{"/wp-login.php", "/.env", "/api/session/extra"} {
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, p, nil))
		require.Equal(t, http.StatusNotFound, rec.Code)
	}
	assert.Equal(t, before+1, testutil.CollectAndCount(reqDuration))
	assert.Equal(t, unmatchedRoute, routeLabel(httptest.NewRequest(http.MethodGet, "/nowhere", nil)))
}
