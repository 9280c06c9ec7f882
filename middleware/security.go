// middleware/security.go
package middleware

import (
	"net/http"
	"strconv"

	"github.com/dalemusser/docverify/config"
)

// SecurityHeadersOptions lists the headers SecurityHeaders sets. Empty
// strings (and HSTSMaxAge 0) leave a header unset.
type SecurityHeadersOptions struct {
	XFrameOptions         string
	XContentTypeOptions   string
	ReferrerPolicy        string
	ContentSecurityPolicy string
	CacheControl          string

	// HSTS is only sent on TLS requests.
	HSTSMaxAge            int
	HSTSIncludeSubDomains bool
}

// APISecurityHeadersOptions suits an API that serves only JSON: nothing
// may frame or render it, and responses carrying sessions are not cached.
func APISecurityHeadersOptions() SecurityHeadersOptions {
	return SecurityHeadersOptions{
		XFrameOptions:         "DENY",
		XContentTypeOptions:   "nosniff",
		ReferrerPolicy:        "no-referrer",
		ContentSecurityPolicy: "default-src 'none'; frame-ancestors 'none'",
		CacheControl:          "no-store",
		HSTSMaxAge:            31536000,
		HSTSIncludeSubDomains: true,
	}
}

// SecurityHeaders sets the headers in opts on every response.
func SecurityHeaders(opts SecurityHeadersOptions) func(next http.Handler) http.Handler {
	var hsts string
	if opts.HSTSMaxAge > 0 {
		hsts = "max-age=" + strconv.Itoa(opts.HSTSMaxAge)
		if opts.HSTSIncludeSubDomains {
			hsts += "; includeSubDomains"
		}
	}
	static := [][2]string{
		{"X-Frame-Options", opts.XFrameOptions},
		{"X-Content-Type-Options", opts.XContentTypeOptions},
		{"Referrer-Policy", opts.ReferrerPolicy},
		{"Content-Security-Policy", opts.ContentSecurityPolicy},
		{"Cache-Control", opts.CacheControl},
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			h := w.Header()
			for _, kv := range static {
				if kv[1] != "" {
					h.Set(kv[0], kv[1])
				}
			}
			if hsts != "" && r.TLS != nil {
				h.Set("Strict-Transport-Security", hsts)
			}
			next.ServeHTTP(w, r)
		})
	}
}

// SecurityHeadersFromConfig applies APISecurityHeadersOptions, dropping
// HSTS unless the service itself terminates TLS.
func SecurityHeadersFromConfig(coreCfg *config.CoreConfig) func(next http.Handler) http.Handler {
	opts := APISecurityHeadersOptions()
	if coreCfg == nil || !coreCfg.HTTP.UseHTTPS {
		opts.HSTSMaxAge = 0
	}
	return SecurityHeaders(opts)
}
