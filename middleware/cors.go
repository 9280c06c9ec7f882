// middleware/cors.go
package middleware

import (
	"net/http"

	"github.com/dalemusser/docverify/config"
	"github.com/go-chi/cors"
)

// CORSFromConfig applies the CORS section of coreCfg, or does nothing when
// enable_cors is false. A browser front end on another origin needs
// cors_allow_credentials so the session cookie is sent.
func CORSFromConfig(coreCfg *config.CoreConfig) func(next http.Handler) http.Handler {
	if coreCfg == nil || !coreCfg.CORS.EnableCORS {
		return passthrough
	}
	return cors.Handler(cors.Options{
		AllowedOrigins:   coreCfg.CORS.CORSAllowedOrigins,
		AllowedMethods:   coreCfg.CORS.CORSAllowedMethods,
		AllowedHeaders:   coreCfg.CORS.CORSAllowedHeaders,
		ExposedHeaders:   coreCfg.CORS.CORSExposedHeaders,
		AllowCredentials: coreCfg.CORS.CORSAllowCredentials,
		MaxAge:           coreCfg.CORS.CORSMaxAge,
	})
}
