// middleware/compress.go
package middleware

import (
	"net/http"

	"github.com/dalemusser/docverify/config"
	"github.com/go-chi/chi/v5/middleware"
)

// compressionLevel balances CPU against size for small JSON bodies.
const compressionLevel = 5

// CompressFromConfig gzips/deflates JSON responses when
// enable_compression is set, and is a no-op otherwise.
func CompressFromConfig(coreCfg *config.CoreConfig) func(next http.Handler) http.Handler {
	if coreCfg == nil || !coreCfg.EnableCompression {
		return passthrough
	}
	return middleware.Compress(compressionLevel, "application/json", "text/plain")
}

func passthrough(next http.Handler) http.Handler { return next }
