// errors/http.go
package errors

import (
	"net/http"

	"github.com/dalemusser/docverify/httputil"
	"go.uber.org/zap"
)

// Response is the JSON envelope for errors.
type Response struct {
	Error *Error `json:"error"`
}

// Write writes err as {"error": {...}} with its HTTP status.
func Write(w http.ResponseWriter, err error) {
	e := From(err)
	httputil.WriteJSON(w, e.HTTPStatus(), Response{Error: e})
}

// WriteWithLogger writes err and logs it when it maps to a 5xx.
func WriteWithLogger(w http.ResponseWriter, err error, logger *zap.Logger) {
	e := From(err)
	if e.HTTPStatus() >= 500 && logger != nil {
		logger.Error("request failed",
			zap.String("code", e.Code),
			zap.String("message", e.Message),
			zap.Error(e.Err),
		)
	}
	httputil.WriteJSON(w, e.HTTPStatus(), Response{Error: e})
}

// NotFoundHandler responds 404 with a JSON error.
func NotFoundHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		Write(w, NotFound("the requested resource was not found"))
	})
}

// MethodNotAllowedHandler responds 405 with a JSON error.
func MethodNotAllowedHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		Write(w, MethodNotAllowed("the requested method is not allowed"))
	})
}

// HandlerFunc is a handler that returns an error instead of writing one.
type HandlerFunc func(w http.ResponseWriter, r *http.Request) error

// WrapHandler converts h to an http.HandlerFunc that writes any returned error,
// logging 5xx errors to logger.
func WrapHandler(h HandlerFunc, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := h(w, r); err != nil {
			WriteWithLogger(w, err, logger)
		}
	}
}
