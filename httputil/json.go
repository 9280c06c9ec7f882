// httputil/json.go
package httputil

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"reflect"
	"strings"
	"sync/atomic"

	"go.uber.org/zap"
)

// ErrorResponse is the flat JSON error body used by middleware that runs
// before the API error envelope is available.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}

var jsonLogger atomic.Pointer[zap.Logger]

// SetLogger configures the logger used to report encoding failures that
// happen after the status line was sent. Call once during startup.
func SetLogger(logger *zap.Logger) {
	jsonLogger.Store(logger)
}

// WriteJSON writes v as JSON with the given status code. Status codes
// outside 100-599 are clamped to 500.
func WriteJSON(w http.ResponseWriter, status int, v any) {
	if status < 100 || status > 599 {
		status = http.StatusInternalServerError
	}
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(v); err != nil {
		// headers are gone; all we can do is log
		if l := jsonLogger.Load(); l != nil {
			typeName := "nil"
			if v != nil {
				typeName = reflect.TypeOf(v).String()
			}
			l.Error("json encoding failed after headers sent",
				zap.String("type", typeName),
				zap.Error(err),
			)
		}
	}
}

// JSONError writes a flat {"error": code, "message": message} body.
func JSONError(w http.ResponseWriter, status int, code, message string) {
	WriteJSON(w, status, ErrorResponse{Error: code, Message: message})
}

// BindJSON decodes the request body as JSON into v.
//
// Empty bodies, malformed JSON, unknown fields and trailing values are
// rejected with messages that are safe to return to clients.
//
//	var req signupRequest
//	if err := httputil.BindJSON(r, &req); err != nil {
//	    return apperr.BadRequest(err.Error())
//	}
func BindJSON(r *http.Request, v any) error {
	if r.Body == nil || r.ContentLength == 0 {
		return errors.New("request body is empty")
	}
	defer r.Body.Close()

	// ContentLength -1 (chunked) still gets decoded; an empty chunked body
	// surfaces as io.EOF below.
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()

	if err := dec.Decode(v); err != nil {
		return parseJSONError(err)
	}
	if dec.More() {
		return errors.New("request body contains multiple JSON values")
	}
	return nil
}

// parseJSONError converts json decoding errors into user-friendly messages.
func parseJSONError(err error) error {
	if errors.Is(err, io.EOF) {
		return errors.New("request body is empty")
	}

	var syntaxErr *json.SyntaxError
	if errors.As(err, &syntaxErr) {
		return fmt.Errorf("malformed JSON at position %d", syntaxErr.Offset)
	}

	var typeErr *json.UnmarshalTypeError
	if errors.As(err, &typeErr) {
		return fmt.Errorf("invalid value for field %q: expected %s", typeErr.Field, typeErr.Type.String())
	}

	// "json: unknown field \"name\""
	if strings.HasPrefix(err.Error(), "json: unknown field") {
		field := strings.Trim(strings.TrimPrefix(err.Error(), "json: unknown field "), "\"")
		return fmt.Errorf("unknown field %q", field)
	}

	var maxErr *http.MaxBytesError
	if errors.As(err, &maxErr) {
		return errors.New("request body too large")
	}

	return errors.New("invalid JSON in request body")
}
