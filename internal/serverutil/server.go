// Package serverutil is the shared HTTP glue for the dashboard: JSON
// responses, access logging, and handlers that return errors.
package serverutil

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	syncerrs "github.com/jdholdren/anisync/internal/errors"
)

// WriteJSON writes data as the JSON response body with the given status.
func WriteJSON(w http.ResponseWriter, status int, data any) error {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	return json.NewEncoder(w).Encode(data)
}

// AccessLogMiddleware logs every request once it completes.
func AccessLogMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		writer := &respCodeWriter{ResponseWriter: w, code: http.StatusOK}
		next.ServeHTTP(writer, r)

		slog.Info("request completed",
			"method", r.Method,
			"path", r.URL.Path,
			"status_code", writer.code,
			"duration", time.Since(start),
		)
	})
}

// Traps the status code so the access log can report it.
type respCodeWriter struct {
	http.ResponseWriter
	code int
}

func (w *respCodeWriter) WriteHeader(code int) {
	w.code = code
	w.ResponseWriter.WriteHeader(code)
}

// HandlerFuncE is an [http.HandlerFunc] that returns an error. Structured
// errors pick their own status; anything else becomes a plain 500 so
// internals never leak to the client.
type HandlerFuncE func(w http.ResponseWriter, r *http.Request) error

func (f HandlerFuncE) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	err := f(w, r)
	if err == nil {
		return
	}

	sErr := &syncerrs.Error{}
	if !errors.As(err, &sErr) {
		slog.Error("unstructured handler error", "err", err)
		sErr = syncerrs.E(http.StatusInternalServerError, "internal server error")
	}

	if werr := WriteJSON(w, sErr.Status, sErr); werr != nil {
		slog.Error("error writing error response", "err", werr)
	}
}

// ErrRouter wraps a mux router so error-returning handlers can be attached.
type ErrRouter struct {
	*mux.Router
}

func (r ErrRouter) HandleFuncE(path string, f HandlerFuncE) *mux.Route {
	return r.Handle(path, f)
}
