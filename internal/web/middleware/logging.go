// Package middleware provides HTTP middleware for the normalization server.
package middleware

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/JonMunkholm/mlready/internal/logging"
)

// quietPaths are polled by orchestrators and scrapers; successful hits log at
// debug so they do not drown out build and replay passes.
var quietPaths = map[string]bool{
	"/healthz": true,
	"/metrics": true,
}

// Logger writes one access line per request through the request-scoped
// logger, which already carries the request ID.
//
// 5xx logs at error and 4xx at warn. Successful health and metrics polls log
// at debug; anything else logs at info.
//
// Log fields:
//   - method, path
//   - route: the matched chi pattern, "" when nothing matched
//   - status
//   - bytes_in: declared request body size, -1 when unknown
//   - bytes_out: response body size
//   - duration_ms
//   - ip: r.RemoteAddr after TrustedRealIP
func Logger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}

		next.ServeHTTP(rec, r)

		var route string
		if rctx := chi.RouteContext(r.Context()); rctx != nil {
			route = rctx.RoutePattern()
		}

		logging.FromContext(r.Context()).Log(r.Context(), accessLevel(r.URL.Path, rec.status), "request",
			"method", r.Method,
			"path", r.URL.Path,
			"route", route,
			"status", rec.status,
			"bytes_in", r.ContentLength,
			"bytes_out", rec.written,
			"duration_ms", time.Since(start).Milliseconds(),
			"ip", r.RemoteAddr,
			"user_agent", r.UserAgent(),
		)
	})
}

func accessLevel(path string, status int) slog.Level {
	switch {
	case status >= http.StatusInternalServerError:
		return slog.LevelError
	case status >= http.StatusBadRequest:
		return slog.LevelWarn
	case quietPaths[path]:
		return slog.LevelDebug
	}
	return slog.LevelInfo
}

// statusRecorder remembers the first status written and counts body bytes.
type statusRecorder struct {
	http.ResponseWriter
	status  int
	written int64
	sent    bool
}

func (w *statusRecorder) WriteHeader(status int) {
	if w.sent {
		return
	}
	w.status = status
	w.sent = true
	w.ResponseWriter.WriteHeader(status)
}

func (w *statusRecorder) Write(b []byte) (int, error) {
	if !w.sent {
		w.WriteHeader(http.StatusOK)
	}
	n, err := w.ResponseWriter.Write(b)
	w.written += int64(n)
	return n, err
}

// Unwrap exposes the underlying writer to http.ResponseController.
func (w *statusRecorder) Unwrap() http.ResponseWriter {
	return w.ResponseWriter
}
