package middleware

import (
	"net/http"
	"time"

	"github.com/campusmart/campusmart-backend/pkg/logger"
	"github.com/go-chi/chi/v5"
)

// Logging writes one "request.complete" line per request with the chi route
// pattern, status, size and latency. 5xx responses log at warn.
func Logging(logg *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if logg == nil {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ctx := logg.WithFields(r.Context(), map[string]any{
				"method":    r.Method,
				"path":      r.URL.Path,
				"remote_ip": clientIP(r),
			})
			rw := &responseMeter{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(rw, r.WithContext(ctx))

			done := map[string]any{
				"status":      rw.status,
				"bytes":       rw.bytes,
				"duration_ms": time.Since(start).Milliseconds(),
			}
			if rc := chi.RouteContext(r.Context()); rc != nil && rc.RoutePattern() != "" {
				done["route"] = rc.RoutePattern()
			}
			ctx = logg.WithFields(ctx, done)
			if rw.status >= http.StatusInternalServerError {
				logg.Warn(ctx, "request.complete")
				return
			}
			logg.Info(ctx, "request.complete")
		})
	}
}

// responseMeter records the first status written and the body size.
type responseMeter struct {
	http.ResponseWriter
	status      int
	bytes       int
	wroteHeader bool
}

func (m *responseMeter) WriteHeader(code int) {
	if !m.wroteHeader {
		m.status, m.wroteHeader = code, true
	}
	m.ResponseWriter.WriteHeader(code)
}

func (m *responseMeter) Write(b []byte) (int, error) {
	m.wroteHeader = true
	n, err := m.ResponseWriter.Write(b)
	m.bytes += n
	return n, err
}

func (m *responseMeter) Unwrap() http.ResponseWriter { return m.ResponseWriter }
