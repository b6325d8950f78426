package daemon

import (
	"errors"
	"net/http"
	"time"
)

var errRecovered = errors.New("internal error")

type responseWrapper struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWrapper) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		wrapped := &responseWrapper{ResponseWriter: w, statusCode: http.StatusOK}

		next.ServeHTTP(wrapped, r)

		s.log.Info("http request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", wrapped.statusCode,
			"duration_ms", time.Since(start).Milliseconds())
	})
}

func (s *Server) metricsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.recordRequest()
		next.ServeHTTP(w, r)
	})
}

// recoveryMiddleware converts a panicking handler into a 500 response
// instead of taking down the whole daemon, matching the teacher's
// always-on recovery wrapper.
func (s *Server) recoveryMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				s.log.Error("panic recovered in http handler", "path", r.URL.Path, "panic", rec)
				writeError(w, http.StatusInternalServerError, errRecovered)
			}
		}()
		next.ServeHTTP(w, r)
	})
}
