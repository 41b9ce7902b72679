package middleware

import (
	"net/http"
	"time"

	"github.com/anishjain94/db-optimizer/pkg/metrics"
)

// RequestMetrics returns middleware that records request counts and latency
// per method, path, and status.
func RequestMetrics() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			wrapped := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}
			next.ServeHTTP(wrapped, r)
			metrics.ObserveHTTPRequest(r.Method, r.URL.Path, wrapped.statusCode, time.Since(start))
		})
	}
}
