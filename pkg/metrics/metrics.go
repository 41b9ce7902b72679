// Package metrics registers the service's Prometheus collectors and exposes
// small helpers the rest of the code calls at observation sites.
package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	httpRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "db_optimizer_http_requests_total",
			Help: "Total number of HTTP requests.",
		},
		[]string{"method", "path", "status"},
	)

	httpRequestDurationSeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "db_optimizer_http_request_duration_seconds",
			Help:    "HTTP request latency by route.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)
)

func init() {
	prometheus.MustRegister(httpRequestsTotal, httpRequestDurationSeconds)
}

// ObserveHTTPRequest records one served request.
func ObserveHTTPRequest(method, path string, status int, elapsed time.Duration) {
	s := strconv.Itoa(status)
	httpRequestsTotal.WithLabelValues(method, path, s).Inc()
	httpRequestDurationSeconds.WithLabelValues(method, path, s).Observe(elapsed.Seconds())
}
