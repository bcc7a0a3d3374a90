package companieshouse

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Prometheus metrics for upstream requests.
var (
	upstreamRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "gateway_upstream_requests_total",
		Help: "Total upstream requests by service and status",
	}, []string{"service", "status"})

	upstreamRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "gateway_upstream_request_duration_seconds",
		Help:    "Upstream request duration in seconds by service",
		Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30},
	}, []string{"service"})

	upstreamErrorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "gateway_upstream_errors_total",
		Help: "Total upstream errors by class",
	}, []string{"class"})

	upstreamRetriesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "gateway_upstream_retries_total",
		Help: "Total number of retry attempts by error class",
	}, []string{"error_class"})

	upstreamRetryBackoffSeconds = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "gateway_upstream_retry_backoff_seconds",
		Help:    "Backoff duration for retries by error class",
		Buckets: []float64{0.5, 1, 2, 5, 10, 30, 60},
	}, []string{"error_class"})

	upstreamRetryExhaustedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "gateway_upstream_retry_exhausted_total",
		Help: "Total number of times retry attempts were exhausted by error class",
	}, []string{"error_class"})
)
