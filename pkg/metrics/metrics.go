// Package metrics exposes the Prometheus registry and scrape handler of the gateway.
// Metrics are defined in their respective packages (cache, ratelimit,
// companieshouse, server) to keep packages independent.
//
// This package provides the /metrics handler and a reference of all metrics.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Registry is the default Prometheus registry used by the gateway.
// All metrics are automatically registered via promauto in their respective packages.
var Registry = prometheus.DefaultRegisterer

// Handler returns the scrape handler for the default gatherer.
func Handler() http.Handler {
	return promhttp.HandlerFor(prometheus.DefaultGatherer, promhttp.HandlerOpts{
		ErrorHandling: promhttp.ContinueOnError,
	})
}

// Metrics Documentation
//
// Cache Metrics (pkg/cache):
//   - gateway_cache_hits_total (Counter): Lookups served from the store
//   - gateway_cache_misses_total (Counter): Lookups that found nothing
//   - gateway_cache_entries (Gauge): Entries currently stored
//   - gateway_cache_evictions_total{reason} (Counter): Removals by reason (deleted, expired, flush)
//   - gateway_cache_bypass_total{reason} (Counter): Requests that skipped the cache (client, condition, body)
//   - gateway_cache_errors_total{operation} (Counter): Recovered cache failures (key, get, set, encode)
//
// Rate Limit Metrics (pkg/ratelimit):
//   - gateway_ratelimit_requests_total{limiter, result} (Counter): Decisions by limiter (allowed, limited)
//   - gateway_ratelimit_store_errors_total{limiter} (Counter): Counter store failures (requests let through)
//   - gateway_ratelimit_wait_seconds{limiter} (Histogram): Time spent waiting for a window to reset
//
// Upstream Metrics (pkg/companieshouse):
//   - gateway_upstream_requests_total{service, status} (Counter): Upstream requests by HTTP status
//   - gateway_upstream_request_duration_seconds{service} (Histogram): Upstream request duration
//   - gateway_upstream_errors_total{class} (Counter): Errors by class (client, server, rate_limit, network)
//   - gateway_upstream_retries_total{error_class} (Counter): Retry attempts by error class
//   - gateway_upstream_retry_backoff_seconds{error_class} (Histogram): Backoff duration by error class
//   - gateway_upstream_retry_exhausted_total{error_class} (Counter): Requests that exhausted max retries
//
// HTTP Metrics (internal/server):
//   - gateway_http_requests_total{route, method, status} (Counter): Inbound requests
//   - gateway_http_request_duration_seconds{route} (Histogram): Inbound request duration
//
// Example Prometheus Queries:
//
//   # Cache Hit Rate
//   sum(rate(gateway_cache_hits_total[5m])) /
//   (sum(rate(gateway_cache_hits_total[5m])) + sum(rate(gateway_cache_misses_total[5m])))
//
//   # Rate Limited Share
//   sum(rate(gateway_ratelimit_requests_total{result="limited"}[5m])) /
//   sum(rate(gateway_ratelimit_requests_total[5m]))
//
//   # Upstream Error Rate
//   rate(gateway_upstream_errors_total[5m])
//
//   # P95 Upstream Latency
//   histogram_quantile(0.95, rate(gateway_upstream_request_duration_seconds_bucket[5m]))
