package cache

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// CacheHits tracks store lookups that found a fresh entry
	CacheHits = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "gateway_cache_hits_total",
			Help: "Total number of response cache hits",
		},
	)

	// CacheMisses tracks store lookups that found nothing
	CacheMisses = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "gateway_cache_misses_total",
			Help: "Total number of response cache misses",
		},
	)

	// CacheEntries tracks the number of entries held by the store
	CacheEntries = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "gateway_cache_entries",
			Help: "Current number of entries in the response cache",
		},
	)

	// CacheEvictions tracks entries leaving the store by reason
	CacheEvictions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gateway_cache_evictions_total",
			Help: "Total number of response cache entries removed",
		},
		[]string{"reason"}, // "deleted", "expired", "flush"
	)

	// CacheBypasses tracks requests that skipped the cache
	CacheBypasses = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gateway_cache_bypass_total",
			Help: "Total number of requests that bypassed the response cache",
		},
		[]string{"reason"}, // "client", "condition", "body"
	)

	// CacheErrors tracks cache operation errors
	CacheErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gateway_cache_errors_total",
			Help: "Total number of cache operation errors",
		},
		[]string{"operation"}, // "key", "get", "set", "encode"
	)
)
