// Package cache implements the gateway's response cache.
//
// It has two layers:
//
//   - Store: an in-memory TTL key/value store for captured JSON payloads,
//     with hit/miss accounting, wildcard deletes and a background sweep
//     that removes expired entries on a fixed period.
//   - Mediator: HTTP middleware that resolves a cache key for each request
//     (a route-supplied key function, or the request fingerprint), serves
//     fresh entries directly and captures the output of the wrapped handler
//     on a miss.
//
// # Basic Usage
//
//	store := cache.NewStore(cache.DefaultConfig(), logger)
//	defer store.Close()
//
//	mediator := cache.NewMediator(store, logger, nil)
//	mux.Handle("GET /widgets", mediator.Handler(cache.RouteConfig{
//		TTL:        5 * time.Minute,
//		Directives: cache.Directives{Public: true, MaxAge: cache.Seconds(300)},
//	}, listWidgets))
//
// # Response Headers
//
// Every cached route answers with:
//
//   - X-Cache: HIT or MISS
//   - X-Cache-Key: the resolved key
//   - X-Cache-TTL: remaining seconds (HIT only, "N/A" when unknown)
//   - X-Cache-Hits: store-wide hit counter (HIT only)
//   - Cache-Control: synthesized from the route Directives
//   - Last-Modified / Expires: only for Public routes
//
// A request carrying "Cache-Control: no-cache", or rejected by the route
// Condition, bypasses the cache entirely.
//
// # Metrics
//
//   - gateway_cache_hits_total
//   - gateway_cache_misses_total
//   - gateway_cache_entries
//   - gateway_cache_evictions_total{reason}
//   - gateway_cache_bypass_total{reason}
//   - gateway_cache_errors_total{operation}
//
// The cache is advisory: store faults are logged and the request proceeds
// as if the cache did not exist.
package cache
