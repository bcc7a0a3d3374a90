package cache

import (
	"net/http"
	"time"

	"github.com/Sternrassler/registry-gateway/pkg/fingerprint"
)

// RouteConfig is the caching configuration of a single route.
type RouteConfig struct {
	// TTL overrides the store default when positive.
	TTL time.Duration

	// Key derives the cache key. A non-empty result takes precedence over
	// the request fingerprint.
	Key func(*http.Request) string

	// Condition, when set, must return true for the request to use the cache.
	Condition func(*http.Request) bool

	// Fingerprint overrides fingerprint.DefaultOptions.
	Fingerprint *fingerprint.Options

	Directives
}

// ResolveKey returns the cache key for r. ok is false when the request
// cannot be keyed because its body is part of the fingerprint but could
// not be read.
func (c RouteConfig) ResolveKey(r *http.Request) (key string, ok bool) {
	if c.Key != nil {
		if custom := c.Key(r); custom != "" {
			return custom, true
		}
	}

	opts := fingerprint.DefaultOptions()
	if c.Fingerprint != nil {
		opts = *c.Fingerprint
	}
	src := fingerprint.FromHTTP(r)
	if !src.Keyable(opts) {
		return "", false
	}
	return fingerprint.Fingerprint(src, opts), true
}
