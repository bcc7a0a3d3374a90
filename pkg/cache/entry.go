package cache

import (
	"time"
)

// Entry is a cached JSON response.
type Entry struct {
	// Key is the cache key the entry is stored under
	Key string `json:"key"`

	// Value is the encoded JSON payload produced by the handler
	Value []byte `json:"value"`

	// CachedAt is when the entry was stored
	CachedAt time.Time `json:"cached_at"`

	// Expires is when the entry stops being served
	Expires time.Time `json:"expires"`
}

// IsExpired returns true if the cache entry has expired.
func (e *Entry) IsExpired() bool {
	return !time.Now().Before(e.Expires)
}

// TTL returns the time until expiration.
// Returns 0 if already expired.
func (e *Entry) TTL() time.Duration {
	ttl := time.Until(e.Expires)
	if ttl < 0 {
		return 0
	}
	return ttl
}
