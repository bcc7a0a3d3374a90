// Package ratelimit implements fixed-window request limiting.
// Counters live in a Store: MemoryStore for a single process or RedisStore
// to share windows between gateway instances.
package ratelimit

import (
	"time"
)

// RedisKeyPrefix namespaces rate limit counters in Redis.
const RedisKeyPrefix = "gateway:rate_limit:"

// State represents one key's position in its current window.
type State struct {
	// Limit is the number of requests allowed per window.
	Limit int `json:"limit"`

	// Count is the number of requests seen in the current window,
	// including the one being decided.
	Count int `json:"count"`

	// ResetAt is when the current window ends and the count starts over.
	ResetAt time.Time `json:"reset_at"`
}

// Allowed reports whether the request that produced this state may proceed.
func (s State) Allowed() bool {
	return s.Count <= s.Limit
}

// Remaining returns how many more requests fit in the current window.
func (s State) Remaining() int {
	if s.Count >= s.Limit {
		return 0
	}
	return s.Limit - s.Count
}

// TimeUntilReset returns the duration until the window resets.
// Returns 0 if the reset time has already passed.
func (s State) TimeUntilReset() time.Duration {
	duration := time.Until(s.ResetAt)
	if duration < 0 {
		return 0
	}
	return duration
}

// RetryAfterSeconds returns TimeUntilReset rounded up to whole seconds.
func (s State) RetryAfterSeconds() int {
	d := s.TimeUntilReset()
	secs := int(d / time.Second)
	if d%time.Second != 0 {
		secs++
	}
	return secs
}
