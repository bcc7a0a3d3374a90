package ratelimit

import (
	"context"
	"sync"
	"time"

	gocache "github.com/patrickmn/go-cache"
)

// Store counts requests per key within fixed windows.
type Store interface {
	// Increment counts one request for key. It opens a new window of the
	// given length when none is active and returns the updated count and
	// the window's end.
	Increment(ctx context.Context, key string, window time.Duration) (count int, resetAt time.Time, err error)

	// Reset discards the current window for key.
	Reset(ctx context.Context, key string) error
}

type window struct {
	count   int
	resetAt time.Time
}

// MemoryStore keeps windows in process memory.
// Expired windows are swept by go-cache's janitor.
type MemoryStore struct {
	mu      sync.Mutex
	windows *gocache.Cache
}

// NewMemoryStore creates a MemoryStore that sweeps expired windows every
// cleanupInterval. A non-positive interval disables the sweep.
func NewMemoryStore(cleanupInterval time.Duration) *MemoryStore {
	if cleanupInterval < 0 {
		cleanupInterval = 0
	}
	return &MemoryStore{
		windows: gocache.New(gocache.NoExpiration, cleanupInterval),
	}
}

// Increment implements Store.
func (s *MemoryStore) Increment(_ context.Context, key string, length time.Duration) (int, time.Time, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	w, found := s.windows.Get(key)
	if !found || !now.Before(w.(*window).resetAt) {
		w = &window{resetAt: now.Add(length)}
		s.windows.Set(key, w, length)
	}

	current := w.(*window)
	current.count++
	return current.count, current.resetAt, nil
}

// Reset implements Store.
func (s *MemoryStore) Reset(_ context.Context, key string) error {
	s.windows.Delete(key)
	return nil
}
