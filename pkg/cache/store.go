package cache

import (
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	gocache "github.com/patrickmn/go-cache"
	"github.com/rs/zerolog"
)

const (
	// DefaultTTL is used when neither the route nor the caller supplies a TTL
	DefaultTTL = time.Hour

	// DefaultCheckPeriod is how often expired entries are swept
	DefaultCheckPeriod = 10 * time.Minute
)

// Config holds store configuration.
type Config struct {
	// Enabled turns every read and write into a no-op when false.
	// Existing entries are left untouched.
	Enabled bool

	// DefaultTTL applies to Set calls without a positive TTL.
	DefaultTTL time.Duration

	// CheckPeriod is the interval of the background expiry sweep.
	// Zero disables the sweep; expired entries are then only hidden.
	CheckPeriod time.Duration

	// Observer receives store events (optional).
	Observer Observer
}

// DefaultConfig returns an enabled store configuration with default timings.
func DefaultConfig() Config {
	return Config{
		Enabled:     true,
		DefaultTTL:  DefaultTTL,
		CheckPeriod: DefaultCheckPeriod,
	}
}

// Stats is a point-in-time view of the store.
type Stats struct {
	Hits      uint64 `json:"hits"`
	Misses    uint64 `json:"misses"`
	Keys      int    `json:"keys"`
	KeySize   int    `json:"ksize"`
	ValueSize int    `json:"vsize"`
}

// Store is an in-memory TTL cache of JSON payloads.
// It is safe for concurrent use.
type Store struct {
	items    *gocache.Cache
	config   Config
	observer Observer
	logger   zerolog.Logger

	enabled atomic.Bool
	hits    atomic.Uint64
	misses  atomic.Uint64

	// evictMu serialises the sweep and explicit deletes so that evicted
	// can tell them apart. explicit and removed are guarded by it.
	evictMu  sync.Mutex
	explicit bool
	removed  int

	stop     chan struct{}
	stopOnce sync.Once
	done     chan struct{}
}

// NewStore creates a store and starts its expiry sweep.
// Call Close to stop the sweep.
func NewStore(cfg Config, logger zerolog.Logger) *Store {
	if cfg.DefaultTTL <= 0 {
		cfg.DefaultTTL = DefaultTTL
	}

	s := &Store{
		// The sweep is driven by our own ticker so that Close can stop it.
		items:    gocache.New(cfg.DefaultTTL, 0),
		config:   cfg,
		observer: cfg.Observer,
		logger:   logger,
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}
	if s.observer == nil {
		s.observer = nopObserver{}
	}
	s.enabled.Store(cfg.Enabled)
	s.items.OnEvicted(s.evicted)

	if cfg.CheckPeriod > 0 {
		go s.sweep(cfg.CheckPeriod)
	} else {
		close(s.done)
	}

	s.logger.Info().
		Bool("enabled", cfg.Enabled).
		Dur("default_ttl", cfg.DefaultTTL).
		Dur("check_period", cfg.CheckPeriod).
		Msg("Cache store initialised")

	return s
}

// Enabled reports whether reads and writes are active.
func (s *Store) Enabled() bool {
	return s.enabled.Load()
}

// SetEnabled switches caching on or off at runtime without touching
// stored entries.
func (s *Store) SetEnabled(enabled bool) {
	s.enabled.Store(enabled)
}

// DefaultTTL returns the TTL applied to Set calls without one.
func (s *Store) DefaultTTL() time.Duration {
	return s.config.DefaultTTL
}

// Get returns the fresh entry stored under key.
// Expired entries are reported absent even before the sweep removes them.
func (s *Store) Get(key string) (*Entry, bool) {
	if !s.enabled.Load() {
		return nil, false
	}

	item, found := s.items.Get(key)
	if !found {
		s.misses.Add(1)
		CacheMisses.Inc()
		s.observer.Notify(Event{Kind: EventMiss, Key: key})
		return nil, false
	}

	s.hits.Add(1)
	CacheHits.Inc()
	s.observer.Notify(Event{Kind: EventHit, Key: key})
	return item.(*Entry), true
}

// Set stores value under key, replacing any previous entry.
// A non-positive ttl selects the default TTL.
func (s *Store) Set(key string, value []byte, ttl time.Duration) bool {
	if !s.enabled.Load() {
		return false
	}
	if ttl <= 0 {
		ttl = s.config.DefaultTTL
	}

	now := time.Now()
	s.items.Set(key, &Entry{
		Key:      key,
		Value:    value,
		CachedAt: now,
		Expires:  now.Add(ttl),
	}, ttl)

	CacheEntries.Set(float64(s.items.ItemCount()))
	s.observer.Notify(Event{Kind: EventSet, Key: key})
	return true
}

// Delete removes key and returns the number of entries removed.
// A pattern containing '*' removes every key starting with the text
// before the first '*', e.g. "companies:*".
func (s *Store) Delete(pattern string) int {
	if !s.enabled.Load() {
		return 0
	}

	s.evictMu.Lock()
	s.explicit, s.removed = true, 0
	if prefix, _, wildcard := strings.Cut(pattern, "*"); wildcard {
		for key := range s.items.Items() {
			if strings.HasPrefix(key, prefix) {
				s.items.Delete(key)
			}
		}
	} else {
		s.items.Delete(pattern)
	}
	removed := s.removed
	s.explicit, s.removed = false, 0
	s.evictMu.Unlock()

	CacheEntries.Set(float64(s.items.ItemCount()))
	return removed
}

// Flush removes every entry.
func (s *Store) Flush() {
	if !s.enabled.Load() {
		return
	}

	n := s.items.ItemCount()
	s.items.Flush()

	CacheEvictions.WithLabelValues("flush").Add(float64(n))
	CacheEntries.Set(0)
	s.observer.Notify(Event{Kind: EventFlush})
}

// Stats returns hit/miss counters and the size of the fresh entries.
func (s *Store) Stats() Stats {
	stats := Stats{
		Hits:   s.hits.Load(),
		Misses: s.misses.Load(),
	}
	for key, item := range s.items.Items() {
		stats.Keys++
		stats.KeySize += len(key)
		stats.ValueSize += len(item.Object.(*Entry).Value)
	}
	return stats
}

// Hits returns the number of lookups that found a fresh entry.
func (s *Store) Hits() uint64 {
	return s.hits.Load()
}

// Keys returns the keys of all fresh entries in lexicographic order.
func (s *Store) Keys() []string {
	items := s.items.Items()
	keys := make([]string, 0, len(items))
	for key := range items {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}

// Has reports whether a fresh entry exists for key without counting a lookup.
func (s *Store) Has(key string) bool {
	_, found := s.items.Get(key)
	return found
}

// TTL returns the remaining lifetime of key.
func (s *Store) TTL(key string) (time.Duration, bool) {
	item, found := s.items.Get(key)
	if !found {
		return 0, false
	}
	return item.(*Entry).TTL(), true
}

// SetTTL gives key a new lifetime starting now.
// A non-positive ttl selects the default TTL.
func (s *Store) SetTTL(key string, ttl time.Duration) bool {
	item, found := s.items.Get(key)
	if !found {
		return false
	}
	if ttl <= 0 {
		ttl = s.config.DefaultTTL
	}

	prev := item.(*Entry)
	next := &Entry{
		Key:      prev.Key,
		Value:    prev.Value,
		CachedAt: prev.CachedAt,
		Expires:  time.Now().Add(ttl),
	}
	return s.items.Replace(key, next, ttl) == nil
}

// Close stops the background sweep. The store remains readable.
func (s *Store) Close() {
	s.stopOnce.Do(func() {
		close(s.stop)
	})
	<-s.done
}

func (s *Store) sweep(period time.Duration) {
	defer close(s.done)

	ticker := time.NewTicker(period)
	defer ticker.Stop()

	for {
		select {
		case <-s.stop:
			return
		case <-ticker.C:
			s.evictMu.Lock()
			s.items.DeleteExpired()
			s.evictMu.Unlock()
			CacheEntries.Set(float64(s.items.ItemCount()))
		}
	}
}

// evicted runs after an entry leaves the store through Delete or the sweep,
// with evictMu held by the caller.
func (s *Store) evicted(key string, _ any) {
	kind := EventExpired
	if s.explicit {
		kind = EventDeleted
		s.removed++
	}

	CacheEvictions.WithLabelValues(string(kind)).Inc()
	s.observer.Notify(Event{Kind: kind, Key: key})
}
