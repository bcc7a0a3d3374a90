package cache

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/rs/zerolog"
)

// JSONHandlerFunc produces the JSON-serialisable response value for a request.
// Returning a non-nil error hands the request to the Mediator's ErrorHandler;
// errors are never cached.
type JSONHandlerFunc func(r *http.Request) (any, error)

// ErrorHandler writes the response for a failed JSONHandlerFunc.
type ErrorHandler func(w http.ResponseWriter, r *http.Request, err error)

// Mediator serves cached responses and captures handler output on a miss.
type Mediator struct {
	store   *Store
	logger  zerolog.Logger
	onError ErrorHandler
}

// NewMediator creates a Mediator over store.
// A nil onError answers handler errors with a generic 500 response.
func NewMediator(store *Store, logger zerolog.Logger, onError ErrorHandler) *Mediator {
	if store == nil {
		panic("cache store cannot be nil")
	}
	if onError == nil {
		onError = defaultErrorHandler
	}
	return &Mediator{
		store:   store,
		logger:  logger,
		onError: onError,
	}
}

// Handler wraps next with the response cache configured by cfg.
func (m *Mediator) Handler(cfg RouteConfig, next JSONHandlerFunc) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if ClientRequestedBypass(r) {
			CacheBypasses.WithLabelValues("client").Inc()
			m.passThrough(w, r, next)
			return
		}

		if cfg.Condition != nil && !cfg.Condition(r) {
			CacheBypasses.WithLabelValues("condition").Inc()
			m.passThrough(w, r, next)
			return
		}

		var (
			key   string
			keyed bool
		)
		if !m.guard("key", "", func() { key, keyed = cfg.ResolveKey(r) }) {
			m.passThrough(w, r, next)
			return
		}
		if !keyed {
			CacheBypasses.WithLabelValues("body").Inc()
			m.passThrough(w, r, next)
			return
		}

		var (
			entry *Entry
			hit   bool
		)
		m.guard("get", key, func() { entry, hit = m.store.Get(key) })

		if hit {
			m.logger.Debug().Str("key", key).Dur("ttl", entry.TTL()).Msg("Serving cached response")

			h := w.Header()
			h.Set("X-Cache", "HIT")
			h.Set("X-Cache-Key", key)
			h.Set("X-Cache-TTL", remainingSeconds(entry.TTL()))
			h.Set("X-Cache-Hits", strconv.FormatUint(m.store.Hits(), 10))
			h.Set("Cache-Control", CacheControl(cfg.Directives))
			if cfg.Public {
				setFreshnessHeaders(h, entry.CachedAt, entry.Expires)
			}
			writeJSON(w, http.StatusOK, entry.Value)
			return
		}

		value, err := next(r)
		if err != nil {
			m.onError(w, r, err)
			return
		}

		body, err := json.Marshal(value)
		if err != nil {
			CacheErrors.WithLabelValues("encode").Inc()
			m.onError(w, r, fmt.Errorf("encode response: %w", err))
			return
		}

		ttl := cfg.TTL
		if ttl <= 0 {
			ttl = m.store.DefaultTTL()
		}

		if !cfg.NoStore {
			m.guard("set", key, func() {
				if m.store.Set(key, body, ttl) {
					m.logger.Debug().Str("key", key).Dur("ttl", ttl).Msg("Cached response")
				}
			})
		}

		h := w.Header()
		h.Set("X-Cache", "MISS")
		h.Set("X-Cache-Key", key)
		h.Set("Cache-Control", CacheControl(cfg.Directives))
		if cfg.Public {
			now := time.Now()
			setFreshnessHeaders(h, now, now.Add(ttl))
		}
		writeJSON(w, http.StatusOK, body)
	})
}

// passThrough runs next without touching the cache.
func (m *Mediator) passThrough(w http.ResponseWriter, r *http.Request, next JSONHandlerFunc) {
	value, err := next(r)
	if err != nil {
		m.onError(w, r, err)
		return
	}

	body, err := json.Marshal(value)
	if err != nil {
		m.onError(w, r, fmt.Errorf("encode response: %w", err))
		return
	}
	writeJSON(w, http.StatusOK, body)
}

// guard runs a cache operation, converting a panic into a logged error.
// It reports whether fn completed.
func (m *Mediator) guard(operation, key string, fn func()) (ok bool) {
	defer func() {
		if rec := recover(); rec != nil {
			CacheErrors.WithLabelValues(operation).Inc()
			m.logger.Error().
				Str("operation", operation).
				Str("key", key).
				Interface("panic", rec).
				Msg("Cache operation failed, continuing without cache")
			ok = false
		}
	}()
	fn()
	return true
}
