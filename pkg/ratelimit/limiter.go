package ratelimit

import (
	"context"
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
)

// Prometheus metrics for rate limiting.
var (
	rateLimitRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "gateway_ratelimit_requests_total",
		Help: "Rate limit decisions by limiter and result (allowed, limited)",
	}, []string{"limiter", "result"})

	rateLimitStoreErrorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "gateway_ratelimit_store_errors_total",
		Help: "Rate limit store failures; affected requests are let through",
	}, []string{"limiter"})

	rateLimitWaitSeconds = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "gateway_ratelimit_wait_seconds",
		Help:    "Time spent waiting for a rate limit window to reset",
		Buckets: []float64{0.01, 0.1, 0.5, 1, 5, 15, 60, 300},
	}, []string{"limiter"})
)

// ErrInvalidConfig is returned by NewLimiter for a non-positive limit or window.
var ErrInvalidConfig = errors.New("rate limit requires a positive limit and window")

// Config holds limiter configuration.
type Config struct {
	// Name labels metrics and log lines.
	Name string

	// Limit is the number of requests allowed per window.
	Limit int

	// Window is the length of one counting window.
	Window time.Duration
}

// Limiter gates requests per key using a fixed-window Store.
type Limiter struct {
	config Config
	store  Store
	logger zerolog.Logger
}

// NewLimiter creates a Limiter over store.
func NewLimiter(cfg Config, store Store, logger zerolog.Logger) (*Limiter, error) {
	if cfg.Limit <= 0 || cfg.Window <= 0 {
		return nil, ErrInvalidConfig
	}
	if store == nil {
		store = NewMemoryStore(cfg.Window)
	}
	if cfg.Name == "" {
		cfg.Name = "default"
	}
	return &Limiter{
		config: cfg,
		store:  store,
		logger: logger,
	}, nil
}

// Limit returns the configured requests per window.
func (l *Limiter) Limit() int {
	return l.config.Limit
}

// Window returns the configured window length.
func (l *Limiter) Window() time.Duration {
	return l.config.Window
}

// Allow counts one request for key and reports the resulting state.
// A failing store lets the request through with a full window.
func (l *Limiter) Allow(ctx context.Context, key string) State {
	count, resetAt, err := l.store.Increment(ctx, key, l.config.Window)
	if err != nil {
		rateLimitStoreErrorsTotal.WithLabelValues(l.config.Name).Inc()
		l.logger.Warn().
			Err(err).
			Str("limiter", l.config.Name).
			Str("key", key).
			Msg("Rate limit store unavailable, allowing request")
		return State{Limit: l.config.Limit, Count: 0, ResetAt: time.Now().Add(l.config.Window)}
	}

	state := State{Limit: l.config.Limit, Count: count, ResetAt: resetAt}
	if state.Allowed() {
		rateLimitRequestsTotal.WithLabelValues(l.config.Name, "allowed").Inc()
	} else {
		rateLimitRequestsTotal.WithLabelValues(l.config.Name, "limited").Inc()
		l.logger.Warn().
			Str("limiter", l.config.Name).
			Str("key", key).
			Int("count", count).
			Dur("retry_after", state.TimeUntilReset()).
			Msg("Rate limit exceeded")
	}
	return state
}

// Wait blocks until a request for key fits in a window or ctx is done.
func (l *Limiter) Wait(ctx context.Context, key string) error {
	start := time.Now()
	defer func() {
		rateLimitWaitSeconds.WithLabelValues(l.config.Name).Observe(time.Since(start).Seconds())
	}()

	for {
		state := l.Allow(ctx, key)
		if state.Allowed() {
			return nil
		}

		wait := state.TimeUntilReset()
		if wait <= 0 {
			continue
		}

		l.logger.Debug().
			Str("limiter", l.config.Name).
			Dur("wait", wait).
			Msg("Waiting for rate limit window")

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}

// Reset discards the current window for key.
func (l *Limiter) Reset(ctx context.Context, key string) error {
	return l.store.Reset(ctx, key)
}
