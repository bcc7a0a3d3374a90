package companieshouse

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"time"

	"github.com/rs/zerolog/log"
)

// RetryConfig holds the configuration for retry logic.
type RetryConfig struct {
	// MaxAttempts is the maximum number of attempts (including the initial request).
	MaxAttempts int

	// InitialBackoff is the initial backoff duration.
	InitialBackoff time.Duration

	// MaxBackoff is the maximum backoff duration.
	MaxBackoff time.Duration

	// BackoffMultiplier is the multiplier for exponential backoff.
	BackoffMultiplier float64
}

// RetryPolicy selects the retry configuration for an error class.
type RetryPolicy func(ErrorClass) RetryConfig

// DefaultRetryConfig returns the default retry configuration.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts:       3,
		InitialBackoff:    1 * time.Second,
		MaxBackoff:        30 * time.Second,
		BackoffMultiplier: 2.0,
	}
}

// RetryConfigForErrorClass returns the appropriate retry configuration for an error class.
func RetryConfigForErrorClass(errorClass ErrorClass) RetryConfig {
	switch errorClass {
	case ErrorClassServer:
		// 5xx server errors - shorter backoff
		return RetryConfig{
			MaxAttempts:       3,
			InitialBackoff:    1 * time.Second,
			MaxBackoff:        10 * time.Second,
			BackoffMultiplier: 2.0,
		}
	case ErrorClassRateLimit:
		// 429 - the upstream window is five minutes long
		return RetryConfig{
			MaxAttempts:       3,
			InitialBackoff:    5 * time.Second,
			MaxBackoff:        60 * time.Second,
			BackoffMultiplier: 2.0,
		}
	case ErrorClassNetwork:
		// Network errors - medium backoff
		return RetryConfig{
			MaxAttempts:       3,
			InitialBackoff:    2 * time.Second,
			MaxBackoff:        30 * time.Second,
			BackoffMultiplier: 2.0,
		}
	default:
		return DefaultRetryConfig()
	}
}

// retryWithBackoff executes fn with exponential backoff retry logic.
// classify maps each failure to an error class, which selects the backoff
// parameters through policy. It respects context cancellation and adds
// jitter to prevent thundering herd.
func retryWithBackoff(ctx context.Context, policy RetryPolicy, fn func() error, classify func(error) ErrorClass) error {
	if policy == nil {
		policy = RetryConfigForErrorClass
	}

	var (
		lastErr    error
		errorClass ErrorClass
		backoff    time.Duration
		config     RetryConfig
	)

	for attempt := 1; ; attempt++ {
		// Execute the function
		err := fn()
		if err == nil {
			if attempt > 1 {
				log.Info().
					Str("error_class", string(errorClass)).
					Int("attempt", attempt).
					Msg("Request succeeded after retry")
			}
			return nil
		}

		lastErr = err
		errorClass = classify(err)

		// Don't retry client errors - return immediately
		if !shouldRetry(errorClass) {
			return lastErr
		}

		if attempt == 1 {
			config = policy(errorClass)
			backoff = config.InitialBackoff
		}

		// If this was the last attempt, don't wait
		if attempt >= config.MaxAttempts {
			break
		}

		upstreamRetriesTotal.WithLabelValues(string(errorClass)).Inc()

		// Add jitter (±20% randomness)
		jitter := time.Duration(float64(backoff) * (0.8 + rand.Float64()*0.4))
		upstreamRetryBackoffSeconds.WithLabelValues(string(errorClass)).Observe(jitter.Seconds())

		log.Debug().
			Str("error_class", string(errorClass)).
			Int("attempt", attempt).
			Dur("backoff", jitter).
			Msg("Retrying request after backoff")

		timer := time.NewTimer(jitter)
		select {
		case <-ctx.Done():
			timer.Stop()
			log.Warn().
				Str("error_class", string(errorClass)).
				Int("attempt", attempt).
				Msg("Context cancelled during retry backoff")
			return fmt.Errorf("%w: %w", ErrContextCancelled, errors.Join(ctx.Err(), lastErr))
		case <-timer.C:
		}

		// Calculate next backoff (exponential)
		backoff = time.Duration(float64(backoff) * config.BackoffMultiplier)
		if backoff > config.MaxBackoff {
			backoff = config.MaxBackoff
		}
	}

	// All retries exhausted
	upstreamRetryExhaustedTotal.WithLabelValues(string(errorClass)).Inc()
	log.Warn().
		Str("error_class", string(errorClass)).
		Int("max_attempts", config.MaxAttempts).
		Msg("Retry attempts exhausted")

	return fmt.Errorf("%w after %d attempts: %w", ErrRetryExhausted, config.MaxAttempts, lastErr)
}
