// Package logging provides structured logging configuration using zerolog.
package logging

import (
	"io"
	"os"
	"strings"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// LogLevel represents the logging level.
type LogLevel string

const (
	// LevelDebug logs debug messages and above.
	LevelDebug LogLevel = "debug"

	// LevelInfo logs info messages and above.
	LevelInfo LogLevel = "info"

	// LevelWarn logs warning messages and above.
	LevelWarn LogLevel = "warn"

	// LevelError logs error messages only.
	LevelError LogLevel = "error"

	// LevelHTTP is an alias of LevelInfo kept for LOG_LEVEL compatibility.
	// Access log lines are written at info.
	LevelHTTP LogLevel = "http"

	// LevelDev logs debug messages and above with console output.
	LevelDev LogLevel = "dev"
)

// Config holds logger configuration.
type Config struct {
	// Level is the minimum log level to output.
	Level LogLevel

	// Pretty enables human-readable console output (default: false for JSON).
	// LevelDev forces it on.
	Pretty bool

	// Output is the writer to output logs to (default: os.Stderr).
	Output io.Writer
}

// DefaultConfig returns a default logger configuration.
func DefaultConfig() Config {
	return Config{
		Level:  LevelInfo,
		Pretty: false,
		Output: os.Stderr,
	}
}

// Setup configures the global zerolog logger.
func Setup(cfg Config) zerolog.Logger {
	// Set global log level
	level := parseLevel(cfg.Level)
	zerolog.SetGlobalLevel(level)

	if cfg.Output == nil {
		cfg.Output = os.Stderr
	}

	// Configure output
	var output io.Writer = cfg.Output
	if cfg.Pretty || isDev(cfg.Level) {
		output = zerolog.ConsoleWriter{Out: cfg.Output}
	}

	// Create logger with timestamp
	logger := zerolog.New(output).With().Timestamp().Logger()

	// Set as global logger
	log.Logger = logger

	return logger
}

// ValidLevel reports whether level is one of the accepted LOG_LEVEL values.
func ValidLevel(level LogLevel) bool {
	switch strings.ToLower(string(level)) {
	case "debug", "info", "warn", "warning", "error", "http", "dev":
		return true
	}
	return false
}

// parseLevel converts LogLevel to zerolog.Level.
func parseLevel(level LogLevel) zerolog.Level {
	switch strings.ToLower(string(level)) {
	case "debug", "dev":
		return zerolog.DebugLevel
	case "info", "http":
		return zerolog.InfoLevel
	case "warn", "warning":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}

func isDev(level LogLevel) bool {
	return strings.EqualFold(string(level), string(LevelDev))
}

// NewLogger creates a new logger with the given component name.
func NewLogger(component string) zerolog.Logger {
	return log.With().Str("component", component).Logger()
}

// Log Level Guidelines:
//
// Debug: Detailed information for debugging
//   - Cache operations (hit/miss, key, TTL, eviction events)
//   - Upstream pagination progress
//   - Internal state changes
//
// Info: Normal operation events
//   - Access log lines (one per request)
//   - Server startup/shutdown
//   - Cache flushes triggered through the admin API
//
// Warn: Warning conditions that don't prevent operation
//   - Rate limit rejections
//   - Retry attempts against the upstream registry
//   - Rate limit store failures (requests are let through)
//
// Error: Error conditions requiring attention
//   - Failed upstream requests (after retries)
//   - Recovered cache failures
//   - Unhandled handler errors
//   - Configuration errors
//
// Context Fields:
//   - request_id: ULID assigned per inbound request
//   - method, path, status, duration: access log fields
//   - key: cache key
//   - ttl: cache entry TTL
//   - error_class: upstream error classification (client, server, rate_limit, network)
//   - service: external service name
