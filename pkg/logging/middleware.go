package logging

import (
	"context"
	"crypto/rand"
	"net/http"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/rs/zerolog"
)

// RequestIDHeader carries the per-request identifier in both directions.
const RequestIDHeader = "X-Request-ID"

type ctxKey struct{}

var (
	entropyMu sync.Mutex
	entropy   = ulid.Monotonic(rand.Reader, 0)
)

// NewRequestID returns a fresh ULID string.
func NewRequestID() string {
	entropyMu.Lock()
	defer entropyMu.Unlock()
	return ulid.MustNew(ulid.Timestamp(time.Now()), entropy).String()
}

// RequestID returns the request ID stored in ctx by Middleware.
func RequestID(ctx context.Context) string {
	id, _ := ctx.Value(ctxKey{}).(string)
	return id
}

// FromContext returns logger enriched with the request ID from ctx, if any.
func FromContext(ctx context.Context, logger zerolog.Logger) zerolog.Logger {
	if id := RequestID(ctx); id != "" {
		return logger.With().Str("request_id", id).Logger()
	}
	return logger
}

// statusRecorder captures the status code and body size written downstream.
type statusRecorder struct {
	http.ResponseWriter
	status int
	bytes  int
}

func (r *statusRecorder) WriteHeader(code int) {
	if r.status == 0 {
		r.status = code
	}
	r.ResponseWriter.WriteHeader(code)
}

func (r *statusRecorder) Write(b []byte) (int, error) {
	if r.status == 0 {
		r.status = http.StatusOK
	}
	n, err := r.ResponseWriter.Write(b)
	r.bytes += n
	return n, err
}

func (r *statusRecorder) Unwrap() http.ResponseWriter {
	return r.ResponseWriter
}

// Middleware assigns a request ID and writes one access log line per request.
// An inbound X-Request-ID that parses as a ULID is kept.
func Middleware(logger zerolog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			id := r.Header.Get(RequestIDHeader)
			if _, err := ulid.ParseStrict(id); err != nil {
				id = NewRequestID()
			}
			w.Header().Set(RequestIDHeader, id)

			rec := &statusRecorder{ResponseWriter: w}
			next.ServeHTTP(rec, r.WithContext(context.WithValue(r.Context(), ctxKey{}, id)))

			if rec.status == 0 {
				rec.status = http.StatusOK
			}

			event := logger.Info()
			if rec.status >= http.StatusInternalServerError {
				event = logger.Error()
			}
			event.
				Str("request_id", id).
				Str("method", r.Method).
				Str("path", r.URL.Path).
				Int("status", rec.status).
				Int("bytes", rec.bytes).
				Dur("duration", time.Since(start)).
				Str("remote_addr", r.RemoteAddr).
				Str("cache", w.Header().Get("X-Cache")).
				Msg("HTTP request")
		})
	}
}
