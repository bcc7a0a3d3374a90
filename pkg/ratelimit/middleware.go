package ratelimit

import (
	"encoding/json"
	"net"
	"net/http"
	"strconv"
)

// LimitedMessage is the body message of a rejected request.
const LimitedMessage = "Too many requests from this IP address, please try again later"

// KeyFunc derives the rate limit key of a request.
type KeyFunc func(r *http.Request) string

// ClientIP keys requests by the remote address without its port.
func ClientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// Middleware enforces l per key. Every response carries the
// X-RateLimit-Limit, X-RateLimit-Remaining and X-RateLimit-Reset headers;
// rejected requests get 429 with Retry-After.
func Middleware(l *Limiter, keyFunc KeyFunc) func(http.Handler) http.Handler {
	if keyFunc == nil {
		keyFunc = ClientIP
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			state := l.Allow(r.Context(), keyFunc(r))

			h := w.Header()
			h.Set("X-RateLimit-Limit", strconv.Itoa(state.Limit))
			h.Set("X-RateLimit-Remaining", strconv.Itoa(state.Remaining()))
			h.Set("X-RateLimit-Reset", strconv.FormatInt(state.ResetAt.Unix(), 10))

			if !state.Allowed() {
				h.Set("Retry-After", strconv.Itoa(state.RetryAfterSeconds()))
				h.Set("Content-Type", "application/json; charset=utf-8")
				w.WriteHeader(http.StatusTooManyRequests)
				_ = json.NewEncoder(w).Encode(map[string]any{
					"message": LimitedMessage,
					"status":  http.StatusTooManyRequests,
				})
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
