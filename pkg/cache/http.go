package cache

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"time"
)

// Directives are the Cache-Control directives a route advertises to
// downstream caches (browsers, CDNs, proxies).
type Directives struct {
	// Public lets any cache store the response. It also adds
	// Last-Modified and Expires headers.
	Public bool

	// NoStore forbids storing the response anywhere, including this gateway.
	NoStore bool

	// NoCache requires revalidation before every reuse.
	NoCache bool

	// MustRevalidate forbids serving stale responses.
	MustRevalidate bool

	// MaxAge is the client freshness lifetime in seconds.
	MaxAge *int

	// SMaxAge is the shared cache freshness lifetime in seconds.
	SMaxAge *int

	// StaleWhileRevalidate allows serving stale content while refreshing, in seconds.
	StaleWhileRevalidate *int
}

// Seconds returns a pointer to n, for the optional Directives fields.
func Seconds(n int) *int {
	return &n
}

// CacheControl synthesizes the Cache-Control header value for d.
// no-store wins over everything, then no-cache; otherwise the configured
// directives are emitted in a fixed order, falling back to no-cache.
func CacheControl(d Directives) string {
	if d.NoStore {
		return "no-store"
	}
	if d.NoCache {
		return "no-cache"
	}

	var directives []string
	if d.Public {
		directives = append(directives, "public")
	}
	if d.MustRevalidate {
		directives = append(directives, "must-revalidate")
	}
	if d.MaxAge != nil {
		directives = append(directives, "max-age="+strconv.Itoa(*d.MaxAge))
	}
	if d.SMaxAge != nil {
		directives = append(directives, "s-maxage="+strconv.Itoa(*d.SMaxAge))
	}
	if d.StaleWhileRevalidate != nil {
		directives = append(directives, "stale-while-revalidate="+strconv.Itoa(*d.StaleWhileRevalidate))
	}

	if len(directives) == 0 {
		return "no-cache"
	}
	return strings.Join(directives, ", ")
}

// ClientRequestedBypass reports whether the request carries a
// Cache-Control no-cache directive.
func ClientRequestedBypass(r *http.Request) bool {
	for _, value := range r.Header.Values("Cache-Control") {
		for _, directive := range strings.Split(value, ",") {
			if strings.EqualFold(strings.TrimSpace(directive), "no-cache") {
				return true
			}
		}
	}
	return false
}

// setFreshnessHeaders adds Last-Modified and Expires headers.
func setFreshnessHeaders(h http.Header, lastModified, expires time.Time) {
	h.Set("Last-Modified", lastModified.UTC().Format(http.TimeFormat))
	h.Set("Expires", expires.UTC().Format(http.TimeFormat))
}

// remainingSeconds renders a TTL for the X-Cache-TTL header, rounding up.
func remainingSeconds(ttl time.Duration) string {
	if ttl <= 0 {
		return "N/A"
	}
	secs := ttl / time.Second
	if ttl%time.Second != 0 {
		secs++
	}
	return strconv.FormatInt(int64(secs), 10)
}

func writeJSON(w http.ResponseWriter, status int, body []byte) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_, _ = w.Write(body)
}

// defaultErrorHandler answers with a generic 500 JSON body.
func defaultErrorHandler(w http.ResponseWriter, _ *http.Request, _ error) {
	body, _ := json.Marshal(map[string]any{
		"message": http.StatusText(http.StatusInternalServerError),
		"status":  http.StatusInternalServerError,
	})
	writeJSON(w, http.StatusInternalServerError, body)
}
