package server

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"runtime"
	"time"

	"github.com/Sternrassler/registry-gateway/pkg/cache"
	"github.com/Sternrassler/registry-gateway/pkg/companieshouse"
	"github.com/Sternrassler/registry-gateway/pkg/logging"
	"github.com/Sternrassler/registry-gateway/pkg/ratelimit"
)

func (s *Server) routes(mux *http.ServeMux) {
	public := s.config.Prefix + "/public"
	admin := s.config.Prefix + "/admin"

	mux.HandleFunc("GET "+public+"/health", s.health)
	mux.HandleFunc("GET "+public+"/my-ip", s.myIP)
	mux.Handle("GET "+public+"/companies-house-uk/advanced-search",
		validateQuery(companieshouse.ValidateQuery,
			s.mediator.Handler(cache.RouteConfig{}, s.advancedSearch)))

	mux.HandleFunc("GET "+admin+"/cache/stats", s.cacheStats)
	mux.HandleFunc("DELETE "+admin+"/cache/keys/{key}", s.deleteCacheKey)
	mux.HandleFunc("POST "+admin+"/cache/flush", s.flushCache)
}

func (s *Server) health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// ready reports whether the shared rate limit store is reachable.
func (s *Server) ready(w http.ResponseWriter, r *http.Request) {
	if s.config.Ready != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := s.config.Ready(ctx); err != nil {
			logger := logging.FromContext(r.Context(), s.logger)
			logger.Warn().Err(err).Msg("Readiness check failed")
			writeError(w, http.StatusServiceUnavailable, "Service Unavailable")
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

func (s *Server) myIP(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"ip": ratelimit.ClientIP(r)})
}

func (s *Server) advancedSearch(r *http.Request) (any, error) {
	return s.search.AdvancedSearch(r.Context(), r.URL.Query())
}

// validateQuery rejects requests whose query fails validate with a 400.
func validateQuery(validate func(url.Values) []companieshouse.FieldError, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if problems := validate(r.URL.Query()); len(problems) > 0 {
			writeJSON(w, http.StatusBadRequest, ErrorResponse{
				Message: ValidationFailedMessage,
				Status:  http.StatusBadRequest,
				Errors:  problems,
			})
			return
		}
		next.ServeHTTP(w, r)
	})
}

// CacheKeyInfo is one key in the stats listing.
// TTL is the expiry as Unix milliseconds.
type CacheKeyInfo struct {
	Key string `json:"key"`
	TTL int64  `json:"ttl"`
}

// CacheStatsResponse is the body of the cache stats route.
type CacheStatsResponse struct {
	Stats       cache.Stats       `json:"stats"`
	Keys        []CacheKeyInfo    `json:"keys"`
	TotalKeys   int               `json:"totalKeys"`
	MemoryUsage map[string]string `json:"memoryUsage"`
}

func (s *Server) cacheStats(w http.ResponseWriter, _ *http.Request) {
	now := time.Now()
	keys := s.store.Keys()

	infos := make([]CacheKeyInfo, 0, len(keys))
	for _, key := range keys {
		ttl, ok := s.store.TTL(key)
		if !ok {
			continue
		}
		infos = append(infos, CacheKeyInfo{Key: key, TTL: now.Add(ttl).UnixMilli()})
	}

	writeJSON(w, http.StatusOK, CacheStatsResponse{
		Stats:       s.store.Stats(),
		Keys:        infos,
		TotalKeys:   len(infos),
		MemoryUsage: memoryUsage(),
	})
}

func (s *Server) deleteCacheKey(w http.ResponseWriter, r *http.Request) {
	key := r.PathValue("key")
	deleted := s.store.Delete(key)

	logger := logging.FromContext(r.Context(), s.logger)
	logger.Info().
		Str("key", key).
		Int("deleted", deleted).
		Msg("Cache keys deleted")

	writeJSON(w, http.StatusOK, map[string]int{"deleted": deleted})
}

func (s *Server) flushCache(w http.ResponseWriter, r *http.Request) {
	s.store.Flush()
	logger := logging.FromContext(r.Context(), s.logger)
	logger.Info().Msg("Cache flushed")
	writeJSON(w, http.StatusOK, map[string]string{"message": "Cache cleared"})
}

func memoryUsage() map[string]string {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)

	return map[string]string{
		"residentSetSize": megabytes(m.Sys),
		"heapTotal":       megabytes(m.HeapSys),
		"heapUsed":        megabytes(m.HeapAlloc),
		"stackInUse":      megabytes(m.StackInuse),
	}
}

func megabytes(b uint64) string {
	return fmt.Sprintf("%.3f Megabytes", float64(b)/1e6)
}
