// Package server assembles the gateway's HTTP surface.
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/Sternrassler/registry-gateway/pkg/cache"
	"github.com/Sternrassler/registry-gateway/pkg/companieshouse"
	"github.com/Sternrassler/registry-gateway/pkg/logging"
	"github.com/Sternrassler/registry-gateway/pkg/metrics"
	"github.com/Sternrassler/registry-gateway/pkg/ratelimit"
)

// Searcher runs Companies House advanced searches.
type Searcher interface {
	AdvancedSearch(ctx context.Context, query url.Values) ([]companieshouse.Company, error)
}

// Config holds server configuration.
type Config struct {
	// Addr is the listen address, e.g. ":3000".
	Addr string

	// Prefix is prepended to every API route, e.g. "/api/v1".
	Prefix string

	// CORSOrigin is sent as Access-Control-Allow-Origin.
	CORSOrigin string

	// ShutdownTimeout bounds graceful shutdown (default: 10s).
	ShutdownTimeout time.Duration

	// Ready, when set, backs the /ready probe.
	Ready func(context.Context) error
}

// Server is the gateway HTTP server.
type Server struct {
	config   Config
	store    *cache.Store
	mediator *cache.Mediator
	search   Searcher
	limiter  *ratelimit.Limiter
	logger   zerolog.Logger
	handler  http.Handler
}

// New wires the routes and middleware. limiter may be nil to disable
// inbound rate limiting.
func New(cfg Config, store *cache.Store, search Searcher, limiter *ratelimit.Limiter, logger zerolog.Logger) *Server {
	if cfg.ShutdownTimeout <= 0 {
		cfg.ShutdownTimeout = 10 * time.Second
	}
	if cfg.CORSOrigin == "" {
		cfg.CORSOrigin = "*"
	}

	s := &Server{
		config:  cfg,
		store:   store,
		search:  search,
		limiter: limiter,
		logger:  logger,
	}
	s.mediator = cache.NewMediator(store, logger.With().Str("component", "cache").Logger(), s.handleError)

	mux := http.NewServeMux()
	s.routes(mux)
	mux.HandleFunc("GET /ready", s.ready)
	mux.Handle("/metrics", metrics.Handler())
	mux.HandleFunc("/", s.notFound)

	var h http.Handler = mux
	h = instrument(h)
	h = s.recoverer(h)
	if limiter != nil {
		h = ratelimit.Middleware(limiter, ratelimit.ClientIP)(h)
	}
	h = securityHeaders(h)
	h = cors(cfg.CORSOrigin)(h)
	h = logging.Middleware(logger)(h)
	s.handler = h

	return s
}

// Handler returns the root handler.
func (s *Server) Handler() http.Handler {
	return s.handler
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.config.Addr,
		Handler:           s.handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		s.logger.Info().
			Str("addr", s.config.Addr).
			Str("prefix", s.config.Prefix).
			Msg("Gateway listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("listen: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.config.ShutdownTimeout)
		defer cancel()

		s.logger.Info().Msg("Shutting down gateway")
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutdown: %w", err)
		}
		return nil
	})

	return g.Wait()
}
