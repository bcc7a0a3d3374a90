package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/Sternrassler/registry-gateway/internal/server"
	"github.com/Sternrassler/registry-gateway/pkg/cache"
	"github.com/Sternrassler/registry-gateway/pkg/companieshouse"
	"github.com/Sternrassler/registry-gateway/pkg/config"
	"github.com/Sternrassler/registry-gateway/pkg/logging"
	"github.com/Sternrassler/registry-gateway/pkg/ratelimit"
)

func main() {
	if err := newRootCmd().ExecuteContext(context.Background()); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:          "registry-gateway",
		Short:        "Caching HTTP gateway for the Companies House UK API",
		SilenceUsage: true,
	}
	cmd.PersistentFlags().StringVar(&configPath, "config", "", "YAML config file (environment variables take precedence)")
	cmd.AddCommand(newServeCmd(&configPath), newVersionCmd(&configPath))

	return cmd
}

func newServeCmd(configPath *string) *cobra.Command {
	var port int

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the gateway",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(cmd, *configPath, port)
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			return serve(ctx, cfg)
		},
	}
	cmd.Flags().IntVar(&port, "port", 0, "listen port (overrides PORT)")

	return cmd
}

func newVersionCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the application version and API prefix",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(*configPath)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s (%s)\n", cfg.Version, cfg.APIPrefix())
			return nil
		},
	}
}

// loadConfig loads the configuration and applies a --port override.
func loadConfig(cmd *cobra.Command, path string, port int) (*config.Config, error) {
	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}
	if cmd.Flags().Changed("port") {
		cfg.Server.Port = port
		if err := cfg.Validate(); err != nil {
			return nil, err
		}
	}
	return cfg, nil
}

func serve(ctx context.Context, cfg *config.Config) error {
	logger := logging.Setup(logging.Config{
		Level:  cfg.Log.Level,
		Pretty: !cfg.IsProduction(),
		Output: os.Stderr,
	})

	a, err := build(ctx, cfg, logger)
	if err != nil {
		logger.Error().Err(err).Msg("Failed to start gateway")
		return err
	}
	defer a.Close()

	logger.Info().
		Str("environment", string(cfg.Environment)).
		Int("port", cfg.Server.Port).
		Str("cors_origin", cfg.Server.CORSOrigin).
		Str("log_level", string(cfg.Log.Level)).
		Int("rate_limit_max", cfg.RateLimit.Max).
		Dur("rate_limit_window", cfg.RateLimitWindow()).
		Bool("cache_enabled", cfg.Cache.Enabled).
		Dur("cache_ttl", cfg.CacheTTL()).
		Dur("cache_check_period", cfg.CacheCheckPeriod()).
		Bool("shared_rate_limits", a.redis != nil).
		Msg("Gateway configured")

	return a.server.Run(ctx)
}

// app holds the wired components and what must be released on shutdown.
type app struct {
	server *server.Server
	store  *cache.Store
	redis  *redis.Client
}

// Close stops the cache sweep and closes the Redis connection.
func (a *app) Close() {
	a.store.Close()
	a.closeRedis()
}

// build wires the gateway from cfg. With a REDIS_URL both rate limiters
// share their counters through Redis; otherwise they count in memory.
func build(ctx context.Context, cfg *config.Config, logger zerolog.Logger) (*app, error) {
	a := &app{}

	var limiterStore ratelimit.Store
	var ready func(context.Context) error
	if cfg.Redis.URL != "" {
		opts, err := cfg.Redis.Options()
		if err != nil {
			return nil, fmt.Errorf("redis options: %w", err)
		}
		a.redis = redis.NewClient(opts)

		redisStore := ratelimit.NewRedisStore(a.redis)
		if err := redisStore.Ping(ctx); err != nil {
			_ = a.redis.Close()
			return nil, fmt.Errorf("connect to redis at %s: %w", opts.Addr, err)
		}
		limiterStore = redisStore
		ready = redisStore.Ping
		logger.Info().Str("addr", opts.Addr).Msg("Connected to Redis")
	}

	inbound, err := ratelimit.NewLimiter(ratelimit.Config{
		Name:   "inbound",
		Limit:  cfg.RateLimit.Max,
		Window: cfg.RateLimitWindow(),
	}, limiterStore, logger.With().Str("component", "ratelimit").Logger())
	if err != nil {
		a.closeRedis()
		return nil, fmt.Errorf("inbound rate limit: %w", err)
	}

	upstream, err := ratelimit.NewLimiter(ratelimit.Config{
		Name:   "companies_house_uk",
		Limit:  cfg.CompaniesHouse.RateLimitMax,
		Window: cfg.CompaniesHouse.UpstreamRateLimitWindow(),
	}, limiterStore, logger.With().Str("component", "ratelimit").Logger())
	if err != nil {
		a.closeRedis()
		return nil, fmt.Errorf("upstream rate limit: %w", err)
	}

	chConfig := companieshouse.DefaultConfig(cfg.CompaniesHouse.APIKey)
	chConfig.BaseURL = cfg.CompaniesHouse.BaseURL
	chConfig.Limiter = upstream
	client, err := companieshouse.New(chConfig, logger.With().Str("component", "companieshouse").Logger())
	if err != nil {
		a.closeRedis()
		return nil, fmt.Errorf("companies house client: %w", err)
	}

	cacheLogger := logger.With().Str("component", "cache").Logger()
	a.store = cache.NewStore(cache.Config{
		Enabled:     cfg.Cache.Enabled,
		DefaultTTL:  cfg.CacheTTL(),
		CheckPeriod: cfg.CacheCheckPeriod(),
		Observer:    cache.NewLogObserver(cacheLogger),
	}, cacheLogger)

	a.server = server.New(server.Config{
		Addr:       fmt.Sprintf(":%d", cfg.Server.Port),
		Prefix:     cfg.APIPrefix(),
		CORSOrigin: cfg.Server.CORSOrigin,
		Ready:      ready,
	}, a.store, client, inbound, logger.With().Str("component", "server").Logger())

	return a, nil
}

func (a *app) closeRedis() {
	if a.redis != nil {
		_ = a.redis.Close()
	}
}
