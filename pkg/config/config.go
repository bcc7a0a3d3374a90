// Package config loads the gateway configuration from an optional YAML file
// and environment variables. Environment variables take precedence.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/Masterminds/semver/v3"
	"github.com/redis/go-redis/v9"
	"gopkg.in/yaml.v3"

	"github.com/Sternrassler/registry-gateway/pkg/logging"
)

// Environment names the deployment environment.
type Environment string

const (
	EnvDevelopment Environment = "development"
	EnvTest        Environment = "test"
	EnvProduction  Environment = "production"
)

// DefaultVersion is used when APP_VERSION is unset.
const DefaultVersion = "1.0.0"

// Config represents the application configuration.
type Config struct {
	Environment    Environment          `yaml:"environment"`
	Version        string               `yaml:"version"`
	Server         ServerConfig         `yaml:"server"`
	RateLimit      RateLimitConfig      `yaml:"rate_limit"`
	Log            LogConfig            `yaml:"log"`
	Cache          CacheConfig          `yaml:"cache"`
	Redis          RedisConfig          `yaml:"redis"`
	CompaniesHouse CompaniesHouseConfig `yaml:"companies_house_uk"`
}

// ServerConfig contains HTTP server configuration.
type ServerConfig struct {
	Port       int    `yaml:"port"`
	CORSOrigin string `yaml:"cors_origin"`
}

// RateLimitConfig limits inbound requests per client IP.
type RateLimitConfig struct {
	WindowMS int `yaml:"window_ms"`
	Max      int `yaml:"max"`
}

// LogConfig contains logging configuration.
type LogConfig struct {
	Level logging.LogLevel `yaml:"level"`
}

// CacheConfig contains response cache configuration.
type CacheConfig struct {
	TTLSeconds         int  `yaml:"ttl_s"`
	CheckPeriodSeconds int  `yaml:"check_period_s"`
	Enabled            bool `yaml:"enabled"`
}

// RedisConfig points the rate limiters at a shared Redis.
// An empty URL keeps the counters in memory.
type RedisConfig struct {
	URL string `yaml:"url"`
}

// CompaniesHouseConfig configures the upstream client.
type CompaniesHouseConfig struct {
	BaseURL           string `yaml:"base_url"`
	APIKey            string `yaml:"api_key"`
	RateLimitMax      int    `yaml:"rate_limit_max"`
	RateLimitWindowMS int    `yaml:"rate_limit_window_ms"`
}

// Error lists every problem found while loading or validating.
type Error struct {
	Messages []string
}

func (e *Error) Error() string {
	return "invalid configuration: " + strings.Join(e.Messages, "; ")
}

// Default returns the configuration used when nothing is set.
func Default() *Config {
	return &Config{
		Environment: EnvDevelopment,
		Version:     DefaultVersion,
		Server: ServerConfig{
			Port:       3000,
			CORSOrigin: "*",
		},
		RateLimit: RateLimitConfig{
			WindowMS: 900000,
			Max:      100,
		},
		Log: LogConfig{
			Level: logging.LevelDev,
		},
		Cache: CacheConfig{
			TTLSeconds:         3600,
			CheckPeriodSeconds: 600,
			Enabled:            true,
		},
		CompaniesHouse: CompaniesHouseConfig{
			BaseURL: "https://api.company-information.service.gov.uk",
			// 600 requests per 5 minutes per key
			RateLimitMax:      600,
			RateLimitWindowMS: 300000,
		},
	}
}

// Load builds the configuration from defaults, the YAML file at path (if
// path is not empty) and the environment, then validates it.
func Load(path string) (*Config, error) {
	return LoadWithEnv(path, os.LookupEnv)
}

// LoadWithEnv is Load with an explicit environment lookup.
func LoadWithEnv(path string, lookupEnv func(string) (string, bool)) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing config YAML: %w", err)
		}
	}

	var problems []string
	env := envReader{lookup: lookupEnv, problems: &problems}

	env.setString("ENVIRONMENT", (*string)(&cfg.Environment))
	env.setString("APP_VERSION", &cfg.Version)
	env.setInt("PORT", &cfg.Server.Port)
	env.setString("CORS_ORIGIN", &cfg.Server.CORSOrigin)
	env.setInt("RATE_LIMIT_WINDOW_MS", &cfg.RateLimit.WindowMS)
	env.setInt("RATE_LIMIT_MAX", &cfg.RateLimit.Max)
	env.setString("LOG_LEVEL", (*string)(&cfg.Log.Level))
	env.setInt("CACHE_TTL_S", &cfg.Cache.TTLSeconds)
	env.setInt("CACHE_CHECK_PERIOD_S", &cfg.Cache.CheckPeriodSeconds)
	env.setBool("CACHE_ENABLED", &cfg.Cache.Enabled)
	env.setString("REDIS_URL", &cfg.Redis.URL)
	env.setString("COMPANIES_HOUSE_UK_BASE_URL", &cfg.CompaniesHouse.BaseURL)
	env.setString("COMPANIES_HOUSE_UK_API_KEY", &cfg.CompaniesHouse.APIKey)
	env.setInt("COMPANIES_HOUSE_UK_RATE_LIMIT_MAX", &cfg.CompaniesHouse.RateLimitMax)
	env.setInt("COMPANIES_HOUSE_UK_RATE_LIMIT_WINDOW_MS", &cfg.CompaniesHouse.RateLimitWindowMS)

	problems = append(problems, cfg.problems()...)
	if len(problems) > 0 {
		return nil, &Error{Messages: problems}
	}
	return cfg, nil
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if problems := c.problems(); len(problems) > 0 {
		return &Error{Messages: problems}
	}
	return nil
}

func (c *Config) problems() []string {
	var problems []string

	switch c.Environment {
	case EnvDevelopment, EnvTest, EnvProduction:
	default:
		problems = append(problems, fmt.Sprintf("ENVIRONMENT: must be one of development, test, production, got %q", c.Environment))
	}

	if _, err := semver.NewVersion(c.Version); err != nil {
		problems = append(problems, fmt.Sprintf("APP_VERSION: invalid semantic version %q", c.Version))
	}

	if c.Server.Port < 1 || c.Server.Port > 65535 {
		problems = append(problems, fmt.Sprintf("PORT: must be between 1 and 65535, got %d", c.Server.Port))
	}
	if c.Server.CORSOrigin == "" {
		problems = append(problems, "CORS_ORIGIN: Required")
	}

	if c.RateLimit.WindowMS <= 0 {
		problems = append(problems, "RATE_LIMIT_WINDOW_MS: must be positive")
	}
	if c.RateLimit.Max <= 0 {
		problems = append(problems, "RATE_LIMIT_MAX: must be positive")
	}

	if !logging.ValidLevel(c.Log.Level) {
		problems = append(problems, fmt.Sprintf("LOG_LEVEL: must be one of error, warn, info, http, debug, dev, got %q", c.Log.Level))
	}

	if c.Cache.TTLSeconds <= 0 {
		problems = append(problems, "CACHE_TTL_S: must be positive")
	}
	if c.Cache.CheckPeriodSeconds < 0 {
		problems = append(problems, "CACHE_CHECK_PERIOD_S: must not be negative")
	}

	if c.Redis.URL != "" {
		if _, err := c.Redis.Options(); err != nil {
			problems = append(problems, fmt.Sprintf("REDIS_URL: %v", err))
		}
	}

	if u, err := url.Parse(c.CompaniesHouse.BaseURL); err != nil || u.Scheme == "" || u.Host == "" {
		problems = append(problems, fmt.Sprintf("COMPANIES_HOUSE_UK_BASE_URL: invalid url %q", c.CompaniesHouse.BaseURL))
	}
	if c.CompaniesHouse.RateLimitMax <= 0 {
		problems = append(problems, "COMPANIES_HOUSE_UK_RATE_LIMIT_MAX: must be positive")
	}
	if c.CompaniesHouse.RateLimitWindowMS <= 0 {
		problems = append(problems, "COMPANIES_HOUSE_UK_RATE_LIMIT_WINDOW_MS: must be positive")
	}

	return problems
}

// MajorVersion returns the major component of Version.
func (c *Config) MajorVersion() uint64 {
	v, err := semver.NewVersion(c.Version)
	if err != nil {
		return 0
	}
	return v.Major()
}

// APIPrefix returns the route prefix, e.g. "/api/v1".
func (c *Config) APIPrefix() string {
	return fmt.Sprintf("/api/v%d", c.MajorVersion())
}

// IsProduction reports whether the gateway runs in production.
func (c *Config) IsProduction() bool {
	return c.Environment == EnvProduction
}

// RateLimitWindow returns the inbound rate limit window.
func (c *Config) RateLimitWindow() time.Duration {
	return time.Duration(c.RateLimit.WindowMS) * time.Millisecond
}

// CacheTTL returns the default cache entry lifetime.
func (c *Config) CacheTTL() time.Duration {
	return time.Duration(c.Cache.TTLSeconds) * time.Second
}

// CacheCheckPeriod returns the interval of the cache expiry sweep.
func (c *Config) CacheCheckPeriod() time.Duration {
	return time.Duration(c.Cache.CheckPeriodSeconds) * time.Second
}

// Options returns client options for URL. A bare host:port is accepted
// as well as redis:// and rediss:// URLs.
func (r RedisConfig) Options() (*redis.Options, error) {
	if !strings.Contains(r.URL, "://") {
		return &redis.Options{Addr: r.URL}, nil
	}
	return redis.ParseURL(r.URL)
}

// UpstreamRateLimitWindow returns the Companies House rate limit window.
func (c *CompaniesHouseConfig) UpstreamRateLimitWindow() time.Duration {
	return time.Duration(c.RateLimitWindowMS) * time.Millisecond
}

// envReader overrides fields from the environment, collecting parse errors.
type envReader struct {
	lookup   func(string) (string, bool)
	problems *[]string
}

func (e envReader) get(key string) (string, bool) {
	if e.lookup == nil {
		return "", false
	}
	value, ok := e.lookup(key)
	if !ok || value == "" {
		return "", false
	}
	return value, true
}

func (e envReader) setString(key string, dst *string) {
	if value, ok := e.get(key); ok {
		*dst = value
	}
}

func (e envReader) setInt(key string, dst *int) {
	value, ok := e.get(key)
	if !ok {
		return
	}
	n, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil {
		*e.problems = append(*e.problems, fmt.Sprintf("%s: Expected number, received %q", key, value))
		return
	}
	*dst = n
}

// setBool accepts exactly "true" or "false".
func (e envReader) setBool(key string, dst *bool) {
	value, ok := e.get(key)
	if !ok {
		return
	}
	switch value {
	case "true":
		*dst = true
	case "false":
		*dst = false
	default:
		*e.problems = append(*e.problems, fmt.Sprintf("%s: Expected 'true' | 'false', received %q", key, value))
	}
}

// IsConfigError reports whether err carries configuration problems.
func IsConfigError(err error) bool {
	var cfgErr *Error
	return errors.As(err, &cfgErr)
}
