// Package companieshouse is the gateway's client for the Companies House UK
// public data API, with outbound rate limiting, retries and response
// validation.
package companieshouse

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/Sternrassler/registry-gateway/pkg/pagination"
	"github.com/Sternrassler/registry-gateway/pkg/ratelimit"
	"github.com/rs/zerolog"
)

// ServiceName identifies the upstream in errors, logs and metrics.
const ServiceName = "Companies House UK"

const (
	// DefaultBaseURL is the public data API endpoint.
	DefaultBaseURL = "https://api.company-information.service.gov.uk"

	// DefaultPageSize is the largest page advanced search serves.
	DefaultPageSize = 5000

	advancedSearchPath = "advanced-search/companies"

	// maxBodySize bounds a single upstream page.
	maxBodySize = 64 << 20
)

// Config holds the client configuration.
type Config struct {
	// BaseURL of the API (default: DefaultBaseURL).
	BaseURL string

	// APIKey is sent as the basic auth username with an empty password.
	APIKey string

	// Timeout per upstream request.
	Timeout time.Duration

	// PageSize is the advanced search page size.
	PageSize int

	// MaxConcurrency bounds parallel page requests.
	MaxConcurrency int

	// Limiter gates outbound requests (optional).
	Limiter *ratelimit.Limiter

	// RetryPolicy overrides RetryConfigForErrorClass (optional).
	RetryPolicy RetryPolicy

	// HTTPClient overrides the default client (optional).
	HTTPClient *http.Client
}

// DefaultConfig returns a default configuration for apiKey.
func DefaultConfig(apiKey string) Config {
	return Config{
		BaseURL:        DefaultBaseURL,
		APIKey:         apiKey,
		Timeout:        30 * time.Second,
		PageSize:       DefaultPageSize,
		MaxConcurrency: 4,
	}
}

// Client calls the Companies House UK API.
type Client struct {
	httpClient *http.Client
	baseURL    *url.URL
	config     Config
	logger     zerolog.Logger
}

// New creates a new client.
func New(cfg Config, logger zerolog.Logger) (*Client, error) {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	base, err := url.Parse(cfg.BaseURL)
	if err != nil || base.Scheme == "" || base.Host == "" {
		return nil, fmt.Errorf("invalid base url %q", cfg.BaseURL)
	}
	if !strings.HasSuffix(base.Path, "/") {
		base.Path += "/"
	}

	if cfg.PageSize <= 0 {
		cfg.PageSize = DefaultPageSize
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.RetryPolicy == nil {
		cfg.RetryPolicy = RetryConfigForErrorClass
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: cfg.Timeout}
	}

	if cfg.APIKey == "" {
		logger.Warn().Msg("No Companies House UK API key configured, upstream requests will be rejected")
	}

	return &Client{
		httpClient: httpClient,
		baseURL:    base,
		config:     cfg,
		logger:     logger,
	}, nil
}

// AdvancedSearch runs an advanced company search and returns every matching
// company across all result pages. query is forwarded as is; size and
// start_index are set by the client.
func (c *Client) AdvancedSearch(ctx context.Context, query url.Values) ([]Company, error) {
	fetcher := pagination.NewBatchFetcher[searchResult](
		pagination.PageFetcherFunc[searchResult](func(ctx context.Context, offset, size int) ([]searchResult, int, error) {
			return c.searchPage(ctx, query, offset, size)
		}),
		pagination.Config{
			MaxConcurrency: c.config.MaxConcurrency,
			PageSize:       c.config.PageSize,
			Timeout:        c.config.Timeout,
		},
		c.logger,
	)

	results, err := fetcher.FetchAll(ctx)
	if err != nil {
		var serviceErr *ExternalServiceError
		if errors.As(err, &serviceErr) {
			return nil, serviceErr
		}
		return nil, err
	}

	companies := make([]Company, len(results))
	for i, r := range results {
		companies[i] = r.toCompany()
	}
	return companies, nil
}

// searchPage fetches and validates one page of advanced search results.
func (c *Client) searchPage(ctx context.Context, query url.Values, offset, size int) ([]searchResult, int, error) {
	params := url.Values{}
	for k, v := range query {
		params[k] = append([]string(nil), v...)
	}
	params.Set("size", strconv.Itoa(size))
	params.Set("start_index", strconv.Itoa(offset))

	body, err := c.get(ctx, advancedSearchPath, params)
	if err != nil {
		return nil, 0, err
	}

	items, hits, problems := decodeSearchPage(body)
	if problems != nil {
		c.logger.Error().
			Strs("problems", problems).
			Int("start_index", offset).
			Msg("Invalid advanced search response")
		return nil, 0, &ExternalServiceError{
			Message: "Failed to parse response from Companies House UK advance search",
			Service: ServiceName,
			Status:  http.StatusBadGateway,
			Details: problems,
		}
	}
	return items, hits, nil
}

// get performs a GET with rate limiting and retries and returns the body
// of a 2xx response.
func (c *Client) get(ctx context.Context, path string, params url.Values) ([]byte, error) {
	endpoint := c.baseURL.JoinPath(path)
	endpoint.RawQuery = params.Encode()

	var body []byte
	err := retryWithBackoff(ctx, c.config.RetryPolicy, func() error {
		var err error
		body, err = c.attempt(ctx, endpoint.String())
		return err
	}, func(err error) ErrorClass {
		var ue *upstreamError
		if errors.As(err, &ue) {
			return ue.ErrorClass
		}
		return ""
	})
	if err == nil {
		return body, nil
	}

	serviceErr := &ExternalServiceError{
		Message: "Companies House UK advance search failed",
		Service: ServiceName,
		Status:  http.StatusInternalServerError,
		Err:     err,
	}
	var ue *upstreamError
	if errors.As(err, &ue) {
		if ue.StatusCode != 0 {
			serviceErr.Status = ue.StatusCode
		}
		serviceErr.Details = ue.Body
	}
	return nil, serviceErr
}

// attempt performs one upstream request.
func (c *Client) attempt(ctx context.Context, endpoint string) ([]byte, error) {
	if c.config.Limiter != nil {
		if err := c.config.Limiter.Wait(ctx, ServiceName); err != nil {
			return nil, fmt.Errorf("wait for upstream rate limit: %w", err)
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.SetBasicAuth(c.config.APIKey, "")
	req.Header.Set("Accept", "application/json")

	c.logger.Debug().
		Str("method", req.Method).
		Str("url", req.URL.Redacted()).
		Msg("Executing upstream request")

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	upstreamRequestDuration.WithLabelValues(ServiceName).Observe(time.Since(start).Seconds())

	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		c.logger.Error().Err(err).Str("service", ServiceName).Msg("HTTP request failed")
		upstreamErrorsTotal.WithLabelValues(string(ErrorClassNetwork)).Inc()
		upstreamRequestsTotal.WithLabelValues(ServiceName, "network_error").Inc()
		return nil, &upstreamError{ErrorClass: ErrorClassNetwork, Err: err}
	}
	defer resp.Body.Close()

	upstreamRequestsTotal.WithLabelValues(ServiceName, strconv.Itoa(resp.StatusCode)).Inc()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		upstreamErrorsTotal.WithLabelValues(string(ErrorClassNetwork)).Inc()
		return nil, &upstreamError{ErrorClass: ErrorClassNetwork, Err: fmt.Errorf("read body: %w", err)}
	}

	if resp.StatusCode >= 300 {
		errClass := classify(resp.StatusCode, nil)
		if errClass == "" {
			errClass = ErrorClassClient
		}
		upstreamErrorsTotal.WithLabelValues(string(errClass)).Inc()

		c.logger.Warn().
			Str("service", ServiceName).
			Int("status", resp.StatusCode).
			Str("error_class", string(errClass)).
			Msg("Upstream request error")

		return nil, &upstreamError{
			StatusCode: resp.StatusCode,
			ErrorClass: errClass,
			Body:       decodeErrorBody(body),
		}
	}

	return body, nil
}

// decodeErrorBody returns the JSON error document, or the raw text.
func decodeErrorBody(body []byte) any {
	if len(body) == 0 {
		return nil
	}
	var doc any
	if err := json.Unmarshal(body, &doc); err == nil {
		return doc
	}
	return string(body)
}
