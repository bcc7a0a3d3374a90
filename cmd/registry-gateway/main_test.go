package main

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/rs/zerolog"

	"github.com/Sternrassler/registry-gateway/internal/testutil"
	"github.com/Sternrassler/registry-gateway/pkg/config"
)

func testConfig(t *testing.T, mock *testutil.MockCompaniesHouse) *config.Config {
	t.Helper()
	cfg := config.Default()
	cfg.Environment = config.EnvTest
	cfg.CompaniesHouse.BaseURL = mock.URL()
	cfg.CompaniesHouse.APIKey = "test-key"
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate() error = %v", err)
	}
	return cfg
}

func get(t *testing.T, h http.Handler, target string) *http.Response {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, target, nil)
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w.Result()
}

func TestBuild_FullRequestFlow(t *testing.T) {
	mock := testutil.NewMockCompaniesHouse()
	defer mock.Close()
	mock.APIKey = "test-key"
	mock.MaxPageSize = 2
	mock.SetCompanies(testutil.NewCompanies(3))

	a, err := build(context.Background(), testConfig(t, mock), zerolog.Nop())
	if err != nil {
		t.Fatalf("build() error = %v", err)
	}
	defer a.Close()

	h := a.server.Handler()
	target := "/api/v1/public/companies-house-uk/advanced-search?company_name_includes=company"

	t.Run("miss", func(t *testing.T) {
		resp := get(t, h, target)
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			t.Fatalf("Expected status 200, got %d", resp.StatusCode)
		}
		if resp.Header.Get("X-Cache") != "MISS" {
			t.Errorf("Expected X-Cache MISS, got %q", resp.Header.Get("X-Cache"))
		}

		var companies []map[string]any
		if err := json.NewDecoder(resp.Body).Decode(&companies); err != nil {
			t.Fatalf("decode: %v", err)
		}
		if len(companies) != 3 {
			t.Errorf("Expected 3 companies, got %d", len(companies))
		}
		if _, ok := companies[0]["kind"]; ok {
			t.Error("kind should not be forwarded")
		}
		if mock.GetRequestCount() != 2 {
			t.Errorf("Expected 2 upstream page requests, got %d", mock.GetRequestCount())
		}
	})

	t.Run("hit", func(t *testing.T) {
		resp := get(t, h, target)
		resp.Body.Close()

		if resp.Header.Get("X-Cache") != "HIT" {
			t.Errorf("Expected X-Cache HIT, got %q", resp.Header.Get("X-Cache"))
		}
		if mock.GetRequestCount() != 2 {
			t.Errorf("Expected no further upstream requests, got %d", mock.GetRequestCount())
		}
	})

	t.Run("ready without redis", func(t *testing.T) {
		resp := get(t, h, "/ready")
		resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			t.Errorf("Expected status 200, got %d", resp.StatusCode)
		}
	})
}

func TestBuild_UpstreamUnauthorized(t *testing.T) {
	mock := testutil.NewMockCompaniesHouse()
	defer mock.Close()
	mock.APIKey = "another-key"

	a, err := build(context.Background(), testConfig(t, mock), zerolog.Nop())
	if err != nil {
		t.Fatalf("build() error = %v", err)
	}
	defer a.Close()

	resp := get(t, a.server.Handler(), "/api/v1/public/companies-house-uk/advanced-search")
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("Expected status 401, got %d", resp.StatusCode)
	}
	body, _ := io.ReadAll(resp.Body)
	if !strings.Contains(string(body), "Companies House UK advance search failed") {
		t.Errorf("unexpected body %s", body)
	}
}

func TestBuild_CacheDisabled(t *testing.T) {
	mock := testutil.NewMockCompaniesHouse()
	defer mock.Close()
	mock.SetCompanies(testutil.NewCompanies(1))

	cfg := testConfig(t, mock)
	cfg.Cache.Enabled = false

	a, err := build(context.Background(), cfg, zerolog.Nop())
	if err != nil {
		t.Fatalf("build() error = %v", err)
	}
	defer a.Close()

	for i := 0; i < 2; i++ {
		resp := get(t, a.server.Handler(), "/api/v1/public/companies-house-uk/advanced-search")
		resp.Body.Close()
		if resp.Header.Get("X-Cache") != "MISS" {
			t.Errorf("request %d: Expected X-Cache MISS, got %q", i+1, resp.Header.Get("X-Cache"))
		}
	}
	if mock.GetRequestCount() != 2 {
		t.Errorf("Expected 2 upstream requests, got %d", mock.GetRequestCount())
	}
}

func TestBuild_RedisUnavailable(t *testing.T) {
	mock := testutil.NewMockCompaniesHouse()
	defer mock.Close()

	cfg := testConfig(t, mock)
	cfg.Redis.URL = "127.0.0.1:1"

	_, err := build(context.Background(), cfg, zerolog.Nop())
	if err == nil || !strings.Contains(err.Error(), "connect to redis") {
		t.Errorf("Expected redis connection error, got %v", err)
	}
}

func TestVersionCommand(t *testing.T) {
	t.Setenv("APP_VERSION", "3.1.4")

	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(io.Discard)
	cmd.SetArgs([]string{"version"})

	if err := cmd.Execute(); err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if got := strings.TrimSpace(out.String()); got != "3.1.4 (/api/v3)" {
		t.Errorf("Expected %q, got %q", "3.1.4 (/api/v3)", got)
	}
}

func TestServeCommand_InvalidConfig(t *testing.T) {
	tests := []struct {
		name string
		args []string
		env  map[string]string
	}{
		{name: "port flag out of range", args: []string{"serve", "--port", "70000"}},
		{name: "invalid environment variable", args: []string{"serve"}, env: map[string]string{"CACHE_ENABLED": "maybe"}},
		{name: "missing config file", args: []string{"serve", "--config", "/nonexistent/gateway.yaml"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for k, v := range tt.env {
				t.Setenv(k, v)
			}

			cmd := newRootCmd()
			cmd.SetOut(io.Discard)
			cmd.SetErr(io.Discard)
			cmd.SetArgs(tt.args)

			if err := cmd.Execute(); err == nil {
				t.Error("Expected error, got nil")
			}
		})
	}
}
