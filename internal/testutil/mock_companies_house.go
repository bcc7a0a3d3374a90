// Package testutil provides testing utilities for the registry gateway.
package testutil

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync"
	"time"
)

// AdvancedSearchPath is the path the mock serves advanced search on.
const AdvancedSearchPath = "/advanced-search/companies"

// MockResponse defines a canned response.
type MockResponse struct {
	StatusCode int
	Body       string
	Headers    map[string]string
	Delay      time.Duration
}

// MockCompaniesHouse is a configurable mock of the Companies House UK API.
// By default it pages through Companies with size/start_index.
type MockCompaniesHouse struct {
	server   *httptest.Server
	mu       sync.RWMutex
	handlers map[string]func(w http.ResponseWriter, r *http.Request)

	// Companies is the dataset served by the default advanced search handler.
	Companies []map[string]any
	// MaxPageSize caps the page size regardless of the size parameter (0 = no cap).
	MaxPageSize int
	// APIKey, when set, is required as the basic auth username.
	APIKey string

	failures []MockResponse

	// Tracking
	RequestCount    int
	LastQuery       map[string][]string
	LastRequestAuth string
}

// NewMockCompaniesHouse creates a new mock server.
func NewMockCompaniesHouse() *MockCompaniesHouse {
	mock := &MockCompaniesHouse{
		handlers: make(map[string]func(w http.ResponseWriter, r *http.Request)),
	}

	mock.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mock.mu.Lock()
		mock.RequestCount++
		mock.LastQuery = r.URL.Query()
		user, _, _ := r.BasicAuth()
		mock.LastRequestAuth = user

		var failure *MockResponse
		if len(mock.failures) > 0 {
			f := mock.failures[0]
			mock.failures = mock.failures[1:]
			failure = &f
		}
		apiKey := mock.APIKey
		mock.mu.Unlock()

		if failure != nil {
			writeMockResponse(w, *failure)
			return
		}

		if apiKey != "" && user != apiKey {
			writeMockResponse(w, NewUnauthorizedResponse())
			return
		}

		// Check for custom handler
		mock.mu.RLock()
		handler, exists := mock.handlers[r.URL.Path]
		mock.mu.RUnlock()

		if exists {
			handler(w, r)
			return
		}

		if r.URL.Path == AdvancedSearchPath {
			mock.advancedSearch(w, r)
			return
		}

		writeMockResponse(w, MockResponse{
			StatusCode: http.StatusNotFound,
			Body:       `{"errors":[{"error":"not-found","type":"ch:service"}]}`,
			Headers:    map[string]string{"Content-Type": "application/json"},
		})
	}))

	return mock
}

// URL returns the mock server URL.
func (m *MockCompaniesHouse) URL() string {
	return m.server.URL
}

// Close shuts down the mock server.
func (m *MockCompaniesHouse) Close() {
	m.server.Close()
}

// Reset clears all tracking counters and queued failures.
func (m *MockCompaniesHouse) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.RequestCount = 0
	m.LastQuery = nil
	m.LastRequestAuth = ""
	m.failures = nil
}

// SetHandler sets a custom handler for a specific path.
func (m *MockCompaniesHouse) SetHandler(path string, handler func(w http.ResponseWriter, r *http.Request)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.handlers[path] = handler
}

// SetResponse configures a fixed response for a path.
func (m *MockCompaniesHouse) SetResponse(path string, resp MockResponse) {
	m.SetHandler(path, func(w http.ResponseWriter, _ *http.Request) {
		writeMockResponse(w, resp)
	})
}

// FailNext queues responses served, in order, before normal handling resumes.
func (m *MockCompaniesHouse) FailNext(responses ...MockResponse) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failures = append(m.failures, responses...)
}

// SetCompanies replaces the advanced search dataset.
func (m *MockCompaniesHouse) SetCompanies(companies []map[string]any) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Companies = companies
}

// GetRequestCount returns the number of requests made to the server.
func (m *MockCompaniesHouse) GetRequestCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.RequestCount
}

// advancedSearch serves a page of Companies.
func (m *MockCompaniesHouse) advancedSearch(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	size, err := strconv.Atoi(q.Get("size"))
	if err != nil || size <= 0 {
		size = 20
	}
	start, err := strconv.Atoi(q.Get("start_index"))
	if err != nil || start < 0 {
		start = 0
	}

	m.mu.RLock()
	all := m.Companies
	if m.MaxPageSize > 0 && size > m.MaxPageSize {
		size = m.MaxPageSize
	}
	m.mu.RUnlock()

	items := []map[string]any{}
	if start < len(all) {
		end := start + size
		if end > len(all) {
			end = len(all)
		}
		items = all[start:end]
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(map[string]any{
		"etag":  fmt.Sprintf("mock-%d-%d", start, size),
		"hits":  len(all),
		"kind":  "search#advanced-search",
		"items": items,
	})
}

func writeMockResponse(w http.ResponseWriter, resp MockResponse) {
	// Add delay if specified
	if resp.Delay > 0 {
		time.Sleep(resp.Delay)
	}

	for key, value := range resp.Headers {
		w.Header().Set(key, value)
	}

	w.WriteHeader(resp.StatusCode)
	if resp.Body != "" {
		_, _ = w.Write([]byte(resp.Body))
	}
}

// NewCompany builds a valid advanced search item.
func NewCompany(number, name string, sicCodes ...string) map[string]any {
	company := map[string]any{
		"company_name":     name,
		"company_number":   number,
		"company_status":   "active",
		"company_type":     "ltd",
		"kind":             "search-results#company",
		"date_of_creation": "2015-06-01",
		"links": map[string]any{
			"company_profile": "/company/" + number,
		},
		"registered_office_address": map[string]any{
			"address_line_1": "1 Test Street",
			"locality":       "London",
			"postal_code":    "EC1A 1AA",
		},
	}
	if len(sicCodes) > 0 {
		codes := make([]any, len(sicCodes))
		for i, c := range sicCodes {
			codes[i] = c
		}
		company["sic_codes"] = codes
	}
	return company
}

// NewCompanies builds n valid items numbered from 00000001.
func NewCompanies(n int) []map[string]any {
	out := make([]map[string]any, n)
	for i := range out {
		number := fmt.Sprintf("%08d", i+1)
		out[i] = NewCompany(number, "COMPANY "+number+" LTD", "62012")
	}
	return out
}

// NewRateLimitResponse creates a 429 Too Many Requests response.
func NewRateLimitResponse() MockResponse {
	return MockResponse{
		StatusCode: http.StatusTooManyRequests,
		Body:       `{"errors":[{"error":"rate-limit-exceeded","type":"ch:service"}]}`,
		Headers:    map[string]string{"Content-Type": "application/json"},
	}
}

// NewServerErrorResponse creates a 500 Internal Server Error response.
func NewServerErrorResponse() MockResponse {
	return MockResponse{
		StatusCode: http.StatusInternalServerError,
		Body:       `{"errors":[{"error":"internal-server-error","type":"ch:service"}]}`,
		Headers:    map[string]string{"Content-Type": "application/json"},
	}
}

// NewUnauthorizedResponse creates a 401 response as sent for a bad API key.
func NewUnauthorizedResponse() MockResponse {
	return MockResponse{
		StatusCode: http.StatusUnauthorized,
		Body:       `{"error":"Invalid Authorization","type":"ch:service"}`,
		Headers:    map[string]string{"Content-Type": "application/json"},
	}
}

// NewBadRequestResponse creates a 400 response for an invalid query.
func NewBadRequestResponse() MockResponse {
	return MockResponse{
		StatusCode: http.StatusBadRequest,
		Body:       `{"errors":[{"error":"invalid-parameter","location":"company_status","type":"ch:validation"}]}`,
		Headers:    map[string]string{"Content-Type": "application/json"},
	}
}
