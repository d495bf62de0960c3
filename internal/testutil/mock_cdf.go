// Package testutil provides testing utilities for the CDF client.
package testutil

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"time"
)

// MockCDFResponse defines the behavior for a mock CDF endpoint response.
type MockCDFResponse struct {
	StatusCode int
	Body       string
	Headers    map[string]string
	Delay      time.Duration
}

// MockCDF is a configurable mock CDF API server for testing.
type MockCDF struct {
	server   *httptest.Server
	project  string
	mu       sync.RWMutex
	handlers map[string]func(w http.ResponseWriter, r *http.Request)

	// Tracking
	RequestCount      int
	LastRequestHeader http.Header
	LastRequestBody   []byte
}

// NewMockCDF creates a new mock CDF server serving project.
func NewMockCDF(project string) *MockCDF {
	mock := &MockCDF{
		project:  project,
		handlers: make(map[string]func(w http.ResponseWriter, r *http.Request)),
	}

	mock.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		r.Body.Close()

		mock.mu.Lock()
		mock.RequestCount++
		mock.LastRequestHeader = r.Header.Clone()
		mock.LastRequestBody = body
		handler, exists := mock.handlers[r.URL.Path]
		mock.mu.Unlock()

		r.Body = io.NopCloser(bytes.NewReader(body))
		if exists {
			handler(w, r)
			return
		}

		mock.defaultHandler(w, body)
	}))

	return mock
}

// URL returns the mock server URL.
func (m *MockCDF) URL() string {
	return m.server.URL
}

// Path returns the server path of a project relative route.
func (m *MockCDF) Path(route string) string {
	return "/api/v1/projects/" + m.project + route
}

// Close shuts down the mock server.
func (m *MockCDF) Close() {
	m.server.Close()
}

// Reset clears all tracking counters.
func (m *MockCDF) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.RequestCount = 0
	m.LastRequestHeader = nil
	m.LastRequestBody = nil
}

// SetHandler sets a custom handler for a project relative route.
func (m *MockCDF) SetHandler(route string, handler func(w http.ResponseWriter, r *http.Request)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.handlers[m.Path(route)] = handler
}

// SetResponse configures a fixed response for a route.
func (m *MockCDF) SetResponse(route string, resp MockCDFResponse) {
	m.SetHandler(route, func(w http.ResponseWriter, r *http.Request) {
		writeResponse(w, resp)
	})
}

// SetResponses configures responses returned in order for a route. The last
// response repeats once the list is exhausted.
func (m *MockCDF) SetResponses(route string, resps ...MockCDFResponse) {
	var (
		mu   sync.Mutex
		next int
	)
	m.SetHandler(route, func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		resp := resps[min(next, len(resps)-1)]
		next++
		mu.Unlock()
		writeResponse(w, resp)
	})
}

// GetRequestCount returns the number of requests made to the server.
func (m *MockCDF) GetRequestCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.RequestCount
}

// GetLastRequestHeader returns the headers of the last request.
func (m *MockCDF) GetLastRequestHeader() http.Header {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.LastRequestHeader
}

// GetLastRequestBody returns the body of the last request.
func (m *MockCDF) GetLastRequestBody() []byte {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.LastRequestBody
}

// defaultHandler echoes the request items back, which is what the create
// and update routes return for a fully successful request.
func (m *MockCDF) defaultHandler(w http.ResponseWriter, body []byte) {
	var req struct {
		Items json.RawMessage `json:"items"`
	}
	if err := json.Unmarshal(body, &req); err != nil || len(req.Items) == 0 {
		req.Items = json.RawMessage("[]")
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	fmt.Fprintf(w, `{"items":%s}`, req.Items)
}

func writeResponse(w http.ResponseWriter, resp MockCDFResponse) {
	if resp.Delay > 0 {
		time.Sleep(resp.Delay)
	}
	for key, value := range resp.Headers {
		w.Header().Set(key, value)
	}
	if w.Header().Get("Content-Type") == "" {
		w.Header().Set("Content-Type", "application/json")
	}
	w.WriteHeader(resp.StatusCode)
	if resp.Body != "" {
		w.Write([]byte(resp.Body))
	}
}

// NewItemsResponse creates a 200 OK response with the given items JSON array.
func NewItemsResponse(items string) MockCDFResponse {
	return MockCDFResponse{
		StatusCode: http.StatusOK,
		Body:       `{"items":` + items + `}`,
	}
}

// NewAPIErrorResponse creates an error response in the API error format.
// missing and duplicated are JSON arrays and may be empty.
func NewAPIErrorResponse(status int, message, missing, duplicated string) MockCDFResponse {
	body := fmt.Sprintf(`{"error":{"code":%d,"message":%q`, status, message)
	if missing != "" {
		body += `,"missing":` + missing
	}
	if duplicated != "" {
		body += `,"duplicated":` + duplicated
	}
	body += "}}"
	return MockCDFResponse{
		StatusCode: status,
		Body:       body,
		Headers:    map[string]string{"X-Request-Id": "mock-request"},
	}
}

// NewRateLimitResponse creates a 429 Too Many Requests response.
func NewRateLimitResponse() MockCDFResponse {
	return NewAPIErrorResponse(http.StatusTooManyRequests, "Too many requests", "", "")
}

// NewServerErrorResponse creates a 500 Internal Server Error response.
func NewServerErrorResponse() MockCDFResponse {
	return NewAPIErrorResponse(http.StatusInternalServerError, "Internal server error", "", "")
}
