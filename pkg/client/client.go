// Package client provides the HTTP transport to the CDF resource API with
// authentication, request tracing, retry with backoff and structured error
// parsing.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/oauth2"
)

// Prometheus metrics for CDF client operations.
var (
	cdfRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "cdf_requests_total",
		Help: "Total CDF requests by endpoint and status",
	}, []string{"endpoint", "status"})

	cdfRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "cdf_request_duration_seconds",
		Help:    "CDF request duration in seconds by endpoint",
		Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30},
	}, []string{"endpoint"})

	cdfErrorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "cdf_errors_total",
		Help: "Total CDF errors by class",
	}, []string{"class"})
)

// ErrorClass represents a classification of HTTP errors.
type ErrorClass string

const (
	// ErrorClassClient represents 4xx client errors other than 429.
	ErrorClassClient ErrorClass = "client"

	// ErrorClassServer represents 5xx server errors.
	ErrorClassServer ErrorClass = "server"

	// ErrorClassRateLimit represents 429 throttling responses.
	ErrorClassRateLimit ErrorClass = "rate_limit"

	// ErrorClassNetwork represents network/timeout errors.
	ErrorClassNetwork ErrorClass = "network"
)

const requestIDHeader = "X-Request-Id"

// Client is the CDF HTTP client.
type Client struct {
	httpClient *http.Client
	baseURL    string
	config     Config
	logger     zerolog.Logger
}

// Config holds the client configuration.
type Config struct {
	// BaseURL of the cluster, e.g. "https://api.cognitedata.com".
	BaseURL string

	// Project is the CDF project name.
	Project string

	// TokenSource provides bearer tokens. Requests are sent without an
	// Authorization header when nil.
	TokenSource oauth2.TokenSource

	// UserAgent header sent with every request.
	UserAgent string

	// Timeout per HTTP attempt.
	Timeout time.Duration

	// Retry configures transport level retries of 5xx, 429 and network errors.
	Retry RetryConfig

	// HTTPClient overrides the default client. Its Timeout is left as is.
	HTTPClient *http.Client

	// Logger receives request and retry logs. Defaults to the global
	// zerolog logger.
	Logger *zerolog.Logger
}

// DefaultConfig returns a safe default configuration.
func DefaultConfig(baseURL, project string, ts oauth2.TokenSource) Config {
	return Config{
		BaseURL:     baseURL,
		Project:     project,
		TokenSource: ts,
		UserAgent:   "cdf-bulkwrite/1.0",
		Timeout:     60 * time.Second,
		Retry:       DefaultRetryConfig(),
	}
}

// New creates a new CDF client.
func New(cfg Config) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("base url is required")
	}
	if _, err := url.Parse(cfg.BaseURL); err != nil {
		return nil, fmt.Errorf("parse base url: %w", err)
	}
	if cfg.Project == "" {
		return nil, fmt.Errorf("project is required")
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = "cdf-bulkwrite/1.0"
	}
	if cfg.Retry.MaxAttempts == 0 {
		cfg.Retry = DefaultRetryConfig()
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = 60 * time.Second
		}
		httpClient = &http.Client{Timeout: timeout}
	}

	base := log.Logger
	if cfg.Logger != nil {
		base = *cfg.Logger
	}
	logger := base.With().
		Str("component", "cdf-client").
		Str("project", cfg.Project).
		Logger()

	return &Client{
		httpClient: httpClient,
		baseURL:    strings.TrimRight(cfg.BaseURL, "/") + "/api/v1/projects/" + url.PathEscape(cfg.Project),
		config:     cfg,
		logger:     logger,
	}, nil
}

// Post sends body as JSON to path (relative to the project) and decodes a
// successful response into out when out is non-nil. endpoint is the metric
// label for the call. Failed responses are returned as *APIError, possibly
// wrapped in ErrRetryExhausted.
func (c *Client) Post(ctx context.Context, endpoint, path string, query url.Values, body, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("encode %s request: %w", endpoint, err)
	}

	target := c.baseURL + path
	if len(query) > 0 {
		target += "?" + query.Encode()
	}

	startTime := time.Now()
	defer func() {
		cdfRequestDuration.WithLabelValues(endpoint).Observe(time.Since(startTime).Seconds())
	}()

	return retryWithBackoff(ctx, c.config.Retry, c.logger, func() error {
		return c.attempt(ctx, endpoint, target, payload, out)
	})
}

func (c *Client) attempt(ctx context.Context, endpoint, target string, payload []byte, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, target, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	requestID := uuid.NewString()
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", c.config.UserAgent)
	req.Header.Set(requestIDHeader, requestID)

	if c.config.TokenSource != nil {
		tok, err := c.config.TokenSource.Token()
		if err != nil {
			// Token endpoints fail transiently as often as the API does.
			cdfErrorsTotal.WithLabelValues(string(ErrorClassNetwork)).Inc()
			return fmt.Errorf("fetch token: %w", err)
		}
		tok.SetAuthHeader(req)
	}

	c.logger.Debug().
		Str("endpoint", endpoint).
		Str("request_id", requestID).
		Int("bytes", len(payload)).
		Msg("Executing CDF request")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		cdfErrorsTotal.WithLabelValues(string(ErrorClassNetwork)).Inc()
		cdfRequestsTotal.WithLabelValues(endpoint, "network_error").Inc()
		c.logger.Warn().Err(err).Str("endpoint", endpoint).Str("request_id", requestID).Msg("HTTP request failed")
		return fmt.Errorf("post %s: %w", endpoint, err)
	}
	defer resp.Body.Close()

	cdfRequestsTotal.WithLabelValues(endpoint, strconv.Itoa(resp.StatusCode)).Inc()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		cdfErrorsTotal.WithLabelValues(string(ErrorClassNetwork)).Inc()
		return fmt.Errorf("read %s response: %w", endpoint, err)
	}

	if resp.StatusCode >= 400 {
		class := classifyStatus(resp.StatusCode)
		cdfErrorsTotal.WithLabelValues(string(class)).Inc()
		apiErr := parseAPIError(resp, data, class)
		if apiErr.RequestID == "" {
			apiErr.RequestID = requestID
		}

		c.logger.Warn().
			Str("endpoint", endpoint).
			Str("request_id", apiErr.RequestID).
			Int("status", resp.StatusCode).
			Str("error_class", string(class)).
			Int("missing", len(apiErr.Missing)).
			Int("duplicated", len(apiErr.Duplicated)).
			Msg("CDF request error")
		return apiErr
	}

	if out == nil || len(data) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return &APIError{
			StatusCode: resp.StatusCode,
			ErrorClass: ErrorClassClient,
			Message:    "decode response",
			RequestID:  requestID,
			Err:        err,
		}
	}
	return nil
}

// classifyStatus categorizes an HTTP error status.
func classifyStatus(status int) ErrorClass {
	switch {
	case status == http.StatusTooManyRequests:
		return ErrorClassRateLimit
	case status >= 500:
		return ErrorClassServer
	default:
		return ErrorClassClient
	}
}

// Close releases idle connections.
func (c *Client) Close() error {
	c.httpClient.CloseIdleConnections()
	return nil
}

// SetHTTPClient sets a custom HTTP client (for testing).
func (c *Client) SetHTTPClient(client *http.Client) {
	c.httpClient = client
}
