package client

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
)

// Prometheus metrics for retry operations.
var (
	cdfRetriesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "cdf_retries_total",
		Help: "Total number of retry attempts by error class",
	}, []string{"error_class"})

	cdfRetryBackoffSeconds = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "cdf_retry_backoff_seconds",
		Help:    "Backoff duration for retries by error class",
		Buckets: []float64{0.5, 1, 2, 5, 10, 30, 60},
	}, []string{"error_class"})

	cdfRetryExhaustedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "cdf_retry_exhausted_total",
		Help: "Total number of times retry attempts were exhausted by error class",
	}, []string{"error_class"})
)

// RetryConfig holds the configuration for retry logic.
type RetryConfig struct {
	// MaxAttempts is the maximum number of attempts (including the initial request).
	MaxAttempts int

	// InitialBackoff is the initial backoff duration.
	InitialBackoff time.Duration

	// MaxBackoff is the maximum backoff duration.
	MaxBackoff time.Duration

	// BackoffMultiplier is the multiplier for exponential backoff.
	BackoffMultiplier float64
}

// DefaultRetryConfig returns the default retry configuration.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts:       5,
		InitialBackoff:    500 * time.Millisecond,
		MaxBackoff:        30 * time.Second,
		BackoffMultiplier: 2.0,
	}
}

// forClass scales the backoff for an error class. Throttling waits longer
// than server errors.
func (c RetryConfig) forClass(class ErrorClass) RetryConfig {
	switch class {
	case ErrorClassRateLimit:
		c.InitialBackoff *= 4
	case ErrorClassNetwork:
		c.InitialBackoff *= 2
	}
	if c.InitialBackoff > c.MaxBackoff {
		c.InitialBackoff = c.MaxBackoff
	}
	return c
}

// classOf returns the error class of an attempt error.
func classOf(err error) ErrorClass {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.ErrorClass
	}
	return ErrorClassNetwork
}

// retryWithBackoff calls fn until it succeeds, returns a non retryable
// error, or cfg.MaxAttempts is reached. The wait between attempts grows
// exponentially with ±20% jitter and honors Retry-After when the server
// sends it.
func retryWithBackoff(ctx context.Context, cfg RetryConfig, logger zerolog.Logger, fn func() error) error {
	if cfg.MaxAttempts < 1 {
		cfg.MaxAttempts = 1
	}

	var (
		lastErr error
		class   ErrorClass
		backoff time.Duration
	)

	for attempt := 1; attempt <= cfg.MaxAttempts; attempt++ {
		err := fn()
		if err == nil {
			if attempt > 1 {
				logger.Info().
					Str("error_class", string(class)).
					Int("attempt", attempt).
					Msg("Request succeeded after retry")
			}
			return nil
		}

		lastErr = err
		if ctx.Err() != nil {
			return err
		}

		prev := class
		class = classOf(err)
		if !shouldRetry(class) {
			return err
		}
		if attempt >= cfg.MaxAttempts {
			break
		}

		classCfg := cfg.forClass(class)
		if backoff == 0 || prev != class {
			backoff = classCfg.InitialBackoff
		}

		cdfRetriesTotal.WithLabelValues(string(class)).Inc()

		wait := time.Duration(float64(backoff) * (0.8 + rand.Float64()*0.4))
		var apiErr *APIError
		if errors.As(err, &apiErr) && apiErr.RetryAfter > wait {
			wait = apiErr.RetryAfter
		}
		cdfRetryBackoffSeconds.WithLabelValues(string(class)).Observe(wait.Seconds())

		logger.Debug().
			Err(err).
			Str("error_class", string(class)).
			Int("attempt", attempt).
			Dur("backoff", wait).
			Msg("Retrying request after backoff")

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			logger.Warn().
				Str("error_class", string(class)).
				Int("attempt", attempt).
				Msg("Context cancelled during retry backoff")
			return fmt.Errorf("%w: %w", ErrContextCancelled, ctx.Err())
		case <-timer.C:
		}

		backoff = time.Duration(float64(backoff) * classCfg.BackoffMultiplier)
		if backoff > classCfg.MaxBackoff {
			backoff = classCfg.MaxBackoff
		}
	}

	cdfRetryExhaustedTotal.WithLabelValues(string(class)).Inc()
	logger.Warn().
		Str("error_class", string(class)).
		Int("max_attempts", cfg.MaxAttempts).
		Msg("Retry attempts exhausted")

	return fmt.Errorf("%w after %d attempts: %w", ErrRetryExhausted, cfg.MaxAttempts, lastErr)
}
