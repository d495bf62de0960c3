// Package metrics provides the Prometheus instrumentation of the bulk write
// engine. Transport and cache metrics are defined in their own packages
// (client, cache) and registered on the default registry via promauto.
//
// The engine metrics live on a Recorder so that each engine can be wired to
// its own registry, which keeps tests independent of each other.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Registry is the default Prometheus registry used by the transport and
// cache metrics.
var Registry = prometheus.DefaultRegisterer

// Request outcomes recorded by ObserveRequest.
const (
	OutcomeSuccess    = "success"
	OutcomeStructural = "structural"
	OutcomeFatal      = "fatal"
)

// Recorder holds the engine metrics.
type Recorder struct {
	created          *prometheus.CounterVec
	updated          *prometheus.CounterVec
	skipped          *prometheus.CounterVec
	requests         *prometheus.CounterVec
	fatalWaits       *prometheus.CounterVec
	duplicateRetries *prometheus.CounterVec
	batchDuration    *prometheus.HistogramVec
}

// NewRecorder registers the engine metrics on reg. A nil reg uses Registry.
func NewRecorder(reg prometheus.Registerer) *Recorder {
	if reg == nil {
		reg = Registry
	}
	f := promauto.With(reg)

	return &Recorder{
		created: f.NewCounterVec(prometheus.CounterOpts{
			Name: "bulkwrite_items_created_total",
			Help: "Records created by resource kind",
		}, []string{"kind"}),
		updated: f.NewCounterVec(prometheus.CounterOpts{
			Name: "bulkwrite_items_updated_total",
			Help: "Records updated by resource kind",
		}, []string{"kind"}),
		skipped: f.NewCounterVec(prometheus.CounterOpts{
			Name: "bulkwrite_items_skipped_total",
			Help: "Records skipped by resource kind, error kind and resource",
		}, []string{"kind", "error_kind", "resource"}),
		requests: f.NewCounterVec(prometheus.CounterOpts{
			Name: "bulkwrite_requests_total",
			Help: "Write requests by resource kind, operation and outcome",
		}, []string{"kind", "operation", "outcome"}),
		fatalWaits: f.NewCounterVec(prometheus.CounterOpts{
			Name: "bulkwrite_fatal_waits_total",
			Help: "Waits after fatal failures by resource kind",
		}, []string{"kind"}),
		duplicateRetries: f.NewCounterVec(prometheus.CounterOpts{
			Name: "bulkwrite_duplicate_retries_total",
			Help: "Duplicate resolution attempts by resource kind",
		}, []string{"kind"}),
		batchDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "bulkwrite_batch_duration_seconds",
			Help:    "Duration of one batch including retries by resource kind and operation",
			Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60, 120},
		}, []string{"kind", "operation"}),
	}
}

// Created counts n created records of kind.
func (r *Recorder) Created(kind string, n int) {
	if r == nil || n == 0 {
		return
	}
	r.created.WithLabelValues(kind).Add(float64(n))
}

// Updated counts n updated records of kind.
func (r *Recorder) Updated(kind string, n int) {
	if r == nil || n == 0 {
		return
	}
	r.updated.WithLabelValues(kind).Add(float64(n))
}

// Skipped counts n records of kind skipped because of an error.
func (r *Recorder) Skipped(kind, errorKind, resource string, n int) {
	if r == nil || n == 0 {
		return
	}
	r.skipped.WithLabelValues(kind, errorKind, resource).Add(float64(n))
}

// ObserveRequest counts one request and its outcome.
func (r *Recorder) ObserveRequest(kind, operation, outcome string) {
	if r == nil {
		return
	}
	r.requests.WithLabelValues(kind, operation, outcome).Inc()
}

// FatalWait counts one wait after a fatal failure.
func (r *Recorder) FatalWait(kind string) {
	if r == nil {
		return
	}
	r.fatalWaits.WithLabelValues(kind).Inc()
}

// DuplicateRetry counts one duplicate resolution attempt.
func (r *Recorder) DuplicateRetry(kind string) {
	if r == nil {
		return
	}
	r.duplicateRetries.WithLabelValues(kind).Inc()
}

// ObserveBatch records the duration of one batch.
func (r *Recorder) ObserveBatch(kind, operation string, d time.Duration) {
	if r == nil {
		return
	}
	r.batchDuration.WithLabelValues(kind, operation).Observe(d.Seconds())
}

// Metrics Documentation
//
// Engine Metrics (Recorder):
//   - bulkwrite_items_created_total{kind} (Counter): Records created
//   - bulkwrite_items_updated_total{kind} (Counter): Records updated
//   - bulkwrite_items_skipped_total{kind, error_kind, resource} (Counter): Records skipped
//   - bulkwrite_requests_total{kind, operation, outcome} (Counter): Write requests by outcome
//   - bulkwrite_fatal_waits_total{kind} (Counter): Waits after fatal failures
//   - bulkwrite_duplicate_retries_total{kind} (Counter): Duplicate resolution attempts
//   - bulkwrite_batch_duration_seconds{kind, operation} (Histogram): Batch duration
//
// Request Metrics (pkg/client):
//   - cdf_requests_total{endpoint, status} (Counter): Total requests by endpoint and HTTP status
//   - cdf_request_duration_seconds{endpoint} (Histogram): Request duration by endpoint
//   - cdf_errors_total{class} (Counter): Errors by class (client, server, rate_limit, network)
//
// Retry Metrics (pkg/client):
//   - cdf_retries_total{error_class} (Counter): Retry attempts by error class
//   - cdf_retry_backoff_seconds{error_class} (Histogram): Backoff duration by error class
//   - cdf_retry_exhausted_total{error_class} (Counter): Requests that exhausted max retries
//
// Cache Metrics (pkg/cache):
//   - bulkwrite_cache_hits_total{kind} (Counter): Resolved records served from Redis
//   - bulkwrite_cache_misses_total{kind} (Counter): Lookups that went to the API
//   - bulkwrite_cache_errors_total{operation} (Counter): Cache operation errors
//
// Example Prometheus Queries:
//
//   # Skip rate per kind
//   sum by (kind) (rate(bulkwrite_items_skipped_total[5m]))
//
//   # Fatal outcome ratio
//   sum(rate(bulkwrite_requests_total{outcome="fatal"}[5m])) / sum(rate(bulkwrite_requests_total[5m]))
//
//   # P95 batch latency
//   histogram_quantile(0.95, rate(bulkwrite_batch_duration_seconds_bucket[5m]))
