// Package resilience writes large collections of records to the CDF API.
//
// Every operation follows the same path: sanitize the input, partition it
// into request sized batches, dispatch the batches with bounded parallelism
// and run each batch through a retry loop that strips records the server
// rejects and resends the rest. The per-batch outcomes are merged into one
// result.Result. Remote failures never surface as Go errors; they are
// reported in Result.Errors with the records they removed. Records absent
// from both Results and Errors were not attempted, which only happens when
// the context was cancelled.
package resilience

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/Sternrassler/cdf-bulkwrite/pkg/cache"
	"github.com/Sternrassler/cdf-bulkwrite/pkg/client"
	"github.com/Sternrassler/cdf-bulkwrite/pkg/logging"
	"github.com/Sternrassler/cdf-bulkwrite/pkg/metrics"
	"github.com/Sternrassler/cdf-bulkwrite/pkg/resource"
	"github.com/Sternrassler/cdf-bulkwrite/pkg/sanitize"
)

var (
	// ErrNilAPI is returned by New when no API is given.
	ErrNilAPI = errors.New("resilience: api cannot be nil")

	// ErrInvalidChunkSize is returned when WriteOptions.ChunkSize is not positive.
	ErrInvalidChunkSize = errors.New("resilience: chunk size must be greater than zero")

	// ErrInvalidParallelism is returned when WriteOptions.Parallelism is below one.
	ErrInvalidParallelism = errors.New("resilience: parallelism must be at least 1")

	// ErrNilBuilder is returned by GetOrCreate operations without a builder.
	ErrNilBuilder = errors.New("resilience: builder cannot be nil")

	// ErrUnsupportedKind is returned by Delete for kinds without a delete endpoint.
	ErrUnsupportedKind = errors.New("resilience: unsupported resource kind")
)

// Defaults applied by New for zero Options fields.
const (
	DefaultFatalDelay             = 5 * time.Second
	DefaultMaxFatalRetries        = 10
	DefaultDuplicateBackoff       = 100 * time.Millisecond
	DefaultMaxGetOrCreateAttempts = 5
	DefaultChunkSize              = 1000
	DefaultParallelism            = 4
)

// API is the remote resource API the engine writes to. *client.Client
// implements it.
type API interface {
	Assets() client.Endpoint[resource.AssetWrite, resource.Asset, resource.AssetUpdate]
	Events() client.Endpoint[resource.EventWrite, resource.Event, resource.EventUpdate]
	TimeSeries() client.Endpoint[resource.TimeSeriesWrite, resource.TimeSeries, resource.TimeSeriesUpdate]
	Sequences() client.Endpoint[resource.SequenceWrite, resource.Sequence, resource.SequenceUpdate]
	DataSets() client.Lookup[resource.DataSet]
	Labels() client.Lookup[resource.Label]
	InsertDataPoints(ctx context.Context, items []resource.DataPointsWrite) error
	InsertSequenceRows(ctx context.Context, items []resource.SequenceRowsWrite) error
	InsertRawRows(ctx context.Context, db, table string, rows []resource.RawRow, ensureParent bool) error
}

// RetryPolicy selects how a batch reacts to failures. The three facets are
// independent.
type RetryPolicy struct {
	// RetryOnError removes the records a structural error is attributed to
	// and resends the rest. When false the first structural error ends the
	// batch and every pending record is reported with it.
	RetryOnError bool

	// WaitOnFatal waits Options.FatalDelay and resends the batch unchanged
	// after a transient fatal failure, at most Options.MaxFatalRetries times.
	WaitOnFatal bool

	// KeepDuplicates looks up records the server reports as already
	// existing and returns them as results instead of reporting them.
	KeepDuplicates bool
}

// DefaultRetryPolicy enables every facet.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{RetryOnError: true, WaitOnFatal: true, KeepDuplicates: true}
}

// WriteOptions are the per-call settings of an operation.
type WriteOptions struct {
	// ChunkSize is the maximum number of records per request. Values above
	// the API limit of the record kind are lowered to that limit.
	ChunkSize int

	// Parallelism is the maximum number of requests in flight.
	Parallelism int

	Policy RetryPolicy
	Mode   sanitize.Mode

	// Progress, when set, is called after each completed batch.
	Progress func(done, total int)
}

// DefaultWriteOptions returns options with the default chunk size and
// parallelism, every retry facet enabled and sanitation in Clean mode.
func DefaultWriteOptions() WriteOptions {
	return WriteOptions{
		ChunkSize:   DefaultChunkSize,
		Parallelism: DefaultParallelism,
		Policy:      DefaultRetryPolicy(),
		Mode:        sanitize.ModeClean,
	}
}

func (o WriteOptions) validate() error {
	if o.ChunkSize <= 0 {
		return fmt.Errorf("%w (got %d)", ErrInvalidChunkSize, o.ChunkSize)
	}
	if o.Parallelism < 1 {
		return fmt.Errorf("%w (got %d)", ErrInvalidParallelism, o.Parallelism)
	}
	return nil
}

// chunkSize returns the chunk size bounded by the per-request limit.
func (o WriteOptions) chunkSize(limit int) int {
	return min(o.ChunkSize, limit)
}

// Options configure an Engine.
type Options struct {
	// Logger receives batch level logs. Defaults to the "bulkwrite"
	// component logger.
	Logger *zerolog.Logger

	// Metrics records created, updated and skipped counts. Nil disables
	// metrics.
	Metrics *metrics.Recorder

	// Cache, when set, remembers records resolved by GetOrCreate
	// operations. Cache failures are logged and otherwise ignored.
	Cache cache.Store

	// Project namespaces cache keys.
	Project string

	// FatalDelay is the wait before resending a batch after a transient
	// fatal failure.
	FatalDelay time.Duration

	// MaxFatalRetries bounds the resends of one batch after fatal failures.
	MaxFatalRetries int

	// DuplicateBackoff is the base delay of the duplicate resolution loop.
	// Attempt n waits DuplicateBackoff * 2^n.
	DuplicateBackoff time.Duration

	// MaxGetOrCreateAttempts bounds the duplicate resolution loop.
	MaxGetOrCreateAttempts int
}

// Engine runs bulk writes against an API.
type Engine struct {
	api     API
	log     zerolog.Logger
	metrics *metrics.Recorder
	cache   cache.Store
	project string

	fatalDelay             time.Duration
	maxFatalRetries        int
	duplicateBackoff       time.Duration
	maxGetOrCreateAttempts int
}

// New creates an engine writing to api.
func New(api API, opts Options) (*Engine, error) {
	if api == nil {
		return nil, ErrNilAPI
	}

	e := &Engine{
		api:                    api,
		metrics:                opts.Metrics,
		cache:                  opts.Cache,
		project:                opts.Project,
		fatalDelay:             opts.FatalDelay,
		maxFatalRetries:        opts.MaxFatalRetries,
		duplicateBackoff:       opts.DuplicateBackoff,
		maxGetOrCreateAttempts: opts.MaxGetOrCreateAttempts,
	}
	if opts.Logger != nil {
		e.log = *opts.Logger
	} else {
		e.log = logging.NewLogger("bulkwrite")
	}
	if e.fatalDelay <= 0 {
		e.fatalDelay = DefaultFatalDelay
	}
	if e.maxFatalRetries <= 0 {
		e.maxFatalRetries = DefaultMaxFatalRetries
	}
	if e.duplicateBackoff <= 0 {
		e.duplicateBackoff = DefaultDuplicateBackoff
	}
	if e.maxGetOrCreateAttempts <= 0 {
		e.maxGetOrCreateAttempts = DefaultMaxGetOrCreateAttempts
	}

	e.log.Debug().
		Dur("fatal_delay", e.fatalDelay).
		Int("max_fatal_retries", e.maxFatalRetries).
		Dur("duplicate_backoff", e.duplicateBackoff).
		Int("max_get_or_create_attempts", e.maxGetOrCreateAttempts).
		Bool("cache", e.cache != nil).
		Msg("Engine created")

	return e, nil
}

// sleep waits d or until ctx is done. It reports whether the full wait
// elapsed.
func sleep(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}

// duplicateDelay returns the wait before duplicate resolution attempt n.
func (e *Engine) duplicateDelay(attempt int) time.Duration {
	return e.duplicateBackoff * time.Duration(1<<attempt)
}
