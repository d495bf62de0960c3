// Command bulkwrite loads a JSON array of records and writes it to a CDF
// project through the resilience engine. A summary of the result is printed
// to stdout as JSON.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/Sternrassler/cdf-bulkwrite/pkg/cache"
	"github.com/Sternrassler/cdf-bulkwrite/pkg/client"
	"github.com/Sternrassler/cdf-bulkwrite/pkg/config"
	"github.com/Sternrassler/cdf-bulkwrite/pkg/identity"
	"github.com/Sternrassler/cdf-bulkwrite/pkg/logging"
	"github.com/Sternrassler/cdf-bulkwrite/pkg/metrics"
	"github.com/Sternrassler/cdf-bulkwrite/pkg/resilience"
	"github.com/Sternrassler/cdf-bulkwrite/pkg/resource"
	"github.com/Sternrassler/cdf-bulkwrite/pkg/result"
)

// job is one invocation: what to do with which kind of records.
type job struct {
	kind    resource.Kind
	op      string
	db      string
	table   string
	setNull bool
}

// summary is the JSON printed after a run.
type summary struct {
	Kind    string         `json:"kind"`
	Op      string         `json:"op"`
	Results int            `json:"results"`
	Skipped int            `json:"skipped"`
	Errors  []errorSummary `json:"errors,omitempty"`
}

type errorSummary struct {
	Kind     string `json:"kind"`
	Resource string `json:"resource"`
	Skipped  int    `json:"skipped"`
	Values   int    `json:"values"`
	Message  string `json:"message,omitempty"`
}

func main() {
	// A missing .env is fine; the environment may be set already.
	_ = godotenv.Load()

	configPath := flag.String("config", getEnv("BULKWRITE_CONFIG", "bulkwrite.yaml"), "path to the YAML configuration")
	kind := flag.String("kind", "assets", "assets, events, timeseries, sequences, sequence_rows, datapoints or raw")
	op := flag.String("op", "ensure", "ensure, upsert, insert or delete")
	input := flag.String("input", "-", "JSON array of records, - for stdin")
	db := flag.String("db", "", "raw database (raw only)")
	table := flag.String("table", "", "raw table (raw only)")
	setNull := flag.Bool("set-null", false, "upsert clears fields the input leaves empty")
	metricsAddr := flag.String("metrics-addr", getEnv("METRICS_ADDR", ""), "serve /metrics and /health on this address while running")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}
	logger := logging.Setup(cfg.Logging.LoggingConfig())

	in := io.Reader(os.Stdin)
	if *input != "-" {
		f, err := os.Open(*input)
		if err != nil {
			logger.Fatal().Err(err).Msg("Failed to open input")
		}
		defer f.Close()
		in = f
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	reg := prometheus.NewRegistry()
	if *metricsAddr != "" {
		srv := newServer(*metricsAddr, reg)
		go func() {
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error().Err(err).Msg("Metrics server failed")
			}
		}()
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			srv.Shutdown(shutdownCtx)
		}()
		logger.Info().Str("addr", *metricsAddr).Msg("Serving metrics")
	}

	j := job{kind: resource.Kind(*kind), op: *op, db: *db, table: *table, setNull: *setNull}
	s, err := run(ctx, cfg, j, in, reg, logger)
	if s != nil {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		enc.Encode(s)
	}
	if err != nil {
		logger.Error().Err(err).Msg("Bulk write failed")
		stop()
		os.Exit(1)
	}
}

// newServer exposes the health check and the metrics of reg.
func newServer(addr string, reg *prometheus.Registry) *http.Server {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", healthHandler)
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	return &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
}

func healthHandler(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	fmt.Fprintf(w, "OK")
}

// run wires the client, cache and engine from cfg and executes j on the
// records read from in. The summary is returned even when the run was
// interrupted.
func run(ctx context.Context, cfg *config.Config, j job, in io.Reader, reg prometheus.Registerer, logger zerolog.Logger) (*summary, error) {
	data, err := io.ReadAll(in)
	if err != nil {
		return nil, fmt.Errorf("read input: %w", err)
	}

	cc := cfg.API.ClientConfig(cfg.Auth.TokenSource(ctx))
	cc.Logger = &logger
	c, err := client.New(cc)
	if err != nil {
		return nil, fmt.Errorf("create client: %w", err)
	}
	defer c.Close()

	opts := cfg.Engine.Options()
	opts.Logger = &logger
	opts.Metrics = metrics.NewRecorder(reg)
	opts.Project = cfg.API.Project

	if cfg.Cache.Enabled {
		redisClient := redis.NewClient(cfg.Cache.RedisOptions())
		defer redisClient.Close()
		if err := redisClient.Ping(ctx).Err(); err != nil {
			logger.Warn().Err(err).Str("addr", cfg.Cache.Addr).Msg("Redis unavailable, running without cache")
		} else {
			opts.Cache = cache.NewManager(redisClient, cfg.Cache.TTL)
		}
	}

	engine, err := resilience.New(c, opts)
	if err != nil {
		return nil, err
	}
	writeOpts, err := cfg.Engine.WriteOptions(j.kind)
	if err != nil {
		return nil, err
	}
	writeOpts.Progress = func(done, total int) {
		logger.Debug().Int("done", done).Int("total", total).Msg("Progress")
	}

	return execute(ctx, engine, j, writeOpts, data)
}

// execute dispatches j to the engine operation for its kind and op.
func execute(ctx context.Context, e *resilience.Engine, j job, opts resilience.WriteOptions, data []byte) (*summary, error) {
	upd := resource.UpdateOptions{SetNull: j.setNull}

	if j.op == "delete" {
		return decodeAndRun(j, data, func(ids []identity.Identity) (result.Result[identity.Identity, identity.Identity], error) {
			return e.Delete(ctx, j.kind, ids, opts)
		})
	}

	switch j.kind {
	case resource.KindAsset:
		switch j.op {
		case "ensure":
			return decodeAndRun(j, data, func(items []resource.AssetWrite) (result.Result[resource.Asset, resource.AssetWrite], error) {
				return e.EnsureAssetsExist(ctx, items, opts)
			})
		case "upsert":
			return decodeAndRun(j, data, func(items []resource.AssetWrite) (result.Result[resource.Asset, resource.AssetWrite], error) {
				return e.UpsertAssets(ctx, items, opts, upd)
			})
		}
	case resource.KindEvent:
		switch j.op {
		case "ensure":
			return decodeAndRun(j, data, func(items []resource.EventWrite) (result.Result[resource.Event, resource.EventWrite], error) {
				return e.EnsureEventsExist(ctx, items, opts)
			})
		case "upsert":
			return decodeAndRun(j, data, func(items []resource.EventWrite) (result.Result[resource.Event, resource.EventWrite], error) {
				return e.UpsertEvents(ctx, items, opts, upd)
			})
		}
	case resource.KindTimeSeries:
		switch j.op {
		case "ensure":
			return decodeAndRun(j, data, func(items []resource.TimeSeriesWrite) (result.Result[resource.TimeSeries, resource.TimeSeriesWrite], error) {
				return e.EnsureTimeSeriesExist(ctx, items, opts)
			})
		case "upsert":
			return decodeAndRun(j, data, func(items []resource.TimeSeriesWrite) (result.Result[resource.TimeSeries, resource.TimeSeriesWrite], error) {
				return e.UpsertTimeSeries(ctx, items, opts, upd)
			})
		}
	case resource.KindSequence:
		switch j.op {
		case "ensure":
			return decodeAndRun(j, data, func(items []resource.SequenceWrite) (result.Result[resource.Sequence, resource.SequenceWrite], error) {
				return e.EnsureSequencesExist(ctx, items, opts)
			})
		case "upsert":
			return decodeAndRun(j, data, func(items []resource.SequenceWrite) (result.Result[resource.Sequence, resource.SequenceWrite], error) {
				return e.UpsertSequences(ctx, items, opts, upd)
			})
		}
	case resource.KindSequenceRows:
		if j.op == "insert" {
			return decodeAndRun(j, data, func(items []resource.SequenceRowsWrite) (result.Result[resource.SequenceRowsWrite, resource.SequenceRowsWrite], error) {
				return e.InsertSequenceRows(ctx, items, opts)
			})
		}
	case resource.KindDataPoints:
		if j.op == "insert" {
			return decodeAndRun(j, data, func(items []resource.DataPointsWrite) (result.Result[identity.Identity, identity.Identity], error) {
				points := make(map[identity.Identity][]resource.DataPoint, len(items))
				for _, w := range items {
					points[w.Identity()] = append(points[w.Identity()], w.Datapoints...)
				}
				return e.InsertDataPoints(ctx, points, opts)
			})
		}
	case resource.KindRaw:
		if j.op == "insert" {
			if j.db == "" || j.table == "" {
				return nil, fmt.Errorf("raw inserts need -db and -table")
			}
			return decodeAndRun(j, data, func(rows []resource.RawRow) (result.Result[resource.RawRow, resource.RawRow], error) {
				return e.InsertRawRows(ctx, j.db, j.table, rows, opts)
			})
		}
	}
	return nil, fmt.Errorf("unsupported operation %q on %s", j.op, j.kind)
}

// decodeAndRun decodes data as a JSON array of T and summarizes the result
// of fn on it.
func decodeAndRun[T, R, E any](j job, data []byte, fn func([]T) (result.Result[R, E], error)) (*summary, error) {
	var items []T
	if err := json.Unmarshal(data, &items); err != nil {
		return nil, fmt.Errorf("decode input: %w", err)
	}
	r, err := fn(items)
	return summarize(j, r), err
}

func summarize[R, E any](j job, r result.Result[R, E]) *summary {
	s := &summary{
		Kind:    string(j.kind),
		Op:      j.op,
		Results: len(r.Results),
		Skipped: r.SkippedCount(),
	}
	for _, ce := range r.Errors {
		s.Errors = append(s.Errors, errorSummary{
			Kind:     string(ce.Kind),
			Resource: string(ce.Resource),
			Skipped:  len(ce.Skipped),
			Values:   len(ce.Values),
			Message:  ce.Message,
		})
	}
	return s
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
