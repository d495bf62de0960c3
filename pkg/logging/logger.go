// Package logging provides structured logging configuration using zerolog.
package logging

import (
	"io"
	"os"
	"strings"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/Sternrassler/cdf-bulkwrite/pkg/result"
)

// LogLevel represents the logging level.
type LogLevel string

const (
	// LevelDebug logs debug messages and above.
	LevelDebug LogLevel = "debug"

	// LevelInfo logs info messages and above.
	LevelInfo LogLevel = "info"

	// LevelWarn logs warning messages and above.
	LevelWarn LogLevel = "warn"

	// LevelError logs error messages only.
	LevelError LogLevel = "error"
)

// maxLoggedValues caps the identities written per error entry.
const maxLoggedValues = 20

// Config holds logger configuration.
type Config struct {
	// Level is the minimum log level to output.
	Level LogLevel

	// Pretty enables human-readable console output (default: false for JSON).
	Pretty bool

	// Output is the writer to output logs to (default: os.Stderr).
	Output io.Writer
}

// DefaultConfig returns a default logger configuration.
func DefaultConfig() Config {
	return Config{
		Level:  LevelInfo,
		Pretty: false,
		Output: os.Stderr,
	}
}

// Setup configures the global zerolog logger.
func Setup(cfg Config) zerolog.Logger {
	level := parseLevel(cfg.Level)
	zerolog.SetGlobalLevel(level)

	output := cfg.Output
	if output == nil {
		output = os.Stderr
	}
	if cfg.Pretty {
		output = zerolog.ConsoleWriter{Out: output}
	}

	logger := zerolog.New(output).With().Timestamp().Logger()
	log.Logger = logger

	return logger
}

// parseLevel converts LogLevel to zerolog.Level.
func parseLevel(level LogLevel) zerolog.Level {
	switch strings.ToLower(string(level)) {
	case "debug":
		return zerolog.DebugLevel
	case "info":
		return zerolog.InfoLevel
	case "warn", "warning":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}

// NewLogger creates a new logger with the given component name.
func NewLogger(component string) zerolog.Logger {
	return log.With().Str("component", component).Logger()
}

// CogniteError writes one entry for a failure reported in a write result.
// Fatal failures are logged at error level, everything else at warn.
func CogniteError[T any](logger zerolog.Logger, recordKind string, e *result.CogniteError[T]) {
	ev := logger.Warn()
	if e.Kind == result.KindFatalFailure {
		ev = logger.Error()
	}
	if e.Err != nil {
		ev = ev.Err(e.Err)
	}

	values := e.Values
	if len(values) > maxLoggedValues {
		values = values[:maxLoggedValues]
	}
	arr := zerolog.Arr()
	for _, v := range values {
		arr.Str(v.String())
	}

	ev.Str("record_kind", recordKind).
		Str("error_kind", string(e.Kind)).
		Str("resource", string(e.Resource)).
		Array("values", arr).
		Int("value_count", len(e.Values)).
		Int("skipped", len(e.Skipped)).
		Int("status_code", e.StatusCode).
		Msg(e.Message)
}

// Log Level Guidelines:
//
// Debug: Detailed information for debugging
//   - Request flow (endpoint, request id, payload size)
//   - Retry loop transitions (shrinking, follow-up lookups)
//   - Cache operations (hit/miss, key, TTL)
//
// Info: Normal operation events
//   - Finished write operations with created/updated/skipped counts
//   - Requests that succeeded after a transport retry
//
// Warn: Warning conditions that don't prevent operation
//   - Records skipped because of structural errors
//   - Waits after fatal failures
//   - Cache errors (fallback to the API)
//
// Error: Error conditions requiring attention
//   - Fatal failures that ended a batch
//   - Configuration errors
//
// Context Fields:
//   - endpoint: API route
//   - request_id: X-Request-Id sent with the request
//   - record_kind: assets, events, timeseries, ...
//   - error_kind: itemExists, itemMissing, fatalFailure, ...
//   - resource: the field an error is attributed to
//   - values: offending identities
//   - skipped: number of records removed because of the error
