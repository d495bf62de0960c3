package logging

import (
	"bytes"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/rs/zerolog"

	"github.com/Sternrassler/cdf-bulkwrite/pkg/identity"
	"github.com/Sternrassler/cdf-bulkwrite/pkg/result"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.Level != LevelInfo {
		t.Errorf("Expected default level to be Info, got %s", cfg.Level)
	}
	if cfg.Pretty {
		t.Error("Expected default pretty to be false")
	}
	if cfg.Output == nil {
		t.Error("Expected default output to be set")
	}
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		input    LogLevel
		expected zerolog.Level
	}{
		{LevelDebug, zerolog.DebugLevel},
		{LevelInfo, zerolog.InfoLevel},
		{LevelWarn, zerolog.WarnLevel},
		{"WARNING", zerolog.WarnLevel},
		{LevelError, zerolog.ErrorLevel},
		{"invalid", zerolog.InfoLevel}, // Should default to Info
	}

	for _, tt := range tests {
		t.Run(string(tt.input), func(t *testing.T) {
			if got := parseLevel(tt.input); got != tt.expected {
				t.Errorf("parseLevel(%q) = %v, want %v", tt.input, got, tt.expected)
			}
		})
	}
}

func TestNewLogger(t *testing.T) {
	buf := &bytes.Buffer{}
	Setup(Config{Level: LevelInfo, Output: buf})

	logger := NewLogger("bulkwrite")
	logger.Info().Msg("test message")

	output := buf.String()
	if !strings.Contains(output, `"component":"bulkwrite"`) {
		t.Errorf("Expected output to contain the component, got %q", output)
	}
	if !strings.Contains(output, "test message") {
		t.Errorf("Expected output to contain 'test message', got %q", output)
	}
}

func TestLogLevelFiltering(t *testing.T) {
	buf := &bytes.Buffer{}
	Setup(Config{Level: LevelWarn, Output: buf})

	logger := NewLogger("test")
	logger.Debug().Msg("debug message")
	logger.Info().Msg("info message")
	logger.Warn().Msg("warn message")
	logger.Error().Msg("error message")

	output := buf.String()
	if strings.Contains(output, "debug message") || strings.Contains(output, "info message") {
		t.Error("messages below warn should be filtered out")
	}
	if !strings.Contains(output, "warn message") || !strings.Contains(output, "error message") {
		t.Error("warn and error messages should be included")
	}
}

func TestCogniteError(t *testing.T) {
	zerolog.SetGlobalLevel(zerolog.DebugLevel)
	buf := &bytes.Buffer{}
	logger := zerolog.New(buf)

	values := make([]identity.Identity, 0, 25)
	for i := range 25 {
		values = append(values, identity.FromID(int64(i+1)))
	}
	CogniteError(logger, "assets", &result.CogniteError[string]{
		Kind:     result.KindItemMissing,
		Resource: result.ResourceParentExternalID,
		Values:   values,
		Skipped:  []string{"a", "b"},
		Message:  "Reference to unknown parent",
		Err:      errors.New("400"),
	})

	var entry struct {
		Level      string   `json:"level"`
		RecordKind string   `json:"record_kind"`
		ErrorKind  string   `json:"error_kind"`
		Resource   string   `json:"resource"`
		Values     []string `json:"values"`
		ValueCount int      `json:"value_count"`
		Skipped    int      `json:"skipped"`
		Message    string   `json:"message"`
	}
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("decode log entry %q: %v", buf.String(), err)
	}

	if entry.Level != "warn" {
		t.Errorf("level = %s, want warn", entry.Level)
	}
	if entry.RecordKind != "assets" || entry.ErrorKind != "itemMissing" || entry.Resource != "parentExternalId" {
		t.Errorf("entry = %+v", entry)
	}
	if len(entry.Values) != maxLoggedValues || entry.ValueCount != 25 {
		t.Errorf("values = %d (count %d), want %d (count 25)", len(entry.Values), entry.ValueCount, maxLoggedValues)
	}
	if entry.Skipped != 2 {
		t.Errorf("skipped = %d, want 2", entry.Skipped)
	}
	if entry.Values[0] != "id:1" {
		t.Errorf("values[0] = %s, want id:1", entry.Values[0])
	}
}

func TestCogniteError_FatalAtErrorLevel(t *testing.T) {
	zerolog.SetGlobalLevel(zerolog.DebugLevel)
	buf := &bytes.Buffer{}

	CogniteError(zerolog.New(buf), "events", result.Fatal[int](errors.New("boom"), []int{1}))

	if !strings.Contains(buf.String(), `"level":"error"`) {
		t.Errorf("fatal failure not logged at error level: %s", buf.String())
	}
}
