// Package config loads the YAML configuration of the bulk-write engine and
// converts it into the option types of the client, cache and engine
// packages.
package config

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"
	"gopkg.in/yaml.v3"

	"github.com/Sternrassler/cdf-bulkwrite/pkg/cache"
	"github.com/Sternrassler/cdf-bulkwrite/pkg/client"
	"github.com/Sternrassler/cdf-bulkwrite/pkg/logging"
	"github.com/Sternrassler/cdf-bulkwrite/pkg/resilience"
	"github.com/Sternrassler/cdf-bulkwrite/pkg/resource"
	"github.com/Sternrassler/cdf-bulkwrite/pkg/sanitize"
)

// Config is the top-level configuration.
type Config struct {
	API     APIConfig     `yaml:"api"`
	Auth    AuthConfig    `yaml:"auth"`
	Engine  EngineConfig  `yaml:"engine"`
	Cache   CacheConfig   `yaml:"cache"`
	Logging LoggingConfig `yaml:"logging"`
}

// APIConfig holds transport settings.
type APIConfig struct {
	BaseURL        string        `yaml:"base_url"`
	Project        string        `yaml:"project"`
	UserAgent      string        `yaml:"user_agent"`
	Timeout        time.Duration `yaml:"timeout"`
	MaxRetries     int           `yaml:"max_retries"`
	InitialBackoff time.Duration `yaml:"initial_backoff"`
	MaxBackoff     time.Duration `yaml:"max_backoff"`
}

// AuthConfig holds OAuth2 client credentials. Requests are sent without
// a token when ClientID is empty.
type AuthConfig struct {
	TokenURL     string   `yaml:"token_url"`
	ClientID     string   `yaml:"client_id"`
	ClientSecret string   `yaml:"client_secret"`
	Scopes       []string `yaml:"scopes"`
}

// EngineConfig holds the retry controller settings and the per-call write
// defaults.
type EngineConfig struct {
	// ChunkSizes overrides ChunkSize per resource kind ("assets", "events",
	// "timeseries", ...).
	ChunkSizes  map[string]int `yaml:"chunk_sizes"`
	ChunkSize   int            `yaml:"chunk_size"`
	Parallelism int            `yaml:"parallelism"`

	// RetryOnError, WaitOnFatal and KeepDuplicates default to true.
	RetryOnError   *bool `yaml:"retry_on_error"`
	WaitOnFatal    *bool `yaml:"wait_on_fatal"`
	KeepDuplicates *bool `yaml:"keep_duplicates"`

	// Sanitation is one of none, clean or remove.
	Sanitation string `yaml:"sanitation"`

	FatalDelay             time.Duration `yaml:"fatal_delay"`
	MaxFatalRetries        int           `yaml:"max_fatal_retries"`
	DuplicateBackoff       time.Duration `yaml:"duplicate_backoff"`
	MaxGetOrCreateAttempts int           `yaml:"max_get_or_create_attempts"`
}

// CacheConfig holds the Redis record cache settings.
type CacheConfig struct {
	Enabled  bool          `yaml:"enabled"`
	Addr     string        `yaml:"addr"`
	Password string        `yaml:"password"`
	DB       int           `yaml:"db"`
	TTL      time.Duration `yaml:"ttl"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level  string `yaml:"level"` // debug, info, warn, error
	Pretty bool   `yaml:"pretty"`
}

// Load reads configuration from a YAML file. ${VAR} references are expanded
// from the environment before parsing.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}
	return Parse(data)
}

// Parse parses YAML configuration and fills in defaults.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	expanded := os.ExpandEnv(string(data))
	if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
		return nil, fmt.Errorf("parse config file: %w", err)
	}

	cfg.setDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) setDefaults() {
	retry := client.DefaultRetryConfig()
	if c.API.Timeout == 0 {
		c.API.Timeout = 60 * time.Second
	}
	if c.API.MaxRetries == 0 {
		c.API.MaxRetries = retry.MaxAttempts
	}
	if c.API.InitialBackoff == 0 {
		c.API.InitialBackoff = retry.InitialBackoff
	}
	if c.API.MaxBackoff == 0 {
		c.API.MaxBackoff = retry.MaxBackoff
	}

	if c.Engine.ChunkSize == 0 {
		c.Engine.ChunkSize = resilience.DefaultChunkSize
	}
	if c.Engine.Parallelism == 0 {
		c.Engine.Parallelism = resilience.DefaultParallelism
	}
	if c.Engine.Sanitation == "" {
		c.Engine.Sanitation = sanitize.ModeClean.String()
	}
	if c.Engine.FatalDelay == 0 {
		c.Engine.FatalDelay = resilience.DefaultFatalDelay
	}
	if c.Engine.MaxFatalRetries == 0 {
		c.Engine.MaxFatalRetries = resilience.DefaultMaxFatalRetries
	}
	if c.Engine.DuplicateBackoff == 0 {
		c.Engine.DuplicateBackoff = resilience.DefaultDuplicateBackoff
	}
	if c.Engine.MaxGetOrCreateAttempts == 0 {
		c.Engine.MaxGetOrCreateAttempts = resilience.DefaultMaxGetOrCreateAttempts
	}

	if c.Cache.Addr == "" {
		c.Cache.Addr = "localhost:6379"
	}
	if c.Cache.TTL == 0 {
		c.Cache.TTL = cache.DefaultTTL
	}

	if c.Logging.Level == "" {
		c.Logging.Level = string(logging.LevelInfo)
	}
}

// Validate checks the settings that have no usable default.
func (c *Config) Validate() error {
	if c.API.BaseURL == "" {
		return fmt.Errorf("api.base_url is required")
	}
	if c.API.Project == "" {
		return fmt.Errorf("api.project is required")
	}
	if c.Auth.ClientID != "" && c.Auth.TokenURL == "" {
		return fmt.Errorf("auth.token_url is required with auth.client_id")
	}
	if c.Engine.ChunkSize < 0 || c.Engine.Parallelism < 0 {
		return fmt.Errorf("engine.chunk_size and engine.parallelism must be positive")
	}
	for kind, size := range c.Engine.ChunkSizes {
		if size <= 0 {
			return fmt.Errorf("engine.chunk_sizes.%s must be positive (got %d)", kind, size)
		}
	}
	if _, err := sanitize.ParseMode(c.Engine.Sanitation); err != nil {
		return fmt.Errorf("engine.sanitation: %w", err)
	}
	return nil
}

// TokenSource returns a client credentials token source, or nil when no
// client id is configured.
func (a AuthConfig) TokenSource(ctx context.Context) oauth2.TokenSource {
	if a.ClientID == "" {
		return nil
	}
	cc := clientcredentials.Config{
		ClientID:     a.ClientID,
		ClientSecret: a.ClientSecret,
		TokenURL:     a.TokenURL,
		Scopes:       a.Scopes,
	}
	return cc.TokenSource(ctx)
}

// ClientConfig converts the API section into a client configuration.
func (a APIConfig) ClientConfig(ts oauth2.TokenSource) client.Config {
	cfg := client.DefaultConfig(a.BaseURL, a.Project, ts)
	if a.UserAgent != "" {
		cfg.UserAgent = a.UserAgent
	}
	cfg.Timeout = a.Timeout
	cfg.Retry.MaxAttempts = a.MaxRetries
	cfg.Retry.InitialBackoff = a.InitialBackoff
	cfg.Retry.MaxBackoff = a.MaxBackoff
	return cfg
}

// RedisOptions returns the Redis connection options.
func (c CacheConfig) RedisOptions() *redis.Options {
	return &redis.Options{
		Addr:     c.Addr,
		Password: c.Password,
		DB:       c.DB,
	}
}

// LoggingConfig converts the logging section.
func (l LoggingConfig) LoggingConfig() logging.Config {
	cfg := logging.DefaultConfig()
	cfg.Level = logging.LogLevel(l.Level)
	cfg.Pretty = l.Pretty
	return cfg
}

// Options returns the engine options. Logger, metrics and cache are wired
// by the caller.
func (c EngineConfig) Options() resilience.Options {
	return resilience.Options{
		FatalDelay:             c.FatalDelay,
		MaxFatalRetries:        c.MaxFatalRetries,
		DuplicateBackoff:       c.DuplicateBackoff,
		MaxGetOrCreateAttempts: c.MaxGetOrCreateAttempts,
	}
}

// Policy returns the retry policy. Unset facets are enabled.
func (c EngineConfig) Policy() resilience.RetryPolicy {
	return resilience.RetryPolicy{
		RetryOnError:   boolOr(c.RetryOnError, true),
		WaitOnFatal:    boolOr(c.WaitOnFatal, true),
		KeepDuplicates: boolOr(c.KeepDuplicates, true),
	}
}

// WriteOptions returns the per-call defaults for kind.
func (c EngineConfig) WriteOptions(kind resource.Kind) (resilience.WriteOptions, error) {
	mode, err := sanitize.ParseMode(c.Sanitation)
	if err != nil {
		return resilience.WriteOptions{}, err
	}

	size := c.ChunkSize
	if s, ok := c.ChunkSizes[string(kind)]; ok {
		size = s
	}
	return resilience.WriteOptions{
		ChunkSize:   size,
		Parallelism: c.Parallelism,
		Policy:      c.Policy(),
		Mode:        mode,
	}, nil
}

func boolOr(v *bool, def bool) bool {
	if v == nil {
		return def
	}
	return *v
}
