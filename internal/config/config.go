// Package config loads and validates orchestrator configuration via Viper.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/JakeFAU/catalog-crawl-orchestrator/internal/crawl"
)

// Supported target sources and storage backends.
const (
	SourceStatic   = "static"
	SourcePostgres = "postgres"

	BackendMemory = "memory"
	BackendLocal  = "local"
	BackendGCS    = "gcs"
)

// Config captures all service configuration knobs loaded via Viper.
type Config struct {
	Server       ServerConfig       `mapstructure:"server"`
	Auth         AuthConfig         `mapstructure:"auth"`
	Crawl        CrawlConfig        `mapstructure:"crawl"`
	Continuation ContinuationConfig `mapstructure:"continuation"`
	Targets      TargetsConfig      `mapstructure:"targets"`
	Builder      BuilderConfig      `mapstructure:"builder"`
	Storage      StorageConfig      `mapstructure:"storage"`
	PubSub       PubSubConfig       `mapstructure:"pubsub"`
	Logging      LoggingConfig      `mapstructure:"logging"`
	Progress     ProgressConfig     `mapstructure:"progress"`
}

// ServerConfig controls HTTP server behavior.
type ServerConfig struct {
	Port int `mapstructure:"port"`
}

// AuthConfig holds the shared secret protecting the crawl endpoint. An empty
// secret leaves the endpoint open.
type AuthConfig struct {
	CronSecret string `mapstructure:"cron_secret"`
}

// CrawlConfig governs chunk sizing and the per-invocation time budget.
type CrawlConfig struct {
	DefaultChunkSize       int `mapstructure:"default_chunk_size"`
	ExecutionBudgetSeconds int `mapstructure:"execution_budget_seconds"`
}

// ContinuationConfig configures the self-invocation hand-off.
type ContinuationConfig struct {
	Enabled           bool   `mapstructure:"enabled"`
	BaseURL           string `mapstructure:"base_url"`
	TrustedHostHeader string `mapstructure:"trusted_host_header"`
	TimeoutSeconds    int    `mapstructure:"timeout_seconds"`
}

// TargetsConfig selects where the target universe comes from.
type TargetsConfig struct {
	Source   string         `mapstructure:"source"`
	Static   []crawl.Target `mapstructure:"static"`
	Postgres PostgresConfig `mapstructure:"postgres"`
}

// PostgresConfig controls access to the target table.
type PostgresConfig struct {
	DSN      string `mapstructure:"dsn"`
	Table    string `mapstructure:"table"`
	MaxConns int    `mapstructure:"max_conns"`
}

// BuilderConfig tunes the catalog builder's fetch behavior and blob layout.
type BuilderConfig struct {
	UserAgent      string  `mapstructure:"user_agent"`
	TimeoutSeconds int     `mapstructure:"timeout_seconds"`
	RatePerSecond  float64 `mapstructure:"rate_per_second"`
	Burst          int     `mapstructure:"burst"`
	ContentType    string  `mapstructure:"content_type"`
	Prefix         string  `mapstructure:"prefix"`
}

// StorageConfig selects the blob backend.
type StorageConfig struct {
	Backend   string `mapstructure:"backend"`
	LocalDir  string `mapstructure:"local_dir"`
	GCSBucket string `mapstructure:"gcs_bucket"`
}

// PubSubConfig holds metadata for publish-subscribe notifications. An empty
// project keeps notifications in memory.
type PubSubConfig struct {
	ProjectID string `mapstructure:"project_id"`
	TopicName string `mapstructure:"topic_name"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool   `mapstructure:"development"`
	Level       string `mapstructure:"level"`
}

// ProgressConfig tunes the in-process progress hub.
type ProgressConfig struct {
	BufferSize      int `mapstructure:"buffer_size"`
	MaxBatchEvents  int `mapstructure:"max_batch_events"`
	MaxBatchWaitMs  int `mapstructure:"max_batch_wait_ms"`
	SinkTimeoutSecs int `mapstructure:"sink_timeout_seconds"`
}

// Load builds a Config from disk/environment.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("CRAWLER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)
	if err := bindPlatformEnv(v); err != nil {
		return Config{}, err
	}

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

// bindPlatformEnv lets the hosting platform's conventional variables stand in
// for prefixed ones.
func bindPlatformEnv(v *viper.Viper) error {
	bindings := map[string][]string{
		"auth.cron_secret": {"CRAWLER_AUTH_CRON_SECRET", "CRON_SECRET"},
		"server.port":      {"CRAWLER_SERVER_PORT", "PORT"},
	}
	for key, envs := range bindings {
		if err := v.BindEnv(append([]string{key}, envs...)...); err != nil {
			return fmt.Errorf("bind env %s: %w", key, err)
		}
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("auth.cron_secret", "")
	v.SetDefault("crawl.default_chunk_size", 5)
	v.SetDefault("crawl.execution_budget_seconds", 300)
	v.SetDefault("continuation.enabled", true)
	v.SetDefault("continuation.base_url", "")
	v.SetDefault("continuation.trusted_host_header", "X-Forwarded-Host")
	v.SetDefault("continuation.timeout_seconds", 10)
	v.SetDefault("targets.source", SourceStatic)
	v.SetDefault("targets.postgres.table", "catalog_targets")
	v.SetDefault("targets.postgres.max_conns", 4)
	v.SetDefault("builder.user_agent", "catalog-crawl-orchestrator/0.1")
	v.SetDefault("builder.timeout_seconds", 30)
	v.SetDefault("builder.rate_per_second", 1.0)
	v.SetDefault("builder.burst", 1)
	v.SetDefault("builder.content_type", "text/html; charset=utf-8")
	v.SetDefault("builder.prefix", "catalogs")
	v.SetDefault("storage.backend", BackendMemory)
	v.SetDefault("storage.local_dir", "data")
	v.SetDefault("pubsub.topic_name", "catalog-built")
	v.SetDefault("logging.development", true)
	v.SetDefault("logging.level", "")
	v.SetDefault("progress.buffer_size", 256)
	v.SetDefault("progress.max_batch_events", 64)
	v.SetDefault("progress.max_batch_wait_ms", 250)
	v.SetDefault("progress.sink_timeout_seconds", 5)
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if c.Server.Port <= 0 {
		return fmt.Errorf("server.port must be > 0")
	}
	if c.Crawl.DefaultChunkSize <= 0 {
		return fmt.Errorf("crawl.default_chunk_size must be > 0")
	}
	if c.Crawl.ExecutionBudgetSeconds <= 0 {
		return fmt.Errorf("crawl.execution_budget_seconds must be > 0")
	}
	if c.Continuation.TimeoutSeconds <= 0 {
		return fmt.Errorf("continuation.timeout_seconds must be > 0")
	}
	switch c.Targets.Source {
	case SourceStatic:
		for i, t := range c.Targets.Static {
			if t.ID == "" || t.URL == "" {
				return fmt.Errorf("targets.static[%d] requires id and url", i)
			}
		}
	case SourcePostgres:
		if c.Targets.Postgres.DSN == "" {
			return fmt.Errorf("targets.postgres.dsn must be set when targets.source is postgres")
		}
		if c.Targets.Postgres.MaxConns < 1 || c.Targets.Postgres.MaxConns > 1000 {
			return fmt.Errorf("targets.postgres.max_conns must be between 1 and 1000")
		}
	default:
		return fmt.Errorf("targets.source must be %q or %q", SourceStatic, SourcePostgres)
	}
	if c.Builder.TimeoutSeconds <= 0 {
		return fmt.Errorf("builder.timeout_seconds must be > 0")
	}
	if c.Builder.RatePerSecond <= 0 || c.Builder.Burst <= 0 {
		return fmt.Errorf("builder.rate_per_second and builder.burst must be > 0")
	}
	switch c.Storage.Backend {
	case BackendMemory:
	case BackendLocal:
		if c.Storage.LocalDir == "" {
			return fmt.Errorf("storage.local_dir must be set for the local backend")
		}
	case BackendGCS:
		if c.Storage.GCSBucket == "" {
			return fmt.Errorf("storage.gcs_bucket must be set for the gcs backend")
		}
	default:
		return fmt.Errorf("storage.backend must be one of memory, local, gcs")
	}
	if c.PubSub.ProjectID != "" && c.PubSub.TopicName == "" {
		return fmt.Errorf("pubsub.topic_name must be set when pubsub.project_id is set")
	}
	return nil
}

// ExecutionBudget returns the advisory per-chunk time budget.
func (c Config) ExecutionBudget() time.Duration {
	return time.Duration(c.Crawl.ExecutionBudgetSeconds) * time.Second
}

// ContinuationTimeout bounds one hand-off request.
func (c Config) ContinuationTimeout() time.Duration {
	return time.Duration(c.Continuation.TimeoutSeconds) * time.Second
}

// BuilderTimeout bounds a single catalog fetch.
func (c Config) BuilderTimeout() time.Duration {
	return time.Duration(c.Builder.TimeoutSeconds) * time.Second
}

// ProgressBatchWait converts the batch wait knob into a duration.
func (c Config) ProgressBatchWait() time.Duration {
	return time.Duration(c.Progress.MaxBatchWaitMs) * time.Millisecond
}

// ProgressSinkTimeout converts the sink timeout knob into a duration.
func (c Config) ProgressSinkTimeout() time.Duration {
	return time.Duration(c.Progress.SinkTimeoutSecs) * time.Second
}
