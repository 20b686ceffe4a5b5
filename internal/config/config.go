// Package config loads and validates scraper configuration via Viper.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// EnvPrefix namespaces environment overrides, e.g. POLICY_SCRAPER_CONCURRENCY.
const EnvPrefix = "POLICY"

// HEAD probe timeouts must stay inside this window.
const (
	MinHeadTimeout = 5 * time.Second
	MaxHeadTimeout = 10 * time.Second
)

// Config captures every knob loaded via Viper.
type Config struct {
	Logging   LoggingConfig   `mapstructure:"logging"`
	Scraper   ScraperConfig   `mapstructure:"scraper"`
	HTTP      HTTPConfig      `mapstructure:"http"`
	Resolver  ResolverConfig  `mapstructure:"resolver"`
	Extractor ExtractorConfig `mapstructure:"extractor"`
	Output    OutputConfig    `mapstructure:"output"`
	Storage   StorageConfig   `mapstructure:"storage"`
	Results   ResultsConfig   `mapstructure:"results"`
	PubSub    PubSubConfig    `mapstructure:"pubsub"`
	Metrics   MetricsConfig   `mapstructure:"metrics"`
	Progress  ProgressConfig  `mapstructure:"progress"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool   `mapstructure:"development"`
	Level       string `mapstructure:"level"`
}

// ScraperConfig governs the worker pool and input sites.
type ScraperConfig struct {
	Concurrency   int           `mapstructure:"concurrency"`
	DelayMin      time.Duration `mapstructure:"delay_min"`
	DelayMax      time.Duration `mapstructure:"delay_max"`
	MinTextLength int           `mapstructure:"min_text_length"`
	SitesFile     string        `mapstructure:"sites_file"`
	Sites         []string      `mapstructure:"sites"`
}

// HTTPConfig configures the shared fetch client.
type HTTPConfig struct {
	UserAgent         string            `mapstructure:"user_agent"`
	Headers           map[string]string `mapstructure:"headers"`
	GetTimeout        time.Duration     `mapstructure:"get_timeout"`
	HeadTimeout       time.Duration     `mapstructure:"head_timeout"`
	MaxBodyBytes      int               `mapstructure:"max_body_bytes"`
	RequestsPerSecond float64           `mapstructure:"requests_per_second"`
	Burst             int               `mapstructure:"burst"`
}

// ResolverConfig overrides the policy link patterns and fallback paths.
type ResolverConfig struct {
	Patterns      []string `mapstructure:"patterns"`
	FallbackPaths []string `mapstructure:"fallback_paths"`
}

// ExtractorConfig overrides the text extraction pipeline.
type ExtractorConfig struct {
	MaxLength        int      `mapstructure:"max_length"`
	ContentSelectors []string `mapstructure:"content_selectors"`
	StripTags        []string `mapstructure:"strip_tags"`
	FallbackTags     []string `mapstructure:"fallback_tags"`
}

// OutputConfig controls the CSV artifacts.
type OutputConfig struct {
	Dir       string `mapstructure:"dir"`
	Prefix    string `mapstructure:"prefix"`
	Timestamp bool   `mapstructure:"timestamp"`
}

// StorageConfig selects the blob backend for CSV artifacts.
type StorageConfig struct {
	Backend   string `mapstructure:"backend"`
	GCSBucket string `mapstructure:"gcs_bucket"`
	Prefix    string `mapstructure:"prefix"`
}

// ResultsConfig selects an optional relational result store.
type ResultsConfig struct {
	Backend    string `mapstructure:"backend"`
	DSN        string `mapstructure:"dsn"`
	SQLitePath string `mapstructure:"sqlite_path"`
	Table      string `mapstructure:"table"`
	MaxConns   int32  `mapstructure:"max_conns"`
	BatchSize  int    `mapstructure:"batch_size"`
}

// PubSubConfig holds metadata for run notifications.
type PubSubConfig struct {
	ProjectID string `mapstructure:"project_id"`
	Topic     string `mapstructure:"topic"`
}

// MetricsConfig points at an optional node-exporter textfile.
type MetricsConfig struct {
	Textfile string `mapstructure:"textfile"`
}

// ProgressConfig tunes the progress hub.
type ProgressConfig struct {
	LogEvents      bool          `mapstructure:"log_events"`
	BufferSize     int           `mapstructure:"buffer_size"`
	MaxBatchEvents int           `mapstructure:"max_batch_events"`
	MaxBatchWait   time.Duration `mapstructure:"max_batch_wait"`
}

// Load builds a Config from disk and environment.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

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

func setDefaults(v *viper.Viper) {
	v.SetDefault("logging.development", true)
	v.SetDefault("scraper.concurrency", 4)
	v.SetDefault("scraper.delay_min", "1s")
	v.SetDefault("scraper.delay_max", "3s")
	v.SetDefault("scraper.min_text_length", 100)
	v.SetDefault("http.get_timeout", "15s")
	v.SetDefault("http.head_timeout", "10s")
	v.SetDefault("http.max_body_bytes", 10<<20)
	v.SetDefault("http.requests_per_second", 0)
	v.SetDefault("http.burst", 1)
	v.SetDefault("extractor.max_length", 50000)
	v.SetDefault("output.dir", "output")
	v.SetDefault("output.prefix", "privacy_policies")
	v.SetDefault("output.timestamp", true)
	v.SetDefault("storage.backend", "local")
	v.SetDefault("results.table", "policy_results")
	v.SetDefault("results.sqlite_path", "policies.db")
	v.SetDefault("results.max_conns", 4)
	v.SetDefault("results.batch_size", 500)
	v.SetDefault("progress.buffer_size", 1024)
	v.SetDefault("progress.max_batch_events", 256)
	v.SetDefault("progress.max_batch_wait", "500ms")
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if c.Scraper.Concurrency <= 0 {
		return errors.New("scraper.concurrency must be > 0")
	}
	if c.Scraper.DelayMin < 0 || c.Scraper.DelayMax < c.Scraper.DelayMin {
		return fmt.Errorf("scraper.delay_min (%s) must be >= 0 and <= scraper.delay_max (%s)",
			c.Scraper.DelayMin, c.Scraper.DelayMax)
	}
	if c.Scraper.MinTextLength < 0 {
		return errors.New("scraper.min_text_length must be >= 0")
	}
	if c.HTTP.GetTimeout <= 0 {
		return errors.New("http.get_timeout must be > 0")
	}
	if c.HTTP.HeadTimeout < MinHeadTimeout || c.HTTP.HeadTimeout > MaxHeadTimeout {
		return fmt.Errorf("http.head_timeout must be between %s and %s, got %s",
			MinHeadTimeout, MaxHeadTimeout, c.HTTP.HeadTimeout)
	}
	if c.HTTP.RequestsPerSecond < 0 {
		return errors.New("http.requests_per_second must be >= 0")
	}
	if c.Extractor.MaxLength < 0 {
		return errors.New("extractor.max_length must be >= 0")
	}
	switch c.Storage.Backend {
	case "local", "memory":
	case "gcs":
		if c.Storage.GCSBucket == "" {
			return errors.New("storage.gcs_bucket must be set when storage.backend is gcs")
		}
	default:
		return fmt.Errorf("unknown storage.backend %q", c.Storage.Backend)
	}
	switch c.Results.Backend {
	case "", "sqlite":
	case "postgres":
		if c.Results.DSN == "" {
			return errors.New("results.dsn must be set when results.backend is postgres")
		}
	default:
		return fmt.Errorf("unknown results.backend %q", c.Results.Backend)
	}
	if c.PubSub.Topic != "" && c.PubSub.ProjectID == "" {
		return errors.New("pubsub.project_id must be set when pubsub.topic is set")
	}
	return nil
}
