// Package config provides structures and loading utilities for the pipeline
// configuration: defaults, embedded YAML, then environment overrides.
package config

import "time"

// EmbeddedConfig holds the content of the configuration file, typically
// passed from main.go via go:embed.
type EmbeddedConfig []byte

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	// Level is the logging level (e.g., "INFO", "DEBUG").
	Level string `yaml:"level"`
}

// DatabaseConfig describes one SQL connection (state database or time-series store).
type DatabaseConfig struct {
	// Type selects the GORM dialector: "mysql", "postgres" or "sqlite".
	Type string `yaml:"type"`
	// DSN is the driver-specific connection string.
	DSN string `yaml:"dsn"`
}

// RetryConfig holds the fetch adapter's retry budget.
type RetryConfig struct {
	// MaxAttempts is the maximum number of attempts per fetch (first try included).
	MaxAttempts int `yaml:"max_attempts"`
	// InitialInterval is the backoff interval in milliseconds between attempts.
	InitialInterval int `yaml:"initial_interval"`
}

// BreakerConfig holds the fetch circuit breaker settings.
type BreakerConfig struct {
	// MaxFailures is the number of consecutive failures that open the circuit.
	MaxFailures uint32 `yaml:"max_failures"`
	// ResetInterval is the open-state duration in milliseconds before a probe is allowed.
	ResetInterval int `yaml:"reset_interval"`
}

// FetchConfig groups the fetch adapter settings.
type FetchConfig struct {
	Retry   RetryConfig   `yaml:"retry"`
	Breaker BreakerConfig `yaml:"breaker"`
}

// ExporterConfig describes one export destination. Options carries
// destination-specific settings bound with mapstructure by the exporter.
type ExporterConfig struct {
	Enabled bool                   `yaml:"enabled"`
	Options map[string]interface{} `yaml:"options"`
}

// ExportersConfig toggles the configured destinations.
type ExportersConfig struct {
	Warehouse ExporterConfig `yaml:"warehouse"`
	Parquet   ExporterConfig `yaml:"parquet"`
}

// PipelineConfig holds the run-level settings.
type PipelineConfig struct {
	// Version is the pipeline version tag stamped on every output row.
	Version string `yaml:"version"`
	// Incremental selects watermark-driven windows; false reprocesses the
	// default window on every run.
	Incremental bool `yaml:"incremental"`
	// WatermarkKey is the identity of the persisted watermark.
	WatermarkKey string `yaml:"watermark_key"`
	// Sources optionally restricts the run to a subset of configured sources.
	Sources []string `yaml:"sources"`
}

// MetricsConfig holds the Prometheus listener settings for serve mode.
type MetricsConfig struct {
	Listen string `yaml:"listen"`
}

// TracingConfig holds the OTLP trace exporter settings. Tracing is disabled
// while Endpoint is empty.
type TracingConfig struct {
	Endpoint string `yaml:"endpoint"`
}

// ScheduleConfig holds the serve-mode schedule.
type ScheduleConfig struct {
	EveryMinutes int `yaml:"every_minutes"`
}

// SourceConfig describes one pollutant or meteorological feed: its raw table
// and the ordered metric column list ("*" selects all non-key columns).
type SourceConfig struct {
	Table   string   `yaml:"table"`
	Metrics []string `yaml:"metrics"`
}

// HorariaConfig holds all configuration under the "horaria" top-level key.
type HorariaConfig struct {
	Pipeline   PipelineConfig          `yaml:"pipeline"`
	Logging    LoggingConfig           `yaml:"logging"`
	StateDB    DatabaseConfig          `yaml:"state_db"`
	TimeSeries DatabaseConfig          `yaml:"timeseries"`
	Fetch      FetchConfig             `yaml:"fetch"`
	Exporters  ExportersConfig         `yaml:"exporters"`
	Metrics    MetricsConfig           `yaml:"metrics"`
	Tracing    TracingConfig           `yaml:"tracing"`
	Schedule   ScheduleConfig          `yaml:"schedule"`
	Sources    map[string]SourceConfig `yaml:"sources"`
}

// Config is the root structure for the entire application configuration.
type Config struct {
	Horaria HorariaConfig `yaml:"horaria"`
}

// NewConfig returns a Config populated with default values, including the
// default source registry.
func NewConfig() *Config {
	return &Config{
		Horaria: HorariaConfig{
			Pipeline: PipelineConfig{
				Version:      "v0.8.6",
				Incremental:  true,
				WatermarkKey: "pipeline-state",
			},
			Logging: LoggingConfig{Level: "INFO"},
			StateDB: DatabaseConfig{Type: "sqlite", DSN: "horaria.db"},
			Fetch: FetchConfig{
				Retry:   RetryConfig{MaxAttempts: 3, InitialInterval: 60000},
				Breaker: BreakerConfig{MaxFailures: 5, ResetInterval: 30000},
			},
			Exporters: ExportersConfig{
				Warehouse: ExporterConfig{Enabled: true},
			},
			Metrics:  MetricsConfig{Listen: ":9090"},
			Schedule: ScheduleConfig{EveryMinutes: 60},
			Sources:  DefaultSources(),
		},
	}
}

// RetryBackoff returns the configured backoff as a duration.
func (c RetryConfig) RetryBackoff() time.Duration {
	return time.Duration(c.InitialInterval) * time.Millisecond
}

// ResetTimeout returns the configured open-state duration.
func (c BreakerConfig) ResetTimeout() time.Duration {
	return time.Duration(c.ResetInterval) * time.Millisecond
}
