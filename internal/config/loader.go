package config

import (
	"os"

	"github.com/joho/godotenv"
	"go.uber.org/fx"
	"gopkg.in/yaml.v3"

	"github.com/ambientdata/horaria/pkg/util/exception"
	"github.com/ambientdata/horaria/pkg/util/logger"
)

const moduleName = "config"

// loadConfig loads configuration: defaults, then the embedded YAML, then
// environment variable overrides for deploy-time settings and secrets.
func loadConfig(embedded EmbeddedConfig) (*Config, error) {
	if err := godotenv.Load(); err != nil {
		logger.Debugf(".env file not found or could not be loaded: %v", err)
	}

	cfg := NewConfig()
	if len(embedded) > 0 {
		if err := yaml.Unmarshal(embedded, cfg); err != nil {
			return nil, exception.New(moduleName, "failed to unmarshal embedded config", err, false)
		}
	}
	applyEnvOverrides(cfg)

	if err := validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyEnvOverrides applies environment variables over the loaded config.
// Secrets (DSNs) are expected to arrive this way rather than in YAML.
func applyEnvOverrides(cfg *Config) {
	setIfPresent := func(env string, target *string) {
		if v := os.Getenv(env); v != "" {
			*target = v
		}
	}
	setIfPresent("HORARIA_LOG_LEVEL", &cfg.Horaria.Logging.Level)
	setIfPresent("HORARIA_PIPELINE_VERSION", &cfg.Horaria.Pipeline.Version)
	setIfPresent("HORARIA_WATERMARK_KEY", &cfg.Horaria.Pipeline.WatermarkKey)
	setIfPresent("HORARIA_STATE_DB_TYPE", &cfg.Horaria.StateDB.Type)
	setIfPresent("HORARIA_STATE_DB_DSN", &cfg.Horaria.StateDB.DSN)
	setIfPresent("HORARIA_TIMESERIES_TYPE", &cfg.Horaria.TimeSeries.Type)
	setIfPresent("HORARIA_TIMESERIES_DSN", &cfg.Horaria.TimeSeries.DSN)
	setIfPresent("HORARIA_METRICS_LISTEN", &cfg.Horaria.Metrics.Listen)
	setIfPresent("HORARIA_TRACING_ENDPOINT", &cfg.Horaria.Tracing.Endpoint)
}

// validate enforces the required settings. A missing time-series DSN is a
// configuration error: the run never starts without its source of truth.
func validate(cfg *Config) error {
	if cfg.Horaria.TimeSeries.DSN == "" {
		return exception.Newf(moduleName,
			"timeseries DSN is required; set horaria.timeseries.dsn or the HORARIA_TIMESERIES_DSN environment variable")
	}
	if cfg.Horaria.StateDB.DSN == "" {
		return exception.Newf(moduleName, "state_db DSN is required")
	}
	if cfg.Horaria.Pipeline.WatermarkKey == "" {
		return exception.Newf(moduleName, "pipeline.watermark_key must not be empty")
	}
	return nil
}

// NewConfigProvider is the Fx provider for *Config. It also sets the global
// log level so everything constructed after it logs at the configured level.
func NewConfigProvider(embedded EmbeddedConfig) (*Config, error) {
	cfg, err := loadConfig(embedded)
	if err != nil {
		return nil, err
	}
	logger.SetLogLevel(cfg.Horaria.Logging.Level)
	logger.Infof("Log level set to: %s", cfg.Horaria.Logging.Level)
	return cfg, nil
}

// NewRegistryProvider is the Fx provider for the validated source registry.
func NewRegistryProvider(cfg *Config) (*Registry, error) {
	return NewRegistry(cfg.Horaria.Sources)
}

// Module provides the configuration and the source registry.
var Module = fx.Options(
	fx.Provide(NewConfigProvider),
	fx.Provide(NewRegistryProvider),
)
