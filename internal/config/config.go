// Package config loads the warehouse job configuration from TOML files and
// HPDW_* environment variables.
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/pelletier/go-toml/v2"

	"github.com/JaimeStill/healthplan-dw/pkg/database"
	"github.com/JaimeStill/healthplan-dw/pkg/docstore"
	"github.com/JaimeStill/healthplan-dw/pkg/metrics"
)

const (
	BaseConfigFile       = "config.toml"
	OverlayConfigPattern = "config.%s.toml"

	EnvHPDWEnv             = "HPDW_ENV"
	EnvHPDWConfig          = "HPDW_CONFIG"
	EnvHPDWStartupTimeout  = "HPDW_STARTUP_TIMEOUT"
	EnvHPDWShutdownTimeout = "HPDW_SHUTDOWN_TIMEOUT"
	EnvHPDWVersion         = "HPDW_VERSION"
)

var warehouseEnv = &database.Env{
	Host:            "HPDW_DB_HOST",
	Port:            "HPDW_DB_PORT",
	Name:            "HPDW_DB_NAME",
	User:            "HPDW_DB_USER",
	Password:        "HPDW_DB_PASSWORD",
	SSLMode:         "HPDW_DB_SSL_MODE",
	ApplicationName: "HPDW_DB_APPLICATION_NAME",
	MaxOpenConns:    "HPDW_DB_MAX_OPEN_CONNS",
	MaxIdleConns:    "HPDW_DB_MAX_IDLE_CONNS",
	ConnMaxLifetime: "HPDW_DB_CONN_MAX_LIFETIME",
	ConnTimeout:     "HPDW_DB_CONN_TIMEOUT",
}

var sourceEnv = &docstore.Env{
	URI:         "HPDW_MONGO_URI",
	Database:    "HPDW_MONGO_DATABASE",
	Collection:  "HPDW_MONGO_COLLECTION",
	ConnTimeout: "HPDW_MONGO_CONN_TIMEOUT",
}

var metricsEnv = &metrics.Env{
	PushURL: "HPDW_METRICS_PUSH_URL",
	Job:     "HPDW_METRICS_JOB",
	Timeout: "HPDW_METRICS_TIMEOUT",
}

// Config is the root configuration shared by every command.
type Config struct {
	Warehouse       database.Config `toml:"warehouse"`
	Source          docstore.Config `toml:"source"`
	Handoff         HandoffConfig   `toml:"handoff"`
	Pipeline        PipelineConfig  `toml:"pipeline"`
	Quality         QualityConfig   `toml:"quality"`
	Analytics       AnalyticsConfig `toml:"analytics"`
	Dashboard       DashboardConfig `toml:"dashboard"`
	Metrics         metrics.Config  `toml:"metrics"`
	Log             LogConfig       `toml:"log"`
	StartupTimeout  string          `toml:"startup_timeout"`
	ShutdownTimeout string          `toml:"shutdown_timeout"`
	Version         string          `toml:"version"`
}

// Env returns the HPDW_ENV value, defaulting to "local".
func (c *Config) Env() string {
	if env := os.Getenv(EnvHPDWEnv); env != "" {
		return env
	}
	return "local"
}

// StartupTimeoutDuration returns StartupTimeout as a time.Duration.
func (c *Config) StartupTimeoutDuration() time.Duration {
	d, _ := time.ParseDuration(c.StartupTimeout)
	return d
}

// ShutdownTimeoutDuration returns ShutdownTimeout as a time.Duration.
func (c *Config) ShutdownTimeoutDuration() time.Duration {
	d, _ := time.ParseDuration(c.ShutdownTimeout)
	return d
}

// Load reads the base config (HPDW_CONFIG, else config.toml, if present),
// applies any environment overlay, and finalizes all values. Without a base
// file, defaults and environment variables provide all configuration.
func Load() (*Config, error) {
	cfg := &Config{}

	base := BaseConfigFile
	if v := os.Getenv(EnvHPDWConfig); v != "" {
		base = v
	}

	if _, err := os.Stat(base); err == nil {
		loaded, err := load(base)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	}

	if path := overlayPath(); path != "" {
		overlay, err := load(path)
		if err != nil {
			return nil, fmt.Errorf("load overlay %s: %w", path, err)
		}
		cfg.Merge(overlay)
	}

	if err := cfg.finalize(); err != nil {
		return nil, fmt.Errorf("finalize config: %w", err)
	}

	return cfg, nil
}

// Merge overwrites non-zero fields from overlay across all sub-configs.
func (c *Config) Merge(overlay *Config) {
	if overlay.StartupTimeout != "" {
		c.StartupTimeout = overlay.StartupTimeout
	}
	if overlay.ShutdownTimeout != "" {
		c.ShutdownTimeout = overlay.ShutdownTimeout
	}
	if overlay.Version != "" {
		c.Version = overlay.Version
	}
	c.Warehouse.Merge(&overlay.Warehouse)
	c.Source.Merge(&overlay.Source)
	c.Handoff.Merge(&overlay.Handoff)
	c.Pipeline.Merge(&overlay.Pipeline)
	c.Quality.Merge(&overlay.Quality)
	c.Analytics.Merge(&overlay.Analytics)
	c.Dashboard.Merge(&overlay.Dashboard)
	c.Metrics.Merge(&overlay.Metrics)
	c.Log.Merge(&overlay.Log)
}

func (c *Config) finalize() error {
	c.loadDefaults()
	c.loadEnv()

	if err := c.validate(); err != nil {
		return err
	}
	if err := c.Warehouse.Finalize(warehouseEnv); err != nil {
		return fmt.Errorf("warehouse: %w", err)
	}
	if err := c.Source.Finalize(sourceEnv); err != nil {
		return fmt.Errorf("source: %w", err)
	}
	if err := c.Handoff.Finalize(); err != nil {
		return fmt.Errorf("handoff: %w", err)
	}
	if err := c.Pipeline.Finalize(); err != nil {
		return fmt.Errorf("pipeline: %w", err)
	}
	if err := c.Quality.Finalize(); err != nil {
		return fmt.Errorf("quality: %w", err)
	}
	if err := c.Analytics.Finalize(); err != nil {
		return fmt.Errorf("analytics: %w", err)
	}
	if err := c.Dashboard.Finalize(); err != nil {
		return fmt.Errorf("dashboard: %w", err)
	}
	if err := c.Metrics.Finalize(metricsEnv); err != nil {
		return fmt.Errorf("metrics: %w", err)
	}
	if err := c.Log.Finalize(); err != nil {
		return fmt.Errorf("log: %w", err)
	}
	return nil
}

func (c *Config) loadDefaults() {
	if c.StartupTimeout == "" {
		c.StartupTimeout = "30s"
	}
	if c.ShutdownTimeout == "" {
		c.ShutdownTimeout = "30s"
	}
	if c.Version == "" {
		c.Version = "0.1.0"
	}
}

func (c *Config) loadEnv() {
	if v := os.Getenv(EnvHPDWStartupTimeout); v != "" {
		c.StartupTimeout = v
	}
	if v := os.Getenv(EnvHPDWShutdownTimeout); v != "" {
		c.ShutdownTimeout = v
	}
	if v := os.Getenv(EnvHPDWVersion); v != "" {
		c.Version = v
	}
}

func (c *Config) validate() error {
	if _, err := time.ParseDuration(c.StartupTimeout); err != nil {
		return fmt.Errorf("invalid startup_timeout: %w", err)
	}
	if _, err := time.ParseDuration(c.ShutdownTimeout); err != nil {
		return fmt.Errorf("invalid shutdown_timeout: %w", err)
	}
	return nil
}

func load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	var cfg Config
	if err := toml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	return &cfg, nil
}

func overlayPath() string {
	if env := os.Getenv(EnvHPDWEnv); env != "" {
		path := fmt.Sprintf(OverlayConfigPattern, env)
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}
	return ""
}
