package config

import (
	"fmt"
	"os"
	"strconv"

	"github.com/JaimeStill/healthplan-dw/internal/analytics"
)

const (
	EnvAnalyticsAnomalyThreshold = "HPDW_ANALYTICS_ANOMALY_THRESHOLD"
	EnvAnalyticsExportDir        = "HPDW_ANALYTICS_EXPORT_DIR"
)

// AnalyticsConfig holds batch analytics parameters. An empty ExportDir
// disables the Parquet export.
type AnalyticsConfig struct {
	AnomalyThreshold float64 `toml:"anomaly_threshold"`
	ExportDir        string  `toml:"export_dir"`
}

// Finalize applies defaults, environment variable overrides, and validation.
func (c *AnalyticsConfig) Finalize() error {
	c.loadDefaults()
	c.loadEnv()
	return c.validate()
}

// Merge overwrites non-zero fields from overlay.
func (c *AnalyticsConfig) Merge(overlay *AnalyticsConfig) {
	if overlay.AnomalyThreshold != 0 {
		c.AnomalyThreshold = overlay.AnomalyThreshold
	}
	if overlay.ExportDir != "" {
		c.ExportDir = overlay.ExportDir
	}
}

func (c *AnalyticsConfig) loadDefaults() {
	if c.AnomalyThreshold == 0 {
		c.AnomalyThreshold = analytics.DefaultAnomalyThreshold
	}
}

func (c *AnalyticsConfig) loadEnv() {
	if v := os.Getenv(EnvAnalyticsAnomalyThreshold); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			c.AnomalyThreshold = f
		}
	}
	if v := os.Getenv(EnvAnalyticsExportDir); v != "" {
		c.ExportDir = v
	}
}

func (c *AnalyticsConfig) validate() error {
	if c.AnomalyThreshold <= 0 {
		return fmt.Errorf("invalid anomaly_threshold: %v", c.AnomalyThreshold)
	}
	return nil
}
