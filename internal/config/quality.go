package config

import (
	"fmt"
	"os"
	"strconv"

	"github.com/shopspring/decimal"

	"github.com/JaimeStill/healthplan-dw/internal/warehouse"
)

const (
	EnvQualityMaxDeductible = "HPDW_QUALITY_MAX_DEDUCTIBLE"
	EnvQualityBlockSuccess  = "HPDW_QUALITY_BLOCK_SUCCESS"
)

// QualityConfig bounds the post-load data quality checks.
type QualityConfig struct {
	MaxDeductible string `toml:"max_deductible"`
	BlockSuccess  bool   `toml:"block_success"`
}

// Limits returns the check limits.
func (c *QualityConfig) Limits() warehouse.QualityLimits {
	d, _ := decimal.NewFromString(c.MaxDeductible)
	return warehouse.QualityLimits{MaxDeductible: d}
}

// Finalize applies defaults, environment variable overrides, and validation.
func (c *QualityConfig) Finalize() error {
	c.loadDefaults()
	c.loadEnv()
	return c.validate()
}

// Merge overwrites non-zero fields from overlay.
func (c *QualityConfig) Merge(overlay *QualityConfig) {
	if overlay.MaxDeductible != "" {
		c.MaxDeductible = overlay.MaxDeductible
	}
	if overlay.BlockSuccess {
		c.BlockSuccess = true
	}
}

func (c *QualityConfig) loadDefaults() {
	if c.MaxDeductible == "" {
		c.MaxDeductible = "100000"
	}
}

func (c *QualityConfig) loadEnv() {
	if v := os.Getenv(EnvQualityMaxDeductible); v != "" {
		c.MaxDeductible = v
	}
	if v := os.Getenv(EnvQualityBlockSuccess); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			c.BlockSuccess = b
		}
	}
}

func (c *QualityConfig) validate() error {
	d, err := decimal.NewFromString(c.MaxDeductible)
	if err != nil {
		return fmt.Errorf("invalid max_deductible: %w", err)
	}
	if d.IsNegative() {
		return fmt.Errorf("max_deductible must not be negative: %s", d)
	}
	return nil
}
