package config

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
)

const (
	EnvLogLevel  = "HPDW_LOG_LEVEL"
	EnvLogFormat = "HPDW_LOG_FORMAT"
)

// LogConfig selects the slog handler and minimum level.
type LogConfig struct {
	Level  string `toml:"level"`
	Format string `toml:"format"`
}

// Logger builds a logger writing to w.
func (c *LogConfig) Logger(w io.Writer) *slog.Logger {
	opts := &slog.HandlerOptions{Level: c.level()}
	if c.Format == "json" {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

// Finalize applies defaults, environment variable overrides, and validation.
func (c *LogConfig) Finalize() error {
	c.loadDefaults()
	c.loadEnv()
	return c.validate()
}

// Merge overwrites non-zero fields from overlay.
func (c *LogConfig) Merge(overlay *LogConfig) {
	if overlay.Level != "" {
		c.Level = overlay.Level
	}
	if overlay.Format != "" {
		c.Format = overlay.Format
	}
}

func (c *LogConfig) level() slog.Level {
	var l slog.Level
	_ = l.UnmarshalText([]byte(c.Level))
	return l
}

func (c *LogConfig) loadDefaults() {
	if c.Level == "" {
		c.Level = "info"
	}
	if c.Format == "" {
		c.Format = "text"
	}
}

func (c *LogConfig) loadEnv() {
	if v := os.Getenv(EnvLogLevel); v != "" {
		c.Level = v
	}
	if v := os.Getenv(EnvLogFormat); v != "" {
		c.Format = strings.ToLower(v)
	}
}

func (c *LogConfig) validate() error {
	var l slog.Level
	if err := l.UnmarshalText([]byte(c.Level)); err != nil {
		return fmt.Errorf("invalid level: %w", err)
	}
	switch c.Format {
	case "text", "json":
		return nil
	default:
		return fmt.Errorf("invalid format: %q", c.Format)
	}
}
