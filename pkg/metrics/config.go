package metrics

import (
	"fmt"
	"net/url"
	"os"
	"time"
)

// Config holds Pushgateway parameters. An empty PushURL disables pushing.
type Config struct {
	PushURL string `toml:"push_url"`
	Job     string `toml:"job"`
	Timeout string `toml:"timeout"`
}

// Env maps config fields to environment variable names for override injection.
type Env struct {
	PushURL string
	Job     string
	Timeout string
}

// TimeoutDuration returns Timeout as a time.Duration.
func (c *Config) TimeoutDuration() time.Duration {
	d, _ := time.ParseDuration(c.Timeout)
	return d
}

// Finalize applies defaults, environment variable overrides, and validation.
func (c *Config) Finalize(env *Env) error {
	c.loadDefaults()
	if env != nil {
		c.loadEnv(env)
	}
	return c.validate()
}

// Merge overwrites non-zero fields from overlay.
func (c *Config) Merge(overlay *Config) {
	if overlay.PushURL != "" {
		c.PushURL = overlay.PushURL
	}
	if overlay.Job != "" {
		c.Job = overlay.Job
	}
	if overlay.Timeout != "" {
		c.Timeout = overlay.Timeout
	}
}

func (c *Config) loadDefaults() {
	if c.Job == "" {
		c.Job = "healthplan_etl"
	}
	if c.Timeout == "" {
		c.Timeout = "10s"
	}
}

func (c *Config) loadEnv(env *Env) {
	if env.PushURL != "" {
		if v := os.Getenv(env.PushURL); v != "" {
			c.PushURL = v
		}
	}
	if env.Job != "" {
		if v := os.Getenv(env.Job); v != "" {
			c.Job = v
		}
	}
	if env.Timeout != "" {
		if v := os.Getenv(env.Timeout); v != "" {
			c.Timeout = v
		}
	}
}

func (c *Config) validate() error {
	if c.PushURL != "" {
		if _, err := url.ParseRequestURI(c.PushURL); err != nil {
			return fmt.Errorf("invalid push_url: %w", err)
		}
	}
	if _, err := time.ParseDuration(c.Timeout); err != nil {
		return fmt.Errorf("invalid timeout: %w", err)
	}
	return nil
}
