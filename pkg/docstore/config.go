package docstore

import (
	"fmt"
	"os"
	"strings"
	"time"
)

// Config holds MongoDB connection parameters for the plan document store.
type Config struct {
	URI         string `toml:"uri"`
	Database    string `toml:"database"`
	Collection  string `toml:"collection"`
	ConnTimeout string `toml:"conn_timeout"`
}

// Env maps config fields to environment variable names for override injection.
type Env struct {
	URI         string
	Database    string
	Collection  string
	ConnTimeout string
}

// ConnTimeoutDuration returns ConnTimeout as a time.Duration.
func (c *Config) ConnTimeoutDuration() time.Duration {
	d, _ := time.ParseDuration(c.ConnTimeout)
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
	if overlay.URI != "" {
		c.URI = overlay.URI
	}
	if overlay.Database != "" {
		c.Database = overlay.Database
	}
	if overlay.Collection != "" {
		c.Collection = overlay.Collection
	}
	if overlay.ConnTimeout != "" {
		c.ConnTimeout = overlay.ConnTimeout
	}
}

func (c *Config) loadDefaults() {
	if c.URI == "" {
		c.URI = "mongodb://localhost:27017"
	}
	if c.Database == "" {
		c.Database = "medicalPlans"
	}
	if c.Collection == "" {
		c.Collection = "plans"
	}
	if c.ConnTimeout == "" {
		c.ConnTimeout = "10s"
	}
}

func (c *Config) loadEnv(env *Env) {
	if env.URI != "" {
		if v := os.Getenv(env.URI); v != "" {
			c.URI = v
		}
	}
	if env.Database != "" {
		if v := os.Getenv(env.Database); v != "" {
			c.Database = v
		}
	}
	if env.Collection != "" {
		if v := os.Getenv(env.Collection); v != "" {
			c.Collection = v
		}
	}
	if env.ConnTimeout != "" {
		if v := os.Getenv(env.ConnTimeout); v != "" {
			c.ConnTimeout = v
		}
	}
}

func (c *Config) validate() error {
	if !strings.HasPrefix(c.URI, "mongodb://") && !strings.HasPrefix(c.URI, "mongodb+srv://") {
		return fmt.Errorf("invalid uri scheme: %q", c.URI)
	}
	if c.Database == "" {
		return fmt.Errorf("database required")
	}
	if c.Collection == "" {
		return fmt.Errorf("collection required")
	}
	if _, err := time.ParseDuration(c.ConnTimeout); err != nil {
		return fmt.Errorf("invalid conn_timeout: %w", err)
	}
	return nil
}
