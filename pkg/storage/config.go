package storage

import (
	"fmt"
	"os"
)

// Config holds Azure Blob Storage connection parameters.
// Either ConnectionString or AccountURL must be set; with AccountURL alone the
// client authenticates through the default Azure credential chain.
type Config struct {
	ContainerName    string `toml:"container_name"`
	ConnectionString string `toml:"connection_string"`
	AccountURL       string `toml:"account_url"`
	Prefix           string `toml:"prefix"`
}

// Env maps config fields to environment variable names for override injection.
type Env struct {
	ContainerName    string
	ConnectionString string
	AccountURL       string
	Prefix           string
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
	if overlay.ContainerName != "" {
		c.ContainerName = overlay.ContainerName
	}
	if overlay.ConnectionString != "" {
		c.ConnectionString = overlay.ConnectionString
	}
	if overlay.AccountURL != "" {
		c.AccountURL = overlay.AccountURL
	}
	if overlay.Prefix != "" {
		c.Prefix = overlay.Prefix
	}
}

func (c *Config) loadDefaults() {
	if c.ContainerName == "" {
		c.ContainerName = "etl-handoff"
	}
}

func (c *Config) loadEnv(env *Env) {
	if env.ContainerName != "" {
		if v := os.Getenv(env.ContainerName); v != "" {
			c.ContainerName = v
		}
	}
	if env.ConnectionString != "" {
		if v := os.Getenv(env.ConnectionString); v != "" {
			c.ConnectionString = v
		}
	}
	if env.AccountURL != "" {
		if v := os.Getenv(env.AccountURL); v != "" {
			c.AccountURL = v
		}
	}
	if env.Prefix != "" {
		if v := os.Getenv(env.Prefix); v != "" {
			c.Prefix = v
		}
	}
}

func (c *Config) validate() error {
	if c.ContainerName == "" {
		return fmt.Errorf("container_name required")
	}
	if c.ConnectionString == "" && c.AccountURL == "" {
		return fmt.Errorf("connection_string or account_url required")
	}
	return nil
}
