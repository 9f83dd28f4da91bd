package config

import (
	"fmt"
	"net/url"
	"os"
	"time"

	"github.com/JaimeStill/healthplan-dw/internal/dashboard"
)

const (
	EnvDashboardURL      = "HPDW_DASHBOARD_URL"
	EnvDashboardUsername = "HPDW_DASHBOARD_USERNAME"
	EnvDashboardPassword = "HPDW_DASHBOARD_PASSWORD"
	EnvDashboardManifest = "HPDW_DASHBOARD_MANIFEST"
	EnvDashboardTimeout  = "HPDW_DASHBOARD_TIMEOUT"
)

// DashboardConfig locates the dashboard platform. An empty Manifest selects
// the built-in manifest.
type DashboardConfig struct {
	URL      string `toml:"url"`
	Username string `toml:"username"`
	Password string `toml:"password"`
	Manifest string `toml:"manifest"`
	Timeout  string `toml:"timeout"`
}

// TimeoutDuration returns Timeout as a time.Duration.
func (c *DashboardConfig) TimeoutDuration() time.Duration {
	d, _ := time.ParseDuration(c.Timeout)
	return d
}

// Credentials returns the provisioner connection settings.
func (c *DashboardConfig) Credentials() dashboard.Credentials {
	return dashboard.Credentials{
		URL:      c.URL,
		Username: c.Username,
		Password: c.Password,
		Timeout:  c.TimeoutDuration(),
	}
}

// Finalize applies defaults, environment variable overrides, and validation.
func (c *DashboardConfig) Finalize() error {
	c.loadDefaults()
	c.loadEnv()
	return c.validate()
}

// Merge overwrites non-zero fields from overlay.
func (c *DashboardConfig) Merge(overlay *DashboardConfig) {
	if overlay.URL != "" {
		c.URL = overlay.URL
	}
	if overlay.Username != "" {
		c.Username = overlay.Username
	}
	if overlay.Password != "" {
		c.Password = overlay.Password
	}
	if overlay.Manifest != "" {
		c.Manifest = overlay.Manifest
	}
	if overlay.Timeout != "" {
		c.Timeout = overlay.Timeout
	}
}

func (c *DashboardConfig) loadDefaults() {
	if c.URL == "" {
		c.URL = "http://localhost:8088"
	}
	if c.Timeout == "" {
		c.Timeout = "30s"
	}
}

func (c *DashboardConfig) loadEnv() {
	if v := os.Getenv(EnvDashboardURL); v != "" {
		c.URL = v
	}
	if v := os.Getenv(EnvDashboardUsername); v != "" {
		c.Username = v
	}
	if v := os.Getenv(EnvDashboardPassword); v != "" {
		c.Password = v
	}
	if v := os.Getenv(EnvDashboardManifest); v != "" {
		c.Manifest = v
	}
	if v := os.Getenv(EnvDashboardTimeout); v != "" {
		c.Timeout = v
	}
}

func (c *DashboardConfig) validate() error {
	if _, err := url.ParseRequestURI(c.URL); err != nil {
		return fmt.Errorf("invalid url: %w", err)
	}
	if _, err := time.ParseDuration(c.Timeout); err != nil {
		return fmt.Errorf("invalid timeout: %w", err)
	}
	return nil
}
