package config

import (
	"fmt"
	"os"

	"github.com/JaimeStill/healthplan-dw/pkg/formatting"
	"github.com/JaimeStill/healthplan-dw/pkg/storage"
)

// Handoff backends.
const (
	HandoffMemory = "memory"
	HandoffBlob   = "blob"
)

const (
	EnvHandoffBackend    = "HPDW_HANDOFF_BACKEND"
	EnvHandoffMaxPayload = "HPDW_HANDOFF_MAX_PAYLOAD"
)

var storageEnv = &storage.Env{
	ContainerName:    "HPDW_STORAGE_CONTAINER_NAME",
	ConnectionString: "HPDW_STORAGE_CONNECTION_STRING",
	AccountURL:       "HPDW_STORAGE_ACCOUNT_URL",
	Prefix:           "HPDW_STORAGE_PREFIX",
}

// HandoffConfig selects where pipeline tasks exchange intermediate results.
// Storage is finalized only for the blob backend.
type HandoffConfig struct {
	Backend    string         `toml:"backend"`
	MaxPayload string         `toml:"max_payload"`
	Storage    storage.Config `toml:"storage"`
}

// MaxPayloadBytes returns MaxPayload as a byte count.
func (c *HandoffConfig) MaxPayloadBytes() int64 {
	n, _ := formatting.ParseBytes(c.MaxPayload)
	return n
}

// Finalize applies defaults, environment variable overrides, and validation.
func (c *HandoffConfig) Finalize() error {
	c.loadDefaults()
	c.loadEnv()
	if err := c.validate(); err != nil {
		return err
	}
	if c.Backend == HandoffBlob {
		if err := c.Storage.Finalize(storageEnv); err != nil {
			return fmt.Errorf("storage: %w", err)
		}
	}
	return nil
}

// Merge overwrites non-zero fields from overlay.
func (c *HandoffConfig) Merge(overlay *HandoffConfig) {
	if overlay.Backend != "" {
		c.Backend = overlay.Backend
	}
	if overlay.MaxPayload != "" {
		c.MaxPayload = overlay.MaxPayload
	}
	c.Storage.Merge(&overlay.Storage)
}

func (c *HandoffConfig) loadDefaults() {
	if c.Backend == "" {
		c.Backend = HandoffMemory
	}
	if c.MaxPayload == "" {
		c.MaxPayload = "256MB"
	}
}

func (c *HandoffConfig) loadEnv() {
	if v := os.Getenv(EnvHandoffBackend); v != "" {
		c.Backend = v
	}
	if v := os.Getenv(EnvHandoffMaxPayload); v != "" {
		c.MaxPayload = v
	}
}

func (c *HandoffConfig) validate() error {
	switch c.Backend {
	case HandoffMemory, HandoffBlob:
	default:
		return fmt.Errorf("invalid backend: %q", c.Backend)
	}
	if _, err := formatting.ParseBytes(c.MaxPayload); err != nil {
		return fmt.Errorf("invalid max_payload: %w", err)
	}
	return nil
}
