// Package infrastructure provides core system initialization for command startup.
// It assembles the shared dependencies (logging, warehouse, document store,
// handoff storage, metrics) that the batch jobs require.
package infrastructure

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/JaimeStill/healthplan-dw/internal/config"
	"github.com/JaimeStill/healthplan-dw/internal/handoff"
	"github.com/JaimeStill/healthplan-dw/pkg/database"
	"github.com/JaimeStill/healthplan-dw/pkg/docstore"
	"github.com/JaimeStill/healthplan-dw/pkg/lifecycle"
	"github.com/JaimeStill/healthplan-dw/pkg/metrics"
	"github.com/JaimeStill/healthplan-dw/pkg/storage"
)

// Infrastructure holds the core systems required by the commands.
// Storage is nil unless the blob handoff backend is configured.
type Infrastructure struct {
	Lifecycle *lifecycle.Coordinator
	Logger    *slog.Logger
	Database  database.System
	Docstore  docstore.System
	Storage   storage.System
	Handoff   handoff.Store
	Metrics   *metrics.Metrics
}

// New creates an Infrastructure from the configuration, logging to w.
// It initializes all systems but does not start them; call Start separately.
func New(ctx context.Context, cfg *config.Config, w io.Writer) (*Infrastructure, error) {
	lc := lifecycle.New(ctx)
	logger := cfg.Log.Logger(w)

	db, err := database.New(&cfg.Warehouse, logger)
	if err != nil {
		return nil, fmt.Errorf("database init failed: %w", err)
	}

	docs, err := docstore.New(&cfg.Source, logger)
	if err != nil {
		return nil, fmt.Errorf("docstore init failed: %w", err)
	}

	infra := &Infrastructure{
		Lifecycle: lc,
		Logger:    logger,
		Database:  db,
		Docstore:  docs,
		Handoff:   handoff.NewMemory(cfg.Handoff.MaxPayloadBytes()),
		Metrics:   metrics.New(cfg.Metrics),
	}

	if cfg.Handoff.Backend == config.HandoffBlob {
		store, err := storage.New(&cfg.Handoff.Storage, logger)
		if err != nil {
			return nil, fmt.Errorf("storage init failed: %w", err)
		}
		infra.Storage = store
		infra.Handoff = handoff.NewBlob(store, cfg.Handoff.MaxPayloadBytes(), logger)
	}

	return infra, nil
}

// Start registers all infrastructure systems with the lifecycle coordinator.
func (i *Infrastructure) Start() error {
	if err := i.Database.Start(i.Lifecycle); err != nil {
		return fmt.Errorf("database start failed: %w", err)
	}
	if err := i.Docstore.Start(i.Lifecycle); err != nil {
		return fmt.Errorf("docstore start failed: %w", err)
	}
	if i.Storage != nil {
		if err := i.Storage.Start(i.Lifecycle); err != nil {
			return fmt.Errorf("storage start failed: %w", err)
		}
	}
	return nil
}
