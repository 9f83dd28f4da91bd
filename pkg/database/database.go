// Package database provides the warehouse PostgreSQL connection scoped to a run lifecycle.
package database

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/JaimeStill/healthplan-dw/pkg/lifecycle"
)

// System manages the warehouse connection pool.
type System interface {
	// Connection returns the underlying connection pool.
	Connection() *sql.DB
	// Ping verifies the warehouse is reachable within the configured timeout.
	Ping(ctx context.Context) error
	// Start registers a connectivity check on startup and pool release on shutdown.
	Start(lc *lifecycle.Coordinator) error
}

type database struct {
	conn        *sql.DB
	logger      *slog.Logger
	connTimeout time.Duration
}

// New opens a pool for cfg. sql.Open validates the DSN but does not connect;
// the first connection is established by the startup ping.
func New(cfg *Config, logger *slog.Logger) (System, error) {
	db, err := sql.Open("pgx", cfg.Dsn())
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.ConnMaxLifetimeDuration())

	return &database{
		conn:        db,
		logger:      logger.With("system", "database"),
		connTimeout: cfg.ConnTimeoutDuration(),
	}, nil
}

func (d *database) Connection() *sql.DB {
	return d.conn
}

func (d *database) Ping(ctx context.Context) error {
	pingCtx, cancel := context.WithTimeout(ctx, d.connTimeout)
	defer cancel()

	if err := d.conn.PingContext(pingCtx); err != nil {
		return fmt.Errorf("%w: %w", ErrUnreachable, err)
	}
	return nil
}

func (d *database) Start(lc *lifecycle.Coordinator) error {
	lc.OnStartup("database", func(ctx context.Context) error {
		if err := d.Ping(ctx); err != nil {
			d.logger.Error("warehouse ping failed", "error", err)
			return err
		}
		d.logger.Info("warehouse connection established")
		return nil
	})

	lc.OnShutdown("database", func(context.Context) error {
		if err := d.conn.Close(); err != nil {
			d.logger.Error("warehouse close failed", "error", err)
			return err
		}
		d.logger.Info("warehouse connection closed")
		return nil
	})

	return nil
}
