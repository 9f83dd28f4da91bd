// Package docstore provides access to the MongoDB plan document store.
package docstore

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/JaimeStill/healthplan-dw/pkg/lifecycle"
)

// System manages the document store client.
type System interface {
	// Start registers a connectivity check on startup and client disconnect on shutdown.
	Start(lc *lifecycle.Coordinator) error
	// Ping verifies the store is reachable within the configured timeout.
	Ping(ctx context.Context) error
	// SourceCollection returns the configured plans collection name.
	SourceCollection() string
	// Count returns the number of documents in collection.
	Count(ctx context.Context, collection string) (int64, error)
	// FindAll returns every document in collection, unprojected.
	FindAll(ctx context.Context, collection string) ([]bson.M, error)
	// Replace drops collection and inserts docs in its place.
	Replace(ctx context.Context, collection string, docs []any) error
}

type store struct {
	client      *mongo.Client
	db          *mongo.Database
	collection  string
	connTimeout time.Duration
	logger      *slog.Logger
}

// New creates the MongoDB client. The driver connects lazily; reachability is
// verified by the startup ping.
func New(cfg *Config, logger *slog.Logger) (System, error) {
	opts := options.Client().
		ApplyURI(cfg.URI).
		SetConnectTimeout(cfg.ConnTimeoutDuration()).
		SetServerSelectionTimeout(cfg.ConnTimeoutDuration())

	client, err := mongo.Connect(opts)
	if err != nil {
		return nil, fmt.Errorf("create mongo client: %w", err)
	}

	return &store{
		client:      client,
		db:          client.Database(cfg.Database),
		collection:  cfg.Collection,
		connTimeout: cfg.ConnTimeoutDuration(),
		logger:      logger.With("system", "docstore"),
	}, nil
}

func (s *store) Start(lc *lifecycle.Coordinator) error {
	lc.OnStartup("docstore", func(ctx context.Context) error {
		if err := s.Ping(ctx); err != nil {
			s.logger.Error("document store ping failed", "error", err)
			return err
		}
		s.logger.Info("document store connection established", "database", s.db.Name())
		return nil
	})

	lc.OnShutdown("docstore", func(ctx context.Context) error {
		if err := s.client.Disconnect(ctx); err != nil {
			s.logger.Error("document store disconnect failed", "error", err)
			return err
		}
		s.logger.Info("document store connection closed")
		return nil
	})

	return nil
}

func (s *store) Ping(ctx context.Context) error {
	pingCtx, cancel := context.WithTimeout(ctx, s.connTimeout)
	defer cancel()

	if err := s.client.Ping(pingCtx, nil); err != nil {
		return fmt.Errorf("%w: %w", ErrUnreachable, err)
	}
	return nil
}

func (s *store) SourceCollection() string {
	return s.collection
}

func (s *store) Count(ctx context.Context, collection string) (int64, error) {
	n, err := s.db.Collection(collection).CountDocuments(ctx, bson.M{})
	if err != nil {
		return 0, fmt.Errorf("count %s: %w", collection, err)
	}
	return n, nil
}

func (s *store) FindAll(ctx context.Context, collection string) ([]bson.M, error) {
	cur, err := s.db.Collection(collection).Find(ctx, bson.M{})
	if err != nil {
		return nil, fmt.Errorf("find %s: %w", collection, err)
	}
	defer cur.Close(ctx)

	docs := make([]bson.M, 0)
	if err := cur.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("decode %s: %w", collection, err)
	}
	return docs, nil
}

func (s *store) Replace(ctx context.Context, collection string, docs []any) error {
	coll := s.db.Collection(collection)
	if err := coll.Drop(ctx); err != nil {
		return fmt.Errorf("drop %s: %w", collection, err)
	}
	if len(docs) == 0 {
		return nil
	}
	if _, err := coll.InsertMany(ctx, docs); err != nil {
		return fmt.Errorf("insert %s: %w", collection, err)
	}
	return nil
}
