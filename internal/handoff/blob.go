package handoff

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/google/uuid"

	"github.com/JaimeStill/healthplan-dw/pkg/formatting"
	"github.com/JaimeStill/healthplan-dw/pkg/storage"
)

type blob struct {
	store  storage.System
	limit  int64
	logger *slog.Logger
}

// NewBlob returns a Store backed by blob storage, so tasks of one run can
// execute in separate processes. limit follows NewMemory.
func NewBlob(store storage.System, limit int64, logger *slog.Logger) Store {
	return &blob{
		store:  store,
		limit:  limit,
		logger: logger.With("system", "handoff"),
	}
}

func (b *blob) Put(ctx context.Context, run uuid.UUID, task, key string, v any) error {
	data, err := encode(v, b.limit)
	if err != nil {
		return err
	}

	k := Key(run, task, key)
	if err := b.store.Upload(ctx, k, bytes.NewReader(data), "application/json"); err != nil {
		return fmt.Errorf("put %s: %w", k, err)
	}

	b.logger.Debug("handoff stored", "key", k, "size", formatting.FormatBytes(int64(len(data)), 1))
	return nil
}

func (b *blob) Get(ctx context.Context, run uuid.UUID, task, key string, dst any) error {
	k := Key(run, task, key)

	rc, err := b.store.Download(ctx, k)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return fmt.Errorf("%w: %s", ErrNotFound, k)
		}
		return fmt.Errorf("get %s: %w", k, err)
	}
	data, err := io.ReadAll(rc)
	rc.Close()
	if err != nil {
		return fmt.Errorf("read %s: %w", k, err)
	}

	return decode(data, dst)
}

func (b *blob) Delete(ctx context.Context, run uuid.UUID, task, key string) error {
	k := Key(run, task, key)

	if err := b.store.Delete(ctx, k); err != nil && !errors.Is(err, storage.ErrNotFound) {
		return fmt.Errorf("delete %s: %w", k, err)
	}

	b.logger.Debug("handoff released", "key", k)
	return nil
}
