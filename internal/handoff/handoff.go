// Package handoff passes data between pipeline tasks of one run.
//
// Values are stored as JSON under (run id, task, key). A consumer reads a
// value with Get and removes it with Delete once its own work succeeded, so
// a failed consumer can be retried against the same input.
package handoff

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"path"

	"github.com/google/uuid"

	"github.com/JaimeStill/healthplan-dw/pkg/formatting"
)

// ErrNotFound indicates no value is stored under the requested key, either
// because it was never put or because it was already deleted.
var ErrNotFound = errors.New("handoff value not found")

// ErrTooLarge indicates an encoded value exceeds the store's payload limit.
var ErrTooLarge = errors.New("handoff value too large")

// Store is a run-scoped key/value channel between tasks.
type Store interface {
	// Put stores v under (run, task, key), replacing any previous value.
	Put(ctx context.Context, run uuid.UUID, task, key string, v any) error
	// Get decodes the value under (run, task, key) into dst. The value stays
	// stored until Delete.
	Get(ctx context.Context, run uuid.UUID, task, key string, dst any) error
	// Delete removes the value under (run, task, key). Deleting a missing
	// value is not an error.
	Delete(ctx context.Context, run uuid.UUID, task, key string) error
}

// Key returns the storage path of (run, task, key).
func Key(run uuid.UUID, task, key string) string {
	return path.Join("runs", run.String(), task, key+".json")
}

// encode marshals v and enforces limit. A limit of zero or less disables the check.
func encode(v any, limit int64) ([]byte, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encode handoff value: %w", err)
	}
	if limit > 0 && int64(len(data)) > limit {
		return nil, fmt.Errorf("%w: %s exceeds %s",
			ErrTooLarge,
			formatting.FormatBytes(int64(len(data)), 1),
			formatting.FormatBytes(limit, 1),
		)
	}
	return data, nil
}

func decode(data []byte, dst any) error {
	if err := json.Unmarshal(data, dst); err != nil {
		return fmt.Errorf("decode handoff value: %w", err)
	}
	return nil
}
