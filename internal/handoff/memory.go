package handoff

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"
)

type memory struct {
	mu    sync.Mutex
	items map[string][]byte
	limit int64
}

// NewMemory returns a Store held in process memory. It serves a chain run
// inside one process. Values larger than limit bytes are rejected; zero
// means no limit.
func NewMemory(limit int64) Store {
	return &memory{items: make(map[string][]byte), limit: limit}
}

func (m *memory) Put(_ context.Context, run uuid.UUID, task, key string, v any) error {
	data, err := encode(v, m.limit)
	if err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.items[Key(run, task, key)] = data
	return nil
}

func (m *memory) Get(_ context.Context, run uuid.UUID, task, key string, dst any) error {
	k := Key(run, task, key)

	m.mu.Lock()
	data, ok := m.items[k]
	m.mu.Unlock()

	if !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, k)
	}
	return decode(data, dst)
}

func (m *memory) Delete(_ context.Context, run uuid.UUID, task, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.items, Key(run, task, key))
	return nil
}
