package kvstore

import (
	"context"
	"sync"
)

// MemoryStore is an in-memory Store used in tests and as a scratch backend.
// It does not survive restarts.
type MemoryStore struct {
	mu   sync.RWMutex
	data map[string]string

	// Optional error overrides; tests set these to simulate storage failures.
	GetErr error
	SetErr error
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{data: make(map[string]string)}
}

func (m *MemoryStore) Get(_ context.Context, key string) (string, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.GetErr != nil {
		return "", false, m.GetErr
	}
	v, ok := m.data[key]
	return v, ok, nil
}

func (m *MemoryStore) Set(_ context.Context, key, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.SetErr != nil {
		return m.SetErr
	}
	m.data[key] = value
	return nil
}

// FailWrites makes every subsequent Set return err (nil restores writes).
func (m *MemoryStore) FailWrites(err error) {
	m.mu.Lock()
	m.SetErr = err
	m.mu.Unlock()
}

var _ Store = (*MemoryStore)(nil)
