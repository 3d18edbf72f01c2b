package kv

import (
	"context"
	"sort"
	"sync"
)

// MemoryBackend is an in-memory Backend.
// It is the default and keeps values only for the life of the process.
type MemoryBackend struct {
	mu     sync.RWMutex
	values map[string][]byte
	closed bool
}

// NewMemoryBackend creates an empty in-memory backend.
func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{
		values: make(map[string][]byte),
	}
}

// Save stores a copy of data under key.
func (m *MemoryBackend) Save(ctx context.Context, key string, data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return ErrClosed
	}

	// Copy so later mutation of data by the caller is not visible.
	m.values[key] = append([]byte(nil), data...)
	return nil
}

// Load returns a copy of the value stored under key.
func (m *MemoryBackend) Load(ctx context.Context, key string) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return nil, ErrClosed
	}

	v, ok := m.values[key]
	if !ok {
		return nil, nil
	}
	return append([]byte(nil), v...), nil
}

// Delete removes key.
func (m *MemoryBackend) Delete(ctx context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return ErrClosed
	}

	delete(m.values, key)
	return nil
}

// Close drops all values. Later operations return ErrClosed.
func (m *MemoryBackend) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.closed = true
	m.values = nil
	return nil
}

// Keys returns the stored keys in sorted order.
// This is for inspection and testing.
func (m *MemoryBackend) Keys() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	keys := make([]string, 0, len(m.values))
	for k := range m.values {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
