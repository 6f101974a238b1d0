// Package storage is the typed repository over the client-side key-value
// store. The engine only ever sees in-memory structures; this package owns
// encoding them and treating corrupted entries as absent.
package storage

import (
	"context"
	"sync"
)

// KV is a byte-oriented key-value store. *cache.Cache implements it over
// Redis; MemoryKV is the in-process implementation.
type KV interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte) error
	Delete(ctx context.Context, keys ...string) error
	// Update atomically replaces the value at key with fn's result.
	Update(ctx context.Context, key string, fn func(old []byte, ok bool) ([]byte, error)) error
}

// MemoryKV is an in-memory KV.
type MemoryKV struct {
	mu   sync.Mutex
	data map[string][]byte
}

// NewMemoryKV creates an empty in-memory store.
func NewMemoryKV() *MemoryKV {
	return &MemoryKV{data: make(map[string][]byte)}
}

func (m *MemoryKV) Get(_ context.Context, key string) ([]byte, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.data[key]
	if !ok {
		return nil, false, nil
	}
	return append([]byte(nil), v...), true, nil
}

func (m *MemoryKV) Set(_ context.Context, key string, value []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[key] = append([]byte(nil), value...)
	return nil
}

func (m *MemoryKV) Delete(_ context.Context, keys ...string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, k := range keys {
		delete(m.data, k)
	}
	return nil
}

func (m *MemoryKV) Update(_ context.Context, key string, fn func(old []byte, ok bool) ([]byte, error)) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	old, ok := m.data[key]
	next, err := fn(old, ok)
	if err != nil {
		return err
	}
	m.data[key] = next
	return nil
}
