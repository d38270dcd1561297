package kv

import (
	"context"
	"sync"
)

type Memory[V any] struct {
	mu      sync.RWMutex
	entries map[string]V
}

func NewMemory[V any]() *Memory[V] {
	return &Memory[V]{entries: make(map[string]V)}
}

func (m *Memory[V]) Get(_ context.Context, key string) (V, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	v, ok := m.entries[key]
	return v, ok, nil
}

func (m *Memory[V]) Insert(_ context.Context, key string, value V) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.entries[key]; ok {
		return ErrExists
	}
	m.entries[key] = value
	return nil
}

func (m *Memory[V]) Update(_ context.Context, key string, fn func(V) (V, error)) (V, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	current, ok := m.entries[key]
	if !ok {
		var zero V
		return zero, ErrNotFound
	}
	next, err := fn(current)
	if err != nil {
		return current, err
	}
	m.entries[key] = next
	return next, nil
}

func (m *Memory[V]) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.entries, key)
	return nil
}

func (m *Memory[V]) DeleteFunc(_ context.Context, pred func(string, V) bool) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	removed := 0
	for key, v := range m.entries {
		if pred(key, v) {
			delete(m.entries, key)
			removed++
		}
	}
	return removed, nil
}

// Range iterates over a snapshot so fn may call back into the store.
func (m *Memory[V]) Range(_ context.Context, fn func(string, V) bool) error {
	m.mu.RLock()
	snapshot := make(map[string]V, len(m.entries))
	for k, v := range m.entries {
		snapshot[k] = v
	}
	m.mu.RUnlock()

	for k, v := range snapshot {
		if !fn(k, v) {
			return nil
		}
	}
	return nil
}

func (m *Memory[V]) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.entries)
}
