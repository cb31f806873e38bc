package cache

import (
	"context"
	"fmt"
	"sync"
)

// InMemoryStore is a generic, thread-safe, in-memory Store implementation.
// It is mostly useful for tests and single-process warm restarts.
type InMemoryStore[K comparable, V any] struct {
	mu   sync.RWMutex
	data map[K]V
}

// NewInMemoryStore creates a new in-memory store.
func NewInMemoryStore[K comparable, V any]() *InMemoryStore[K, V] {
	return &InMemoryStore[K, V]{
		data: make(map[K]V),
	}
}

// FetchFromCache retrieves an item from the store.
func (s *InMemoryStore[K, V]) FetchFromCache(_ context.Context, key K) (V, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	value, ok := s.data[key]
	if !ok {
		var zero V
		return zero, fmt.Errorf("key '%v': %w", key, ErrNotFound)
	}
	return value, nil
}

// WriteToCache adds an item to the store.
func (s *InMemoryStore[K, V]) WriteToCache(_ context.Context, key K, value V) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data[key] = value
	return nil
}

// Invalidate removes an item from the store.
func (s *InMemoryStore[K, V]) Invalidate(_ context.Context, key K) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.data, key)
	return nil
}

// Len returns the number of stored items.
func (s *InMemoryStore[K, V]) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.data)
}

// Close is a no-op for the in-memory store.
func (s *InMemoryStore[K, V]) Close() error {
	return nil
}
