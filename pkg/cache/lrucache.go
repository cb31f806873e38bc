package cache

import (
	"container/list"
	"context"
	"fmt"
	"sync"
)

// lruItem is the internal structure stored in the linked list.
type lruItem[K comparable, V any] struct {
	key   K
	value V
}

// LRUStore is a generic, thread-safe, in-memory Store with a fixed size and a
// Least Recently Used eviction policy. It bounds how many snapshots a
// long-running client keeps around.
type LRUStore[K comparable, V any] struct {
	maxSize int

	mu    sync.Mutex
	ll    *list.List          // Used to track the order of items (recency).
	items map[K]*list.Element // Used for fast key lookups.
}

// NewLRUStore creates a new size-limited LRU store. maxSize must be > 0.
func NewLRUStore[K comparable, V any](maxSize int) (*LRUStore[K, V], error) {
	if maxSize <= 0 {
		return nil, fmt.Errorf("maxSize must be greater than 0")
	}
	return &LRUStore[K, V]{
		maxSize: maxSize,
		ll:      list.New(),
		items:   make(map[K]*list.Element),
	}, nil
}

// FetchFromCache retrieves an item and marks it as most recently used.
func (s *LRUStore[K, V]) FetchFromCache(_ context.Context, key K) (V, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if elem, ok := s.items[key]; ok {
		s.ll.MoveToFront(elem)
		return elem.Value.(*lruItem[K, V]).value, nil
	}
	var zero V
	return zero, fmt.Errorf("key '%v' not in LRU store: %w", key, ErrNotFound)
}

// WriteToCache inserts or replaces an item, evicting the least recently used
// item when the store is over capacity.
func (s *LRUStore[K, V]) WriteToCache(_ context.Context, key K, value V) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if elem, ok := s.items[key]; ok {
		elem.Value.(*lruItem[K, V]).value = value
		s.ll.MoveToFront(elem)
		return nil
	}

	s.items[key] = s.ll.PushFront(&lruItem[K, V]{key: key, value: value})
	if s.ll.Len() > s.maxSize {
		s.evict()
	}
	return nil
}

// Invalidate removes an item from the store.
func (s *LRUStore[K, V]) Invalidate(_ context.Context, key K) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if elem, ok := s.items[key]; ok {
		s.ll.Remove(elem)
		delete(s.items, key)
	}
	return nil
}

// Len returns the number of items currently held.
func (s *LRUStore[K, V]) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ll.Len()
}

// evict removes the least recently used item. Must be called with mu held.
func (s *LRUStore[K, V]) evict() {
	back := s.ll.Back()
	if back != nil {
		item := s.ll.Remove(back).(*lruItem[K, V])
		delete(s.items, item.key)
	}
}

// Close is a no-op for the in-memory store.
func (s *LRUStore[K, V]) Close() error {
	return nil
}
