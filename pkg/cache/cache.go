// Package cache provides the client-side query cache: key-addressed entries with
// coalesced fetches, direct writes, invalidation and subscriber notification,
// plus pluggable snapshot stores for persisting last-known-good values.
package cache

import (
	"context"
	"errors"
)

// ErrNotFound is returned by a Store when the key holds no snapshot.
var ErrNotFound = errors.New("key not found in store")

// Store is a generic interface for a persistence layer behind the query cache.
// The QueryCache uses it with string keys and JSON snapshots.
type Store[K any, V any] interface {
	// FetchFromCache retrieves an item from the store.
	FetchFromCache(ctx context.Context, key K) (V, error)
	// WriteToCache adds an item to the store.
	WriteToCache(ctx context.Context, key K, value V) error
	// Invalidate removes an item from the store.
	Invalidate(ctx context.Context, key K) error
	// Close releases any connection held by the store.
	Close() error
}
