package cache_test

import (
	"context"
	"testing"

	"github.com/illmade-knight/go-fizzgrid/pkg/cache"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLRUStore(t *testing.T) {
	ctx := context.Background()

	t.Run("Eviction policy works correctly", func(t *testing.T) {
		// Arrange: a store that holds two items.
		lru, err := cache.NewLRUStore[string, int](2)
		require.NoError(t, err)

		// Act 1: Fill the store.
		require.NoError(t, lru.WriteToCache(ctx, "key1", 1))
		require.NoError(t, lru.WriteToCache(ctx, "key2", 2))

		// Act 2: Touch key1 so key2 becomes the least recently used.
		val1, err := lru.FetchFromCache(ctx, "key1")
		require.NoError(t, err)
		assert.Equal(t, 1, val1)

		// Act 3: A third write evicts key2.
		require.NoError(t, lru.WriteToCache(ctx, "key3", 3))

		// Assert
		assert.Equal(t, 2, lru.Len())
		_, err = lru.FetchFromCache(ctx, "key2")
		assert.ErrorIs(t, err, cache.ErrNotFound, "key2 should have been evicted")

		val1, err = lru.FetchFromCache(ctx, "key1")
		require.NoError(t, err)
		assert.Equal(t, 1, val1, "key1 should still be present")

		val3, err := lru.FetchFromCache(ctx, "key3")
		require.NoError(t, err)
		assert.Equal(t, 3, val3)
	})

	t.Run("Overwrite keeps size and updates value", func(t *testing.T) {
		lru, err := cache.NewLRUStore[string, int](2)
		require.NoError(t, err)

		require.NoError(t, lru.WriteToCache(ctx, "key1", 1))
		require.NoError(t, lru.WriteToCache(ctx, "key1", 10))

		got, err := lru.FetchFromCache(ctx, "key1")
		require.NoError(t, err)
		assert.Equal(t, 10, got)
		assert.Equal(t, 1, lru.Len())
	})

	t.Run("Invalidate removes the item", func(t *testing.T) {
		lru, err := cache.NewLRUStore[string, int](5)
		require.NoError(t, err)
		require.NoError(t, lru.WriteToCache(ctx, "key1", 1))

		require.NoError(t, lru.Invalidate(ctx, "key1"))

		_, err = lru.FetchFromCache(ctx, "key1")
		assert.ErrorIs(t, err, cache.ErrNotFound)
	})

	t.Run("Invalid size", func(t *testing.T) {
		_, err := cache.NewLRUStore[string, int](0)
		assert.Error(t, err)
	})
}
