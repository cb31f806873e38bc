//go:build integration

package cache_test

import (
	"context"
	"encoding/json"
	"os"
	"testing"
	"time"

	"github.com/illmade-knight/go-fizzgrid/pkg/cache"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRedisStore_Integration(t *testing.T) {
	addr := os.Getenv("FIZZGRID_TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("FIZZGRID_TEST_REDIS_ADDR not set")
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	t.Cleanup(cancel)

	cfg := &cache.RedisConfig{
		Addr:      addr,
		CacheTTL:  1 * time.Minute,
		KeyPrefix: "fizzgrid-test:",
	}

	s, err := cache.NewRedisStore[string, json.RawMessage](ctx, cfg, zerolog.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })

	t.Run("Set and Get", func(t *testing.T) {
		key := cache.NewKey("drink", 1).String()
		err := s.WriteToCache(ctx, key, json.RawMessage(`{"id":1,"product_name":"Fizz"}`))
		require.NoError(t, err)

		retrieved, err := s.FetchFromCache(ctx, key)
		require.NoError(t, err)
		assert.JSONEq(t, `{"id":1,"product_name":"Fizz"}`, string(retrieved))
	})

	t.Run("Get Miss", func(t *testing.T) {
		_, err := s.FetchFromCache(ctx, "non-existent-key")
		assert.ErrorIs(t, err, cache.ErrNotFound)
	})

	t.Run("Backs a query cache warm start", func(t *testing.T) {
		key := cache.NewKey("profile", 77)
		require.NoError(t, s.WriteToCache(ctx, key.String(), json.RawMessage(`"stored"`)))
		c := cache.New(cache.DefaultConfig(), zerolog.Nop(), cache.WithStore(s))

		gate := make(chan string)
		q := cache.ReadQuery(ctx, c, key, func(context.Context) (string, error) { return <-gate, nil })
		require.Eventually(t, func() bool {
			v, ok := q.Data()
			return ok && v == "stored"
		}, 5*time.Second, 10*time.Millisecond)
		gate <- "fresh"
		q.Close()
	})

	t.Run("TTL Expires", func(t *testing.T) {
		shortTTLCfg := &cache.RedisConfig{Addr: addr, CacheTTL: 100 * time.Millisecond}
		short, err := cache.NewRedisStore[string, json.RawMessage](ctx, shortTTLCfg, zerolog.Nop())
		require.NoError(t, err)
		t.Cleanup(func() { _ = short.Close() })

		require.NoError(t, short.WriteToCache(ctx, "ttl-key", json.RawMessage(`1`)))

		// Verifying a time-based feature, so sleeping is acceptable here.
		time.Sleep(150 * time.Millisecond)

		_, err = short.FetchFromCache(ctx, "ttl-key")
		assert.ErrorIs(t, err, cache.ErrNotFound, "Should miss after TTL expires")
	})
}
