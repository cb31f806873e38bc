package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// RedisConfig holds the configuration for the Redis client.
type RedisConfig struct {
	Addr      string
	Password  string
	DB        int
	CacheTTL  time.Duration
	KeyPrefix string
}

// RedisStore is a generic Store backed by Redis. Values are stored as JSON
// with the configured TTL, so several client processes can share warm
// snapshots.
type RedisStore[K comparable, V any] struct {
	redisClient *redis.Client
	logger      zerolog.Logger
	ttl         time.Duration
	prefix      string
}

// NewRedisStore creates and connects a new generic RedisStore.
// It pings the Redis server to ensure connectivity before returning.
func NewRedisStore[K comparable, V any](
	ctx context.Context,
	cfg *RedisConfig,
	logger zerolog.Logger,
) (*RedisStore[K, V], error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	logger.Info().Str("redis_address", cfg.Addr).Msg("Successfully connected to Redis.")

	return &RedisStore[K, V]{
		redisClient: rdb,
		logger:      logger.With().Str("component", "RedisStore").Logger(),
		ttl:         cfg.CacheTTL,
		prefix:      cfg.KeyPrefix,
	}, nil
}

func (s *RedisStore[K, V]) redisKey(key K) string {
	return s.prefix + fmt.Sprintf("%v", key)
}

// FetchFromCache retrieves and decodes an item from Redis. A miss is reported
// as ErrNotFound.
func (s *RedisStore[K, V]) FetchFromCache(ctx context.Context, key K) (V, error) {
	var zero V
	stringKey := s.redisKey(key)
	cachedData, err := s.redisClient.Get(ctx, stringKey).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return zero, fmt.Errorf("key '%s': %w", stringKey, ErrNotFound)
		}
		s.logger.Error().Err(err).Str("key", stringKey).Msg("Unexpected Redis error during fetch.")
		return zero, fmt.Errorf("redis get failed for key %s: %w", stringKey, err)
	}

	var value V
	if err := json.Unmarshal([]byte(cachedData), &value); err != nil {
		s.logger.Error().Err(err).Str("key", stringKey).Msg("Failed to unmarshal cached data.")
		return zero, fmt.Errorf("failed to unmarshal data: %w", err)
	}

	s.logger.Debug().Str("key", stringKey).Msg("Redis store hit.")
	return value, nil
}

// WriteToCache stores an item in Redis with the configured TTL.
func (s *RedisStore[K, V]) WriteToCache(ctx context.Context, key K, value V) error {
	stringKey := s.redisKey(key)
	jsonData, err := json.Marshal(value)
	if err != nil {
		s.logger.Error().Err(err).Str("key", stringKey).Msg("Failed to marshal data for caching.")
		return fmt.Errorf("failed to marshal data: %w", err)
	}

	if err := s.redisClient.Set(ctx, stringKey, jsonData, s.ttl).Err(); err != nil {
		s.logger.Error().Err(err).Str("key", stringKey).Msg("Failed to set data in Redis.")
		return fmt.Errorf("failed to set in redis: %w", err)
	}

	s.logger.Debug().Str("key", stringKey).Msg("Successfully stored data in Redis.")
	return nil
}

// Invalidate deletes an item from Redis.
func (s *RedisStore[K, V]) Invalidate(ctx context.Context, key K) error {
	stringKey := s.redisKey(key)
	if err := s.redisClient.Del(ctx, stringKey).Err(); err != nil {
		return fmt.Errorf("redis del failed for key %s: %w", stringKey, err)
	}
	return nil
}

// Close closes the Redis client connection.
func (s *RedisStore[K, V]) Close() error {
	if s.redisClient != nil {
		s.logger.Info().Msg("Closing Redis client connection...")
		return s.redisClient.Close()
	}
	return nil
}
