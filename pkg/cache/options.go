package cache

import (
	"encoding/json"
	"time"
)

// Config holds cache-wide defaults. Individual reads may override them.
type Config struct {
	// DefaultRetry is the number of extra attempts before a fetch is declared failed.
	DefaultRetry int
	// RetryDelay is the pause between attempts.
	RetryDelay time.Duration
	// StaleTime is how long a resolved value is trusted. Zero means entries only
	// go stale through Invalidate.
	StaleTime time.Duration
	// StoreWriteTimeout bounds the background write-through to a Store.
	StoreWriteTimeout time.Duration
}

// DefaultConfig returns the defaults used when New receives a nil config.
func DefaultConfig() *Config {
	return &Config{
		DefaultRetry:      1,
		RetryDelay:        250 * time.Millisecond,
		StaleTime:         0,
		StoreWriteTimeout: 5 * time.Second,
	}
}

// Option configures a QueryCache at construction.
type Option func(*QueryCache)

// WithStore attaches a snapshot store for warm starts and write-through.
func WithStore(store Store[string, json.RawMessage]) Option {
	return func(c *QueryCache) {
		c.store = store
	}
}

// WithMetrics attaches Prometheus collectors.
func WithMetrics(m *Metrics) Option {
	return func(c *QueryCache) {
		c.metrics = m
	}
}

// WithReleaseHook registers a function called whenever the last subscriber of a
// key closes. The entry itself is kept; the hook is the extension point for
// eviction policies.
func WithReleaseHook(hook func(Key)) Option {
	return func(c *QueryCache) {
		c.onRelease = hook
	}
}

type readConfig struct {
	retry      int
	retryDelay time.Duration
	staleTime  time.Duration
	listener   func(State)
	decode     func([]byte) (any, error)
}

// ReadOption adjusts a single Read call.
type ReadOption func(*readConfig)

// WithRetry sets how many extra attempts the fetch gets before failing.
func WithRetry(n int) ReadOption {
	return func(rc *readConfig) {
		if n < 0 {
			n = 0
		}
		rc.retry = n
	}
}

// WithRetryDelay sets the pause between attempts.
func WithRetryDelay(d time.Duration) ReadOption {
	return func(rc *readConfig) {
		rc.retryDelay = d
	}
}

// WithStaleTime overrides the cache-wide stale time for this key.
func WithStaleTime(d time.Duration) ReadOption {
	return func(rc *readConfig) {
		rc.staleTime = d
	}
}

// WithListener registers a callback that receives every state transition of
// the key until the subscription is closed.
func WithListener(fn func(State)) ReadOption {
	return func(rc *readConfig) {
		rc.listener = fn
	}
}

// WithDecoder tells the cache how to turn a stored snapshot back into a value.
// Without a decoder, snapshots are never loaded for the key.
func WithDecoder(fn func([]byte) (any, error)) ReadOption {
	return func(rc *readConfig) {
		rc.decode = fn
	}
}
