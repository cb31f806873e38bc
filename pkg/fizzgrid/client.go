package fizzgrid

import (
	"context"
	"errors"
	"time"

	"github.com/illmade-knight/go-fizzgrid/pkg/activity"
	"github.com/illmade-knight/go-fizzgrid/pkg/cache"
	"github.com/illmade-knight/go-fizzgrid/pkg/toggle"
	"github.com/illmade-knight/go-fizzgrid/pkg/transport"
	"github.com/rs/zerolog"
)

// InvalidationPublisher broadcasts a refetch to other client processes that
// share the API.
type InvalidationPublisher interface {
	Publish(ctx context.Context, key cache.Key, exact bool) error
}

// ActivityRecorder receives toggle clicks and mutation outcomes.
type ActivityRecorder interface {
	Record(ev activity.Event)
}

// Config holds the client's read behaviour.
type Config struct {
	// ViewerRetry is the retry count for the viewer query. An anonymous
	// session fails immediately, so the default is zero.
	ViewerRetry int
	// BroadcastTimeout bounds one invalidation publish.
	BroadcastTimeout time.Duration
}

// DefaultConfig returns the default client configuration.
func DefaultConfig() *Config {
	return &Config{
		ViewerRetry:      0,
		BroadcastTimeout: 5 * time.Second,
	}
}

// Option configures a Client.
type Option func(*Client)

// WithInvalidationPublisher broadcasts every mutation-driven refetch.
func WithInvalidationPublisher(p InvalidationPublisher) Option {
	return func(c *Client) { c.publisher = p }
}

// WithActivityRecorder records toggle clicks and mutation outcomes.
func WithActivityRecorder(r ActivityRecorder) Option {
	return func(c *Client) { c.recorder = r }
}

// WithLoginPrompter sets the side effect raised when an anonymous viewer
// clicks a toggle.
func WithLoginPrompter(p toggle.LoginPrompter) Option {
	return func(c *Client) { c.prompter = p }
}

// Client reads and mutates fizzgrid resources through one QueryCache.
//
// Read errors are the transport's *transport.APIError values unwrapped, so
// Error() is the message meant for display.
type Client struct {
	cfg       *Config
	api       *transport.Client
	cache     *cache.QueryCache
	publisher InvalidationPublisher
	recorder  ActivityRecorder
	prompter  toggle.LoginPrompter
	logger    zerolog.Logger
}

// NewClient creates a Client over an API transport and a cache.
func NewClient(cfg *Config, api *transport.Client, qc *cache.QueryCache, logger zerolog.Logger, opts ...Option) (*Client, error) {
	if api == nil {
		return nil, errors.New("api transport is required")
	}
	if qc == nil {
		return nil, errors.New("query cache is required")
	}
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if cfg.BroadcastTimeout <= 0 {
		cfg.BroadcastTimeout = 5 * time.Second
	}

	c := &Client{
		cfg:    cfg,
		api:    api,
		cache:  qc,
		logger: logger.With().Str("component", "FizzgridClient").Logger(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Cache returns the client's query cache.
func (c *Client) Cache() *cache.QueryCache {
	return c.cache
}

// API returns the underlying transport.
func (c *Client) API() *transport.Client {
	return c.api
}

// refetch invalidates key exactly, which refetches it if anything subscribes,
// and broadcasts the invalidation.
func (c *Client) refetch(key cache.Key) {
	c.cache.Invalidate(key, true)
	c.broadcast(key, true)
}

// invalidatePrefix refetches every entry under key.
func (c *Client) invalidatePrefix(key cache.Key) {
	c.cache.Invalidate(key, false)
	c.broadcast(key, false)
}

func (c *Client) broadcast(key cache.Key, exact bool) {
	if c.publisher == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), c.cfg.BroadcastTimeout)
	defer cancel()
	if err := c.publisher.Publish(ctx, key, exact); err != nil {
		c.logger.Warn().Err(err).Str("key", key.String()).Msg("Failed to broadcast invalidation.")
	}
}

func (c *Client) record(ev activity.Event) {
	if c.recorder == nil {
		return
	}
	c.recorder.Record(ev)
}
