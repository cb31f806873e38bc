package invalidation

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"cloud.google.com/go/pubsub"
	"github.com/rs/zerolog"
)

// ListenerConfig holds configuration for the Listener.
type ListenerConfig struct {
	SubscriptionID string
	// Origin is this process's id; events carrying it are skipped.
	Origin                 string
	MaxOutstandingMessages int
	NumGoroutines          int
}

// DefaultListenerConfig returns a config with default receive settings.
func DefaultListenerConfig(subID, origin string) *ListenerConfig {
	return &ListenerConfig{
		SubscriptionID:         subID,
		Origin:                 origin,
		MaxOutstandingMessages: 100,
		NumGoroutines:          2,
	}
}

// Listener receives invalidation events and applies them to a local cache.
type Listener struct {
	subscription *pubsub.Subscription
	origin       string
	target       Invalidator
	logger       zerolog.Logger

	applied atomic.Int64
	skipped atomic.Int64

	cancel   context.CancelFunc
	stopOnce sync.Once
	done     chan struct{}
}

// NewListener creates a Listener after checking that the subscription exists.
func NewListener(ctx context.Context, cfg *ListenerConfig, client *pubsub.Client, target Invalidator, logger zerolog.Logger) (*Listener, error) {
	if client == nil {
		return nil, errors.New("pubsub client cannot be nil for listener")
	}
	if target == nil {
		return nil, errors.New("invalidation target cannot be nil")
	}
	if cfg == nil || cfg.SubscriptionID == "" {
		return nil, errors.New("subscription id is required")
	}

	sub := client.Subscription(cfg.SubscriptionID)
	existsCtx, cancel := context.WithTimeout(ctx, 20*time.Second)
	defer cancel()
	exists, err := sub.Exists(existsCtx)
	if err != nil {
		return nil, fmt.Errorf("failed to check for subscription %s: %w", cfg.SubscriptionID, err)
	}
	if !exists {
		return nil, fmt.Errorf("subscription %s does not exist", cfg.SubscriptionID)
	}
	if cfg.MaxOutstandingMessages > 0 {
		sub.ReceiveSettings.MaxOutstandingMessages = cfg.MaxOutstandingMessages
	}
	if cfg.NumGoroutines > 0 {
		sub.ReceiveSettings.NumGoroutines = cfg.NumGoroutines
	}

	return &Listener{
		subscription: sub,
		origin:       cfg.Origin,
		target:       target,
		logger:       logger.With().Str("component", "InvalidationListener").Str("subscription_id", cfg.SubscriptionID).Logger(),
		done:         make(chan struct{}),
	}, nil
}

// Start begins receiving in the background.
func (l *Listener) Start(ctx context.Context) error {
	receiveCtx, cancel := context.WithCancel(ctx)
	l.cancel = cancel

	go func() {
		defer close(l.done)
		l.logger.Info().Msg("Invalidation listener started.")
		err := l.subscription.Receive(receiveCtx, l.handle)
		if err != nil && !errors.Is(err, context.Canceled) {
			l.logger.Error().Err(err).Msg("Pub/Sub Receive call exited with error.")
		}
		l.logger.Info().Msg("Invalidation listener stopped.")
	}()
	return nil
}

func (l *Listener) handle(_ context.Context, msg *pubsub.Message) {
	// Invalidations are idempotent, so every message is acked: a bad payload
	// would never decode on redelivery either.
	defer msg.Ack()

	if l.origin != "" && msg.Attributes[originAttribute] == l.origin {
		l.skipped.Add(1)
		return
	}

	var ev Event
	if err := json.Unmarshal(msg.Data, &ev); err != nil {
		l.logger.Error().Err(err).Str("msg_id", msg.ID).Msg("Failed to decode invalidation event.")
		return
	}
	if l.origin != "" && ev.Origin == l.origin {
		l.skipped.Add(1)
		return
	}
	if len(ev.Key) == 0 {
		l.logger.Warn().Str("msg_id", msg.ID).Msg("Ignoring invalidation without a key.")
		return
	}

	l.target.Invalidate(ev.Key, ev.Exact)
	l.applied.Add(1)
	l.logger.Debug().Str("key", ev.Key.String()).Bool("exact", ev.Exact).Str("origin", ev.Origin).Msg("Applied remote invalidation.")
}

// Applied returns the number of events applied to the local cache.
func (l *Listener) Applied() int64 { return l.applied.Load() }

// Skipped returns the number of this process's own events that were ignored.
func (l *Listener) Skipped() int64 { return l.skipped.Load() }

// Done is closed when the receive loop has exited.
func (l *Listener) Done() <-chan struct{} { return l.done }

// Stop cancels receiving and waits for the loop to exit. ctx bounds the wait.
func (l *Listener) Stop(ctx context.Context) error {
	var err error
	l.stopOnce.Do(func() {
		if l.cancel == nil {
			return
		}
		l.cancel()
		select {
		case <-l.done:
		case <-ctx.Done():
			err = ctx.Err()
			l.logger.Error().Err(err).Msg("Timeout waiting for invalidation listener to stop.")
		}
	})
	return err
}
