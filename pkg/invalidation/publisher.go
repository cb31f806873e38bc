package invalidation

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"cloud.google.com/go/pubsub"
	"github.com/google/uuid"
	"github.com/illmade-knight/go-fizzgrid/pkg/cache"
	"github.com/rs/zerolog"
)

// ErrPublisherStopped is returned by Publish after Stop.
var ErrPublisherStopped = errors.New("invalidation publisher is stopped")

// PublisherConfig holds configuration for the Publisher.
type PublisherConfig struct {
	TopicID string
	// Origin identifies this process. A random id is used when empty.
	Origin                     string
	BatchDelay                 time.Duration
	TopicExistsTimeout         time.Duration
	PublishConfirmationTimeout time.Duration
}

// DefaultPublisherConfig returns a config with the default timeouts.
func DefaultPublisherConfig(topicID string) *PublisherConfig {
	return &PublisherConfig{
		TopicID:                    topicID,
		BatchDelay:                 10 * time.Millisecond,
		TopicExistsTimeout:         15 * time.Second,
		PublishConfirmationTimeout: 20 * time.Second,
	}
}

// Publisher sends invalidation events to a Pub/Sub topic. Publishing is
// asynchronous; delivery failures are logged.
type Publisher struct {
	topic               *pubsub.Topic
	origin              string
	confirmationTimeout time.Duration
	logger              zerolog.Logger

	mu      sync.RWMutex
	stopped bool
	wg      sync.WaitGroup
}

// NewPublisher creates a Publisher after checking that the topic exists.
func NewPublisher(ctx context.Context, cfg *PublisherConfig, client *pubsub.Client, logger zerolog.Logger) (*Publisher, error) {
	if client == nil {
		return nil, errors.New("pubsub client cannot be nil for publisher")
	}
	if cfg == nil || cfg.TopicID == "" {
		return nil, errors.New("topic id is required")
	}
	origin := cfg.Origin
	if origin == "" {
		origin = uuid.NewString()
	}
	if cfg.TopicExistsTimeout <= 0 {
		cfg.TopicExistsTimeout = 15 * time.Second
	}
	if cfg.PublishConfirmationTimeout <= 0 {
		cfg.PublishConfirmationTimeout = 20 * time.Second
	}

	topic := client.Topic(cfg.TopicID)
	topic.PublishSettings.DelayThreshold = cfg.BatchDelay

	existsCtx, cancel := context.WithTimeout(ctx, cfg.TopicExistsTimeout)
	defer cancel()
	exists, err := topic.Exists(existsCtx)
	if err != nil {
		return nil, fmt.Errorf("failed to check for topic %s: %w", cfg.TopicID, err)
	}
	if !exists {
		return nil, fmt.Errorf("pubsub topic %s does not exist", cfg.TopicID)
	}

	return &Publisher{
		topic:               topic,
		origin:              origin,
		confirmationTimeout: cfg.PublishConfirmationTimeout,
		logger: logger.With().
			Str("component", "InvalidationPublisher").
			Str("topic_id", cfg.TopicID).
			Str("origin", origin).
			Logger(),
	}, nil
}

// Origin returns the id stamped on every event this publisher sends.
func (p *Publisher) Origin() string {
	return p.origin
}

// Publish broadcasts an invalidation of key.
func (p *Publisher) Publish(ctx context.Context, key cache.Key, exact bool) error {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.stopped {
		return ErrPublisherStopped
	}

	ev := Event{
		Key:        key,
		Exact:      exact,
		Origin:     p.origin,
		MutationID: uuid.NewString(),
		IssuedAt:   time.Now().UTC(),
	}
	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("failed to marshal invalidation event: %w", err)
	}

	res := p.topic.Publish(ctx, &pubsub.Message{
		Data:       data,
		Attributes: map[string]string{originAttribute: p.origin},
	})
	p.wg.Add(1)
	go p.confirm(res, ev)
	return nil
}

func (p *Publisher) confirm(res *pubsub.PublishResult, ev Event) {
	defer p.wg.Done()
	ctx, cancel := context.WithTimeout(context.Background(), p.confirmationTimeout)
	defer cancel()

	msgID, err := res.Get(ctx)
	if err != nil {
		p.logger.Error().Err(err).Str("key", ev.Key.String()).Str("mutation_id", ev.MutationID).Msg("Failed to publish invalidation.")
		return
	}
	p.logger.Debug().Str("key", ev.Key.String()).Str("pubsub_msg_id", msgID).Msg("Invalidation published.")
}

// Stop stops accepting events and flushes outstanding ones. ctx bounds the wait.
func (p *Publisher) Stop(ctx context.Context) error {
	p.mu.Lock()
	if p.stopped {
		p.mu.Unlock()
		return nil
	}
	p.stopped = true
	p.mu.Unlock()

	done := make(chan struct{})
	go func() {
		p.topic.Stop()
		p.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		p.logger.Info().Msg("Invalidation publisher stopped.")
		return nil
	case <-ctx.Done():
		p.logger.Error().Err(ctx.Err()).Msg("Timeout waiting for invalidation publisher to flush.")
		return ctx.Err()
	}
}
