package invalidation_test

import (
	"context"
	"encoding/json"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"cloud.google.com/go/pubsub"
	"cloud.google.com/go/pubsub/pstest"
	"github.com/illmade-knight/go-fizzgrid/pkg/cache"
	"github.com/illmade-knight/go-fizzgrid/pkg/invalidation"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/api/option"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
)

const (
	testProjectID = "test-project"
	testTopicID   = "fizzgrid-invalidations"
)

// setupPubsub starts an in-memory Pub/Sub server with one topic and one
// subscription per listener.
func setupPubsub(t *testing.T, subIDs ...string) *pubsub.Client {
	t.Helper()
	ctx := context.Background()
	srv := pstest.NewServer()
	t.Cleanup(func() { _ = srv.Close() })

	conn, err := grpc.NewClient(srv.Addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })

	client, err := pubsub.NewClient(ctx, testProjectID, option.WithGRPCConn(conn))
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })

	topic, err := client.CreateTopic(ctx, testTopicID)
	require.NoError(t, err)
	for _, subID := range subIDs {
		_, err = client.CreateSubscription(ctx, subID, pubsub.SubscriptionConfig{Topic: topic})
		require.NoError(t, err)
	}
	return client
}

type invalidationCall struct {
	key   cache.Key
	exact bool
}

type recordingInvalidator struct {
	mu    sync.Mutex
	calls []invalidationCall
}

func (r *recordingInvalidator) Invalidate(key cache.Key, exact bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, invalidationCall{key: key, exact: exact})
}

func (r *recordingInvalidator) Calls() []invalidationCall {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]invalidationCall(nil), r.calls...)
}

func newPublisher(t *testing.T, ctx context.Context, client *pubsub.Client, origin string) *invalidation.Publisher {
	t.Helper()
	cfg := invalidation.DefaultPublisherConfig(testTopicID)
	cfg.Origin = origin
	pub, err := invalidation.NewPublisher(ctx, cfg, client, zerolog.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = pub.Stop(context.Background()) })
	return pub
}

func newListener(t *testing.T, ctx context.Context, client *pubsub.Client, subID, origin string, target invalidation.Invalidator) *invalidation.Listener {
	t.Helper()
	l, err := invalidation.NewListener(ctx, invalidation.DefaultListenerConfig(subID, origin), client, target, zerolog.Nop())
	require.NoError(t, err)
	require.NoError(t, l.Start(ctx))
	t.Cleanup(func() {
		stopCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = l.Stop(stopCtx)
	})
	return l
}

func TestPublisherListener(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	t.Cleanup(cancel)

	t.Run("Remote events are applied, own events skipped", func(t *testing.T) {
		// Arrange
		client := setupPubsub(t, "sub-a", "sub-b")
		pubA := newPublisher(t, ctx, client, "process-a")
		targetA := &recordingInvalidator{}
		targetB := &recordingInvalidator{}
		listenerA := newListener(t, ctx, client, "sub-a", "process-a", targetA)
		listenerB := newListener(t, ctx, client, "sub-b", "process-b", targetB)

		// Act
		require.NoError(t, pubA.Publish(ctx, cache.NewKey("drink", 7, "favorites"), true))

		// Assert
		require.Eventually(t, func() bool { return listenerB.Applied() == 1 }, 10*time.Second, 20*time.Millisecond)
		calls := targetB.Calls()
		require.Len(t, calls, 1)
		assert.True(t, calls[0].key.Equal(cache.NewKey("drink", 7, "favorites")))
		assert.True(t, calls[0].exact)

		require.Eventually(t, func() bool { return listenerA.Skipped() == 1 }, 10*time.Second, 20*time.Millisecond)
		assert.Empty(t, targetA.Calls())
	})

	t.Run("Malformed payloads are dropped", func(t *testing.T) {
		client := setupPubsub(t, "sub-c")
		target := &recordingInvalidator{}
		l := newListener(t, ctx, client, "sub-c", "process-c", target)

		topic := client.Topic(testTopicID)
		defer topic.Stop()
		_, err := topic.Publish(ctx, &pubsub.Message{Data: []byte("not json")}).Get(ctx)
		require.NoError(t, err)
		empty, err := json.Marshal(invalidation.Event{Origin: "process-z"})
		require.NoError(t, err)
		_, err = topic.Publish(ctx, &pubsub.Message{Data: empty}).Get(ctx)
		require.NoError(t, err)
		good, err := json.Marshal(invalidation.Event{Key: cache.NewKey("review", 3, "likes"), Exact: true, Origin: "process-z"})
		require.NoError(t, err)
		_, err = topic.Publish(ctx, &pubsub.Message{Data: good}).Get(ctx)
		require.NoError(t, err)

		require.Eventually(t, func() bool { return l.Applied() == 1 }, 10*time.Second, 20*time.Millisecond)
		assert.Len(t, target.Calls(), 1)
	})
}

func TestListener_RefetchesSubscribedEntries(t *testing.T) {
	// Arrange
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	t.Cleanup(cancel)
	client := setupPubsub(t, "sub-cache")

	qc := cache.New(&cache.Config{RetryDelay: time.Millisecond, StoreWriteTimeout: time.Second}, zerolog.Nop())
	t.Cleanup(func() { _ = qc.Close() })
	var fetches atomic.Int32
	key := cache.NewKey("profile", 4, "followers")
	sub := qc.Read(ctx, key, func(context.Context) (any, error) {
		return int(fetches.Add(1)), nil
	})
	defer sub.Close()
	_, err := sub.Await(ctx)
	require.NoError(t, err)

	newListener(t, ctx, client, "sub-cache", "local", qc)
	pub := newPublisher(t, ctx, client, "remote")

	// Act
	require.NoError(t, pub.Publish(ctx, key, true))

	// Assert
	require.Eventually(t, func() bool { return fetches.Load() == 2 }, 10*time.Second, 20*time.Millisecond)
	require.NoError(t, qc.WaitIdle(ctx))
	v, ok := cache.DataOf[int](sub.State())
	require.True(t, ok)
	assert.Equal(t, 2, v)
}

func TestPublisher_Stop(t *testing.T) {
	ctx := context.Background()
	client := setupPubsub(t)
	pub := newPublisher(t, ctx, client, "")

	assert.NotEmpty(t, pub.Origin(), "an origin is generated when none is configured")
	require.NoError(t, pub.Stop(ctx))
	assert.ErrorIs(t, pub.Publish(ctx, cache.NewKey("drink", 1), true), invalidation.ErrPublisherStopped)
}

func TestNewPublisher_MissingTopic(t *testing.T) {
	client := setupPubsub(t)
	_, err := invalidation.NewPublisher(context.Background(), invalidation.DefaultPublisherConfig("missing"), client, zerolog.Nop())
	assert.Error(t, err)
}
