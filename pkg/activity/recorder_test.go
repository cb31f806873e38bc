package activity_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/illmade-knight/go-fizzgrid/pkg/activity"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRecorder(t *testing.T, batchSize int, flushInterval time.Duration) (*activity.Recorder, *mockInserter) {
	t.Helper()
	inserter := &mockInserter{}
	rec := activity.NewRecorder(&activity.RecorderConfig{
		BatchSize:     batchSize,
		FlushInterval: flushInterval,
		InsertTimeout: 2 * time.Second,
		BufferSize:    16,
	}, inserter, zerolog.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	rec.Start(ctx)
	t.Cleanup(func() {
		stopCtx, stopCancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer stopCancel()
		assert.NoError(t, rec.Stop(stopCtx))
	})
	return rec, inserter
}

func TestRecorder_BatchSizeTrigger(t *testing.T) {
	rec, inserter := newTestRecorder(t, 3, 10*time.Second)

	for i := 0; i < 3; i++ {
		rec.Record(activity.NewEvent(activity.KindClick, "favorite"))
	}

	require.Eventually(t, func() bool { return inserter.CallCount() == 1 }, time.Second, 10*time.Millisecond)
	assert.Len(t, inserter.Batches()[0], 3)
}

func TestRecorder_FlushIntervalTrigger(t *testing.T) {
	flushInterval := 50 * time.Millisecond
	rec, inserter := newTestRecorder(t, 10, flushInterval)

	rec.Record(activity.NewEvent(activity.KindMutation, "follow"))
	rec.Record(activity.NewEvent(activity.KindMutation, "follow"))

	require.Eventually(t, func() bool { return inserter.CallCount() == 1 }, time.Second, 10*time.Millisecond)
	assert.Len(t, inserter.Batches()[0], 2)
}

func TestRecorder_StopFlushesAndCloses(t *testing.T) {
	// Arrange
	inserter := &mockInserter{}
	rec := activity.NewRecorder(&activity.RecorderConfig{
		BatchSize:     10,
		FlushInterval: time.Minute,
		InsertTimeout: time.Second,
	}, inserter, zerolog.Nop())
	rec.Start(context.Background())

	for i := 0; i < 4; i++ {
		rec.Record(activity.NewEvent(activity.KindClick, "review-like"))
	}

	// Act
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, rec.Stop(ctx))

	// Assert
	batches := inserter.Batches()
	require.Len(t, batches, 1)
	assert.Len(t, batches[0], 4)
	assert.True(t, inserter.closed)

	t.Run("Record after Stop is ignored", func(t *testing.T) {
		rec.Record(activity.NewEvent(activity.KindClick, "review-like"))
		assert.NoError(t, rec.Stop(ctx), "a second Stop is a no-op")
		assert.Equal(t, 1, inserter.CallCount())
	})
}

func TestRecorder_CancelledContextDrainsBuffer(t *testing.T) {
	// Arrange: events are buffered before the worker runs.
	inserter := &mockInserter{}
	rec := activity.NewRecorder(&activity.RecorderConfig{
		BatchSize:     2,
		FlushInterval: time.Minute,
		InsertTimeout: time.Second,
		BufferSize:    8,
	}, inserter, zerolog.Nop())
	for i := 0; i < 5; i++ {
		rec.Record(activity.NewEvent(activity.KindClick, "favorite"))
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	// Act
	rec.Start(ctx)

	// Assert
	require.Eventually(t, func() bool { return inserter.EventCount() == 5 }, time.Second, 10*time.Millisecond)
	for _, b := range inserter.Batches() {
		assert.LessOrEqual(t, len(b), 2)
	}

	t.Run("Record after the worker exits counts as dropped", func(t *testing.T) {
		require.Eventually(t, func() bool {
			rec.Record(activity.NewEvent(activity.KindClick, "favorite"))
			return rec.Dropped() > 0
		}, time.Second, 10*time.Millisecond)
		assert.Equal(t, 5, inserter.EventCount())

		stopCtx, stopCancel := context.WithTimeout(context.Background(), time.Second)
		defer stopCancel()
		assert.NoError(t, rec.Stop(stopCtx))
		assert.True(t, inserter.closed)
	})
}

func TestRecorder_FailedBatchIsDiscarded(t *testing.T) {
	rec, inserter := newTestRecorder(t, 1, time.Minute)
	inserter.mu.Lock()
	inserter.InsertBatchFn = func(context.Context, []*activity.Event) error {
		return errors.New("bigquery unavailable")
	}
	inserter.mu.Unlock()

	rec.Record(activity.NewEvent(activity.KindMutation, "login"))
	rec.Record(activity.NewEvent(activity.KindMutation, "login"))

	require.Eventually(t, func() bool { return inserter.CallCount() == 2 }, time.Second, 10*time.Millisecond,
		"each failed batch is attempted once and dropped")
}

func TestRecorder_DropsWhenBufferFull(t *testing.T) {
	// Arrange: the worker is never started, so nothing drains the buffer.
	rec := activity.NewRecorder(&activity.RecorderConfig{BatchSize: 1, BufferSize: 2, FlushInterval: time.Minute}, &mockInserter{}, zerolog.Nop())

	// Act
	for i := 0; i < 5; i++ {
		rec.Record(activity.NewEvent(activity.KindClick, "follow"))
	}

	// Assert
	assert.Equal(t, int64(3), rec.Dropped())
}
