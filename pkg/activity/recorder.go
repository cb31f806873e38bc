package activity

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
)

// BatchInserter writes a batch of events to a destination.
type BatchInserter interface {
	InsertBatch(ctx context.Context, events []*Event) error
	Close() error
}

// RecorderConfig holds configuration for the Recorder.
type RecorderConfig struct {
	BatchSize     int
	FlushInterval time.Duration
	// InsertTimeout bounds one InsertBatch call.
	InsertTimeout time.Duration
	// BufferSize is the number of events held before Record starts dropping.
	BufferSize int
}

// DefaultRecorderConfig returns the defaults used for a nil config.
func DefaultRecorderConfig() *RecorderConfig {
	return &RecorderConfig{
		BatchSize:     100,
		FlushInterval: 10 * time.Second,
		InsertTimeout: 30 * time.Second,
		BufferSize:    1000,
	}
}

// Recorder batches events and flushes them when a batch is full, when the
// flush interval elapses, and on Stop.
type Recorder struct {
	config   *RecorderConfig
	inserter BatchInserter
	logger   zerolog.Logger

	mu      sync.RWMutex
	input   chan *Event
	stopped bool
	// done is set when the worker exits on context cancellation.
	done    bool
	dropped atomic.Int64

	wg sync.WaitGroup
}

// NewRecorder creates a Recorder. Start must be called before events flow.
func NewRecorder(config *RecorderConfig, inserter BatchInserter, logger zerolog.Logger) *Recorder {
	if config == nil {
		config = DefaultRecorderConfig()
	}
	if config.BatchSize <= 0 {
		config.BatchSize = 1
	}
	if config.FlushInterval <= 0 {
		config.FlushInterval = DefaultRecorderConfig().FlushInterval
	}
	if config.InsertTimeout <= 0 {
		config.InsertTimeout = DefaultRecorderConfig().InsertTimeout
	}
	if config.BufferSize < config.BatchSize {
		config.BufferSize = config.BatchSize * 2
	}
	return &Recorder{
		config:   config,
		inserter: inserter,
		logger:   logger.With().Str("component", "ActivityRecorder").Logger(),
		input:    make(chan *Event, config.BufferSize),
	}
}

// Start begins the batching worker. ctx controls the worker's lifetime.
func (r *Recorder) Start(ctx context.Context) {
	r.logger.Info().
		Int("batch_size", r.config.BatchSize).
		Dur("flush_interval", r.config.FlushInterval).
		Msg("Starting activity recorder...")
	r.wg.Add(1)
	go r.worker(ctx)
}

// Record queues ev without blocking. Events are dropped when the buffer is
// full or the recorder has stopped. Events dropped because the worker has
// exited are counted.
func (r *Recorder) Record(ev Event) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.stopped {
		return
	}
	if r.done {
		r.dropped.Add(1)
		return
	}
	select {
	case r.input <- &ev:
	default:
		r.logger.Warn().Str("event_id", ev.ID).Msg("Activity buffer full, dropping event.")
		r.dropped.Add(1)
	}
}

// Dropped returns the number of events dropped because the buffer was full or
// the worker had exited.
func (r *Recorder) Dropped() int64 {
	return r.dropped.Load()
}

// Stop flushes the final batch and closes the inserter. ctx bounds the wait.
func (r *Recorder) Stop(ctx context.Context) error {
	r.mu.Lock()
	if r.stopped {
		r.mu.Unlock()
		return nil
	}
	r.stopped = true
	close(r.input)
	r.mu.Unlock()

	r.logger.Info().Msg("Stopping activity recorder...")
	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-ctx.Done():
		r.logger.Error().Err(ctx.Err()).Msg("Timeout waiting for activity recorder to stop.")
		return ctx.Err()
	}

	if err := r.inserter.Close(); err != nil {
		r.logger.Error().Err(err).Msg("Error closing activity inserter.")
	}
	r.logger.Info().Msg("Activity recorder stopped.")
	return nil
}

func (r *Recorder) worker(ctx context.Context) {
	defer r.wg.Done()
	batch := make([]*Event, 0, r.config.BatchSize)
	ticker := time.NewTicker(r.config.FlushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			r.mu.Lock()
			r.done = true
			r.mu.Unlock()
			batch = r.drain(batch)
			flushCtx := context.WithoutCancel(ctx)
			for len(batch) > r.config.BatchSize {
				r.flush(flushCtx, batch[:r.config.BatchSize])
				batch = batch[r.config.BatchSize:]
			}
			r.flush(flushCtx, batch)
			return

		case ev, ok := <-r.input:
			if !ok {
				r.flush(context.WithoutCancel(ctx), batch)
				return
			}
			batch = append(batch, ev)
			if len(batch) >= r.config.BatchSize {
				r.flush(ctx, batch)
				batch = make([]*Event, 0, r.config.BatchSize)
				ticker.Reset(r.config.FlushInterval)
			}

		case <-ticker.C:
			if len(batch) > 0 {
				r.flush(ctx, batch)
				batch = make([]*Event, 0, r.config.BatchSize)
			}
		}
	}
}

// drain appends every event still buffered to batch. Record accepts nothing
// once done is set, so the buffer only shrinks.
func (r *Recorder) drain(batch []*Event) []*Event {
	for {
		select {
		case ev, ok := <-r.input:
			if !ok {
				return batch
			}
			batch = append(batch, ev)
		default:
			return batch
		}
	}
}

// flush writes one batch. A failed batch is logged and discarded.
func (r *Recorder) flush(ctx context.Context, batch []*Event) {
	if len(batch) == 0 {
		return
	}
	insertCtx, cancel := context.WithTimeout(ctx, r.config.InsertTimeout)
	defer cancel()

	if err := r.inserter.InsertBatch(insertCtx, batch); err != nil {
		r.logger.Error().Err(err).Int("batch_size", len(batch)).Msg("Failed to write activity batch.")
		return
	}
	r.logger.Debug().Int("batch_size", len(batch)).Msg("Flushed activity batch.")
}
