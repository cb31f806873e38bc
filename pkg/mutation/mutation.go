// Package mutation runs remote state-changing operations and tracks their
// pending, success and error state.
package mutation

import (
	"context"
	"sync"

	"github.com/rs/zerolog"
)

// Status is the state of the most recently issued call.
type Status int

const (
	// StatusIdle is the state before any call.
	StatusIdle Status = iota
	// StatusPending means the most recent call has not completed.
	StatusPending
	// StatusSuccess means the most recent call succeeded.
	StatusSuccess
	// StatusError means the most recent call failed.
	StatusError
)

func (s Status) String() string {
	switch s {
	case StatusIdle:
		return "idle"
	case StatusPending:
		return "pending"
	case StatusSuccess:
		return "success"
	case StatusError:
		return "error"
	default:
		return "unknown"
	}
}

// State is a snapshot of a Mutation.
type State[R any] struct {
	Status    Status
	Data      R
	Err       error
	IsPending bool
}

// Mutation wraps one remote operation. Calls may overlap; IsPending is true
// while any call is running and State reflects the most recently issued one.
type Mutation[A any, R any] struct {
	name   string
	do     func(ctx context.Context, arg A) (R, error)
	logger zerolog.Logger

	mu        sync.Mutex
	inflight  int
	seq       uint64
	state     State[R]
	onSuccess []func(A, R)
	onError   []func(A, error)
	onSettled []func(A, R, error)

	wg sync.WaitGroup
}

// New creates a Mutation named for logging.
func New[A any, R any](name string, do func(ctx context.Context, arg A) (R, error), logger zerolog.Logger) *Mutation[A, R] {
	return &Mutation[A, R]{
		name:   name,
		do:     do,
		logger: logger.With().Str("component", "Mutation").Str("mutation", name).Logger(),
	}
}

// Name returns the name the mutation was created with.
func (m *Mutation[A, R]) Name() string {
	return m.name
}

// OnSuccess registers a handler run after a successful call. Handlers run
// before the call stops counting as pending, so any refetch they start is
// already in flight when IsPending turns false.
func (m *Mutation[A, R]) OnSuccess(fn func(arg A, result R)) *Mutation[A, R] {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onSuccess = append(m.onSuccess, fn)
	return m
}

// OnError registers a handler run after a failed call. No cache entry is
// touched on failure unless a handler does so.
func (m *Mutation[A, R]) OnError(fn func(arg A, err error)) *Mutation[A, R] {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onError = append(m.onError, fn)
	return m
}

// OnSettled registers a handler run after every call.
func (m *Mutation[A, R]) OnSettled(fn func(arg A, result R, err error)) *Mutation[A, R] {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onSettled = append(m.onSettled, fn)
	return m
}

// Mutate starts a call in the background. The mutation is pending as soon as
// Mutate returns.
func (m *Mutation[A, R]) Mutate(ctx context.Context, arg A) {
	seq := m.begin()
	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		_, _ = m.run(ctx, seq, arg)
	}()
}

// MutateSync runs a call and waits for it, handlers included.
func (m *Mutation[A, R]) MutateSync(ctx context.Context, arg A) (R, error) {
	seq := m.begin()
	return m.run(ctx, seq, arg)
}

// IsPending reports whether any call is running.
func (m *Mutation[A, R]) IsPending() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.inflight > 0
}

// State returns a snapshot of the most recent call.
func (m *Mutation[A, R]) State() State[R] {
	m.mu.Lock()
	defer m.mu.Unlock()
	st := m.state
	st.IsPending = m.inflight > 0
	return st
}

// Wait blocks until every background call has completed.
func (m *Mutation[A, R]) Wait() {
	m.wg.Wait()
}

// Reset returns the state to idle. Running calls are unaffected.
func (m *Mutation[A, R]) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.seq++
	m.state = State[R]{}
}

func (m *Mutation[A, R]) begin() uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.inflight++
	m.seq++
	m.state = State[R]{Status: StatusPending}
	return m.seq
}

func (m *Mutation[A, R]) run(ctx context.Context, seq uint64, arg A) (R, error) {
	result, err := m.do(ctx, arg)

	m.mu.Lock()
	onSuccess := append([]func(A, R){}, m.onSuccess...)
	onError := append([]func(A, error){}, m.onError...)
	onSettled := append([]func(A, R, error){}, m.onSettled...)
	m.mu.Unlock()

	if err != nil {
		m.logger.Warn().Err(err).Msg("Mutation failed.")
		for _, fn := range onError {
			fn(arg, err)
		}
	} else {
		m.logger.Debug().Msg("Mutation succeeded.")
		for _, fn := range onSuccess {
			fn(arg, result)
		}
	}
	for _, fn := range onSettled {
		fn(arg, result, err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.inflight--
	if seq == m.seq {
		if err != nil {
			m.state = State[R]{Status: StatusError, Err: err}
		} else {
			m.state = State[R]{Status: StatusSuccess, Data: result}
		}
	}
	return result, err
}
