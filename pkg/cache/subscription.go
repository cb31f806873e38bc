package cache

import (
	"context"
	"encoding/json"
)

// Subscription is one reader's registration on a key.
type Subscription struct {
	cache *QueryCache
	sub   *subscriber
}

// Key returns the subscribed key.
func (s *Subscription) Key() Key {
	return s.sub.key
}

// State returns the current state of the subscribed key. After the entry has
// been removed it reports an empty pending state until the key is fetched again.
func (s *Subscription) State() State {
	c := s.cache
	c.mu.Lock()
	defer c.mu.Unlock()
	return s.stateLocked()
}

func (s *Subscription) stateLocked() State {
	c := s.cache
	if c.closed {
		return State{Key: s.sub.key, Status: StatusError, Err: ErrClosed}
	}
	e, ok := c.entries[s.sub.hash]
	if !ok {
		return State{Key: s.sub.key}
	}
	return c.snapshotLocked(e)
}

// Refetch fetches the key again unless a fetch is already in flight. An entry
// that was removed is recreated with this subscription's fetcher.
func (s *Subscription) Refetch() {
	c := s.cache
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed || s.sub.closed {
		return
	}

	e := c.entryLocked(s.sub.key, s.sub.hash)
	if e.fetcher == nil {
		e.fetcher = s.sub.fetcher
		e.rc = s.sub.rc
	}
	if e.inflight != nil {
		c.metrics.readCoalesced(e.key.Kind())
		return
	}
	c.startFetchLocked(c.ctx, e)
}

// Await blocks until the key has resolved, successfully or not, with nothing
// in flight, and returns that state.
func (s *Subscription) Await(ctx context.Context) (State, error) {
	c := s.cache
	for {
		c.mu.Lock()
		st := s.stateLocked()
		if c.closed {
			c.mu.Unlock()
			return st, ErrClosed
		}
		if st.settled() {
			c.mu.Unlock()
			return st, nil
		}
		ch := c.changedLocked(s.sub.hash)
		c.mu.Unlock()

		select {
		case <-ctx.Done():
			return st, ctx.Err()
		case <-ch:
		}
	}
}

// Close unsubscribes. No listener call starts after Close returns: a call
// already running on another goroutine is waited for. Closing from inside the
// subscription's own listener does not wait. Closing twice is harmless.
func (s *Subscription) Close() {
	c := s.cache
	c.mu.Lock()
	if s.sub.closed {
		c.waitDeliveredLocked(s.sub)
		c.mu.Unlock()
		return
	}
	s.sub.closed = true
	c.waitDeliveredLocked(s.sub)

	var release func(Key)
	if set, ok := c.subs[s.sub.hash]; ok {
		delete(set, s.sub)
		if len(set) == 0 {
			delete(c.subs, s.sub.hash)
			release = c.onRelease
		}
	}
	c.mu.Unlock()

	if release != nil {
		release(s.sub.key)
	}
}

// Query is a Subscription whose value is known to be a T.
type Query[T any] struct {
	*Subscription
}

// ReadQuery reads key through c with a typed fetch function. Stored snapshots
// for the key are decoded as JSON into T.
func ReadQuery[T any](ctx context.Context, c *QueryCache, key Key, fetch func(ctx context.Context) (T, error), opts ...ReadOption) *Query[T] {
	fetcher := func(ctx context.Context) (any, error) {
		v, err := fetch(ctx)
		if err != nil {
			return nil, err
		}
		return v, nil
	}
	decode := WithDecoder(func(raw []byte) (any, error) {
		var v T
		if err := json.Unmarshal(raw, &v); err != nil {
			return nil, err
		}
		return v, nil
	})
	opts = append([]ReadOption{decode}, opts...)
	return &Query[T]{Subscription: c.Read(ctx, key, fetcher, opts...)}
}

// Data returns the cached value when one is present and holds a T.
func (q *Query[T]) Data() (T, bool) {
	return DataOf[T](q.State())
}

// DataOf extracts a typed value from st. A value written with a different type
// reports false.
func DataOf[T any](st State) (T, bool) {
	var zero T
	if !st.HasValue {
		return zero, false
	}
	v, ok := st.Value.(T)
	if !ok {
		return zero, false
	}
	return v, true
}
