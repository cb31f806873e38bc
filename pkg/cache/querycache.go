package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// ErrClosed is reported in the state of reads issued after Close.
var ErrClosed = errors.New("query cache is closed")

// flight is one running fetch. A flight whose entry no longer points at it
// has been superseded and its result is dropped.
type flight struct {
	cancel context.CancelFunc
}

type entry struct {
	key      Key
	hash     string
	state    State
	fetcher  Fetcher
	rc       readConfig
	inflight *flight
}

type subscriber struct {
	key      Key
	hash     string
	fetcher  Fetcher
	rc       readConfig
	listener func(State)
	closed   bool
}

type notification struct {
	sub   *subscriber
	state State
}

// QueryCache maps query keys to cached values, their fetch status and their
// subscribers. It is safe for concurrent use. Listener callbacks are delivered
// in transition order on a single dispatcher goroutine and may call back into
// the cache.
type QueryCache struct {
	cfg       *Config
	logger    zerolog.Logger
	store     Store[string, json.RawMessage]
	metrics   *Metrics
	onRelease func(Key)

	ctx    context.Context
	cancel context.CancelFunc

	mu      sync.Mutex
	cond    *sync.Cond
	entries map[string]*entry
	subs    map[string]map[*subscriber]struct{}
	changed map[string]chan struct{}
	queue   []notification
	busy    int

	// delivering is the subscriber whose listener is running, if any.
	delivering   *subscriber
	delivered    *sync.Cond
	dispatcherID uint64

	idle    chan struct{}
	closed  bool

	dispatcherDone chan struct{}
	storeWG        sync.WaitGroup
}

// New creates a QueryCache and starts its notification dispatcher.
// A nil cfg uses DefaultConfig.
func New(cfg *Config, logger zerolog.Logger, opts ...Option) *QueryCache {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	ctx, cancel := context.WithCancel(context.Background())
	idle := make(chan struct{})
	close(idle)

	c := &QueryCache{
		cfg:            cfg,
		logger:         logger.With().Str("component", "QueryCache").Logger(),
		ctx:            ctx,
		cancel:         cancel,
		entries:        make(map[string]*entry),
		subs:           make(map[string]map[*subscriber]struct{}),
		changed:        make(map[string]chan struct{}),
		idle:           idle,
		dispatcherDone: make(chan struct{}),
	}
	c.cond = sync.NewCond(&c.mu)
	c.delivered = sync.NewCond(&c.mu)
	for _, opt := range opts {
		opt(c)
	}

	go c.dispatch()
	return c
}

// Read subscribes to key and starts a fetch when the entry is missing, stale,
// or errored and nothing is already in flight for it. A read that finds a
// fetch in flight attaches to it. The returned Subscription must be closed.
func (c *QueryCache) Read(ctx context.Context, key Key, fetcher Fetcher, opts ...ReadOption) *Subscription {
	rc := readConfig{
		retry:      c.cfg.DefaultRetry,
		retryDelay: c.cfg.RetryDelay,
		staleTime:  c.cfg.StaleTime,
	}
	for _, opt := range opts {
		opt(&rc)
	}

	sub := &subscriber{
		key:      key,
		hash:     key.String(),
		fetcher:  fetcher,
		rc:       rc,
		listener: rc.listener,
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		sub.closed = true
		return &Subscription{cache: c, sub: sub}
	}

	if c.subs[sub.hash] == nil {
		c.subs[sub.hash] = make(map[*subscriber]struct{})
	}
	c.subs[sub.hash][sub] = struct{}{}

	e := c.entryLocked(key, sub.hash)
	if fetcher != nil {
		e.fetcher = fetcher
		e.rc = rc
	}

	switch {
	case e.inflight != nil:
		c.metrics.readCoalesced(key.Kind())
		c.enqueueLocked(sub, c.snapshotLocked(e))
	case c.needsFetchLocked(e):
		// startFetch notifies every subscriber, including this one.
		c.startFetchLocked(ctx, e)
	default:
		c.enqueueLocked(sub, c.snapshotLocked(e))
	}

	return &Subscription{cache: c, sub: sub}
}

// Write sets the value of key directly, marks it successful and fresh, and
// notifies subscribers. No fetch is issued.
func (c *QueryCache) Write(key Key, value any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}

	hash := key.String()
	e := c.entryLocked(key, hash)
	e.state.Value = value
	e.state.HasValue = true
	e.state.Status = StatusSuccess
	e.state.Err = nil
	e.state.IsStale = false
	e.state.FetchedAt = time.Now()
	e.state.Version++

	c.metrics.written(key.Kind())
	c.logger.Debug().Str("key", hash).Msg("Cache entry written.")
	c.notifyLocked(e)
	c.persistLocked(hash, value)
}

// Invalidate marks the entry for key stale, or with exact=false every entry
// whose key starts with key. Matching entries that have subscribers are
// refetched with their last-known fetcher; a fetch already in flight for them
// is superseded. Keys without an entry are ignored.
func (c *QueryCache) Invalidate(key Key, exact bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}

	var matches []*entry
	if exact {
		if e, ok := c.entries[key.String()]; ok {
			matches = append(matches, e)
		}
	} else {
		for _, e := range c.entries {
			if e.key.HasPrefix(key) {
				matches = append(matches, e)
			}
		}
	}

	for _, e := range matches {
		c.metrics.invalidated(e.key.Kind())
		e.state.IsStale = true

		if len(c.subs[e.hash]) == 0 || e.fetcher == nil {
			c.notifyLocked(e)
			continue
		}
		if e.inflight != nil {
			e.inflight.cancel()
			e.inflight = nil
		}
		c.startFetchLocked(c.ctx, e)
	}

	c.logger.Debug().Str("key", key.String()).Bool("exact", exact).Int("matched", len(matches)).Msg("Invalidated cache entries.")
}

// Remove deletes the entry for key. A fetch in flight for it is cancelled and
// its result discarded. Subscribers see an empty pending state.
func (c *QueryCache) Remove(key Key) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}

	hash := key.String()
	e, ok := c.entries[hash]
	if !ok {
		return
	}
	c.dropLocked(e)
	c.notifyHashLocked(hash, State{Key: key})

	if c.store != nil {
		c.storeWG.Add(1)
		go func() {
			defer c.storeWG.Done()
			ctx, cancel := context.WithTimeout(context.Background(), c.cfg.StoreWriteTimeout)
			defer cancel()
			if err := c.store.Invalidate(ctx, hash); err != nil {
				c.logger.Error().Err(err).Str("key", hash).Msg("Failed to remove snapshot from store.")
			}
		}()
	}
}

// Clear drops every entry. Subscriptions stay registered and see an empty
// pending state. Persisted snapshots are left untouched.
func (c *QueryCache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.clearLocked()
}

func (c *QueryCache) clearLocked() {
	for hash, e := range c.entries {
		c.dropLocked(e)
		c.notifyHashLocked(hash, State{Key: e.key})
	}
}

// Close clears the cache, stops the dispatcher and closes the store. Reads
// issued afterwards report ErrClosed.
func (c *QueryCache) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.clearLocked()
	c.closed = true
	for _, set := range c.subs {
		for sub := range set {
			sub.closed = true
		}
	}
	c.subs = make(map[string]map[*subscriber]struct{})
	for hash, ch := range c.changed {
		close(ch)
		delete(c.changed, hash)
	}
	c.cond.Broadcast()
	c.mu.Unlock()

	c.cancel()
	<-c.dispatcherDone
	c.storeWG.Wait()

	if c.store != nil {
		if err := c.store.Close(); err != nil {
			return fmt.Errorf("failed to close snapshot store: %w", err)
		}
	}
	c.logger.Info().Msg("Query cache closed.")
	return nil
}

// Peek returns the current state of key without subscribing or fetching.
func (c *QueryCache) Peek(key Key) (State, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[key.String()]
	if !ok {
		return State{Key: key}, false
	}
	return c.snapshotLocked(e), true
}

// Entries describes every entry, sorted by key.
func (c *QueryCache) Entries() []EntryInfo {
	c.mu.Lock()
	defer c.mu.Unlock()

	out := make([]EntryInfo, 0, len(c.entries))
	for hash, e := range c.entries {
		st := c.snapshotLocked(e)
		info := EntryInfo{
			Key:         hash,
			Status:      st.Status.String(),
			IsFetching:  st.IsFetching,
			IsStale:     st.IsStale,
			Subscribers: len(c.subs[hash]),
			FetchedAt:   st.FetchedAt,
			Version:     st.Version,
		}
		if st.Err != nil {
			info.Error = st.Err.Error()
		}
		out = append(out, info)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out
}

// WaitIdle blocks until no fetch is in flight and every queued notification
// has been delivered, or ctx is done.
func (c *QueryCache) WaitIdle(ctx context.Context) error {
	c.mu.Lock()
	idle := c.idle
	c.mu.Unlock()

	select {
	case <-idle:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// entryLocked returns the entry for hash, creating a pending one if needed.
func (c *QueryCache) entryLocked(key Key, hash string) *entry {
	e, ok := c.entries[hash]
	if !ok {
		e = &entry{
			key:   key,
			hash:  hash,
			state: State{Key: key, Status: StatusPending},
		}
		c.entries[hash] = e
	}
	return e
}

func (c *QueryCache) dropLocked(e *entry) {
	if e.inflight != nil {
		e.inflight.cancel()
		e.inflight = nil
	}
	delete(c.entries, e.hash)
}

func (c *QueryCache) expiredLocked(e *entry) bool {
	if e.state.Status != StatusSuccess || e.rc.staleTime <= 0 || e.state.FetchedAt.IsZero() {
		return false
	}
	return time.Since(e.state.FetchedAt) > e.rc.staleTime
}

func (c *QueryCache) needsFetchLocked(e *entry) bool {
	if e.fetcher == nil {
		return false
	}
	return e.state.Status != StatusSuccess || e.state.IsStale || c.expiredLocked(e)
}

func (c *QueryCache) snapshotLocked(e *entry) State {
	st := e.state
	st.IsStale = st.IsStale || c.expiredLocked(e)
	return st
}

// startFetchLocked launches a fetch for e. The fetch outlives the caller's
// context but stops when the cache closes or the flight is superseded.
func (c *QueryCache) startFetchLocked(parent context.Context, e *entry) {
	if parent == nil {
		parent = c.ctx
	}
	fctx, cancelFetch := context.WithCancel(context.WithoutCancel(parent))
	stop := context.AfterFunc(c.ctx, cancelFetch)
	f := &flight{
		cancel: func() {
			stop()
			cancelFetch()
		},
	}

	e.inflight = f
	e.state.IsFetching = true
	c.beginWorkLocked()
	c.metrics.fetchStarted(e.key.Kind())
	c.logger.Debug().Str("key", e.hash).Msg("Fetch started.")
	c.notifyLocked(e)

	warm := !e.state.HasValue && c.store != nil && e.rc.decode != nil
	go c.runFetch(fctx, e, f, e.fetcher, e.rc, warm)
}

func (c *QueryCache) runFetch(ctx context.Context, e *entry, f *flight, fetcher Fetcher, rc readConfig, warm bool) {
	defer f.cancel()

	if warm {
		c.loadSnapshot(ctx, e, f, rc)
	}

	var (
		value any
		err   error
	)
	for attempt := 0; ; attempt++ {
		value, err = fetcher(ctx)
		if err == nil || attempt >= rc.retry || ctx.Err() != nil {
			break
		}
		c.logger.Debug().Err(err).Str("key", e.hash).Int("attempt", attempt+1).Msg("Fetch failed, retrying.")
		timer := time.NewTimer(rc.retryDelay)
		select {
		case <-ctx.Done():
			timer.Stop()
		case <-timer.C:
		}
		if ctx.Err() != nil {
			break
		}
	}

	c.finishFetch(e, f, value, err)
}

// loadSnapshot seeds an empty entry with its persisted value, shown as stale
// data while the fetch runs.
func (c *QueryCache) loadSnapshot(ctx context.Context, e *entry, f *flight, rc readConfig) {
	sctx, cancel := context.WithTimeout(ctx, c.cfg.StoreWriteTimeout)
	defer cancel()

	raw, err := c.store.FetchFromCache(sctx, e.hash)
	if err != nil {
		if !errors.Is(err, ErrNotFound) {
			c.logger.Warn().Err(err).Str("key", e.hash).Msg("Failed to load snapshot from store.")
		}
		return
	}
	value, err := rc.decode(raw)
	if err != nil {
		c.logger.Warn().Err(err).Str("key", e.hash).Msg("Failed to decode stored snapshot.")
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.entries[e.hash] != e || e.inflight != f || e.state.HasValue {
		return
	}
	e.state.Value = value
	e.state.HasValue = true
	e.state.Status = StatusSuccess
	e.state.IsStale = true
	e.state.Version++
	c.logger.Debug().Str("key", e.hash).Msg("Warm start from stored snapshot.")
	c.notifyLocked(e)
}

func (c *QueryCache) finishFetch(e *entry, f *flight, value any, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	defer c.endWorkLocked()

	if c.entries[e.hash] != e || e.inflight != f {
		c.metrics.fetchFinished(e.key.Kind(), nil)
		c.logger.Debug().Str("key", e.hash).Msg("Discarding result of superseded fetch.")
		return
	}
	c.metrics.fetchFinished(e.key.Kind(), err)
	e.inflight = nil
	e.state.IsFetching = false

	if err != nil {
		e.state.Status = StatusError
		e.state.Err = err
		c.logger.Warn().Err(err).Str("key", e.hash).Msg("Fetch failed.")
		c.notifyLocked(e)
		return
	}

	e.state.Value = value
	e.state.HasValue = true
	e.state.Status = StatusSuccess
	e.state.Err = nil
	e.state.IsStale = false
	e.state.FetchedAt = time.Now()
	e.state.Version++
	c.notifyLocked(e)
	c.persistLocked(e.hash, value)
}

// persistLocked writes value through to the store in the background.
func (c *QueryCache) persistLocked(hash string, value any) {
	if c.store == nil {
		return
	}
	raw, err := json.Marshal(value)
	if err != nil {
		c.logger.Warn().Err(err).Str("key", hash).Msg("Value is not JSON-encodable, snapshot skipped.")
		return
	}

	c.storeWG.Add(1)
	go func() {
		defer c.storeWG.Done()
		ctx, cancel := context.WithTimeout(context.Background(), c.cfg.StoreWriteTimeout)
		defer cancel()
		if err := c.store.WriteToCache(ctx, hash, raw); err != nil {
			c.logger.Error().Err(err).Str("key", hash).Msg("Failed to write snapshot to store.")
		}
	}()
}

func (c *QueryCache) notifyLocked(e *entry) {
	c.notifyHashLocked(e.hash, c.snapshotLocked(e))
}

// notifyHashLocked queues st for every listening subscriber of hash and wakes
// any Await callers.
func (c *QueryCache) notifyHashLocked(hash string, st State) {
	for sub := range c.subs[hash] {
		c.enqueueLocked(sub, st)
	}
	if ch, ok := c.changed[hash]; ok {
		close(ch)
		delete(c.changed, hash)
	}
}

func (c *QueryCache) enqueueLocked(sub *subscriber, st State) {
	if sub.listener == nil || sub.closed {
		return
	}
	c.queue = append(c.queue, notification{sub: sub, state: st})
	c.beginWorkLocked()
	c.cond.Signal()
}

func (c *QueryCache) changedLocked(hash string) <-chan struct{} {
	ch, ok := c.changed[hash]
	if !ok {
		ch = make(chan struct{})
		c.changed[hash] = ch
	}
	return ch
}

func (c *QueryCache) beginWorkLocked() {
	if c.busy == 0 {
		c.idle = make(chan struct{})
	}
	c.busy++
}

func (c *QueryCache) endWorkLocked() {
	c.busy--
	if c.busy == 0 {
		close(c.idle)
	}
}

// dispatch delivers queued notifications one at a time, outside the lock.
func (c *QueryCache) dispatch() {
	defer close(c.dispatcherDone)

	c.mu.Lock()
	c.dispatcherID = goroutineID()
	for {
		for len(c.queue) == 0 && !c.closed {
			c.cond.Wait()
		}
		if len(c.queue) == 0 {
			c.mu.Unlock()
			return
		}

		n := c.queue[0]
		c.queue[0] = notification{}
		c.queue = c.queue[1:]
		deliver := !n.sub.closed
		if deliver {
			c.delivering = n.sub
		}
		c.mu.Unlock()

		if deliver {
			c.deliver(n)
		}

		c.mu.Lock()
		if deliver {
			c.delivering = nil
			c.delivered.Broadcast()
		}
		c.endWorkLocked()
	}
}

func (c *QueryCache) deliver(n notification) {
	defer func() {
		if r := recover(); r != nil {
			c.logger.Error().Interface("panic", r).Str("key", n.sub.hash).Msg("Cache listener panicked.")
		}
	}()
	n.sub.listener(n.state)
}

// waitDeliveredLocked blocks while sub's listener is running, unless the
// caller is that listener.
func (c *QueryCache) waitDeliveredLocked(sub *subscriber) {
	if c.delivering != sub || goroutineID() == c.dispatcherID {
		return
	}
	for c.delivering == sub {
		c.delivered.Wait()
	}
}
