package toggle

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/illmade-knight/go-fizzgrid/pkg/cache"
	"github.com/rs/zerolog"
)

// Mutator fires the remote mutation for a toggle. current is the server value
// at click time: true removes the relation, false creates it.
// *mutation.Mutation[bool, R] satisfies it for any R.
type Mutator interface {
	Mutate(ctx context.Context, current bool)
	IsPending() bool
}

// LoginPrompter surfaces the "log in to continue" side effect.
type LoginPrompter interface {
	PromptLogin()
}

// LoginPrompterFunc adapts a function to LoginPrompter.
type LoginPrompterFunc func()

// PromptLogin calls f.
func (f LoginPrompterFunc) PromptLogin() { f() }

// ClickEvent describes one click on a relation toggle.
type ClickEvent struct {
	Relation  string
	Target    int64
	Viewer    int64
	HasViewer bool
	// Current is the server value at click time.
	Current bool
	// Fired is false when the click was stopped by RequireViewer.
	Fired bool
	At    time.Time
}

// RelationConfig binds a toggle to one relation list.
type RelationConfig[T any] struct {
	// Name labels the relation in logs and events, e.g. "favorite".
	Name string
	// Target is the id of the entity the relation points at.
	Target int64
	// Key addresses the relation list in the cache.
	Key cache.Key
	// Fetch loads the relation list.
	Fetch func(ctx context.Context) ([]T, error)
	// Participant extracts the participating profile id from one list item.
	Participant func(T) int64
	// Viewer returns the authenticated viewer's profile id, if any.
	Viewer func() (int64, bool)
	// Mutator fires the create/delete mutation.
	Mutator Mutator
	// Prompter is called on clicks without a viewer. Optional.
	Prompter LoginPrompter
	// RequireViewer stops clicks without a viewer after prompting, instead of
	// predicting and firing a mutation that the server will reject.
	RequireViewer bool
	// ExtraPending reports other in-flight work the displayed value depends
	// on, such as a parent aggregate refetching. Optional.
	ExtraPending func() bool
	// OnClick observes every click. Optional.
	OnClick func(ClickEvent)
}

// Relation is an optimistic toggle over "does the viewer appear in this
// list". Membership is kept as an indexed set, rebuilt only when the list
// resolves to a new value.
type Relation[T any] struct {
	cfg    RelationConfig[T]
	ctx    context.Context
	list   *cache.Query[[]T]
	engine *Engine
	logger zerolog.Logger

	mu        sync.Mutex
	members   map[int64]struct{}
	size      int
	version   uint64
	fetchedAt time.Time
	built     bool
}

// NewRelation subscribes to the relation list and builds the toggle. ctx
// bounds the mutations fired by clicks.
func NewRelation[T any](ctx context.Context, c *cache.QueryCache, cfg RelationConfig[T], logger zerolog.Logger) (*Relation[T], error) {
	switch {
	case c == nil:
		return nil, errors.New("query cache is required")
	case len(cfg.Key) == 0:
		return nil, errors.New("relation key is required")
	case cfg.Fetch == nil:
		return nil, errors.New("relation fetch function is required")
	case cfg.Participant == nil:
		return nil, errors.New("participant extractor is required")
	case cfg.Viewer == nil:
		return nil, errors.New("viewer accessor is required")
	case cfg.Mutator == nil:
		return nil, errors.New("mutator is required")
	}

	r := &Relation[T]{
		cfg: cfg,
		ctx: ctx,
		logger: logger.With().
			Str("component", "RelationToggle").
			Str("relation", cfg.Name).
			Int64("target", cfg.Target).
			Logger(),
	}
	r.list = cache.ReadQuery(ctx, c, cfg.Key, cfg.Fetch)
	r.engine = NewEngine(r.fire, r.IsPending, r.ServerValue)
	return r, nil
}

// Value is the displayed boolean.
func (r *Relation[T]) Value() bool {
	return r.engine.Value()
}

// ServerValue is the relation-boolean derived from the cached list alone.
func (r *Relation[T]) ServerValue() bool {
	viewer, ok := r.cfg.Viewer()
	if !ok {
		return false
	}
	members, _ := r.index()
	_, found := members[viewer]
	return found
}

// Count is the number of items in the cached list, e.g. a like count.
func (r *Relation[T]) Count() int {
	_, size := r.index()
	return size
}

// IsPending is true while the mutation runs or the list is fetching.
func (r *Relation[T]) IsPending() bool {
	if r.cfg.Mutator.IsPending() || r.list.State().IsFetching {
		return true
	}
	return r.cfg.ExtraPending != nil && r.cfg.ExtraPending()
}

// Click handles a user click: it prompts for login when there is no viewer,
// then toggles unless RequireViewer is set.
func (r *Relation[T]) Click() {
	viewer, hasViewer := r.cfg.Viewer()
	fired := true
	if !hasViewer {
		if r.cfg.Prompter != nil {
			r.cfg.Prompter.PromptLogin()
		}
		if r.cfg.RequireViewer {
			fired = false
			r.logger.Debug().Msg("Click without viewer ignored.")
		}
	}

	current := r.ServerValue()
	if fired {
		r.engine.Toggle()
	}

	if r.cfg.OnClick != nil {
		r.cfg.OnClick(ClickEvent{
			Relation:  r.cfg.Name,
			Target:    r.cfg.Target,
			Viewer:    viewer,
			HasViewer: hasViewer,
			Current:   current,
			Fired:     fired,
			At:        time.Now(),
		})
	}
}

// Toggle toggles without the login check.
func (r *Relation[T]) Toggle() {
	r.engine.Toggle()
}

// List exposes the underlying list query.
func (r *Relation[T]) List() *cache.Query[[]T] {
	return r.list
}

// Close releases the list subscription.
func (r *Relation[T]) Close() {
	r.list.Close()
}

func (r *Relation[T]) fire(current bool) {
	r.logger.Debug().Bool("current", current).Msg("Toggling relation.")
	r.cfg.Mutator.Mutate(r.ctx, current)
}

// index returns the membership set, rebuilding it when the list changed.
func (r *Relation[T]) index() (map[int64]struct{}, int) {
	st := r.list.State()

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.built && st.Version == r.version && st.FetchedAt.Equal(r.fetchedAt) {
		return r.members, r.size
	}

	items, _ := cache.DataOf[[]T](st)
	members := make(map[int64]struct{}, len(items))
	for _, item := range items {
		members[r.cfg.Participant(item)] = struct{}{}
	}
	r.members = members
	r.size = len(items)
	r.version = st.Version
	r.fetchedAt = st.FetchedAt
	r.built = true
	return r.members, r.size
}
