package fizzgrid

import (
	"context"

	"github.com/illmade-knight/go-fizzgrid/pkg/activity"
	"github.com/illmade-knight/go-fizzgrid/pkg/cache"
	"github.com/illmade-knight/go-fizzgrid/pkg/mutation"
	"github.com/illmade-knight/go-fizzgrid/pkg/toggle"
)

type toggleOptions struct {
	requireViewer bool
	extraPending  func() bool
}

// ToggleOption configures a relation toggle.
type ToggleOption func(*toggleOptions)

// WithRequireViewer stops anonymous clicks after the login prompt instead of
// sending a mutation the server will reject.
func WithRequireViewer() ToggleOption {
	return func(o *toggleOptions) { o.requireViewer = true }
}

// WithExtraPending keeps the toggle pending while fn reports true, e.g. while
// the page's aggregate is refetching.
func WithExtraPending(fn func() bool) ToggleOption {
	return func(o *toggleOptions) { o.extraPending = fn }
}

// NewFavoriteToggle binds the favorite button of a drink: true when the viewer
// has favorited it.
func (c *Client) NewFavoriteToggle(ctx context.Context, s *Session, drinkID int64, opts ...ToggleOption) (*toggle.Relation[DrinkFavorite], error) {
	return newRelation(ctx, c, s, relationDef[DrinkFavorite]{
		name:   "favorite",
		target: drinkID,
		key:    DrinkFavoritesKey(drinkID),
		fetch: func(ctx context.Context) ([]DrinkFavorite, error) {
			return c.FetchDrinkFavorites(ctx, drinkID)
		},
		participant: func(f DrinkFavorite) int64 { return f.ProfileID },
		mutator:     c.SetDrinkFavorite(drinkID),
	}, opts)
}

// NewFollowToggle binds the follow button of a profile: true when the viewer
// follows it.
func (c *Client) NewFollowToggle(ctx context.Context, s *Session, profileID int64, opts ...ToggleOption) (*toggle.Relation[Follow], error) {
	return newRelation(ctx, c, s, relationDef[Follow]{
		name:   "follow",
		target: profileID,
		key:    ProfileFollowersKey(profileID),
		fetch: func(ctx context.Context) ([]Follow, error) {
			return c.FetchFollowers(ctx, profileID)
		},
		participant: func(f Follow) int64 { return f.FollowerID },
		mutator:     c.SetFollow(profileID),
	}, opts)
}

// NewReviewLikeToggle binds the like button of a review. Count is the like
// count.
func (c *Client) NewReviewLikeToggle(ctx context.Context, s *Session, reviewID int64, opts ...ToggleOption) (*toggle.Relation[ReviewLike], error) {
	return newRelation(ctx, c, s, relationDef[ReviewLike]{
		name:   "review-like",
		target: reviewID,
		key:    ReviewLikesKey(reviewID),
		fetch: func(ctx context.Context) ([]ReviewLike, error) {
			return c.FetchReviewLikes(ctx, reviewID)
		},
		participant: func(l ReviewLike) int64 { return l.ProfileID },
		mutator:     c.SetReviewLike(reviewID),
	}, opts)
}

// NewCommentLikeToggle binds the like button of a comment.
func (c *Client) NewCommentLikeToggle(ctx context.Context, s *Session, commentID int64, opts ...ToggleOption) (*toggle.Relation[CommentLike], error) {
	return newRelation(ctx, c, s, relationDef[CommentLike]{
		name:   "comment-like",
		target: commentID,
		key:    CommentLikesKey(commentID),
		fetch: func(ctx context.Context) ([]CommentLike, error) {
			return c.FetchCommentLikes(ctx, commentID)
		},
		participant: func(l CommentLike) int64 { return l.ProfileID },
		mutator:     c.SetCommentLike(commentID),
	}, opts)
}

type relationDef[T any] struct {
	name        string
	target      int64
	key         cache.Key
	fetch       func(ctx context.Context) ([]T, error)
	participant func(T) int64
	mutator     *mutation.Mutation[bool, T]
}

func newRelation[T any](ctx context.Context, c *Client, s *Session, def relationDef[T], opts []ToggleOption) (*toggle.Relation[T], error) {
	var o toggleOptions
	for _, opt := range opts {
		opt(&o)
	}

	var viewer func() (int64, bool)
	var prompter toggle.LoginPrompter
	if s != nil {
		viewer = s.Viewer
		prompter = toggle.LoginPrompterFunc(s.PromptLogin)
	} else {
		viewer = func() (int64, bool) { return 0, false }
		if c.prompter != nil {
			prompter = c.prompter
		}
	}

	return toggle.NewRelation(ctx, c.cache, toggle.RelationConfig[T]{
		Name:          def.name,
		Target:        def.target,
		Key:           def.key,
		Fetch:         def.fetch,
		Participant:   def.participant,
		Viewer:        viewer,
		Mutator:       def.mutator,
		Prompter:      prompter,
		RequireViewer: o.requireViewer,
		ExtraPending:  o.extraPending,
		OnClick:       c.recordClick,
	}, c.logger)
}

func (c *Client) recordClick(e toggle.ClickEvent) {
	ev := activity.NewEvent(activity.KindClick, e.Relation)
	ev.Target = e.Target
	ev.Viewer = e.Viewer
	ev.HasViewer = e.HasViewer
	ev.Current = e.Current
	ev.OccurredAt = e.At.UTC()
	switch {
	case !e.Fired:
		ev.Outcome = activity.OutcomePrompted
	default:
		ev.Direction = toggleDirection(e.Current)
	}
	c.record(ev)
}
