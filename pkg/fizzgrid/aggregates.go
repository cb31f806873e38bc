package fizzgrid

import (
	"context"
	"sync"

	"github.com/illmade-knight/go-fizzgrid/pkg/cache"
	"golang.org/x/sync/errgroup"
)

// DrinkData is everything the drink page shows.
type DrinkData struct {
	Drink     Drink           `json:"drink"`
	Images    []DrinkImage    `json:"images"`
	Reviews   ReviewPage      `json:"reviews"`
	Favorites []DrinkFavorite `json:"favorites"`
}

// ProfileData is everything the profile page shows.
type ProfileData struct {
	Profile   Profile         `json:"profile"`
	Followers []Follow        `json:"followers"`
	Following []Follow        `json:"following"`
	Favorites []DrinkFavorite `json:"favorites"`
	Reviews   ReviewPage      `json:"reviews"`
}

// ReviewData is a review with its author, its drink, images and likes.
type ReviewData struct {
	Review  Review       `json:"review"`
	Images  []DrinkImage `json:"images"`
	Profile Profile      `json:"profile"`
	Drink   Drink        `json:"drink"`
	Likes   []ReviewLike `json:"likes"`
}

// CommentData is a comment with its author and likes.
type CommentData struct {
	Comment ReviewComment `json:"comment"`
	Likes   []CommentLike `json:"likes"`
	Profile Profile       `json:"profile"`
}

// part is one subscription feeding an aggregate.
type part interface {
	State() cache.State
	Await(ctx context.Context) (cache.State, error)
	Close()
}

type parts []part

func (ps parts) isLoading() bool {
	for _, p := range ps {
		if p.State().IsLoading() {
			return true
		}
	}
	return false
}

func (ps parts) err() error {
	for _, p := range ps {
		if st := p.State(); st.IsError() {
			return st.Err
		}
	}
	return nil
}

// await waits for every part concurrently and fails with the first error.
func (ps parts) await(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)
	for _, p := range ps {
		g.Go(func() error {
			st, err := p.Await(gctx)
			if err != nil {
				return err
			}
			if st.IsError() {
				return st.Err
			}
			return nil
		})
	}
	return g.Wait()
}

func (ps parts) close() {
	for _, p := range ps {
		p.Close()
	}
}

// isRefetching reports a background refetch of a value already shown.
func isRefetching(p part) bool {
	st := p.State()
	return st.IsFetching && st.HasValue
}

// DrinkView watches the four queries behind a drink page.
type DrinkView struct {
	drink     *cache.Query[Drink]
	images    *cache.Query[[]DrinkImage]
	reviews   *cache.Query[ReviewPage]
	favorites *cache.Query[[]DrinkFavorite]
}

// WatchDrink subscribes to a drink page. The view must be closed.
func (c *Client) WatchDrink(ctx context.Context, id int64) *DrinkView {
	return &DrinkView{
		drink:     c.DrinkQuery(ctx, id),
		images:    c.DrinkImagesQuery(ctx, id),
		reviews:   c.DrinkReviewsQuery(ctx, id),
		favorites: c.DrinkFavoritesQuery(ctx, id),
	}
}

func (v *DrinkView) parts() parts {
	return parts{v.drink, v.images, v.reviews, v.favorites}
}

// Data is present once every part has a value.
func (v *DrinkView) Data() (DrinkData, bool) {
	drink, ok1 := v.drink.Data()
	images, ok2 := v.images.Data()
	reviews, ok3 := v.reviews.Data()
	favorites, ok4 := v.favorites.Data()
	if !ok1 || !ok2 || !ok3 || !ok4 {
		return DrinkData{}, false
	}
	return DrinkData{Drink: drink, Images: images, Reviews: reviews, Favorites: favorites}, true
}

// IsLoading is true while any part has no value yet.
func (v *DrinkView) IsLoading() bool { return v.parts().isLoading() }

// Err reports the first failed part.
func (v *DrinkView) Err() error { return v.parts().err() }

// IsRefetching follows the favorites list, the part a favorite toggle changes.
func (v *DrinkView) IsRefetching() bool { return isRefetching(v.favorites) }

// Await blocks until every part has resolved.
func (v *DrinkView) Await(ctx context.Context) (DrinkData, error) {
	if err := v.parts().await(ctx); err != nil {
		return DrinkData{}, err
	}
	d, _ := v.Data()
	return d, nil
}

// Close releases every part.
func (v *DrinkView) Close() { v.parts().close() }

// LoadDrink reads a drink page once.
func (c *Client) LoadDrink(ctx context.Context, id int64) (DrinkData, error) {
	v := c.WatchDrink(ctx, id)
	defer v.Close()
	return v.Await(ctx)
}

// ProfileView watches the five queries behind a profile page.
type ProfileView struct {
	profile   *cache.Query[Profile]
	followers *cache.Query[[]Follow]
	following *cache.Query[[]Follow]
	favorites *cache.Query[[]DrinkFavorite]
	reviews   *cache.Query[ReviewPage]
}

// WatchProfile subscribes to a profile page. The view must be closed.
func (c *Client) WatchProfile(ctx context.Context, id int64) *ProfileView {
	return &ProfileView{
		profile:   c.ProfileQuery(ctx, id),
		followers: c.FollowersQuery(ctx, id),
		following: c.FollowingQuery(ctx, id),
		favorites: c.ProfileFavoritesQuery(ctx, id),
		reviews:   c.ProfileReviewsQuery(ctx, id),
	}
}

func (v *ProfileView) parts() parts {
	return parts{v.profile, v.followers, v.following, v.favorites, v.reviews}
}

// Data is present once every part has a value.
func (v *ProfileView) Data() (ProfileData, bool) {
	profile, ok1 := v.profile.Data()
	followers, ok2 := v.followers.Data()
	following, ok3 := v.following.Data()
	favorites, ok4 := v.favorites.Data()
	reviews, ok5 := v.reviews.Data()
	if !ok1 || !ok2 || !ok3 || !ok4 || !ok5 {
		return ProfileData{}, false
	}
	return ProfileData{
		Profile:   profile,
		Followers: followers,
		Following: following,
		Favorites: favorites,
		Reviews:   reviews,
	}, true
}

// IsLoading is true while any part has no value yet.
func (v *ProfileView) IsLoading() bool { return v.parts().isLoading() }

// Err reports the first failed part.
func (v *ProfileView) Err() error { return v.parts().err() }

// IsRefetching follows the followers list, the part a follow toggle changes.
func (v *ProfileView) IsRefetching() bool { return isRefetching(v.followers) }

// Await blocks until every part has resolved.
func (v *ProfileView) Await(ctx context.Context) (ProfileData, error) {
	if err := v.parts().await(ctx); err != nil {
		return ProfileData{}, err
	}
	d, _ := v.Data()
	return d, nil
}

// Close releases every part.
func (v *ProfileView) Close() { v.parts().close() }

// LoadProfile reads a profile page once.
func (c *Client) LoadProfile(ctx context.Context, id int64) (ProfileData, error) {
	v := c.WatchProfile(ctx, id)
	defer v.Close()
	return v.Await(ctx)
}

// dependents guards queries opened from a listener once a parent resolves.
// Listeners run on the cache dispatcher, so access is locked.
type dependents struct {
	mu     sync.Mutex
	closed bool
}

// ReviewView watches a review and, once the review is known, its drink and
// author.
type ReviewView struct {
	client *Client
	ctx    context.Context
	review *cache.Query[Review]
	images *cache.Query[[]DrinkImage]
	likes  *cache.Query[[]ReviewLike]

	deps    dependents
	drink   *cache.Query[Drink]
	profile *cache.Query[Profile]
}

// WatchReview subscribes to a review page. The view must be closed.
func (c *Client) WatchReview(ctx context.Context, id int64) *ReviewView {
	v := &ReviewView{
		client: c,
		ctx:    ctx,
		images: c.ReviewImagesQuery(ctx, id),
		likes:  c.ReviewLikesQuery(ctx, id),
	}
	v.review = c.ReviewQuery(ctx, id, cache.WithListener(func(st cache.State) {
		if r, ok := cache.DataOf[Review](st); ok {
			v.resolveDependents(r)
		}
	}))
	return v
}

// resolveDependents opens the drink and author queries. They need ids only
// the review carries.
func (v *ReviewView) resolveDependents(r Review) {
	v.deps.mu.Lock()
	defer v.deps.mu.Unlock()
	if v.deps.closed {
		return
	}
	if v.drink == nil {
		v.drink = v.client.DrinkQuery(v.ctx, r.DrinkID)
	}
	if v.profile == nil {
		v.profile = v.client.ProfileQuery(v.ctx, r.ProfileID)
	}
}

func (v *ReviewView) dependents() (*cache.Query[Drink], *cache.Query[Profile]) {
	v.deps.mu.Lock()
	defer v.deps.mu.Unlock()
	return v.drink, v.profile
}

func (v *ReviewView) parts() parts {
	ps := parts{v.review, v.images, v.likes}
	drink, profile := v.dependents()
	if drink != nil {
		ps = append(ps, drink)
	}
	if profile != nil {
		ps = append(ps, profile)
	}
	return ps
}

// Data is present once the review and its dependents have values.
func (v *ReviewView) Data() (ReviewData, bool) {
	drinkQ, profileQ := v.dependents()
	if drinkQ == nil || profileQ == nil {
		return ReviewData{}, false
	}
	review, ok1 := v.review.Data()
	images, ok2 := v.images.Data()
	likes, ok3 := v.likes.Data()
	drink, ok4 := drinkQ.Data()
	profile, ok5 := profileQ.Data()
	if !ok1 || !ok2 || !ok3 || !ok4 || !ok5 {
		return ReviewData{}, false
	}
	return ReviewData{Review: review, Images: images, Profile: profile, Drink: drink, Likes: likes}, true
}

// IsLoading is true until the review, and the queries that depend on it, have
// resolved.
func (v *ReviewView) IsLoading() bool {
	if v.parts().isLoading() {
		return true
	}
	drink, profile := v.dependents()
	return v.review.State().IsSuccess() && (drink == nil || profile == nil)
}

// Err reports the first failed part, dependents included.
func (v *ReviewView) Err() error { return v.parts().err() }

// IsRefetching follows the likes list, the part a like toggle changes.
func (v *ReviewView) IsRefetching() bool { return isRefetching(v.likes) }

// Await waits for the review first, then for everything else.
func (v *ReviewView) Await(ctx context.Context) (ReviewData, error) {
	st, err := v.review.Await(ctx)
	if err != nil {
		return ReviewData{}, err
	}
	if st.IsError() {
		return ReviewData{}, st.Err
	}
	if r, ok := cache.DataOf[Review](st); ok {
		v.resolveDependents(r)
	}
	if err := v.parts().await(ctx); err != nil {
		return ReviewData{}, err
	}
	d, _ := v.Data()
	return d, nil
}

// Close releases every part. Dependents that would resolve later are not
// opened.
func (v *ReviewView) Close() {
	v.review.Close()
	v.deps.mu.Lock()
	v.deps.closed = true
	v.deps.mu.Unlock()
	v.parts().close()
}

// LoadReview reads a review page once.
func (c *Client) LoadReview(ctx context.Context, id int64) (ReviewData, error) {
	v := c.WatchReview(ctx, id)
	defer v.Close()
	return v.Await(ctx)
}

// CommentView watches a comment, its likes and, once known, its author.
type CommentView struct {
	client  *Client
	ctx     context.Context
	comment *cache.Query[ReviewComment]
	likes   *cache.Query[[]CommentLike]

	deps    dependents
	profile *cache.Query[Profile]
}

// WatchComment subscribes to a comment. The view must be closed.
func (c *Client) WatchComment(ctx context.Context, id int64) *CommentView {
	v := &CommentView{
		client: c,
		ctx:    ctx,
		likes:  c.CommentLikesQuery(ctx, id),
	}
	v.comment = c.CommentQuery(ctx, id, cache.WithListener(func(st cache.State) {
		if rc, ok := cache.DataOf[ReviewComment](st); ok {
			v.resolveAuthor(rc)
		}
	}))
	return v
}

func (v *CommentView) resolveAuthor(rc ReviewComment) {
	v.deps.mu.Lock()
	defer v.deps.mu.Unlock()
	if !v.deps.closed && v.profile == nil {
		v.profile = v.client.ProfileQuery(v.ctx, rc.ProfileID)
	}
}

func (v *CommentView) author() *cache.Query[Profile] {
	v.deps.mu.Lock()
	defer v.deps.mu.Unlock()
	return v.profile
}

func (v *CommentView) parts() parts {
	ps := parts{v.comment, v.likes}
	if p := v.author(); p != nil {
		ps = append(ps, p)
	}
	return ps
}

// Data is present once the comment, its likes and its author have values.
func (v *CommentView) Data() (CommentData, bool) {
	profileQ := v.author()
	if profileQ == nil {
		return CommentData{}, false
	}
	comment, ok1 := v.comment.Data()
	likes, ok2 := v.likes.Data()
	profile, ok3 := profileQ.Data()
	if !ok1 || !ok2 || !ok3 {
		return CommentData{}, false
	}
	return CommentData{Comment: comment, Likes: likes, Profile: profile}, true
}

// IsLoading is true until the comment and its author have resolved.
func (v *CommentView) IsLoading() bool {
	if v.parts().isLoading() {
		return true
	}
	return v.comment.State().IsSuccess() && v.author() == nil
}

// Err reports the first failed part.
func (v *CommentView) Err() error { return v.parts().err() }

// IsRefetching follows the likes list, the part a like toggle changes.
func (v *CommentView) IsRefetching() bool { return isRefetching(v.likes) }

// Await waits for the comment first, then for its author and likes.
func (v *CommentView) Await(ctx context.Context) (CommentData, error) {
	st, err := v.comment.Await(ctx)
	if err != nil {
		return CommentData{}, err
	}
	if st.IsError() {
		return CommentData{}, st.Err
	}
	if rc, ok := cache.DataOf[ReviewComment](st); ok {
		v.resolveAuthor(rc)
	}
	if err := v.parts().await(ctx); err != nil {
		return CommentData{}, err
	}
	d, _ := v.Data()
	return d, nil
}

// Close releases the comment, its likes and, once opened, its author.
func (v *CommentView) Close() {
	v.comment.Close()
	v.deps.mu.Lock()
	v.deps.closed = true
	v.deps.mu.Unlock()
	v.parts().close()
}

// LoadComment reads a comment once.
func (c *Client) LoadComment(ctx context.Context, id int64) (CommentData, error) {
	v := c.WatchComment(ctx, id)
	defer v.Close()
	return v.Await(ctx)
}
