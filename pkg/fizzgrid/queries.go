package fizzgrid

import (
	"context"

	"github.com/illmade-knight/go-fizzgrid/pkg/cache"
)

// The query constructors below subscribe to one key each. Every returned
// query must be closed.

// DrinksQuery reads one page of the drinks listing.
func (c *Client) DrinksQuery(ctx context.Context, page int, search string, opts ...cache.ReadOption) *cache.Query[DrinkPage] {
	return cache.ReadQuery(ctx, c.cache, DrinksKey(page, search), func(ctx context.Context) (DrinkPage, error) {
		return c.FetchDrinks(ctx, page, search)
	}, opts...)
}

// DrinkQuery reads one drink.
func (c *Client) DrinkQuery(ctx context.Context, id int64, opts ...cache.ReadOption) *cache.Query[Drink] {
	return cache.ReadQuery(ctx, c.cache, DrinkKey(id), func(ctx context.Context) (Drink, error) {
		return c.FetchDrink(ctx, id)
	}, opts...)
}

// DrinkFavoritesQuery reads who favorited a drink.
func (c *Client) DrinkFavoritesQuery(ctx context.Context, drinkID int64, opts ...cache.ReadOption) *cache.Query[[]DrinkFavorite] {
	return cache.ReadQuery(ctx, c.cache, DrinkFavoritesKey(drinkID), func(ctx context.Context) ([]DrinkFavorite, error) {
		return c.FetchDrinkFavorites(ctx, drinkID)
	}, opts...)
}

// DrinkImagesQuery reads the images posted for a drink.
func (c *Client) DrinkImagesQuery(ctx context.Context, drinkID int64, opts ...cache.ReadOption) *cache.Query[[]DrinkImage] {
	return cache.ReadQuery(ctx, c.cache, DrinkImagesKey(drinkID), func(ctx context.Context) ([]DrinkImage, error) {
		return c.FetchDrinkImages(ctx, drinkID)
	}, opts...)
}

// DrinkReviewsQuery reads the reviews of a drink.
func (c *Client) DrinkReviewsQuery(ctx context.Context, drinkID int64, opts ...cache.ReadOption) *cache.Query[ReviewPage] {
	return cache.ReadQuery(ctx, c.cache, DrinkReviewsKey(drinkID), func(ctx context.Context) (ReviewPage, error) {
		return c.FetchReviews(ctx, ReviewFilter{DrinkID: drinkID})
	}, opts...)
}

// ProfilesQuery reads one page of the profile search.
func (c *Client) ProfilesQuery(ctx context.Context, page int, search string, opts ...cache.ReadOption) *cache.Query[ProfilePage] {
	return cache.ReadQuery(ctx, c.cache, ProfilesKey(page, search), func(ctx context.Context) (ProfilePage, error) {
		return c.FetchProfiles(ctx, page, search)
	}, opts...)
}

// ProfileQuery reads one profile.
func (c *Client) ProfileQuery(ctx context.Context, id int64, opts ...cache.ReadOption) *cache.Query[Profile] {
	return cache.ReadQuery(ctx, c.cache, ProfileKey(id), func(ctx context.Context) (Profile, error) {
		return c.FetchProfile(ctx, id)
	}, opts...)
}

// FollowersQuery reads who follows a profile.
func (c *Client) FollowersQuery(ctx context.Context, profileID int64, opts ...cache.ReadOption) *cache.Query[[]Follow] {
	return cache.ReadQuery(ctx, c.cache, ProfileFollowersKey(profileID), func(ctx context.Context) ([]Follow, error) {
		return c.FetchFollowers(ctx, profileID)
	}, opts...)
}

// FollowingQuery reads whom a profile follows.
func (c *Client) FollowingQuery(ctx context.Context, profileID int64, opts ...cache.ReadOption) *cache.Query[[]Follow] {
	return cache.ReadQuery(ctx, c.cache, ProfileFollowingKey(profileID), func(ctx context.Context) ([]Follow, error) {
		return c.FetchFollowing(ctx, profileID)
	}, opts...)
}

// ProfileFavoritesQuery reads the drinks a profile favorited.
func (c *Client) ProfileFavoritesQuery(ctx context.Context, profileID int64, opts ...cache.ReadOption) *cache.Query[[]DrinkFavorite] {
	return cache.ReadQuery(ctx, c.cache, ProfileFavoritesKey(profileID), func(ctx context.Context) ([]DrinkFavorite, error) {
		return c.FetchProfileFavorites(ctx, profileID)
	}, opts...)
}

// ProfileReviewsQuery reads the reviews a profile wrote.
func (c *Client) ProfileReviewsQuery(ctx context.Context, profileID int64, opts ...cache.ReadOption) *cache.Query[ReviewPage] {
	return cache.ReadQuery(ctx, c.cache, ProfileReviewsKey(profileID), func(ctx context.Context) (ReviewPage, error) {
		return c.FetchReviews(ctx, ReviewFilter{ProfileID: profileID})
	}, opts...)
}

// RecentReviewsQuery reads one page of the recent reviews feed.
func (c *Client) RecentReviewsQuery(ctx context.Context, page int, opts ...cache.ReadOption) *cache.Query[RecentReviewsPage] {
	return cache.ReadQuery(ctx, c.cache, RecentReviewsKey(page), func(ctx context.Context) (RecentReviewsPage, error) {
		return c.FetchRecentReviews(ctx, page)
	}, opts...)
}

// ReviewQuery reads one review.
func (c *Client) ReviewQuery(ctx context.Context, id int64, opts ...cache.ReadOption) *cache.Query[Review] {
	return cache.ReadQuery(ctx, c.cache, ReviewKey(id), func(ctx context.Context) (Review, error) {
		return c.FetchReview(ctx, id)
	}, opts...)
}

// ReviewLikesQuery reads the likes of a review.
func (c *Client) ReviewLikesQuery(ctx context.Context, reviewID int64, opts ...cache.ReadOption) *cache.Query[[]ReviewLike] {
	return cache.ReadQuery(ctx, c.cache, ReviewLikesKey(reviewID), func(ctx context.Context) ([]ReviewLike, error) {
		return c.FetchReviewLikes(ctx, reviewID)
	}, opts...)
}

// ReviewImagesQuery reads the images attached to a review.
func (c *Client) ReviewImagesQuery(ctx context.Context, reviewID int64, opts ...cache.ReadOption) *cache.Query[[]DrinkImage] {
	return cache.ReadQuery(ctx, c.cache, ReviewImagesKey(reviewID), func(ctx context.Context) ([]DrinkImage, error) {
		return c.FetchReviewImages(ctx, reviewID)
	}, opts...)
}

// ReviewCommentsQuery reads the comments on a review.
func (c *Client) ReviewCommentsQuery(ctx context.Context, reviewID int64, opts ...cache.ReadOption) *cache.Query[[]ReviewComment] {
	return cache.ReadQuery(ctx, c.cache, ReviewCommentsKey(reviewID), func(ctx context.Context) ([]ReviewComment, error) {
		return c.FetchReviewComments(ctx, reviewID)
	}, opts...)
}

// CommentQuery reads one comment.
func (c *Client) CommentQuery(ctx context.Context, id int64, opts ...cache.ReadOption) *cache.Query[ReviewComment] {
	return cache.ReadQuery(ctx, c.cache, CommentKey(id), func(ctx context.Context) (ReviewComment, error) {
		return c.FetchComment(ctx, id)
	}, opts...)
}

// CommentLikesQuery reads the likes of a comment.
func (c *Client) CommentLikesQuery(ctx context.Context, commentID int64, opts ...cache.ReadOption) *cache.Query[[]CommentLike] {
	return cache.ReadQuery(ctx, c.cache, CommentLikesKey(commentID), func(ctx context.Context) ([]CommentLike, error) {
		return c.FetchCommentLikes(ctx, commentID)
	}, opts...)
}
