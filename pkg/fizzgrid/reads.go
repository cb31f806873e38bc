package fizzgrid

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
)

// ReviewFilter narrows the reviews list. Zero fields are omitted; a zero Page
// requests the unpaginated list.
type ReviewFilter struct {
	Search    string
	Page      int
	ProfileID int64
	DrinkID   int64
}

func (f ReviewFilter) values() url.Values {
	q := url.Values{"search": {f.Search}}
	if f.Page > 0 {
		q.Set("page", strconv.Itoa(f.Page))
	}
	if f.ProfileID != 0 {
		q.Set("profile", formatID(f.ProfileID))
	}
	if f.DrinkID != 0 {
		q.Set("drink", formatID(f.DrinkID))
	}
	return q
}

func formatID(id int64) string {
	return strconv.FormatInt(id, 10)
}

func pageValues(page int, search string) url.Values {
	if page < 1 {
		page = 1
	}
	return url.Values{"search": {search}, "page": {strconv.Itoa(page)}}
}

// FetchDrinks reads one page of the drink catalogue.
func (c *Client) FetchDrinks(ctx context.Context, page int, search string) (DrinkPage, error) {
	var out DrinkPage
	if err := c.api.Get(ctx, "drinks/", pageValues(page, search), &out); err != nil {
		return DrinkPage{}, err
	}
	return out, nil
}

// FetchDrink reads one drink.
func (c *Client) FetchDrink(ctx context.Context, id int64) (Drink, error) {
	var out Drink
	if err := c.api.Get(ctx, fmt.Sprintf("drinks/drink/%d/", id), nil, &out); err != nil {
		return Drink{}, err
	}
	return out, nil
}

// FetchDrinkFavorites lists the favorites of one drink.
func (c *Client) FetchDrinkFavorites(ctx context.Context, drinkID int64) ([]DrinkFavorite, error) {
	return c.fetchFavorites(ctx, url.Values{"drink": {formatID(drinkID)}})
}

// FetchProfileFavorites lists the drinks one profile has favorited.
func (c *Client) FetchProfileFavorites(ctx context.Context, profileID int64) ([]DrinkFavorite, error) {
	return c.fetchFavorites(ctx, url.Values{"profile": {formatID(profileID)}})
}

func (c *Client) fetchFavorites(ctx context.Context, q url.Values) ([]DrinkFavorite, error) {
	var out favoritesEnvelope
	if err := c.api.Get(ctx, "drinks/favorites/", q, &out); err != nil {
		return nil, err
	}
	return out.Favorites, nil
}

// FetchDrinkImages lists the images posted for a drink.
func (c *Client) FetchDrinkImages(ctx context.Context, drinkID int64) ([]DrinkImage, error) {
	var out imagesEnvelope
	if err := c.api.Get(ctx, "drinks/images/", url.Values{"drink": {formatID(drinkID)}}, &out); err != nil {
		return nil, err
	}
	return out.Images, nil
}

// FetchProfiles reads one page of the profile directory.
func (c *Client) FetchProfiles(ctx context.Context, page int, search string) (ProfilePage, error) {
	var out profilePageEnvelope
	if err := c.api.Get(ctx, "profiles/", pageValues(page, search), &out); err != nil {
		return ProfilePage{}, err
	}
	profiles := make([]Profile, 0, len(out.Profiles))
	for _, p := range out.Profiles {
		profiles = append(profiles, p.toProfile(false))
	}
	return ProfilePage{Profiles: profiles, NumPages: out.NumPages}, nil
}

// FetchProfile reads one profile.
func (c *Client) FetchProfile(ctx context.Context, id int64) (Profile, error) {
	var out profileEnvelope
	if err := c.api.Get(ctx, fmt.Sprintf("profiles/profile/%d/", id), nil, &out); err != nil {
		return Profile{}, err
	}
	return out.toProfile(false), nil
}

// FetchViewer reads the profile of the session's authenticated user. An
// anonymous session fails with the server's detail.
func (c *Client) FetchViewer(ctx context.Context) (Profile, error) {
	var out profileEnvelope
	if err := c.api.GetWithCredentials(ctx, "profiles/profile/", nil, &out); err != nil {
		return Profile{}, err
	}
	return out.toProfile(true), nil
}

// FetchFollowers lists the follows pointing at profileID.
func (c *Client) FetchFollowers(ctx context.Context, profileID int64) ([]Follow, error) {
	return c.fetchFollows(ctx, url.Values{"following": {formatID(profileID)}})
}

// FetchFollowing lists the follows made by profileID.
func (c *Client) FetchFollowing(ctx context.Context, profileID int64) ([]Follow, error) {
	return c.fetchFollows(ctx, url.Values{"follower": {formatID(profileID)}})
}

func (c *Client) fetchFollows(ctx context.Context, q url.Values) ([]Follow, error) {
	var out followsEnvelope
	if err := c.api.Get(ctx, "profiles/follows/", q, &out); err != nil {
		return nil, err
	}
	return out.Follows, nil
}

// FetchReviews reads one page of reviews matching filter.
func (c *Client) FetchReviews(ctx context.Context, filter ReviewFilter) (ReviewPage, error) {
	var out ReviewPage
	if err := c.api.Get(ctx, "reviews/", filter.values(), &out); err != nil {
		return ReviewPage{}, err
	}
	return out, nil
}

// FetchRecentReviews reads one page of the recent reviews feed and computes
// the following page number.
func (c *Client) FetchRecentReviews(ctx context.Context, page int) (RecentReviewsPage, error) {
	if page < 1 {
		page = 1
	}
	q := url.Values{"page": {strconv.Itoa(page)}, "recent": {"true"}}
	var out RecentReviewsPage
	if err := c.api.Get(ctx, "reviews/", q, &out); err != nil {
		return RecentReviewsPage{}, err
	}
	out.NextPage = 0
	if page < out.NumPages {
		out.NextPage = page + 1
	}
	return out, nil
}

// FetchReview reads one review.
func (c *Client) FetchReview(ctx context.Context, id int64) (Review, error) {
	var out Review
	if err := c.api.Get(ctx, fmt.Sprintf("reviews/review/%d/", id), nil, &out); err != nil {
		return Review{}, err
	}
	return out, nil
}

// FetchReviewLikes lists the likes of a review.
func (c *Client) FetchReviewLikes(ctx context.Context, reviewID int64) ([]ReviewLike, error) {
	var out reviewLikesEnvelope
	if err := c.api.Get(ctx, "reviews/review-likes/", url.Values{"review": {formatID(reviewID)}}, &out); err != nil {
		return nil, err
	}
	return out.Likes, nil
}

// FetchReviewImages lists the images attached to a review.
func (c *Client) FetchReviewImages(ctx context.Context, reviewID int64) ([]DrinkImage, error) {
	var out imagesEnvelope
	if err := c.api.Get(ctx, "reviews/images/", url.Values{"review": {formatID(reviewID)}}, &out); err != nil {
		return nil, err
	}
	return out.Images, nil
}

// FetchReviewComments lists the comments on a review.
func (c *Client) FetchReviewComments(ctx context.Context, reviewID int64) ([]ReviewComment, error) {
	var out commentsEnvelope
	if err := c.api.Get(ctx, "reviews/comments/", url.Values{"review": {formatID(reviewID)}}, &out); err != nil {
		return nil, err
	}
	return out.Comments, nil
}

// FetchComment reads one comment.
func (c *Client) FetchComment(ctx context.Context, id int64) (ReviewComment, error) {
	var out ReviewComment
	if err := c.api.Get(ctx, fmt.Sprintf("reviews/comment/%d/", id), nil, &out); err != nil {
		return ReviewComment{}, err
	}
	return out, nil
}

// FetchCommentLikes lists the likes of a comment.
func (c *Client) FetchCommentLikes(ctx context.Context, commentID int64) ([]CommentLike, error) {
	var out commentLikesEnvelope
	if err := c.api.Get(ctx, "reviews/comment-likes/", url.Values{"comment": {formatID(commentID)}}, &out); err != nil {
		return nil, err
	}
	return out.Likes, nil
}
