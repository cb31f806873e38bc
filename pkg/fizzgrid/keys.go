package fizzgrid

import "github.com/illmade-knight/go-fizzgrid/pkg/cache"

// PageQuery is the paging token of list keys such as ["drinks", {page, search}].
type PageQuery struct {
	Page   int    `json:"page"`
	Search string `json:"search"`
}

// ActiveProfileKey addresses the authenticated viewer.
var ActiveProfileKey = cache.NewKey("active-profile")

// DrinkKey addresses one drink and prefixes its lists.
func DrinkKey(id int64) cache.Key { return cache.NewKey("drink", id) }

// DrinkFavoritesKey addresses the profiles that favorited a drink.
func DrinkFavoritesKey(id int64) cache.Key { return DrinkKey(id).Append("favorites") }

// DrinkImagesKey addresses the review images posted for a drink.
func DrinkImagesKey(id int64) cache.Key { return DrinkKey(id).Append("images") }

// DrinkReviewsKey addresses the reviews of a drink.
func DrinkReviewsKey(id int64) cache.Key { return DrinkKey(id).Append("reviews") }

// DrinksKey addresses one page of the drinks listing for a search.
func DrinksKey(page int, search string) cache.Key {
	return cache.NewKey("drinks", PageQuery{Page: page, Search: search})
}

// ProfileKey addresses one profile and prefixes its lists.
func ProfileKey(id int64) cache.Key { return cache.NewKey("profile", id) }

// ProfileFollowersKey is also the key the follow toggle refetches, so the
// followers list and the follow button share one entry.
func ProfileFollowersKey(id int64) cache.Key { return ProfileKey(id).Append("followers") }

// ProfileFollowingKey addresses the profiles id follows.
func ProfileFollowingKey(id int64) cache.Key { return ProfileKey(id).Append("following") }

// ProfileFavoritesKey addresses the drinks a profile favorited.
func ProfileFavoritesKey(id int64) cache.Key { return ProfileKey(id).Append("favorites") }

// ProfileReviewsKey addresses the reviews a profile wrote.
func ProfileReviewsKey(id int64) cache.Key { return ProfileKey(id).Append("reviews") }

// ProfilesKey addresses one page of the profile search.
func ProfilesKey(page int, search string) cache.Key {
	return cache.NewKey("profiles", PageQuery{Page: page, Search: search})
}

// ReviewKey addresses one review and prefixes its lists.
func ReviewKey(id int64) cache.Key { return cache.NewKey("review", id) }

// ReviewLikesKey addresses the likes of a review. The like toggle reads it.
func ReviewLikesKey(id int64) cache.Key { return ReviewKey(id).Append("likes") }

// ReviewImagesKey addresses the images attached to a review.
func ReviewImagesKey(id int64) cache.Key { return ReviewKey(id).Append("images") }

// ReviewCommentsKey addresses the comments on a review.
func ReviewCommentsKey(id int64) cache.Key { return ReviewKey(id).Append("comments") }

// RecentReviewsKey addresses one page of the recent reviews feed. All pages
// share the ["recent-reviews"] prefix.
func RecentReviewsKey(page int) cache.Key { return cache.NewKey("recent-reviews", page) }

// CommentKey addresses one comment and prefixes its likes.
func CommentKey(id int64) cache.Key { return cache.NewKey("comment", id) }

// CommentLikesKey addresses the likes of a comment. The like toggle reads it.
func CommentLikesKey(id int64) cache.Key { return CommentKey(id).Append("likes") }
