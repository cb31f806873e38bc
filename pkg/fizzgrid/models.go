// Package fizzgrid is the client-side data layer for the fizzgrid drink review
// API: typed reads through the query cache, mutations with their cache
// effects, and the optimistic relation toggles (favorite, follow, like).
package fizzgrid

import "time"

// Profile is a user profile as the client sees it. Email is only known for
// the viewer.
type Profile struct {
	ID         int64  `json:"id"`
	ProfileImg string `json:"profile_img"`
	Username   string `json:"username"`
	Email      string `json:"email,omitempty"`
}

// Follow records that FollowerID follows FollowingID.
type Follow struct {
	ID          int64     `json:"id"`
	FollowingID int64     `json:"following_id"`
	FollowerID  int64     `json:"follower_id"`
	DateCreated time.Time `json:"date_created"`
}

// Drink is a catalogue entry.
type Drink struct {
	ID          int64  `json:"id"`
	ProductName string `json:"product_name"`
	BrandName   string `json:"brand_name"`
}

type DrinkFavorite struct {
	ID          int64     `json:"id"`
	ProfileID   int64     `json:"profile_id"`
	DrinkID     int64     `json:"drink_id"`
	DateCreated time.Time `json:"date_created"`
}

// DrinkImage is an image attached to a drink. Review images are served as
// DrinkImages too.
type DrinkImage struct {
	ID      int64  `json:"id"`
	Label   string `json:"label"`
	Image   string `json:"image"`
	DrinkID int64  `json:"drink_id"`
}

// Review is one rating of a drink by a profile.
type Review struct {
	ID          int64     `json:"id"`
	DateCreated time.Time `json:"date_created"`
	Rating      int       `json:"rating"`
	ReviewText  string    `json:"review_text"`
	ProfileID   int64     `json:"profile_id"`
	DrinkID     int64     `json:"drink_id"`
}

type ReviewLike struct {
	ID        int64 `json:"id"`
	ReviewID  int64 `json:"review_id"`
	ProfileID int64 `json:"profile_id"`
}

type ReviewComment struct {
	ID          int64     `json:"id"`
	DateCreated time.Time `json:"date_created"`
	CommentText string    `json:"comment_text"`
	ReviewID    int64     `json:"review_id"`
	ProfileID   int64     `json:"profile_id"`
}

type CommentLike struct {
	ID        int64 `json:"id"`
	CommentID int64 `json:"comment_id"`
	ProfileID int64 `json:"profile_id"`
}

// DrinkPage is one page of the drink catalogue.
type DrinkPage struct {
	Drinks   []Drink `json:"drinks"`
	NumPages int     `json:"num_pages"`
}

// ProfilePage is one page of the profile directory.
type ProfilePage struct {
	Profiles []Profile `json:"profiles"`
	NumPages int       `json:"num_pages"`
}

// ReviewPage is a list of reviews. Unpaginated requests report one page.
type ReviewPage struct {
	Reviews  []Review `json:"reviews"`
	NumPages int      `json:"num_pages"`
}

// RecentReviewsPage is one page of the recent reviews feed. NextPage is zero
// on the last page.
type RecentReviewsPage struct {
	Reviews  []Review `json:"reviews"`
	NumPages int      `json:"num_pages"`
	NextPage int      `json:"next_page,omitempty"`
}

// HasNextPage reports whether another page follows this one.
func (p RecentReviewsPage) HasNextPage() bool {
	return p.NextPage > 0
}

// profileEnvelope is the wire shape of a profile: the profile row and its
// auth user side by side.
type profileEnvelope struct {
	Profile struct {
		ID         int64  `json:"id"`
		ProfileImg string `json:"profile_img"`
	} `json:"profile"`
	User struct {
		Username string `json:"username"`
		Email    string `json:"email"`
	} `json:"user"`
}

func (e profileEnvelope) toProfile(withEmail bool) Profile {
	p := Profile{
		ID:         e.Profile.ID,
		ProfileImg: e.Profile.ProfileImg,
		Username:   e.User.Username,
	}
	if withEmail {
		p.Email = e.User.Email
	}
	return p
}

type profilePageEnvelope struct {
	Profiles []profileEnvelope `json:"profiles"`
	NumPages int               `json:"num_pages"`
}

type favoritesEnvelope struct {
	Favorites []DrinkFavorite `json:"favorites"`
}

type imagesEnvelope struct {
	Images []DrinkImage `json:"images"`
}

type followsEnvelope struct {
	Follows []Follow `json:"follows"`
}

type reviewLikesEnvelope struct {
	Likes []ReviewLike `json:"likes"`
}

type commentLikesEnvelope struct {
	Likes []CommentLike `json:"likes"`
}

type commentsEnvelope struct {
	Comments []ReviewComment `json:"comments"`
}

type detailEnvelope struct {
	Detail string `json:"detail"`
}
