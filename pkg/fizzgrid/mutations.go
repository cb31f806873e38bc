package fizzgrid

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/illmade-knight/go-fizzgrid/pkg/activity"
	"github.com/illmade-knight/go-fizzgrid/pkg/mutation"
	"github.com/illmade-knight/go-fizzgrid/pkg/transport"
)

// ConfirmationRequiredDetail is shown next to the confirmation box when an
// account deletion is submitted unconfirmed.
const ConfirmationRequiredDetail = "Check confirmation box to continue"

// ErrConfirmationRequired is returned by DeleteAccount, before any request is
// sent, when the caller has not confirmed the deletion.
var ErrConfirmationRequired = errors.New("account deletion not confirmed")

// ErrorDetail returns the message to display for a failed mutation.
func ErrorDetail(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrConfirmationRequired):
		return ConfirmationRequiredDetail
	default:
		return err.Error()
	}
}

// Upload is a file attached to a multipart mutation.
type Upload struct {
	Filename string
	Content  []byte
}

func addUpload(f *transport.Form, field string, u *Upload) {
	if u == nil || len(u.Content) == 0 {
		return
	}
	f.AddFile(field, u.Filename, u.Content)
}

// PostReviewArgs is the review form. Image is optional.
type PostReviewArgs struct {
	DrinkID    int64
	Rating     int
	ReviewText string
	Image      *Upload
}

// PostCommentArgs is a comment on ReviewID.
type PostCommentArgs struct {
	ReviewID    int64
	CommentText string
}

// LoginArgs are the login credentials.
type LoginArgs struct {
	Username string
	Password string
}

// SignUpArgs is the registration form. Image becomes the profile picture.
type SignUpArgs struct {
	Email    string
	Username string
	Password string
	Image    *Upload
}

// UpdateProfileArgs carries the fields to change. Empty fields are left out
// of the request.
type UpdateProfileArgs struct {
	Email       string
	Username    string
	Password    string
	NewPassword string
	Image       *Upload
}

// DeleteAccountArgs must carry Confirmation, or DeleteAccount fails with
// ErrConfirmationRequired.
type DeleteAccountArgs struct {
	Confirmation bool
	Password     string
}

// ReportIssueArgs is a bug report. Email is optional for anonymous reports.
type ReportIssueArgs struct {
	Summary string
	Details string
	Email   string
}

// RequestDrinkArgs asks for a drink to be added to the catalogue.
type RequestDrinkArgs struct {
	ProductName string
	BrandName   string
	Image       *Upload
	Email       string
}

// observe records the outcome of every call of m.
func observe[A any, R any](c *Client, m *mutation.Mutation[A, R], target func(A) int64) *mutation.Mutation[A, R] {
	name := m.Name()
	return m.OnSettled(func(arg A, _ R, err error) {
		ev := activity.NewEvent(activity.KindMutation, name)
		if target != nil {
			ev.Target = target(arg)
		}
		ev.SetOutcome(err)
		if err != nil {
			ev.Error = ErrorDetail(err)
		}
		c.record(ev)
	})
}

// PostReview creates a review and refetches the drink's and the author's
// review lists.
func (c *Client) PostReview() *mutation.Mutation[PostReviewArgs, Review] {
	m := mutation.New("post-review", func(ctx context.Context, args PostReviewArgs) (Review, error) {
		form := transport.NewForm().
			Set("drink_id", formatID(args.DrinkID)).
			Set("rating", strconv.Itoa(args.Rating)).
			Set("review_text", args.ReviewText)
		addUpload(form, "image", args.Image)

		var out Review
		if err := c.api.Send(ctx, http.MethodPost, "reviews/review/", form, &out); err != nil {
			return Review{}, err
		}
		return out, nil
	}, c.logger)
	m.OnSuccess(func(_ PostReviewArgs, r Review) {
		c.refetch(DrinkReviewsKey(r.DrinkID))
		c.refetch(ProfileReviewsKey(r.ProfileID))
	})
	return observe(c, m, func(a PostReviewArgs) int64 { return a.DrinkID })
}

// DeleteReview deletes a review by id, refetches the lists it appeared in
// and invalidates the review itself.
func (c *Client) DeleteReview() *mutation.Mutation[int64, Review] {
	m := mutation.New("delete-review", func(ctx context.Context, id int64) (Review, error) {
		var out Review
		if err := c.api.Send(ctx, http.MethodDelete, fmt.Sprintf("reviews/review/%d/", id), nil, &out); err != nil {
			return Review{}, err
		}
		return out, nil
	}, c.logger)
	m.OnSuccess(func(id int64, r Review) {
		c.refetch(DrinkReviewsKey(r.DrinkID))
		c.refetch(ProfileReviewsKey(r.ProfileID))
		c.invalidatePrefix(ReviewKey(id))
	})
	return observe(c, m, func(id int64) int64 { return id })
}

// PostComment comments on a review and refetches its comments.
func (c *Client) PostComment() *mutation.Mutation[PostCommentArgs, ReviewComment] {
	m := mutation.New("post-comment", func(ctx context.Context, args PostCommentArgs) (ReviewComment, error) {
		form := transport.NewForm().
			Set("comment_text", args.CommentText).
			Set("review_id", formatID(args.ReviewID))

		var out ReviewComment
		if err := c.api.Send(ctx, http.MethodPost, "reviews/comment/", form, &out); err != nil {
			return ReviewComment{}, err
		}
		return out, nil
	}, c.logger)
	m.OnSuccess(func(_ PostCommentArgs, rc ReviewComment) {
		c.refetch(ReviewCommentsKey(rc.ReviewID))
	})
	return observe(c, m, func(a PostCommentArgs) int64 { return a.ReviewID })
}

// DeleteComment deletes a comment by id and refetches its review's comments.
func (c *Client) DeleteComment() *mutation.Mutation[int64, ReviewComment] {
	m := mutation.New("delete-comment", func(ctx context.Context, id int64) (ReviewComment, error) {
		var out ReviewComment
		if err := c.api.Send(ctx, http.MethodDelete, fmt.Sprintf("reviews/comment/%d/", id), nil, &out); err != nil {
			return ReviewComment{}, err
		}
		return out, nil
	}, c.logger)
	m.OnSuccess(func(_ int64, rc ReviewComment) {
		c.refetch(ReviewCommentsKey(rc.ReviewID))
	})
	return observe(c, m, func(id int64) int64 { return id })
}

// Login authenticates the session and writes the viewer into the cache.
func (c *Client) Login() *mutation.Mutation[LoginArgs, Profile] {
	m := mutation.New("login", func(ctx context.Context, args LoginArgs) (Profile, error) {
		form := transport.NewForm().
			Set("username", args.Username).
			Set("password", args.Password)

		var out profileEnvelope
		if err := c.api.Send(ctx, http.MethodPost, "profiles/login/", form, &out); err != nil {
			return Profile{}, err
		}
		return out.toProfile(true), nil
	}, c.logger)
	m.OnSuccess(func(_ LoginArgs, p Profile) {
		c.cache.Write(ActiveProfileKey, p)
	})
	return observe(c, m, nil)
}

// Logout ends the session and forgets the viewer.
func (c *Client) Logout() *mutation.Mutation[struct{}, json.RawMessage] {
	m := mutation.New("logout", func(ctx context.Context, _ struct{}) (json.RawMessage, error) {
		var out json.RawMessage
		if err := c.api.Send(ctx, http.MethodPost, "profiles/logout/", nil, &out); err != nil {
			return nil, err
		}
		return out, nil
	}, c.logger)
	m.OnSuccess(func(struct{}, json.RawMessage) {
		c.cache.Remove(ActiveProfileKey)
	})
	return observe(c, m, nil)
}

// SignUp creates an account; the new profile becomes the viewer.
func (c *Client) SignUp() *mutation.Mutation[SignUpArgs, Profile] {
	m := mutation.New("sign-up", func(ctx context.Context, args SignUpArgs) (Profile, error) {
		form := transport.NewForm().
			Set("email", args.Email).
			Set("username", args.Username).
			Set("password", args.Password)
		addUpload(form, "image", args.Image)

		var out profileEnvelope
		if err := c.api.Send(ctx, http.MethodPost, "profiles/profile/", form, &out); err != nil {
			return Profile{}, err
		}
		return out.toProfile(true), nil
	}, c.logger)
	m.OnSuccess(func(_ SignUpArgs, p Profile) {
		c.cache.Write(ActiveProfileKey, p)
	})
	return observe(c, m, nil)
}

// UpdateProfile changes the viewer's account and refetches the viewer and
// their public profile.
func (c *Client) UpdateProfile() *mutation.Mutation[UpdateProfileArgs, Profile] {
	m := mutation.New("update-profile", func(ctx context.Context, args UpdateProfileArgs) (Profile, error) {
		form := transport.NewForm().
			SetIfNotEmpty("email", args.Email).
			SetIfNotEmpty("username", args.Username).
			SetIfNotEmpty("password", args.Password).
			SetIfNotEmpty("new_password", args.NewPassword)
		addUpload(form, "image", args.Image)

		var out profileEnvelope
		if err := c.api.Send(ctx, http.MethodPut, "profiles/profile/", form, &out); err != nil {
			return Profile{}, err
		}
		return out.toProfile(true), nil
	}, c.logger)
	m.OnSuccess(func(_ UpdateProfileArgs, p Profile) {
		c.cache.Invalidate(ActiveProfileKey, true)
		c.refetch(ProfileKey(p.ID))
	})
	return observe(c, m, nil)
}

// DeleteAccount deletes the viewer's account after explicit confirmation.
func (c *Client) DeleteAccount() *mutation.Mutation[DeleteAccountArgs, json.RawMessage] {
	m := mutation.New("delete-account", func(ctx context.Context, args DeleteAccountArgs) (json.RawMessage, error) {
		if !args.Confirmation {
			return nil, ErrConfirmationRequired
		}
		form := transport.NewForm().Set("password", args.Password)

		var out json.RawMessage
		if err := c.api.Send(ctx, http.MethodDelete, "profiles/profile/", form, &out); err != nil {
			return nil, err
		}
		return out, nil
	}, c.logger)
	m.OnSuccess(func(DeleteAccountArgs, json.RawMessage) {
		c.cache.Remove(ActiveProfileKey)
	})
	return observe(c, m, nil)
}

// ReportIssue files an issue report and returns the server's acknowledgement.
func (c *Client) ReportIssue() *mutation.Mutation[ReportIssueArgs, string] {
	m := mutation.New("report-issue", func(ctx context.Context, args ReportIssueArgs) (string, error) {
		form := transport.NewForm().
			Set("summary", args.Summary).
			Set("details", args.Details).
			SetIfNotEmpty("email", args.Email)

		var out detailEnvelope
		if err := c.api.Send(ctx, http.MethodPost, "issues/report-issue/", form, &out); err != nil {
			return "", err
		}
		return out.Detail, nil
	}, c.logger)
	return observe(c, m, nil)
}

// RequestDrink asks for a drink to be added to the catalogue.
func (c *Client) RequestDrink() *mutation.Mutation[RequestDrinkArgs, string] {
	m := mutation.New("request-drink", func(ctx context.Context, args RequestDrinkArgs) (string, error) {
		form := transport.NewForm().
			Set("product_name", args.ProductName).
			Set("brand_name", args.BrandName).
			SetIfNotEmpty("email", args.Email)
		addUpload(form, "image", args.Image)

		var out detailEnvelope
		if err := c.api.Send(ctx, http.MethodPost, "issues/request-drink/", form, &out); err != nil {
			return "", err
		}
		return out.Detail, nil
	}, c.logger)
	return observe(c, m, nil)
}

// toggleMethod picks the request method from the relation's current value:
// an existing relation is deleted, a missing one created.
func toggleMethod(current bool) string {
	if current {
		return http.MethodDelete
	}
	return http.MethodPost
}

func toggleDirection(current bool) string {
	if current {
		return activity.DirectionRemove
	}
	return activity.DirectionCreate
}

// setRelation builds the mutation behind one relation toggle. onSuccess
// refetches the lists the relation appears in.
func setRelation[R any](c *Client, name, path string, target int64, onSuccess func(R)) *mutation.Mutation[bool, R] {
	m := mutation.New(name, func(ctx context.Context, current bool) (R, error) {
		var out R
		if err := c.api.Send(ctx, toggleMethod(current), path, nil, &out); err != nil {
			var zero R
			return zero, err
		}
		return out, nil
	}, c.logger)
	m.OnSuccess(func(_ bool, r R) { onSuccess(r) })
	m.OnSettled(func(current bool, _ R, err error) {
		ev := activity.NewEvent(activity.KindMutation, name)
		ev.Target = target
		ev.Current = current
		ev.Direction = toggleDirection(current)
		ev.SetOutcome(err)
		c.record(ev)
	})
	return m
}

// SetDrinkFavorite favorites (current=false) or unfavorites (current=true) a
// drink for the viewer.
func (c *Client) SetDrinkFavorite(drinkID int64) *mutation.Mutation[bool, DrinkFavorite] {
	return setRelation(c, "favorite", fmt.Sprintf("drinks/drink/%d/favorite/", drinkID), drinkID, func(f DrinkFavorite) {
		c.refetch(DrinkFavoritesKey(f.DrinkID))
		c.refetch(ProfileFavoritesKey(f.ProfileID))
	})
}

// SetFollow follows or unfollows a profile and refetches its followers.
func (c *Client) SetFollow(profileID int64) *mutation.Mutation[bool, Follow] {
	return setRelation(c, "follow", fmt.Sprintf("profiles/profile/%d/follow/", profileID), profileID, func(f Follow) {
		c.refetch(ProfileFollowersKey(f.FollowingID))
		c.refetch(ProfileFollowingKey(f.FollowerID))
	})
}

// SetReviewLike likes or unlikes a review and refetches its likes.
func (c *Client) SetReviewLike(reviewID int64) *mutation.Mutation[bool, ReviewLike] {
	return setRelation(c, "review-like", fmt.Sprintf("reviews/review/%d/like/", reviewID), reviewID, func(l ReviewLike) {
		c.refetch(ReviewLikesKey(l.ReviewID))
	})
}

// SetCommentLike likes or unlikes a comment and refetches its likes.
func (c *Client) SetCommentLike(commentID int64) *mutation.Mutation[bool, CommentLike] {
	return setRelation(c, "comment-like", fmt.Sprintf("reviews/comment/%d/like/", commentID), commentID, func(l CommentLike) {
		c.refetch(CommentLikesKey(l.CommentID))
	})
}
