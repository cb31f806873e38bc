package fizzgrid_test

import (
	"context"
	"testing"

	"github.com/illmade-knight/go-fizzgrid/pkg/fizzgrid"
	"github.com/illmade-knight/go-fizzgrid/pkg/transport"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAggregates(t *testing.T) {
	t.Run("Drink page combines its parts", func(t *testing.T) {
		// Arrange
		h := newHarness(t)

		// Act
		d, err := h.client.LoadDrink(waitCtx(t), 1)

		// Assert
		require.NoError(t, err)
		assert.Equal(t, "Fizz 1", d.Drink.ProductName)
		assert.Len(t, d.Images, 1)
		assert.Len(t, d.Reviews.Reviews, 1)
		assert.Empty(t, d.Favorites)
	})

	t.Run("Any failing part fails the aggregate", func(t *testing.T) {
		h := newHarness(t)
		h.api.setFailDrink(true)
		ctx := waitCtx(t)
		v := h.client.WatchDrink(ctx, 1)
		defer v.Close()

		_, err := v.Await(ctx)

		require.Error(t, err)
		assert.Equal(t, transport.DefaultErrorDetail, err.Error())
		assert.Error(t, v.Err())
		assert.False(t, v.IsLoading())
		_, ok := v.Data()
		assert.False(t, ok)
	})

	t.Run("Profile page", func(t *testing.T) {
		h := newHarness(t)

		p, err := h.client.LoadProfile(waitCtx(t), 8)

		require.NoError(t, err)
		assert.Equal(t, "user8", p.Profile.Username)
		assert.Empty(t, p.Profile.Email)
		assert.Empty(t, p.Followers)
	})

	t.Run("Review resolves its drink and author", func(t *testing.T) {
		h := newHarness(t)

		r, err := h.client.LoadReview(waitCtx(t), 3)

		require.NoError(t, err)
		assert.Equal(t, int64(3), r.Review.ID)
		assert.Equal(t, int64(1), r.Drink.ID)
		assert.Equal(t, "user8", r.Profile.Username)
		assert.Empty(t, r.Likes)
	})

	t.Run("Comment resolves its author", func(t *testing.T) {
		h := newHarness(t)
		ctx := waitCtx(t)
		v := h.client.WatchComment(ctx, 5)
		defer v.Close()

		c, err := v.Await(ctx)

		require.NoError(t, err)
		assert.Equal(t, "agreed", c.Comment.CommentText)
		assert.Equal(t, int64(8), c.Profile.ID)
		assert.Len(t, c.Likes, 1)
		assert.False(t, v.IsLoading())
		assert.False(t, v.IsRefetching())
	})

	t.Run("Favorite toggle refetch shows on the drink view", func(t *testing.T) {
		h := newHarness(t)
		h.login(t)
		s := settledSession(t, h)
		ctx := waitCtx(t)
		v := h.client.WatchDrink(ctx, 1)
		defer v.Close()
		_, err := v.Await(ctx)
		require.NoError(t, err)

		_, err = h.client.SetDrinkFavorite(1).MutateSync(context.Background(), false)
		require.NoError(t, err)

		d, err := v.Await(ctx)
		require.NoError(t, err)
		require.Len(t, d.Favorites, 1)
		id, _ := s.Viewer()
		assert.Equal(t, id, d.Favorites[0].ProfileID)
		assert.Contains(t, h.publisher.published(), fizzgrid.DrinkFavoritesKey(1).String())
	})
}
