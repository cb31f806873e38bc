package main

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/illmade-knight/go-fizzgrid/pkg/config"
	"github.com/illmade-knight/go-fizzgrid/pkg/fizzgrid"
	"github.com/illmade-knight/go-fizzgrid/pkg/toggle"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

// relationToggle is the part of *toggle.Relation the command drives.
type relationToggle interface {
	Value() bool
	ServerValue() bool
	Count() int
	IsPending() bool
	Click()
	Close()
}

func toggleLoginPrompter(logger zerolog.Logger) toggle.LoginPrompter {
	return toggle.LoginPrompterFunc(func() {
		logger.Warn().Msg("Not logged in: set api.session_cookie and api.csrf_token to act as a user.")
	})
}

func toggleCmd(configPath *string) *cobra.Command {
	var (
		timeout       time.Duration
		requireViewer bool
	)

	cmd := &cobra.Command{
		Use:       "toggle <favorite|follow|review-like|comment-like> <id>",
		Short:     "Flip one relation for the configured session",
		Args:      cobra.ExactArgs(2),
		ValidArgs: []string{"favorite", "follow", "review-like", "comment-like"},
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := strconv.ParseInt(args[1], 10, 64)
			if err != nil {
				return fmt.Errorf("invalid id %q: %w", args[1], err)
			}
			cfg, err := config.Load(*configPath, newLogger(config.Default()))
			if err != nil {
				return err
			}
			logger := newLogger(cfg)

			ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
			defer cancel()

			a, err := newApp(ctx, cfg, logger)
			if err != nil {
				return err
			}
			defer a.close(context.Background())

			session := a.client.Session(ctx)
			defer session.Close()
			if _, _, err := session.Await(ctx); err != nil {
				return err
			}

			var opts []fizzgrid.ToggleOption
			if requireViewer {
				opts = append(opts, fizzgrid.WithRequireViewer())
			}
			rel, err := newToggle(ctx, a.client, session, args[0], id, opts)
			if err != nil {
				return err
			}
			defer rel.Close()

			if err := waitSettled(ctx, rel); err != nil {
				return err
			}
			before := rel.Value()
			rel.Click()
			if err := waitSettled(ctx, rel); err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "%s %d: %t -> %t (count %d)\n", args[0], id, before, rel.ServerValue(), rel.Count())
			return nil
		},
	}

	cmd.Flags().DurationVar(&timeout, "timeout", 30*time.Second, "overall deadline")
	cmd.Flags().BoolVar(&requireViewer, "require-login", false, "do not send the mutation without a session")
	return cmd
}

func newToggle(ctx context.Context, c *fizzgrid.Client, s *fizzgrid.Session, kind string, id int64, opts []fizzgrid.ToggleOption) (relationToggle, error) {
	switch kind {
	case "favorite":
		return c.NewFavoriteToggle(ctx, s, id, opts...)
	case "follow":
		return c.NewFollowToggle(ctx, s, id, opts...)
	case "review-like":
		return c.NewReviewLikeToggle(ctx, s, id, opts...)
	case "comment-like":
		return c.NewCommentLikeToggle(ctx, s, id, opts...)
	default:
		return nil, fmt.Errorf("unknown relation %q", kind)
	}
}

// waitSettled polls until nothing is in flight for the toggle.
func waitSettled(ctx context.Context, rel relationToggle) error {
	ticker := time.NewTicker(20 * time.Millisecond)
	defer ticker.Stop()
	for rel.IsPending() {
		select {
		case <-ctx.Done():
			return errors.New("timed out waiting for the toggle to settle")
		case <-ticker.C:
		}
	}
	return nil
}
