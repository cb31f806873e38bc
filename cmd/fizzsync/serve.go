package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/illmade-knight/go-fizzgrid/pkg/config"
	"github.com/illmade-knight/go-fizzgrid/pkg/microservice"
	"github.com/spf13/cobra"
)

func serveCmd(configPath *string) *cobra.Command {
	var (
		drinks   []int64
		profiles []int64
		reviews  []int64
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Keep a shared cache warm and in sync with other processes",
		Long: `Serve subscribes to the given drink, profile and review pages, keeps them
fresh as invalidations arrive over Pub/Sub, and exposes /healthz, /metrics
and /debug/cache on the configured HTTP port.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(*configPath, newLogger(config.Default()))
			if err != nil {
				return err
			}
			logger := newLogger(cfg)

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			a, err := newApp(ctx, cfg, logger)
			if err != nil {
				return err
			}
			defer func() {
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
				defer cancel()
				a.close(shutdownCtx)
			}()

			for _, id := range drinks {
				v := a.client.WatchDrink(ctx, id)
				defer v.Close()
			}
			for _, id := range profiles {
				v := a.client.WatchProfile(ctx, id)
				defer v.Close()
			}
			for _, id := range reviews {
				v := a.client.WatchReview(ctx, id)
				defer v.Close()
			}

			if a.listener != nil {
				if err := a.listener.Start(ctx); err != nil {
					return err
				}
			}

			server := microservice.NewBaseServer(logger, cfg.HTTPPort, a.registry)
			microservice.MountCacheDebug(server.Router(), a.cache, logger)
			if err := server.Start(); err != nil {
				return err
			}
			logger.Info().
				Int("drinks", len(drinks)).
				Int("profiles", len(profiles)).
				Int("reviews", len(reviews)).
				Msg("fizzsync serving.")

			<-ctx.Done()
			logger.Info().Msg("Shutdown signal received.")

			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			return server.Shutdown(shutdownCtx)
		},
	}

	cmd.Flags().Int64SliceVar(&drinks, "drink", nil, "drink ids to keep warm")
	cmd.Flags().Int64SliceVar(&profiles, "profile", nil, "profile ids to keep warm")
	cmd.Flags().Int64SliceVar(&reviews, "review", nil, "review ids to keep warm")
	return cmd
}
