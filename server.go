package main

import (
	"context"
	"time"

	"academia-calsync/logger"
	"academia-calsync/site"

	"github.com/spf13/cobra"
)

const shutdownTimeout = 10 * time.Second

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Serve the subscription API and calendar feeds",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := newApp(ctx, cfg, true)
			if err != nil {
				return err
			}
			defer a.Close()

			server := site.NewServer(a.service, cfg.PublicBaseURL, logger.For("site"))
			if google := a.googleAuthorizer(); google != nil {
				server.WithGoogle(google)
			}

			// Keeps the feed cache warm when a refresh schedule is configured.
			if cfg.RefreshCron != "" {
				refresher := a.refreshScheduler()
				if err := refresher.Start(); err != nil {
					return err
				}
				defer refresher.Stop()
			}

			errc := make(chan error, 1)
			go func() { errc <- server.Start(cfg.HTTPPort) }()

			select {
			case err := <-errc:
				return err
			case <-ctx.Done():
				logger.Log.Info("Shutting down HTTP server...")
				shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
				defer cancel()
				return server.Shutdown(shutdownCtx)
			}
		},
	}
}
