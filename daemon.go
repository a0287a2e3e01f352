package main

import (
	"fmt"

	"academia-calsync/googlecalendar"
	"academia-calsync/logger"
	"academia-calsync/scheduler"
	"academia-calsync/uploader"

	"github.com/spf13/cobra"
)

// refreshScheduler wires the optional GitHub and Google sinks into a scheduler.
// The cron spec is only checked by Start, so RunOnce works without one.
func (a *app) refreshScheduler() *scheduler.RefreshScheduler {
	var publisher scheduler.Publisher
	if a.cfg.GithubEnabled() {
		publisher = uploader.NewGitHubUploader("", a.cfg.GithubToken, a.cfg.GithubRepo, a.cfg.GithubPath, logger.For("uploader"))
		logger.Log.Infof("Publishing feeds to GitHub repository %s", a.cfg.GithubRepo)
	}

	var mirror scheduler.Mirror
	if google := a.googleAuthorizer(); google != nil {
		if !google.Authorized() {
			logger.Log.Warn("Google Calendar is configured but not authorized yet, run google-auth first")
		}
		mirror = googlecalendar.NewMirror(google, a.location, a.cfg.UIDDomain, logger.For("google"))
	}

	return scheduler.NewRefreshScheduler(a.service, publisher, mirror, a.cfg.RefreshCron, a.location, logger.For("scheduler"))
}

func daemonCmd() *cobra.Command {
	var once bool

	cmd := &cobra.Command{
		Use:   "daemon",
		Short: "Regenerate every stored subscription on the REFRESH_CRON schedule",
		RunE: func(cmd *cobra.Command, args []string) error {
			if !once && cfg.RefreshCron == "" {
				return fmt.Errorf("REFRESH_CRON is required unless --once is set")
			}
			ctx := cmd.Context()
			a, err := newApp(ctx, cfg, true)
			if err != nil {
				return err
			}
			defer a.Close()

			refresher := a.refreshScheduler()
			if once {
				report := refresher.RunOnce(ctx)
				logger.Log.Infof("Refreshed %d of %d subscriptions, %d failed", report.Refreshed, report.Users, report.Failed)
				if report.Failed > 0 {
					return fmt.Errorf("%d subscriptions failed to refresh", report.Failed)
				}
				return nil
			}

			if err := refresher.Start(); err != nil {
				return err
			}
			<-ctx.Done()
			refresher.Stop()
			return nil
		},
	}
	cmd.Flags().BoolVar(&once, "once", false, "refresh every subscription once and exit")
	return cmd
}
