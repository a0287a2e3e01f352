package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"academia-calsync/config"
	"academia-calsync/logger"

	"github.com/spf13/cobra"
)

var (
	configFile string
	cfg        *config.Config
)

var rootCmd = &cobra.Command{
	Use:           "calsync",
	Short:         "Turns the academic portal timetable and planner into an iCalendar feed",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		cfg, err = config.LoadConfig(configFile)
		if err != nil {
			return fmt.Errorf("error loading config: %w", err)
		}
		logger.Init(cfg)
		return cfg.Validate()
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configFile, "config", "config.json", "optional JSON config file, environment variables take precedence")
	rootCmd.AddCommand(generateCmd(), validateCmd(), serveCmd(), daemonCmd(), googleAuthCmd())
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := rootCmd.ExecuteContext(ctx)
	stop()
	if err != nil {
		logger.Log.Error(err)
		os.Exit(1)
	}
}
