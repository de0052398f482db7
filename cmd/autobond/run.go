package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/ternarybob/autobond/internal/app"
	"github.com/ternarybob/autobond/internal/common"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the subscription once for every configured account",
	Long:  `Processes each account in turn and notifies the outcome. Per-account failures do not change the exit code.`,
	RunE:  runOnce,
}

func runOnce(cmd *cobra.Command, args []string) error {
	if err := loadConfig(cmd); err != nil {
		return err
	}
	common.PrintBanner(config, logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	application, err := app.New(ctx, config, logger)
	if err != nil {
		return err
	}
	defer application.Close()

	summary := application.RunOnce(ctx)
	logger.Info().
		Str("run_id", summary.RunID).
		Int("users", len(summary.Records)).
		Int("failed", summary.Failures()).
		Msg("Run complete")
	return nil
}
