package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/ternarybob/autobond/internal/app"
	"github.com/ternarybob/autobond/internal/common"
	"github.com/ternarybob/autobond/internal/services/scheduler"
)

var scheduleCmd = &cobra.Command{
	Use:   "schedule",
	Short: "Run the subscription on the configured cron schedule",
	Long:  `Keeps the browser open and runs every account at each [schedule] cron activation until interrupted.`,
	RunE:  runSchedule,
}

var scheduleNow bool

func init() {
	scheduleCmd.Flags().BoolVar(&scheduleNow, "now", false, "Also run once immediately")
}

func runSchedule(cmd *cobra.Command, args []string) error {
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

	task := func(ctx context.Context) {
		summary := application.RunOnce(ctx)
		logger.Info().Str("run_id", summary.RunID).Int("failed", summary.Failures()).Msg("Scheduled run complete")
	}

	sched, err := scheduler.NewService(ctx, config.Schedule.Cron, task, logger)
	if err != nil {
		return err
	}

	if scheduleNow {
		task(ctx)
	}

	sched.Start()
	logger.Info().Str("cron", config.Schedule.Cron).Msg("Waiting for schedule - Press Ctrl+C to stop")

	<-ctx.Done()
	logger.Info().Msg("Interrupt signal received")
	sched.Stop()
	return nil
}
