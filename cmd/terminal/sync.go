package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/sjperalta/khata-api/internal/jobs"
	"github.com/sjperalta/khata-api/internal/replica"
	"github.com/sjperalta/khata-api/pkg/logger"
)

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Push queued sales and deletions, then pull the server state",
	Example: `  # One round
  khata-terminal sync

  # Keep syncing every SYNC_INTERVAL until interrupted
  khata-terminal sync --watch`,
	RunE: runSync,
}

var pullCmd = &cobra.Command{
	Use:   "pull",
	Short: "Refresh the local catalog, khatas and recent sales without pushing",
	RunE: func(cmd *cobra.Command, args []string) error {
		result, err := app.reconciler.Pull(cmd.Context())
		if err != nil {
			return err
		}
		fmt.Printf("pulled %d products, %d khatas, %d sales (%d queued sales already on server, %d new conflicts)\n",
			result.Products, result.Khatas, result.Sales, result.Adopted, result.Conflicts)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(syncCmd, pullCmd)
	syncCmd.Flags().Bool("watch", false, "Sync every SYNC_INTERVAL until interrupted")
}

func runSync(cmd *cobra.Command, args []string) error {
	watch, _ := cmd.Flags().GetBool("watch")
	if !watch {
		report, err := app.reconciler.Sync(cmd.Context())
		if report != nil {
			printReport(report)
		}
		return err
	}

	worker := jobs.NewWorker(1)
	worker.ScheduleEveryImmediate("terminal_sync", app.cfg.SyncInterval, func(ctx context.Context) error {
		report, err := app.reconciler.Sync(ctx)
		if report != nil {
			printReport(report)
		}
		// offline rounds are expected, the queue is kept for the next tick
		if err != nil {
			logger.Warn("sync round failed", "error", err)
		}
		return nil
	})
	logger.Info("watching", "interval", app.cfg.SyncInterval)

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	worker.Shutdown()
	return nil
}

func printReport(report *replica.SyncReport) {
	fmt.Printf("pushed %d, deleted %d, rejected %d, conflicts %d\n",
		report.Pushed, report.Deleted, report.Rejected, report.Conflicts)
	for _, msg := range report.Errors {
		fmt.Printf("  ! %s\n", msg)
	}
}
