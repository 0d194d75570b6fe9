package cli

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/vietddude/warmup/internal/core/domain"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the pipeline once and wait for it to finish",
	Long: `Run loads the manifest, every resource and initialization once, in the
foreground. The exit code is 0 when the run completed, even with failed
resources, and 1 when it ended in any other state.`,
	Run: runOnce,
}

func init() {
	rootCmd.AddCommand(runCmd)
}

func runOnce(cmd *cobra.Command, args []string) {
	cfg := setup()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	app := newApp(ctx, cfg)
	summary := app.Orchestrator().Run(ctx)

	stopCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := app.Stop(stopCtx); err != nil {
		slog.Warn("Error during shutdown", "error", err)
	}

	os.Exit(exitCode(summary))
}

func exitCode(summary *domain.RunSummary) int {
	if summary.State == domain.RunStateCompleted {
		return 0
	}
	return 1
}
