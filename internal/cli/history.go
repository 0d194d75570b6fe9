package cli

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/vietddude/warmup/internal/core/domain"
	"github.com/vietddude/warmup/internal/infra/storage"
)

var historyLimit int

var historyCmd = &cobra.Command{
	Use:   "history [run_id]",
	Short: "Show finished runs, or one run in detail",
	Args:  cobra.MaximumNArgs(1),
	Run:   runHistory,
}

func init() {
	historyCmd.Flags().IntVar(&historyLimit, "limit", 20, "number of runs to show")
	rootCmd.AddCommand(historyCmd)
}

func runHistory(cmd *cobra.Command, args []string) {
	cfg := setup()
	ctx := context.Background()

	app := newApp(ctx, cfg)
	code := showHistory(ctx, app.Runs(), args, os.Stdout)

	if err := app.Stop(ctx); err != nil {
		slog.Warn("Error during shutdown", "error", err)
	}
	if code != 0 {
		os.Exit(code)
	}
}

// showHistory prints one run or the latest runs and returns the exit code.
func showHistory(ctx context.Context, runs storage.RunRepository, args []string, out io.Writer) int {
	if len(args) == 1 {
		rec, err := runs.Get(ctx, args[0])
		if err != nil {
			slog.Error("Failed to get run", "run_id", args[0], "error", err)
			return 1
		}
		printRun(out, rec)
		return 0
	}

	records, err := runs.List(ctx, historyLimit)
	if err != nil {
		slog.Error("Failed to list runs", "error", err)
		return 1
	}
	printRuns(out, records)
	return 0
}

func printRuns(out io.Writer, records []*domain.Record) {
	w := tabwriter.NewWriter(out, 0, 0, 3, ' ', tabwriter.Debug)
	_, _ = fmt.Fprintln(w, "RUN\tSTARTED\tSTATE\tTOTAL\tOK\tFAILED\tINIT\tDURATION")

	for _, r := range records {
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%d\t%d\t%t\t%s\n",
			r.ID,
			r.StartedAt.Format(time.RFC3339),
			r.State,
			r.Total,
			r.Succeeded,
			r.Failed,
			r.InitializationRan,
			r.FinishedAt.Sub(r.StartedAt).Round(time.Millisecond),
		)
	}
	_ = w.Flush()
}

func printRun(out io.Writer, r *domain.Record) {
	_, _ = fmt.Fprintf(out, "Run:         %s\n", r.ID)
	_, _ = fmt.Fprintf(out, "State:       %s (%s)\n", r.State, r.State.Description())
	_, _ = fmt.Fprintf(out, "Started:     %s\n", r.StartedAt.Format(time.RFC3339))
	_, _ = fmt.Fprintf(out, "Finished:    %s\n", r.FinishedAt.Format(time.RFC3339))
	_, _ = fmt.Fprintf(out, "Resources:   %d total, %d ok, %d failed\n", r.Total, r.Succeeded, r.Failed)
	_, _ = fmt.Fprintf(out, "Initialized: %t\n", r.InitializationRan)
	if r.Error != "" {
		_, _ = fmt.Fprintf(out, "Error:       %s\n", r.Error)
	}
	if r.InitError != "" {
		_, _ = fmt.Fprintf(out, "Init error:  %s\n", r.InitError)
	}
	if len(r.FailedResources) > 0 {
		_, _ = fmt.Fprintf(out, "Failed:      %s\n", strings.Join(r.FailedResources, ", "))
	}
}
