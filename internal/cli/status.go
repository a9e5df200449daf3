package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show request counts, the feed position and queue depth",
	Run:   runStatus,
}

func init() {
	rootCmd.AddCommand(statusCmd)
}

func runStatus(cmd *cobra.Command, args []string) {
	cfg := loadConfig()

	ctx := context.Background()
	b := openBackends(ctx, cfg)
	defer b.Close()

	stats, err := b.Store.Stats(ctx)
	if err != nil {
		slog.Error("Failed to query records", "error", err)
		os.Exit(1)
	}
	cursor, err := b.Store.LatestConfirmedCursor(ctx)
	if err != nil {
		slog.Error("Failed to query cursor", "error", err)
		os.Exit(1)
	}
	qstats, err := b.Queue.Stats(ctx)
	if err != nil {
		slog.Error("Failed to query queue", "error", err)
		os.Exit(1)
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 3, ' ', tabwriter.Debug)
	_, _ = fmt.Fprintln(w, "RECORDS\tPROCESSED\tPENDING\tHEIGHT\tCURSOR")
	height, pos := "-", "-"
	if cursor != nil {
		height = fmt.Sprint(cursor.Height)
		pos = cursor.Cursor
	}
	_, _ = fmt.Fprintf(w, "%d\t%d\t%d\t%s\t%s\n", stats.Total, stats.Processed, stats.Pending, height, pos)
	_ = w.Flush()

	w = tabwriter.NewWriter(os.Stdout, 0, 0, 3, ' ', tabwriter.Debug)
	_, _ = fmt.Fprintln(w, "QUEUE\tWAITING\tACTIVE\tFAILED")
	_, _ = fmt.Fprintf(w, "%s\t%d\t%d\t%d\n", cfg.Worker.QueueName, qstats.Waiting, qstats.Active, qstats.Failed)
	_ = w.Flush()
}
