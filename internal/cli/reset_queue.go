package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"
)

var resetQueueCmd = &cobra.Command{
	Use:   "reset-queue",
	Short: "Remove every job from the fulfillment queue",
	Long: `Remove every waiting, active and dead-lettered job from the fulfillment queue.
Stored requests are kept; run "requeue" to enqueue the unanswered ones again.`,
	Run: runResetQueue,
}

func init() {
	rootCmd.AddCommand(resetQueueCmd)
}

func runResetQueue(cmd *cobra.Command, args []string) {
	cfg := loadConfig()

	ctx := context.Background()
	b := openBackends(ctx, cfg)
	defer b.Close()

	if err := b.Queue.Obliterate(ctx); err != nil {
		slog.Error("Failed to reset queue", "error", err)
		os.Exit(1)
	}

	fmt.Printf("Successfully reset queue %s\n", cfg.Worker.QueueName)
}
