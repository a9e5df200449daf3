package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/Memetic-Block/wuzzy-tx-oracle/internal/oracle/poller"
)

var requeueLimit int

var requeueCmd = &cobra.Command{
	Use:   "requeue",
	Short: "Enqueue a job for every stored request that has no reply yet",
	Run:   runRequeue,
}

func init() {
	requeueCmd.Flags().IntVar(&requeueLimit, "limit", 0, "maximum records to requeue (0 = store default)")
	rootCmd.AddCommand(requeueCmd)
}

func runRequeue(cmd *cobra.Command, args []string) {
	cfg := loadConfig()

	ctx := context.Background()
	b := openBackends(ctx, cfg)
	defer b.Close()

	added, err := poller.Requeue(ctx, b.Store, b.Queue, requeueLimit)
	if err != nil {
		slog.Error("Failed to requeue", "error", err, "added", added)
		os.Exit(1)
	}

	fmt.Printf("Requeued %d pending requests on %s\n", added, cfg.Worker.QueueName)
}
