package poller

import (
	"context"
	"fmt"

	"github.com/Memetic-Block/wuzzy-tx-oracle/internal/core/domain"
)

// PendingLister lists records still awaiting a reply.
type PendingLister interface {
	ListUnprocessed(ctx context.Context, limit int) ([]*domain.RequestRecord, error)
}

// Requeue enqueues a job for every unprocessed record with a known action.
// Records that already have a queued job are left alone. It returns the
// number of jobs added.
func Requeue(ctx context.Context, store PendingLister, queue Enqueuer, limit int) (int, error) {
	pending, err := store.ListUnprocessed(ctx, limit)
	if err != nil {
		return 0, fmt.Errorf("list unprocessed: %w", err)
	}

	added := 0
	for _, rec := range pending {
		if !rec.Action().Known() {
			continue
		}
		ok, err := queue.Enqueue(ctx, domain.NewFulfillmentJob(rec), 0)
		if err != nil {
			return added, fmt.Errorf("enqueue %s: %w", rec.TransactionID, err)
		}
		if ok {
			added++
		}
	}
	return added, nil
}
