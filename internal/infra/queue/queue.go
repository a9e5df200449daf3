package queue

import (
	"context"
	"time"

	"github.com/Memetic-Block/wuzzy-tx-oracle/internal/core/domain"
)

// Stats reports queue depth by state.
type Stats struct {
	Waiting int64 `json:"waiting"`
	Active  int64 `json:"active"`
	Failed  int64 `json:"failed"`
}

// JobQueue is a durable work queue of fulfillment jobs.
//
// Jobs are keyed by ID. A reserved job is leased for the visibility timeout
// and becomes ready again if it is neither acked, retried nor failed before
// the lease expires.
type JobQueue interface {
	// Enqueue adds a job that becomes ready after delay. It reports false
	// when a job with the same ID is already queued. A dead-lettered job
	// with the same ID is re-admitted.
	Enqueue(ctx context.Context, job *domain.FulfillmentJob, delay time.Duration) (bool, error)

	// Reserve leases the next ready job. It returns nil when none is ready.
	Reserve(ctx context.Context) (*domain.FulfillmentJob, error)

	// Ack removes a completed job.
	Ack(ctx context.Context, job *domain.FulfillmentJob) error

	// Retry puts a leased job back with its attempt count incremented.
	Retry(ctx context.Context, job *domain.FulfillmentJob, delay time.Duration) error

	// Fail moves a leased job to the dead-letter set.
	Fail(ctx context.Context, job *domain.FulfillmentJob, reason string) error

	// Obliterate removes every job in every state.
	Obliterate(ctx context.Context) error

	// Stats returns queue depth by state.
	Stats(ctx context.Context) (Stats, error)
}
