package storage

import (
	"context"

	"github.com/Memetic-Block/wuzzy-tx-oracle/internal/core/domain"
)

// RecordStats summarises the record table.
type RecordStats struct {
	Total             int64  `json:"total"`
	Processed         int64  `json:"processed"`
	Pending           int64  `json:"pending"`
	LatestBlockHeight *int64 `json:"latest_block_height,omitempty"`
}

// RecordRepository is the durable store of inbound request records.
type RecordRepository interface {
	// FindExisting returns the subset of ids that are already stored.
	FindExisting(ctx context.Context, ids []string) (map[string]struct{}, error)

	// InsertNew stores records as unprocessed and returns the ones actually
	// inserted. Records whose transaction ID already exists are skipped.
	InsertNew(ctx context.Context, records []*domain.RequestRecord) ([]*domain.RequestRecord, error)

	// MarkProcessed records the reply of a request. It reports false when the
	// record was already processed (or does not exist), leaving it untouched.
	MarkProcessed(ctx context.Context, transactionID, replyMessageID string) (bool, error)

	// LatestConfirmedCursor returns the position of the highest block-confirmed
	// record, or nil when no stored record is confirmed.
	LatestConfirmedCursor(ctx context.Context) (*domain.FeedPosition, error)

	// Get retrieves a record by transaction ID. It returns nil when absent.
	Get(ctx context.Context, transactionID string) (*domain.RequestRecord, error)

	// ListUnprocessed returns up to limit records still awaiting a reply,
	// oldest first.
	ListUnprocessed(ctx context.Context, limit int) ([]*domain.RequestRecord, error)

	// Stats returns record counts.
	Stats(ctx context.Context) (RecordStats, error)
}
