package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"

	"github.com/Memetic-Block/wuzzy-tx-oracle/internal/core/domain"
	"github.com/Memetic-Block/wuzzy-tx-oracle/internal/infra/storage"
)

var _ storage.RecordRepository = (*RecordRepo)(nil)

// RecordRepo implements storage.RecordRepository using PostgreSQL.
type RecordRepo struct {
	db *DB
}

// NewRecordRepo creates a new PostgreSQL record repository.
func NewRecordRepo(db *DB) *RecordRepo {
	return &RecordRepo{db: db}
}

const recordColumns = `transaction_id, recipient, from_process, block_height, block_timestamp,
	feed_cursor, transaction, is_processed, reply_message_id, created_at`

type recordRow struct {
	TransactionID  string         `db:"transaction_id"`
	Recipient      string         `db:"recipient"`
	FromProcess    string         `db:"from_process"`
	BlockHeight    sql.NullInt64  `db:"block_height"`
	BlockTimestamp sql.NullInt64  `db:"block_timestamp"`
	FeedCursor     string         `db:"feed_cursor"`
	Transaction    []byte         `db:"transaction"`
	IsProcessed    bool           `db:"is_processed"`
	ReplyMessageID sql.NullString `db:"reply_message_id"`
	CreatedAt      time.Time      `db:"created_at"`
}

func (row *recordRow) toDomain() *domain.RequestRecord {
	rec := &domain.RequestRecord{
		TransactionID:  row.TransactionID,
		Recipient:      row.Recipient,
		From:           row.FromProcess,
		Cursor:         row.FeedCursor,
		RawPayload:     row.Transaction,
		IsProcessed:    row.IsProcessed,
		ReplyMessageID: row.ReplyMessageID.String,
		CreatedAt:      row.CreatedAt,
	}
	if row.BlockHeight.Valid {
		h := row.BlockHeight.Int64
		rec.BlockHeight = &h
	}
	if row.BlockTimestamp.Valid {
		ts := row.BlockTimestamp.Int64
		rec.BlockTimestamp = &ts
	}
	return rec
}

// FindExisting returns the subset of ids already stored.
func (r *RecordRepo) FindExisting(ctx context.Context, ids []string) (map[string]struct{}, error) {
	found := make(map[string]struct{})
	if len(ids) == 0 {
		return found, nil
	}

	var existing []string
	query := `SELECT transaction_id FROM incoming_messages WHERE transaction_id = ANY($1)`
	if err := r.db.SelectContext(ctx, &existing, query, pq.Array(ids)); err != nil {
		return nil, fmt.Errorf("failed to find existing records: %w", err)
	}

	for _, id := range existing {
		found[id] = struct{}{}
	}
	return found, nil
}

// InsertNew inserts records in one transaction, skipping known transaction IDs.
func (r *RecordRepo) InsertNew(ctx context.Context, records []*domain.RequestRecord) ([]*domain.RequestRecord, error) {
	if len(records) == 0 {
		return nil, nil
	}

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	query := `
		INSERT INTO incoming_messages (
			transaction_id, recipient, from_process, block_height, block_timestamp,
			feed_cursor, transaction, is_processed, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, FALSE, $8)
		ON CONFLICT (transaction_id) DO NOTHING
		RETURNING transaction_id
	`

	stmt, err := tx.PreparexContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to prepare insert: %w", err)
	}
	defer stmt.Close()

	inserted := make([]*domain.RequestRecord, 0, len(records))
	for _, rec := range records {
		createdAt := rec.CreatedAt
		if createdAt.IsZero() {
			createdAt = time.Now().UTC()
		}

		var id string
		err := stmt.QueryRowxContext(ctx,
			rec.TransactionID, rec.Recipient, rec.From,
			nullInt64(rec.BlockHeight), nullInt64(rec.BlockTimestamp),
			rec.Cursor, string(rec.RawPayload), createdAt,
		).Scan(&id)
		if errors.Is(err, sql.ErrNoRows) {
			// Already stored
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("failed to insert record %s: %w", rec.TransactionID, err)
		}

		c := *rec
		c.IsProcessed = false
		c.ReplyMessageID = ""
		c.CreatedAt = createdAt
		inserted = append(inserted, &c)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit inserts: %w", err)
	}
	return inserted, nil
}

// MarkProcessed sets the terminal reply fields once.
func (r *RecordRepo) MarkProcessed(ctx context.Context, transactionID, replyMessageID string) (bool, error) {
	query := `
		UPDATE incoming_messages
		SET is_processed = TRUE, reply_message_id = $2, processed_at = NOW()
		WHERE transaction_id = $1 AND is_processed = FALSE
	`
	res, err := r.db.ExecContext(ctx, query, transactionID, replyMessageID)
	if err != nil {
		return false, fmt.Errorf("failed to mark record processed: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to read affected rows: %w", err)
	}
	return n == 1, nil
}

// LatestConfirmedCursor returns the cursor of the highest block-confirmed record.
func (r *RecordRepo) LatestConfirmedCursor(ctx context.Context) (*domain.FeedPosition, error) {
	query := `
		SELECT feed_cursor, block_height
		FROM incoming_messages
		WHERE block_height IS NOT NULL
		ORDER BY block_height DESC
		LIMIT 1
	`
	var row struct {
		Cursor string `db:"feed_cursor"`
		Height int64  `db:"block_height"`
	}
	err := r.db.GetContext(ctx, &row, query)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get latest cursor: %w", err)
	}
	return &domain.FeedPosition{Cursor: row.Cursor, Height: row.Height}, nil
}

// Get retrieves a record by transaction ID.
func (r *RecordRepo) Get(ctx context.Context, transactionID string) (*domain.RequestRecord, error) {
	query := `SELECT ` + recordColumns + ` FROM incoming_messages WHERE transaction_id = $1`

	var row recordRow
	err := r.db.GetContext(ctx, &row, query, transactionID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get record: %w", err)
	}
	return row.toDomain(), nil
}

// ListUnprocessed returns records still awaiting a reply, oldest first.
func (r *RecordRepo) ListUnprocessed(ctx context.Context, limit int) ([]*domain.RequestRecord, error) {
	if limit <= 0 {
		limit = 1000
	}
	query := `SELECT ` + recordColumns + `
		FROM incoming_messages
		WHERE is_processed = FALSE
		ORDER BY created_at ASC
		LIMIT $1`

	var rows []recordRow
	if err := r.db.SelectContext(ctx, &rows, query, limit); err != nil {
		return nil, fmt.Errorf("failed to list unprocessed records: %w", err)
	}

	records := make([]*domain.RequestRecord, 0, len(rows))
	for i := range rows {
		records = append(records, rows[i].toDomain())
	}
	return records, nil
}

// Stats returns record counts.
func (r *RecordRepo) Stats(ctx context.Context) (storage.RecordStats, error) {
	query := `
		SELECT
			COUNT(*) AS total,
			COUNT(*) FILTER (WHERE is_processed) AS processed,
			MAX(block_height) AS latest_block_height
		FROM incoming_messages
	`
	var row struct {
		Total       int64         `db:"total"`
		Processed   int64         `db:"processed"`
		LatestBlock sql.NullInt64 `db:"latest_block_height"`
	}
	if err := r.db.GetContext(ctx, &row, query); err != nil {
		return storage.RecordStats{}, fmt.Errorf("failed to get record stats: %w", err)
	}

	stats := storage.RecordStats{
		Total:     row.Total,
		Processed: row.Processed,
		Pending:   row.Total - row.Processed,
	}
	if row.LatestBlock.Valid {
		h := row.LatestBlock.Int64
		stats.LatestBlockHeight = &h
	}
	return stats, nil
}

func nullInt64(v *int64) sql.NullInt64 {
	if v == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: *v, Valid: true}
}
