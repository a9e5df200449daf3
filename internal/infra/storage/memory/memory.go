package memory

import (
	"context"
	"sync"

	"github.com/Memetic-Block/wuzzy-tx-oracle/internal/core/domain"
	"github.com/Memetic-Block/wuzzy-tx-oracle/internal/infra/storage"
)

var _ storage.RecordRepository = (*RecordRepo)(nil)

// RecordRepo is an in-process RecordRepository. Records are copied on the
// way in and out so callers never share state with the store.
type RecordRepo struct {
	mu      sync.RWMutex
	records map[string]*domain.RequestRecord
	order   []string
}

// NewRecordRepo creates an empty in-memory record store.
func NewRecordRepo() *RecordRepo {
	return &RecordRepo{
		records: make(map[string]*domain.RequestRecord),
	}
}

func (r *RecordRepo) FindExisting(ctx context.Context, ids []string) (map[string]struct{}, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	found := make(map[string]struct{})
	for _, id := range ids {
		if _, ok := r.records[id]; ok {
			found[id] = struct{}{}
		}
	}
	return found, nil
}

func (r *RecordRepo) InsertNew(ctx context.Context, records []*domain.RequestRecord) ([]*domain.RequestRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	inserted := make([]*domain.RequestRecord, 0, len(records))
	for _, rec := range records {
		if _, ok := r.records[rec.TransactionID]; ok {
			continue
		}
		c := clone(rec)
		c.IsProcessed = false
		c.ReplyMessageID = ""
		r.records[c.TransactionID] = c
		r.order = append(r.order, c.TransactionID)
		inserted = append(inserted, clone(c))
	}
	return inserted, nil
}

func (r *RecordRepo) MarkProcessed(ctx context.Context, transactionID, replyMessageID string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	rec, ok := r.records[transactionID]
	if !ok || rec.IsProcessed {
		return false, nil
	}
	rec.IsProcessed = true
	rec.ReplyMessageID = replyMessageID
	return true, nil
}

func (r *RecordRepo) LatestConfirmedCursor(ctx context.Context) (*domain.FeedPosition, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var best *domain.RequestRecord
	for _, id := range r.order {
		rec := r.records[id]
		if rec.BlockHeight == nil {
			continue
		}
		if best == nil || *rec.BlockHeight > *best.BlockHeight {
			best = rec
		}
	}
	if best == nil {
		return nil, nil
	}
	return &domain.FeedPosition{Cursor: best.Cursor, Height: *best.BlockHeight}, nil
}

func (r *RecordRepo) Get(ctx context.Context, transactionID string) (*domain.RequestRecord, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	rec, ok := r.records[transactionID]
	if !ok {
		return nil, nil
	}
	return clone(rec), nil
}

func (r *RecordRepo) ListUnprocessed(ctx context.Context, limit int) ([]*domain.RequestRecord, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var res []*domain.RequestRecord
	for _, id := range r.order {
		rec := r.records[id]
		if rec.IsProcessed {
			continue
		}
		res = append(res, clone(rec))
		if limit > 0 && len(res) >= limit {
			break
		}
	}
	return res, nil
}

func (r *RecordRepo) Stats(ctx context.Context) (storage.RecordStats, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var stats storage.RecordStats
	for _, rec := range r.records {
		stats.Total++
		if rec.IsProcessed {
			stats.Processed++
		} else {
			stats.Pending++
		}
		if rec.BlockHeight != nil && (stats.LatestBlockHeight == nil || *rec.BlockHeight > *stats.LatestBlockHeight) {
			h := *rec.BlockHeight
			stats.LatestBlockHeight = &h
		}
	}
	return stats, nil
}

func clone(rec *domain.RequestRecord) *domain.RequestRecord {
	c := *rec
	if rec.BlockHeight != nil {
		h := *rec.BlockHeight
		c.BlockHeight = &h
	}
	if rec.BlockTimestamp != nil {
		ts := *rec.BlockTimestamp
		c.BlockTimestamp = &ts
	}
	c.RawPayload = append([]byte(nil), rec.RawPayload...)
	return &c
}
