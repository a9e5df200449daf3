package poller

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"go.uber.org/atomic"

	"github.com/Memetic-Block/wuzzy-tx-oracle/internal/core/domain"
	"github.com/Memetic-Block/wuzzy-tx-oracle/internal/infra/graphql"
	"github.com/Memetic-Block/wuzzy-tx-oracle/internal/oracle/feed"
	"github.com/Memetic-Block/wuzzy-tx-oracle/internal/oracle/metrics"
)

// ErrAlreadyRunning is returned by Run when the loop is already active.
var ErrAlreadyRunning = errors.New("poller already running")

// Reader reads one filtered page of the feed.
type Reader interface {
	Read(ctx context.Context, cursor string, limit int, sortOrder string) feed.Batch
}

// Store is the part of the record store the poller writes to.
type Store interface {
	FindExisting(ctx context.Context, ids []string) (map[string]struct{}, error)
	InsertNew(ctx context.Context, records []*domain.RequestRecord) ([]*domain.RequestRecord, error)
	LatestConfirmedCursor(ctx context.Context) (*domain.FeedPosition, error)
}

// Enqueuer schedules fulfillment jobs.
type Enqueuer interface {
	Enqueue(ctx context.Context, job *domain.FulfillmentJob, delay time.Duration) (bool, error)
}

// Result summarises a pass.
type Result string

const (
	ResultOK    Result = "ok"
	ResultEmpty Result = "empty"
	ResultError Result = "error"
)

// Config holds poller settings.
type Config struct {
	PageSize  int
	Interval  time.Duration
	SortOrder string
}

// Status is a snapshot of the poll loop.
type Status struct {
	Running      bool      `json:"running"`
	Passes       int64     `json:"passes"`
	LastPollAt   time.Time `json:"last_poll_at,omitempty"`
	LastResult   Result    `json:"last_result,omitempty"`
	LastError    string    `json:"last_error,omitempty"`
	Cursor       string    `json:"cursor,omitempty"`
	CursorHeight int64     `json:"cursor_height,omitempty"`
	Unqueued     int       `json:"unqueued,omitempty"` // stored requests awaiting a job
}

// Poller periodically reads the feed, stores new requests and enqueues them.
// Passes never overlap: the next one is scheduled only after the previous
// one has finished.
type Poller struct {
	cfg    Config
	reader Reader
	store  Store
	queue  Enqueuer
	logger *slog.Logger

	running *atomic.Bool

	mu       sync.RWMutex
	status   Status
	unqueued map[string]*domain.RequestRecord
}

// New creates a poller.
func New(cfg Config, reader Reader, store Store, queue Enqueuer) *Poller {
	if cfg.PageSize <= 0 {
		cfg.PageSize = 100
	}
	if cfg.Interval <= 0 {
		cfg.Interval = time.Minute
	}
	if cfg.SortOrder == "" {
		cfg.SortOrder = graphql.SortHeightAsc
	}
	return &Poller{
		cfg:      cfg,
		reader:   reader,
		store:    store,
		queue:    queue,
		logger:   slog.Default().With("component", "poller"),
		running:  atomic.NewBool(false),
		unqueued: make(map[string]*domain.RequestRecord),
	}
}

// Run polls until ctx is cancelled. The first pass starts immediately.
func (p *Poller) Run(ctx context.Context) error {
	if !p.running.CompareAndSwap(false, true) {
		return ErrAlreadyRunning
	}
	defer p.running.Store(false)

	p.logger.Info("Poller started", "interval", p.cfg.Interval, "page_size", p.cfg.PageSize)

	// The cursor is owned by this loop.
	var cursor *domain.FeedPosition

	timer := time.NewTimer(0)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			p.logger.Info("Poller stopped")
			return nil
		case <-timer.C:
		}

		next, result, err := p.Pass(ctx, cursor)
		if err != nil && ctx.Err() == nil {
			p.logger.Error("Poll pass failed", "error", err)
		}
		cursor = next
		p.record(cursor, result, err)

		timer.Reset(p.cfg.Interval)
	}
}

// Pass runs one poll pass from cur and returns the cursor to use next.
// A nil cur falls back to the highest confirmed record in the store.
func (p *Poller) Pass(ctx context.Context, cur *domain.FeedPosition) (*domain.FeedPosition, Result, error) {
	if cur == nil {
		p.logger.Info("Missing latest message cursor, loading from store")
		pos, err := p.store.LatestConfirmedCursor(ctx)
		if err != nil {
			return nil, ResultError, fmt.Errorf("load cursor: %w", err)
		}
		cur = pos
	}

	cursor := ""
	if cur != nil {
		cursor = cur.Cursor
	}

	// Stored records whose job could not be created on an earlier pass are
	// hidden from ingest by FindExisting, so they are retried here.
	if n := p.retryUnqueued(ctx); n > 0 {
		p.logger.Info("Enqueued previously failed requests", "count", n)
	}

	batch := p.reader.Read(ctx, cursor, p.cfg.PageSize, p.cfg.SortOrder)
	if len(batch.Raw) == 0 {
		return cur, ResultEmpty, nil
	}

	inserted, err := p.ingest(ctx, batch.Candidates)
	if err != nil {
		// Keep the cursor so the page is read again.
		return cur, ResultError, err
	}

	enqueued := p.enqueue(ctx, inserted)

	next := advance(cur, batch.Raw)
	if next != cur {
		metrics.CursorBlockHeight.Set(float64(next.Height))
	}

	p.logger.Info("Poll pass complete",
		"read", len(batch.Raw),
		"candidates", len(batch.Candidates),
		"inserted", len(inserted),
		"enqueued", enqueued,
		"cursor_height", heightOf(next),
	)
	return next, ResultOK, nil
}

func (p *Poller) ingest(ctx context.Context, candidates []domain.Edge) ([]*domain.RequestRecord, error) {
	if len(candidates) == 0 {
		return nil, nil
	}

	ids := make([]string, 0, len(candidates))
	for _, e := range candidates {
		ids = append(ids, e.Node.ID)
	}
	existing, err := p.store.FindExisting(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("find existing: %w", err)
	}

	fresh := make([]*domain.RequestRecord, 0, len(candidates))
	for _, e := range candidates {
		if _, ok := existing[e.Node.ID]; ok {
			continue
		}
		fresh = append(fresh, domain.NewRequestRecord(e))
	}
	if len(fresh) == 0 {
		return nil, nil
	}

	inserted, err := p.store.InsertNew(ctx, fresh)
	if err != nil {
		return nil, fmt.Errorf("insert records: %w", err)
	}
	metrics.FeedMessages.WithLabelValues("stored").Add(float64(len(inserted)))
	return inserted, nil
}

// enqueue creates one job per record with a known action. Records whose
// enqueue fails are kept for the next pass.
func (p *Poller) enqueue(ctx context.Context, records []*domain.RequestRecord) int {
	enqueued := 0
	for _, rec := range records {
		action := rec.Action()
		if !action.Known() {
			p.logger.Warn("Unknown action, not enqueuing", "tx", rec.TransactionID, "action", action)
			continue
		}
		added, err := p.queue.Enqueue(ctx, domain.NewFulfillmentJob(rec), 0)
		if err != nil {
			p.logger.Error("Failed to enqueue request", "tx", rec.TransactionID, "error", err)
			p.setUnqueued(rec, true)
			continue
		}
		p.setUnqueued(rec, false)
		if added {
			enqueued++
		}
	}
	return enqueued
}

func (p *Poller) retryUnqueued(ctx context.Context) int {
	p.mu.RLock()
	if len(p.unqueued) == 0 {
		p.mu.RUnlock()
		return 0
	}
	records := make([]*domain.RequestRecord, 0, len(p.unqueued))
	for _, rec := range p.unqueued {
		records = append(records, rec)
	}
	p.mu.RUnlock()

	sort.Slice(records, func(i, j int) bool {
		return records[i].CreatedAt.Before(records[j].CreatedAt)
	})
	return p.enqueue(ctx, records)
}

func (p *Poller) setUnqueued(rec *domain.RequestRecord, failed bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if failed {
		p.unqueued[rec.TransactionID] = rec
	} else {
		delete(p.unqueued, rec.TransactionID)
	}
	p.status.Unqueued = len(p.unqueued)
}

// advance returns the position of the last message at the highest block
// height of the batch, or cur when that would move the cursor backwards.
func advance(cur *domain.FeedPosition, batch []domain.Edge) *domain.FeedPosition {
	var best *domain.FeedPosition
	for _, e := range batch {
		h, ok := e.BlockHeight()
		if !ok {
			continue
		}
		if best == nil || h >= best.Height {
			best = &domain.FeedPosition{Cursor: e.Cursor, Height: h}
		}
	}
	if best == nil {
		return cur
	}
	if cur != nil && best.Height < cur.Height {
		return cur
	}
	return best
}

func heightOf(pos *domain.FeedPosition) int64 {
	if pos == nil {
		return 0
	}
	return pos.Height
}

func (p *Poller) record(cursor *domain.FeedPosition, result Result, err error) {
	metrics.PollPasses.WithLabelValues(string(result)).Inc()

	p.mu.Lock()
	defer p.mu.Unlock()
	p.status.Passes++
	p.status.LastPollAt = time.Now()
	p.status.LastResult = result
	p.status.LastError = ""
	if err != nil {
		p.status.LastError = err.Error()
	}
	if cursor != nil {
		p.status.Cursor = cursor.Cursor
		p.status.CursorHeight = cursor.Height
	}
}

// Status returns a snapshot of the poll loop.
func (p *Poller) Status() Status {
	p.mu.RLock()
	defer p.mu.RUnlock()
	s := p.status
	s.Running = p.running.Load()
	return s
}
