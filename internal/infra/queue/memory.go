package queue

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/Memetic-Block/wuzzy-tx-oracle/internal/core/domain"
)

var _ JobQueue = (*MemoryQueue)(nil)

type memoryEntry struct {
	job     *domain.FulfillmentJob
	readyAt time.Time
	leased  bool
	until   time.Time
}

// MemoryQueue is an in-process JobQueue used when no Redis URL is configured.
type MemoryQueue struct {
	mu         sync.Mutex
	visibility time.Duration
	entries    map[string]*memoryEntry
	failed     map[string]*domain.FulfillmentJob
	now        func() time.Time
}

// NewMemoryQueue creates an empty queue with the given lease duration.
func NewMemoryQueue(visibility time.Duration) *MemoryQueue {
	if visibility <= 0 {
		visibility = 2 * time.Minute
	}
	return &MemoryQueue{
		visibility: visibility,
		entries:    make(map[string]*memoryEntry),
		failed:     make(map[string]*domain.FulfillmentJob),
		now:        time.Now,
	}
}

func (q *MemoryQueue) Enqueue(ctx context.Context, job *domain.FulfillmentJob, delay time.Duration) (bool, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if _, ok := q.entries[job.ID]; ok {
		return false, nil
	}
	delete(q.failed, job.ID)

	c := *job
	q.entries[job.ID] = &memoryEntry{job: &c, readyAt: q.now().Add(delay)}
	return true, nil
}

func (q *MemoryQueue) Reserve(ctx context.Context) (*domain.FulfillmentJob, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	now := q.now()
	var ready []*memoryEntry
	for _, e := range q.entries {
		if e.leased && now.After(e.until) {
			// Lease expired
			e.leased = false
		}
		if !e.leased && !e.readyAt.After(now) {
			ready = append(ready, e)
		}
	}
	if len(ready) == 0 {
		return nil, nil
	}

	sort.Slice(ready, func(i, j int) bool {
		if ready[i].readyAt.Equal(ready[j].readyAt) {
			return ready[i].job.ID < ready[j].job.ID
		}
		return ready[i].readyAt.Before(ready[j].readyAt)
	})

	e := ready[0]
	e.leased = true
	e.until = now.Add(q.visibility)
	c := *e.job
	return &c, nil
}

func (q *MemoryQueue) Ack(ctx context.Context, job *domain.FulfillmentJob) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	delete(q.entries, job.ID)
	return nil
}

func (q *MemoryQueue) Retry(ctx context.Context, job *domain.FulfillmentJob, delay time.Duration) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	c := *job
	c.Attempt++
	q.entries[job.ID] = &memoryEntry{job: &c, readyAt: q.now().Add(delay)}
	return nil
}

func (q *MemoryQueue) Fail(ctx context.Context, job *domain.FulfillmentJob, reason string) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	c := *job
	c.LastError = reason
	delete(q.entries, job.ID)
	q.failed[job.ID] = &c
	return nil
}

func (q *MemoryQueue) Obliterate(ctx context.Context) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.entries = make(map[string]*memoryEntry)
	q.failed = make(map[string]*domain.FulfillmentJob)
	return nil
}

func (q *MemoryQueue) Stats(ctx context.Context) (Stats, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	now := q.now()
	var s Stats
	for _, e := range q.entries {
		if e.leased && !now.After(e.until) {
			s.Active++
		} else {
			s.Waiting++
		}
	}
	s.Failed = int64(len(q.failed))
	return s, nil
}

// Failed returns the dead-lettered job with the given ID, if any.
func (q *MemoryQueue) Failed(id string) (*domain.FulfillmentJob, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	job, ok := q.failed[id]
	if !ok {
		return nil, false
	}
	c := *job
	return &c, true
}
