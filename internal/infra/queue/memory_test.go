package queue

import (
	"context"
	"testing"
	"time"

	"github.com/Memetic-Block/wuzzy-tx-oracle/internal/core/domain"
)

func newJob(id string) *domain.FulfillmentJob {
	return domain.NewFulfillmentJob(&domain.RequestRecord{TransactionID: id})
}

func TestMemoryQueue_EnqueueIsIdempotent(t *testing.T) {
	q := NewMemoryQueue(time.Minute)
	ctx := context.Background()

	added, err := q.Enqueue(ctx, newJob("tx-1"), 0)
	if err != nil || !added {
		t.Fatalf("first enqueue: added=%v err=%v", added, err)
	}
	added, err = q.Enqueue(ctx, newJob("tx-1"), 0)
	if err != nil || added {
		t.Fatalf("second enqueue: added=%v err=%v", added, err)
	}

	stats, _ := q.Stats(ctx)
	if stats.Waiting != 1 {
		t.Errorf("expected 1 waiting job, got %d", stats.Waiting)
	}
}

func TestMemoryQueue_ReserveLeasesJob(t *testing.T) {
	q := NewMemoryQueue(time.Minute)
	ctx := context.Background()
	now := time.Unix(1000, 0)
	q.now = func() time.Time { return now }

	_, _ = q.Enqueue(ctx, newJob("tx-1"), 0)

	job, err := q.Reserve(ctx)
	if err != nil || job == nil {
		t.Fatalf("expected job, got %v (err=%v)", job, err)
	}

	again, _ := q.Reserve(ctx)
	if again != nil {
		t.Fatalf("leased job must not be reserved twice, got %s", again.ID)
	}

	// Lease expires
	now = now.Add(2 * time.Minute)
	again, _ = q.Reserve(ctx)
	if again == nil || again.ID != "tx-1" {
		t.Fatalf("expected expired lease to be redelivered, got %v", again)
	}
}

func TestMemoryQueue_DelayedJobNotReady(t *testing.T) {
	q := NewMemoryQueue(time.Minute)
	ctx := context.Background()
	now := time.Unix(1000, 0)
	q.now = func() time.Time { return now }

	_, _ = q.Enqueue(ctx, newJob("tx-1"), 10*time.Second)
	if job, _ := q.Reserve(ctx); job != nil {
		t.Fatalf("delayed job reserved early")
	}

	now = now.Add(11 * time.Second)
	if job, _ := q.Reserve(ctx); job == nil {
		t.Fatalf("delayed job not reserved after delay")
	}
}

func TestMemoryQueue_RetryAndFail(t *testing.T) {
	q := NewMemoryQueue(time.Minute)
	ctx := context.Background()

	_, _ = q.Enqueue(ctx, newJob("tx-1"), 0)
	job, _ := q.Reserve(ctx)

	if err := q.Retry(ctx, job, 0); err != nil {
		t.Fatalf("retry: %v", err)
	}
	job, _ = q.Reserve(ctx)
	if job == nil || job.Attempt != 1 {
		t.Fatalf("expected attempt 1 after retry, got %+v", job)
	}

	if err := q.Fail(ctx, job, "boom"); err != nil {
		t.Fatalf("fail: %v", err)
	}
	stats, _ := q.Stats(ctx)
	if stats.Waiting != 0 || stats.Active != 0 || stats.Failed != 1 {
		t.Errorf("unexpected stats after fail: %+v", stats)
	}
	dead, ok := q.Failed("tx-1")
	if !ok || dead.LastError != "boom" {
		t.Errorf("expected dead-lettered job with reason, got %+v", dead)
	}

	if added, _ := q.Enqueue(ctx, newJob("tx-1"), 0); !added {
		t.Errorf("dead-lettered job was not re-admitted")
	}
	stats, _ = q.Stats(ctx)
	if stats.Waiting != 1 || stats.Failed != 0 {
		t.Errorf("unexpected stats after re-admit: %+v", stats)
	}
}

func TestMemoryQueue_AckAndObliterate(t *testing.T) {
	q := NewMemoryQueue(time.Minute)
	ctx := context.Background()

	_, _ = q.Enqueue(ctx, newJob("tx-1"), 0)
	_, _ = q.Enqueue(ctx, newJob("tx-2"), 0)

	job, _ := q.Reserve(ctx)
	_ = q.Ack(ctx, job)

	stats, _ := q.Stats(ctx)
	if stats.Waiting != 1 || stats.Active != 0 {
		t.Errorf("unexpected stats after ack: %+v", stats)
	}

	_ = q.Obliterate(ctx)
	stats, _ = q.Stats(ctx)
	if stats != (Stats{}) {
		t.Errorf("expected empty queue, got %+v", stats)
	}
}
