package worker

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/Memetic-Block/wuzzy-tx-oracle/internal/core/domain"
	"github.com/Memetic-Block/wuzzy-tx-oracle/internal/infra/queue"
	"github.com/Memetic-Block/wuzzy-tx-oracle/internal/oracle/recovery"
)

func fastConfig() Config {
	return Config{Concurrency: 2, EmptySleep: 5 * time.Millisecond, ErrorSleep: 5 * time.Millisecond}
}

func fastBackoff(maxAttempts int) *recovery.ExponentialBackoff {
	s := recovery.DefaultBackoff(nil)
	s.InitialDelay = time.Millisecond
	s.MaxDelay = time.Millisecond
	s.MaxAttempts = maxAttempts
	return s
}

func enqueue(t *testing.T, q queue.JobQueue, ids ...string) {
	t.Helper()
	for _, id := range ids {
		if _, err := q.Enqueue(context.Background(), domain.NewFulfillmentJob(&domain.RequestRecord{TransactionID: id}), 0); err != nil {
			t.Fatal(err)
		}
	}
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatal("condition not met before deadline")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func runPool(t *testing.T, p *Pool) context.CancelFunc {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		_ = p.Run(ctx)
		close(done)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
	return cancel
}

func TestPool_AcksSuccessfulJobs(t *testing.T) {
	q := queue.NewMemoryQueue(time.Minute)
	enqueue(t, q, "a", "b", "c")

	var mu sync.Mutex
	handled := map[string]int{}
	h := HandlerFunc(func(ctx context.Context, job *domain.FulfillmentJob) error {
		mu.Lock()
		defer mu.Unlock()
		handled[job.ID]++
		return nil
	})

	runPool(t, NewPool(fastConfig(), q, h, fastBackoff(3)))

	waitFor(t, func() bool {
		s, _ := q.Stats(context.Background())
		return s.Waiting == 0 && s.Active == 0
	})

	mu.Lock()
	defer mu.Unlock()
	for _, id := range []string{"a", "b", "c"} {
		if handled[id] != 1 {
			t.Errorf("job %s handled %d times", id, handled[id])
		}
	}
}

func TestPool_RetriesThenDeadLetters(t *testing.T) {
	q := queue.NewMemoryQueue(time.Minute)
	enqueue(t, q, "flaky")

	var mu sync.Mutex
	var attempts []int
	h := HandlerFunc(func(ctx context.Context, job *domain.FulfillmentJob) error {
		mu.Lock()
		defer mu.Unlock()
		attempts = append(attempts, job.Attempt)
		return errors.New("send failed")
	})

	runPool(t, NewPool(fastConfig(), q, h, fastBackoff(3)))

	waitFor(t, func() bool {
		s, _ := q.Stats(context.Background())
		return s.Failed == 1
	})

	mu.Lock()
	defer mu.Unlock()
	if len(attempts) != 3 || attempts[0] != 0 || attempts[2] != 2 {
		t.Errorf("unexpected attempts %v", attempts)
	}
	dead, ok := q.Failed("flaky")
	if !ok || dead.LastError != "send failed" {
		t.Errorf("expected dead-lettered job, got %+v", dead)
	}
}

func TestPool_PermanentErrorIsNotRetried(t *testing.T) {
	q := queue.NewMemoryQueue(time.Minute)
	enqueue(t, q, "broken")

	var mu sync.Mutex
	calls := 0
	h := HandlerFunc(func(ctx context.Context, job *domain.FulfillmentJob) error {
		mu.Lock()
		defer mu.Unlock()
		calls++
		return recovery.Permanent(errors.New("payload unreadable"))
	})

	runPool(t, NewPool(fastConfig(), q, h, fastBackoff(5)))

	waitFor(t, func() bool {
		s, _ := q.Stats(context.Background())
		return s.Failed == 1
	})

	mu.Lock()
	defer mu.Unlock()
	if calls != 1 {
		t.Errorf("expected a single attempt, got %d", calls)
	}
}

func TestPool_RunTwice(t *testing.T) {
	q := queue.NewMemoryQueue(time.Minute)
	p := NewPool(fastConfig(), q, HandlerFunc(func(ctx context.Context, job *domain.FulfillmentJob) error { return nil }), nil)

	runPool(t, p)
	waitFor(t, p.Running)

	if err := p.Run(context.Background()); !errors.Is(err, ErrAlreadyRunning) {
		t.Errorf("expected ErrAlreadyRunning, got %v", err)
	}
}
