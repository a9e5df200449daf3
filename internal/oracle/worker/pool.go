package worker

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"go.uber.org/atomic"
	"golang.org/x/sync/errgroup"

	"github.com/Memetic-Block/wuzzy-tx-oracle/internal/core/domain"
	"github.com/Memetic-Block/wuzzy-tx-oracle/internal/infra/queue"
	"github.com/Memetic-Block/wuzzy-tx-oracle/internal/oracle/metrics"
	"github.com/Memetic-Block/wuzzy-tx-oracle/internal/oracle/recovery"
)

// ErrAlreadyRunning is returned by Run when the pool is already active.
var ErrAlreadyRunning = errors.New("worker pool already running")

// Handler processes one fulfillment job.
type Handler interface {
	Handle(ctx context.Context, job *domain.FulfillmentJob) error
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc func(ctx context.Context, job *domain.FulfillmentJob) error

func (f HandlerFunc) Handle(ctx context.Context, job *domain.FulfillmentJob) error {
	return f(ctx, job)
}

// Config holds worker pool settings.
type Config struct {
	Concurrency int           // Number of worker loops (default: 4)
	EmptySleep  time.Duration // Sleep when no job is ready (default: 1s)
	ErrorSleep  time.Duration // Sleep after a queue error (default: 5s)
}

// DefaultConfig returns default pool configuration.
func DefaultConfig() Config {
	return Config{
		Concurrency: 4,
		EmptySleep:  time.Second,
		ErrorSleep:  5 * time.Second,
	}
}

// Pool runs fulfillment jobs from the queue.
type Pool struct {
	cfg      Config
	queue    queue.JobQueue
	handler  Handler
	strategy recovery.RetryStrategy
	log      *slog.Logger

	running *atomic.Bool
	active  *atomic.Int64
}

// NewPool creates a worker pool.
func NewPool(cfg Config, q queue.JobQueue, handler Handler, strategy recovery.RetryStrategy) *Pool {
	def := DefaultConfig()
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = def.Concurrency
	}
	if cfg.EmptySleep <= 0 {
		cfg.EmptySleep = def.EmptySleep
	}
	if cfg.ErrorSleep <= 0 {
		cfg.ErrorSleep = def.ErrorSleep
	}
	if strategy == nil {
		strategy = recovery.DefaultBackoff(nil)
	}
	return &Pool{
		cfg:      cfg,
		queue:    q,
		handler:  handler,
		strategy: strategy,
		log:      slog.Default().With("component", "worker"),
		running:  atomic.NewBool(false),
		active:   atomic.NewInt64(0),
	}
}

// Run starts the worker loops and blocks until ctx is cancelled.
func (p *Pool) Run(ctx context.Context) error {
	if !p.running.CompareAndSwap(false, true) {
		return ErrAlreadyRunning
	}
	defer p.running.Store(false)

	p.log.Info("Starting worker pool", "concurrency", p.cfg.Concurrency)

	g, ctx := errgroup.WithContext(ctx)
	for i := 0; i < p.cfg.Concurrency; i++ {
		id := i
		g.Go(func() error {
			p.loop(ctx, id)
			return nil
		})
	}
	err := g.Wait()

	p.log.Info("Worker pool stopped")
	return err
}

// Running reports whether the pool is active.
func (p *Pool) Running() bool {
	return p.running.Load()
}

// Active returns the number of jobs currently being handled.
func (p *Pool) Active() int64 {
	return p.active.Load()
}

func (p *Pool) loop(ctx context.Context, id int) {
	log := p.log.With("worker", id)
	for {
		if ctx.Err() != nil {
			return
		}

		job, err := p.queue.Reserve(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			log.Error("Failed to reserve job", "error", err)
			sleep(ctx, p.cfg.ErrorSleep)
			continue
		}
		if job == nil {
			sleep(ctx, p.cfg.EmptySleep)
			continue
		}

		p.process(ctx, log, job)
	}
}

// process runs one job and settles it with the queue. Jobs interrupted by
// shutdown are left leased so the queue redelivers them.
func (p *Pool) process(ctx context.Context, log *slog.Logger, job *domain.FulfillmentJob) {
	p.active.Inc()
	defer p.active.Dec()

	err := p.handler.Handle(ctx, job)
	if err == nil {
		if ackErr := p.queue.Ack(ctx, job); ackErr != nil {
			log.Error("Failed to ack job", "job", job.ID, "error", ackErr)
		}
		metrics.JobsTotal.WithLabelValues("completed").Inc()
		return
	}

	if ctx.Err() != nil {
		log.Warn("Job interrupted by shutdown", "job", job.ID, "error", err)
		return
	}

	if p.strategy.ShouldRetry(err, job.Attempt) {
		delay := p.strategy.GetDelay(job.Attempt)
		log.Warn("Job failed, retrying",
			"job", job.ID,
			"attempt", job.Attempt,
			"delay", delay,
			"error", err,
		)
		if retryErr := p.queue.Retry(ctx, job, delay); retryErr != nil {
			log.Error("Failed to retry job", "job", job.ID, "error", retryErr)
		}
		metrics.JobsTotal.WithLabelValues("retried").Inc()
		return
	}

	log.Error("Job failed permanently", "job", job.ID, "attempt", job.Attempt, "error", err)
	if failErr := p.queue.Fail(ctx, job, err.Error()); failErr != nil {
		log.Error("Failed to dead-letter job", "job", job.ID, "error", failErr)
	}
	metrics.JobsTotal.WithLabelValues("failed").Inc()
}

func sleep(ctx context.Context, d time.Duration) {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}
