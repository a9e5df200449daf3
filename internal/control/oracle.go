package control

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/everFinance/goar"
	"golang.org/x/sync/errgroup"

	"github.com/Memetic-Block/wuzzy-tx-oracle/internal/core/config"
	"github.com/Memetic-Block/wuzzy-tx-oracle/internal/infra/ao"
	"github.com/Memetic-Block/wuzzy-tx-oracle/internal/infra/gateway"
	"github.com/Memetic-Block/wuzzy-tx-oracle/internal/infra/graphql"
	"github.com/Memetic-Block/wuzzy-tx-oracle/internal/oracle/dispatch"
	"github.com/Memetic-Block/wuzzy-tx-oracle/internal/oracle/feed"
	"github.com/Memetic-Block/wuzzy-tx-oracle/internal/oracle/fetch"
	"github.com/Memetic-Block/wuzzy-tx-oracle/internal/oracle/health"
	"github.com/Memetic-Block/wuzzy-tx-oracle/internal/oracle/poller"
	"github.com/Memetic-Block/wuzzy-tx-oracle/internal/oracle/recovery"
	"github.com/Memetic-Block/wuzzy-tx-oracle/internal/oracle/worker"
)

// Oracle is the main application struct that manages the bridge lifecycle.
type Oracle struct {
	cfg      *config.AppConfig
	backends *Backends
	signer   *goar.Signer

	fetcher      *fetch.Service
	poller       *poller.Poller
	pool         *worker.Pool
	healthMon    *health.Monitor
	healthServer *health.Server
	log          *slog.Logger

	cancel context.CancelFunc
	group  *errgroup.Group
}

// Option configures an Oracle.
type Option func(*Oracle)

// WithSigner signs with s instead of the wallet at oracle.jwk_path.
func WithSigner(s *goar.Signer) Option {
	return func(o *Oracle) { o.signer = s }
}

// NewOracle creates a new Oracle instance with all dependencies initialized.
func NewOracle(ctx context.Context, cfg *config.AppConfig, opts ...Option) (*Oracle, error) {
	o := &Oracle{cfg: cfg, log: slog.Default().With("component", "oracle")}
	for _, opt := range opts {
		opt(o)
	}

	// 1. Wallet
	if o.signer == nil {
		s, err := ao.LoadSigner(cfg.Oracle.JWKPath)
		if err != nil {
			return nil, fmt.Errorf("failed to load oracle wallet: %w", err)
		}
		o.signer = s
	}
	allowlist := cfg.Allowlist()
	o.log.Info("Oracle identity",
		"address", o.signer.Address,
		"messaging_unit", cfg.Oracle.MessagingUnitAddress,
		"allowed_processes", allowlist.IDs(),
	)

	// 2. Storage and queue
	backends, err := OpenBackends(ctx, cfg)
	if err != nil {
		return nil, err
	}
	o.backends = backends

	// 3. Upstream clients
	gql := graphql.NewClient(cfg.Feed.GraphQLURL, cfg.Gateway.Timeout)
	gw := gateway.NewClient(cfg.Gateway)
	messenger, err := ao.NewClient(o.signer, cfg.Oracle.MUURL)
	if err != nil {
		backends.Close()
		return nil, err
	}

	// 4. Pipeline
	reader := feed.NewReader(gql, feed.Config{
		OracleAddress:        o.signer.Address,
		MessagingUnitAddress: cfg.Oracle.MessagingUnitAddress,
		IngestedAtMin:        cfg.Feed.IngestedAtMin,
	}, allowlist)

	o.poller = poller.New(poller.Config{
		PageSize: cfg.Feed.PageSize,
		Interval: cfg.Feed.PollInterval,
	}, reader, backends.Store, backends.Queue)

	o.fetcher = fetch.NewService(gw, gql, fetch.Config{
		Timeout:       cfg.Gateway.Timeout,
		BlockCacheTTL: cfg.Gateway.BlockCacheTTL,
	})
	dispatcher := dispatch.New(o.fetcher, messenger, backends.Store)

	strategy := recovery.DefaultBackoff(nil)
	strategy.MaxAttempts = cfg.Worker.MaxAttempts
	workerCfg := worker.DefaultConfig()
	workerCfg.Concurrency = cfg.Worker.Concurrency
	o.pool = worker.NewPool(workerCfg, backends.Queue, dispatcher, strategy)

	// 5. Health
	o.healthMon = health.NewMonitor(health.Sources{
		Pingers:      backends.Pingers(),
		Records:      backends.Store,
		Queue:        backends.Queue,
		Poller:       o.poller,
		Workers:      o.pool,
		PollInterval: cfg.Feed.PollInterval,
	})
	o.healthServer = health.NewServer(o.healthMon, cfg.Server.Port)

	return o, nil
}

// Address is the oracle's own address.
func (o *Oracle) Address() string {
	return o.signer.Address
}

// Start prepares the queue and starts the poller, the workers and the
// health server. It returns once everything is running.
func (o *Oracle) Start(ctx context.Context) error {
	if o.cfg.Startup.DoClean {
		o.log.Warn("Obliterating fulfillment queue", "queue", o.cfg.Worker.QueueName)
		if err := o.backends.Queue.Obliterate(ctx); err != nil {
			return fmt.Errorf("failed to clean queue: %w", err)
		}
	}

	// Re-enqueue stored requests that never got a reply.
	added, err := poller.Requeue(ctx, o.backends.Store, o.backends.Queue, 0)
	if err != nil {
		return fmt.Errorf("failed to requeue pending requests: %w", err)
	}
	if added > 0 {
		o.log.Info("Requeued pending requests", "count", added)
	}

	runCtx, cancel := context.WithCancel(ctx)
	o.cancel = cancel
	g, gctx := errgroup.WithContext(runCtx)
	o.group = g

	if o.backends.db != nil {
		o.backends.db.StartMetricsCollector(gctx)
	}

	g.Go(func() error { return o.pool.Run(gctx) })
	g.Go(func() error { return o.poller.Run(gctx) })

	// Start Health Server
	go func() {
		if err := o.healthServer.Start(); err != nil {
			o.log.Error("Health server failed", "error", err)
		}
	}()

	return nil
}

// Stop cancels the run loops and waits for in-flight jobs, bounded by ctx.
func (o *Oracle) Stop(ctx context.Context) error {
	o.log.Info("Stopping Oracle...")

	var errs []error
	if o.cancel != nil {
		o.cancel()
		done := make(chan error, 1)
		go func() { done <- o.group.Wait() }()
		select {
		case err := <-done:
			if err != nil && !errors.Is(err, context.Canceled) {
				errs = append(errs, err)
			}
		case <-ctx.Done():
			errs = append(errs, fmt.Errorf("workers did not stop: %w", ctx.Err()))
		}
	}

	o.fetcher.Close()
	if err := o.healthServer.Stop(ctx); err != nil {
		errs = append(errs, err)
	}
	o.backends.Close()

	return errors.Join(errs...)
}

// Health returns the current health report.
func (o *Oracle) Health(ctx context.Context) *health.HealthReport {
	return o.healthMon.CheckHealth(ctx)
}
