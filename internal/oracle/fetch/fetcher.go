package fetch

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jellydator/ttlcache/v3"

	"github.com/Memetic-Block/wuzzy-tx-oracle/internal/infra/gateway"
	"github.com/Memetic-Block/wuzzy-tx-oracle/internal/oracle/metrics"
)

// Gateway is the subset of the gateway client the fetchers use.
type Gateway interface {
	Block(ctx context.Context, height int64) (*gateway.Response, error)
	Raw(ctx context.Context, id string) (*gateway.Response, error)
}

// TransactionLookup resolves rich transaction metadata. A nil result with a
// nil error means the transaction does not exist.
type TransactionLookup interface {
	Transaction(ctx context.Context, id string) (json.RawMessage, error)
}

// Config holds fetcher settings.
type Config struct {
	Timeout       time.Duration
	BlockCacheTTL time.Duration
}

// Service runs the block, transaction and data fetchers.
type Service struct {
	gateway Gateway
	lookup  TransactionLookup
	timeout time.Duration
	blocks  *ttlcache.Cache[int64, json.RawMessage]
	logger  *slog.Logger
}

// NewService creates the fetchers. A zero BlockCacheTTL disables caching.
func NewService(gw Gateway, lookup TransactionLookup, cfg Config) *Service {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	s := &Service{
		gateway: gw,
		lookup:  lookup,
		timeout: cfg.Timeout,
		logger:  slog.Default().With("component", "fetch"),
	}
	if cfg.BlockCacheTTL > 0 {
		s.blocks = ttlcache.New[int64, json.RawMessage](
			ttlcache.WithTTL[int64, json.RawMessage](cfg.BlockCacheTTL),
			ttlcache.WithDisableTouchOnHit[int64, json.RawMessage](),
		)
		go s.blocks.Start()
	}
	return s
}

// Close stops the block cache cleanup.
func (s *Service) Close() {
	if s.blocks != nil {
		s.blocks.Stop()
	}
}

// Block fetches the block at height.
func (s *Service) Block(ctx context.Context, height int64) Outcome {
	if s.blocks != nil {
		if item := s.blocks.Get(height); item != nil {
			metrics.FetchTotal.WithLabelValues(string(KindBlock), "cache_hit").Inc()
			return Found(KindBlock, item.Value())
		}
	}

	s.logger.Info("Fetching block", "height", height)
	out := s.run(ctx, KindBlock, func(ctx context.Context) Outcome {
		resp, err := s.gateway.Block(ctx, height)
		if err != nil {
			return s.classify(KindBlock, err)
		}
		if !json.Valid(resp.Body) {
			return Transient(KindBlock, errors.New("block response is not valid JSON"))
		}
		return Found(KindBlock, json.RawMessage(resp.Body))
	})

	if out.Status == StatusFound && s.blocks != nil {
		s.blocks.Set(height, out.Data.(json.RawMessage), ttlcache.DefaultTTL)
	}
	if out.Status == StatusTransient {
		s.logger.Error("Failed to fetch block", "height", height, "error", out.Err)
	}
	return out
}

// Transaction fetches rich transaction metadata.
func (s *Service) Transaction(ctx context.Context, id string) Outcome {
	s.logger.Info("Fetching transaction", "id", id)
	out := s.run(ctx, KindTransaction, func(ctx context.Context) Outcome {
		raw, err := s.lookup.Transaction(ctx, id)
		if err != nil {
			return Transient(KindTransaction, err)
		}
		if raw == nil {
			return NotFound(KindTransaction)
		}
		return Found(KindTransaction, raw)
	})
	if out.Status == StatusTransient {
		s.logger.Error("Failed to fetch transaction", "id", id, "error", out.Err)
	}
	return out
}

// Data fetches the raw data of a transaction. JSON bodies are kept
// structured, anything else is returned as a string.
func (s *Service) Data(ctx context.Context, id string) Outcome {
	s.logger.Info("Fetching data", "id", id)
	out := s.run(ctx, KindData, func(ctx context.Context) Outcome {
		resp, err := s.gateway.Raw(ctx, id)
		if err != nil {
			return s.classify(KindData, err)
		}
		if resp.IsJSON() && json.Valid(resp.Body) {
			return Found(KindData, json.RawMessage(resp.Body))
		}
		return Found(KindData, string(resp.Body))
	})
	if out.Status == StatusTransient {
		s.logger.Error("Failed to fetch data", "id", id, "error", out.Err)
	}
	return out
}

func (s *Service) run(ctx context.Context, kind Kind, fn func(context.Context) Outcome) Outcome {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	start := time.Now()
	out := fn(ctx)
	if out.Status == StatusTransient && ctx.Err() != nil {
		out.Err = fmt.Errorf("%w: %v", ctx.Err(), out.Err)
	}

	metrics.FetchLatency.WithLabelValues(string(kind)).Observe(time.Since(start).Seconds())
	metrics.FetchTotal.WithLabelValues(string(kind), out.Status.String()).Inc()
	return out
}

func (s *Service) classify(kind Kind, err error) Outcome {
	if errors.Is(err, gateway.ErrNotFound) {
		return NotFound(kind)
	}
	return Transient(kind, err)
}
