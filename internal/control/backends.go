package control

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/Memetic-Block/wuzzy-tx-oracle/internal/core/config"
	"github.com/Memetic-Block/wuzzy-tx-oracle/internal/infra/queue"
	redisclient "github.com/Memetic-Block/wuzzy-tx-oracle/internal/infra/redis"
	"github.com/Memetic-Block/wuzzy-tx-oracle/internal/infra/storage"
	"github.com/Memetic-Block/wuzzy-tx-oracle/internal/infra/storage/memory"
	"github.com/Memetic-Block/wuzzy-tx-oracle/internal/infra/storage/postgres"
	"github.com/Memetic-Block/wuzzy-tx-oracle/internal/oracle/health"
)

// Backends are the record store and job queue shared by the oracle and the
// operational commands.
type Backends struct {
	Store storage.RecordRepository
	Queue queue.JobQueue

	db          *postgres.DB
	redisClient *redisclient.Client
}

// OpenBackends connects the configured store and queue. An empty database
// URL selects the in-memory store; an empty redis URL the in-memory queue.
func OpenBackends(ctx context.Context, cfg *config.AppConfig) (*Backends, error) {
	b := &Backends{}

	if cfg.Database.URL != "" {
		db, err := postgres.NewDB(ctx, cfg.Database)
		if err != nil {
			return nil, fmt.Errorf("failed to init db: %w", err)
		}
		if err := postgres.Migrate(db); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("failed to migrate db: %w", err)
		}
		b.db = db
		b.Store = postgres.NewRecordRepo(db)
		slog.Info("Using PostgreSQL storage")
	} else {
		b.Store = memory.NewRecordRepo()
		slog.Info("Using Memory storage")
	}

	if cfg.Redis.URL != "" {
		client, err := redisclient.NewClient(cfg.Redis)
		if err != nil {
			b.Close()
			return nil, fmt.Errorf("failed to connect to redis: %w", err)
		}
		b.redisClient = client
		b.Queue = redisclient.NewJobQueue(client, cfg.Worker.QueueName, cfg.Worker.VisibilityTimeout)
		slog.Info("Using Redis queue", "queue", cfg.Worker.QueueName)
	} else {
		b.Queue = queue.NewMemoryQueue(cfg.Worker.VisibilityTimeout)
		slog.Info("Using Memory queue")
	}

	return b, nil
}

// Pingers returns the connectivity checks of the external backends.
func (b *Backends) Pingers() map[string]health.Pinger {
	p := make(map[string]health.Pinger)
	if b.db != nil {
		p["database"] = b.db
	}
	if b.redisClient != nil {
		p["redis"] = b.redisClient
	}
	return p
}

// Close releases the backend connections.
func (b *Backends) Close() {
	if b.redisClient != nil {
		if err := b.redisClient.Close(); err != nil {
			slog.Warn("Failed to close Redis", "error", err)
		}
	}
	if b.db != nil {
		if err := b.db.Close(); err != nil {
			slog.Warn("Failed to close database", "error", err)
		}
	}
}
