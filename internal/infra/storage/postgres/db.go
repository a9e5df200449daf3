package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib" // registers the "pgx" driver
	"github.com/jmoiron/sqlx"

	"github.com/Memetic-Block/wuzzy-tx-oracle/internal/oracle/metrics"
)

const (
	defaultMaxConns   = 10
	defaultIdleConns  = 2
	poolStatsInterval = 15 * time.Second
)

// Config holds the request store connection settings.
type Config struct {
	URL      string `yaml:"url"`
	MaxConns int    `yaml:"max_conns"`
	MinConns int    `yaml:"min_conns"` // kept idle between polls
}

// DB is the request store database handle.
type DB struct {
	*sqlx.DB
}

// NewDB opens the request store and checks that it answers.
func NewDB(ctx context.Context, cfg Config) (*DB, error) {
	conn, err := sqlx.Open("pgx", cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("open request store: %w", err)
	}
	conn.SetMaxOpenConns(positiveOr(cfg.MaxConns, defaultMaxConns))
	conn.SetMaxIdleConns(positiveOr(cfg.MinConns, defaultIdleConns))
	conn.SetConnMaxLifetime(time.Hour)
	conn.SetConnMaxIdleTime(30 * time.Minute)

	if err := conn.PingContext(ctx); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("reach request store: %w", err)
	}
	return &DB{DB: conn}, nil
}

// StartMetricsCollector publishes pool statistics until ctx is done.
func (db *DB) StartMetricsCollector(ctx context.Context) {
	go func() {
		ticker := time.NewTicker(poolStatsInterval)
		defer ticker.Stop()

		recordPoolStats(db.Stats())
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				recordPoolStats(db.Stats())
			}
		}
	}()
}

func recordPoolStats(s sql.DBStats) {
	metrics.DBConnections.WithLabelValues("in_use").Set(float64(s.InUse))
	metrics.DBConnections.WithLabelValues("idle").Set(float64(s.Idle))
	metrics.DBConnections.WithLabelValues("open_limit").Set(float64(s.MaxOpenConnections))
}

// Health pings the request store.
func (db *DB) Health(ctx context.Context) error {
	return db.PingContext(ctx)
}

func positiveOr(v, def int) int {
	if v > 0 {
		return v
	}
	return def
}
