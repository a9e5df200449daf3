package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/Memetic-Block/wuzzy-tx-oracle/internal/infra/ao"
	"github.com/Memetic-Block/wuzzy-tx-oracle/internal/infra/gateway"
	redisclient "github.com/Memetic-Block/wuzzy-tx-oracle/internal/infra/redis"
	"github.com/Memetic-Block/wuzzy-tx-oracle/internal/infra/storage/postgres"
	"github.com/Memetic-Block/wuzzy-tx-oracle/internal/oracle/feed"
)

// AppConfig represents the top-level configuration.
type AppConfig struct {
	Server   ServerConfig       `yaml:"server"`
	Logging  LoggingConfig      `yaml:"logging"`
	Database postgres.Config    `yaml:"database"` // empty url = in-memory store
	Redis    redisclient.Config `yaml:"redis"`    // empty url = in-memory queue
	Oracle   ao.Config          `yaml:"oracle"`
	Feed     FeedConfig         `yaml:"feed"`
	Gateway  gateway.Config     `yaml:"gateway"`
	Worker   WorkerConfig       `yaml:"worker"`
	Startup  StartupConfig      `yaml:"startup"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port int `yaml:"port"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level string `yaml:"level"` // debug, info, warn, error
}

// FeedConfig holds settings for the upstream message feed.
type FeedConfig struct {
	GraphQLURL    string        `yaml:"graphql_url"`
	PageSize      int           `yaml:"page_size"`
	IngestedAtMin int64         `yaml:"ingested_at_min"`
	PollInterval  time.Duration `yaml:"poll_interval"`
}

// WorkerConfig holds fulfillment queue and worker settings.
type WorkerConfig struct {
	Concurrency       int           `yaml:"concurrency"`
	MaxAttempts       int           `yaml:"max_attempts"`
	VisibilityTimeout time.Duration `yaml:"visibility_timeout"`
	QueueName         string        `yaml:"queue_name"`
}

// StartupConfig holds one-shot startup actions.
type StartupConfig struct {
	DoClean bool `yaml:"do_clean"` // obliterate the queue before starting
}

// Validate reports every missing required setting.
func (c *AppConfig) Validate() error {
	var errs []error
	required := []struct{ name, value string }{
		{"oracle.jwk_path", c.Oracle.JWKPath},
		{"oracle.messaging_unit_address", c.Oracle.MessagingUnitAddress},
		{"oracle.scheduler_unit_address", c.Oracle.SchedulerUnitAddress},
		{"oracle.process_allowlist", c.Oracle.ProcessAllowlist},
		{"feed.graphql_url", c.Feed.GraphQLURL},
	}
	for _, r := range required {
		if r.value == "" {
			errs = append(errs, fmt.Errorf("%s is required", r.name))
		}
	}
	if c.Oracle.ProcessAllowlist != "" && c.Allowlist().Size() == 0 {
		errs = append(errs, errors.New("oracle.process_allowlist has no process ids"))
	}
	if c.Feed.PageSize <= 0 {
		errs = append(errs, errors.New("feed.page_size must be positive"))
	}
	if c.Worker.Concurrency <= 0 {
		errs = append(errs, errors.New("worker.concurrency must be positive"))
	}
	return errors.Join(errs...)
}

// Allowlist parses the configured process allowlist.
func (c *AppConfig) Allowlist() *feed.Allowlist {
	return feed.ParseAllowlist(c.Oracle.ProcessAllowlist)
}
