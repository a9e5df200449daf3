package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v2"

	"github.com/Memetic-Block/wuzzy-tx-oracle/internal/infra/ao"
	"github.com/Memetic-Block/wuzzy-tx-oracle/internal/infra/graphql"
)

// Load reads configuration from a YAML file.
func Load(path string) (*AppConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	return Parse(data)
}

// Parse decodes YAML configuration and applies defaults.
func Parse(data []byte) (*AppConfig, error) {
	var cfg AppConfig
	// Expand environment variables in the YAML content
	expandedData := os.ExpandEnv(string(data))
	if err := yaml.Unmarshal([]byte(expandedData), &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	applyDefaults(&cfg)
	return &cfg, nil
}

func applyDefaults(cfg *AppConfig) {
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Database.MaxConns == 0 {
		cfg.Database.MaxConns = 10
	}
	if cfg.Database.MinConns == 0 {
		cfg.Database.MinConns = 2
	}
	if cfg.Oracle.MUURL == "" {
		cfg.Oracle.MUURL = ao.DefaultMUURL
	}

	if cfg.Feed.PageSize == 0 {
		cfg.Feed.PageSize = 100
	}
	if cfg.Feed.IngestedAtMin == 0 {
		cfg.Feed.IngestedAtMin = graphql.DefaultIngestedAtMin
	}
	if cfg.Feed.PollInterval == 0 {
		cfg.Feed.PollInterval = 60 * time.Second
	}

	if cfg.Gateway.URL == "" {
		cfg.Gateway.URL = "https://arweave.net"
	}
	if cfg.Gateway.Timeout == 0 {
		cfg.Gateway.Timeout = 30 * time.Second
	}
	if cfg.Gateway.BlockCacheTTL == 0 {
		cfg.Gateway.BlockCacheTTL = 10 * time.Minute
	}

	if cfg.Worker.Concurrency == 0 {
		cfg.Worker.Concurrency = 4
	}
	if cfg.Worker.MaxAttempts == 0 {
		cfg.Worker.MaxAttempts = 5
	}
	if cfg.Worker.VisibilityTimeout == 0 {
		cfg.Worker.VisibilityTimeout = 2 * time.Minute
	}
	if cfg.Worker.QueueName == "" {
		cfg.Worker.QueueName = "tx-oracle-process-queue"
	}
}
