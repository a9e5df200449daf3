// Package health provides oracle health monitoring and status reporting.
package health

import (
	"time"

	"github.com/Memetic-Block/wuzzy-tx-oracle/internal/infra/queue"
	"github.com/Memetic-Block/wuzzy-tx-oracle/internal/infra/storage"
	"github.com/Memetic-Block/wuzzy-tx-oracle/internal/oracle/poller"
)

// SystemStatus represents the overall health state of the system or a component.
type SystemStatus string

const (
	StatusHealthy  SystemStatus = "healthy"
	StatusDegraded SystemStatus = "degraded"
	StatusCritical SystemStatus = "critical"
)

// worse returns the more severe of two statuses.
func worse(a, b SystemStatus) SystemStatus {
	rank := map[SystemStatus]int{StatusHealthy: 0, StatusDegraded: 1, StatusCritical: 2}
	if rank[b] > rank[a] {
		return b
	}
	return a
}

// ComponentHealth is the status of one dependency.
type ComponentHealth struct {
	Status SystemStatus `json:"status"`
	Error  string       `json:"error,omitempty"`
}

// WorkerHealth describes the fulfillment worker pool.
type WorkerHealth struct {
	Running bool  `json:"running"`
	Active  int64 `json:"active"`
}

// HealthReport contains the full system health report.
type HealthReport struct {
	SystemStatus SystemStatus               `json:"system_status"`
	Components   map[string]ComponentHealth `json:"components"`
	Records      *storage.RecordStats       `json:"records,omitempty"`
	Queue        *queue.Stats               `json:"queue,omitempty"`
	Poller       *poller.Status             `json:"poller,omitempty"`
	Workers      *WorkerHealth              `json:"workers,omitempty"`
	CheckedAt    time.Time                  `json:"checked_at"`
}
