package health

import (
	"context"
	"sync"
	"time"

	"github.com/Memetic-Block/wuzzy-tx-oracle/internal/infra/queue"
	"github.com/Memetic-Block/wuzzy-tx-oracle/internal/infra/storage"
	"github.com/Memetic-Block/wuzzy-tx-oracle/internal/oracle/metrics"
	"github.com/Memetic-Block/wuzzy-tx-oracle/internal/oracle/poller"
)

// Pinger checks connectivity to a backing service.
type Pinger interface {
	Health(ctx context.Context) error
}

// RecordCounter reports record store counts.
type RecordCounter interface {
	Stats(ctx context.Context) (storage.RecordStats, error)
}

// QueueInspector reports fulfillment queue depth.
type QueueInspector interface {
	Stats(ctx context.Context) (queue.Stats, error)
}

// PollerInspector exposes the poll loop state.
type PollerInspector interface {
	Status() poller.Status
}

// WorkerInspector exposes the worker pool state.
type WorkerInspector interface {
	Running() bool
	Active() int64
}

// Sources are the components the monitor inspects. Nil entries are skipped.
type Sources struct {
	Pingers map[string]Pinger
	Records RecordCounter
	Queue   QueueInspector
	Poller  PollerInspector
	Workers WorkerInspector

	// PollInterval is the expected gap between poll passes.
	PollInterval time.Duration
}

// Thresholds for status evaluation.
const (
	failedJobsDegraded = 0
	failedJobsCritical = 50
	waitingDegraded    = 1000
	stalePolls         = 5
)

// Monitor aggregates health status from various system components.
type Monitor struct {
	src      Sources
	cacheFor time.Duration
	now      func() time.Time

	mu         sync.Mutex
	lastCheck  time.Time
	lastReport *HealthReport
}

// NewMonitor creates a new health monitor.
func NewMonitor(src Sources) *Monitor {
	return &Monitor{
		src:      src,
		cacheFor: 10 * time.Second,
		now:      time.Now,
	}
}

// CheckHealth inspects every source and evaluates the overall status.
// Reports are cached for a short while to avoid hammering the backends.
func (m *Monitor) CheckHealth(ctx context.Context) *HealthReport {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	if m.lastReport != nil && now.Sub(m.lastCheck) < m.cacheFor {
		return m.lastReport
	}

	report := &HealthReport{
		SystemStatus: StatusHealthy,
		Components:   make(map[string]ComponentHealth),
		CheckedAt:    now.UTC(),
	}
	set := func(name string, c ComponentHealth) {
		report.Components[name] = c
		report.SystemStatus = worse(report.SystemStatus, c.Status)
	}

	for name, p := range m.src.Pingers {
		if err := p.Health(ctx); err != nil {
			set(name, ComponentHealth{Status: StatusCritical, Error: err.Error()})
			continue
		}
		set(name, ComponentHealth{Status: StatusHealthy})
	}

	if m.src.Records != nil {
		stats, err := m.src.Records.Stats(ctx)
		if err != nil {
			set("records", ComponentHealth{Status: StatusDegraded, Error: err.Error()})
		} else {
			report.Records = &stats
		}
	}

	if m.src.Queue != nil {
		set("queue", m.checkQueue(ctx, report))
	}

	if m.src.Poller != nil {
		set("poller", m.checkPoller(now, report))
	}

	if m.src.Workers != nil {
		w := &WorkerHealth{Running: m.src.Workers.Running(), Active: m.src.Workers.Active()}
		report.Workers = w
		if w.Running {
			set("workers", ComponentHealth{Status: StatusHealthy})
		} else {
			set("workers", ComponentHealth{Status: StatusCritical, Error: "worker pool is not running"})
		}
	}

	m.lastCheck = now
	m.lastReport = report
	return report
}

func (m *Monitor) checkQueue(ctx context.Context, report *HealthReport) ComponentHealth {
	stats, err := m.src.Queue.Stats(ctx)
	if err != nil {
		return ComponentHealth{Status: StatusCritical, Error: err.Error()}
	}
	report.Queue = &stats

	metrics.QueueDepth.WithLabelValues("waiting").Set(float64(stats.Waiting))
	metrics.QueueDepth.WithLabelValues("active").Set(float64(stats.Active))
	metrics.QueueDepth.WithLabelValues("failed").Set(float64(stats.Failed))

	switch {
	case stats.Failed > failedJobsCritical:
		return ComponentHealth{Status: StatusCritical, Error: "too many dead-lettered jobs"}
	case stats.Failed > failedJobsDegraded, stats.Waiting > waitingDegraded:
		return ComponentHealth{Status: StatusDegraded}
	}
	return ComponentHealth{Status: StatusHealthy}
}

func (m *Monitor) checkPoller(now time.Time, report *HealthReport) ComponentHealth {
	st := m.src.Poller.Status()
	report.Poller = &st

	if !st.Running {
		return ComponentHealth{Status: StatusCritical, Error: "poller is not running"}
	}
	if st.LastResult == poller.ResultError {
		return ComponentHealth{Status: StatusDegraded, Error: st.LastError}
	}
	if m.src.PollInterval > 0 && !st.LastPollAt.IsZero() &&
		now.Sub(st.LastPollAt) > stalePolls*m.src.PollInterval {
		return ComponentHealth{Status: StatusDegraded, Error: "poller is stalled"}
	}
	return ComponentHealth{Status: StatusHealthy}
}
