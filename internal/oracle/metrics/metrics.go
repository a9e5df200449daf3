package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// PollPasses tracks completed poll passes by result
	PollPasses = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "oracle_poll_passes_total",
			Help: "Total number of feed poll passes",
		},
		[]string{"result"},
	)

	// FeedMessages tracks messages seen by the poller at each stage
	FeedMessages = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "oracle_feed_messages_total",
			Help: "Feed messages read, accepted by the filter, and newly stored",
		},
		[]string{"stage"},
	)

	// CursorBlockHeight tracks the block height behind the remembered feed cursor
	CursorBlockHeight = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "oracle_cursor_block_height",
			Help: "Block height of the remembered feed cursor",
		},
	)

	// JobsTotal tracks fulfillment job results
	JobsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "oracle_jobs_total",
			Help: "Fulfillment jobs by result",
		},
		[]string{"result"},
	)

	// QueueDepth tracks fulfillment queue size by state
	QueueDepth = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "oracle_queue_depth",
			Help: "Fulfillment jobs by queue state",
		},
		[]string{"state"},
	)

	// FetchTotal tracks fetch outcomes per fetcher kind
	FetchTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "oracle_fetch_total",
			Help: "External data fetches by kind and outcome",
		},
		[]string{"kind", "outcome"},
	)

	// FetchLatency tracks fetch latency per fetcher kind
	FetchLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "oracle_fetch_latency_seconds",
			Help:    "External data fetch latency in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"kind"},
	)

	// RepliesTotal tracks reply sends per action
	RepliesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "oracle_replies_total",
			Help: "Reply messages sent by action and status",
		},
		[]string{"action", "status"},
	)

	// DBConnections tracks request store connections by state
	DBConnections = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "oracle_db_connections",
			Help: "Request store connections: in_use, idle, and the open limit",
		},
		[]string{"state"},
	)
)
