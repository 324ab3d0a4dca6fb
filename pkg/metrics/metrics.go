package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// PollCycles counts completed poll cycles by result (ok|degraded|error).
	PollCycles = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "backoffice_poll_cycles_total",
			Help: "Total number of notification poll cycles",
		},
		[]string{"result"},
	)

	// PollDuration measures how long a full aggregation fan-out takes.
	PollDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "backoffice_poll_duration_seconds",
			Help:    "Duration of notification poll cycles",
			Buckets: prometheus.DefBuckets,
		},
	)

	// EntityCallFailures counts failed backend calls per entity and call kind (stats|recent|transition).
	EntityCallFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "backoffice_entity_call_failures_total",
			Help: "Total number of failed backend entity calls",
		},
		[]string{"entity", "call"},
	)

	// FeedTotal tracks the aggregated unseen count reported by the latest cycle.
	FeedTotal = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "backoffice_feed_total",
			Help: "Aggregated count of items awaiting staff attention",
		},
	)

	// StatusTransitions counts entity status transition attempts by outcome (ok|failed).
	StatusTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "backoffice_status_transitions_total",
			Help: "Total number of entity status transitions",
		},
		[]string{"entity", "result"},
	)

	// RealtimeConnections tracks connected dashboard websocket clients.
	RealtimeConnections = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "backoffice_realtime_connections",
			Help: "Number of connected realtime clients",
		},
	)

	// APILatency measures HTTP request latencies.
	APILatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "backoffice_api_latency_seconds",
			Help:    "API endpoint latency",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)
)
