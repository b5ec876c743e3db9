// Package metrics declares the Prometheus collectors of the workspace engine.
// They register with the default registry and are served on /metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	CacheHydrations = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "matetrip_cache_hydrations_total",
		Help: "Cold cache loads from Postgres",
	}, []string{"kind"})

	CacheConflicts = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "matetrip_cache_tx_conflicts_total",
		Help: "Optimistic cache transactions retried after a concurrent write",
	}, []string{"op"})

	Flushes = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "matetrip_flushes_total",
		Help: "Flushes by kind and outcome",
	}, []string{"kind", "outcome"})

	NewlyPersisted = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "matetrip_flush_newly_persisted_total",
		Help: "Cache records written to Postgres for the first time since their last edit",
	}, []string{"kind"})

	FlushDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "matetrip_flush_duration_seconds",
		Help:    "Duration of cache flushes",
		Buckets: []float64{0.005, 0.01, 0.05, 0.1, 0.5, 1, 5},
	}, []string{"kind"})

	Commands = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "matetrip_realtime_commands_total",
		Help: "Realtime commands handled, by event and outcome",
	}, []string{"event", "outcome"})

	DroppedCommands = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "matetrip_realtime_dropped_commands_total",
		Help: "Mutations dropped because the sender was not a room member",
	}, []string{"event"})

	RoomConnections = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "matetrip_realtime_room_connections",
		Help: "Current number of room memberships across all rooms",
	})

	AgentRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "matetrip_chat_agent_requests_total",
		Help: "Chat mentions routed to the agent, by outcome",
	}, []string{"outcome"})
)
