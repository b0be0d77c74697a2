// Package metrics provides Prometheus metrics definitions.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "statussentry"

var (
	// HTTPRequestDuration tracks HTTP request latency.
	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request duration in seconds",
			Buckets:   []float64{.01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10, 30},
		},
		[]string{"method", "route", "status_code"},
	)

	// DBPoolConnections tracks database connection pool state.
	DBPoolConnections = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "db",
			Name:      "pool_connections",
			Help:      "Number of database connections by state",
		},
		[]string{"state"},
	)

	// ReconcileCycles counts reconciliation cycles by outcome.
	ReconcileCycles = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "reconcile",
			Name:      "cycles_total",
			Help:      "Status reconciliation cycles by outcome",
		},
		[]string{"outcome"},
	)

	// StatusTransitions counts detected per-service status transitions.
	StatusTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "reconcile",
			Name:      "transitions_total",
			Help:      "Detected service status transitions by kind",
		},
		[]string{"kind"},
	)

	// NotificationsSent counts outbound webhook messages.
	NotificationsSent = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "notify",
			Name:      "messages_total",
			Help:      "Outbound chat messages by kind and outcome",
		},
		[]string{"kind", "outcome"},
	)

	// Escalations counts escalation notifications sent by the sweeper.
	Escalations = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "sweep",
			Name:      "escalations_total",
			Help:      "Escalation notifications sent for unacknowledged incidents",
		},
	)

	// Acknowledgments counts processed acknowledgment callbacks by outcome.
	Acknowledgments = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ack",
			Name:      "callbacks_total",
			Help:      "Inbound acknowledgment callbacks by outcome",
		},
		[]string{"outcome"},
	)
)

// Transition kinds recorded by ReconcileCycles / StatusTransitions.
const (
	TransitionFirstSeen  = "first_seen"
	TransitionIncident   = "incident"
	TransitionResolved   = "resolved"
	TransitionCleared    = "cleared"
	TransitionUnresolved = "unresolvable"
)
