// Package metrics defines and registers all custom Prometheus metrics for the
// provisioner. It is the single source of truth for metric names, labels, and
// help strings; metrics register with the default registry at import time and
// are served by the /metrics endpoint.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "provisioner"

// JobsActive tracks the number of batch workers currently running.
var JobsActive = promauto.NewGauge(
	prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "jobs_active",
		Help:      "Number of batch jobs currently being processed.",
	},
)

// RowsProcessedTotal counts rows reaching a terminal state.
// Label:
//   - outcome: "processed", "exists", "invalid", "create_failed", "server_error"
var RowsProcessedTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "rows_processed_total",
		Help:      "Total number of roster rows reaching a terminal state, by outcome.",
	},
	[]string{"outcome"},
)

// UsersCreatedTotal counts successful account creations.
// Label:
//   - variant: the creation variant that succeeded ("1".."4")
var UsersCreatedTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "users_created_total",
		Help:      "Total number of remote accounts created, by creation variant.",
	},
	[]string{"variant"},
)

// EnrolmentsTotal counts per-course enrolment outcomes.
// Label:
//   - result: "enrolled", "already_enrolled", "failed"
var EnrolmentsTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "enrolments_total",
		Help:      "Total number of course enrolment attempts, by result.",
	},
	[]string{"result"},
)

// RemoteCallDuration measures one remote web-service round trip.
// Label:
//   - function: the web-service function selector
var RemoteCallDuration = promauto.NewHistogramVec(
	prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "remote_call_duration_seconds",
		Help:      "Duration of remote web-service calls, by function.",
		Buckets:   prometheus.DefBuckets,
	},
	[]string{"function"},
)
