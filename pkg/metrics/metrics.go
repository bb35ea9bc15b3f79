// Package metrics exposes Prometheus instrumentation for the engine.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the engine's Prometheus collectors.
type Metrics struct {
	ExecutionsTotal     *prometheus.CounterVec
	ExecutionDuration   *prometheus.HistogramVec
	NodesTotal          *prometheus.CounterVec
	IteratorItemsTotal  *prometheus.CounterVec
	DuplicatesSkipped   prometheus.Counter
	ReservationFailures prometheus.Counter
}

// New registers the engine collectors on the given registerer.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		ExecutionsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "flowline_executions_total",
			Help: "Workflow executions by terminal status.",
		}, []string{"workflow_id", "status"}),

		ExecutionDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "flowline_execution_duration_seconds",
			Help:    "Wall-clock duration of workflow executions.",
			Buckets: prometheus.ExponentialBuckets(0.05, 2, 12),
		}, []string{"workflow_id"}),

		NodesTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "flowline_node_executions_total",
			Help: "Node executions by kind and terminal status.",
		}, []string{"node_kind", "status"}),

		IteratorItemsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "flowline_iterator_items_total",
			Help: "Iterator sub-items by outcome.",
		}, []string{"outcome"}),

		DuplicatesSkipped: factory.NewCounter(prometheus.CounterOpts{
			Name: "flowline_duplicate_deliveries_skipped_total",
			Help: "Deliveries skipped because their idempotency key was already reserved.",
		}),

		ReservationFailures: factory.NewCounter(prometheus.CounterOpts{
			Name: "flowline_reservation_failures_total",
			Help: "Reservation attempts that failed for reasons other than duplication.",
		}),
	}
}

// NewDefault registers on the default Prometheus registry.
func NewDefault() *Metrics {
	return New(prometheus.DefaultRegisterer)
}
