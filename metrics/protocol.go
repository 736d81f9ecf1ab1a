package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// ProtocolMetrics instruments the task lifecycle of the incentive layer.
type ProtocolMetrics struct {
	// Counts of executed operations, partitioned by operation and outcome.
	operations *prometheus.CounterVec

	// Counts of task state transitions, partitioned by target state.
	transitions *prometheus.CounterVec

	// Counts of finalized tasks, partitioned by how they were resolved.
	finalizations *prometheus.CounterVec

	// Latest substrate height observed by the serializer.
	height prometheus.Gauge
}

// NewDefaultProtocolMetrics creates Prometheus metric instrumentation for the
// incentive layer.
func NewDefaultProtocolMetrics() ProtocolMetrics {
	metrics := ProtocolMetrics{
		operations: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "incentive_operations",
				Help: "How many incentive layer operations were executed, partitioned by operation and status.",
			},
			[]string{"operation", "status"}, // Labels.
		),
		transitions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "incentive_task_transitions",
				Help: "How many task state transitions occurred, partitioned by target state.",
			},
			[]string{"state"}, // Labels.
		),
		finalizations: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "incentive_task_finalizations",
				Help: "How many tasks were finalized, partitioned by resolution.",
			},
			[]string{"resolution"}, // Labels.
		),
		height: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "incentive_substrate_height",
				Help: "Latest substrate height observed while executing an operation.",
			},
		),
	}
	metrics.operations = registerOnce(metrics.operations).(*prometheus.CounterVec)
	metrics.transitions = registerOnce(metrics.transitions).(*prometheus.CounterVec)
	metrics.finalizations = registerOnce(metrics.finalizations).(*prometheus.CounterVec)
	metrics.height = registerOnce(metrics.height).(prometheus.Gauge)
	return metrics
}

// Operations returns the counter for the operation with the given status.
func (m *ProtocolMetrics) Operations(operation, status string) prometheus.Counter {
	return m.operations.WithLabelValues(operation, status)
}

// Transitions returns the counter for transitions into state.
func (m *ProtocolMetrics) Transitions(state string) prometheus.Counter {
	return m.transitions.WithLabelValues(state)
}

// Finalizations returns the counter for tasks finalized with the given resolution.
func (m *ProtocolMetrics) Finalizations(resolution string) prometheus.Counter {
	return m.finalizations.WithLabelValues(resolution)
}

// ObserveHeight records the latest substrate height.
func (m *ProtocolMetrics) ObserveHeight(height uint64) {
	m.height.Set(float64(height))
}
