// Package metrics exposes Prometheus counters for task transitions and dispatches.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

type Metrics struct {
	TaskTransitions         *prometheus.CounterVec
	TaskTransitionsRejected *prometheus.CounterVec
	TasksDispatched         prometheus.Counter
	ExecutionStatsFailures  prometheus.Counter
}

// New creates the counters and registers them on reg.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		TaskTransitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "wfm_task_transitions_total",
			Help: "Total number of applied task status transitions",
		}, []string{"from", "to"}),

		TaskTransitionsRejected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "wfm_task_transitions_rejected_total",
			Help: "Total number of task events dropped without a transition",
		}, []string{"reason"}),

		TasksDispatched: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "wfm_tasks_dispatched_total",
			Help: "Total number of task dispatch events published",
		}),

		ExecutionStatsFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "wfm_execution_stats_write_failures_total",
			Help: "Total number of execution stats writes that failed",
		}),
	}

	reg.MustRegister(m.TaskTransitions, m.TaskTransitionsRejected, m.TasksDispatched, m.ExecutionStatsFailures)

	return m
}

// NewUnregistered creates counters that are not exported anywhere.
func NewUnregistered() *Metrics {
	return New(prometheus.NewRegistry())
}

// Rejection reasons.
const (
	RejectedInvalidTransition = "invalid_transition"
	RejectedConcurrentUpdate  = "concurrent_update"
	RejectedTaskNotFound      = "task_not_found"
	RejectedInstanceNotFound  = "instance_not_found"
)

func (m *Metrics) Transition(from, to string) {
	m.TaskTransitions.WithLabelValues(from, to).Inc()
}

func (m *Metrics) Rejected(reason string) {
	m.TaskTransitionsRejected.WithLabelValues(reason).Inc()
}

func (m *Metrics) Dispatched() {
	m.TasksDispatched.Inc()
}

func (m *Metrics) StatsWriteFailed() {
	m.ExecutionStatsFailures.Inc()
}
