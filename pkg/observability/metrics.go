// Package observability exposes engine lifecycle events as prometheus
// metrics.
package observability

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/reveriehq/reverie/pkg/workflow"
)

// Metrics collects per-node execution counts and durations. Wire its Hooks
// into the engine and register it on a prometheus registry.
type Metrics struct {
	nodeExecutions *prometheus.CounterVec
	nodeDuration   *prometheus.HistogramVec
}

// NewMetrics creates the collectors and registers them.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		nodeExecutions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "reverie",
			Subsystem: "workflow",
			Name:      "node_executions_total",
			Help:      "Node executions by workflow, node and final status.",
		}, []string{"workflow", "node", "status"}),
		nodeDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "reverie",
			Subsystem: "workflow",
			Name:      "node_duration_seconds",
			Help:      "Node execution duration by workflow and node.",
			Buckets:   prometheus.ExponentialBuckets(0.001, 4, 10),
		}, []string{"workflow", "node"}),
	}
	reg.MustRegister(m.nodeExecutions, m.nodeDuration)
	return m
}

// Hooks returns engine hooks feeding these collectors.
func (m *Metrics) Hooks() workflow.Hooks {
	return workflow.Hooks{
		OnNodeFinish: func(workflowID string, res workflow.NodeResult) {
			m.nodeExecutions.WithLabelValues(workflowID, res.NodeID, string(res.Status)).Inc()
			if !res.EndedAt.IsZero() && !res.StartedAt.IsZero() {
				m.nodeDuration.WithLabelValues(workflowID, res.NodeID).
					Observe(res.EndedAt.Sub(res.StartedAt).Seconds())
			}
		},
	}
}
