package graph

import "github.com/prometheus/client_golang/prometheus"

// PrometheusMetrics records engine step/ready-set activity as Prometheus
// instruments. Pass one to Engine.WithMetrics; a nil *PrometheusMetrics
// (the Engine's default) disables recording entirely.
type PrometheusMetrics struct {
	NodesInflight   prometheus.Gauge
	ReadyQueueDepth prometheus.Gauge
	StepDuration    prometheus.Histogram
	StepsTotal      prometheus.Counter
	CheckpointSaves prometheus.Counter
	RunsTerminal    *prometheus.CounterVec // labeled by "completed"|"interrupted"|"error"
}

// NewPrometheusMetrics constructs and registers the engine's instruments
// against reg. Pass prometheus.DefaultRegisterer for the global registry.
func NewPrometheusMetrics(reg prometheus.Registerer) *PrometheusMetrics {
	m := &PrometheusMetrics{
		NodesInflight: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "agentgraph", Subsystem: "engine", Name: "nodes_inflight",
			Help: "Nodes currently dispatched and awaiting completion.",
		}),
		ReadyQueueDepth: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "agentgraph", Subsystem: "engine", Name: "ready_queue_depth",
			Help: "Size of the ready set for the step currently executing.",
		}),
		StepDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "agentgraph", Subsystem: "engine", Name: "step_duration_seconds",
			Help:    "Wall-clock duration of one scheduling round.",
			Buckets: prometheus.DefBuckets,
		}),
		StepsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "agentgraph", Subsystem: "engine", Name: "steps_total",
			Help: "Scheduling rounds executed across all runs.",
		}),
		CheckpointSaves: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "agentgraph", Subsystem: "engine", Name: "checkpoint_saves_total",
			Help: "Checkpoints successfully persisted.",
		}),
		RunsTerminal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "agentgraph", Subsystem: "engine", Name: "runs_terminal_total",
			Help: "Runs reaching a terminal state, labeled by outcome.",
		}, []string{"outcome"}),
	}
	for _, c := range []prometheus.Collector{m.NodesInflight, m.ReadyQueueDepth, m.StepDuration, m.StepsTotal, m.CheckpointSaves, m.RunsTerminal} {
		reg.MustRegister(c)
	}
	return m
}
