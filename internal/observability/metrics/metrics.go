package metrics

import "github.com/prometheus/client_golang/prometheus"

// PipelineMetrics exposes counters/histograms for the webhook pipeline.
type PipelineMetrics struct {
	inboundTotal      *prometheus.CounterVec
	stageLatency      *prometheus.HistogramVec
	orchestratorTotal *prometheus.CounterVec
	dispatchTotal     *prometheus.CounterVec
	taskFailures      *prometheus.CounterVec
}

func NewPipelineMetrics(reg prometheus.Registerer) *PipelineMetrics {
	m := &PipelineMetrics{
		inboundTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "leadflow",
			Subsystem: "pipeline",
			Name:      "inbound_total",
			Help:      "Inbound webhook events by channel and outcome",
		}, []string{"channel", "outcome"}),
		stageLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "leadflow",
			Subsystem: "pipeline",
			Name:      "stage_latency_seconds",
			Help:      "Latency of pipeline stages",
			Buckets:   prometheus.DefBuckets,
		}, []string{"stage"}),
		orchestratorTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "leadflow",
			Subsystem: "pipeline",
			Name:      "orchestrator_total",
			Help:      "Agent replies by model provider and outcome",
		}, []string{"provider", "outcome"}),
		dispatchTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "leadflow",
			Subsystem: "pipeline",
			Name:      "dispatch_total",
			Help:      "Outbound sends by channel and outcome",
		}, []string{"channel", "outcome"}),
		taskFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "leadflow",
			Subsystem: "worker",
			Name:      "task_failures_total",
			Help:      "Background task failures by task and reason",
		}, []string{"task", "reason"}),
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(m.inboundTotal, m.stageLatency, m.orchestratorTotal, m.dispatchTotal, m.taskFailures)
	return m
}

func (m *PipelineMetrics) ObserveInbound(channel, outcome string) {
	if m == nil {
		return
	}
	m.inboundTotal.WithLabelValues(channel, outcome).Inc()
}

func (m *PipelineMetrics) ObserveStage(stage string, seconds float64) {
	if m == nil {
		return
	}
	m.stageLatency.WithLabelValues(stage).Observe(seconds)
}

func (m *PipelineMetrics) ObserveOrchestrator(provider, outcome string) {
	if m == nil {
		return
	}
	m.orchestratorTotal.WithLabelValues(provider, outcome).Inc()
}

func (m *PipelineMetrics) ObserveDispatch(channel, outcome string) {
	if m == nil {
		return
	}
	m.dispatchTotal.WithLabelValues(channel, outcome).Inc()
}

// TaskFailed records a failed background task; reason is error, panic or timeout.
func (m *PipelineMetrics) TaskFailed(task, reason string) {
	if m == nil {
		return
	}
	m.taskFailures.WithLabelValues(task, reason).Inc()
}
