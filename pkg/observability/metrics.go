// Package observability holds the Prometheus collectors and tracing setup.
package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "advisor_reports"

// Metrics is safe to use as a nil pointer; every recorder becomes a no-op.
type Metrics struct {
	JobsSubmitted    prometheus.Counter
	JobsFinished     *prometheus.CounterVec
	JobRetries       prometheus.Counter
	JobsReclaimed    prometheus.Counter
	JobsRunning      prometheus.Gauge
	QueueDepth       prometheus.Gauge
	JobDuration      *prometheus.HistogramVec
	EngineRuns       *prometheus.CounterVec
	AnomaliesCreated prometheus.Counter
	CostPoints       prometheus.Counter
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		JobsSubmitted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "jobs_submitted_total",
			Help:      "Report jobs accepted for processing.",
		}),
		JobsFinished: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "jobs_finished_total",
			Help:      "Report jobs that reached a terminal status.",
		}, []string{"status", "error_kind"}),
		JobRetries: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "job_retries_total",
			Help:      "Job attempts restarted after an execution timeout.",
		}),
		JobsReclaimed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "jobs_reclaimed_total",
			Help:      "Running jobs taken over after their lease expired.",
		}),
		JobsRunning: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "jobs_running",
			Help:      "Jobs currently executing in this process.",
		}),
		QueueDepth: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "queue_depth",
			Help:      "Pending jobs waiting for a worker.",
		}),
		JobDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "job_duration_seconds",
			Help:      "Time from claim to terminal status.",
			Buckets:   prometheus.ExponentialBuckets(0.05, 2, 12),
		}, []string{"status"}),
		EngineRuns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "engine_subscription_runs_total",
			Help:      "Anomaly and forecast evaluations per subscription by outcome.",
		}, []string{"engine", "outcome"}),
		AnomaliesCreated: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "anomalies_created_total",
			Help:      "New anomalies recorded.",
		}),
		CostPoints: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cost_points_ingested_total",
			Help:      "Cost data points upserted.",
		}),
	}

	if reg != nil {
		reg.MustRegister(
			m.JobsSubmitted, m.JobsFinished, m.JobRetries, m.JobsReclaimed, m.JobsRunning,
			m.QueueDepth, m.JobDuration, m.EngineRuns, m.AnomaliesCreated, m.CostPoints,
		)
	}
	return m
}

func (m *Metrics) JobSubmitted() {
	if m == nil {
		return
	}
	m.JobsSubmitted.Inc()
}

func (m *Metrics) JobFinished(status, errorKind string, took time.Duration) {
	if m == nil {
		return
	}
	m.JobsFinished.WithLabelValues(status, errorKind).Inc()
	if took > 0 {
		m.JobDuration.WithLabelValues(status).Observe(took.Seconds())
	}
}

func (m *Metrics) JobRetried() {
	if m == nil {
		return
	}
	m.JobRetries.Inc()
}

func (m *Metrics) JobReclaimed() {
	if m == nil {
		return
	}
	m.JobsReclaimed.Inc()
}

func (m *Metrics) RunningDelta(delta float64) {
	if m == nil {
		return
	}
	m.JobsRunning.Add(delta)
}

func (m *Metrics) SetQueueDepth(n int) {
	if m == nil {
		return
	}
	m.QueueDepth.Set(float64(n))
}

func (m *Metrics) EngineOutcome(engine, outcome string) {
	if m == nil {
		return
	}
	m.EngineRuns.WithLabelValues(engine, outcome).Inc()
}

func (m *Metrics) AnomalyCreated() {
	if m == nil {
		return
	}
	m.AnomaliesCreated.Inc()
}

func (m *Metrics) CostPointsIngested(n int) {
	if m == nil {
		return
	}
	m.CostPoints.Add(float64(n))
}
