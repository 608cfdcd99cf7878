package queue

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

type PrometheusMetrics struct {
	registry     prometheus.Registerer
	jobsTotal    *prometheus.CounterVec
	jobDuration  *prometheus.HistogramVec
	activeGroups prometheus.Gauge
	queuedJobs   prometheus.Gauge
}

func InitPrometheusMetrics(namespace string, reg prometheus.Registerer) *PrometheusMetrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	m := &PrometheusMetrics{
		registry: reg,
		jobsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "queue_jobs_total",
				Help:      "Total number of group queue jobs",
			},
			[]string{"kind", "status"},
		),
		jobDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "queue_job_duration_seconds",
				Help:      "Duration of group queue jobs",
				Buckets:   []float64{.1, .5, 1, 5, 10, 30, 60, 120, 300, 600},
			},
			[]string{"kind"},
		),
		activeGroups: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "queue_active_groups",
				Help:      "Number of groups with a job currently running",
			},
		),
		queuedJobs: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "queue_queued_jobs",
				Help:      "Number of jobs waiting for their group's turn",
			},
		),
	}

	reg.MustRegister(
		m.jobsTotal,
		m.jobDuration,
		m.activeGroups,
		m.queuedJobs,
	)

	return m
}

func (m *PrometheusMetrics) RecordJob(kind, status string, duration time.Duration) {
	m.jobsTotal.WithLabelValues(kind, status).Inc()
	m.jobDuration.WithLabelValues(kind).Observe(duration.Seconds())
}

func (m *PrometheusMetrics) SetActiveGroups(n int) {
	m.activeGroups.Set(float64(n))
}

func (m *PrometheusMetrics) SetQueuedJobs(n int) {
	m.queuedJobs.Set(float64(n))
}
