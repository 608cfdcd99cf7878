package scheduler

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

type PrometheusMetrics struct {
	registry    prometheus.Registerer
	runsTotal   *prometheus.CounterVec
	runDuration prometheus.Histogram
	dueTasks    prometheus.Counter
}

func InitPrometheusMetrics(namespace string, reg prometheus.Registerer) *PrometheusMetrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	m := &PrometheusMetrics{
		registry: reg,
		runsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "scheduler_runs_total",
				Help:      "Total number of scheduled task runs",
			},
			[]string{"status"},
		),
		runDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "scheduler_run_duration_seconds",
				Help:      "Duration of scheduled task runs",
				Buckets:   []float64{1, 5, 10, 30, 60, 120, 300, 600, 1200},
			},
		),
		dueTasks: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "scheduler_due_tasks_total",
				Help:      "Total number of tasks the poll loop found due",
			},
		),
	}

	reg.MustRegister(
		m.runsTotal,
		m.runDuration,
		m.dueTasks,
	)

	return m
}

func (m *PrometheusMetrics) RecordRun(status string, duration time.Duration) {
	m.runsTotal.WithLabelValues(status).Inc()
	m.runDuration.Observe(duration.Seconds())
}

func (m *PrometheusMetrics) AddDueTasks(n int) {
	m.dueTasks.Add(float64(n))
}
