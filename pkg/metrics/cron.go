package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	runSuccess = "success"
	runFailure = "failure"
	runSkipped = "skipped"
)

// CronJobMetrics tracks scheduled job runs.
type CronJobMetrics struct {
	duration    *prometheus.HistogramVec
	runs        *prometheus.CounterVec
	items       *prometheus.CounterVec
	lastSuccess *prometheus.GaugeVec
}

func NewCronJobMetrics(reg prometheus.Registerer) *CronJobMetrics {
	if reg == nil {
		return &CronJobMetrics{}
	}
	m := &CronJobMetrics{
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "cron_job_duration_seconds",
			Help:    "Scheduled job run time in seconds.",
			Buckets: []float64{0.05, 0.1, 0.5, 1, 5, 15, 60, 300},
		}, []string{"job"}),
		runs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "cron_job_runs_total",
			Help: "Scheduled job runs by result (success, failure, skipped).",
		}, []string{"job", "result"}),
		items: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "cron_job_items_total",
			Help: "Rows affected by scheduled jobs.",
		}, []string{"job"}),
		lastSuccess: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "cron_job_last_success_timestamp_seconds",
			Help: "Unix time of the last successful run.",
		}, []string{"job"}),
	}
	reg.MustRegister(m.duration, m.runs, m.items, m.lastSuccess)
	return m
}

// ObserveRun records a finished run. items is ignored when err is set.
func (m *CronJobMetrics) ObserveRun(job string, took time.Duration, items int64, err error) {
	if m == nil || m.runs == nil {
		return
	}
	job = normalizeLabel(job)
	m.duration.WithLabelValues(job).Observe(took.Seconds())
	if err != nil {
		m.runs.WithLabelValues(job, runFailure).Inc()
		return
	}
	m.runs.WithLabelValues(job, runSuccess).Inc()
	if items > 0 {
		m.items.WithLabelValues(job).Add(float64(items))
	}
	m.lastSuccess.WithLabelValues(job).SetToCurrentTime()
}

// IncSkipped counts runs skipped because another worker held the job lock.
func (m *CronJobMetrics) IncSkipped(job string) {
	if m == nil || m.runs == nil {
		return
	}
	m.runs.WithLabelValues(normalizeLabel(job), runSkipped).Inc()
}

func normalizeLabel(v string) string {
	if v == "" {
		return "unknown"
	}
	return v
}
