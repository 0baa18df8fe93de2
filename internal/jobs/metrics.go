package jobmetrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics exposes Prometheus collectors for background jobs.
type Metrics struct {
	runs     *prometheus.CounterVec
	failures *prometheus.CounterVec
	skipped  *prometheus.CounterVec
	duration *prometheus.HistogramVec
}

// NewMetrics registers the job metrics against registerer. A nil registerer yields nil
// metrics; every method tolerates a nil receiver.
func NewMetrics(registerer prometheus.Registerer) *Metrics {
	if registerer == nil {
		return nil
	}
	runs := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "rentora_jobs_total",
		Help: "Total job executions partitioned by job name and status.",
	}, []string{"job", "status"})
	failures := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "rentora_jobs_failures_total",
		Help: "Total failures observed for background jobs.",
	}, []string{"job"})
	skipped := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "rentora_jobs_skipped_total",
		Help: "Jobs dropped without side effects, by reason.",
	}, []string{"job", "reason"})
	duration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "rentora_job_duration_seconds",
		Help:    "Duration in seconds of background job executions.",
		Buckets: prometheus.DefBuckets,
	}, []string{"job"})
	registerer.MustRegister(runs, failures, skipped, duration)
	return &Metrics{runs: runs, failures: failures, skipped: skipped, duration: duration}
}

// Tracker provides lifecycle instrumentation helpers for a single job run.
type Tracker struct {
	metrics *Metrics
	job     string
	start   time.Time
}

// Track spawns a tracker for the given job name.
func (m *Metrics) Track(job string) *Tracker {
	return &Tracker{metrics: m, job: job, start: time.Now()}
}

// End finalises the tracker, recording duration, success/failure counts and
// returning the provided error untouched.
func (t *Tracker) End(err error) error {
	if t == nil || t.metrics == nil || t.job == "" {
		return err
	}
	status := "success"
	if err != nil {
		status = "failure"
		t.metrics.failures.WithLabelValues(t.job).Inc()
	}
	t.metrics.runs.WithLabelValues(t.job, status).Inc()
	t.metrics.duration.WithLabelValues(t.job).Observe(time.Since(t.start).Seconds())
	return err
}

// Skip counts a run dropped for reason.
func (m *Metrics) Skip(job, reason string) {
	if m == nil {
		return
	}
	m.skipped.WithLabelValues(job, reason).Inc()
}
