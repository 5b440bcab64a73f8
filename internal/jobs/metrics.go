// Package jobmetrics holds the Prometheus collectors of background jobs.
package jobmetrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Status label values of cylinderhub_jobs_total.
const (
	StatusSuccess = "success"
	StatusFailure = "failure"
)

// Metrics exposes Prometheus collectors for background jobs.
type Metrics struct {
	runs        *prometheus.CounterVec
	failures    *prometheus.CounterVec
	duration    *prometheus.HistogramVec
	lastSuccess *prometheus.GaugeVec
	swept       *prometheus.CounterVec
	now         func() time.Time
}

// NewMetrics builds the job collectors and registers them with registerer.
// A nil registerer leaves them unregistered.
func NewMetrics(registerer prometheus.Registerer) *Metrics {
	m := &Metrics{
		runs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "cylinderhub_jobs_total",
			Help: "Job executions by job name and status.",
		}, []string{"job", "status"}),
		failures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "cylinderhub_jobs_failures_total",
			Help: "Failed job executions by job name.",
		}, []string{"job"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "cylinderhub_job_duration_seconds",
			Help:    "Job execution time in seconds.",
			Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 15, 60},
		}, []string{"job"}),
		lastSuccess: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "cylinderhub_job_last_success_timestamp_seconds",
			Help: "Unix time of the last successful run by job name.",
		}, []string{"job"}),
		swept: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "cylinderhub_sessions_swept_total",
			Help: "Stored sessions removed by the sweep job, by reason.",
		}, []string{"reason"}),
		now: time.Now,
	}
	if registerer != nil {
		registerer.MustRegister(m.runs, m.failures, m.duration, m.lastSuccess, m.swept)
	}
	return m
}

// Tracker times one job run.
type Tracker struct {
	metrics *Metrics
	job     string
	start   time.Time
}

// Track starts timing a run of job. A nil Metrics yields a tracker that
// records nothing.
func (m *Metrics) Track(job string) *Tracker {
	start := time.Now()
	if m != nil {
		start = m.now()
	}
	return &Tracker{metrics: m, job: job, start: start}
}

// End records the outcome of the run and returns err unchanged.
func (t *Tracker) End(err error) error {
	if t == nil || t.metrics == nil || t.job == "" {
		return err
	}
	m := t.metrics
	end := m.now()
	m.duration.WithLabelValues(t.job).Observe(end.Sub(t.start).Seconds())
	if err != nil {
		m.failures.WithLabelValues(t.job).Inc()
		m.runs.WithLabelValues(t.job, StatusFailure).Inc()
		return err
	}
	m.runs.WithLabelValues(t.job, StatusSuccess).Inc()
	m.lastSuccess.WithLabelValues(t.job).Set(float64(end.Unix()))
	return nil
}

// AddSwept counts stored sessions removed by a sweep for reason.
func (m *Metrics) AddSwept(reason string, count int) {
	if m == nil || count <= 0 || reason == "" {
		return
	}
	m.swept.WithLabelValues(reason).Add(float64(count))
}
