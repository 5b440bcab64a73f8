package observability

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/cylinderhub/cylinderhub/internal/access"
	jobmetrics "github.com/cylinderhub/cylinderhub/internal/jobs"
)

// Metrics mengumpulkan metrik Prometheus untuk konsol admin.
type Metrics struct {
	registry        *prometheus.Registry
	handler         http.Handler
	requestsTotal   *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	sessionsStarted *prometheus.CounterVec
	sessionsEnded   *prometheus.CounterVec
	guardDecisions  *prometheus.CounterVec
	jobs            *jobmetrics.Metrics
}

// NewMetrics menginisialisasi registry dan metrik dasar.
func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()
	requests := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "cylinderhub_http_requests_total",
		Help: "Jumlah permintaan HTTP berdasarkan route dan status.",
	}, []string{"route", "code"})
	duration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "cylinderhub_http_request_duration_seconds",
		Help:    "Durasi permintaan HTTP per route.",
		Buckets: prometheus.DefBuckets,
	}, []string{"route"})
	started := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "cylinderhub_sessions_started_total",
		Help: "Sessions adopted by the console, by source and role.",
	}, []string{"source", "role"})
	ended := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "cylinderhub_sessions_ended_total",
		Help: "Sessions ended by logout or forced invalidation, by reason and role.",
	}, []string{"reason", "role"})
	decisions := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "cylinderhub_guard_decisions_total",
		Help: "Access guard outcomes by requirement.",
	}, []string{"requirement", "outcome"})
	registry.MustRegister(
		requests,
		duration,
		started,
		ended,
		decisions,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return &Metrics{
		registry:        registry,
		handler:         promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
		requestsTotal:   requests,
		requestDuration: duration,
		sessionsStarted: started,
		sessionsEnded:   ended,
		guardDecisions:  decisions,
		jobs:            jobmetrics.NewMetrics(registry),
	}
}

// Handler mengembalikan http.Handler untuk endpoint /metrics.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, http.StatusText(http.StatusServiceUnavailable), http.StatusServiceUnavailable)
		})
	}
	return m.handler
}

// Middleware mencatat metrik untuk setiap permintaan HTTP.
func (m *Metrics) Middleware(next http.Handler) http.Handler {
	if m == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		recorder := statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(&recorder, r)
		route := routePattern(r)
		m.requestsTotal.WithLabelValues(route, strconv.Itoa(recorder.status)).Inc()
		m.requestDuration.WithLabelValues(route).Observe(time.Since(start).Seconds())
	})
}

// SessionStarted counts an adopted session.
func (m *Metrics) SessionStarted(source string, role access.Role) {
	if m == nil {
		return
	}
	m.sessionsStarted.WithLabelValues(source, string(role)).Inc()
}

// SessionEnded counts a session that ended.
func (m *Metrics) SessionEnded(reason string, role access.Role) {
	if m == nil {
		return
	}
	m.sessionsEnded.WithLabelValues(reason, string(role)).Inc()
}

// GuardDecision counts an access guard outcome.
func (m *Metrics) GuardDecision(requirement, outcome string) {
	if m == nil {
		return
	}
	m.guardDecisions.WithLabelValues(requirement, outcome).Inc()
}

// Jobs returns the background job collectors sharing this registry.
func (m *Metrics) Jobs() *jobmetrics.Metrics {
	if m == nil {
		return nil
	}
	return m.jobs
}

// Registerer mengekspos registry untuk pendaftaran metrik khusus.
func (m *Metrics) Registerer() prometheus.Registerer {
	if m == nil {
		return prometheus.DefaultRegisterer
	}
	return m.registry
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func routePattern(r *http.Request) string {
	if routeCtx := chi.RouteContext(r.Context()); routeCtx != nil {
		if pattern := routeCtx.RoutePattern(); pattern != "" {
			return pattern
		}
	}
	return "unknown"
}
