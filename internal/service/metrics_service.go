package service

import (
	"fmt"
	"net/http"
	"runtime"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Audit outcomes recorded by the audit trail.
const (
	AuditResultQueued  = "queued"
	AuditResultDropped = "dropped"
	AuditResultWritten = "written"
	AuditResultFailed  = "failed"
)

// MetricsService encapsulates Prometheus instrumentation for the attendance API.
type MetricsService struct {
	registry         *prometheus.Registry
	handler          http.Handler
	requestDuration  *prometheus.HistogramVec
	requestTotal     *prometheus.CounterVec
	mutationTotal    *prometheus.CounterVec
	auditTotal       *prometheus.CounterVec
	statsDuration    *prometheus.HistogramVec
	rateLimitRejects prometheus.Counter
}

// NewMetricsService registers the collectors on a private registry.
func NewMetricsService() *MetricsService {
	registry := prometheus.NewRegistry()

	requestDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "http_request_duration_seconds",
		Help:    "Duration of HTTP requests in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path", "status"})

	requestTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "http_requests_total",
		Help: "Total number of HTTP requests",
	}, []string{"method", "path", "status"})

	mutationTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "attendance_mutations_total",
		Help: "Attendance lifecycle operations by outcome code",
	}, []string{"operation", "outcome"})

	auditTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "attendance_audit_entries_total",
		Help: "Audit entries by delivery result",
	}, []string{"result"})

	statsDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "attendance_statistics_duration_seconds",
		Help:    "Time spent computing attendance aggregates",
		Buckets: prometheus.DefBuckets,
	}, []string{"kind"})

	rateLimitRejects := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "http_rate_limited_total",
		Help: "Requests rejected by the rate limiter",
	})

	goroutines := prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "goroutines_total",
		Help: "Total number of goroutines",
	}, func() float64 {
		return float64(runtime.NumGoroutine())
	})

	registry.MustRegister(requestDuration, requestTotal, mutationTotal, auditTotal, statsDuration, rateLimitRejects, goroutines)

	return &MetricsService{
		registry:         registry,
		handler:          promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
		requestDuration:  requestDuration,
		requestTotal:     requestTotal,
		mutationTotal:    mutationTotal,
		auditTotal:       auditTotal,
		statsDuration:    statsDuration,
		rateLimitRejects: rateLimitRejects,
	}
}

// Handler exposes the Prometheus HTTP handler.
func (m *MetricsService) Handler() http.Handler {
	if m == nil {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusServiceUnavailable)
		})
	}
	return m.handler
}

// Registry returns the underlying registry, mainly for tests.
func (m *MetricsService) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// ObserveHTTPRequest records request latency and count.
func (m *MetricsService) ObserveHTTPRequest(method, path string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	labelStatus := fmt.Sprintf("%d", status)
	m.requestDuration.WithLabelValues(method, path, labelStatus).Observe(duration.Seconds())
	m.requestTotal.WithLabelValues(method, path, labelStatus).Inc()
}

// RecordMutation counts a lifecycle operation. Outcome is "ok" or the error code returned to the caller.
func (m *MetricsService) RecordMutation(operation, outcome string) {
	if m == nil {
		return
	}
	m.mutationTotal.WithLabelValues(operation, outcome).Inc()
}

// RecordAudit counts an audit delivery result.
func (m *MetricsService) RecordAudit(result string) {
	if m == nil {
		return
	}
	m.auditTotal.WithLabelValues(result).Inc()
}

// ObserveStatistics records how long an aggregate took to compute.
func (m *MetricsService) ObserveStatistics(kind string, duration time.Duration) {
	if m == nil {
		return
	}
	m.statsDuration.WithLabelValues(kind).Observe(duration.Seconds())
}

// RecordRateLimited counts a throttled request.
func (m *MetricsService) RecordRateLimited() {
	if m == nil {
		return
	}
	m.rateLimitRejects.Inc()
}
