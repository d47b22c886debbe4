package service

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetricsServiceCounters(t *testing.T) {
	m := NewMetricsService()
	m.RecordMutation("create", "ok")
	m.RecordMutation("create", "ok")
	m.RecordMutation("update", "VERSION_CONFLICT")
	m.RecordAudit(AuditResultDropped)
	m.RecordRateLimited()
	m.ObserveStatistics("class", 10*time.Millisecond)
	m.ObserveHTTPRequest(http.MethodGet, "/x", 200, time.Millisecond)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.mutationTotal.WithLabelValues("create", "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.mutationTotal.WithLabelValues("update", "VERSION_CONFLICT")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.auditTotal.WithLabelValues(AuditResultDropped)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.rateLimitRejects))
}

func TestMetricsHandlerExposesRegistry(t *testing.T) {
	m := NewMetricsService()
	m.RecordAudit(AuditResultWritten)

	w := httptest.NewRecorder()
	m.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, w.Code)
	assert.True(t, strings.Contains(w.Body.String(), `attendance_audit_entries_total{result="written"} 1`))
}

func TestNilMetricsServiceIsSafe(t *testing.T) {
	var m *MetricsService
	m.RecordMutation("create", "ok")
	m.RecordAudit(AuditResultQueued)
	m.ObserveHTTPRequest("GET", "/", 200, 0)

	w := httptest.NewRecorder()
	m.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}
