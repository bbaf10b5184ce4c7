package service

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetricsServiceExposesCollectors(t *testing.T) {
	svc := NewMetricsService()

	svc.ObserveHTTPRequest(http.MethodPost, "/api/v1/registrations", http.StatusCreated, 25*time.Millisecond)
	svc.RecordRegistration("register", "success")
	svc.RecordRegistration("register", "SECTION_FULL")
	svc.RecordCacheOperation(true, time.Millisecond)
	svc.RecordCacheOperation(false, time.Millisecond)
	svc.ObserveDBQuery("transcript_rows", 5*time.Millisecond)

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	w := httptest.NewRecorder()
	svc.Handler().ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	body := w.Body.String()
	assert.Contains(t, body, `registrations_total{operation="register",outcome="success"} 1`)
	assert.Contains(t, body, `registrations_total{operation="register",outcome="SECTION_FULL"} 1`)
	assert.Contains(t, body, "cache_hits_total 1")
	assert.Contains(t, body, "cache_misses_total 1")
	assert.Contains(t, body, "cache_hit_ratio 0.5")
	assert.Contains(t, body, `db_query_duration_seconds_count{query="transcript_rows"} 1`)
	assert.Contains(t, body, `http_requests_total{method="POST",path="/api/v1/registrations",status="201"} 1`)
}

func TestMetricsServiceNilSafe(t *testing.T) {
	var svc *MetricsService
	svc.ObserveHTTPRequest(http.MethodGet, "/", http.StatusOK, time.Millisecond)
	svc.RecordRegistration("register", "success")
	svc.RecordCacheOperation(true, time.Millisecond)
	svc.ObserveDBQuery("q", time.Millisecond)

	w := httptest.NewRecorder()
	svc.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}
