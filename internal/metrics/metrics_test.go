package metrics

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/go-redis/redis/v8"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"trading-signalsv1/internal/model"
)

func TestObserveBreaker(t *testing.T) {
	m := NewMetrics(prometheus.NewRegistry())
	observe := ObserveBreaker(m.BreakerState, m.BreakerTrips)

	observe(model.CircuitClosed, model.CircuitOpen)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.BreakerState))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.BreakerTrips))

	observe(model.CircuitOpen, model.CircuitHalfOpen)
	assert.Equal(t, 2.0, testutil.ToFloat64(m.BreakerState))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.BreakerTrips))

	// nil trips counter only tracks the state.
	ObserveBreaker(m.RedisCircuitBreakerState, nil)(model.CircuitClosed, model.CircuitOpen)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.RedisCircuitBreakerState))
}

func TestHandler_ServesRegistry(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)
	m.SignalsPublished.Set(12)

	rec := httptest.NewRecorder()
	Handler(reg).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "signalengine_signals_published 12")
}

func fixedHealth(interval time.Duration, now time.Time) *HealthStatus {
	h := NewHealthStatus(interval)
	h.StartedAt = now.Add(-time.Hour)
	h.now = func() time.Time { return now }
	return h
}

func TestHealth_Report(t *testing.T) {
	now := time.Date(2024, 5, 10, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name   string
		setup  func(h *HealthStatus)
		status string
		code   int
	}{
		{"starting", func(h *HealthStatus) {}, "starting", http.StatusServiceUnavailable},
		{"healthy", func(h *HealthStatus) { h.RecordCycle(now.Add(-30*time.Second), 4, 0) }, "healthy", http.StatusOK},
		{"stale cycle", func(h *HealthStatus) { h.RecordCycle(now.Add(-3*time.Minute), 4, 0) }, "degraded", http.StatusServiceUnavailable},
		{"redis down", func(h *HealthStatus) {
			h.RecordCycle(now, 4, 0)
			h.RedisEnabled = true
		}, "degraded", http.StatusServiceUnavailable},
		{"sqlite ok", func(h *HealthStatus) {
			h.RecordCycle(now, 3, 1)
			h.SQLiteEnabled = true
			h.SQLiteOK = true
		}, "healthy", http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := fixedHealth(time.Minute, now)
			tt.setup(h)
			r, code := h.Report()
			assert.Equal(t, tt.status, r.Status)
			assert.Equal(t, tt.code, code)
		})
	}
}

func TestHealth_CheckRedisAndServe(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	defer rdb.Close()

	now := time.Now()
	h := fixedHealth(time.Minute, now)
	h.RecordCycle(now, 2, 1)
	h.CheckRedis(context.Background(), rdb)

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var r Report
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &r))
	assert.Equal(t, "healthy", r.Status)
	assert.Equal(t, 2, r.PairsOK)
	assert.Equal(t, 1, r.PairsFailed)
	require.NotNil(t, r.RedisConnected)
	assert.True(t, *r.RedisConnected)

	mr.Close()
	h.CheckRedis(context.Background(), rdb)
	_, code := h.Report()
	assert.Equal(t, http.StatusServiceUnavailable, code)
}
