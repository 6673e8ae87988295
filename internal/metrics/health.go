package metrics

import (
	"context"
	"database/sql"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	goredis "github.com/go-redis/redis/v8"
)

// HealthStatus represents the system health.
type HealthStatus struct {
	mu sync.RWMutex

	RedisEnabled   bool
	RedisConnected bool
	SQLiteEnabled  bool
	SQLiteOK       bool
	LastCycleAt    time.Time
	CycleInterval  time.Duration
	PairsOK        int
	PairsFailed    int

	// Liveness probe results
	RedisLatencyMs  float64
	SQLiteLatencyMs float64
	LastCheckAt     time.Time
	StartedAt       time.Time

	now func() time.Time
}

// NewHealthStatus returns a default health status.
func NewHealthStatus(cycleInterval time.Duration) *HealthStatus {
	return &HealthStatus{
		CycleInterval: cycleInterval,
		StartedAt:     time.Now(),
		now:           time.Now,
	}
}

// RecordCycle stores the outcome of a finished scheduler cycle.
func (h *HealthStatus) RecordCycle(at time.Time, ok, failed int) {
	h.mu.Lock()
	h.LastCycleAt = at
	h.PairsOK = ok
	h.PairsFailed = failed
	h.mu.Unlock()
}

// CheckRedis pings Redis and records latency + connectivity.
func (h *HealthStatus) CheckRedis(ctx context.Context, rdb *goredis.Client) {
	start := time.Now()
	err := rdb.Ping(ctx).Err()
	latency := time.Since(start)

	h.mu.Lock()
	h.RedisEnabled = true
	h.RedisConnected = err == nil
	h.RedisLatencyMs = float64(latency.Microseconds()) / 1000.0
	h.LastCheckAt = time.Now()
	h.mu.Unlock()
}

// CheckSQLite pings the database and records latency + health.
func (h *HealthStatus) CheckSQLite(ctx context.Context, db *sql.DB) {
	start := time.Now()
	err := db.PingContext(ctx)
	latency := time.Since(start)

	h.mu.Lock()
	h.SQLiteEnabled = true
	h.SQLiteOK = err == nil
	h.SQLiteLatencyMs = float64(latency.Microseconds()) / 1000.0
	h.LastCheckAt = time.Now()
	h.mu.Unlock()
}

// StartLivenessChecker runs periodic dependency checks until ctx ends.
// Either client may be nil.
func (h *HealthStatus) StartLivenessChecker(ctx context.Context, rdb *goredis.Client, sqlDB *sql.DB, interval time.Duration) {
	check := func() {
		probeCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
		defer cancel()
		if rdb != nil {
			h.CheckRedis(probeCtx, rdb)
		}
		if sqlDB != nil {
			h.CheckSQLite(probeCtx, sqlDB)
		}
	}
	go func() {
		check()
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				check()
			}
		}
	}()
}

// Report is the JSON body of the health endpoint.
type Report struct {
	Status          string  `json:"status"`
	Uptime          string  `json:"uptime"`
	LastCycleAt     string  `json:"last_cycle_at,omitempty"`
	CycleAge        string  `json:"cycle_age,omitempty"`
	PairsOK         int     `json:"pairs_ok"`
	PairsFailed     int     `json:"pairs_failed"`
	RedisConnected  *bool   `json:"redis_connected,omitempty"`
	RedisLatencyMs  float64 `json:"redis_latency_ms,omitempty"`
	SQLiteOK        *bool   `json:"sqlite_ok,omitempty"`
	SQLiteLatencyMs float64 `json:"sqlite_latency_ms,omitempty"`
}

// Report summarises health. The service is "degraded" when a configured
// dependency is down or no cycle finished within two intervals, and
// "starting" before the first cycle.
func (h *HealthStatus) Report() (Report, int) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	now := h.now()
	r := Report{
		Status:      "healthy",
		Uptime:      now.Sub(h.StartedAt).Round(time.Second).String(),
		PairsOK:     h.PairsOK,
		PairsFailed: h.PairsFailed,
	}
	code := http.StatusOK

	if h.RedisEnabled {
		v := h.RedisConnected
		r.RedisConnected = &v
		r.RedisLatencyMs = h.RedisLatencyMs
		if !v {
			r.Status = "degraded"
		}
	}
	if h.SQLiteEnabled {
		v := h.SQLiteOK
		r.SQLiteOK = &v
		r.SQLiteLatencyMs = h.SQLiteLatencyMs
		if !v {
			r.Status = "degraded"
		}
	}

	switch {
	case h.LastCycleAt.IsZero():
		r.Status = "starting"
		code = http.StatusServiceUnavailable
	default:
		age := now.Sub(h.LastCycleAt)
		r.LastCycleAt = h.LastCycleAt.Format(time.RFC3339)
		r.CycleAge = age.Round(time.Millisecond).String()
		if h.CycleInterval > 0 && age > 2*h.CycleInterval {
			r.Status = "degraded"
		}
	}
	if r.Status == "degraded" {
		code = http.StatusServiceUnavailable
	}
	return r, code
}

// ServeHTTP handles the /healthz endpoint.
func (h *HealthStatus) ServeHTTP(w http.ResponseWriter, _ *http.Request) {
	r, code := h.Report()
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(r)
}
