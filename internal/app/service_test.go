package app

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"trading-signalsv1/config"
	"trading-signalsv1/internal/api"
	"trading-signalsv1/internal/model"
	sqlitestore "trading-signalsv1/internal/store/sqlite"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testConfig() *config.Config {
	cfg := config.Default()
	cfg.Service.HTTPAddr = "127.0.0.1:0"
	cfg.Service.ShutdownTimeout = time.Second
	cfg.Provider.Seed = 7
	cfg.MonteCarlo.Seed = 7
	cfg.MonteCarlo.Paths = 1000
	cfg.Scheduler.Symbols = []string{"BTC/USDT"}
	cfg.Scheduler.Timeframes = []model.Timeframe{model.TF1h, model.TF4h}
	return cfg
}

func TestService_CycleServesQueries(t *testing.T) {
	svc, err := New(testConfig(), quietLogger())
	require.NoError(t, err)
	defer svc.Close()

	snap := svc.RunCycle(context.Background())
	require.NotNil(t, snap)
	assert.Len(t, snap.Entries, 2)
	assert.Empty(t, snap.Failures)

	rec := httptest.NewRecorder()
	svc.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/signals", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var body api.SignalsResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, snap.ID, body.SnapshotID)
	assert.Len(t, body.Signals, 2)

	rec = httptest.NewRecorder()
	svc.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/signal?symbol=BTC/USDT&timeframe=1h", nil))
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	svc.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	svc.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "go_goroutines")

	assert.Equal(t, 2, svc.Status().RequestsThisWindow)
}

func TestService_RunPublishesAndPersists(t *testing.T) {
	mr := miniredis.RunT(t)
	dbPath := filepath.Join(t.TempDir(), "data", "candles.db")

	cfg := testConfig()
	cfg.Redis.Enabled = true
	cfg.Redis.Addr = mr.Addr()
	cfg.SQLite.Enabled = true
	cfg.SQLite.Path = dbPath

	svc, err := New(cfg, quietLogger())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- svc.Run(ctx) }()

	require.Eventually(t, func() bool { return mr.Exists("signal:latest") }, 5*time.Second, 20*time.Millisecond)
	assert.True(t, mr.Exists("signal:BTC/USDT:1h"))

	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after cancel")
	}

	store, err := sqlitestore.New(sqlitestore.Config{DBPath: dbPath})
	require.NoError(t, err)
	defer store.Close()
	bars, err := store.LoadCandles(context.Background(), model.Key{Symbol: "BTC/USDT", Timeframe: model.TF1h}, 50)
	require.NoError(t, err)
	assert.NotEmpty(t, bars)
}

func TestService_RedisDownIsOptional(t *testing.T) {
	cfg := testConfig()
	cfg.Redis.Enabled = true
	cfg.Redis.Addr = "127.0.0.1:1"

	svc, err := New(cfg, quietLogger())
	require.NoError(t, err)
	defer svc.Close()
	assert.Nil(t, svc.publisher)
}

func TestService_InvalidProvider(t *testing.T) {
	cfg := testConfig()
	cfg.Provider.Name = "polygon"
	_, err := New(cfg, quietLogger())
	assert.ErrorIs(t, err, model.ErrInvalidParameters)
}
