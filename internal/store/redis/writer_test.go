package redis

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/go-redis/redis/v8"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"trading-signalsv1/internal/metrics"
	"trading-signalsv1/internal/model"
	"trading-signalsv1/internal/signalcache"
)

// setupTestRedis creates a miniredis instance and a publisher bound to it.
func setupTestRedis(t *testing.T) (*Publisher, *miniredis.Miniredis, *metrics.Metrics) {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err, "failed to start miniredis")
	t.Cleanup(mr.Close)

	client := goredis.NewClient(&goredis.Options{Addr: mr.Addr(), MaxRetries: -1})
	t.Cleanup(func() { client.Close() })

	m := metrics.NewMetrics(prometheus.NewRegistry())
	p := NewWithClient(client, Config{TTL: 10 * time.Minute, MaxFailures: 2, Cooldown: time.Minute}, m)
	return p, mr, m
}

var btc1h = model.Key{Symbol: "BTC/USDT", Timeframe: model.TF1h}

func snapshot() *signalcache.Snapshot {
	c := signalcache.New()
	return c.NewSnapshot(time.Date(2024, 5, 10, 12, 0, 0, 0, time.UTC),
		map[model.Key]signalcache.Entry{btc1h: {
			Signal: model.Signal{
				Symbol: "BTC/USDT", Timeframe: model.TF1h, Direction: model.Long, Confidence: 40,
				EntryPrice: decimal.NewFromInt(50000), StopLoss: decimal.NewFromInt(49600), TakeProfit: decimal.NewFromInt(50800),
			},
			Risk: model.RiskAssessment{WinProbability: 55, RiskLevel: model.RiskLow, Paths: 2000},
		}},
		map[model.Key]string{{Symbol: "AAPL", Timeframe: model.TF1d}: "InsufficientHistory"})
}

func TestPublisher_WritesPairKeysWithTTL(t *testing.T) {
	p, mr, _ := setupTestRedis(t)
	ctx := context.Background()
	snap := snapshot()

	require.NoError(t, p.Publish(ctx, snap))

	assert.True(t, mr.Exists("signal:BTC/USDT:1h"))
	assert.Equal(t, 10*time.Minute, mr.TTL("signal:BTC/USDT:1h"))

	e, err := p.Entry(ctx, btc1h)
	require.NoError(t, err)
	assert.Equal(t, model.Long, e.Signal.Direction)
	assert.True(t, e.Signal.StopLoss.Equal(decimal.NewFromInt(49600)))
	assert.Equal(t, model.RiskLow, e.Risk.RiskLevel)

	id, err := p.LatestID(ctx)
	require.NoError(t, err)
	assert.Equal(t, snap.ID, id)
}

func TestPublisher_DeletesFailedPairs(t *testing.T) {
	p, mr, _ := setupTestRedis(t)
	ctx := context.Background()

	require.NoError(t, p.Publish(ctx, snapshot()))
	require.True(t, mr.Exists("signal:BTC/USDT:1h"))

	// Next cycle the pair fails: its previous entry must go.
	c := signalcache.New()
	failed := c.NewSnapshot(time.Date(2024, 5, 10, 12, 1, 0, 0, time.UTC), nil,
		map[model.Key]string{btc1h: "UpstreamUnavailable"})
	require.NoError(t, p.Publish(ctx, failed))

	assert.False(t, mr.Exists("signal:BTC/USDT:1h"))
	_, err := p.Entry(ctx, btc1h)
	assert.ErrorIs(t, err, model.ErrNotFound)

	id, err := p.LatestID(ctx)
	require.NoError(t, err)
	assert.Equal(t, failed.ID, id)
}

func TestPublisher_AnnouncesOnChannel(t *testing.T) {
	p, _, _ := setupTestRedis(t)
	ctx := context.Background()

	sub := p.Client().Subscribe(ctx, "signals")
	defer sub.Close()
	_, err := sub.Receive(ctx)
	require.NoError(t, err)
	ch := sub.Channel()

	snap := snapshot()
	require.NoError(t, p.Publish(ctx, snap))

	select {
	case msg := <-ch:
		var n Notification
		require.NoError(t, json.Unmarshal([]byte(msg.Payload), &n))
		assert.Equal(t, snap.ID, n.ID)
		assert.Equal(t, 1, n.Pairs)
		assert.Equal(t, 1, n.Failed)
	case <-time.After(2 * time.Second):
		t.Fatal("no notification received")
	}
}

func TestPublisher_MissingEntry(t *testing.T) {
	p, _, _ := setupTestRedis(t)
	_, err := p.Entry(context.Background(), btc1h)
	assert.ErrorIs(t, err, model.ErrNotFound)
	_, err = p.LatestID(context.Background())
	assert.ErrorIs(t, err, model.ErrNotFound)
}

func TestPublisher_BreakerOpensOnOutage(t *testing.T) {
	p, mr, m := setupTestRedis(t)
	ctx := context.Background()
	mr.Close()

	for i := 0; i < 2; i++ {
		err := p.Publish(ctx, snapshot())
		require.Error(t, err)
		assert.False(t, errors.Is(err, model.ErrCircuitOpen))
	}
	assert.Equal(t, model.CircuitOpen, p.BreakerState())

	err := p.Publish(ctx, snapshot())
	assert.ErrorIs(t, err, model.ErrCircuitOpen)
	assert.Equal(t, 3.0, testutil.ToFloat64(m.RedisPublishFailures))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.RedisCircuitBreakerState))
}

func TestPublisher_LogsBreakerTransitions(t *testing.T) {
	mr := miniredis.RunT(t)
	client := goredis.NewClient(&goredis.Options{Addr: mr.Addr(), MaxRetries: -1})
	t.Cleanup(func() { client.Close() })

	var buf bytes.Buffer
	p := NewWithClient(client, Config{MaxFailures: 1, Cooldown: time.Minute}, nil,
		WithLogger(slog.New(slog.NewJSONHandler(&buf, nil))))

	mr.Close()
	require.Error(t, p.Publish(context.Background(), snapshot()))
	assert.Equal(t, model.CircuitOpen, p.BreakerState())
	assert.Contains(t, buf.String(), `"component":"redis"`)
	assert.Contains(t, buf.String(), `"to":"OPEN"`)
}

func TestPublisher_RunPublishesUntilCancelled(t *testing.T) {
	p, mr, _ := setupTestRedis(t)
	ctx, cancel := context.WithCancel(context.Background())
	snaps := make(chan *signalcache.Snapshot, 1)
	done := make(chan struct{})
	go func() {
		p.Run(ctx, snaps)
		close(done)
	}()

	snaps <- snapshot()
	require.Eventually(t, func() bool { return mr.Exists("signal:BTC/USDT:1h") }, 2*time.Second, 10*time.Millisecond)

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not stop")
	}
}

func TestPairKey(t *testing.T) {
	assert.Equal(t, "signal:AAPL:1M", PairKey(model.Key{Symbol: "AAPL", Timeframe: model.TF1M}))
}
