package stream

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"trading-signalsv1/internal/metrics"
	"trading-signalsv1/internal/model"
	"trading-signalsv1/internal/signalcache"
)

var (
	t0     = time.Date(2024, 5, 10, 12, 0, 0, 0, time.UTC)
	btc1h  = model.Key{Symbol: "BTC/USDT", Timeframe: model.TF1h}
	aapl1d = model.Key{Symbol: "AAPL", Timeframe: model.TF1d}
)

func entry(key model.Key, conf float64) signalcache.Entry {
	return signalcache.Entry{Signal: model.Signal{Symbol: key.Symbol, Timeframe: key.Timeframe, Direction: model.Long, Confidence: conf}}
}

type harness struct {
	cache   *signalcache.Cache
	hub     *Hub
	metrics *metrics.Metrics
	srv     *httptest.Server
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	cache := signalcache.New()
	m := metrics.NewMetrics(prometheus.NewRegistry())
	hub := NewHub(cache, m, WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		hub.Run(ctx)
		close(done)
	}()
	srv := httptest.NewServer(hub)
	t.Cleanup(func() {
		cancel()
		<-done
		srv.Close()
	})
	return &harness{cache: cache, hub: hub, metrics: m, srv: srv}
}

func (h *harness) dial(t *testing.T) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(h.srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

// until reads messages up to and including the first of type typ. Frames
// may carry several newline-separated messages.
func until(t *testing.T, conn *websocket.Conn, pending *[][]byte, typ string) [][]byte {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	var seen [][]byte
	for {
		for len(*pending) > 0 {
			msg := (*pending)[0]
			*pending = (*pending)[1:]
			seen = append(seen, msg)
			var base struct {
				Type string `json:"type"`
			}
			require.NoError(t, json.Unmarshal(msg, &base))
			if base.Type == typ {
				return seen
			}
		}
		conn.SetReadDeadline(deadline)
		_, frame, err := conn.ReadMessage()
		require.NoError(t, err, "waiting for %s", typ)
		*pending = append(*pending, bytes.Split(frame, []byte{'\n'})...)
	}
}

func next(t *testing.T, conn *websocket.Conn, pending *[][]byte, typ string) []byte {
	t.Helper()
	seen := until(t, conn, pending, typ)
	return seen[len(seen)-1]
}

func TestHub_SnapshotOnConnect(t *testing.T) {
	h := newHarness(t)
	h.cache.Publish(h.cache.NewSnapshot(t0, map[model.Key]signalcache.Entry{btc1h: entry(btc1h, 40), aapl1d: entry(aapl1d, 60)}, nil))

	conn := h.dial(t)
	var pending [][]byte
	var snap SnapshotMsg
	require.NoError(t, json.Unmarshal(next(t, conn, &pending, TypeSnapshot), &snap))
	assert.Len(t, snap.Entries, 2)
	assert.Equal(t, h.cache.Current().ID, snap.SnapshotID)

	require.Eventually(t, func() bool { return h.hub.ClientCount() == 1 }, time.Second, 10*time.Millisecond)
	assert.Equal(t, 1.0, testutil.ToFloat64(h.metrics.StreamClients))
}

func TestHub_BroadcastsPublishedEntries(t *testing.T) {
	h := newHarness(t)
	conn := h.dial(t)
	var pending [][]byte
	next(t, conn, &pending, TypeSnapshot)
	require.Eventually(t, func() bool { return h.hub.ClientCount() == 1 }, time.Second, 10*time.Millisecond)

	s := h.cache.NewSnapshot(t0, map[model.Key]signalcache.Entry{btc1h: entry(btc1h, 55)}, nil)
	h.cache.Publish(s)

	var msg SignalMsg
	require.NoError(t, json.Unmarshal(next(t, conn, &pending, TypeSignal), &msg))
	assert.Equal(t, s.ID, msg.SnapshotID)
	assert.Equal(t, 55.0, msg.Entry.Signal.Confidence)
}

func TestHub_SubscribeFilters(t *testing.T) {
	h := newHarness(t)
	h.cache.Publish(h.cache.NewSnapshot(t0, map[model.Key]signalcache.Entry{btc1h: entry(btc1h, 40), aapl1d: entry(aapl1d, 60)}, nil))

	conn := h.dial(t)
	var pending [][]byte
	next(t, conn, &pending, TypeSnapshot)

	require.NoError(t, conn.WriteJSON(SubscribeMsg{Type: TypeSubscribe, ReqID: "r1", Symbol: "AAPL", Timeframe: "1D"}))
	var snap SnapshotMsg
	require.NoError(t, json.Unmarshal(next(t, conn, &pending, TypeSnapshot), &snap))
	assert.Equal(t, "r1", snap.ReqID)
	require.Len(t, snap.Entries, 1)
	assert.Equal(t, "AAPL", snap.Entries[0].Signal.Symbol)

	h.cache.Publish(h.cache.NewSnapshot(t0.Add(time.Minute),
		map[model.Key]signalcache.Entry{btc1h: entry(btc1h, 41), aapl1d: entry(aapl1d, 61)}, nil))

	var msg SignalMsg
	require.NoError(t, json.Unmarshal(next(t, conn, &pending, TypeSignal), &msg))
	assert.Equal(t, "AAPL", msg.Entry.Signal.Symbol)

	// The BTC update is filtered: nothing but the pong follows.
	require.NoError(t, conn.WriteJSON(map[string]int64{"ping": 7}))
	for _, m := range until(t, conn, &pending, TypePong) {
		assert.NotContains(t, string(m), "BTC/USDT")
	}
}

func TestHub_BroadcastsUnavailablePairs(t *testing.T) {
	h := newHarness(t)
	h.cache.Publish(h.cache.NewSnapshot(t0, map[model.Key]signalcache.Entry{btc1h: entry(btc1h, 40)}, nil))

	conn := h.dial(t)
	var pending [][]byte
	next(t, conn, &pending, TypeSnapshot)
	require.NoError(t, conn.WriteJSON(SubscribeMsg{Type: TypeSubscribe, ReqID: "r1", Symbol: "BTC/USDT", Timeframe: "1h"}))
	next(t, conn, &pending, TypeSnapshot)

	s := h.cache.NewSnapshot(t0.Add(time.Minute),
		map[model.Key]signalcache.Entry{aapl1d: entry(aapl1d, 61)},
		map[model.Key]string{btc1h: "UpstreamUnavailable"})
	h.cache.Publish(s)

	seen := until(t, conn, &pending, TypeUnavailable)
	var msg UnavailableMsg
	require.NoError(t, json.Unmarshal(seen[len(seen)-1], &msg))
	assert.Equal(t, s.ID, msg.SnapshotID)
	assert.Equal(t, "BTC/USDT", msg.Symbol)
	assert.Equal(t, "1h", msg.Timeframe)
	assert.Equal(t, "UpstreamUnavailable", msg.Error)
	for _, m := range seen {
		assert.NotContains(t, string(m), TypeSignal)
	}
}

func TestHub_RejectsBadSubscribe(t *testing.T) {
	h := newHarness(t)
	conn := h.dial(t)
	var pending [][]byte
	next(t, conn, &pending, TypeSnapshot)

	require.NoError(t, conn.WriteJSON(SubscribeMsg{Type: TypeSubscribe, ReqID: "bad", Symbol: "AAPL", Timeframe: "2h"}))
	var e ErrorMsg
	require.NoError(t, json.Unmarshal(next(t, conn, &pending, TypeError), &e))
	assert.Equal(t, "bad", e.ReqID)
}

func TestHub_Pong(t *testing.T) {
	h := newHarness(t)
	conn := h.dial(t)
	var pending [][]byte

	require.NoError(t, conn.WriteJSON(map[string]int64{"ping": 1234}))
	var pong PongMsg
	require.NoError(t, json.Unmarshal(next(t, conn, &pending, TypePong), &pong))
	assert.Equal(t, int64(1234), pong.Ping)
	assert.Positive(t, pong.ServerTS)
}

func TestHub_DisconnectUnregisters(t *testing.T) {
	h := newHarness(t)
	conn := h.dial(t)
	require.Eventually(t, func() bool { return h.hub.ClientCount() == 1 }, time.Second, 10*time.Millisecond)

	conn.Close()
	require.Eventually(t, func() bool { return h.hub.ClientCount() == 0 }, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, 0.0, testutil.ToFloat64(h.metrics.StreamClients))
}

func TestClient_FullBufferDrops(t *testing.T) {
	m := metrics.NewMetrics(prometheus.NewRegistry())
	c := &Client{send: make(chan []byte, 1), hub: NewHub(signalcache.New(), m), subs: map[model.Key]struct{}{}}

	assert.True(t, c.enqueue([]byte("a")))
	assert.False(t, c.enqueue([]byte("b")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.StreamDrops))
}
