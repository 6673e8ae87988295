// Package stream fans published signal snapshots out to WebSocket clients.
package stream

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"

	"trading-signalsv1/internal/metrics"
	"trading-signalsv1/internal/model"
	"trading-signalsv1/internal/signalcache"
)

var upgrader = websocket.Upgrader{
	CheckOrigin:       func(r *http.Request) bool { return true },
	EnableCompression: true,
}

// Hub manages WebSocket clients and pushes every new snapshot to them.
type Hub struct {
	cache       *signalcache.Cache
	metrics     *metrics.Metrics
	log         *slog.Logger
	updates     <-chan *signalcache.Snapshot
	unsubscribe func()

	mu      sync.RWMutex
	clients map[*Client]struct{}
}

// Option customises a Hub.
type Option func(*Hub)

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option { return func(h *Hub) { h.log = l } }

// NewHub creates a hub subscribed to cache. m may be nil.
func NewHub(cache *signalcache.Cache, m *metrics.Metrics, opts ...Option) *Hub {
	updates, unsubscribe := cache.Subscribe()
	h := &Hub{
		cache:       cache,
		metrics:     m,
		log:         slog.Default(),
		updates:     updates,
		unsubscribe: unsubscribe,
		clients:     make(map[*Client]struct{}),
	}
	for _, o := range opts {
		o(h)
	}
	h.log = h.log.With("component", "stream")
	return h
}

// Run forwards published snapshots until ctx is cancelled, then
// disconnects every client.
func (h *Hub) Run(ctx context.Context) {
	defer h.unsubscribe()
	for {
		select {
		case <-ctx.Done():
			h.closeAll()
			return
		case snap := <-h.updates:
			h.broadcast(snap)
		}
	}
}

// broadcast sends each entry of snap to the clients subscribed to its pair,
// and an UNAVAILABLE notice for each pair that failed.
func (h *Hub) broadcast(snap *signalcache.Snapshot) {
	keys := append(snap.Keys(), snap.FailedKeys()...)
	frames := make(map[model.Key][]byte, len(keys))
	for _, key := range keys {
		var msg any = SignalMsg{Type: TypeSignal, SnapshotID: snap.ID, Entry: snap.Entries[key]}
		if kind, failed := snap.Failure(key); failed {
			msg = UnavailableMsg{
				Type:       TypeUnavailable,
				SnapshotID: snap.ID,
				Symbol:     key.Symbol,
				Timeframe:  string(key.Timeframe),
				Error:      kind,
			}
		}
		data, err := json.Marshal(msg)
		if err != nil {
			h.log.Warn("marshal failed", "pair", key.String(), "error", err)
			continue
		}
		frames[key] = data
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	for c := range h.clients {
		for _, key := range keys {
			if data, ok := frames[key]; ok && c.wants(key) {
				c.enqueue(data)
			}
		}
	}
}

// ServeHTTP upgrades the request and registers the client. The current
// snapshot is sent immediately.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn("ws upgrade failed", "error", err)
		return
	}
	conn.EnableWriteCompression(true)

	c := &Client{
		conn: conn,
		send: make(chan []byte, sendBufSize),
		hub:  h,
		subs: make(map[model.Key]struct{}),
	}
	// Registering and queueing the snapshot under one lock keeps it ahead
	// of any broadcast the client sees.
	h.mu.Lock()
	c.sendJSON(snapshotMsg(h.cache.Current(), "", func(model.Key) bool { return true }))
	h.clients[c] = struct{}{}
	count := len(h.clients)
	h.mu.Unlock()
	if h.metrics != nil {
		h.metrics.StreamClients.Set(float64(count))
	}
	h.log.Info("ws client connected", "clients", count)

	go c.writePump()
	go c.readPump()
}

// removeClient unregisters c and closes its send queue.
func (h *Hub) removeClient(c *Client) {
	h.mu.Lock()
	if _, ok := h.clients[c]; !ok {
		h.mu.Unlock()
		return
	}
	delete(h.clients, c)
	count := len(h.clients)
	close(c.send)
	h.mu.Unlock()

	if h.metrics != nil {
		h.metrics.StreamClients.Set(float64(count))
	}
	h.log.Info("ws client disconnected", "clients", count)
}

func (h *Hub) closeAll() {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for c := range h.clients {
		c.conn.Close()
	}
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}
