package stream

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"trading-signalsv1/internal/model"
)

const (
	writeWait   = 10 * time.Second
	pongWait    = 60 * time.Second
	pingPeriod  = 30 * time.Second
	readLimit   = 4096
	sendBufSize = 256
)

// Client represents a single WebSocket peer.
type Client struct {
	conn *websocket.Conn
	send chan []byte
	hub  *Hub

	// Per-client subscriptions; empty means every pair.
	subMu sync.RWMutex
	subs  map[model.Key]struct{}
}

// wants reports whether key passes this client's subscription filter.
func (c *Client) wants(key model.Key) bool {
	c.subMu.RLock()
	defer c.subMu.RUnlock()
	if len(c.subs) == 0 {
		return true
	}
	_, ok := c.subs[key]
	return ok
}

// enqueue queues data without blocking; a full buffer drops the message.
func (c *Client) enqueue(data []byte) bool {
	select {
	case c.send <- data:
		return true
	default:
		if c.hub.metrics != nil {
			c.hub.metrics.StreamDrops.Inc()
		}
		return false
	}
}

func (c *Client) sendJSON(v any) {
	data, err := json.Marshal(v)
	if err != nil {
		c.hub.log.Warn("json marshal failed", "error", err)
		return
	}
	if !c.enqueue(data) {
		c.hub.log.Warn("client send buffer full, dropping message")
	}
}

func (c *Client) sendError(reqID, msg string) {
	c.sendJSON(ErrorMsg{Type: TypeError, ReqID: reqID, Error: msg})
}

func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			// Coalesce whatever is queued into one frame, newline separated.
			w, err := c.conn.NextWriter(websocket.TextMessage)
			if err != nil {
				return
			}
			w.Write(msg)
			n := len(c.send)
			for i := 0; i < n; i++ {
				w.Write([]byte{'\n'})
				w.Write(<-c.send)
			}
			if err := w.Close(); err != nil {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (c *Client) readPump() {
	defer func() {
		c.hub.removeClient(c)
		c.conn.Close()
	}()

	c.conn.SetReadLimit(readLimit)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			return
		}

		var base struct {
			Type string `json:"type"`
			Ping int64  `json:"ping"`
		}
		if json.Unmarshal(raw, &base) != nil {
			c.sendError("", "invalid message")
			continue
		}

		switch base.Type {
		case TypeSubscribe, TypeUnsubscribe:
			var msg SubscribeMsg
			if err := json.Unmarshal(raw, &msg); err != nil {
				c.sendError("", "invalid "+base.Type+": "+err.Error())
				continue
			}
			c.handleSubscription(msg)
		default:
			if base.Ping > 0 {
				c.sendJSON(PongMsg{Type: TypePong, Ping: base.Ping, ServerTS: time.Now().UnixMilli()})
				continue
			}
			c.sendError("", "unknown message type "+base.Type)
		}
	}
}

// handleSubscription adds or removes a pair filter. SUBSCRIBE answers with
// the pair's current entry so the client does not wait for the next cycle.
func (c *Client) handleSubscription(msg SubscribeMsg) {
	tf, err := model.ParseTimeframe(msg.Timeframe)
	if msg.Symbol == "" || err != nil {
		c.sendError(msg.ReqID, "symbol and a valid timeframe are required")
		return
	}
	key := model.Key{Symbol: msg.Symbol, Timeframe: tf}

	c.subMu.Lock()
	if msg.Type == TypeUnsubscribe {
		delete(c.subs, key)
	} else {
		c.subs[key] = struct{}{}
	}
	c.subMu.Unlock()

	if msg.Type == TypeUnsubscribe {
		c.hub.log.Debug("client unsubscribed", "pair", key.String())
		return
	}
	c.hub.log.Debug("client subscribed", "pair", key.String())
	c.sendJSON(snapshotMsg(c.hub.cache.Current(), msg.ReqID, func(k model.Key) bool { return k == key }))
}
