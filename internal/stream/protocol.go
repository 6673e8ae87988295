package stream

import (
	"time"

	"trading-signalsv1/internal/model"
	"trading-signalsv1/internal/signalcache"
)

// ── WS Protocol Message Types ──

// Message types.
const (
	TypeSubscribe   = "SUBSCRIBE"
	TypeUnsubscribe = "UNSUBSCRIBE"
	TypeSnapshot    = "SNAPSHOT"
	TypeSignal      = "SIGNAL"
	TypeUnavailable = "UNAVAILABLE"
	TypeError       = "ERROR"
	TypePong        = "pong"
)

// SubscribeMsg is the client → server request narrowing the stream to one
// pair. A client with no subscriptions receives every pair.
type SubscribeMsg struct {
	Type      string `json:"type"`
	ReqID     string `json:"reqId,omitempty"`
	Symbol    string `json:"symbol"`
	Timeframe string `json:"timeframe"`
}

// SnapshotMsg is sent on connect and in answer to SUBSCRIBE.
type SnapshotMsg struct {
	Type        string              `json:"type"`
	ReqID       string              `json:"reqId,omitempty"`
	SnapshotID  string              `json:"snapshotId"`
	GeneratedAt time.Time           `json:"generatedAt"`
	Entries     []signalcache.Entry `json:"entries"`
}

// SignalMsg carries one pair of a newly published snapshot.
type SignalMsg struct {
	Type       string            `json:"type"`
	SnapshotID string            `json:"snapshotId"`
	Entry      signalcache.Entry `json:"entry"`
}

// UnavailableMsg tells subscribers a pair failed in a newly published
// snapshot. Error is the failure kind; any earlier entry is void.
type UnavailableMsg struct {
	Type       string `json:"type"`
	SnapshotID string `json:"snapshotId"`
	Symbol     string `json:"symbol"`
	Timeframe  string `json:"timeframe"`
	Error      string `json:"error"`
}

// ErrorMsg is the server → client ERROR message.
type ErrorMsg struct {
	Type  string `json:"type"`
	ReqID string `json:"reqId,omitempty"`
	Error string `json:"error"`
}

// PongMsg answers {"ping": <client ms>}.
type PongMsg struct {
	Type     string `json:"type"`
	Ping     int64  `json:"ping"`
	ServerTS int64  `json:"server_ts"`
}

func snapshotMsg(s *signalcache.Snapshot, reqID string, keep func(model.Key) bool) SnapshotMsg {
	msg := SnapshotMsg{
		Type:        TypeSnapshot,
		ReqID:       reqID,
		SnapshotID:  s.ID,
		GeneratedAt: s.GeneratedAt,
		Entries:     []signalcache.Entry{},
	}
	for _, key := range s.Keys() {
		if keep(key) {
			msg.Entries = append(msg.Entries, s.Entries[key])
		}
	}
	return msg
}
