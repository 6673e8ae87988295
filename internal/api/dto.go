package api

import (
	"time"

	"trading-signalsv1/internal/model"
	"trading-signalsv1/internal/signalcache"
)

// ErrorResponse is the body of every non-2xx reply.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

// PairFailure names a pair the last cycle could not publish.
type PairFailure struct {
	Symbol    string          `json:"symbol"`
	Timeframe model.Timeframe `json:"timeframe"`
	Error     string          `json:"error"`
}

// SignalsResponse lists the current snapshot.
type SignalsResponse struct {
	SnapshotID  string              `json:"snapshot_id"`
	GeneratedAt time.Time           `json:"generated_at"`
	Signals     []signalcache.Entry `json:"signals"`
	Failures    []PairFailure       `json:"failures"`
}

func newSignalsResponse(s *signalcache.Snapshot) SignalsResponse {
	resp := SignalsResponse{
		SnapshotID:  s.ID,
		GeneratedAt: s.GeneratedAt,
		Signals:     make([]signalcache.Entry, 0, len(s.Entries)),
		Failures:    make([]PairFailure, 0, len(s.Failures)),
	}
	for _, key := range s.Keys() {
		resp.Signals = append(resp.Signals, s.Entries[key])
	}
	for _, key := range s.FailedKeys() {
		resp.Failures = append(resp.Failures, PairFailure{Symbol: key.Symbol, Timeframe: key.Timeframe, Error: s.Failures[key]})
	}
	return resp
}
