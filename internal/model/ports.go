package model

import (
	"context"
	"time"
)

// ── Port Interfaces ──
// These interfaces decouple the calculation pipeline from concrete market-data
// providers and storage (HTTP APIs, SQLite, Redis).

// MarketDataGateway fetches candles from an external provider.
type MarketDataGateway interface {
	// FetchLatestCandle returns the most recent (possibly still forming) bar.
	FetchLatestCandle(ctx context.Context, symbol string, tf Timeframe) (Candle, error)

	// FetchHistory returns up to n bars ordered by timestamp ascending.
	FetchHistory(ctx context.Context, symbol string, tf Timeframe, n int) ([]Candle, error)
}

// CandleStore persists fetched candles so a restart does not spend quota
// re-downloading history.
type CandleStore interface {
	// SaveCandles upserts candles for a pair.
	SaveCandles(ctx context.Context, key Key, candles []Candle) error

	// LoadCandles returns the newest n candles for a pair, ascending.
	LoadCandles(ctx context.Context, key Key, n int) ([]Candle, error)

	// Close releases underlying resources.
	Close() error
}

// CircuitState is the state of the gateway circuit breaker.
type CircuitState int

const (
	CircuitClosed   CircuitState = 0 // normal operation, requests pass through
	CircuitOpen     CircuitState = 1 // tripped, requests rejected immediately
	CircuitHalfOpen CircuitState = 2 // one probe request allowed through
)

func (s CircuitState) String() string {
	switch s {
	case CircuitClosed:
		return "CLOSED"
	case CircuitOpen:
		return "OPEN"
	case CircuitHalfOpen:
		return "HALF_OPEN"
	default:
		return "UNKNOWN"
	}
}

// MarshalText renders the state by name in JSON.
func (s CircuitState) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// RateLimiterStatus is a point-in-time view of the gateway guard.
type RateLimiterStatus struct {
	RequestsThisWindow  int          `json:"requests_this_window"`
	RequestsThisMonth   int          `json:"requests_this_month"`
	WindowStart         time.Time    `json:"window_start"`
	ConsecutiveFailures int          `json:"consecutive_failures"`
	CircuitState        CircuitState `json:"circuit_state"`
	OpenedAt            time.Time    `json:"opened_at,omitempty"`
}
