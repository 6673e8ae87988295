package model

import (
	"fmt"
	"time"
)

// Candle is one OHLCV bar for a symbol on a timeframe.
// Candles are values: once recorded they are never mutated in place.
type Candle struct {
	Timestamp time.Time `json:"ts"` // bar open time (UTC)
	Open      float64   `json:"open"`
	High      float64   `json:"high"`
	Low       float64   `json:"low"`
	Close     float64   `json:"close"`
	Volume    float64   `json:"volume"`
}

// Validate rejects bars that cannot come from a real market.
func (c Candle) Validate() error {
	if c.Open <= 0 || c.High <= 0 || c.Low <= 0 || c.Close <= 0 {
		return fmt.Errorf("%w: non-positive price in candle at %s", ErrInvalidParameters, c.Timestamp.Format(time.RFC3339))
	}
	if c.High < c.Low {
		return fmt.Errorf("%w: high %.8f below low %.8f", ErrInvalidParameters, c.High, c.Low)
	}
	return nil
}

// Key identifies one (symbol, timeframe) pair.
type Key struct {
	Symbol    string    `json:"symbol"`
	Timeframe Timeframe `json:"timeframe"`
}

// String returns "symbol@tf", e.g. "BTC/USDT@1h".
func (k Key) String() string {
	return k.Symbol + "@" + string(k.Timeframe)
}

// Closes extracts the close prices of candles in order.
func Closes(candles []Candle) []float64 {
	out := make([]float64, len(candles))
	for i, c := range candles {
		out[i] = c.Close
	}
	return out
}
