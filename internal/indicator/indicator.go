// Package indicator provides technical indicator calculations over candle data.
//
// Moving averages and RSI are incremental types implementing Series: feed
// values with Update and read Value once Ready. The batch functions (RSIOf,
// MACD, Bollinger, StochasticOf, ATROf, Compute) are pure: they replay a candle
// slice through fresh incremental instances and never retain state.
package indicator

import (
	"fmt"

	"trading-signalsv1/internal/model"
)

// Series is the interface for incremental single-value indicators.
type Series interface {
	// Name returns the indicator name (e.g., "SMA", "EMA", "RSI").
	Name() string

	// Update feeds the next value and recalculates.
	Update(v float64)

	// Value returns the current calculated value. Returns 0 if not enough data.
	Value() float64

	// Ready returns true when enough data has been accumulated.
	Ready() bool
}

// Params holds the lookbacks for every indicator in an IndicatorSet.
type Params struct {
	RSIPeriod    int     `yaml:"rsi_period"`
	MACDFast     int     `yaml:"macd_fast"`
	MACDSlow     int     `yaml:"macd_slow"`
	MACDSignal   int     `yaml:"macd_signal"`
	BBPeriod     int     `yaml:"bb_period"`
	BBK          float64 `yaml:"bb_k"`
	StochPeriod  int     `yaml:"stoch_period"`
	StochSmoothK int     `yaml:"stoch_smooth_k"`
	StochSmoothD int     `yaml:"stoch_smooth_d"`
	ATRPeriod    int     `yaml:"atr_period"`
}

// DefaultParams returns the conventional lookbacks.
func DefaultParams() Params {
	return Params{
		RSIPeriod:    14,
		MACDFast:     12,
		MACDSlow:     26,
		MACDSignal:   9,
		BBPeriod:     20,
		BBK:          2,
		StochPeriod:  14,
		StochSmoothK: 3,
		StochSmoothD: 3,
		ATRPeriod:    14,
	}
}

// Validate checks that every lookback is usable.
func (p Params) Validate() error {
	for name, v := range map[string]int{
		"rsi_period":     p.RSIPeriod,
		"macd_fast":      p.MACDFast,
		"macd_slow":      p.MACDSlow,
		"macd_signal":    p.MACDSignal,
		"bb_period":      p.BBPeriod,
		"stoch_period":   p.StochPeriod,
		"stoch_smooth_k": p.StochSmoothK,
		"stoch_smooth_d": p.StochSmoothD,
		"atr_period":     p.ATRPeriod,
	} {
		if v <= 0 {
			return fmt.Errorf("%w: %s must be positive, got %d", model.ErrInvalidParameters, name, v)
		}
	}
	if p.MACDFast >= p.MACDSlow {
		return fmt.Errorf("%w: macd_fast (%d) must be below macd_slow (%d)", model.ErrInvalidParameters, p.MACDFast, p.MACDSlow)
	}
	if p.BBK <= 0 {
		return fmt.Errorf("%w: bb_k must be positive, got %g", model.ErrInvalidParameters, p.BBK)
	}
	return nil
}

// MinHistory is the fewest candles from which every indicator is defined.
func (p Params) MinHistory() int {
	n := p.RSIPeriod + 1
	n = max(n, macdMinCandles(p.MACDSlow, p.MACDSignal))
	n = max(n, p.BBPeriod)
	n = max(n, stochMinCandles(p.StochPeriod, p.StochSmoothK, p.StochSmoothD))
	n = max(n, p.ATRPeriod+1)
	return n
}

func insufficient(name string, need, got int) error {
	return fmt.Errorf("%w: %s needs %d candles, got %d", model.ErrInsufficientHistory, name, need, got)
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
