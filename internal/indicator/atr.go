package indicator

import (
	"math"

	"trading-signalsv1/internal/model"
)

// ATR is a streaming Average True Range: Wilder smoothing over true ranges.
// The first bar only seeds the previous close, so readiness needs period+1 bars.
type ATR struct {
	smma      *SMMA
	prevClose float64
	seen      bool
}

// NewATR creates an ATR tracker with the given period (typically 14).
func NewATR(period int) *ATR {
	return &ATR{smma: NewSMMA(period)}
}

func (a *ATR) Name() string { return "ATR" }

// UpdateCandle feeds the next bar.
func (a *ATR) UpdateCandle(c model.Candle) {
	if !a.seen {
		a.prevClose = c.Close
		a.seen = true
		return
	}
	a.smma.Update(trueRange(c, a.prevClose))
	a.prevClose = c.Close
}

func (a *ATR) Value() float64 { return math.Max(a.smma.Value(), 0) }
func (a *ATR) Ready() bool    { return a.smma.Ready() }

// trueRange is max(high−low, |high−prevClose|, |low−prevClose|).
func trueRange(c model.Candle, prevClose float64) float64 {
	return math.Max(c.High-c.Low, math.Max(math.Abs(c.High-prevClose), math.Abs(c.Low-prevClose)))
}

// ATROf computes the latest ATR over candles.
func ATROf(candles []model.Candle, period int) (float64, error) {
	if len(candles) < period+1 {
		return 0, insufficient("ATR", period+1, len(candles))
	}
	a := NewATR(period)
	for _, c := range candles {
		a.UpdateCandle(c)
	}
	return a.Value(), nil
}

// AnnualizedVolatility converts an ATR reading into an annualized fractional
// volatility: (ATR / price) · sqrt(bars per year).
func AnnualizedVolatility(atr, price float64, tf model.Timeframe) float64 {
	if price <= 0 || atr <= 0 {
		return 0
	}
	return atr / price * math.Sqrt(tf.BarsPerYear())
}
