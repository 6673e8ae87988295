// Package engine turns cached candles into published signals and answers
// queries against the current snapshot.
package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"trading-signalsv1/internal/confluence"
	"trading-signalsv1/internal/indicator"
	"trading-signalsv1/internal/metrics"
	"trading-signalsv1/internal/model"
	"trading-signalsv1/internal/montecarlo"
	"trading-signalsv1/internal/risklevel"
	"trading-signalsv1/internal/signalcache"
)

// CandleSource returns the cached bars for a pair, oldest first.
type CandleSource interface {
	Candles(key model.Key) []model.Candle
}

// Calculator runs indicators, confluence, risk levels and the Monte Carlo
// simulation for one pair. Safe for concurrent use across pairs.
type Calculator struct {
	confluence *confluence.Engine
	sim        *montecarlo.Simulator
	prices     CandleSource
	tracked    []model.Timeframe
	metrics    *metrics.Metrics
	now        func() time.Time
}

// Unavailable reports pairs that must not contribute this cycle, such as
// those whose refresh just failed.
type Unavailable func(model.Key) bool

// NewCalculator wires the calculation stages. tracked lists the timeframes
// the scheduler keeps warm; confirmations are drawn from it. m may be nil.
func NewCalculator(ce *confluence.Engine, sim *montecarlo.Simulator, prices CandleSource, tracked []model.Timeframe, m *metrics.Metrics) *Calculator {
	return &Calculator{
		confluence: ce,
		sim:        sim,
		prices:     prices,
		tracked:    tracked,
		metrics:    m,
		now:        time.Now,
	}
}

// WithClock replaces the wall clock used for stamps and staleness.
func (c *Calculator) WithClock(now func() time.Time) *Calculator {
	c.now = now
	return c
}

// Compute produces the entry published for key. Confirmation timeframes
// reported by skip, or whose newest bar is more than one bar behind, do not
// vote. skip may be nil.
func (c *Calculator) Compute(ctx context.Context, key model.Key, skip Unavailable) (signalcache.Entry, error) {
	now := c.now()
	primary := confluence.Input{Timeframe: key.Timeframe, Candles: c.prices.Candles(key)}
	var confirmations []confluence.Input
	for _, tf := range c.confluence.Weights().ConfirmationsFor(key.Timeframe, c.tracked) {
		ck := model.Key{Symbol: key.Symbol, Timeframe: tf}
		if skip != nil && skip(ck) {
			continue
		}
		bars := c.prices.Candles(ck)
		if stale(bars, tf, now) {
			continue
		}
		confirmations = append(confirmations, confluence.Input{Timeframe: tf, Candles: bars})
	}

	res, err := c.confluence.Evaluate(primary, confirmations, 0)
	if err != nil {
		return signalcache.Entry{}, err
	}
	set := res.Indicators

	entry := decimal.NewFromFloat(set.Close)
	levels, err := risklevel.Calculate(risklevel.Request{Entry: entry, Direction: res.Direction, Timeframe: key.Timeframe})
	if err != nil {
		return signalcache.Entry{}, fmt.Errorf("levels: %w", err)
	}

	risk, err := simulate(ctx, c.sim, c.metrics, levels, set)
	if err != nil {
		return signalcache.Entry{}, fmt.Errorf("simulate: %w", err)
	}

	return signalcache.Entry{
		Signal: model.Signal{
			Symbol:      key.Symbol,
			Timeframe:   key.Timeframe,
			Direction:   res.Direction,
			Confidence:  res.Confidence,
			EntryPrice:  levels.Entry,
			StopLoss:    levels.StopLoss,
			TakeProfit:  levels.TakeProfit,
			GeneratedAt: now.UTC(),
			Degraded:    res.Degraded,
			Votes:       res.Votes,
		},
		Risk:       risk,
		Indicators: set,
	}, nil
}

// stale reports whether the newest bar opened more than two bar lengths
// before now, i.e. at least one whole bar is missing.
func stale(bars []model.Candle, tf model.Timeframe, now time.Time) bool {
	if len(bars) == 0 {
		return true
	}
	return now.Sub(bars[len(bars)-1].Timestamp) > 2*tf.Duration()
}

// simulate runs sim on lv using the volatility implied by the ATR reading in
// set. m may be nil.
func simulate(ctx context.Context, sim *montecarlo.Simulator, m *metrics.Metrics, lv risklevel.Levels, set model.IndicatorSet) (model.RiskAssessment, error) {
	vol := indicator.AnnualizedVolatility(set.ATR, set.Close, lv.Timeframe)
	if vol <= 0 {
		return model.RiskAssessment{}, fmt.Errorf("%w: no measurable volatility (atr %.8f)", model.ErrInvalidParameters, set.ATR)
	}
	start := time.Now()
	risk, err := sim.Assess(ctx, montecarlo.Input{
		Direction:        lv.Direction,
		Entry:            lv.Entry,
		StopLoss:         lv.StopLoss,
		TakeProfit:       lv.TakeProfit,
		Timeframe:        lv.Timeframe,
		AnnualVolatility: vol,
	})
	if m != nil && err == nil {
		m.SimulationDur.Observe(time.Since(start).Seconds())
	}
	return risk, err
}
