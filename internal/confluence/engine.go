// Package confluence turns indicator readings across timeframes into one
// directional call with a confidence.
//
// Each indicator casts a BUY/SELL/NEUTRAL vote per timeframe. Votes become
// weighted shares per timeframe, shares are combined across timeframes with
// the style's importance table, and the net of buy and sell shares decides
// the direction.
package confluence

import (
	"fmt"
	"math"

	"trading-signalsv1/internal/indicator"
	"trading-signalsv1/internal/model"
)

// Input is the candle history of one timeframe, oldest first.
type Input struct {
	Timeframe model.Timeframe
	Candles   []model.Candle
}

// Result is the outcome of one evaluation.
type Result struct {
	Direction  model.Direction
	Confidence float64 // [0,100]
	Degraded   bool    // primary history below the ideal lookback
	Style      Style
	Votes      []model.IndicatorVote
	Indicators model.IndicatorSet // primary timeframe
	Buy        float64            // combined shares, sum to 1
	Sell       float64
	Neutral    float64
}

// Engine evaluates confluence. It holds configuration only and is safe for
// concurrent use.
type Engine struct {
	weights Weights
	params  indicator.Params
}

// NewEngine validates w and p and returns an Engine.
func NewEngine(w Weights, p indicator.Params) (*Engine, error) {
	if err := w.Validate(); err != nil {
		return nil, err
	}
	if err := p.Validate(); err != nil {
		return nil, err
	}
	return &Engine{weights: w, params: p}, nil
}

// Weights returns the engine configuration.
func (e *Engine) Weights() Weights { return e.weights }

// MinHistory is the fewest candles the primary timeframe needs.
func (e *Engine) MinHistory() int { return e.params.MinHistory() }

// Evaluate scores primary together with its confirmation timeframes.
// price is the reference for band votes; zero uses each timeframe's last close.
//
// Primary history below MinHistory fails with model.ErrInsufficientHistory.
// Below IdealHistory the result is a zero-confidence NEUTRAL marked Degraded.
// Confirmations without enough history are skipped.
func (e *Engine) Evaluate(primary Input, confirmations []Input, price float64) (Result, error) {
	if !primary.Timeframe.Valid() {
		return Result{}, fmt.Errorf("%w: unknown timeframe %q", model.ErrInvalidParameters, primary.Timeframe)
	}
	set, err := indicator.Compute(primary.Candles, e.params)
	if err != nil {
		return Result{}, fmt.Errorf("primary %s: %w", primary.Timeframe, err)
	}

	style := e.weights.StyleFor(primary.Timeframe)
	res := Result{Style: style, Indicators: set}

	if len(primary.Candles) < e.weights.IdealHistory {
		res.Direction = model.Neutral
		res.Degraded = true
		res.Neutral = 1
		return res, nil
	}

	table := e.weights.TimeframeWeights[style]
	var buy, sell, neutral, totalW float64

	add := func(tf model.Timeframe, s model.IndicatorSet) {
		votes := e.vote(tf, s, price)
		b, sl, n := e.shares(votes)
		w := table[tf]
		buy += w * b
		sell += w * sl
		neutral += w * n
		totalW += w
		res.Votes = append(res.Votes, votes...)
	}

	add(primary.Timeframe, set)
	for _, c := range confirmations {
		if !c.Timeframe.Valid() || c.Timeframe == primary.Timeframe {
			continue
		}
		cs, err := indicator.Compute(c.Candles, e.params)
		if err != nil {
			continue
		}
		add(c.Timeframe, cs)
	}

	res.Buy, res.Sell, res.Neutral = buy/totalW, sell/totalW, neutral/totalW
	res.Direction, res.Confidence = e.decide(res.Buy, res.Sell, res.Neutral)
	return res, nil
}

// vote applies the per-indicator thresholds to one timeframe's readings.
func (e *Engine) vote(tf model.Timeframe, s model.IndicatorSet, price float64) []model.IndicatorVote {
	if price <= 0 {
		price = s.Close
	}
	cast := func(k IndicatorKey, v model.Vote) model.IndicatorVote {
		return model.IndicatorVote{Indicator: string(k), Timeframe: tf, Vote: v, Weight: e.weights.Indicators[k]}
	}

	out := make([]model.IndicatorVote, 0, len(voters))
	out = append(out, cast(RSI, threshold(s.RSI, 30, 70)))

	switch {
	case s.MACD.Histogram > 0:
		out = append(out, cast(MACD, model.VoteBuy))
	case s.MACD.Histogram < 0:
		out = append(out, cast(MACD, model.VoteSell))
	default:
		out = append(out, cast(MACD, model.VoteNeutral))
	}

	bb := s.Bollinger
	switch {
	case bb.Upper == bb.Lower:
		out = append(out, cast(Bollinger, model.VoteNeutral))
	case price <= bb.Lower:
		out = append(out, cast(Bollinger, model.VoteBuy))
	case price >= bb.Upper:
		out = append(out, cast(Bollinger, model.VoteSell))
	default:
		out = append(out, cast(Bollinger, model.VoteNeutral))
	}

	out = append(out, cast(Stochastic, threshold(s.Stochastic.K, 20, 80)))
	return out
}

// threshold votes BUY below oversold and SELL above overbought.
func threshold(v, oversold, overbought float64) model.Vote {
	switch {
	case v < oversold:
		return model.VoteBuy
	case v > overbought:
		return model.VoteSell
	default:
		return model.VoteNeutral
	}
}

// shares splits the total indicator weight into buy, sell and neutral
// fractions. Zero-weight indicators are ignored.
func (e *Engine) shares(votes []model.IndicatorVote) (buy, sell, neutral float64) {
	var total float64
	for _, v := range votes {
		total += v.Weight
		switch v.Vote {
		case model.VoteBuy:
			buy += v.Weight
		case model.VoteSell:
			sell += v.Weight
		default:
			neutral += v.Weight
		}
	}
	if total == 0 {
		return 0, 0, 1
	}
	return buy / total, sell / total, neutral / total
}

// tieEpsilon absorbs rounding left over when weighted shares cancel.
const tieEpsilon = 1e-9

// decide maps combined shares onto a direction and a confidence in [0,100].
func (e *Engine) decide(buy, sell, neutral float64) (model.Direction, float64) {
	net := buy - sell
	conf := clamp(math.Abs(net) * 100)
	if math.Abs(net) < tieEpsilon || conf < e.weights.MinAgreement {
		return model.Neutral, clamp(neutral * 100)
	}
	if net > 0 {
		return model.Long, conf
	}
	return model.Short, conf
}

func clamp(v float64) float64 {
	return math.Max(0, math.Min(100, v))
}
