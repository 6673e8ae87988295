package confluence

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"trading-signalsv1/internal/indicator"
	"trading-signalsv1/internal/model"
)

var t0 = time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)

// series returns flat bars at 100 followed by moves bars changing by step
// (fractional) each.
func series(tf model.Timeframe, flat, moves int, step float64) []model.Candle {
	out := make([]model.Candle, 0, flat+moves)
	p := 100.0
	for i := 0; i < flat+moves; i++ {
		if i >= flat {
			p *= 1 + step
		}
		out = append(out, model.Candle{
			Timestamp: t0.Add(time.Duration(i) * tf.Duration()),
			Open:      p, High: p + 0.5, Low: p - 0.5, Close: p, Volume: 1,
		})
	}
	return out
}

func newEngine(t *testing.T, mutate ...func(*Weights)) *Engine {
	t.Helper()
	w := DefaultWeights()
	for _, m := range mutate {
		m(&w)
	}
	e, err := NewEngine(w, indicator.DefaultParams())
	require.NoError(t, err)
	return e
}

func TestEvaluate_SharpDropIsLong(t *testing.T) {
	e := newEngine(t)
	res, err := e.Evaluate(Input{Timeframe: model.TF1h, Candles: series(model.TF1h, 146, 4, -0.03)}, nil, 0)
	require.NoError(t, err)

	assert.Equal(t, model.Long, res.Direction)
	assert.InDelta(t, 40, res.Confidence, 1e-9) // rsi+bands+stoch buy, macd sells
	assert.Equal(t, Swing, res.Style)
	assert.False(t, res.Degraded)
	assert.Len(t, res.Votes, 4)
	assert.InDelta(t, 1, res.Buy+res.Sell+res.Neutral, 1e-9)
}

func TestEvaluate_SharpRallyIsShort(t *testing.T) {
	e := newEngine(t)
	res, err := e.Evaluate(Input{Timeframe: model.TF1h, Candles: series(model.TF1h, 146, 4, 0.03)}, nil, 0)
	require.NoError(t, err)
	assert.Equal(t, model.Short, res.Direction)
	assert.InDelta(t, 40, res.Confidence, 1e-9)
}

func TestEvaluate_InsufficientHistory(t *testing.T) {
	e := newEngine(t)
	_, err := e.Evaluate(Input{Timeframe: model.TF1h, Candles: series(model.TF1h, e.MinHistory()-1, 0, 0)}, nil, 0)
	assert.ErrorIs(t, err, model.ErrInsufficientHistory)
}

func TestEvaluate_DegradedBelowIdeal(t *testing.T) {
	e := newEngine(t)
	res, err := e.Evaluate(Input{Timeframe: model.TF1h, Candles: series(model.TF1h, 40, 4, -0.03)}, nil, 0)
	require.NoError(t, err)
	assert.True(t, res.Degraded)
	assert.Equal(t, model.Neutral, res.Direction)
	assert.Zero(t, res.Confidence)
	assert.Empty(t, res.Votes)
	assert.NotZero(t, res.Indicators.ATR)
}

func TestEvaluate_ConfirmationSkippedWhenShort(t *testing.T) {
	e := newEngine(t)
	primary := Input{Timeframe: model.TF1h, Candles: series(model.TF1h, 146, 4, -0.03)}
	thin := Input{Timeframe: model.TF4h, Candles: series(model.TF4h, 10, 0, 0)}

	res, err := e.Evaluate(primary, []Input{thin}, 0)
	require.NoError(t, err)
	assert.Len(t, res.Votes, 4)
	assert.Equal(t, model.Long, res.Direction)
}

func TestEvaluate_ConfirmationWeighsIn(t *testing.T) {
	e := newEngine(t)
	primary := Input{Timeframe: model.TF1h, Candles: series(model.TF1h, 146, 4, -0.03)}
	// A rallying 4h series votes the other way and pulls the call back to NEUTRAL.
	confirm := Input{Timeframe: model.TF4h, Candles: series(model.TF4h, 146, 4, 0.03)}

	res, err := e.Evaluate(primary, []Input{confirm}, 0)
	require.NoError(t, err)
	assert.Len(t, res.Votes, 8)

	// 1h: buy .7 sell .3 at weight 1.2; 4h: buy .3 sell .7 at weight 1.5.
	wantBuy := (1.2*0.7 + 1.5*0.3) / 2.7
	wantSell := (1.2*0.3 + 1.5*0.7) / 2.7
	assert.InDelta(t, wantBuy, res.Buy, 1e-9)
	assert.InDelta(t, wantSell, res.Sell, 1e-9)
	assert.Equal(t, model.Neutral, res.Direction) // |net| ≈ 4.4 < 25
}

func TestEvaluate_ScalpStyle(t *testing.T) {
	e := newEngine(t)
	res, err := e.Evaluate(Input{Timeframe: model.TF5m, Candles: series(model.TF5m, 146, 4, -0.03)}, nil, 0)
	require.NoError(t, err)
	assert.Equal(t, Scalp, res.Style)
}

func TestEvaluate_ConfidenceBounds(t *testing.T) {
	e := newEngine(t)
	for _, step := range []float64{-0.05, -0.01, 0, 0.002, 0.02, 0.08} {
		res, err := e.Evaluate(Input{Timeframe: model.TF1d, Candles: series(model.TF1d, 120, 30, step)}, nil, 0)
		require.NoError(t, err)
		assert.GreaterOrEqual(t, res.Confidence, 0.0, "step %g", step)
		assert.LessOrEqual(t, res.Confidence, 100.0, "step %g", step)
		assert.True(t, res.Direction.Valid())
	}
}

func setWith(rsi, hist, k float64, bb model.BollingerValue, close float64) model.IndicatorSet {
	return model.IndicatorSet{
		RSI:        rsi,
		MACD:       model.MACDValue{Histogram: hist},
		Bollinger:  bb,
		Stochastic: model.StochasticValue{K: k},
		Close:      close,
	}
}

func TestVote_Thresholds(t *testing.T) {
	e := newEngine(t)
	bands := model.BollingerValue{Upper: 110, Middle: 100, Lower: 90}

	votes := e.vote(model.TF1h, setWith(25, 0.1, 10, bands, 89), 0)
	for _, v := range votes {
		assert.Equal(t, model.VoteBuy, v.Vote, v.Indicator)
	}

	votes = e.vote(model.TF1h, setWith(75, -0.1, 90, bands, 111), 0)
	for _, v := range votes {
		assert.Equal(t, model.VoteSell, v.Vote, v.Indicator)
	}

	votes = e.vote(model.TF1h, setWith(50, 0, 50, bands, 100), 0)
	for _, v := range votes {
		assert.Equal(t, model.VoteNeutral, v.Vote, v.Indicator)
	}

	// Explicit price overrides the close for the band vote.
	votes = e.vote(model.TF1h, setWith(50, 0, 50, bands, 100), 85)
	assert.Equal(t, model.VoteBuy, votes[2].Vote)

	// Collapsed bands never vote.
	flat := model.BollingerValue{Upper: 100, Middle: 100, Lower: 100}
	votes = e.vote(model.TF1h, setWith(50, 0, 50, flat, 100), 0)
	assert.Equal(t, model.VoteNeutral, votes[2].Vote)
}

func TestDecide(t *testing.T) {
	e := newEngine(t)

	dir, conf := e.decide(1, 0, 0)
	assert.Equal(t, model.Long, dir)
	assert.InDelta(t, 100, conf, 1e-9)

	dir, conf = e.decide(0.2, 0.7, 0.1)
	assert.Equal(t, model.Short, dir)
	assert.InDelta(t, 50, conf, 1e-9)

	// Exact split: tie with no neutral share.
	dir, conf = e.decide(0.5, 0.5, 0)
	assert.Equal(t, model.Neutral, dir)
	assert.Zero(t, conf)

	// Below agreement threshold the neutral share is the confidence.
	dir, conf = e.decide(0.3, 0.2, 0.5)
	assert.Equal(t, model.Neutral, dir)
	assert.InDelta(t, 50, conf, 1e-9)
}

func TestDecide_RoundingTieIsNeutral(t *testing.T) {
	e := newEngine(t, func(w *Weights) {
		w.Indicators = map[IndicatorKey]float64{RSI: .1, MACD: .3, Bollinger: .2, Stochastic: .2}
		w.MinAgreement = 0
	})

	// At run time 0.1+0.2 and 0.3 differ by one ulp.
	rsi, macd := 0.1, 0.2
	dir, conf := e.decide(rsi+macd, 0.3, 0.4)
	assert.Equal(t, model.Neutral, dir)
	assert.InDelta(t, 40, conf, 1e-9)

	// RSI and bands buy, MACD sells, stochastic is neutral: 0.1+0.2 against 0.3.
	bands := model.BollingerValue{Upper: 110, Middle: 100, Lower: 90}
	b, sl, n := e.shares(e.vote(model.TF1h, setWith(25, -1, 50, bands, 85), 0))
	dir, conf = e.decide(b, sl, n)
	assert.Equal(t, model.Neutral, dir)
	assert.InDelta(t, 25, conf, 1e-9)
}

func TestShares_IgnoresZeroWeights(t *testing.T) {
	e := newEngine(t, func(w *Weights) {
		w.Indicators = map[IndicatorKey]float64{RSI: 1, MACD: 0, Bollinger: 0, Stochastic: 0}
	})
	bands := model.BollingerValue{Upper: 110, Middle: 100, Lower: 90}
	b, s, n := e.shares(e.vote(model.TF1h, setWith(25, -1, 90, bands, 100), 0))
	assert.InDelta(t, 1, b, 1e-12)
	assert.Zero(t, s)
	assert.Zero(t, n)
}

func TestWeights_Validate(t *testing.T) {
	require.NoError(t, DefaultWeights().Validate())

	cases := map[string]func(*Weights){
		"negative weight":  func(w *Weights) { w.Indicators[RSI] = -1 },
		"unknown key":      func(w *Weights) { w.Indicators["adx"] = 1 },
		"all zero":         func(w *Weights) { w.Indicators = map[IndicatorKey]float64{RSI: 0} },
		"agreement > 100":  func(w *Weights) { w.MinAgreement = 101 },
		"missing tf":       func(w *Weights) { delete(w.TimeframeWeights[Swing], model.TF1w) },
		"bad scalp max":    func(w *Weights) { w.ScalpMaxTimeframe = "2h" },
		"negative depth":   func(w *Weights) { w.ConfirmationDepth = -1 },
		"missing scalp":    func(w *Weights) { delete(w.TimeframeWeights, Scalp) },
		"zero swing entry": func(w *Weights) { w.TimeframeWeights[Swing][model.TF1h] = 0 },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			w := DefaultWeights()
			mutate(&w)
			assert.ErrorIs(t, w.Validate(), model.ErrInvalidParameters)
		})
	}
}

func TestDefaultWeights_ScalpMirrorsSwing(t *testing.T) {
	w := DefaultWeights()
	all := model.AllTimeframes()
	for i, tf := range all {
		assert.Equal(t, w.TimeframeWeights[Swing][all[len(all)-1-i]], w.TimeframeWeights[Scalp][tf])
	}
	assert.Greater(t, w.TimeframeWeights[Scalp][model.TF1m], w.TimeframeWeights[Scalp][model.TF1d])
	assert.Greater(t, w.TimeframeWeights[Swing][model.TF1d], w.TimeframeWeights[Swing][model.TF1m])
}

func TestConfirmationsFor(t *testing.T) {
	w := DefaultWeights()
	tracked := []model.Timeframe{model.TF5m, model.TF1h, model.TF4h, model.TF1d}

	assert.Equal(t, []model.Timeframe{model.TF4h}, w.ConfirmationsFor(model.TF1h, tracked))
	assert.Empty(t, w.ConfirmationsFor(model.TF1d, tracked))

	w.ConfirmationDepth = 2
	assert.Equal(t, []model.Timeframe{model.TF1h, model.TF4h}, w.ConfirmationsFor(model.TF5m, tracked))

	w.ConfirmationDepth = 0
	assert.Empty(t, w.ConfirmationsFor(model.TF5m, tracked))
}

func TestStyleFor(t *testing.T) {
	w := DefaultWeights()
	assert.Equal(t, Scalp, w.StyleFor(model.TF1m))
	assert.Equal(t, Scalp, w.StyleFor(model.TF15m))
	assert.Equal(t, Swing, w.StyleFor(model.TF30m))
}
