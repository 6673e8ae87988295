package indicator

import "trading-signalsv1/internal/model"

// Stochastic tracks the slow stochastic oscillator:
// raw %K over a high/low window, %K = SMA(smoothK) of raw, %D = SMA(smoothD) of %K.
type Stochastic struct {
	period int
	highs  []float64
	lows   []float64
	idx    int
	count  int
	k      *SMA
	d      *SMA
}

// NewStochastic creates a stochastic tracker (typically 14, 3, 3).
func NewStochastic(period, smoothK, smoothD int) *Stochastic {
	return &Stochastic{
		period: period,
		highs:  make([]float64, period),
		lows:   make([]float64, period),
		k:      NewSMA(smoothK),
		d:      NewSMA(smoothD),
	}
}

func (s *Stochastic) Name() string { return "STOCH" }

// UpdateCandle feeds the next bar.
func (s *Stochastic) UpdateCandle(c model.Candle) {
	s.highs[s.idx] = c.High
	s.lows[s.idx] = c.Low
	s.idx = (s.idx + 1) % s.period
	s.count++
	if s.count < s.period {
		return
	}

	hh, ll := s.highs[0], s.lows[0]
	for i := 1; i < s.period; i++ {
		hh = max(hh, s.highs[i])
		ll = min(ll, s.lows[i])
	}

	raw := 50.0 // flat range: no information either way
	if hh > ll {
		raw = clamp((c.Close-ll)/(hh-ll)*100, 0, 100)
	}
	s.k.Update(raw)
	if s.k.Ready() {
		s.d.Update(s.k.Value())
	}
}

func (s *Stochastic) Ready() bool { return s.d.Ready() }

// Reading returns %K and %D clamped to [0,100].
func (s *Stochastic) Reading() model.StochasticValue {
	return model.StochasticValue{
		K: clamp(s.k.Value(), 0, 100),
		D: clamp(s.d.Value(), 0, 100),
	}
}

func stochMinCandles(period, smoothK, smoothD int) int {
	return period + smoothK - 1 + smoothD - 1
}

// StochasticOf computes the latest slow stochastic over candles.
func StochasticOf(candles []model.Candle, period, smoothK, smoothD int) (model.StochasticValue, error) {
	need := stochMinCandles(period, smoothK, smoothD)
	if len(candles) < need {
		return model.StochasticValue{}, insufficient("Stochastic", need, len(candles))
	}
	s := NewStochastic(period, smoothK, smoothD)
	for _, c := range candles {
		s.UpdateCandle(c)
	}
	return s.Reading(), nil
}
