package indicator

import "trading-signalsv1/internal/model"

// RSIOf computes the latest Wilder RSI over candle closes.
func RSIOf(candles []model.Candle, period int) (float64, error) {
	if len(candles) < period+1 {
		return 0, insufficient("RSI", period+1, len(candles))
	}
	r := NewRSI(period)
	for _, c := range candles {
		r.Update(c.Close)
	}
	return r.Value(), nil
}

// Compute builds the full IndicatorSet as of the last candle in one pass.
// Fails with model.ErrInsufficientHistory below p.MinHistory().
func Compute(candles []model.Candle, p Params) (model.IndicatorSet, error) {
	need := p.MinHistory()
	if len(candles) < need {
		return model.IndicatorSet{}, insufficient("IndicatorSet", need, len(candles))
	}

	rsi := NewRSI(p.RSIPeriod)
	macd := NewMACDLine(p.MACDFast, p.MACDSlow, p.MACDSignal)
	stoch := NewStochastic(p.StochPeriod, p.StochSmoothK, p.StochSmoothD)
	atr := NewATR(p.ATRPeriod)
	for _, c := range candles {
		rsi.Update(c.Close)
		macd.Update(c.Close)
		stoch.UpdateCandle(c)
		atr.UpdateCandle(c)
	}

	bb, err := Bollinger(candles, p.BBPeriod, p.BBK)
	if err != nil {
		return model.IndicatorSet{}, err
	}

	last := candles[len(candles)-1]
	return model.IndicatorSet{
		RSI:        rsi.Value(),
		MACD:       macd.Reading(),
		Bollinger:  bb,
		Stochastic: stoch.Reading(),
		ATR:        atr.Value(),
		Close:      last.Close,
		AsOf:       last.Timestamp,
	}, nil
}
