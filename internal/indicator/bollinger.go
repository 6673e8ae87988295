package indicator

import "trading-signalsv1/internal/model"

// Bollinger computes bands around SMA(period) at ±k population standard
// deviations. A window with zero variance collapses all three bands onto
// the middle; otherwise upper > middle > lower.
func Bollinger(candles []model.Candle, period int, k float64) (model.BollingerValue, error) {
	if len(candles) < period {
		return model.BollingerValue{}, insufficient("Bollinger", period, len(candles))
	}
	sma := NewSMA(period)
	for _, c := range candles[len(candles)-period:] {
		sma.Update(c.Close)
	}

	middle := sma.Value()
	width := k * sma.StdDev()
	if width == 0 {
		return model.BollingerValue{Upper: middle, Middle: middle, Lower: middle}, nil
	}
	return model.BollingerValue{
		Upper:  middle + width,
		Middle: middle,
		Lower:  middle - width,
	}, nil
}

// PercentB locates price within the bands: 0 at lower, 1 at upper.
// Collapsed bands read 0.5.
func PercentB(b model.BollingerValue, price float64) float64 {
	span := b.Upper - b.Lower
	if span == 0 {
		return 0.5
	}
	return (price - b.Lower) / span
}
