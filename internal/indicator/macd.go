package indicator

import "trading-signalsv1/internal/model"

// MACDLine tracks EMA(fast) − EMA(slow) and its EMA signal line.
// The signal EMA is only fed once the slow EMA is seeded, so the first full
// reading needs slow+signal−1 values.
type MACDLine struct {
	fast   *EMA
	slow   *EMA
	signal *EMA
	value  float64
}

// NewMACDLine creates a MACD tracker (typically 12, 26, 9).
func NewMACDLine(fast, slow, signal int) *MACDLine {
	return &MACDLine{
		fast:   NewEMA(fast),
		slow:   NewEMA(slow),
		signal: NewEMA(signal),
	}
}

func (m *MACDLine) Name() string { return "MACD" }

func (m *MACDLine) Update(price float64) {
	m.fast.Update(price)
	m.slow.Update(price)
	if !m.slow.Ready() {
		return
	}
	m.value = m.fast.Value() - m.slow.Value()
	m.signal.Update(m.value)
}

// Value returns the MACD line (fast − slow).
func (m *MACDLine) Value() float64 { return m.value }
func (m *MACDLine) Ready() bool    { return m.signal.Ready() }

// Reading returns line, signal and histogram. The histogram is computed from
// the two returned fields so Histogram == Value − SignalLine exactly.
func (m *MACDLine) Reading() model.MACDValue {
	sig := m.signal.Value()
	return model.MACDValue{
		Value:      m.value,
		SignalLine: sig,
		Histogram:  m.value - sig,
	}
}

func macdMinCandles(slow, signal int) int {
	return slow + signal - 1
}

// MACD computes the latest MACD reading over candles.
func MACD(candles []model.Candle, fast, slow, signal int) (model.MACDValue, error) {
	need := macdMinCandles(slow, signal)
	if len(candles) < need {
		return model.MACDValue{}, insufficient("MACD", need, len(candles))
	}
	m := NewMACDLine(fast, slow, signal)
	for _, c := range candles {
		m.Update(c.Close)
	}
	return m.Reading(), nil
}
