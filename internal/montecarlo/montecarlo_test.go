package montecarlo

import (
	"context"
	"math"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"trading-signalsv1/internal/model"
)

func outcomes(returns ...float64) []Outcome {
	out := make([]Outcome, len(returns))
	for i, r := range returns {
		out[i] = Outcome{Return: decimal.NewFromFloat(r), MaxDrawdown: decimal.NewFromFloat(math.Max(-r, 0))}
	}
	return out
}

func TestAggregate_KnownDistribution(t *testing.T) {
	a, err := Aggregate(outcomes(-2, -1, 0, 1, 2), 10)
	require.NoError(t, err)

	assert.InDelta(t, 0, a.ExpectedReturn, 1e-9)
	assert.InDelta(t, math.Sqrt2, a.Volatility, 1e-6)
	assert.InDelta(t, -1.8, a.VaR95, 1e-9)
	assert.InDelta(t, -1.9, a.ConfidenceInterval[0], 1e-9)
	assert.InDelta(t, 1.9, a.ConfidenceInterval[1], 1e-9)
	assert.InDelta(t, 40, a.WinProbability, 1e-9)
	assert.InDelta(t, 2, a.MaxDrawdown, 1e-9)
	assert.Zero(t, a.SharpeRatio)
	assert.Equal(t, 5, a.Paths)
	assert.Equal(t, 10, a.HorizonBars)
	assert.Equal(t, Bucket(a.Volatility, a.VaR95), a.RiskLevel)
}

func TestAggregate_OrderIndependent(t *testing.T) {
	a, err := Aggregate(outcomes(3, -1, 0.5, 2, -0.25, 1), 5)
	require.NoError(t, err)
	b, err := Aggregate(outcomes(-0.25, 1, 2, 3, 0.5, -1), 5)
	require.NoError(t, err)
	assert.Equal(t, a, b)
}

func TestAggregate_ZeroDispersionSharpeIsZero(t *testing.T) {
	a, err := Aggregate(outcomes(1.5, 1.5, 1.5), 5)
	require.NoError(t, err)
	assert.Zero(t, a.Volatility)
	assert.Zero(t, a.SharpeRatio)
	assert.False(t, math.IsNaN(a.SharpeRatio))
	assert.InDelta(t, 100, a.WinProbability, 1e-9)
	assert.Equal(t, model.RiskVeryLow, a.RiskLevel)
}

func TestAggregate_Empty(t *testing.T) {
	_, err := Aggregate(nil, 5)
	assert.ErrorIs(t, err, model.ErrCalculation)
}

func TestBucket(t *testing.T) {
	assert.Equal(t, model.RiskVeryLow, Bucket(0.1, -1))
	assert.Equal(t, model.RiskLow, Bucket(0.5, -1))
	assert.Equal(t, model.RiskMedium, Bucket(1, -2))
	assert.Equal(t, model.RiskHigh, Bucket(2, -3))
	assert.Equal(t, model.RiskVeryHigh, Bucket(3, -3))
}

func longInput(vol float64) Input {
	return Input{
		Direction:        model.Long,
		Entry:            decimal.NewFromInt(50000),
		StopLoss:         decimal.NewFromInt(49600),
		TakeProfit:       decimal.NewFromInt(50800),
		Timeframe:        model.TF1h,
		AnnualVolatility: vol,
	}
}

func newSim(t *testing.T, seed int64) *Simulator {
	t.Helper()
	s, err := New(Config{Paths: 2000, HorizonBars: 20, Seed: seed})
	require.NoError(t, err)
	return s
}

func TestAssess_Bounds(t *testing.T) {
	a, err := newSim(t, 42).Assess(context.Background(), longInput(0.6))
	require.NoError(t, err)

	assert.GreaterOrEqual(t, a.WinProbability, 0.0)
	assert.LessOrEqual(t, a.WinProbability, 100.0)
	assert.LessOrEqual(t, a.ConfidenceInterval[0], a.ExpectedReturn)
	assert.LessOrEqual(t, a.ExpectedReturn, a.ConfidenceInterval[1])

	// Exits happen at the levels at worst/best: −0.8% .. +1.6%.
	assert.GreaterOrEqual(t, a.ConfidenceInterval[0], -0.8-1e-9)
	assert.LessOrEqual(t, a.ConfidenceInterval[1], 1.6+1e-9)
	assert.GreaterOrEqual(t, a.VaR95, -0.8-1e-9)
	assert.GreaterOrEqual(t, a.MaxDrawdown, 0.0)
	assert.Equal(t, 2000, a.Paths)
}

func TestAssess_FixedSeedIsDeterministic(t *testing.T) {
	a, err := newSim(t, 7).Assess(context.Background(), longInput(0.5))
	require.NoError(t, err)
	b, err := newSim(t, 7).Assess(context.Background(), longInput(0.5))
	require.NoError(t, err)
	assert.Equal(t, a, b)
}

func TestAssess_VolatilityMonotonic(t *testing.T) {
	low, err := newSim(t, 11).Assess(context.Background(), longInput(0.05))
	require.NoError(t, err)
	high, err := newSim(t, 11).Assess(context.Background(), longInput(1.0))
	require.NoError(t, err)
	assert.Greater(t, high.Volatility, low.Volatility)
}

// stepPath moves price by a fixed fraction every step.
type stepPath struct{ step float64 }

func (g stepPath) Path(start, _ float64, out []float64) {
	p := start
	for i := range out {
		p *= 1 + g.step
		out[i] = p
	}
}

func TestAssessWith_TargetHitExitsAtLevel(t *testing.T) {
	s := newSim(t, 1)
	a, err := s.AssessWith(context.Background(), stepPath{step: 0.005}, longInput(0.5))
	require.NoError(t, err)
	assert.InDelta(t, 1.6, a.ExpectedReturn, 1e-9)
	assert.InDelta(t, 100, a.WinProbability, 1e-9)
	assert.Zero(t, a.MaxDrawdown)
}

func TestAssessWith_ShortProfitsOnDecline(t *testing.T) {
	in := Input{
		Direction:        model.Short,
		Entry:            decimal.NewFromInt(50000),
		StopLoss:         decimal.NewFromInt(50400),
		TakeProfit:       decimal.NewFromInt(49200),
		Timeframe:        model.TF1h,
		AnnualVolatility: 0.5,
	}
	a, err := newSim(t, 1).AssessWith(context.Background(), stepPath{step: -0.005}, in)
	require.NoError(t, err)
	assert.InDelta(t, 1.6, a.ExpectedReturn, 1e-9)

	a, err = newSim(t, 1).AssessWith(context.Background(), stepPath{step: 0.005}, in)
	require.NoError(t, err)
	assert.InDelta(t, -0.8, a.ExpectedReturn, 1e-9)
	assert.InDelta(t, 0.8, a.MaxDrawdown, 1e-9)
}

func TestAssessWith_MarkToHorizon(t *testing.T) {
	// 0.01% per step never reaches either level in 20 bars.
	a, err := newSim(t, 1).AssessWith(context.Background(), stepPath{step: 0.0001}, longInput(0.5))
	require.NoError(t, err)
	want := (math.Pow(1.0001, 20) - 1) * 100
	assert.InDelta(t, want, a.ExpectedReturn, 1e-5)
}

func TestAssess_InvalidInput(t *testing.T) {
	s := newSim(t, 1)
	ctx := context.Background()

	in := longInput(0)
	_, err := s.Assess(ctx, in)
	assert.ErrorIs(t, err, model.ErrInvalidParameters)

	in = longInput(0.5)
	in.Entry = decimal.Zero
	_, err = s.Assess(ctx, in)
	assert.ErrorIs(t, err, model.ErrInvalidEntryPrice)

	in = longInput(0.5)
	in.StopLoss = decimal.NewFromInt(51000)
	_, err = s.Assess(ctx, in)
	assert.ErrorIs(t, err, model.ErrInvalidParameters)

	in = longInput(0.5)
	in.Direction = "UP"
	_, err = s.Assess(ctx, in)
	assert.ErrorIs(t, err, model.ErrInvalidDirection)
}

func TestAssess_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := newSim(t, 1).Assess(ctx, longInput(0.5))
	assert.ErrorIs(t, err, context.Canceled)
}

func TestConfig_Validate(t *testing.T) {
	assert.NoError(t, DefaultConfig().Validate())
	_, err := New(Config{Paths: 999, HorizonBars: 20})
	assert.ErrorIs(t, err, model.ErrInvalidParameters)
	_, err = New(Config{Paths: 1000})
	assert.ErrorIs(t, err, model.ErrInvalidParameters)
}
