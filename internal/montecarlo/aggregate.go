package montecarlo

import (
	"fmt"
	"math"
	"sort"

	"github.com/shopspring/decimal"

	"trading-signalsv1/internal/model"
)

// reportPlaces is the precision of figures copied into a RiskAssessment.
const reportPlaces int32 = 6

// Outcome is the result of one simulated path.
type Outcome struct {
	Return      decimal.Decimal // percent of entry, direction-adjusted
	MaxDrawdown decimal.Decimal // percent, ≥ 0
	HitStop     bool
	HitTarget   bool
}

// Aggregate reduces path outcomes into a RiskAssessment. It is
// deterministic: the same outcomes always give the same assessment.
//
// Sharpe is mean/stddev of path returns over the horizon, not annualized;
// with zero dispersion it is reported as 0.
func Aggregate(outcomes []Outcome, horizonBars int) (model.RiskAssessment, error) {
	n := len(outcomes)
	if n == 0 {
		return model.RiskAssessment{}, fmt.Errorf("%w: no simulated paths", model.ErrCalculation)
	}

	returns := make([]decimal.Decimal, n)
	sum := decimal.Zero
	wins := 0
	maxDD := decimal.Zero
	for i, o := range outcomes {
		returns[i] = o.Return
		sum = sum.Add(o.Return)
		if o.Return.IsPositive() {
			wins++
		}
		if o.MaxDrawdown.GreaterThan(maxDD) {
			maxDD = o.MaxDrawdown
		}
	}
	count := decimal.NewFromInt(int64(n))
	mean := sum.Div(count)

	ss := decimal.Zero
	for _, r := range returns {
		d := r.Sub(mean)
		ss = ss.Add(d.Mul(d))
	}
	stddev := math.Sqrt(ss.Div(count).InexactFloat64())

	sort.Slice(returns, func(i, j int) bool { return returns[i].LessThan(returns[j]) })
	var95 := percentile(returns, 5)
	ciLo := percentile(returns, 2.5)
	ciHi := percentile(returns, 97.5)

	sharpe := 0.0
	if stddev > 0 {
		sharpe = mean.InexactFloat64() / stddev
	}

	a := model.RiskAssessment{
		ExpectedReturn: round(mean),
		Volatility:     roundF(stddev),
		VaR95:          round(var95),
		MaxDrawdown:    round(maxDD),
		WinProbability: roundF(float64(wins) / float64(n) * 100),
		SharpeRatio:    roundF(sharpe),
		ConfidenceInterval: [2]float64{
			round(ciLo),
			round(ciHi),
		},
		Paths:       n,
		HorizonBars: horizonBars,
	}
	a.RiskLevel = Bucket(a.Volatility, a.VaR95)
	return a, nil
}

// percentile reads the p-th percentile of sorted by linear interpolation
// between closest ranks.
func percentile(sorted []decimal.Decimal, p float64) decimal.Decimal {
	if len(sorted) == 1 {
		return sorted[0]
	}
	rank := p / 100 * float64(len(sorted)-1)
	lo := int(math.Floor(rank))
	hi := lo + 1
	if hi >= len(sorted) {
		return sorted[len(sorted)-1]
	}
	frac := decimal.NewFromFloat(rank - float64(lo))
	return sorted[lo].Add(sorted[hi].Sub(sorted[lo]).Mul(frac))
}

// Bucket classifies volatility·|VaR95| (both in percent) into a RiskLevel.
func Bucket(volatility, var95 float64) model.RiskLevel {
	score := volatility * math.Abs(var95)
	switch {
	case score < 0.25:
		return model.RiskVeryLow
	case score < 1:
		return model.RiskLow
	case score < 4:
		return model.RiskMedium
	case score < 9:
		return model.RiskHigh
	default:
		return model.RiskVeryHigh
	}
}

func round(d decimal.Decimal) float64 { return d.Round(reportPlaces).InexactFloat64() }

func roundF(f float64) float64 {
	return decimal.NewFromFloat(f).Round(reportPlaces).InexactFloat64()
}
