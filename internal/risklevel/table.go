package risklevel

import (
	"fmt"

	"trading-signalsv1/internal/model"
)

// table holds stop/target distances per timeframe. Longer bars carry wider
// stops; every row keeps a 1:2 risk/reward.
var table = map[model.Timeframe]model.RiskParameters{
	model.TF1m:  {StopLossPercent: 0.15, TakeProfitPercent: 0.30, RiskRewardRatio: 2, MaxRiskPercent: 1.0},
	model.TF5m:  {StopLossPercent: 0.25, TakeProfitPercent: 0.50, RiskRewardRatio: 2, MaxRiskPercent: 1.0},
	model.TF15m: {StopLossPercent: 0.40, TakeProfitPercent: 0.80, RiskRewardRatio: 2, MaxRiskPercent: 1.5},
	model.TF30m: {StopLossPercent: 0.60, TakeProfitPercent: 1.20, RiskRewardRatio: 2, MaxRiskPercent: 1.5},
	model.TF1h:  {StopLossPercent: 0.80, TakeProfitPercent: 1.60, RiskRewardRatio: 2, MaxRiskPercent: 2.0},
	model.TF4h:  {StopLossPercent: 1.50, TakeProfitPercent: 3.00, RiskRewardRatio: 2, MaxRiskPercent: 2.0},
	model.TF12h: {StopLossPercent: 2.50, TakeProfitPercent: 5.00, RiskRewardRatio: 2, MaxRiskPercent: 2.5},
	model.TF1d:  {StopLossPercent: 3.50, TakeProfitPercent: 7.00, RiskRewardRatio: 2, MaxRiskPercent: 3.0},
	model.TF3d:  {StopLossPercent: 5.00, TakeProfitPercent: 10.0, RiskRewardRatio: 2, MaxRiskPercent: 3.0},
	model.TF1w:  {StopLossPercent: 7.00, TakeProfitPercent: 14.0, RiskRewardRatio: 2, MaxRiskPercent: 3.5},
	model.TF1M:  {StopLossPercent: 12.0, TakeProfitPercent: 24.0, RiskRewardRatio: 2, MaxRiskPercent: 4.0},
}

// ParamsFor returns the risk parameters for tf.
func ParamsFor(tf model.Timeframe) (model.RiskParameters, error) {
	p, ok := table[tf]
	if !ok {
		return model.RiskParameters{}, fmt.Errorf("%w: no risk parameters for timeframe %q", model.ErrInvalidParameters, tf)
	}
	return p, nil
}

// Table returns a copy of the full parameter table.
func Table() map[model.Timeframe]model.RiskParameters {
	out := make(map[model.Timeframe]model.RiskParameters, len(table))
	for tf, p := range table {
		out[tf] = p
	}
	return out
}
