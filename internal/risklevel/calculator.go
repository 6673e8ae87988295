// Package risklevel places stop-loss and take-profit prices for an entry.
//
// Calculate is pure: identical requests always produce identical Levels.
// All price arithmetic is decimal. Prices keep Places fractional digits, plus
// one per leading zero of a sub-unit entry so micro-priced assets keep
// distinct levels.
package risklevel

import (
	"fmt"

	"github.com/shopspring/decimal"

	"trading-signalsv1/internal/model"
)

// Places is the number of fractional digits kept on every returned price.
const Places int32 = 8

var (
	hundred = decimal.NewFromInt(100)
	two     = decimal.NewFromInt(2)
)

// Request describes the position levels are wanted for.
type Request struct {
	Entry     decimal.Decimal `json:"entry"`
	Direction model.Direction `json:"direction"`
	Timeframe model.Timeframe `json:"timeframe"`

	// CustomRiskReward replaces the table target distance with
	// stop distance × ratio when positive. Zero means use the table.
	CustomRiskReward decimal.Decimal `json:"custom_risk_reward,omitempty"`

	// AccountBalance enables position sizing at the timeframe's max risk.
	AccountBalance decimal.Decimal `json:"account_balance,omitempty"`
}

// Levels is the result of a calculation. Percentages and the ratio are
// recomputed from the rounded prices, not copied from the table.
type Levels struct {
	Entry           decimal.Decimal `json:"entry"`
	Direction       model.Direction `json:"direction"`
	Timeframe       model.Timeframe `json:"timeframe"`
	StopLoss        decimal.Decimal `json:"stop_loss"`
	TakeProfit      decimal.Decimal `json:"take_profit"`
	RiskRewardRatio decimal.Decimal `json:"risk_reward_ratio"`
	RiskPercent     decimal.Decimal `json:"risk_percent"`
	RewardPercent   decimal.Decimal `json:"reward_percent"`
	MaxRiskPercent  decimal.Decimal `json:"max_risk_percent"`
	PositionSize    decimal.Decimal `json:"position_size,omitempty"`
}

// Calculate computes levels for req.
//
// LONG puts the stop below and the target above the entry; SHORT mirrors it.
// NEUTRAL uses half the stop distance on both sides, stop below and target
// above, at 1:1 unless a custom ratio is given.
func Calculate(req Request) (Levels, error) {
	if !req.Entry.IsPositive() {
		return Levels{}, fmt.Errorf("%w: %s", model.ErrInvalidEntryPrice, req.Entry)
	}
	if !req.Direction.Valid() {
		return Levels{}, fmt.Errorf("%w: %q", model.ErrInvalidDirection, req.Direction)
	}
	if req.CustomRiskReward.IsNegative() {
		return Levels{}, fmt.Errorf("%w: negative risk/reward %s", model.ErrInvalidParameters, req.CustomRiskReward)
	}
	if req.AccountBalance.IsNegative() {
		return Levels{}, fmt.Errorf("%w: negative account balance %s", model.ErrInvalidParameters, req.AccountBalance)
	}
	params, err := ParamsFor(req.Timeframe)
	if err != nil {
		return Levels{}, err
	}

	slPct := decimal.NewFromFloat(params.StopLossPercent)
	tpPct := decimal.NewFromFloat(params.TakeProfitPercent)
	if req.Direction == model.Neutral {
		slPct = slPct.Div(two)
		tpPct = slPct
	}
	if req.CustomRiskReward.IsPositive() {
		tpPct = slPct.Mul(req.CustomRiskReward)
	}

	prec := pricePlaces(req.Entry)
	stopDist := req.Entry.Mul(slPct).Div(hundred)
	targetDist := req.Entry.Mul(tpPct).Div(hundred)

	lv := Levels{
		Entry:          req.Entry,
		Direction:      req.Direction,
		Timeframe:      req.Timeframe,
		MaxRiskPercent: decimal.NewFromFloat(params.MaxRiskPercent),
	}
	switch req.Direction {
	case model.Long, model.Neutral:
		lv.StopLoss = req.Entry.Sub(stopDist).Round(prec)
		lv.TakeProfit = req.Entry.Add(targetDist).Round(prec)
	case model.Short:
		lv.StopLoss = req.Entry.Add(stopDist).Round(prec)
		lv.TakeProfit = req.Entry.Sub(targetDist).Round(prec)
	}

	if err := checkSides(lv); err != nil {
		return Levels{}, err
	}

	risk := lv.Entry.Sub(lv.StopLoss).Abs()
	reward := lv.TakeProfit.Sub(lv.Entry).Abs()
	lv.RiskPercent = risk.Div(lv.Entry).Mul(hundred).Round(Places)
	lv.RewardPercent = reward.Div(lv.Entry).Mul(hundred).Round(Places)
	lv.RiskRewardRatio = reward.Div(risk).Round(Places)

	if req.AccountBalance.IsPositive() {
		budget := req.AccountBalance.Mul(lv.MaxRiskPercent).Div(hundred)
		lv.PositionSize = budget.Div(risk).Round(Places)
	}
	return lv, nil
}

// pricePlaces is the rounding precision for prices around entry.
func pricePlaces(entry decimal.Decimal) int32 {
	// Integer digits of entry; zero or negative below 1, e.g. -5 for 0.000001.
	mag := int32(entry.NumDigits()) + entry.Exponent()
	if mag >= 0 {
		return Places
	}
	return Places - mag
}

// checkSides asserts the stop and target sit on the correct side of entry.
func checkSides(lv Levels) error {
	var ok bool
	switch lv.Direction {
	case model.Long, model.Neutral:
		ok = lv.StopLoss.LessThan(lv.Entry) && lv.Entry.LessThan(lv.TakeProfit)
	case model.Short:
		ok = lv.TakeProfit.LessThan(lv.Entry) && lv.Entry.LessThan(lv.StopLoss)
	}
	if !ok || !lv.StopLoss.IsPositive() || !lv.TakeProfit.IsPositive() {
		return fmt.Errorf("%w: %s levels out of order: sl=%s entry=%s tp=%s",
			model.ErrCalculation, lv.Direction, lv.StopLoss, lv.Entry, lv.TakeProfit)
	}
	return nil
}
