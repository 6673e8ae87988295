package model

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Direction is the side a signal recommends.
type Direction string

const (
	Long    Direction = "LONG"
	Short   Direction = "SHORT"
	Neutral Direction = "NEUTRAL"
)

// ParseDirection accepts LONG/SHORT/NEUTRAL and the BUY/SELL aliases.
func ParseDirection(s string) (Direction, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "LONG", "BUY":
		return Long, nil
	case "SHORT", "SELL":
		return Short, nil
	case "NEUTRAL":
		return Neutral, nil
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidDirection, s)
}

// Valid reports whether d is one of the three directions.
func (d Direction) Valid() bool {
	return d == Long || d == Short || d == Neutral
}

// Vote is a single indicator's directional opinion.
type Vote string

const (
	VoteBuy     Vote = "BUY"
	VoteSell    Vote = "SELL"
	VoteNeutral Vote = "NEUTRAL"
)

// IndicatorVote records how one indicator on one timeframe voted.
type IndicatorVote struct {
	Indicator string    `json:"indicator"`
	Timeframe Timeframe `json:"timeframe"`
	Vote      Vote      `json:"vote"`
	Weight    float64   `json:"weight"`
}

// MACDValue is the MACD line, its signal line and their difference.
type MACDValue struct {
	Value      float64 `json:"value"`
	SignalLine float64 `json:"signal_line"`
	Histogram  float64 `json:"histogram"`
}

// BollingerValue holds the three bands.
type BollingerValue struct {
	Upper  float64 `json:"upper"`
	Middle float64 `json:"middle"`
	Lower  float64 `json:"lower"`
}

// StochasticValue holds smoothed %K and %D.
type StochasticValue struct {
	K float64 `json:"k"`
	D float64 `json:"d"`
}

// IndicatorSet is every indicator computed for one pair as of one candle.
type IndicatorSet struct {
	RSI        float64         `json:"rsi"`
	MACD       MACDValue       `json:"macd"`
	Bollinger  BollingerValue  `json:"bollinger"`
	Stochastic StochasticValue `json:"stochastic"`
	ATR        float64         `json:"atr"`
	Close      float64         `json:"close"`
	AsOf       time.Time       `json:"as_of"`
}

// Signal is the published recommendation for one pair.
// A new cycle supersedes a Signal; it is never mutated.
type Signal struct {
	Symbol      string          `json:"symbol"`
	Timeframe   Timeframe       `json:"timeframe"`
	Direction   Direction       `json:"direction"`
	Confidence  float64         `json:"confidence"`
	EntryPrice  decimal.Decimal `json:"entry_price"`
	StopLoss    decimal.Decimal `json:"stop_loss"`
	TakeProfit  decimal.Decimal `json:"take_profit"`
	GeneratedAt time.Time       `json:"generated_at"`
	Degraded    bool            `json:"degraded,omitempty"` // history short of ideal lookback
	Votes       []IndicatorVote `json:"votes,omitempty"`
}

// Key returns the (symbol, timeframe) key of the signal.
func (s *Signal) Key() Key {
	return Key{Symbol: s.Symbol, Timeframe: s.Timeframe}
}

// RiskLevel buckets simulated risk.
type RiskLevel string

const (
	RiskVeryLow  RiskLevel = "VERY_LOW"
	RiskLow      RiskLevel = "LOW"
	RiskMedium   RiskLevel = "MEDIUM"
	RiskHigh     RiskLevel = "HIGH"
	RiskVeryHigh RiskLevel = "VERY_HIGH"
)

// RiskAssessment summarises a Monte Carlo run. Return figures are percent
// of entry price; WinProbability is percent of paths.
type RiskAssessment struct {
	ExpectedReturn     float64    `json:"expected_return"`
	Volatility         float64    `json:"volatility"`
	VaR95              float64    `json:"var95"`
	MaxDrawdown        float64    `json:"max_drawdown"`
	WinProbability     float64    `json:"win_probability"`
	SharpeRatio        float64    `json:"sharpe_ratio"`
	ConfidenceInterval [2]float64 `json:"confidence_interval"`
	RiskLevel          RiskLevel  `json:"risk_level"`
	Paths              int        `json:"paths"`
	HorizonBars        int        `json:"horizon_bars"`
}

// RiskParameters drives stop-loss/take-profit placement for a timeframe.
type RiskParameters struct {
	StopLossPercent   float64 `json:"stop_loss_percent"`
	TakeProfitPercent float64 `json:"take_profit_percent"`
	RiskRewardRatio   float64 `json:"risk_reward_ratio"`
	MaxRiskPercent    float64 `json:"max_risk_percent"`
}
