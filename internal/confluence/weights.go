package confluence

import (
	"fmt"
	"slices"

	"trading-signalsv1/internal/model"
)

// IndicatorKey names an indicator that votes.
type IndicatorKey string

const (
	RSI        IndicatorKey = "rsi"
	MACD       IndicatorKey = "macd"
	Bollinger  IndicatorKey = "bollinger"
	Stochastic IndicatorKey = "stochastic"
)

var voters = []IndicatorKey{RSI, MACD, Bollinger, Stochastic}

// Style selects which timeframe-importance table combines timeframes.
type Style string

const (
	// Scalp favours short timeframes.
	Scalp Style = "SCALP"
	// Swing favours long timeframes.
	Swing Style = "SWING"
)

// Weights is the typed confluence configuration.
type Weights struct {
	Indicators        map[IndicatorKey]float64              `yaml:"indicators"`
	MinAgreement      float64                               `yaml:"min_agreement"` // percent
	TimeframeWeights  map[Style]map[model.Timeframe]float64 `yaml:"timeframe_weights"`
	ScalpMaxTimeframe model.Timeframe                       `yaml:"scalp_max_timeframe"`
	ConfirmationDepth int                                   `yaml:"confirmation_depth"`
	IdealHistory      int                                   `yaml:"ideal_history"`
}

// DefaultWeights returns momentum-heavy indicator weights and the two
// timeframe tables. SWING rises with bar length; SCALP is its mirror.
func DefaultWeights() Weights {
	swing := map[model.Timeframe]float64{
		model.TF1m:  0.5,
		model.TF5m:  0.6,
		model.TF15m: 0.8,
		model.TF30m: 1.0,
		model.TF1h:  1.2,
		model.TF4h:  1.5,
		model.TF12h: 1.8,
		model.TF1d:  2.0,
		model.TF3d:  2.2,
		model.TF1w:  2.4,
		model.TF1M:  2.5,
	}
	all := model.AllTimeframes()
	scalp := make(map[model.Timeframe]float64, len(all))
	for i, tf := range all {
		scalp[tf] = swing[all[len(all)-1-i]]
	}
	return Weights{
		Indicators: map[IndicatorKey]float64{
			RSI:        0.30,
			MACD:       0.30,
			Bollinger:  0.20,
			Stochastic: 0.20,
		},
		MinAgreement:      25,
		TimeframeWeights:  map[Style]map[model.Timeframe]float64{Scalp: scalp, Swing: swing},
		ScalpMaxTimeframe: model.TF15m,
		ConfirmationDepth: 1,
		IdealHistory:      100,
	}
}

// Validate rejects unusable configurations at startup.
func (w Weights) Validate() error {
	total := 0.0
	for k, v := range w.Indicators {
		if !slices.Contains(voters, k) {
			return fmt.Errorf("%w: unknown indicator %q", model.ErrInvalidParameters, k)
		}
		if v < 0 {
			return fmt.Errorf("%w: indicator %s has negative weight %g", model.ErrInvalidParameters, k, v)
		}
		total += v
	}
	if total <= 0 {
		return fmt.Errorf("%w: at least one indicator weight must be positive", model.ErrInvalidParameters)
	}
	if w.MinAgreement < 0 || w.MinAgreement > 100 {
		return fmt.Errorf("%w: min_agreement must be within [0,100], got %g", model.ErrInvalidParameters, w.MinAgreement)
	}
	for _, style := range []Style{Scalp, Swing} {
		table, ok := w.TimeframeWeights[style]
		if !ok {
			return fmt.Errorf("%w: missing %s timeframe weights", model.ErrInvalidParameters, style)
		}
		for _, tf := range model.AllTimeframes() {
			if v, ok := table[tf]; !ok || v <= 0 {
				return fmt.Errorf("%w: %s weight for %s must be positive", model.ErrInvalidParameters, style, tf)
			}
		}
	}
	if !w.ScalpMaxTimeframe.Valid() {
		return fmt.Errorf("%w: scalp_max_timeframe %q", model.ErrInvalidParameters, w.ScalpMaxTimeframe)
	}
	if w.ConfirmationDepth < 0 {
		return fmt.Errorf("%w: confirmation_depth must not be negative", model.ErrInvalidParameters)
	}
	if w.IdealHistory < 0 {
		return fmt.Errorf("%w: ideal_history must not be negative", model.ErrInvalidParameters)
	}
	return nil
}

// StyleFor returns SCALP for primaries up to ScalpMaxTimeframe, else SWING.
func (w Weights) StyleFor(primary model.Timeframe) Style {
	if primary.Rank() <= w.ScalpMaxTimeframe.Rank() {
		return Scalp
	}
	return Swing
}

// ConfirmationsFor picks the next ConfirmationDepth tracked timeframes above
// primary, shortest first.
func (w Weights) ConfirmationsFor(primary model.Timeframe, tracked []model.Timeframe) []model.Timeframe {
	var out []model.Timeframe
	for _, tf := range model.AllTimeframes() {
		if len(out) >= w.ConfirmationDepth {
			break
		}
		if tf.Rank() <= primary.Rank() || !slices.Contains(tracked, tf) {
			continue
		}
		out = append(out, tf)
	}
	return out
}
