// Package montecarlo estimates the risk of a signal by simulating price
// paths against its stop and target.
//
// Path generation (PathGenerator) is separate from aggregation (Aggregate)
// so the statistics can be checked against synthetic outcomes.
package montecarlo

import (
	"context"
	"fmt"
	"math"
	"math/rand"
	"sync"

	"github.com/shopspring/decimal"

	"trading-signalsv1/internal/model"
)

// MinPaths is the smallest simulation size accepted.
const MinPaths = 1000

var hundred = decimal.NewFromInt(100)

// Config controls simulation size.
type Config struct {
	Paths       int   `yaml:"paths"`
	HorizonBars int   `yaml:"horizon_bars"`
	Seed        int64 `yaml:"seed"` // 0 seeds from the clock
}

// DefaultConfig returns 2000 paths over 20 bars.
func DefaultConfig() Config {
	return Config{Paths: 2000, HorizonBars: 20}
}

// Validate checks the simulation size.
func (c Config) Validate() error {
	if c.Paths < MinPaths {
		return fmt.Errorf("%w: paths must be at least %d, got %d", model.ErrInvalidParameters, MinPaths, c.Paths)
	}
	if c.HorizonBars <= 0 {
		return fmt.Errorf("%w: horizon_bars must be positive, got %d", model.ErrInvalidParameters, c.HorizonBars)
	}
	return nil
}

// Input is one position to assess.
type Input struct {
	Direction        model.Direction
	Entry            decimal.Decimal
	StopLoss         decimal.Decimal
	TakeProfit       decimal.Decimal
	Timeframe        model.Timeframe
	AnnualVolatility float64 // fraction, e.g. 0.6 for 60%
}

// Simulator runs Monte Carlo assessments. Safe for concurrent use: every
// Assess call draws a private generator seeded from a shared source.
type Simulator struct {
	cfg Config

	mu    sync.Mutex
	seeds *rand.Rand

	newGenerator func(seed int64) PathGenerator
}

// New creates a Simulator with GBM paths.
func New(cfg Config) (*Simulator, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	seed := cfg.Seed
	if seed == 0 {
		seed = rand.Int63()
	}
	return &Simulator{
		cfg:   cfg,
		seeds: rand.New(rand.NewSource(seed)),
		newGenerator: func(seed int64) PathGenerator {
			return NewGBMGenerator(rand.New(rand.NewSource(seed)))
		},
	}, nil
}

// Config returns the simulator's configuration.
func (s *Simulator) Config() Config { return s.cfg }

// Assess simulates in with a fresh generator.
func (s *Simulator) Assess(ctx context.Context, in Input) (model.RiskAssessment, error) {
	s.mu.Lock()
	seed := s.seeds.Int63()
	s.mu.Unlock()
	return s.AssessWith(ctx, s.newGenerator(seed), in)
}

// AssessWith simulates in using gen.
func (s *Simulator) AssessWith(ctx context.Context, gen PathGenerator, in Input) (model.RiskAssessment, error) {
	if err := validateInput(in); err != nil {
		return model.RiskAssessment{}, err
	}

	entry := in.Entry.InexactFloat64()
	stop := in.StopLoss.InexactFloat64()
	target := in.TakeProfit.InexactFloat64()
	sigma := StepSigma(in.AnnualVolatility, in.Timeframe.BarsPerYear())

	sign := 1.0
	if in.Direction == model.Short {
		sign = -1
	}

	path := make([]float64, s.cfg.HorizonBars)
	outcomes := make([]Outcome, s.cfg.Paths)
	for i := range outcomes {
		if i%256 == 0 {
			if err := ctx.Err(); err != nil {
				return model.RiskAssessment{}, err
			}
		}
		gen.Path(entry, sigma, path)
		outcomes[i] = walk(path, in, entry, stop, target, sign)
	}
	return Aggregate(outcomes, s.cfg.HorizonBars)
}

// walk follows one path until the stop or target is touched, or the horizon
// ends. A touched level exits exactly at that level.
func walk(path []float64, in Input, entry, stop, target, sign float64) Outcome {
	var o Outcome
	last := entry
	peakEq, maxDD := 1.0, 0.0
	for _, p := range path {
		hitStop := (sign > 0 && p <= stop) || (sign < 0 && p >= stop)
		hitTarget := (sign > 0 && p >= target) || (sign < 0 && p <= target)

		mark := p
		switch {
		case hitStop:
			mark = stop
		case hitTarget:
			mark = target
		}
		eq := 1 + sign*(mark-entry)/entry
		peakEq = math.Max(peakEq, eq)
		if dd := (peakEq - eq) / peakEq; dd > maxDD {
			maxDD = dd
		}

		if hitStop || hitTarget {
			o.HitStop, o.HitTarget = hitStop, !hitStop
			break
		}
		last = p
	}

	var exit decimal.Decimal
	switch {
	case o.HitStop:
		exit = in.StopLoss
	case o.HitTarget:
		exit = in.TakeProfit
	default:
		exit = decimal.NewFromFloat(last)
	}
	ret := exit.Sub(in.Entry).Div(in.Entry).Mul(hundred)
	if sign < 0 {
		ret = ret.Neg()
	}
	o.Return = ret
	o.MaxDrawdown = decimal.NewFromFloat(maxDD * 100)
	return o
}

func validateInput(in Input) error {
	if !in.Direction.Valid() {
		return fmt.Errorf("%w: %q", model.ErrInvalidDirection, in.Direction)
	}
	if !in.Entry.IsPositive() {
		return fmt.Errorf("%w: %s", model.ErrInvalidEntryPrice, in.Entry)
	}
	if !in.Timeframe.Valid() {
		return fmt.Errorf("%w: unknown timeframe %q", model.ErrInvalidParameters, in.Timeframe)
	}
	if math.IsNaN(in.AnnualVolatility) || math.IsInf(in.AnnualVolatility, 0) || in.AnnualVolatility <= 0 {
		return fmt.Errorf("%w: volatility must be positive, got %g", model.ErrInvalidParameters, in.AnnualVolatility)
	}
	below, above := in.StopLoss, in.TakeProfit
	if in.Direction == model.Short {
		below, above = in.TakeProfit, in.StopLoss
	}
	if !below.IsPositive() || !below.LessThan(in.Entry) || !in.Entry.LessThan(above) {
		return fmt.Errorf("%w: levels out of order for %s: sl=%s entry=%s tp=%s",
			model.ErrInvalidParameters, in.Direction, in.StopLoss, in.Entry, in.TakeProfit)
	}
	return nil
}
