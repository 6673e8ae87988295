package montecarlo

import (
	"math"
	"math/rand"
)

// PathGenerator produces simulated price paths. Implementations need not be
// safe for concurrent use; the Simulator hands each run its own generator.
type PathGenerator interface {
	// Path fills out[i] with the price after step i+1, starting from start.
	// sigma is the per-step volatility of log returns.
	Path(start, sigma float64, out []float64)
}

// GBMGenerator draws geometric Brownian motion paths with zero drift unless
// Drift (per step, log space) is set.
type GBMGenerator struct {
	rng   *rand.Rand
	Drift float64
}

// NewGBMGenerator returns a generator reading from rng.
func NewGBMGenerator(rng *rand.Rand) *GBMGenerator {
	return &GBMGenerator{rng: rng}
}

func (g *GBMGenerator) Path(start, sigma float64, out []float64) {
	p := start
	mu := g.Drift - 0.5*sigma*sigma
	for i := range out {
		p *= math.Exp(mu + sigma*g.rng.NormFloat64())
		out[i] = p
	}
}

// StepSigma converts annualized volatility (fraction, e.g. 0.6 = 60%) into
// per-bar volatility for a timeframe with barsPerYear bars.
func StepSigma(annualVol, barsPerYear float64) float64 {
	if barsPerYear <= 0 {
		return 0
	}
	return annualVol / math.Sqrt(barsPerYear)
}
