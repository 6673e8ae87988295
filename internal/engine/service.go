package engine

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"

	"trading-signalsv1/internal/metrics"
	"trading-signalsv1/internal/model"
	"trading-signalsv1/internal/montecarlo"
	"trading-signalsv1/internal/pricecache"
	"trading-signalsv1/internal/risklevel"
	"trading-signalsv1/internal/signalcache"
)

// StatusSource reports the gateway guard's state.
type StatusSource interface {
	Status() model.RateLimiterStatus
}

// Service answers queries against the latest published snapshot and runs
// on-demand level and simulation requests. Reads never block on a cycle.
type Service struct {
	cache   *signalcache.Cache
	guard   StatusSource
	sim     *montecarlo.Simulator
	metrics *metrics.Metrics
}

// NewService creates the query facade. m may be nil.
func NewService(cache *signalcache.Cache, guard StatusSource, sim *montecarlo.Simulator, m *metrics.Metrics) *Service {
	return &Service{cache: cache, guard: guard, sim: sim, metrics: m}
}

// Snapshot returns the current snapshot.
func (s *Service) Snapshot() *signalcache.Snapshot { return s.cache.Current() }

// lookup finds the entry for a pair, surfacing the failure recorded for it
// in the current snapshot when there is one.
func (s *Service) lookup(symbol string, tf model.Timeframe) (signalcache.Entry, error) {
	if symbol == "" || !tf.Valid() {
		return signalcache.Entry{}, fmt.Errorf("%w: symbol %q timeframe %q", model.ErrInvalidParameters, symbol, tf)
	}
	key := model.Key{Symbol: symbol, Timeframe: tf}
	snap := s.cache.Current()
	if e, ok := snap.Get(key); ok {
		return e, nil
	}
	if kind, ok := snap.Failure(key); ok {
		return signalcache.Entry{}, fmt.Errorf("%s: last cycle failed: %w", key, model.KindError(kind))
	}
	return signalcache.Entry{}, fmt.Errorf("%s: %w", key, model.ErrNotFound)
}

// GetSignal returns the published signal for a pair.
func (s *Service) GetSignal(symbol string, tf model.Timeframe) (model.Signal, error) {
	e, err := s.lookup(symbol, tf)
	if err != nil {
		return model.Signal{}, err
	}
	return e.Signal, nil
}

// GetRiskAssessment returns the published assessment for a pair.
func (s *Service) GetRiskAssessment(symbol string, tf model.Timeframe) (model.RiskAssessment, error) {
	e, err := s.lookup(symbol, tf)
	if err != nil {
		return model.RiskAssessment{}, err
	}
	return e.Risk, nil
}

// GetEntry returns the signal, assessment and indicators for a pair.
func (s *Service) GetEntry(symbol string, tf model.Timeframe) (signalcache.Entry, error) {
	return s.lookup(symbol, tf)
}

// GetRateLimiterStatus reports the gateway guard.
func (s *Service) GetRateLimiterStatus() model.RateLimiterStatus {
	return s.guard.Status()
}

// Levels computes stop-loss and take-profit for an arbitrary entry.
func (s *Service) Levels(req risklevel.Request) (risklevel.Levels, error) {
	return risklevel.Calculate(req)
}

// AssessRequest is an on-demand simulation of a caller-defined position.
type AssessRequest struct {
	Symbol           string          `json:"symbol"`
	Timeframe        model.Timeframe `json:"timeframe"`
	Direction        model.Direction `json:"direction"`
	Entry            decimal.Decimal `json:"entry"`
	CustomRiskReward decimal.Decimal `json:"custom_risk_reward,omitempty"`
}

// AssessResult pairs the levels used with their simulated outcome.
type AssessResult struct {
	Levels risklevel.Levels     `json:"levels"`
	Risk   model.RiskAssessment `json:"risk"`
}

// Assess places levels around req.Entry and simulates them with the
// volatility implied by the pair's cached ATR.
func (s *Service) Assess(ctx context.Context, req AssessRequest) (AssessResult, error) {
	if !req.Direction.Valid() {
		return AssessResult{}, fmt.Errorf("%w: %q", model.ErrInvalidDirection, req.Direction)
	}
	e, err := s.lookup(req.Symbol, req.Timeframe)
	if err != nil {
		return AssessResult{}, err
	}
	lv, err := risklevel.Calculate(risklevel.Request{
		Entry:            req.Entry,
		Direction:        req.Direction,
		Timeframe:        req.Timeframe,
		CustomRiskReward: req.CustomRiskReward,
	})
	if err != nil {
		return AssessResult{}, err
	}

	risk, err := simulate(ctx, s.sim, s.metrics, lv, e.Indicators)
	if err != nil {
		return AssessResult{}, err
	}
	return AssessResult{Levels: lv, Risk: risk}, nil
}

// WarmStart preloads up to n bars per pair from store into prices and
// returns how many bars were loaded. Load errors skip the pair.
func WarmStart(ctx context.Context, store model.CandleStore, prices *pricecache.Cache, pairs []model.Key, n int) (int, error) {
	total := 0
	var firstErr error
	for _, key := range pairs {
		bars, err := store.LoadCandles(ctx, key, n)
		if err != nil {
			if firstErr == nil {
				firstErr = fmt.Errorf("warm %s: %w", key, err)
			}
			continue
		}
		prices.Warm(key, bars)
		total += len(bars)
	}
	return total, firstErr
}
