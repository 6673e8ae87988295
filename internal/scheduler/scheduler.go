// Package scheduler drives the periodic refresh-and-compute cycle.
//
// A cycle has two phases. Phase one refreshes every pair's candles through
// the guarded gateway; phase two computes signals for the pairs whose
// refresh succeeded. Both phases run on a bounded worker pool. Per-pair
// failures are logged and recorded in the snapshot, never propagated, and
// exactly one snapshot is published per completed cycle.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"trading-signalsv1/internal/engine"
	"trading-signalsv1/internal/logger"
	"trading-signalsv1/internal/metrics"
	"trading-signalsv1/internal/model"
	"trading-signalsv1/internal/pricecache"
	"trading-signalsv1/internal/signalcache"
)

// Config sets the cadence and the tracked matrix.
type Config struct {
	Interval   time.Duration     `yaml:"interval"`
	Workers    int               `yaml:"workers"`
	Symbols    []string          `yaml:"symbols"`
	Timeframes []model.Timeframe `yaml:"timeframes"`
}

// Validate checks the cadence and the matrix.
func (c Config) Validate() error {
	switch {
	case c.Interval <= 0:
		return fmt.Errorf("%w: interval must be positive", model.ErrInvalidParameters)
	case c.Workers <= 0:
		return fmt.Errorf("%w: workers must be positive", model.ErrInvalidParameters)
	case len(c.Symbols) == 0 || len(c.Timeframes) == 0:
		return fmt.Errorf("%w: no symbols or timeframes to track", model.ErrInvalidParameters)
	}
	for _, tf := range c.Timeframes {
		if !tf.Valid() {
			return fmt.Errorf("%w: timeframe %q", model.ErrInvalidParameters, tf)
		}
	}
	return nil
}

// Pairs returns the symbol × timeframe matrix.
func (c Config) Pairs() []model.Key {
	keys := make([]model.Key, 0, len(c.Symbols)*len(c.Timeframes))
	for _, s := range c.Symbols {
		for _, tf := range c.Timeframes {
			keys = append(keys, model.Key{Symbol: s, Timeframe: tf})
		}
	}
	return keys
}

// Computer produces the published entry for one pair. skip reports pairs
// that failed this cycle and must not be used as confirmations.
type Computer interface {
	Compute(ctx context.Context, key model.Key, skip engine.Unavailable) (signalcache.Entry, error)
}

// Scheduler owns the cycle loop.
type Scheduler struct {
	cfg    Config
	pairs  []model.Key
	gw     model.MarketDataGateway
	prices *pricecache.Cache
	calc   Computer
	cache  *signalcache.Cache

	metrics *metrics.Metrics
	health  *metrics.HealthStatus
	log     *slog.Logger
	now     func() time.Time
}

// Option customises a Scheduler.
type Option func(*Scheduler)

// WithMetrics records cycle metrics on m.
func WithMetrics(m *metrics.Metrics) Option { return func(s *Scheduler) { s.metrics = m } }

// WithHealth reports finished cycles to h.
func WithHealth(h *metrics.HealthStatus) Option { return func(s *Scheduler) { s.health = h } }

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option { return func(s *Scheduler) { s.log = l } }

// WithClock replaces the wall clock used to stamp snapshots.
func WithClock(now func() time.Time) Option { return func(s *Scheduler) { s.now = now } }

// New creates a scheduler.
func New(cfg Config, gw model.MarketDataGateway, prices *pricecache.Cache, calc Computer, cache *signalcache.Cache, opts ...Option) (*Scheduler, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	s := &Scheduler{
		cfg:    cfg,
		pairs:  cfg.Pairs(),
		gw:     gw,
		prices: prices,
		calc:   calc,
		cache:  cache,
		log:    slog.Default(),
		now:    time.Now,
	}
	for _, o := range opts {
		o(s)
	}
	s.log = s.log.With("component", "scheduler")
	return s, nil
}

// Pairs returns the tracked pairs.
func (s *Scheduler) Pairs() []model.Key { return s.pairs }

// Run executes a cycle immediately and then every Interval until ctx ends.
func (s *Scheduler) Run(ctx context.Context) error {
	s.log.Info("scheduler started", "pairs", len(s.pairs), "interval", s.cfg.Interval, "workers", s.cfg.Workers)
	s.RunOnce(ctx)

	ticker := time.NewTicker(s.cfg.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			s.log.Info("scheduler stopped")
			return nil
		case <-ticker.C:
			s.RunOnce(ctx)
		}
	}
}

// failures collects per-pair error kinds from concurrent workers.
type failures struct {
	mu    sync.Mutex
	kinds map[model.Key]string
}

func (f *failures) add(key model.Key, err error) string {
	kind := model.ErrorKind(err)
	f.mu.Lock()
	f.kinds[key] = kind
	f.mu.Unlock()
	return kind
}

func (f *failures) snapshot() map[model.Key]string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make(map[model.Key]string, len(f.kinds))
	for k, v := range f.kinds {
		out[k] = v
	}
	return out
}

// RunOnce performs one cycle and publishes its snapshot. It returns nil
// without publishing when ctx ends mid-cycle.
func (s *Scheduler) RunOnce(ctx context.Context) *signalcache.Snapshot {
	start := time.Now()
	at := s.now()
	ctx = logger.WithTraceID(ctx, logger.GenerateTraceID("cycle", at))

	failed := &failures{kinds: make(map[model.Key]string)}
	record := func(phase string, key model.Key, err error) {
		kind := failed.add(key, err)
		if s.metrics != nil {
			s.metrics.PairsFailed.WithLabelValues(kind).Inc()
		}
		s.log.Warn("pair failed", append(logger.LogWithTrace(ctx),
			"phase", phase, "pair", key.String(), "kind", kind, "error", err)...)
	}

	// Phase 1: refresh through the guarded gateway.
	g := new(errgroup.Group)
	g.SetLimit(s.cfg.Workers)
	for _, key := range s.pairs {
		key := key
		g.Go(func() error {
			if ctx.Err() != nil {
				return nil
			}
			outcome, err := s.prices.Refresh(ctx, s.gw, key)
			if err != nil {
				record("refresh", key, err)
				return nil
			}
			s.log.Debug("pair refreshed", append(logger.LogWithTrace(ctx), "pair", key.String(), "outcome", string(outcome))...)
			return nil
		})
	}
	g.Wait()

	// Phase 2: compute on CPU, no network. Failed refreshes are frozen here:
	// later compute failures never hide a confirmation mid-phase.
	refreshFailed := failed.snapshot()
	skip := func(k model.Key) bool {
		_, ok := refreshFailed[k]
		return ok
	}
	var (
		mu      sync.Mutex
		entries = make(map[model.Key]signalcache.Entry, len(s.pairs))
	)
	g = new(errgroup.Group)
	g.SetLimit(s.cfg.Workers)
	for _, key := range s.pairs {
		key := key
		if skip(key) {
			continue
		}
		g.Go(func() error {
			if ctx.Err() != nil {
				return nil
			}
			e, err := s.calc.Compute(ctx, key, skip)
			if err != nil {
				record("compute", key, err)
				return nil
			}
			mu.Lock()
			entries[key] = e
			mu.Unlock()
			return nil
		})
	}
	g.Wait()

	if ctx.Err() != nil {
		s.log.Info("cycle abandoned", logger.LogWithTrace(ctx)...)
		return nil
	}

	snap := s.cache.NewSnapshot(at, entries, failed.kinds)
	s.cache.Publish(snap)

	elapsed := time.Since(start)
	if s.metrics != nil {
		s.metrics.CycleDuration.Observe(elapsed.Seconds())
		s.metrics.SignalsPublished.Set(float64(len(entries)))
	}
	if s.health != nil {
		s.health.RecordCycle(at, len(entries), len(failed.kinds))
	}
	s.log.Info("cycle published", append(logger.LogWithTrace(ctx),
		"snapshot", snap.ID, "signals", len(entries), "failed", len(failed.kinds), "elapsed", elapsed)...)
	return snap
}
