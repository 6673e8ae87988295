// Package sim is an offline market-data provider producing a seeded random
// walk per (symbol, timeframe). Bars are aligned to timeframe boundaries and
// the walk continues across calls, so a warm cache sees a consistent series.
package sim

import (
	"context"
	"fmt"
	"hash/fnv"
	"math"
	"math/rand"
	"strings"
	"sync"
	"time"

	"trading-signalsv1/internal/model"
)

// Config controls the walk.
type Config struct {
	Seed int64
	// StartPrices pins the first price of a symbol; others derive one from
	// the symbol name.
	StartPrices map[string]float64
	// MinuteVol is the per-minute stddev of returns, scaled by sqrt(bar minutes).
	MinuteVol float64
}

type series struct {
	rng  *rand.Rand
	last model.Candle
}

// Provider implements model.MarketDataGateway.
type Provider struct {
	cfg Config
	now func() time.Time

	mu     sync.Mutex
	series map[model.Key]*series
}

var _ model.MarketDataGateway = (*Provider)(nil)

// New creates a provider.
func New(cfg Config) *Provider {
	if cfg.MinuteVol <= 0 {
		cfg.MinuteVol = 0.0008
	}
	return &Provider{cfg: cfg, now: time.Now, series: make(map[model.Key]*series)}
}

// WithClock replaces the wall clock.
func (p *Provider) WithClock(now func() time.Time) *Provider {
	p.now = now
	return p
}

// FetchLatestCandle advances the walk to the current bar and returns it.
func (p *Provider) FetchLatestCandle(ctx context.Context, symbol string, tf model.Timeframe) (model.Candle, error) {
	if err := validate(ctx, symbol, tf); err != nil {
		return model.Candle{}, err
	}
	p.mu.Lock()
	defer p.mu.Unlock()

	key := model.Key{Symbol: symbol, Timeframe: tf}
	s, ok := p.series[key]
	if !ok {
		s = p.start(key, p.barOpen(tf).Add(-tf.Duration()))
	}
	current := p.barOpen(tf)
	for s.last.Timestamp.Before(current) {
		s.last = p.step(s, tf, s.last.Timestamp.Add(tf.Duration()))
	}
	return s.last, nil
}

// FetchHistory returns n bars ending at the current bar, oldest first. The
// series restarts on every history call.
func (p *Provider) FetchHistory(ctx context.Context, symbol string, tf model.Timeframe, n int) ([]model.Candle, error) {
	if err := validate(ctx, symbol, tf); err != nil {
		return nil, err
	}
	if n <= 0 {
		return nil, fmt.Errorf("%w: history length %d", model.ErrInvalidParameters, n)
	}
	p.mu.Lock()
	defer p.mu.Unlock()

	key := model.Key{Symbol: symbol, Timeframe: tf}
	first := p.barOpen(tf).Add(-time.Duration(n) * tf.Duration())
	s := p.start(key, first)

	out := make([]model.Candle, 0, n)
	for i := 1; i <= n; i++ {
		s.last = p.step(s, tf, first.Add(time.Duration(i)*tf.Duration()))
		out = append(out, s.last)
	}
	return out, nil
}

func validate(ctx context.Context, symbol string, tf model.Timeframe) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if strings.TrimSpace(symbol) == "" {
		return fmt.Errorf("%w: empty symbol", model.ErrInvalidParameters)
	}
	if !tf.Valid() {
		return fmt.Errorf("%w: timeframe %q", model.ErrInvalidParameters, tf)
	}
	return nil
}

func (p *Provider) barOpen(tf model.Timeframe) time.Time {
	return p.now().UTC().Truncate(tf.Duration())
}

// start seeds a fresh series whose virtual previous bar opens at ts.
func (p *Provider) start(key model.Key, ts time.Time) *series {
	h := fnv.New64a()
	h.Write([]byte(key.String()))
	seed := p.cfg.Seed ^ int64(h.Sum64())

	price, ok := p.cfg.StartPrices[key.Symbol]
	if !ok {
		hs := fnv.New32a()
		hs.Write([]byte(key.Symbol))
		price = 50 + float64(hs.Sum32()%950)
	}
	s := &series{
		rng:  rand.New(rand.NewSource(seed)),
		last: model.Candle{Timestamp: ts, Open: price, High: price, Low: price, Close: price},
	}
	p.series[key] = s
	return s
}

func (p *Provider) step(s *series, tf model.Timeframe, ts time.Time) model.Candle {
	vol := p.cfg.MinuteVol * math.Sqrt(tf.Duration().Minutes())
	open := s.last.Close
	ret := s.rng.NormFloat64() * vol
	// Keep the walk positive on very long bars.
	ret = math.Max(ret, -0.5)
	cl := open * (1 + ret)
	wick := math.Abs(s.rng.NormFloat64()) * vol / 2
	return model.Candle{
		Timestamp: ts,
		Open:      open,
		High:      math.Max(open, cl) * (1 + wick),
		Low:       math.Min(open, cl) * (1 - math.Min(wick, 0.5)),
		Close:     cl,
		Volume:    float64(s.rng.Intn(1000) + 100),
	}
}
