// Package pricecache keeps a bounded candle history per (symbol, timeframe)
// and refreshes it through the guarded gateway while spending as little
// quota as possible.
package pricecache

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"trading-signalsv1/internal/model"
	"trading-signalsv1/internal/ringbuf"
)

// MinCapacity is the smallest ring a pair gets.
const MinCapacity = 256

// Config sizes the cache.
type Config struct {
	Capacity    int           `yaml:"capacity"`     // bars retained per pair, rounded up to a power of two
	HistorySize int           `yaml:"history_size"` // bars requested on a cold fetch
	MaxAge      time.Duration `yaml:"max_age"`      // re-fetch a still-forming bar after this long
}

// DefaultConfig holds enough bars for every indicator lookback.
func DefaultConfig() Config {
	return Config{Capacity: 256, HistorySize: 150, MaxAge: 15 * time.Minute}
}

// Validate checks the sizes.
func (c Config) Validate() error {
	switch {
	case c.Capacity < MinCapacity:
		return fmt.Errorf("%w: capacity %d below %d", model.ErrInvalidParameters, c.Capacity, MinCapacity)
	case c.HistorySize <= 0 || c.HistorySize > c.Capacity:
		return fmt.Errorf("%w: history_size %d outside (0, %d]", model.ErrInvalidParameters, c.HistorySize, c.Capacity)
	case c.MaxAge < 0:
		return fmt.Errorf("%w: max_age must not be negative", model.ErrInvalidParameters)
	}
	return nil
}

// Outcome says how Refresh brought a pair up to date.
type Outcome string

const (
	Skipped Outcome = "skipped" // current bar already held and fresh
	Latest  Outcome = "latest"  // one FetchLatestCandle call
	History Outcome = "history" // one FetchHistory call (cold start or gap)
)

type entry struct {
	ring      *ringbuf.Ring
	fetchedAt time.Time
	stalled   bool // last fetch expected a newer bar and got none
}

// Cache maps pairs to rings. The map lock is held only to find or create a
// ring, never across a gateway call.
type Cache struct {
	cfg   Config
	store model.CandleStore
	log   *slog.Logger
	now   func() time.Time

	mu    sync.RWMutex
	pairs map[model.Key]*entry
}

// Option customises a Cache.
type Option func(*Cache)

// WithStore persists every fetched bar.
func WithStore(s model.CandleStore) Option { return func(c *Cache) { c.store = s } }

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option { return func(c *Cache) { c.log = l } }

// WithClock replaces the wall clock.
func WithClock(now func() time.Time) Option { return func(c *Cache) { c.now = now } }

// New creates an empty cache.
func New(cfg Config, opts ...Option) (*Cache, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	c := &Cache{cfg: cfg, log: slog.Default(), now: time.Now, pairs: make(map[model.Key]*entry)}
	for _, o := range opts {
		o(c)
	}
	c.log = c.log.With("component", "pricecache")
	return c, nil
}

func (c *Cache) entryFor(key model.Key) *entry {
	c.mu.RLock()
	e, ok := c.pairs[key]
	c.mu.RUnlock()
	if ok {
		return e
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if e, ok = c.pairs[key]; !ok {
		e = &entry{ring: ringbuf.New(c.cfg.Capacity)}
		c.pairs[key] = e
	}
	return e
}

// Refresh brings key up to date. A pair short of HistorySize bars, or one that
// missed more than one bar, is re-fetched with FetchHistory. Otherwise the
// newest bar is fetched, unless the cache already holds the current bar and
// fetched it less than MaxAge ago.
//
// When a fetch that expected a newer bar returned none (market closed, or
// upstream bars not aligned to the local clock) the pair is stalled and is
// not fetched again for min(MaxAge, bar length).
//
// Refresh for one key must not run concurrently with itself; distinct keys
// may be refreshed in parallel.
func (c *Cache) Refresh(ctx context.Context, gw model.MarketDataGateway, key model.Key) (Outcome, error) {
	if !key.Timeframe.Valid() {
		return "", fmt.Errorf("%w: timeframe %q", model.ErrInvalidParameters, key.Timeframe)
	}
	e := c.entryFor(key)
	now := c.now()
	barLen := key.Timeframe.Duration()
	current := now.UTC().Truncate(barLen)

	last, ok := e.ring.Last()
	n := 0
	switch {
	case ok && e.stalled && now.Sub(e.fetchedAt) < min(c.cfg.MaxAge, barLen):
		return Skipped, nil
	case !ok || e.ring.Len() < c.cfg.HistorySize:
		n = c.cfg.HistorySize
	case last.Timestamp.Before(current.Add(-barLen)):
		missed := int(current.Sub(last.Timestamp)/barLen) + 1
		n = min(missed, c.cfg.HistorySize)
	case !last.Timestamp.Before(current) && now.Sub(e.fetchedAt) < c.cfg.MaxAge:
		return Skipped, nil
	}

	if n > 0 {
		bars, err := gw.FetchHistory(ctx, key.Symbol, key.Timeframe, n)
		if err != nil {
			return "", err
		}
		c.record(ctx, key, e, now, bars)
		e.stalled = c.stalled(e, last, ok, current)
		return History, nil
	}
	bar, err := gw.FetchLatestCandle(ctx, key.Symbol, key.Timeframe)
	if err != nil {
		return "", err
	}
	c.record(ctx, key, e, now, []model.Candle{bar})
	e.stalled = c.stalled(e, last, ok, current)
	return Latest, nil
}

// stalled reports whether a fetch made while prev was behind current left
// the newest bar unchanged.
func (c *Cache) stalled(e *entry, prev model.Candle, hadPrev bool, current time.Time) bool {
	if !hadPrev || !prev.Timestamp.Before(current) {
		return false
	}
	newest, _ := e.ring.Last()
	return !newest.Timestamp.After(prev.Timestamp)
}

func (c *Cache) record(ctx context.Context, key model.Key, e *entry, at time.Time, bars []model.Candle) {
	kept := bars[:0:0]
	for _, b := range bars {
		if err := b.Validate(); err != nil {
			c.log.Warn("dropping invalid bar", "pair", key.String(), "error", err)
			continue
		}
		if e.ring.Upsert(b) != ringbuf.Ignored {
			kept = append(kept, b)
		}
	}
	e.fetchedAt = at
	if c.store != nil && len(kept) > 0 {
		if err := c.store.SaveCandles(ctx, key, kept); err != nil {
			c.log.Warn("persist candles failed", "pair", key.String(), "error", err)
		}
	}
}

// Warm preloads bars, e.g. from the candle store on startup.
func (c *Cache) Warm(key model.Key, bars []model.Candle) {
	e := c.entryFor(key)
	for _, b := range bars {
		if b.Validate() == nil {
			e.ring.Upsert(b)
		}
	}
}

// Candles returns a copy of the retained bars for key, oldest first.
func (c *Cache) Candles(key model.Key) []model.Candle {
	c.mu.RLock()
	e, ok := c.pairs[key]
	c.mu.RUnlock()
	if !ok {
		return nil
	}
	return e.ring.Snapshot()
}

// Len returns the number of bars held for key.
func (c *Cache) Len(key model.Key) int {
	c.mu.RLock()
	e, ok := c.pairs[key]
	c.mu.RUnlock()
	if !ok {
		return 0
	}
	return e.ring.Len()
}
