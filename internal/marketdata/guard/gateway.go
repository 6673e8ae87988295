// Package guard protects the market-data provider behind a rate limiter and
// a circuit breaker.
//
// Every call goes through breaker admission, then limiter admission, then
// the provider with a per-call timeout. Rejected calls never reach the
// network. The Gateway owns both guards; nothing else mutates them.
package guard

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jpillora/backoff"

	"trading-signalsv1/internal/metrics"
	"trading-signalsv1/internal/model"
)

// Config bounds how hard the provider may be called.
type Config struct {
	RequestsPerMinute int           `yaml:"requests_per_minute"`
	RequestsPerMonth  int           `yaml:"requests_per_month"` // 0 = unlimited
	MaxFailures       int           `yaml:"max_failures"`
	Cooldown          time.Duration `yaml:"cooldown"`
	CallTimeout       time.Duration `yaml:"call_timeout"`
	Retries           int           `yaml:"retries"`
	BackoffMin        time.Duration `yaml:"backoff_min"`
	BackoffMax        time.Duration `yaml:"backoff_max"`
}

// DefaultConfig matches a free Twelve Data plan: 8 calls/min, 800/day.
func DefaultConfig() Config {
	return Config{
		RequestsPerMinute: 8,
		RequestsPerMonth:  24000,
		MaxFailures:       5,
		Cooldown:          60 * time.Second,
		CallTimeout:       10 * time.Second,
		Retries:           2,
		BackoffMin:        500 * time.Millisecond,
		BackoffMax:        5 * time.Second,
	}
}

// Validate checks the limits.
func (c Config) Validate() error {
	switch {
	case c.RequestsPerMinute <= 0:
		return fmt.Errorf("%w: requests_per_minute must be positive", model.ErrInvalidParameters)
	case c.RequestsPerMonth < 0:
		return fmt.Errorf("%w: requests_per_month must not be negative", model.ErrInvalidParameters)
	case c.MaxFailures <= 0:
		return fmt.Errorf("%w: max_failures must be positive", model.ErrInvalidParameters)
	case c.Cooldown <= 0:
		return fmt.Errorf("%w: cooldown must be positive", model.ErrInvalidParameters)
	case c.CallTimeout <= 0:
		return fmt.Errorf("%w: call_timeout must be positive", model.ErrInvalidParameters)
	case c.Retries < 0:
		return fmt.Errorf("%w: retries must not be negative", model.ErrInvalidParameters)
	case c.BackoffMax < c.BackoffMin:
		return fmt.Errorf("%w: backoff_max below backoff_min", model.ErrInvalidParameters)
	}
	return nil
}

// Gateway implements model.MarketDataGateway over a guarded upstream.
type Gateway struct {
	upstream model.MarketDataGateway
	cfg      Config
	limiter  *RateLimiter
	breaker  *CircuitBreaker
	metrics  *metrics.Metrics
	log      *slog.Logger
	sleep    func(ctx context.Context, d time.Duration) error
}

// Option customises a Gateway.
type Option func(*Gateway)

// WithMetrics records call outcomes on m.
func WithMetrics(m *metrics.Metrics) Option { return func(g *Gateway) { g.metrics = m } }

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option { return func(g *Gateway) { g.log = l } }

// WithClock replaces the wall clock used by the limiter and breaker.
func WithClock(now func() time.Time) Option {
	return func(g *Gateway) {
		g.limiter.now = now
		g.breaker.now = now
	}
}

// WithSleep replaces the retry delay, e.g. to skip waiting in tests.
func WithSleep(sleep func(ctx context.Context, d time.Duration) error) Option {
	return func(g *Gateway) { g.sleep = sleep }
}

// NewGateway wraps upstream.
func NewGateway(upstream model.MarketDataGateway, cfg Config, opts ...Option) (*Gateway, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	g := &Gateway{
		upstream: upstream,
		cfg:      cfg,
		limiter:  NewRateLimiter(cfg.RequestsPerMinute, cfg.RequestsPerMonth),
		breaker:  NewCircuitBreaker(cfg.MaxFailures, cfg.Cooldown),
		log:      slog.Default(),
		sleep:    sleepCtx,
	}
	for _, o := range opts {
		o(g)
	}
	g.log = g.log.With("component", "gateway")

	var observe func(from, to model.CircuitState)
	if g.metrics != nil {
		observe = metrics.ObserveBreaker(g.metrics.BreakerState, g.metrics.BreakerTrips)
	}
	g.breaker.OnStateChange = func(from, to model.CircuitState) {
		g.log.Warn("circuit breaker transition", "from", from.String(), "to", to.String())
		if observe != nil {
			observe(from, to)
		}
	}
	return g, nil
}

// FetchLatestCandle returns the current bar for symbol on tf.
func (g *Gateway) FetchLatestCandle(ctx context.Context, symbol string, tf model.Timeframe) (model.Candle, error) {
	var c model.Candle
	err := g.call(ctx, "latest", func(ctx context.Context) error {
		var err error
		c, err = g.upstream.FetchLatestCandle(ctx, symbol, tf)
		return err
	})
	if err != nil {
		return model.Candle{}, fmt.Errorf("latest %s@%s: %w", symbol, tf, err)
	}
	return c, nil
}

// FetchHistory returns up to n bars, oldest first.
func (g *Gateway) FetchHistory(ctx context.Context, symbol string, tf model.Timeframe, n int) ([]model.Candle, error) {
	var cs []model.Candle
	err := g.call(ctx, "history", func(ctx context.Context) error {
		var err error
		cs, err = g.upstream.FetchHistory(ctx, symbol, tf, n)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("history %s@%s: %w", symbol, tf, err)
	}
	return cs, nil
}

// Status reads the limiter and breaker now, so an idle window reports the
// calls that have since aged out.
func (g *Gateway) Status() model.RateLimiterStatus {
	window, month, start := g.limiter.Usage()
	state, failures, openedAt := g.breaker.Snapshot()
	return model.RateLimiterStatus{
		RequestsThisWindow:  window,
		RequestsThisMonth:   month,
		WindowStart:         start,
		ConsecutiveFailures: failures,
		CircuitState:        state,
		OpenedAt:            openedAt,
	}
}

// call retries upstream failures with backoff. Every attempt is admitted
// separately, so retries spend quota and respect the breaker.
func (g *Gateway) call(ctx context.Context, op string, fn func(context.Context) error) error {
	b := &backoff.Backoff{Min: g.cfg.BackoffMin, Max: g.cfg.BackoffMax, Factor: 2, Jitter: true}
	for attempt := 0; ; attempt++ {
		err := g.once(ctx, op, fn)
		if err == nil || !errors.Is(err, model.ErrUpstreamUnavailable) || attempt >= g.cfg.Retries {
			return err
		}
		if g.metrics != nil {
			g.metrics.GatewayRetries.Inc()
		}
		d := b.Duration()
		g.log.Debug("retrying upstream call", "op", op, "attempt", attempt+1, "delay", d, "error", err)
		if err := g.sleep(ctx, d); err != nil {
			return err
		}
	}
}

func (g *Gateway) once(ctx context.Context, op string, fn func(context.Context) error) (err error) {
	outcome := "ok"
	defer func() { g.observe(op, outcome) }()

	ticket, err := g.breaker.Admit()
	if err != nil {
		outcome = "circuit_open"
		return err
	}
	if err := g.limiter.Allow(); err != nil {
		ticket.Release()
		outcome = "rate_limited"
		if g.metrics != nil {
			g.metrics.RateLimited.Inc()
		}
		return err
	}

	callCtx, cancel := context.WithTimeout(ctx, g.cfg.CallTimeout)
	err = fn(callCtx)
	timedOut := errors.Is(callCtx.Err(), context.DeadlineExceeded)
	cancel()

	switch {
	case err == nil:
		ticket.Success()
		return nil
	case ctx.Err() != nil:
		ticket.Release()
		outcome = "cancelled"
		return ctx.Err()
	case timedOut || errors.Is(err, context.DeadlineExceeded):
		ticket.Failure()
		outcome = "timeout"
		return fmt.Errorf("%w: timed out after %s", model.ErrUpstreamUnavailable, g.cfg.CallTimeout)
	case errors.Is(err, model.ErrInvalidParameters):
		ticket.Release()
		outcome = "invalid"
		return err
	default:
		ticket.Failure()
		outcome = "upstream_error"
		if !errors.Is(err, model.ErrUpstreamUnavailable) {
			err = fmt.Errorf("%w: %v", model.ErrUpstreamUnavailable, err)
		}
		return err
	}
}

func (g *Gateway) observe(op, outcome string) {
	if g.metrics != nil {
		g.metrics.GatewayRequests.WithLabelValues(op, outcome).Inc()
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
