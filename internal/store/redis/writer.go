// Package redis mirrors published signal snapshots into Redis for external
// readers: one key per pair plus a notification on a pub/sub channel.
package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	goredis "github.com/go-redis/redis/v8"

	"trading-signalsv1/internal/marketdata/guard"
	"trading-signalsv1/internal/metrics"
	"trading-signalsv1/internal/model"
	"trading-signalsv1/internal/signalcache"
)

const (
	defaultTTL     = 30 * time.Minute
	defaultChannel = "signals"
	latestKey      = "signal:latest"
)

// Config configures the publisher.
type Config struct {
	Addr        string        `yaml:"addr"` // Redis address, e.g. "localhost:6379"
	Password    string        `yaml:"password"`
	DB          int           `yaml:"db"`
	TTL         time.Duration `yaml:"ttl"`     // per-pair key expiry
	Channel     string        `yaml:"channel"` // pub/sub channel for snapshot notifications
	MaxFailures int           `yaml:"max_failures"`
	Cooldown    time.Duration `yaml:"cooldown"`
}

func (c *Config) defaults() {
	if c.TTL == 0 {
		c.TTL = defaultTTL
	}
	if c.Channel == "" {
		c.Channel = defaultChannel
	}
	if c.MaxFailures == 0 {
		c.MaxFailures = 3
	}
	if c.Cooldown == 0 {
		c.Cooldown = 30 * time.Second
	}
}

// PairKey is the Redis key holding the entry for one pair.
func PairKey(key model.Key) string {
	return "signal:" + key.Symbol + ":" + string(key.Timeframe)
}

// Notification is the payload published on the channel.
type Notification struct {
	ID          string    `json:"id"`
	GeneratedAt time.Time `json:"generated_at"`
	Pairs       int       `json:"pairs"`
	Failed      int       `json:"failed"`
}

// Publisher writes snapshots to Redis behind its own circuit breaker, so a
// Redis outage costs one fast failure per cycle instead of a timeout.
type Publisher struct {
	client  *goredis.Client
	cfg     Config
	breaker *guard.CircuitBreaker
	metrics *metrics.Metrics
	log     *slog.Logger
}

// Option customises a Publisher.
type Option func(*Publisher)

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option { return func(p *Publisher) { p.log = l } }

// Client returns the underlying Redis client for health checks.
func (p *Publisher) Client() *goredis.Client { return p.client }

// New connects and pings the server.
func New(cfg Config, m *metrics.Metrics, opts ...Option) (*Publisher, error) {
	client := goredis.NewClient(&goredis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}

	p := NewWithClient(client, cfg, m, opts...)
	p.log.Info("connected", "addr", cfg.Addr)
	return p, nil
}

// NewWithClient wraps an existing client. m may be nil.
func NewWithClient(client *goredis.Client, cfg Config, m *metrics.Metrics, opts ...Option) *Publisher {
	cfg.defaults()
	p := &Publisher{
		client:  client,
		cfg:     cfg,
		breaker: guard.NewCircuitBreaker(cfg.MaxFailures, cfg.Cooldown),
		metrics: m,
		log:     slog.Default(),
	}
	for _, o := range opts {
		o(p)
	}
	p.log = p.log.With("component", "redis")
	var observe func(from, to model.CircuitState)
	if m != nil {
		observe = metrics.ObserveBreaker(m.RedisCircuitBreakerState, nil)
	}
	p.breaker.OnStateChange = func(from, to model.CircuitState) {
		p.log.Warn("circuit breaker state change", "from", from.String(), "to", to.String())
		if observe != nil {
			observe(from, to)
		}
	}
	return p
}

// Publish writes every entry of snap in one pipeline, deletes the keys of
// pairs that failed this cycle, then announces it.
func (p *Publisher) Publish(ctx context.Context, snap *signalcache.Snapshot) error {
	err := p.breaker.Execute(func() error {
		return p.write(ctx, snap)
	})
	if err != nil && p.metrics != nil {
		p.metrics.RedisPublishFailures.Inc()
	}
	return err
}

func (p *Publisher) write(ctx context.Context, snap *signalcache.Snapshot) error {
	pipe := p.client.Pipeline()
	for key, e := range snap.Entries {
		data, err := json.Marshal(e)
		if err != nil {
			return fmt.Errorf("marshal %s: %w", key, err)
		}
		pipe.Set(ctx, PairKey(key), data, p.cfg.TTL)
	}
	// A failed pair must not keep serving the previous cycle's entry.
	for _, key := range snap.FailedKeys() {
		pipe.Del(ctx, PairKey(key))
	}
	note, err := json.Marshal(Notification{
		ID:          snap.ID,
		GeneratedAt: snap.GeneratedAt,
		Pairs:       len(snap.Entries),
		Failed:      len(snap.Failures),
	})
	if err != nil {
		return err
	}
	pipe.Set(ctx, latestKey, snap.ID, p.cfg.TTL)
	pipe.Publish(ctx, p.cfg.Channel, note)

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis pipeline: %w", err)
	}
	return nil
}

// Run publishes every snapshot received on snaps until ctx ends.
func (p *Publisher) Run(ctx context.Context, snaps <-chan *signalcache.Snapshot) {
	for {
		select {
		case <-ctx.Done():
			return
		case snap, ok := <-snaps:
			if !ok {
				return
			}
			pubCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
			if err := p.Publish(pubCtx, snap); err != nil {
				p.log.Warn("publish snapshot failed", "snapshot", snap.ID, "error", err)
			}
			cancel()
		}
	}
}

// Entry reads the stored entry for key. Missing keys return model.ErrNotFound.
func (p *Publisher) Entry(ctx context.Context, key model.Key) (signalcache.Entry, error) {
	var e signalcache.Entry
	data, err := p.client.Get(ctx, PairKey(key)).Bytes()
	if err == goredis.Nil {
		return e, fmt.Errorf("%w: %s", model.ErrNotFound, key)
	}
	if err != nil {
		return e, fmt.Errorf("redis get %s: %w", key, err)
	}
	if err := json.Unmarshal(data, &e); err != nil {
		return e, fmt.Errorf("unmarshal %s: %w", key, err)
	}
	return e, nil
}

// LatestID returns the ID of the last snapshot written.
func (p *Publisher) LatestID(ctx context.Context) (string, error) {
	id, err := p.client.Get(ctx, latestKey).Result()
	if err == goredis.Nil {
		return "", model.ErrNotFound
	}
	return id, err
}

// BreakerState returns the publisher's circuit state.
func (p *Publisher) BreakerState() model.CircuitState {
	return p.breaker.CurrentState()
}

// Close closes the Redis connection.
func (p *Publisher) Close() error {
	return p.client.Close()
}
