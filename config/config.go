// Package config loads the signal engine configuration from a YAML file,
// a .env file and environment variables, in increasing precedence.
package config

import (
	"errors"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"trading-signalsv1/internal/confluence"
	"trading-signalsv1/internal/indicator"
	"trading-signalsv1/internal/logger"
	"trading-signalsv1/internal/marketdata/guard"
	"trading-signalsv1/internal/marketdata/provider"
	"trading-signalsv1/internal/model"
	"trading-signalsv1/internal/montecarlo"
	"trading-signalsv1/internal/pricecache"
	"trading-signalsv1/internal/scheduler"
	redisstore "trading-signalsv1/internal/store/redis"
)

// Config holds all application configuration.
type Config struct {
	Service    ServiceConfig      `yaml:"service"`
	Provider   provider.Config    `yaml:"provider"`
	Guard      guard.Config       `yaml:"guard"`
	Scheduler  scheduler.Config   `yaml:"scheduler"`
	PriceCache pricecache.Config  `yaml:"price_cache"`
	Indicators indicator.Params   `yaml:"indicators"`
	Confluence confluence.Weights `yaml:"confluence"`
	MonteCarlo montecarlo.Config  `yaml:"monte_carlo"`
	Redis      RedisConfig        `yaml:"redis"`
	SQLite     SQLiteConfig       `yaml:"sqlite"`
}

// ServiceConfig covers process-level settings.
type ServiceConfig struct {
	LogLevel        string        `yaml:"log_level"`
	HTTPAddr        string        `yaml:"http_addr"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
	HealthInterval  time.Duration `yaml:"health_interval"`
}

// RedisConfig enables the snapshot publisher.
type RedisConfig struct {
	Enabled           bool `yaml:"enabled"`
	redisstore.Config `yaml:",inline"`
}

// SQLiteConfig enables the warm-start candle store.
type SQLiteConfig struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"`
}

// Default returns a configuration that runs offline against the sim provider.
func Default() *Config {
	return &Config{
		Service: ServiceConfig{
			LogLevel:        "info",
			HTTPAddr:        ":8080",
			ShutdownTimeout: 5 * time.Second,
			HealthInterval:  15 * time.Second,
		},
		Provider: provider.Config{Name: provider.Sim, Timeout: 10 * time.Second},
		Guard:    guard.DefaultConfig(),
		Scheduler: scheduler.Config{
			Interval:   time.Minute,
			Workers:    4,
			Symbols:    []string{"BTC/USDT"},
			Timeframes: []model.Timeframe{model.TF15m, model.TF1h, model.TF4h, model.TF1d},
		},
		PriceCache: pricecache.DefaultConfig(),
		Indicators: indicator.DefaultParams(),
		Confluence: confluence.DefaultWeights(),
		MonteCarlo: montecarlo.DefaultConfig(),
		Redis: RedisConfig{Config: redisstore.Config{
			Addr:        "localhost:6379",
			TTL:         30 * time.Minute,
			Channel:     "signals",
			MaxFailures: 3,
			Cooldown:    30 * time.Second,
		}},
		SQLite: SQLiteConfig{Path: "data/candles.db"},
	}
}

// Load reads path (optional), then .env, then environment overrides, and
// validates the result.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config file: %w", err)
		}
	}

	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		log.Printf("[config] WARNING: .env not loaded: %v", err)
	}
	cfg.applyEnv()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// applyEnv overlays environment variables onto cfg.
func (c *Config) applyEnv() {
	c.Provider.Name = getEnv("SIGNAL_PROVIDER", c.Provider.Name)
	switch c.Provider.Name {
	case provider.TwelveData:
		c.Provider.APIKey = getEnv("TWELVE_DATA_API_KEY", c.Provider.APIKey)
	case provider.Binance:
		c.Provider.APIKey = getEnv("BINANCE_API_KEY", c.Provider.APIKey)
		c.Provider.APISecret = getEnv("BINANCE_API_SECRET", c.Provider.APISecret)
	}

	if v := os.Getenv("REDIS_ADDR"); v != "" {
		c.Redis.Addr = v
		c.Redis.Enabled = true
	}
	c.Redis.Password = getEnv("REDIS_PASSWORD", c.Redis.Password)

	if v := os.Getenv("SQLITE_PATH"); v != "" {
		c.SQLite.Path = v
		c.SQLite.Enabled = true
	}

	c.Service.HTTPAddr = getEnv("HTTP_ADDR", c.Service.HTTPAddr)
	c.Service.LogLevel = getEnv("LOG_LEVEL", c.Service.LogLevel)
	c.Scheduler.Interval = getEnvDuration("CYCLE_INTERVAL", c.Scheduler.Interval)

	if v := os.Getenv("SYMBOLS"); v != "" {
		c.Scheduler.Symbols = ParseSymbols(v)
	}
	if v := os.Getenv("TIMEFRAMES"); v != "" {
		c.Scheduler.Timeframes = ParseTimeframes(v)
	}
}

// Validate rejects configurations the service cannot start with.
func (c *Config) Validate() error {
	if _, err := logger.ParseLevel(c.Service.LogLevel); err != nil {
		return err
	}
	if c.Service.HTTPAddr == "" {
		return fmt.Errorf("%w: service.http_addr is required", model.ErrInvalidParameters)
	}
	checks := []struct {
		section string
		err     error
	}{
		{"provider", c.Provider.Validate()},
		{"guard", c.Guard.Validate()},
		{"scheduler", c.Scheduler.Validate()},
		{"price_cache", c.PriceCache.Validate()},
		{"indicators", c.Indicators.Validate()},
		{"confluence", c.Confluence.Validate()},
		{"monte_carlo", c.MonteCarlo.Validate()},
	}
	for _, chk := range checks {
		if chk.err != nil {
			return fmt.Errorf("%s: %w", chk.section, chk.err)
		}
	}
	if need := c.Indicators.MinHistory(); c.PriceCache.HistorySize < need {
		return fmt.Errorf("%w: price_cache.history_size %d below the %d bars the indicators need",
			model.ErrInvalidParameters, c.PriceCache.HistorySize, need)
	}
	if c.Redis.Enabled && c.Redis.Addr == "" {
		return fmt.Errorf("%w: redis.addr is required when redis is enabled", model.ErrInvalidParameters)
	}
	if c.SQLite.Enabled && c.SQLite.Path == "" {
		return fmt.Errorf("%w: sqlite.path is required when sqlite is enabled", model.ErrInvalidParameters)
	}
	return nil
}

// ParseSymbols splits a comma-separated symbol list.
func ParseSymbols(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// ParseTimeframes parses a comma-separated timeframe list such as
// "15m,1h,4h", skipping unknown values.
func ParseTimeframes(s string) []model.Timeframe {
	var out []model.Timeframe
	for _, p := range strings.Split(s, ",") {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		tf, err := model.ParseTimeframe(p)
		if err != nil {
			log.Printf("[config] skipping invalid timeframe: %q", p)
			continue
		}
		out = append(out, tf)
	}
	return out
}

func getEnv(key, fallback string) string {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	return v
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil || d <= 0 {
		log.Printf("[config] skipping invalid %s: %q", key, v)
		return fallback
	}
	return d
}
