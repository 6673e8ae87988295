// Package provider selects the upstream market-data source by name.
package provider

import (
	"fmt"
	"time"

	"trading-signalsv1/internal/marketdata/provider/binance"
	"trading-signalsv1/internal/marketdata/provider/sim"
	"trading-signalsv1/internal/marketdata/provider/twelvedata"
	"trading-signalsv1/internal/model"
)

// Names of the supported providers.
const (
	TwelveData = "twelvedata"
	Binance    = "binance"
	Sim        = "sim"
)

// Config selects and configures one provider.
type Config struct {
	Name      string        `yaml:"name"`
	APIKey    string        `yaml:"api_key"`
	APISecret string        `yaml:"api_secret"`
	BaseURL   string        `yaml:"base_url"`
	Timeout   time.Duration `yaml:"timeout"`
	Seed      int64         `yaml:"seed"` // sim only
}

// Validate checks the provider name and required credentials.
func (c Config) Validate() error {
	switch c.Name {
	case TwelveData:
		if c.APIKey == "" {
			return fmt.Errorf("%w: twelvedata requires an api key", model.ErrInvalidParameters)
		}
	case Binance, Sim:
	default:
		return fmt.Errorf("%w: unknown provider %q", model.ErrInvalidParameters, c.Name)
	}
	return nil
}

// New builds the configured provider.
func New(cfg Config) (model.MarketDataGateway, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	switch cfg.Name {
	case TwelveData:
		return twelvedata.New(twelvedata.Config{APIKey: cfg.APIKey, BaseURL: cfg.BaseURL, Timeout: cfg.Timeout}), nil
	case Binance:
		return binance.New(binance.Config{APIKey: cfg.APIKey, APISecret: cfg.APISecret, BaseURL: cfg.BaseURL}), nil
	default:
		return sim.New(sim.Config{Seed: cfg.Seed}), nil
	}
}
