// Package binance fetches spot klines from Binance.
package binance

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/adshao/go-binance/v2"
	"github.com/adshao/go-binance/v2/common"

	"trading-signalsv1/internal/model"
)

// maxLimit is the largest kline page Binance serves.
const maxLimit = 1000

// Config holds configuration for the Binance client. Klines are public, so
// the key pair may be empty.
type Config struct {
	APIKey    string
	APISecret string
	BaseURL   string // e.g. "https://testnet.binance.vision"; empty uses the library default
}

// Client implements model.MarketDataGateway over the spot klines endpoint.
type Client struct {
	api *binance.Client
}

var _ model.MarketDataGateway = (*Client)(nil)

// New creates a client.
func New(cfg Config) *Client {
	api := binance.NewClient(cfg.APIKey, cfg.APISecret)
	if cfg.BaseURL != "" {
		api.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	}
	return &Client{api: api}
}

// Symbol converts "BTC/USDT" or "btc-usdt" to "BTCUSDT".
func Symbol(s string) string {
	r := strings.NewReplacer("/", "", "-", "", "_", "", " ", "")
	return strings.ToUpper(r.Replace(s))
}

// FetchLatestCandle returns the current, possibly still forming, bar.
func (c *Client) FetchLatestCandle(ctx context.Context, symbol string, tf model.Timeframe) (model.Candle, error) {
	cs, err := c.FetchHistory(ctx, symbol, tf, 1)
	if err != nil {
		return model.Candle{}, err
	}
	return cs[len(cs)-1], nil
}

// FetchHistory returns up to n bars, oldest first. Binance interval names
// match the timeframe names one to one.
func (c *Client) FetchHistory(ctx context.Context, symbol string, tf model.Timeframe, n int) ([]model.Candle, error) {
	if !tf.Valid() {
		return nil, fmt.Errorf("%w: timeframe %q", model.ErrInvalidParameters, tf)
	}
	sym := Symbol(symbol)
	if sym == "" {
		return nil, fmt.Errorf("%w: empty symbol", model.ErrInvalidParameters)
	}
	if n <= 0 {
		return nil, fmt.Errorf("%w: limit %d", model.ErrInvalidParameters, n)
	}

	klines, err := c.api.NewKlinesService().
		Symbol(sym).
		Interval(string(tf)).
		Limit(min(n, maxLimit)).
		Do(ctx)
	if err != nil {
		return nil, classify(ctx, err)
	}
	if len(klines) == 0 {
		return nil, fmt.Errorf("%w: binance: no klines for %s", model.ErrInvalidParameters, sym)
	}

	candles := make([]model.Candle, 0, len(klines))
	for _, k := range klines {
		cd, err := candle(k)
		if err != nil {
			return nil, fmt.Errorf("%w: binance: %v", model.ErrUpstreamUnavailable, err)
		}
		candles = append(candles, cd)
	}
	return candles, nil
}

// classify maps request errors (-1100..-1199: bad symbol, interval, limit)
// to ErrInvalidParameters and everything else to ErrUpstreamUnavailable.
func classify(ctx context.Context, err error) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}
	var apiErr *common.APIError
	if errors.As(err, &apiErr) && apiErr.Code <= -1100 && apiErr.Code > -1200 {
		return fmt.Errorf("%w: binance %d: %s", model.ErrInvalidParameters, apiErr.Code, apiErr.Message)
	}
	return fmt.Errorf("%w: binance: %v", model.ErrUpstreamUnavailable, err)
}

func candle(k *binance.Kline) (model.Candle, error) {
	var (
		vals [5]float64
		err  error
	)
	for i, s := range []string{k.Open, k.High, k.Low, k.Close, k.Volume} {
		if vals[i], err = strconv.ParseFloat(s, 64); err != nil {
			return model.Candle{}, fmt.Errorf("parse kline field %d %q: %w", i, s, err)
		}
	}
	return model.Candle{
		Timestamp: time.UnixMilli(k.OpenTime).UTC(),
		Open:      vals[0],
		High:      vals[1],
		Low:       vals[2],
		Close:     vals[3],
		Volume:    vals[4],
	}, nil
}
