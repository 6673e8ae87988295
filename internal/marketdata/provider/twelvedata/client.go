// Package twelvedata fetches candles from the Twelve Data time_series API.
package twelvedata

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"

	"trading-signalsv1/internal/model"
)

// DefaultBaseURL is the public API endpoint.
const DefaultBaseURL = "https://api.twelvedata.com"

// maxOutputSize is the largest page the API serves.
const maxOutputSize = 5000

// Config holds configuration for the Twelve Data client.
type Config struct {
	APIKey  string
	BaseURL string        // defaults to DefaultBaseURL
	Timeout time.Duration // HTTP timeout; the guard applies its own per-call timeout on top
}

// Client implements model.MarketDataGateway against Twelve Data.
type Client struct {
	http   *resty.Client
	apiKey string
}

var _ model.MarketDataGateway = (*Client)(nil)

// New creates a client.
func New(cfg Config) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 15 * time.Second
	}
	c := resty.New().
		SetBaseURL(strings.TrimRight(cfg.BaseURL, "/")).
		SetTimeout(cfg.Timeout).
		SetHeader("Accept", "application/json")
	return &Client{http: c, apiKey: cfg.APIKey}
}

var intervals = map[model.Timeframe]string{
	model.TF1m:  "1min",
	model.TF5m:  "5min",
	model.TF15m: "15min",
	model.TF30m: "30min",
	model.TF1h:  "1h",
	model.TF4h:  "4h",
	model.TF1d:  "1day",
	model.TF1w:  "1week",
	model.TF1M:  "1month",
}

// Interval maps tf to the API interval name. 12h and 3d have no equivalent.
func Interval(tf model.Timeframe) (string, error) {
	iv, ok := intervals[tf]
	if !ok {
		return "", fmt.Errorf("%w: timeframe %q not served by twelvedata", model.ErrInvalidParameters, tf)
	}
	return iv, nil
}

type timeSeriesValue struct {
	Datetime string `json:"datetime"`
	Open     string `json:"open"`
	High     string `json:"high"`
	Low      string `json:"low"`
	Close    string `json:"close"`
	Volume   string `json:"volume"`
}

type timeSeriesResponse struct {
	Status  string            `json:"status"`
	Code    int               `json:"code"`
	Message string            `json:"message"`
	Values  []timeSeriesValue `json:"values"`
}

// FetchLatestCandle returns the most recent bar.
func (c *Client) FetchLatestCandle(ctx context.Context, symbol string, tf model.Timeframe) (model.Candle, error) {
	cs, err := c.FetchHistory(ctx, symbol, tf, 1)
	if err != nil {
		return model.Candle{}, err
	}
	return cs[len(cs)-1], nil
}

// FetchHistory returns up to n bars, oldest first.
func (c *Client) FetchHistory(ctx context.Context, symbol string, tf model.Timeframe, n int) ([]model.Candle, error) {
	interval, err := Interval(tf)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(symbol) == "" {
		return nil, fmt.Errorf("%w: empty symbol", model.ErrInvalidParameters)
	}
	if n <= 0 {
		return nil, fmt.Errorf("%w: outputsize %d", model.ErrInvalidParameters, n)
	}
	n = min(n, maxOutputSize)

	resp, err := c.http.R().
		SetContext(ctx).
		SetQueryParams(map[string]string{
			"symbol":     symbol,
			"interval":   interval,
			"outputsize": strconv.Itoa(n),
			"timezone":   "UTC",
			"apikey":     c.apiKey,
		}).
		Get("/time_series")
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("%w: twelvedata: %v", model.ErrUpstreamUnavailable, err)
	}
	if err := classifyStatus(resp.StatusCode(), resp.String()); err != nil {
		return nil, err
	}

	var body timeSeriesResponse
	if err := json.Unmarshal(resp.Body(), &body); err != nil {
		return nil, fmt.Errorf("%w: twelvedata: decode: %v", model.ErrUpstreamUnavailable, err)
	}
	if body.Status == "error" {
		return nil, classifyAPIError(body.Code, body.Message)
	}
	if len(body.Values) == 0 {
		return nil, fmt.Errorf("%w: twelvedata: no values for %s", model.ErrInvalidParameters, symbol)
	}

	candles := make([]model.Candle, 0, len(body.Values))
	for _, v := range body.Values {
		cd, err := v.candle()
		if err != nil {
			return nil, fmt.Errorf("%w: twelvedata: %v", model.ErrUpstreamUnavailable, err)
		}
		candles = append(candles, cd)
	}
	// The API answers newest first.
	sort.Slice(candles, func(i, j int) bool { return candles[i].Timestamp.Before(candles[j].Timestamp) })
	return candles, nil
}

func classifyStatus(code int, body string) error {
	switch {
	case code < 400:
		return nil
	case code == http.StatusTooManyRequests || code >= 500:
		return fmt.Errorf("%w: twelvedata http %d", model.ErrUpstreamUnavailable, code)
	default:
		return fmt.Errorf("%w: twelvedata http %d: %s", model.ErrInvalidParameters, code, body)
	}
}

// classifyAPIError maps the in-body error code. The API reports most errors
// with HTTP 200 and status "error".
func classifyAPIError(code int, msg string) error {
	switch code {
	case http.StatusBadRequest, http.StatusNotFound:
		return fmt.Errorf("%w: twelvedata %d: %s", model.ErrInvalidParameters, code, msg)
	default:
		return fmt.Errorf("%w: twelvedata %d: %s", model.ErrUpstreamUnavailable, code, msg)
	}
}

func (v timeSeriesValue) candle() (model.Candle, error) {
	ts, err := time.Parse("2006-01-02 15:04:05", v.Datetime)
	if err != nil {
		ts, err = time.Parse("2006-01-02", v.Datetime)
		if err != nil {
			return model.Candle{}, fmt.Errorf("parse time %q: %w", v.Datetime, err)
		}
	}
	o, err := strconv.ParseFloat(v.Open, 64)
	if err != nil {
		return model.Candle{}, fmt.Errorf("parse open %q: %w", v.Open, err)
	}
	h, err := strconv.ParseFloat(v.High, 64)
	if err != nil {
		return model.Candle{}, fmt.Errorf("parse high %q: %w", v.High, err)
	}
	l, err := strconv.ParseFloat(v.Low, 64)
	if err != nil {
		return model.Candle{}, fmt.Errorf("parse low %q: %w", v.Low, err)
	}
	cl, err := strconv.ParseFloat(v.Close, 64)
	if err != nil {
		return model.Candle{}, fmt.Errorf("parse close %q: %w", v.Close, err)
	}
	// Forex and index series carry no volume.
	var vol float64
	if v.Volume != "" {
		if vol, err = strconv.ParseFloat(v.Volume, 64); err != nil {
			return model.Candle{}, fmt.Errorf("parse volume %q: %w", v.Volume, err)
		}
	}
	return model.Candle{Timestamp: ts.UTC(), Open: o, High: h, Low: l, Close: cl, Volume: vol}, nil
}
