package sqlite

import (
	"context"
	"fmt"
	"slices"
	"time"

	"trading-signalsv1/internal/model"
)

// LoadCandles returns the newest n candles for key, ascending.
func (s *Store) LoadCandles(ctx context.Context, key model.Key, n int) ([]model.Candle, error) {
	if n <= 0 {
		return nil, nil
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT ts, open, high, low, close, volume
		FROM candles
		WHERE symbol = ? AND tf = ?
		ORDER BY ts DESC
		LIMIT ?
	`, key.Symbol, string(key.Timeframe), n)
	if err != nil {
		return nil, fmt.Errorf("sqlite query candles: %w", err)
	}
	defer rows.Close()

	var candles []model.Candle
	for rows.Next() {
		var (
			c      model.Candle
			tsUnix int64
		)
		if err := rows.Scan(&tsUnix, &c.Open, &c.High, &c.Low, &c.Close, &c.Volume); err != nil {
			return nil, fmt.Errorf("sqlite scan candles: %w", err)
		}
		c.Timestamp = time.Unix(tsUnix, 0).UTC()
		candles = append(candles, c)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	slices.Reverse(candles)
	return candles, nil
}

// Pairs lists every (symbol, timeframe) with stored candles.
func (s *Store) Pairs(ctx context.Context) ([]model.Key, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT DISTINCT symbol, tf FROM candles ORDER BY symbol, tf`)
	if err != nil {
		return nil, fmt.Errorf("sqlite query pairs: %w", err)
	}
	defer rows.Close()

	var keys []model.Key
	for rows.Next() {
		var k model.Key
		var tf string
		if err := rows.Scan(&k.Symbol, &tf); err != nil {
			return nil, fmt.Errorf("sqlite scan pairs: %w", err)
		}
		k.Timeframe = model.Timeframe(tf)
		keys = append(keys, k)
	}
	return keys, rows.Err()
}
