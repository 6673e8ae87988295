package model

import (
	"fmt"
	"strings"
	"time"
)

// Timeframe is one of the fixed candle intervals the engine tracks.
type Timeframe string

const (
	TF1m  Timeframe = "1m"
	TF5m  Timeframe = "5m"
	TF15m Timeframe = "15m"
	TF30m Timeframe = "30m"
	TF1h  Timeframe = "1h"
	TF4h  Timeframe = "4h"
	TF12h Timeframe = "12h"
	TF1d  Timeframe = "1d"
	TF3d  Timeframe = "3d"
	TF1w  Timeframe = "1w"
	TF1M  Timeframe = "1M"
)

// allTimeframes is ordered shortest first; Rank relies on this order.
var allTimeframes = []Timeframe{TF1m, TF5m, TF15m, TF30m, TF1h, TF4h, TF12h, TF1d, TF3d, TF1w, TF1M}

var tfDurations = map[Timeframe]time.Duration{
	TF1m:  time.Minute,
	TF5m:  5 * time.Minute,
	TF15m: 15 * time.Minute,
	TF30m: 30 * time.Minute,
	TF1h:  time.Hour,
	TF4h:  4 * time.Hour,
	TF12h: 12 * time.Hour,
	TF1d:  24 * time.Hour,
	TF3d:  72 * time.Hour,
	TF1w:  7 * 24 * time.Hour,
	TF1M:  30 * 24 * time.Hour, // calendar months approximated as 30 days
}

// AllTimeframes returns every supported timeframe, shortest first.
func AllTimeframes() []Timeframe {
	out := make([]Timeframe, len(allTimeframes))
	copy(out, allTimeframes)
	return out
}

// ParseTimeframe validates s against the enumerated set.
// "1M" (month) and "1m" (minute) are distinguished by case; everything
// else is matched case-insensitively.
func ParseTimeframe(s string) (Timeframe, error) {
	s = strings.TrimSpace(s)
	if s == "1M" {
		return TF1M, nil
	}
	tf := Timeframe(strings.ToLower(s))
	if _, ok := tfDurations[tf]; ok {
		return tf, nil
	}
	return "", fmt.Errorf("%w: unknown timeframe %q", ErrInvalidParameters, s)
}

// Valid reports whether tf is one of the enumerated timeframes.
func (tf Timeframe) Valid() bool {
	_, ok := tfDurations[tf]
	return ok
}

// Duration returns the bar length. Zero for unknown timeframes.
func (tf Timeframe) Duration() time.Duration {
	return tfDurations[tf]
}

// Rank returns the position of tf in the shortest-first ordering, or -1.
func (tf Timeframe) Rank() int {
	for i, t := range allTimeframes {
		if t == tf {
			return i
		}
	}
	return -1
}

// BarsPerYear is the number of bars of tf in a 365-day year.
func (tf Timeframe) BarsPerYear() float64 {
	d := tf.Duration()
	if d == 0 {
		return 0
	}
	return float64(365*24*time.Hour) / float64(d)
}
