package guard

import (
	"fmt"
	"sync"
	"time"

	"trading-signalsv1/internal/model"
)

// RateLimiter enforces a sliding per-minute budget and a calendar-month
// quota. Allow never blocks: it either reserves a slot or rejects.
type RateLimiter struct {
	mu         sync.Mutex
	perWindow  int
	window     time.Duration
	perMonth   int
	stamps     []time.Time // admitted calls inside the window, oldest first
	month      time.Month
	year       int
	monthCount int
	now        func() time.Time
}

// NewRateLimiter creates a limiter allowing perMinute calls in any 60s
// window and perMonth calls per calendar month (UTC). perMonth <= 0
// disables the monthly quota.
func NewRateLimiter(perMinute, perMonth int) *RateLimiter {
	return &RateLimiter{
		perWindow: perMinute,
		window:    time.Minute,
		perMonth:  perMonth,
		now:       time.Now,
	}
}

// Allow reserves one call or returns model.ErrRateLimited.
func (rl *RateLimiter) Allow() error {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now().UTC()
	rl.evict(now)
	rl.rollMonth(now)

	if len(rl.stamps) >= rl.perWindow {
		retry := rl.stamps[0].Add(rl.window).Sub(now)
		return fmt.Errorf("%w: %d calls in the last %s, retry in %s",
			model.ErrRateLimited, len(rl.stamps), rl.window, retry.Round(time.Millisecond))
	}
	if rl.perMonth > 0 && rl.monthCount >= rl.perMonth {
		return fmt.Errorf("%w: monthly quota of %d exhausted", model.ErrRateLimited, rl.perMonth)
	}

	rl.stamps = append(rl.stamps, now)
	rl.monthCount++
	return nil
}

// Usage returns calls in the current window, calls this month, and the
// start of the current window.
func (rl *RateLimiter) Usage() (window, month int, windowStart time.Time) {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now().UTC()
	rl.evict(now)
	rl.rollMonth(now)
	return len(rl.stamps), rl.monthCount, now.Add(-rl.window)
}

func (rl *RateLimiter) evict(now time.Time) {
	cutoff := now.Add(-rl.window)
	i := 0
	for i < len(rl.stamps) && !rl.stamps[i].After(cutoff) {
		i++
	}
	if i > 0 {
		rl.stamps = append(rl.stamps[:0], rl.stamps[i:]...)
	}
}

func (rl *RateLimiter) rollMonth(now time.Time) {
	if now.Year() != rl.year || now.Month() != rl.month {
		rl.year, rl.month = now.Year(), now.Month()
		rl.monthCount = 0
	}
}
