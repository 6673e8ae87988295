package guard

import (
	"errors"
	"testing"
	"time"

	"trading-signalsv1/internal/model"
)

func newLimiter(perMinute, perMonth int, clk *fakeClock) *RateLimiter {
	rl := NewRateLimiter(perMinute, perMonth)
	rl.now = clk.Now
	return rl
}

func TestRateLimiter_RejectsOverWindowBudget(t *testing.T) {
	clk := newClock()
	rl := newLimiter(3, 0, clk)

	for i := 0; i < 3; i++ {
		if err := rl.Allow(); err != nil {
			t.Fatalf("call %d: unexpected %v", i+1, err)
		}
		clk.Advance(time.Second)
	}
	if err := rl.Allow(); !errors.Is(err, model.ErrRateLimited) {
		t.Fatalf("4th call: expected ErrRateLimited, got %v", err)
	}

	window, month, _ := rl.Usage()
	if window != 3 || month != 3 {
		t.Errorf("rejected call must not be counted: window=%d month=%d", window, month)
	}
}

func TestRateLimiter_SlidingWindow(t *testing.T) {
	clk := newClock()
	rl := newLimiter(2, 0, clk)

	rl.Allow()
	clk.Advance(30 * time.Second)
	rl.Allow()

	// t=59s: both calls still inside the window.
	clk.Advance(29 * time.Second)
	if err := rl.Allow(); err == nil {
		t.Fatal("expected rejection at t=59s")
	}

	// t=61s: the first call slid out.
	clk.Advance(2 * time.Second)
	if err := rl.Allow(); err != nil {
		t.Fatalf("expected slot at t=61s, got %v", err)
	}
	if w, _, _ := rl.Usage(); w != 2 {
		t.Errorf("expected 2 in window, got %d", w)
	}
}

func TestRateLimiter_MonthlyQuota(t *testing.T) {
	clk := &fakeClock{t: time.Date(2024, 1, 31, 23, 0, 0, 0, time.UTC)}
	rl := newLimiter(100, 2, clk)

	rl.Allow()
	rl.Allow()
	if err := rl.Allow(); !errors.Is(err, model.ErrRateLimited) {
		t.Fatalf("expected monthly quota rejection, got %v", err)
	}

	// Calendar rollover resets the quota.
	clk.Advance(2 * time.Hour)
	if err := rl.Allow(); err != nil {
		t.Fatalf("expected fresh quota in February, got %v", err)
	}
	if _, m, _ := rl.Usage(); m != 1 {
		t.Errorf("expected 1 call this month, got %d", m)
	}
}
