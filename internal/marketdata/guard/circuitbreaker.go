package guard

import (
	"sync"
	"time"

	"trading-signalsv1/internal/model"
)

// CircuitBreaker implements the circuit breaker pattern around an upstream.
// After maxFailures consecutive failures the breaker opens and rejects calls
// for cooldown. The first call after the cooldown becomes the single
// half-open probe; concurrent callers keep failing fast until it reports.
// If the probe succeeds the breaker closes, if it fails it reopens.
type CircuitBreaker struct {
	mu          sync.Mutex
	state       model.CircuitState
	failures    int
	maxFailures int
	cooldown    time.Duration
	openedAt    time.Time
	probing     bool
	now         func() time.Time

	// OnStateChange is called on transitions, under the breaker lock.
	// It must not call back into the breaker.
	OnStateChange func(from, to model.CircuitState)
}

// NewCircuitBreaker creates a closed breaker.
// maxFailures: consecutive failures before opening (e.g., 5)
// cooldown: time to stay open before the half-open probe (e.g., 30s)
func NewCircuitBreaker(maxFailures int, cooldown time.Duration) *CircuitBreaker {
	return &CircuitBreaker{
		maxFailures: maxFailures,
		cooldown:    cooldown,
		state:       model.CircuitClosed,
		now:         time.Now,
	}
}

// Ticket is an admitted call. Exactly one of Success, Failure or Release
// must be called on it.
type Ticket struct {
	cb    *CircuitBreaker
	probe bool
	done  bool
}

// Admit reserves a call or returns model.ErrCircuitOpen.
func (cb *CircuitBreaker) Admit() (*Ticket, error) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.state {
	case model.CircuitOpen:
		if cb.now().Sub(cb.openedAt) < cb.cooldown {
			return nil, model.ErrCircuitOpen
		}
		cb.transition(model.CircuitHalfOpen)
		cb.probing = true
		return &Ticket{cb: cb, probe: true}, nil

	case model.CircuitHalfOpen:
		if cb.probing {
			return nil, model.ErrCircuitOpen
		}
		cb.probing = true
		return &Ticket{cb: cb, probe: true}, nil
	}
	return &Ticket{cb: cb}, nil
}

// Success records a successful call.
func (t *Ticket) Success() {
	if t.finish() {
		return
	}
	cb := t.cb
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if t.probe {
		cb.probing = false
		cb.transition(model.CircuitClosed)
	}
	cb.failures = 0
}

// Failure records a failed call.
func (t *Ticket) Failure() {
	if t.finish() {
		return
	}
	cb := t.cb
	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.failures++
	if t.probe {
		cb.probing = false
		cb.trip()
		return
	}
	if cb.state == model.CircuitClosed && cb.failures >= cb.maxFailures {
		cb.trip()
	}
}

// Release gives the reservation back without an outcome, e.g. when the call
// was never made or the caller cancelled it.
func (t *Ticket) Release() {
	if t.finish() {
		return
	}
	if t.probe {
		t.cb.mu.Lock()
		t.cb.probing = false
		t.cb.mu.Unlock()
	}
}

func (t *Ticket) finish() (already bool) {
	already = t.done
	t.done = true
	return already
}

// Execute runs fn through the breaker; any error counts as a failure.
func (cb *CircuitBreaker) Execute(fn func() error) error {
	t, err := cb.Admit()
	if err != nil {
		return err
	}
	if err := fn(); err != nil {
		t.Failure()
		return err
	}
	t.Success()
	return nil
}

// CurrentState returns the current circuit breaker state.
func (cb *CircuitBreaker) CurrentState() model.CircuitState {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state
}

// Snapshot returns state, consecutive failures and when the breaker last opened.
func (cb *CircuitBreaker) Snapshot() (model.CircuitState, int, time.Time) {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state, cb.failures, cb.openedAt
}

func (cb *CircuitBreaker) trip() {
	cb.openedAt = cb.now()
	cb.transition(model.CircuitOpen)
}

func (cb *CircuitBreaker) transition(to model.CircuitState) {
	from := cb.state
	cb.state = to
	if to == model.CircuitClosed {
		cb.failures = 0
	}
	if from != to && cb.OnStateChange != nil {
		cb.OnStateChange(from, to)
	}
}
