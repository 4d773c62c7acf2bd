// Package circuitbreaker implements the circuit-breaker pattern for provider
// calls. Each provider key should have its own CircuitBreaker instance.
//
// Unlike a consecutive-failure breaker, this one trips on a failure RATE
// measured over a rolling window of the last N requests, so one error after
// a long healthy streak doesn't trip it and a provider that is failing most
// but not all of its calls still gets cut off.
//
// State transitions:
//
//	Closed   → Open      on a failure, when requests ≥ MinRequests and failureRate ≥ Threshold
//	Open     → HalfOpen  after the current backoff elapses
//	HalfOpen → Closed    when consecutive successes ≥ SuccessThreshold
//	HalfOpen → Open      on any failure; backoff doubles (capped), then jitters
package circuitbreaker

import (
	"errors"
	"math/rand"
	"sync"
	"time"
)

// State represents the circuit breaker's current state.
type State int

const (
	// StateClosed — normal operation; requests pass through.
	StateClosed State = iota
	// StateOpen — provider is considered failing; requests are rejected immediately.
	StateOpen
	// StateHalfOpen — circuit is testing recovery with a limited number of requests.
	StateHalfOpen
)

// String implements fmt.Stringer.
func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half_open"
	default:
		return "unknown"
	}
}

// ErrCircuitOpen is returned when a call is rejected because the circuit is open.
var ErrCircuitOpen = errors.New("circuit breaker open")

const (
	defaultMinRequests      = 10
	defaultFailureRate      = 0.5
	defaultSuccessThreshold = 3
	defaultBaseBackoff      = time.Second
	defaultMaxBackoff       = 30 * time.Second
	backoffMultiplier       = 2.0
	jitterFraction          = 0.10
)

// CircuitBreaker guards a single downstream provider's call stream.
type CircuitBreaker struct {
	mu sync.Mutex

	state State

	// rolling window of the last len(outcomes) calls; true = success.
	outcomes  []bool
	cursor    int
	filled    int
	successes int // successes within the window, maintained incrementally

	minRequests      int
	failureRate      float64
	successThreshold int
	successInHalf    int

	baseBackoff time.Duration
	maxBackoff  time.Duration
	curBackoff  time.Duration
	openUntil   time.Time

	nowFunc func() time.Time
}

// Option configures a CircuitBreaker at construction time.
type Option func(*CircuitBreaker)

// WithNowFunc overrides the clock, for deterministic tests.
func WithNowFunc(f func() time.Time) Option {
	return func(cb *CircuitBreaker) { cb.nowFunc = f }
}

// New creates a CircuitBreaker. windowSize is the number of recent calls the
// failure rate is computed over (0 defaults to 10, the spec's
// "minimumRequests" window). successThreshold is the number of consecutive
// half-open successes required to close (0 defaults to 3). baseBackoff is
// the first Open-state cooldown (0 defaults to 1s); it doubles on every
// HalfOpen→Open transition up to maxBackoff (0 defaults to 30s), each time
// jittered by ±10%.
func New(windowSize, successThreshold int, baseBackoff time.Duration, opts ...Option) *CircuitBreaker {
	if windowSize <= 0 {
		windowSize = defaultMinRequests
	}
	if successThreshold <= 0 {
		successThreshold = defaultSuccessThreshold
	}
	if baseBackoff <= 0 {
		baseBackoff = defaultBaseBackoff
	}
	cb := &CircuitBreaker{
		state:            StateClosed,
		outcomes:         make([]bool, windowSize),
		minRequests:      windowSize,
		failureRate:      defaultFailureRate,
		successThreshold: successThreshold,
		baseBackoff:      baseBackoff,
		maxBackoff:       defaultMaxBackoff,
		curBackoff:       baseBackoff,
		nowFunc:          time.Now,
	}
	for _, opt := range opts {
		opt(cb)
	}
	return cb
}

// State returns the current state, transitioning Open→HalfOpen if the
// backoff has elapsed.
func (cb *CircuitBreaker) State() State {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.resolveState()
}

// resolveState must be called with cb.mu held.
func (cb *CircuitBreaker) resolveState() State {
	if cb.state == StateOpen && cb.nowFunc().After(cb.openUntil) {
		cb.state = StateHalfOpen
		cb.successInHalf = 0
	}
	return cb.state
}

// Allow returns true if the request should proceed (circuit is Closed or
// HalfOpen), false if it should be rejected (circuit is Open).
func (cb *CircuitBreaker) Allow() bool {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.resolveState() != StateOpen
}

// RecordSuccess notifies the breaker that a call succeeded.
func (cb *CircuitBreaker) RecordSuccess() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.resolveState() {
	case StateHalfOpen:
		cb.successInHalf++
		if cb.successInHalf >= cb.successThreshold {
			cb.close()
		}
	case StateClosed:
		cb.record(true)
	}
}

// RecordFailure notifies the breaker that a call failed.
func (cb *CircuitBreaker) RecordFailure() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.resolveState() {
	case StateClosed:
		cb.record(false)
		if cb.filled >= cb.minRequests && cb.currentFailureRate() >= cb.failureRate {
			cb.trip()
		}
	case StateHalfOpen:
		cb.growBackoff()
		cb.trip()
	}
}

// record appends an outcome to the rolling window.
func (cb *CircuitBreaker) record(success bool) {
	if cb.filled < len(cb.outcomes) {
		cb.filled++
	} else if cb.outcomes[cb.cursor] {
		cb.successes--
	}
	cb.outcomes[cb.cursor] = success
	if success {
		cb.successes++
	}
	cb.cursor = (cb.cursor + 1) % len(cb.outcomes)
}

func (cb *CircuitBreaker) currentFailureRate() float64 {
	if cb.filled == 0 {
		return 0
	}
	failures := cb.filled - cb.successes
	return float64(failures) / float64(cb.filled)
}

func (cb *CircuitBreaker) trip() {
	cb.state = StateOpen
	cb.openUntil = cb.nowFunc().Add(jitter(cb.curBackoff))
}

func (cb *CircuitBreaker) growBackoff() {
	next := time.Duration(float64(cb.curBackoff) * backoffMultiplier)
	if next > cb.maxBackoff {
		next = cb.maxBackoff
	}
	cb.curBackoff = next
}

func (cb *CircuitBreaker) close() {
	cb.state = StateClosed
	cb.filled = 0
	cb.successes = 0
	cb.cursor = 0
	cb.curBackoff = cb.baseBackoff
}

// jitter returns d scaled by a uniform random factor in [1-jitterFraction, 1+jitterFraction].
func jitter(d time.Duration) time.Duration {
	delta := (rand.Float64()*2 - 1) * jitterFraction
	return time.Duration(float64(d) * (1 + delta))
}
