package resilience

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/DecideWAI/interviewlm-cs-sub002/internal/platform/metrics"
)

// ErrCircuitOpen is the fast-fail error returned while a breaker is Open.
// The caller may retry after a delay, but the breaker itself never retries.
var ErrCircuitOpen = errors.New("circuit breaker is open")

// BreakerState is one of the breaker's three explicit states.
type BreakerState string

const (
	StateClosed   BreakerState = "closed"
	StateOpen     BreakerState = "open"
	StateHalfOpen BreakerState = "half-open"
)

// BreakerSettings parameterizes a circuit breaker. Zero values fall back to
// the defaults noted on each field.
type BreakerSettings struct {
	// FailureThreshold is the number of failures within RollingWindow that
	// flips Closed to Open. Defaults to 5.
	FailureThreshold int

	// SuccessThreshold is the number of consecutive HalfOpen successes
	// required to close. Defaults to 2.
	SuccessThreshold int

	// Timeout is the delay before an Open breaker allows a HalfOpen trial.
	// Defaults to 30s.
	Timeout time.Duration

	// RollingWindow bounds how far back failures count toward the
	// threshold. Defaults to 60s.
	RollingWindow time.Duration
}

func (s BreakerSettings) withDefaults() BreakerSettings {
	if s.FailureThreshold <= 0 {
		s.FailureThreshold = 5
	}
	if s.SuccessThreshold <= 0 {
		s.SuccessThreshold = 2
	}
	if s.Timeout <= 0 {
		s.Timeout = 30 * time.Second
	}
	if s.RollingWindow <= 0 {
		s.RollingWindow = time.Minute
	}
	return s
}

// BreakerSnapshot is a point-in-time observability view of a breaker.
type BreakerSnapshot struct {
	Name        string        `json:"name"`
	State       BreakerState  `json:"state"`
	Failures    int           `json:"failures"`
	TimeToRetry time.Duration `json:"time_to_retry"`
}

// CircuitBreaker protects one flaky external dependency with a three-state
// machine. In Closed it runs the call and records outcomes; in Open it
// fast-fails without invoking the protected function until Timeout elapses,
// then allows a single HalfOpen trial; HalfOpen accumulates successes toward
// closing and reopens immediately on any failure.
type CircuitBreaker struct {
	name     string
	settings BreakerSettings

	mu          sync.Mutex
	state       BreakerState
	failures    []time.Time
	successes   int
	nextAttempt time.Time
	// trialInFlight serializes HalfOpen trials: while one probe call is
	// running, concurrent callers fast-fail as if the breaker were Open.
	trialInFlight bool

	// now is swappable for deterministic state-machine tests.
	now func() time.Time
}

// NewCircuitBreaker creates a named breaker in the Closed state.
func NewCircuitBreaker(name string, settings BreakerSettings) *CircuitBreaker {
	return &CircuitBreaker{
		name:     name,
		settings: settings.withDefaults(),
		state:    StateClosed,
		now:      time.Now,
	}
}

// Execute runs fn under the breaker's state machine.
func (cb *CircuitBreaker) Execute(ctx context.Context, fn func(ctx context.Context) error) error {
	if err := cb.beforeCall(); err != nil {
		return err
	}

	err := fn(ctx)
	cb.afterCall(err)
	return err
}

// State returns the breaker's current state, applying any due Open→HalfOpen
// transition first.
func (cb *CircuitBreaker) State() BreakerState {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.maybeHalfOpen()
	return cb.state
}

// Snapshot returns the breaker's observable metrics: state, live failure
// count within the rolling window, and time until the next Open trial.
func (cb *CircuitBreaker) Snapshot() BreakerSnapshot {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.maybeHalfOpen()
	cb.pruneFailures()

	var ttr time.Duration
	if cb.state == StateOpen {
		if remaining := cb.nextAttempt.Sub(cb.now()); remaining > 0 {
			ttr = remaining
		}
	}

	return BreakerSnapshot{
		Name:        cb.name,
		State:       cb.state,
		Failures:    len(cb.failures),
		TimeToRetry: ttr,
	}
}

func (cb *CircuitBreaker) beforeCall() error {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.maybeHalfOpen()
	if cb.state == StateOpen {
		return fmt.Errorf("%w: %s", ErrCircuitOpen, cb.name)
	}
	if cb.state == StateHalfOpen {
		if cb.trialInFlight {
			return fmt.Errorf("%w: %s (trial in flight)", ErrCircuitOpen, cb.name)
		}
		cb.trialInFlight = true
	}
	return nil
}

func (cb *CircuitBreaker) afterCall(err error) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.trialInFlight = false
	if err != nil {
		cb.recordFailure()
		return
	}
	cb.recordSuccess()
}

func (cb *CircuitBreaker) recordFailure() {
	now := cb.now()

	switch cb.state {
	case StateHalfOpen:
		// Any HalfOpen failure reopens immediately and extends the next
		// attempt window.
		cb.trip(now)
	case StateClosed:
		cb.failures = append(cb.failures, now)
		cb.pruneFailures()
		if len(cb.failures) >= cb.settings.FailureThreshold {
			cb.trip(now)
		}
	}
}

func (cb *CircuitBreaker) recordSuccess() {
	switch cb.state {
	case StateHalfOpen:
		cb.successes++
		if cb.successes >= cb.settings.SuccessThreshold {
			// Close and clear failure history.
			cb.state = StateClosed
			cb.failures = nil
			cb.successes = 0
			cb.publishState()
		}
	case StateClosed:
		// Successes do not erase windowed failures; the rolling window does.
	}
}

func (cb *CircuitBreaker) trip(now time.Time) {
	cb.state = StateOpen
	cb.successes = 0
	cb.nextAttempt = now.Add(cb.settings.Timeout)
	cb.publishState()
}

// publishState mirrors the current state onto the breaker gauge. Caller must
// hold cb.mu.
func (cb *CircuitBreaker) publishState() {
	var v float64
	switch cb.state {
	case StateHalfOpen:
		v = 1
	case StateOpen:
		v = 2
	}
	metrics.BreakerState.WithLabelValues(cb.name).Set(v)
}

// maybeHalfOpen applies the Open→HalfOpen transition once Timeout has
// elapsed. Caller must hold cb.mu.
func (cb *CircuitBreaker) maybeHalfOpen() {
	if cb.state == StateOpen && !cb.now().Before(cb.nextAttempt) {
		cb.state = StateHalfOpen
		cb.successes = 0
		cb.publishState()
	}
}

// pruneFailures drops failure timestamps outside the rolling window so
// sparse historical failures never trip the breaker. Caller must hold cb.mu.
func (cb *CircuitBreaker) pruneFailures() {
	cutoff := cb.now().Add(-cb.settings.RollingWindow)
	kept := cb.failures[:0]
	for _, t := range cb.failures {
		if t.After(cutoff) {
			kept = append(kept, t)
		}
	}
	cb.failures = kept
}
