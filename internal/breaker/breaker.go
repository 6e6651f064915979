// Package breaker implements a per-endpoint circuit breaker. Each registered
// agent endpoint owns one breaker; the router consults it when selecting
// endpoints and the dispatcher feeds it call outcomes.
package breaker

import (
	"sync"
	"time"

	"github.com/agentmesh/conductor/internal/errs"
)

// State is the breaker position.
type State string

const (
	// StateClosed passes calls through and counts consecutive failures.
	StateClosed State = "closed"
	// StateOpen rejects calls immediately.
	StateOpen State = "open"
	// StateHalfOpen admits a single trial call to probe recovery.
	StateHalfOpen State = "half_open"
)

// Config holds the breaker thresholds.
type Config struct {
	// FailureThreshold is the consecutive-failure count that opens the breaker.
	FailureThreshold int
	// RecoveryTimeout is how long the breaker stays open before allowing a trial.
	RecoveryTimeout time.Duration
	// SuccessThreshold is the consecutive-success count that closes a
	// half-open breaker.
	SuccessThreshold int
}

// DefaultConfig returns the standard thresholds: open after 5 consecutive
// failures, probe after 60s, close after 2 consecutive trial successes.
func DefaultConfig() Config {
	return Config{
		FailureThreshold: 5,
		RecoveryTimeout:  60 * time.Second,
		SuccessThreshold: 2,
	}
}

// Breaker is a Closed/Open/HalfOpen failure gate. It is safe for concurrent
// use. The clock is injectable for tests.
type Breaker struct {
	cfg Config
	now func() time.Time

	mu           sync.Mutex
	state        State
	failures     int
	successes    int
	lastFailure  time.Time
	trialInFlight bool
}

// New creates a closed breaker with the given config.
func New(cfg Config) *Breaker {
	if cfg.FailureThreshold <= 0 {
		cfg.FailureThreshold = 5
	}
	if cfg.RecoveryTimeout <= 0 {
		cfg.RecoveryTimeout = 60 * time.Second
	}
	if cfg.SuccessThreshold <= 0 {
		cfg.SuccessThreshold = 2
	}
	return &Breaker{cfg: cfg, state: StateClosed, now: time.Now}
}

// SetClock overrides the breaker's time source. Test hook.
func (b *Breaker) SetClock(now func() time.Time) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.now = now
}

// State returns the current state, promoting Open to HalfOpen if the
// recovery timeout has elapsed.
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.stateLocked()
}

func (b *Breaker) stateLocked() State {
	if b.state == StateOpen && b.now().Sub(b.lastFailure) >= b.cfg.RecoveryTimeout {
		b.state = StateHalfOpen
		b.successes = 0
		b.trialInFlight = false
	}
	return b.state
}

// Allow reports whether a call may proceed. While half-open, only one trial
// call is admitted at a time; the caller must report the outcome via
// RecordSuccess or RecordFailure. A rejected call fails fast with
// errs.ErrCircuitOpen.
func (b *Breaker) Allow() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.stateLocked() {
	case StateClosed:
		return nil
	case StateHalfOpen:
		if b.trialInFlight {
			return errs.ErrCircuitOpen
		}
		b.trialInFlight = true
		return nil
	default:
		return errs.ErrCircuitOpen
	}
}

// RecordSuccess feeds a successful call outcome into the breaker.
func (b *Breaker) RecordSuccess() {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.stateLocked() {
	case StateHalfOpen:
		b.trialInFlight = false
		b.successes++
		if b.successes >= b.cfg.SuccessThreshold {
			b.state = StateClosed
			b.failures = 0
			b.successes = 0
		}
	case StateClosed:
		b.failures = 0
	}
}

// RecordFailure feeds a failed call outcome into the breaker. Any failure
// while half-open reopens the breaker immediately.
func (b *Breaker) RecordFailure() {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.stateLocked() {
	case StateHalfOpen:
		b.trialInFlight = false
		b.state = StateOpen
		b.lastFailure = b.now()
	case StateClosed:
		b.failures++
		b.lastFailure = b.now()
		if b.failures >= b.cfg.FailureThreshold {
			b.state = StateOpen
		}
	default:
		b.lastFailure = b.now()
	}
}

// Execute runs fn through the breaker, recording its outcome.
func (b *Breaker) Execute(fn func() error) error {
	if err := b.Allow(); err != nil {
		return err
	}
	if err := fn(); err != nil {
		b.RecordFailure()
		return err
	}
	b.RecordSuccess()
	return nil
}
