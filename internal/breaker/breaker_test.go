package breaker

import (
	"errors"
	"testing"
	"time"

	"github.com/agentmesh/conductor/internal/errs"
)

// fakeClock is a manually advanced time source.
type fakeClock struct {
	t time.Time
}

func (c *fakeClock) now() time.Time { return c.t }

func (c *fakeClock) advance(d time.Duration) { c.t = c.t.Add(d) }

func newTestBreaker() (*Breaker, *fakeClock) {
	clock := &fakeClock{t: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)}
	b := New(Config{FailureThreshold: 5, RecoveryTimeout: 60 * time.Second, SuccessThreshold: 2})
	b.SetClock(clock.now)
	return b, clock
}

func TestBreakerOpensAfterThreshold(t *testing.T) {
	b, _ := newTestBreaker()

	for i := 0; i < 4; i++ {
		b.RecordFailure()
		if b.State() != StateClosed {
			t.Fatalf("breaker opened after %d failures", i+1)
		}
	}

	b.RecordFailure()
	if b.State() != StateOpen {
		t.Fatalf("expected open after 5 consecutive failures, got %s", b.State())
	}

	if err := b.Allow(); !errors.Is(err, errs.ErrCircuitOpen) {
		t.Errorf("expected ErrCircuitOpen while open, got %v", err)
	}
}

func TestSuccessResetsFailureCount(t *testing.T) {
	b, _ := newTestBreaker()

	for i := 0; i < 4; i++ {
		b.RecordFailure()
	}
	b.RecordSuccess()

	for i := 0; i < 4; i++ {
		b.RecordFailure()
	}
	if b.State() != StateClosed {
		t.Error("non-consecutive failures should not open the breaker")
	}
}

func TestHalfOpenAfterRecoveryTimeout(t *testing.T) {
	b, clock := newTestBreaker()

	for i := 0; i < 5; i++ {
		b.RecordFailure()
	}
	clock.advance(59 * time.Second)
	if b.State() != StateOpen {
		t.Fatal("breaker should stay open before recovery timeout")
	}

	clock.advance(2 * time.Second)
	if b.State() != StateHalfOpen {
		t.Fatalf("expected half-open after recovery timeout, got %s", b.State())
	}
}

func TestHalfOpenAdmitsSingleTrial(t *testing.T) {
	b, clock := newTestBreaker()
	for i := 0; i < 5; i++ {
		b.RecordFailure()
	}
	clock.advance(61 * time.Second)

	if err := b.Allow(); err != nil {
		t.Fatalf("first trial should be admitted: %v", err)
	}
	if err := b.Allow(); !errors.Is(err, errs.ErrCircuitOpen) {
		t.Errorf("second concurrent trial should be rejected, got %v", err)
	}
}

func TestHalfOpenClosesAfterSuccesses(t *testing.T) {
	b, clock := newTestBreaker()
	for i := 0; i < 5; i++ {
		b.RecordFailure()
	}
	clock.advance(61 * time.Second)

	for i := 0; i < 2; i++ {
		if err := b.Allow(); err != nil {
			t.Fatalf("trial %d rejected: %v", i+1, err)
		}
		b.RecordSuccess()
	}

	if b.State() != StateClosed {
		t.Fatalf("expected closed after 2 trial successes, got %s", b.State())
	}
	if err := b.Allow(); err != nil {
		t.Errorf("closed breaker should admit calls: %v", err)
	}
}

func TestHalfOpenReopensOnFailure(t *testing.T) {
	b, clock := newTestBreaker()
	for i := 0; i < 5; i++ {
		b.RecordFailure()
	}
	clock.advance(61 * time.Second)

	if err := b.Allow(); err != nil {
		t.Fatalf("trial rejected: %v", err)
	}
	b.RecordFailure()

	if b.State() != StateOpen {
		t.Fatalf("expected open after trial failure, got %s", b.State())
	}

	// A fresh recovery window applies from the trial failure.
	clock.advance(61 * time.Second)
	if b.State() != StateHalfOpen {
		t.Error("breaker should probe again after another recovery timeout")
	}
}

func TestExecuteRecordsOutcomes(t *testing.T) {
	b, _ := newTestBreaker()
	boom := errors.New("boom")

	for i := 0; i < 5; i++ {
		if err := b.Execute(func() error { return boom }); !errors.Is(err, boom) {
			t.Fatalf("expected boom, got %v", err)
		}
	}

	calls := 0
	err := b.Execute(func() error { calls++; return nil })
	if !errors.Is(err, errs.ErrCircuitOpen) {
		t.Fatalf("expected ErrCircuitOpen, got %v", err)
	}
	if calls != 0 {
		t.Error("open breaker must not invoke the function")
	}
}
