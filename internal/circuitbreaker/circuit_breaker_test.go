package circuitbreaker

import (
	"testing"
	"time"
)

func TestInitialStateClosed(t *testing.T) {
	cb := New(10, 3, time.Second)
	if cb.State() != StateClosed {
		t.Fatalf("expected closed, got %s", cb.State())
	}
	if !cb.Allow() {
		t.Fatal("expected Allow=true when closed")
	}
}

func TestOpensAfterFailureRateThreshold(t *testing.T) {
	cb := New(10, 3, time.Second)
	for i := 0; i < 10; i++ {
		if i%2 == 1 {
			cb.RecordFailure()
		} else {
			cb.RecordSuccess()
		}
	}
	// 5 failures / 10 requests = 50% >= default 50% threshold; the rate is
	// evaluated on the 10th call, which is a failure.
	if cb.State() != StateOpen {
		t.Fatalf("expected open at 50%% failure rate, got %s", cb.State())
	}
	if cb.Allow() {
		t.Fatal("expected Allow=false when open")
	}
}

func TestStaysClosedBelowMinRequests(t *testing.T) {
	cb := New(10, 3, time.Second)
	for i := 0; i < 5; i++ {
		cb.RecordFailure()
	}
	if cb.State() != StateClosed {
		t.Fatalf("expected closed below minRequests window, got %s", cb.State())
	}
}

func TestTransitionsToHalfOpenAfterBackoff(t *testing.T) {
	now := time.Now()
	clock := &now
	cb := New(2, 1, time.Millisecond, WithNowFunc(func() time.Time { return *clock }))
	cb.RecordFailure()
	cb.RecordFailure()
	*clock = clock.Add(5 * time.Millisecond)
	if cb.State() != StateHalfOpen {
		t.Fatalf("expected half_open after backoff elapses, got %s", cb.State())
	}
	if !cb.Allow() {
		t.Fatal("expected Allow=true when half_open")
	}
}

func TestClosesAfterEnoughSuccessesInHalfOpen(t *testing.T) {
	now := time.Now()
	clock := &now
	cb := New(2, 2, time.Millisecond, WithNowFunc(func() time.Time { return *clock }))
	cb.RecordFailure()
	cb.RecordFailure()
	*clock = clock.Add(5 * time.Millisecond)
	_ = cb.State() // trigger half-open transition
	cb.RecordSuccess()
	if cb.State() != StateHalfOpen {
		t.Fatalf("expected still half_open after 1 of 2 successes, got %s", cb.State())
	}
	cb.RecordSuccess()
	if cb.State() != StateClosed {
		t.Fatalf("expected closed after success threshold met, got %s", cb.State())
	}
}

func TestReopensAndGrowsBackoffOnFailureInHalfOpen(t *testing.T) {
	now := time.Now()
	clock := &now
	cb := New(2, 1, 10*time.Millisecond, WithNowFunc(func() time.Time { return *clock }))
	cb.RecordFailure()
	cb.RecordFailure()
	firstBackoff := cb.curBackoff
	*clock = clock.Add(50 * time.Millisecond)
	_ = cb.State() // trigger half-open transition
	cb.RecordFailure()
	if cb.State() != StateOpen {
		t.Fatalf("expected open after failure in half_open, got %s", cb.State())
	}
	if cb.curBackoff <= firstBackoff {
		t.Fatalf("expected backoff to grow after repeated failure, got %v <= %v", cb.curBackoff, firstBackoff)
	}
}

func TestSuccessDoesNotTripBelowThreshold(t *testing.T) {
	cb := New(10, 3, time.Second)
	cb.RecordFailure()
	cb.RecordFailure()
	for i := 0; i < 8; i++ {
		cb.RecordSuccess()
	}
	if cb.State() != StateClosed {
		t.Fatalf("expected closed (failure rate diluted by successes), got %s", cb.State())
	}
}
