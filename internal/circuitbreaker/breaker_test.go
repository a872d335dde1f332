package circuitbreaker

import (
	"testing"
	"time"
)

func TestBreaker_StartsClosed(t *testing.T) {
	b := New("oracle", 3, time.Minute)
	if b.State() != StateClosed {
		t.Errorf("expected closed, got %s", b.State())
	}
	if !b.Allow() {
		t.Error("closed breaker must allow requests")
	}
}

func TestBreaker_TripsAtThreshold(t *testing.T) {
	b := New("oracle", 3, time.Minute)

	b.RecordFailure()
	b.RecordFailure()
	if b.State() != StateClosed {
		t.Fatalf("tripped below threshold: %s", b.State())
	}

	b.RecordFailure()
	if b.State() != StateOpen {
		t.Fatalf("expected open after 3 failures, got %s", b.State())
	}
	if b.Allow() {
		t.Error("open breaker must reject requests")
	}
}

func TestBreaker_SuccessResetsFailures(t *testing.T) {
	b := New("oracle", 3, time.Minute)

	b.RecordFailure()
	b.RecordFailure()
	b.RecordSuccess()
	b.RecordFailure()
	b.RecordFailure()

	if b.State() != StateClosed {
		t.Errorf("non-consecutive failures tripped the breaker: %s", b.State())
	}
}

func TestBreaker_HalfOpenProbe(t *testing.T) {
	b := New("oracle", 1, 10*time.Millisecond)

	b.RecordFailure()
	if b.State() != StateOpen {
		t.Fatalf("expected open, got %s", b.State())
	}

	time.Sleep(15 * time.Millisecond)

	if !b.Allow() {
		t.Fatal("expected probe to be admitted after openDuration")
	}
	if b.State() != StateHalfOpen {
		t.Fatalf("expected half_open, got %s", b.State())
	}
	// Only one probe at a time.
	if b.Allow() {
		t.Error("second request admitted while probing")
	}
}

func TestBreaker_ProbeSuccessCloses(t *testing.T) {
	b := New("oracle", 1, 10*time.Millisecond)

	b.RecordFailure()
	time.Sleep(15 * time.Millisecond)
	b.Allow() // move to half-open
	b.RecordSuccess()

	if b.State() != StateClosed {
		t.Errorf("expected closed after successful probe, got %s", b.State())
	}
	if !b.Allow() {
		t.Error("closed breaker must allow requests")
	}
}

func TestBreaker_ProbeFailureReopens(t *testing.T) {
	b := New("oracle", 1, 10*time.Millisecond)

	b.RecordFailure()
	time.Sleep(15 * time.Millisecond)
	b.Allow() // move to half-open
	b.RecordFailure()

	if b.State() != StateOpen {
		t.Errorf("expected open after failed probe, got %s", b.State())
	}
	if b.Allow() {
		t.Error("re-opened breaker must reject requests")
	}
}

func TestBreaker_DefaultsApplied(t *testing.T) {
	b := New("oracle", 0, 0)
	if b.threshold != 5 {
		t.Errorf("expected default threshold 5, got %d", b.threshold)
	}
	if b.openDuration != 30*time.Second {
		t.Errorf("expected default open duration 30s, got %s", b.openDuration)
	}
}
