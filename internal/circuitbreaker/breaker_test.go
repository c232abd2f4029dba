package circuitbreaker

import (
	"testing"
	"time"
)

func newTestBreaker(threshold int, cooldown time.Duration, now *time.Time) *Breaker {
	b := New(WithThreshold(threshold), WithCooldown(cooldown))
	b.nowFunc = func() time.Time { return *now }
	return b
}

func TestClosedAllows(t *testing.T) {
	b := New()
	if !b.Allow() {
		t.Fatal("closed breaker should allow writes")
	}
	if b.CurrentState() != Closed {
		t.Fatalf("expected Closed, got %s", b.CurrentState())
	}
}

func TestTripsAtThreshold(t *testing.T) {
	b := New(WithThreshold(3))

	b.RecordFailure()
	b.RecordFailure()
	if b.CurrentState() != Closed {
		t.Fatalf("expected Closed after 2 failures, got %s", b.CurrentState())
	}
	if !b.Allow() {
		t.Fatal("should still allow after 2 failures")
	}

	b.RecordFailure()
	if b.CurrentState() != Open {
		t.Fatalf("expected Open after 3 failures, got %s", b.CurrentState())
	}
	if b.Allow() {
		t.Fatal("open breaker should shed writes")
	}
}

func TestCooldownOpensProbe(t *testing.T) {
	now := time.Now()
	b := newTestBreaker(1, 10*time.Second, &now)

	b.RecordFailure()
	if b.CurrentState() != Open {
		t.Fatalf("expected Open, got %s", b.CurrentState())
	}

	now = now.Add(11 * time.Second)
	if !b.Allow() {
		t.Fatal("should allow one probe after cooldown")
	}
	if b.CurrentState() != HalfOpen {
		t.Fatalf("expected HalfOpen, got %s", b.CurrentState())
	}

	// Only one probe is in flight at a time.
	if b.Allow() {
		t.Fatal("should reject second write while probing")
	}
}

func TestProbeSuccessCloses(t *testing.T) {
	now := time.Now()
	b := newTestBreaker(1, 5*time.Second, &now)

	b.RecordFailure()
	now = now.Add(6 * time.Second)
	if !b.Allow() {
		t.Fatal("should allow probe")
	}

	b.RecordSuccess()
	if b.CurrentState() != Closed {
		t.Fatalf("expected Closed after probe success, got %s", b.CurrentState())
	}
	if !b.Allow() {
		t.Fatal("closed breaker should allow writes")
	}
}

func TestProbeFailureReopens(t *testing.T) {
	now := time.Now()
	b := newTestBreaker(1, 5*time.Second, &now)

	b.RecordFailure()
	now = now.Add(6 * time.Second)
	b.Allow() // transitions to HalfOpen

	b.RecordFailure()
	if b.CurrentState() != Open {
		t.Fatalf("expected Open after probe failure, got %s", b.CurrentState())
	}
	if b.Allow() {
		t.Fatal("should shed immediately after reopening")
	}
}

func TestSuccessResetsCounter(t *testing.T) {
	b := New(WithThreshold(3))

	b.RecordFailure()
	b.RecordFailure()
	b.RecordSuccess()

	b.RecordFailure()
	b.RecordFailure()
	if b.CurrentState() != Closed {
		t.Fatalf("expected Closed, got %s", b.CurrentState())
	}
	b.RecordFailure()
	if b.CurrentState() != Open {
		t.Fatalf("expected Open after 3 consecutive failures, got %s", b.CurrentState())
	}
}

func TestStateChangeCallback(t *testing.T) {
	var transitions []struct{ from, to State }
	now := time.Now()
	b := New(
		WithThreshold(1),
		WithCooldown(5*time.Second),
		WithOnStateChange(func(from, to State) {
			transitions = append(transitions, struct{ from, to State }{from, to})
		}),
	)
	b.nowFunc = func() time.Time { return now }

	b.RecordFailure()
	now = now.Add(6 * time.Second)
	b.Allow()
	b.RecordSuccess()

	want := []struct{ from, to State }{
		{Closed, Open},
		{Open, HalfOpen},
		{HalfOpen, Closed},
	}
	if len(transitions) != len(want) {
		t.Fatalf("expected %d transitions, got %d", len(want), len(transitions))
	}
	for i, tr := range transitions {
		if tr != want[i] {
			t.Errorf("transition %d: expected %s->%s, got %s->%s",
				i, want[i].from, want[i].to, tr.from, tr.to)
		}
	}
}

func TestStateString(t *testing.T) {
	tests := []struct {
		s    State
		want string
	}{
		{Closed, "closed"},
		{Open, "open"},
		{HalfOpen, "half-open"},
		{State(99), "unknown"},
	}
	for _, tt := range tests {
		if got := tt.s.String(); got != tt.want {
			t.Errorf("State(%d).String() = %q, want %q", tt.s, got, tt.want)
		}
	}
}

func TestOptionsIgnoreNonPositive(t *testing.T) {
	b := New(WithThreshold(0), WithCooldown(0))
	if b.failureThreshold != defaultThreshold {
		t.Fatalf("expected default threshold %d, got %d", defaultThreshold, b.failureThreshold)
	}
	if b.cooldown != defaultCooldown {
		t.Fatalf("expected default cooldown %v, got %v", defaultCooldown, b.cooldown)
	}
}
