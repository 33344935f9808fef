package breaker

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/knowledge-network/knsearch/internal/domain"
)

var errEngine = errors.New("engine down")

func newTestBreaker(cfg Config) (*Breaker, *time.Time) {
	b := New(cfg, nil, nil, nil)
	clock := time.Date(2026, 1, 15, 12, 0, 0, 0, time.UTC)
	b.now = func() time.Time { return clock }
	b.startedAt = clock
	return b, &clock
}

func fail(b *Breaker) error {
	return b.Execute(context.Background(), func(context.Context) error { return errEngine })
}

func succeed(b *Breaker) error {
	return b.Execute(context.Background(), func(context.Context) error { return nil })
}

func TestExecute_OpensAfterConsecutiveFailures(t *testing.T) {
	b, _ := newTestBreaker(Config{FailureThreshold: 3})

	for i := 0; i < 2; i++ {
		if err := fail(b); !errors.Is(err, errEngine) {
			t.Fatalf("failure %d: got %v, want engine error", i, err)
		}
		if got := b.State(); got != StateClosed {
			t.Fatalf("after failure %d: state %s, want CLOSED", i, got)
		}
	}

	if err := fail(b); !errors.Is(err, errEngine) {
		t.Fatalf("tripping failure: got %v, want engine error passed through", err)
	}
	if got := b.State(); got != StateOpen {
		t.Fatalf("state after threshold: %s, want OPEN", got)
	}
}

func TestExecute_SuccessResetsFailureStreak(t *testing.T) {
	b, _ := newTestBreaker(Config{FailureThreshold: 3})

	_ = fail(b)
	_ = fail(b)
	_ = succeed(b)
	_ = fail(b)
	_ = fail(b)

	if got := b.State(); got != StateClosed {
		t.Fatalf("state: %s, want CLOSED (streak was broken)", got)
	}
}

func TestExecute_FastFailsWhileOpen(t *testing.T) {
	b, _ := newTestBreaker(Config{FailureThreshold: 1, ResetTimeout: 30 * time.Second})
	_ = fail(b)

	invoked := false
	err := b.Execute(context.Background(), func(context.Context) error {
		invoked = true
		return nil
	})

	if invoked {
		t.Fatal("op was invoked while the breaker was open")
	}
	if !errors.Is(err, domain.ErrCircuitOpen) {
		t.Fatalf("got %v, want circuit-open error", err)
	}

	var open *domain.CircuitOpenError
	if !errors.As(err, &open) {
		t.Fatalf("got %T, want *domain.CircuitOpenError", err)
	}
	if open.RetryAfter <= 0 || open.RetryAfter > 30*time.Second {
		t.Fatalf("retry-after %v outside (0, 30s]", open.RetryAfter)
	}
}

func TestExecute_ClosesAfterHalfOpenSuccesses(t *testing.T) {
	b, clock := newTestBreaker(Config{
		FailureThreshold:    1,
		HalfOpenMaxAttempts: 2,
		ResetTimeout:        30 * time.Second,
	})
	_ = fail(b)

	*clock = clock.Add(31 * time.Second)

	if err := succeed(b); err != nil {
		t.Fatalf("first probe: %v", err)
	}
	if got := b.State(); got != StateHalfOpen {
		t.Fatalf("state after first probe: %s, want HALF_OPEN", got)
	}

	if err := succeed(b); err != nil {
		t.Fatalf("second probe: %v", err)
	}
	if got := b.State(); got != StateClosed {
		t.Fatalf("state after %d probes: %s, want CLOSED", 2, got)
	}
}

func TestExecute_HalfOpenFailureReopens(t *testing.T) {
	b, clock := newTestBreaker(Config{
		FailureThreshold:    1,
		HalfOpenMaxAttempts: 3,
		ResetTimeout:        30 * time.Second,
	})
	_ = fail(b)

	*clock = clock.Add(31 * time.Second)
	_ = succeed(b) // half-open, one good probe
	_ = fail(b)    // single strike

	if got := b.State(); got != StateOpen {
		t.Fatalf("state after half-open failure: %s, want OPEN", got)
	}
}

func TestExecute_BackoffGrowsAndCaps(t *testing.T) {
	b, clock := newTestBreaker(Config{
		FailureThreshold: 1,
		ResetTimeout:     10 * time.Second,
		BackoffFactor:    2,
		MaxResetTimeout:  25 * time.Second,
	})
	_ = fail(b)
	if b.cooldown != 10*time.Second {
		t.Fatalf("initial cooldown %v, want 10s", b.cooldown)
	}

	// First reopen doubles the cooldown.
	*clock = clock.Add(11 * time.Second)
	_ = fail(b)
	if b.cooldown != 20*time.Second {
		t.Fatalf("cooldown after first reopen %v, want 20s", b.cooldown)
	}

	// Second reopen hits the cap.
	*clock = clock.Add(21 * time.Second)
	_ = fail(b)
	if b.cooldown != 25*time.Second {
		t.Fatalf("cooldown after second reopen %v, want capped 25s", b.cooldown)
	}

	// Closing resets the cooldown to its base value.
	*clock = clock.Add(26 * time.Second)
	_ = succeed(b)
	_ = succeed(b)
	_ = succeed(b)
	if got := b.State(); got != StateClosed {
		t.Fatalf("state: %s, want CLOSED", got)
	}
	if b.cooldown != 10*time.Second {
		t.Fatalf("cooldown after close %v, want reset to 10s", b.cooldown)
	}
}

func TestSnapshot_Rates(t *testing.T) {
	b, clock := newTestBreaker(Config{FailureThreshold: 10})

	_ = succeed(b)
	_ = succeed(b)
	_ = succeed(b)
	_ = fail(b)

	*clock = clock.Add(time.Minute)
	m := b.Snapshot()

	if m.Requests != 4 {
		t.Errorf("requests: %d, want 4", m.Requests)
	}
	if m.SuccessRate != 0.75 {
		t.Errorf("success rate: %v, want 0.75", m.SuccessRate)
	}
	if m.FailureRate != 0.25 {
		t.Errorf("failure rate: %v, want 0.25", m.FailureRate)
	}
	if m.UptimePercent != 100 {
		t.Errorf("uptime: %v, want 100 (never opened)", m.UptimePercent)
	}
}

func TestSnapshot_UptimeReflectsOpenTime(t *testing.T) {
	b, clock := newTestBreaker(Config{FailureThreshold: 1, ResetTimeout: 30 * time.Second})

	*clock = clock.Add(30 * time.Second)
	_ = fail(b) // opens at t=30s

	*clock = clock.Add(30 * time.Second) // open for 30s of a 60s lifetime
	m := b.Snapshot()

	if m.UptimePercent != 50 {
		t.Errorf("uptime: %v, want 50", m.UptimePercent)
	}
}
