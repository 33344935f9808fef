// Package breaker guards every call to the external search engine with a
// three-state circuit breaker. Once the backend is known to be unhealthy,
// calls fail fast without a network round-trip until a cooldown elapses.
package breaker

import (
	"context"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/knowledge-network/knsearch/internal/domain"
)

// State is the breaker's protection state.
type State string

// Breaker states. Only CLOSED may open, only OPEN may half-open, and only
// HALF_OPEN may close or re-open.
const (
	StateClosed   State = "CLOSED"
	StateOpen     State = "OPEN"
	StateHalfOpen State = "HALF_OPEN"
)

// Config holds the protection thresholds.
type Config struct {
	// FailureThreshold consecutive failures in CLOSED trip the breaker.
	FailureThreshold int
	// HalfOpenMaxAttempts consecutive successes in HALF_OPEN close it.
	HalfOpenMaxAttempts int
	// ResetTimeout is the base cooldown before OPEN may probe again.
	ResetTimeout time.Duration
	// BackoffFactor multiplies the cooldown on every reopen (<=1 disables
	// backoff). Avoids a thundering-herd reconnect against a sick backend.
	BackoffFactor float64
	// MaxResetTimeout caps the backed-off cooldown.
	MaxResetTimeout time.Duration
}

func (c *Config) applyDefaults() {
	if c.FailureThreshold <= 0 {
		c.FailureThreshold = 5
	}
	if c.HalfOpenMaxAttempts <= 0 {
		c.HalfOpenMaxAttempts = 3
	}
	if c.ResetTimeout <= 0 {
		c.ResetTimeout = 30 * time.Second
	}
	if c.MaxResetTimeout < c.ResetTimeout {
		c.MaxResetTimeout = 10 * c.ResetTimeout
	}
}

// Metrics is a read-only snapshot of the breaker.
type Metrics struct {
	State         State
	Requests      int64
	Successes     int64
	Failures      int64
	SuccessRate   float64
	FailureRate   float64
	UptimePercent float64
}

// Breaker wraps fallible operations with the protection protocol.
type Breaker struct {
	cfg         Config
	logger      *zap.Logger
	stateGauge  prometheus.Gauge
	transitions *prometheus.CounterVec

	mu        sync.Mutex
	state     State
	failures  int
	probes    int
	cooldown  time.Duration
	openedAt  time.Time
	openTotal time.Duration
	startedAt time.Time

	requests  int64
	successes int64
	failTotal int64

	now func() time.Time
}

// New creates a closed breaker. stateGauge (0=closed, 1=half-open, 2=open)
// and transitions (label "to") may be nil.
func New(cfg Config, stateGauge prometheus.Gauge, transitions *prometheus.CounterVec, logger *zap.Logger) *Breaker {
	cfg.applyDefaults()
	if logger == nil {
		logger = zap.NewNop()
	}
	b := &Breaker{
		cfg:         cfg,
		logger:      logger,
		stateGauge:  stateGauge,
		transitions: transitions,
		state:       StateClosed,
		cooldown:    cfg.ResetTimeout,
		now:         time.Now,
	}
	b.startedAt = b.now()
	return b
}

// Execute runs op under the breaker. While OPEN and inside the cooldown it
// fails fast with a CircuitOpenError without invoking op. Real failures are
// re-thrown untouched: the breaker never swallows an error.
func (b *Breaker) Execute(ctx context.Context, op func(ctx context.Context) error) error {
	b.mu.Lock()
	b.requests++
	if b.state == StateOpen {
		remaining := b.cooldown - b.now().Sub(b.openedAt)
		if remaining > 0 {
			b.mu.Unlock()
			return domain.NewCircuitOpen(remaining)
		}
		b.transition(StateHalfOpen)
	}
	b.mu.Unlock()

	if err := op(ctx); err != nil {
		b.onFailure(err)
		return err
	}
	b.onSuccess()
	return nil
}

func (b *Breaker) onSuccess() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.successes++
	switch b.state {
	case StateClosed:
		b.failures = 0
	case StateHalfOpen:
		b.probes++
		if b.probes >= b.cfg.HalfOpenMaxAttempts {
			b.transition(StateClosed)
			b.cooldown = b.cfg.ResetTimeout
		}
	case StateOpen:
		// A call admitted before the trip finished late; nothing to do.
	}
}

func (b *Breaker) onFailure(err error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.failTotal++
	switch b.state {
	case StateClosed:
		b.failures++
		if b.failures >= b.cfg.FailureThreshold {
			b.open(err)
		}
	case StateHalfOpen:
		// One strike ends recovery.
		b.backoff()
		b.open(err)
	case StateOpen:
	}
}

// open transitions to OPEN and records the trip time. Callers hold the lock.
func (b *Breaker) open(cause error) {
	b.transition(StateOpen)
	b.openedAt = b.now()
	b.logger.Warn("circuit opened",
		zap.Duration("cooldown", b.cooldown),
		zap.Error(cause),
	)
}

// backoff grows the cooldown for a reopen, capped at MaxResetTimeout.
func (b *Breaker) backoff() {
	if b.cfg.BackoffFactor <= 1 {
		return
	}
	next := time.Duration(float64(b.cooldown) * b.cfg.BackoffFactor)
	if next > b.cfg.MaxResetTimeout {
		next = b.cfg.MaxResetTimeout
	}
	b.cooldown = next
}

// transition switches state and resets the per-state counters. Callers hold
// the lock.
func (b *Breaker) transition(to State) {
	if b.state == StateOpen && to != StateOpen {
		b.openTotal += b.now().Sub(b.openedAt)
	}
	b.state = to
	b.failures = 0
	b.probes = 0

	if b.stateGauge != nil {
		b.stateGauge.Set(stateValue(to))
	}
	if b.transitions != nil {
		b.transitions.WithLabelValues(string(to)).Inc()
	}
}

// State returns the current state.
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// Snapshot returns read-only metrics.
func (b *Breaker) Snapshot() Metrics {
	b.mu.Lock()
	defer b.mu.Unlock()

	m := Metrics{
		State:     b.state,
		Requests:  b.requests,
		Successes: b.successes,
		Failures:  b.failTotal,
	}
	if total := b.successes + b.failTotal; total > 0 {
		m.SuccessRate = float64(b.successes) / float64(total)
		m.FailureRate = float64(b.failTotal) / float64(total)
	}

	elapsed := b.now().Sub(b.startedAt)
	open := b.openTotal
	if b.state == StateOpen {
		open += b.now().Sub(b.openedAt)
	}
	if elapsed > 0 {
		m.UptimePercent = 100 * float64(elapsed-open) / float64(elapsed)
	}
	return m
}

func stateValue(s State) float64 {
	switch s {
	case StateHalfOpen:
		return 1
	case StateOpen:
		return 2
	default:
		return 0
	}
}
