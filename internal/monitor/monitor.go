// Package monitor records per-operation latency and success, keeps rolling
// percentile windows for the stats endpoint, and mirrors everything into
// Prometheus for the scrape-based export.
package monitor

import (
	"sort"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
)

// Operation names recorded by the services.
const (
	OpSearch     = "search"
	OpIndex      = "index"
	OpBulkIndex  = "bulk_index"
	OpDelete     = "delete"
	OpProjection = "projection"
)

// Config holds window and alert settings.
type Config struct {
	// WindowSize is the number of samples kept per operation.
	WindowSize int
	// AlertLatencyP95 raises an alert when an operation's rolling P95
	// exceeds it. Zero disables the latency alert.
	AlertLatencyP95 time.Duration
	// AlertErrorRate raises an alert when an operation's rolling error
	// rate exceeds it (0..1). Zero disables the error-rate alert.
	AlertErrorRate float64
	// MinSamples gates alerting until the window has enough data.
	MinSamples int
}

func (c *Config) applyDefaults() {
	if c.WindowSize <= 0 {
		c.WindowSize = 1024
	}
	if c.MinSamples <= 0 {
		c.MinSamples = 20
	}
}

// OpStats is the rolling view of one operation.
type OpStats struct {
	Count     int64         `json:"count"`
	P50       time.Duration `json:"p50"`
	P95       time.Duration `json:"p95"`
	P99       time.Duration `json:"p99"`
	ErrorRate float64       `json:"errorRate"`
	PerSecond float64       `json:"perSecond"`
}

// Stats is a full monitor snapshot.
type Stats struct {
	Operations    map[string]OpStats `json:"operations"`
	CacheHitRatio float64            `json:"cacheHitRatio"`
	Uptime        time.Duration      `json:"uptime"`
}

type sample struct {
	d  time.Duration
	at time.Time
	ok bool
}

type window struct {
	samples []sample
	next    int
	filled  bool
	total   int64
	failed  int64
}

// Monitor aggregates operation latency and success counts.
type Monitor struct {
	cfg       Config
	logger    *zap.Logger
	duration  *prometheus.HistogramVec
	alerts    *prometheus.CounterVec
	hitRatio  func() float64
	startedAt time.Time

	mu      sync.Mutex
	windows map[string]*window
}

// New creates a monitor. duration is a histogram vec with labels
// "operation" and "status"; alerts a counter vec with labels "operation"
// and "reason". Either may be nil.
func New(cfg Config, duration *prometheus.HistogramVec, alerts *prometheus.CounterVec, logger *zap.Logger) *Monitor {
	cfg.applyDefaults()
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Monitor{
		cfg:       cfg,
		logger:    logger,
		duration:  duration,
		alerts:    alerts,
		startedAt: time.Now(),
		windows:   make(map[string]*window),
	}
}

// WithCacheHitRatio wires the cache's hit-ratio reader into snapshots.
func (m *Monitor) WithCacheHitRatio(f func() float64) *Monitor {
	m.hitRatio = f
	return m
}

// Record adds one sample for the operation and evaluates alert thresholds.
func (m *Monitor) Record(op string, d time.Duration, ok bool) {
	if m.duration != nil {
		status := "ok"
		if !ok {
			status = "error"
		}
		m.duration.WithLabelValues(op, status).Observe(d.Seconds())
	}

	m.mu.Lock()
	w := m.windows[op]
	if w == nil {
		w = &window{samples: make([]sample, m.cfg.WindowSize)}
		m.windows[op] = w
	}
	w.samples[w.next] = sample{d: d, at: time.Now(), ok: ok}
	w.next++
	if w.next == len(w.samples) {
		w.next = 0
		w.filled = true
	}
	w.total++
	if !ok {
		w.failed++
	}
	stats := w.stats()
	m.mu.Unlock()

	m.checkAlerts(op, stats)
}

// Snapshot returns the rolling stats for every recorded operation.
func (m *Monitor) Snapshot() Stats {
	m.mu.Lock()
	ops := make(map[string]OpStats, len(m.windows))
	for op, w := range m.windows {
		ops[op] = w.stats()
	}
	m.mu.Unlock()

	s := Stats{
		Operations: ops,
		Uptime:     time.Since(m.startedAt),
	}
	if m.hitRatio != nil {
		s.CacheHitRatio = m.hitRatio()
	}
	return s
}

func (m *Monitor) checkAlerts(op string, s OpStats) {
	if int(s.Count) < m.cfg.MinSamples {
		return
	}
	if m.cfg.AlertLatencyP95 > 0 && s.P95 > m.cfg.AlertLatencyP95 {
		m.alert(op, "latency_p95", zap.Duration("p95", s.P95), zap.Duration("threshold", m.cfg.AlertLatencyP95))
	}
	if m.cfg.AlertErrorRate > 0 && s.ErrorRate > m.cfg.AlertErrorRate {
		m.alert(op, "error_rate", zap.Float64("error_rate", s.ErrorRate), zap.Float64("threshold", m.cfg.AlertErrorRate))
	}
}

func (m *Monitor) alert(op, reason string, fields ...zap.Field) {
	if m.alerts != nil {
		m.alerts.WithLabelValues(op, reason).Inc()
	}
	m.logger.Warn("performance alert",
		append([]zap.Field{zap.String("operation", op), zap.String("reason", reason)}, fields...)...,
	)
}

// stats computes percentiles over the live part of the window. Callers
// hold the monitor lock.
func (w *window) stats() OpStats {
	live := w.samples
	if !w.filled {
		live = w.samples[:w.next]
	}

	s := OpStats{Count: w.total}
	if w.total > 0 {
		s.ErrorRate = float64(w.failed) / float64(w.total)
	}
	if len(live) == 0 {
		return s
	}

	durations := make([]time.Duration, 0, len(live))
	var oldest, newest time.Time
	var failed int
	for _, smp := range live {
		durations = append(durations, smp.d)
		if oldest.IsZero() || smp.at.Before(oldest) {
			oldest = smp.at
		}
		if smp.at.After(newest) {
			newest = smp.at
		}
		if !smp.ok {
			failed++
		}
	}
	sort.Slice(durations, func(i, j int) bool { return durations[i] < durations[j] })

	s.P50 = percentile(durations, 0.50)
	s.P95 = percentile(durations, 0.95)
	s.P99 = percentile(durations, 0.99)
	s.ErrorRate = float64(failed) / float64(len(live))

	if span := newest.Sub(oldest); span > 0 {
		s.PerSecond = float64(len(live)) / span.Seconds()
	}
	return s
}

// percentile returns the nearest-rank percentile of sorted durations.
func percentile(sorted []time.Duration, p float64) time.Duration {
	if len(sorted) == 0 {
		return 0
	}
	idx := int(p * float64(len(sorted)-1))
	return sorted[idx]
}
