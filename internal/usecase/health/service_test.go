package health

import (
	"context"
	"errors"
	"testing"
)

type pinger struct{ err error }

func (p pinger) Ping(context.Context) error { return p.err }

type breakerReader string

func (b breakerReader) State() string { return string(b) }

func TestCheck_AllHealthy(t *testing.T) {
	svc := New(pinger{}, pinger{}, breakerReader("CLOSED"))

	report := svc.Check(context.Background())
	if report.Status != Healthy {
		t.Errorf("status: %s, want %s", report.Status, Healthy)
	}
	if report.Checks["cache"] != CheckOK || report.Checks["engine"] != CheckOK {
		t.Errorf("checks: %v", report.Checks)
	}
	if report.Breaker != "CLOSED" {
		t.Errorf("breaker: %s", report.Breaker)
	}
}

func TestCheck_BrokenCacheDegrades(t *testing.T) {
	svc := New(pinger{err: errors.New("refused")}, pinger{}, nil)

	report := svc.Check(context.Background())
	if report.Status != Degraded {
		t.Errorf("status: %s, want %s", report.Status, Degraded)
	}
	if report.Checks["cache"] != CheckError {
		t.Errorf("cache check: %s", report.Checks["cache"])
	}
	if report.Checks["engine"] != CheckOK {
		t.Errorf("engine check: %s", report.Checks["engine"])
	}
	if report.Breaker != "" {
		t.Errorf("breaker without reader: %q", report.Breaker)
	}
}

func TestCheck_BrokenEngineDegrades(t *testing.T) {
	svc := New(pinger{}, pinger{err: errors.New("502")}, nil)

	report := svc.Check(context.Background())
	if report.Status != Degraded {
		t.Errorf("status: %s, want %s", report.Status, Degraded)
	}
}
