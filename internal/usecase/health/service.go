package health

import "context"

// Status represents the aggregated health status.
type Status string

const (
	// Healthy indicates all components are operational.
	Healthy Status = "ok"
	// Degraded indicates partial failure.
	Degraded Status = "degraded"
)

// CheckResult represents an individual component health check outcome.
type CheckResult string

const (
	// CheckOK indicates a passing health check.
	CheckOK CheckResult = "ok"
	// CheckError indicates a failing health check.
	CheckError CheckResult = "error"
)

// Report aggregates health check results.
type Report struct {
	Status  Status                 `json:"status"`
	Checks  map[string]CheckResult `json:"checks"`
	Breaker string                 `json:"breaker,omitempty"`
}

// Service coordinates health checks.
type Service struct {
	cache   CachePinger
	engine  EnginePinger
	breaker BreakerReader
}

// New creates a Service. breaker can be nil.
func New(cache CachePinger, engine EnginePinger, breaker BreakerReader) *Service {
	return &Service{cache: cache, engine: engine, breaker: breaker}
}

// Check runs health checks against all components. A broken cache degrades
// the service (results still flow, just uncached), it never hard-fails it.
func (s *Service) Check(ctx context.Context) Report {
	checks := make(map[string]CheckResult)

	if err := s.cache.Ping(ctx); err != nil {
		checks["cache"] = CheckError
	} else {
		checks["cache"] = CheckOK
	}

	if err := s.engine.Ping(ctx); err != nil {
		checks["engine"] = CheckError
	} else {
		checks["engine"] = CheckOK
	}

	status := Healthy
	for _, v := range checks {
		if v == CheckError {
			status = Degraded
			break
		}
	}

	report := Report{Status: status, Checks: checks}
	if s.breaker != nil {
		report.Breaker = s.breaker.State()
	}
	return report
}
