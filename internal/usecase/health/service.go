package health

import "context"

// Status is the aggregated health status.
type Status string

const (
	// Healthy indicates keyword and vector search are both operational.
	Healthy Status = "ok"
	// Degraded indicates vector search is down; keyword search still works.
	Degraded Status = "degraded"
	// Unhealthy indicates the store is unreachable, so no search works.
	Unhealthy Status = "error"
)

// CheckResult is an individual component check outcome.
type CheckResult string

const (
	CheckOK    CheckResult = "ok"
	CheckError CheckResult = "error"
)

// Report aggregates component checks into one status.
type Report struct {
	Status Status
	Checks map[string]CheckResult
}

// Service coordinates health checks. The store is a hard dependency of
// every search path; the embedding provider only backs the vector path,
// so its failure degrades rather than kills the service.
type Service struct {
	db        DBPinger
	embedding EmbeddingChecker
}

// New creates a Service. embedding can be nil when vector search is
// disabled; the check is then omitted from the report.
func New(db DBPinger, embedding EmbeddingChecker) *Service {
	return &Service{db: db, embedding: embedding}
}

// Check runs health checks against all components.
func (s *Service) Check(ctx context.Context) Report {
	checks := make(map[string]CheckResult)
	status := Healthy

	if err := s.db.Ping(ctx); err != nil {
		checks["database"] = CheckError
		status = Unhealthy
	} else {
		checks["database"] = CheckOK
	}

	if s.embedding != nil {
		if err := s.embedding.HealthCheck(ctx); err != nil {
			checks["embedding"] = CheckError
			if status == Healthy {
				status = Degraded
			}
		} else {
			checks["embedding"] = CheckOK
		}
	}

	return Report{Status: status, Checks: checks}
}
