// Package health aggregates component availability checks.
package health

import (
	"context"

	"golang.org/x/sync/errgroup"
)

// Status represents the aggregated health status.
type Status string

const (
	// Healthy indicates all components are operational.
	Healthy Status = "ok"
	// Degraded indicates at least one component is failing.
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
	Status Status
	Checks map[string]CheckResult
}

// Service coordinates health checks.
type Service struct {
	store     StorePinger
	embedding EmbeddingChecker
}

// New creates a health service. embedding can be nil when no provider
// check is wanted.
func New(store StorePinger, embedding EmbeddingChecker) *Service {
	return &Service{store: store, embedding: embedding}
}

// Check probes all components in parallel and aggregates the outcome.
func (s *Service) Check(ctx context.Context) Report {
	checks := make(map[string]CheckResult, 2)

	var storeErr, embErr error
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		storeErr = s.store.Ping(gctx)
		return nil
	})
	if s.embedding != nil {
		g.Go(func() error {
			embErr = s.embedding.HealthCheck(gctx)
			return nil
		})
	}
	_ = g.Wait()

	checks["store"] = resultOf(storeErr)
	if s.embedding != nil {
		checks["embedding"] = resultOf(embErr)
	}

	status := Healthy
	for _, v := range checks {
		if v == CheckError {
			status = Degraded
			break
		}
	}

	return Report{Status: status, Checks: checks}
}

func resultOf(err error) CheckResult {
	if err != nil {
		return CheckError
	}
	return CheckOK
}
