// Package monitor runs the health check pipeline and the scheduler that drives it.
package monitor

import (
	"context"
	"fmt"

	"github.com/leego972/sitewarden/internal/domain"
	"github.com/leego972/sitewarden/internal/pkg/ctxlog"
	"github.com/leego972/sitewarden/internal/probe"
)

// Prober executes a single probe.
type Prober interface {
	Probe(ctx context.Context, target probe.Target) probe.Outcome
}

// IncidentEvaluator reacts to a recorded check.
type IncidentEvaluator interface {
	Evaluate(ctx context.Context, site *domain.MonitoredSite, hc *domain.HealthCheck, state domain.SiteState) error
}

// Checker runs the check pipeline for one site: probe, classify, persist,
// update live state and evaluate incidents.
type Checker struct {
	prober    Prober
	repo      Repository
	incidents IncidentEvaluator
}

// NewChecker creates a checker.
func NewChecker(prober Prober, repo Repository, incidents IncidentEvaluator) *Checker {
	return &Checker{prober: prober, repo: repo, incidents: incidents}
}

// Check probes site and records the result. Probe failures are part of the
// returned HealthCheck; errors are storage failures only. Incident evaluation
// failures are logged and do not fail the check.
func (c *Checker) Check(ctx context.Context, site *domain.MonitoredSite) (*domain.HealthCheck, error) {
	ctx = ctxlog.With(ctx, "site_id", site.ID)
	logger := ctxlog.FromContext(ctx)

	outcome := c.prober.Probe(ctx, probe.TargetFor(site))
	verdict := probe.Classify(outcome, site.Expectations)
	hc := probe.HealthCheck(site.ID, outcome, verdict)

	state, err := c.repo.RecordCheck(ctx, hc)
	if err != nil {
		return nil, fmt.Errorf("record check: %w", err)
	}
	recordCheck(hc)

	if hc.IsHealthy() {
		logger.Debug("site healthy", "response_ms", hc.ResponseTimeMs)
	} else {
		logger.Warn("site unhealthy",
			"status", hc.Status,
			"error_type", hc.ErrorType,
			"error", hc.ErrorMessage,
			"consecutive_failures", state.ConsecutiveFailures,
		)
	}

	if c.incidents != nil {
		if err := c.incidents.Evaluate(ctx, site, hc, state); err != nil {
			logger.Error("failed to evaluate incidents", "error", err)
		}
	}

	return hc, nil
}
