// Package incidents opens, repairs and resolves incidents from health check
// results.
package incidents

import (
	"context"
	"errors"
	"fmt"

	"github.com/leego972/sitewarden/internal/domain"
	"github.com/leego972/sitewarden/internal/pkg/ctxlog"
	"github.com/leego972/sitewarden/internal/repair"
)

// AutoResolveNote is stored on incidents closed by a healthy check.
const AutoResolveNote = "Automatically resolved: site recovered"

// Repairer runs a repair and records it.
type Repairer interface {
	Dispatch(ctx context.Context, req repair.Request) (*domain.RepairLog, error)
}

// PlanLimits resolves the limits of a plan tier.
type PlanLimits interface {
	Limits(tier domain.PlanTier) domain.PlanLimits
}

// Alerter delivers incident alerts to the site's alert destination.
type Alerter interface {
	IncidentOpened(ctx context.Context, site *domain.MonitoredSite, inc *domain.SiteIncident) error
	IncidentResolved(ctx context.Context, site *domain.MonitoredSite, inc *domain.SiteIncident) error
}

// Manager drives the incident lifecycle.
type Manager struct {
	repo     Repository
	plans    PlanLimits
	repairer Repairer
	alerter  Alerter
}

// Option configures a Manager.
type Option func(*Manager)

// WithRepairer enables automatic repair.
func WithRepairer(r Repairer) Option {
	return func(m *Manager) {
		m.repairer = r
	}
}

// WithAlerter enables alerts.
func WithAlerter(a Alerter) Option {
	return func(m *Manager) {
		m.alerter = a
	}
}

// NewManager creates an incident manager.
func NewManager(repo Repository, plans PlanLimits, opts ...Option) *Manager {
	m := &Manager{repo: repo, plans: plans}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Evaluate applies the result of a recorded check. A healthy check resolves
// the site's active incident. A failed check opens an incident when the
// failure counter has just reached the site's alert threshold.
func (m *Manager) Evaluate(ctx context.Context, site *domain.MonitoredSite, hc *domain.HealthCheck, state domain.SiteState) error {
	if hc.IsHealthy() {
		return m.autoResolve(ctx, site)
	}
	if state.ConsecutiveFailures != site.Alerting.Threshold() {
		return nil
	}
	return m.open(ctx, site, hc, state.ConsecutiveFailures)
}

func (m *Manager) autoResolve(ctx context.Context, site *domain.MonitoredSite) error {
	active, err := m.repo.GetActiveIncident(ctx, site.ID)
	if errors.Is(err, ErrIncidentNotFound) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("get active incident: %w", err)
	}

	inc, err := m.repo.TransitionIncident(ctx, active.ID, Transition{
		Status:         domain.IncidentStatusResolved,
		ResolutionNote: AutoResolveNote,
	})
	if errors.Is(err, ErrIncidentClosed) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("resolve incident: %w", err)
	}
	recordClosed(inc.Status, "auto")
	ctxlog.FromContext(ctx).Info("incident auto-resolved", "incident_id", inc.ID, "type", inc.Type)

	m.alert(ctx, site, inc, false)
	return nil
}

func (m *Manager) open(ctx context.Context, site *domain.MonitoredSite, hc *domain.HealthCheck, failures int) error {
	logger := ctxlog.FromContext(ctx)

	if _, err := m.repo.GetActiveIncident(ctx, site.ID); err == nil {
		logger.Debug("active incident exists, not opening another")
		return nil
	} else if !errors.Is(err, ErrIncidentNotFound) {
		return fmt.Errorf("get active incident: %w", err)
	}

	inc := NewIncident(site, hc, failures)
	if err := m.repo.CreateIncident(ctx, inc); err != nil {
		if errors.Is(err, ErrActiveIncidentExists) {
			return nil
		}
		return fmt.Errorf("create incident: %w", err)
	}
	recordOpened(inc)
	logger.Warn("incident opened",
		"incident_id", inc.ID,
		"type", inc.Type,
		"severity", inc.Severity,
		"consecutive_failures", failures,
	)

	m.alert(ctx, site, inc, true)

	if m.shouldAutoRepair(site) {
		if err := m.autoRepair(ctx, site, inc); err != nil {
			return fmt.Errorf("auto repair: %w", err)
		}
	}
	return nil
}

func (m *Manager) shouldAutoRepair(site *domain.MonitoredSite) bool {
	return m.repairer != nil &&
		site.CanAutoRepair() &&
		m.plans.Limits(site.PlanTier).AutoRepairEnabled
}

// autoRepair moves inc to repairing and runs the repair synchronously. A
// failed repair moves the incident back to investigating.
func (m *Manager) autoRepair(ctx context.Context, site *domain.MonitoredSite, inc *domain.SiteIncident) error {
	logger := ctxlog.FromContext(ctx)

	if _, err := m.repo.StartRepair(ctx, inc.ID); err != nil {
		return fmt.Errorf("start repair: %w", err)
	}

	log, err := m.repairer.Dispatch(ctx, repair.Request{
		Site:       site,
		IncidentID: &inc.ID,
		Trigger:    domain.RepairTriggerAuto,
	})
	if err == nil && log.Status == domain.RepairStatusSuccess {
		recordAutoRepair("success")
		logger.Info("auto repair succeeded", "incident_id", inc.ID, "repair_id", log.ID)
		return nil
	}

	recordAutoRepair("failed")
	if err != nil {
		logger.Error("auto repair could not be recorded", "incident_id", inc.ID, "error", err)
	} else {
		logger.Warn("auto repair failed", "incident_id", inc.ID, "repair_id", log.ID, "output", log.Output)
	}

	if _, err := m.repo.TransitionIncident(ctx, inc.ID, Transition{Status: domain.IncidentStatusInvestigating}); err != nil {
		if errors.Is(err, ErrIncidentClosed) {
			return nil
		}
		return fmt.Errorf("return incident to investigating: %w", err)
	}
	return nil
}

func (m *Manager) alert(ctx context.Context, site *domain.MonitoredSite, inc *domain.SiteIncident, opened bool) {
	if m.alerter == nil || !site.Alerting.Enabled {
		return
	}

	var err error
	if opened {
		err = m.alerter.IncidentOpened(ctx, site, inc)
	} else {
		err = m.alerter.IncidentResolved(ctx, site, inc)
	}
	if err != nil {
		ctxlog.FromContext(ctx).Error("failed to send incident alert", "incident_id", inc.ID, "error", err)
	}
}

// Resolve closes an active incident with note.
func (m *Manager) Resolve(ctx context.Context, id, note string) (*domain.SiteIncident, error) {
	inc, err := m.repo.TransitionIncident(ctx, id, Transition{
		Status:         domain.IncidentStatusResolved,
		ResolutionNote: note,
	})
	if err != nil {
		return nil, fmt.Errorf("resolve incident: %w", err)
	}
	recordClosed(inc.Status, "user")
	return inc, nil
}

// Ignore closes an active incident without resolving it.
func (m *Manager) Ignore(ctx context.Context, id string) (*domain.SiteIncident, error) {
	inc, err := m.repo.TransitionIncident(ctx, id, Transition{Status: domain.IncidentStatusIgnored})
	if err != nil {
		return nil, fmt.Errorf("ignore incident: %w", err)
	}
	recordClosed(inc.Status, "user")
	return inc, nil
}
