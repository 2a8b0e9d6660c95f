// Package sites implements the user-facing operations on monitored sites and
// their history.
package sites

import (
	"context"
	"errors"
	"fmt"
	"time"

	"dario.cat/mergo"
	"github.com/leego972/sitewarden/internal/audit"
	"github.com/leego972/sitewarden/internal/domain"
	"github.com/leego972/sitewarden/internal/identity"
	"github.com/leego972/sitewarden/internal/incidents"
	"github.com/leego972/sitewarden/internal/pkg/ctxlog"
	"github.com/leego972/sitewarden/internal/plans"
	"github.com/leego972/sitewarden/internal/probe"
	"github.com/leego972/sitewarden/internal/repair"
)

// History limits.
const (
	DefaultHistoryHours = 24
	DefaultHistoryLimit = 100
	MaxHistoryLimit     = 1000
)

// Checker runs the full check pipeline for a site.
type Checker interface {
	Check(ctx context.Context, site *domain.MonitoredSite) (*domain.HealthCheck, error)
}

// Prober runs a probe without recording it.
type Prober interface {
	Probe(ctx context.Context, target probe.Target) probe.Outcome
}

// Repairer runs and verifies repairs.
type Repairer interface {
	Dispatch(ctx context.Context, req repair.Request) (*domain.RepairLog, error)
	Verify(ctx context.Context, site *domain.MonitoredSite) (output string, ok, supported bool)
}

// RepairLogs reads repair history.
type RepairLogs interface {
	ListRepairLogs(ctx context.Context, filter repair.LogFilter) ([]*domain.RepairLog, error)
}

// IncidentStore reads incidents.
type IncidentStore interface {
	GetIncident(ctx context.Context, id string) (*domain.SiteIncident, error)
	ListIncidents(ctx context.Context, filter incidents.Filter) ([]*domain.SiteIncident, error)
}

// IncidentManager closes incidents.
type IncidentManager interface {
	Resolve(ctx context.Context, id, note string) (*domain.SiteIncident, error)
	Ignore(ctx context.Context, id string) (*domain.SiteIncident, error)
}

// PlanLimits resolves the limits of a plan tier.
type PlanLimits interface {
	Limits(tier domain.PlanTier) domain.PlanLimits
}

// Deps are the collaborators of Service.
type Deps struct {
	Repo       Repository
	Incidents  IncidentStore
	Manager    IncidentManager
	RepairLogs RepairLogs
	Repairer   Repairer
	Checker    Checker
	Prober     Prober
	Plans      PlanLimits
	Audit      audit.Sink
}

// Service implements site operations. Every method is scoped to the owner
// of the principal; other owners' sites are reported as not found.
type Service struct {
	Deps
	now func() time.Time
}

// NewService creates a site service.
func NewService(deps Deps) *Service {
	if deps.Audit == nil {
		deps.Audit = audit.NewLogSink(nil)
	}
	return &Service{Deps: deps, now: time.Now}
}

// SiteInput is the configuration of a new site.
type SiteInput struct {
	Name                   string
	URL                    string
	CheckIntervalSeconds   int
	AccessMethod           domain.AccessMethod
	Credentials            domain.Credentials
	ExpectedStatusCode     int
	ExpectedBodyContains   string
	TimeoutSeconds         int
	FollowRedirects        *bool
	SSLCheckEnabled        *bool
	PerformanceThresholdMs int
	AlertEnabled           bool
	AlertDestination       string
	AlertThreshold         int
	AutoRepairEnabled      bool
}

// SitePatch changes selected fields of a site. Nil fields are kept.
// Non-empty credential fields replace the stored ones.
type SitePatch struct {
	Name                   *string
	URL                    *string
	CheckIntervalSeconds   *int
	AccessMethod           *domain.AccessMethod
	Credentials            *domain.Credentials
	ExpectedStatusCode     *int
	ExpectedBodyContains   *string
	TimeoutSeconds         *int
	FollowRedirects        *bool
	SSLCheckEnabled        *bool
	PerformanceThresholdMs *int
	AlertEnabled           *bool
	AlertDestination       *string
	AlertThreshold         *int
	AutoRepairEnabled      *bool
}

// ListSites returns the principal's sites.
func (s *Service) ListSites(ctx context.Context, p identity.Principal) ([]*domain.MonitoredSite, error) {
	list, err := s.Repo.ListSites(ctx, p.UserID)
	if err != nil {
		return nil, fmt.Errorf("list sites: %w", err)
	}
	return list, nil
}

// GetSite returns one of the principal's sites.
func (s *Service) GetSite(ctx context.Context, p identity.Principal, id string) (*domain.MonitoredSite, error) {
	site, err := s.Repo.GetSite(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get site: %w", err)
	}
	if site.OwnerID != p.UserID {
		return nil, ErrSiteNotFound
	}
	return site, nil
}

// AddSite registers a site within the limits of the principal's plan.
func (s *Service) AddSite(ctx context.Context, p identity.Principal, in SiteInput) (*domain.MonitoredSite, error) {
	limits := s.Plans.Limits(p.Plan)

	count, err := s.Repo.CountSites(ctx, p.UserID)
	if err != nil {
		return nil, fmt.Errorf("count sites: %w", err)
	}
	if plans.SiteQuotaReached(limits, count) {
		return nil, fmt.Errorf("%w (%d)", ErrSiteQuotaReached, limits.MaxSites)
	}

	site := &domain.MonitoredSite{
		OwnerID:              p.UserID,
		PlanTier:             p.Plan,
		Name:                 in.Name,
		URL:                  in.URL,
		CheckIntervalSeconds: in.CheckIntervalSeconds,
		AccessMethod:         in.AccessMethod,
		Credentials:          in.Credentials,
		Expectations: domain.Expectations{
			ExpectedStatusCode:     in.ExpectedStatusCode,
			ExpectedBodyContains:   in.ExpectedBodyContains,
			TimeoutSeconds:         in.TimeoutSeconds,
			FollowRedirects:        boolOr(in.FollowRedirects, true),
			SSLCheckEnabled:        boolOr(in.SSLCheckEnabled, true),
			PerformanceThresholdMs: in.PerformanceThresholdMs,
		},
		Alerting: domain.AlertConfig{
			Enabled:          in.AlertEnabled,
			Destination:      in.AlertDestination,
			FailureThreshold: in.AlertThreshold,
		},
		AutoRepairEnabled: in.AutoRepairEnabled,
	}
	applyDefaults(site, limits)
	if err := checkInterval(site, limits); err != nil {
		return nil, err
	}
	applyPlan(site, limits)

	if err := s.Repo.CreateSite(ctx, site); err != nil {
		return nil, fmt.Errorf("create site: %w", err)
	}
	s.syncPlan(ctx, p)

	s.Audit.Record(ctx, audit.Entry{
		UserID:     p.UserID,
		Action:     audit.ActionSiteCreated,
		TargetType: "site",
		TargetID:   site.ID,
		Details:    map[string]any{"url": site.URL, "access_method": site.AccessMethod},
	})
	return site, nil
}

// UpdateSite applies patch to one of the principal's sites.
func (s *Service) UpdateSite(ctx context.Context, p identity.Principal, id string, patch SitePatch) (*domain.MonitoredSite, error) {
	site, err := s.GetSite(ctx, p, id)
	if err != nil {
		return nil, err
	}
	limits := s.Plans.Limits(p.Plan)

	if err := applyPatch(site, patch); err != nil {
		return nil, err
	}
	site.PlanTier = p.Plan
	applyDefaults(site, limits)
	if patch.CheckIntervalSeconds != nil {
		if err := checkInterval(site, limits); err != nil {
			return nil, err
		}
	}
	applyPlan(site, limits)

	if err := s.Repo.UpdateSite(ctx, site); err != nil {
		return nil, fmt.Errorf("update site: %w", err)
	}
	s.syncPlan(ctx, p)

	s.Audit.Record(ctx, audit.Entry{
		UserID:     p.UserID,
		Action:     audit.ActionSiteUpdated,
		TargetType: "site",
		TargetID:   site.ID,
	})
	return site, nil
}

// DeleteSite removes one of the principal's sites with its history.
func (s *Service) DeleteSite(ctx context.Context, p identity.Principal, id string) error {
	site, err := s.GetSite(ctx, p, id)
	if err != nil {
		return err
	}
	if err := s.Repo.DeleteSite(ctx, site.ID); err != nil {
		return fmt.Errorf("delete site: %w", err)
	}

	s.Audit.Record(ctx, audit.Entry{
		UserID:     p.UserID,
		Action:     audit.ActionSiteDeleted,
		TargetType: "site",
		TargetID:   site.ID,
		Details:    map[string]any{"url": site.URL},
	})
	return nil
}

// TogglePause pauses a running site or resumes a paused one.
func (s *Service) TogglePause(ctx context.Context, p identity.Principal, id string) (*domain.MonitoredSite, error) {
	site, err := s.GetSite(ctx, p, id)
	if err != nil {
		return nil, err
	}

	site.Paused = !site.Paused
	if err := s.Repo.SetPaused(ctx, site.ID, site.Paused); err != nil {
		return nil, fmt.Errorf("set paused: %w", err)
	}

	action := audit.ActionSiteResumed
	if site.Paused {
		action = audit.ActionSitePaused
	}
	s.Audit.Record(ctx, audit.Entry{UserID: p.UserID, Action: action, TargetType: "site", TargetID: site.ID})
	return site, nil
}

// GetHealthHistory returns checks of the last hours, newest first. hours is
// capped by the plan's history retention.
func (s *Service) GetHealthHistory(ctx context.Context, p identity.Principal, id string, hours, limit int) ([]*domain.HealthCheck, error) {
	site, err := s.GetSite(ctx, p, id)
	if err != nil {
		return nil, err
	}

	if hours <= 0 {
		hours = DefaultHistoryHours
	}
	if maxHours := s.Plans.Limits(p.Plan).MaxCheckHistoryDays * 24; maxHours > 0 && hours > maxHours {
		hours = maxHours
	}
	if limit <= 0 {
		limit = DefaultHistoryLimit
	}
	limit = min(limit, MaxHistoryLimit)

	since := s.now().Add(-time.Duration(hours) * time.Hour)
	checks, err := s.Repo.ListHealthChecks(ctx, site.ID, since, limit)
	if err != nil {
		return nil, fmt.Errorf("list health checks: %w", err)
	}
	return checks, nil
}

// GetIncidents lists the principal's incidents. filter.OwnerID is overridden.
func (s *Service) GetIncidents(ctx context.Context, p identity.Principal, filter incidents.Filter) ([]*domain.SiteIncident, error) {
	filter.OwnerID = p.UserID
	list, err := s.Incidents.ListIncidents(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("list incidents: %w", err)
	}
	return list, nil
}

// ResolveIncident closes an active incident of one of the principal's sites.
func (s *Service) ResolveIncident(ctx context.Context, p identity.Principal, id, note string) (*domain.SiteIncident, error) {
	if _, err := s.ownedIncident(ctx, p, id); err != nil {
		return nil, err
	}
	inc, err := s.Manager.Resolve(ctx, id, note)
	if err != nil {
		return nil, err
	}
	s.Audit.Record(ctx, audit.Entry{
		UserID:     p.UserID,
		Action:     audit.ActionIncidentResolved,
		TargetType: "incident",
		TargetID:   id,
		Details:    map[string]any{"note": note},
	})
	return inc, nil
}

// IgnoreIncident dismisses an active incident of one of the principal's sites.
func (s *Service) IgnoreIncident(ctx context.Context, p identity.Principal, id string) (*domain.SiteIncident, error) {
	if _, err := s.ownedIncident(ctx, p, id); err != nil {
		return nil, err
	}
	inc, err := s.Manager.Ignore(ctx, id)
	if err != nil {
		return nil, err
	}
	s.Audit.Record(ctx, audit.Entry{
		UserID:     p.UserID,
		Action:     audit.ActionIncidentIgnored,
		TargetType: "incident",
		TargetID:   id,
	})
	return inc, nil
}

func (s *Service) ownedIncident(ctx context.Context, p identity.Principal, id string) (*domain.SiteIncident, error) {
	inc, err := s.Incidents.GetIncident(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get incident: %w", err)
	}
	if _, err := s.GetSite(ctx, p, inc.SiteID); err != nil {
		if errors.Is(err, ErrSiteNotFound) {
			return nil, incidents.ErrIncidentNotFound
		}
		return nil, err
	}
	return inc, nil
}

// GetRepairLogs lists the principal's repair logs. filter.OwnerID is overridden.
func (s *Service) GetRepairLogs(ctx context.Context, p identity.Principal, filter repair.LogFilter) ([]*domain.RepairLog, error) {
	filter.OwnerID = p.UserID
	logs, err := s.RepairLogs.ListRepairLogs(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("list repair logs: %w", err)
	}
	return logs, nil
}

// TriggerCheck runs the check pipeline now. Manual checks are limited to one
// per minimum interval of the plan.
func (s *Service) TriggerCheck(ctx context.Context, p identity.Principal, id string) (*domain.HealthCheck, error) {
	site, err := s.GetSite(ctx, p, id)
	if err != nil {
		return nil, err
	}

	minInterval := time.Duration(s.Plans.Limits(p.Plan).MinIntervalSeconds) * time.Second
	if site.LastCheckAt != nil && s.now().Sub(*site.LastCheckAt) < minInterval {
		return nil, ErrCheckTooSoon
	}

	hc, err := s.Checker.Check(ctx, site)
	if err != nil {
		return nil, fmt.Errorf("check site: %w", err)
	}
	return hc, nil
}

// RepairInput selects a manual repair.
type RepairInput struct {
	// Action defaults to the action derived from the access method.
	Action        domain.RepairAction
	CustomCommand string
	IncidentID    string
}

// TriggerRepair runs a repair now. Adapter failures are reported on the
// returned log.
func (s *Service) TriggerRepair(ctx context.Context, p identity.Principal, id string, in RepairInput) (*domain.RepairLog, error) {
	site, err := s.GetSite(ctx, p, id)
	if err != nil {
		return nil, err
	}

	if in.Action != "" && !in.Action.IsValid() {
		return nil, ErrInvalidAction
	}
	if in.Action == domain.RepairActionCustomCommand && in.CustomCommand == "" {
		return nil, ErrCommandRequired
	}

	req := repair.Request{
		Site:          site,
		Action:        in.Action,
		CustomCommand: in.CustomCommand,
		Trigger:       domain.RepairTriggerManual,
	}
	if in.IncidentID != "" {
		inc, err := s.Incidents.GetIncident(ctx, in.IncidentID)
		if err != nil {
			return nil, fmt.Errorf("get incident: %w", err)
		}
		if inc.SiteID != site.ID {
			return nil, ErrIncidentMismatch
		}
		req.IncidentID = &inc.ID
	}

	log, err := s.Repairer.Dispatch(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("dispatch repair: %w", err)
	}

	s.Audit.Record(ctx, audit.Entry{
		UserID:     p.UserID,
		Action:     audit.ActionRepairTriggered,
		TargetType: "site",
		TargetID:   site.ID,
		Details:    map[string]any{"repair_id": log.ID, "action": log.Action, "status": log.Status},
	})
	return log, nil
}

// ConnectionTest is the result of TestConnection.
type ConnectionTest struct {
	Probe  ProbeResult  `json:"probe"`
	Access AccessResult `json:"access"`
}

// ProbeResult is an unrecorded probe verdict.
type ProbeResult struct {
	Status         domain.HealthStatus `json:"status"`
	HTTPStatusCode *int                `json:"http_status_code"`
	ResponseTimeMs int                 `json:"response_time_ms"`
	SSLValid       *bool               `json:"ssl_valid"`
	SSLExpiresAt   *time.Time          `json:"ssl_expires_at"`
	SSLIssuer      string              `json:"ssl_issuer,omitempty"`
	BodyMatched    *bool               `json:"body_matched"`
	ErrorType      domain.ErrorType    `json:"error_type,omitempty"`
	ErrorMessage   string              `json:"error_message,omitempty"`
}

// AccessResult reports whether the repair credentials work.
type AccessResult struct {
	Method    domain.AccessMethod `json:"method"`
	Supported bool                `json:"supported"`
	OK        bool                `json:"ok"`
	Output    string              `json:"output,omitempty"`
}

// TestConnection probes the site and verifies its repair credentials without
// recording anything or touching live state.
func (s *Service) TestConnection(ctx context.Context, p identity.Principal, id string) (*ConnectionTest, error) {
	site, err := s.GetSite(ctx, p, id)
	if err != nil {
		return nil, err
	}

	outcome := s.Prober.Probe(ctx, probe.TargetFor(site))
	hc := probe.HealthCheck(site.ID, outcome, probe.Classify(outcome, site.Expectations))

	result := &ConnectionTest{
		Probe: ProbeResult{
			Status:         hc.Status,
			HTTPStatusCode: hc.HTTPStatusCode,
			ResponseTimeMs: hc.ResponseTimeMs,
			SSLValid:       hc.SSLValid,
			SSLExpiresAt:   hc.SSLExpiresAt,
			SSLIssuer:      hc.SSLIssuer,
			BodyMatched:    hc.BodyMatched,
			ErrorType:      hc.ErrorType,
			ErrorMessage:   hc.ErrorMessage,
		},
		Access: AccessResult{Method: site.AccessMethod},
	}
	if s.Repairer != nil {
		out, ok, supported := s.Repairer.Verify(ctx, site)
		result.Access.Supported = supported
		result.Access.OK = ok
		result.Access.Output = out
	}
	return result, nil
}

// GetDashboardStats summarizes the principal's sites.
func (s *Service) GetDashboardStats(ctx context.Context, p identity.Principal) (DashboardStats, error) {
	stats, err := s.Repo.DashboardStats(ctx, p.UserID, s.now().Add(-24*time.Hour))
	if err != nil {
		return DashboardStats{}, fmt.Errorf("dashboard stats: %w", err)
	}
	return stats, nil
}

// syncPlan stamps the principal's plan on all their sites. Failures only
// delay plan changes reaching retention and auto-repair, so they are logged.
func (s *Service) syncPlan(ctx context.Context, p identity.Principal) {
	if err := s.Repo.SyncOwnerPlan(ctx, p.UserID, p.Plan); err != nil {
		ctxlog.FromContext(ctx).Warn("failed to sync owner plan", "error", err)
	}
}

func applyPatch(site *domain.MonitoredSite, patch SitePatch) error {
	set(&site.Name, patch.Name)
	set(&site.URL, patch.URL)
	set(&site.CheckIntervalSeconds, patch.CheckIntervalSeconds)
	set(&site.AccessMethod, patch.AccessMethod)
	set(&site.Expectations.ExpectedStatusCode, patch.ExpectedStatusCode)
	set(&site.Expectations.ExpectedBodyContains, patch.ExpectedBodyContains)
	set(&site.Expectations.TimeoutSeconds, patch.TimeoutSeconds)
	set(&site.Expectations.FollowRedirects, patch.FollowRedirects)
	set(&site.Expectations.SSLCheckEnabled, patch.SSLCheckEnabled)
	set(&site.Expectations.PerformanceThresholdMs, patch.PerformanceThresholdMs)
	set(&site.Alerting.Enabled, patch.AlertEnabled)
	set(&site.Alerting.Destination, patch.AlertDestination)
	set(&site.Alerting.FailureThreshold, patch.AlertThreshold)
	set(&site.AutoRepairEnabled, patch.AutoRepairEnabled)

	if patch.Credentials != nil {
		if err := mergo.Merge(&site.Credentials, *patch.Credentials, mergo.WithOverride); err != nil {
			return fmt.Errorf("merge credentials: %w", err)
		}
	}
	return nil
}

func set[T any](dst *T, v *T) {
	if v != nil {
		*dst = *v
	}
}

func boolOr(v *bool, def bool) bool {
	if v == nil {
		return def
	}
	return *v
}

func applyDefaults(site *domain.MonitoredSite, limits domain.PlanLimits) {
	if site.CheckIntervalSeconds == 0 {
		site.CheckIntervalSeconds = max(domain.DefaultCheckIntervalSeconds, limits.MinIntervalSeconds)
	}
	if site.AccessMethod == "" {
		site.AccessMethod = domain.AccessMethodNone
	}
	if site.Expectations.ExpectedStatusCode == 0 {
		site.Expectations.ExpectedStatusCode = domain.DefaultExpectedStatusCode
	}
	if site.Expectations.TimeoutSeconds == 0 {
		site.Expectations.TimeoutSeconds = domain.DefaultTimeoutSeconds
	}
	if site.Alerting.FailureThreshold == 0 {
		site.Alerting.FailureThreshold = domain.DefaultFailureThreshold
	}
}

func checkInterval(site *domain.MonitoredSite, limits domain.PlanLimits) error {
	if site.CheckIntervalSeconds < limits.MinIntervalSeconds {
		return fmt.Errorf("%w (%ds)", ErrIntervalTooShort, limits.MinIntervalSeconds)
	}
	return nil
}

// applyPlan switches off features the plan does not include.
func applyPlan(site *domain.MonitoredSite, limits domain.PlanLimits) {
	if !limits.SSLCheckEnabled {
		site.Expectations.SSLCheckEnabled = false
	}
	if !limits.PerformanceMetrics {
		site.Expectations.PerformanceThresholdMs = 0
	}
	if !limits.AutoRepairEnabled {
		site.AutoRepairEnabled = false
	}
}
