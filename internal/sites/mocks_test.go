package sites

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/leego972/sitewarden/internal/audit"
	"github.com/leego972/sitewarden/internal/domain"
	"github.com/leego972/sitewarden/internal/incidents"
	"github.com/leego972/sitewarden/internal/probe"
	"github.com/leego972/sitewarden/internal/repair"
)

type mockRepository struct {
	mu      sync.Mutex
	sites   map[string]*domain.MonitoredSite
	checks  []*domain.HealthCheck
	synced  map[string]domain.PlanTier
	since   time.Time
	limit   int
	nextID  int
	writes  int
	syncErr error
}

func newMockRepository() *mockRepository {
	return &mockRepository{
		sites:  make(map[string]*domain.MonitoredSite),
		synced: make(map[string]domain.PlanTier),
	}
}

func (m *mockRepository) add(site *domain.MonitoredSite) *domain.MonitoredSite {
	m.mu.Lock()
	defer m.mu.Unlock()
	if site.ID == "" {
		m.nextID++
		site.ID = fmt.Sprintf("site-%d", m.nextID)
	}
	c := *site
	m.sites[site.ID] = &c
	return site
}

func (m *mockRepository) ListSites(_ context.Context, ownerID string) ([]*domain.MonitoredSite, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*domain.MonitoredSite
	for _, s := range m.sites {
		if s.OwnerID == ownerID {
			c := *s
			out = append(out, &c)
		}
	}
	return out, nil
}

func (m *mockRepository) GetSite(_ context.Context, id string) (*domain.MonitoredSite, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sites[id]
	if !ok {
		return nil, ErrSiteNotFound
	}
	c := *s
	return &c, nil
}

func (m *mockRepository) CountSites(ctx context.Context, ownerID string) (int, error) {
	list, _ := m.ListSites(ctx, ownerID)
	return len(list), nil
}

func (m *mockRepository) CreateSite(_ context.Context, site *domain.MonitoredSite) error {
	m.writes++
	m.add(site)
	return nil
}

func (m *mockRepository) UpdateSite(_ context.Context, site *domain.MonitoredSite) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.writes++
	c := *site
	m.sites[site.ID] = &c
	return nil
}

func (m *mockRepository) DeleteSite(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.writes++
	delete(m.sites, id)
	return nil
}

func (m *mockRepository) SetPaused(_ context.Context, id string, paused bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.writes++
	m.sites[id].Paused = paused
	return nil
}

func (m *mockRepository) SyncOwnerPlan(_ context.Context, ownerID string, tier domain.PlanTier) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.syncErr != nil {
		return m.syncErr
	}
	m.synced[ownerID] = tier
	return nil
}

func (m *mockRepository) ListHealthChecks(_ context.Context, _ string, since time.Time, limit int) ([]*domain.HealthCheck, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.since = since
	m.limit = limit
	return m.checks, nil
}

func (m *mockRepository) DashboardStats(_ context.Context, ownerID string, _ time.Time) (DashboardStats, error) {
	list, _ := m.ListSites(context.Background(), ownerID)
	return DashboardStats{TotalSites: len(list)}, nil
}

type mockIncidents struct {
	incidents map[string]*domain.SiteIncident
	filter    incidents.Filter
	resolved  []string
	ignored   []string
	note      string
}

func newMockIncidents(list ...*domain.SiteIncident) *mockIncidents {
	m := &mockIncidents{incidents: make(map[string]*domain.SiteIncident)}
	for _, inc := range list {
		m.incidents[inc.ID] = inc
	}
	return m
}

func (m *mockIncidents) GetIncident(_ context.Context, id string) (*domain.SiteIncident, error) {
	inc, ok := m.incidents[id]
	if !ok {
		return nil, incidents.ErrIncidentNotFound
	}
	return inc, nil
}

func (m *mockIncidents) ListIncidents(_ context.Context, filter incidents.Filter) ([]*domain.SiteIncident, error) {
	m.filter = filter
	return []*domain.SiteIncident{}, nil
}

func (m *mockIncidents) Resolve(_ context.Context, id, note string) (*domain.SiteIncident, error) {
	inc := m.incidents[id]
	if !inc.Status.IsActive() {
		return nil, incidents.ErrIncidentClosed
	}
	m.resolved = append(m.resolved, id)
	m.note = note
	inc.Status = domain.IncidentStatusResolved
	return inc, nil
}

func (m *mockIncidents) Ignore(_ context.Context, id string) (*domain.SiteIncident, error) {
	inc := m.incidents[id]
	m.ignored = append(m.ignored, id)
	inc.Status = domain.IncidentStatusIgnored
	return inc, nil
}

type mockRepairLogs struct {
	filter repair.LogFilter
}

func (m *mockRepairLogs) ListRepairLogs(_ context.Context, filter repair.LogFilter) ([]*domain.RepairLog, error) {
	m.filter = filter
	return []*domain.RepairLog{}, nil
}

type mockRepairer struct {
	requests []repair.Request
	verifies int
	output   string
	ok       bool
}

func (m *mockRepairer) Dispatch(_ context.Context, req repair.Request) (*domain.RepairLog, error) {
	m.requests = append(m.requests, req)
	action := req.Action
	if action == "" {
		action = domain.AutoRepairAction(req.Site.AccessMethod)
	}
	return &domain.RepairLog{
		ID:         fmt.Sprintf("log-%d", len(m.requests)),
		SiteID:     req.Site.ID,
		IncidentID: req.IncidentID,
		Action:     action,
		Trigger:    req.Trigger,
		Status:     domain.RepairStatusSuccess,
	}, nil
}

func (m *mockRepairer) Verify(_ context.Context, _ *domain.MonitoredSite) (string, bool, bool) {
	m.verifies++
	return m.output, m.ok, true
}

type mockChecker struct {
	calls int
}

func (m *mockChecker) Check(_ context.Context, site *domain.MonitoredSite) (*domain.HealthCheck, error) {
	m.calls++
	return &domain.HealthCheck{ID: "check-1", SiteID: site.ID, Status: domain.HealthStatusHealthy}, nil
}

type mockProber struct {
	outcome probe.Outcome
	targets []probe.Target
}

func (m *mockProber) Probe(_ context.Context, target probe.Target) probe.Outcome {
	m.targets = append(m.targets, target)
	return m.outcome
}

type recordingSink struct {
	entries []audit.Entry
}

func (s *recordingSink) Record(_ context.Context, e audit.Entry) {
	s.entries = append(s.entries, e)
}

func (s *recordingSink) actions() []audit.Action {
	out := make([]audit.Action, 0, len(s.entries))
	for _, e := range s.entries {
		out = append(out, e.Action)
	}
	return out
}
