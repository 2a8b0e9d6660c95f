package monitor

import (
	"context"
	"slices"
	"sync"
	"time"

	"github.com/leego972/sitewarden/internal/domain"
	"github.com/leego972/sitewarden/internal/probe"
)

// mockRepository implements Repository in memory.
type mockRepository struct {
	mu         sync.Mutex
	sites      []*domain.MonitoredSite
	listErr    error
	recordErr  error
	checks     []*domain.HealthCheck
	failures   map[string]int
	prunes     map[domain.PlanTier]time.Time
	listLimits []int
}

func newMockRepository(sites ...*domain.MonitoredSite) *mockRepository {
	return &mockRepository{
		sites:    sites,
		failures: make(map[string]int),
		prunes:   make(map[domain.PlanTier]time.Time),
	}
}

// ListDueSites mirrors the SQL: unpaused due sites, never-checked first, then
// oldest check, capped at limit.
func (m *mockRepository) ListDueSites(_ context.Context, now time.Time, limit int) ([]*domain.MonitoredSite, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.listLimits = append(m.listLimits, limit)
	if m.listErr != nil {
		return nil, m.listErr
	}

	var due []*domain.MonitoredSite
	for _, site := range m.sites {
		if site.IsDue(now) {
			due = append(due, site)
		}
	}
	slices.SortStableFunc(due, func(a, b *domain.MonitoredSite) int {
		switch {
		case a.LastCheckAt == nil && b.LastCheckAt == nil:
			return 0
		case a.LastCheckAt == nil:
			return -1
		case b.LastCheckAt == nil:
			return 1
		}
		return a.LastCheckAt.Compare(*b.LastCheckAt)
	})
	if len(due) > limit {
		return due[:limit], nil
	}
	return due, nil
}

func (m *mockRepository) RecordCheck(_ context.Context, hc *domain.HealthCheck) (domain.SiteState, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.recordErr != nil {
		return domain.SiteState{}, m.recordErr
	}
	hc.ID = "check-" + hc.SiteID
	m.checks = append(m.checks, hc)
	if hc.IsHealthy() {
		m.failures[hc.SiteID] = 0
	} else {
		m.failures[hc.SiteID]++
	}
	return domain.SiteState{
		LastCheckAt:         hc.CheckedAt,
		LastStatus:          hc.Status,
		LastResponseTimeMs:  hc.ResponseTimeMs,
		ConsecutiveFailures: m.failures[hc.SiteID],
	}, nil
}

func (m *mockRepository) PruneHistory(_ context.Context, tier domain.PlanTier, before time.Time) (PruneResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.prunes[tier] = before
	return PruneResult{HealthChecks: 1}, nil
}

// scriptedProber returns outcomes in order, repeating the last one.
type scriptedProber struct {
	mu       sync.Mutex
	outcomes []probe.Outcome
	targets  []probe.Target
}

func (p *scriptedProber) Probe(_ context.Context, target probe.Target) probe.Outcome {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.targets = append(p.targets, target)
	out := p.outcomes[0]
	if len(p.outcomes) > 1 {
		p.outcomes = p.outcomes[1:]
	}
	return out
}

type evaluation struct {
	siteID string
	status domain.HealthStatus
	state  domain.SiteState
}

// recordingEvaluator captures Evaluate calls.
type recordingEvaluator struct {
	mu    sync.Mutex
	calls []evaluation
	err   error
}

func (e *recordingEvaluator) Evaluate(_ context.Context, site *domain.MonitoredSite, hc *domain.HealthCheck, state domain.SiteState) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.calls = append(e.calls, evaluation{siteID: site.ID, status: hc.Status, state: state})
	return e.err
}

// fakeClock is a manually driven Clock.
type fakeClock struct {
	mu     sync.Mutex
	now    time.Time
	ticker *fakeTicker
}

func newFakeClock(now time.Time) *fakeClock {
	return &fakeClock{now: now, ticker: &fakeTicker{ch: make(chan time.Time)}}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func (c *fakeClock) NewTicker(time.Duration) Ticker {
	return c.ticker
}

// Tick delivers a tick and blocks until the scheduler receives it.
func (c *fakeClock) Tick() {
	c.ticker.ch <- c.Now()
}

type fakeTicker struct {
	ch      chan time.Time
	stopped bool
}

func (t *fakeTicker) C() <-chan time.Time { return t.ch }
func (t *fakeTicker) Stop()               { t.stopped = true }

// fakeChecker records checked sites.
type fakeChecker struct {
	mu      sync.Mutex
	checked []string
	failFor map[string]error
	panicOn string
	block   chan struct{}
	active  int
	peak    int
}

func (c *fakeChecker) Check(_ context.Context, site *domain.MonitoredSite) (*domain.HealthCheck, error) {
	c.mu.Lock()
	c.active++
	if c.active > c.peak {
		c.peak = c.active
	}
	c.mu.Unlock()

	defer func() {
		c.mu.Lock()
		c.active--
		c.checked = append(c.checked, site.ID)
		c.mu.Unlock()
	}()

	if c.block != nil {
		<-c.block
	}
	if site.ID == c.panicOn {
		panic("boom")
	}
	if err := c.failFor[site.ID]; err != nil {
		return nil, err
	}
	return &domain.HealthCheck{SiteID: site.ID, Status: domain.HealthStatusHealthy}, nil
}

func (c *fakeChecker) Checked() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.checked...)
}

type fakeElector struct {
	mu       sync.Mutex
	leading  bool
	err      error
	released bool
}

func (e *fakeElector) TryLead(context.Context) (bool, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.leading, e.err
}

func (e *fakeElector) Release(context.Context) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.released = true
}

type staticPlans map[domain.PlanTier]domain.PlanLimits

func (p staticPlans) Limits(tier domain.PlanTier) domain.PlanLimits {
	return p[tier]
}
