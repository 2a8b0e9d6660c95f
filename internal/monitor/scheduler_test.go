package monitor

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/leego972/sitewarden/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sites(n int) []*domain.MonitoredSite {
	out := make([]*domain.MonitoredSite, 0, n)
	for i := 0; i < n; i++ {
		out = append(out, &domain.MonitoredSite{ID: fmt.Sprintf("site-%d", i)})
	}
	return out
}

func TestScheduler_TickChecksDueSites(t *testing.T) {
	repo := newMockRepository(sites(3)...)
	checker := &fakeChecker{}
	s := NewScheduler(SchedulerConfig{BatchSize: 10, Concurrency: 2}, repo, checker)

	res, err := s.Tick(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 3, res.Due)
	assert.Equal(t, 0, res.Failed)
	assert.ElementsMatch(t, []string{"site-0", "site-1", "site-2"}, checker.Checked())
}

func TestScheduler_BatchSizeCapsSelection(t *testing.T) {
	repo := newMockRepository(sites(5)...)
	checker := &fakeChecker{}
	s := NewScheduler(SchedulerConfig{BatchSize: 2, Concurrency: 2}, repo, checker)

	res, err := s.Tick(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 2, res.Due)
	assert.Equal(t, []int{2}, repo.listLimits)
	assert.Len(t, checker.Checked(), 2)
}

func TestScheduler_ConcurrencyLimit(t *testing.T) {
	repo := newMockRepository(sites(6)...)
	checker := &fakeChecker{block: make(chan struct{})}
	s := NewScheduler(SchedulerConfig{BatchSize: 10, Concurrency: 2}, repo, checker)

	done := make(chan struct{})
	go func() {
		_, _ = s.Tick(context.Background())
		close(done)
	}()

	for i := 0; i < 6; i++ {
		checker.block <- struct{}{}
	}
	<-done

	assert.Len(t, checker.Checked(), 6)
	assert.LessOrEqual(t, checker.peak, 2)
}

func TestScheduler_SiteFailuresAreIsolated(t *testing.T) {
	repo := newMockRepository(sites(4)...)
	checker := &fakeChecker{
		failFor: map[string]error{"site-1": errors.New("db write failed")},
		panicOn: "site-2",
	}
	s := NewScheduler(SchedulerConfig{BatchSize: 10, Concurrency: 4}, repo, checker)

	res, err := s.Tick(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 4, res.Due)
	assert.Equal(t, 2, res.Failed)
	assert.ElementsMatch(t, []string{"site-0", "site-1", "site-2", "site-3"}, checker.Checked())
}

func TestScheduler_ListFailureDoesNotStopLoop(t *testing.T) {
	clock := newFakeClock(time.Now())
	repo := newMockRepository(sites(1)...)
	repo.listErr = errors.New("connection refused")
	checker := &fakeChecker{}

	s := NewScheduler(SchedulerConfig{TickInterval: time.Second}, repo, checker, WithClock(clock))
	s.Start(context.Background())

	// each Tick returns once the loop took the tick, so the previous round has finished
	clock.Tick()
	clock.Tick()
	assert.Empty(t, checker.Checked())

	repo.mu.Lock()
	repo.listErr = nil
	repo.mu.Unlock()

	clock.Tick()
	clock.Tick()
	s.Stop()

	assert.NotEmpty(t, checker.Checked(), "loop kept running after a failed tick")
	assert.True(t, clock.ticker.stopped)
}

func TestScheduler_StopIsIdempotent(t *testing.T) {
	s := NewScheduler(SchedulerConfig{}, newMockRepository(), &fakeChecker{}, WithClock(newFakeClock(time.Now())))
	s.Start(context.Background())

	s.Stop()
	s.Stop()
}

func TestScheduler_LeaderElection(t *testing.T) {
	repo := newMockRepository(sites(2)...)
	checker := &fakeChecker{}
	elector := &fakeElector{}
	s := NewScheduler(SchedulerConfig{}, repo, checker, WithLeaderElector(elector))

	res, err := s.Tick(context.Background())
	require.NoError(t, err)
	assert.True(t, res.Skipped)
	assert.Empty(t, checker.Checked())

	elector.leading = true
	res, err = s.Tick(context.Background())
	require.NoError(t, err)
	assert.False(t, res.Skipped)
	assert.Len(t, checker.Checked(), 2)

	elector.err = errors.New("lock query failed")
	_, err = s.Tick(context.Background())
	require.Error(t, err)

	s.Stop()
	assert.True(t, elector.released)
}

func TestScheduler_Retention(t *testing.T) {
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	clock := newFakeClock(now)
	repo := newMockRepository()
	plans := staticPlans{
		domain.PlanFree: {MaxCheckHistoryDays: 7},
		domain.PlanPro:  {MaxCheckHistoryDays: 90},
	}

	s := NewScheduler(SchedulerConfig{RetentionInterval: time.Hour}, repo, &fakeChecker{},
		WithClock(clock), WithRetention(plans))

	_, err := s.Tick(context.Background())
	require.NoError(t, err)

	assert.Equal(t, now.AddDate(0, 0, -7), repo.prunes[domain.PlanFree])
	assert.Equal(t, now.AddDate(0, 0, -90), repo.prunes[domain.PlanPro])
	assert.NotContains(t, repo.prunes, domain.PlanStarter, "tiers without a window are skipped")

	delete(repo.prunes, domain.PlanFree)
	clock.Advance(10 * time.Minute)
	_, err = s.Tick(context.Background())
	require.NoError(t, err)
	assert.NotContains(t, repo.prunes, domain.PlanFree, "pruning waits for the retention interval")

	clock.Advance(time.Hour)
	_, err = s.Tick(context.Background())
	require.NoError(t, err)
	assert.Contains(t, repo.prunes, domain.PlanFree)
}

func TestScheduler_DueSelection(t *testing.T) {
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	at := func(d time.Duration) *time.Time {
		ts := now.Add(-d)
		return &ts
	}
	site := func(id string, last *time.Time, paused bool) *domain.MonitoredSite {
		return &domain.MonitoredSite{ID: id, CheckIntervalSeconds: 60, LastCheckAt: last, Paused: paused}
	}

	repo := newMockRepository(
		site("never-checked", nil, false),
		site("paused-never-checked", nil, true),
		site("paused-stale", at(time.Hour), true),
		site("one-second-early", at(59*time.Second), false),
		site("exactly-due", at(60*time.Second), false),
		site("stale", at(time.Hour), false),
	)
	clock := newFakeClock(now)
	checker := &fakeChecker{}
	s := NewScheduler(SchedulerConfig{BatchSize: 10, Concurrency: 2}, repo, checker, WithClock(clock))

	res, err := s.Tick(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, res.Due)
	assert.ElementsMatch(t, []string{"never-checked", "exactly-due", "stale"}, checker.Checked())

	clock.Advance(time.Second)
	checker = &fakeChecker{}
	s = NewScheduler(SchedulerConfig{BatchSize: 10, Concurrency: 2}, repo, checker, WithClock(clock))

	_, err = s.Tick(context.Background())
	require.NoError(t, err)
	assert.Contains(t, checker.Checked(), "one-second-early")
	assert.NotContains(t, checker.Checked(), "paused-never-checked")
	assert.NotContains(t, checker.Checked(), "paused-stale")
}

func TestScheduler_BatchTakesOldestFirst(t *testing.T) {
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	minutesAgo := func(n int) *time.Time {
		ts := now.Add(-time.Duration(n) * time.Minute)
		return &ts
	}
	repo := newMockRepository(
		&domain.MonitoredSite{ID: "checked-5m-ago", CheckIntervalSeconds: 60, LastCheckAt: minutesAgo(5)},
		&domain.MonitoredSite{ID: "checked-30m-ago", CheckIntervalSeconds: 60, LastCheckAt: minutesAgo(30)},
		&domain.MonitoredSite{ID: "never-checked", CheckIntervalSeconds: 60},
		&domain.MonitoredSite{ID: "checked-10m-ago", CheckIntervalSeconds: 60, LastCheckAt: minutesAgo(10)},
	)
	checker := &fakeChecker{}
	s := NewScheduler(SchedulerConfig{BatchSize: 2, Concurrency: 2}, repo, checker, WithClock(newFakeClock(now)))

	res, err := s.Tick(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 2, res.Due)
	assert.ElementsMatch(t, []string{"never-checked", "checked-30m-ago"}, checker.Checked())
}
