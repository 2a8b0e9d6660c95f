package monitor

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"
	"time"

	"github.com/leego972/sitewarden/internal/domain"
	"golang.org/x/sync/errgroup"
)

// SchedulerConfig configures the scheduler.
type SchedulerConfig struct {
	TickInterval      time.Duration
	BatchSize         int
	Concurrency       int
	RetentionInterval time.Duration
}

// DefaultSchedulerConfig returns the default scheduler configuration.
func DefaultSchedulerConfig() SchedulerConfig {
	return SchedulerConfig{
		TickInterval:      15 * time.Second,
		BatchSize:         50,
		Concurrency:       10,
		RetentionInterval: time.Hour,
	}
}

// SiteChecker runs the check pipeline for one site.
type SiteChecker interface {
	Check(ctx context.Context, site *domain.MonitoredSite) (*domain.HealthCheck, error)
}

// LeaderElector decides whether this process may run ticks.
type LeaderElector interface {
	TryLead(ctx context.Context) (bool, error)
	Release(ctx context.Context)
}

// PlanLimits resolves the history window for a plan tier.
type PlanLimits interface {
	Limits(tier domain.PlanTier) domain.PlanLimits
}

// SchedulerOption customizes a Scheduler.
type SchedulerOption func(*Scheduler)

// WithClock replaces the wall clock.
func WithClock(c Clock) SchedulerOption {
	return func(s *Scheduler) { s.clock = c }
}

// WithLeaderElector restricts ticking to the elected instance.
func WithLeaderElector(e LeaderElector) SchedulerOption {
	return func(s *Scheduler) { s.elector = e }
}

// WithRetention enables history pruning using plan history windows.
func WithRetention(p PlanLimits) SchedulerOption {
	return func(s *Scheduler) { s.plans = p }
}

// TickResult summarizes one tick.
type TickResult struct {
	Skipped bool
	Due     int
	Failed  int
}

// Scheduler periodically checks every due site.
type Scheduler struct {
	config  SchedulerConfig
	repo    Repository
	checker SiteChecker
	clock   Clock
	elector LeaderElector
	plans   PlanLimits

	lastPrune time.Time

	stopCh   chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// NewScheduler creates a scheduler. Zero config values fall back to defaults.
func NewScheduler(config SchedulerConfig, repo Repository, checker SiteChecker, opts ...SchedulerOption) *Scheduler {
	def := DefaultSchedulerConfig()
	if config.TickInterval <= 0 {
		config.TickInterval = def.TickInterval
	}
	if config.BatchSize <= 0 {
		config.BatchSize = def.BatchSize
	}
	if config.Concurrency <= 0 {
		config.Concurrency = def.Concurrency
	}
	if config.RetentionInterval <= 0 {
		config.RetentionInterval = def.RetentionInterval
	}

	s := &Scheduler{
		config:  config,
		repo:    repo,
		checker: checker,
		clock:   RealClock{},
		stopCh:  make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Start runs the tick loop in the background until Stop or ctx cancellation.
func (s *Scheduler) Start(ctx context.Context) {
	slog.Info("starting scheduler",
		"tick_interval", s.config.TickInterval,
		"batch_size", s.config.BatchSize,
		"concurrency", s.config.Concurrency,
		"leader_election", s.elector != nil,
	)

	s.wg.Add(1)
	go s.run(ctx)
}

// Stop stops the loop and waits for the running tick to finish.
func (s *Scheduler) Stop() {
	s.stopOnce.Do(func() { close(s.stopCh) })
	s.wg.Wait()

	if s.elector != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		s.elector.Release(ctx)
		recordLeader(false)
	}
	slog.Info("scheduler stopped")
}

func (s *Scheduler) run(ctx context.Context) {
	defer s.wg.Done()

	ticker := s.clock.NewTicker(s.config.TickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-s.stopCh:
			return
		case <-ticker.C():
			if _, err := s.Tick(ctx); err != nil {
				slog.Error("scheduler tick failed", "error", err)
			}
		}
	}
}

// Tick runs one scheduling round. Per-site failures are logged and counted;
// the returned error covers only the round itself.
func (s *Scheduler) Tick(ctx context.Context) (TickResult, error) {
	if s.elector != nil {
		leading, err := s.elector.TryLead(ctx)
		recordLeader(leading)
		if err != nil {
			return TickResult{Skipped: true}, fmt.Errorf("leader election: %w", err)
		}
		if !leading {
			slog.Debug("not the scheduler leader, skipping tick")
			return TickResult{Skipped: true}, nil
		}
	}

	start := s.clock.Now()
	s.maybePrune(ctx, start)

	sites, err := s.repo.ListDueSites(ctx, start, s.config.BatchSize)
	if err != nil {
		return TickResult{}, fmt.Errorf("list due sites: %w", err)
	}

	result := TickResult{Due: len(sites)}
	if len(sites) == 0 {
		recordTick(s.clock.Now().Sub(start), 0)
		return result, nil
	}

	var (
		mu sync.Mutex
		g  errgroup.Group
	)
	g.SetLimit(s.config.Concurrency)

	for _, site := range sites {
		g.Go(func() error {
			if err := s.checkSite(ctx, site); err != nil {
				mu.Lock()
				result.Failed++
				mu.Unlock()
			}
			return nil
		})
	}
	_ = g.Wait()

	recordTick(s.clock.Now().Sub(start), len(sites))
	slog.Debug("scheduler tick complete", "due", result.Due, "failed", result.Failed)
	return result, nil
}

func (s *Scheduler) checkSite(ctx context.Context, site *domain.MonitoredSite) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
			slog.Error("check panicked",
				"site_id", site.ID,
				"panic", r,
				"stack", string(debug.Stack()),
			)
			recordSiteFailure()
		}
	}()

	if _, err := s.checker.Check(ctx, site); err != nil {
		slog.Error("site check failed", "site_id", site.ID, "error", err)
		recordSiteFailure()
		return err
	}
	return nil
}

func (s *Scheduler) maybePrune(ctx context.Context, now time.Time) {
	if s.plans == nil || now.Sub(s.lastPrune) < s.config.RetentionInterval {
		return
	}
	s.lastPrune = now

	for _, tier := range []domain.PlanTier{domain.PlanFree, domain.PlanStarter, domain.PlanPro, domain.PlanEnterprise} {
		days := s.plans.Limits(tier).MaxCheckHistoryDays
		if days <= 0 {
			continue
		}
		before := now.AddDate(0, 0, -days)
		res, err := s.repo.PruneHistory(ctx, tier, before)
		if err != nil {
			slog.Error("failed to prune history", "tier", tier, "error", err)
			continue
		}
		recordPruned(res)
		if res.HealthChecks > 0 || res.RepairLogs > 0 {
			slog.Info("pruned history",
				"tier", tier,
				"before", before,
				"health_checks", res.HealthChecks,
				"repair_logs", res.RepairLogs,
			)
		}
	}
}
