package monitor

import (
	"context"
	"time"

	"github.com/leego972/sitewarden/internal/domain"
)

// Repository is the storage used by the check pipeline and scheduler.
type Repository interface {
	// ListDueSites returns unpaused sites whose interval has elapsed at now,
	// never-checked and least recently checked first.
	ListDueSites(ctx context.Context, now time.Time, limit int) ([]*domain.MonitoredSite, error)

	// RecordCheck appends hc and updates the site's live state in one
	// transaction. The failure counter is updated in place so concurrent
	// checks never lose increments.
	RecordCheck(ctx context.Context, hc *domain.HealthCheck) (domain.SiteState, error)

	// PruneHistory deletes health checks and repair logs older than before
	// for sites on tier.
	PruneHistory(ctx context.Context, tier domain.PlanTier, before time.Time) (PruneResult, error)
}

// PruneResult counts deleted history rows.
type PruneResult struct {
	HealthChecks int64
	RepairLogs   int64
}
