package sites

import (
	"context"
	"time"

	"github.com/leego972/sitewarden/internal/domain"
)

// DashboardStats summarizes an owner's sites.
type DashboardStats struct {
	TotalSites    int `json:"total_sites"`
	Healthy       int `json:"healthy"`
	Degraded      int `json:"degraded"`
	Down          int `json:"down"`
	Error         int `json:"error"`
	Unchecked     int `json:"unchecked"`
	Paused        int `json:"paused"`
	OpenIncidents int `json:"open_incidents"`

	// The remaining fields cover the last 24 hours.
	Checks            int     `json:"checks_24h"`
	UptimePercent     float64 `json:"uptime_percent_24h"`
	AvgResponseMs     int     `json:"avg_response_ms_24h"`
	Repairs           int     `json:"repairs_24h"`
	SuccessfulRepairs int     `json:"successful_repairs_24h"`
}

// Repository defines the interface for site data access.
type Repository interface {
	ListSites(ctx context.Context, ownerID string) ([]*domain.MonitoredSite, error)
	// GetSite returns ErrSiteNotFound when id does not exist.
	GetSite(ctx context.Context, id string) (*domain.MonitoredSite, error)
	CountSites(ctx context.Context, ownerID string) (int, error)
	CreateSite(ctx context.Context, site *domain.MonitoredSite) error
	// UpdateSite stores the configuration fields of site. Live state is
	// left untouched.
	UpdateSite(ctx context.Context, site *domain.MonitoredSite) error
	DeleteSite(ctx context.Context, id string) error
	SetPaused(ctx context.Context, id string, paused bool) error
	// SyncOwnerPlan stamps tier on every site of ownerID.
	SyncOwnerPlan(ctx context.Context, ownerID string, tier domain.PlanTier) error
	ListHealthChecks(ctx context.Context, siteID string, since time.Time, limit int) ([]*domain.HealthCheck, error)
	DashboardStats(ctx context.Context, ownerID string, since time.Time) (DashboardStats, error)
}
