// Package postgres provides PostgreSQL storage for sites and their history.
package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/leego972/sitewarden/internal/domain"
	"github.com/leego972/sitewarden/internal/pkg/postgres"
	"github.com/leego972/sitewarden/internal/sites"
)

const healthCheckColumns = `id, site_id, checked_at, status, http_status_code, response_time_ms,
	ssl_valid, ssl_expires_at, ssl_issuer, body_matched, error_type, error_message`

// Repository implements sites.Repository.
type Repository struct {
	db *pgxpool.Pool
}

// NewRepository creates a new PostgreSQL repository.
func NewRepository(db *pgxpool.Pool) *Repository {
	return &Repository{db: db}
}

// ListSites returns the owner's sites, oldest first.
func (r *Repository) ListSites(ctx context.Context, ownerID string) ([]*domain.MonitoredSite, error) {
	query := `SELECT ` + postgres.SiteColumns + ` FROM sites WHERE owner_id = $1 ORDER BY created_at, id`
	rows, err := r.db.Query(ctx, query, ownerID)
	if err != nil {
		return nil, postgres.WrapError("list sites", err)
	}
	list, err := postgres.ScanSites(rows)
	if err != nil {
		return nil, postgres.WrapError("list sites", err)
	}
	if list == nil {
		list = []*domain.MonitoredSite{}
	}
	return list, nil
}

// GetSite retrieves a site by ID.
func (r *Repository) GetSite(ctx context.Context, id string) (*domain.MonitoredSite, error) {
	query := `SELECT ` + postgres.SiteColumns + ` FROM sites WHERE id = $1`
	site, err := postgres.ScanSite(r.db.QueryRow(ctx, query, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, sites.ErrSiteNotFound
	}
	if err != nil {
		return nil, postgres.WrapError("get site", err)
	}
	return site, nil
}

// CountSites counts the owner's sites.
func (r *Repository) CountSites(ctx context.Context, ownerID string) (int, error) {
	var count int
	if err := r.db.QueryRow(ctx, `SELECT COUNT(*) FROM sites WHERE owner_id = $1`, ownerID).Scan(&count); err != nil {
		return 0, postgres.WrapError("count sites", err)
	}
	return count, nil
}

// CreateSite inserts site and sets its ID and timestamps.
func (r *Repository) CreateSite(ctx context.Context, site *domain.MonitoredSite) error {
	creds, err := postgres.EncodeCredentials(site.Credentials)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO sites (
			owner_id, plan_tier, name, url, check_interval_seconds, access_method, credentials,
			expected_status_code, expected_body_contains, timeout_seconds, follow_redirects,
			ssl_check_enabled, performance_threshold_ms, alert_enabled, alert_destination,
			alert_threshold, auto_repair_enabled
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17)
		RETURNING id, created_at, updated_at
	`
	err = r.db.QueryRow(ctx, query,
		site.OwnerID,
		site.PlanTier,
		site.Name,
		site.URL,
		site.CheckIntervalSeconds,
		site.AccessMethod,
		creds,
		site.Expectations.ExpectedStatusCode,
		site.Expectations.ExpectedBodyContains,
		site.Expectations.TimeoutSeconds,
		site.Expectations.FollowRedirects,
		site.Expectations.SSLCheckEnabled,
		site.Expectations.PerformanceThresholdMs,
		site.Alerting.Enabled,
		site.Alerting.Destination,
		site.Alerting.FailureThreshold,
		site.AutoRepairEnabled,
	).Scan(&site.ID, &site.CreatedAt, &site.UpdatedAt)
	if err != nil {
		return postgres.WrapError("create site", err)
	}
	return nil
}

// UpdateSite stores the configuration fields of site.
func (r *Repository) UpdateSite(ctx context.Context, site *domain.MonitoredSite) error {
	creds, err := postgres.EncodeCredentials(site.Credentials)
	if err != nil {
		return err
	}

	query := `
		UPDATE sites
		SET plan_tier = $2, name = $3, url = $4, check_interval_seconds = $5,
		    access_method = $6, credentials = $7, expected_status_code = $8,
		    expected_body_contains = $9, timeout_seconds = $10, follow_redirects = $11,
		    ssl_check_enabled = $12, performance_threshold_ms = $13, alert_enabled = $14,
		    alert_destination = $15, alert_threshold = $16, auto_repair_enabled = $17,
		    updated_at = NOW()
		WHERE id = $1
		RETURNING updated_at
	`
	err = r.db.QueryRow(ctx, query,
		site.ID,
		site.PlanTier,
		site.Name,
		site.URL,
		site.CheckIntervalSeconds,
		site.AccessMethod,
		creds,
		site.Expectations.ExpectedStatusCode,
		site.Expectations.ExpectedBodyContains,
		site.Expectations.TimeoutSeconds,
		site.Expectations.FollowRedirects,
		site.Expectations.SSLCheckEnabled,
		site.Expectations.PerformanceThresholdMs,
		site.Alerting.Enabled,
		site.Alerting.Destination,
		site.Alerting.FailureThreshold,
		site.AutoRepairEnabled,
	).Scan(&site.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return sites.ErrSiteNotFound
	}
	if err != nil {
		return postgres.WrapError("update site", err)
	}
	return nil
}

// DeleteSite removes a site. History rows are removed by cascade.
func (r *Repository) DeleteSite(ctx context.Context, id string) error {
	tag, err := r.db.Exec(ctx, `DELETE FROM sites WHERE id = $1`, id)
	if err != nil {
		return postgres.WrapError("delete site", err)
	}
	if tag.RowsAffected() == 0 {
		return sites.ErrSiteNotFound
	}
	return nil
}

// SetPaused sets the paused flag of a site.
func (r *Repository) SetPaused(ctx context.Context, id string, paused bool) error {
	tag, err := r.db.Exec(ctx, `UPDATE sites SET paused = $2, updated_at = NOW() WHERE id = $1`, id, paused)
	if err != nil {
		return postgres.WrapError("set paused", err)
	}
	if tag.RowsAffected() == 0 {
		return sites.ErrSiteNotFound
	}
	return nil
}

// SyncOwnerPlan stamps tier on every site of ownerID.
func (r *Repository) SyncOwnerPlan(ctx context.Context, ownerID string, tier domain.PlanTier) error {
	_, err := r.db.Exec(ctx, `
		UPDATE sites SET plan_tier = $2, updated_at = NOW()
		WHERE owner_id = $1 AND plan_tier <> $2
	`, ownerID, tier)
	if err != nil {
		return postgres.WrapError("sync owner plan", err)
	}
	return nil
}

// ListHealthChecks returns the site's checks since the given time, newest first.
func (r *Repository) ListHealthChecks(ctx context.Context, siteID string, since time.Time, limit int) ([]*domain.HealthCheck, error) {
	query := `
		SELECT ` + healthCheckColumns + `
		FROM health_checks
		WHERE site_id = $1 AND checked_at >= $2
		ORDER BY checked_at DESC
		LIMIT $3
	`
	rows, err := r.db.Query(ctx, query, siteID, since, limit)
	if err != nil {
		return nil, postgres.WrapError("list health checks", err)
	}
	checks, err := pgx.CollectRows(rows, scanHealthCheck)
	if err != nil {
		return nil, postgres.WrapError("list health checks", err)
	}
	return checks, nil
}

// DashboardStats summarizes the owner's sites. Window figures cover checks
// and repairs since the given time.
func (r *Repository) DashboardStats(ctx context.Context, ownerID string, since time.Time) (sites.DashboardStats, error) {
	var stats sites.DashboardStats

	err := r.db.QueryRow(ctx, `
		SELECT
			COUNT(*),
			COUNT(*) FILTER (WHERE last_status = 'healthy'),
			COUNT(*) FILTER (WHERE last_status = 'degraded'),
			COUNT(*) FILTER (WHERE last_status = 'down'),
			COUNT(*) FILTER (WHERE last_status = 'error'),
			COUNT(*) FILTER (WHERE last_status IS NULL),
			COUNT(*) FILTER (WHERE paused)
		FROM sites
		WHERE owner_id = $1
	`, ownerID).Scan(
		&stats.TotalSites,
		&stats.Healthy,
		&stats.Degraded,
		&stats.Down,
		&stats.Error,
		&stats.Unchecked,
		&stats.Paused,
	)
	if err != nil {
		return stats, postgres.WrapError("count site statuses", err)
	}

	err = r.db.QueryRow(ctx, `
		SELECT COUNT(*)
		FROM site_incidents i
		JOIN sites s ON s.id = i.site_id
		WHERE s.owner_id = $1 AND i.status IN ('open', 'investigating', 'repairing')
	`, ownerID).Scan(&stats.OpenIncidents)
	if err != nil {
		return stats, postgres.WrapError("count open incidents", err)
	}

	var healthy int
	err = r.db.QueryRow(ctx, `
		SELECT
			COUNT(*),
			COUNT(*) FILTER (WHERE h.status = 'healthy'),
			COALESCE(ROUND(AVG(h.response_time_ms)), 0)::int
		FROM health_checks h
		JOIN sites s ON s.id = h.site_id
		WHERE s.owner_id = $1 AND h.checked_at >= $2
	`, ownerID, since).Scan(&stats.Checks, &healthy, &stats.AvgResponseMs)
	if err != nil {
		return stats, postgres.WrapError("aggregate health checks", err)
	}
	stats.UptimePercent = uptime(healthy, stats.Checks)

	err = r.db.QueryRow(ctx, `
		SELECT COUNT(*), COUNT(*) FILTER (WHERE l.status = 'success')
		FROM repair_logs l
		JOIN sites s ON s.id = l.site_id
		WHERE s.owner_id = $1 AND l.started_at >= $2
	`, ownerID, since).Scan(&stats.Repairs, &stats.SuccessfulRepairs)
	if err != nil {
		return stats, postgres.WrapError("count repairs", err)
	}

	return stats, nil
}

// uptime returns the healthy share in percent rounded to two decimals, or
// 100 when nothing was checked.
func uptime(healthy, total int) float64 {
	if total == 0 {
		return 100
	}
	return float64(healthy*10000/total) / 100
}

func scanHealthCheck(row pgx.CollectableRow) (*domain.HealthCheck, error) {
	var hc domain.HealthCheck
	err := row.Scan(
		&hc.ID,
		&hc.SiteID,
		&hc.CheckedAt,
		&hc.Status,
		&hc.HTTPStatusCode,
		&hc.ResponseTimeMs,
		&hc.SSLValid,
		&hc.SSLExpiresAt,
		&hc.SSLIssuer,
		&hc.BodyMatched,
		&hc.ErrorType,
		&hc.ErrorMessage,
	)
	if err != nil {
		return nil, err
	}
	return &hc, nil
}

var _ sites.Repository = (*Repository)(nil)
