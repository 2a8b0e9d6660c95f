// Package postgres provides the PostgreSQL storage for the check pipeline.
package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/leego972/sitewarden/internal/domain"
	"github.com/leego972/sitewarden/internal/monitor"
	"github.com/leego972/sitewarden/internal/pkg/postgres"
)

// Repository implements monitor.Repository.
type Repository struct {
	db *pgxpool.Pool
}

// NewRepository creates a new PostgreSQL repository.
func NewRepository(db *pgxpool.Pool) *Repository {
	return &Repository{db: db}
}

// ListDueSites returns unpaused sites due for a check at now.
func (r *Repository) ListDueSites(ctx context.Context, now time.Time, limit int) ([]*domain.MonitoredSite, error) {
	query := `
		SELECT ` + postgres.SiteColumns + `
		FROM sites
		WHERE NOT paused
		  AND (last_check_at IS NULL
		       OR last_check_at + make_interval(secs => check_interval_seconds) <= $1)
		ORDER BY last_check_at NULLS FIRST, created_at
		LIMIT $2
	`
	rows, err := r.db.Query(ctx, query, now, limit)
	if err != nil {
		return nil, postgres.WrapError("list due sites", err)
	}
	sites, err := postgres.ScanSites(rows)
	if err != nil {
		return nil, postgres.WrapError("list due sites", err)
	}
	return sites, nil
}

// RecordCheck inserts hc and updates the owning site's live state.
func (r *Repository) RecordCheck(ctx context.Context, hc *domain.HealthCheck) (domain.SiteState, error) {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return domain.SiteState{}, postgres.WrapError("begin transaction", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	insert := `
		INSERT INTO health_checks (
			site_id, checked_at, status, http_status_code, response_time_ms,
			ssl_valid, ssl_expires_at, ssl_issuer, body_matched, error_type, error_message
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		RETURNING id
	`
	err = tx.QueryRow(ctx, insert,
		hc.SiteID,
		hc.CheckedAt,
		hc.Status,
		hc.HTTPStatusCode,
		hc.ResponseTimeMs,
		hc.SSLValid,
		hc.SSLExpiresAt,
		hc.SSLIssuer,
		hc.BodyMatched,
		hc.ErrorType,
		hc.ErrorMessage,
	).Scan(&hc.ID)
	if err != nil {
		if postgres.IsForeignKeyViolation(err) {
			return domain.SiteState{}, monitor.ErrSiteGone
		}
		return domain.SiteState{}, postgres.WrapError("insert health check", err)
	}

	update := `
		UPDATE sites
		SET last_check_at = $2,
		    last_status = $3,
		    last_response_time_ms = $4,
		    consecutive_failures = CASE WHEN $5::boolean THEN 0 ELSE consecutive_failures + 1 END,
		    updated_at = NOW()
		WHERE id = $1
		RETURNING consecutive_failures
	`
	state := domain.SiteState{
		LastCheckAt:        hc.CheckedAt,
		LastStatus:         hc.Status,
		LastResponseTimeMs: hc.ResponseTimeMs,
	}
	err = tx.QueryRow(ctx, update,
		hc.SiteID,
		hc.CheckedAt,
		hc.Status,
		hc.ResponseTimeMs,
		hc.IsHealthy(),
	).Scan(&state.ConsecutiveFailures)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.SiteState{}, monitor.ErrSiteGone
		}
		return domain.SiteState{}, postgres.WrapError("update site state", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return domain.SiteState{}, postgres.WrapError("commit check", err)
	}
	return state, nil
}

// PruneHistory removes history older than before for sites on tier.
func (r *Repository) PruneHistory(ctx context.Context, tier domain.PlanTier, before time.Time) (monitor.PruneResult, error) {
	var res monitor.PruneResult

	tag, err := r.db.Exec(ctx, `
		DELETE FROM health_checks h
		USING sites s
		WHERE h.site_id = s.id AND s.plan_tier = $1 AND h.checked_at < $2
	`, tier, before)
	if err != nil {
		return res, postgres.WrapError("prune health checks", err)
	}
	res.HealthChecks = tag.RowsAffected()

	tag, err = r.db.Exec(ctx, `
		DELETE FROM repair_logs l
		USING sites s
		WHERE l.site_id = s.id AND s.plan_tier = $1 AND l.started_at < $2 AND l.status <> 'running'
	`, tier, before)
	if err != nil {
		return res, postgres.WrapError("prune repair logs", err)
	}
	res.RepairLogs = tag.RowsAffected()

	return res, nil
}

var _ monitor.Repository = (*Repository)(nil)
