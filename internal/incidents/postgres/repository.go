// Package postgres provides PostgreSQL storage for incidents.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/leego972/sitewarden/internal/domain"
	"github.com/leego972/sitewarden/internal/incidents"
	"github.com/leego972/sitewarden/internal/pkg/postgres"
)

const (
	defaultListLimit = 100

	incidentColumns = `id, site_id, type, severity, status, title, description,
		trigger_status_code, trigger_response_time_ms, trigger_error, repair_attempts,
		resolution_note, detected_at, resolved_at, updated_at`

	activeStatuses = `('open', 'investigating', 'repairing')`
)

// Repository implements incidents.Repository.
type Repository struct {
	db *pgxpool.Pool
}

// NewRepository creates a new PostgreSQL repository.
func NewRepository(db *pgxpool.Pool) *Repository {
	return &Repository{db: db}
}

// CreateIncident inserts inc unless the site already has an active incident.
func (r *Repository) CreateIncident(ctx context.Context, inc *domain.SiteIncident) error {
	query := `
		INSERT INTO site_incidents (
			site_id, type, severity, status, title, description,
			trigger_status_code, trigger_response_time_ms, trigger_error, detected_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (site_id) WHERE status IN ` + activeStatuses + ` DO NOTHING
		RETURNING id, updated_at
	`
	err := r.db.QueryRow(ctx, query,
		inc.SiteID,
		inc.Type,
		inc.Severity,
		inc.Status,
		inc.Title,
		inc.Description,
		inc.TriggerStatusCode,
		inc.TriggerResponseMs,
		inc.TriggerError,
		inc.DetectedAt,
	).Scan(&inc.ID, &inc.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return incidents.ErrActiveIncidentExists
	}
	if err != nil {
		return postgres.WrapError("create incident", err)
	}
	return nil
}

// GetIncident retrieves an incident by ID.
func (r *Repository) GetIncident(ctx context.Context, id string) (*domain.SiteIncident, error) {
	query := `SELECT ` + incidentColumns + ` FROM site_incidents WHERE id = $1`
	inc, err := scanIncident(r.db.QueryRow(ctx, query, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, incidents.ErrIncidentNotFound
	}
	if err != nil {
		return nil, postgres.WrapError("get incident", err)
	}
	return inc, nil
}

// GetActiveIncident returns the site's open, investigating or repairing incident.
func (r *Repository) GetActiveIncident(ctx context.Context, siteID string) (*domain.SiteIncident, error) {
	query := `
		SELECT ` + incidentColumns + `
		FROM site_incidents
		WHERE site_id = $1 AND status IN ` + activeStatuses
	inc, err := scanIncident(r.db.QueryRow(ctx, query, siteID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, incidents.ErrIncidentNotFound
	}
	if err != nil {
		return nil, postgres.WrapError("get active incident", err)
	}
	return inc, nil
}

// ListIncidents returns incidents matching filter, newest first.
func (r *Repository) ListIncidents(ctx context.Context, filter incidents.Filter) ([]*domain.SiteIncident, error) {
	var (
		conditions []string
		args       []any
	)
	add := func(cond string, arg any) {
		args = append(args, arg)
		conditions = append(conditions, fmt.Sprintf(cond, len(args)))
	}

	if filter.OwnerID != "" {
		add("s.owner_id = $%d", filter.OwnerID)
	}
	if filter.SiteID != "" {
		add("i.site_id = $%d", filter.SiteID)
	}
	if filter.Status != "" {
		add("i.status = $%d", filter.Status)
	}

	query := `
		SELECT i.id, i.site_id, i.type, i.severity, i.status, i.title, i.description,
		       i.trigger_status_code, i.trigger_response_time_ms, i.trigger_error, i.repair_attempts,
		       i.resolution_note, i.detected_at, i.resolved_at, i.updated_at
		FROM site_incidents i
		JOIN sites s ON s.id = i.site_id
	`
	if len(conditions) > 0 {
		query += " WHERE " + strings.Join(conditions, " AND ")
	}

	limit := filter.Limit
	if limit <= 0 {
		limit = defaultListLimit
	}
	args = append(args, limit)
	query += fmt.Sprintf(" ORDER BY i.detected_at DESC LIMIT $%d", len(args))

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, postgres.WrapError("list incidents", err)
	}
	list, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (*domain.SiteIncident, error) {
		return scanIncident(row)
	})
	if err != nil {
		return nil, postgres.WrapError("scan incidents", err)
	}
	return list, nil
}

// TransitionIncident applies t to an active incident.
func (r *Repository) TransitionIncident(ctx context.Context, id string, t incidents.Transition) (*domain.SiteIncident, error) {
	query := `
		UPDATE site_incidents
		SET status = $2,
		    resolution_note = CASE WHEN $3 <> '' THEN $3 ELSE resolution_note END,
		    resolved_at = CASE WHEN $2 IN ('resolved', 'ignored') THEN NOW() ELSE resolved_at END,
		    updated_at = NOW()
		WHERE id = $1 AND status IN ` + activeStatuses + `
		RETURNING ` + incidentColumns
	inc, err := scanIncident(r.db.QueryRow(ctx, query, id, t.Status, t.ResolutionNote))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, r.inactiveError(ctx, id)
	}
	if err != nil {
		return nil, postgres.WrapError("transition incident", err)
	}
	return inc, nil
}

// StartRepair moves an active incident to repairing and counts the attempt.
func (r *Repository) StartRepair(ctx context.Context, id string) (*domain.SiteIncident, error) {
	query := `
		UPDATE site_incidents
		SET status = 'repairing', repair_attempts = repair_attempts + 1, updated_at = NOW()
		WHERE id = $1 AND status IN ` + activeStatuses + `
		RETURNING ` + incidentColumns
	inc, err := scanIncident(r.db.QueryRow(ctx, query, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, r.inactiveError(ctx, id)
	}
	if err != nil {
		return nil, postgres.WrapError("start repair", err)
	}
	return inc, nil
}

// inactiveError tells a missing incident from a closed one after an update
// matched no rows.
func (r *Repository) inactiveError(ctx context.Context, id string) error {
	var exists bool
	err := r.db.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM site_incidents WHERE id = $1)`, id).Scan(&exists)
	if err != nil {
		return postgres.WrapError("check incident", err)
	}
	if !exists {
		return incidents.ErrIncidentNotFound
	}
	return incidents.ErrIncidentClosed
}

func scanIncident(row pgx.Row) (*domain.SiteIncident, error) {
	var inc domain.SiteIncident
	err := row.Scan(
		&inc.ID,
		&inc.SiteID,
		&inc.Type,
		&inc.Severity,
		&inc.Status,
		&inc.Title,
		&inc.Description,
		&inc.TriggerStatusCode,
		&inc.TriggerResponseMs,
		&inc.TriggerError,
		&inc.RepairAttempts,
		&inc.ResolutionNote,
		&inc.DetectedAt,
		&inc.ResolvedAt,
		&inc.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &inc, nil
}

var _ incidents.Repository = (*Repository)(nil)
