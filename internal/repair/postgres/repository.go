// Package postgres provides PostgreSQL storage for repair logs.
package postgres

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/leego972/sitewarden/internal/domain"
	"github.com/leego972/sitewarden/internal/pkg/postgres"
	"github.com/leego972/sitewarden/internal/repair"
)

const defaultListLimit = 100

// Repository implements repair.Repository.
type Repository struct {
	db *pgxpool.Pool
}

// NewRepository creates a new PostgreSQL repository.
func NewRepository(db *pgxpool.Pool) *Repository {
	return &Repository{db: db}
}

// CreateRepairLog inserts a running repair log.
func (r *Repository) CreateRepairLog(ctx context.Context, l *domain.RepairLog) error {
	query := `
		INSERT INTO repair_logs (site_id, incident_id, action, method, command, trigger, status, started_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id
	`
	err := r.db.QueryRow(ctx, query,
		l.SiteID,
		l.IncidentID,
		l.Action,
		l.Method,
		l.Command,
		l.Trigger,
		l.Status,
		l.StartedAt,
	).Scan(&l.ID)
	if err != nil {
		return postgres.WrapError("create repair log", err)
	}
	return nil
}

// CompleteRepairLog stores the final status of a repair.
func (r *Repository) CompleteRepairLog(ctx context.Context, l *domain.RepairLog) error {
	query := `
		UPDATE repair_logs
		SET status = $2, output = $3, duration_ms = $4, error_message = $5, completed_at = $6
		WHERE id = $1
	`
	_, err := r.db.Exec(ctx, query,
		l.ID,
		l.Status,
		l.Output,
		l.DurationMs,
		l.ErrorMessage,
		l.CompletedAt,
	)
	if err != nil {
		return postgres.WrapError("complete repair log", err)
	}
	return nil
}

// ListRepairLogs returns logs matching filter, newest first.
func (r *Repository) ListRepairLogs(ctx context.Context, filter repair.LogFilter) ([]*domain.RepairLog, error) {
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
		add("l.site_id = $%d", filter.SiteID)
	}
	if filter.IncidentID != "" {
		add("l.incident_id = $%d", filter.IncidentID)
	}
	if filter.Since != nil {
		add("l.started_at >= $%d", *filter.Since)
	}

	query := `
		SELECT l.id, l.site_id, l.incident_id, l.action, l.method, l.command, l.trigger, l.status,
		       l.output, l.duration_ms, l.error_message, l.started_at, l.completed_at
		FROM repair_logs l
		JOIN sites s ON s.id = l.site_id
	`
	if len(conditions) > 0 {
		query += " WHERE " + strings.Join(conditions, " AND ")
	}

	limit := filter.Limit
	if limit <= 0 {
		limit = defaultListLimit
	}
	args = append(args, limit)
	query += fmt.Sprintf(" ORDER BY l.started_at DESC LIMIT $%d", len(args))

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, postgres.WrapError("list repair logs", err)
	}

	logs, err := pgx.CollectRows(rows, scanRepairLog)
	if err != nil {
		return nil, postgres.WrapError("scan repair logs", err)
	}
	return logs, nil
}

func scanRepairLog(row pgx.CollectableRow) (*domain.RepairLog, error) {
	var l domain.RepairLog
	err := row.Scan(
		&l.ID,
		&l.SiteID,
		&l.IncidentID,
		&l.Action,
		&l.Method,
		&l.Command,
		&l.Trigger,
		&l.Status,
		&l.Output,
		&l.DurationMs,
		&l.ErrorMessage,
		&l.StartedAt,
		&l.CompletedAt,
	)
	return &l, err
}

var _ repair.Repository = (*Repository)(nil)
