package repair

import (
	"context"
	"time"

	"github.com/leego972/sitewarden/internal/domain"
)

// LogFilter selects repair logs.
type LogFilter struct {
	OwnerID    string
	SiteID     string
	IncidentID string
	Since      *time.Time
	Limit      int
}

// Repository stores repair logs.
type Repository interface {
	CreateRepairLog(ctx context.Context, log *domain.RepairLog) error
	CompleteRepairLog(ctx context.Context, log *domain.RepairLog) error
	ListRepairLogs(ctx context.Context, filter LogFilter) ([]*domain.RepairLog, error)
}
