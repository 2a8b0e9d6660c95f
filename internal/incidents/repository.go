package incidents

import (
	"context"

	"github.com/leego972/sitewarden/internal/domain"
)

// Filter narrows ListIncidents.
type Filter struct {
	OwnerID string
	SiteID  string
	Status  domain.IncidentStatus
	Limit   int
}

// Transition moves an active incident to a new status.
type Transition struct {
	Status         domain.IncidentStatus
	ResolutionNote string
}

// Repository defines the interface for incident data access.
type Repository interface {
	// CreateIncident stores inc and sets its ID. It returns
	// ErrActiveIncidentExists if the site already has an active incident.
	CreateIncident(ctx context.Context, inc *domain.SiteIncident) error
	GetIncident(ctx context.Context, id string) (*domain.SiteIncident, error)
	// GetActiveIncident returns ErrIncidentNotFound when the site has none.
	GetActiveIncident(ctx context.Context, siteID string) (*domain.SiteIncident, error)
	ListIncidents(ctx context.Context, filter Filter) ([]*domain.SiteIncident, error)
	// TransitionIncident applies t to an active incident. Terminal statuses
	// set resolved_at. It returns ErrIncidentClosed for terminal incidents.
	TransitionIncident(ctx context.Context, id string, t Transition) (*domain.SiteIncident, error)
	// StartRepair moves an active incident to repairing and increments its
	// repair attempt counter.
	StartRepair(ctx context.Context, id string) (*domain.SiteIncident, error)
}
