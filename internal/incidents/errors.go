package incidents

import "errors"

// Incident errors.
var (
	ErrIncidentNotFound     = errors.New("incident not found")
	ErrIncidentClosed       = errors.New("incident is already resolved or ignored")
	ErrActiveIncidentExists = errors.New("site already has an active incident")
)
