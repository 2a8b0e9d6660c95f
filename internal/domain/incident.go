package domain

import "time"

// IncidentType classifies what kind of problem an incident tracks.
type IncidentType string

// Incident types.
const (
	IncidentTypeDowntime               IncidentType = "downtime"
	IncidentTypeSSLExpiry              IncidentType = "ssl_expiry"
	IncidentTypeSSLInvalid             IncidentType = "ssl_invalid"
	IncidentTypePerformanceDegradation IncidentType = "performance_degradation"
	IncidentTypeErrorSpike             IncidentType = "error_spike"
	IncidentTypeDeployFailure          IncidentType = "deploy_failure"
	IncidentTypeContentMismatch        IncidentType = "content_mismatch"
	IncidentTypeDNSFailure             IncidentType = "dns_failure"
)

// Severity is the impact level of an incident.
type Severity string

// Severity levels.
const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// IncidentStatus is a state of the incident lifecycle.
type IncidentStatus string

// Incident statuses.
const (
	IncidentStatusOpen          IncidentStatus = "open"
	IncidentStatusInvestigating IncidentStatus = "investigating"
	IncidentStatusRepairing     IncidentStatus = "repairing"
	IncidentStatusResolved      IncidentStatus = "resolved"
	IncidentStatusIgnored       IncidentStatus = "ignored"
)

// ActiveIncidentStatuses are the statuses of which at most one may exist per site.
var ActiveIncidentStatuses = []IncidentStatus{
	IncidentStatusOpen,
	IncidentStatusInvestigating,
	IncidentStatusRepairing,
}

// IsValid checks if the status is known.
func (s IncidentStatus) IsValid() bool {
	return s.IsActive() || s == IncidentStatusResolved || s == IncidentStatusIgnored
}

// IsActive reports whether the incident is still in progress.
func (s IncidentStatus) IsActive() bool {
	return s == IncidentStatusOpen || s == IncidentStatusInvestigating || s == IncidentStatusRepairing
}

// SiteIncident is a detected problem episode.
type SiteIncident struct {
	ID                string         `json:"id"`
	SiteID            string         `json:"site_id"`
	Type              IncidentType   `json:"type"`
	Severity          Severity       `json:"severity"`
	Status            IncidentStatus `json:"status"`
	Title             string         `json:"title"`
	Description       string         `json:"description"`
	TriggerStatusCode *int           `json:"trigger_status_code"`
	TriggerResponseMs *int           `json:"trigger_response_time_ms"`
	TriggerError      string         `json:"trigger_error,omitempty"`
	RepairAttempts    int            `json:"repair_attempts"`
	ResolutionNote    string         `json:"resolution_note,omitempty"`
	DetectedAt        time.Time      `json:"detected_at"`
	ResolvedAt        *time.Time     `json:"resolved_at"`
	UpdatedAt         time.Time      `json:"updated_at"`
}
