package domain

import "time"

// RepairAction names the remediation to perform.
type RepairAction string

// Repair actions.
const (
	RepairActionPlatformRestart RepairAction = "platform_restart"
	RepairActionRestartService  RepairAction = "restart_service"
	RepairActionClearCache      RepairAction = "clear_cache"
	RepairActionDNSFlush        RepairAction = "dns_flush"
	RepairActionWebhookTrigger  RepairAction = "webhook_trigger"
	RepairActionCustomCommand   RepairAction = "custom_command"
)

// IsValid checks if the action is known.
func (a RepairAction) IsValid() bool {
	switch a {
	case RepairActionPlatformRestart, RepairActionRestartService, RepairActionClearCache,
		RepairActionDNSFlush, RepairActionWebhookTrigger, RepairActionCustomCommand:
		return true
	}
	return false
}

// AutoRepairAction derives the action used for automatic remediation from the access method.
func AutoRepairAction(method AccessMethod) RepairAction {
	switch {
	case method.IsPlatform():
		return RepairActionPlatformRestart
	case method == AccessMethodWebhook:
		return RepairActionWebhookTrigger
	default:
		return RepairActionRestartService
	}
}

// RepairStatus is the state of one remediation attempt.
type RepairStatus string

// Repair statuses.
const (
	RepairStatusRunning RepairStatus = "running"
	RepairStatusSuccess RepairStatus = "success"
	RepairStatusFailed  RepairStatus = "failed"
)

// RepairTrigger records who started a repair.
type RepairTrigger string

// Repair triggers.
const (
	RepairTriggerAuto   RepairTrigger = "auto"
	RepairTriggerManual RepairTrigger = "manual"
)

// RepairLog is the audit record of one remediation attempt.
type RepairLog struct {
	ID           string        `json:"id"`
	SiteID       string        `json:"site_id"`
	IncidentID   *string       `json:"incident_id"`
	Action       RepairAction  `json:"action"`
	Method       AccessMethod  `json:"method"`
	Command      string        `json:"command,omitempty"`
	Trigger      RepairTrigger `json:"trigger"`
	Status       RepairStatus  `json:"status"`
	Output       string        `json:"output"`
	DurationMs   int           `json:"duration_ms"`
	ErrorMessage string        `json:"error_message,omitempty"`
	StartedAt    time.Time     `json:"started_at"`
	CompletedAt  *time.Time    `json:"completed_at"`
}
