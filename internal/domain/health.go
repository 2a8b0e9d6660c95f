package domain

import "time"

// HealthStatus is the classified outcome of a single probe.
type HealthStatus string

// Health statuses.
const (
	HealthStatusHealthy  HealthStatus = "healthy"
	HealthStatusDegraded HealthStatus = "degraded"
	HealthStatusDown     HealthStatus = "down"
	HealthStatusError    HealthStatus = "error"
)

// IsValid checks if the health status is known.
func (s HealthStatus) IsValid() bool {
	switch s {
	case HealthStatusHealthy, HealthStatusDegraded, HealthStatusDown, HealthStatusError:
		return true
	}
	return false
}

// ErrorType tags why a probe was not healthy.
type ErrorType string

// Probe error types.
const (
	ErrorTypeTimeout           ErrorType = "timeout"
	ErrorTypeDNSFailure        ErrorType = "dns_failure"
	ErrorTypeConnectionRefused ErrorType = "connection_refused"
	ErrorTypeSSLError          ErrorType = "ssl_error"
	ErrorTypeNetwork           ErrorType = "network_error"
	ErrorTypeServerError       ErrorType = "server_error"
	ErrorTypeClientError       ErrorType = "client_error"
	ErrorTypeContentMismatch   ErrorType = "content_mismatch"
	ErrorTypeSlowResponse      ErrorType = "slow_response"
)

// HealthCheck is one immutable probe result.
type HealthCheck struct {
	ID             string       `json:"id"`
	SiteID         string       `json:"site_id"`
	CheckedAt      time.Time    `json:"checked_at"`
	Status         HealthStatus `json:"status"`
	HTTPStatusCode *int         `json:"http_status_code"`
	ResponseTimeMs int          `json:"response_time_ms"`
	SSLValid       *bool        `json:"ssl_valid"`
	SSLExpiresAt   *time.Time   `json:"ssl_expires_at"`
	SSLIssuer      string       `json:"ssl_issuer,omitempty"`
	BodyMatched    *bool        `json:"body_matched"`
	ErrorType      ErrorType    `json:"error_type,omitempty"`
	ErrorMessage   string       `json:"error_message,omitempty"`
}

// IsHealthy reports whether the check counts as a recovery.
func (c *HealthCheck) IsHealthy() bool {
	return c.Status == HealthStatusHealthy
}
