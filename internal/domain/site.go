// Package domain contains the typed entities shared by the monitoring engine.
package domain

import "time"

// AccessMethod is the mechanism the engine may use to act on a site's host.
type AccessMethod string

// Access methods.
const (
	AccessMethodNone    AccessMethod = "none"
	AccessMethodAPI     AccessMethod = "api"
	AccessMethodSSH     AccessMethod = "ssh"
	AccessMethodLogin   AccessMethod = "login"
	AccessMethodWebhook AccessMethod = "webhook"
	AccessMethodRailway AccessMethod = "railway"
	AccessMethodVercel  AccessMethod = "vercel"
	AccessMethodNetlify AccessMethod = "netlify"
	AccessMethodRender  AccessMethod = "render"
	AccessMethodHeroku  AccessMethod = "heroku"
)

// IsValid checks if the access method is known.
func (m AccessMethod) IsValid() bool {
	switch m {
	case AccessMethodNone, AccessMethodAPI, AccessMethodSSH, AccessMethodLogin, AccessMethodWebhook:
		return true
	}
	return m.IsPlatform()
}

// IsPlatform reports whether the method is one of the hosted platform APIs.
func (m AccessMethod) IsPlatform() bool {
	switch m {
	case AccessMethodRailway, AccessMethodVercel, AccessMethodNetlify, AccessMethodRender, AccessMethodHeroku:
		return true
	}
	return false
}

// Default check settings.
const (
	DefaultCheckIntervalSeconds = 300
	DefaultTimeoutSeconds       = 30
	DefaultExpectedStatusCode   = 200
	DefaultFailureThreshold     = 3
	DefaultSSHPort              = 22
)

// Credentials holds the secrets and identifiers for the site's access method.
// Only the fields relevant to the configured method are populated.
type Credentials struct {
	APIEndpoint string            `json:"api_endpoint,omitempty"`
	APIToken    string            `json:"-"`
	APIHeaders  map[string]string `json:"api_headers,omitempty"`

	SSHHost       string `json:"ssh_host,omitempty"`
	SSHPort       int    `json:"ssh_port,omitempty"`
	SSHUser       string `json:"ssh_user,omitempty"`
	SSHPrivateKey string `json:"-"`

	LoginURL      string `json:"login_url,omitempty"`
	LoginUsername string `json:"login_username,omitempty"`
	LoginPassword string `json:"-"`

	RepairWebhookURL    string `json:"repair_webhook_url,omitempty"`
	RepairWebhookSecret string `json:"-"`

	PlatformToken         string `json:"-"`
	PlatformProjectID     string `json:"platform_project_id,omitempty"`
	PlatformServiceID     string `json:"platform_service_id,omitempty"`
	PlatformEnvironmentID string `json:"platform_environment_id,omitempty"`
	PlatformTeamID        string `json:"platform_team_id,omitempty"`
}

// Expectations describes what a healthy response looks like.
type Expectations struct {
	ExpectedStatusCode     int    `json:"expected_status_code"`
	ExpectedBodyContains   string `json:"expected_body_contains,omitempty"`
	TimeoutSeconds         int    `json:"timeout_seconds"`
	FollowRedirects        bool   `json:"follow_redirects"`
	SSLCheckEnabled        bool   `json:"ssl_check_enabled"`
	PerformanceThresholdMs int    `json:"performance_threshold_ms,omitempty"`
}

// Timeout returns the probe timeout, falling back to the default.
func (e Expectations) Timeout() time.Duration {
	if e.TimeoutSeconds <= 0 {
		return DefaultTimeoutSeconds * time.Second
	}
	return time.Duration(e.TimeoutSeconds) * time.Second
}

// StatusCode returns the expected status code, falling back to 200.
func (e Expectations) StatusCode() int {
	if e.ExpectedStatusCode == 0 {
		return DefaultExpectedStatusCode
	}
	return e.ExpectedStatusCode
}

// AlertConfig controls incident alerting for a site.
type AlertConfig struct {
	Enabled          bool   `json:"alert_enabled"`
	Destination      string `json:"alert_destination,omitempty"`
	FailureThreshold int    `json:"alert_threshold"`
}

// Threshold returns the consecutive failure count that opens an incident.
func (a AlertConfig) Threshold() int {
	if a.FailureThreshold <= 0 {
		return DefaultFailureThreshold
	}
	return a.FailureThreshold
}

// MonitoredSite is a user's registration of a target to watch.
type MonitoredSite struct {
	ID                   string       `json:"id"`
	OwnerID              string       `json:"owner_id"`
	PlanTier             PlanTier     `json:"plan_tier"`
	Name                 string       `json:"name"`
	URL                  string       `json:"url"`
	CheckIntervalSeconds int          `json:"check_interval_seconds"`
	AccessMethod         AccessMethod `json:"access_method"`
	Credentials          Credentials  `json:"credentials"`
	Expectations         Expectations `json:"expectations"`
	Alerting             AlertConfig  `json:"alerting"`
	AutoRepairEnabled    bool         `json:"auto_repair_enabled"`

	LastCheckAt         *time.Time    `json:"last_check_at"`
	LastStatus          *HealthStatus `json:"last_status"`
	LastResponseTimeMs  *int          `json:"last_response_time_ms"`
	ConsecutiveFailures int           `json:"consecutive_failures"`
	Paused              bool          `json:"paused"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// IsDue reports whether the site should be checked at now.
func (s *MonitoredSite) IsDue(now time.Time) bool {
	if s.Paused {
		return false
	}
	if s.LastCheckAt == nil {
		return true
	}
	return now.Sub(*s.LastCheckAt) >= time.Duration(s.CheckIntervalSeconds)*time.Second
}

// CanAutoRepair reports whether the site opted in and has somewhere to send repairs.
func (s *MonitoredSite) CanAutoRepair() bool {
	return s.AutoRepairEnabled && s.AccessMethod != "" && s.AccessMethod != AccessMethodNone
}

// SiteState is the live state written back after every check.
type SiteState struct {
	LastCheckAt         time.Time
	LastStatus          HealthStatus
	LastResponseTimeMs  int
	ConsecutiveFailures int
}
