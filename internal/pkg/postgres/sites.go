package postgres

import (
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/leego972/sitewarden/internal/domain"
)

// SiteColumns is the column list matching ScanSite.
const SiteColumns = `id, owner_id, plan_tier, name, url, check_interval_seconds, access_method,
	credentials, expected_status_code, expected_body_contains, timeout_seconds,
	follow_redirects, ssl_check_enabled, performance_threshold_ms,
	alert_enabled, alert_destination, alert_threshold, auto_repair_enabled,
	last_check_at, last_status, last_response_time_ms, consecutive_failures, paused,
	created_at, updated_at`

// credentialsRecord is the stored form of domain.Credentials. Unlike the
// API representation it keeps secrets.
type credentialsRecord struct {
	APIEndpoint           string            `json:"api_endpoint,omitempty"`
	APIToken              string            `json:"api_token,omitempty"`
	APIHeaders            map[string]string `json:"api_headers,omitempty"`
	SSHHost               string            `json:"ssh_host,omitempty"`
	SSHPort               int               `json:"ssh_port,omitempty"`
	SSHUser               string            `json:"ssh_user,omitempty"`
	SSHPrivateKey         string            `json:"ssh_private_key,omitempty"`
	LoginURL              string            `json:"login_url,omitempty"`
	LoginUsername         string            `json:"login_username,omitempty"`
	LoginPassword         string            `json:"login_password,omitempty"`
	RepairWebhookURL      string            `json:"repair_webhook_url,omitempty"`
	RepairWebhookSecret   string            `json:"repair_webhook_secret,omitempty"`
	PlatformToken         string            `json:"platform_token,omitempty"`
	PlatformProjectID     string            `json:"platform_project_id,omitempty"`
	PlatformServiceID     string            `json:"platform_service_id,omitempty"`
	PlatformEnvironmentID string            `json:"platform_environment_id,omitempty"`
	PlatformTeamID        string            `json:"platform_team_id,omitempty"`
}

// EncodeCredentials serializes credentials for the credentials column.
func EncodeCredentials(c domain.Credentials) ([]byte, error) {
	data, err := json.Marshal(credentialsRecord(c))
	if err != nil {
		return nil, fmt.Errorf("encode credentials: %w", err)
	}
	return data, nil
}

// DecodeCredentials parses the credentials column.
func DecodeCredentials(data []byte) (domain.Credentials, error) {
	var rec credentialsRecord
	if len(data) == 0 {
		return domain.Credentials{}, nil
	}
	if err := json.Unmarshal(data, &rec); err != nil {
		return domain.Credentials{}, fmt.Errorf("decode credentials: %w", err)
	}
	return domain.Credentials(rec), nil
}

// ScanSite scans a row selected with SiteColumns.
func ScanSite(row pgx.Row) (*domain.MonitoredSite, error) {
	var (
		s          domain.MonitoredSite
		creds      []byte
		lastStatus *string
	)
	err := row.Scan(
		&s.ID, &s.OwnerID, &s.PlanTier, &s.Name, &s.URL, &s.CheckIntervalSeconds, &s.AccessMethod,
		&creds, &s.Expectations.ExpectedStatusCode, &s.Expectations.ExpectedBodyContains, &s.Expectations.TimeoutSeconds,
		&s.Expectations.FollowRedirects, &s.Expectations.SSLCheckEnabled, &s.Expectations.PerformanceThresholdMs,
		&s.Alerting.Enabled, &s.Alerting.Destination, &s.Alerting.FailureThreshold, &s.AutoRepairEnabled,
		&s.LastCheckAt, &lastStatus, &s.LastResponseTimeMs, &s.ConsecutiveFailures, &s.Paused,
		&s.CreatedAt, &s.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if lastStatus != nil {
		status := domain.HealthStatus(*lastStatus)
		s.LastStatus = &status
	}

	s.Credentials, err = DecodeCredentials(creds)
	if err != nil {
		return nil, err
	}
	return &s, nil
}

// ScanSites collects every row selected with SiteColumns.
func ScanSites(rows pgx.Rows) ([]*domain.MonitoredSite, error) {
	defer rows.Close()

	var sites []*domain.MonitoredSite
	for rows.Next() {
		s, err := ScanSite(rows)
		if err != nil {
			return nil, fmt.Errorf("scan site: %w", err)
		}
		sites = append(sites, s)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return sites, nil
}
