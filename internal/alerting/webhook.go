package alerting

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/leego972/sitewarden/internal/domain"
)

const (
	defaultTimeout  = 10 * time.Second
	defaultUsername = "Sitewarden"
)

// WebhookConfig holds webhook sender configuration.
type WebhookConfig struct {
	Username string
	Timeout  time.Duration
}

// WebhookSender posts alerts as JSON. The text field follows the incoming
// webhook format of Mattermost and Slack.
type WebhookSender struct {
	config     WebhookConfig
	httpClient *http.Client
}

// NewWebhookSender creates a webhook sender.
func NewWebhookSender(config WebhookConfig) *WebhookSender {
	if config.Username == "" {
		config.Username = defaultUsername
	}
	if config.Timeout == 0 {
		config.Timeout = defaultTimeout
	}
	return &WebhookSender{
		config:     config,
		httpClient: &http.Client{Timeout: config.Timeout},
	}
}

type webhookPayload struct {
	Text     string               `json:"text"`
	Username string               `json:"username,omitempty"`
	Event    Kind                 `json:"event"`
	SiteID   string               `json:"site_id"`
	SiteName string               `json:"site_name"`
	SiteURL  string               `json:"site_url"`
	Incident *domain.SiteIncident `json:"incident"`
	Link     string               `json:"link,omitempty"`
}

// Send posts alert to the webhook URL to.
func (s *WebhookSender) Send(ctx context.Context, to string, alert Alert) error {
	payload := webhookPayload{
		Text:     fmt.Sprintf("### %s\n\n%s", alert.Subject, alert.Body),
		Username: s.config.Username,
		Event:    alert.Kind,
		SiteID:   alert.Site.ID,
		SiteName: alert.Site.Name,
		SiteURL:  alert.Site.URL,
		Incident: alert.Incident,
		Link:     alert.Link,
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, to, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("send request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4<<10))
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("webhook returned %d: %s", resp.StatusCode, string(respBody))
	}

	slog.Debug("alert webhook delivered", "webhook", maskURL(to))
	return nil
}

// maskURL hides part of the URL for logging.
func maskURL(url string) string {
	if len(url) > 40 {
		return url[:20] + "..." + url[len(url)-10:]
	}
	return url
}
