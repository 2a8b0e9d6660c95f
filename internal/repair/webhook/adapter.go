// Package webhook triggers repairs by posting a signed event to a
// user-configured URL.
package webhook

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/leego972/sitewarden/internal/domain"
	"github.com/leego972/sitewarden/internal/repair"
)

const (
	defaultTimeout = 30 * time.Second

	// EventType is sent as the event field of every payload.
	EventType = "repair.requested"

	// SignatureHeader carries "sha256=<hex hmac of the body>" when a secret is set.
	SignatureHeader = "X-Sitewarden-Signature"
	// EventIDHeader repeats the payload event_id for receivers that dedupe on headers.
	EventIDHeader = "X-Sitewarden-Event-Id"
)

// Config holds webhook adapter configuration.
type Config struct {
	Timeout time.Duration
}

// Adapter implements repair.Adapter for the webhook access method.
type Adapter struct {
	httpClient *http.Client
	now        func() time.Time
}

// NewAdapter creates a webhook adapter.
func NewAdapter(config Config) *Adapter {
	if config.Timeout == 0 {
		config.Timeout = defaultTimeout
	}
	return &Adapter{
		httpClient: &http.Client{Timeout: config.Timeout},
		now:        time.Now,
	}
}

// Payload is the JSON body posted to the repair webhook.
type Payload struct {
	Event     string              `json:"event"`
	EventID   string              `json:"event_id"`
	SiteID    string              `json:"site_id"`
	SiteName  string              `json:"site_name"`
	SiteURL   string              `json:"site_url"`
	Action    domain.RepairAction `json:"action"`
	Command   string              `json:"command,omitempty"`
	Timestamp time.Time           `json:"timestamp"`
}

// Method returns the access method served by the adapter.
func (a *Adapter) Method() domain.AccessMethod {
	return domain.AccessMethodWebhook
}

// Repair posts a repair event to the site's webhook URL.
func (a *Adapter) Repair(ctx context.Context, site *domain.MonitoredSite, action domain.RepairAction, customCommand string) (string, bool) {
	creds := site.Credentials
	if creds.RepairWebhookURL == "" {
		return "Repair webhook URL not configured", false
	}

	payload := Payload{
		Event:     EventType,
		EventID:   uuid.NewString(),
		SiteID:    site.ID,
		SiteName:  site.Name,
		SiteURL:   site.URL,
		Action:    action,
		Command:   customCommand,
		Timestamp: a.now().UTC(),
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Sprintf("marshal webhook payload: %v", err), false
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, creds.RepairWebhookURL, bytes.NewReader(body))
	if err != nil {
		return fmt.Sprintf("create webhook request: %v", err), false
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(EventIDHeader, payload.EventID)
	if creds.RepairWebhookSecret != "" {
		req.Header.Set(SignatureHeader, Sign(creds.RepairWebhookSecret, body))
	}

	return repair.Do(a.httpClient, req, "Repair webhook")
}

// Sign returns the signature header value for body.
func Sign(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return "sha256=" + hex.EncodeToString(mac.Sum(nil))
}
