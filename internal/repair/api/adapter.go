// Package api triggers repairs through a user-provided HTTP endpoint.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/leego972/sitewarden/internal/domain"
	"github.com/leego972/sitewarden/internal/repair"
)

const defaultTimeout = 30 * time.Second

// Config holds API adapter configuration.
type Config struct {
	Timeout time.Duration
}

// Adapter implements repair.Adapter for the generic API access method.
type Adapter struct {
	httpClient *http.Client
	now        func() time.Time
}

// NewAdapter creates an API adapter.
func NewAdapter(config Config) *Adapter {
	if config.Timeout == 0 {
		config.Timeout = defaultTimeout
	}
	return &Adapter{
		httpClient: &http.Client{Timeout: config.Timeout},
		now:        time.Now,
	}
}

type requestBody struct {
	Action    domain.RepairAction `json:"action"`
	Command   string              `json:"command,omitempty"`
	Site      siteRef             `json:"site"`
	Timestamp time.Time           `json:"timestamp"`
}

type siteRef struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	URL  string `json:"url"`
}

// Method returns the access method served by the adapter.
func (a *Adapter) Method() domain.AccessMethod {
	return domain.AccessMethodAPI
}

// Repair posts the requested action to the site's repair endpoint.
func (a *Adapter) Repair(ctx context.Context, site *domain.MonitoredSite, action domain.RepairAction, customCommand string) (string, bool) {
	creds := site.Credentials
	if creds.APIEndpoint == "" {
		return "Repair API endpoint not configured", false
	}

	body, err := json.Marshal(requestBody{
		Action:    action,
		Command:   customCommand,
		Site:      siteRef{ID: site.ID, Name: site.Name, URL: site.URL},
		Timestamp: a.now().UTC(),
	})
	if err != nil {
		return fmt.Sprintf("marshal repair request: %v", err), false
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, creds.APIEndpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Sprintf("create repair request: %v", err), false
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range creds.APIHeaders {
		req.Header.Set(k, v)
	}
	if creds.APIToken != "" {
		req.Header.Set("Authorization", "Bearer "+creds.APIToken)
	}

	return repair.Do(a.httpClient, req, "Repair API")
}
