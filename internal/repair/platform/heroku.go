package platform

import (
	"context"
	"net/http"
	"net/url"

	"github.com/leego972/sitewarden/internal/domain"
)

var herokuHeader = http.Header{"Accept": []string{"application/vnd.heroku+json; version=3"}}

// Heroku restarts all dynos of an app. The app name is stored as the platform
// project ID.
type Heroku struct {
	client  *client
	baseURL string
}

// Method returns the access method served by the adapter.
func (h *Heroku) Method() domain.AccessMethod { return domain.AccessMethodHeroku }

// Repair restarts every dyno of the app.
func (h *Heroku) Repair(ctx context.Context, site *domain.MonitoredSite, _ domain.RepairAction, _ string) (string, bool) {
	creds := site.Credentials
	if out, ok := checkToken("Heroku", creds); !ok {
		return out, false
	}
	if creds.PlatformProjectID == "" {
		return notConfigured("Heroku", "app name"), false
	}
	resp, err := h.client.call(ctx, http.MethodDelete, h.appURL(creds)+"/dynos", creds.PlatformToken, nil, herokuHeader)
	if err != nil {
		return requestFailed("Heroku", err), false
	}
	return resp.describe("Heroku dyno restart"), resp.ok()
}

// Verify checks the token by reading the app.
func (h *Heroku) Verify(ctx context.Context, site *domain.MonitoredSite) (string, bool) {
	creds := site.Credentials
	if out, ok := checkToken("Heroku", creds); !ok {
		return out, false
	}
	if creds.PlatformProjectID == "" {
		return notConfigured("Heroku", "app name"), false
	}
	resp, err := h.client.call(ctx, http.MethodGet, h.appURL(creds), creds.PlatformToken, nil, herokuHeader)
	if err != nil {
		return requestFailed("Heroku", err), false
	}
	return resp.describe("Heroku API"), resp.ok()
}

func (h *Heroku) appURL(creds domain.Credentials) string {
	return h.baseURL + "/apps/" + url.PathEscape(creds.PlatformProjectID)
}
