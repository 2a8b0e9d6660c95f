package platform

import (
	"context"
	"net/http"
	"net/url"

	"github.com/leego972/sitewarden/internal/domain"
)

// Netlify triggers a new build of a Netlify site. The site ID is stored as
// the platform project ID.
type Netlify struct {
	client  *client
	baseURL string
}

// Method returns the access method served by the adapter.
func (n *Netlify) Method() domain.AccessMethod { return domain.AccessMethodNetlify }

// Repair triggers a build. clear_cache requests a build without the build cache.
func (n *Netlify) Repair(ctx context.Context, site *domain.MonitoredSite, action domain.RepairAction, _ string) (string, bool) {
	creds := site.Credentials
	if out, ok := checkToken("Netlify", creds); !ok {
		return out, false
	}
	if creds.PlatformProjectID == "" {
		return notConfigured("Netlify", "site ID"), false
	}

	var payload any = struct{}{}
	if action == domain.RepairActionClearCache {
		payload = map[string]bool{"clear_cache": true}
	}
	resp, err := n.client.call(ctx, http.MethodPost, n.siteURL(creds)+"/builds", creds.PlatformToken, payload, nil)
	if err != nil {
		return requestFailed("Netlify", err), false
	}
	return resp.describe("Netlify build"), resp.ok()
}

// Verify checks the token by reading the site.
func (n *Netlify) Verify(ctx context.Context, site *domain.MonitoredSite) (string, bool) {
	creds := site.Credentials
	if out, ok := checkToken("Netlify", creds); !ok {
		return out, false
	}
	if creds.PlatformProjectID == "" {
		return notConfigured("Netlify", "site ID"), false
	}
	resp, err := n.client.call(ctx, http.MethodGet, n.siteURL(creds), creds.PlatformToken, nil, nil)
	if err != nil {
		return requestFailed("Netlify", err), false
	}
	return resp.describe("Netlify API"), resp.ok()
}

func (n *Netlify) siteURL(creds domain.Credentials) string {
	return n.baseURL + "/sites/" + url.PathEscape(creds.PlatformProjectID)
}
