package platform

import (
	"context"
	"net/http"
	"net/url"

	"github.com/leego972/sitewarden/internal/domain"
)

// Render restarts or redeploys a Render service.
type Render struct {
	client  *client
	baseURL string
}

// Method returns the access method served by the adapter.
func (r *Render) Method() domain.AccessMethod { return domain.AccessMethodRender }

// Repair restarts the service. clear_cache triggers a deploy with a cleared
// build cache instead.
func (r *Render) Repair(ctx context.Context, site *domain.MonitoredSite, action domain.RepairAction, _ string) (string, bool) {
	creds := site.Credentials
	if out, ok := checkToken("Render", creds); !ok {
		return out, false
	}
	if creds.PlatformServiceID == "" {
		return notConfigured("Render", "service ID"), false
	}

	var (
		resp response
		err  error
		what string
	)
	if action == domain.RepairActionClearCache {
		what = "Render deploy"
		resp, err = r.client.call(ctx, http.MethodPost, r.serviceURL(creds)+"/deploys", creds.PlatformToken,
			map[string]string{"clearCache": "clear"}, nil)
	} else {
		what = "Render restart"
		resp, err = r.client.call(ctx, http.MethodPost, r.serviceURL(creds)+"/restart", creds.PlatformToken, struct{}{}, nil)
	}
	if err != nil {
		return requestFailed("Render", err), false
	}
	return resp.describe(what), resp.ok()
}

// Verify checks the token by reading the service.
func (r *Render) Verify(ctx context.Context, site *domain.MonitoredSite) (string, bool) {
	creds := site.Credentials
	if out, ok := checkToken("Render", creds); !ok {
		return out, false
	}
	if creds.PlatformServiceID == "" {
		return notConfigured("Render", "service ID"), false
	}
	resp, err := r.client.call(ctx, http.MethodGet, r.serviceURL(creds), creds.PlatformToken, nil, nil)
	if err != nil {
		return requestFailed("Render", err), false
	}
	return resp.describe("Render API"), resp.ok()
}

func (r *Render) serviceURL(creds domain.Credentials) string {
	return r.baseURL + "/services/" + url.PathEscape(creds.PlatformServiceID)
}
