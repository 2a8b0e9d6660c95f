package platform

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"

	"github.com/leego972/sitewarden/internal/domain"
)

// Vercel redeploys the latest production deployment of a project.
type Vercel struct {
	client  *client
	baseURL string
}

type vercelDeployments struct {
	Deployments []struct {
		UID  string `json:"uid"`
		Name string `json:"name"`
	} `json:"deployments"`
}

// Method returns the access method served by the adapter.
func (v *Vercel) Method() domain.AccessMethod { return domain.AccessMethodVercel }

// Repair looks up the latest production deployment and redeploys it.
func (v *Vercel) Repair(ctx context.Context, site *domain.MonitoredSite, _ domain.RepairAction, _ string) (string, bool) {
	creds := site.Credentials
	if out, ok := checkToken("Vercel", creds); !ok {
		return out, false
	}
	if creds.PlatformProjectID == "" {
		return notConfigured("Vercel", "project ID"), false
	}

	q := v.teamQuery(creds)
	q.Set("projectId", creds.PlatformProjectID)
	q.Set("target", "production")
	q.Set("limit", "1")
	resp, err := v.client.call(ctx, http.MethodGet, v.baseURL+"/v6/deployments?"+q.Encode(), creds.PlatformToken, nil, nil)
	if err != nil {
		return requestFailed("Vercel", err), false
	}
	if !resp.ok() {
		return resp.describe("Vercel deployment lookup"), false
	}

	var list vercelDeployments
	if err := json.Unmarshal(resp.body, &list); err != nil {
		return fmt.Sprintf("Vercel deployment lookup: invalid response: %v", err), false
	}
	if len(list.Deployments) == 0 {
		return "Vercel project has no production deployment to redeploy", false
	}
	latest := list.Deployments[0]

	q = v.teamQuery(creds)
	q.Set("forceNew", "1")
	resp, err = v.client.call(ctx, http.MethodPost, v.baseURL+"/v13/deployments?"+q.Encode(), creds.PlatformToken, map[string]string{
		"name":         latest.Name,
		"deploymentId": latest.UID,
		"target":       "production",
	}, nil)
	if err != nil {
		return requestFailed("Vercel", err), false
	}
	return resp.describe("Vercel redeploy"), resp.ok()
}

// Verify checks the token by reading the project.
func (v *Vercel) Verify(ctx context.Context, site *domain.MonitoredSite) (string, bool) {
	creds := site.Credentials
	if out, ok := checkToken("Vercel", creds); !ok {
		return out, false
	}
	if creds.PlatformProjectID == "" {
		return notConfigured("Vercel", "project ID"), false
	}

	q := v.teamQuery(creds)
	target := v.baseURL + "/v9/projects/" + url.PathEscape(creds.PlatformProjectID)
	if len(q) > 0 {
		target += "?" + q.Encode()
	}
	resp, err := v.client.call(ctx, http.MethodGet, target, creds.PlatformToken, nil, nil)
	if err != nil {
		return requestFailed("Vercel", err), false
	}
	return resp.describe("Vercel API"), resp.ok()
}

func (v *Vercel) teamQuery(creds domain.Credentials) url.Values {
	q := url.Values{}
	if creds.PlatformTeamID != "" {
		q.Set("teamId", creds.PlatformTeamID)
	}
	return q
}
