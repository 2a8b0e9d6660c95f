package platform

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/leego972/sitewarden/internal/domain"
)

const (
	railwayRedeployMutation = `mutation serviceInstanceRedeploy($environmentId: String!, $serviceId: String!) {
  serviceInstanceRedeploy(environmentId: $environmentId, serviceId: $serviceId)
}`
	railwayProjectQuery = `query project($id: String!) { project(id: $id) { id name } }`
	railwayMeQuery      = `query { me { id } }`
)

// Railway redeploys a service instance through the Railway GraphQL API.
type Railway struct {
	client *client
	url    string
}

type graphQLRequest struct {
	Query     string         `json:"query"`
	Variables map[string]any `json:"variables,omitempty"`
}

type graphQLResponse struct {
	Errors []struct {
		Message string `json:"message"`
	} `json:"errors"`
}

// Method returns the access method served by the adapter.
func (r *Railway) Method() domain.AccessMethod { return domain.AccessMethodRailway }

// Repair redeploys the configured service in the configured environment.
func (r *Railway) Repair(ctx context.Context, site *domain.MonitoredSite, _ domain.RepairAction, _ string) (string, bool) {
	creds := site.Credentials
	if out, ok := checkToken("Railway", creds); !ok {
		return out, false
	}
	if creds.PlatformServiceID == "" {
		return notConfigured("Railway", "service ID"), false
	}
	if creds.PlatformEnvironmentID == "" {
		return notConfigured("Railway", "environment ID"), false
	}

	return r.query(ctx, creds.PlatformToken, graphQLRequest{
		Query: railwayRedeployMutation,
		Variables: map[string]any{
			"environmentId": creds.PlatformEnvironmentID,
			"serviceId":     creds.PlatformServiceID,
		},
	}, "Railway redeploy")
}

// Verify checks the token by reading the project, or the token owner when no
// project is configured.
func (r *Railway) Verify(ctx context.Context, site *domain.MonitoredSite) (string, bool) {
	creds := site.Credentials
	if out, ok := checkToken("Railway", creds); !ok {
		return out, false
	}
	req := graphQLRequest{Query: railwayMeQuery}
	if creds.PlatformProjectID != "" {
		req = graphQLRequest{
			Query:     railwayProjectQuery,
			Variables: map[string]any{"id": creds.PlatformProjectID},
		}
	}
	return r.query(ctx, creds.PlatformToken, req, "Railway API")
}

// query posts a GraphQL document. GraphQL errors in a 200 response count as failure.
func (r *Railway) query(ctx context.Context, token string, req graphQLRequest, what string) (string, bool) {
	resp, err := r.client.call(ctx, http.MethodPost, r.url, token, req, nil)
	if err != nil {
		return requestFailed("Railway", err), false
	}
	if !resp.ok() {
		return resp.describe(what), false
	}

	var gql graphQLResponse
	if err := json.Unmarshal(resp.body, &gql); err != nil {
		return fmt.Sprintf("%s: invalid response: %v", what, err), false
	}
	if len(gql.Errors) > 0 {
		msgs := make([]string, 0, len(gql.Errors))
		for _, e := range gql.Errors {
			msgs = append(msgs, e.Message)
		}
		return fmt.Sprintf("%s: %s", what, strings.Join(msgs, "; ")), false
	}
	return resp.describe(what), true
}
