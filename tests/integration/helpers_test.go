//go:build integration

package integration

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/google/uuid"
	"github.com/leego972/sitewarden/internal/domain"
	"github.com/leego972/sitewarden/internal/identity"
	"github.com/leego972/sitewarden/internal/testutil"
	"github.com/stretchr/testify/require"
)

// upstream is a monitored site whose response can be switched during a test.
type upstream struct {
	*httptest.Server
	status atomic.Int32
	body   atomic.Value
}

func newUpstream(t *testing.T) *upstream {
	t.Helper()
	u := &upstream{}
	u.status.Store(http.StatusOK)
	u.body.Store("<html><body>Welcome to the shop</body></html>")
	u.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		w.WriteHeader(int(u.status.Load()))
		_, _ = w.Write([]byte(u.body.Load().(string)))
	}))
	t.Cleanup(u.Close)
	return u
}

func (u *upstream) respond(status int, body string) {
	u.status.Store(int32(status))
	u.body.Store(body)
}

// repairHook records repair webhook deliveries.
type repairHook struct {
	*httptest.Server
	mu       sync.Mutex
	requests []*http.Request
	status   int
}

func newRepairHook(t *testing.T, status int) *repairHook {
	t.Helper()
	h := &repairHook{status: status}
	h.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h.mu.Lock()
		h.requests = append(h.requests, r.Clone(context.Background()))
		h.mu.Unlock()
		w.WriteHeader(h.status)
		_, _ = w.Write([]byte(`{"ok":true}`))
	}))
	t.Cleanup(h.Close)
	return h
}

func (h *repairHook) calls() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.requests)
}

func (h *repairHook) last() *http.Request {
	h.mu.Lock()
	defer h.mu.Unlock()
	if len(h.requests) == 0 {
		return nil
	}
	return h.requests[len(h.requests)-1]
}

// newUserClient returns a validating client authenticated as a fresh user.
func newUserClient(t *testing.T, tier domain.PlanTier) (*testutil.Client, identity.Principal) {
	t.Helper()
	client := newTestClient(t)
	p := client.AuthenticateNewUser(t, tokenIssuer, tier)
	return client, p
}

// createSite adds a site through the API and returns it.
func createSite(t *testing.T, client *testutil.Client, body map[string]any) domain.MonitoredSite {
	t.Helper()
	if _, ok := body["name"]; !ok {
		body["name"] = "site-" + uuid.NewString()[:8]
	}

	resp, err := client.POST("/api/v1/sites", body)
	require.NoError(t, err)
	require.Equal(t, http.StatusCreated, resp.StatusCode, testutil.ReadBody(t, resp))

	var site domain.MonitoredSite
	testutil.DecodeData(t, resp, &site)
	return site
}

// checkSite runs the check pipeline for id as the scheduler would.
func checkSite(t *testing.T, id string) *domain.HealthCheck {
	t.Helper()
	_, hc, err := testApp.CheckSite(context.Background(), id)
	require.NoError(t, err)
	return hc
}

// listIncidents returns the caller's incidents for siteID.
func listIncidents(t *testing.T, client *testutil.Client, siteID string) []domain.SiteIncident {
	t.Helper()
	resp, err := client.GET("/api/v1/incidents?site_id=" + siteID)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var list []domain.SiteIncident
	testutil.DecodeData(t, resp, &list)
	return list
}

// getSite fetches a site through the API.
func getSite(t *testing.T, client *testutil.Client, id string) domain.MonitoredSite {
	t.Helper()
	resp, err := client.GET("/api/v1/sites/" + id)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var site domain.MonitoredSite
	testutil.DecodeData(t, resp, &site)
	return site
}

// decodeDataString decodes a {"data": ...} envelope already read from a response.
func decodeDataString(body string, v any) error {
	return json.Unmarshal([]byte(body), &struct {
		Data any `json:"data"`
	}{Data: v})
}
