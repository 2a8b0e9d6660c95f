package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/leego972/sitewarden/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func apiSite(endpoint string) *domain.MonitoredSite {
	return &domain.MonitoredSite{
		ID:           "site-1",
		Name:         "Blog",
		URL:          "https://blog.example.com",
		AccessMethod: domain.AccessMethodAPI,
		Credentials: domain.Credentials{
			APIEndpoint: endpoint,
			APIToken:    "tok",
			APIHeaders:  map[string]string{"X-Tenant": "acme"},
		},
	}
}

func TestAdapter_Repair_NotConfigured(t *testing.T) {
	output, ok := NewAdapter(Config{}).Repair(context.Background(), apiSite(""), domain.RepairActionRestartService, "")

	assert.False(t, ok)
	assert.Equal(t, "Repair API endpoint not configured", output)
}

func TestAdapter_Repair_Success(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "Bearer tok", r.Header.Get("Authorization"))
		assert.Equal(t, "acme", r.Header.Get("X-Tenant"))

		var body requestBody
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, domain.RepairActionCustomCommand, body.Action)
		assert.Equal(t, "flush redis", body.Command)
		assert.Equal(t, "site-1", body.Site.ID)
		assert.False(t, body.Timestamp.IsZero())

		_, _ = w.Write([]byte(`{"restarted":true}`))
	}))
	defer server.Close()

	output, ok := NewAdapter(Config{}).Repair(context.Background(), apiSite(server.URL), domain.RepairActionCustomCommand, "flush redis")

	assert.True(t, ok)
	assert.Contains(t, output, `{"restarted":true}`)
}

func TestAdapter_Repair_Failure(t *testing.T) {
	tests := []struct {
		name   string
		status int
	}{
		{"unauthorized", http.StatusUnauthorized},
		{"server error", http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(tt.status)
			}))
			defer server.Close()

			output, ok := NewAdapter(Config{}).Repair(context.Background(), apiSite(server.URL), domain.RepairActionRestartService, "")

			assert.False(t, ok)
			assert.Contains(t, output, http.StatusText(tt.status))
		})
	}
}
