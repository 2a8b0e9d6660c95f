package alerting

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewWebhookSender_Defaults(t *testing.T) {
	sender := NewWebhookSender(WebhookConfig{})

	assert.Equal(t, defaultUsername, sender.config.Username)
	assert.Equal(t, defaultTimeout, sender.config.Timeout)
}

func TestWebhookSender_Send(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))

		var payload webhookPayload
		require.NoError(t, json.NewDecoder(r.Body).Decode(&payload))
		assert.Equal(t, "### Subject\n\nBody", payload.Text)
		assert.Equal(t, KindOpened, payload.Event)
		assert.Equal(t, "site-1", payload.SiteID)
		require.NotNil(t, payload.Incident)
		assert.Equal(t, "inc-1", payload.Incident.ID)

		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	err := NewWebhookSender(WebhookConfig{}).Send(context.Background(), server.URL, Alert{
		Kind:     KindOpened,
		Site:     alertSite(server.URL),
		Incident: testIncident(),
		Subject:  "Subject",
		Body:     "Body",
	})

	assert.NoError(t, err)
}

func TestWebhookSender_Send_ErrorStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "invalid webhook", http.StatusNotFound)
	}))
	defer server.Close()

	err := NewWebhookSender(WebhookConfig{}).Send(context.Background(), server.URL, Alert{
		Site:     alertSite(server.URL),
		Incident: testIncident(),
	})

	require.Error(t, err)
	assert.Contains(t, err.Error(), "404")
}

func TestWebhookSender_Send_Timeout(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		time.Sleep(500 * time.Millisecond)
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	err := NewWebhookSender(WebhookConfig{Timeout: 50 * time.Millisecond}).Send(context.Background(), server.URL, Alert{
		Site:     alertSite(server.URL),
		Incident: testIncident(),
	})

	assert.Error(t, err)
}

func TestMaskURL(t *testing.T) {
	assert.Equal(t, "https://short", maskURL("https://short"))
	long := "https://mattermost.example.com/hooks/abcdefghijklmnopqrstuvwxyz"
	assert.Equal(t, "https://mattermost.e...qrstuvwxyz", maskURL(long))
}
