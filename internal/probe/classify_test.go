package probe

import (
	"errors"
	"testing"
	"time"

	"github.com/leego972/sitewarden/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClassify(t *testing.T) {
	base := domain.Expectations{ExpectedStatusCode: 200}

	tests := []struct {
		name       string
		outcome    Outcome
		exp        domain.Expectations
		wantStatus domain.HealthStatus
		wantType   domain.ErrorType
	}{
		{
			name:       "transport timeout",
			outcome:    Outcome{Err: errors.New("deadline"), ErrorType: domain.ErrorTypeTimeout},
			exp:        base,
			wantStatus: domain.HealthStatusDown,
			wantType:   domain.ErrorTypeTimeout,
		},
		{
			name:       "dns failure",
			outcome:    Outcome{Err: errors.New("no such host"), ErrorType: domain.ErrorTypeDNSFailure},
			exp:        base,
			wantStatus: domain.HealthStatusDown,
			wantType:   domain.ErrorTypeDNSFailure,
		},
		{
			name:       "inspection handshake failure overrides",
			outcome:    Outcome{StatusCode: 200, TLS: &TLSInfo{HandshakeFailed: true}},
			exp:        base,
			wantStatus: domain.HealthStatusDown,
			wantType:   domain.ErrorTypeSSLError,
		},
		{
			name:       "invalid certificate does not override",
			outcome:    Outcome{StatusCode: 200, TLS: &TLSInfo{Valid: false, Err: errors.New("expired")}},
			exp:        base,
			wantStatus: domain.HealthStatusHealthy,
		},
		{
			name:       "server error",
			outcome:    Outcome{StatusCode: 503},
			exp:        base,
			wantStatus: domain.HealthStatusDown,
			wantType:   domain.ErrorTypeServerError,
		},
		{
			name:       "client error",
			outcome:    Outcome{StatusCode: 404},
			exp:        base,
			wantStatus: domain.HealthStatusError,
			wantType:   domain.ErrorTypeClientError,
		},
		{
			name:       "expected non-200 status",
			outcome:    Outcome{StatusCode: 204},
			exp:        domain.Expectations{ExpectedStatusCode: 204},
			wantStatus: domain.HealthStatusHealthy,
		},
		{
			name:       "default expected status",
			outcome:    Outcome{StatusCode: 200},
			exp:        domain.Expectations{},
			wantStatus: domain.HealthStatusHealthy,
		},
		{
			name:       "body mismatch",
			outcome:    Outcome{StatusCode: 200, Body: []byte("Hello")},
			exp:        domain.Expectations{ExpectedStatusCode: 200, ExpectedBodyContains: "Welcome"},
			wantStatus: domain.HealthStatusError,
			wantType:   domain.ErrorTypeContentMismatch,
		},
		{
			name:       "status mismatch wins over body",
			outcome:    Outcome{StatusCode: 500, Body: []byte("Hello")},
			exp:        domain.Expectations{ExpectedStatusCode: 200, ExpectedBodyContains: "Welcome"},
			wantStatus: domain.HealthStatusDown,
			wantType:   domain.ErrorTypeServerError,
		},
		{
			name:       "slow response",
			outcome:    Outcome{StatusCode: 200, Body: []byte("Welcome"), Elapsed: 1500 * time.Millisecond},
			exp:        domain.Expectations{ExpectedStatusCode: 200, ExpectedBodyContains: "Welcome", PerformanceThresholdMs: 1000},
			wantStatus: domain.HealthStatusDegraded,
			wantType:   domain.ErrorTypeSlowResponse,
		},
		{
			name:       "threshold disabled",
			outcome:    Outcome{StatusCode: 200, Elapsed: 10 * time.Second},
			exp:        base,
			wantStatus: domain.HealthStatusHealthy,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := Classify(tt.outcome, tt.exp)
			assert.Equal(t, tt.wantStatus, v.Status)
			assert.Equal(t, tt.wantType, v.ErrorType)
		})
	}
}

func TestClassify_BodyMatched(t *testing.T) {
	exp := domain.Expectations{ExpectedStatusCode: 200, ExpectedBodyContains: "Welcome"}

	v := Classify(Outcome{StatusCode: 200, Body: []byte("<h1>Welcome</h1>")}, exp)
	require.NotNil(t, v.BodyMatched)
	assert.True(t, *v.BodyMatched)

	v = Classify(Outcome{StatusCode: 200}, domain.Expectations{})
	assert.Nil(t, v.BodyMatched)
}

func TestHealthCheck(t *testing.T) {
	started := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	expires := started.Add(-24 * time.Hour)

	out := Outcome{
		StartedAt:  started,
		Elapsed:    120 * time.Millisecond,
		StatusCode: 200,
		TLS:        &TLSInfo{Valid: false, ExpiresAt: expires, Issuer: "Test CA"},
	}
	hc := HealthCheck("site-1", out, Classify(out, domain.Expectations{}))

	assert.Equal(t, "site-1", hc.SiteID)
	assert.Equal(t, started, hc.CheckedAt)
	assert.Equal(t, domain.HealthStatusHealthy, hc.Status)
	assert.Equal(t, 120, hc.ResponseTimeMs)
	require.NotNil(t, hc.HTTPStatusCode)
	assert.Equal(t, 200, *hc.HTTPStatusCode)
	require.NotNil(t, hc.SSLValid)
	assert.False(t, *hc.SSLValid)
	require.NotNil(t, hc.SSLExpiresAt)
	assert.Equal(t, expires, *hc.SSLExpiresAt)
	assert.Equal(t, "Test CA", hc.SSLIssuer)
}

func TestHealthCheck_TransportFailure(t *testing.T) {
	out := Outcome{Err: errors.New("connection refused"), ErrorType: domain.ErrorTypeConnectionRefused}
	hc := HealthCheck("site-1", out, Classify(out, domain.Expectations{}))

	assert.Nil(t, hc.HTTPStatusCode)
	assert.Nil(t, hc.SSLValid)
	assert.Equal(t, domain.HealthStatusDown, hc.Status)
	assert.Equal(t, "connection refused", hc.ErrorMessage)
}
