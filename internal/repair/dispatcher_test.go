package repair

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/leego972/sitewarden/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// mockRepository implements Repository for testing.
type mockRepository struct {
	mu          sync.Mutex
	created     []domain.RepairLog
	completed   []domain.RepairLog
	createErr   error
	completeErr error
	nextID      int
}

func (m *mockRepository) CreateRepairLog(_ context.Context, l *domain.RepairLog) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.createErr != nil {
		return m.createErr
	}
	m.nextID++
	l.ID = fmt.Sprintf("log-%d", m.nextID)
	m.created = append(m.created, *l)
	return nil
}

func (m *mockRepository) CompleteRepairLog(_ context.Context, l *domain.RepairLog) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.completeErr != nil {
		return m.completeErr
	}
	m.completed = append(m.completed, *l)
	return nil
}

func (m *mockRepository) ListRepairLogs(context.Context, LogFilter) ([]*domain.RepairLog, error) {
	return nil, nil
}

// fakeAdapter is a scripted Adapter.
type fakeAdapter struct {
	method  domain.AccessMethod
	output  string
	success bool
	repair  func(ctx context.Context) (string, bool)
	calls   []domain.RepairAction
	command string
}

func (a *fakeAdapter) Method() domain.AccessMethod { return a.method }

func (a *fakeAdapter) Repair(ctx context.Context, _ *domain.MonitoredSite, action domain.RepairAction, customCommand string) (string, bool) {
	a.calls = append(a.calls, action)
	a.command = customCommand
	if a.repair != nil {
		return a.repair(ctx)
	}
	return a.output, a.success
}

type verifyingAdapter struct {
	fakeAdapter
}

func (a *verifyingAdapter) Verify(context.Context, *domain.MonitoredSite) (string, bool) {
	return "token ok", true
}

func siteWith(method domain.AccessMethod) *domain.MonitoredSite {
	return &domain.MonitoredSite{ID: "site-1", AccessMethod: method}
}

func TestDispatch_Success(t *testing.T) {
	repo := &mockRepository{}
	adapter := &fakeAdapter{method: domain.AccessMethodRailway, output: "redeploy triggered", success: true}
	d := NewDispatcher(Config{Timeout: time.Second}, repo, adapter)

	incidentID := "incident-1"
	log, err := d.Dispatch(context.Background(), Request{
		Site:       siteWith(domain.AccessMethodRailway),
		IncidentID: &incidentID,
		Trigger:    domain.RepairTriggerAuto,
	})
	require.NoError(t, err)

	require.Len(t, repo.created, 1)
	assert.Equal(t, domain.RepairStatusRunning, repo.created[0].Status, "log is written before the adapter runs")
	assert.Equal(t, domain.RepairActionPlatformRestart, repo.created[0].Action, "action derived from access method")
	assert.Equal(t, &incidentID, repo.created[0].IncidentID)

	require.Len(t, repo.completed, 1)
	assert.Equal(t, domain.RepairStatusSuccess, log.Status)
	assert.Equal(t, "redeploy triggered", log.Output)
	assert.Empty(t, log.ErrorMessage)
	assert.NotNil(t, log.CompletedAt)
	assert.Equal(t, domain.RepairTriggerAuto, log.Trigger)
	assert.Equal(t, []domain.RepairAction{domain.RepairActionPlatformRestart}, adapter.calls)
}

func TestDispatch_AdapterFailure(t *testing.T) {
	repo := &mockRepository{}
	adapter := &fakeAdapter{method: domain.AccessMethodAPI, output: "Repair API returned HTTP 500", success: false}
	d := NewDispatcher(Config{}, repo, adapter)

	log, err := d.Dispatch(context.Background(), Request{
		Site:   siteWith(domain.AccessMethodAPI),
		Action: domain.RepairActionClearCache,
	})
	require.NoError(t, err)

	assert.Equal(t, domain.RepairStatusFailed, log.Status)
	assert.Equal(t, "Repair API returned HTTP 500", log.ErrorMessage)
	assert.Equal(t, domain.RepairTriggerManual, log.Trigger)
	assert.Equal(t, []domain.RepairAction{domain.RepairActionClearCache}, adapter.calls)
}

func TestDispatch_CustomCommandRecorded(t *testing.T) {
	repo := &mockRepository{}
	adapter := &fakeAdapter{method: domain.AccessMethodSSH, output: "ok", success: true}
	d := NewDispatcher(Config{}, repo, adapter)

	log, err := d.Dispatch(context.Background(), Request{
		Site:          siteWith(domain.AccessMethodSSH),
		Action:        domain.RepairActionCustomCommand,
		CustomCommand: "docker compose restart web",
	})
	require.NoError(t, err)

	assert.Equal(t, "docker compose restart web", log.Command)
	assert.Equal(t, "docker compose restart web", adapter.command)
}

func TestDispatch_UnsupportedMethods(t *testing.T) {
	tests := []struct {
		name   string
		method domain.AccessMethod
		want   string
	}{
		{"login", domain.AccessMethodLogin, "Access method login does not support automated repair"},
		{"none", domain.AccessMethodNone, "No access method configured for this site"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo := &mockRepository{}
			d := NewDispatcher(Config{}, repo)

			log, err := d.Dispatch(context.Background(), Request{Site: siteWith(tt.method)})
			require.NoError(t, err)

			assert.Equal(t, domain.RepairStatusFailed, log.Status)
			assert.Equal(t, tt.want, log.Output)
			assert.Len(t, repo.created, 1)
			assert.Len(t, repo.completed, 1)
		})
	}
}

func TestDispatch_PanicIsContained(t *testing.T) {
	adapter := &fakeAdapter{
		method: domain.AccessMethodWebhook,
		repair: func(context.Context) (string, bool) { panic("nil map") },
	}
	d := NewDispatcher(Config{}, &mockRepository{}, adapter)

	log, err := d.Dispatch(context.Background(), Request{Site: siteWith(domain.AccessMethodWebhook)})
	require.NoError(t, err)

	assert.Equal(t, domain.RepairStatusFailed, log.Status)
	assert.Contains(t, log.Output, "nil map")
}

func TestDispatch_Timeout(t *testing.T) {
	adapter := &fakeAdapter{
		method: domain.AccessMethodAPI,
		repair: func(ctx context.Context) (string, bool) {
			<-ctx.Done()
			return "request cancelled: " + ctx.Err().Error(), false
		},
	}
	d := NewDispatcher(Config{Timeout: 50 * time.Millisecond}, &mockRepository{}, adapter)

	start := time.Now()
	log, err := d.Dispatch(context.Background(), Request{Site: siteWith(domain.AccessMethodAPI)})
	require.NoError(t, err)

	assert.Less(t, time.Since(start), 5*time.Second)
	assert.Equal(t, domain.RepairStatusFailed, log.Status)
	assert.Contains(t, log.Output, "deadline exceeded")
}

func TestDispatch_RateLimited(t *testing.T) {
	adapter := &fakeAdapter{method: domain.AccessMethodWebhook, output: "sent", success: true}
	d := NewDispatcher(Config{RateLimit: time.Hour, RateBurst: 1}, &mockRepository{}, adapter)
	site := siteWith(domain.AccessMethodWebhook)

	first, err := d.Dispatch(context.Background(), Request{Site: site})
	require.NoError(t, err)
	assert.Equal(t, domain.RepairStatusSuccess, first.Status)

	second, err := d.Dispatch(context.Background(), Request{Site: site})
	require.NoError(t, err)
	assert.Equal(t, domain.RepairStatusFailed, second.Status)
	assert.Contains(t, second.Output, "rate limit")
	assert.Len(t, adapter.calls, 1)

	other, err := d.Dispatch(context.Background(), Request{Site: &domain.MonitoredSite{ID: "site-2", AccessMethod: domain.AccessMethodWebhook}})
	require.NoError(t, err)
	assert.Equal(t, domain.RepairStatusSuccess, other.Status, "limits are per site")
}

func TestDispatch_CreateLogFails(t *testing.T) {
	repo := &mockRepository{createErr: errors.New("db down")}
	adapter := &fakeAdapter{method: domain.AccessMethodAPI, success: true}
	d := NewDispatcher(Config{}, repo, adapter)

	_, err := d.Dispatch(context.Background(), Request{Site: siteWith(domain.AccessMethodAPI)})

	require.Error(t, err)
	assert.Empty(t, adapter.calls, "no repair without a log")
}

func TestDispatch_CompleteLogFails(t *testing.T) {
	repo := &mockRepository{completeErr: errors.New("db down")}
	adapter := &fakeAdapter{method: domain.AccessMethodAPI, output: "ok", success: true}
	d := NewDispatcher(Config{}, repo, adapter)

	log, err := d.Dispatch(context.Background(), Request{Site: siteWith(domain.AccessMethodAPI)})

	require.Error(t, err)
	require.NotNil(t, log)
	assert.Equal(t, domain.RepairStatusSuccess, log.Status)
}

func TestVerify(t *testing.T) {
	d := NewDispatcher(Config{}, &mockRepository{},
		&fakeAdapter{method: domain.AccessMethodWebhook},
		&verifyingAdapter{fakeAdapter{method: domain.AccessMethodVercel}},
	)

	out, ok, supported := d.Verify(context.Background(), siteWith(domain.AccessMethodVercel))
	assert.True(t, supported)
	assert.True(t, ok)
	assert.Equal(t, "token ok", out)

	_, _, supported = d.Verify(context.Background(), siteWith(domain.AccessMethodWebhook))
	assert.False(t, supported)

	_, _, supported = d.Verify(context.Background(), siteWith(domain.AccessMethodLogin))
	assert.False(t, supported)

	assert.True(t, d.Supports(domain.AccessMethodVercel))
	assert.False(t, d.Supports(domain.AccessMethodLogin))
}

func TestTruncate(t *testing.T) {
	short := "ok"
	assert.Equal(t, short, Truncate(short))

	long := make([]byte, MaxOutputBytes+100)
	for i := range long {
		long[i] = 'x'
	}
	got := Truncate(string(long))
	assert.Len(t, got, MaxOutputBytes+len("\n... (truncated)"))
}

func TestTruncate_KeepsRunesWhole(t *testing.T) {
	tests := []struct {
		name string
		in   string
	}{
		{"two-byte rune at the cut", strings.Repeat("a", MaxOutputBytes-1) + "é" + strings.Repeat("b", 10)},
		{"three-byte rune at the cut", strings.Repeat("a", MaxOutputBytes-2) + "…" + strings.Repeat("b", 10)},
		{"multi-byte text", strings.Repeat("ü", MaxOutputBytes)},
		{"response body", ResponseOutput("Repair API", 500, []byte(strings.Repeat("ü", MaxOutputBytes)))},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Truncate(tt.in)
			assert.True(t, utf8.ValidString(got))
			assert.LessOrEqual(t, len(got), MaxOutputBytes+len("\n... (truncated)"))
			assert.True(t, strings.HasSuffix(got, "(truncated)"))
		})
	}
}

func TestDispatch_StoresValidUTF8(t *testing.T) {
	// Raw remote shell output, cut mid-rune and carrying stray bytes.
	raw := "restarting nginx\xff\xfe\x00 done " + string([]byte("é")[:1])
	adapter := &fakeAdapter{method: domain.AccessMethodSSH, output: raw, success: false}
	repo := &mockRepository{}
	d := NewDispatcher(Config{}, repo, adapter)

	log, err := d.Dispatch(context.Background(), Request{Site: siteWith(domain.AccessMethodSSH)})
	require.NoError(t, err)

	assert.Equal(t, domain.RepairStatusFailed, log.Status)
	assert.True(t, utf8.ValidString(log.Output))
	assert.True(t, utf8.ValidString(log.ErrorMessage))
	assert.NotContains(t, log.Output, "\x00")
	assert.Contains(t, log.Output, "restarting nginx")
	require.Len(t, repo.completed, 1)
	assert.True(t, utf8.ValidString(repo.completed[0].Output))
}

func TestDispatch_OutlivesCallerContext(t *testing.T) {
	adapter := &fakeAdapter{
		method: domain.AccessMethodWebhook,
		repair: func(ctx context.Context) (string, bool) {
			select {
			case <-ctx.Done():
				return "cancelled: " + ctx.Err().Error(), false
			case <-time.After(150 * time.Millisecond):
				return "redeployed", true
			}
		},
	}
	d := NewDispatcher(Config{Timeout: 2 * time.Minute}, &mockRepository{}, adapter)

	// The caller gives up long before the repair finishes.
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	log, err := d.Dispatch(ctx, Request{Site: siteWith(domain.AccessMethodWebhook)})
	require.NoError(t, err)

	assert.Equal(t, domain.RepairStatusSuccess, log.Status)
	assert.Equal(t, "redeployed", log.Output)
}

func TestDispatch_IdleLimitersAreEvicted(t *testing.T) {
	adapter := &fakeAdapter{method: domain.AccessMethodWebhook, output: "sent", success: true}
	d := NewDispatcher(Config{RateLimit: time.Minute, RateBurst: 1}, &mockRepository{}, adapter)
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	d.now = func() time.Time { return now }

	for i := range 5 {
		_, err := d.Dispatch(context.Background(), Request{Site: &domain.MonitoredSite{
			ID:           fmt.Sprintf("site-%d", i),
			AccessMethod: domain.AccessMethodWebhook,
		}})
		require.NoError(t, err)
	}
	assert.Len(t, d.limiters, 5)

	// A repeat inside the window is still limited.
	now = now.Add(30 * time.Second)
	log, err := d.Dispatch(context.Background(), Request{Site: &domain.MonitoredSite{ID: "site-0", AccessMethod: domain.AccessMethodWebhook}})
	require.NoError(t, err)
	assert.Equal(t, domain.RepairStatusFailed, log.Status)

	now = now.Add(2 * time.Minute)
	log, err = d.Dispatch(context.Background(), Request{Site: &domain.MonitoredSite{ID: "site-9", AccessMethod: domain.AccessMethodWebhook}})
	require.NoError(t, err)
	assert.Equal(t, domain.RepairStatusSuccess, log.Status)
	assert.Len(t, d.limiters, 1, "only the site just repaired keeps a limiter")
}

func TestDispatch_NoRateLimit(t *testing.T) {
	adapter := &fakeAdapter{method: domain.AccessMethodWebhook, output: "sent", success: true}
	d := NewDispatcher(Config{}, &mockRepository{}, adapter)
	site := siteWith(domain.AccessMethodWebhook)

	for range 5 {
		log, err := d.Dispatch(context.Background(), Request{Site: site})
		require.NoError(t, err)
		assert.Equal(t, domain.RepairStatusSuccess, log.Status)
	}
	assert.Empty(t, d.limiters)
}
