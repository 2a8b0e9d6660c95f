package repair

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"
	"time"

	"github.com/leego972/sitewarden/internal/domain"
	"github.com/leego972/sitewarden/internal/pkg/ctxlog"
	"golang.org/x/time/rate"
)

// Config configures the dispatcher.
type Config struct {
	// Timeout bounds a single adapter call.
	Timeout time.Duration
	// RateLimit is the minimum spacing between repairs of one site once
	// the burst is used up. Zero disables rate limiting.
	RateLimit time.Duration
	RateBurst int
}

// DefaultConfig returns the default dispatcher configuration.
func DefaultConfig() Config {
	return Config{
		Timeout:   2 * time.Minute,
		RateLimit: time.Minute,
		RateBurst: 3,
	}
}

// Request describes one repair.
type Request struct {
	Site          *domain.MonitoredSite
	Action        domain.RepairAction
	CustomCommand string
	IncidentID    *string
	Trigger       domain.RepairTrigger
}

// Dispatcher routes repairs to the adapter registered for a site's access method.
type Dispatcher struct {
	config   Config
	repo     Repository
	adapters map[domain.AccessMethod]Adapter

	now       func() time.Time
	mu        sync.Mutex
	limiters  map[string]*siteLimiter
	lastSweep time.Time
}

type siteLimiter struct {
	*rate.Limiter
	lastUsed time.Time
}

// NewDispatcher creates a dispatcher with the given adapters.
func NewDispatcher(config Config, repo Repository, adapters ...Adapter) *Dispatcher {
	if config.Timeout <= 0 {
		config.Timeout = DefaultConfig().Timeout
	}
	if config.RateBurst <= 0 {
		config.RateBurst = 1
	}

	adapterMap := make(map[domain.AccessMethod]Adapter, len(adapters))
	for _, a := range adapters {
		adapterMap[a.Method()] = a
	}
	return &Dispatcher{
		config:   config,
		repo:     repo,
		adapters: adapterMap,
		now:      time.Now,
		limiters: make(map[string]*siteLimiter),
	}
}

// Supports reports whether an adapter is registered for method.
func (d *Dispatcher) Supports(method domain.AccessMethod) bool {
	_, ok := d.adapters[method]
	return ok
}

// Dispatch runs a repair and records it. A RepairLog is always written
// before the adapter runs and completed afterwards. The returned error is
// set only when the log itself could not be stored; adapter failures are
// reported through the log status.
func (d *Dispatcher) Dispatch(ctx context.Context, req Request) (*domain.RepairLog, error) {
	site := req.Site
	action := req.Action
	if action == "" {
		action = domain.AutoRepairAction(site.AccessMethod)
	}
	trigger := req.Trigger
	if trigger == "" {
		trigger = domain.RepairTriggerManual
	}

	log := &domain.RepairLog{
		SiteID:     site.ID,
		IncidentID: req.IncidentID,
		Action:     action,
		Method:     site.AccessMethod,
		Command:    req.CustomCommand,
		Trigger:    trigger,
		Status:     domain.RepairStatusRunning,
		StartedAt:  time.Now(),
	}
	if err := d.repo.CreateRepairLog(ctx, log); err != nil {
		return nil, fmt.Errorf("create repair log: %w", err)
	}

	ctx = ctxlog.With(ctx, "site_id", site.ID, "repair_id", log.ID, "method", site.AccessMethod, "action", action)
	logger := ctxlog.FromContext(ctx)
	logger.Info("repair started", "trigger", trigger)

	output, success := d.run(ctx, site, action, req.CustomCommand)

	completed := time.Now()
	duration := completed.Sub(log.StartedAt)
	log.CompletedAt = &completed
	log.DurationMs = int(duration.Milliseconds())
	log.Output = Sanitize(output)
	if success {
		log.Status = domain.RepairStatusSuccess
		logger.Info("repair succeeded", "duration", duration)
	} else {
		log.Status = domain.RepairStatusFailed
		log.ErrorMessage = log.Output
		logger.Warn("repair failed", "duration", duration, "output", log.Output)
	}
	recordRepair(string(site.AccessMethod), string(trigger), string(log.Status), duration)

	if err := d.repo.CompleteRepairLog(context.WithoutCancel(ctx), log); err != nil {
		return log, fmt.Errorf("complete repair log: %w", err)
	}
	return log, nil
}

func (d *Dispatcher) run(ctx context.Context, site *domain.MonitoredSite, action domain.RepairAction, customCommand string) (output string, success bool) {
	if site.AccessMethod == "" || site.AccessMethod == domain.AccessMethodNone {
		return "No access method configured for this site", false
	}
	adapter, ok := d.adapters[site.AccessMethod]
	if !ok {
		return fmt.Sprintf("Access method %s does not support automated repair", site.AccessMethod), false
	}
	if !d.allow(site.ID) {
		return "Repair rate limit exceeded for this site, try again later", false
	}

	// Repairs run to completion or to the repair timeout, even when the
	// request that triggered them goes away.
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), d.config.Timeout)
	defer cancel()

	defer func() {
		if r := recover(); r != nil {
			slog.Error("repair adapter panicked",
				"site_id", site.ID,
				"method", site.AccessMethod,
				"panic", r,
				"stack", string(debug.Stack()),
			)
			output = fmt.Sprintf("Repair adapter failed unexpectedly: %v", r)
			success = false
		}
	}()

	return adapter.Repair(ctx, site, action, customCommand)
}

// Verify checks the site's repair credentials without performing a repair.
// supported is false when the adapter cannot verify.
func (d *Dispatcher) Verify(ctx context.Context, site *domain.MonitoredSite) (output string, ok, supported bool) {
	adapter, found := d.adapters[site.AccessMethod]
	if !found {
		return "", false, false
	}
	verifier, canVerify := adapter.(Verifier)
	if !canVerify {
		return "", false, false
	}

	ctx, cancel := context.WithTimeout(ctx, d.config.Timeout)
	defer cancel()

	output, ok = verifier.Verify(ctx, site)
	return output, ok, true
}

// allow takes a token from the site's limiter. Limiters idle long enough to
// have refilled completely are dropped, since a fresh one behaves the same.
func (d *Dispatcher) allow(siteID string) bool {
	if d.config.RateLimit <= 0 {
		return true
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	now := d.now()
	idle := d.config.RateLimit * time.Duration(d.config.RateBurst)
	if now.Sub(d.lastSweep) >= idle {
		for id, l := range d.limiters {
			if now.Sub(l.lastUsed) >= idle {
				delete(d.limiters, id)
			}
		}
		d.lastSweep = now
	}

	l, ok := d.limiters[siteID]
	if !ok {
		l = &siteLimiter{Limiter: rate.NewLimiter(rate.Every(d.config.RateLimit), d.config.RateBurst)}
		d.limiters[siteID] = l
	}
	l.lastUsed = now
	return l.AllowN(now, 1)
}
