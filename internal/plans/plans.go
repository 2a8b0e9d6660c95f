// Package plans resolves monitoring limits for subscription tiers.
package plans

import (
	"fmt"
	"log/slog"
	"maps"

	"dario.cat/mergo"
	"github.com/leego972/sitewarden/internal/domain"
)

// Unlimited as MaxSites disables the site quota.
const Unlimited = 0

// Defaults are the built-in limits per tier.
func Defaults() map[domain.PlanTier]domain.PlanLimits {
	return map[domain.PlanTier]domain.PlanLimits{
		domain.PlanFree: {
			MaxSites:            3,
			MinIntervalSeconds:  300,
			SSLCheckEnabled:     true,
			MaxCheckHistoryDays: 7,
		},
		domain.PlanStarter: {
			MaxSites:            10,
			MinIntervalSeconds:  60,
			SSLCheckEnabled:     true,
			PerformanceMetrics:  true,
			MaxCheckHistoryDays: 30,
		},
		domain.PlanPro: {
			MaxSites:            50,
			MinIntervalSeconds:  30,
			AutoRepairEnabled:   true,
			SSLCheckEnabled:     true,
			PerformanceMetrics:  true,
			MaxCheckHistoryDays: 90,
		},
		domain.PlanEnterprise: {
			MaxSites:            Unlimited,
			MinIntervalSeconds:  15,
			AutoRepairEnabled:   true,
			SSLCheckEnabled:     true,
			PerformanceMetrics:  true,
			MaxCheckHistoryDays: 365,
		},
	}
}

// Override changes selected limits of one tier. Nil fields keep the
// default, so an override can also switch a feature off or set a limit to 0.
type Override struct {
	MaxSites            *int  `koanf:"max_sites"`
	MinIntervalSeconds  *int  `koanf:"min_interval_seconds"`
	AutoRepairEnabled   *bool `koanf:"auto_repair_enabled"`
	SSLCheckEnabled     *bool `koanf:"ssl_check_enabled"`
	PerformanceMetrics  *bool `koanf:"performance_metrics"`
	MaxCheckHistoryDays *int  `koanf:"max_check_history_days"`
}

func overrideOf(l domain.PlanLimits) Override {
	return Override{
		MaxSites:            &l.MaxSites,
		MinIntervalSeconds:  &l.MinIntervalSeconds,
		AutoRepairEnabled:   &l.AutoRepairEnabled,
		SSLCheckEnabled:     &l.SSLCheckEnabled,
		PerformanceMetrics:  &l.PerformanceMetrics,
		MaxCheckHistoryDays: &l.MaxCheckHistoryDays,
	}
}

func (o Override) limits() domain.PlanLimits {
	return domain.PlanLimits{
		MaxSites:            *o.MaxSites,
		MinIntervalSeconds:  *o.MinIntervalSeconds,
		AutoRepairEnabled:   *o.AutoRepairEnabled,
		SSLCheckEnabled:     *o.SSLCheckEnabled,
		PerformanceMetrics:  *o.PerformanceMetrics,
		MaxCheckHistoryDays: *o.MaxCheckHistoryDays,
	}
}

// Provider returns plan limits keyed by tier.
type Provider struct {
	limits map[domain.PlanTier]domain.PlanLimits
}

// NewProvider merges overrides onto the defaults.
func NewProvider(overrides map[domain.PlanTier]Override) (*Provider, error) {
	limits := Defaults()
	for tier, override := range overrides {
		if !tier.IsValid() {
			return nil, fmt.Errorf("unknown plan tier %q", tier)
		}
		// Without dereferencing, any set pointer wins, including false and 0.
		merged := overrideOf(limits[tier])
		if err := mergo.Merge(&merged, override, mergo.WithOverride, mergo.WithoutDereference); err != nil {
			return nil, fmt.Errorf("merge %s plan overrides: %w", tier, err)
		}
		limits[tier] = merged.limits()
		slog.Debug("plan limits overridden", "tier", tier, "limits", limits[tier])
	}
	return &Provider{limits: limits}, nil
}

// Limits returns the limits for tier. Unknown tiers get the free plan.
func (p *Provider) Limits(tier domain.PlanTier) domain.PlanLimits {
	if l, ok := p.limits[tier]; ok {
		return l
	}
	return p.limits[domain.PlanFree]
}

// All returns a copy of every tier's limits.
func (p *Provider) All() map[domain.PlanTier]domain.PlanLimits {
	return maps.Clone(p.limits)
}

// SiteQuotaReached reports whether owning current sites exhausts the plan.
func SiteQuotaReached(limits domain.PlanLimits, current int) bool {
	return limits.MaxSites != Unlimited && current >= limits.MaxSites
}
