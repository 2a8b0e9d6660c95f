package domain

// PlanTier identifies a subscription plan.
type PlanTier string

// Plan tiers.
const (
	PlanFree       PlanTier = "free"
	PlanStarter    PlanTier = "starter"
	PlanPro        PlanTier = "pro"
	PlanEnterprise PlanTier = "enterprise"
)

// IsValid checks if the tier is known.
func (p PlanTier) IsValid() bool {
	switch p {
	case PlanFree, PlanStarter, PlanPro, PlanEnterprise:
		return true
	}
	return false
}

// PlanLimits are the monitoring limits unlocked by a plan.
type PlanLimits struct {
	MaxSites            int  `koanf:"max_sites" json:"max_sites"`
	MinIntervalSeconds  int  `koanf:"min_interval_seconds" json:"min_interval_seconds"`
	AutoRepairEnabled   bool `koanf:"auto_repair_enabled" json:"auto_repair_enabled"`
	SSLCheckEnabled     bool `koanf:"ssl_check_enabled" json:"ssl_check_enabled"`
	PerformanceMetrics  bool `koanf:"performance_metrics" json:"performance_metrics"`
	MaxCheckHistoryDays int  `koanf:"max_check_history_days" json:"max_check_history_days"`
}
