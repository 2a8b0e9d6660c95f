package monitor

import (
	"time"

	"github.com/leego972/sitewarden/internal/domain"
	"github.com/leego972/sitewarden/internal/pkg/metrics"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	checksTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: metrics.Namespace,
			Subsystem: "monitor",
			Name:      "checks_total",
			Help:      "Health checks performed by resulting status",
		},
		[]string{"status", "error_type"},
	)

	checkDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: metrics.Namespace,
			Subsystem: "monitor",
			Name:      "probe_duration_seconds",
			Help:      "Observed probe response time",
			Buckets:   []float64{.05, .1, .25, .5, 1, 2.5, 5, 10, 30},
		},
	)

	tickDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: metrics.Namespace,
			Subsystem: "scheduler",
			Name:      "tick_duration_seconds",
			Help:      "Time to run one scheduler tick",
			Buckets:   []float64{.1, .5, 1, 2.5, 5, 10, 30, 60, 120},
		},
	)

	dueSites = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: metrics.Namespace,
			Subsystem: "scheduler",
			Name:      "due_sites",
			Help:      "Sites selected in the last tick",
		},
	)

	siteFailures = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: metrics.Namespace,
			Subsystem: "scheduler",
			Name:      "site_failures_total",
			Help:      "Per-site check pipeline failures caught by the scheduler",
		},
	)

	historyPruned = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: metrics.Namespace,
			Subsystem: "scheduler",
			Name:      "history_pruned_total",
			Help:      "History rows removed by retention",
		},
		[]string{"kind"},
	)

	isLeader = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: metrics.Namespace,
			Subsystem: "scheduler",
			Name:      "leader",
			Help:      "1 if this instance runs the scheduler",
		},
	)
)

func recordCheck(hc *domain.HealthCheck) {
	checksTotal.WithLabelValues(string(hc.Status), string(hc.ErrorType)).Inc()
	checkDuration.Observe((time.Duration(hc.ResponseTimeMs) * time.Millisecond).Seconds())
}

func recordTick(duration time.Duration, due int) {
	tickDuration.Observe(duration.Seconds())
	dueSites.Set(float64(due))
}

func recordSiteFailure() {
	siteFailures.Inc()
}

func recordPruned(res PruneResult) {
	historyPruned.WithLabelValues("health_checks").Add(float64(res.HealthChecks))
	historyPruned.WithLabelValues("repair_logs").Add(float64(res.RepairLogs))
}

func recordLeader(leading bool) {
	if leading {
		isLeader.Set(1)
		return
	}
	isLeader.Set(0)
}
