package repair

import (
	"time"

	"github.com/leego972/sitewarden/internal/pkg/metrics"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	repairsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: metrics.Namespace,
			Subsystem: "repair",
			Name:      "attempts_total",
			Help:      "Repair attempts by method, trigger and result",
		},
		[]string{"method", "trigger", "status"},
	)

	repairDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: metrics.Namespace,
			Subsystem: "repair",
			Name:      "duration_seconds",
			Help:      "Time spent in repair adapters",
			Buckets:   []float64{.1, .25, .5, 1, 2.5, 5, 10, 30, 60, 120},
		},
		[]string{"method"},
	)
)

func recordRepair(method, trigger, status string, duration time.Duration) {
	repairsTotal.WithLabelValues(method, trigger, status).Inc()
	repairDuration.WithLabelValues(method).Observe(duration.Seconds())
}
