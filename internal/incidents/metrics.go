package incidents

import (
	"github.com/leego972/sitewarden/internal/domain"
	"github.com/leego972/sitewarden/internal/pkg/metrics"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	incidentsOpened = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: metrics.Namespace,
			Subsystem: "incidents",
			Name:      "opened_total",
			Help:      "Incidents opened by type and severity",
		},
		[]string{"type", "severity"},
	)

	incidentsClosed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: metrics.Namespace,
			Subsystem: "incidents",
			Name:      "closed_total",
			Help:      "Incidents closed by final status and how",
		},
		[]string{"status", "by"},
	)

	autoRepairs = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: metrics.Namespace,
			Subsystem: "incidents",
			Name:      "auto_repairs_total",
			Help:      "Automatic repairs started from incidents by result",
		},
		[]string{"result"},
	)
)

func recordOpened(inc *domain.SiteIncident) {
	incidentsOpened.WithLabelValues(string(inc.Type), string(inc.Severity)).Inc()
}

func recordClosed(status domain.IncidentStatus, by string) {
	incidentsClosed.WithLabelValues(string(status), by).Inc()
}

func recordAutoRepair(result string) {
	autoRepairs.WithLabelValues(result).Inc()
}
