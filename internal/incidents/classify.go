package incidents

import (
	"fmt"

	"github.com/leego972/sitewarden/internal/domain"
)

// Classify derives the incident type and severity from the check that
// opened it.
func Classify(hc *domain.HealthCheck) (domain.IncidentType, domain.Severity) {
	switch {
	case hc.ErrorType == domain.ErrorTypeDNSFailure:
		return domain.IncidentTypeDNSFailure, domain.SeverityCritical
	case hc.ErrorType == domain.ErrorTypeSSLError:
		return domain.IncidentTypeSSLInvalid, domain.SeverityCritical
	case hc.ErrorType == domain.ErrorTypeContentMismatch:
		return domain.IncidentTypeContentMismatch, domain.SeverityMedium
	case hc.Status == domain.HealthStatusDegraded:
		return domain.IncidentTypePerformanceDegradation, domain.SeverityMedium
	case hc.ErrorType == domain.ErrorTypeServerError:
		return domain.IncidentTypeErrorSpike, domain.SeverityHigh
	default:
		return domain.IncidentTypeDowntime, domain.SeverityHigh
	}
}

var typeSummaries = map[domain.IncidentType]string{
	domain.IncidentTypeDowntime:               "site is down",
	domain.IncidentTypeDNSFailure:             "DNS resolution failing",
	domain.IncidentTypeSSLInvalid:             "TLS handshake failing",
	domain.IncidentTypeSSLExpiry:              "certificate expiring",
	domain.IncidentTypeContentMismatch:        "expected content missing",
	domain.IncidentTypePerformanceDegradation: "responses are slow",
	domain.IncidentTypeErrorSpike:             "server errors",
	domain.IncidentTypeDeployFailure:          "deploy failed",
}

// NewIncident builds the incident opened by hc after failures consecutive
// failed checks.
func NewIncident(site *domain.MonitoredSite, hc *domain.HealthCheck, failures int) *domain.SiteIncident {
	typ, severity := Classify(hc)

	desc := fmt.Sprintf("%d consecutive failed checks of %s.", failures, site.URL)
	if hc.ErrorMessage != "" {
		desc += " Last error: " + hc.ErrorMessage
	}

	var responseMs *int
	if hc.HTTPStatusCode != nil || hc.ResponseTimeMs > 0 {
		ms := hc.ResponseTimeMs
		responseMs = &ms
	}

	return &domain.SiteIncident{
		SiteID:            site.ID,
		Type:              typ,
		Severity:          severity,
		Status:            domain.IncidentStatusOpen,
		Title:             fmt.Sprintf("%s: %s", site.Name, typeSummaries[typ]),
		Description:       desc,
		TriggerStatusCode: hc.HTTPStatusCode,
		TriggerResponseMs: responseMs,
		TriggerError:      hc.ErrorMessage,
		DetectedAt:        hc.CheckedAt,
	}
}
