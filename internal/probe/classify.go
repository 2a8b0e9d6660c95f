package probe

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/leego972/sitewarden/internal/domain"
)

// Verdict is the classified health of one probe.
type Verdict struct {
	Status      domain.HealthStatus
	ErrorType   domain.ErrorType
	Message     string
	BodyMatched *bool
}

// Classify maps an outcome to a health verdict. Rules apply in order:
// transport failure, status mismatch, missing body text, latency, healthy.
func Classify(out Outcome, exp domain.Expectations) Verdict {
	if out.Err != nil {
		return Verdict{
			Status:    domain.HealthStatusDown,
			ErrorType: out.ErrorType,
			Message:   out.Err.Error(),
		}
	}
	if out.TLS != nil && out.TLS.HandshakeFailed {
		return Verdict{
			Status:    domain.HealthStatusDown,
			ErrorType: domain.ErrorTypeSSLError,
			Message:   errString(out.TLS.Err, "tls handshake failed"),
		}
	}

	if want := exp.StatusCode(); out.StatusCode != want {
		msg := fmt.Sprintf("expected status %d, got %d %s", want, out.StatusCode, http.StatusText(out.StatusCode))
		if out.StatusCode >= http.StatusInternalServerError {
			return Verdict{Status: domain.HealthStatusDown, ErrorType: domain.ErrorTypeServerError, Message: msg}
		}
		return Verdict{Status: domain.HealthStatusError, ErrorType: domain.ErrorTypeClientError, Message: msg}
	}

	var matched *bool
	if exp.ExpectedBodyContains != "" {
		ok := strings.Contains(string(out.Body), exp.ExpectedBodyContains)
		matched = &ok
		if !ok {
			return Verdict{
				Status:      domain.HealthStatusError,
				ErrorType:   domain.ErrorTypeContentMismatch,
				Message:     fmt.Sprintf("response body does not contain %q", exp.ExpectedBodyContains),
				BodyMatched: matched,
			}
		}
	}

	if limit := exp.PerformanceThresholdMs; limit > 0 && out.Elapsed.Milliseconds() > int64(limit) {
		return Verdict{
			Status:      domain.HealthStatusDegraded,
			ErrorType:   domain.ErrorTypeSlowResponse,
			Message:     fmt.Sprintf("response took %dms, threshold %dms", out.Elapsed.Milliseconds(), limit),
			BodyMatched: matched,
		}
	}

	return Verdict{Status: domain.HealthStatusHealthy, BodyMatched: matched}
}

// HealthCheck assembles the record persisted for a classified outcome.
func HealthCheck(siteID string, out Outcome, v Verdict) *domain.HealthCheck {
	hc := &domain.HealthCheck{
		SiteID:         siteID,
		CheckedAt:      out.StartedAt,
		Status:         v.Status,
		ResponseTimeMs: int(out.Elapsed.Milliseconds()),
		BodyMatched:    v.BodyMatched,
		ErrorType:      v.ErrorType,
		ErrorMessage:   v.Message,
	}
	if out.StatusCode != 0 {
		code := out.StatusCode
		hc.HTTPStatusCode = &code
	}
	if out.TLS != nil {
		valid := out.TLS.Valid
		hc.SSLValid = &valid
		if !out.TLS.ExpiresAt.IsZero() {
			exp := out.TLS.ExpiresAt
			hc.SSLExpiresAt = &exp
		}
		hc.SSLIssuer = out.TLS.Issuer
	}
	return hc
}

func errString(err error, fallback string) string {
	if err == nil {
		return fallback
	}
	return err.Error()
}
