package httputil

import (
	"context"
	"errors"
	"net/http"

	"github.com/leego972/sitewarden/internal/domain"
	"github.com/leego972/sitewarden/internal/pkg/ctxlog"
)

// ErrorMapping defines how a domain error maps to an HTTP response.
type ErrorMapping struct {
	Error   error
	Status  int
	Message string // if empty, uses err.Error()
}

// Mappings applied after the handler's own.
var fallbackMappings = []ErrorMapping{
	{Error: domain.ErrUnavailable, Status: http.StatusServiceUnavailable, Message: "service temporarily unavailable"},
	// Probes and repairs run inside the request; they stop at the write timeout.
	{Error: context.DeadlineExceeded, Status: http.StatusGatewayTimeout, Message: "request timed out"},
}

// HandleError maps a domain error to an HTTP response using provided mappings.
// Storage outages map to 503 and timeouts to 504. Anything unmatched is
// logged and returned as 500.
func HandleError(ctx context.Context, w http.ResponseWriter, err error, mappings []ErrorMapping) {
	all := make([]ErrorMapping, 0, len(mappings)+len(fallbackMappings))
	all = append(append(all, mappings...), fallbackMappings...)
	for _, m := range all {
		if errors.Is(err, m.Error) {
			msg := m.Message
			if msg == "" {
				msg = err.Error()
			}
			if m.Status >= http.StatusInternalServerError {
				ctxlog.FromContext(ctx).Warn("request failed", "status", m.Status, "error", err)
			}
			Error(w, m.Status, msg)
			return
		}
	}
	ctxlog.FromContext(ctx).Error("internal error", "error", err)
	Error(w, http.StatusInternalServerError, "internal error")
}
