// Package audit records mutating operations performed through the API.
package audit

import (
	"context"
	"log/slog"

	"github.com/leego972/sitewarden/internal/pkg/ctxlog"
)

// Action names an audited operation.
type Action string

// Audited actions.
const (
	ActionSiteCreated      Action = "site.created"
	ActionSiteUpdated      Action = "site.updated"
	ActionSiteDeleted      Action = "site.deleted"
	ActionSitePaused       Action = "site.paused"
	ActionSiteResumed      Action = "site.resumed"
	ActionRepairTriggered  Action = "repair.triggered"
	ActionIncidentResolved Action = "incident.resolved"
	ActionIncidentIgnored  Action = "incident.ignored"
)

// Entry is one audit record.
type Entry struct {
	UserID     string
	Action     Action
	TargetType string
	TargetID   string
	Details    map[string]any
}

// Sink receives audit entries. Implementations must not block for long.
type Sink interface {
	Record(ctx context.Context, e Entry)
}

// LogSink writes audit entries to a structured logger.
type LogSink struct {
	logger *slog.Logger
}

// NewLogSink creates a sink writing to logger, or to the context logger when nil.
func NewLogSink(logger *slog.Logger) *LogSink {
	return &LogSink{logger: logger}
}

// Record implements Sink.
func (s *LogSink) Record(ctx context.Context, e Entry) {
	logger := s.logger
	if logger == nil {
		logger = ctxlog.FromContext(ctx)
	}

	attrs := []any{
		"audit", true,
		"user_id", e.UserID,
		"action", string(e.Action),
		"target_type", e.TargetType,
		"target_id", e.TargetID,
	}
	if len(e.Details) > 0 {
		attrs = append(attrs, "details", e.Details)
	}
	logger.InfoContext(ctx, "audit", attrs...)
}
