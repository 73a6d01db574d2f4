package logger

import (
	"context"
	"log/slog"
	"time"
)

// AuditEvent represents a security audit event
type AuditEvent struct {
	EventType     string
	UserID        string
	IPAddress     string
	Success       bool
	FailureReason string
	Metadata      map[string]string
}

// AuditLogger provides audit logging functionality
type AuditLogger struct {
	logger *slog.Logger
}

// NewAuditLogger creates a new audit logger
func NewAuditLogger(logger *slog.Logger) *AuditLogger {
	return &AuditLogger{
		logger: logger,
	}
}

// LogLoginDecision logs admission-control outcomes: evaluations, denials
// and recorded attempt results. Email addresses never appear here; the
// IP and the deny reason are enough for correlation.
func (al *AuditLogger) LogLoginDecision(event AuditEvent) {
	attrs := []slog.Attr{
		slog.String("audit_type", "admission"),
		slog.String("event_type", event.EventType),
		slog.Bool("success", event.Success),
		slog.String("timestamp", time.Now().UTC().Format(time.RFC3339)),
	}

	if event.IPAddress != "" {
		attrs = append(attrs, slog.String("ip_address", event.IPAddress))
	}
	if event.FailureReason != "" {
		attrs = append(attrs, slog.String("failure_reason", event.FailureReason))
	}

	if event.Success {
		al.logger.LogAttrs(context.Background(), slog.LevelInfo, "audit", attrs...)
	} else {
		al.logger.LogAttrs(context.Background(), slog.LevelWarn, "audit", attrs...)
	}
}

// LogBlacklistAction logs admin mutations of the ban registry
func (al *AuditLogger) LogBlacklistAction(eventType, adminID, entryID string, metadata map[string]string) {
	attrs := []slog.Attr{
		slog.String("audit_type", "blacklist"),
		slog.String("event_type", eventType),
		slog.String("entry_id", entryID),
		slog.String("timestamp", time.Now().UTC().Format(time.RFC3339)),
	}

	if adminID != "" {
		attrs = append(attrs, slog.String("admin_id", adminID))
	}

	for key, val := range metadata {
		attrs = append(attrs, slog.String(key, val))
	}

	al.logger.LogAttrs(context.Background(), slog.LevelInfo, "audit", attrs...)
}
