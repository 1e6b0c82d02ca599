package logger

import (
	"context"
	"log/slog"
	"time"
)

// AuditEvent represents a security audit event. The full detail lands in
// the security log even when the HTTP surface reports a generic error.
type AuditEvent struct {
	EventType     string
	Username      string
	AccountID     string
	IPAddress     string
	UserAgent     string
	Success       bool
	FailureReason string
	Metadata      map[string]string
}

// AuditStore persists audit events for later review. Implemented by the
// audit log repository; a nil store keeps the logger slog-only.
type AuditStore interface {
	Insert(ctx context.Context, event AuditEvent) error
}

// AuditLogger dual-writes audit events: immediate slog output plus a
// durable row when a store is attached. Persistence failures are logged
// and never surface to the caller.
type AuditLogger struct {
	logger *slog.Logger
	store  AuditStore
}

// NewAuditLogger creates a new audit logger
func NewAuditLogger(logger *slog.Logger, store AuditStore) *AuditLogger {
	return &AuditLogger{
		logger: logger,
		store:  store,
	}
}

// LogAuthAttempt logs authentication and abuse-control events
func (al *AuditLogger) LogAuthAttempt(event AuditEvent) {
	attrs := []slog.Attr{
		slog.String("audit_type", "auth"),
		slog.String("event_type", event.EventType),
		slog.Bool("success", event.Success),
		slog.String("timestamp", time.Now().UTC().Format(time.RFC3339)),
	}

	if event.Username != "" {
		attrs = append(attrs, slog.String("username", event.Username))
	}
	if event.AccountID != "" {
		attrs = append(attrs, slog.String("account_id", event.AccountID))
	}
	if event.IPAddress != "" {
		attrs = append(attrs, slog.String("ip_address", event.IPAddress))
	}
	if event.UserAgent != "" {
		attrs = append(attrs, slog.String("user_agent", event.UserAgent))
	}
	if event.FailureReason != "" {
		attrs = append(attrs, slog.String("failure_reason", event.FailureReason))
	}

	if event.Success {
		al.logger.LogAttrs(context.Background(), slog.LevelInfo, "audit", attrs...)
	} else {
		al.logger.LogAttrs(context.Background(), slog.LevelWarn, "audit", attrs...)
	}

	al.persist(event)
}

// LogCertificateAction logs issue/revoke/delete actions on certificates
func (al *AuditLogger) LogCertificateAction(eventType, accountID, serial, ipAddress string, metadata map[string]string) {
	attrs := []slog.Attr{
		slog.String("audit_type", "certificate"),
		slog.String("event_type", eventType),
		slog.String("account_id", accountID),
		slog.String("serial", serial),
		slog.String("timestamp", time.Now().UTC().Format(time.RFC3339)),
	}

	if ipAddress != "" {
		attrs = append(attrs, slog.String("ip_address", ipAddress))
	}

	for key, val := range metadata {
		attrs = append(attrs, slog.String(key, val))
	}

	al.logger.LogAttrs(context.Background(), slog.LevelInfo, "audit", attrs...)

	merged := map[string]string{"serial": serial}
	for key, val := range metadata {
		merged[key] = val
	}
	al.persist(AuditEvent{
		EventType: eventType,
		AccountID: accountID,
		IPAddress: ipAddress,
		Success:   true,
		Metadata:  merged,
	})
}

func (al *AuditLogger) persist(event AuditEvent) {
	if al.store == nil {
		return
	}
	if err := al.store.Insert(context.Background(), event); err != nil {
		al.logger.Error("failed to persist audit event",
			slog.String("event_type", event.EventType),
			slog.Any("error", err))
	}
}
