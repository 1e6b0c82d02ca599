package background

import (
	"context"
	"log/slog"
	"time"

	"github.com/tmackenzie/veridian/internal/repositories"
)

const (
	// rateLimitRetention keeps attempt rows well past the widest window so
	// operators can inspect recent abuse before rows disappear.
	rateLimitRetention = 24 * time.Hour

	// verificationLogRetention bounds the public verification audit trail.
	verificationLogRetention = 90 * 24 * time.Hour

	// auditLogRetention keeps security events for a year.
	auditLogRetention = 365 * 24 * time.Hour
)

// CleanupManager periodically prunes expired sessions, stale rate limit
// rows, aged verification logs, and old audit rows.
type CleanupManager struct {
	sessions   *repositories.SessionRepository
	rateLimits *repositories.RateLimitRepository
	verifyLogs *repositories.VerificationLogRepository
	auditLogs  *repositories.AuditLogRepository
	logger     *slog.Logger
	interval   time.Duration
	stopCh     chan struct{}
}

// NewCleanupManager creates a new cleanup manager
func NewCleanupManager(
	sessions *repositories.SessionRepository,
	rateLimits *repositories.RateLimitRepository,
	verifyLogs *repositories.VerificationLogRepository,
	auditLogs *repositories.AuditLogRepository,
	logger *slog.Logger,
	interval time.Duration,
) *CleanupManager {
	return &CleanupManager{
		sessions:   sessions,
		rateLimits: rateLimits,
		verifyLogs: verifyLogs,
		auditLogs:  auditLogs,
		logger:     logger,
		interval:   interval,
		stopCh:     make(chan struct{}),
	}
}

// Start begins the periodic cleanup task
func (cm *CleanupManager) Start(ctx context.Context) {
	ticker := time.NewTicker(cm.interval)
	defer ticker.Stop()

	// Run immediately on startup
	cm.runCleanup(ctx)

	for {
		select {
		case <-ticker.C:
			cm.runCleanup(ctx)
		case <-cm.stopCh:
			cm.logger.Info("cleanup manager stopped")
			return
		case <-ctx.Done():
			cm.logger.Info("cleanup manager context cancelled")
			return
		}
	}
}

// runCleanup prunes each table in turn. A failure on one table does not
// block the others.
func (cm *CleanupManager) runCleanup(ctx context.Context) {
	cm.logger.Info("starting storage cleanup")

	cleanupCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	if deleted, err := cm.sessions.DeleteExpired(cleanupCtx); err != nil {
		cm.logger.Error("failed to delete expired sessions", slog.Any("error", err))
	} else if deleted > 0 {
		cm.logger.Info("expired sessions deleted", slog.Int64("rows_deleted", deleted))
	}

	if deleted, err := cm.rateLimits.DeleteOlderThan(cleanupCtx, time.Now().Add(-rateLimitRetention)); err != nil {
		cm.logger.Error("failed to prune rate limit rows", slog.Any("error", err))
	} else if deleted > 0 {
		cm.logger.Info("rate limit rows pruned", slog.Int64("rows_deleted", deleted))
	}

	if deleted, err := cm.verifyLogs.DeleteOlderThan(cleanupCtx, time.Now().Add(-verificationLogRetention)); err != nil {
		cm.logger.Error("failed to prune verification logs", slog.Any("error", err))
	} else if deleted > 0 {
		cm.logger.Info("verification logs pruned", slog.Int64("rows_deleted", deleted))
	}

	if deleted, err := cm.auditLogs.DeleteOlderThan(cleanupCtx, time.Now().Add(-auditLogRetention)); err != nil {
		cm.logger.Error("failed to prune audit logs", slog.Any("error", err))
	} else if deleted > 0 {
		cm.logger.Info("audit logs pruned", slog.Int64("rows_deleted", deleted))
	}
}

// Stop signals the cleanup manager to stop
func (cm *CleanupManager) Stop() {
	close(cm.stopCh)
}
