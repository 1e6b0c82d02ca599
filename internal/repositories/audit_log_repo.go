package repositories

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/tmackenzie/veridian/internal/database"
	pkglogger "github.com/tmackenzie/veridian/pkg/logger"
)

// AuditLogRepository persists security audit events. It backs the audit
// logger's durable half; the slog half needs no storage.
type AuditLogRepository struct {
	pool *pgxpool.Pool
}

func NewAuditLogRepository(db *database.DB) *AuditLogRepository {
	return &AuditLogRepository{pool: db.Pool}
}

// Insert appends one audit row. Empty identity fields land as NULL so
// the table stays queryable by what is actually known per event.
func (r *AuditLogRepository) Insert(ctx context.Context, event pkglogger.AuditEvent) error {
	query := `
		INSERT INTO audit_logs (event_type, username, account_id, ip_address, user_agent, success, failure_reason, metadata)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`

	var metadata []byte
	if len(event.Metadata) > 0 {
		encoded, err := json.Marshal(event.Metadata)
		if err != nil {
			return fmt.Errorf("failed to encode audit metadata: %w", err)
		}
		metadata = encoded
	}

	_, err := r.pool.Exec(ctx, query,
		event.EventType,
		nullIfEmpty(event.Username),
		nullIfEmpty(event.AccountID),
		nullIfEmpty(event.IPAddress),
		nullIfEmpty(event.UserAgent),
		event.Success,
		nullIfEmpty(event.FailureReason),
		metadata,
	)
	return database.MapPostgresError(err)
}

// DeleteOlderThan prunes audit rows past the retention cutoff.
func (r *AuditLogRepository) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	result, err := r.pool.Exec(ctx, `DELETE FROM audit_logs WHERE created_at < $1`, cutoff)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected(), nil
}

func nullIfEmpty(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
