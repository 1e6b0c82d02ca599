package repositories

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/tmackenzie/veridian/internal/database"
	"github.com/tmackenzie/veridian/internal/models"
)

// VerificationLogRepository records public verification attempts.
type VerificationLogRepository struct {
	pool *pgxpool.Pool
}

func NewVerificationLogRepository(db *database.DB) *VerificationLogRepository {
	return &VerificationLogRepository{pool: db.Pool}
}

func (r *VerificationLogRepository) Record(ctx context.Context, entry *models.VerificationLog) error {
	query := `
		INSERT INTO verification_logs (certificate_id, serial, ip_address, result, verified_at)
		VALUES ($1, $2, $3, $4, $5)
	`

	if entry.VerifiedAt.IsZero() {
		entry.VerifiedAt = time.Now()
	}

	_, err := r.pool.Exec(ctx, query,
		entry.CertificateID, entry.Serial, entry.IPAddress, entry.Result, entry.VerifiedAt,
	)
	return err
}

// ListByCertificate returns the verification history for a certificate,
// newest first.
func (r *VerificationLogRepository) ListByCertificate(ctx context.Context, certificateID string, limit, offset int) ([]*models.VerificationLog, error) {
	query := `
		SELECT id, certificate_id, serial, ip_address, result, verified_at
		FROM verification_logs
		WHERE certificate_id = $1
		ORDER BY verified_at DESC
		LIMIT $2 OFFSET $3
	`

	rows, err := r.pool.Query(ctx, query, certificateID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to query verification logs: %w", err)
	}
	defer rows.Close()

	logs := make([]*models.VerificationLog, 0)
	for rows.Next() {
		var entry models.VerificationLog
		if err := rows.Scan(
			&entry.ID, &entry.CertificateID, &entry.Serial,
			&entry.IPAddress, &entry.Result, &entry.VerifiedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan verification log: %w", err)
		}
		logs = append(logs, &entry)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows: %w", err)
	}

	return logs, nil
}

// DeleteOlderThan prunes verification logs past the retention cutoff.
func (r *VerificationLogRepository) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	result, err := r.pool.Exec(ctx, `DELETE FROM verification_logs WHERE verified_at < $1`, cutoff)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected(), nil
}
