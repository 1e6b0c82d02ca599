package repositories

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/tmackenzie/veridian/internal/database"
	"github.com/tmackenzie/veridian/internal/models"
)

const certificateColumns = `id, serial, holder_name, holder_email, title, status, issued_by,
		issued_at, expires_at, revoked_at, revoke_reason, file_path, created_at, updated_at`

type CertificateRepository struct {
	db   *database.DB
	pool *pgxpool.Pool
}

func NewCertificateRepository(db *database.DB) *CertificateRepository {
	return &CertificateRepository{db: db, pool: db.Pool}
}

func scanCertificateRow(scanner rowScanner) (*models.Certificate, error) {
	var cert models.Certificate

	err := scanner.Scan(
		&cert.ID, &cert.Serial, &cert.HolderName, &cert.HolderEmail,
		&cert.Title, &cert.Status, &cert.IssuedBy,
		&cert.IssuedAt, &cert.ExpiresAt, &cert.RevokedAt, &cert.RevokeReason,
		&cert.FilePath, &cert.CreatedAt, &cert.UpdatedAt,
	)
	if err != nil {
		return nil, database.MapPostgresError(err)
	}

	return &cert, nil
}

func (r *CertificateRepository) Create(ctx context.Context, cert *models.Certificate) (*models.Certificate, error) {
	cert.ID = uuid.New().String()

	now := time.Now()
	cert.CreatedAt = now
	cert.UpdatedAt = now
	if cert.IssuedAt.IsZero() {
		cert.IssuedAt = now
	}
	if cert.Status == "" {
		cert.Status = models.CertificateActive
	}

	query := `
		INSERT INTO certificates (id, serial, holder_name, holder_email, title, status, issued_by, issued_at, expires_at, file_path, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		RETURNING ` + certificateColumns

	return scanCertificateRow(r.pool.QueryRow(ctx, query,
		cert.ID, cert.Serial, cert.HolderName, cert.HolderEmail,
		cert.Title, cert.Status, cert.IssuedBy,
		cert.IssuedAt, cert.ExpiresAt, cert.FilePath,
		cert.CreatedAt, cert.UpdatedAt,
	))
}

func (r *CertificateRepository) GetByID(ctx context.Context, id string) (*models.Certificate, error) {
	query := `SELECT ` + certificateColumns + ` FROM certificates WHERE id = $1`
	return scanCertificateRow(r.pool.QueryRow(ctx, query, id))
}

func (r *CertificateRepository) GetBySerial(ctx context.Context, serial string) (*models.Certificate, error) {
	query := `SELECT ` + certificateColumns + ` FROM certificates WHERE serial = $1`
	return scanCertificateRow(r.pool.QueryRow(ctx, query, serial))
}

// List returns certificates newest first, optionally filtered by status.
func (r *CertificateRepository) List(ctx context.Context, status string, limit, offset int) ([]*models.Certificate, error) {
	var rows pgx.Rows
	var err error

	if status != "" {
		query := `SELECT ` + certificateColumns + ` FROM certificates WHERE status = $1 ORDER BY issued_at DESC LIMIT $2 OFFSET $3`
		rows, err = r.pool.Query(ctx, query, status, limit, offset)
	} else {
		query := `SELECT ` + certificateColumns + ` FROM certificates ORDER BY issued_at DESC LIMIT $1 OFFSET $2`
		rows, err = r.pool.Query(ctx, query, limit, offset)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query certificates: %w", err)
	}
	defer rows.Close()

	certs := make([]*models.Certificate, 0)
	for rows.Next() {
		cert, err := scanCertificateRow(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan certificate: %w", err)
		}
		certs = append(certs, cert)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows: %w", err)
	}

	return certs, nil
}

// Revoke marks an active certificate revoked. Revoking twice is a no-op
// reported as conflict.
func (r *CertificateRepository) Revoke(ctx context.Context, id, reason string) (*models.Certificate, error) {
	query := `
		UPDATE certificates
		SET status = $2, revoked_at = now(), revoke_reason = $3, updated_at = now()
		WHERE id = $1 AND status = $4
		RETURNING ` + certificateColumns

	cert, err := scanCertificateRow(r.pool.QueryRow(ctx, query,
		id, models.CertificateRevoked, reason, models.CertificateActive,
	))
	if errors.Is(err, models.ErrNotFound) {
		// Distinguish "no such certificate" from "already revoked"
		if _, getErr := r.GetByID(ctx, id); getErr == nil {
			return nil, models.ErrConflict
		}
		return nil, models.ErrNotFound
	}
	return cert, err
}

// DeleteWithLogs removes the certificate row and its dependent
// verification-log rows in one transaction; either both go or neither
// does. Associated file removal happens after commit, outside this call.
func (r *CertificateRepository) DeleteWithLogs(ctx context.Context, id string) error {
	return r.db.WithTransaction(ctx, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `DELETE FROM verification_logs WHERE certificate_id = $1`, id); err != nil {
			return err
		}

		result, err := tx.Exec(ctx, `DELETE FROM certificates WHERE id = $1`, id)
		if err != nil {
			return err
		}
		if result.RowsAffected() == 0 {
			return models.ErrNotFound
		}

		return nil
	})
}
