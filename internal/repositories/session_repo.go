package repositories

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/tmackenzie/veridian/internal/database"
	"github.com/tmackenzie/veridian/internal/models"
)

const sessionColumns = `id, account_id, role, csrf_token, csrf_expires_at, created_at, expires_at`

type SessionRepository struct {
	db   *database.DB
	pool *pgxpool.Pool
}

func NewSessionRepository(db *database.DB) *SessionRepository {
	return &SessionRepository{db: db, pool: db.Pool}
}

func scanSessionRow(scanner rowScanner) (*models.Session, error) {
	var session models.Session

	err := scanner.Scan(
		&session.ID, &session.AccountID, &session.Role,
		&session.CSRFToken, &session.CSRFExpiresAt,
		&session.CreatedAt, &session.ExpiresAt,
	)
	if err != nil {
		return nil, database.MapPostgresError(err)
	}

	return &session, nil
}

func (r *SessionRepository) Get(ctx context.Context, id string) (*models.Session, error) {
	query := `SELECT ` + sessionColumns + ` FROM sessions WHERE id = $1`
	return scanSessionRow(r.pool.QueryRow(ctx, query, id))
}

func (r *SessionRepository) Create(ctx context.Context, session *models.Session) error {
	query := `
		INSERT INTO sessions (id, account_id, role, csrf_token, csrf_expires_at, created_at, expires_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`

	_, err := r.pool.Exec(ctx, query,
		session.ID, session.AccountID, session.Role,
		session.CSRFToken, session.CSRFExpiresAt,
		session.CreatedAt, session.ExpiresAt,
	)
	return database.MapPostgresError(err)
}

// Replace inserts the regenerated session and removes the old row in one
// transaction, so no moment exists where both IDs are live or neither is.
func (r *SessionRepository) Replace(ctx context.Context, oldID string, session *models.Session) error {
	return r.db.WithTransaction(ctx, func(tx pgx.Tx) error {
		insertQuery := `
			INSERT INTO sessions (id, account_id, role, csrf_token, csrf_expires_at, created_at, expires_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7)
		`
		if _, err := tx.Exec(ctx, insertQuery,
			session.ID, session.AccountID, session.Role,
			session.CSRFToken, session.CSRFExpiresAt,
			session.CreatedAt, session.ExpiresAt,
		); err != nil {
			return err
		}

		if _, err := tx.Exec(ctx, `DELETE FROM sessions WHERE id = $1`, oldID); err != nil {
			return err
		}

		return nil
	})
}

// UpdateCSRF stores a freshly issued CSRF token on the session row.
func (r *SessionRepository) UpdateCSRF(ctx context.Context, id, token string, expiresAt time.Time) error {
	query := `UPDATE sessions SET csrf_token = $2, csrf_expires_at = $3 WHERE id = $1`

	result, err := r.pool.Exec(ctx, query, id, token, expiresAt)
	if err != nil {
		return database.MapPostgresError(err)
	}
	if result.RowsAffected() == 0 {
		return models.ErrNotFound
	}
	return nil
}

// Delete is idempotent: destroying an already-destroyed session succeeds.
func (r *SessionRepository) Delete(ctx context.Context, id string) error {
	_, err := r.pool.Exec(ctx, `DELETE FROM sessions WHERE id = $1`, id)
	return database.MapPostgresError(err)
}

func (r *SessionRepository) DeleteByAccount(ctx context.Context, accountID string) error {
	_, err := r.pool.Exec(ctx, `DELETE FROM sessions WHERE account_id = $1`, accountID)
	return database.MapPostgresError(err)
}

// DeleteExpired removes sessions past their lifetime.
func (r *SessionRepository) DeleteExpired(ctx context.Context) (int64, error) {
	result, err := r.pool.Exec(ctx, `DELETE FROM sessions WHERE expires_at <= now()`)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected(), nil
}
