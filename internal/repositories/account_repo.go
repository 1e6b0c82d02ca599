package repositories

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/tmackenzie/veridian/internal/database"
	"github.com/tmackenzie/veridian/internal/models"
)

const accountColumns = `id, username, email, password_hash, role, failed_login_attempts,
		last_failed_login, account_locked, password_change_required, last_password_change,
		created_at, updated_at`

type AccountRepository struct {
	pool *pgxpool.Pool
}

func NewAccountRepository(db *database.DB) *AccountRepository {
	return &AccountRepository{pool: db.Pool}
}

// rowScanner covers both pgx.Row and pgx.Rows
type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanAccountRow(scanner rowScanner) (*models.Account, error) {
	var account models.Account
	var lastFailedLogin, lastPasswordChange *time.Time

	err := scanner.Scan(
		&account.ID, &account.Username, &account.Email, &account.PasswordHash,
		&account.Role, &account.FailedLoginAttempts,
		&lastFailedLogin, &account.AccountLocked,
		&account.PasswordChangeRequired, &lastPasswordChange,
		&account.CreatedAt, &account.UpdatedAt,
	)
	if err != nil {
		return nil, database.MapPostgresError(err)
	}

	account.LastFailedLogin = lastFailedLogin
	account.LastPasswordChange = lastPasswordChange

	return &account, nil
}

func (r *AccountRepository) GetByID(ctx context.Context, id string) (*models.Account, error) {
	query := `SELECT ` + accountColumns + ` FROM accounts WHERE id = $1`
	return scanAccountRow(r.pool.QueryRow(ctx, query, id))
}

func (r *AccountRepository) GetByUsername(ctx context.Context, username string) (*models.Account, error) {
	query := `SELECT ` + accountColumns + ` FROM accounts WHERE username = $1`
	return scanAccountRow(r.pool.QueryRow(ctx, query, username))
}

func (r *AccountRepository) Create(ctx context.Context, account *models.Account) (*models.Account, error) {
	account.ID = uuid.New().String()

	now := time.Now()
	account.CreatedAt = now
	account.UpdatedAt = now

	if account.Role == "" {
		account.Role = models.RoleStaff
	}

	query := `
		INSERT INTO accounts (id, username, email, password_hash, role, password_change_required, last_password_change, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING ` + accountColumns

	return scanAccountRow(r.pool.QueryRow(ctx, query,
		account.ID, account.Username, account.Email, account.PasswordHash,
		account.Role, account.PasswordChangeRequired, account.LastPasswordChange,
		account.CreatedAt, account.UpdatedAt,
	))
}

func (r *AccountRepository) List(ctx context.Context, limit, offset int) ([]*models.Account, error) {
	query := `SELECT ` + accountColumns + ` FROM accounts ORDER BY created_at DESC LIMIT $1 OFFSET $2`

	rows, err := r.pool.Query(ctx, query, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to query accounts: %w", err)
	}
	defer rows.Close()

	accounts := make([]*models.Account, 0)
	for rows.Next() {
		account, err := scanAccountRow(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan account: %w", err)
		}
		accounts = append(accounts, account)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows: %w", err)
	}

	return accounts, nil
}

// IncrementFailedAttempts bumps the failure counter and stamps the
// failure time in a single statement, so concurrent failed logins for
// the same account cannot lose updates. Returns the new counter value.
func (r *AccountRepository) IncrementFailedAttempts(ctx context.Context, id string, failedAt time.Time) (int, error) {
	query := `
		UPDATE accounts
		SET failed_login_attempts = failed_login_attempts + 1,
			last_failed_login = $2,
			updated_at = $2
		WHERE id = $1
		RETURNING failed_login_attempts
	`

	var count int
	if err := r.pool.QueryRow(ctx, query, id, failedAt).Scan(&count); err != nil {
		return 0, database.MapPostgresError(err)
	}
	return count, nil
}

// ResetFailedAttempts clears the failure counter after a successful login.
func (r *AccountRepository) ResetFailedAttempts(ctx context.Context, id string) error {
	query := `
		UPDATE accounts
		SET failed_login_attempts = 0,
			last_failed_login = NULL,
			updated_at = now()
		WHERE id = $1
	`

	result, err := r.pool.Exec(ctx, query, id)
	if err != nil {
		return database.MapPostgresError(err)
	}
	if result.RowsAffected() == 0 {
		return models.ErrNotFound
	}
	return nil
}

// SetAdministrativeLock sets or clears the persisted lock flag. This flag
// never expires on its own; clearing it also resets the failure counter
// so the account does not immediately re-lock via the throttle path.
func (r *AccountRepository) SetAdministrativeLock(ctx context.Context, id string, locked bool) error {
	query := `
		UPDATE accounts
		SET account_locked = $2,
			failed_login_attempts = CASE WHEN $2 THEN failed_login_attempts ELSE 0 END,
			last_failed_login = CASE WHEN $2 THEN last_failed_login ELSE NULL END,
			updated_at = now()
		WHERE id = $1
	`

	result, err := r.pool.Exec(ctx, query, id, locked)
	if err != nil {
		return database.MapPostgresError(err)
	}
	if result.RowsAffected() == 0 {
		return models.ErrNotFound
	}
	return nil
}

// UpdatePassword stores a new hash and clears the change-required flag.
func (r *AccountRepository) UpdatePassword(ctx context.Context, id, passwordHash string) error {
	query := `
		UPDATE accounts
		SET password_hash = $2,
			password_change_required = false,
			last_password_change = now(),
			updated_at = now()
		WHERE id = $1
	`

	result, err := r.pool.Exec(ctx, query, id, passwordHash)
	if err != nil {
		return database.MapPostgresError(err)
	}
	if result.RowsAffected() == 0 {
		return models.ErrNotFound
	}
	return nil
}

func (r *AccountRepository) Delete(ctx context.Context, id string) error {
	result, err := r.pool.Exec(ctx, `DELETE FROM accounts WHERE id = $1`, id)
	if err != nil {
		return database.MapPostgresError(err)
	}
	if result.RowsAffected() == 0 {
		return models.ErrNotFound
	}
	return nil
}
