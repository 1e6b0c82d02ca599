package repositories

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/tmackenzie/veridian/internal/database"
)

// RateLimitRepository handles the append-only rate limit log.
type RateLimitRepository struct {
	db *database.DB
}

func NewRateLimitRepository(db *database.DB) *RateLimitRepository {
	return &RateLimitRepository{db: db}
}

// CountAndRecord counts entries for (identifier, action) since the window
// start and, when the count is below max, records a new entry. Count and
// insert run in one transaction so two concurrent callers near the
// boundary cannot grossly overshoot the limit. Rejected attempts are not
// recorded, so they can never be counted twice.
func (r *RateLimitRepository) CountAndRecord(ctx context.Context, identifier, action string, since time.Time, max int) (allowed bool, count int, err error) {
	err = r.db.WithTransaction(ctx, func(tx pgx.Tx) error {
		countQuery := `
			SELECT COUNT(*) FROM rate_limit_log
			WHERE identifier = $1 AND action = $2 AND created_at >= $3
		`
		if err := tx.QueryRow(ctx, countQuery, identifier, action, since).Scan(&count); err != nil {
			return err
		}

		if count >= max {
			return nil
		}

		insertQuery := `
			INSERT INTO rate_limit_log (identifier, action, created_at)
			VALUES ($1, $2, now())
		`
		if _, err := tx.Exec(ctx, insertQuery, identifier, action); err != nil {
			return err
		}

		allowed = true
		return nil
	})
	if err != nil {
		return false, 0, err
	}

	return allowed, count, nil
}

// Count returns the number of recorded attempts in the trailing window
// without recording anything.
func (r *RateLimitRepository) Count(ctx context.Context, identifier, action string, since time.Time) (int, error) {
	query := `
		SELECT COUNT(*) FROM rate_limit_log
		WHERE identifier = $1 AND action = $2 AND created_at >= $3
	`

	var count int
	err := r.db.Pool.QueryRow(ctx, query, identifier, action, since).Scan(&count)
	return count, err
}

// DeleteOlderThan prunes aged records. Correctness never depends on this;
// it only bounds storage.
func (r *RateLimitRepository) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	result, err := r.db.Pool.Exec(ctx, `DELETE FROM rate_limit_log WHERE created_at < $1`, cutoff)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected(), nil
}
