package services

import (
	"context"
	"log/slog"
	"time"

	"github.com/tmackenzie/veridian/internal/models"
)

// LockoutConfig holds the lockout thresholds.
type LockoutConfig struct {
	MaxLoginAttempts int
	LockoutDuration  time.Duration
}

// LockoutService is the account lockout guard. The throttle lock is
// computed, not stored: an account is locked while the failure counter
// has reached the threshold and the lockout window since the last
// failure has not elapsed. Once the window passes the lock clears by
// itself. The persisted account_locked flag is an administrative
// override checked separately and never auto-cleared.
type LockoutService struct {
	accounts AccountRepository
	config   LockoutConfig
	logger   *slog.Logger
	now      func() time.Time
}

func NewLockoutService(accounts AccountRepository, config LockoutConfig, logger *slog.Logger) *LockoutService {
	return &LockoutService{
		accounts: accounts,
		config:   config,
		logger:   logger,
		now:      time.Now,
	}
}

// MaxAttempts returns the configured failure threshold.
func (s *LockoutService) MaxAttempts() int {
	return s.config.MaxLoginAttempts
}

// LockoutDuration returns the configured lockout window.
func (s *LockoutService) LockoutDuration() time.Duration {
	return s.config.LockoutDuration
}

// CheckLocked reports the lock state. Must run before any password
// verification so locked accounts never reach the credential store.
func (s *LockoutService) CheckLocked(account *models.Account) models.LockStatus {
	if account.AccountLocked {
		return models.LockStatus{Locked: true, Administrative: true}
	}

	if account.FailedLoginAttempts < s.config.MaxLoginAttempts || account.LastFailedLogin == nil {
		return models.LockStatus{}
	}

	elapsed := s.now().Sub(*account.LastFailedLogin)
	if elapsed >= s.config.LockoutDuration {
		// Window elapsed; the lock has cleared on its own
		return models.LockStatus{}
	}

	remaining := s.config.LockoutDuration - elapsed
	seconds := int(remaining.Seconds())
	if seconds < 1 {
		seconds = 1
	}

	return models.LockStatus{Locked: true, RemainingSeconds: seconds}
}

// RecordFailure bumps the failure counter atomically and returns how many
// attempts remain before the account locks (zero when it just locked).
// Database errors deny the login: a guard that cannot count fails closed.
func (s *LockoutService) RecordFailure(ctx context.Context, account *models.Account) (remaining int, err error) {
	count, err := s.accounts.IncrementFailedAttempts(ctx, account.ID, s.now())
	if err != nil {
		s.logger.Error("failed to record login failure",
			slog.String("account_id", account.ID),
			slog.Any("error", err))
		return 0, models.ErrInternalServer
	}

	if count >= s.config.MaxLoginAttempts {
		s.logger.Warn("account reached lockout threshold",
			slog.String("account_id", account.ID),
			slog.Int("failed_attempts", count))
		return 0, nil
	}

	return s.config.MaxLoginAttempts - count, nil
}

// RecordSuccess resets the failure counter. A reset that cannot be
// persisted also fails closed; the caller denies the login rather than
// leaving counters in an unknown state.
func (s *LockoutService) RecordSuccess(ctx context.Context, account *models.Account) error {
	if err := s.accounts.ResetFailedAttempts(ctx, account.ID); err != nil {
		s.logger.Error("failed to reset login failures",
			slog.String("account_id", account.ID),
			slog.Any("error", err))
		return models.ErrInternalServer
	}
	return nil
}
