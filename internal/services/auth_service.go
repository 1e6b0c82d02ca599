package services

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"github.com/tmackenzie/veridian/internal/auth"
	"github.com/tmackenzie/veridian/internal/models"
	pkglogger "github.com/tmackenzie/veridian/pkg/logger"
)

// AuthService orchestrates the login flow: rate limit, account lookup,
// lockout guard, credential check, session establishment. Which check
// failed is recorded in the audit log but never told to the client
// beyond a generic message.
type AuthService struct {
	credentials *CredentialStore
	lockout     *LockoutService
	rateLimiter *RateLimitService
	sessions    *auth.SessionManager
	timing      *auth.TimingDelay
	logger      *slog.Logger
	audit       *pkglogger.AuditLogger
}

func NewAuthService(
	credentials *CredentialStore,
	lockout *LockoutService,
	rateLimiter *RateLimitService,
	sessions *auth.SessionManager,
	timing *auth.TimingDelay,
	logger *slog.Logger,
	audit *pkglogger.AuditLogger,
) *AuthService {
	return &AuthService{
		credentials: credentials,
		lockout:     lockout,
		rateLimiter: rateLimiter,
		sessions:    sessions,
		timing:      timing,
		logger:      logger,
		audit:       audit,
	}
}

// Login authenticates a staff member and exchanges the pre-auth session
// for an established one. CSRF validation happens in the handler before
// this is called.
func (s *AuthService) Login(ctx context.Context, preSession *models.Session, username, password, ipAddress, userAgent string) (*models.Session, *models.Account, error) {
	username = strings.ToLower(strings.TrimSpace(username))
	if username == "" || password == "" {
		return nil, nil, models.ErrUnauthorized
	}

	allowed, err := s.rateLimiter.Allow(ctx, ipAddress, models.ActionLogin)
	if err != nil {
		return nil, nil, models.ErrInternalServer
	}
	if !allowed {
		s.audit.LogAuthAttempt(pkglogger.AuditEvent{
			EventType:     "login_failed",
			Username:      username,
			IPAddress:     ipAddress,
			UserAgent:     userAgent,
			FailureReason: "rate_limited",
		})
		return nil, nil, models.ErrRateLimitExceeded
	}

	account, err := s.credentials.Find(ctx, username)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			// Burn a hash comparison so unknown usernames cost the same
			// as wrong passwords, then answer exactly like one.
			s.credentials.VerifyDummy(password)
			s.timing.Wait(false)
			s.audit.LogAuthAttempt(pkglogger.AuditEvent{
				EventType:     "login_failed",
				Username:      username,
				IPAddress:     ipAddress,
				UserAgent:     userAgent,
				FailureReason: "unknown_username",
			})
			return nil, nil, &models.InvalidCredentialsError{RemainingAttempts: s.lockout.MaxAttempts() - 1}
		}
		return nil, nil, models.ErrInternalServer
	}

	if status := s.lockout.CheckLocked(account); status.Locked {
		s.timing.Wait(false)
		s.audit.LogAuthAttempt(pkglogger.AuditEvent{
			EventType:     "login_failed",
			Username:      username,
			AccountID:     account.ID,
			IPAddress:     ipAddress,
			UserAgent:     userAgent,
			FailureReason: "account_locked",
		})
		return nil, nil, &models.AccountLockedError{RemainingSeconds: status.RemainingSeconds}
	}

	if !s.credentials.Verify(account, password) {
		remaining, err := s.lockout.RecordFailure(ctx, account)
		if err != nil {
			// Counter update failed; deny rather than let attempts go untracked
			return nil, nil, models.ErrInternalServer
		}

		s.timing.Wait(false)
		s.audit.LogAuthAttempt(pkglogger.AuditEvent{
			EventType:     "login_failed",
			Username:      username,
			AccountID:     account.ID,
			IPAddress:     ipAddress,
			UserAgent:     userAgent,
			FailureReason: "invalid_password",
		})

		if remaining == 0 {
			return nil, nil, &models.AccountLockedError{RemainingSeconds: int(s.lockout.LockoutDuration().Seconds())}
		}
		return nil, nil, &models.InvalidCredentialsError{RemainingAttempts: remaining}
	}

	if err := s.lockout.RecordSuccess(ctx, account); err != nil {
		return nil, nil, models.ErrInternalServer
	}

	session, err := s.sessions.Establish(ctx, preSession, account)
	if err != nil {
		s.logger.Error("failed to establish session",
			slog.String("account_id", account.ID),
			slog.Any("error", err))
		return nil, nil, models.ErrInternalServer
	}

	s.audit.LogAuthAttempt(pkglogger.AuditEvent{
		EventType: "login_success",
		Username:  username,
		AccountID: account.ID,
		IPAddress: ipAddress,
		UserAgent: userAgent,
		Success:   true,
	})

	return session, account, nil
}

// Logout destroys the session; destroying twice is fine.
func (s *AuthService) Logout(ctx context.Context, sessionID string) error {
	return s.sessions.Destroy(ctx, sessionID)
}

// ChangePassword verifies the current password, applies the policy to
// the new one and stores the new hash.
func (s *AuthService) ChangePassword(ctx context.Context, accountID, current, next string, minLength int) error {
	account, err := s.credentials.FindByID(ctx, accountID)
	if err != nil {
		return err
	}

	if !s.credentials.Verify(account, current) {
		s.audit.LogAuthAttempt(pkglogger.AuditEvent{
			EventType:     "password_change_failed",
			AccountID:     account.ID,
			FailureReason: "invalid_current_password",
		})
		return models.ErrUnauthorized
	}

	if err := s.credentials.UpdatePassword(ctx, account.ID, next, minLength); err != nil {
		return err
	}

	s.audit.LogAuthAttempt(pkglogger.AuditEvent{
		EventType: "password_changed",
		AccountID: account.ID,
		Success:   true,
	})

	return nil
}
