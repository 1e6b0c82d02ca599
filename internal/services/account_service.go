package services

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"github.com/tmackenzie/veridian/internal/models"
	pkgauth "github.com/tmackenzie/veridian/pkg/auth"
	pkglogger "github.com/tmackenzie/veridian/pkg/logger"
)

// AdminAccountRepository is the subset of account persistence used for
// administrative account management.
type AdminAccountRepository interface {
	Create(ctx context.Context, account *models.Account) (*models.Account, error)
	GetByUsername(ctx context.Context, username string) (*models.Account, error)
	List(ctx context.Context, limit, offset int) ([]*models.Account, error)
	SetAdministrativeLock(ctx context.Context, id string, locked bool) error
	Delete(ctx context.Context, id string) error
}

// SessionPurger ends every live session belonging to an account.
type SessionPurger interface {
	DeleteByAccount(ctx context.Context, accountID string) error
}

// AccountService covers admin-side staff account management. Locking
// here is the administrative override; the throttle lock managed by the
// lockout guard clears on its own, this one only clears when an admin
// says so.
type AccountService struct {
	accounts          AdminAccountRepository
	sessions          SessionPurger
	passwordMinLength int
	logger            *slog.Logger
	audit             *pkglogger.AuditLogger
}

func NewAccountService(accounts AdminAccountRepository, sessions SessionPurger, passwordMinLength int, logger *slog.Logger, audit *pkglogger.AuditLogger) *AccountService {
	return &AccountService{
		accounts:          accounts,
		sessions:          sessions,
		passwordMinLength: passwordMinLength,
		logger:            logger,
		audit:             audit,
	}
}

// CreateAccountRequest carries the fields an admin supplies for a new
// staff account.
type CreateAccountRequest struct {
	Username string
	Email    string
	Password string
	Role     string
}

func (s *AccountService) Create(ctx context.Context, req CreateAccountRequest, createdBy string) (*models.Account, error) {
	username := strings.ToLower(strings.TrimSpace(req.Username))
	if username == "" {
		return nil, models.ErrBadRequest
	}
	if req.Role != models.RoleAdmin && req.Role != models.RoleStaff {
		return nil, models.ErrBadRequest
	}

	if err := pkgauth.ValidatePassword(req.Password, s.passwordMinLength); err != nil {
		return nil, err
	}

	hash, err := pkgauth.HashPassword(req.Password)
	if err != nil {
		s.logger.Error("failed to hash password", slog.Any("error", err))
		return nil, models.ErrInternalServer
	}

	account := &models.Account{
		Username:     username,
		Email:        strings.ToLower(strings.TrimSpace(req.Email)),
		PasswordHash: hash,
		Role:         req.Role,
	}

	created, err := s.accounts.Create(ctx, account)
	if err != nil {
		if errors.Is(err, models.ErrConflict) {
			return nil, models.ErrConflict
		}
		s.logger.Error("failed to create account", slog.Any("error", err))
		return nil, models.ErrInternalServer
	}

	s.audit.LogAuthAttempt(pkglogger.AuditEvent{
		EventType: "account_created",
		Username:  created.Username,
		AccountID: createdBy,
		Success:   true,
	})

	return created, nil
}

func (s *AccountService) List(ctx context.Context, limit, offset int) ([]*models.Account, error) {
	if limit <= 0 || limit > 100 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}
	return s.accounts.List(ctx, limit, offset)
}

// SetLock applies or clears the administrative lock. Clearing it also
// resets the failure counters so the account is immediately usable.
// Locking ends the account's live sessions too, so an already
// signed-in user does not keep working behind the lock.
func (s *AccountService) SetLock(ctx context.Context, id string, locked bool, changedBy string) error {
	if err := s.accounts.SetAdministrativeLock(ctx, id, locked); err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return models.ErrNotFound
		}
		s.logger.Error("failed to set administrative lock",
			slog.String("account_id", id),
			slog.Any("error", err))
		return models.ErrInternalServer
	}

	if locked {
		if err := s.sessions.DeleteByAccount(ctx, id); err != nil {
			// The lock itself is in place; stale sessions die at expiry.
			s.logger.Error("failed to end sessions for locked account",
				slog.String("account_id", id),
				slog.Any("error", err))
		}
	}

	eventType := "account_unlocked"
	if locked {
		eventType = "account_locked"
	}
	s.audit.LogAuthAttempt(pkglogger.AuditEvent{
		EventType: eventType,
		AccountID: changedBy,
		Success:   true,
		Metadata:  map[string]string{"target_account_id": id},
	})

	return nil
}

func (s *AccountService) Delete(ctx context.Context, id, deletedBy string) error {
	if err := s.accounts.Delete(ctx, id); err != nil {
		return err
	}

	s.audit.LogAuthAttempt(pkglogger.AuditEvent{
		EventType: "account_deleted",
		AccountID: deletedBy,
		Success:   true,
		Metadata:  map[string]string{"target_account_id": id},
	})

	return nil
}
