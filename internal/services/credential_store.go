package services

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/tmackenzie/veridian/internal/models"
	pkgauth "github.com/tmackenzie/veridian/pkg/auth"
)

// AccountRepository is the account persistence interface the auth layer
// depends on.
type AccountRepository interface {
	GetByID(ctx context.Context, id string) (*models.Account, error)
	GetByUsername(ctx context.Context, username string) (*models.Account, error)
	IncrementFailedAttempts(ctx context.Context, id string, failedAt time.Time) (int, error)
	ResetFailedAttempts(ctx context.Context, id string) error
	UpdatePassword(ctx context.Context, id, passwordHash string) error
}

// CredentialStore resolves usernames to accounts and checks passwords.
// Unknown username and wrong password are indistinguishable to callers'
// clients: both come back as matched=false, and a dummy bcrypt comparison
// runs for unknown users so the response time does not give the lookup
// away. The lockout guard runs between Find and Verify so locked accounts
// never reach the hash comparison.
type CredentialStore struct {
	accounts AccountRepository
	logger   *slog.Logger
}

func NewCredentialStore(accounts AccountRepository, logger *slog.Logger) *CredentialStore {
	return &CredentialStore{
		accounts: accounts,
		logger:   logger,
	}
}

// FindByID looks up an account by its ID.
func (s *CredentialStore) FindByID(ctx context.Context, id string) (*models.Account, error) {
	account, err := s.accounts.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return nil, models.ErrNotFound
		}
		s.logger.Error("failed to look up account", slog.Any("error", err))
		return nil, models.ErrInternalServer
	}
	return account, nil
}

// Find looks up an account by exact username. Returns models.ErrNotFound
// when no account matches.
func (s *CredentialStore) Find(ctx context.Context, username string) (*models.Account, error) {
	account, err := s.accounts.GetByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return nil, models.ErrNotFound
		}
		s.logger.Error("failed to look up account", slog.Any("error", err))
		return nil, models.ErrInternalServer
	}
	return account, nil
}

// Verify compares the plaintext password against the account's hash.
// Never errors: a mismatch is simply false.
func (s *CredentialStore) Verify(account *models.Account, password string) bool {
	return pkgauth.ComparePassword(account.PasswordHash, password) == nil
}

// VerifyDummy burns a bcrypt comparison for requests naming an unknown
// username, leveling timing with the wrong-password path.
func (s *CredentialStore) VerifyDummy(password string) {
	pkgauth.CompareDummy(password)
}

// UpdatePassword validates the new password against policy, hashes it
// and stores the hash.
func (s *CredentialStore) UpdatePassword(ctx context.Context, accountID, password string, minLength int) error {
	if err := pkgauth.ValidatePassword(password, minLength); err != nil {
		return err
	}

	hash, err := pkgauth.HashPassword(password)
	if err != nil {
		s.logger.Error("failed to hash password", slog.Any("error", err))
		return models.ErrInternalServer
	}

	if err := s.accounts.UpdatePassword(ctx, accountID, hash); err != nil {
		s.logger.Error("failed to store password hash",
			slog.String("account_id", accountID),
			slog.Any("error", err))
		return models.ErrInternalServer
	}

	return nil
}
