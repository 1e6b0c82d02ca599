package services_test

import (
	"context"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tmackenzie/veridian/internal/auth"
	"github.com/tmackenzie/veridian/internal/config"
	"github.com/tmackenzie/veridian/internal/models"
	"github.com/tmackenzie/veridian/internal/services"
	pkgauth "github.com/tmackenzie/veridian/pkg/auth"
	pkglogger "github.com/tmackenzie/veridian/pkg/logger"
)

type authFixture struct {
	service  *services.AuthService
	sessions *auth.SessionManager
	accounts *services.MockAccountRepository
	limits   *services.MemRateLimitRepository
}

func newAuthFixture(t *testing.T, accounts *services.MockAccountRepository) *authFixture {
	t.Helper()

	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	audit := pkglogger.NewAuditLogger(logger, nil)

	credentials := services.NewCredentialStore(accounts, logger)
	lockout := services.NewLockoutService(accounts, services.LockoutConfig{
		MaxLoginAttempts: 5,
		LockoutDuration:  15 * time.Minute,
	}, logger)

	limits := services.NewMemRateLimitRepository()
	rateLimiter := services.NewRateLimitService(limits, config.RateLimitConfig{
		LoginWindow:  15 * time.Minute,
		LoginMax:     5,
		VerifyWindow: time.Minute,
		VerifyMax:    10,
		APIWindow:    time.Minute,
		APIMax:       60,
	}, logger)

	sessions := auth.NewSessionManager(services.NewMemSessionStore(), 8*time.Hour, logger)
	timing := auth.NewTimingDelay(auth.TimingConfig{})

	return &authFixture{
		service:  services.NewAuthService(credentials, lockout, rateLimiter, sessions, timing, logger, audit),
		sessions: sessions,
		accounts: accounts,
		limits:   limits,
	}
}

func TestLogin_SuccessEstablishesNewSessionID(t *testing.T) {
	hash, err := pkgauth.HashPassword("correct-long-password")
	require.NoError(t, err)

	account := services.NewTestAccount("acct_1", "alice", hash)
	resetCalled := false
	accounts := &services.MockAccountRepository{
		GetByUsernameFunc: func(ctx context.Context, username string) (*models.Account, error) {
			if username == "alice" {
				return account, nil
			}
			return nil, models.ErrNotFound
		},
		ResetFailedAttemptsFunc: func(ctx context.Context, id string) error {
			resetCalled = true
			return nil
		},
	}

	f := newAuthFixture(t, accounts)
	ctx := context.Background()

	preSession, err := f.sessions.Create(ctx)
	require.NoError(t, err)

	session, got, err := f.service.Login(ctx, preSession, "alice", "correct-long-password", "192.168.1.1", "test-agent")
	require.NoError(t, err)
	assert.Equal(t, "acct_1", got.ID)
	assert.NotEqual(t, preSession.ID, session.ID)
	assert.True(t, resetCalled)

	// The pre-auth session ID must be dead after identity binds
	_, err = f.sessions.Get(ctx, preSession.ID)
	assert.ErrorIs(t, err, models.ErrNotFound)
}

func TestLogin_UsernameCaseAndWhitespaceNormalized(t *testing.T) {
	hash, err := pkgauth.HashPassword("correct-long-password")
	require.NoError(t, err)

	account := services.NewTestAccount("acct_1", "alice", hash)
	accounts := &services.MockAccountRepository{
		GetByUsernameFunc: func(ctx context.Context, username string) (*models.Account, error) {
			if username == "alice" {
				return account, nil
			}
			return nil, models.ErrNotFound
		},
	}

	f := newAuthFixture(t, accounts)
	ctx := context.Background()

	preSession, err := f.sessions.Create(ctx)
	require.NoError(t, err)

	_, _, err = f.service.Login(ctx, preSession, "  Alice ", "correct-long-password", "192.168.1.1", "test-agent")
	assert.NoError(t, err)
}

func TestLogin_WrongPasswordReturnsRemainingAttempts(t *testing.T) {
	hash, err := pkgauth.HashPassword("correct-long-password")
	require.NoError(t, err)

	account := services.NewTestAccount("acct_1", "alice", hash)
	failures := 0
	accounts := &services.MockAccountRepository{
		GetByUsernameFunc: func(ctx context.Context, username string) (*models.Account, error) {
			return account, nil
		},
		IncrementFailedAttemptsFunc: func(ctx context.Context, id string, failedAt time.Time) (int, error) {
			failures++
			return failures, nil
		},
	}

	f := newAuthFixture(t, accounts)
	ctx := context.Background()

	preSession, err := f.sessions.Create(ctx)
	require.NoError(t, err)

	_, _, err = f.service.Login(ctx, preSession, "alice", "wrong-password-here", "192.168.1.1", "test-agent")
	require.Error(t, err)

	var invalidErr *models.InvalidCredentialsError
	require.ErrorAs(t, err, &invalidErr)
	assert.Equal(t, 4, invalidErr.RemainingAttempts)
	assert.ErrorIs(t, err, models.ErrUnauthorized)
}

func TestLogin_UnknownUserLooksLikeWrongPassword(t *testing.T) {
	f := newAuthFixture(t, &services.MockAccountRepository{})
	ctx := context.Background()

	preSession, err := f.sessions.Create(ctx)
	require.NoError(t, err)

	_, _, err = f.service.Login(ctx, preSession, "nobody", "whatever-password", "192.168.1.1", "test-agent")
	require.Error(t, err)

	var invalidErr *models.InvalidCredentialsError
	assert.ErrorAs(t, err, &invalidErr)
}

func TestLogin_FifthFailureLocksAccount(t *testing.T) {
	hash, err := pkgauth.HashPassword("correct-long-password")
	require.NoError(t, err)

	account := services.NewTestAccount("acct_1", "alice", hash)
	accounts := &services.MockAccountRepository{
		GetByUsernameFunc: func(ctx context.Context, username string) (*models.Account, error) {
			return account, nil
		},
		IncrementFailedAttemptsFunc: func(ctx context.Context, id string, failedAt time.Time) (int, error) {
			return 5, nil
		},
	}

	f := newAuthFixture(t, accounts)
	ctx := context.Background()

	preSession, err := f.sessions.Create(ctx)
	require.NoError(t, err)

	_, _, err = f.service.Login(ctx, preSession, "alice", "wrong-password-here", "192.168.1.1", "test-agent")
	require.Error(t, err)

	var lockedErr *models.AccountLockedError
	require.ErrorAs(t, err, &lockedErr)
	assert.Equal(t, int((15 * time.Minute).Seconds()), lockedErr.RemainingSeconds)
}

func TestLogin_LockedAccountRejectedBeforePasswordCheck(t *testing.T) {
	lastFailed := time.Now().Add(-time.Minute)
	account := services.NewTestAccountThrottled("acct_1", "alice", "not-a-real-hash", 5, lastFailed)
	accounts := &services.MockAccountRepository{
		GetByUsernameFunc: func(ctx context.Context, username string) (*models.Account, error) {
			return account, nil
		},
	}

	f := newAuthFixture(t, accounts)
	ctx := context.Background()

	preSession, err := f.sessions.Create(ctx)
	require.NoError(t, err)

	// Correct or not, the password never gets compared on a locked account;
	// the bogus hash would error out of bcrypt if it did.
	_, _, err = f.service.Login(ctx, preSession, "alice", "any-password-at-all", "192.168.1.1", "test-agent")
	require.Error(t, err)

	var lockedErr *models.AccountLockedError
	require.ErrorAs(t, err, &lockedErr)
	assert.Greater(t, lockedErr.RemainingSeconds, 0)
	assert.ErrorIs(t, err, models.ErrAccountLocked)
}

func TestLogin_RateLimitedAfterMaxAttempts(t *testing.T) {
	f := newAuthFixture(t, &services.MockAccountRepository{})
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		preSession, err := f.sessions.Create(ctx)
		require.NoError(t, err)
		_, _, err = f.service.Login(ctx, preSession, "nobody", "whatever-password", "203.0.113.7", "test-agent")
		require.Error(t, err)
	}

	preSession, err := f.sessions.Create(ctx)
	require.NoError(t, err)
	_, _, err = f.service.Login(ctx, preSession, "nobody", "whatever-password", "203.0.113.7", "test-agent")
	assert.ErrorIs(t, err, models.ErrRateLimitExceeded)
}

func TestLogin_EmptyCredentialsRejected(t *testing.T) {
	f := newAuthFixture(t, &services.MockAccountRepository{})
	ctx := context.Background()

	preSession, err := f.sessions.Create(ctx)
	require.NoError(t, err)

	_, _, err = f.service.Login(ctx, preSession, "", "", "192.168.1.1", "test-agent")
	assert.ErrorIs(t, err, models.ErrUnauthorized)
}

func TestLogout_Idempotent(t *testing.T) {
	f := newAuthFixture(t, &services.MockAccountRepository{})
	ctx := context.Background()

	session, err := f.sessions.Create(ctx)
	require.NoError(t, err)

	require.NoError(t, f.service.Logout(ctx, session.ID))
	assert.NoError(t, f.service.Logout(ctx, session.ID))
}

func TestChangePassword_RequiresCurrentPassword(t *testing.T) {
	hash, err := pkgauth.HashPassword("current-long-password")
	require.NoError(t, err)

	account := services.NewTestAccount("acct_1", "alice", hash)
	f := newAuthFixture(t, &services.MockAccountRepository{
		GetByIDFunc: func(ctx context.Context, id string) (*models.Account, error) {
			return account, nil
		},
	})

	err = f.service.ChangePassword(context.Background(), "acct_1", "not-the-current-one", "next-long-password!", 10)
	assert.ErrorIs(t, err, models.ErrUnauthorized)
}
