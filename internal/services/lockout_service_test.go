package services_test

import (
	"context"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tmackenzie/veridian/internal/models"
	"github.com/tmackenzie/veridian/internal/services"
)

func newLockoutService(repo *services.MockAccountRepository) *services.LockoutService {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	config := services.LockoutConfig{
		MaxLoginAttempts: 5,
		LockoutDuration:  15 * time.Minute,
	}
	return services.NewLockoutService(repo, config, logger)
}

func TestLockoutCheckLocked_UnderThreshold(t *testing.T) {
	service := newLockoutService(&services.MockAccountRepository{})

	lastFailed := time.Now()
	account := services.NewTestAccountThrottled("acct_1", "alice", "hash", 4, lastFailed)

	status := service.CheckLocked(account)
	assert.False(t, status.Locked)
}

func TestLockoutCheckLocked_AtThresholdWithinWindow(t *testing.T) {
	service := newLockoutService(&services.MockAccountRepository{})

	lastFailed := time.Now().Add(-5 * time.Minute)
	account := services.NewTestAccountThrottled("acct_1", "alice", "hash", 5, lastFailed)

	status := service.CheckLocked(account)
	assert.True(t, status.Locked)
	assert.False(t, status.Administrative)
	// 10 minutes of the 15-minute window remain
	assert.InDelta(t, 600, status.RemainingSeconds, 2)
}

func TestLockoutCheckLocked_WindowElapsed(t *testing.T) {
	service := newLockoutService(&services.MockAccountRepository{})

	lastFailed := time.Now().Add(-16 * time.Minute)
	account := services.NewTestAccountThrottled("acct_1", "alice", "hash", 5, lastFailed)

	status := service.CheckLocked(account)
	assert.False(t, status.Locked)
}

func TestLockoutCheckLocked_AdministrativeOverrideNeverExpires(t *testing.T) {
	service := newLockoutService(&services.MockAccountRepository{})

	account := services.NewTestAccount("acct_1", "alice", "hash")
	account.AccountLocked = true

	status := service.CheckLocked(account)
	assert.True(t, status.Locked)
	assert.True(t, status.Administrative)
}

func TestLockoutRecordFailure_CountsDownRemaining(t *testing.T) {
	count := 0
	repo := &services.MockAccountRepository{
		IncrementFailedAttemptsFunc: func(ctx context.Context, id string, failedAt time.Time) (int, error) {
			count++
			return count, nil
		},
	}
	service := newLockoutService(repo)
	account := services.NewTestAccount("acct_1", "alice", "hash")

	expected := []int{4, 3, 2, 1, 0}
	for _, want := range expected {
		remaining, err := service.RecordFailure(context.Background(), account)
		require.NoError(t, err)
		assert.Equal(t, want, remaining)
	}
}

func TestLockoutRecordFailure_FailsClosedOnDBError(t *testing.T) {
	repo := &services.MockAccountRepository{
		IncrementFailedAttemptsFunc: func(ctx context.Context, id string, failedAt time.Time) (int, error) {
			return 0, models.ErrInternalServer
		},
	}
	service := newLockoutService(repo)
	account := services.NewTestAccount("acct_1", "alice", "hash")

	_, err := service.RecordFailure(context.Background(), account)
	assert.ErrorIs(t, err, models.ErrInternalServer)
}

func TestLockoutRecordSuccess_FailsClosedOnDBError(t *testing.T) {
	repo := &services.MockAccountRepository{
		ResetFailedAttemptsFunc: func(ctx context.Context, id string) error {
			return models.ErrInternalServer
		},
	}
	service := newLockoutService(repo)
	account := services.NewTestAccount("acct_1", "alice", "hash")

	err := service.RecordSuccess(context.Background(), account)
	assert.ErrorIs(t, err, models.ErrInternalServer)
}
