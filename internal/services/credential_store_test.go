package services_test

import (
	"context"
	"log/slog"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tmackenzie/veridian/internal/models"
	"github.com/tmackenzie/veridian/internal/services"
	pkgauth "github.com/tmackenzie/veridian/pkg/auth"
)

func newCredentialStore(repo *services.MockAccountRepository) *services.CredentialStore {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	return services.NewCredentialStore(repo, logger)
}

func TestCredentialFind_UnknownUsername(t *testing.T) {
	store := newCredentialStore(&services.MockAccountRepository{})

	_, err := store.Find(context.Background(), "nobody")
	assert.ErrorIs(t, err, models.ErrNotFound)
}

func TestCredentialVerify_MatchAndMismatch(t *testing.T) {
	hash, err := pkgauth.HashPassword("sufficiently-long-pw")
	require.NoError(t, err)

	store := newCredentialStore(&services.MockAccountRepository{})
	account := services.NewTestAccount("acct_1", "alice", hash)

	assert.True(t, store.Verify(account, "sufficiently-long-pw"))
	assert.False(t, store.Verify(account, "wrong-password-here"))
}

func TestCredentialVerifyDummy_DoesNotPanic(t *testing.T) {
	store := newCredentialStore(&services.MockAccountRepository{})
	store.VerifyDummy("anything at all")
}

func TestCredentialUpdatePassword_RejectsWeak(t *testing.T) {
	store := newCredentialStore(&services.MockAccountRepository{})

	err := store.UpdatePassword(context.Background(), "acct_1", "short", 10)
	require.Error(t, err)

	var validationErr *pkgauth.PasswordValidationError
	assert.ErrorAs(t, err, &validationErr)
}

func TestCredentialUpdatePassword_StoresHash(t *testing.T) {
	var storedHash string
	repo := &services.MockAccountRepository{
		UpdatePasswordFunc: func(ctx context.Context, id, passwordHash string) error {
			storedHash = passwordHash
			return nil
		},
	}
	store := newCredentialStore(repo)

	err := store.UpdatePassword(context.Background(), "acct_1", "brand-new-long-password", 10)
	require.NoError(t, err)
	require.NotEmpty(t, storedHash)
	assert.NotEqual(t, "brand-new-long-password", storedHash)
	assert.NoError(t, pkgauth.ComparePassword(storedHash, "brand-new-long-password"))
}
