package auth

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "a-sufficiently-long-test-secret"

func TestAPIToken_GenerateAndValidate(t *testing.T) {
	tm := NewAPITokenManager(testSecret, time.Hour)

	tokenString, tokenID, err := tm.Generate("acct-1", "ci-pipeline")
	require.NoError(t, err)
	assert.NotEmpty(t, tokenString)
	assert.NotEmpty(t, tokenID)

	claims, err := tm.Validate(tokenString)
	require.NoError(t, err)
	assert.Equal(t, "api", claims.Type)
	assert.Equal(t, "ci-pipeline", claims.Label)
	assert.Equal(t, "acct-1", claims.Subject)
	assert.Equal(t, tokenID, claims.ID)
}

func TestAPIToken_WrongSecretRejected(t *testing.T) {
	tm := NewAPITokenManager(testSecret, time.Hour)
	other := NewAPITokenManager("a-different-32-character-secret!", time.Hour)

	tokenString, _, err := tm.Generate("acct-1", "")
	require.NoError(t, err)

	_, err = other.Validate(tokenString)
	assert.Error(t, err)
}

func TestAPIToken_ExpiredRejected(t *testing.T) {
	tm := NewAPITokenManager(testSecret, -time.Minute)

	tokenString, _, err := tm.Generate("acct-1", "")
	require.NoError(t, err)

	_, err = tm.Validate(tokenString)
	assert.Error(t, err)
}

func TestAPIToken_GarbageRejected(t *testing.T) {
	tm := NewAPITokenManager(testSecret, time.Hour)

	_, err := tm.Validate("not-a-token")
	assert.Error(t, err)
}
