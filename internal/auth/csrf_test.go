package auth

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tmackenzie/veridian/internal/models"
)

// memCSRFStore records UpdateCSRF calls in memory
type memCSRFStore struct {
	updates int
}

func (s *memCSRFStore) UpdateCSRF(ctx context.Context, sessionID, token string, expiresAt time.Time) error {
	s.updates++
	return nil
}

func newTestSession() *models.Session {
	now := time.Now()
	return &models.Session{
		ID:        "session-1",
		CreatedAt: now,
		ExpiresAt: now.Add(time.Hour),
	}
}

func TestCSRFIssue_GeneratesToken(t *testing.T) {
	store := &memCSRFStore{}
	m := NewCSRFTokenManager(store, 32, 30*time.Minute)
	session := newTestSession()

	token, err := m.Issue(context.Background(), session)
	require.NoError(t, err)
	assert.Len(t, token, 64) // 32 bytes hex encoded
	assert.Equal(t, 1, store.updates)
	require.NotNil(t, session.CSRFToken)
	assert.Equal(t, token, *session.CSRFToken)
}

func TestCSRFIssue_IdempotentWithinExpiry(t *testing.T) {
	store := &memCSRFStore{}
	m := NewCSRFTokenManager(store, 32, 30*time.Minute)
	session := newTestSession()

	first, err := m.Issue(context.Background(), session)
	require.NoError(t, err)

	second, err := m.Issue(context.Background(), session)
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, 1, store.updates, "no second persist for a live token")
}

func TestCSRFIssue_RotatesAfterExpiry(t *testing.T) {
	store := &memCSRFStore{}
	m := NewCSRFTokenManager(store, 32, 30*time.Minute)
	session := newTestSession()

	first, err := m.Issue(context.Background(), session)
	require.NoError(t, err)

	// Force the token past its expiry
	past := time.Now().Add(-time.Second)
	session.CSRFExpiresAt = &past

	second, err := m.Issue(context.Background(), session)
	require.NoError(t, err)

	assert.NotEqual(t, first, second)
	assert.Equal(t, 2, store.updates)
}

func TestCSRFValidate(t *testing.T) {
	store := &memCSRFStore{}
	m := NewCSRFTokenManager(store, 32, 30*time.Minute)
	session := newTestSession()

	token, err := m.Issue(context.Background(), session)
	require.NoError(t, err)

	assert.True(t, m.Validate(session, token))

	// A token differing by a single character must fail
	mutated := "0" + token[1:]
	if mutated == token {
		mutated = "1" + token[1:]
	}
	assert.False(t, m.Validate(session, mutated))

	assert.False(t, m.Validate(session, ""))
	assert.False(t, m.Validate(session, token+"x"))
}

func TestCSRFValidate_ExpiredTokenFailsEvenWhenMatching(t *testing.T) {
	store := &memCSRFStore{}
	m := NewCSRFTokenManager(store, 32, 30*time.Minute)
	session := newTestSession()

	token, err := m.Issue(context.Background(), session)
	require.NoError(t, err)

	past := time.Now().Add(-time.Second)
	session.CSRFExpiresAt = &past

	assert.False(t, m.Validate(session, token))
}

func TestCSRFValidate_NoTokenIssued(t *testing.T) {
	store := &memCSRFStore{}
	m := NewCSRFTokenManager(store, 32, 30*time.Minute)
	session := newTestSession()

	assert.False(t, m.Validate(session, "anything"))
}

func TestCSRFValidate_BoundaryTiming(t *testing.T) {
	store := &memCSRFStore{}
	m := NewCSRFTokenManager(store, 32, 30*time.Minute)
	session := newTestSession()

	token, err := m.Issue(context.Background(), session)
	require.NoError(t, err)

	// Just inside the window: valid
	inside := time.Now().Add(time.Second)
	session.CSRFExpiresAt = &inside
	assert.True(t, m.Validate(session, token))

	// Just past the window: invalid
	outside := time.Now().Add(-time.Second)
	session.CSRFExpiresAt = &outside
	assert.False(t, m.Validate(session, token))
}
