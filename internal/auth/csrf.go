package auth

import (
	"context"
	"crypto/rand"
	"crypto/subtle"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/tmackenzie/veridian/internal/models"
)

// CSRFSessionStore persists the token onto the session row.
type CSRFSessionStore interface {
	UpdateCSRF(ctx context.Context, sessionID, token string, expiresAt time.Time) error
}

// CSRFTokenManager issues and validates per-session CSRF tokens. One live
// token per session; tokens may be replayed across form submissions until
// they expire, which keeps multi-tab usage working.
type CSRFTokenManager struct {
	store       CSRFSessionStore
	tokenLength int // random bytes before hex encoding
	tokenTTL    time.Duration
}

// NewCSRFTokenManager creates a new CSRF token manager
func NewCSRFTokenManager(store CSRFSessionStore, tokenLength int, tokenTTL time.Duration) *CSRFTokenManager {
	return &CSRFTokenManager{
		store:       store,
		tokenLength: tokenLength,
		tokenTTL:    tokenTTL,
	}
}

// Issue returns the session's live token, generating and persisting a new
// one only when none exists or the current one has expired. Calling Issue
// twice inside the validity window returns the identical token.
func (m *CSRFTokenManager) Issue(ctx context.Context, session *models.Session) (string, error) {
	now := time.Now()

	if session.CSRFToken != nil && session.CSRFExpiresAt != nil && now.Before(*session.CSRFExpiresAt) {
		return *session.CSRFToken, nil
	}

	randomBytes := make([]byte, m.tokenLength)
	if _, err := rand.Read(randomBytes); err != nil {
		return "", fmt.Errorf("failed to generate csrf token: %w", err)
	}

	token := hex.EncodeToString(randomBytes)
	expiresAt := now.Add(m.tokenTTL)

	if err := m.store.UpdateCSRF(ctx, session.ID, token, expiresAt); err != nil {
		return "", fmt.Errorf("failed to persist csrf token: %w", err)
	}

	session.CSRFToken = &token
	session.CSRFExpiresAt = &expiresAt

	return token, nil
}

// Validate reports whether the submitted token matches the session's live
// token and has not expired. The comparison is constant-time. Callers
// must reject with a generic security-validation error, never detail.
func (m *CSRFTokenManager) Validate(session *models.Session, submitted string) bool {
	if session.CSRFToken == nil || session.CSRFExpiresAt == nil {
		return false
	}
	if submitted == "" {
		return false
	}
	if !time.Now().Before(*session.CSRFExpiresAt) {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(*session.CSRFToken), []byte(submitted)) == 1
}
