package auth

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/tmackenzie/veridian/internal/models"
)

const sessionIDBytes = 32 // 256 bits of entropy per session ID

// SessionStore is the persistence interface the session authority needs.
type SessionStore interface {
	Get(ctx context.Context, id string) (*models.Session, error)
	Create(ctx context.Context, session *models.Session) error
	Replace(ctx context.Context, oldID string, session *models.Session) error
	Delete(ctx context.Context, id string) error
}

// SessionManager is the session authority: it creates anonymous pre-auth
// sessions, binds identity on login (regenerating the ID to defeat
// fixation), and destroys sessions on logout.
type SessionManager struct {
	store    SessionStore
	lifetime time.Duration
	logger   *slog.Logger
}

func NewSessionManager(store SessionStore, lifetime time.Duration, logger *slog.Logger) *SessionManager {
	return &SessionManager{
		store:    store,
		lifetime: lifetime,
		logger:   logger,
	}
}

func newSessionID() (string, error) {
	randomBytes := make([]byte, sessionIDBytes)
	if _, err := rand.Read(randomBytes); err != nil {
		return "", fmt.Errorf("failed to generate session id: %w", err)
	}
	return hex.EncodeToString(randomBytes), nil
}

// Create starts an anonymous session so the login form can carry a CSRF
// token before any identity exists.
func (m *SessionManager) Create(ctx context.Context) (*models.Session, error) {
	id, err := newSessionID()
	if err != nil {
		return nil, err
	}

	now := time.Now()
	session := &models.Session{
		ID:        id,
		CreatedAt: now,
		ExpiresAt: now.Add(m.lifetime),
	}

	if err := m.store.Create(ctx, session); err != nil {
		return nil, fmt.Errorf("failed to create session: %w", err)
	}

	return session, nil
}

// Establish binds the account identity to a freshly generated session ID,
// invalidating the old ID in the same transaction. The pre-auth CSRF
// token is dropped so a new one is issued for post-login requests.
func (m *SessionManager) Establish(ctx context.Context, old *models.Session, account *models.Account) (*models.Session, error) {
	id, err := newSessionID()
	if err != nil {
		return nil, err
	}

	now := time.Now()
	session := &models.Session{
		ID:        id,
		AccountID: &account.ID,
		Role:      account.Role,
		CreatedAt: now,
		ExpiresAt: now.Add(m.lifetime),
	}

	if err := m.store.Replace(ctx, old.ID, session); err != nil {
		return nil, fmt.Errorf("failed to establish session: %w", err)
	}

	m.logger.Info("session established",
		slog.String("account_id", account.ID),
		slog.String("role", account.Role))

	return session, nil
}

// Get loads a session by ID. Expired sessions are destroyed eagerly and
// reported as not found.
func (m *SessionManager) Get(ctx context.Context, id string) (*models.Session, error) {
	session, err := m.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	if session.Expired(time.Now()) {
		_ = m.store.Delete(ctx, session.ID)
		return nil, models.ErrNotFound
	}

	return session, nil
}

// IsAuthenticated reports whether the session carries an identity and is
// still live.
func (m *SessionManager) IsAuthenticated(session *models.Session) bool {
	return session != nil && session.Authenticated(time.Now())
}

// Destroy removes the session. Destroying a missing session is not an
// error; logout must be idempotent.
func (m *SessionManager) Destroy(ctx context.Context, id string) error {
	if err := m.store.Delete(ctx, id); err != nil && !errors.Is(err, models.ErrNotFound) {
		return fmt.Errorf("failed to destroy session: %w", err)
	}
	return nil
}
