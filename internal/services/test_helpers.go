package services

import (
	"context"
	"sync"
	"time"

	"github.com/tmackenzie/veridian/internal/models"
)

// MockAccountRepository implements AccountRepository and
// AdminAccountRepository for testing
type MockAccountRepository struct {
	GetByIDFunc                 func(ctx context.Context, id string) (*models.Account, error)
	GetByUsernameFunc           func(ctx context.Context, username string) (*models.Account, error)
	IncrementFailedAttemptsFunc func(ctx context.Context, id string, failedAt time.Time) (int, error)
	ResetFailedAttemptsFunc     func(ctx context.Context, id string) error
	UpdatePasswordFunc          func(ctx context.Context, id, passwordHash string) error
	CreateFunc                  func(ctx context.Context, account *models.Account) (*models.Account, error)
	ListFunc                    func(ctx context.Context, limit, offset int) ([]*models.Account, error)
	SetAdministrativeLockFunc   func(ctx context.Context, id string, locked bool) error
	DeleteFunc                  func(ctx context.Context, id string) error
}

func (m *MockAccountRepository) GetByID(ctx context.Context, id string) (*models.Account, error) {
	if m.GetByIDFunc != nil {
		return m.GetByIDFunc(ctx, id)
	}
	return nil, models.ErrNotFound
}

func (m *MockAccountRepository) GetByUsername(ctx context.Context, username string) (*models.Account, error) {
	if m.GetByUsernameFunc != nil {
		return m.GetByUsernameFunc(ctx, username)
	}
	return nil, models.ErrNotFound
}

func (m *MockAccountRepository) IncrementFailedAttempts(ctx context.Context, id string, failedAt time.Time) (int, error) {
	if m.IncrementFailedAttemptsFunc != nil {
		return m.IncrementFailedAttemptsFunc(ctx, id, failedAt)
	}
	return 1, nil
}

func (m *MockAccountRepository) ResetFailedAttempts(ctx context.Context, id string) error {
	if m.ResetFailedAttemptsFunc != nil {
		return m.ResetFailedAttemptsFunc(ctx, id)
	}
	return nil
}

func (m *MockAccountRepository) UpdatePassword(ctx context.Context, id, passwordHash string) error {
	if m.UpdatePasswordFunc != nil {
		return m.UpdatePasswordFunc(ctx, id, passwordHash)
	}
	return nil
}

func (m *MockAccountRepository) Create(ctx context.Context, account *models.Account) (*models.Account, error) {
	if m.CreateFunc != nil {
		return m.CreateFunc(ctx, account)
	}
	account.ID = "acct_test"
	return account, nil
}

func (m *MockAccountRepository) List(ctx context.Context, limit, offset int) ([]*models.Account, error) {
	if m.ListFunc != nil {
		return m.ListFunc(ctx, limit, offset)
	}
	return []*models.Account{}, nil
}

func (m *MockAccountRepository) SetAdministrativeLock(ctx context.Context, id string, locked bool) error {
	if m.SetAdministrativeLockFunc != nil {
		return m.SetAdministrativeLockFunc(ctx, id, locked)
	}
	return nil
}

func (m *MockAccountRepository) Delete(ctx context.Context, id string) error {
	if m.DeleteFunc != nil {
		return m.DeleteFunc(ctx, id)
	}
	return nil
}

// MemRateLimitRepository is an in-memory RateLimitRepository that mirrors
// the transactional count-then-record behavior of the real one.
type MemRateLimitRepository struct {
	mu      sync.Mutex
	entries map[string][]time.Time
}

func NewMemRateLimitRepository() *MemRateLimitRepository {
	return &MemRateLimitRepository{entries: make(map[string][]time.Time)}
}

func (m *MemRateLimitRepository) CountAndRecord(ctx context.Context, identifier, action string, since time.Time, max int) (bool, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := identifier + "|" + action
	count := 0
	for _, at := range m.entries[key] {
		if at.After(since) {
			count++
		}
	}
	if count >= max {
		return false, count, nil
	}

	m.entries[key] = append(m.entries[key], time.Now())
	return true, count + 1, nil
}

func (m *MemRateLimitRepository) Count(ctx context.Context, identifier, action string, since time.Time) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	count := 0
	for _, at := range m.entries[identifier+"|"+action] {
		if at.After(since) {
			count++
		}
	}
	return count, nil
}

// Backdate shifts every recorded entry for (identifier, action) into the
// past, simulating window expiry without sleeping.
func (m *MemRateLimitRepository) Backdate(identifier, action string, by time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := identifier + "|" + action
	for i, at := range m.entries[key] {
		m.entries[key][i] = at.Add(-by)
	}
}

// MockCertificateRepository implements CertificateRepository for testing
type MockCertificateRepository struct {
	CreateFunc         func(ctx context.Context, cert *models.Certificate) (*models.Certificate, error)
	GetByIDFunc        func(ctx context.Context, id string) (*models.Certificate, error)
	GetBySerialFunc    func(ctx context.Context, serial string) (*models.Certificate, error)
	ListFunc           func(ctx context.Context, status string, limit, offset int) ([]*models.Certificate, error)
	RevokeFunc         func(ctx context.Context, id, reason string) (*models.Certificate, error)
	DeleteWithLogsFunc func(ctx context.Context, id string) error
}

func (m *MockCertificateRepository) Create(ctx context.Context, cert *models.Certificate) (*models.Certificate, error) {
	if m.CreateFunc != nil {
		return m.CreateFunc(ctx, cert)
	}
	cert.ID = "cert_test"
	if cert.Status == "" {
		cert.Status = models.CertificateActive
	}
	return cert, nil
}

func (m *MockCertificateRepository) GetByID(ctx context.Context, id string) (*models.Certificate, error) {
	if m.GetByIDFunc != nil {
		return m.GetByIDFunc(ctx, id)
	}
	return nil, models.ErrNotFound
}

func (m *MockCertificateRepository) GetBySerial(ctx context.Context, serial string) (*models.Certificate, error) {
	if m.GetBySerialFunc != nil {
		return m.GetBySerialFunc(ctx, serial)
	}
	return nil, models.ErrNotFound
}

func (m *MockCertificateRepository) List(ctx context.Context, status string, limit, offset int) ([]*models.Certificate, error) {
	if m.ListFunc != nil {
		return m.ListFunc(ctx, status, limit, offset)
	}
	return []*models.Certificate{}, nil
}

func (m *MockCertificateRepository) Revoke(ctx context.Context, id, reason string) (*models.Certificate, error) {
	if m.RevokeFunc != nil {
		return m.RevokeFunc(ctx, id, reason)
	}
	return nil, models.ErrNotFound
}

func (m *MockCertificateRepository) DeleteWithLogs(ctx context.Context, id string) error {
	if m.DeleteWithLogsFunc != nil {
		return m.DeleteWithLogsFunc(ctx, id)
	}
	return nil
}

// MockVerificationLogRepository records verification entries in memory
type MockVerificationLogRepository struct {
	RecordFunc            func(ctx context.Context, entry *models.VerificationLog) error
	ListByCertificateFunc func(ctx context.Context, certificateID string, limit, offset int) ([]*models.VerificationLog, error)
	Recorded              []*models.VerificationLog
}

func (m *MockVerificationLogRepository) Record(ctx context.Context, entry *models.VerificationLog) error {
	if m.RecordFunc != nil {
		return m.RecordFunc(ctx, entry)
	}
	m.Recorded = append(m.Recorded, entry)
	return nil
}

func (m *MockVerificationLogRepository) ListByCertificate(ctx context.Context, certificateID string, limit, offset int) ([]*models.VerificationLog, error) {
	if m.ListByCertificateFunc != nil {
		return m.ListByCertificateFunc(ctx, certificateID, limit, offset)
	}

	matched := make([]*models.VerificationLog, 0)
	for _, entry := range m.Recorded {
		if entry.CertificateID != nil && *entry.CertificateID == certificateID {
			matched = append(matched, entry)
		}
	}
	return matched, nil
}

// MockSessionPurger records which accounts had their sessions ended
type MockSessionPurger struct {
	DeleteByAccountFunc func(ctx context.Context, accountID string) error
	Purged              []string
}

func (m *MockSessionPurger) DeleteByAccount(ctx context.Context, accountID string) error {
	if m.DeleteByAccountFunc != nil {
		return m.DeleteByAccountFunc(ctx, accountID)
	}
	m.Purged = append(m.Purged, accountID)
	return nil
}

// MockEmailService implements EmailService for testing
type MockEmailService struct {
	SendIssuanceNotificationFunc func(ctx context.Context, cert *models.Certificate) error
	Sent                         []*models.Certificate
}

func (m *MockEmailService) SendIssuanceNotification(ctx context.Context, cert *models.Certificate) error {
	if m.SendIssuanceNotificationFunc != nil {
		return m.SendIssuanceNotificationFunc(ctx, cert)
	}
	m.Sent = append(m.Sent, cert)
	return nil
}

// MemSessionStore is an in-memory auth.SessionStore
type MemSessionStore struct {
	mu       sync.Mutex
	sessions map[string]*models.Session
}

func NewMemSessionStore() *MemSessionStore {
	return &MemSessionStore{sessions: make(map[string]*models.Session)}
}

func (m *MemSessionStore) Get(ctx context.Context, id string) (*models.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	session, ok := m.sessions[id]
	if !ok {
		return nil, models.ErrNotFound
	}
	copied := *session
	return &copied, nil
}

func (m *MemSessionStore) Create(ctx context.Context, session *models.Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	copied := *session
	m.sessions[session.ID] = &copied
	return nil
}

func (m *MemSessionStore) Replace(ctx context.Context, oldID string, session *models.Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sessions, oldID)
	copied := *session
	m.sessions[session.ID] = &copied
	return nil
}

func (m *MemSessionStore) UpdateCSRF(ctx context.Context, sessionID, token string, expiresAt time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	session, ok := m.sessions[sessionID]
	if !ok {
		return models.ErrNotFound
	}
	session.CSRFToken = &token
	session.CSRFExpiresAt = &expiresAt
	return nil
}

func (m *MemSessionStore) Delete(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sessions, id)
	return nil
}

// NewTestAccount creates a staff account with sane defaults
func NewTestAccount(id, username, passwordHash string) *models.Account {
	now := time.Now()
	return &models.Account{
		ID:           id,
		Username:     username,
		Email:        username + "@example.com",
		PasswordHash: passwordHash,
		Role:         models.RoleStaff,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
}

// NewTestAccountThrottled creates an account at the failure threshold
func NewTestAccountThrottled(id, username, passwordHash string, attempts int, lastFailed time.Time) *models.Account {
	account := NewTestAccount(id, username, passwordHash)
	account.FailedLoginAttempts = attempts
	account.LastFailedLogin = &lastFailed
	return account
}

// NewTestCertificate creates an active certificate
func NewTestCertificate(id, serial, holderName string) *models.Certificate {
	now := time.Now()
	return &models.Certificate{
		ID:          id,
		Serial:      serial,
		HolderName:  holderName,
		HolderEmail: "holder@example.com",
		Title:       "Advanced Widget Assembly",
		Status:      models.CertificateActive,
		IssuedBy:    "acct_admin",
		IssuedAt:    now,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}
