package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"

	"github.com/tmackenzie/veridian/internal/auth"
	"github.com/tmackenzie/veridian/internal/models"
	"github.com/tmackenzie/veridian/internal/services"
	pkghttp "github.com/tmackenzie/veridian/pkg/http"
)

// NewTestRequest creates an HTTP request with JSON body for testing
func NewTestRequest(t *testing.T, method, url string, body interface{}) *http.Request {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("failed to encode request body: %v", err)
		}
	}
	req := httptest.NewRequest(method, url, &buf)
	req.Header.Set("Content-Type", "application/json")
	return req
}

// NewTestSession builds an authenticated session for context injection
func NewTestSession(accountID, role string) *models.Session {
	now := time.Now()
	return &models.Session{
		ID:        "session_" + accountID,
		AccountID: &accountID,
		Role:      role,
		CreatedAt: now,
		ExpiresAt: now.Add(8 * time.Hour),
	}
}

// WithSessionContext injects a session the way SessionMiddleware would
func WithSessionContext(req *http.Request, session *models.Session) *http.Request {
	ctx := context.WithValue(req.Context(), auth.SessionContextKey, session)
	return req.WithContext(ctx)
}

// WithAPIClaimsContext injects API token claims the way
// APITokenMiddleware would
func WithAPIClaimsContext(req *http.Request, claims *models.APITokenClaims) *http.Request {
	ctx := context.WithValue(req.Context(), auth.APIClaimsContextKey, claims)
	return req.WithContext(ctx)
}

// WithURLParam attaches a chi route parameter to the request
func WithURLParam(req *http.Request, key, value string) *http.Request {
	rctx := chi.NewRouteContext()
	rctx.URLParams.Add(key, value)
	return req.WithContext(context.WithValue(req.Context(), chi.RouteCtxKey, rctx))
}

// AssertJSONResponse checks status and decodes the JSON body
func AssertJSONResponse(t *testing.T, w *httptest.ResponseRecorder, expectedStatus int, target interface{}) {
	t.Helper()
	assert.Equal(t, expectedStatus, w.Code, "Response status mismatch")
	assert.Equal(t, "application/json", w.Header().Get("Content-Type"))

	if target != nil {
		err := json.Unmarshal(w.Body.Bytes(), target)
		assert.NoError(t, err, "Failed to decode response JSON")
	}
}

// AssertErrorResponse checks that the response is a standard error body
func AssertErrorResponse(t *testing.T, w *httptest.ResponseRecorder, expectedStatus int, expectedError string) {
	t.Helper()
	assert.Equal(t, expectedStatus, w.Code, "Response status mismatch")

	var resp pkghttp.ErrorResponse
	err := json.Unmarshal(w.Body.Bytes(), &resp)
	assert.NoError(t, err, "Failed to decode error response")
	assert.Equal(t, expectedError, resp.Error, "Error code mismatch")
	assert.NotEmpty(t, resp.Message, "Error message should not be empty")
}

// MockAuthService implements AuthServiceInterface for testing
type MockAuthService struct {
	LoginFunc          func(ctx context.Context, preSession *models.Session, username, password, ipAddress, userAgent string) (*models.Session, *models.Account, error)
	LogoutFunc         func(ctx context.Context, sessionID string) error
	ChangePasswordFunc func(ctx context.Context, accountID, current, next string, minLength int) error
}

func (m *MockAuthService) Login(ctx context.Context, preSession *models.Session, username, password, ipAddress, userAgent string) (*models.Session, *models.Account, error) {
	if m.LoginFunc != nil {
		return m.LoginFunc(ctx, preSession, username, password, ipAddress, userAgent)
	}
	return nil, nil, models.ErrUnauthorized
}

func (m *MockAuthService) Logout(ctx context.Context, sessionID string) error {
	if m.LogoutFunc != nil {
		return m.LogoutFunc(ctx, sessionID)
	}
	return nil
}

func (m *MockAuthService) ChangePassword(ctx context.Context, accountID, current, next string, minLength int) error {
	if m.ChangePasswordFunc != nil {
		return m.ChangePasswordFunc(ctx, accountID, current, next, minLength)
	}
	return nil
}

// MockCertificateService implements CertificateServiceInterface for testing
type MockCertificateService struct {
	IssueFunc             func(ctx context.Context, req services.IssueRequest, issuedBy string) (*models.Certificate, error)
	GetFunc               func(ctx context.Context, id string) (*models.Certificate, error)
	ListFunc              func(ctx context.Context, status string, limit, offset int) ([]*models.Certificate, error)
	RevokeFunc            func(ctx context.Context, id, reason, revokedBy string) (*models.Certificate, error)
	DeleteFunc            func(ctx context.Context, id, deletedBy string) error
	ListVerificationsFunc func(ctx context.Context, id string, limit, offset int) ([]*models.VerificationLog, error)
}

func (m *MockCertificateService) Issue(ctx context.Context, req services.IssueRequest, issuedBy string) (*models.Certificate, error) {
	if m.IssueFunc != nil {
		return m.IssueFunc(ctx, req, issuedBy)
	}
	return nil, models.ErrInternalServer
}

func (m *MockCertificateService) Get(ctx context.Context, id string) (*models.Certificate, error) {
	if m.GetFunc != nil {
		return m.GetFunc(ctx, id)
	}
	return nil, models.ErrNotFound
}

func (m *MockCertificateService) List(ctx context.Context, status string, limit, offset int) ([]*models.Certificate, error) {
	if m.ListFunc != nil {
		return m.ListFunc(ctx, status, limit, offset)
	}
	return []*models.Certificate{}, nil
}

func (m *MockCertificateService) Revoke(ctx context.Context, id, reason, revokedBy string) (*models.Certificate, error) {
	if m.RevokeFunc != nil {
		return m.RevokeFunc(ctx, id, reason, revokedBy)
	}
	return nil, models.ErrNotFound
}

func (m *MockCertificateService) Delete(ctx context.Context, id, deletedBy string) error {
	if m.DeleteFunc != nil {
		return m.DeleteFunc(ctx, id, deletedBy)
	}
	return nil
}

func (m *MockCertificateService) ListVerifications(ctx context.Context, id string, limit, offset int) ([]*models.VerificationLog, error) {
	if m.ListVerificationsFunc != nil {
		return m.ListVerificationsFunc(ctx, id, limit, offset)
	}
	return nil, models.ErrNotFound
}

// MockVerificationService implements VerificationServiceInterface for testing
type MockVerificationService struct {
	VerifyBySerialFunc func(ctx context.Context, serial, ipAddress string) (*services.VerificationResult, error)
}

func (m *MockVerificationService) VerifyBySerial(ctx context.Context, serial, ipAddress string) (*services.VerificationResult, error) {
	if m.VerifyBySerialFunc != nil {
		return m.VerifyBySerialFunc(ctx, serial, ipAddress)
	}
	return &services.VerificationResult{Result: models.VerificationNotFound, Serial: serial, VerifiedAt: time.Now()}, nil
}

// MockRateLimiter implements RateLimiterInterface for testing
type MockRateLimiter struct {
	AllowFunc func(ctx context.Context, identifier, action string) (bool, error)
}

func (m *MockRateLimiter) Allow(ctx context.Context, identifier, action string) (bool, error) {
	if m.AllowFunc != nil {
		return m.AllowFunc(ctx, identifier, action)
	}
	return true, nil
}

// MockAccountService implements AccountServiceInterface for testing
type MockAccountService struct {
	CreateFunc  func(ctx context.Context, req services.CreateAccountRequest, createdBy string) (*models.Account, error)
	ListFunc    func(ctx context.Context, limit, offset int) ([]*models.Account, error)
	SetLockFunc func(ctx context.Context, id string, locked bool, changedBy string) error
	DeleteFunc  func(ctx context.Context, id, deletedBy string) error
}

func (m *MockAccountService) Create(ctx context.Context, req services.CreateAccountRequest, createdBy string) (*models.Account, error) {
	if m.CreateFunc != nil {
		return m.CreateFunc(ctx, req, createdBy)
	}
	return nil, models.ErrInternalServer
}

func (m *MockAccountService) List(ctx context.Context, limit, offset int) ([]*models.Account, error) {
	if m.ListFunc != nil {
		return m.ListFunc(ctx, limit, offset)
	}
	return []*models.Account{}, nil
}

func (m *MockAccountService) SetLock(ctx context.Context, id string, locked bool, changedBy string) error {
	if m.SetLockFunc != nil {
		return m.SetLockFunc(ctx, id, locked, changedBy)
	}
	return nil
}

func (m *MockAccountService) Delete(ctx context.Context, id, deletedBy string) error {
	if m.DeleteFunc != nil {
		return m.DeleteFunc(ctx, id, deletedBy)
	}
	return nil
}
