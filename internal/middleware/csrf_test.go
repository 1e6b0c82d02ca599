package middleware

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/tmackenzie/veridian/internal/auth"
	"github.com/tmackenzie/veridian/internal/models"
)

type noopCSRFStore struct{}

func (noopCSRFStore) UpdateCSRF(ctx context.Context, sessionID, token string, expiresAt time.Time) error {
	return nil
}

func testSessionWithToken(t *testing.T, manager *auth.CSRFTokenManager) (*models.Session, string) {
	t.Helper()
	session := &models.Session{
		ID:        "session-csrf-test",
		ExpiresAt: time.Now().Add(time.Hour),
	}
	token, err := manager.Issue(context.Background(), session)
	if err != nil {
		t.Fatalf("issuing token: %v", err)
	}
	return session, token
}

func csrfTestHandler(manager *auth.CSRFTokenManager) http.Handler {
	logger := slog.New(slog.NewJSONHandler(io.Discard, nil))
	return CSRFProtection(manager, logger)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
}

func withSession(req *http.Request, session *models.Session) *http.Request {
	ctx := context.WithValue(req.Context(), auth.SessionContextKey, session)
	return req.WithContext(ctx)
}

func TestCSRFProtection_ValidTokenPasses(t *testing.T) {
	manager := auth.NewCSRFTokenManager(noopCSRFStore{}, 32, 30*time.Minute)
	session, token := testSessionWithToken(t, manager)
	handler := csrfTestHandler(manager)

	req := withSession(httptest.NewRequest("POST", "/certificates", nil), session)
	req.Header.Set("X-CSRF-Token", token)
	recorder := httptest.NewRecorder()
	handler.ServeHTTP(recorder, req)

	if recorder.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", recorder.Code)
	}
}

func TestCSRFProtection_MissingTokenRejected(t *testing.T) {
	manager := auth.NewCSRFTokenManager(noopCSRFStore{}, 32, 30*time.Minute)
	session, _ := testSessionWithToken(t, manager)
	handler := csrfTestHandler(manager)

	req := withSession(httptest.NewRequest("POST", "/certificates", nil), session)
	recorder := httptest.NewRecorder()
	handler.ServeHTTP(recorder, req)

	if recorder.Code != http.StatusForbidden {
		t.Errorf("expected 403, got %d", recorder.Code)
	}
}

func TestCSRFProtection_WrongTokenRejected(t *testing.T) {
	manager := auth.NewCSRFTokenManager(noopCSRFStore{}, 32, 30*time.Minute)
	session, _ := testSessionWithToken(t, manager)
	handler := csrfTestHandler(manager)

	req := withSession(httptest.NewRequest("POST", "/certificates", nil), session)
	req.Header.Set("X-CSRF-Token", "0000000000000000000000000000000000000000000000000000000000000000")
	recorder := httptest.NewRecorder()
	handler.ServeHTTP(recorder, req)

	if recorder.Code != http.StatusForbidden {
		t.Errorf("expected 403, got %d", recorder.Code)
	}
}

func TestCSRFProtection_ExpiredTokenRejected(t *testing.T) {
	manager := auth.NewCSRFTokenManager(noopCSRFStore{}, 32, -time.Minute)
	session, token := testSessionWithToken(t, manager)
	handler := csrfTestHandler(manager)

	req := withSession(httptest.NewRequest("POST", "/certificates", nil), session)
	req.Header.Set("X-CSRF-Token", token)
	recorder := httptest.NewRecorder()
	handler.ServeHTTP(recorder, req)

	if recorder.Code != http.StatusForbidden {
		t.Errorf("expected 403, got %d", recorder.Code)
	}
}

func TestCSRFProtection_GetRequestsSkipped(t *testing.T) {
	manager := auth.NewCSRFTokenManager(noopCSRFStore{}, 32, 30*time.Minute)
	handler := csrfTestHandler(manager)

	// No session and no token; reads are never CSRF-checked.
	req := httptest.NewRequest("GET", "/certificates", nil)
	recorder := httptest.NewRecorder()
	handler.ServeHTTP(recorder, req)

	if recorder.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", recorder.Code)
	}
}

func TestCSRFProtection_NoSessionRejected(t *testing.T) {
	manager := auth.NewCSRFTokenManager(noopCSRFStore{}, 32, 30*time.Minute)
	handler := csrfTestHandler(manager)

	req := httptest.NewRequest("POST", "/certificates", nil)
	req.Header.Set("X-CSRF-Token", "anything")
	recorder := httptest.NewRecorder()
	handler.ServeHTTP(recorder, req)

	if recorder.Code != http.StatusForbidden {
		t.Errorf("expected 403, got %d", recorder.Code)
	}
}
