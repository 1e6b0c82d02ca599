package handlers_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tmackenzie/veridian/internal/handlers"
	"github.com/tmackenzie/veridian/internal/models"
	"github.com/tmackenzie/veridian/internal/services"
)

func testCertificate(id, serial string) *models.Certificate {
	now := time.Now()
	return &models.Certificate{
		ID:          id,
		Serial:      serial,
		HolderName:  "Jamie Holder",
		HolderEmail: "holder@example.com",
		Title:       "Advanced Widget Assembly",
		Status:      models.CertificateActive,
		IssuedBy:    "acct_admin",
		IssuedAt:    now,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}

func TestIssueCertificate_Success(t *testing.T) {
	var gotIssuer string
	service := &handlers.MockCertificateService{
		IssueFunc: func(ctx context.Context, req services.IssueRequest, issuedBy string) (*models.Certificate, error) {
			gotIssuer = issuedBy
			cert := testCertificate("cert_1", "VC-1111-2222-3333-4444")
			cert.HolderName = req.HolderName
			return cert, nil
		},
	}
	handler := handlers.NewCertificateHandler(service)

	session := handlers.NewTestSession("acct_1", models.RoleStaff)
	req := handlers.WithSessionContext(handlers.NewTestRequest(t, "POST", "/certificates", handlers.IssueCertificateRequest{
		HolderName:  "Jamie Holder",
		HolderEmail: "holder@example.com",
		Title:       "Advanced Widget Assembly",
	}), session)
	w := httptest.NewRecorder()
	handler.Issue(w, req)

	var resp handlers.CertificateResponse
	handlers.AssertJSONResponse(t, w, http.StatusCreated, &resp)
	assert.Equal(t, "VC-1111-2222-3333-4444", resp.Serial)
	assert.Equal(t, "acct_1", gotIssuer)
}

func TestIssueCertificate_MissingFields(t *testing.T) {
	handler := handlers.NewCertificateHandler(&handlers.MockCertificateService{})

	session := handlers.NewTestSession("acct_1", models.RoleStaff)
	req := handlers.WithSessionContext(handlers.NewTestRequest(t, "POST", "/certificates", handlers.IssueCertificateRequest{
		HolderName: "Jamie Holder",
	}), session)
	w := httptest.NewRecorder()
	handler.Issue(w, req)

	handlers.AssertErrorResponse(t, w, http.StatusBadRequest, "bad_request")
}

func TestIssueCertificate_PastExpiryRejected(t *testing.T) {
	handler := handlers.NewCertificateHandler(&handlers.MockCertificateService{})

	past := time.Now().Add(-time.Hour)
	session := handlers.NewTestSession("acct_1", models.RoleStaff)
	req := handlers.WithSessionContext(handlers.NewTestRequest(t, "POST", "/certificates", handlers.IssueCertificateRequest{
		HolderName:  "Jamie Holder",
		HolderEmail: "holder@example.com",
		Title:       "Advanced Widget Assembly",
		ExpiresAt:   &past,
	}), session)
	w := httptest.NewRecorder()
	handler.Issue(w, req)

	handlers.AssertErrorResponse(t, w, http.StatusBadRequest, "bad_request")
}

func TestListCertificates_PassesFilter(t *testing.T) {
	var gotStatus string
	service := &handlers.MockCertificateService{
		ListFunc: func(ctx context.Context, status string, limit, offset int) ([]*models.Certificate, error) {
			gotStatus = status
			return []*models.Certificate{testCertificate("cert_1", "VC-1111-2222-3333-4444")}, nil
		},
	}
	handler := handlers.NewCertificateHandler(service)

	req := httptest.NewRequest("GET", "/certificates?status=revoked", nil)
	w := httptest.NewRecorder()
	handler.List(w, req)

	var resp struct {
		Certificates []handlers.CertificateResponse `json:"certificates"`
		Count        int                            `json:"count"`
	}
	handlers.AssertJSONResponse(t, w, http.StatusOK, &resp)
	assert.Equal(t, "revoked", gotStatus)
	assert.Equal(t, 1, resp.Count)
}

func TestGetCertificate_NotFound(t *testing.T) {
	handler := handlers.NewCertificateHandler(&handlers.MockCertificateService{})

	req := handlers.WithURLParam(httptest.NewRequest("GET", "/certificates/cert_missing", nil), "id", "cert_missing")
	w := httptest.NewRecorder()
	handler.Get(w, req)

	handlers.AssertErrorResponse(t, w, http.StatusNotFound, "not_found")
}

func TestRevokeCertificate_Success(t *testing.T) {
	service := &handlers.MockCertificateService{
		RevokeFunc: func(ctx context.Context, id, reason, revokedBy string) (*models.Certificate, error) {
			cert := testCertificate(id, "VC-1111-2222-3333-4444")
			cert.Status = models.CertificateRevoked
			cert.RevokeReason = &reason
			return cert, nil
		},
	}
	handler := handlers.NewCertificateHandler(service)

	session := handlers.NewTestSession("acct_1", models.RoleStaff)
	req := handlers.WithSessionContext(handlers.NewTestRequest(t, "POST", "/certificates/cert_1/revoke", handlers.RevokeCertificateRequest{
		Reason: "issued in error",
	}), session)
	req = handlers.WithURLParam(req, "id", "cert_1")
	w := httptest.NewRecorder()
	handler.Revoke(w, req)

	var resp handlers.CertificateResponse
	handlers.AssertJSONResponse(t, w, http.StatusOK, &resp)
	assert.Equal(t, models.CertificateRevoked, resp.Status)
	require.NotNil(t, resp.RevokeReason)
	assert.Equal(t, "issued in error", *resp.RevokeReason)
}

func TestRevokeCertificate_AlreadyRevoked(t *testing.T) {
	service := &handlers.MockCertificateService{
		RevokeFunc: func(ctx context.Context, id, reason, revokedBy string) (*models.Certificate, error) {
			return nil, models.ErrConflict
		},
	}
	handler := handlers.NewCertificateHandler(service)

	session := handlers.NewTestSession("acct_1", models.RoleStaff)
	req := handlers.WithSessionContext(handlers.NewTestRequest(t, "POST", "/certificates/cert_1/revoke", handlers.RevokeCertificateRequest{
		Reason: "issued in error",
	}), session)
	req = handlers.WithURLParam(req, "id", "cert_1")
	w := httptest.NewRecorder()
	handler.Revoke(w, req)

	handlers.AssertErrorResponse(t, w, http.StatusConflict, "conflict")
}

func TestCertificateVerifications_ReturnsHistory(t *testing.T) {
	certID := "cert_1"
	service := &handlers.MockCertificateService{
		ListVerificationsFunc: func(ctx context.Context, id string, limit, offset int) ([]*models.VerificationLog, error) {
			return []*models.VerificationLog{
				{ID: 2, CertificateID: &certID, Serial: "VC-1111-2222-3333-4444", IPAddress: "198.51.100.4", Result: models.VerificationValid, VerifiedAt: time.Now()},
				{ID: 1, CertificateID: &certID, Serial: "VC-1111-2222-3333-4444", IPAddress: "198.51.100.5", Result: models.VerificationValid, VerifiedAt: time.Now().Add(-time.Hour)},
			}, nil
		},
	}
	handler := handlers.NewCertificateHandler(service)

	req := handlers.WithURLParam(httptest.NewRequest("GET", "/certificates/cert_1/verifications", nil), "id", "cert_1")
	w := httptest.NewRecorder()
	handler.Verifications(w, req)

	var resp struct {
		Verifications []handlers.VerificationLogResponse `json:"verifications"`
		Count         int                                `json:"count"`
	}
	handlers.AssertJSONResponse(t, w, http.StatusOK, &resp)
	assert.Equal(t, 2, resp.Count)
	assert.Equal(t, int64(2), resp.Verifications[0].ID)
	assert.Equal(t, "198.51.100.4", resp.Verifications[0].IPAddress)
}

func TestCertificateVerifications_UnknownCertificate(t *testing.T) {
	handler := handlers.NewCertificateHandler(&handlers.MockCertificateService{})

	req := handlers.WithURLParam(httptest.NewRequest("GET", "/certificates/cert_missing/verifications", nil), "id", "cert_missing")
	w := httptest.NewRecorder()
	handler.Verifications(w, req)

	handlers.AssertErrorResponse(t, w, http.StatusNotFound, "not_found")
}

func TestDeleteCertificate_Success(t *testing.T) {
	var deletedID string
	service := &handlers.MockCertificateService{
		DeleteFunc: func(ctx context.Context, id, deletedBy string) error {
			deletedID = id
			return nil
		},
	}
	handler := handlers.NewCertificateHandler(service)

	session := handlers.NewTestSession("acct_admin", models.RoleAdmin)
	req := handlers.WithSessionContext(httptest.NewRequest("DELETE", "/certificates/cert_1", nil), session)
	req = handlers.WithURLParam(req, "id", "cert_1")
	w := httptest.NewRecorder()
	handler.Delete(w, req)

	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, "cert_1", deletedID)
}
