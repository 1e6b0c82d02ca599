package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/tmackenzie/veridian/internal/auth"
	"github.com/tmackenzie/veridian/internal/models"
	"github.com/tmackenzie/veridian/internal/services"
	pkghttp "github.com/tmackenzie/veridian/pkg/http"
)

// CertificateServiceInterface defines the interface for certificate
// business logic
type CertificateServiceInterface interface {
	Issue(ctx context.Context, req services.IssueRequest, issuedBy string) (*models.Certificate, error)
	Get(ctx context.Context, id string) (*models.Certificate, error)
	List(ctx context.Context, status string, limit, offset int) ([]*models.Certificate, error)
	Revoke(ctx context.Context, id, reason, revokedBy string) (*models.Certificate, error)
	Delete(ctx context.Context, id, deletedBy string) error
	ListVerifications(ctx context.Context, id string, limit, offset int) ([]*models.VerificationLog, error)
}

// CertificateHandler handles staff-facing certificate requests
type CertificateHandler struct {
	service CertificateServiceInterface
}

// NewCertificateHandler creates a new CertificateHandler
func NewCertificateHandler(service CertificateServiceInterface) *CertificateHandler {
	return &CertificateHandler{service: service}
}

// Request DTOs

// IssueCertificateRequest represents the request body for issuance
type IssueCertificateRequest struct {
	HolderName  string     `json:"holder_name" validate:"required,min=1,max=200"`
	HolderEmail string     `json:"holder_email" validate:"required,email"`
	Title       string     `json:"title" validate:"required,min=1,max=200"`
	ExpiresAt   *time.Time `json:"expires_at,omitempty"`
}

// RevokeCertificateRequest represents the request body for revocation
type RevokeCertificateRequest struct {
	Reason string `json:"reason" validate:"required,min=1,max=500"`
}

// CertificateResponse is the staff-facing view of a certificate
type CertificateResponse struct {
	ID           string     `json:"id"`
	Serial       string     `json:"serial"`
	HolderName   string     `json:"holder_name"`
	HolderEmail  string     `json:"holder_email"`
	Title        string     `json:"title"`
	Status       string     `json:"status"`
	IssuedBy     string     `json:"issued_by"`
	IssuedAt     time.Time  `json:"issued_at"`
	ExpiresAt    *time.Time `json:"expires_at,omitempty"`
	RevokedAt    *time.Time `json:"revoked_at,omitempty"`
	RevokeReason *string    `json:"revoke_reason,omitempty"`
}

// VerificationLogResponse is one entry of a certificate's verification
// history
type VerificationLogResponse struct {
	ID         int64     `json:"id"`
	Serial     string    `json:"serial"`
	IPAddress  string    `json:"ip_address"`
	Result     string    `json:"result"`
	VerifiedAt time.Time `json:"verified_at"`
}

func toCertificateResponse(cert *models.Certificate) CertificateResponse {
	return CertificateResponse{
		ID:           cert.ID,
		Serial:       cert.Serial,
		HolderName:   cert.HolderName,
		HolderEmail:  cert.HolderEmail,
		Title:        cert.Title,
		Status:       cert.Status,
		IssuedBy:     cert.IssuedBy,
		IssuedAt:     cert.IssuedAt,
		ExpiresAt:    cert.ExpiresAt,
		RevokedAt:    cert.RevokedAt,
		RevokeReason: cert.RevokeReason,
	}
}

// Issue creates a new certificate
func (h *CertificateHandler) Issue(w http.ResponseWriter, r *http.Request) {
	session := auth.GetSessionFromContext(r)
	if session == nil || session.AccountID == nil {
		pkghttp.WriteUnauthorized(w, "unauthorized")
		return
	}

	var req IssueCertificateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		pkghttp.WriteBadRequest(w, "Invalid request body")
		return
	}

	if err := ValidateRequest(req); err != nil {
		pkghttp.WriteBadRequest(w, err.Error())
		return
	}

	if req.ExpiresAt != nil && !req.ExpiresAt.After(time.Now()) {
		pkghttp.WriteBadRequest(w, "expires_at must be in the future")
		return
	}

	cert, err := h.service.Issue(r.Context(), services.IssueRequest{
		HolderName:  req.HolderName,
		HolderEmail: req.HolderEmail,
		Title:       req.Title,
		ExpiresAt:   req.ExpiresAt,
	}, *session.AccountID)
	if err != nil {
		pkghttp.WriteInternalError(w, "Internal server error")
		return
	}

	pkghttp.WriteJSON(w, http.StatusCreated, toCertificateResponse(cert))
}

// List returns certificates, newest first
func (h *CertificateHandler) List(w http.ResponseWriter, r *http.Request) {
	status := r.URL.Query().Get("status")
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))

	certs, err := h.service.List(r.Context(), status, limit, offset)
	if err != nil {
		if errors.Is(err, models.ErrBadRequest) {
			pkghttp.WriteBadRequest(w, "Unknown status filter")
			return
		}
		pkghttp.WriteInternalError(w, "Internal server error")
		return
	}

	out := make([]CertificateResponse, 0, len(certs))
	for _, cert := range certs {
		out = append(out, toCertificateResponse(cert))
	}

	pkghttp.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"certificates": out,
		"count":        len(out),
	})
}

// Get returns one certificate by ID
func (h *CertificateHandler) Get(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	cert, err := h.service.Get(r.Context(), id)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			pkghttp.WriteNotFound(w, "Certificate not found")
			return
		}
		pkghttp.WriteInternalError(w, "Internal server error")
		return
	}

	pkghttp.WriteJSON(w, http.StatusOK, toCertificateResponse(cert))
}

// Verifications returns the verification history for one certificate,
// newest first
func (h *CertificateHandler) Verifications(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))

	logs, err := h.service.ListVerifications(r.Context(), id, limit, offset)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			pkghttp.WriteNotFound(w, "Certificate not found")
			return
		}
		pkghttp.WriteInternalError(w, "Internal server error")
		return
	}

	out := make([]VerificationLogResponse, 0, len(logs))
	for _, entry := range logs {
		out = append(out, VerificationLogResponse{
			ID:         entry.ID,
			Serial:     entry.Serial,
			IPAddress:  entry.IPAddress,
			Result:     entry.Result,
			VerifiedAt: entry.VerifiedAt,
		})
	}

	pkghttp.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"verifications": out,
		"count":         len(out),
	})
}

// Revoke marks a certificate revoked
func (h *CertificateHandler) Revoke(w http.ResponseWriter, r *http.Request) {
	session := auth.GetSessionFromContext(r)
	if session == nil || session.AccountID == nil {
		pkghttp.WriteUnauthorized(w, "unauthorized")
		return
	}

	var req RevokeCertificateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		pkghttp.WriteBadRequest(w, "Invalid request body")
		return
	}

	if err := ValidateRequest(req); err != nil {
		pkghttp.WriteBadRequest(w, err.Error())
		return
	}

	cert, err := h.service.Revoke(r.Context(), chi.URLParam(r, "id"), req.Reason, *session.AccountID)
	if err != nil {
		switch {
		case errors.Is(err, models.ErrNotFound):
			pkghttp.WriteNotFound(w, "Certificate not found")
		case errors.Is(err, models.ErrConflict):
			pkghttp.WriteConflict(w, "Certificate is already revoked")
		case errors.Is(err, models.ErrBadRequest):
			pkghttp.WriteBadRequest(w, "A revocation reason is required")
		default:
			pkghttp.WriteInternalError(w, "Internal server error")
		}
		return
	}

	pkghttp.WriteJSON(w, http.StatusOK, toCertificateResponse(cert))
}

// Delete removes a certificate and its verification history. Admin only;
// the route mounts behind RequireRole.
func (h *CertificateHandler) Delete(w http.ResponseWriter, r *http.Request) {
	session := auth.GetSessionFromContext(r)
	if session == nil || session.AccountID == nil {
		pkghttp.WriteUnauthorized(w, "unauthorized")
		return
	}

	err := h.service.Delete(r.Context(), chi.URLParam(r, "id"), *session.AccountID)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			pkghttp.WriteNotFound(w, "Certificate not found")
			return
		}
		pkghttp.WriteInternalError(w, "Internal server error")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}
