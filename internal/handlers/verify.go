package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/tmackenzie/veridian/internal/auth"
	"github.com/tmackenzie/veridian/internal/models"
	"github.com/tmackenzie/veridian/internal/services"
	pkghttp "github.com/tmackenzie/veridian/pkg/http"
)

// VerificationServiceInterface resolves serials to validity verdicts
type VerificationServiceInterface interface {
	VerifyBySerial(ctx context.Context, serial, ipAddress string) (*services.VerificationResult, error)
}

// RateLimiterInterface admits or rejects attempts per identifier and
// action class
type RateLimiterInterface interface {
	Allow(ctx context.Context, identifier, action string) (bool, error)
}

// VerifyHandler serves the public and API verification surfaces
type VerifyHandler struct {
	service     VerificationServiceInterface
	rateLimiter RateLimiterInterface
	ipConfig    *pkghttp.IPConfig
}

// NewVerifyHandler creates a new VerifyHandler
func NewVerifyHandler(service VerificationServiceInterface, rateLimiter RateLimiterInterface, ipConfig *pkghttp.IPConfig) *VerifyHandler {
	return &VerifyHandler{
		service:     service,
		rateLimiter: rateLimiter,
		ipConfig:    ipConfig,
	}
}

// VerifyResponse is the public view of a verification verdict. Holder
// email never appears here.
type VerifyResponse struct {
	Result     string     `json:"result"`
	Serial     string     `json:"serial"`
	HolderName string     `json:"holder_name,omitempty"`
	Title      string     `json:"title,omitempty"`
	IssuedAt   *time.Time `json:"issued_at,omitempty"`
	ExpiresAt  *time.Time `json:"expires_at,omitempty"`
	RevokedAt  *time.Time `json:"revoked_at,omitempty"`
	VerifiedAt time.Time  `json:"verified_at"`
}

func toVerifyResponse(result *services.VerificationResult) VerifyResponse {
	return VerifyResponse{
		Result:     result.Result,
		Serial:     result.Serial,
		HolderName: result.HolderName,
		Title:      result.Title,
		IssuedAt:   result.IssuedAt,
		ExpiresAt:  result.ExpiresAt,
		RevokedAt:  result.RevokedAt,
		VerifiedAt: result.VerifiedAt,
	}
}

// Public serves GET /verify/{serial}, rate limited per client IP
func (h *VerifyHandler) Public(w http.ResponseWriter, r *http.Request) {
	ipAddress := pkghttp.ExtractClientIP(r, h.ipConfig)

	allowed, err := h.rateLimiter.Allow(r.Context(), ipAddress, models.ActionVerify)
	if err != nil {
		pkghttp.WriteInternalError(w, "Internal server error")
		return
	}
	if !allowed {
		pkghttp.WriteTooManyRequests(w, "Too many verification requests. Please try again later.")
		return
	}

	h.respond(w, r, ipAddress)
}

// API serves GET /api/verify/{serial}, rate limited per API token.
// Mounts behind APITokenMiddleware.
func (h *VerifyHandler) API(w http.ResponseWriter, r *http.Request) {
	claims := auth.GetAPIClaimsFromContext(r)
	if claims == nil {
		pkghttp.WriteUnauthorized(w, "unauthorized")
		return
	}

	allowed, err := h.rateLimiter.Allow(r.Context(), claims.ID, models.ActionAPI)
	if err != nil {
		pkghttp.WriteInternalError(w, "Internal server error")
		return
	}
	if !allowed {
		pkghttp.WriteTooManyRequests(w, "API rate limit exceeded")
		return
	}

	h.respond(w, r, pkghttp.ExtractClientIP(r, h.ipConfig))
}

func (h *VerifyHandler) respond(w http.ResponseWriter, r *http.Request, ipAddress string) {
	serial := chi.URLParam(r, "serial")
	if serial == "" {
		pkghttp.WriteBadRequest(w, "A serial number is required")
		return
	}

	result, err := h.service.VerifyBySerial(r.Context(), serial, ipAddress)
	if err != nil {
		pkghttp.WriteInternalError(w, "Internal server error")
		return
	}

	// not_found is a legitimate verdict, not an HTTP 404; the lookup
	// itself succeeded
	pkghttp.WriteJSON(w, http.StatusOK, toVerifyResponse(result))
}
