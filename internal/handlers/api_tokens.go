package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/tmackenzie/veridian/internal/auth"
	pkghttp "github.com/tmackenzie/veridian/pkg/http"
)

// APITokenHandler mints API verification tokens. Admin only.
type APITokenHandler struct {
	tokens *auth.APITokenManager
}

// NewAPITokenHandler creates a new APITokenHandler
func NewAPITokenHandler(tokens *auth.APITokenManager) *APITokenHandler {
	return &APITokenHandler{tokens: tokens}
}

// CreateAPITokenRequest represents the request body for minting a token
type CreateAPITokenRequest struct {
	Label string `json:"label" validate:"required,min=1,max=100"`
}

// APITokenResponse carries the freshly minted token. The token string is
// shown once and never stored server side.
type APITokenResponse struct {
	Token   string `json:"token"`
	TokenID string `json:"token_id"`
	Label   string `json:"label"`
}

// Create mints a long-lived token for machine verification clients. The
// token ID doubles as the rate-limit identifier for API calls.
func (h *APITokenHandler) Create(w http.ResponseWriter, r *http.Request) {
	session := auth.GetSessionFromContext(r)
	if session == nil || session.AccountID == nil {
		pkghttp.WriteUnauthorized(w, "unauthorized")
		return
	}

	var req CreateAPITokenRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		pkghttp.WriteBadRequest(w, "Invalid request body")
		return
	}

	if err := ValidateRequest(req); err != nil {
		pkghttp.WriteBadRequest(w, err.Error())
		return
	}

	token, tokenID, err := h.tokens.Generate(*session.AccountID, req.Label)
	if err != nil {
		pkghttp.WriteInternalError(w, "Internal server error")
		return
	}

	pkghttp.WriteJSON(w, http.StatusCreated, APITokenResponse{
		Token:   token,
		TokenID: tokenID,
		Label:   req.Label,
	})
}
