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

// AccountServiceInterface defines the interface for account management
type AccountServiceInterface interface {
	Create(ctx context.Context, req services.CreateAccountRequest, createdBy string) (*models.Account, error)
	List(ctx context.Context, limit, offset int) ([]*models.Account, error)
	SetLock(ctx context.Context, id string, locked bool, changedBy string) error
	Delete(ctx context.Context, id, deletedBy string) error
}

// AccountHandler handles admin-side staff account management
type AccountHandler struct {
	service AccountServiceInterface
}

// NewAccountHandler creates a new AccountHandler
func NewAccountHandler(service AccountServiceInterface) *AccountHandler {
	return &AccountHandler{service: service}
}

// CreateStaffRequest represents the request body for creating staff
type CreateStaffRequest struct {
	Username string `json:"username" validate:"required,min=3,max=64"`
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required,max=128"`
	Role     string `json:"role" validate:"required,oneof=admin staff"`
}

// AccountResponse is the admin-facing view of an account. Password hash
// and failure counters stay internal.
type AccountResponse struct {
	ID            string    `json:"id"`
	Username      string    `json:"username"`
	Email         string    `json:"email"`
	Role          string    `json:"role"`
	AccountLocked bool      `json:"account_locked"`
	CreatedAt     time.Time `json:"created_at"`
}

func toAccountResponse(account *models.Account) AccountResponse {
	return AccountResponse{
		ID:            account.ID,
		Username:      account.Username,
		Email:         account.Email,
		Role:          account.Role,
		AccountLocked: account.AccountLocked,
		CreatedAt:     account.CreatedAt,
	}
}

// Create adds a staff account
func (h *AccountHandler) Create(w http.ResponseWriter, r *http.Request) {
	session := auth.GetSessionFromContext(r)
	if session == nil || session.AccountID == nil {
		pkghttp.WriteUnauthorized(w, "unauthorized")
		return
	}

	var req CreateStaffRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		pkghttp.WriteBadRequest(w, "Invalid request body")
		return
	}

	if err := ValidateRequest(req); err != nil {
		pkghttp.WriteBadRequest(w, err.Error())
		return
	}

	account, err := h.service.Create(r.Context(), services.CreateAccountRequest{
		Username: req.Username,
		Email:    req.Email,
		Password: req.Password,
		Role:     req.Role,
	}, *session.AccountID)
	if err != nil {
		switch {
		case errors.Is(err, models.ErrConflict):
			pkghttp.WriteConflict(w, "Username is already taken")
		case errors.Is(err, models.ErrBadRequest):
			pkghttp.WriteBadRequest(w, "Invalid account details")
		case errors.Is(err, models.ErrInternalServer):
			pkghttp.WriteInternalError(w, "Internal server error")
		default:
			// Password policy failure
			pkghttp.WriteBadRequest(w, err.Error())
		}
		return
	}

	pkghttp.WriteJSON(w, http.StatusCreated, toAccountResponse(account))
}

// List returns staff accounts
func (h *AccountHandler) List(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))

	accounts, err := h.service.List(r.Context(), limit, offset)
	if err != nil {
		pkghttp.WriteInternalError(w, "Internal server error")
		return
	}

	out := make([]AccountResponse, 0, len(accounts))
	for _, account := range accounts {
		out = append(out, toAccountResponse(account))
	}

	pkghttp.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"accounts": out,
		"count":    len(out),
	})
}

// Lock applies the administrative lock
func (h *AccountHandler) Lock(w http.ResponseWriter, r *http.Request) {
	h.setLock(w, r, true)
}

// Unlock clears the administrative lock and resets failure counters
func (h *AccountHandler) Unlock(w http.ResponseWriter, r *http.Request) {
	h.setLock(w, r, false)
}

func (h *AccountHandler) setLock(w http.ResponseWriter, r *http.Request, locked bool) {
	session := auth.GetSessionFromContext(r)
	if session == nil || session.AccountID == nil {
		pkghttp.WriteUnauthorized(w, "unauthorized")
		return
	}

	id := chi.URLParam(r, "id")
	if locked && id == *session.AccountID {
		pkghttp.WriteBadRequest(w, "You cannot lock your own account")
		return
	}

	if err := h.service.SetLock(r.Context(), id, locked, *session.AccountID); err != nil {
		if errors.Is(err, models.ErrNotFound) {
			pkghttp.WriteNotFound(w, "Account not found")
			return
		}
		pkghttp.WriteInternalError(w, "Internal server error")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// Delete removes a staff account
func (h *AccountHandler) Delete(w http.ResponseWriter, r *http.Request) {
	session := auth.GetSessionFromContext(r)
	if session == nil || session.AccountID == nil {
		pkghttp.WriteUnauthorized(w, "unauthorized")
		return
	}

	id := chi.URLParam(r, "id")
	if id == *session.AccountID {
		pkghttp.WriteBadRequest(w, "You cannot delete your own account")
		return
	}

	if err := h.service.Delete(r.Context(), id, *session.AccountID); err != nil {
		if errors.Is(err, models.ErrNotFound) {
			pkghttp.WriteNotFound(w, "Account not found")
			return
		}
		pkghttp.WriteInternalError(w, "Internal server error")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}
