package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/tmackenzie/veridian/internal/auth"
	"github.com/tmackenzie/veridian/internal/models"
	pkghttp "github.com/tmackenzie/veridian/pkg/http"
)

// csrfFailureMessage is deliberately generic; whether the token was
// missing, stale or wrong is never disclosed.
const csrfFailureMessage = "Security validation failed. Please refresh the page and try again."

// AuthServiceInterface defines the interface for auth business logic
type AuthServiceInterface interface {
	Login(ctx context.Context, preSession *models.Session, username, password, ipAddress, userAgent string) (*models.Session, *models.Account, error)
	Logout(ctx context.Context, sessionID string) error
	ChangePassword(ctx context.Context, accountID, current, next string, minLength int) error
}

// AuthHandler handles session and login HTTP requests
type AuthHandler struct {
	service           AuthServiceInterface
	sessions          *auth.SessionManager
	csrf              *auth.CSRFTokenManager
	cookies           auth.CookieConfig
	ipConfig          *pkghttp.IPConfig
	passwordMinLength int
}

// NewAuthHandler creates a new AuthHandler
func NewAuthHandler(
	service AuthServiceInterface,
	sessions *auth.SessionManager,
	csrf *auth.CSRFTokenManager,
	cookies auth.CookieConfig,
	ipConfig *pkghttp.IPConfig,
	passwordMinLength int,
) *AuthHandler {
	return &AuthHandler{
		service:           service,
		sessions:          sessions,
		csrf:              csrf,
		cookies:           cookies,
		ipConfig:          ipConfig,
		passwordMinLength: passwordMinLength,
	}
}

// Request DTOs

// LoginRequest represents the request body for login
type LoginRequest struct {
	Username  string `json:"username" validate:"required,max=64"`
	Password  string `json:"password" validate:"required,max=128"`
	CSRFToken string `json:"csrf_token" validate:"required"`
}

// ChangePasswordRequest represents the request body for a password change
type ChangePasswordRequest struct {
	CurrentPassword string `json:"current_password" validate:"required,max=128"`
	NewPassword     string `json:"new_password" validate:"required,max=128"`
}

// Response DTOs

// CSRFResponse carries the session's live CSRF token
type CSRFResponse struct {
	CSRFToken string    `json:"csrf_token"`
	ExpiresAt time.Time `json:"expires_at"`
}

// LoginResponse is returned on successful authentication
type LoginResponse struct {
	AccountID string    `json:"account_id"`
	Username  string    `json:"username"`
	Role      string    `json:"role"`
	CSRFToken string    `json:"csrf_token"`
	ExpiresAt time.Time `json:"expires_at"`
}

// LoginFailureResponse carries the generic failure message plus the
// throttling detail the login form displays
type LoginFailureResponse struct {
	Error             string `json:"error"`
	Message           string `json:"message"`
	RemainingAttempts *int   `json:"remaining_attempts,omitempty"`
	RetryAfterSeconds *int   `json:"retry_after_seconds,omitempty"`
}

// SessionResponse describes the caller's current session
type SessionResponse struct {
	AccountID string    `json:"account_id"`
	Role      string    `json:"role"`
	ExpiresAt time.Time `json:"expires_at"`
}

// loadSession resolves the cookie to a live session, authenticated or
// not. The login flow needs the anonymous pre-auth session.
func (h *AuthHandler) loadSession(r *http.Request) *models.Session {
	sessionID, err := auth.GetSessionCookie(r)
	if err != nil || sessionID == "" {
		return nil
	}

	session, err := h.sessions.Get(r.Context(), sessionID)
	if err != nil {
		return nil
	}
	return session
}

// CSRFToken hands the login form its session cookie and CSRF token,
// creating an anonymous session when none exists yet.
func (h *AuthHandler) CSRFToken(w http.ResponseWriter, r *http.Request) {
	session := h.loadSession(r)
	if session == nil {
		var err error
		session, err = h.sessions.Create(r.Context())
		if err != nil {
			pkghttp.WriteInternalError(w, "Internal server error")
			return
		}
		auth.SetSessionCookie(w, session.ID, session.ExpiresAt, h.cookies)
	}

	token, err := h.csrf.Issue(r.Context(), session)
	if err != nil {
		pkghttp.WriteInternalError(w, "Internal server error")
		return
	}

	pkghttp.WriteJSON(w, http.StatusOK, CSRFResponse{
		CSRFToken: token,
		ExpiresAt: *session.CSRFExpiresAt,
	})
}

// Login authenticates a staff member. CSRF is checked against the
// pre-auth session before credentials are looked at; on success the
// session ID rotates and a fresh token is issued for the new session.
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		pkghttp.WriteBadRequest(w, "Invalid request body")
		return
	}

	if err := ValidateRequest(req); err != nil {
		pkghttp.WriteBadRequest(w, err.Error())
		return
	}

	preSession := h.loadSession(r)
	if preSession == nil || !h.csrf.Validate(preSession, req.CSRFToken) {
		pkghttp.WriteForbidden(w, csrfFailureMessage)
		return
	}

	ipAddress := pkghttp.ExtractClientIP(r, h.ipConfig)
	userAgent := r.Header.Get("User-Agent")

	session, account, err := h.service.Login(r.Context(), preSession, req.Username, req.Password, ipAddress, userAgent)
	if err != nil {
		h.writeLoginFailure(w, err)
		return
	}

	auth.SetSessionCookie(w, session.ID, session.ExpiresAt, h.cookies)

	token, err := h.csrf.Issue(r.Context(), session)
	if err != nil {
		pkghttp.WriteInternalError(w, "Internal server error")
		return
	}

	pkghttp.WriteJSON(w, http.StatusOK, LoginResponse{
		AccountID: account.ID,
		Username:  account.Username,
		Role:      account.Role,
		CSRFToken: token,
		ExpiresAt: session.ExpiresAt,
	})
}

func (h *AuthHandler) writeLoginFailure(w http.ResponseWriter, err error) {
	var invalidErr *models.InvalidCredentialsError
	var lockedErr *models.AccountLockedError

	switch {
	case errors.As(err, &invalidErr):
		remaining := invalidErr.RemainingAttempts
		pkghttp.WriteJSON(w, http.StatusUnauthorized, LoginFailureResponse{
			Error:             "unauthorized",
			Message:           "Invalid username or password",
			RemainingAttempts: &remaining,
		})
	case errors.As(err, &lockedErr):
		retryAfter := lockedErr.RemainingSeconds
		pkghttp.WriteJSON(w, http.StatusLocked, LoginFailureResponse{
			Error:             "account_locked",
			Message:           "Account temporarily locked due to repeated failed logins",
			RetryAfterSeconds: &retryAfter,
		})
	case errors.Is(err, models.ErrRateLimitExceeded):
		pkghttp.WriteTooManyRequests(w, "Too many login attempts. Please try again later.")
	case errors.Is(err, models.ErrUnauthorized):
		pkghttp.WriteUnauthorized(w, "Invalid username or password")
	default:
		pkghttp.WriteInternalError(w, "Internal server error")
	}
}

// Logout destroys the session and clears the cookie. Runs behind the
// session middleware, so the session in context is live.
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	session := auth.GetSessionFromContext(r)
	if session == nil {
		pkghttp.WriteUnauthorized(w, "unauthorized")
		return
	}

	if err := h.service.Logout(r.Context(), session.ID); err != nil {
		pkghttp.WriteInternalError(w, "Internal server error")
		return
	}

	auth.ClearSessionCookie(w, h.cookies)
	w.WriteHeader(http.StatusNoContent)
}

// Session reports who the caller is
func (h *AuthHandler) Session(w http.ResponseWriter, r *http.Request) {
	session := auth.GetSessionFromContext(r)
	if session == nil || session.AccountID == nil {
		pkghttp.WriteUnauthorized(w, "unauthorized")
		return
	}

	pkghttp.WriteJSON(w, http.StatusOK, SessionResponse{
		AccountID: *session.AccountID,
		Role:      session.Role,
		ExpiresAt: session.ExpiresAt,
	})
}

// ChangePassword updates the caller's password
func (h *AuthHandler) ChangePassword(w http.ResponseWriter, r *http.Request) {
	session := auth.GetSessionFromContext(r)
	if session == nil || session.AccountID == nil {
		pkghttp.WriteUnauthorized(w, "unauthorized")
		return
	}

	var req ChangePasswordRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		pkghttp.WriteBadRequest(w, "Invalid request body")
		return
	}

	if err := ValidateRequest(req); err != nil {
		pkghttp.WriteBadRequest(w, err.Error())
		return
	}

	err := h.service.ChangePassword(r.Context(), *session.AccountID, req.CurrentPassword, req.NewPassword, h.passwordMinLength)
	if err != nil {
		switch {
		case errors.Is(err, models.ErrUnauthorized):
			pkghttp.WriteUnauthorized(w, "Current password is incorrect")
		case errors.Is(err, models.ErrInternalServer):
			pkghttp.WriteInternalError(w, "Internal server error")
		default:
			// Password policy failure; the message is already generic
			pkghttp.WriteBadRequest(w, err.Error())
		}
		return
	}

	w.WriteHeader(http.StatusNoContent)
}
