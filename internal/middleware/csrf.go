package middleware

import (
	"log/slog"
	"net/http"

	"github.com/tmackenzie/veridian/internal/auth"
	pkghttp "github.com/tmackenzie/veridian/pkg/http"
)

// csrfFailureMessage is deliberately generic. The response never reveals
// whether the token was missing, expired, or wrong.
const csrfFailureMessage = "Security validation failed. Please refresh the page and try again."

// CSRFProtection validates the X-CSRF-Token header on state-changing
// requests against the token bound to the caller's session. It must run
// after SessionMiddleware so the session is already in the context.
func CSRFProtection(csrf *auth.CSRFTokenManager, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !isStateChangingMethod(r.Method) {
				next.ServeHTTP(w, r)
				return
			}

			session := auth.GetSessionFromContext(r)
			if session == nil {
				logger.Warn("csrf check without session in context",
					slog.String("method", r.Method),
					slog.String("path", r.URL.Path))
				pkghttp.WriteForbidden(w, csrfFailureMessage)
				return
			}

			token := r.Header.Get("X-CSRF-Token")
			if !csrf.Validate(session, token) {
				logger.Warn("csrf validation failed",
					slog.String("method", r.Method),
					slog.String("path", r.URL.Path),
					slog.String("session_id_prefix", sessionIDPrefix(session.ID)))
				pkghttp.WriteForbidden(w, csrfFailureMessage)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// isStateChangingMethod checks if the HTTP method modifies state
func isStateChangingMethod(method string) bool {
	switch method {
	case http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodPatch:
		return true
	default:
		return false
	}
}

// sessionIDPrefix truncates a session ID for logging. Full session IDs
// never appear in logs.
func sessionIDPrefix(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
