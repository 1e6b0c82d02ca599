package auth

import (
	"context"
	"net/http"
	"strings"

	"github.com/tmackenzie/veridian/internal/models"
)

// contextKey is a custom type for context keys
type contextKey string

const (
	// SessionContextKey is the key for storing the session in context
	SessionContextKey contextKey = "session"
	// APIClaimsContextKey is the key for storing API token claims in context
	APIClaimsContextKey contextKey = "api_claims"
)

// SessionMiddleware loads the session named by the cookie and injects it
// into the request context. Requests without a live session are rejected.
func SessionMiddleware(sm *SessionManager) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			sessionID, err := GetSessionCookie(r)
			if err != nil || sessionID == "" {
				http.Error(w, "authentication required", http.StatusUnauthorized)
				return
			}

			session, err := sm.Get(r.Context(), sessionID)
			if err != nil {
				http.Error(w, "authentication required", http.StatusUnauthorized)
				return
			}

			if !sm.IsAuthenticated(session) {
				http.Error(w, "authentication required", http.StatusUnauthorized)
				return
			}

			ctx := context.WithValue(r.Context(), SessionContextKey, session)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequireRole enforces role-based access control. Must run after
// SessionMiddleware.
func RequireRole(role string) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			session := GetSessionFromContext(r)
			if session == nil {
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}

			if session.Role != role {
				http.Error(w, "forbidden: insufficient permissions", http.StatusForbidden)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// APITokenMiddleware validates a Bearer API token and injects its claims.
func APITokenMiddleware(tm *APITokenManager) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authHeader := r.Header.Get("Authorization")
			if authHeader == "" {
				http.Error(w, "missing authorization header", http.StatusUnauthorized)
				return
			}

			parts := strings.SplitN(authHeader, " ", 2)
			if len(parts) != 2 || parts[0] != "Bearer" {
				http.Error(w, "invalid authorization header format", http.StatusUnauthorized)
				return
			}

			claims, err := tm.Validate(parts[1])
			if err != nil {
				http.Error(w, "invalid or expired token", http.StatusUnauthorized)
				return
			}

			ctx := context.WithValue(r.Context(), APIClaimsContextKey, claims)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// GetSessionFromContext extracts the session from the request context
func GetSessionFromContext(r *http.Request) *models.Session {
	session, ok := r.Context().Value(SessionContextKey).(*models.Session)
	if !ok {
		return nil
	}
	return session
}

// GetAPIClaimsFromContext extracts API token claims from the request context
func GetAPIClaimsFromContext(r *http.Request) *models.APITokenClaims {
	claims, ok := r.Context().Value(APIClaimsContextKey).(*models.APITokenClaims)
	if !ok {
		return nil
	}
	return claims
}
