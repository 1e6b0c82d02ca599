package routes

import (
	"log/slog"

	"github.com/go-chi/chi/v5"

	"github.com/tmackenzie/veridian/internal/auth"
	"github.com/tmackenzie/veridian/internal/handlers"
	"github.com/tmackenzie/veridian/internal/middleware"
	"github.com/tmackenzie/veridian/internal/models"
)

// RegisterRoutes registers all application routes
func RegisterRoutes(
	router chi.Router,
	authHandler *handlers.AuthHandler,
	certHandler *handlers.CertificateHandler,
	verifyHandler *handlers.VerifyHandler,
	accountHandler *handlers.AccountHandler,
	apiTokenHandler *handlers.APITokenHandler,
	sessionManager *auth.SessionManager,
	csrfManager *auth.CSRFTokenManager,
	tokenManager *auth.APITokenManager,
	logger *slog.Logger,
) {
	// Public surface. The edge limiter is a coarse burst guard; the
	// DB-backed limiter inside the handlers enforces the durable windows.
	router.Get("/auth/csrf", authHandler.CSRFToken)
	router.With(middleware.RateLimitByIP(middleware.DefaultLoginEdgeLimit())).
		Post("/auth/login", authHandler.Login)
	router.With(middleware.RateLimitByIP(middleware.DefaultVerifyEdgeLimit())).
		Get("/verify/{serial}", verifyHandler.Public)

	// Machine surface, bearer token only
	router.Group(func(r chi.Router) {
		r.Use(auth.APITokenMiddleware(tokenManager))
		r.Get("/api/verify/{serial}", verifyHandler.API)
	})

	// Panel surface, session cookie plus CSRF on writes
	router.Group(func(r chi.Router) {
		r.Use(auth.SessionMiddleware(sessionManager))
		r.Use(middleware.CSRFProtection(csrfManager, logger))

		r.Post("/auth/logout", authHandler.Logout)
		r.Get("/auth/session", authHandler.Session)
		r.Post("/auth/password", authHandler.ChangePassword)

		r.Post("/certificates", certHandler.Issue)
		r.Get("/certificates", certHandler.List)
		r.Get("/certificates/{id}", certHandler.Get)
		r.Get("/certificates/{id}/verifications", certHandler.Verifications)
		r.Post("/certificates/{id}/revoke", certHandler.Revoke)

		// Admin-only routes
		r.Group(func(r chi.Router) {
			r.Use(auth.RequireRole(models.RoleAdmin))

			r.Delete("/certificates/{id}", certHandler.Delete)

			r.Post("/api-tokens", apiTokenHandler.Create)

			r.Post("/accounts", accountHandler.Create)
			r.Get("/accounts", accountHandler.List)
			r.Post("/accounts/{id}/lock", accountHandler.Lock)
			r.Post("/accounts/{id}/unlock", accountHandler.Unlock)
			r.Delete("/accounts/{id}", accountHandler.Delete)
		})
	})
}
