package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/tmackenzie/veridian/internal/auth"
	"github.com/tmackenzie/veridian/internal/background"
	"github.com/tmackenzie/veridian/internal/config"
	"github.com/tmackenzie/veridian/internal/database"
	"github.com/tmackenzie/veridian/internal/handlers"
	middlewareCustom "github.com/tmackenzie/veridian/internal/middleware"
	"github.com/tmackenzie/veridian/internal/models"
	"github.com/tmackenzie/veridian/internal/repositories"
	"github.com/tmackenzie/veridian/internal/routes"
	"github.com/tmackenzie/veridian/internal/services"
	pkgauth "github.com/tmackenzie/veridian/pkg/auth"
	pkghttp "github.com/tmackenzie/veridian/pkg/http"
	pkglogger "github.com/tmackenzie/veridian/pkg/logger"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		logger.Error("failed to load configuration", slog.Any("error", err))
		os.Exit(1)
	}

	logger.Info("configuration loaded", slog.String("env", cfg.Server.Env))

	// Initialize database
	db, err := database.NewConnection(&cfg.Database, logger)
	if err != nil {
		logger.Error("failed to connect to database", slog.Any("error", err))
		os.Exit(1)
	}
	defer db.Close()

	// Initialize repositories
	accountRepo := repositories.NewAccountRepository(db)
	sessionRepo := repositories.NewSessionRepository(db)
	rateLimitRepo := repositories.NewRateLimitRepository(db)
	certRepo := repositories.NewCertificateRepository(db)
	verifyLogRepo := repositories.NewVerificationLogRepository(db)
	auditLogRepo := repositories.NewAuditLogRepository(db)

	// Initialize cleanup manager
	cleanupManager := background.NewCleanupManager(sessionRepo, rateLimitRepo, verifyLogRepo, auditLogRepo, logger, cfg.Auth.CleanupInterval)

	auditLogger := pkglogger.NewAuditLogger(logger, auditLogRepo)

	// Session, CSRF and API token managers
	sessionManager := auth.NewSessionManager(sessionRepo, cfg.Auth.SessionLifetime, logger)
	csrfManager := auth.NewCSRFTokenManager(sessionRepo, cfg.Auth.CSRFTokenLength, cfg.Auth.CSRFTokenExpiry)
	tokenManager := auth.NewAPITokenManager(cfg.Auth.APITokenSecret, cfg.Auth.APITokenExpiry)

	// Timing delay for auth security
	timingDelay := auth.NewTimingDelay(auth.TimingConfig{
		BaseDelayMs:   cfg.Auth.TimingDelayBaseMs,
		RandomDelayMs: cfg.Auth.TimingDelayRandomMs,
	})

	// Abuse-control services
	credentialStore := services.NewCredentialStore(accountRepo, logger)
	lockoutService := services.NewLockoutService(accountRepo, services.LockoutConfig{
		MaxLoginAttempts: cfg.Auth.MaxLoginAttempts,
		LockoutDuration:  cfg.Auth.LockoutDuration,
	}, logger)
	rateLimitService := services.NewRateLimitService(rateLimitRepo, cfg.RateLimit, logger)

	// Issuance notifications go out through SES when enabled
	var emailService services.EmailService
	if cfg.Email.Enabled {
		sesService, err := services.NewAWSSESEmailService(cfg.Email.AWSRegion, cfg.Email.FromAddress, cfg.Server.BaseURL, logger)
		if err != nil {
			logger.Error("failed to initialize email service", slog.Any("error", err))
			os.Exit(1)
		}
		emailService = sesService
	} else {
		emailService = services.NewNoopEmailService(logger)
	}

	if err := os.MkdirAll(cfg.Server.CertificateDir, 0o750); err != nil {
		logger.Error("failed to create certificate directory", slog.Any("error", err))
		os.Exit(1)
	}

	// Initialize services
	authService := services.NewAuthService(credentialStore, lockoutService, rateLimitService, sessionManager, timingDelay, logger, auditLogger)
	certService := services.NewCertificateService(certRepo, verifyLogRepo, emailService, cfg.Server.CertificateDir, logger, auditLogger)
	accountService := services.NewAccountService(accountRepo, sessionRepo, cfg.Auth.PasswordMinLength, logger, auditLogger)

	ipConfig := &pkghttp.IPConfig{TrustedProxies: cfg.Server.TrustedProxies}
	cookieConfig := auth.CookieConfig{Secure: cfg.Server.Env == "production"}

	// Initialize handlers
	authHandler := handlers.NewAuthHandler(authService, sessionManager, csrfManager, cookieConfig, ipConfig, cfg.Auth.PasswordMinLength)
	certHandler := handlers.NewCertificateHandler(certService)
	verifyHandler := handlers.NewVerifyHandler(certService, rateLimitService, ipConfig)
	accountHandler := handlers.NewAccountHandler(accountService)
	apiTokenHandler := handlers.NewAPITokenHandler(tokenManager)

	// Bootstrap first admin account if configured
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	if err := ensureAdminAccount(ctx, accountRepo, logger); err != nil {
		logger.Error("failed to ensure admin account", slog.Any("error", err))
	}
	cancel()

	// Setup router
	router := chi.NewRouter()
	router.Use(middleware.RequestID)
	router.Use(middleware.RealIP)
	router.Use(middlewareCustom.SecurityHeaders(middlewareCustom.SecurityHeadersConfig{Env: cfg.Server.Env}))
	router.Use(middlewareCustom.CORS(middlewareCustom.DefaultCORSConfig(cfg.Server.AllowedOrigins)))
	router.Use(middlewareCustom.SecureLogger(logger))
	router.Use(middleware.Recoverer)
	router.Use(middleware.Timeout(60 * time.Second))

	// Register routes
	routes.RegisterRoutes(router, authHandler, certHandler, verifyHandler, accountHandler, apiTokenHandler, sessionManager, csrfManager, tokenManager, logger)

	// Health check with database
	router.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		if err := db.HealthCheck(ctx); err != nil {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusServiceUnavailable)
			w.Write([]byte(`{"status":"unhealthy","database":"down"}`))
			return
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status":"healthy","database":"up"}`))
	})

	// Create server
	server := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start cleanup task
	cleanupCtx, cleanupCancel := context.WithCancel(context.Background())
	defer cleanupCancel()

	go cleanupManager.Start(cleanupCtx)

	// Start server
	go func() {
		logger.Info("starting server", slog.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", slog.Any("error", err))
			os.Exit(1)
		}
	}()

	// Graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan

	logger.Info("shutdown signal received")

	cleanupCancel()
	cleanupManager.Stop()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown error", slog.Any("error", err))
		os.Exit(1)
	}

	logger.Info("server stopped gracefully")
}

// ensureAdminAccount creates the first admin account if ADMIN_USERNAME,
// ADMIN_EMAIL and ADMIN_PASSWORD are set
func ensureAdminAccount(ctx context.Context, accountRepo *repositories.AccountRepository, logger *slog.Logger) error {
	adminUsername := os.Getenv("ADMIN_USERNAME")
	adminEmail := os.Getenv("ADMIN_EMAIL")
	adminPassword := os.Getenv("ADMIN_PASSWORD")

	if adminUsername == "" || adminEmail == "" || adminPassword == "" {
		logger.Info("admin bootstrap variables not set, skipping admin account creation")
		return nil
	}

	// Check if admin already exists
	_, err := accountRepo.GetByUsername(ctx, adminUsername)
	if err == nil {
		logger.Info("admin account already exists")
		return nil
	}
	if !errors.Is(err, models.ErrNotFound) {
		return fmt.Errorf("failed to check if admin exists: %w", err)
	}

	hashedPassword, err := pkgauth.HashPassword(adminPassword)
	if err != nil {
		return fmt.Errorf("failed to hash admin password: %w", err)
	}

	admin := &models.Account{
		Username:     adminUsername,
		Email:        adminEmail,
		PasswordHash: hashedPassword,
		Role:         models.RoleAdmin,
	}

	if _, err := accountRepo.Create(ctx, admin); err != nil {
		return fmt.Errorf("failed to create admin account: %w", err)
	}

	logger.Info("admin account created successfully")
	return nil
}
