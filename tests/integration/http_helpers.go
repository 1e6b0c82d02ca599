package integration

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"os"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/tmackenzie/veridian/internal/auth"
	"github.com/tmackenzie/veridian/internal/config"
	"github.com/tmackenzie/veridian/internal/database"
	"github.com/tmackenzie/veridian/internal/handlers"
	middlewareCustom "github.com/tmackenzie/veridian/internal/middleware"
	"github.com/tmackenzie/veridian/internal/models"
	"github.com/tmackenzie/veridian/internal/routes"
	"github.com/tmackenzie/veridian/internal/services"
	pkghttp "github.com/tmackenzie/veridian/pkg/http"
	pkglogger "github.com/tmackenzie/veridian/pkg/logger"
)

// CapturedEmailService records issuance notifications for test assertions
type CapturedEmailService struct {
	mu   sync.Mutex
	Sent []*models.Certificate
}

func (m *CapturedEmailService) SendIssuanceNotification(ctx context.Context, cert *models.Certificate) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Sent = append(m.Sent, cert)
	return nil
}

// LastSent returns the most recently notified certificate
func (m *CapturedEmailService) LastSent() *models.Certificate {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.Sent) == 0 {
		return nil
	}
	return m.Sent[len(m.Sent)-1]
}

// TestServer wraps httptest.Server with database and all dependencies
type TestServer struct {
	Server *httptest.Server
	DB     *database.DB
	Email  *CapturedEmailService
	Client *http.Client

	TokenManager *auth.APITokenManager
}

// NewTestServer initializes a complete HTTP server with real database and
// captured email. certDir is where issued certificate documents land.
func NewTestServer(db *database.DB, certDir string) *TestServer {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelWarn}))

	authCfg := config.AuthConfig{
		MaxLoginAttempts:    5,
		LockoutDuration:     15 * time.Minute,
		SessionLifetime:     8 * time.Hour,
		CSRFTokenLength:     32,
		CSRFTokenExpiry:     30 * time.Minute,
		PasswordMinLength:   10,
		APITokenSecret:      "test-secret-32-characters-long!!",
		APITokenExpiry:      time.Hour,
		TimingDelayBaseMs:   0,
		TimingDelayRandomMs: 0,
	}
	rateCfg := config.RateLimitConfig{
		LoginWindow:  15 * time.Minute,
		LoginMax:     50,
		VerifyWindow: time.Minute,
		VerifyMax:    50,
		APIWindow:    time.Minute,
		APIMax:       50,
	}

	accountRepo, sessionRepo, rateLimitRepo, certRepo, verifyLogRepo, auditLogRepo := InitializeRepositories(db)

	auditLogger := pkglogger.NewAuditLogger(logger, auditLogRepo)

	sessionManager := auth.NewSessionManager(sessionRepo, authCfg.SessionLifetime, logger)
	csrfManager := auth.NewCSRFTokenManager(sessionRepo, authCfg.CSRFTokenLength, authCfg.CSRFTokenExpiry)
	tokenManager := auth.NewAPITokenManager(authCfg.APITokenSecret, authCfg.APITokenExpiry)
	timingDelay := auth.NewTimingDelay(auth.TimingConfig{})

	credentialStore := services.NewCredentialStore(accountRepo, logger)
	lockoutService := services.NewLockoutService(accountRepo, services.LockoutConfig{
		MaxLoginAttempts: authCfg.MaxLoginAttempts,
		LockoutDuration:  authCfg.LockoutDuration,
	}, logger)
	rateLimitService := services.NewRateLimitService(rateLimitRepo, rateCfg, logger)

	mockEmail := &CapturedEmailService{}

	authService := services.NewAuthService(credentialStore, lockoutService, rateLimitService, sessionManager, timingDelay, logger, auditLogger)
	certService := services.NewCertificateService(certRepo, verifyLogRepo, mockEmail, certDir, logger, auditLogger)
	accountService := services.NewAccountService(accountRepo, sessionRepo, authCfg.PasswordMinLength, logger, auditLogger)

	ipConfig := &pkghttp.IPConfig{}
	cookieConfig := auth.CookieConfig{}

	authHandler := handlers.NewAuthHandler(authService, sessionManager, csrfManager, cookieConfig, ipConfig, authCfg.PasswordMinLength)
	certHandler := handlers.NewCertificateHandler(certService)
	verifyHandler := handlers.NewVerifyHandler(certService, rateLimitService, ipConfig)
	accountHandler := handlers.NewAccountHandler(accountService)
	apiTokenHandler := handlers.NewAPITokenHandler(tokenManager)

	r := chi.NewRouter()
	r.Use(chiMiddleware.RequestID)
	r.Use(chiMiddleware.RealIP)
	r.Use(middlewareCustom.SecurityHeaders(middlewareCustom.SecurityHeadersConfig{Env: "test"}))
	r.Use(chiMiddleware.Recoverer)
	r.Use(chiMiddleware.Timeout(60 * time.Second))

	routes.RegisterRoutes(r, authHandler, certHandler, verifyHandler, accountHandler, apiTokenHandler, sessionManager, csrfManager, tokenManager, logger)

	server := httptest.NewServer(r)

	// Cookie jar so the session cookie follows the client across calls
	jar, _ := cookiejar.New(nil)

	return &TestServer{
		Server:       server,
		DB:           db,
		Email:        mockEmail,
		Client:       &http.Client{Jar: jar},
		TokenManager: tokenManager,
	}
}

// Close shuts down the test server
func (ts *TestServer) Close() {
	if ts.Server != nil {
		ts.Server.Close()
	}
}

// Request makes an HTTP request to the test server using the cookie-aware client
func (ts *TestServer) Request(method, path string, body interface{}, headers map[string]string) (*http.Response, error) {
	url := ts.Server.URL + path

	var bodyReader io.Reader
	if body != nil {
		bodyBytes, err := json.Marshal(body)
		if err != nil {
			return nil, err
		}
		bodyReader = bytes.NewReader(bodyBytes)
	}

	req, err := http.NewRequest(method, url, bodyReader)
	if err != nil {
		return nil, err
	}

	req.Header.Set("Content-Type", "application/json")
	for key, value := range headers {
		req.Header.Set(key, value)
	}

	return ts.Client.Do(req)
}

// Handshake fetches the pre-auth CSRF token, establishing the anonymous
// session cookie on the client as a side effect.
func (ts *TestServer) Handshake() (string, error) {
	resp, err := ts.Request("GET", "/auth/csrf", nil, nil)
	if err != nil {
		return "", err
	}

	var payload handlers.CSRFResponse
	if err := ParseJSONResponse(resp, &payload); err != nil {
		return "", err
	}
	return payload.CSRFToken, nil
}

// Login performs the handshake-then-login sequence and returns the raw response
func (ts *TestServer) Login(username, password string) (*http.Response, error) {
	csrfToken, err := ts.Handshake()
	if err != nil {
		return nil, err
	}

	return ts.Request("POST", "/auth/login", handlers.LoginRequest{
		Username:  username,
		Password:  password,
		CSRFToken: csrfToken,
	}, nil)
}

// ParseJSONResponse parses JSON response body into target struct
func ParseJSONResponse(resp *http.Response, target interface{}) error {
	defer resp.Body.Close()
	return json.NewDecoder(resp.Body).Decode(target)
}

// GetErrorMessage extracts error message from error response
func GetErrorMessage(resp *http.Response) (string, error) {
	defer resp.Body.Close()
	var errResp map[string]interface{}
	if err := json.NewDecoder(resp.Body).Decode(&errResp); err != nil {
		return "", err
	}
	if msg, ok := errResp["message"].(string); ok {
		return msg, nil
	}
	return "", nil
}
