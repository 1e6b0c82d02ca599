package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Database  DatabaseConfig
	Server    ServerConfig
	Auth      AuthConfig
	RateLimit RateLimitConfig
	Email     EmailConfig
}

type DatabaseConfig struct {
	Host              string
	Port              int
	User              string
	Password          string
	Name              string
	SSLMode           string
	MaxConns          int32
	MinConns          int32
	MaxConnLifetime   time.Duration
	MaxConnIdleTime   time.Duration
	HealthCheckPeriod time.Duration
}

type ServerConfig struct {
	Port           string
	Env            string
	LogLevel       string
	AllowedOrigins []string
	BaseURL        string // public base URL, used to build verification links
	TrustedProxies []string
	CertificateDir string // where issued certificate documents are written
}

type AuthConfig struct {
	MaxLoginAttempts    int
	LockoutDuration     time.Duration
	SessionLifetime     time.Duration
	CSRFTokenLength     int // random bytes before hex encoding
	CSRFTokenExpiry     time.Duration
	PasswordMinLength   int
	APITokenSecret      string
	APITokenExpiry      time.Duration
	CleanupInterval     time.Duration
	TimingDelayBaseMs   int
	TimingDelayRandomMs int
}

// RateLimitConfig holds the (window, max) pair for each action class.
type RateLimitConfig struct {
	LoginWindow  time.Duration
	LoginMax     int
	VerifyWindow time.Duration
	VerifyMax    int
	APIWindow    time.Duration
	APIMax       int
}

type EmailConfig struct {
	Enabled     bool
	AWSRegion   string
	FromAddress string
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	env := getEnv("ENV", "development")

	apiTokenSecret := getEnv("API_TOKEN_SECRET", "")
	if apiTokenSecret == "" {
		return nil, fmt.Errorf("API_TOKEN_SECRET is required")
	}

	cfg := &Config{
		Database: DatabaseConfig{
			Host:              getEnv("DB_HOST", "localhost"),
			Port:              getEnvAsInt("DB_PORT", 5432),
			User:              getEnv("DB_USER", "postgres"),
			Password:          getEnv("DB_PASSWORD", ""),
			Name:              getEnv("DB_NAME", "veridian"),
			SSLMode:           getEnv("DB_SSLMODE", "disable"),
			MaxConns:          int32(getEnvAsInt("DB_MAX_CONNS", 25)),
			MinConns:          int32(getEnvAsInt("DB_MIN_CONNS", 5)),
			MaxConnLifetime:   getEnvAsDuration("DB_MAX_CONN_LIFETIME", 5*time.Minute),
			MaxConnIdleTime:   getEnvAsDuration("DB_MAX_CONN_IDLE_TIME", 1*time.Minute),
			HealthCheckPeriod: getEnvAsDuration("DB_HEALTH_CHECK_PERIOD", 1*time.Minute),
		},
		Server: ServerConfig{
			Port:           getEnv("PORT", "8080"),
			Env:            env,
			LogLevel:       getEnv("LOG_LEVEL", "info"),
			AllowedOrigins: parseAllowedOrigins(env),
			BaseURL:        getEnv("BASE_URL", "http://localhost:8080"),
			TrustedProxies: parseList(getEnv("TRUSTED_PROXIES", "")),
			CertificateDir: getEnv("CERT_STORAGE_DIR", "./data/certificates"),
		},
		Auth: AuthConfig{
			MaxLoginAttempts:    getEnvAsInt("MAX_LOGIN_ATTEMPTS", 5),
			LockoutDuration:     getEnvAsDuration("ACCOUNT_LOCKOUT_TIME", 15*time.Minute),
			SessionLifetime:     getEnvAsDuration("SESSION_LIFETIME", 8*time.Hour),
			CSRFTokenLength:     getEnvAsInt("CSRF_TOKEN_LENGTH", 32),
			CSRFTokenExpiry:     getEnvAsDuration("CSRF_TOKEN_EXPIRY", 30*time.Minute),
			PasswordMinLength:   getEnvAsInt("PASSWORD_MIN_LENGTH", 10),
			APITokenSecret:      apiTokenSecret,
			APITokenExpiry:      getEnvAsDuration("API_TOKEN_EXPIRY", 365*24*time.Hour),
			CleanupInterval:     getEnvAsDuration("CLEANUP_INTERVAL", 1*time.Hour),
			TimingDelayBaseMs:   getEnvAsInt("TIMING_DELAY_BASE_MS", 200),
			TimingDelayRandomMs: getEnvAsInt("TIMING_DELAY_RANDOM_MS", 100),
		},
		RateLimit: RateLimitConfig{
			LoginWindow:  getEnvAsDuration("RATE_LIMIT_LOGIN_WINDOW", 15*time.Minute),
			LoginMax:     getEnvAsInt("RATE_LIMIT_LOGIN_MAX", 10),
			VerifyWindow: getEnvAsDuration("RATE_LIMIT_VERIFY_WINDOW", 1*time.Minute),
			VerifyMax:    getEnvAsInt("RATE_LIMIT_VERIFY_MAX", 20),
			APIWindow:    getEnvAsDuration("RATE_LIMIT_API_WINDOW", 1*time.Minute),
			APIMax:       getEnvAsInt("RATE_LIMIT_API_MAX", 60),
		},
		Email: EmailConfig{
			Enabled:     getEnvAsBool("EMAIL_ENABLED", false),
			AWSRegion:   getEnv("AWS_REGION", "us-east-1"),
			FromAddress: getEnv("EMAIL_FROM", ""),
		},
	}

	if cfg.Database.Password == "" {
		return nil, fmt.Errorf("DB_PASSWORD is required")
	}

	if err := validateAPITokenSecret(apiTokenSecret, env); err != nil {
		return nil, err
	}

	if err := cfg.validateThresholds(); err != nil {
		return nil, err
	}

	if cfg.Email.Enabled && cfg.Email.FromAddress == "" {
		return nil, fmt.Errorf("EMAIL_FROM is required when EMAIL_ENABLED is set")
	}

	return cfg, nil
}

// validateThresholds rejects configurations that would disable the
// abuse-control layer outright.
func (c *Config) validateThresholds() error {
	if c.Auth.MaxLoginAttempts < 1 {
		return fmt.Errorf("MAX_LOGIN_ATTEMPTS must be at least 1")
	}
	if c.Auth.LockoutDuration <= 0 {
		return fmt.Errorf("ACCOUNT_LOCKOUT_TIME must be positive")
	}
	if c.Auth.CSRFTokenLength < 16 {
		return fmt.Errorf("CSRF_TOKEN_LENGTH must be at least 16 bytes")
	}
	if c.Auth.CSRFTokenExpiry <= 0 {
		return fmt.Errorf("CSRF_TOKEN_EXPIRY must be positive")
	}
	if c.Auth.PasswordMinLength < 8 {
		return fmt.Errorf("PASSWORD_MIN_LENGTH must be at least 8")
	}
	if c.RateLimit.LoginMax < 1 || c.RateLimit.VerifyMax < 1 || c.RateLimit.APIMax < 1 {
		return fmt.Errorf("rate limit maximums must be at least 1")
	}
	return nil
}

// validateAPITokenSecret enforces minimum strength for the API token signing secret
func validateAPITokenSecret(secret, env string) error {
	minLength := 16 // Development minimum
	if env == "production" {
		minLength = 32 // Production requires stronger secret (256 bits)
	}

	if len(secret) < minLength {
		return fmt.Errorf("API_TOKEN_SECRET must be at least %d characters in %s environment (got %d)",
			minLength, env, len(secret))
	}

	weakSecrets := []string{
		"secret", "test", "password", "12345", "changeme",
		"admin", "root", "default", "example",
	}

	secretLower := strings.ToLower(secret)
	for _, weak := range weakSecrets {
		if secretLower == weak {
			return fmt.Errorf("API_TOKEN_SECRET cannot be a common weak value")
		}
	}

	return nil
}

func (c *DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Name, c.SSLMode,
	)
}

func getEnv(key, defaultVal string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultVal
}

func getEnvAsInt(key string, defaultVal int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultVal
}

func getEnvAsBool(key string, defaultVal bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
	}
	return defaultVal
}

func getEnvAsDuration(key string, defaultVal time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultVal
}

func parseList(value string) []string {
	if value == "" {
		return nil
	}
	parts := strings.Split(value, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func parseAllowedOrigins(env string) []string {
	if env == "production" {
		originsStr := getEnv("ALLOWED_ORIGINS", "")
		if originsStr == "" {
			return []string{} // Default to no origins in production
		}
		return parseList(originsStr)
	}

	// Development: allow localhost variants
	return []string{
		"http://localhost:3000",
		"http://localhost:8080",
		"http://localhost:5173",
		"http://127.0.0.1:3000",
		"http://127.0.0.1:8080",
		"http://127.0.0.1:5173",
	}
}
