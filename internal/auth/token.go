package auth

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/tmackenzie/veridian/internal/models"
)

// APITokenManager signs and validates integrator API tokens. The token ID
// (jti) is the identifier the rate limiter keys the "api" action class on.
type APITokenManager struct {
	secret string
	expiry time.Duration
}

func NewAPITokenManager(secret string, expiry time.Duration) *APITokenManager {
	return &APITokenManager{
		secret: secret,
		expiry: expiry,
	}
}

// Generate creates a signed API token for the issuing account. Returns
// the token string and its ID.
func (tm *APITokenManager) Generate(accountID, label string) (string, string, error) {
	tokenID := uuid.New().String()
	now := time.Now()

	claims := &models.APITokenClaims{
		Type:  "api",
		Label: label,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        tokenID,
			Subject:   accountID,
			ExpiresAt: jwt.NewNumericDate(now.Add(tm.expiry)),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)

	tokenString, err := token.SignedString([]byte(tm.secret))
	if err != nil {
		return "", "", fmt.Errorf("failed to sign api token: %w", err)
	}

	return tokenString, tokenID, nil
}

// Validate verifies an API token and returns its claims.
func (tm *APITokenManager) Validate(tokenString string) (*models.APITokenClaims, error) {
	claims := &models.APITokenClaims{}

	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return []byte(tm.secret), nil
	})
	if err != nil {
		return nil, fmt.Errorf("invalid api token: %w", err)
	}

	if !token.Valid {
		return nil, fmt.Errorf("invalid api token")
	}

	if claims.Type != "api" {
		return nil, fmt.Errorf("not an api token")
	}

	return claims, nil
}
