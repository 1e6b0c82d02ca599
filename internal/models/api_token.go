package models

import (
	"github.com/golang-jwt/jwt/v5"
)

// APITokenClaims are the claims embedded in an integrator API token.
// The token ID doubles as the rate limiter identifier for the "api"
// action class.
type APITokenClaims struct {
	Type  string `json:"type"` // always "api"
	Label string `json:"label,omitempty"`
	jwt.RegisteredClaims
}
