package models

import "github.com/golang-jwt/jwt/v5"

// TokenClaims are the claims carried by admin API tokens
type TokenClaims struct {
	UserID string `json:"user_id"`
	Email  string `json:"email,omitempty"`
	jwt.RegisteredClaims
}
