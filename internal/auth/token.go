package auth

import (
	"context"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/traintrack/gatekeeper/internal/models"
)

// UserTokenKeyFetcher defines interface for retrieving a user's TokenKey
type UserTokenKeyFetcher interface {
	GetByID(ctx context.Context, id string) (*models.User, error)
}

// TokenManager handles JWT token generation and validation for the admin
// surface
type TokenManager struct {
	secret      string
	tokenExpiry time.Duration
	userRepo    UserTokenKeyFetcher
}

// NewTokenManager creates a new TokenManager
func NewTokenManager(secret string, tokenExpiry time.Duration) *TokenManager {
	return &TokenManager{
		secret:      secret,
		tokenExpiry: tokenExpiry,
	}
}

// SetUserRepo enables composite signing with per-user TokenKey
func (tm *TokenManager) SetUserRepo(repo UserTokenKeyFetcher) {
	tm.userRepo = repo
}

// getSigningKey returns composite key (global_secret + user.TokenKey) or global secret
func (tm *TokenManager) getSigningKey(userID string) []byte {
	if tm.userRepo == nil {
		return []byte(tm.secret)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	user, err := tm.userRepo.GetByID(ctx, userID)
	if err != nil {
		// Graceful degradation: use global secret if user not found
		return []byte(tm.secret)
	}

	return []byte(tm.secret + user.TokenKey)
}

// GenerateToken creates an admin API token
func (tm *TokenManager) GenerateToken(userID, email string) (string, error) {
	claims := &models.TokenClaims{
		UserID: userID,
		Email:  email,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.New().String(),
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(tm.tokenExpiry)),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
			NotBefore: jwt.NewNumericDate(time.Now()),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)

	tokenString, err := token.SignedString(tm.getSigningKey(userID))
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}

	return tokenString, nil
}

// ValidateToken parses and verifies a token, returning its claims
func (tm *TokenManager) ValidateToken(tokenString string) (*models.TokenClaims, error) {
	// Parse unverified first to learn the user ID for the composite key
	unverified, _, err := jwt.NewParser().ParseUnverified(tokenString, &models.TokenClaims{})
	if err != nil {
		return nil, fmt.Errorf("malformed token: %w", err)
	}

	unverifiedClaims, ok := unverified.Claims.(*models.TokenClaims)
	if !ok {
		return nil, fmt.Errorf("invalid token claims")
	}

	token, err := jwt.ParseWithClaims(tokenString, &models.TokenClaims{}, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return tm.getSigningKey(unverifiedClaims.UserID), nil
	})
	if err != nil {
		return nil, fmt.Errorf("invalid token: %w", err)
	}

	claims, ok := token.Claims.(*models.TokenClaims)
	if !ok || !token.Valid {
		return nil, fmt.Errorf("invalid token claims")
	}

	return claims, nil
}
