// Package auth - jwt.go handles signed token creation and verification for the
// admin API using a shared HS256 secret. Access tokens carry the full identity
// plus role and permission claims; refresh tokens carry only the subject.
package auth

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const tokenIssuer = "beta-portal"

// Claims represents the access token claims structure
type Claims struct {
	UserID      string   `json:"user_id"`
	Username    string   `json:"username"`
	Email       string   `json:"email"`
	Role        string   `json:"role"`
	Permissions []string `json:"permissions"`
	jwt.RegisteredClaims
}

// RefreshClaims represents the refresh token claims structure. It deliberately
// carries no role or permission data — those are re-derived from the credential
// store when the token is exchanged, so a role change takes effect at refresh.
type RefreshClaims struct {
	UserID    string `json:"user_id"`
	TokenType string `json:"token_type"`
	jwt.RegisteredClaims
}

// Identity is the subject a token is issued for.
type Identity struct {
	ID       string
	Username string
	Email    string
	Role     Role
}

// TokenService mints and verifies signed, time-bounded claims. It is
// constructed once at startup from configuration and injected into the
// handlers; there is no package-level secret state.
type TokenService struct {
	secret     []byte
	accessTTL  time.Duration
	refreshTTL time.Duration
}

// NewTokenService builds a TokenService. An empty secret is replaced by a
// random one so development setups work out of the box, at the cost of
// sessions not surviving restarts — the substitution is logged loudly.
// Production deployments must set auth.jwt_secret; config validation enforces
// the minimum length when it is present.
func NewTokenService(secret string, accessTTL, refreshTTL time.Duration) (*TokenService, error) {
	if secret == "" {
		generated, err := generateRandomSecret()
		if err != nil {
			return nil, fmt.Errorf("failed to generate jwt secret: %w", err)
		}
		slog.Warn("auth.jwt_secret not set; using an auto-generated secret — sessions will not persist across restarts")
		secret = generated
	}

	if accessTTL == 0 {
		accessTTL = 1 * time.Hour
	}
	if refreshTTL == 0 {
		refreshTTL = 30 * 24 * time.Hour
	}

	return &TokenService{
		secret:     []byte(secret),
		accessTTL:  accessTTL,
		refreshTTL: refreshTTL,
	}, nil
}

// generateRandomSecret creates a cryptographically secure random secret
func generateRandomSecret() (string, error) {
	bytes := make([]byte, 32)
	if _, err := rand.Read(bytes); err != nil {
		return "", err
	}
	return hex.EncodeToString(bytes), nil
}

// IssueAccessToken creates a short-lived access token carrying the identity's
// role and the permission set derived from it.
func (s *TokenService) IssueAccessToken(id Identity) (string, error) {
	now := time.Now()
	claims := &Claims{
		UserID:      id.ID,
		Username:    id.Username,
		Email:       id.Email,
		Role:        string(id.Role),
		Permissions: permissionStrings(id.Role.Permissions()),
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(now.Add(s.accessTTL)),
			IssuedAt:  jwt.NewNumericDate(now),
			Issuer:    tokenIssuer,
			Subject:   id.ID,
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(s.secret)
}

// IssueRefreshToken creates a long-lived refresh token with a minimal subject claim.
func (s *TokenService) IssueRefreshToken(id Identity) (string, error) {
	now := time.Now()
	claims := &RefreshClaims{
		UserID:    id.ID,
		TokenType: "refresh",
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(now.Add(s.refreshTTL)),
			IssuedAt:  jwt.NewNumericDate(now),
			Issuer:    tokenIssuer,
			Subject:   id.ID,
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(s.secret)
}

// VerifyAccessToken parses and validates an access token. It returns nil for
// every failure mode — malformed, expired, wrong signature, wrong token type —
// so callers cannot leak to a client why a token was rejected.
func (s *TokenService) VerifyAccessToken(tokenString string) *Claims {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, s.keyFunc)
	if err != nil || !token.Valid {
		return nil
	}

	claims, ok := token.Claims.(*Claims)
	if !ok {
		return nil
	}

	// A refresh token parsed into Claims would have an empty role; reject it.
	if claims.Role == "" {
		return nil
	}

	return claims
}

// VerifyRefreshToken parses and validates a refresh token; nil on any failure.
func (s *TokenService) VerifyRefreshToken(tokenString string) *RefreshClaims {
	token, err := jwt.ParseWithClaims(tokenString, &RefreshClaims{}, s.keyFunc)
	if err != nil || !token.Valid {
		return nil
	}

	claims, ok := token.Claims.(*RefreshClaims)
	if !ok || claims.TokenType != "refresh" {
		return nil
	}

	return claims
}

func (s *TokenService) keyFunc(token *jwt.Token) (interface{}, error) {
	// Validate signing method
	if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
		return nil, errors.New("unexpected signing method")
	}
	return s.secret, nil
}
