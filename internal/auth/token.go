package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/stunity/identity/internal/models"
)

// TokenManager handles JWT token generation and validation for access,
// refresh, and two-factor challenge tokens.
type TokenManager struct {
	secret               string
	accessTokenExpiry    time.Duration
	refreshTokenExpiry   time.Duration
	challengeTokenExpiry time.Duration
}

// NewTokenManager creates a new TokenManager
func NewTokenManager(secret string, accessExpiry, refreshExpiry, challengeExpiry time.Duration) *TokenManager {
	return &TokenManager{
		secret:               secret,
		accessTokenExpiry:    accessExpiry,
		refreshTokenExpiry:   refreshExpiry,
		challengeTokenExpiry: challengeExpiry,
	}
}

// GenerateAccessToken creates a short-lived access token carrying the account
// snapshot. tenant may be nil for accounts not attached to a school.
func (tm *TokenManager) GenerateAccessToken(account *models.Account, tenant *models.Tenant) (string, error) {
	claims := &models.TokenClaims{
		Type:      models.TokenTypeAccess,
		AccountID: account.ID,
		Email:     account.Email,
		Role:      account.Role,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.New().String(),
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(tm.accessTokenExpiry)),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
			NotBefore: jwt.NewNumericDate(time.Now()),
		},
	}
	if tenant != nil {
		claims.TenantID = tenant.ID
		claims.Tenant = tenant.Summary()
	}

	return tm.sign(claims, "access")
}

// GenerateRefreshToken creates a long-lived refresh token carrying only the
// account ID.
func (tm *TokenManager) GenerateRefreshToken(accountID string) (string, error) {
	claims := &models.TokenClaims{
		Type:      models.TokenTypeRefresh,
		AccountID: accountID,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.New().String(),
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(tm.refreshTokenExpiry)),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
			NotBefore: jwt.NewNumericDate(time.Now()),
		},
	}

	return tm.sign(claims, "refresh")
}

// GenerateChallengeToken creates the short-lived token handed back when a
// login requires a second factor. It authorizes only the verification step.
func (tm *TokenManager) GenerateChallengeToken(accountID string) (string, error) {
	claims := &models.TokenClaims{
		Type:      models.TokenTypeChallenge,
		AccountID: accountID,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.New().String(),
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(tm.challengeTokenExpiry)),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
			NotBefore: jwt.NewNumericDate(time.Now()),
		},
	}

	return tm.sign(claims, "challenge")
}

func (tm *TokenManager) sign(claims *models.TokenClaims, kind string) (string, error) {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	tokenString, err := token.SignedString([]byte(tm.secret))
	if err != nil {
		return "", fmt.Errorf("failed to sign %s token: %w", kind, err)
	}
	return tokenString, nil
}

// ValidateToken parses and validates a token of the expected type.
func (tm *TokenManager) ValidateToken(tokenString, expectedType string) (*models.TokenClaims, error) {
	claims := &models.TokenClaims{}

	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return []byte(tm.secret), nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, models.ErrTokenExpired
		}
		return nil, models.ErrTokenInvalid
	}

	if !token.Valid {
		return nil, models.ErrTokenInvalid
	}
	if claims.Type != expectedType {
		return nil, models.ErrTokenInvalid
	}
	if claims.AccountID == "" {
		return nil, models.ErrTokenInvalid
	}

	return claims, nil
}

// ValidateForAccount validates a token and rejects it when it was issued
// before the account's last password change. A token minted under the old
// password must not outlive it.
func (tm *TokenManager) ValidateForAccount(tokenString, expectedType string, passwordChangedAt *time.Time) (*models.TokenClaims, error) {
	claims, err := tm.ValidateToken(tokenString, expectedType)
	if err != nil {
		return nil, err
	}

	if passwordChangedAt != nil && claims.IssuedAt != nil &&
		claims.IssuedAt.Time.Before(*passwordChangedAt) {
		return nil, models.ErrTokenInvalid
	}

	return claims, nil
}
