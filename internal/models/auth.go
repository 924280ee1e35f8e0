package models

import "github.com/golang-jwt/jwt/v5"

// Token types carried in the "type" claim.
const (
	TokenTypeAccess    = "access"
	TokenTypeRefresh   = "refresh"
	TokenTypeChallenge = "2fa_challenge"
)

// TokenClaims are the custom JWT claims for all token types. Access tokens
// carry the full identity snapshot; refresh and challenge tokens carry only
// the account ID.
type TokenClaims struct {
	Type      string         `json:"type"`
	AccountID string         `json:"account_id"`
	Email     string         `json:"email,omitempty"`
	Role      string         `json:"role,omitempty"`
	TenantID  string         `json:"tenant_id,omitempty"`
	Tenant    *TenantSummary `json:"tenant,omitempty"`
	jwt.RegisteredClaims
}

// TokenPair holds the access and refresh tokens issued on successful
// authentication.
type TokenPair struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
}
