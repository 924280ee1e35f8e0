// Package exchange implements the one-time code exchange used to hand tokens
// from an SSO callback redirect to the frontend. Codes are random, short-lived,
// and consumed exactly once.
package exchange

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"

	"github.com/stunity/identity/internal/models"
)

// codeBytes is the entropy of an exchange code; 32 bytes hex-encoded yields a
// 64-character code.
const codeBytes = 32

// Bundle is the payload parked behind an exchange code. When the login
// still needs a second factor the bundle carries the challenge token
// instead of the token pair.
type Bundle struct {
	Requires2FA    bool                   `json:"requires_2fa,omitempty"`
	ChallengeToken string                 `json:"challenge_token,omitempty"`
	AccessToken    string                 `json:"access_token,omitempty"`
	RefreshToken   string                 `json:"refresh_token,omitempty"`
	Account        *models.AccountSummary `json:"account,omitempty"`
	Tenant         *models.TenantSummary  `json:"tenant,omitempty"`
}

// Store parks token bundles behind single-use codes.
type Store interface {
	// Create parks the bundle and returns the code to redirect with.
	Create(ctx context.Context, bundle *Bundle) (string, error)
	// Consume atomically takes the bundle for a code. A second call with
	// the same code, or a call after the TTL, returns
	// models.ErrExchangeCodeInvalid.
	Consume(ctx context.Context, code string) (*Bundle, error)
}

func generateCode() (string, error) {
	raw := make([]byte, codeBytes)
	if _, err := rand.Read(raw); err != nil {
		return "", fmt.Errorf("failed to generate exchange code: %w", err)
	}
	return hex.EncodeToString(raw), nil
}
