package providers

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/coreos/go-oidc/v3/oidc"
	"github.com/stunity/identity/internal/models"
)

const appleIssuer = "https://appleid.apple.com"

// AppleVerifier validates Sign in with Apple ID tokens.
type AppleVerifier struct {
	verifier *oidc.IDTokenVerifier
}

func NewAppleVerifier(ctx context.Context, clientID string) (*AppleVerifier, error) {
	provider, err := oidc.NewProvider(ctx, appleIssuer)
	if err != nil {
		return nil, fmt.Errorf("failed to discover apple oidc config: %w", err)
	}
	return &AppleVerifier{
		verifier: provider.Verifier(&oidc.Config{ClientID: clientID}),
	}, nil
}

func (v *AppleVerifier) Provider() Provider { return Apple }

func (v *AppleVerifier) Verify(ctx context.Context, cred Credential) (*Profile, error) {
	if cred.IDToken == "" {
		return nil, fmt.Errorf("%w: missing apple id token", models.ErrProviderVerification)
	}

	idToken, err := v.verifier.Verify(ctx, cred.IDToken)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", models.ErrProviderVerification, err)
	}

	var claims struct {
		Email         string `json:"email"`
		EmailVerified any    `json:"email_verified"` // Apple sends bool or "true"
	}
	if err := idToken.Claims(&claims); err != nil {
		return nil, fmt.Errorf("%w: %v", models.ErrProviderVerification, err)
	}

	verified := false
	switch ev := claims.EmailVerified.(type) {
	case bool:
		verified = ev
	case string:
		verified = ev == "true"
	}

	var raw json.RawMessage
	if err := idToken.Claims(&raw); err != nil {
		return nil, fmt.Errorf("%w: %v", models.ErrProviderVerification, err)
	}

	// Apple only sends the user's name in the very first authorization;
	// the client forwards it alongside the token when present.
	return &Profile{
		Provider:       Apple,
		ProviderUserID: idToken.Subject,
		Email:          claims.Email,
		EmailVerified:  verified,
		DisplayName:    cred.FullName,
		RawProfile:     raw,
	}, nil
}
