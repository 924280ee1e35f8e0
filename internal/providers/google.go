package providers

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/coreos/go-oidc/v3/oidc"
	"github.com/stunity/identity/internal/models"
)

const googleIssuer = "https://accounts.google.com"

// GoogleVerifier validates Google ID tokens against Google's JWKS.
type GoogleVerifier struct {
	verifier *oidc.IDTokenVerifier
}

// NewGoogleVerifier discovers Google's OIDC configuration. The context
// governs discovery and later key refreshes.
func NewGoogleVerifier(ctx context.Context, clientID string) (*GoogleVerifier, error) {
	provider, err := oidc.NewProvider(ctx, googleIssuer)
	if err != nil {
		return nil, fmt.Errorf("failed to discover google oidc config: %w", err)
	}
	return &GoogleVerifier{
		verifier: provider.Verifier(&oidc.Config{ClientID: clientID}),
	}, nil
}

func (v *GoogleVerifier) Provider() Provider { return Google }

func (v *GoogleVerifier) Verify(ctx context.Context, cred Credential) (*Profile, error) {
	if cred.IDToken == "" {
		return nil, fmt.Errorf("%w: missing google id token", models.ErrProviderVerification)
	}

	idToken, err := v.verifier.Verify(ctx, cred.IDToken)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", models.ErrProviderVerification, err)
	}

	var claims struct {
		Email         string `json:"email"`
		EmailVerified bool   `json:"email_verified"`
		Name          string `json:"name"`
		Picture       string `json:"picture"`
	}
	if err := idToken.Claims(&claims); err != nil {
		return nil, fmt.Errorf("%w: %v", models.ErrProviderVerification, err)
	}

	var raw json.RawMessage
	if err := idToken.Claims(&raw); err != nil {
		return nil, fmt.Errorf("%w: %v", models.ErrProviderVerification, err)
	}

	return &Profile{
		Provider:       Google,
		ProviderUserID: idToken.Subject,
		Email:          claims.Email,
		EmailVerified:  claims.EmailVerified,
		DisplayName:    claims.Name,
		AvatarURL:      claims.Picture,
		RawProfile:     raw,
	}, nil
}
