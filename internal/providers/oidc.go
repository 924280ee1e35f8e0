package providers

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/coreos/go-oidc/v3/oidc"
	"github.com/stunity/identity/internal/models"
	"golang.org/x/oauth2"
)

// OIDCRelyingParty drives a redirect-based OIDC login against an enterprise
// issuer (Google Workspace, Azure AD). It covers both halves of the flow:
// building the authorization URL and exchanging the callback code.
type OIDCRelyingParty struct {
	provider Provider
	config   *oauth2.Config
	verifier *oidc.IDTokenVerifier
}

// NewOIDCRelyingParty discovers the issuer's configuration.
func NewOIDCRelyingParty(ctx context.Context, provider Provider, issuer, clientID, clientSecret, redirectURL string) (*OIDCRelyingParty, error) {
	op, err := oidc.NewProvider(ctx, issuer)
	if err != nil {
		return nil, fmt.Errorf("failed to discover oidc config for %s: %w", issuer, err)
	}

	return &OIDCRelyingParty{
		provider: provider,
		config: &oauth2.Config{
			ClientID:     clientID,
			ClientSecret: clientSecret,
			RedirectURL:  redirectURL,
			Endpoint:     op.Endpoint(),
			Scopes:       []string{oidc.ScopeOpenID, "profile", "email"},
		},
		verifier: op.Verifier(&oidc.Config{ClientID: clientID}),
	}, nil
}

func (rp *OIDCRelyingParty) Provider() Provider { return rp.provider }

// AuthCodeURL builds the authorization redirect for the given state.
func (rp *OIDCRelyingParty) AuthCodeURL(state string) string {
	return rp.config.AuthCodeURL(state)
}

// Exchange trades the callback code for tokens, verifies the ID token, and
// returns the normalized profile.
func (rp *OIDCRelyingParty) Exchange(ctx context.Context, code string) (*Profile, error) {
	token, err := rp.config.Exchange(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", models.ErrProviderVerification, err)
	}

	rawIDToken, ok := token.Extra("id_token").(string)
	if !ok || rawIDToken == "" {
		return nil, fmt.Errorf("%w: token response missing id_token", models.ErrProviderVerification)
	}

	idToken, err := rp.verifier.Verify(ctx, rawIDToken)
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
		Provider:       rp.provider,
		ProviderUserID: idToken.Subject,
		Email:          claims.Email,
		EmailVerified:  claims.EmailVerified,
		DisplayName:    claims.Name,
		AvatarURL:      claims.Picture,
		RawProfile:     raw,
	}, nil
}
