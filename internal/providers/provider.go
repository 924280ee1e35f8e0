// Package providers verifies identity proofs from external providers and
// normalizes them into a common profile shape.
package providers

import (
	"context"
	"encoding/json"
	"net/http"
	"time"
)

// Provider identifies an external identity provider.
type Provider string

const (
	Google          Provider = "GOOGLE"
	Apple           Provider = "APPLE"
	Facebook        Provider = "FACEBOOK"
	LinkedIn        Provider = "LINKEDIN"
	GoogleWorkspace Provider = "GOOGLE_WORKSPACE"
	AzureAD         Provider = "AZURE_AD"
)

// Known reports whether the provider name is one we federate with.
func Known(p Provider) bool {
	switch p {
	case Google, Apple, Facebook, LinkedIn, GoogleWorkspace, AzureAD:
		return true
	}
	return false
}

// Credential is the proof material submitted by a client. Which fields are
// set depends on the provider: Google and Apple send an ID token, Facebook an
// access token, LinkedIn an authorization code.
type Credential struct {
	IDToken           string
	AccessToken       string
	AuthorizationCode string
	RedirectURI       string
	// FullName is only meaningful for Apple, which sends the name in the
	// first authorization response and never again.
	FullName string
}

// Profile is the normalized identity extracted from a verified credential.
// RawProfile keeps the provider's response as received, for the identity
// link record.
type Profile struct {
	Provider       Provider
	ProviderUserID string
	Email          string
	EmailVerified  bool
	DisplayName    string
	AvatarURL      string
	RawProfile     json.RawMessage
}

// Verifier checks a credential against its provider and returns the
// normalized profile. Verification failure is reported as
// models.ErrProviderVerification wrapped with detail.
type Verifier interface {
	Provider() Provider
	Verify(ctx context.Context, cred Credential) (*Profile, error)
}

// httpClient is shared by verifiers that call provider APIs directly.
var httpClient = &http.Client{Timeout: 10 * time.Second}
