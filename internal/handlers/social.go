package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/stunity/identity/internal/auth"
	"github.com/stunity/identity/internal/models"
	"github.com/stunity/identity/internal/providers"
	"github.com/stunity/identity/internal/services"
	"github.com/stunity/identity/pkg/httpx"
)

// FederationServiceInterface defines the interface for identity federation
type FederationServiceInterface interface {
	LoginWithProfile(ctx context.Context, profile *providers.Profile, claimCode, clientIP string) (*services.LoginResult, error)
	Link(ctx context.Context, accountID string, profile *providers.Profile) (*models.SocialAccount, error)
	Unlink(ctx context.Context, accountID, provider string) error
	ListLinks(ctx context.Context, accountID string) ([]*models.SocialAccount, error)
}

// SocialHandler handles federated login and identity link management.
type SocialHandler struct {
	service   FederationServiceInterface
	verifiers map[providers.Provider]providers.Verifier
	ipConfig  *httpx.IPConfig
}

// NewSocialHandler creates a new SocialHandler. Only providers present in
// the verifier map are accepted; the rest 404.
func NewSocialHandler(service FederationServiceInterface, verifiers map[providers.Provider]providers.Verifier, ipConfig *httpx.IPConfig) *SocialHandler {
	return &SocialHandler{
		service:   service,
		verifiers: verifiers,
		ipConfig:  ipConfig,
	}
}

// SocialLoginRequest carries the provider credential. Which field is set
// depends on the provider. Provider is only read on the link endpoint, where
// the path carries no provider segment.
type SocialLoginRequest struct {
	Provider    string `json:"provider,omitempty"`
	IDToken     string `json:"id_token,omitempty"`
	AccessToken string `json:"access_token,omitempty"`
	Code        string `json:"code,omitempty"`
	RedirectURI string `json:"redirect_uri,omitempty"`
	FullName    string `json:"full_name,omitempty"`
	ClaimCode   string `json:"claim_code,omitempty"`
}

func (h *SocialHandler) verifierFor(r *http.Request) (providers.Verifier, bool) {
	name := providers.Provider(strings.ToUpper(chi.URLParam(r, "provider")))
	verifier, ok := h.verifiers[name]
	return verifier, ok
}

// Login handles POST /auth/social/{provider}. The credential is verified
// against the provider before any account is touched.
func (h *SocialHandler) Login(w http.ResponseWriter, r *http.Request) {
	verifier, ok := h.verifierFor(r)
	if !ok {
		httpx.WriteNotFound(w, "Unknown provider")
		return
	}

	var req SocialLoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httpx.WriteBadRequest(w, "Invalid request body")
		return
	}

	profile, err := verifier.Verify(r.Context(), providers.Credential{
		IDToken:           req.IDToken,
		AccessToken:       req.AccessToken,
		AuthorizationCode: req.Code,
		RedirectURI:       req.RedirectURI,
		FullName:          req.FullName,
	})
	if err != nil {
		if errors.Is(err, models.ErrProviderVerification) {
			httpx.WriteUnauthorized(w, "Provider verification failed")
			return
		}
		httpx.WriteInternalError(w, "Internal server error")
		return
	}

	clientIP := httpx.ExtractClientIP(r, h.ipConfig)

	result, err := h.service.LoginWithProfile(r.Context(), profile, req.ClaimCode, clientIP)
	if err != nil {
		if errors.Is(err, models.ErrClaimCodeInvalid) {
			httpx.WriteBadRequest(w, "Invalid or expired claim code")
			return
		}
		writeAuthError(w, err)
		return
	}

	httpx.WriteData(w, http.StatusOK, result)
}

// Link attaches a verified external identity to the authenticated account.
func (h *SocialHandler) Link(w http.ResponseWriter, r *http.Request) {
	claims := auth.GetClaimsFromContext(r)
	if claims == nil {
		httpx.WriteUnauthorized(w, "unauthorized")
		return
	}

	var req SocialLoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httpx.WriteBadRequest(w, "Invalid request body")
		return
	}

	name := chi.URLParam(r, "provider")
	if name == "" {
		name = req.Provider
	}
	verifier, ok := h.verifiers[providers.Provider(strings.ToUpper(name))]
	if !ok {
		httpx.WriteNotFound(w, "Unknown provider")
		return
	}

	profile, err := verifier.Verify(r.Context(), providers.Credential{
		IDToken:           req.IDToken,
		AccessToken:       req.AccessToken,
		AuthorizationCode: req.Code,
		RedirectURI:       req.RedirectURI,
		FullName:          req.FullName,
	})
	if err != nil {
		if errors.Is(err, models.ErrProviderVerification) {
			httpx.WriteUnauthorized(w, "Provider verification failed")
			return
		}
		httpx.WriteInternalError(w, "Internal server error")
		return
	}

	link, err := h.service.Link(r.Context(), claims.AccountID, profile)
	if err != nil {
		switch {
		case errors.Is(err, models.ErrConflict):
			httpx.WriteConflict(w, "This identity is already linked to your account")
		case errors.Is(err, models.ErrIdentityConflict):
			httpx.WriteConflict(w, "This identity is linked to another account")
		default:
			httpx.WriteInternalError(w, "Internal server error")
		}
		return
	}

	httpx.WriteData(w, http.StatusCreated, link)
}

// Unlink removes an identity link from the authenticated account.
func (h *SocialHandler) Unlink(w http.ResponseWriter, r *http.Request) {
	claims := auth.GetClaimsFromContext(r)
	if claims == nil {
		httpx.WriteUnauthorized(w, "unauthorized")
		return
	}

	provider := providers.Provider(strings.ToUpper(chi.URLParam(r, "provider")))
	if !providers.Known(provider) {
		httpx.WriteNotFound(w, "Unknown provider")
		return
	}

	if err := h.service.Unlink(r.Context(), claims.AccountID, string(provider)); err != nil {
		switch {
		case errors.Is(err, models.ErrNotFound):
			httpx.WriteNotFound(w, "No such identity link")
		case errors.Is(err, models.ErrLastAuthMethod):
			httpx.WriteBadRequest(w, "Cannot remove the only way to sign in to this account")
		default:
			httpx.WriteInternalError(w, "Internal server error")
		}
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// List returns the external identities linked to the authenticated account.
func (h *SocialHandler) List(w http.ResponseWriter, r *http.Request) {
	claims := auth.GetClaimsFromContext(r)
	if claims == nil {
		httpx.WriteUnauthorized(w, "unauthorized")
		return
	}

	links, err := h.service.ListLinks(r.Context(), claims.AccountID)
	if err != nil {
		httpx.WriteInternalError(w, "Internal server error")
		return
	}

	httpx.WriteData(w, http.StatusOK, links)
}
