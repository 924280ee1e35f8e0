package handlers

import (
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/stunity/identity/internal/exchange"
	"github.com/stunity/identity/internal/models"
	"github.com/stunity/identity/internal/providers"
	"github.com/stunity/identity/pkg/httpx"
)

// ssoStateCookie holds the CSRF state between the redirect to the provider
// and its callback.
const ssoStateCookie = "sso_state"

// SSOHandler drives the browser OIDC flow for workspace providers. The
// callback never hands tokens to the browser directly: it parks them behind
// a single-use exchange code and redirects to the frontend, which trades the
// code for the tokens over POST.
type SSOHandler struct {
	relyingParties map[providers.Provider]*providers.OIDCRelyingParty
	federation     FederationServiceInterface
	store          exchange.Store
	frontendURL    string
	ipConfig       *httpx.IPConfig
	logger         *slog.Logger
}

// NewSSOHandler creates a new SSOHandler
func NewSSOHandler(
	relyingParties map[providers.Provider]*providers.OIDCRelyingParty,
	federation FederationServiceInterface,
	store exchange.Store,
	frontendURL string,
	ipConfig *httpx.IPConfig,
	logger *slog.Logger,
) *SSOHandler {
	return &SSOHandler{
		relyingParties: relyingParties,
		federation:     federation,
		store:          store,
		frontendURL:    frontendURL,
		ipConfig:       ipConfig,
		logger:         logger,
	}
}

// ExchangeRequest trades a single-use code from the SSO redirect for the
// token bundle
type ExchangeRequest struct {
	Code string `json:"code" validate:"required,len=64"`
}

// ssoProviderFromSlug maps the URL path segment to a workspace provider.
func ssoProviderFromSlug(slug string) (providers.Provider, bool) {
	switch strings.ToLower(slug) {
	case "google-workspace":
		return providers.GoogleWorkspace, true
	case "azure", "azure-ad":
		return providers.AzureAD, true
	}
	return "", false
}

func (h *SSOHandler) relyingPartyFor(r *http.Request) (*providers.OIDCRelyingParty, bool) {
	name, ok := ssoProviderFromSlug(chi.URLParam(r, "provider"))
	if !ok {
		return nil, false
	}
	rp, ok := h.relyingParties[name]
	return rp, ok
}

// Start redirects the browser to the provider's authorization endpoint with
// a fresh state value.
func (h *SSOHandler) Start(w http.ResponseWriter, r *http.Request) {
	rp, ok := h.relyingPartyFor(r)
	if !ok {
		httpx.WriteNotFound(w, "Unknown provider")
		return
	}

	raw := make([]byte, 16)
	if _, err := rand.Read(raw); err != nil {
		httpx.WriteInternalError(w, "Internal server error")
		return
	}
	state := hex.EncodeToString(raw)

	http.SetCookie(w, &http.Cookie{
		Name:     ssoStateCookie,
		Value:    state,
		Path:     "/",
		MaxAge:   int((10 * time.Minute).Seconds()),
		HttpOnly: true,
		Secure:   r.TLS != nil,
		SameSite: http.SameSiteLaxMode,
	})

	http.Redirect(w, r, rp.AuthCodeURL(state), http.StatusFound)
}

// Callback handles the provider redirect. On success the browser is sent to
// the frontend with an exchange code; on failure with an error tag.
func (h *SSOHandler) Callback(w http.ResponseWriter, r *http.Request) {
	rp, ok := h.relyingPartyFor(r)
	if !ok {
		httpx.WriteNotFound(w, "Unknown provider")
		return
	}

	cookie, err := r.Cookie(ssoStateCookie)
	if err != nil || cookie.Value == "" || cookie.Value != r.URL.Query().Get("state") {
		h.redirectWithError(w, r, "invalid_state")
		return
	}

	// The state cookie is single-use
	http.SetCookie(w, &http.Cookie{
		Name:     ssoStateCookie,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
	})

	code := r.URL.Query().Get("code")
	if code == "" {
		h.redirectWithError(w, r, "access_denied")
		return
	}

	profile, err := rp.Exchange(r.Context(), code)
	if err != nil {
		h.logger.Warn("sso code exchange failed",
			slog.String("provider", string(rp.Provider())), slog.Any("error", err))
		h.redirectWithError(w, r, "verification_failed")
		return
	}

	clientIP := httpx.ExtractClientIP(r, h.ipConfig)

	result, err := h.federation.LoginWithProfile(r.Context(), profile, r.URL.Query().Get("claim_code"), clientIP)
	if err != nil {
		h.logger.Warn("sso login rejected",
			slog.String("provider", string(rp.Provider())), slog.Any("error", err))
		h.redirectWithError(w, r, ssoErrorTag(err))
		return
	}

	bundle := &exchange.Bundle{}
	if result.Requires2FA {
		bundle.Requires2FA = true
		bundle.ChallengeToken = result.ChallengeToken
	} else {
		bundle.AccessToken = result.Tokens.AccessToken
		bundle.RefreshToken = result.Tokens.RefreshToken
		bundle.Account = result.Account
		bundle.Tenant = result.Tenant
	}

	exchangeCode, err := h.store.Create(r.Context(), bundle)
	if err != nil {
		h.logger.Error("failed to park sso token bundle", slog.Any("error", err))
		h.redirectWithError(w, r, "server_error")
		return
	}

	http.Redirect(w, r, h.frontendURL+"/auth/callback?code="+url.QueryEscape(exchangeCode), http.StatusFound)
}

// Exchange trades the single-use code from the SSO redirect for the parked
// token bundle.
func (h *SSOHandler) Exchange(w http.ResponseWriter, r *http.Request) {
	var req ExchangeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httpx.WriteBadRequest(w, "Invalid request body")
		return
	}
	if details := ValidateRequest(req); details != nil {
		httpx.WriteErrorWithDetails(w, http.StatusBadRequest, "Validation failed", details)
		return
	}

	bundle, err := h.store.Consume(r.Context(), req.Code)
	if err != nil {
		if errors.Is(err, models.ErrExchangeCodeInvalid) {
			httpx.WriteUnauthorized(w, "Invalid or expired code")
			return
		}
		httpx.WriteInternalError(w, "Internal server error")
		return
	}

	httpx.WriteData(w, http.StatusOK, bundle)
}

func (h *SSOHandler) redirectWithError(w http.ResponseWriter, r *http.Request, tag string) {
	http.Redirect(w, r, h.frontendURL+"/auth/callback?error="+url.QueryEscape(tag), http.StatusFound)
}

// ssoErrorTag flattens login state machine errors into the tag carried on
// the frontend redirect.
func ssoErrorTag(err error) string {
	var lockedErr *models.AccountLockedError
	switch {
	case errors.As(err, &lockedErr):
		return "account_locked"
	case errors.Is(err, models.ErrAccountInactive):
		return "account_inactive"
	case errors.Is(err, models.ErrTenantInactive):
		return "school_inactive"
	case errors.Is(err, models.ErrTenantExpired):
		return "subscription_expired"
	case errors.Is(err, models.ErrClaimCodeInvalid):
		return "invalid_claim_code"
	}
	return "login_failed"
}
