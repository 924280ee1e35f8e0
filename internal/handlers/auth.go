package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/stunity/identity/internal/models"
	"github.com/stunity/identity/internal/services"
	"github.com/stunity/identity/pkg/httpx"
)

// AuthServiceInterface defines the interface for the login state machine
type AuthServiceInterface interface {
	Login(ctx context.Context, email, password, clientIP string) (*services.LoginResult, error)
	CompleteChallenge(ctx context.Context, challengeToken, code, clientIP string) (*services.LoginResult, error)
	Refresh(ctx context.Context, refreshToken string) (*services.LoginResult, error)
}

// AuthHandler handles authentication-related HTTP requests
type AuthHandler struct {
	service  AuthServiceInterface
	ipConfig *httpx.IPConfig
}

// NewAuthHandler creates a new AuthHandler
func NewAuthHandler(service AuthServiceInterface, ipConfig *httpx.IPConfig) *AuthHandler {
	return &AuthHandler{
		service:  service,
		ipConfig: ipConfig,
	}
}

// Request DTOs

// LoginRequest represents the request body for login
type LoginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

// VerifyChallengeRequest represents the request body for the second-factor
// step of a login
type VerifyChallengeRequest struct {
	ChallengeToken string `json:"challenge_token" validate:"required"`
	Code           string `json:"code" validate:"required,min=6,max=8"`
}

// RefreshRequest represents the request body for token refresh
type RefreshRequest struct {
	RefreshToken string `json:"refresh_token" validate:"required"`
}

// Login handles password login. When the account has a second factor
// enrolled the response carries a challenge token instead of a token pair.
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest

	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httpx.WriteBadRequest(w, "Invalid request body")
		return
	}

	if details := ValidateRequest(req); details != nil {
		httpx.WriteErrorWithDetails(w, http.StatusBadRequest, "Validation failed", details)
		return
	}

	clientIP := httpx.ExtractClientIP(r, h.ipConfig)

	result, err := h.service.Login(r.Context(), req.Email, req.Password, clientIP)
	if err != nil {
		writeAuthError(w, err)
		return
	}

	httpx.WriteData(w, http.StatusOK, result)
}

// VerifyChallenge completes a login that required a second factor.
func (h *AuthHandler) VerifyChallenge(w http.ResponseWriter, r *http.Request) {
	var req VerifyChallengeRequest

	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httpx.WriteBadRequest(w, "Invalid request body")
		return
	}

	if details := ValidateRequest(req); details != nil {
		httpx.WriteErrorWithDetails(w, http.StatusBadRequest, "Validation failed", details)
		return
	}

	clientIP := httpx.ExtractClientIP(r, h.ipConfig)

	result, err := h.service.CompleteChallenge(r.Context(), req.ChallengeToken, req.Code, clientIP)
	if err != nil {
		writeAuthError(w, err)
		return
	}

	httpx.WriteData(w, http.StatusOK, result)
}

// Refresh exchanges a refresh token for a fresh token pair.
func (h *AuthHandler) Refresh(w http.ResponseWriter, r *http.Request) {
	var req RefreshRequest

	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httpx.WriteBadRequest(w, "Invalid request body")
		return
	}

	if details := ValidateRequest(req); details != nil {
		httpx.WriteErrorWithDetails(w, http.StatusBadRequest, "Validation failed", details)
		return
	}

	result, err := h.service.Refresh(r.Context(), req.RefreshToken)
	if err != nil {
		writeAuthError(w, err)
		return
	}

	httpx.WriteData(w, http.StatusOK, result)
}

// writeAuthError maps login state machine errors to HTTP responses. Bad
// credentials and bad tokens collapse to the same generic 401 so the
// endpoint leaks nothing about which part failed.
func writeAuthError(w http.ResponseWriter, err error) {
	var lockedErr *models.AccountLockedError
	switch {
	case errors.As(err, &lockedErr):
		httpx.WriteLocked(w, "Account is temporarily locked. Please try again later.", int(lockedErr.RetryAfter.Seconds()))
	case errors.Is(err, models.ErrInvalidCredentials),
		errors.Is(err, models.ErrTokenExpired),
		errors.Is(err, models.ErrTokenInvalid),
		errors.Is(err, models.ErrInvalidTwoFactorCode),
		errors.Is(err, models.ErrTwoFactorNotEnabled):
		httpx.WriteUnauthorized(w, "Authentication failed")
	case errors.Is(err, models.ErrAccountInactive):
		httpx.WriteForbidden(w, "Account is deactivated")
	case errors.Is(err, models.ErrTenantInactive):
		httpx.WriteForbidden(w, "School is deactivated")
	case errors.Is(err, models.ErrTenantExpired):
		httpx.WriteForbidden(w, "School subscription has expired")
	default:
		httpx.WriteInternalError(w, "Internal server error")
	}
}
