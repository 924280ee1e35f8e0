package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/stunity/identity/internal/auth"
	"github.com/stunity/identity/internal/models"
	pkgauth "github.com/stunity/identity/pkg/auth"
	"github.com/stunity/identity/pkg/httpx"
)

// PasswordServiceInterface defines the interface for password flows
type PasswordServiceInterface interface {
	ChangePassword(ctx context.Context, accountID, currentPassword, newPassword, clientIP string) error
	ForgotPassword(ctx context.Context, email string) error
	ResetPassword(ctx context.Context, token, newPassword, clientIP string) error
}

// PasswordHandler handles password change, forgot and reset endpoints.
type PasswordHandler struct {
	service  PasswordServiceInterface
	ipConfig *httpx.IPConfig
}

// NewPasswordHandler creates a new PasswordHandler
func NewPasswordHandler(service PasswordServiceInterface, ipConfig *httpx.IPConfig) *PasswordHandler {
	return &PasswordHandler{
		service:  service,
		ipConfig: ipConfig,
	}
}

// ChangePasswordRequest represents the request body for a password change
type ChangePasswordRequest struct {
	CurrentPassword string `json:"current_password" validate:"required"`
	NewPassword     string `json:"new_password" validate:"required"`
}

// ForgotPasswordRequest represents the request body for starting a reset
type ForgotPasswordRequest struct {
	Email string `json:"email" validate:"required,email"`
}

// ResetPasswordRequest represents the request body for finishing a reset
type ResetPasswordRequest struct {
	Token       string `json:"token" validate:"required"`
	NewPassword string `json:"new_password" validate:"required"`
}

// Change rotates the password for the authenticated account.
func (h *PasswordHandler) Change(w http.ResponseWriter, r *http.Request) {
	claims := auth.GetClaimsFromContext(r)
	if claims == nil {
		httpx.WriteUnauthorized(w, "unauthorized")
		return
	}

	var req ChangePasswordRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httpx.WriteBadRequest(w, "Invalid request body")
		return
	}
	if details := ValidateRequest(req); details != nil {
		httpx.WriteErrorWithDetails(w, http.StatusBadRequest, "Validation failed", details)
		return
	}

	clientIP := httpx.ExtractClientIP(r, h.ipConfig)

	err := h.service.ChangePassword(r.Context(), claims.AccountID, req.CurrentPassword, req.NewPassword, clientIP)
	if err != nil {
		writePasswordError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// Forgot starts the reset flow. The response never reveals whether the
// email maps to an account.
func (h *PasswordHandler) Forgot(w http.ResponseWriter, r *http.Request) {
	var req ForgotPasswordRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httpx.WriteBadRequest(w, "Invalid request body")
		return
	}
	if details := ValidateRequest(req); details != nil {
		httpx.WriteErrorWithDetails(w, http.StatusBadRequest, "Validation failed", details)
		return
	}

	if err := h.service.ForgotPassword(r.Context(), req.Email); err != nil {
		httpx.WriteInternalError(w, "Internal server error")
		return
	}

	httpx.WriteMessage(w, http.StatusOK, "If that email exists, a reset link has been sent.")
}

// Reset finishes the reset flow with the token from the emailed link.
func (h *PasswordHandler) Reset(w http.ResponseWriter, r *http.Request) {
	var req ResetPasswordRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httpx.WriteBadRequest(w, "Invalid request body")
		return
	}
	if details := ValidateRequest(req); details != nil {
		httpx.WriteErrorWithDetails(w, http.StatusBadRequest, "Validation failed", details)
		return
	}

	clientIP := httpx.ExtractClientIP(r, h.ipConfig)

	err := h.service.ResetPassword(r.Context(), req.Token, req.NewPassword, clientIP)
	if err != nil {
		if errors.Is(err, models.ErrResetTokenInvalid) {
			httpx.WriteUnauthorized(w, "Invalid or expired reset token")
			return
		}
		writePasswordError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// writePasswordError maps password flow errors. Policy violations carry the
// individual messages so the client can show them all at once.
func writePasswordError(w http.ResponseWriter, err error) {
	var policyErr *pkgauth.PasswordValidationError
	switch {
	case errors.As(err, &policyErr):
		httpx.WriteErrorWithDetails(w, http.StatusBadRequest, "Password does not meet policy", policyErr.Errors)
	case errors.Is(err, models.ErrPasswordReuse):
		httpx.WriteBadRequest(w, "New password must differ from recently used passwords")
	case errors.Is(err, models.ErrInvalidCredentials):
		httpx.WriteUnauthorized(w, "Current password is incorrect")
	case errors.Is(err, models.ErrNotFound):
		httpx.WriteNotFound(w, "Account not found")
	default:
		httpx.WriteInternalError(w, "Internal server error")
	}
}
