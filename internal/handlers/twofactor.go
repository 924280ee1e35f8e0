package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/stunity/identity/internal/auth"
	"github.com/stunity/identity/internal/models"
	"github.com/stunity/identity/internal/services"
	"github.com/stunity/identity/pkg/httpx"
)

// TwoFactorServiceInterface defines the interface for TOTP enrollment
type TwoFactorServiceInterface interface {
	BeginSetup(ctx context.Context, accountID string) (*services.TwoFactorSetup, error)
	CompleteSetup(ctx context.Context, accountID, code string) ([]string, error)
	Status(ctx context.Context, accountID string) (*services.TwoFactorStatus, error)
	Disable(ctx context.Context, accountID, code string) error
	RegenerateBackupCodes(ctx context.Context, accountID, code string) ([]string, error)
}

// TwoFactorHandler handles TOTP enrollment endpoints. All of them require an
// authenticated request.
type TwoFactorHandler struct {
	service TwoFactorServiceInterface
}

// NewTwoFactorHandler creates a new TwoFactorHandler
func NewTwoFactorHandler(service TwoFactorServiceInterface) *TwoFactorHandler {
	return &TwoFactorHandler{service: service}
}

// TwoFactorCodeRequest carries a TOTP or backup code confirming possession
// of the second factor
type TwoFactorCodeRequest struct {
	Code string `json:"code" validate:"required,min=6,max=8"`
}

// BackupCodesResponse returns freshly generated backup codes. They are shown
// exactly once.
type BackupCodesResponse struct {
	BackupCodes []string `json:"backup_codes"`
}

// Setup starts enrollment and returns the secret with a QR code for the
// authenticator app.
func (h *TwoFactorHandler) Setup(w http.ResponseWriter, r *http.Request) {
	claims := auth.GetClaimsFromContext(r)
	if claims == nil {
		httpx.WriteUnauthorized(w, "unauthorized")
		return
	}

	setup, err := h.service.BeginSetup(r.Context(), claims.AccountID)
	if err != nil {
		if errors.Is(err, models.ErrTwoFactorAlreadyEnabled) {
			httpx.WriteConflict(w, "Two-factor authentication is already enabled")
			return
		}
		httpx.WriteInternalError(w, "Internal server error")
		return
	}

	httpx.WriteData(w, http.StatusOK, setup)
}

// VerifySetup confirms the first authenticator code and activates
// enrollment. The response carries the one-time view of the backup codes.
func (h *TwoFactorHandler) VerifySetup(w http.ResponseWriter, r *http.Request) {
	claims := auth.GetClaimsFromContext(r)
	if claims == nil {
		httpx.WriteUnauthorized(w, "unauthorized")
		return
	}

	var req TwoFactorCodeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httpx.WriteBadRequest(w, "Invalid request body")
		return
	}
	if details := ValidateRequest(req); details != nil {
		httpx.WriteErrorWithDetails(w, http.StatusBadRequest, "Validation failed", details)
		return
	}

	codes, err := h.service.CompleteSetup(r.Context(), claims.AccountID, req.Code)
	if err != nil {
		switch {
		case errors.Is(err, models.ErrTwoFactorNotEnabled):
			httpx.WriteBadRequest(w, "Two-factor setup has not been started")
		case errors.Is(err, models.ErrTwoFactorAlreadyEnabled):
			httpx.WriteConflict(w, "Two-factor authentication is already enabled")
		case errors.Is(err, models.ErrInvalidTwoFactorCode):
			httpx.WriteUnauthorized(w, "Invalid verification code")
		default:
			httpx.WriteInternalError(w, "Internal server error")
		}
		return
	}

	httpx.WriteData(w, http.StatusOK, BackupCodesResponse{BackupCodes: codes})
}

// Status reports the current enrollment state.
func (h *TwoFactorHandler) Status(w http.ResponseWriter, r *http.Request) {
	claims := auth.GetClaimsFromContext(r)
	if claims == nil {
		httpx.WriteUnauthorized(w, "unauthorized")
		return
	}

	status, err := h.service.Status(r.Context(), claims.AccountID)
	if err != nil {
		httpx.WriteInternalError(w, "Internal server error")
		return
	}

	httpx.WriteData(w, http.StatusOK, status)
}

// Disable removes enrollment after a valid code confirms possession of the
// second factor.
func (h *TwoFactorHandler) Disable(w http.ResponseWriter, r *http.Request) {
	claims := auth.GetClaimsFromContext(r)
	if claims == nil {
		httpx.WriteUnauthorized(w, "unauthorized")
		return
	}

	var req TwoFactorCodeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httpx.WriteBadRequest(w, "Invalid request body")
		return
	}
	if details := ValidateRequest(req); details != nil {
		httpx.WriteErrorWithDetails(w, http.StatusBadRequest, "Validation failed", details)
		return
	}

	if err := h.service.Disable(r.Context(), claims.AccountID, req.Code); err != nil {
		switch {
		case errors.Is(err, models.ErrTwoFactorNotEnabled):
			httpx.WriteBadRequest(w, "Two-factor authentication is not enabled")
		case errors.Is(err, models.ErrInvalidTwoFactorCode):
			httpx.WriteUnauthorized(w, "Invalid verification code")
		default:
			httpx.WriteInternalError(w, "Internal server error")
		}
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// RegenerateBackupCodes voids the previous backup code set and returns a new
// one.
func (h *TwoFactorHandler) RegenerateBackupCodes(w http.ResponseWriter, r *http.Request) {
	claims := auth.GetClaimsFromContext(r)
	if claims == nil {
		httpx.WriteUnauthorized(w, "unauthorized")
		return
	}

	var req TwoFactorCodeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httpx.WriteBadRequest(w, "Invalid request body")
		return
	}
	if details := ValidateRequest(req); details != nil {
		httpx.WriteErrorWithDetails(w, http.StatusBadRequest, "Validation failed", details)
		return
	}

	codes, err := h.service.RegenerateBackupCodes(r.Context(), claims.AccountID, req.Code)
	if err != nil {
		switch {
		case errors.Is(err, models.ErrTwoFactorNotEnabled):
			httpx.WriteBadRequest(w, "Two-factor authentication is not enabled")
		case errors.Is(err, models.ErrInvalidTwoFactorCode):
			httpx.WriteUnauthorized(w, "Invalid verification code")
		default:
			httpx.WriteInternalError(w, "Internal server error")
		}
		return
	}

	httpx.WriteData(w, http.StatusOK, BackupCodesResponse{BackupCodes: codes})
}
