package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stunity/identity/internal/models"
	"github.com/stunity/identity/internal/services"
)

func TestTwoFactorHandler_Setup(t *testing.T) {
	service := &MockTwoFactorService{
		BeginSetupFunc: func(ctx context.Context, accountID string) (*services.TwoFactorSetup, error) {
			assert.Equal(t, "account-1", accountID)
			return &services.TwoFactorSetup{Secret: "SECRET", QRCodeURL: "data:image/png;base64,abc"}, nil
		},
	}
	handler := NewTwoFactorHandler(service)

	req := authedRequest(t, http.MethodPost, "/api/v1/auth/2fa/setup", nil, "account-1")
	rec := httptest.NewRecorder()
	handler.Setup(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var setup services.TwoFactorSetup
	require.NoError(t, json.Unmarshal(decodeEnvelope(t, rec).Data, &setup))
	assert.Equal(t, "SECRET", setup.Secret)
}

func TestTwoFactorHandler_Setup_Unauthenticated(t *testing.T) {
	handler := NewTwoFactorHandler(&MockTwoFactorService{})

	req := jsonRequest(t, http.MethodPost, "/api/v1/auth/2fa/setup", nil)
	rec := httptest.NewRecorder()
	handler.Setup(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestTwoFactorHandler_Setup_AlreadyEnabled(t *testing.T) {
	service := &MockTwoFactorService{
		BeginSetupFunc: func(ctx context.Context, accountID string) (*services.TwoFactorSetup, error) {
			return nil, models.ErrTwoFactorAlreadyEnabled
		},
	}
	handler := NewTwoFactorHandler(service)

	req := authedRequest(t, http.MethodPost, "/api/v1/auth/2fa/setup", nil, "account-1")
	rec := httptest.NewRecorder()
	handler.Setup(rec, req)

	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestTwoFactorHandler_VerifySetup(t *testing.T) {
	service := &MockTwoFactorService{
		CompleteSetupFunc: func(ctx context.Context, accountID, code string) ([]string, error) {
			assert.Equal(t, "123456", code)
			return []string{"A1B2C3D4", "E5F6A7B8"}, nil
		},
	}
	handler := NewTwoFactorHandler(service)

	req := authedRequest(t, http.MethodPost, "/api/v1/auth/2fa/setup/verify", TwoFactorCodeRequest{Code: "123456"}, "account-1")
	rec := httptest.NewRecorder()
	handler.VerifySetup(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var resp BackupCodesResponse
	require.NoError(t, json.Unmarshal(decodeEnvelope(t, rec).Data, &resp))
	assert.Len(t, resp.BackupCodes, 2)
}

func TestTwoFactorHandler_VerifySetup_WrongCode(t *testing.T) {
	handler := NewTwoFactorHandler(&MockTwoFactorService{})

	req := authedRequest(t, http.MethodPost, "/api/v1/auth/2fa/setup/verify", TwoFactorCodeRequest{Code: "000000"}, "account-1")
	rec := httptest.NewRecorder()
	handler.VerifySetup(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestTwoFactorHandler_VerifySetup_CodeTooShort(t *testing.T) {
	handler := NewTwoFactorHandler(&MockTwoFactorService{
		CompleteSetupFunc: func(ctx context.Context, accountID, code string) ([]string, error) {
			t.Fatal("an invalid request must not reach the service")
			return nil, nil
		},
	})

	req := authedRequest(t, http.MethodPost, "/api/v1/auth/2fa/setup/verify", TwoFactorCodeRequest{Code: "12"}, "account-1")
	rec := httptest.NewRecorder()
	handler.VerifySetup(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestTwoFactorHandler_Status(t *testing.T) {
	service := &MockTwoFactorService{
		StatusFunc: func(ctx context.Context, accountID string) (*services.TwoFactorStatus, error) {
			return &services.TwoFactorStatus{Enabled: true, RemainingBackupCodes: 7}, nil
		},
	}
	handler := NewTwoFactorHandler(service)

	req := authedRequest(t, http.MethodGet, "/api/v1/auth/2fa/status", nil, "account-1")
	rec := httptest.NewRecorder()
	handler.Status(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var status services.TwoFactorStatus
	require.NoError(t, json.Unmarshal(decodeEnvelope(t, rec).Data, &status))
	assert.True(t, status.Enabled)
	assert.Equal(t, 7, status.RemainingBackupCodes)
}

func TestTwoFactorHandler_Disable(t *testing.T) {
	disabled := false
	service := &MockTwoFactorService{
		DisableFunc: func(ctx context.Context, accountID, code string) error {
			disabled = true
			return nil
		},
	}
	handler := NewTwoFactorHandler(service)

	req := authedRequest(t, http.MethodDelete, "/api/v1/auth/2fa", TwoFactorCodeRequest{Code: "123456"}, "account-1")
	rec := httptest.NewRecorder()
	handler.Disable(rec, req)

	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.True(t, disabled)
}

func TestTwoFactorHandler_RegenerateBackupCodes_WrongCode(t *testing.T) {
	handler := NewTwoFactorHandler(&MockTwoFactorService{})

	req := authedRequest(t, http.MethodPost, "/api/v1/auth/2fa/backup-codes", TwoFactorCodeRequest{Code: "000000"}, "account-1")
	rec := httptest.NewRecorder()
	handler.RegenerateBackupCodes(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}
