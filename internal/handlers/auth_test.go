package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stunity/identity/internal/models"
	"github.com/stunity/identity/internal/services"
	"github.com/stunity/identity/pkg/httpx"
)

func newAuthHandler(service *MockAuthService) *AuthHandler {
	return NewAuthHandler(service, &httpx.IPConfig{})
}

func successfulLogin() *services.LoginResult {
	return &services.LoginResult{
		Tokens: &models.TokenPair{
			AccessToken:  "access-token",
			RefreshToken: "refresh-token",
		},
		Account: &models.AccountSummary{ID: "account-1", Email: "teacher@example.edu"},
	}
}

// ============================================================================
// Login Tests
// ============================================================================

func TestAuthHandler_Login_Success(t *testing.T) {
	service := &MockAuthService{
		LoginFunc: func(ctx context.Context, email, password, clientIP string) (*services.LoginResult, error) {
			assert.Equal(t, "teacher@example.edu", email)
			assert.Equal(t, "SecureP@ss123", password)
			return successfulLogin(), nil
		},
	}
	handler := newAuthHandler(service)

	req := jsonRequest(t, http.MethodPost, "/api/v1/auth/login", LoginRequest{
		Email:    "teacher@example.edu",
		Password: "SecureP@ss123",
	})
	rec := httptest.NewRecorder()
	handler.Login(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	env := decodeEnvelope(t, rec)
	assert.True(t, env.Success)

	var result services.LoginResult
	require.NoError(t, json.Unmarshal(env.Data, &result))
	assert.Equal(t, "access-token", result.Tokens.AccessToken)
}

func TestAuthHandler_Login_InvalidCredentials(t *testing.T) {
	handler := newAuthHandler(&MockAuthService{})

	req := jsonRequest(t, http.MethodPost, "/api/v1/auth/login", LoginRequest{
		Email:    "teacher@example.edu",
		Password: "wrong",
	})
	rec := httptest.NewRecorder()
	handler.Login(rec, req)

	require.Equal(t, http.StatusUnauthorized, rec.Code)
	env := decodeEnvelope(t, rec)
	assert.False(t, env.Success)
	assert.Equal(t, "Authentication failed", env.Error)
}

func TestAuthHandler_Login_ValidationFailure(t *testing.T) {
	handler := newAuthHandler(&MockAuthService{
		LoginFunc: func(ctx context.Context, email, password, clientIP string) (*services.LoginResult, error) {
			t.Fatal("an invalid request must not reach the service")
			return nil, nil
		},
	})

	req := jsonRequest(t, http.MethodPost, "/api/v1/auth/login", LoginRequest{Email: "not-an-email"})
	rec := httptest.NewRecorder()
	handler.Login(rec, req)

	require.Equal(t, http.StatusBadRequest, rec.Code)
	env := decodeEnvelope(t, rec)
	assert.NotEmpty(t, env.Details)
}

func TestAuthHandler_Login_LockedAccount(t *testing.T) {
	service := &MockAuthService{
		LoginFunc: func(ctx context.Context, email, password, clientIP string) (*services.LoginResult, error) {
			return nil, &models.AccountLockedError{RetryAfter: 15 * time.Minute}
		},
	}
	handler := newAuthHandler(service)

	req := jsonRequest(t, http.MethodPost, "/api/v1/auth/login", LoginRequest{
		Email:    "teacher@example.edu",
		Password: "SecureP@ss123",
	})
	rec := httptest.NewRecorder()
	handler.Login(rec, req)

	require.Equal(t, http.StatusLocked, rec.Code)
	assert.Equal(t, "900", rec.Header().Get("Retry-After"))
}

func TestAuthHandler_Login_ExpiredSubscription(t *testing.T) {
	service := &MockAuthService{
		LoginFunc: func(ctx context.Context, email, password, clientIP string) (*services.LoginResult, error) {
			return nil, models.ErrTenantExpired
		},
	}
	handler := newAuthHandler(service)

	req := jsonRequest(t, http.MethodPost, "/api/v1/auth/login", LoginRequest{
		Email:    "teacher@example.edu",
		Password: "SecureP@ss123",
	})
	rec := httptest.NewRecorder()
	handler.Login(rec, req)

	require.Equal(t, http.StatusForbidden, rec.Code)
	assert.Equal(t, "School subscription has expired", decodeEnvelope(t, rec).Error)
}

func TestAuthHandler_Login_TwoFactorFork(t *testing.T) {
	service := &MockAuthService{
		LoginFunc: func(ctx context.Context, email, password, clientIP string) (*services.LoginResult, error) {
			return &services.LoginResult{Requires2FA: true, ChallengeToken: "challenge-token"}, nil
		},
	}
	handler := newAuthHandler(service)

	req := jsonRequest(t, http.MethodPost, "/api/v1/auth/login", LoginRequest{
		Email:    "teacher@example.edu",
		Password: "SecureP@ss123",
	})
	rec := httptest.NewRecorder()
	handler.Login(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var result services.LoginResult
	require.NoError(t, json.Unmarshal(decodeEnvelope(t, rec).Data, &result))
	assert.True(t, result.Requires2FA)
	assert.Equal(t, "challenge-token", result.ChallengeToken)
	assert.Nil(t, result.Tokens)
}

func TestAuthHandler_Login_MalformedBody(t *testing.T) {
	handler := newAuthHandler(&MockAuthService{})

	req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/login", nil)
	rec := httptest.NewRecorder()
	handler.Login(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

// ============================================================================
// VerifyChallenge Tests
// ============================================================================

func TestAuthHandler_VerifyChallenge_Success(t *testing.T) {
	service := &MockAuthService{
		CompleteChallengeFunc: func(ctx context.Context, challengeToken, code, clientIP string) (*services.LoginResult, error) {
			assert.Equal(t, "challenge-token", challengeToken)
			assert.Equal(t, "123456", code)
			return successfulLogin(), nil
		},
	}
	handler := newAuthHandler(service)

	req := jsonRequest(t, http.MethodPost, "/api/v1/auth/2fa/verify", VerifyChallengeRequest{
		ChallengeToken: "challenge-token",
		Code:           "123456",
	})
	rec := httptest.NewRecorder()
	handler.VerifyChallenge(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
}

func TestAuthHandler_VerifyChallenge_WrongCode(t *testing.T) {
	service := &MockAuthService{
		CompleteChallengeFunc: func(ctx context.Context, challengeToken, code, clientIP string) (*services.LoginResult, error) {
			return nil, models.ErrInvalidTwoFactorCode
		},
	}
	handler := newAuthHandler(service)

	req := jsonRequest(t, http.MethodPost, "/api/v1/auth/2fa/verify", VerifyChallengeRequest{
		ChallengeToken: "challenge-token",
		Code:           "000000",
	})
	rec := httptest.NewRecorder()
	handler.VerifyChallenge(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

// ============================================================================
// Refresh Tests
// ============================================================================

func TestAuthHandler_Refresh_Success(t *testing.T) {
	service := &MockAuthService{
		RefreshFunc: func(ctx context.Context, refreshToken string) (*services.LoginResult, error) {
			assert.Equal(t, "refresh-token", refreshToken)
			return successfulLogin(), nil
		},
	}
	handler := newAuthHandler(service)

	req := jsonRequest(t, http.MethodPost, "/api/v1/auth/refresh", RefreshRequest{RefreshToken: "refresh-token"})
	rec := httptest.NewRecorder()
	handler.Refresh(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
}

func TestAuthHandler_Refresh_InvalidToken(t *testing.T) {
	handler := newAuthHandler(&MockAuthService{})

	req := jsonRequest(t, http.MethodPost, "/api/v1/auth/refresh", RefreshRequest{RefreshToken: "garbage"})
	rec := httptest.NewRecorder()
	handler.Refresh(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}
