package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/stunity/identity/internal/auth"
	"github.com/stunity/identity/internal/models"
	"github.com/stunity/identity/internal/providers"
	"github.com/stunity/identity/internal/services"
)

// MockAuthService implements AuthServiceInterface for testing
type MockAuthService struct {
	LoginFunc             func(ctx context.Context, email, password, clientIP string) (*services.LoginResult, error)
	CompleteChallengeFunc func(ctx context.Context, challengeToken, code, clientIP string) (*services.LoginResult, error)
	RefreshFunc           func(ctx context.Context, refreshToken string) (*services.LoginResult, error)
}

func (m *MockAuthService) Login(ctx context.Context, email, password, clientIP string) (*services.LoginResult, error) {
	if m.LoginFunc != nil {
		return m.LoginFunc(ctx, email, password, clientIP)
	}
	return nil, models.ErrInvalidCredentials
}

func (m *MockAuthService) CompleteChallenge(ctx context.Context, challengeToken, code, clientIP string) (*services.LoginResult, error) {
	if m.CompleteChallengeFunc != nil {
		return m.CompleteChallengeFunc(ctx, challengeToken, code, clientIP)
	}
	return nil, models.ErrTokenInvalid
}

func (m *MockAuthService) Refresh(ctx context.Context, refreshToken string) (*services.LoginResult, error) {
	if m.RefreshFunc != nil {
		return m.RefreshFunc(ctx, refreshToken)
	}
	return nil, models.ErrTokenInvalid
}

// MockTwoFactorService implements TwoFactorServiceInterface for testing
type MockTwoFactorService struct {
	BeginSetupFunc            func(ctx context.Context, accountID string) (*services.TwoFactorSetup, error)
	CompleteSetupFunc         func(ctx context.Context, accountID, code string) ([]string, error)
	StatusFunc                func(ctx context.Context, accountID string) (*services.TwoFactorStatus, error)
	DisableFunc               func(ctx context.Context, accountID, code string) error
	RegenerateBackupCodesFunc func(ctx context.Context, accountID, code string) ([]string, error)
}

func (m *MockTwoFactorService) BeginSetup(ctx context.Context, accountID string) (*services.TwoFactorSetup, error) {
	if m.BeginSetupFunc != nil {
		return m.BeginSetupFunc(ctx, accountID)
	}
	return nil, models.ErrInternalServer
}

func (m *MockTwoFactorService) CompleteSetup(ctx context.Context, accountID, code string) ([]string, error) {
	if m.CompleteSetupFunc != nil {
		return m.CompleteSetupFunc(ctx, accountID, code)
	}
	return nil, models.ErrInvalidTwoFactorCode
}

func (m *MockTwoFactorService) Status(ctx context.Context, accountID string) (*services.TwoFactorStatus, error) {
	if m.StatusFunc != nil {
		return m.StatusFunc(ctx, accountID)
	}
	return &services.TwoFactorStatus{}, nil
}

func (m *MockTwoFactorService) Disable(ctx context.Context, accountID, code string) error {
	if m.DisableFunc != nil {
		return m.DisableFunc(ctx, accountID, code)
	}
	return models.ErrInvalidTwoFactorCode
}

func (m *MockTwoFactorService) RegenerateBackupCodes(ctx context.Context, accountID, code string) ([]string, error) {
	if m.RegenerateBackupCodesFunc != nil {
		return m.RegenerateBackupCodesFunc(ctx, accountID, code)
	}
	return nil, models.ErrInvalidTwoFactorCode
}

// MockFederationService implements FederationServiceInterface for testing
type MockFederationService struct {
	LoginWithProfileFunc func(ctx context.Context, profile *providers.Profile, claimCode, clientIP string) (*services.LoginResult, error)
	LinkFunc             func(ctx context.Context, accountID string, profile *providers.Profile) (*models.SocialAccount, error)
	UnlinkFunc           func(ctx context.Context, accountID, provider string) error
	ListLinksFunc        func(ctx context.Context, accountID string) ([]*models.SocialAccount, error)
}

func (m *MockFederationService) LoginWithProfile(ctx context.Context, profile *providers.Profile, claimCode, clientIP string) (*services.LoginResult, error) {
	if m.LoginWithProfileFunc != nil {
		return m.LoginWithProfileFunc(ctx, profile, claimCode, clientIP)
	}
	return nil, models.ErrInternalServer
}

func (m *MockFederationService) Link(ctx context.Context, accountID string, profile *providers.Profile) (*models.SocialAccount, error) {
	if m.LinkFunc != nil {
		return m.LinkFunc(ctx, accountID, profile)
	}
	return nil, models.ErrInternalServer
}

func (m *MockFederationService) Unlink(ctx context.Context, accountID, provider string) error {
	if m.UnlinkFunc != nil {
		return m.UnlinkFunc(ctx, accountID, provider)
	}
	return models.ErrNotFound
}

func (m *MockFederationService) ListLinks(ctx context.Context, accountID string) ([]*models.SocialAccount, error) {
	if m.ListLinksFunc != nil {
		return m.ListLinksFunc(ctx, accountID)
	}
	return nil, nil
}

// MockPasswordService implements PasswordServiceInterface for testing
type MockPasswordService struct {
	ChangePasswordFunc func(ctx context.Context, accountID, currentPassword, newPassword, clientIP string) error
	ForgotPasswordFunc func(ctx context.Context, email string) error
	ResetPasswordFunc  func(ctx context.Context, token, newPassword, clientIP string) error
}

func (m *MockPasswordService) ChangePassword(ctx context.Context, accountID, currentPassword, newPassword, clientIP string) error {
	if m.ChangePasswordFunc != nil {
		return m.ChangePasswordFunc(ctx, accountID, currentPassword, newPassword, clientIP)
	}
	return nil
}

func (m *MockPasswordService) ForgotPassword(ctx context.Context, email string) error {
	if m.ForgotPasswordFunc != nil {
		return m.ForgotPasswordFunc(ctx, email)
	}
	return nil
}

func (m *MockPasswordService) ResetPassword(ctx context.Context, token, newPassword, clientIP string) error {
	if m.ResetPasswordFunc != nil {
		return m.ResetPasswordFunc(ctx, token, newPassword, clientIP)
	}
	return nil
}

// jsonRequest builds a request with a JSON body.
func jsonRequest(t *testing.T, method, target string, body any) *http.Request {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, target, &buf)
	req.Header.Set("Content-Type", "application/json")
	return req
}

// authedRequest attaches validated claims to the request context the way the
// auth middleware does.
func authedRequest(t *testing.T, method, target string, body any, accountID string) *http.Request {
	t.Helper()
	req := jsonRequest(t, method, target, body)
	claims := &models.TokenClaims{Type: models.TokenTypeAccess, AccountID: accountID}
	return req.WithContext(context.WithValue(req.Context(), auth.AccountContextKey, claims))
}

// decodeEnvelope parses the standard response envelope.
type responseEnvelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   string          `json:"error"`
	Details []string        `json:"details"`
}

func decodeEnvelope(t *testing.T, rec *httptest.ResponseRecorder) responseEnvelope {
	t.Helper()
	var env responseEnvelope
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&env))
	return env
}
