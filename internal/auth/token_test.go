package auth

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stunity/identity/internal/models"
)

const testSecret = "test-secret-for-token-manager-units"

func testAccount() *models.Account {
	tenantID := "tenant-1"
	return &models.Account{
		ID:       "account-1",
		Email:    "teacher@example.edu",
		Role:     "TEACHER",
		TenantID: &tenantID,
		Active:   true,
	}
}

func testTenant() *models.Tenant {
	return &models.Tenant{
		ID:     "tenant-1",
		Name:   "Example High",
		Active: true,
	}
}

// ============================================================================
// Generation Tests
// ============================================================================

func TestTokenManager_GenerateAccessToken(t *testing.T) {
	tm := NewTokenManager(testSecret, 15*time.Minute, 7*24*time.Hour, 5*time.Minute)

	tokenString, err := tm.GenerateAccessToken(testAccount(), testTenant())
	require.NoError(t, err)
	require.NotEmpty(t, tokenString)

	claims, err := tm.ValidateToken(tokenString, models.TokenTypeAccess)
	require.NoError(t, err)
	assert.Equal(t, "account-1", claims.AccountID)
	assert.Equal(t, "teacher@example.edu", claims.Email)
	assert.Equal(t, "TEACHER", claims.Role)
	assert.Equal(t, "tenant-1", claims.TenantID)
	require.NotNil(t, claims.Tenant)
	assert.Equal(t, "Example High", claims.Tenant.Name)
	assert.True(t, claims.Tenant.Active)
	assert.NotEmpty(t, claims.ID) // JTI
}

func TestTokenManager_GenerateAccessToken_NoTenant(t *testing.T) {
	tm := NewTokenManager(testSecret, 15*time.Minute, 7*24*time.Hour, 5*time.Minute)

	account := testAccount()
	account.TenantID = nil

	tokenString, err := tm.GenerateAccessToken(account, nil)
	require.NoError(t, err)

	claims, err := tm.ValidateToken(tokenString, models.TokenTypeAccess)
	require.NoError(t, err)
	assert.Empty(t, claims.TenantID)
	assert.Nil(t, claims.Tenant)
}

func TestTokenManager_GenerateRefreshToken(t *testing.T) {
	tm := NewTokenManager(testSecret, 15*time.Minute, 7*24*time.Hour, 5*time.Minute)

	tokenString, err := tm.GenerateRefreshToken("account-1")
	require.NoError(t, err)

	claims, err := tm.ValidateToken(tokenString, models.TokenTypeRefresh)
	require.NoError(t, err)
	assert.Equal(t, "account-1", claims.AccountID)
	assert.Empty(t, claims.Email)
}

func TestTokenManager_GenerateChallengeToken(t *testing.T) {
	tm := NewTokenManager(testSecret, 15*time.Minute, 7*24*time.Hour, 5*time.Minute)

	tokenString, err := tm.GenerateChallengeToken("account-1")
	require.NoError(t, err)

	claims, err := tm.ValidateToken(tokenString, models.TokenTypeChallenge)
	require.NoError(t, err)
	assert.Equal(t, "account-1", claims.AccountID)
	require.NotNil(t, claims.ExpiresAt)
	assert.WithinDuration(t, time.Now().Add(5*time.Minute), claims.ExpiresAt.Time, 5*time.Second)
}

// ============================================================================
// Validation Tests
// ============================================================================

func TestTokenManager_ValidateToken_WrongType(t *testing.T) {
	tm := NewTokenManager(testSecret, 15*time.Minute, 7*24*time.Hour, 5*time.Minute)

	refresh, err := tm.GenerateRefreshToken("account-1")
	require.NoError(t, err)

	// A refresh token must not be accepted where an access token is expected,
	// and a challenge token must not be accepted anywhere but verification.
	_, err = tm.ValidateToken(refresh, models.TokenTypeAccess)
	assert.ErrorIs(t, err, models.ErrTokenInvalid)

	challenge, err := tm.GenerateChallengeToken("account-1")
	require.NoError(t, err)
	_, err = tm.ValidateToken(challenge, models.TokenTypeAccess)
	assert.ErrorIs(t, err, models.ErrTokenInvalid)
}

func TestTokenManager_ValidateToken_Expired(t *testing.T) {
	tm := NewTokenManager(testSecret, -1*time.Minute, 7*24*time.Hour, 5*time.Minute)

	tokenString, err := tm.GenerateAccessToken(testAccount(), testTenant())
	require.NoError(t, err)

	_, err = tm.ValidateToken(tokenString, models.TokenTypeAccess)
	assert.ErrorIs(t, err, models.ErrTokenExpired)
}

func TestTokenManager_ValidateToken_WrongSecret(t *testing.T) {
	tm := NewTokenManager(testSecret, 15*time.Minute, 7*24*time.Hour, 5*time.Minute)
	other := NewTokenManager("a-completely-different-secret-value", 15*time.Minute, 7*24*time.Hour, 5*time.Minute)

	tokenString, err := tm.GenerateAccessToken(testAccount(), testTenant())
	require.NoError(t, err)

	_, err = other.ValidateToken(tokenString, models.TokenTypeAccess)
	assert.ErrorIs(t, err, models.ErrTokenInvalid)
}

func TestTokenManager_ValidateToken_Garbage(t *testing.T) {
	tm := NewTokenManager(testSecret, 15*time.Minute, 7*24*time.Hour, 5*time.Minute)

	_, err := tm.ValidateToken("not.a.token", models.TokenTypeAccess)
	assert.ErrorIs(t, err, models.ErrTokenInvalid)
}

// ============================================================================
// Password-Change Invalidation Tests
// ============================================================================

func TestTokenManager_ValidateForAccount_IssuedBeforePasswordChange(t *testing.T) {
	tm := NewTokenManager(testSecret, 15*time.Minute, 7*24*time.Hour, 5*time.Minute)

	tokenString, err := tm.GenerateAccessToken(testAccount(), testTenant())
	require.NoError(t, err)

	changedAt := time.Now().Add(1 * time.Minute)
	_, err = tm.ValidateForAccount(tokenString, models.TokenTypeAccess, &changedAt)
	assert.ErrorIs(t, err, models.ErrTokenInvalid)
}

func TestTokenManager_ValidateForAccount_IssuedAfterPasswordChange(t *testing.T) {
	tm := NewTokenManager(testSecret, 15*time.Minute, 7*24*time.Hour, 5*time.Minute)

	changedAt := time.Now().Add(-1 * time.Hour)
	tokenString, err := tm.GenerateAccessToken(testAccount(), testTenant())
	require.NoError(t, err)

	claims, err := tm.ValidateForAccount(tokenString, models.TokenTypeAccess, &changedAt)
	require.NoError(t, err)
	assert.Equal(t, "account-1", claims.AccountID)
}

func TestTokenManager_ValidateForAccount_NeverChangedPassword(t *testing.T) {
	tm := NewTokenManager(testSecret, 15*time.Minute, 7*24*time.Hour, 5*time.Minute)

	tokenString, err := tm.GenerateRefreshToken("account-1")
	require.NoError(t, err)

	_, err = tm.ValidateForAccount(tokenString, models.TokenTypeRefresh, nil)
	assert.NoError(t, err)
}
