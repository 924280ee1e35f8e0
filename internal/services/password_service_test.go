package services

import (
	"context"
	"errors"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stunity/identity/internal/models"
	pkgauth "github.com/stunity/identity/pkg/auth"
)

const newStrongPassword = "N3w!Secure#Pass"

func newTestPasswordService(accounts *MockAccountRepository, email *MockEmailSender) *PasswordService {
	return NewPasswordService(accounts, email, 1*time.Hour, "https://app.stunity.test/reset-password", testLogger(), testAuditLogger())
}

// ============================================================================
// ChangePassword Tests
// ============================================================================

func TestPasswordService_ChangePassword(t *testing.T) {
	account := activeAccount(t)
	var persistedHash string
	var persistedHistory []string
	accounts := &MockAccountRepository{
		GetByIDFunc: func(ctx context.Context, id string) (*models.Account, error) {
			return account, nil
		},
		UpdatePasswordFunc: func(ctx context.Context, id, hash string, history []string, isDefault bool) error {
			persistedHash = hash
			persistedHistory = history
			assert.False(t, isDefault)
			return nil
		},
	}
	svc := newTestPasswordService(accounts, &MockEmailSender{})

	err := svc.ChangePassword(context.Background(), "account-1", loginPassword, newStrongPassword, "")
	require.NoError(t, err)

	require.NotEmpty(t, persistedHash)
	assert.NoError(t, pkgauth.ComparePassword(persistedHash, newStrongPassword))
	// The old hash moved into the history for the reuse check
	require.Len(t, persistedHistory, 1)
	assert.NoError(t, pkgauth.ComparePassword(persistedHistory[0], loginPassword))
}

func TestPasswordService_ChangePassword_WrongCurrentPassword(t *testing.T) {
	account := activeAccount(t)
	accounts := &MockAccountRepository{
		GetByIDFunc: func(ctx context.Context, id string) (*models.Account, error) {
			return account, nil
		},
		UpdatePasswordFunc: func(ctx context.Context, id, hash string, history []string, isDefault bool) error {
			t.Fatal("the password must not change when the current password is wrong")
			return nil
		},
	}
	svc := newTestPasswordService(accounts, &MockEmailSender{})

	err := svc.ChangePassword(context.Background(), "account-1", "WrongCurrent1!", newStrongPassword, "")
	assert.ErrorIs(t, err, models.ErrInvalidCredentials)
}

func TestPasswordService_ChangePassword_RejectsWeakPassword(t *testing.T) {
	account := activeAccount(t)
	accounts := &MockAccountRepository{
		GetByIDFunc: func(ctx context.Context, id string) (*models.Account, error) {
			return account, nil
		},
	}
	svc := newTestPasswordService(accounts, &MockEmailSender{})

	err := svc.ChangePassword(context.Background(), "account-1", loginPassword, "weak", "")
	var policyErr *pkgauth.PasswordValidationError
	assert.ErrorAs(t, err, &policyErr)
}

func TestPasswordService_ChangePassword_RejectsReuse(t *testing.T) {
	account := activeAccount(t)
	accounts := &MockAccountRepository{
		GetByIDFunc: func(ctx context.Context, id string) (*models.Account, error) {
			return account, nil
		},
	}
	svc := newTestPasswordService(accounts, &MockEmailSender{})

	// Reusing the current password
	err := svc.ChangePassword(context.Background(), "account-1", loginPassword, loginPassword, "")
	assert.ErrorIs(t, err, models.ErrPasswordReuse)
}

func TestPasswordService_ChangePassword_RejectsHistoricalReuse(t *testing.T) {
	oldHash, err := pkgauth.HashPassword(newStrongPassword)
	require.NoError(t, err)

	account := activeAccount(t)
	account.PasswordHistory = []string{oldHash}
	accounts := &MockAccountRepository{
		GetByIDFunc: func(ctx context.Context, id string) (*models.Account, error) {
			return account, nil
		},
	}
	svc := newTestPasswordService(accounts, &MockEmailSender{})

	err = svc.ChangePassword(context.Background(), "account-1", loginPassword, newStrongPassword, "")
	assert.ErrorIs(t, err, models.ErrPasswordReuse)
}

func TestPasswordService_ChangePassword_FederatedAccountHasNoPassword(t *testing.T) {
	account := activeAccount(t)
	account.PasswordHash = ""
	accounts := &MockAccountRepository{
		GetByIDFunc: func(ctx context.Context, id string) (*models.Account, error) {
			return account, nil
		},
	}
	svc := newTestPasswordService(accounts, &MockEmailSender{})

	err := svc.ChangePassword(context.Background(), "account-1", "", newStrongPassword, "")
	assert.ErrorIs(t, err, models.ErrInvalidCredentials)
}

// ============================================================================
// ForgotPassword Tests
// ============================================================================

func TestPasswordService_ForgotPassword(t *testing.T) {
	account := activeAccount(t)
	var storedHash string
	var storedExpiry time.Time
	var sentTo, sentURL string
	accounts := &MockAccountRepository{
		GetByEmailFunc: func(ctx context.Context, email string) (*models.Account, error) {
			assert.Equal(t, "teacher@example.edu", email)
			return account, nil
		},
		SetResetTokenFunc: func(ctx context.Context, id, tokenHash string, expires time.Time) error {
			storedHash = tokenHash
			storedExpiry = expires
			return nil
		},
	}
	email := &MockEmailSender{
		SendPasswordResetEmailFunc: func(ctx context.Context, to, resetURL string) error {
			sentTo = to
			sentURL = resetURL
			return nil
		},
	}
	svc := newTestPasswordService(accounts, email)

	err := svc.ForgotPassword(context.Background(), " Teacher@Example.EDU ")
	require.NoError(t, err)

	assert.Equal(t, "teacher@example.edu", sentTo)
	assert.WithinDuration(t, time.Now().Add(1*time.Hour), storedExpiry, 5*time.Second)

	// The mailed link carries the raw token; only its hash is stored
	parsed, err := url.Parse(sentURL)
	require.NoError(t, err)
	token := parsed.Query().Get("token")
	require.Len(t, token, 64)
	assert.NotEqual(t, token, storedHash)
	assert.True(t, strings.HasPrefix(sentURL, "https://app.stunity.test/reset-password?token="))
}

func TestPasswordService_ForgotPassword_UnknownEmailIsSilent(t *testing.T) {
	emailSent := false
	email := &MockEmailSender{
		SendPasswordResetEmailFunc: func(ctx context.Context, to, resetURL string) error {
			emailSent = true
			return nil
		},
	}
	svc := newTestPasswordService(&MockAccountRepository{}, email)

	// Indistinguishable from the known-email response
	err := svc.ForgotPassword(context.Background(), "nobody@example.edu")
	assert.NoError(t, err)
	assert.False(t, emailSent)
}

func TestPasswordService_ForgotPassword_SendFailureIsSilent(t *testing.T) {
	account := activeAccount(t)
	accounts := &MockAccountRepository{
		GetByEmailFunc: func(ctx context.Context, email string) (*models.Account, error) {
			return account, nil
		},
		SetResetTokenFunc: func(ctx context.Context, id, tokenHash string, expires time.Time) error {
			return nil
		},
	}
	email := &MockEmailSender{
		SendPasswordResetEmailFunc: func(ctx context.Context, to, resetURL string) error {
			return errors.New("ses throttled")
		},
	}
	svc := newTestPasswordService(accounts, email)

	// A delivery error surfacing to the caller would reveal the email is
	// registered
	err := svc.ForgotPassword(context.Background(), "teacher@example.edu")
	assert.NoError(t, err)
}

// ============================================================================
// ResetPassword Tests
// ============================================================================

func TestPasswordService_ResetPassword(t *testing.T) {
	account := activeAccount(t)
	var capturedTokenHash string
	var persistedHash string
	accounts := &MockAccountRepository{
		GetByResetTokenHashFunc: func(ctx context.Context, tokenHash string) (*models.Account, error) {
			capturedTokenHash = tokenHash
			return account, nil
		},
		UpdatePasswordFunc: func(ctx context.Context, id, hash string, history []string, isDefault bool) error {
			persistedHash = hash
			return nil
		},
	}
	svc := newTestPasswordService(accounts, &MockEmailSender{})

	err := svc.ResetPassword(context.Background(), "raw-reset-token", newStrongPassword, "")
	require.NoError(t, err)

	// The lookup runs on the hash, never the raw token
	assert.NotEqual(t, "raw-reset-token", capturedTokenHash)
	assert.Len(t, capturedTokenHash, 64)
	assert.NoError(t, pkgauth.ComparePassword(persistedHash, newStrongPassword))
}

func TestPasswordService_ResetPassword_InvalidToken(t *testing.T) {
	svc := newTestPasswordService(&MockAccountRepository{}, &MockEmailSender{})

	err := svc.ResetPassword(context.Background(), "no-such-token", newStrongPassword, "")
	assert.ErrorIs(t, err, models.ErrResetTokenInvalid)
}

func TestPasswordService_ResetPassword_EmptyToken(t *testing.T) {
	accounts := &MockAccountRepository{
		GetByResetTokenHashFunc: func(ctx context.Context, tokenHash string) (*models.Account, error) {
			t.Fatal("an empty token must not reach the repository")
			return nil, nil
		},
	}
	svc := newTestPasswordService(accounts, &MockEmailSender{})

	err := svc.ResetPassword(context.Background(), "", newStrongPassword, "")
	assert.ErrorIs(t, err, models.ErrResetTokenInvalid)
}

func TestPasswordService_ResetPassword_RejectsReuse(t *testing.T) {
	account := activeAccount(t)
	accounts := &MockAccountRepository{
		GetByResetTokenHashFunc: func(ctx context.Context, tokenHash string) (*models.Account, error) {
			return account, nil
		},
	}
	svc := newTestPasswordService(accounts, &MockEmailSender{})

	err := svc.ResetPassword(context.Background(), "raw-reset-token", loginPassword, "")
	assert.ErrorIs(t, err, models.ErrPasswordReuse)
}
