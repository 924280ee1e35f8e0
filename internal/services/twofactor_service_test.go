package services

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/pquerna/otp/totp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/stunity/identity/internal/auth"
	"github.com/stunity/identity/internal/models"
)

func newTestTwoFactorService(t *testing.T, secrets *MockTwoFactorRepository, accounts *MockAccountRepository) *TwoFactorService {
	t.Helper()
	totpManager, err := auth.NewTOTPManager(bytes.Repeat([]byte{0x42}, 32), "Stunity")
	require.NoError(t, err)
	return NewTwoFactorService(secrets, accounts, totpManager, testLogger(), testAuditLogger())
}

// enrolledSecret builds an enabled enrollment whose secret is known to the
// test, so current TOTP codes can be generated against it.
func enrolledSecret(t *testing.T, svc *TwoFactorService, enabled bool) (*models.TwoFactorSecret, string) {
	t.Helper()
	key, err := totp.Generate(totp.GenerateOpts{
		Issuer:      "Stunity",
		AccountName: "student@example.edu",
		SecretSize:  32,
	})
	require.NoError(t, err)
	secret := key.Secret()

	encrypted, nonce, err := svc.totp.EncryptSecret([]byte(secret))
	require.NoError(t, err)

	return &models.TwoFactorSecret{
		AccountID:       "account-1",
		SecretEncrypted: encrypted,
		Nonce:           nonce,
		Enabled:         enabled,
	}, secret
}

func currentCode(t *testing.T, secret string) string {
	t.Helper()
	code, err := totp.GenerateCode(secret, time.Now())
	require.NoError(t, err)
	return code
}

// ============================================================================
// Enrollment Tests
// ============================================================================

func TestTwoFactorService_BeginSetup(t *testing.T) {
	var storedEncrypted, storedNonce []byte
	secrets := &MockTwoFactorRepository{
		UpsertPendingFunc: func(ctx context.Context, accountID string, encrypted, nonce []byte) error {
			storedEncrypted, storedNonce = encrypted, nonce
			return nil
		},
	}
	accounts := &MockAccountRepository{
		GetByIDFunc: func(ctx context.Context, id string) (*models.Account, error) {
			return &models.Account{ID: id, Email: "student@example.edu", Active: true}, nil
		},
	}
	svc := newTestTwoFactorService(t, secrets, accounts)

	setup, err := svc.BeginSetup(context.Background(), "account-1")
	require.NoError(t, err)
	assert.NotEmpty(t, setup.Secret)
	assert.Contains(t, setup.QRCodeURL, "data:image/png;base64,")

	// The stored ciphertext decrypts back to the secret handed to the user
	plaintext, err := svc.totp.DecryptSecret(storedEncrypted, storedNonce)
	require.NoError(t, err)
	assert.Equal(t, setup.Secret, string(plaintext))
}

func TestTwoFactorService_BeginSetup_AlreadyEnabled(t *testing.T) {
	secrets := &MockTwoFactorRepository{
		UpsertPendingFunc: func(ctx context.Context, accountID string, encrypted, nonce []byte) error {
			return models.ErrTwoFactorAlreadyEnabled
		},
	}
	accounts := &MockAccountRepository{
		GetByIDFunc: func(ctx context.Context, id string) (*models.Account, error) {
			return &models.Account{ID: id, Email: "student@example.edu", Active: true}, nil
		},
	}
	svc := newTestTwoFactorService(t, secrets, accounts)

	_, err := svc.BeginSetup(context.Background(), "account-1")
	assert.ErrorIs(t, err, models.ErrTwoFactorAlreadyEnabled)
}

func TestTwoFactorService_CompleteSetup(t *testing.T) {
	svc := newTestTwoFactorService(t, nil, &MockAccountRepository{})
	enrollment, secret := enrolledSecret(t, svc, false)

	var enabledCodes []models.BackupCode
	secrets := &MockTwoFactorRepository{
		GetByAccountFunc: func(ctx context.Context, accountID string) (*models.TwoFactorSecret, error) {
			return enrollment, nil
		},
		EnableFunc: func(ctx context.Context, accountID string, backupCodes []models.BackupCode) error {
			enabledCodes = backupCodes
			return nil
		},
	}
	svc.secrets = secrets

	codes, err := svc.CompleteSetup(context.Background(), "account-1", currentCode(t, secret))
	require.NoError(t, err)
	require.Len(t, codes, models.BackupCodeCount)
	require.Len(t, enabledCodes, models.BackupCodeCount)

	// Stored hashes match the plaintext codes handed back to the user
	for i, code := range codes {
		assert.NoError(t, bcrypt.CompareHashAndPassword([]byte(enabledCodes[i].Hash), []byte(code)))
		assert.Nil(t, enabledCodes[i].UsedAt)
	}
}

func TestTwoFactorService_CompleteSetup_WrongCode(t *testing.T) {
	svc := newTestTwoFactorService(t, nil, &MockAccountRepository{})
	enrollment, _ := enrolledSecret(t, svc, false)
	svc.secrets = &MockTwoFactorRepository{
		GetByAccountFunc: func(ctx context.Context, accountID string) (*models.TwoFactorSecret, error) {
			return enrollment, nil
		},
	}

	_, err := svc.CompleteSetup(context.Background(), "account-1", "000000")
	assert.ErrorIs(t, err, models.ErrInvalidTwoFactorCode)
}

func TestTwoFactorService_CompleteSetup_NoPendingEnrollment(t *testing.T) {
	svc := newTestTwoFactorService(t, &MockTwoFactorRepository{}, &MockAccountRepository{})

	_, err := svc.CompleteSetup(context.Background(), "account-1", "123456")
	assert.ErrorIs(t, err, models.ErrTwoFactorNotEnabled)
}

func TestTwoFactorService_CompleteSetup_AlreadyEnabled(t *testing.T) {
	svc := newTestTwoFactorService(t, nil, &MockAccountRepository{})
	enrollment, secret := enrolledSecret(t, svc, true)
	svc.secrets = &MockTwoFactorRepository{
		GetByAccountFunc: func(ctx context.Context, accountID string) (*models.TwoFactorSecret, error) {
			return enrollment, nil
		},
	}

	_, err := svc.CompleteSetup(context.Background(), "account-1", currentCode(t, secret))
	assert.ErrorIs(t, err, models.ErrTwoFactorAlreadyEnabled)
}

// ============================================================================
// Verification Tests
// ============================================================================

func TestTwoFactorService_VerifyLoginCode_TOTP(t *testing.T) {
	svc := newTestTwoFactorService(t, nil, &MockAccountRepository{})
	enrollment, secret := enrolledSecret(t, svc, true)
	svc.secrets = &MockTwoFactorRepository{
		GetByAccountFunc: func(ctx context.Context, accountID string) (*models.TwoFactorSecret, error) {
			return enrollment, nil
		},
	}

	assert.NoError(t, svc.VerifyLoginCode(context.Background(), "account-1", currentCode(t, secret)))
	assert.ErrorIs(t, svc.VerifyLoginCode(context.Background(), "account-1", "999999"), models.ErrInvalidTwoFactorCode)
}

func TestTwoFactorService_VerifyLoginCode_NotEnrolled(t *testing.T) {
	svc := newTestTwoFactorService(t, &MockTwoFactorRepository{}, &MockAccountRepository{})

	err := svc.VerifyLoginCode(context.Background(), "account-1", "123456")
	assert.ErrorIs(t, err, models.ErrTwoFactorNotEnabled)
}

func TestTwoFactorService_VerifyLoginCode_PendingEnrollmentRejected(t *testing.T) {
	svc := newTestTwoFactorService(t, nil, &MockAccountRepository{})
	enrollment, secret := enrolledSecret(t, svc, false)
	svc.secrets = &MockTwoFactorRepository{
		GetByAccountFunc: func(ctx context.Context, accountID string) (*models.TwoFactorSecret, error) {
			return enrollment, nil
		},
	}

	err := svc.VerifyLoginCode(context.Background(), "account-1", currentCode(t, secret))
	assert.ErrorIs(t, err, models.ErrTwoFactorNotEnabled)
}

func TestTwoFactorService_VerifyLoginCode_BackupCode(t *testing.T) {
	svc := newTestTwoFactorService(t, nil, &MockAccountRepository{})
	enrollment, _ := enrolledSecret(t, svc, true)

	hash, err := bcrypt.GenerateFromPassword([]byte("A1B2C3D4"), backupCodeBcryptCost)
	require.NoError(t, err)
	enrollment.BackupCodes = []models.BackupCode{{Hash: string(hash)}}

	updated := false
	svc.secrets = &MockTwoFactorRepository{
		GetByAccountFunc: func(ctx context.Context, accountID string) (*models.TwoFactorSecret, error) {
			return enrollment, nil
		},
		UpdateBackupCodesFunc: func(ctx context.Context, accountID string, backupCodes []models.BackupCode) error {
			updated = true
			return nil
		},
	}

	// Lowercase input with whitespace still matches, and the code is spent
	require.NoError(t, svc.VerifyLoginCode(context.Background(), "account-1", " a1b2c3d4 "))
	assert.True(t, updated)
	require.NotNil(t, enrollment.BackupCodes[0].UsedAt)

	// A spent code is single-use
	err = svc.VerifyLoginCode(context.Background(), "account-1", "A1B2C3D4")
	assert.ErrorIs(t, err, models.ErrInvalidTwoFactorCode)
}

func TestTwoFactorService_VerifyLoginCode_BackupCodeNotSpentOnPersistFailure(t *testing.T) {
	svc := newTestTwoFactorService(t, nil, &MockAccountRepository{})
	enrollment, _ := enrolledSecret(t, svc, true)

	hash, err := bcrypt.GenerateFromPassword([]byte("A1B2C3D4"), backupCodeBcryptCost)
	require.NoError(t, err)
	enrollment.BackupCodes = []models.BackupCode{{Hash: string(hash)}}

	svc.secrets = &MockTwoFactorRepository{
		GetByAccountFunc: func(ctx context.Context, accountID string) (*models.TwoFactorSecret, error) {
			return enrollment, nil
		},
		UpdateBackupCodesFunc: func(ctx context.Context, accountID string, backupCodes []models.BackupCode) error {
			return models.ErrInternalServer
		},
	}

	err = svc.VerifyLoginCode(context.Background(), "account-1", "A1B2C3D4")
	assert.ErrorIs(t, err, models.ErrInvalidTwoFactorCode)
}

// ============================================================================
// Status, Disable and Backup Code Rotation Tests
// ============================================================================

func TestTwoFactorService_Status(t *testing.T) {
	svc := newTestTwoFactorService(t, nil, &MockAccountRepository{})
	enrollment, _ := enrolledSecret(t, svc, true)
	verifiedAt := time.Now().Add(-24 * time.Hour)
	enrollment.VerifiedAt = &verifiedAt
	used := time.Now()
	enrollment.BackupCodes = []models.BackupCode{
		{Hash: "x"}, {Hash: "y", UsedAt: &used}, {Hash: "z"},
	}
	svc.secrets = &MockTwoFactorRepository{
		GetByAccountFunc: func(ctx context.Context, accountID string) (*models.TwoFactorSecret, error) {
			return enrollment, nil
		},
	}

	status, err := svc.Status(context.Background(), "account-1")
	require.NoError(t, err)
	assert.True(t, status.Enabled)
	assert.Equal(t, 2, status.RemainingBackupCodes)
}

func TestTwoFactorService_Status_NotEnrolled(t *testing.T) {
	svc := newTestTwoFactorService(t, &MockTwoFactorRepository{}, &MockAccountRepository{})

	status, err := svc.Status(context.Background(), "account-1")
	require.NoError(t, err)
	assert.False(t, status.Enabled)
	assert.Zero(t, status.RemainingBackupCodes)
}

func TestTwoFactorService_Disable(t *testing.T) {
	svc := newTestTwoFactorService(t, nil, &MockAccountRepository{})
	enrollment, secret := enrolledSecret(t, svc, true)

	deleted := false
	svc.secrets = &MockTwoFactorRepository{
		GetByAccountFunc: func(ctx context.Context, accountID string) (*models.TwoFactorSecret, error) {
			return enrollment, nil
		},
		DeleteFunc: func(ctx context.Context, accountID string) error {
			deleted = true
			return nil
		},
	}

	// Wrong code leaves the enrollment in place
	err := svc.Disable(context.Background(), "account-1", "000000")
	assert.ErrorIs(t, err, models.ErrInvalidTwoFactorCode)
	assert.False(t, deleted)

	require.NoError(t, svc.Disable(context.Background(), "account-1", currentCode(t, secret)))
	assert.True(t, deleted)
}

func TestTwoFactorService_RegenerateBackupCodes(t *testing.T) {
	svc := newTestTwoFactorService(t, nil, &MockAccountRepository{})
	enrollment, secret := enrolledSecret(t, svc, true)

	var replaced []models.BackupCode
	svc.secrets = &MockTwoFactorRepository{
		GetByAccountFunc: func(ctx context.Context, accountID string) (*models.TwoFactorSecret, error) {
			return enrollment, nil
		},
		UpdateBackupCodesFunc: func(ctx context.Context, accountID string, backupCodes []models.BackupCode) error {
			replaced = backupCodes
			return nil
		},
	}

	codes, err := svc.RegenerateBackupCodes(context.Background(), "account-1", currentCode(t, secret))
	require.NoError(t, err)
	assert.Len(t, codes, models.BackupCodeCount)
	assert.Len(t, replaced, models.BackupCodeCount)
}

func TestTwoFactorService_Disable_BackupCodeRejected(t *testing.T) {
	svc := newTestTwoFactorService(t, nil, &MockAccountRepository{})
	enrollment, _ := enrolledSecret(t, svc, true)

	hash, err := bcrypt.GenerateFromPassword([]byte("A1B2C3D4"), backupCodeBcryptCost)
	require.NoError(t, err)
	enrollment.BackupCodes = []models.BackupCode{{Hash: string(hash)}}

	deleted := false
	svc.secrets = &MockTwoFactorRepository{
		GetByAccountFunc: func(ctx context.Context, accountID string) (*models.TwoFactorSecret, error) {
			return enrollment, nil
		},
		DeleteFunc: func(ctx context.Context, accountID string) error {
			deleted = true
			return nil
		},
	}

	// Only a current authenticator code can tear down the enrollment, and
	// the backup code is not spent by the attempt.
	err = svc.Disable(context.Background(), "account-1", "A1B2C3D4")
	assert.ErrorIs(t, err, models.ErrInvalidTwoFactorCode)
	assert.False(t, deleted)
	assert.Nil(t, enrollment.BackupCodes[0].UsedAt)
}

func TestTwoFactorService_RegenerateBackupCodes_BackupCodeRejected(t *testing.T) {
	svc := newTestTwoFactorService(t, nil, &MockAccountRepository{})
	enrollment, _ := enrolledSecret(t, svc, true)

	hash, err := bcrypt.GenerateFromPassword([]byte("A1B2C3D4"), backupCodeBcryptCost)
	require.NoError(t, err)
	enrollment.BackupCodes = []models.BackupCode{{Hash: string(hash)}}

	svc.secrets = &MockTwoFactorRepository{
		GetByAccountFunc: func(ctx context.Context, accountID string) (*models.TwoFactorSecret, error) {
			return enrollment, nil
		},
		UpdateBackupCodesFunc: func(ctx context.Context, accountID string, backupCodes []models.BackupCode) error {
			t.Fatal("a backup code must not rotate the backup code set")
			return nil
		},
	}

	_, err = svc.RegenerateBackupCodes(context.Background(), "account-1", "A1B2C3D4")
	assert.ErrorIs(t, err, models.ErrInvalidTwoFactorCode)
}
