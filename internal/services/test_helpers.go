package services

import (
	"context"
	"io"
	"log/slog"
	"time"

	"github.com/stunity/identity/internal/models"
	pkglogger "github.com/stunity/identity/pkg/logger"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(io.Discard, nil))
}

func testAuditLogger() *pkglogger.AuditLogger {
	return pkglogger.NewAuditLogger(testLogger())
}

// MockAccountRepository implements AccountRepository for testing
type MockAccountRepository struct {
	GetByIDFunc                 func(ctx context.Context, id string) (*models.Account, error)
	GetByEmailFunc              func(ctx context.Context, email string) (*models.Account, error)
	CreateFunc                  func(ctx context.Context, account *models.Account) (*models.Account, error)
	UpdateFunc                  func(ctx context.Context, account *models.Account) error
	IncrementFailedAttemptsFunc func(ctx context.Context, id string) (int, error)
	SetLockFunc                 func(ctx context.Context, id string, until time.Time) error
	ClearLockFunc               func(ctx context.Context, id string) error
	RecordLoginFunc             func(ctx context.Context, id string) error
	UpdatePasswordFunc          func(ctx context.Context, id, hash string, history []string, isDefault bool) error
	SetResetTokenFunc           func(ctx context.Context, id, tokenHash string, expires time.Time) error
	GetByResetTokenHashFunc     func(ctx context.Context, tokenHash string) (*models.Account, error)
}

func (m *MockAccountRepository) GetByID(ctx context.Context, id string) (*models.Account, error) {
	if m.GetByIDFunc != nil {
		return m.GetByIDFunc(ctx, id)
	}
	return nil, models.ErrNotFound
}

func (m *MockAccountRepository) GetByEmail(ctx context.Context, email string) (*models.Account, error) {
	if m.GetByEmailFunc != nil {
		return m.GetByEmailFunc(ctx, email)
	}
	return nil, models.ErrNotFound
}

func (m *MockAccountRepository) Create(ctx context.Context, account *models.Account) (*models.Account, error) {
	if m.CreateFunc != nil {
		return m.CreateFunc(ctx, account)
	}
	return account, nil
}

func (m *MockAccountRepository) Update(ctx context.Context, account *models.Account) error {
	if m.UpdateFunc != nil {
		return m.UpdateFunc(ctx, account)
	}
	return nil
}

func (m *MockAccountRepository) IncrementFailedAttempts(ctx context.Context, id string) (int, error) {
	if m.IncrementFailedAttemptsFunc != nil {
		return m.IncrementFailedAttemptsFunc(ctx, id)
	}
	return 1, nil
}

func (m *MockAccountRepository) SetLock(ctx context.Context, id string, until time.Time) error {
	if m.SetLockFunc != nil {
		return m.SetLockFunc(ctx, id, until)
	}
	return nil
}

func (m *MockAccountRepository) ClearLock(ctx context.Context, id string) error {
	if m.ClearLockFunc != nil {
		return m.ClearLockFunc(ctx, id)
	}
	return nil
}

func (m *MockAccountRepository) RecordLogin(ctx context.Context, id string) error {
	if m.RecordLoginFunc != nil {
		return m.RecordLoginFunc(ctx, id)
	}
	return nil
}

func (m *MockAccountRepository) UpdatePassword(ctx context.Context, id, hash string, history []string, isDefault bool) error {
	if m.UpdatePasswordFunc != nil {
		return m.UpdatePasswordFunc(ctx, id, hash, history, isDefault)
	}
	return nil
}

func (m *MockAccountRepository) SetResetToken(ctx context.Context, id, tokenHash string, expires time.Time) error {
	if m.SetResetTokenFunc != nil {
		return m.SetResetTokenFunc(ctx, id, tokenHash, expires)
	}
	return nil
}

func (m *MockAccountRepository) GetByResetTokenHash(ctx context.Context, tokenHash string) (*models.Account, error) {
	if m.GetByResetTokenHashFunc != nil {
		return m.GetByResetTokenHashFunc(ctx, tokenHash)
	}
	return nil, models.ErrNotFound
}

// MockTenantRepository implements TenantRepository for testing
type MockTenantRepository struct {
	GetByIDFunc func(ctx context.Context, id string) (*models.Tenant, error)
}

func (m *MockTenantRepository) GetByID(ctx context.Context, id string) (*models.Tenant, error) {
	if m.GetByIDFunc != nil {
		return m.GetByIDFunc(ctx, id)
	}
	return nil, models.ErrNotFound
}

// MockSocialAccountRepository implements SocialAccountRepository for testing
type MockSocialAccountRepository struct {
	GetByProviderIDFunc            func(ctx context.Context, provider, providerUserID string) (*models.SocialAccount, error)
	ListByAccountFunc              func(ctx context.Context, accountID string) ([]*models.SocialAccount, error)
	CreateFunc                     func(ctx context.Context, link *models.SocialAccount) (*models.SocialAccount, error)
	DeleteByAccountAndProviderFunc func(ctx context.Context, accountID, provider string) error
	CountByAccountFunc             func(ctx context.Context, accountID string) (int, error)
}

func (m *MockSocialAccountRepository) GetByProviderID(ctx context.Context, provider, providerUserID string) (*models.SocialAccount, error) {
	if m.GetByProviderIDFunc != nil {
		return m.GetByProviderIDFunc(ctx, provider, providerUserID)
	}
	return nil, models.ErrNotFound
}

func (m *MockSocialAccountRepository) ListByAccount(ctx context.Context, accountID string) ([]*models.SocialAccount, error) {
	if m.ListByAccountFunc != nil {
		return m.ListByAccountFunc(ctx, accountID)
	}
	return []*models.SocialAccount{}, nil
}

func (m *MockSocialAccountRepository) Create(ctx context.Context, link *models.SocialAccount) (*models.SocialAccount, error) {
	if m.CreateFunc != nil {
		return m.CreateFunc(ctx, link)
	}
	return link, nil
}

func (m *MockSocialAccountRepository) DeleteByAccountAndProvider(ctx context.Context, accountID, provider string) error {
	if m.DeleteByAccountAndProviderFunc != nil {
		return m.DeleteByAccountAndProviderFunc(ctx, accountID, provider)
	}
	return nil
}

func (m *MockSocialAccountRepository) CountByAccount(ctx context.Context, accountID string) (int, error) {
	if m.CountByAccountFunc != nil {
		return m.CountByAccountFunc(ctx, accountID)
	}
	return 0, nil
}

// MockTwoFactorRepository implements TwoFactorRepository for testing
type MockTwoFactorRepository struct {
	GetByAccountFunc      func(ctx context.Context, accountID string) (*models.TwoFactorSecret, error)
	UpsertPendingFunc     func(ctx context.Context, accountID string, encrypted, nonce []byte) error
	EnableFunc            func(ctx context.Context, accountID string, backupCodes []models.BackupCode) error
	UpdateBackupCodesFunc func(ctx context.Context, accountID string, backupCodes []models.BackupCode) error
	DeleteFunc            func(ctx context.Context, accountID string) error
}

func (m *MockTwoFactorRepository) GetByAccount(ctx context.Context, accountID string) (*models.TwoFactorSecret, error) {
	if m.GetByAccountFunc != nil {
		return m.GetByAccountFunc(ctx, accountID)
	}
	return nil, models.ErrNotFound
}

func (m *MockTwoFactorRepository) UpsertPending(ctx context.Context, accountID string, encrypted, nonce []byte) error {
	if m.UpsertPendingFunc != nil {
		return m.UpsertPendingFunc(ctx, accountID, encrypted, nonce)
	}
	return nil
}

func (m *MockTwoFactorRepository) Enable(ctx context.Context, accountID string, backupCodes []models.BackupCode) error {
	if m.EnableFunc != nil {
		return m.EnableFunc(ctx, accountID, backupCodes)
	}
	return nil
}

func (m *MockTwoFactorRepository) UpdateBackupCodes(ctx context.Context, accountID string, backupCodes []models.BackupCode) error {
	if m.UpdateBackupCodesFunc != nil {
		return m.UpdateBackupCodesFunc(ctx, accountID, backupCodes)
	}
	return nil
}

func (m *MockTwoFactorRepository) Delete(ctx context.Context, accountID string) error {
	if m.DeleteFunc != nil {
		return m.DeleteFunc(ctx, accountID)
	}
	return nil
}

// MockClaimCodeRepository implements ClaimCodeRepository for testing
type MockClaimCodeRepository struct {
	ConsumeFunc func(ctx context.Context, code, accountID string) (*models.ClaimCode, error)
}

func (m *MockClaimCodeRepository) Consume(ctx context.Context, code, accountID string) (*models.ClaimCode, error) {
	if m.ConsumeFunc != nil {
		return m.ConsumeFunc(ctx, code, accountID)
	}
	return nil, models.ErrClaimCodeInvalid
}

// MockEmailSender implements EmailSender for testing
type MockEmailSender struct {
	SendPasswordResetEmailFunc func(ctx context.Context, email, resetURL string) error
}

func (m *MockEmailSender) SendPasswordResetEmail(ctx context.Context, email, resetURL string) error {
	if m.SendPasswordResetEmailFunc != nil {
		return m.SendPasswordResetEmailFunc(ctx, email, resetURL)
	}
	return nil
}
