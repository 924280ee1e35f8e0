package services

import (
	"context"
	"time"

	"github.com/stunity/identity/internal/models"
)

// AccountRepository defines the persistence operations services need for
// accounts.
type AccountRepository interface {
	GetByID(ctx context.Context, id string) (*models.Account, error)
	GetByEmail(ctx context.Context, email string) (*models.Account, error)
	Create(ctx context.Context, account *models.Account) (*models.Account, error)
	Update(ctx context.Context, account *models.Account) error
	IncrementFailedAttempts(ctx context.Context, id string) (int, error)
	SetLock(ctx context.Context, id string, until time.Time) error
	ClearLock(ctx context.Context, id string) error
	RecordLogin(ctx context.Context, id string) error
	UpdatePassword(ctx context.Context, id, hash string, history []string, isDefault bool) error
	SetResetToken(ctx context.Context, id, tokenHash string, expires time.Time) error
	GetByResetTokenHash(ctx context.Context, tokenHash string) (*models.Account, error)
}

// TenantRepository loads tenants for state checks during login.
type TenantRepository interface {
	GetByID(ctx context.Context, id string) (*models.Tenant, error)
}

// SocialAccountRepository defines the persistence operations for identity
// links.
type SocialAccountRepository interface {
	GetByProviderID(ctx context.Context, provider, providerUserID string) (*models.SocialAccount, error)
	ListByAccount(ctx context.Context, accountID string) ([]*models.SocialAccount, error)
	Create(ctx context.Context, link *models.SocialAccount) (*models.SocialAccount, error)
	DeleteByAccountAndProvider(ctx context.Context, accountID, provider string) error
	CountByAccount(ctx context.Context, accountID string) (int, error)
}

// TwoFactorRepository defines the persistence operations for TOTP
// enrollments.
type TwoFactorRepository interface {
	GetByAccount(ctx context.Context, accountID string) (*models.TwoFactorSecret, error)
	UpsertPending(ctx context.Context, accountID string, encrypted, nonce []byte) error
	Enable(ctx context.Context, accountID string, backupCodes []models.BackupCode) error
	UpdateBackupCodes(ctx context.Context, accountID string, backupCodes []models.BackupCode) error
	Delete(ctx context.Context, accountID string) error
}

// ClaimCodeRepository consumes tenant claim codes during federated sign-up.
type ClaimCodeRepository interface {
	Consume(ctx context.Context, code, accountID string) (*models.ClaimCode, error)
}

// EmailSender delivers password reset links.
type EmailSender interface {
	SendPasswordResetEmail(ctx context.Context, email, resetURL string) error
}
