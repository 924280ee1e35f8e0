package services

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/stunity/identity/internal/auth"
	"github.com/stunity/identity/internal/models"
	pkglogger "github.com/stunity/identity/pkg/logger"
)

// backupCodeBcryptCost is lower than the password cost: verifying a login may
// scan up to ten hashes, and the codes are high-entropy random strings.
const backupCodeBcryptCost = bcrypt.DefaultCost

// TwoFactorService manages TOTP enrollment and verification.
type TwoFactorService struct {
	secrets     TwoFactorRepository
	accounts    AccountRepository
	totp        *auth.TOTPManager
	logger      *slog.Logger
	auditLogger *pkglogger.AuditLogger
}

func NewTwoFactorService(
	secrets TwoFactorRepository,
	accounts AccountRepository,
	totp *auth.TOTPManager,
	logger *slog.Logger,
	auditLogger *pkglogger.AuditLogger,
) *TwoFactorService {
	return &TwoFactorService{
		secrets:     secrets,
		accounts:    accounts,
		totp:        totp,
		logger:      logger,
		auditLogger: auditLogger,
	}
}

// TwoFactorSetup is returned from BeginSetup for the authenticator app.
type TwoFactorSetup struct {
	Secret    string `json:"secret"`
	QRCodeURL string `json:"qr_code_url"`
}

// TwoFactorStatus reports an account's enrollment state.
type TwoFactorStatus struct {
	Enabled              bool       `json:"enabled"`
	VerifiedAt           *time.Time `json:"verified_at,omitempty"`
	RemainingBackupCodes int        `json:"remaining_backup_codes"`
}

// BeginSetup generates a secret and stores it pending verification.
// Enrollment only becomes active once CompleteSetup proves the authenticator
// has the secret.
func (s *TwoFactorService) BeginSetup(ctx context.Context, accountID string) (*TwoFactorSetup, error) {
	account, err := s.accounts.GetByID(ctx, accountID)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return nil, models.ErrNotFound
		}
		s.logger.Error("failed to load account for 2fa setup", slog.Any("error", err))
		return nil, models.ErrInternalServer
	}

	encrypted, nonce, secret, qrDataURL, err := s.totp.GenerateSecretWithQR(account.Email)
	if err != nil {
		s.logger.Error("failed to generate totp secret", slog.Any("error", err))
		return nil, models.ErrInternalServer
	}

	if err := s.secrets.UpsertPending(ctx, accountID, encrypted, nonce); err != nil {
		if errors.Is(err, models.ErrTwoFactorAlreadyEnabled) {
			return nil, err
		}
		s.logger.Error("failed to store pending 2fa secret", slog.Any("error", err))
		return nil, models.ErrInternalServer
	}

	return &TwoFactorSetup{Secret: secret, QRCodeURL: qrDataURL}, nil
}

// CompleteSetup verifies the first code from the authenticator and enables
// enrollment. The plaintext backup codes are returned exactly once.
func (s *TwoFactorService) CompleteSetup(ctx context.Context, accountID, code string) ([]string, error) {
	enrollment, err := s.secrets.GetByAccount(ctx, accountID)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return nil, models.ErrTwoFactorNotEnabled
		}
		s.logger.Error("failed to load 2fa enrollment", slog.Any("error", err))
		return nil, models.ErrInternalServer
	}
	if enrollment.Enabled {
		return nil, models.ErrTwoFactorAlreadyEnabled
	}

	secret, err := s.decryptSecret(enrollment)
	if err != nil {
		return nil, err
	}
	if !s.totp.ValidateCode(secret, code) {
		s.auditLogger.LogTwoFactor(accountID, "2fa_setup_verify", false)
		return nil, models.ErrInvalidTwoFactorCode
	}

	codes, hashed, err := s.newBackupCodes()
	if err != nil {
		return nil, err
	}

	if err := s.secrets.Enable(ctx, accountID, hashed); err != nil {
		s.logger.Error("failed to enable 2fa", slog.Any("error", err))
		return nil, models.ErrInternalServer
	}

	s.auditLogger.LogTwoFactor(accountID, "2fa_enabled", true)
	return codes, nil
}

// Enabled reports whether an account has an active enrollment.
func (s *TwoFactorService) Enabled(ctx context.Context, accountID string) (bool, error) {
	enrollment, err := s.secrets.GetByAccount(ctx, accountID)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return false, nil
		}
		return false, err
	}
	return enrollment.Enabled, nil
}

// Status returns the enrollment state including how many backup codes
// remain.
func (s *TwoFactorService) Status(ctx context.Context, accountID string) (*TwoFactorStatus, error) {
	enrollment, err := s.secrets.GetByAccount(ctx, accountID)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return &TwoFactorStatus{}, nil
		}
		s.logger.Error("failed to load 2fa status", slog.Any("error", err))
		return nil, models.ErrInternalServer
	}

	return &TwoFactorStatus{
		Enabled:              enrollment.Enabled,
		VerifiedAt:           enrollment.VerifiedAt,
		RemainingBackupCodes: enrollment.RemainingBackupCodes(),
	}, nil
}

// VerifyLoginCode accepts either a current TOTP code or an unused backup
// code. A backup code match consumes the code.
func (s *TwoFactorService) VerifyLoginCode(ctx context.Context, accountID, code string) error {
	enrollment, err := s.secrets.GetByAccount(ctx, accountID)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return models.ErrTwoFactorNotEnabled
		}
		s.logger.Error("failed to load 2fa enrollment", slog.Any("error", err))
		return models.ErrInternalServer
	}
	if !enrollment.Enabled {
		return models.ErrTwoFactorNotEnabled
	}

	secret, err := s.decryptSecret(enrollment)
	if err != nil {
		return err
	}
	if s.totp.ValidateCode(secret, code) {
		return nil
	}

	if s.consumeBackupCode(ctx, enrollment, code) {
		return nil
	}

	return models.ErrInvalidTwoFactorCode
}

// verifyTOTP checks a current authenticator code against the active
// enrollment. Backup codes are not accepted here; they only cover login.
func (s *TwoFactorService) verifyTOTP(ctx context.Context, accountID, code string) error {
	enrollment, err := s.secrets.GetByAccount(ctx, accountID)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return models.ErrTwoFactorNotEnabled
		}
		s.logger.Error("failed to load 2fa enrollment", slog.Any("error", err))
		return models.ErrInternalServer
	}
	if !enrollment.Enabled {
		return models.ErrTwoFactorNotEnabled
	}

	secret, err := s.decryptSecret(enrollment)
	if err != nil {
		return err
	}
	if !s.totp.ValidateCode(secret, code) {
		return models.ErrInvalidTwoFactorCode
	}
	return nil
}

// Disable removes the enrollment after a current authenticator code confirms
// possession of the second factor.
func (s *TwoFactorService) Disable(ctx context.Context, accountID, code string) error {
	if err := s.verifyTOTP(ctx, accountID, code); err != nil {
		s.auditLogger.LogTwoFactor(accountID, "2fa_disable", false)
		return err
	}

	if err := s.secrets.Delete(ctx, accountID); err != nil {
		s.logger.Error("failed to delete 2fa enrollment", slog.Any("error", err))
		return models.ErrInternalServer
	}

	s.auditLogger.LogTwoFactor(accountID, "2fa_disabled", true)
	return nil
}

// RegenerateBackupCodes replaces the backup code set after a current
// authenticator code confirms possession of the second factor. All previous
// codes are voided.
func (s *TwoFactorService) RegenerateBackupCodes(ctx context.Context, accountID, code string) ([]string, error) {
	if err := s.verifyTOTP(ctx, accountID, code); err != nil {
		return nil, err
	}

	codes, hashed, err := s.newBackupCodes()
	if err != nil {
		return nil, err
	}

	if err := s.secrets.UpdateBackupCodes(ctx, accountID, hashed); err != nil {
		s.logger.Error("failed to replace backup codes", slog.Any("error", err))
		return nil, models.ErrInternalServer
	}

	s.auditLogger.LogTwoFactor(accountID, "2fa_backup_codes_regenerated", true)
	return codes, nil
}

func (s *TwoFactorService) decryptSecret(enrollment *models.TwoFactorSecret) (string, error) {
	plaintext, err := s.totp.DecryptSecret(enrollment.SecretEncrypted, enrollment.Nonce)
	if err != nil {
		s.logger.Error("failed to decrypt totp secret",
			slog.String("account_id", enrollment.AccountID), slog.Any("error", err))
		return "", models.ErrInternalServer
	}
	return string(plaintext), nil
}

func (s *TwoFactorService) newBackupCodes() ([]string, []models.BackupCode, error) {
	codes, err := s.totp.GenerateBackupCodes()
	if err != nil {
		s.logger.Error("failed to generate backup codes", slog.Any("error", err))
		return nil, nil, models.ErrInternalServer
	}

	hashed := make([]models.BackupCode, 0, len(codes))
	for _, code := range codes {
		hash, err := bcrypt.GenerateFromPassword([]byte(code), backupCodeBcryptCost)
		if err != nil {
			s.logger.Error("failed to hash backup code", slog.Any("error", err))
			return nil, nil, models.ErrInternalServer
		}
		hashed = append(hashed, models.BackupCode{Hash: string(hash)})
	}
	return codes, hashed, nil
}

// consumeBackupCode checks the submitted code against unused backup codes
// and marks the match as spent.
func (s *TwoFactorService) consumeBackupCode(ctx context.Context, enrollment *models.TwoFactorSecret, code string) bool {
	normalized := strings.ToUpper(strings.TrimSpace(code))
	if len(normalized) != 8 {
		return false
	}

	for i := range enrollment.BackupCodes {
		entry := &enrollment.BackupCodes[i]
		if entry.UsedAt != nil {
			continue
		}
		if bcrypt.CompareHashAndPassword([]byte(entry.Hash), []byte(normalized)) != nil {
			continue
		}

		now := time.Now()
		entry.UsedAt = &now
		if err := s.secrets.UpdateBackupCodes(ctx, enrollment.AccountID, enrollment.BackupCodes); err != nil {
			s.logger.Error("failed to mark backup code used",
				slog.String("account_id", enrollment.AccountID), slog.Any("error", err))
			// The code must not be accepted if it cannot be spent
			return false
		}

		s.auditLogger.LogTwoFactor(enrollment.AccountID, "2fa_backup_code_used", true)
		return true
	}
	return false
}
