package services

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/stunity/identity/internal/models"
	pkgauth "github.com/stunity/identity/pkg/auth"
	pkglogger "github.com/stunity/identity/pkg/logger"
)

// resetTokenBytes is the entropy of a password reset token. Only the SHA-256
// of the token is stored.
const resetTokenBytes = 32

// PasswordService handles change, forgot, and reset flows under the password
// policy and reuse rules.
type PasswordService struct {
	accounts    AccountRepository
	email       EmailSender
	resetExpiry time.Duration
	resetURL    string
	logger      *slog.Logger
	auditLogger *pkglogger.AuditLogger
}

func NewPasswordService(
	accounts AccountRepository,
	email EmailSender,
	resetExpiry time.Duration,
	resetURLBase string,
	logger *slog.Logger,
	auditLogger *pkglogger.AuditLogger,
) *PasswordService {
	return &PasswordService{
		accounts:    accounts,
		email:       email,
		resetExpiry: resetExpiry,
		resetURL:    resetURLBase,
		logger:      logger,
		auditLogger: auditLogger,
	}
}

// ChangePassword rotates the password for an authenticated account. The
// current password must match, and the new one must pass policy and the
// reuse check.
func (s *PasswordService) ChangePassword(ctx context.Context, accountID, currentPassword, newPassword, clientIP string) error {
	account, err := s.accounts.GetByID(ctx, accountID)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return models.ErrNotFound
		}
		s.logger.Error("failed to load account for password change", slog.Any("error", err))
		return models.ErrInternalServer
	}

	if !account.HasPassword() || pkgauth.ComparePassword(account.PasswordHash, currentPassword) != nil {
		s.auditLogger.LogPasswordChange(accountID, clientIP, false)
		return models.ErrInvalidCredentials
	}

	if err := s.applyNewPassword(ctx, account, newPassword); err != nil {
		return err
	}

	s.auditLogger.LogPasswordChange(accountID, clientIP, true)
	return nil
}

// ForgotPassword starts the reset flow. The response is identical whether or
// not the email maps to an account, so the endpoint cannot be used to probe
// for registered addresses.
func (s *PasswordService) ForgotPassword(ctx context.Context, email string) error {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" {
		return nil
	}

	account, err := s.accounts.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			s.logger.Info("password reset requested for unknown email",
				slog.String("email", pkglogger.SanitizedEmail(email)))
			return nil
		}
		s.logger.Error("failed to load account for password reset", slog.Any("error", err))
		return models.ErrInternalServer
	}

	raw := make([]byte, resetTokenBytes)
	if _, err := rand.Read(raw); err != nil {
		s.logger.Error("failed to generate reset token", slog.Any("error", err))
		return models.ErrInternalServer
	}
	token := hex.EncodeToString(raw)

	if err := s.accounts.SetResetToken(ctx, account.ID, hashResetToken(token), time.Now().Add(s.resetExpiry)); err != nil {
		s.logger.Error("failed to store reset token", slog.Any("error", err))
		return models.ErrInternalServer
	}

	resetURL := s.resetURL + "?token=" + url.QueryEscape(token)
	if err := s.email.SendPasswordResetEmail(ctx, account.Email, resetURL); err != nil {
		// A surfaced delivery failure would confirm the email maps to an
		// account. Log it and answer like every other outcome.
		s.logger.Error("failed to send password reset email",
			slog.String("email", pkglogger.SanitizedEmail(account.Email)), slog.Any("error", err))
		return nil
	}

	s.logger.Info("password reset email sent",
		slog.String("account_id", account.ID),
		slog.String("email", pkglogger.SanitizedEmail(account.Email)))
	return nil
}

// ResetPassword finishes the reset flow. The token is valid once, within its
// expiry, and dies with the password change it performs.
func (s *PasswordService) ResetPassword(ctx context.Context, token, newPassword, clientIP string) error {
	if token == "" {
		return models.ErrResetTokenInvalid
	}

	account, err := s.accounts.GetByResetTokenHash(ctx, hashResetToken(token))
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return models.ErrResetTokenInvalid
		}
		s.logger.Error("failed to look up reset token", slog.Any("error", err))
		return models.ErrInternalServer
	}

	if err := s.applyNewPassword(ctx, account, newPassword); err != nil {
		s.auditLogger.LogPasswordChange(account.ID, clientIP, false)
		return err
	}

	s.auditLogger.LogPasswordChange(account.ID, clientIP, true)
	return nil
}

// applyNewPassword runs policy and reuse checks, then persists the new hash
// with the bounded history. UpdatePassword also clears reset and lockout
// state and stamps password_changed_at, which invalidates outstanding
// tokens.
func (s *PasswordService) applyNewPassword(ctx context.Context, account *models.Account, newPassword string) error {
	if err := pkgauth.ValidatePassword(newPassword); err != nil {
		return err
	}

	if pkgauth.IsPasswordReused(newPassword, account.PasswordHash, account.PasswordHistory) {
		return models.ErrPasswordReuse
	}

	hash, err := pkgauth.HashPassword(newPassword)
	if err != nil {
		s.logger.Error("failed to hash new password", slog.Any("error", err))
		return models.ErrInternalServer
	}

	account.PushPasswordHistory()
	if err := s.accounts.UpdatePassword(ctx, account.ID, hash, account.PasswordHistory, false); err != nil {
		s.logger.Error("failed to persist new password", slog.Any("error", err))
		return models.ErrInternalServer
	}
	return nil
}

func hashResetToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}
