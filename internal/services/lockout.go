package services

import (
	"context"
	"log/slog"
	"time"

	"github.com/stunity/identity/internal/models"
	pkglogger "github.com/stunity/identity/pkg/logger"
)

// Lockout escalation thresholds. The counter is cumulative until a
// successful login resets it, so repeated failures after a window expires
// escalate rather than start over.
const (
	lockoutThresholdShort  = 5
	lockoutThresholdMedium = 10
	lockoutThresholdLong   = 15

	lockoutWindowShort  = 15 * time.Minute
	lockoutWindowMedium = 60 * time.Minute
	lockoutWindowLong   = 24 * time.Hour
)

// LockoutGuard enforces brute-force protection around password logins.
type LockoutGuard struct {
	accounts    AccountRepository
	logger      *slog.Logger
	auditLogger *pkglogger.AuditLogger
}

func NewLockoutGuard(accounts AccountRepository, logger *slog.Logger, auditLogger *pkglogger.AuditLogger) *LockoutGuard {
	return &LockoutGuard{
		accounts:    accounts,
		logger:      logger,
		auditLogger: auditLogger,
	}
}

// CheckLock rejects the attempt when the account is under an active lockout
// window. An expired window is cleared but the failure counter is kept, so
// the next failure escalates.
func (g *LockoutGuard) CheckLock(ctx context.Context, account *models.Account) error {
	if account.LockedUntil == nil {
		return nil
	}

	now := time.Now()
	if account.LockedUntil.After(now) {
		return &models.AccountLockedError{RetryAfter: account.LockedUntil.Sub(now)}
	}

	if err := g.accounts.ClearLock(ctx, account.ID); err != nil {
		g.logger.Error("failed to clear expired lock",
			slog.String("account_id", account.ID), slog.Any("error", err))
		return models.ErrInternalServer
	}
	account.LockedUntil = nil
	return nil
}

// RecordFailure bumps the cumulative failure counter and applies the
// escalating lockout window when a threshold is reached.
func (g *LockoutGuard) RecordFailure(ctx context.Context, account *models.Account) error {
	attempts, err := g.accounts.IncrementFailedAttempts(ctx, account.ID)
	if err != nil {
		g.logger.Error("failed to record login failure",
			slog.String("account_id", account.ID), slog.Any("error", err))
		return models.ErrInternalServer
	}
	account.FailedAttempts = attempts

	window := lockoutWindow(attempts)
	if window == 0 {
		return nil
	}

	until := time.Now().Add(window)
	if err := g.accounts.SetLock(ctx, account.ID, until); err != nil {
		g.logger.Error("failed to set lockout window",
			slog.String("account_id", account.ID), slog.Any("error", err))
		return models.ErrInternalServer
	}
	account.LockedUntil = &until

	g.auditLogger.LogLockout(account.ID, attempts, until)
	return nil
}

// RecordSuccess resets the brute-force state and stamps login stats.
func (g *LockoutGuard) RecordSuccess(ctx context.Context, account *models.Account) error {
	if err := g.accounts.RecordLogin(ctx, account.ID); err != nil {
		g.logger.Error("failed to record successful login",
			slog.String("account_id", account.ID), slog.Any("error", err))
		return models.ErrInternalServer
	}
	account.FailedAttempts = 0
	account.LockedUntil = nil
	return nil
}

// lockoutWindow maps a cumulative failure count to its lockout duration.
// Below the first threshold no lock is applied.
func lockoutWindow(attempts int) time.Duration {
	switch {
	case attempts >= lockoutThresholdLong:
		return lockoutWindowLong
	case attempts >= lockoutThresholdMedium:
		return lockoutWindowMedium
	case attempts >= lockoutThresholdShort:
		return lockoutWindowShort
	}
	return 0
}
