package background

import (
	"context"
	"log/slog"
	"time"

	"github.com/stunity/identity/internal/repositories"
)

// stalePendingAge is how long an unverified two-factor enrollment may sit
// before it is swept.
const stalePendingAge = 24 * time.Hour

// CleanupManager periodically sweeps lapsed reset tokens, expired lockout
// windows, and abandoned two-factor enrollments.
type CleanupManager struct {
	accounts *repositories.AccountRepository
	secrets  *repositories.TwoFactorRepository
	logger   *slog.Logger
	interval time.Duration
	stopCh   chan struct{}
}

// NewCleanupManager creates a new cleanup manager
func NewCleanupManager(
	accounts *repositories.AccountRepository,
	secrets *repositories.TwoFactorRepository,
	logger *slog.Logger,
	interval time.Duration,
) *CleanupManager {
	return &CleanupManager{
		accounts: accounts,
		secrets:  secrets,
		logger:   logger,
		interval: interval,
		stopCh:   make(chan struct{}),
	}
}

// Start begins the periodic cleanup task
func (cm *CleanupManager) Start(ctx context.Context) {
	ticker := time.NewTicker(cm.interval)
	defer ticker.Stop()

	// Run immediately on startup
	cm.runCleanup(ctx)

	for {
		select {
		case <-ticker.C:
			cm.runCleanup(ctx)
		case <-cm.stopCh:
			cm.logger.Info("cleanup manager stopped")
			return
		case <-ctx.Done():
			cm.logger.Info("cleanup manager context cancelled")
			return
		}
	}
}

func (cm *CleanupManager) runCleanup(ctx context.Context) {
	cleanupCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	swept, err := cm.accounts.SweepExpired(cleanupCtx)
	if err != nil {
		cm.logger.Error("failed to sweep expired account state", slog.Any("error", err))
	} else if swept > 0 {
		cm.logger.Info("swept expired reset tokens and lockouts", slog.Int64("rows", swept))
	}

	stale, err := cm.secrets.DeleteStalePending(cleanupCtx, stalePendingAge)
	if err != nil {
		cm.logger.Error("failed to sweep stale 2fa enrollments", slog.Any("error", err))
	} else if stale > 0 {
		cm.logger.Info("swept stale 2fa enrollments", slog.Int64("rows", stale))
	}
}

// Stop signals the cleanup manager to stop
func (cm *CleanupManager) Stop() {
	close(cm.stopCh)
}
