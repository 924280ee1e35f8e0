package repositories

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/stunity/identity/internal/database"
	"github.com/stunity/identity/internal/models"
)

type TwoFactorRepository struct {
	db *database.DB
}

func NewTwoFactorRepository(db *database.DB) *TwoFactorRepository {
	return &TwoFactorRepository{db: db}
}

func (r *TwoFactorRepository) GetByAccount(ctx context.Context, accountID string) (*models.TwoFactorSecret, error) {
	query := `
		SELECT account_id, secret_encrypted, nonce, enabled, verified_at, backup_codes, created_at, updated_at
		FROM two_factor_secrets
		WHERE account_id = $1
	`
	var secret models.TwoFactorSecret
	var backupCodesJSON []byte

	err := r.db.Pool.QueryRow(ctx, query, accountID).Scan(
		&secret.AccountID, &secret.SecretEncrypted, &secret.Nonce,
		&secret.Enabled, &secret.VerifiedAt, &backupCodesJSON,
		&secret.CreatedAt, &secret.UpdatedAt,
	)
	if err != nil {
		return nil, database.MapPostgresError(err)
	}

	if len(backupCodesJSON) > 0 {
		if err := json.Unmarshal(backupCodesJSON, &secret.BackupCodes); err != nil {
			return nil, fmt.Errorf("failed to decode backup codes: %w", err)
		}
	}
	return &secret, nil
}

// UpsertPending stores a freshly generated secret for an account whose
// enrollment is not yet verified. Re-running setup replaces the pending
// secret; an enabled enrollment is never overwritten here.
func (r *TwoFactorRepository) UpsertPending(ctx context.Context, accountID string, encrypted, nonce []byte) error {
	query := `
		INSERT INTO two_factor_secrets (account_id, secret_encrypted, nonce, enabled, created_at, updated_at)
		VALUES ($1, $2, $3, FALSE, now(), now())
		ON CONFLICT (account_id) DO UPDATE
		SET secret_encrypted = EXCLUDED.secret_encrypted,
			nonce = EXCLUDED.nonce,
			updated_at = now()
		WHERE two_factor_secrets.enabled = FALSE
	`
	tag, err := r.db.Pool.Exec(ctx, query, accountID, encrypted, nonce)
	if err != nil {
		return database.MapPostgresError(err)
	}
	if tag.RowsAffected() == 0 {
		return models.ErrTwoFactorAlreadyEnabled
	}
	return nil
}

// Enable flips a pending enrollment to enabled and stores the hashed backup
// codes.
func (r *TwoFactorRepository) Enable(ctx context.Context, accountID string, backupCodes []models.BackupCode) error {
	payload, err := json.Marshal(backupCodes)
	if err != nil {
		return fmt.Errorf("failed to encode backup codes: %w", err)
	}

	query := `
		UPDATE two_factor_secrets
		SET enabled = TRUE, verified_at = now(), backup_codes = $2, updated_at = now()
		WHERE account_id = $1 AND enabled = FALSE
	`
	tag, err := r.db.Pool.Exec(ctx, query, accountID, payload)
	if err != nil {
		return database.MapPostgresError(err)
	}
	if tag.RowsAffected() == 0 {
		return models.ErrNotFound
	}
	return nil
}

// UpdateBackupCodes replaces the stored backup code set, used both for
// marking a code consumed and for regeneration.
func (r *TwoFactorRepository) UpdateBackupCodes(ctx context.Context, accountID string, backupCodes []models.BackupCode) error {
	payload, err := json.Marshal(backupCodes)
	if err != nil {
		return fmt.Errorf("failed to encode backup codes: %w", err)
	}

	query := `
		UPDATE two_factor_secrets
		SET backup_codes = $2, updated_at = now()
		WHERE account_id = $1
	`
	tag, err := r.db.Pool.Exec(ctx, query, accountID, payload)
	if err != nil {
		return database.MapPostgresError(err)
	}
	if tag.RowsAffected() == 0 {
		return models.ErrNotFound
	}
	return nil
}

// Delete removes an enrollment entirely (disable flow).
func (r *TwoFactorRepository) Delete(ctx context.Context, accountID string) error {
	tag, err := r.db.Pool.Exec(ctx, `DELETE FROM two_factor_secrets WHERE account_id = $1`, accountID)
	if err != nil {
		return database.MapPostgresError(err)
	}
	if tag.RowsAffected() == 0 {
		return models.ErrNotFound
	}
	return nil
}

// DeleteStalePending removes pending enrollments that were never verified.
// Returns the number of rows removed.
func (r *TwoFactorRepository) DeleteStalePending(ctx context.Context, olderThan time.Duration) (int64, error) {
	query := `
		DELETE FROM two_factor_secrets
		WHERE enabled = FALSE AND updated_at < now() - $1::interval
	`
	tag, err := r.db.Pool.Exec(ctx, query, olderThan.String())
	if err != nil {
		return 0, fmt.Errorf("failed to delete stale pending enrollments: %w", err)
	}
	return tag.RowsAffected(), nil
}
