package repositories

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/stunity/identity/internal/database"
	"github.com/stunity/identity/internal/models"
)

const accountColumns = `id, email, password_hash, first_name, last_name, avatar_url, role, tenant_id,
		active, failed_attempts, locked_until, last_login, login_count,
		password_changed_at, password_history, is_default_password,
		reset_token_hash, reset_token_expires, created_at, updated_at`

type AccountRepository struct {
	db *database.DB
}

func NewAccountRepository(db *database.DB) *AccountRepository {
	return &AccountRepository{db: db}
}

// rowScanner interface for scanning account rows
type rowScanner interface {
	Scan(dest ...interface{}) error
}

// scanAccountRow handles nullable fields and populates an Account model from a database row
func scanAccountRow(scanner rowScanner) (*models.Account, error) {
	var account models.Account
	var email, passwordHash, avatarURL, resetTokenHash *string
	var history []string

	err := scanner.Scan(
		&account.ID, &email, &passwordHash, &account.FirstName, &account.LastName,
		&avatarURL, &account.Role, &account.TenantID,
		&account.Active, &account.FailedAttempts, &account.LockedUntil,
		&account.LastLogin, &account.LoginCount,
		&account.PasswordChangedAt, &history, &account.IsDefaultPassword,
		&resetTokenHash, &account.ResetTokenExpires,
		&account.CreatedAt, &account.UpdatedAt,
	)
	if err != nil {
		return nil, database.MapPostgresError(err)
	}

	if email != nil {
		account.Email = *email
	}
	if passwordHash != nil {
		account.PasswordHash = *passwordHash
	}
	if avatarURL != nil {
		account.AvatarURL = *avatarURL
	}
	account.PasswordHistory = history
	account.ResetTokenHash = resetTokenHash

	return &account, nil
}

func (r *AccountRepository) GetByID(ctx context.Context, id string) (*models.Account, error) {
	query := `SELECT ` + accountColumns + ` FROM accounts WHERE id = $1`
	return scanAccountRow(r.db.Pool.QueryRow(ctx, query, id))
}

func (r *AccountRepository) GetByEmail(ctx context.Context, email string) (*models.Account, error) {
	query := `SELECT ` + accountColumns + ` FROM accounts WHERE lower(email) = lower($1)`
	return scanAccountRow(r.db.Pool.QueryRow(ctx, query, email))
}

func (r *AccountRepository) Create(ctx context.Context, account *models.Account) (*models.Account, error) {
	if account.ID == "" {
		account.ID = uuid.New().String()
	}
	now := time.Now()
	account.CreatedAt = now
	account.UpdatedAt = now

	if account.Role == "" {
		account.Role = "STUDENT"
	}

	query := `
		INSERT INTO accounts (id, email, password_hash, first_name, last_name, avatar_url, role, tenant_id,
			active, is_default_password, password_changed_at, created_at, updated_at)
		VALUES ($1, NULLIF($2, ''), NULLIF($3, ''), $4, $5, NULLIF($6, ''), $7, $8, $9, $10, $11, $12, $13)
	`
	_, err := r.db.Pool.Exec(ctx, query,
		account.ID, account.Email, account.PasswordHash, account.FirstName, account.LastName,
		account.AvatarURL, account.Role, account.TenantID,
		account.Active, account.IsDefaultPassword, account.PasswordChangedAt,
		account.CreatedAt, account.UpdatedAt,
	)
	if err != nil {
		return nil, database.MapPostgresError(err)
	}

	return account, nil
}

// Update persists mutable profile fields.
func (r *AccountRepository) Update(ctx context.Context, account *models.Account) error {
	query := `
		UPDATE accounts
		SET email = NULLIF($2, ''), first_name = $3, last_name = $4, avatar_url = NULLIF($5, ''),
			role = $6, tenant_id = $7, active = $8, updated_at = now()
		WHERE id = $1
	`
	tag, err := r.db.Pool.Exec(ctx, query,
		account.ID, account.Email, account.FirstName, account.LastName,
		account.AvatarURL, account.Role, account.TenantID, account.Active,
	)
	if err != nil {
		return database.MapPostgresError(err)
	}
	if tag.RowsAffected() == 0 {
		return models.ErrNotFound
	}
	return nil
}

// IncrementFailedAttempts bumps the failure counter atomically and returns
// the new value. Concurrent failures each observe a distinct count.
func (r *AccountRepository) IncrementFailedAttempts(ctx context.Context, id string) (int, error) {
	query := `
		UPDATE accounts
		SET failed_attempts = failed_attempts + 1, updated_at = now()
		WHERE id = $1
		RETURNING failed_attempts
	`
	var attempts int
	if err := r.db.Pool.QueryRow(ctx, query, id).Scan(&attempts); err != nil {
		return 0, database.MapPostgresError(err)
	}
	return attempts, nil
}

// SetLock records a lockout window. The failure counter is left intact so
// later failures keep escalating.
func (r *AccountRepository) SetLock(ctx context.Context, id string, until time.Time) error {
	query := `UPDATE accounts SET locked_until = $2, updated_at = now() WHERE id = $1`
	tag, err := r.db.Pool.Exec(ctx, query, id, until)
	if err != nil {
		return database.MapPostgresError(err)
	}
	if tag.RowsAffected() == 0 {
		return models.ErrNotFound
	}
	return nil
}

// ClearLock removes an expired lockout window without resetting the counter.
func (r *AccountRepository) ClearLock(ctx context.Context, id string) error {
	query := `UPDATE accounts SET locked_until = NULL, updated_at = now() WHERE id = $1`
	tag, err := r.db.Pool.Exec(ctx, query, id)
	if err != nil {
		return database.MapPostgresError(err)
	}
	if tag.RowsAffected() == 0 {
		return models.ErrNotFound
	}
	return nil
}

// RecordLogin resets the brute-force state and bumps login stats after a
// fully successful authentication.
func (r *AccountRepository) RecordLogin(ctx context.Context, id string) error {
	query := `
		UPDATE accounts
		SET failed_attempts = 0, locked_until = NULL,
			last_login = now(), login_count = login_count + 1, updated_at = now()
		WHERE id = $1
	`
	tag, err := r.db.Pool.Exec(ctx, query, id)
	if err != nil {
		return database.MapPostgresError(err)
	}
	if tag.RowsAffected() == 0 {
		return models.ErrNotFound
	}
	return nil
}

// UpdatePassword replaces the password hash, stamps password_changed_at,
// stores the bounded history, and clears reset and lockout state in one
// statement.
func (r *AccountRepository) UpdatePassword(ctx context.Context, id, hash string, history []string, isDefault bool) error {
	query := `
		UPDATE accounts
		SET password_hash = $2, password_history = $3, is_default_password = $4,
			password_changed_at = now(),
			reset_token_hash = NULL, reset_token_expires = NULL,
			failed_attempts = 0, locked_until = NULL,
			updated_at = now()
		WHERE id = $1
	`
	tag, err := r.db.Pool.Exec(ctx, query, id, hash, history, isDefault)
	if err != nil {
		return database.MapPostgresError(err)
	}
	if tag.RowsAffected() == 0 {
		return models.ErrNotFound
	}
	return nil
}

// SetResetToken stores the hashed reset token with its expiry.
func (r *AccountRepository) SetResetToken(ctx context.Context, id, tokenHash string, expires time.Time) error {
	query := `
		UPDATE accounts
		SET reset_token_hash = $2, reset_token_expires = $3, updated_at = now()
		WHERE id = $1
	`
	tag, err := r.db.Pool.Exec(ctx, query, id, tokenHash, expires)
	if err != nil {
		return database.MapPostgresError(err)
	}
	if tag.RowsAffected() == 0 {
		return models.ErrNotFound
	}
	return nil
}

// GetByResetTokenHash finds the account holding an unexpired reset token.
func (r *AccountRepository) GetByResetTokenHash(ctx context.Context, tokenHash string) (*models.Account, error) {
	query := `SELECT ` + accountColumns + `
		FROM accounts
		WHERE reset_token_hash = $1 AND reset_token_expires > now()`
	return scanAccountRow(r.db.Pool.QueryRow(ctx, query, tokenHash))
}

// SweepExpired clears reset tokens and lockout windows that have lapsed.
// Returns the number of rows touched.
func (r *AccountRepository) SweepExpired(ctx context.Context) (int64, error) {
	query := `
		UPDATE accounts
		SET reset_token_hash = CASE WHEN reset_token_expires <= now() THEN NULL ELSE reset_token_hash END,
			reset_token_expires = CASE WHEN reset_token_expires <= now() THEN NULL ELSE reset_token_expires END,
			locked_until = CASE WHEN locked_until <= now() THEN NULL ELSE locked_until END,
			updated_at = now()
		WHERE (reset_token_expires IS NOT NULL AND reset_token_expires <= now())
			OR (locked_until IS NOT NULL AND locked_until <= now())
	`
	tag, err := r.db.Pool.Exec(ctx, query)
	if err != nil {
		return 0, fmt.Errorf("failed to sweep expired account state: %w", err)
	}
	return tag.RowsAffected(), nil
}
