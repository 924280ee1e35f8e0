package repositories

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/stunity/identity/internal/database"
	"github.com/stunity/identity/internal/models"
)

type SocialAccountRepository struct {
	db *database.DB
}

func NewSocialAccountRepository(db *database.DB) *SocialAccountRepository {
	return &SocialAccountRepository{db: db}
}

// GetByProviderID finds the link for an external identity. The pair is
// unique, so at most one row matches.
func (r *SocialAccountRepository) GetByProviderID(ctx context.Context, provider, providerUserID string) (*models.SocialAccount, error) {
	query := `
		SELECT id, account_id, provider, provider_user_id, email, display_name, avatar_url, raw_profile, created_at
		FROM social_accounts
		WHERE provider = $1 AND provider_user_id = $2
	`
	return scanSocialAccountRow(r.db.Pool.QueryRow(ctx, query, provider, providerUserID))
}

func (r *SocialAccountRepository) ListByAccount(ctx context.Context, accountID string) ([]*models.SocialAccount, error) {
	query := `
		SELECT id, account_id, provider, provider_user_id, email, display_name, avatar_url, raw_profile, created_at
		FROM social_accounts
		WHERE account_id = $1
		ORDER BY created_at
	`
	rows, err := r.db.Pool.Query(ctx, query, accountID)
	if err != nil {
		return nil, fmt.Errorf("failed to query social accounts: %w", err)
	}
	defer rows.Close()

	links := make([]*models.SocialAccount, 0)
	for rows.Next() {
		link, err := scanSocialAccountRow(rows)
		if err != nil {
			return nil, err
		}
		links = append(links, link)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows: %w", err)
	}
	return links, nil
}

func (r *SocialAccountRepository) Create(ctx context.Context, link *models.SocialAccount) (*models.SocialAccount, error) {
	if link.ID == "" {
		link.ID = uuid.New().String()
	}
	link.CreatedAt = time.Now()

	var rawProfile []byte
	if len(link.RawProfile) > 0 {
		rawProfile = []byte(link.RawProfile)
	}

	query := `
		INSERT INTO social_accounts (id, account_id, provider, provider_user_id, email, display_name, avatar_url, raw_profile, created_at)
		VALUES ($1, $2, $3, $4, NULLIF($5, ''), NULLIF($6, ''), NULLIF($7, ''), $8, $9)
	`
	_, err := r.db.Pool.Exec(ctx, query,
		link.ID, link.AccountID, link.Provider, link.ProviderUserID,
		link.Email, link.DisplayName, link.AvatarURL, rawProfile, link.CreatedAt,
	)
	if err != nil {
		return nil, database.MapPostgresError(err)
	}
	return link, nil
}

// DeleteByAccountAndProvider removes a link. Returns models.ErrNotFound when
// the account has no link for the provider.
func (r *SocialAccountRepository) DeleteByAccountAndProvider(ctx context.Context, accountID, provider string) error {
	query := `DELETE FROM social_accounts WHERE account_id = $1 AND provider = $2`
	tag, err := r.db.Pool.Exec(ctx, query, accountID, provider)
	if err != nil {
		return database.MapPostgresError(err)
	}
	if tag.RowsAffected() == 0 {
		return models.ErrNotFound
	}
	return nil
}

// CountByAccount returns how many external identities an account has linked.
func (r *SocialAccountRepository) CountByAccount(ctx context.Context, accountID string) (int, error) {
	var count int
	err := r.db.Pool.QueryRow(ctx, `SELECT count(*) FROM social_accounts WHERE account_id = $1`, accountID).Scan(&count)
	if err != nil {
		return 0, database.MapPostgresError(err)
	}
	return count, nil
}

func scanSocialAccountRow(scanner rowScanner) (*models.SocialAccount, error) {
	var link models.SocialAccount
	var email, displayName, avatarURL *string
	var rawProfile []byte

	err := scanner.Scan(
		&link.ID, &link.AccountID, &link.Provider, &link.ProviderUserID,
		&email, &displayName, &avatarURL, &rawProfile, &link.CreatedAt,
	)
	if err != nil {
		return nil, database.MapPostgresError(err)
	}

	if email != nil {
		link.Email = *email
	}
	if displayName != nil {
		link.DisplayName = *displayName
	}
	if avatarURL != nil {
		link.AvatarURL = *avatarURL
	}
	if len(rawProfile) > 0 {
		link.RawProfile = rawProfile
	}
	return &link, nil
}
