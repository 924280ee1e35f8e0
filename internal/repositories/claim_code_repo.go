package repositories

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/stunity/identity/internal/database"
	"github.com/stunity/identity/internal/models"
)

type ClaimCodeRepository struct {
	db *database.DB
}

func NewClaimCodeRepository(db *database.DB) *ClaimCodeRepository {
	return &ClaimCodeRepository{db: db}
}

func (r *ClaimCodeRepository) Create(ctx context.Context, claim *models.ClaimCode) (*models.ClaimCode, error) {
	if claim.ID == "" {
		claim.ID = uuid.New().String()
	}
	claim.CreatedAt = time.Now()

	query := `
		INSERT INTO claim_codes (id, code, tenant_id, role, expires_at, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`
	_, err := r.db.Pool.Exec(ctx, query,
		claim.ID, claim.Code, claim.TenantID, claim.Role, claim.ExpiresAt, claim.CreatedAt,
	)
	if err != nil {
		return nil, database.MapPostgresError(err)
	}
	return claim, nil
}

// Consume marks a claim code used by the given account and returns it. The
// conditional UPDATE makes the code single-use even under concurrent
// sign-ups; a spent or expired code returns models.ErrClaimCodeInvalid.
func (r *ClaimCodeRepository) Consume(ctx context.Context, code, accountID string) (*models.ClaimCode, error) {
	query := `
		UPDATE claim_codes
		SET used_by = $2, used_at = now()
		WHERE code = $1
			AND used_by IS NULL
			AND (expires_at IS NULL OR expires_at > now())
		RETURNING id, code, tenant_id, role, used_by, used_at, expires_at, created_at
	`
	var claim models.ClaimCode
	err := r.db.Pool.QueryRow(ctx, query, code, accountID).Scan(
		&claim.ID, &claim.Code, &claim.TenantID, &claim.Role,
		&claim.UsedBy, &claim.UsedAt, &claim.ExpiresAt, &claim.CreatedAt,
	)
	if err != nil {
		mapped := database.MapPostgresError(err)
		if errors.Is(mapped, models.ErrNotFound) {
			return nil, models.ErrClaimCodeInvalid
		}
		return nil, mapped
	}
	return &claim, nil
}
