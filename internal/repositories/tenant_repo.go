package repositories

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/stunity/identity/internal/database"
	"github.com/stunity/identity/internal/models"
)

type TenantRepository struct {
	db *database.DB
}

func NewTenantRepository(db *database.DB) *TenantRepository {
	return &TenantRepository{db: db}
}

func (r *TenantRepository) GetByID(ctx context.Context, id string) (*models.Tenant, error) {
	query := `
		SELECT id, name, active, subscription_expiry, created_at, updated_at
		FROM tenants WHERE id = $1
	`
	var tenant models.Tenant
	err := r.db.Pool.QueryRow(ctx, query, id).Scan(
		&tenant.ID, &tenant.Name, &tenant.Active, &tenant.SubscriptionExpiry,
		&tenant.CreatedAt, &tenant.UpdatedAt,
	)
	if err != nil {
		return nil, database.MapPostgresError(err)
	}
	return &tenant, nil
}

func (r *TenantRepository) Create(ctx context.Context, tenant *models.Tenant) (*models.Tenant, error) {
	if tenant.ID == "" {
		tenant.ID = uuid.New().String()
	}
	now := time.Now()
	tenant.CreatedAt = now
	tenant.UpdatedAt = now

	query := `
		INSERT INTO tenants (id, name, active, subscription_expiry, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`
	_, err := r.db.Pool.Exec(ctx, query,
		tenant.ID, tenant.Name, tenant.Active, tenant.SubscriptionExpiry,
		tenant.CreatedAt, tenant.UpdatedAt,
	)
	if err != nil {
		return nil, database.MapPostgresError(err)
	}
	return tenant, nil
}
