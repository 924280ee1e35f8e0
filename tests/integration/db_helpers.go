package integration

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/stunity/identity/internal/database"
	"github.com/stunity/identity/internal/models"
	"github.com/stunity/identity/internal/repositories"
	"github.com/stunity/identity/pkg/auth"
)

// TestDB manages the PostgreSQL testcontainer and database handles shared by
// the integration tests.
type TestDB struct {
	Container  testcontainers.Container
	ConnString string
	Pool       *pgxpool.Pool
	DB         *database.DB
}

// SetupTestDatabase creates a PostgreSQL testcontainer, runs migrations, and
// returns the ready-to-use handles.
func SetupTestDatabase(ctx context.Context) (*TestDB, error) {
	container, err := postgres.RunContainer(ctx,
		testcontainers.WithImage("postgres:16-alpine"),
		postgres.WithDatabase("stunity"),
		postgres.WithUsername("postgres"),
		postgres.WithPassword("postgres"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to start postgres container: %w", err)
	}

	connStr, err := container.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		container.Terminate(ctx)
		return nil, fmt.Errorf("failed to get connection string: %w", err)
	}

	pool, err := pgxpool.New(ctx, connStr)
	if err != nil {
		container.Terminate(ctx)
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		container.Terminate(ctx)
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	if err := runMigrations(ctx, pool); err != nil {
		pool.Close()
		container.Terminate(ctx)
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return &TestDB{
		Container:  container,
		ConnString: connStr,
		Pool:       pool,
		DB:         &database.DB{Pool: pool},
	}, nil
}

// runMigrations executes all goose migrations against the container. Goose
// needs a database/sql handle, so the pgx stdlib adapter bridges the pool
// config.
func runMigrations(ctx context.Context, pool *pgxpool.Pool) error {
	migrationsDir, err := filepath.Abs("../../migrations")
	if err != nil {
		return fmt.Errorf("failed to get migrations path: %w", err)
	}

	goose.SetLogger(goose.NopLogger())

	sqlDB := stdlib.OpenDB(*pool.Config().ConnConfig)
	defer sqlDB.Close()

	if err := goose.UpContext(ctx, sqlDB, migrationsDir); err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}
	return nil
}

// Teardown stops the container and closes the connection pool.
func (db *TestDB) Teardown(ctx context.Context) error {
	if db.Pool != nil {
		db.Pool.Close()
	}
	if db.Container != nil {
		return db.Container.Terminate(ctx)
	}
	return nil
}

// CleanupTables truncates all tables for test isolation.
func (db *TestDB) CleanupTables(ctx context.Context) error {
	tables := []string{
		"claim_codes",
		"two_factor_secrets",
		"social_accounts",
		"accounts",
		"tenants",
	}

	for _, table := range tables {
		if _, err := db.Pool.Exec(ctx, fmt.Sprintf("TRUNCATE TABLE %s CASCADE", table)); err != nil {
			return fmt.Errorf("failed to truncate table %s: %w", table, err)
		}
	}
	return nil
}

// InitializeRepositories creates all repository instances from the database
// wrapper.
func InitializeRepositories(db *database.DB) (
	*repositories.AccountRepository,
	*repositories.TenantRepository,
	*repositories.SocialAccountRepository,
	*repositories.TwoFactorRepository,
	*repositories.ClaimCodeRepository,
) {
	return repositories.NewAccountRepository(db),
		repositories.NewTenantRepository(db),
		repositories.NewSocialAccountRepository(db),
		repositories.NewTwoFactorRepository(db),
		repositories.NewClaimCodeRepository(db)
}

// SeedTenant inserts a test tenant. A nil expiry means the subscription does
// not lapse.
func SeedTenant(ctx context.Context, pool *pgxpool.Pool, name string, active bool, expiry *time.Time) (*models.Tenant, error) {
	tenant := &models.Tenant{
		ID:                 uuid.New().String(),
		Name:               name,
		Active:             active,
		SubscriptionExpiry: expiry,
	}

	query := `
		INSERT INTO tenants (id, name, active, subscription_expiry, created_at, updated_at)
		VALUES ($1, $2, $3, $4, now(), now())
		RETURNING created_at, updated_at
	`
	err := pool.QueryRow(ctx, query, tenant.ID, tenant.Name, tenant.Active, tenant.SubscriptionExpiry).
		Scan(&tenant.CreatedAt, &tenant.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to insert tenant: %w", err)
	}
	return tenant, nil
}

// SeedAccount inserts a test account with a hashed password. An empty
// password seeds a federated account with no local credential.
func SeedAccount(ctx context.Context, pool *pgxpool.Pool, email, password, role string, tenantID *string) (*models.Account, error) {
	var hash string
	if password != "" {
		var err error
		hash, err = auth.HashPassword(password)
		if err != nil {
			return nil, fmt.Errorf("failed to hash password: %w", err)
		}
	}

	account := &models.Account{
		ID:           uuid.New().String(),
		Email:        email,
		PasswordHash: hash,
		FirstName:    "Test",
		LastName:     "Account",
		Role:         role,
		TenantID:     tenantID,
		Active:       true,
	}

	query := `
		INSERT INTO accounts (id, email, password_hash, first_name, last_name, role, tenant_id, active,
			password_changed_at, created_at, updated_at)
		VALUES ($1, $2, NULLIF($3, ''), $4, $5, $6, $7, $8, now(), now(), now())
		RETURNING created_at, updated_at
	`
	err := pool.QueryRow(ctx, query,
		account.ID, account.Email, account.PasswordHash, account.FirstName, account.LastName,
		account.Role, account.TenantID, account.Active,
	).Scan(&account.CreatedAt, &account.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to insert account: %w", err)
	}
	return account, nil
}

// SeedClaimCode inserts an unspent claim code for a tenant.
func SeedClaimCode(ctx context.Context, pool *pgxpool.Pool, code, tenantID, role string, expiresAt *time.Time) (*models.ClaimCode, error) {
	claim := &models.ClaimCode{
		ID:        uuid.New().String(),
		Code:      code,
		TenantID:  tenantID,
		Role:      role,
		ExpiresAt: expiresAt,
	}

	query := `
		INSERT INTO claim_codes (id, code, tenant_id, role, expires_at, created_at)
		VALUES ($1, $2, $3, $4, $5, now())
		RETURNING created_at
	`
	err := pool.QueryRow(ctx, query, claim.ID, claim.Code, claim.TenantID, claim.Role, claim.ExpiresAt).
		Scan(&claim.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to insert claim code: %w", err)
	}
	return claim, nil
}
