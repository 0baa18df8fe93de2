package tenancy

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/rentora/rentora/internal/platform/db"
	"github.com/rentora/rentora/internal/shared"
)

// RepositoryPort defines tenant persistence.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	GetTenant(ctx context.Context, id uuid.UUID) (Tenant, error)
	ListTenants(ctx context.Context) ([]Tenant, error)
}

// TxRepository exposes the writes that make up tenant provisioning and status changes.
type TxRepository interface {
	InsertTenant(ctx context.Context, t Tenant) (Tenant, error)
	InsertBusinessUnit(ctx context.Context, bu BusinessUnit) (BusinessUnit, error)
	InsertOwner(ctx context.Context, owner Owner) (uuid.UUID, error)
	InsertMembership(ctx context.Context, tenantID, userID, buID, roleID uuid.UUID) error
	LockTenant(ctx context.Context, id uuid.UUID) (Tenant, error)
	SetStatus(ctx context.Context, id uuid.UUID, status Status) error
	RecordAudit(ctx context.Context, log shared.AuditLog) error
}

// Repository provides PostgreSQL backed tenant persistence.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// WithTx wraps fn in a transaction.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, &txRepo{tx: tx, audit: shared.NewAuditLogger(tx)})
	})
}

const tenantColumns = `id, name, slug, plan, status, created_at, updated_at`

func scanTenant(row pgx.Row) (Tenant, error) {
	var t Tenant
	var status string
	err := row.Scan(&t.ID, &t.Name, &t.Slug, &t.Plan, &status, &t.CreatedAt, &t.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Tenant{}, shared.ErrNotFound
	}
	t.Status = Status(status)
	return t, err
}

// GetTenant loads a tenant by id.
func (r *Repository) GetTenant(ctx context.Context, id uuid.UUID) (Tenant, error) {
	return scanTenant(r.pool.QueryRow(ctx, `SELECT `+tenantColumns+` FROM tenants WHERE id = $1`, id))
}

// ListTenants returns every tenant ordered by name.
func (r *Repository) ListTenants(ctx context.Context) ([]Tenant, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+tenantColumns+` FROM tenants ORDER BY name`)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (Tenant, error) {
		return scanTenant(row)
	})
}

type txRepo struct {
	tx    pgx.Tx
	audit *shared.AuditLogger
}

func (t *txRepo) InsertTenant(ctx context.Context, tenant Tenant) (Tenant, error) {
	created, err := scanTenant(t.tx.QueryRow(ctx, `
INSERT INTO tenants (name, slug, plan, status)
VALUES ($1, $2, $3, $4)
RETURNING `+tenantColumns, tenant.Name, tenant.Slug, tenant.Plan, string(tenant.Status)))
	if err != nil {
		if _, dup := db.UniqueViolation(err); dup {
			return Tenant{}, fmt.Errorf("%w: %s", shared.ErrDuplicateSlug, tenant.Slug)
		}
		return Tenant{}, err
	}
	return created, nil
}

func (t *txRepo) InsertBusinessUnit(ctx context.Context, bu BusinessUnit) (BusinessUnit, error) {
	settings := bu.Settings
	if settings == nil {
		settings = map[string]any{}
	}
	err := t.tx.QueryRow(ctx, `
INSERT INTO business_units (tenant_id, name, slug, settings)
VALUES ($1, $2, $3, $4)
RETURNING id, created_at, updated_at`, bu.TenantID, bu.Name, bu.Slug, settings).
		Scan(&bu.ID, &bu.CreatedAt, &bu.UpdatedAt)
	if err != nil {
		if _, dup := db.UniqueViolation(err); dup {
			return BusinessUnit{}, fmt.Errorf("%w: %s", shared.ErrDuplicateSlug, bu.Slug)
		}
		return BusinessUnit{}, err
	}
	bu.Settings = settings
	return bu, nil
}

func (t *txRepo) InsertOwner(ctx context.Context, owner Owner) (uuid.UUID, error) {
	var id uuid.UUID
	err := t.tx.QueryRow(ctx, `
INSERT INTO users (tenant_id, email, name, password_hash)
VALUES ($1, $2, $3, $4)
RETURNING id`, owner.TenantID, owner.Email, owner.Name, owner.PasswordHash).Scan(&id)
	if err != nil {
		if _, dup := db.UniqueViolation(err); dup {
			return uuid.Nil, fmt.Errorf("%w: %s", shared.ErrDuplicateEmail, owner.Email)
		}
		return uuid.Nil, err
	}
	return id, nil
}

func (t *txRepo) InsertMembership(ctx context.Context, tenantID, userID, buID, roleID uuid.UUID) error {
	_, err := t.tx.Exec(ctx, `
INSERT INTO user_business_units (user_id, business_unit_id, role_id, tenant_id)
VALUES ($1, $2, $3, $4)`, userID, buID, roleID, tenantID)
	if db.ForeignKeyViolation(err) {
		return fmt.Errorf("%w: owner role is not provisioned", shared.ErrValidation)
	}
	return err
}

func (t *txRepo) LockTenant(ctx context.Context, id uuid.UUID) (Tenant, error) {
	return scanTenant(t.tx.QueryRow(ctx, `SELECT `+tenantColumns+` FROM tenants WHERE id = $1 FOR UPDATE`, id))
}

func (t *txRepo) SetStatus(ctx context.Context, id uuid.UUID, status Status) error {
	tag, err := t.tx.Exec(ctx, `UPDATE tenants SET status = $2, updated_at = NOW() WHERE id = $1`, id, string(status))
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}

func (t *txRepo) RecordAudit(ctx context.Context, log shared.AuditLog) error {
	return t.audit.Record(ctx, log)
}
