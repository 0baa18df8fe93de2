package auth

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/rentora/rentora/internal/shared"
)

// Repository defines persistence operations for auth module.
type Repository interface {
	FindByEmail(ctx context.Context, email string) (User, error)
	FindByID(ctx context.Context, id uuid.UUID) (User, error)
	TenantStatus(ctx context.Context, tenantID uuid.UUID) (string, error)
	Memberships(ctx context.Context, userID uuid.UUID) ([]Membership, error)
	TouchLogin(ctx context.Context, userID uuid.UUID, at time.Time) error
}

// PGRepository implements Repository using PostgreSQL.
type PGRepository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a PostgreSQL repository.
func NewRepository(pool *pgxpool.Pool) *PGRepository {
	return &PGRepository{pool: pool}
}

const userColumns = `id, tenant_id, email, name, password_hash, COALESCE(global_role, ''), is_active, last_login_at, created_at`

func scanUser(row pgx.Row) (User, error) {
	var u User
	err := row.Scan(&u.ID, &u.TenantID, &u.Email, &u.Name, &u.PasswordHash, &u.GlobalRole, &u.IsActive, &u.LastLoginAt, &u.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return User{}, shared.ErrNotFound
	}
	return u, err
}

// FindByEmail fetches a user by email.
func (r *PGRepository) FindByEmail(ctx context.Context, email string) (User, error) {
	return scanUser(r.pool.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE email = $1`, email))
}

// FindByID fetches a user by id.
func (r *PGRepository) FindByID(ctx context.Context, id uuid.UUID) (User, error) {
	return scanUser(r.pool.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, id))
}

// TenantStatus returns the lifecycle status of a tenant.
func (r *PGRepository) TenantStatus(ctx context.Context, tenantID uuid.UUID) (string, error) {
	var status string
	err := r.pool.QueryRow(ctx, `SELECT status FROM tenants WHERE id = $1`, tenantID).Scan(&status)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", shared.ErrNotFound
	}
	return status, err
}

// Memberships lists the business units of a user inside the user's own tenant.
func (r *PGRepository) Memberships(ctx context.Context, userID uuid.UUID) ([]Membership, error) {
	rows, err := r.pool.Query(ctx, `
SELECT bu.id, bu.name, bu.slug, ro.id, ro.name
FROM user_business_units ubu
JOIN users u ON u.id = ubu.user_id AND u.tenant_id = ubu.tenant_id
JOIN business_units bu ON bu.id = ubu.business_unit_id AND bu.tenant_id = ubu.tenant_id
JOIN roles ro ON ro.id = ubu.role_id
WHERE ubu.user_id = $1
ORDER BY ubu.created_at, bu.name`, userID)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (Membership, error) {
		var m Membership
		err := row.Scan(&m.BusinessUnitID, &m.BusinessUnitName, &m.BusinessUnitSlug, &m.RoleID, &m.RoleName)
		return m, err
	})
}

// TouchLogin stamps the last successful login.
func (r *PGRepository) TouchLogin(ctx context.Context, userID uuid.UUID, at time.Time) error {
	_, err := r.pool.Exec(ctx, `UPDATE users SET last_login_at = $2 WHERE id = $1`, userID, at)
	return err
}

var _ Repository = (*PGRepository)(nil)
