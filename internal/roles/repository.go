package roles

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/rentora/rentora/internal/platform/db"
	"github.com/rentora/rentora/internal/rbac"
	"github.com/rentora/rentora/internal/shared"
)

// RepositoryPort defines data access methods for roles.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	ListRoles(ctx context.Context, tenantID uuid.UUID) ([]Role, error)
	GetRole(ctx context.Context, id uuid.UUID) (Role, error)
	ListPermissions(ctx context.Context) ([]PermissionRecord, error)
}

// TxRepository exposes operations that must run inside one transaction.
type TxRepository interface {
	UpsertPermissions(ctx context.Context, perms []rbac.Permission) error
	UpsertSystemRole(ctx context.Context, role rbac.SystemRole) error
	InsertRole(ctx context.Context, role Role) (Role, error)
	LockRole(ctx context.Context, id uuid.UUID) (Role, error)
	ReplacePermissions(ctx context.Context, roleID uuid.UUID, perms []rbac.Permission) error
	RolePermissions(ctx context.Context, roleID uuid.UUID) ([]rbac.Permission, error)
	CountAssignments(ctx context.Context, roleID uuid.UUID) (int64, error)
	DeleteRole(ctx context.Context, roleID uuid.UUID) error
	RecordAudit(ctx context.Context, log shared.AuditLog) error
}

// Pool is the part of *pgxpool.Pool the repository uses.
type Pool interface {
	db.TxBeginner
	querier
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

var _ Pool = (*pgxpool.Pool)(nil)

// Repository provides PostgreSQL backed persistence.
type Repository struct {
	pool Pool
}

// NewRepository constructs a repository.
func NewRepository(pool Pool) *Repository {
	return &Repository{pool: pool}
}

// WithTx wraps fn in a read-committed transaction. Writers of one role serialise on the
// row lock taken by LockRole; each later statement then reads the committed state of the
// writer before it, so a full replace never merges two permission sets.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return db.WithTxOptions(ctx, r.pool, pgx.TxOptions{IsoLevel: pgx.ReadCommitted}, func(tx pgx.Tx) error {
		return fn(ctx, &txRepo{tx: tx, audit: shared.NewAuditLogger(tx)})
	})
}

const roleColumns = `id, tenant_id, name, description, is_system, created_at, updated_at`

func scanRole(row pgx.Row) (Role, error) {
	var role Role
	err := row.Scan(&role.ID, &role.TenantID, &role.Name, &role.Description, &role.IsSystem, &role.CreatedAt, &role.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Role{}, shared.ErrNotFound
	}
	return role, err
}

// ListRoles returns system roles and the custom roles of tenantID with their permissions.
func (r *Repository) ListRoles(ctx context.Context, tenantID uuid.UUID) ([]Role, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+roleColumns+` FROM roles WHERE tenant_id IS NULL OR tenant_id = $1 ORDER BY is_system DESC, name`, tenantID)
	if err != nil {
		return nil, err
	}
	roles, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (Role, error) {
		return scanRole(row)
	})
	if err != nil {
		return nil, err
	}
	if len(roles) == 0 {
		return roles, nil
	}

	ids := make([]uuid.UUID, len(roles))
	index := make(map[uuid.UUID]int, len(roles))
	for i, role := range roles {
		ids[i] = role.ID
		index[role.ID] = i
	}
	permRows, err := r.pool.Query(ctx, `
SELECT rp.role_id, p.resource, p.action
FROM role_permissions rp
JOIN permissions p ON p.id = rp.permission_id
WHERE rp.role_id = ANY($1)
ORDER BY p.resource, p.action`, ids)
	if err != nil {
		return nil, err
	}
	defer permRows.Close()
	for permRows.Next() {
		var roleID uuid.UUID
		var resource, action string
		if err := permRows.Scan(&roleID, &resource, &action); err != nil {
			return nil, err
		}
		i := index[roleID]
		roles[i].Permissions = append(roles[i].Permissions, rbac.Perm(rbac.Resource(resource), rbac.Action(action)))
	}
	return roles, permRows.Err()
}

// GetRole fetches a role with its permissions.
func (r *Repository) GetRole(ctx context.Context, id uuid.UUID) (Role, error) {
	role, err := scanRole(r.pool.QueryRow(ctx, `SELECT `+roleColumns+` FROM roles WHERE id = $1`, id))
	if err != nil {
		return Role{}, err
	}
	role.Permissions, err = rolePermissions(ctx, r.pool, id)
	return role, err
}

// ListPermissions returns the stored catalog.
func (r *Repository) ListPermissions(ctx context.Context) ([]PermissionRecord, error) {
	rows, err := r.pool.Query(ctx, `SELECT id, resource, action, scope, description FROM permissions ORDER BY resource, action`)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (PermissionRecord, error) {
		var p PermissionRecord
		var resource, action string
		err := row.Scan(&p.ID, &resource, &action, &p.Scope, &p.Description)
		p.Resource, p.Action = rbac.Resource(resource), rbac.Action(action)
		return p, err
	})
}

type querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

func rolePermissions(ctx context.Context, q querier, roleID uuid.UUID) ([]rbac.Permission, error) {
	rows, err := q.Query(ctx, `
SELECT p.resource, p.action
FROM role_permissions rp
JOIN permissions p ON p.id = rp.permission_id
WHERE rp.role_id = $1
ORDER BY p.resource, p.action`, roleID)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (rbac.Permission, error) {
		var resource, action string
		err := row.Scan(&resource, &action)
		return rbac.Perm(rbac.Resource(resource), rbac.Action(action)), err
	})
}

type txRepo struct {
	tx    pgx.Tx
	audit *shared.AuditLogger
}

func (t *txRepo) UpsertPermissions(ctx context.Context, perms []rbac.Permission) error {
	batch := &pgx.Batch{}
	for _, p := range perms {
		batch.Queue(`
INSERT INTO permissions (resource, action, description)
VALUES ($1, $2, $3)
ON CONFLICT (resource, action) DO UPDATE SET description = EXCLUDED.description`,
			string(p.Resource), string(p.Action), fmt.Sprintf("%s %s", p.Action, p.Resource))
	}
	return t.tx.SendBatch(ctx, batch).Close()
}

func (t *txRepo) UpsertSystemRole(ctx context.Context, role rbac.SystemRole) error {
	_, err := t.tx.Exec(ctx, `
INSERT INTO roles (id, tenant_id, name, description, is_system)
VALUES ($1, NULL, $2, $3, TRUE)
ON CONFLICT (id) DO UPDATE SET name = EXCLUDED.name, description = EXCLUDED.description, is_system = TRUE, updated_at = NOW()`,
		role.ID, role.Key, role.Description)
	return err
}

func (t *txRepo) InsertRole(ctx context.Context, role Role) (Role, error) {
	created, err := scanRole(t.tx.QueryRow(ctx, `
INSERT INTO roles (tenant_id, name, description, is_system)
VALUES ($1, $2, $3, FALSE)
RETURNING `+roleColumns, role.TenantID, role.Name, role.Description))
	if err != nil {
		if _, dup := db.UniqueViolation(err); dup {
			return Role{}, fmt.Errorf("%w: %s", shared.ErrDuplicateRole, role.Name)
		}
		return Role{}, err
	}
	return created, nil
}

func (t *txRepo) LockRole(ctx context.Context, id uuid.UUID) (Role, error) {
	return scanRole(t.tx.QueryRow(ctx, `SELECT `+roleColumns+` FROM roles WHERE id = $1 FOR UPDATE`, id))
}

func (t *txRepo) ReplacePermissions(ctx context.Context, roleID uuid.UUID, perms []rbac.Permission) error {
	if _, err := t.tx.Exec(ctx, `DELETE FROM role_permissions WHERE role_id = $1`, roleID); err != nil {
		return err
	}
	if len(perms) == 0 {
		return nil
	}
	resources := make([]string, len(perms))
	actions := make([]string, len(perms))
	for i, p := range perms {
		resources[i], actions[i] = string(p.Resource), string(p.Action)
	}
	tag, err := t.tx.Exec(ctx, `
INSERT INTO role_permissions (role_id, permission_id)
SELECT $1, p.id
FROM permissions p
JOIN unnest($2::text[], $3::text[]) AS wanted(resource, action)
  ON p.resource = wanted.resource AND p.action = wanted.action`,
		roleID, resources, actions)
	if err != nil {
		return err
	}
	if tag.RowsAffected() != int64(len(perms)) {
		return fmt.Errorf("%w: %d of %d permissions are not provisioned", shared.ErrValidation, int64(len(perms))-tag.RowsAffected(), len(perms))
	}
	return nil
}

func (t *txRepo) RolePermissions(ctx context.Context, roleID uuid.UUID) ([]rbac.Permission, error) {
	return rolePermissions(ctx, t.tx, roleID)
}

func (t *txRepo) CountAssignments(ctx context.Context, roleID uuid.UUID) (int64, error) {
	var n int64
	err := t.tx.QueryRow(ctx, `SELECT COUNT(*) FROM user_business_units WHERE role_id = $1`, roleID).Scan(&n)
	return n, err
}

func (t *txRepo) DeleteRole(ctx context.Context, roleID uuid.UUID) error {
	tag, err := t.tx.Exec(ctx, `DELETE FROM roles WHERE id = $1 AND NOT is_system`, roleID)
	if err != nil {
		if db.ForeignKeyViolation(err) {
			return shared.ErrRoleInUse
		}
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
