package rbac

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// DBTX is satisfied by *pgxpool.Pool and pgx.Tx.
type DBTX interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// PGGrants loads grants from PostgreSQL.
type PGGrants struct {
	db DBTX
}

// NewPGGrants builds the grant source.
func NewPGGrants(db DBTX) *PGGrants {
	return &PGGrants{db: db}
}

const grantQuery = `
SELECT r.id, r.name, p.resource, p.action
FROM user_business_units ubu
JOIN business_units bu ON bu.id = ubu.business_unit_id
JOIN roles r ON r.id = ubu.role_id
LEFT JOIN role_permissions rp ON rp.role_id = r.id
LEFT JOIN permissions p ON p.id = rp.permission_id
WHERE ubu.user_id = $1 AND ubu.business_unit_id = $2 AND bu.tenant_id = $3
  AND (r.tenant_id IS NULL OR r.tenant_id = $3)
ORDER BY p.resource, p.action`

// Grant implements GrantSource.
func (g *PGGrants) Grant(ctx context.Context, tenantID, userID, businessUnitID uuid.UUID) (Grant, bool, error) {
	rows, err := g.db.Query(ctx, grantQuery, userID, businessUnitID, tenantID)
	if err != nil {
		return Grant{}, false, err
	}
	defer rows.Close()

	var grant Grant
	found := false
	for rows.Next() {
		var (
			roleID   uuid.UUID
			roleName string
			resource *string
			action   *string
		)
		if err := rows.Scan(&roleID, &roleName, &resource, &action); err != nil {
			return Grant{}, false, err
		}
		found = true
		grant.RoleID, grant.RoleName = roleID, roleName
		if resource != nil && action != nil {
			grant.Permissions = append(grant.Permissions, Perm(Resource(*resource), Action(*action)))
		}
	}
	if err := rows.Err(); err != nil {
		return Grant{}, false, err
	}
	return grant, found, nil
}
