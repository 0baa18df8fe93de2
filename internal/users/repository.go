package users

import (
	"time"

	"github.com/rentora/rentora/internal/datastore"
)

const (
	// EntityUsers is the datastore entity backing tenant users.
	EntityUsers datastore.Entity = "users"
	// EntityMemberships is the datastore entity backing business unit memberships.
	EntityMemberships datastore.Entity = "user_business_units"
)

// UserSpec registers users with the datastore.
var UserSpec = datastore.Spec{
	Entity: EntityUsers,
	Table:  "users",
	Columns: []string{
		"id", datastore.TenantColumn, "email", "name", "password_hash", "global_role",
		"is_active", "last_login_at", "created_at", "updated_at",
	},
	TenantScoped: true,
}

// MembershipSpec registers user_business_units with the datastore.
var MembershipSpec = datastore.Spec{
	Entity:       EntityMemberships,
	Table:        "user_business_units",
	Columns:      []string{"user_id", "business_unit_id", "role_id", datastore.TenantColumn, "created_at"},
	TenantScoped: true,
}

func userFrom(r datastore.Record) User {
	u := User{
		ID:        r.UUID("id"),
		TenantID:  r.UUID(datastore.TenantColumn),
		Email:     r.String("email"),
		Name:      r.String("name"),
		CreatedAt: r.Time("created_at"),
		UpdatedAt: r.Time("updated_at"),
	}
	u.IsActive, _ = r["is_active"].(bool)
	if t, ok := r["last_login_at"].(time.Time); ok {
		u.LastLoginAt = &t
	}
	return u
}

func membershipFrom(r datastore.Record) Membership {
	return Membership{
		UserID:         r.UUID("user_id"),
		BusinessUnitID: r.UUID("business_unit_id"),
		RoleID:         r.UUID("role_id"),
		TenantID:       r.UUID(datastore.TenantColumn),
		CreatedAt:      r.Time("created_at"),
	}
}
