// Package reqctx carries the identity of the current operation through a call chain.
//
// The store is context.Context itself: a Principal bound with With or Run is visible to
// everything that receives the derived context, including goroutines started from it, and
// invisible to every other call chain.
package reqctx

import (
	"slices"

	"github.com/google/uuid"
)

const (
	// GlobalRoleSuperAdmin marks the platform-level identity that has no tenant.
	GlobalRoleSuperAdmin = "SUPER_ADMIN"
	// RoleSystem is the role carried by trusted system callers.
	RoleSystem = "SYSTEM"
)

// SystemUserID identifies background and trusted-header callers.
var SystemUserID = uuid.MustParse("00000000-0000-0000-0000-000000000001")

// Principal is the acting identity for one request. uuid.Nil means the field is absent.
type Principal struct {
	UserID         uuid.UUID
	TenantID       uuid.UUID
	BusinessUnitID uuid.UUID
	Roles          []string
	GlobalRole     string
	System         bool
}

// IsPlatformSuper reports whether the principal is the platform super identity.
func (p Principal) IsPlatformSuper() bool {
	return p.GlobalRole == GlobalRoleSuperAdmin
}

// HasTenant reports whether a tenant is bound.
func (p Principal) HasTenant() bool {
	return p.TenantID != uuid.Nil
}

// HasRole reports whether the principal carries the role name.
func (p Principal) HasRole(name string) bool {
	return slices.Contains(p.Roles, name)
}

func (p Principal) clone() Principal {
	p.Roles = slices.Clone(p.Roles)
	return p
}

// Claims is what the authentication step hands over after verifying credentials.
type Claims struct {
	UserID         uuid.UUID
	TenantID       uuid.UUID
	BusinessUnitID uuid.UUID
	Role           string
	GlobalRole     string
}

// Principal converts verified claims into the request principal.
func (c Claims) Principal() Principal {
	p := Principal{
		UserID:         c.UserID,
		TenantID:       c.TenantID,
		BusinessUnitID: c.BusinessUnitID,
		GlobalRole:     c.GlobalRole,
	}
	if c.Role != "" {
		p.Roles = []string{c.Role}
	}
	return p
}

// SystemPrincipal builds the identity used by trusted system callers for a tenant.
func SystemPrincipal(tenantID uuid.UUID) Principal {
	return Principal{
		UserID:   SystemUserID,
		TenantID: tenantID,
		Roles:    []string{RoleSystem},
		System:   true,
	}
}
