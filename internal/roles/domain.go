package roles

import (
	"time"

	"github.com/google/uuid"

	"github.com/rentora/rentora/internal/rbac"
)

// Role is a named bundle of permissions. System roles have no tenant.
type Role struct {
	ID          uuid.UUID         `json:"id"`
	TenantID    uuid.NullUUID     `json:"tenant_id"`
	Name        string            `json:"name"`
	Description string            `json:"description"`
	IsSystem    bool              `json:"is_system"`
	Permissions []rbac.Permission `json:"permissions"`
	CreatedAt   time.Time         `json:"created_at"`
	UpdatedAt   time.Time         `json:"updated_at"`
}

// PermissionRecord is a stored catalog entry.
type PermissionRecord struct {
	ID          uuid.UUID     `json:"id"`
	Resource    rbac.Resource `json:"resource"`
	Action      rbac.Action   `json:"action"`
	Scope       *string       `json:"scope,omitempty"`
	Description string        `json:"description"`
}

// CreateRoleInput carries a custom role definition.
type CreateRoleInput struct {
	Name        string   `json:"name" validate:"required,max=64"`
	Description string   `json:"description" validate:"max=255"`
	Permissions []string `json:"permissions" validate:"dive,required"`
}

// AssignPermissionsInput replaces a role's permission set.
type AssignPermissionsInput struct {
	Permissions []string `json:"permissions" validate:"dive,required"`
}
