// Package users manages tenant user accounts and their business unit memberships.
package users

import (
	"time"

	"github.com/google/uuid"
)

// User represents a user account for management.
type User struct {
	ID          uuid.UUID  `json:"id"`
	TenantID    uuid.UUID  `json:"tenant_id"`
	Email       string     `json:"email"`
	Name        string     `json:"name"`
	IsActive    bool       `json:"is_active"`
	LastLoginAt *time.Time `json:"last_login_at,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

// Membership links a user to a business unit through a role.
type Membership struct {
	UserID         uuid.UUID `json:"user_id"`
	BusinessUnitID uuid.UUID `json:"business_unit_id"`
	RoleID         uuid.UUID `json:"role_id"`
	TenantID       uuid.UUID `json:"tenant_id"`
	CreatedAt      time.Time `json:"created_at"`
}

// CreateUserInput carries a new tenant user. When BusinessUnitID is set the user is
// assigned to it with RoleID.
type CreateUserInput struct {
	Email          string `json:"email" validate:"required,email"`
	Name           string `json:"name" validate:"required,max=120"`
	Password       string `json:"password" validate:"required,min=8"`
	BusinessUnitID string `json:"business_unit_id" validate:"omitempty,uuid"`
	RoleID         string `json:"role_id" validate:"required_with=BusinessUnitID,omitempty,uuid"`
}

// MembershipInput assigns a role in a business unit.
type MembershipInput struct {
	RoleID string `json:"role_id" validate:"required,uuid"`
}

// ActiveInput toggles a user account.
type ActiveInput struct {
	Active *bool `json:"active" validate:"required"`
}
