// Package auth authenticates users and turns their sessions into request claims.
package auth

import (
	"time"

	"github.com/google/uuid"
)

// User represents an authenticated user account.
type User struct {
	ID           uuid.UUID     `json:"id"`
	TenantID     uuid.NullUUID `json:"tenant_id"`
	Email        string        `json:"email"`
	Name         string        `json:"name"`
	PasswordHash string        `json:"-"`
	GlobalRole   string        `json:"global_role,omitempty"`
	IsActive     bool          `json:"is_active"`
	LastLoginAt  *time.Time    `json:"last_login_at,omitempty"`
	CreatedAt    time.Time     `json:"created_at"`
}

// Membership is one business unit a user may act in.
type Membership struct {
	BusinessUnitID   uuid.UUID `json:"business_unit_id"`
	BusinessUnitName string    `json:"business_unit_name"`
	BusinessUnitSlug string    `json:"business_unit_slug"`
	RoleID           uuid.UUID `json:"role_id"`
	RoleName         string    `json:"role_name"`
}

// Profile describes the caller for /auth/me and login responses.
type Profile struct {
	User           User         `json:"user"`
	BusinessUnitID uuid.UUID    `json:"business_unit_id"`
	Role           string       `json:"role,omitempty"`
	Memberships    []Membership `json:"memberships"`
	CSRFToken      string       `json:"csrf_token,omitempty"`
}

// LoginInput carries credentials.
type LoginInput struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required,min=8"`
}

// SwitchInput selects another business unit for the session.
type SwitchInput struct {
	BusinessUnitID string `json:"business_unit_id" validate:"required,uuid"`
}
