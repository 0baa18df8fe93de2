// Package tenancy manages tenants and their business units.
package tenancy

import (
	"time"

	"github.com/google/uuid"
)

// Status is the lifecycle state of a tenant.
type Status string

const (
	StatusActive    Status = "active"
	StatusSuspended Status = "suspended"
	StatusCancelled Status = "cancelled"
)

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	switch s {
	case StatusActive, StatusSuspended, StatusCancelled:
		return true
	}
	return false
}

// CanTransition reports whether a tenant may move from s to next. Cancelled is terminal.
func (s Status) CanTransition(next Status) bool {
	if !next.Valid() || s == StatusCancelled || s == next {
		return false
	}
	switch next {
	case StatusCancelled:
		return true
	case StatusActive:
		return s == StatusSuspended
	case StatusSuspended:
		return s == StatusActive
	}
	return false
}

// Tenant is the top-level isolation boundary.
type Tenant struct {
	ID        uuid.UUID `json:"id"`
	Name      string    `json:"name"`
	Slug      string    `json:"slug"`
	Plan      string    `json:"plan"`
	Status    Status    `json:"status"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// BusinessUnit is a sub-division of a tenant.
type BusinessUnit struct {
	ID        uuid.UUID      `json:"id"`
	TenantID  uuid.UUID      `json:"tenant_id"`
	Name      string         `json:"name"`
	Slug      string         `json:"slug"`
	Settings  map[string]any `json:"settings"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
}

// Owner is the first user of a new tenant.
type Owner struct {
	ID           uuid.UUID
	TenantID     uuid.UUID
	Email        string
	Name         string
	PasswordHash string
}

// CreateTenantInput carries the data for provisioning a tenant.
type CreateTenantInput struct {
	Name          string `json:"name" validate:"required,max=120"`
	Slug          string `json:"slug" validate:"omitempty,max=63"`
	Plan          string `json:"plan" validate:"omitempty,oneof=starter professional enterprise"`
	OwnerEmail    string `json:"owner_email" validate:"required,email"`
	OwnerName     string `json:"owner_name" validate:"required,max=120"`
	OwnerPassword string `json:"owner_password" validate:"required,min=8"`
}

// CreateTenantResult is what CreateTenant produced.
type CreateTenantResult struct {
	Tenant       Tenant       `json:"tenant"`
	BusinessUnit BusinessUnit `json:"business_unit"`
	OwnerID      uuid.UUID    `json:"owner_id"`
}

// BusinessUnitInput creates or updates a business unit.
type BusinessUnitInput struct {
	Name     string         `json:"name" validate:"required,max=120"`
	Slug     string         `json:"slug" validate:"omitempty,max=63"`
	Settings map[string]any `json:"settings"`
}

// StatusInput changes a tenant's status.
type StatusInput struct {
	Status Status `json:"status" validate:"required,oneof=active suspended cancelled"`
}

// PrincipalSlugSuffix names the default business unit of a tenant.
const PrincipalSlugSuffix = "-principal"
