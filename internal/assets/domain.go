// Package assets manages rental equipment inside a tenant's business units.
package assets

import (
	"time"

	"github.com/google/uuid"

	"github.com/rentora/rentora/internal/datastore"
)

// Status is the availability of an asset.
type Status string

const (
	StatusAvailable   Status = "available"
	StatusRented      Status = "rented"
	StatusMaintenance Status = "maintenance"
	StatusRetired     Status = "retired"
)

// EntityAssets is the datastore entity backing assets.
const EntityAssets datastore.Entity = "assets"

// Spec registers assets with the datastore.
var Spec = datastore.Spec{
	Entity: EntityAssets,
	Table:  "assets",
	Columns: []string{
		"id", datastore.TenantColumn, "business_unit_id", "name", "serial_number",
		"status", "daily_rate_cents", "created_at", "updated_at",
	},
	TenantScoped: true,
}

// Asset is one piece of rentable equipment.
type Asset struct {
	ID             uuid.UUID `json:"id"`
	TenantID       uuid.UUID `json:"tenant_id"`
	BusinessUnitID uuid.UUID `json:"business_unit_id"`
	Name           string    `json:"name"`
	SerialNumber   string    `json:"serial_number"`
	Status         Status    `json:"status"`
	DailyRateCents int64     `json:"daily_rate_cents"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// Input creates or updates an asset.
type Input struct {
	Name           string `json:"name" validate:"required,max=160"`
	SerialNumber   string `json:"serial_number" validate:"max=80"`
	Status         Status `json:"status" validate:"omitempty,oneof=available rented maintenance retired"`
	DailyRateCents int64  `json:"daily_rate_cents" validate:"gte=0"`
}

// ListFilter narrows List results.
type ListFilter struct {
	Status  Status
	Page    int
	PerPage int
}

func assetFrom(r datastore.Record) Asset {
	return Asset{
		ID:             r.UUID("id"),
		TenantID:       r.UUID(datastore.TenantColumn),
		BusinessUnitID: r.UUID("business_unit_id"),
		Name:           r.String("name"),
		SerialNumber:   r.String("serial_number"),
		Status:         Status(r.String("status")),
		DailyRateCents: r.Int64("daily_rate_cents"),
		CreatedAt:      r.Time("created_at"),
		UpdatedAt:      r.Time("updated_at"),
	}
}
