package tenancy

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/rentora/rentora/internal/datastore"
	"github.com/rentora/rentora/internal/platform/db"
	"github.com/rentora/rentora/internal/rbac"
	"github.com/rentora/rentora/internal/reqctx"
	"github.com/rentora/rentora/internal/shared"
)

// EntityBusinessUnits is the datastore entity backing business units.
const EntityBusinessUnits datastore.Entity = "business_units"

// BusinessUnitSpec registers business units with the datastore.
var BusinessUnitSpec = datastore.Spec{
	Entity:       EntityBusinessUnits,
	Table:        "business_units",
	Columns:      []string{"id", datastore.TenantColumn, "name", "slug", "settings", "created_at", "updated_at"},
	TenantScoped: true,
}

// Authorizer gates operations on the principal bound to the context.
type Authorizer interface {
	Authorize(ctx context.Context, resource rbac.Resource, action rbac.Action) error
}

// Invalidator retires cached grants after memberships disappear.
type Invalidator interface {
	Invalidate(ctx context.Context) error
}

// BusinessUnits serves business unit CRUD for the tenant bound to the context.
type BusinessUnits struct {
	store       datastore.Executor
	authz       Authorizer
	invalidator Invalidator
	logger      *slog.Logger
	now         func() time.Time
}

// NewBusinessUnits builds the service. store should be a tenant guard.
func NewBusinessUnits(store datastore.Executor, authz Authorizer, invalidator Invalidator, logger *slog.Logger) *BusinessUnits {
	if logger == nil {
		logger = slog.Default()
	}
	return &BusinessUnits{store: store, authz: authz, invalidator: invalidator, logger: logger, now: time.Now}
}

// List returns the business units of the current tenant.
func (b *BusinessUnits) List(ctx context.Context) ([]BusinessUnit, error) {
	if err := b.authz.Authorize(ctx, rbac.ResourceBusinessUnits, rbac.ActionRead); err != nil {
		return nil, err
	}
	return b.list(ctx)
}

// ListForSystem returns the business units of the tenant bound by a trusted system caller.
func (b *BusinessUnits) ListForSystem(ctx context.Context) ([]BusinessUnit, error) {
	p, err := reqctx.Get(ctx)
	if err != nil {
		return nil, err
	}
	if !p.System {
		return nil, fmt.Errorf("%w: system caller required", shared.ErrPermissionDenied)
	}
	return b.list(ctx)
}

func (b *BusinessUnits) list(ctx context.Context) ([]BusinessUnit, error) {
	filter, err := datastore.ScopeFilter(ctx, nil)
	if err != nil {
		return nil, err
	}
	rows, err := b.store.Find(ctx, datastore.Query{Entity: EntityBusinessUnits, Filter: filter, OrderBy: "name"})
	if err != nil {
		return nil, err
	}
	out := make([]BusinessUnit, len(rows))
	for i, r := range rows {
		out[i] = businessUnitFrom(r)
	}
	return out, nil
}

// Get returns one business unit of the current tenant.
func (b *BusinessUnits) Get(ctx context.Context, id uuid.UUID) (BusinessUnit, error) {
	if err := b.authz.Authorize(ctx, rbac.ResourceBusinessUnits, rbac.ActionRead); err != nil {
		return BusinessUnit{}, err
	}
	return b.get(ctx, id)
}

func (b *BusinessUnits) get(ctx context.Context, id uuid.UUID) (BusinessUnit, error) {
	filter, err := datastore.ScopeFilter(ctx, datastore.Filter{"id": id})
	if err != nil {
		return BusinessUnit{}, err
	}
	rows, err := b.store.Find(ctx, datastore.Query{Entity: EntityBusinessUnits, Filter: filter, Limit: 1})
	if err != nil {
		return BusinessUnit{}, err
	}
	if len(rows) == 0 {
		return BusinessUnit{}, fmt.Errorf("%w: business unit %s", shared.ErrNotFound, id)
	}
	return businessUnitFrom(rows[0]), nil
}

// Create adds a business unit to the current tenant. The slug defaults to the slugified name.
func (b *BusinessUnits) Create(ctx context.Context, in BusinessUnitInput) (BusinessUnit, error) {
	if err := b.authz.Authorize(ctx, rbac.ResourceBusinessUnits, rbac.ActionCreate); err != nil {
		return BusinessUnit{}, err
	}
	name, slug, err := normaliseUnit(in)
	if err != nil {
		return BusinessUnit{}, err
	}
	if err := b.ensureSlugFree(ctx, slug, uuid.Nil); err != nil {
		return BusinessUnit{}, err
	}
	settings := in.Settings
	if settings == nil {
		settings = map[string]any{}
	}
	now := b.now().UTC()
	rec, err := datastore.ScopeRecord(ctx, datastore.Record{
		"name":       name,
		"slug":       slug,
		"settings":   settings,
		"created_at": now,
		"updated_at": now,
	})
	if err != nil {
		return BusinessUnit{}, err
	}
	created, err := b.store.Insert(ctx, EntityBusinessUnits, rec)
	if err != nil {
		if _, dup := db.UniqueViolation(err); dup {
			return BusinessUnit{}, fmt.Errorf("%w: %s", shared.ErrDuplicateSlug, slug)
		}
		return BusinessUnit{}, err
	}
	bu := businessUnitFrom(created)
	b.logger.InfoContext(ctx, "business unit created",
		slog.String("tenant_id", bu.TenantID.String()),
		slog.String("business_unit_id", bu.ID.String()))
	return bu, nil
}

// Update renames a business unit and replaces its settings.
func (b *BusinessUnits) Update(ctx context.Context, id uuid.UUID, in BusinessUnitInput) (BusinessUnit, error) {
	if err := b.authz.Authorize(ctx, rbac.ResourceBusinessUnits, rbac.ActionUpdate); err != nil {
		return BusinessUnit{}, err
	}
	name, slug, err := normaliseUnit(in)
	if err != nil {
		return BusinessUnit{}, err
	}
	if err := b.ensureSlugFree(ctx, slug, id); err != nil {
		return BusinessUnit{}, err
	}
	filter, err := datastore.ScopeFilter(ctx, datastore.Filter{"id": id})
	if err != nil {
		return BusinessUnit{}, err
	}
	values := datastore.Record{"name": name, "slug": slug, "updated_at": b.now().UTC()}
	if in.Settings != nil {
		values["settings"] = in.Settings
	}
	n, err := b.store.Update(ctx, EntityBusinessUnits, filter, values)
	if err != nil {
		if _, dup := db.UniqueViolation(err); dup {
			return BusinessUnit{}, fmt.Errorf("%w: %s", shared.ErrDuplicateSlug, slug)
		}
		return BusinessUnit{}, err
	}
	if n == 0 {
		return BusinessUnit{}, fmt.Errorf("%w: business unit %s", shared.ErrNotFound, id)
	}
	return b.get(ctx, id)
}

// Delete removes a business unit together with its memberships and records. A tenant
// always keeps at least one business unit.
func (b *BusinessUnits) Delete(ctx context.Context, id uuid.UUID) error {
	if err := b.authz.Authorize(ctx, rbac.ResourceBusinessUnits, rbac.ActionDelete); err != nil {
		return err
	}
	all, err := datastore.ScopeFilter(ctx, nil)
	if err != nil {
		return err
	}
	total, err := b.store.Count(ctx, datastore.Query{Entity: EntityBusinessUnits, Filter: all})
	if err != nil {
		return err
	}
	if total <= 1 {
		return fmt.Errorf("%w: a tenant must keep one business unit", shared.ErrValidation)
	}
	filter, err := datastore.ScopeFilter(ctx, datastore.Filter{"id": id})
	if err != nil {
		return err
	}
	n, err := b.store.Delete(ctx, EntityBusinessUnits, filter)
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("%w: business unit %s", shared.ErrNotFound, id)
	}
	if b.invalidator != nil {
		if err := b.invalidator.Invalidate(ctx); err != nil {
			b.logger.ErrorContext(ctx, "invalidate permission cache", slog.Any("error", err))
		}
	}
	b.logger.InfoContext(ctx, "business unit deleted", slog.String("business_unit_id", id.String()))
	return nil
}

func (b *BusinessUnits) ensureSlugFree(ctx context.Context, slug string, self uuid.UUID) error {
	filter, err := datastore.ScopeFilter(ctx, datastore.Filter{"slug": slug})
	if err != nil {
		return err
	}
	rows, err := b.store.Find(ctx, datastore.Query{Entity: EntityBusinessUnits, Filter: filter})
	if err != nil {
		return err
	}
	for _, r := range rows {
		if r.UUID("id") != self {
			return fmt.Errorf("%w: %s", shared.ErrDuplicateSlug, slug)
		}
	}
	return nil
}

func normaliseUnit(in BusinessUnitInput) (string, string, error) {
	name := strings.TrimSpace(in.Name)
	if name == "" {
		return "", "", fmt.Errorf("%w: business unit name required", shared.ErrValidation)
	}
	slug := Slugify(in.Slug)
	if strings.TrimSpace(in.Slug) == "" {
		slug = Slugify(name)
	}
	if err := ValidateSlug(slug); err != nil {
		return "", "", err
	}
	return name, slug, nil
}

func businessUnitFrom(r datastore.Record) BusinessUnit {
	settings := r.Map("settings")
	if settings == nil {
		settings = map[string]any{}
	}
	return BusinessUnit{
		ID:        r.UUID("id"),
		TenantID:  r.UUID(datastore.TenantColumn),
		Name:      r.String("name"),
		Slug:      r.String("slug"),
		Settings:  settings,
		CreatedAt: r.Time("created_at"),
		UpdatedAt: r.Time("updated_at"),
	}
}
