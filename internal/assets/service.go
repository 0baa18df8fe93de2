package assets

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/rentora/rentora/internal/datastore"
	"github.com/rentora/rentora/internal/rbac"
	"github.com/rentora/rentora/internal/reqctx"
	"github.com/rentora/rentora/internal/shared"
)

// Authorizer gates operations on the principal bound to the context.
type Authorizer interface {
	Authorize(ctx context.Context, resource rbac.Resource, action rbac.Action) error
}

// Service serves assets of the business unit bound to the context.
type Service struct {
	store  datastore.Executor
	authz  Authorizer
	logger *slog.Logger
	now    func() time.Time
}

// NewService builds Service instance. store should be a tenant guard.
func NewService(store datastore.Executor, authz Authorizer, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{store: store, authz: authz, logger: logger, now: time.Now}
}

// List returns one page of assets of the current business unit.
func (s *Service) List(ctx context.Context, f ListFilter) ([]Asset, shared.Pagination, error) {
	if err := s.authz.Authorize(ctx, rbac.ResourceAssets, rbac.ActionRead); err != nil {
		return nil, shared.Pagination{}, err
	}
	filter, err := unitFilter(ctx, nil)
	if err != nil {
		return nil, shared.Pagination{}, err
	}
	if f.Status != "" {
		filter["status"] = string(f.Status)
	}
	total, err := s.store.Count(ctx, datastore.Query{Entity: EntityAssets, Filter: filter})
	if err != nil {
		return nil, shared.Pagination{}, err
	}
	page := shared.NewPagination(f.Page, f.PerPage, int(total))
	rows, err := s.store.Find(ctx, datastore.Query{
		Entity:  EntityAssets,
		Filter:  filter,
		OrderBy: "name",
		Limit:   page.PerPage,
		Offset:  page.Offset(),
	})
	if err != nil {
		return nil, shared.Pagination{}, err
	}
	out := make([]Asset, len(rows))
	for i, r := range rows {
		out[i] = assetFrom(r)
	}
	return out, page, nil
}

// Get returns one asset of the current business unit.
func (s *Service) Get(ctx context.Context, id uuid.UUID) (Asset, error) {
	if err := s.authz.Authorize(ctx, rbac.ResourceAssets, rbac.ActionRead); err != nil {
		return Asset{}, err
	}
	return s.get(ctx, id)
}

func (s *Service) get(ctx context.Context, id uuid.UUID) (Asset, error) {
	filter, err := unitFilter(ctx, datastore.Filter{"id": id})
	if err != nil {
		return Asset{}, err
	}
	rows, err := s.store.Find(ctx, datastore.Query{Entity: EntityAssets, Filter: filter, Limit: 1})
	if err != nil {
		return Asset{}, err
	}
	if len(rows) == 0 {
		return Asset{}, fmt.Errorf("%w: asset %s", shared.ErrNotFound, id)
	}
	return assetFrom(rows[0]), nil
}

// Create registers an asset in the current business unit.
func (s *Service) Create(ctx context.Context, in Input) (Asset, error) {
	if err := s.authz.Authorize(ctx, rbac.ResourceAssets, rbac.ActionCreate); err != nil {
		return Asset{}, err
	}
	values, err := normalise(in)
	if err != nil {
		return Asset{}, err
	}
	scope, err := unitFilter(ctx, nil)
	if err != nil {
		return Asset{}, err
	}
	now := s.now().UTC()
	rec := datastore.Record(scope)
	for k, v := range values {
		rec[k] = v
	}
	rec["created_at"] = now
	rec["updated_at"] = now
	created, err := s.store.Insert(ctx, EntityAssets, rec)
	if err != nil {
		return Asset{}, err
	}
	asset := assetFrom(created)
	s.logger.InfoContext(ctx, "asset created",
		slog.String("asset_id", asset.ID.String()),
		slog.String("business_unit_id", asset.BusinessUnitID.String()))
	return asset, nil
}

// Update replaces the mutable fields of an asset.
func (s *Service) Update(ctx context.Context, id uuid.UUID, in Input) (Asset, error) {
	if err := s.authz.Authorize(ctx, rbac.ResourceAssets, rbac.ActionUpdate); err != nil {
		return Asset{}, err
	}
	values, err := normalise(in)
	if err != nil {
		return Asset{}, err
	}
	filter, err := unitFilter(ctx, datastore.Filter{"id": id})
	if err != nil {
		return Asset{}, err
	}
	values["updated_at"] = s.now().UTC()
	n, err := s.store.Update(ctx, EntityAssets, filter, values)
	if err != nil {
		return Asset{}, err
	}
	if n == 0 {
		return Asset{}, fmt.Errorf("%w: asset %s", shared.ErrNotFound, id)
	}
	return s.get(ctx, id)
}

// Delete removes an asset.
func (s *Service) Delete(ctx context.Context, id uuid.UUID) error {
	if err := s.authz.Authorize(ctx, rbac.ResourceAssets, rbac.ActionDelete); err != nil {
		return err
	}
	filter, err := unitFilter(ctx, datastore.Filter{"id": id})
	if err != nil {
		return err
	}
	n, err := s.store.Delete(ctx, EntityAssets, filter)
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("%w: asset %s", shared.ErrNotFound, id)
	}
	return nil
}

// unitFilter scopes f to the tenant and business unit bound in ctx.
func unitFilter(ctx context.Context, f datastore.Filter) (datastore.Filter, error) {
	buID, err := reqctx.Require(ctx, reqctx.FieldBusinessUnit)
	if err != nil {
		return nil, err
	}
	scoped, err := datastore.ScopeFilter(ctx, f)
	if err != nil {
		return nil, err
	}
	scoped["business_unit_id"] = buID
	return scoped, nil
}

func normalise(in Input) (datastore.Record, error) {
	name := strings.TrimSpace(in.Name)
	if name == "" {
		return nil, fmt.Errorf("%w: asset name required", shared.ErrValidation)
	}
	if in.DailyRateCents < 0 {
		return nil, fmt.Errorf("%w: daily rate must not be negative", shared.ErrValidation)
	}
	status := in.Status
	if status == "" {
		status = StatusAvailable
	}
	switch status {
	case StatusAvailable, StatusRented, StatusMaintenance, StatusRetired:
	default:
		return nil, fmt.Errorf("%w: unknown status %q", shared.ErrValidation, status)
	}
	return datastore.Record{
		"name":             name,
		"serial_number":    strings.TrimSpace(in.SerialNumber),
		"status":           string(status),
		"daily_rate_cents": in.DailyRateCents,
	}, nil
}
