package rbac

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/rentora/rentora/internal/observability"
	"github.com/rentora/rentora/internal/reqctx"
	"github.com/rentora/rentora/internal/shared"
)

// GrantSource resolves what a user holds in a business unit of a tenant. found is false
// when the user has no assignment there.
type GrantSource interface {
	Grant(ctx context.Context, tenantID, userID, businessUnitID uuid.UUID) (grant Grant, found bool, err error)
}

// Evaluator decides permission checks.
type Evaluator struct {
	catalog *Catalog
	grants  GrantSource
	logger  *slog.Logger
	metrics *observability.Metrics
}

// NewEvaluator builds an evaluator over the catalog and grant source.
func NewEvaluator(catalog *Catalog, grants GrantSource, logger *slog.Logger, metrics *observability.Metrics) *Evaluator {
	return &Evaluator{catalog: catalog, grants: grants, logger: logger, metrics: metrics}
}

// Catalog exposes the permission catalog.
func (e *Evaluator) Catalog() *Catalog {
	return e.catalog
}

// Check evaluates perm for p. Errors come only from the grant source; every other
// outcome is a Decision.
func (e *Evaluator) Check(ctx context.Context, p reqctx.Principal, perm Permission) (Decision, error) {
	d, err := e.decide(ctx, p, perm)
	if err != nil {
		return Decision{Permission: perm}, err
	}
	e.metrics.ObserveDecision(d.Allowed, string(d.Reason))
	if e.logger != nil && (d.Reason == ReasonPlatformSuper || d.Reason == ReasonOwner) {
		e.logger.InfoContext(ctx, "rbac bypass",
			slog.String("reason", string(d.Reason)),
			slog.String("user_id", p.UserID.String()),
			slog.String("tenant_id", p.TenantID.String()),
			slog.String("permission", perm.String()))
	}
	return d, nil
}

func (e *Evaluator) decide(ctx context.Context, p reqctx.Principal, perm Permission) (Decision, error) {
	d := Decision{Permission: perm}
	if !e.catalog.Contains(perm) {
		d.Reason = ReasonUnknownPermission
		return d, nil
	}
	if p.IsPlatformSuper() {
		d.Allowed, d.Reason = true, ReasonPlatformSuper
		return d, nil
	}
	if p.HasRole(RoleOwner) && p.HasTenant() {
		d.Allowed, d.Reason = true, ReasonOwner
		return d, nil
	}
	if !p.HasTenant() || p.BusinessUnitID == uuid.Nil {
		d.Reason = ReasonNoBusinessUnit
		return d, nil
	}
	grant, found, err := e.grants.Grant(ctx, p.TenantID, p.UserID, p.BusinessUnitID)
	if err != nil {
		return d, fmt.Errorf("rbac: load grant: %w", err)
	}
	if !found {
		d.Reason = ReasonNoAssignment
		return d, nil
	}
	if grant.RoleID == OwnerRoleID {
		d.Allowed, d.Reason = true, ReasonOwner
		return d, nil
	}
	if grant.Has(perm) {
		d.Allowed, d.Reason = true, ReasonGranted
		return d, nil
	}
	d.Reason = ReasonNotGranted
	return d, nil
}

// HasPermission reports whether p may perform action on resource. Grant source failures
// evaluate to false.
func (e *Evaluator) HasPermission(ctx context.Context, p reqctx.Principal, resource Resource, action Action) bool {
	d, err := e.Check(ctx, p, Perm(resource, action))
	if err != nil {
		if e.logger != nil {
			e.logger.ErrorContext(ctx, "rbac check failed", slog.Any("error", err))
		}
		return false
	}
	return d.Allowed
}

// Authorize checks the principal bound to ctx and returns shared.ErrPermissionDenied when
// the action is not allowed. Services call it before starting a mutation.
func (e *Evaluator) Authorize(ctx context.Context, resource Resource, action Action) error {
	p, err := reqctx.Get(ctx)
	if err != nil {
		return err
	}
	perm := Perm(resource, action)
	d, err := e.Check(ctx, p, perm)
	if err != nil {
		return err
	}
	if !d.Allowed {
		return fmt.Errorf("%w: %s (%s)", shared.ErrPermissionDenied, perm, d.Reason)
	}
	return nil
}

// AuthorizeAssignment checks that the principal bound to ctx may hand out a role. Platform
// supers and owners may assign any role. Nobody else may assign OWNER, a system role
// ranked above their own, or a custom role granting permissions they do not hold.
func (e *Evaluator) AuthorizeAssignment(ctx context.Context, roleID uuid.UUID, perms []Permission) error {
	p, err := reqctx.Get(ctx)
	if err != nil {
		return err
	}
	if p.IsPlatformSuper() || (p.HasRole(RoleOwner) && p.HasTenant()) {
		return nil
	}
	if !p.HasTenant() || p.BusinessUnitID == uuid.Nil {
		return fmt.Errorf("%w: assign role (%s)", shared.ErrPermissionDenied, ReasonNoBusinessUnit)
	}
	grant, found, err := e.grants.Grant(ctx, p.TenantID, p.UserID, p.BusinessUnitID)
	if err != nil {
		return fmt.Errorf("rbac: load grant: %w", err)
	}
	if !found {
		return fmt.Errorf("%w: assign role (%s)", shared.ErrPermissionDenied, ReasonNoAssignment)
	}
	if grant.RoleID == OwnerRoleID {
		return nil
	}

	if target, ok := SystemRoleByID(roleID); ok {
		rank := 0
		if own, ok := SystemRoleByID(grant.RoleID); ok {
			rank = own.Rank
		}
		if target.ID == OwnerRoleID || target.Rank > rank {
			e.logDeniedAssignment(ctx, p, target.Key)
			return fmt.Errorf("%w: cannot assign %s", shared.ErrPermissionDenied, target.Key)
		}
		return nil
	}
	for _, perm := range perms {
		if !grant.Has(perm) {
			e.logDeniedAssignment(ctx, p, roleID.String())
			return fmt.Errorf("%w: role grants %s", shared.ErrPermissionDenied, perm)
		}
	}
	return nil
}

func (e *Evaluator) logDeniedAssignment(ctx context.Context, p reqctx.Principal, role string) {
	if e.logger != nil {
		e.logger.WarnContext(ctx, "rbac assignment denied",
			slog.String("user_id", p.UserID.String()),
			slog.String("tenant_id", p.TenantID.String()),
			slog.String("role", role))
	}
}

// Effective lists every catalog permission p holds.
func (e *Evaluator) Effective(ctx context.Context, p reqctx.Principal) ([]Permission, error) {
	if p.IsPlatformSuper() || (p.HasRole(RoleOwner) && p.HasTenant()) {
		return e.catalog.All(), nil
	}
	if !p.HasTenant() || p.BusinessUnitID == uuid.Nil {
		return nil, nil
	}
	grant, found, err := e.grants.Grant(ctx, p.TenantID, p.UserID, p.BusinessUnitID)
	if err != nil {
		return nil, fmt.Errorf("rbac: load grant: %w", err)
	}
	if !found {
		return nil, nil
	}
	if grant.RoleID == OwnerRoleID {
		return e.catalog.All(), nil
	}
	var out []Permission
	for _, perm := range e.catalog.All() {
		if grant.Has(perm) {
			out = append(out, perm)
		}
	}
	return out, nil
}

// PrincipalFor builds the principal of a tenant member as the authentication step would,
// with the role name resolved from the assignment.
func (e *Evaluator) PrincipalFor(ctx context.Context, tenantID, userID, businessUnitID uuid.UUID) (reqctx.Principal, error) {
	p := reqctx.Principal{UserID: userID, TenantID: tenantID, BusinessUnitID: businessUnitID}
	grant, found, err := e.grants.Grant(ctx, tenantID, userID, businessUnitID)
	if err != nil {
		return p, fmt.Errorf("rbac: load grant: %w", err)
	}
	if found {
		key := grant.RoleName
		if r, ok := SystemRoleByID(grant.RoleID); ok {
			key = r.Key
		}
		p.Roles = []string{key}
	}
	return p, nil
}
