package roles

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"

	"github.com/rentora/rentora/internal/rbac"
	"github.com/rentora/rentora/internal/reqctx"
	"github.com/rentora/rentora/internal/shared"
)

// Authorizer gates mutations on the principal bound to the context.
type Authorizer interface {
	Authorize(ctx context.Context, resource rbac.Resource, action rbac.Action) error
}

// Invalidator retires cached grants after the permission graph changes.
type Invalidator interface {
	Invalidate(ctx context.Context) error
}

// Service handles role provisioning and custom role lifecycle.
type Service struct {
	repo        RepositoryPort
	catalog     *rbac.Catalog
	authz       Authorizer
	invalidator Invalidator
	logger      *slog.Logger
}

// NewService builds Service instance.
func NewService(repo RepositoryPort, catalog *rbac.Catalog, authz Authorizer, invalidator Invalidator, logger *slog.Logger) *Service {
	return &Service{repo: repo, catalog: catalog, authz: authz, invalidator: invalidator, logger: logger}
}

// ProvisionSystemRoles upserts the catalog and the fixed system roles, then full-replaces
// each system role's permission set with its policy. Running it again yields identical state.
func (s *Service) ProvisionSystemRoles(ctx context.Context) error {
	actor := actorOf(ctx)
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		if err := tx.UpsertPermissions(ctx, s.catalog.All()); err != nil {
			return fmt.Errorf("roles: upsert permissions: %w", err)
		}
		for _, role := range rbac.SystemRoles {
			if err := tx.UpsertSystemRole(ctx, role); err != nil {
				return fmt.Errorf("roles: upsert %s: %w", role.Key, err)
			}
			if _, err := tx.LockRole(ctx, role.ID); err != nil {
				return fmt.Errorf("roles: lock %s: %w", role.Key, err)
			}
			if err := tx.ReplacePermissions(ctx, role.ID, rbac.PolicyFor(role.Key, s.catalog)); err != nil {
				return fmt.Errorf("roles: assign %s: %w", role.Key, err)
			}
		}
		return tx.RecordAudit(ctx, shared.AuditLog{
			ActorID:  actor.UserID,
			Action:   "roles.provision",
			Entity:   "roles",
			EntityID: "system",
			Meta:     map[string]any{"roles": len(rbac.SystemRoles), "permissions": s.catalog.Len()},
		})
	})
	if err != nil {
		return err
	}
	s.invalidate(ctx)
	return nil
}

// AssignPermissionSet replaces the permission set of a custom role. System roles only
// change through ProvisionSystemRoles.
func (s *Service) AssignPermissionSet(ctx context.Context, roleID uuid.UUID, perms []rbac.Permission) (Role, error) {
	if err := s.authz.Authorize(ctx, rbac.ResourceRoles, rbac.ActionUpdate); err != nil {
		return Role{}, err
	}
	p, err := reqctx.Get(ctx)
	if err != nil {
		return Role{}, err
	}
	valid, err := s.catalog.Validate(perms)
	if err != nil {
		return Role{}, fmt.Errorf("%w: %v", shared.ErrValidation, err)
	}

	var out Role
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		role, err := tx.LockRole(ctx, roleID)
		if err != nil {
			return err
		}
		if err := ensureVisible(p, role); err != nil {
			return err
		}
		if role.IsSystem {
			return fmt.Errorf("%w: %s", shared.ErrSystemRole, role.Name)
		}
		if err := tx.ReplacePermissions(ctx, role.ID, valid); err != nil {
			return err
		}
		role.Permissions, err = tx.RolePermissions(ctx, role.ID)
		if err != nil {
			return err
		}
		out = role
		return tx.RecordAudit(ctx, shared.AuditLog{
			TenantID: p.TenantID,
			ActorID:  p.UserID,
			Action:   "roles.assign_permissions",
			Entity:   "roles",
			EntityID: role.ID.String(),
			Meta:     map[string]any{"permissions": permissionStrings(valid)},
		})
	})
	if err != nil {
		return Role{}, err
	}
	s.invalidate(ctx)
	return out, nil
}

// CreateCustomRole creates a tenant role with the given permission set.
func (s *Service) CreateCustomRole(ctx context.Context, tenantID uuid.UUID, in CreateRoleInput) (Role, error) {
	if err := s.authz.Authorize(ctx, rbac.ResourceRoles, rbac.ActionCreate); err != nil {
		return Role{}, err
	}
	p, err := reqctx.Get(ctx)
	if err != nil {
		return Role{}, err
	}
	if tenantID == uuid.Nil {
		return Role{}, fmt.Errorf("%w: tenant required", shared.ErrValidation)
	}
	if !p.IsPlatformSuper() && tenantID != p.TenantID {
		return Role{}, fmt.Errorf("%w: role tenant", shared.ErrTenantMismatch)
	}
	name := strings.TrimSpace(in.Name)
	if name == "" {
		return Role{}, fmt.Errorf("%w: role name required", shared.ErrValidation)
	}
	if rbac.IsSystemRoleName(strings.ToUpper(name)) {
		return Role{}, fmt.Errorf("%w: %s is reserved", shared.ErrValidation, name)
	}
	perms, err := s.parse(in.Permissions)
	if err != nil {
		return Role{}, err
	}

	var out Role
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		role, err := tx.InsertRole(ctx, Role{
			TenantID:    uuid.NullUUID{UUID: tenantID, Valid: true},
			Name:        name,
			Description: strings.TrimSpace(in.Description),
		})
		if err != nil {
			return err
		}
		if err := tx.ReplacePermissions(ctx, role.ID, perms); err != nil {
			return err
		}
		role.Permissions = perms
		out = role
		return tx.RecordAudit(ctx, shared.AuditLog{
			TenantID: tenantID,
			ActorID:  p.UserID,
			Action:   "roles.create",
			Entity:   "roles",
			EntityID: role.ID.String(),
			Meta:     map[string]any{"name": name, "permissions": permissionStrings(perms)},
		})
	})
	if err != nil {
		return Role{}, err
	}
	s.invalidate(ctx)
	return out, nil
}

// DeleteRole removes a custom role. System roles and roles referenced by any business unit
// assignment fail with shared.ErrRoleInUse and leave state unchanged.
func (s *Service) DeleteRole(ctx context.Context, roleID uuid.UUID) error {
	if err := s.authz.Authorize(ctx, rbac.ResourceRoles, rbac.ActionDelete); err != nil {
		return err
	}
	p, err := reqctx.Get(ctx)
	if err != nil {
		return err
	}
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		role, err := tx.LockRole(ctx, roleID)
		if err != nil {
			return err
		}
		if err := ensureVisible(p, role); err != nil {
			return err
		}
		if role.IsSystem {
			return fmt.Errorf("%w: %w", shared.ErrRoleInUse, shared.ErrSystemRole)
		}
		n, err := tx.CountAssignments(ctx, role.ID)
		if err != nil {
			return err
		}
		if n > 0 {
			return fmt.Errorf("%w: %d assignments", shared.ErrRoleInUse, n)
		}
		if err := tx.DeleteRole(ctx, role.ID); err != nil {
			return err
		}
		return tx.RecordAudit(ctx, shared.AuditLog{
			TenantID: p.TenantID,
			ActorID:  p.UserID,
			Action:   "roles.delete",
			Entity:   "roles",
			EntityID: role.ID.String(),
			Meta:     map[string]any{"name": role.Name},
		})
	})
	if err != nil {
		return err
	}
	s.invalidate(ctx)
	return nil
}

// ListRoles returns system roles plus the custom roles of the current tenant.
func (s *Service) ListRoles(ctx context.Context) ([]Role, error) {
	if err := s.authz.Authorize(ctx, rbac.ResourceRoles, rbac.ActionRead); err != nil {
		return nil, err
	}
	tenantID, err := reqctx.Require(ctx, reqctx.FieldTenant)
	if err != nil {
		return nil, err
	}
	return s.repo.ListRoles(ctx, tenantID)
}

// GetRole returns one role visible to the current tenant.
func (s *Service) GetRole(ctx context.Context, id uuid.UUID) (Role, error) {
	if err := s.authz.Authorize(ctx, rbac.ResourceRoles, rbac.ActionRead); err != nil {
		return Role{}, err
	}
	p, err := reqctx.Get(ctx)
	if err != nil {
		return Role{}, err
	}
	role, err := s.repo.GetRole(ctx, id)
	if err != nil {
		return Role{}, err
	}
	if err := ensureVisible(p, role); err != nil {
		return Role{}, err
	}
	return role, nil
}

// ListPermissions returns the provisioned catalog.
func (s *Service) ListPermissions(ctx context.Context) ([]PermissionRecord, error) {
	if err := s.authz.Authorize(ctx, rbac.ResourceRoles, rbac.ActionRead); err != nil {
		return nil, err
	}
	return s.repo.ListPermissions(ctx)
}

// ParsePermissions parses "resource:action" strings and validates them against the catalog.
func (s *Service) ParsePermissions(raw []string) ([]rbac.Permission, error) {
	return s.parse(raw)
}

func (s *Service) parse(raw []string) ([]rbac.Permission, error) {
	perms := make([]rbac.Permission, 0, len(raw))
	for _, r := range raw {
		p, err := rbac.ParsePermission(r)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", shared.ErrValidation, err)
		}
		perms = append(perms, p)
	}
	valid, err := s.catalog.Validate(perms)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", shared.ErrValidation, err)
	}
	return valid, nil
}

func (s *Service) invalidate(ctx context.Context) {
	if s.invalidator == nil {
		return
	}
	if err := s.invalidator.Invalidate(ctx); err != nil && s.logger != nil {
		s.logger.ErrorContext(ctx, "invalidate permission cache", slog.Any("error", err))
	}
}

// ensureVisible hides other tenants' custom roles behind ErrNotFound.
func ensureVisible(p reqctx.Principal, role Role) error {
	if role.IsSystem || p.IsPlatformSuper() {
		return nil
	}
	if !role.TenantID.Valid || role.TenantID.UUID != p.TenantID {
		return fmt.Errorf("%w: role %s", shared.ErrNotFound, role.ID)
	}
	return nil
}

func actorOf(ctx context.Context) reqctx.Principal {
	if p, err := reqctx.Get(ctx); err == nil {
		return p
	}
	return reqctx.SystemPrincipal(uuid.Nil)
}

func permissionStrings(perms []rbac.Permission) []string {
	out := make([]string, len(perms))
	for i, p := range perms {
		out[i] = p.String()
	}
	return out
}

