package users

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/rentora/rentora/internal/auth"
	"github.com/rentora/rentora/internal/datastore"
	"github.com/rentora/rentora/internal/platform/db"
	"github.com/rentora/rentora/internal/rbac"
	"github.com/rentora/rentora/internal/reqctx"
	"github.com/rentora/rentora/internal/roles"
	"github.com/rentora/rentora/internal/shared"
	"github.com/rentora/rentora/internal/tenancy"
)

// Authorizer gates operations on the principal bound to the context. AuthorizeAssignment
// refuses handing out a role that outranks the caller.
type Authorizer interface {
	Authorize(ctx context.Context, resource rbac.Resource, action rbac.Action) error
	AuthorizeAssignment(ctx context.Context, roleID uuid.UUID, perms []rbac.Permission) error
}

// Invalidator retires cached grants after memberships change.
type Invalidator interface {
	Invalidate(ctx context.Context) error
}

// RoleSource loads role definitions.
type RoleSource interface {
	GetRole(ctx context.Context, id uuid.UUID) (roles.Role, error)
}

// Service handles user business logic for the tenant bound to the context.
type Service struct {
	store       datastore.Executor
	roles       RoleSource
	authz       Authorizer
	invalidator Invalidator
	logger      *slog.Logger
	now         func() time.Time
}

// NewService builds Service instance. store should be a tenant guard able to open
// transactions (datastore.TxRunner).
func NewService(store datastore.Executor, roles RoleSource, authz Authorizer, invalidator Invalidator, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{store: store, roles: roles, authz: authz, invalidator: invalidator, logger: logger, now: time.Now}
}

// ListUsers returns the users of the current tenant.
func (s *Service) ListUsers(ctx context.Context) ([]User, error) {
	if err := s.authz.Authorize(ctx, rbac.ResourceUsers, rbac.ActionRead); err != nil {
		return nil, err
	}
	filter, err := datastore.ScopeFilter(ctx, nil)
	if err != nil {
		return nil, err
	}
	rows, err := s.store.Find(ctx, datastore.Query{Entity: EntityUsers, Filter: filter, OrderBy: "email"})
	if err != nil {
		return nil, err
	}
	out := make([]User, len(rows))
	for i, r := range rows {
		out[i] = userFrom(r)
	}
	return out, nil
}

// GetUser returns one user of the current tenant.
func (s *Service) GetUser(ctx context.Context, id uuid.UUID) (User, error) {
	if err := s.authz.Authorize(ctx, rbac.ResourceUsers, rbac.ActionRead); err != nil {
		return User{}, err
	}
	return s.findUser(ctx, id)
}

// CreateUser adds a user to the current tenant and optionally assigns a membership.
func (s *Service) CreateUser(ctx context.Context, in CreateUserInput) (User, error) {
	if err := s.authz.Authorize(ctx, rbac.ResourceUsers, rbac.ActionCreate); err != nil {
		return User{}, err
	}
	email := strings.ToLower(strings.TrimSpace(in.Email))
	name := strings.TrimSpace(in.Name)
	if email == "" || name == "" {
		return User{}, fmt.Errorf("%w: email and name required", shared.ErrValidation)
	}
	var buID, roleID uuid.UUID
	if in.BusinessUnitID != "" {
		var err error
		if buID, err = uuid.Parse(in.BusinessUnitID); err != nil {
			return User{}, fmt.Errorf("%w: business unit id", shared.ErrValidation)
		}
		if roleID, err = uuid.Parse(in.RoleID); err != nil {
			return User{}, fmt.Errorf("%w: role id", shared.ErrValidation)
		}
		if err := s.ensureAssignable(ctx, buID, roleID); err != nil {
			return User{}, err
		}
	}
	hash, err := auth.HashPassword(in.Password)
	if err != nil {
		return User{}, err
	}

	var user User
	err = s.inTx(ctx, func(ctx context.Context, store datastore.Executor) error {
		dupFilter, err := datastore.ScopeFilter(ctx, datastore.Filter{"email": email})
		if err != nil {
			return err
		}
		n, err := store.Count(ctx, datastore.Query{Entity: EntityUsers, Filter: dupFilter})
		if err != nil {
			return err
		}
		if n > 0 {
			return fmt.Errorf("%w: %s", shared.ErrDuplicateEmail, email)
		}

		now := s.now().UTC()
		rec, err := datastore.ScopeRecord(ctx, datastore.Record{
			"email":         email,
			"name":          name,
			"password_hash": hash,
			"is_active":     true,
			"created_at":    now,
			"updated_at":    now,
		})
		if err != nil {
			return err
		}
		created, err := store.Insert(ctx, EntityUsers, rec)
		if err != nil {
			if _, dup := db.UniqueViolation(err); dup {
				return fmt.Errorf("%w: %s", shared.ErrDuplicateEmail, email)
			}
			return err
		}
		user = userFrom(created)
		if buID == uuid.Nil {
			return nil
		}
		_, err = s.upsertMembership(ctx, store, user.ID, buID, roleID)
		return err
	})
	if err != nil {
		return User{}, err
	}
	s.logger.InfoContext(ctx, "user created", slog.String("user_id", user.ID.String()))
	if buID != uuid.Nil {
		s.invalidate(ctx)
	}
	return user, nil
}

// SetActive enables or disables a user. Callers cannot disable themselves.
func (s *Service) SetActive(ctx context.Context, id uuid.UUID, active bool) (User, error) {
	if err := s.authz.Authorize(ctx, rbac.ResourceUsers, rbac.ActionUpdate); err != nil {
		return User{}, err
	}
	p, err := reqctx.Get(ctx)
	if err != nil {
		return User{}, err
	}
	if !active && p.UserID == id {
		return User{}, fmt.Errorf("%w: cannot deactivate yourself", shared.ErrValidation)
	}
	filter, err := datastore.ScopeFilter(ctx, datastore.Filter{"id": id})
	if err != nil {
		return User{}, err
	}
	n, err := s.store.Update(ctx, EntityUsers, filter, datastore.Record{"is_active": active, "updated_at": s.now().UTC()})
	if err != nil {
		return User{}, err
	}
	if n == 0 {
		return User{}, fmt.Errorf("%w: user %s", shared.ErrNotFound, id)
	}
	return s.findUser(ctx, id)
}

// Memberships lists the business units of a user in the current tenant.
func (s *Service) Memberships(ctx context.Context, userID uuid.UUID) ([]Membership, error) {
	if err := s.authz.Authorize(ctx, rbac.ResourceUsers, rbac.ActionRead); err != nil {
		return nil, err
	}
	filter, err := datastore.ScopeFilter(ctx, datastore.Filter{"user_id": userID})
	if err != nil {
		return nil, err
	}
	rows, err := s.store.Find(ctx, datastore.Query{Entity: EntityMemberships, Filter: filter, OrderBy: "created_at"})
	if err != nil {
		return nil, err
	}
	out := make([]Membership, len(rows))
	for i, r := range rows {
		out[i] = membershipFrom(r)
	}
	return out, nil
}

// AssignMembership gives a user a role in a business unit, replacing any previous role there.
func (s *Service) AssignMembership(ctx context.Context, userID, buID, roleID uuid.UUID) (Membership, error) {
	if err := s.authz.Authorize(ctx, rbac.ResourceUsers, rbac.ActionUpdate); err != nil {
		return Membership{}, err
	}
	if _, err := s.findUser(ctx, userID); err != nil {
		return Membership{}, err
	}
	if err := s.ensureAssignable(ctx, buID, roleID); err != nil {
		return Membership{}, err
	}
	var m Membership
	err := s.inTx(ctx, func(ctx context.Context, store datastore.Executor) error {
		var err error
		m, err = s.upsertMembership(ctx, store, userID, buID, roleID)
		return err
	})
	if err != nil {
		return Membership{}, err
	}
	s.invalidate(ctx)
	s.logger.InfoContext(ctx, "membership assigned",
		slog.String("user_id", userID.String()),
		slog.String("business_unit_id", buID.String()),
		slog.String("role_id", roleID.String()))
	return m, nil
}

// RemoveMembership takes a user out of a business unit.
func (s *Service) RemoveMembership(ctx context.Context, userID, buID uuid.UUID) error {
	if err := s.authz.Authorize(ctx, rbac.ResourceUsers, rbac.ActionUpdate); err != nil {
		return err
	}
	filter, err := datastore.ScopeFilter(ctx, datastore.Filter{"user_id": userID, "business_unit_id": buID})
	if err != nil {
		return err
	}
	n, err := s.store.Delete(ctx, EntityMemberships, filter)
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("%w: membership", shared.ErrNotFound)
	}
	s.invalidate(ctx)
	return nil
}

func (s *Service) upsertMembership(ctx context.Context, store datastore.Executor, userID, buID, roleID uuid.UUID) (Membership, error) {
	filter, err := datastore.ScopeFilter(ctx, datastore.Filter{"user_id": userID, "business_unit_id": buID})
	if err != nil {
		return Membership{}, err
	}
	n, err := store.Update(ctx, EntityMemberships, filter, datastore.Record{"role_id": roleID})
	if err != nil {
		return Membership{}, err
	}
	if n == 0 {
		rec, err := datastore.ScopeRecord(ctx, datastore.Record{
			"user_id":          userID,
			"business_unit_id": buID,
			"role_id":          roleID,
			"created_at":       s.now().UTC(),
		})
		if err != nil {
			return Membership{}, err
		}
		if _, err := store.Insert(ctx, EntityMemberships, rec); err != nil {
			return Membership{}, err
		}
	}
	rows, err := store.Find(ctx, datastore.Query{Entity: EntityMemberships, Filter: filter, Limit: 1})
	if err != nil {
		return Membership{}, err
	}
	if len(rows) == 0 {
		return Membership{}, fmt.Errorf("%w: membership", shared.ErrNotFound)
	}
	return membershipFrom(rows[0]), nil
}

// ensureAssignable checks that the business unit belongs to the current tenant, the role
// is a system role or one of the tenant's custom roles, and the caller may hand it out.
func (s *Service) ensureAssignable(ctx context.Context, buID, roleID uuid.UUID) error {
	filter, err := datastore.ScopeFilter(ctx, datastore.Filter{"id": buID})
	if err != nil {
		return err
	}
	n, err := s.store.Count(ctx, datastore.Query{Entity: tenancy.EntityBusinessUnits, Filter: filter})
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("%w: business unit %s", shared.ErrNotFound, buID)
	}
	role, err := s.roles.GetRole(ctx, roleID)
	if err != nil {
		return err
	}
	tenantID, err := reqctx.Require(ctx, reqctx.FieldTenant)
	if err != nil {
		return err
	}
	if !role.IsSystem && (!role.TenantID.Valid || role.TenantID.UUID != tenantID) {
		return fmt.Errorf("%w: role %s", shared.ErrNotFound, roleID)
	}
	return s.authz.AuthorizeAssignment(ctx, role.ID, role.Permissions)
}

// GetForSystem returns a user of the tenant bound by a trusted system caller.
func (s *Service) GetForSystem(ctx context.Context, id uuid.UUID) (User, error) {
	p, err := reqctx.Get(ctx)
	if err != nil {
		return User{}, err
	}
	if !p.System {
		return User{}, fmt.Errorf("%w: system caller required", shared.ErrPermissionDenied)
	}
	return s.findUser(ctx, id)
}

func (s *Service) inTx(ctx context.Context, fn func(context.Context, datastore.Executor) error) error {
	runner, ok := s.store.(datastore.TxRunner)
	if !ok {
		return datastore.ErrNoTransactions
	}
	return runner.InTx(ctx, fn)
}

func (s *Service) findUser(ctx context.Context, id uuid.UUID) (User, error) {
	filter, err := datastore.ScopeFilter(ctx, datastore.Filter{"id": id})
	if err != nil {
		return User{}, err
	}
	rows, err := s.store.Find(ctx, datastore.Query{Entity: EntityUsers, Filter: filter, Limit: 1})
	if err != nil {
		return User{}, err
	}
	if len(rows) == 0 {
		return User{}, fmt.Errorf("%w: user %s", shared.ErrNotFound, id)
	}
	return userFrom(rows[0]), nil
}

func (s *Service) invalidate(ctx context.Context) {
	if s.invalidator == nil {
		return
	}
	if err := s.invalidator.Invalidate(ctx); err != nil {
		s.logger.ErrorContext(ctx, "invalidate permission cache", slog.Any("error", err))
	}
}
