package users

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rentora/rentora/internal/auth"
	"github.com/rentora/rentora/internal/datastore"
	"github.com/rentora/rentora/internal/rbac"
	"github.com/rentora/rentora/internal/reqctx"
	"github.com/rentora/rentora/internal/roles"
	"github.com/rentora/rentora/internal/shared"
	"github.com/rentora/rentora/internal/tenancy"
)

type allowAll struct{}

func (allowAll) Authorize(ctx context.Context, resource rbac.Resource, action rbac.Action) error {
	return nil
}

func (allowAll) AuthorizeAssignment(ctx context.Context, roleID uuid.UUID, perms []rbac.Permission) error {
	return nil
}

type denyAll struct{}

func (denyAll) Authorize(ctx context.Context, resource rbac.Resource, action rbac.Action) error {
	return shared.ErrPermissionDenied
}

func (denyAll) AuthorizeAssignment(ctx context.Context, roleID uuid.UUID, perms []rbac.Permission) error {
	return shared.ErrPermissionDenied
}

// memberGrants resolves every principal to the same system role.
type memberGrants struct {
	grant rbac.Grant
}

func (g memberGrants) Grant(ctx context.Context, tenant, user, bu uuid.UUID) (rbac.Grant, bool, error) {
	return g.grant, true, nil
}

// failingMemberships fails membership inserts and otherwise defers to the memory store.
type failingMemberships struct {
	datastore.Executor
	mem *datastore.Memory
}

func (f failingMemberships) Insert(ctx context.Context, entity datastore.Entity, rec datastore.Record) (datastore.Record, error) {
	if entity == EntityMemberships {
		return nil, errors.New("connection reset")
	}
	return f.Executor.Insert(ctx, entity, rec)
}

func (f failingMemberships) InTx(ctx context.Context, fn func(context.Context, datastore.Executor) error) error {
	return f.mem.InTx(ctx, func(ctx context.Context, inner datastore.Executor) error {
		return fn(ctx, failingMemberships{Executor: inner, mem: f.mem})
	})
}

type countingInvalidator struct{ n int }

func (c *countingInvalidator) Invalidate(ctx context.Context) error {
	c.n++
	return nil
}

type roleMap map[uuid.UUID]roles.Role

func (m roleMap) GetRole(ctx context.Context, id uuid.UUID) (roles.Role, error) {
	r, ok := m[id]
	if !ok {
		return roles.Role{}, shared.ErrNotFound
	}
	return r, nil
}

type fixture struct {
	svc     *Service
	mem     *datastore.Memory
	inv     *countingInvalidator
	roles   roleMap
	tenant  uuid.UUID
	ctx     context.Context
	unit    uuid.UUID
	custom  uuid.UUID
	foreign uuid.UUID
}

func newFixture(t *testing.T, authz Authorizer) *fixture {
	return newFixtureWith(t, authz, nil)
}

func newFixtureWith(t *testing.T, authz Authorizer, wrap func(*datastore.Memory) datastore.Executor) *fixture {
	t.Helper()
	registry := datastore.MustRegistry(UserSpec, MembershipSpec, tenancy.BusinessUnitSpec)
	mem := datastore.NewMemory(registry)
	var next datastore.Executor = mem
	if wrap != nil {
		next = wrap(mem)
	}
	guard := datastore.NewGuard(next, registry, datastore.ModeStrict, nil, nil)

	adminRole, _ := rbac.LookupSystemRole(rbac.RoleAdmin)
	managerRole, _ := rbac.LookupSystemRole(rbac.RoleManager)
	f := &fixture{mem: mem, inv: &countingInvalidator{}, tenant: uuid.New(), custom: uuid.New(), foreign: uuid.New()}
	f.ctx = reqctx.With(context.Background(), reqctx.Principal{UserID: uuid.New(), TenantID: f.tenant, BusinessUnitID: uuid.New()})
	f.roles = roleMap{
		rbac.OwnerRoleID: {ID: rbac.OwnerRoleID, Name: rbac.RoleOwner, IsSystem: true},
		adminRole.ID:     {ID: adminRole.ID, Name: rbac.RoleAdmin, IsSystem: true},
		managerRole.ID:   {ID: managerRole.ID, Name: rbac.RoleManager, IsSystem: true},
		f.custom:         {ID: f.custom, Name: "Dispatcher", TenantID: uuid.NullUUID{UUID: f.tenant, Valid: true}},
		f.foreign:        {ID: f.foreign, Name: "Spy", TenantID: uuid.NullUUID{UUID: uuid.New(), Valid: true}},
	}
	bu, err := mem.Insert(f.ctx, tenancy.EntityBusinessUnits, datastore.Record{"tenant_id": f.tenant, "name": "Main", "slug": "main"})
	require.NoError(t, err)
	f.unit = bu.UUID("id")
	f.svc = NewService(guard, f.roles, authz, f.inv, nil)
	return f
}

func TestCreateUserWithMembership(t *testing.T) {
	f := newFixture(t, allowAll{})

	user, err := f.svc.CreateUser(f.ctx, CreateUserInput{
		Email:          "Dana@Acme.test",
		Name:           "Dana",
		Password:       "long-enough",
		BusinessUnitID: f.unit.String(),
		RoleID:         f.custom.String(),
	})
	require.NoError(t, err)
	assert.Equal(t, "dana@acme.test", user.Email)
	assert.Equal(t, f.tenant, user.TenantID)
	assert.True(t, user.IsActive)

	rows, err := f.mem.Find(f.ctx, datastore.Query{Entity: EntityUsers, Filter: datastore.Filter{"id": user.ID}})
	require.NoError(t, err)
	require.NoError(t, auth.CheckPassword(rows[0].String("password_hash"), "long-enough"))

	memberships, err := f.svc.Memberships(f.ctx, user.ID)
	require.NoError(t, err)
	require.Len(t, memberships, 1)
	assert.Equal(t, f.custom, memberships[0].RoleID)
	assert.Equal(t, 1, f.inv.n)

	_, err = f.svc.CreateUser(f.ctx, CreateUserInput{Email: "dana@acme.test", Name: "Dana 2", Password: "long-enough"})
	require.ErrorIs(t, err, shared.ErrDuplicateEmail)
}

func TestAssignMembershipReplacesRole(t *testing.T) {
	f := newFixture(t, allowAll{})
	user, err := f.svc.CreateUser(f.ctx, CreateUserInput{Email: "eli@acme.test", Name: "Eli", Password: "long-enough"})
	require.NoError(t, err)

	_, err = f.svc.AssignMembership(f.ctx, user.ID, f.unit, f.custom)
	require.NoError(t, err)
	m, err := f.svc.AssignMembership(f.ctx, user.ID, f.unit, rbac.OwnerRoleID)
	require.NoError(t, err)
	assert.Equal(t, rbac.OwnerRoleID, m.RoleID)

	memberships, err := f.svc.Memberships(f.ctx, user.ID)
	require.NoError(t, err)
	require.Len(t, memberships, 1)
	assert.Equal(t, 2, f.inv.n)

	require.NoError(t, f.svc.RemoveMembership(f.ctx, user.ID, f.unit))
	require.ErrorIs(t, f.svc.RemoveMembership(f.ctx, user.ID, f.unit), shared.ErrNotFound)
	assert.Equal(t, 3, f.inv.n)
}

func TestAssignMembershipRejectsForeignReferences(t *testing.T) {
	f := newFixture(t, allowAll{})
	user, err := f.svc.CreateUser(f.ctx, CreateUserInput{Email: "fay@acme.test", Name: "Fay", Password: "long-enough"})
	require.NoError(t, err)

	_, err = f.svc.AssignMembership(f.ctx, user.ID, f.unit, f.foreign)
	require.ErrorIs(t, err, shared.ErrNotFound, "other tenants' custom roles are invisible")

	_, err = f.svc.AssignMembership(f.ctx, user.ID, uuid.New(), f.custom)
	require.ErrorIs(t, err, shared.ErrNotFound)

	other := reqctx.With(context.Background(), reqctx.Principal{UserID: uuid.New(), TenantID: uuid.New()})
	_, err = f.svc.AssignMembership(other, user.ID, f.unit, rbac.OwnerRoleID)
	require.ErrorIs(t, err, shared.ErrNotFound, "users of other tenants are invisible")
	assert.Zero(t, f.inv.n)
}

func TestSetActive(t *testing.T) {
	f := newFixture(t, allowAll{})
	user, err := f.svc.CreateUser(f.ctx, CreateUserInput{Email: "gus@acme.test", Name: "Gus", Password: "long-enough"})
	require.NoError(t, err)

	updated, err := f.svc.SetActive(f.ctx, user.ID, false)
	require.NoError(t, err)
	assert.False(t, updated.IsActive)

	self := reqctx.With(context.Background(), reqctx.Principal{UserID: user.ID, TenantID: f.tenant})
	_, err = f.svc.SetActive(self, user.ID, false)
	require.ErrorIs(t, err, shared.ErrValidation)
}

func TestUsersFailClosed(t *testing.T) {
	f := newFixture(t, allowAll{})
	_, err := f.svc.ListUsers(context.Background())
	require.ErrorIs(t, err, shared.ErrContextUnavailable)

	denied := newFixture(t, denyAll{})
	_, err = denied.svc.CreateUser(denied.ctx, CreateUserInput{Email: "h@acme.test", Name: "H", Password: "long-enough"})
	require.ErrorIs(t, err, shared.ErrPermissionDenied)
	list, err := denied.mem.Find(denied.ctx, datastore.Query{Entity: EntityUsers})
	require.NoError(t, err)
	assert.Empty(t, list)
}

func TestAdminCannotEscalateToOwner(t *testing.T) {
	catalog := rbac.DefaultCatalog()
	adminRole, _ := rbac.LookupSystemRole(rbac.RoleAdmin)
	managerRole, _ := rbac.LookupSystemRole(rbac.RoleManager)
	ev := rbac.NewEvaluator(catalog, memberGrants{rbac.Grant{
		RoleID:      adminRole.ID,
		RoleName:    adminRole.Key,
		Permissions: rbac.PolicyFor(rbac.RoleAdmin, catalog),
	}}, nil, nil)
	f := newFixture(t, ev)
	self, err := reqctx.Get(f.ctx)
	require.NoError(t, err)
	_, err = f.mem.Insert(f.ctx, EntityUsers, datastore.Record{"id": self.UserID, "tenant_id": f.tenant, "email": "admin@acme.test", "name": "Admin"})
	require.NoError(t, err)

	_, err = f.svc.AssignMembership(f.ctx, self.UserID, f.unit, rbac.OwnerRoleID)
	require.ErrorIs(t, err, shared.ErrPermissionDenied)

	_, err = f.svc.CreateUser(f.ctx, CreateUserInput{
		Email: "ivy@acme.test", Name: "Ivy", Password: "long-enough",
		BusinessUnitID: f.unit.String(), RoleID: rbac.OwnerRoleID.String(),
	})
	require.ErrorIs(t, err, shared.ErrPermissionDenied)

	memberships, err := f.mem.Find(f.ctx, datastore.Query{Entity: EntityMemberships})
	require.NoError(t, err)
	assert.Empty(t, memberships)
	assert.Zero(t, f.inv.n)

	_, err = f.svc.AssignMembership(f.ctx, self.UserID, f.unit, managerRole.ID)
	require.NoError(t, err, "lower ranked system roles stay assignable")
}

func TestCreateUserIsAtomic(t *testing.T) {
	f := newFixtureWith(t, allowAll{}, func(mem *datastore.Memory) datastore.Executor {
		return failingMemberships{Executor: mem, mem: mem}
	})

	in := CreateUserInput{
		Email: "jo@acme.test", Name: "Jo", Password: "long-enough",
		BusinessUnitID: f.unit.String(), RoleID: f.custom.String(),
	}
	_, err := f.svc.CreateUser(f.ctx, in)
	require.Error(t, err)

	users, err := f.mem.Find(f.ctx, datastore.Query{Entity: EntityUsers})
	require.NoError(t, err)
	assert.Empty(t, users, "the user row rolls back with the membership")
	assert.Zero(t, f.inv.n)
}
