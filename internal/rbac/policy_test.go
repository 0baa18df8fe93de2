package rbac

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCatalogIsClosedCrossProduct(t *testing.T) {
	catalog := DefaultCatalog()
	assert.Equal(t, (len(BusinessResources)+len(AdminResources))*len(Actions), catalog.Len())
	assert.True(t, catalog.Contains(Perm(ResourceAssets, ActionDelete)))
	assert.False(t, catalog.Contains(Perm(ResourceAssets, "approve")))

	perms, err := catalog.Validate([]Permission{Perm(ResourceAssets, ActionRead), Perm(ResourceAssets, ActionRead)})
	require.NoError(t, err)
	assert.Len(t, perms, 1)

	_, err = catalog.Validate([]Permission{Perm("ledger", ActionRead)})
	require.Error(t, err)
}

func TestPolicyTable(t *testing.T) {
	catalog := DefaultCatalog()
	cases := []struct {
		role  string
		perm  Permission
		grant bool
	}{
		{RoleViewer, Perm(ResourceInvoices, ActionRead), true},
		{RoleViewer, Perm(ResourceAssets, ActionCreate), false},
		{RoleViewer, Perm(ResourceUsers, ActionRead), false},
		{RoleEmployee, Perm(ResourceAssets, ActionUpdate), true},
		{RoleEmployee, Perm(ResourceAssets, ActionDelete), false},
		{RoleEmployee, Perm(ResourceSuppliers, ActionRead), true},
		{RoleEmployee, Perm(ResourceSuppliers, ActionCreate), false},
		{RoleManager, Perm(ResourceInvoices, ActionDelete), true},
		{RoleManager, Perm(ResourceUsers, ActionRead), true},
		{RoleManager, Perm(ResourceUsers, ActionCreate), false},
		{RoleAdmin, Perm(ResourceUsers, ActionDelete), true},
		{RoleAdmin, Perm(ResourceSettings, ActionUpdate), true},
		{RoleAdmin, Perm(ResourceRoles, ActionRead), true},
		{RoleAdmin, Perm(ResourceRoles, ActionUpdate), false},
		{RoleOwner, Perm(ResourceRoles, ActionDelete), true},
	}
	for _, tc := range cases {
		t.Run(tc.role+"/"+tc.perm.String(), func(t *testing.T) {
			assert.Equal(t, tc.grant, contains(PolicyFor(tc.role, catalog), tc.perm))
		})
	}
}

func TestPolicyOnlyReferencesCatalog(t *testing.T) {
	catalog := NewCatalog([]Resource{ResourceAssets}, []Action{ActionRead})
	for _, r := range SystemRoles {
		for _, p := range PolicyFor(r.Key, catalog) {
			assert.True(t, catalog.Contains(p))
		}
	}
}

func TestSystemRolesAreRankedAndStable(t *testing.T) {
	require.Len(t, SystemRoles, 5)
	for i := 1; i < len(SystemRoles); i++ {
		assert.Greater(t, SystemRoles[i-1].Rank, SystemRoles[i].Rank)
	}
	owner, ok := LookupSystemRole(RoleOwner)
	require.True(t, ok)
	assert.Equal(t, OwnerRoleID, owner.ID)
	assert.True(t, IsSystemRoleName(RoleViewer))
	assert.False(t, IsSystemRoleName("Dispatcher"))
}

func TestParsePermission(t *testing.T) {
	p, err := ParsePermission(" Assets:Read ")
	require.NoError(t, err)
	assert.Equal(t, Perm(ResourceAssets, ActionRead), p)
	assert.Equal(t, "assets:read", p.String())

	_, err = ParsePermission("assets")
	require.Error(t, err)
}

func contains(perms []Permission, p Permission) bool {
	for _, q := range perms {
		if q == p {
			return true
		}
	}
	return false
}
