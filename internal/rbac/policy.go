package rbac

import (
	"slices"

	"github.com/google/uuid"
)

// Role keys of the fixed system hierarchy.
const (
	RoleOwner    = "OWNER"
	RoleAdmin    = "ADMIN"
	RoleManager  = "MANAGER"
	RoleEmployee = "EMPLOYEE"
	RoleViewer   = "VIEWER"
)

// SystemRole describes one fixed role. ID is stable across renames.
type SystemRole struct {
	ID          uuid.UUID
	Key         string
	Description string
	Rank        int
}

// SystemRoles lists the hierarchy from highest to lowest rank.
var SystemRoles = []SystemRole{
	{ID: uuid.MustParse("7f3b0c52-4a1e-4c8e-9f00-000000000005"), Key: RoleOwner, Rank: 5, Description: "Full access to every permission"},
	{ID: uuid.MustParse("7f3b0c52-4a1e-4c8e-9f00-000000000004"), Key: RoleAdmin, Rank: 4, Description: "Tenant administration without role redefinition"},
	{ID: uuid.MustParse("7f3b0c52-4a1e-4c8e-9f00-000000000003"), Key: RoleManager, Rank: 3, Description: "Full access to business resources"},
	{ID: uuid.MustParse("7f3b0c52-4a1e-4c8e-9f00-000000000002"), Key: RoleEmployee, Rank: 2, Description: "Day to day operational work"},
	{ID: uuid.MustParse("7f3b0c52-4a1e-4c8e-9f00-000000000001"), Key: RoleViewer, Rank: 1, Description: "Read only access"},
}

// OwnerRoleID is the stable id of the OWNER role.
var OwnerRoleID = SystemRoles[0].ID

var (
	bundleFull      = []Action{ActionCreate, ActionRead, ActionUpdate, ActionDelete}
	bundleCRUDBasic = []Action{ActionCreate, ActionRead, ActionUpdate}
	bundleRead      = []Action{ActionRead}
)

// LookupSystemRole finds a system role by key.
func LookupSystemRole(key string) (SystemRole, bool) {
	for _, r := range SystemRoles {
		if r.Key == key {
			return r, true
		}
	}
	return SystemRole{}, false
}

// SystemRoleByID finds a system role by its stable id.
func SystemRoleByID(id uuid.UUID) (SystemRole, bool) {
	for _, r := range SystemRoles {
		if r.ID == id {
			return r, true
		}
	}
	return SystemRole{}, false
}

// IsSystemRoleName reports whether name collides with a system role key.
func IsSystemRoleName(name string) bool {
	_, ok := LookupSystemRole(name)
	return ok
}

// PolicyFor returns the permission set the system role is provisioned with. Only entries
// present in catalog are returned.
func PolicyFor(key string, catalog *Catalog) []Permission {
	var out []Permission
	add := func(resources []Resource, actions []Action) {
		for _, r := range resources {
			for _, a := range actions {
				p := Perm(r, a)
				if catalog.Contains(p) && !slices.Contains(out, p) {
					out = append(out, p)
				}
			}
		}
	}
	switch key {
	case RoleOwner:
		return catalog.All()
	case RoleAdmin:
		add(BusinessResources, bundleFull)
		add([]Resource{ResourceUsers, ResourceBusinessUnits, ResourceSettings}, bundleFull)
		add([]Resource{ResourceRoles}, bundleRead)
	case RoleManager:
		add(BusinessResources, bundleFull)
		add([]Resource{ResourceUsers}, bundleRead)
	case RoleEmployee:
		add([]Resource{
			ResourceAssets,
			ResourceSupplies,
			ResourceClients,
			ResourceContracts,
			ResourceQuotations,
			ResourceMaintenance,
		}, bundleCRUDBasic)
		add([]Resource{ResourceSuppliers, ResourcePurchaseOrders, ResourceReports}, bundleRead)
	case RoleViewer:
		add(BusinessResources, bundleRead)
	}
	return out
}
