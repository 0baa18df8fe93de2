package rbac

import (
	"fmt"
	"slices"
)

// BusinessResources are the operational collections every role can at least read.
var BusinessResources = []Resource{
	ResourceAssets,
	ResourceSupplies,
	ResourceClients,
	ResourceContracts,
	ResourceQuotations,
	ResourceMaintenance,
	ResourceInvoices,
	ResourceSuppliers,
	ResourcePurchaseOrders,
	ResourceReports,
}

// AdminResources are tenant administration collections.
var AdminResources = []Resource{
	ResourceUsers,
	ResourceBusinessUnits,
	ResourceSettings,
	ResourceRoles,
}

// Actions is the closed action set.
var Actions = []Action{ActionCreate, ActionRead, ActionUpdate, ActionDelete}

// Catalog is the closed set of valid permissions.
type Catalog struct {
	set   map[Permission]struct{}
	order []Permission
}

// NewCatalog builds the cross product of resources and actions.
func NewCatalog(resources []Resource, actions []Action) *Catalog {
	c := &Catalog{set: make(map[Permission]struct{}, len(resources)*len(actions))}
	for _, r := range resources {
		for _, a := range actions {
			p := Perm(r, a)
			if _, dup := c.set[p]; dup {
				continue
			}
			c.set[p] = struct{}{}
			c.order = append(c.order, p)
		}
	}
	return c
}

// DefaultCatalog returns the platform catalog.
func DefaultCatalog() *Catalog {
	return NewCatalog(slices.Concat(BusinessResources, AdminResources), Actions)
}

// Contains reports whether p is a known permission.
func (c *Catalog) Contains(p Permission) bool {
	_, ok := c.set[p]
	return ok
}

// All returns every permission in definition order.
func (c *Catalog) All() []Permission {
	return slices.Clone(c.order)
}

// Len returns the number of permissions.
func (c *Catalog) Len() int {
	return len(c.order)
}

// Validate returns the permissions deduplicated, or an error naming the first unknown one.
func (c *Catalog) Validate(perms []Permission) ([]Permission, error) {
	seen := make(map[Permission]struct{}, len(perms))
	out := make([]Permission, 0, len(perms))
	for _, p := range perms {
		if !c.Contains(p) {
			return nil, fmt.Errorf("unknown permission %s", p)
		}
		if _, dup := seen[p]; dup {
			continue
		}
		seen[p] = struct{}{}
		out = append(out, p)
	}
	return out, nil
}
