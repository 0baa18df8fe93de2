// Package rbac holds the permission catalog, the system role policy and the evaluator that
// answers whether a principal may perform an action on a resource.
package rbac

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// Resource names a business entity collection.
type Resource string

// Action is an operation on a resource.
type Action string

const (
	ActionCreate Action = "create"
	ActionRead   Action = "read"
	ActionUpdate Action = "update"
	ActionDelete Action = "delete"
)

const (
	ResourceAssets         Resource = "assets"
	ResourceSupplies       Resource = "supplies"
	ResourceClients        Resource = "clients"
	ResourceContracts      Resource = "contracts"
	ResourceQuotations     Resource = "quotations"
	ResourceMaintenance    Resource = "maintenance"
	ResourceInvoices       Resource = "invoices"
	ResourceSuppliers      Resource = "suppliers"
	ResourcePurchaseOrders Resource = "purchase_orders"
	ResourceReports        Resource = "reports"

	ResourceUsers         Resource = "users"
	ResourceBusinessUnits Resource = "business_units"
	ResourceSettings      Resource = "settings"
	ResourceRoles         Resource = "roles"
)

// Permission is one (resource, action) capability.
type Permission struct {
	Resource Resource `json:"resource"`
	Action   Action   `json:"action"`
}

// Perm builds a Permission.
func Perm(resource Resource, action Action) Permission {
	return Permission{Resource: resource, Action: action}
}

// String renders the permission as "resource:action".
func (p Permission) String() string {
	return string(p.Resource) + ":" + string(p.Action)
}

// ParsePermission parses "resource:action". Case and surrounding space are normalised.
func ParsePermission(s string) (Permission, error) {
	resource, action, ok := strings.Cut(strings.ToLower(strings.TrimSpace(s)), ":")
	if !ok || resource == "" || action == "" {
		return Permission{}, fmt.Errorf("rbac: malformed permission %q", s)
	}
	return Permission{Resource: Resource(strings.TrimSpace(resource)), Action: Action(strings.TrimSpace(action))}, nil
}

// Grant is what a user holds in one business unit: the assigned role and its permissions.
type Grant struct {
	RoleID      uuid.UUID    `json:"role_id"`
	RoleName    string       `json:"role_name"`
	Permissions []Permission `json:"permissions"`
}

// Has reports whether the grant includes perm.
func (g Grant) Has(perm Permission) bool {
	for _, p := range g.Permissions {
		if p == perm {
			return true
		}
	}
	return false
}

// Reason explains an evaluator decision.
type Reason string

const (
	ReasonUnknownPermission Reason = "unknown_permission"
	ReasonPlatformSuper     Reason = "platform_super"
	ReasonOwner             Reason = "owner"
	ReasonNoBusinessUnit    Reason = "no_business_unit"
	ReasonNoAssignment      Reason = "no_assignment"
	ReasonGranted           Reason = "granted"
	ReasonNotGranted        Reason = "not_granted"
)

// Decision is the outcome of one permission check.
type Decision struct {
	Allowed    bool       `json:"allowed"`
	Reason     Reason     `json:"reason"`
	Permission Permission `json:"permission"`
}
