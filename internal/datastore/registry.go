// Package datastore provides generic record access for tenant-scoped entities and the guard
// that keeps every such access inside the tenant bound to the request context.
package datastore

import (
	"fmt"
	"slices"
)

// TenantColumn is the column every tenant-scoped table carries.
const TenantColumn = "tenant_id"

// Entity names a collection of records.
type Entity string

// Spec describes how an entity maps to storage.
type Spec struct {
	Entity       Entity
	Table        string
	Columns      []string
	TenantScoped bool
}

// HasColumn reports whether col is part of the entity's allow-list.
func (s Spec) HasColumn(col string) bool {
	return slices.Contains(s.Columns, col)
}

// Registry is the closed set of entities known to the data layer. It is built once at
// startup by the composition root.
type Registry struct {
	specs map[Entity]Spec
}

// NewRegistry validates and indexes the given specs.
func NewRegistry(specs ...Spec) (*Registry, error) {
	r := &Registry{specs: make(map[Entity]Spec, len(specs))}
	for _, s := range specs {
		if s.Entity == "" || s.Table == "" {
			return nil, fmt.Errorf("datastore: entity and table required")
		}
		if _, dup := r.specs[s.Entity]; dup {
			return nil, fmt.Errorf("datastore: entity %s registered twice", s.Entity)
		}
		if len(s.Columns) == 0 {
			return nil, fmt.Errorf("datastore: entity %s has no columns", s.Entity)
		}
		if s.TenantScoped && !s.HasColumn(TenantColumn) {
			return nil, fmt.Errorf("datastore: tenant-scoped entity %s lacks %s column", s.Entity, TenantColumn)
		}
		s.Columns = slices.Clone(s.Columns)
		r.specs[s.Entity] = s
	}
	return r, nil
}

// MustRegistry is NewRegistry that panics on error.
func MustRegistry(specs ...Spec) *Registry {
	r, err := NewRegistry(specs...)
	if err != nil {
		panic(err)
	}
	return r
}

// Lookup returns the spec for an entity.
func (r *Registry) Lookup(e Entity) (Spec, bool) {
	if r == nil {
		return Spec{}, false
	}
	s, ok := r.specs[e]
	return s, ok
}

// IsTenantScoped reports whether e is registered as tenant-scoped. Unregistered entities
// are treated as tenant-scoped so that they can never bypass the guard.
func (r *Registry) IsTenantScoped(e Entity) bool {
	s, ok := r.Lookup(e)
	if !ok {
		return true
	}
	return s.TenantScoped
}

// TenantScoped lists the tenant-scoped entities in name order.
func (r *Registry) TenantScoped() []Entity {
	var out []Entity
	for e, s := range r.specs {
		if s.TenantScoped {
			out = append(out, e)
		}
	}
	slices.Sort(out)
	return out
}
