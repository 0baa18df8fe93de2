package reqctx

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/rentora/rentora/internal/shared"
)

type principalKey struct{}

type claimsKey struct{}

// Field names a required principal attribute.
type Field string

const (
	FieldUser         Field = "user"
	FieldTenant       Field = "tenant"
	FieldBusinessUnit Field = "business_unit"
)

// With returns a child context bound to p.
func With(ctx context.Context, p Principal) context.Context {
	return context.WithValue(ctx, principalKey{}, p.clone())
}

// Run executes fn with p bound for the whole call chain of fn. The caller's ctx keeps its
// own binding once fn returns.
func Run(ctx context.Context, p Principal, fn func(context.Context) error) error {
	return fn(With(ctx, p))
}

// Get returns the bound principal or shared.ErrContextUnavailable.
func Get(ctx context.Context) (Principal, error) {
	p, ok := ctx.Value(principalKey{}).(Principal)
	if !ok {
		return Principal{}, shared.ErrContextUnavailable
	}
	return p.clone(), nil
}

// Require returns the named identifier from the bound principal.
func Require(ctx context.Context, field Field) (uuid.UUID, error) {
	p, err := Get(ctx)
	if err != nil {
		return uuid.Nil, err
	}
	var id uuid.UUID
	switch field {
	case FieldUser:
		id = p.UserID
	case FieldTenant:
		id = p.TenantID
	case FieldBusinessUnit:
		id = p.BusinessUnitID
	default:
		return uuid.Nil, fmt.Errorf("reqctx: unknown field %q", field)
	}
	if id == uuid.Nil {
		return uuid.Nil, fmt.Errorf("%w: %s", shared.ErrContextFieldMissing, field)
	}
	return id, nil
}

// MustGet returns the bound principal and panics when none is bound. Only for call sites
// that sit behind middleware guaranteeing the binding.
func MustGet(ctx context.Context) Principal {
	p, err := Get(ctx)
	if err != nil {
		panic("reqctx: principal missing from context")
	}
	return p
}

// WithClaims stores verified authentication claims on ctx.
func WithClaims(ctx context.Context, c Claims) context.Context {
	return context.WithValue(ctx, claimsKey{}, c)
}

// ClaimsFromContext returns claims stored by the authentication step.
func ClaimsFromContext(ctx context.Context) (Claims, bool) {
	c, ok := ctx.Value(claimsKey{}).(Claims)
	return c, ok
}
