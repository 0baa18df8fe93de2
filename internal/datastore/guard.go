package datastore

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/rentora/rentora/internal/observability"
	"github.com/rentora/rentora/internal/reqctx"
	"github.com/rentora/rentora/internal/shared"
)

// Mode selects how the guard treats reads that lack a tenant filter.
type Mode string

const (
	// ModeStrict rejects the read.
	ModeStrict Mode = "strict"
	// ModePermissive logs the read and lets it run.
	ModePermissive Mode = "permissive"
)

// ParseMode validates a configured mode.
func ParseMode(s string) (Mode, error) {
	switch Mode(s) {
	case ModeStrict, ModePermissive:
		return Mode(s), nil
	case "":
		return ModeStrict, nil
	default:
		return "", fmt.Errorf("datastore: unknown guard mode %q", s)
	}
}

type op string

const (
	opFind   op = "find"
	opCount  op = "count"
	opInsert op = "insert"
	opUpdate op = "update"
	opDelete op = "delete"
)

func (o op) isWrite() bool {
	return o == opInsert || o == opUpdate || o == opDelete
}

// Guard wraps an Executor and checks every operation on a tenant-scoped entity against
// the tenant bound in the request context. Writes are always checked strictly.
type Guard struct {
	next     Executor
	registry *Registry
	mode     Mode
	logger   *slog.Logger
	metrics  *observability.Metrics
}

// NewGuard wraps next.
func NewGuard(next Executor, registry *Registry, mode Mode, logger *slog.Logger, metrics *observability.Metrics) *Guard {
	if mode == "" {
		mode = ModeStrict
	}
	return &Guard{next: next, registry: registry, mode: mode, logger: logger, metrics: metrics}
}

// With returns a guard with the same policy around another executor, e.g. one bound to a
// transaction.
func (g *Guard) With(next Executor) *Guard {
	clone := *g
	clone.next = next
	return &clone
}

// Mode returns the configured read policy.
func (g *Guard) Mode() Mode {
	return g.mode
}

// Find implements Executor.
func (g *Guard) Find(ctx context.Context, q Query) ([]Record, error) {
	if err := g.check(ctx, opFind, q.Entity, q.Filter); err != nil {
		return nil, err
	}
	return g.next.Find(ctx, q)
}

// Count implements Executor.
func (g *Guard) Count(ctx context.Context, q Query) (int64, error) {
	if err := g.check(ctx, opCount, q.Entity, q.Filter); err != nil {
		return 0, err
	}
	return g.next.Count(ctx, q)
}

// Insert implements Executor.
func (g *Guard) Insert(ctx context.Context, entity Entity, rec Record) (Record, error) {
	if err := g.check(ctx, opInsert, entity, Filter(rec)); err != nil {
		return nil, err
	}
	return g.next.Insert(ctx, entity, rec)
}

// Update implements Executor. A tenant_id in values must equal the filter tenant.
func (g *Guard) Update(ctx context.Context, entity Entity, filter Filter, values Record) (int64, error) {
	if err := g.check(ctx, opUpdate, entity, filter); err != nil {
		return 0, err
	}
	if g.registry.IsTenantScoped(entity) {
		if raw, ok := values[TenantColumn]; ok {
			target, _ := asUUID(raw)
			current, _ := asUUID(filter[TenantColumn])
			if target != current {
				g.flag(ctx, entity, opUpdate, "tenant_mismatch")
				return 0, fmt.Errorf("%w: %s cannot move across tenants", shared.ErrTenantMismatch, entity)
			}
		}
	}
	return g.next.Update(ctx, entity, filter, values)
}

// Delete implements Executor.
func (g *Guard) Delete(ctx context.Context, entity Entity, filter Filter) (int64, error) {
	if err := g.check(ctx, opDelete, entity, filter); err != nil {
		return 0, err
	}
	return g.next.Delete(ctx, entity, filter)
}

func (g *Guard) check(ctx context.Context, o op, entity Entity, filter Filter) error {
	if !g.registry.IsTenantScoped(entity) {
		return nil
	}
	p, err := reqctx.Get(ctx)
	if err != nil {
		g.flag(ctx, entity, o, "no_context")
		return fmt.Errorf("%w: %s %s", err, o, entity)
	}

	raw, present := filter[TenantColumn]
	if !present || raw == nil {
		g.flag(ctx, entity, o, "missing_tenant_filter")
		if o.isWrite() || g.mode == ModeStrict {
			return fmt.Errorf("%w: %s %s", shared.ErrMissingTenantFilter, o, entity)
		}
		return nil
	}

	tenantID, ok := asUUID(raw)
	if !ok || tenantID == uuid.Nil {
		g.flag(ctx, entity, o, "malformed_tenant_filter")
		return fmt.Errorf("%w: %s %s has unusable tenant constraint %T", shared.ErrMissingTenantFilter, o, entity, raw)
	}

	switch {
	case p.HasTenant():
		if tenantID != p.TenantID {
			g.flag(ctx, entity, o, "tenant_mismatch")
			return fmt.Errorf("%w: %s %s", shared.ErrTenantMismatch, o, entity)
		}
	case p.IsPlatformSuper():
		// platform identity names the tenant explicitly
	default:
		g.flag(ctx, entity, o, "principal_without_tenant")
		return fmt.Errorf("%w: %s", shared.ErrContextFieldMissing, reqctx.FieldTenant)
	}
	return nil
}

func (g *Guard) flag(ctx context.Context, entity Entity, o op, kind string) {
	g.metrics.ObserveGuardViolation(string(entity), string(o), kind, string(g.mode))
	if g.logger == nil {
		return
	}
	attrs := []any{
		slog.String("entity", string(entity)),
		slog.String("op", string(o)),
		slog.String("kind", kind),
		slog.String("mode", string(g.mode)),
	}
	if p, err := reqctx.Get(ctx); err == nil {
		attrs = append(attrs, slog.String("user_id", p.UserID.String()), slog.String("tenant_id", p.TenantID.String()))
	}
	g.logger.WarnContext(ctx, "tenant guard violation", attrs...)
}

// ScopeFilter copies f and constrains it to the tenant bound in ctx.
func ScopeFilter(ctx context.Context, f Filter) (Filter, error) {
	tenantID, err := reqctx.Require(ctx, reqctx.FieldTenant)
	if err != nil {
		return nil, err
	}
	out := f.Clone()
	out[TenantColumn] = tenantID
	return out, nil
}

// ScopeRecord copies rec and stamps the tenant bound in ctx.
func ScopeRecord(ctx context.Context, rec Record) (Record, error) {
	scoped, err := ScopeFilter(ctx, Filter(rec))
	if err != nil {
		return nil, err
	}
	return Record(scoped), nil
}
