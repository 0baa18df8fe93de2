package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"

	jobmetrics "github.com/rentora/rentora/internal/jobs"
	"github.com/rentora/rentora/internal/notify"
	"github.com/rentora/rentora/internal/reqctx"
	"github.com/rentora/rentora/internal/shared"
	"github.com/rentora/rentora/internal/tenancy"
	"github.com/rentora/rentora/internal/users"
)

// TenantSource loads tenants for the welcome job.
type TenantSource interface {
	ValidateActive(ctx context.Context, tenantID uuid.UUID) error
	GetTenant(ctx context.Context, tenantID uuid.UUID) (tenancy.Tenant, error)
}

// OwnerSource loads the owner account under a system principal.
type OwnerSource interface {
	GetForSystem(ctx context.Context, id uuid.UUID) (users.User, error)
}

// TenantWelcomeJob greets the owner of a new tenant.
type TenantWelcomeJob struct {
	Tenants  TenantSource
	Owners   OwnerSource
	Notifier notify.Notifier
	Logger   *slog.Logger
	Metrics  *jobmetrics.Metrics
}

// Handle processes TaskTenantWelcome tasks. Work runs as the tenant's system principal,
// bound only after the tenant is confirmed active.
func (j *TenantWelcomeJob) Handle(ctx context.Context, t *asynq.Task) (err error) {
	if j == nil || j.Tenants == nil || j.Owners == nil || j.Notifier == nil {
		return errors.New("tenant welcome: handler not configured")
	}
	var payload TenantWelcomePayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return fmt.Errorf("tenant welcome: decode payload: %v: %w", err, asynq.SkipRetry)
	}
	if payload.TenantID == uuid.Nil || payload.OwnerID == uuid.Nil {
		return fmt.Errorf("tenant welcome: empty ids: %w", asynq.SkipRetry)
	}

	tracker := j.Metrics.Track(TaskTenantWelcome)
	defer func() { err = tracker.End(err) }()

	logger := j.logger().With(slog.String("tenant_id", payload.TenantID.String()))
	if err := j.Tenants.ValidateActive(ctx, payload.TenantID); err != nil {
		if errors.Is(err, shared.ErrTenantInactive) || errors.Is(err, shared.ErrNotFound) {
			logger.InfoContext(ctx, "skip welcome", slog.Any("reason", err))
			j.Metrics.Skip(TaskTenantWelcome, "tenant_unavailable")
			return nil
		}
		return err
	}

	ctx = reqctx.With(ctx, reqctx.SystemPrincipal(payload.TenantID))
	tenant, err := j.Tenants.GetTenant(ctx, payload.TenantID)
	if err != nil {
		return fmt.Errorf("tenant welcome: load tenant: %w", err)
	}
	owner, err := j.Owners.GetForSystem(ctx, payload.OwnerID)
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			j.Metrics.Skip(TaskTenantWelcome, "owner_missing")
			return fmt.Errorf("tenant welcome: %w: %w", err, asynq.SkipRetry)
		}
		return fmt.Errorf("tenant welcome: load owner: %w", err)
	}
	if err := j.Notifier.Send(ctx, notify.Welcome(tenant.Name, owner.Name, owner.Email)); err != nil {
		return fmt.Errorf("tenant welcome: send: %w", err)
	}
	logger.InfoContext(ctx, "welcome sent", slog.String("owner_id", owner.ID.String()))
	return nil
}

func (j *TenantWelcomeJob) logger() *slog.Logger {
	if j.Logger != nil {
		return j.Logger
	}
	return slog.Default()
}
