package tenancy

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"

	"github.com/rentora/rentora/internal/auth"
	"github.com/rentora/rentora/internal/rbac"
	"github.com/rentora/rentora/internal/reqctx"
	"github.com/rentora/rentora/internal/shared"
)

// DefaultPlan is assigned when CreateTenantInput.Plan is empty.
const DefaultPlan = "starter"

// WelcomeEnqueuer schedules the onboarding task of a new tenant.
type WelcomeEnqueuer interface {
	EnqueueTenantWelcome(ctx context.Context, tenantID, ownerID uuid.UUID) error
}

// Service manages tenant lifecycle.
type Service struct {
	repo     RepositoryPort
	enqueuer WelcomeEnqueuer
	logger   *slog.Logger
}

// NewService builds Service instance. enqueuer may be nil.
func NewService(repo RepositoryPort, enqueuer WelcomeEnqueuer, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, enqueuer: enqueuer, logger: logger}
}

// CreateTenant provisions a tenant, its principal business unit, the owner user and the
// owner's OWNER membership in one transaction. Only platform super principals may call it.
func (s *Service) CreateTenant(ctx context.Context, in CreateTenantInput) (CreateTenantResult, error) {
	p, err := requireSuper(ctx)
	if err != nil {
		return CreateTenantResult{}, err
	}
	name := strings.TrimSpace(in.Name)
	if name == "" {
		return CreateTenantResult{}, fmt.Errorf("%w: tenant name required", shared.ErrValidation)
	}
	slug := Slugify(in.Slug)
	if strings.TrimSpace(in.Slug) == "" {
		slug = Slugify(name)
	}
	if err := ValidateSlug(slug); err != nil {
		return CreateTenantResult{}, err
	}
	email := strings.ToLower(strings.TrimSpace(in.OwnerEmail))
	if email == "" {
		return CreateTenantResult{}, fmt.Errorf("%w: owner email required", shared.ErrValidation)
	}
	hash, err := auth.HashPassword(in.OwnerPassword)
	if err != nil {
		return CreateTenantResult{}, err
	}
	plan := in.Plan
	if plan == "" {
		plan = DefaultPlan
	}

	var out CreateTenantResult
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		tenant, err := tx.InsertTenant(ctx, Tenant{Name: name, Slug: slug, Plan: plan, Status: StatusActive})
		if err != nil {
			return err
		}
		bu, err := tx.InsertBusinessUnit(ctx, BusinessUnit{
			TenantID: tenant.ID,
			Name:     name + " Principal",
			Slug:     PrincipalSlug(slug),
			Settings: map[string]any{},
		})
		if err != nil {
			return err
		}
		ownerID, err := tx.InsertOwner(ctx, Owner{
			TenantID:     tenant.ID,
			Email:        email,
			Name:         strings.TrimSpace(in.OwnerName),
			PasswordHash: hash,
		})
		if err != nil {
			return err
		}
		if err := tx.InsertMembership(ctx, tenant.ID, ownerID, bu.ID, rbac.OwnerRoleID); err != nil {
			return err
		}
		out = CreateTenantResult{Tenant: tenant, BusinessUnit: bu, OwnerID: ownerID}
		return tx.RecordAudit(ctx, shared.AuditLog{
			TenantID: tenant.ID,
			ActorID:  p.UserID,
			Action:   "tenants.create",
			Entity:   "tenants",
			EntityID: tenant.ID.String(),
			Meta:     map[string]any{"slug": slug, "plan": plan, "owner_email": email},
		})
	})
	if err != nil {
		return CreateTenantResult{}, err
	}

	s.logger.InfoContext(ctx, "tenant created",
		slog.String("tenant_id", out.Tenant.ID.String()),
		slog.String("slug", out.Tenant.Slug))
	if s.enqueuer != nil {
		if err := s.enqueuer.EnqueueTenantWelcome(ctx, out.Tenant.ID, out.OwnerID); err != nil {
			s.logger.ErrorContext(ctx, "enqueue tenant welcome", slog.Any("error", err))
		}
	}
	return out, nil
}

// ValidateActive returns shared.ErrNotFound for unknown tenants and shared.ErrTenantInactive
// for suspended or cancelled ones. It does not require a bound principal.
func (s *Service) ValidateActive(ctx context.Context, tenantID uuid.UUID) error {
	t, err := s.repo.GetTenant(ctx, tenantID)
	if err != nil {
		return err
	}
	if t.Status != StatusActive {
		return fmt.Errorf("%w: %s is %s", shared.ErrTenantInactive, t.Slug, t.Status)
	}
	return nil
}

// SetStatus moves a tenant through active, suspended and cancelled.
func (s *Service) SetStatus(ctx context.Context, tenantID uuid.UUID, next Status) (Tenant, error) {
	p, err := requireSuper(ctx)
	if err != nil {
		return Tenant{}, err
	}
	var out Tenant
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		t, err := tx.LockTenant(ctx, tenantID)
		if err != nil {
			return err
		}
		if !t.Status.CanTransition(next) {
			return fmt.Errorf("%w: cannot move tenant from %s to %s", shared.ErrValidation, t.Status, next)
		}
		if err := tx.SetStatus(ctx, tenantID, next); err != nil {
			return err
		}
		prev := t.Status
		t.Status = next
		out = t
		return tx.RecordAudit(ctx, shared.AuditLog{
			TenantID: tenantID,
			ActorID:  p.UserID,
			Action:   "tenants.status",
			Entity:   "tenants",
			EntityID: tenantID.String(),
			Meta:     map[string]any{"from": string(prev), "to": string(next)},
		})
	})
	if err != nil {
		return Tenant{}, err
	}
	s.logger.InfoContext(ctx, "tenant status changed",
		slog.String("tenant_id", tenantID.String()),
		slog.String("status", string(next)))
	return out, nil
}

// GetTenant returns a tenant visible to the caller.
func (s *Service) GetTenant(ctx context.Context, tenantID uuid.UUID) (Tenant, error) {
	p, err := reqctx.Get(ctx)
	if err != nil {
		return Tenant{}, err
	}
	if !p.IsPlatformSuper() && p.TenantID != tenantID {
		return Tenant{}, fmt.Errorf("%w: tenant %s", shared.ErrNotFound, tenantID)
	}
	return s.repo.GetTenant(ctx, tenantID)
}

// ListTenants returns every tenant. Only platform super principals may call it.
func (s *Service) ListTenants(ctx context.Context) ([]Tenant, error) {
	if _, err := requireSuper(ctx); err != nil {
		return nil, err
	}
	return s.repo.ListTenants(ctx)
}

func requireSuper(ctx context.Context) (reqctx.Principal, error) {
	p, err := reqctx.Get(ctx)
	if err != nil {
		return reqctx.Principal{}, err
	}
	if !p.IsPlatformSuper() {
		return reqctx.Principal{}, fmt.Errorf("%w: platform administrator required", shared.ErrPermissionDenied)
	}
	return p, nil
}
