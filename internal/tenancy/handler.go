package tenancy

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/rentora/rentora/internal/platform/httpx"
	"github.com/rentora/rentora/internal/rbac"
	"github.com/rentora/rentora/internal/shared"
)

const idempotencyModule = "tenants"

// IdempotencyStore claims Idempotency-Key values of tenant creation requests.
type IdempotencyStore interface {
	CheckAndInsert(ctx context.Context, key, module string) error
	Delete(ctx context.Context, key, module string) error
}

// Handler exposes tenant and business unit endpoints.
type Handler struct {
	logger   *slog.Logger
	tenants  *Service
	units    *BusinessUnits
	validate *validator.Validate
	rbac     rbac.Middleware
	idem     IdempotencyStore
}

// NewHandler builds Handler instance.
func NewHandler(logger *slog.Logger, tenants *Service, units *BusinessUnits, validate *validator.Validate, rbac rbac.Middleware) *Handler {
	return &Handler{logger: logger, tenants: tenants, units: units, validate: validate, rbac: rbac}
}

// WithIdempotency enables Idempotency-Key handling on tenant creation.
func (h *Handler) WithIdempotency(store IdempotencyStore) *Handler {
	h.idem = store
	return h
}

// MountTenantRoutes registers platform tenant administration. The service enforces the
// platform super requirement.
func (h *Handler) MountTenantRoutes(r chi.Router) {
	r.Get("/", h.listTenants)
	r.Post("/", h.createTenant)
	r.Get("/{id}", h.getTenant)
	r.Put("/{id}/status", h.setStatus)
}

// MountBusinessUnitRoutes registers business unit CRUD for the current tenant.
func (h *Handler) MountBusinessUnitRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.Require(rbac.ResourceBusinessUnits, rbac.ActionRead))
		r.Get("/", h.listUnits)
		r.Get("/{id}", h.getUnit)
	})
	r.With(h.rbac.Require(rbac.ResourceBusinessUnits, rbac.ActionCreate)).Post("/", h.createUnit)
	r.With(h.rbac.Require(rbac.ResourceBusinessUnits, rbac.ActionUpdate)).Put("/{id}", h.updateUnit)
	r.With(h.rbac.Require(rbac.ResourceBusinessUnits, rbac.ActionDelete)).Delete("/{id}", h.deleteUnit)
}

// MountSystemRoutes registers trusted system caller routes.
func (h *Handler) MountSystemRoutes(r chi.Router) {
	r.Get("/", h.listUnitsForSystem)
}

func (h *Handler) listTenants(w http.ResponseWriter, r *http.Request) {
	tenants, err := h.tenants.ListTenants(r.Context())
	if err != nil {
		h.fail(w, r, "list tenants", err)
		return
	}
	if tenants == nil {
		tenants = []Tenant{}
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"tenants": tenants})
}

func (h *Handler) createTenant(w http.ResponseWriter, r *http.Request) {
	var in CreateTenantInput
	if err := httpx.Bind(r, h.validate, &in); err != nil {
		httpx.RespondError(w, err)
		return
	}
	key := r.Header.Get(shared.IdempotencyHeader)
	if key != "" && h.idem != nil {
		if err := h.idem.CheckAndInsert(r.Context(), key, idempotencyModule); err != nil {
			h.fail(w, r, "claim idempotency key", err)
			return
		}
	}
	res, err := h.tenants.CreateTenant(r.Context(), in)
	if err != nil {
		if key != "" && h.idem != nil {
			if derr := h.idem.Delete(r.Context(), key, idempotencyModule); derr != nil && h.logger != nil {
				h.logger.WarnContext(r.Context(), "release idempotency key", slog.Any("error", derr))
			}
		}
		h.fail(w, r, "create tenant", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, res)
}

func (h *Handler) getTenant(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	t, err := h.tenants.GetTenant(r.Context(), id)
	if err != nil {
		h.fail(w, r, "get tenant", err)
		return
	}
	httpx.JSON(w, http.StatusOK, t)
}

func (h *Handler) setStatus(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	var in StatusInput
	if err := httpx.Bind(r, h.validate, &in); err != nil {
		httpx.RespondError(w, err)
		return
	}
	t, err := h.tenants.SetStatus(r.Context(), id, in.Status)
	if err != nil {
		h.fail(w, r, "set tenant status", err)
		return
	}
	httpx.JSON(w, http.StatusOK, t)
}

func (h *Handler) listUnits(w http.ResponseWriter, r *http.Request) {
	units, err := h.units.List(r.Context())
	if err != nil {
		h.fail(w, r, "list business units", err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"business_units": units})
}

func (h *Handler) listUnitsForSystem(w http.ResponseWriter, r *http.Request) {
	units, err := h.units.ListForSystem(r.Context())
	if err != nil {
		h.fail(w, r, "system list business units", err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"business_units": units})
}

func (h *Handler) getUnit(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	bu, err := h.units.Get(r.Context(), id)
	if err != nil {
		h.fail(w, r, "get business unit", err)
		return
	}
	httpx.JSON(w, http.StatusOK, bu)
}

func (h *Handler) createUnit(w http.ResponseWriter, r *http.Request) {
	var in BusinessUnitInput
	if err := httpx.Bind(r, h.validate, &in); err != nil {
		httpx.RespondError(w, err)
		return
	}
	bu, err := h.units.Create(r.Context(), in)
	if err != nil {
		h.fail(w, r, "create business unit", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, bu)
}

func (h *Handler) updateUnit(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	var in BusinessUnitInput
	if err := httpx.Bind(r, h.validate, &in); err != nil {
		httpx.RespondError(w, err)
		return
	}
	bu, err := h.units.Update(r.Context(), id, in)
	if err != nil {
		h.fail(w, r, "update business unit", err)
		return
	}
	httpx.JSON(w, http.StatusOK, bu)
}

func (h *Handler) deleteUnit(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	if err := h.units.Delete(r.Context(), id); err != nil {
		h.fail(w, r, "delete business unit", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func pathID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid id")
		return uuid.Nil, false
	}
	return id, true
}

func (h *Handler) fail(w http.ResponseWriter, r *http.Request, op string, err error) {
	if h.logger != nil {
		h.logger.WarnContext(r.Context(), op, slog.Any("error", err))
	}
	httpx.RespondError(w, err)
}
