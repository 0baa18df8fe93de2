package roles

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/rentora/rentora/internal/platform/httpx"
	"github.com/rentora/rentora/internal/rbac"
	"github.com/rentora/rentora/internal/reqctx"
)

// Handler manages role management endpoints.
type Handler struct {
	logger   *slog.Logger
	service  *Service
	validate *validator.Validate
	rbac     rbac.Middleware
}

// NewHandler builds Handler instance.
func NewHandler(logger *slog.Logger, service *Service, validate *validator.Validate, rbac rbac.Middleware) *Handler {
	return &Handler{logger: logger, service: service, validate: validate, rbac: rbac}
}

// MountRoutes registers role routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.Require(rbac.ResourceRoles, rbac.ActionRead))
		r.Get("/", h.listRoles)
		r.Get("/{id}", h.getRole)
	})
	r.With(h.rbac.Require(rbac.ResourceRoles, rbac.ActionCreate)).Post("/", h.createRole)
	r.With(h.rbac.Require(rbac.ResourceRoles, rbac.ActionUpdate)).Put("/{id}/permissions", h.assignPermissions)
	r.With(h.rbac.Require(rbac.ResourceRoles, rbac.ActionDelete)).Delete("/{id}", h.deleteRole)
}

func (h *Handler) listRoles(w http.ResponseWriter, r *http.Request) {
	roles, err := h.service.ListRoles(r.Context())
	if err != nil {
		h.fail(w, r, "list roles", err)
		return
	}
	if roles == nil {
		roles = []Role{}
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"roles": roles})
}

func (h *Handler) getRole(w http.ResponseWriter, r *http.Request) {
	id, ok := h.roleID(w, r)
	if !ok {
		return
	}
	role, err := h.service.GetRole(r.Context(), id)
	if err != nil {
		h.fail(w, r, "get role", err)
		return
	}
	httpx.JSON(w, http.StatusOK, role)
}

func (h *Handler) createRole(w http.ResponseWriter, r *http.Request) {
	var in CreateRoleInput
	if err := httpx.Bind(r, h.validate, &in); err != nil {
		httpx.RespondError(w, err)
		return
	}
	tenantID, err := reqctx.Require(r.Context(), reqctx.FieldTenant)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	role, err := h.service.CreateCustomRole(r.Context(), tenantID, in)
	if err != nil {
		h.fail(w, r, "create role", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, role)
}

func (h *Handler) assignPermissions(w http.ResponseWriter, r *http.Request) {
	id, ok := h.roleID(w, r)
	if !ok {
		return
	}
	var in AssignPermissionsInput
	if err := httpx.Bind(r, h.validate, &in); err != nil {
		httpx.RespondError(w, err)
		return
	}
	perms, err := h.service.ParsePermissions(in.Permissions)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	role, err := h.service.AssignPermissionSet(r.Context(), id, perms)
	if err != nil {
		h.fail(w, r, "assign permissions", err)
		return
	}
	httpx.JSON(w, http.StatusOK, role)
}

func (h *Handler) deleteRole(w http.ResponseWriter, r *http.Request) {
	id, ok := h.roleID(w, r)
	if !ok {
		return
	}
	if err := h.service.DeleteRole(r.Context(), id); err != nil {
		h.fail(w, r, "delete role", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) roleID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid role id")
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
