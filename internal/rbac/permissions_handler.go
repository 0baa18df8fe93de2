package rbac

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/rentora/rentora/internal/platform/httpx"
	"github.com/rentora/rentora/internal/reqctx"
)

// PermissionsHandler exposes the catalog and permission checks.
type PermissionsHandler struct {
	logger    *slog.Logger
	evaluator *Evaluator
	validate  *validator.Validate
	rbac      Middleware
}

// NewPermissionsHandler builds PermissionsHandler instance.
func NewPermissionsHandler(logger *slog.Logger, evaluator *Evaluator, validate *validator.Validate, rbac Middleware) *PermissionsHandler {
	return &PermissionsHandler{logger: logger, evaluator: evaluator, validate: validate, rbac: rbac}
}

// MountRoutes registers permission routes for authenticated users.
func (h *PermissionsHandler) MountRoutes(r chi.Router) {
	r.Get("/me", h.myPermissions)
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.Require(ResourceRoles, ActionRead))
		r.Get("/", h.listPermissions)
	})
}

// MountSystemRoutes registers permission checks for trusted system callers.
func (h *PermissionsHandler) MountSystemRoutes(r chi.Router) {
	r.Post("/check", h.checkPermission)
}

func (h *PermissionsHandler) listPermissions(w http.ResponseWriter, r *http.Request) {
	httpx.JSON(w, http.StatusOK, map[string]any{"permissions": h.evaluator.Catalog().All()})
}

func (h *PermissionsHandler) myPermissions(w http.ResponseWriter, r *http.Request) {
	p, err := reqctx.Get(r.Context())
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	perms, err := h.evaluator.Effective(r.Context(), p)
	if err != nil {
		h.logger.Error("effective permissions", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	if perms == nil {
		perms = []Permission{}
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"permissions": perms})
}

type checkRequest struct {
	UserID         uuid.UUID `json:"user_id" validate:"required"`
	BusinessUnitID uuid.UUID `json:"business_unit_id" validate:"required"`
	Permission     string    `json:"permission" validate:"required"`
}

func (h *PermissionsHandler) checkPermission(w http.ResponseWriter, r *http.Request) {
	var req checkRequest
	if err := httpx.Bind(r, h.validate, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	perm, err := ParsePermission(req.Permission)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	tenantID, err := reqctx.Require(r.Context(), reqctx.FieldTenant)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	subject, err := h.evaluator.PrincipalFor(r.Context(), tenantID, req.UserID, req.BusinessUnitID)
	if err != nil {
		h.logger.Error("resolve principal", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	decision, err := h.evaluator.Check(r.Context(), subject, perm)
	if err != nil {
		h.logger.Error("permission check", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, decision)
}
