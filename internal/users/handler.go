package users

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/rentora/rentora/internal/platform/httpx"
	"github.com/rentora/rentora/internal/rbac"
)

// Handler manages user management endpoints.
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

// MountRoutes registers user routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.Require(rbac.ResourceUsers, rbac.ActionRead))
		r.Get("/", h.listUsers)
		r.Get("/{id}", h.getUser)
		r.Get("/{id}/memberships", h.listMemberships)
	})
	r.With(h.rbac.Require(rbac.ResourceUsers, rbac.ActionCreate)).Post("/", h.createUser)
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.Require(rbac.ResourceUsers, rbac.ActionUpdate))
		r.Put("/{id}/active", h.setActive)
		r.Put("/{id}/memberships/{buID}", h.assignMembership)
		r.Delete("/{id}/memberships/{buID}", h.removeMembership)
	})
}

func (h *Handler) listUsers(w http.ResponseWriter, r *http.Request) {
	users, err := h.service.ListUsers(r.Context())
	if err != nil {
		h.fail(w, r, "list users", err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"users": users})
}

func (h *Handler) getUser(w http.ResponseWriter, r *http.Request) {
	id, ok := pathUUID(w, r, "id")
	if !ok {
		return
	}
	user, err := h.service.GetUser(r.Context(), id)
	if err != nil {
		h.fail(w, r, "get user", err)
		return
	}
	httpx.JSON(w, http.StatusOK, user)
}

func (h *Handler) createUser(w http.ResponseWriter, r *http.Request) {
	var in CreateUserInput
	if err := httpx.Bind(r, h.validate, &in); err != nil {
		httpx.RespondError(w, err)
		return
	}
	user, err := h.service.CreateUser(r.Context(), in)
	if err != nil {
		h.fail(w, r, "create user", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, user)
}

func (h *Handler) setActive(w http.ResponseWriter, r *http.Request) {
	id, ok := pathUUID(w, r, "id")
	if !ok {
		return
	}
	var in ActiveInput
	if err := httpx.Bind(r, h.validate, &in); err != nil {
		httpx.RespondError(w, err)
		return
	}
	user, err := h.service.SetActive(r.Context(), id, *in.Active)
	if err != nil {
		h.fail(w, r, "set user active", err)
		return
	}
	httpx.JSON(w, http.StatusOK, user)
}

func (h *Handler) listMemberships(w http.ResponseWriter, r *http.Request) {
	id, ok := pathUUID(w, r, "id")
	if !ok {
		return
	}
	memberships, err := h.service.Memberships(r.Context(), id)
	if err != nil {
		h.fail(w, r, "list memberships", err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"memberships": memberships})
}

func (h *Handler) assignMembership(w http.ResponseWriter, r *http.Request) {
	id, ok := pathUUID(w, r, "id")
	if !ok {
		return
	}
	buID, ok := pathUUID(w, r, "buID")
	if !ok {
		return
	}
	var in MembershipInput
	if err := httpx.Bind(r, h.validate, &in); err != nil {
		httpx.RespondError(w, err)
		return
	}
	m, err := h.service.AssignMembership(r.Context(), id, buID, uuid.MustParse(in.RoleID))
	if err != nil {
		h.fail(w, r, "assign membership", err)
		return
	}
	httpx.JSON(w, http.StatusOK, m)
}

func (h *Handler) removeMembership(w http.ResponseWriter, r *http.Request) {
	id, ok := pathUUID(w, r, "id")
	if !ok {
		return
	}
	buID, ok := pathUUID(w, r, "buID")
	if !ok {
		return
	}
	if err := h.service.RemoveMembership(r.Context(), id, buID); err != nil {
		h.fail(w, r, "remove membership", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func pathUUID(w http.ResponseWriter, r *http.Request, param string) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, param))
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid "+param)
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
