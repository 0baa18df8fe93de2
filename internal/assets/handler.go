package assets

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/rentora/rentora/internal/platform/httpx"
	"github.com/rentora/rentora/internal/rbac"
	"github.com/rentora/rentora/internal/shared"
)

// Handler exposes asset endpoints.
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

// MountRoutes registers asset routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.Require(rbac.ResourceAssets, rbac.ActionRead))
		r.Get("/", h.list)
		r.Get("/{id}", h.get)
	})
	r.With(h.rbac.Require(rbac.ResourceAssets, rbac.ActionCreate)).Post("/", h.create)
	r.With(h.rbac.Require(rbac.ResourceAssets, rbac.ActionUpdate)).Put("/{id}", h.update)
	r.With(h.rbac.Require(rbac.ResourceAssets, rbac.ActionDelete)).Delete("/{id}", h.delete)
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	f := ListFilter{Status: Status(q.Get("status"))}
	f.Page, f.PerPage = shared.PageParams(q)
	assets, page, err := h.service.List(r.Context(), f)
	if err != nil {
		h.fail(w, r, "list assets", err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"assets": assets, "pagination": page})
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request) {
	id, ok := h.assetID(w, r)
	if !ok {
		return
	}
	asset, err := h.service.Get(r.Context(), id)
	if err != nil {
		h.fail(w, r, "get asset", err)
		return
	}
	httpx.JSON(w, http.StatusOK, asset)
}

func (h *Handler) create(w http.ResponseWriter, r *http.Request) {
	var in Input
	if err := httpx.Bind(r, h.validate, &in); err != nil {
		httpx.RespondError(w, err)
		return
	}
	asset, err := h.service.Create(r.Context(), in)
	if err != nil {
		h.fail(w, r, "create asset", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, asset)
}

func (h *Handler) update(w http.ResponseWriter, r *http.Request) {
	id, ok := h.assetID(w, r)
	if !ok {
		return
	}
	var in Input
	if err := httpx.Bind(r, h.validate, &in); err != nil {
		httpx.RespondError(w, err)
		return
	}
	asset, err := h.service.Update(r.Context(), id, in)
	if err != nil {
		h.fail(w, r, "update asset", err)
		return
	}
	httpx.JSON(w, http.StatusOK, asset)
}

func (h *Handler) delete(w http.ResponseWriter, r *http.Request) {
	id, ok := h.assetID(w, r)
	if !ok {
		return
	}
	if err := h.service.Delete(r.Context(), id); err != nil {
		h.fail(w, r, "delete asset", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) assetID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid asset id")
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
