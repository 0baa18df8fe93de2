package auth

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/rentora/rentora/internal/platform/httpx"
	"github.com/rentora/rentora/internal/reqctx"
	"github.com/rentora/rentora/internal/shared"
)

// Handler wires HTTP endpoints for authentication flows.
type Handler struct {
	logger         *slog.Logger
	service        *Service
	sessionManager *shared.SessionManager
	csrfManager    *shared.CSRFManager
	validator      *validator.Validate
}

// NewHandler constructs a Handler instance.
func NewHandler(logger *slog.Logger, service *Service, sessions *shared.SessionManager, csrf *shared.CSRFManager, validate *validator.Validate) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		logger:         logger,
		service:        service,
		sessionManager: sessions,
		csrfManager:    csrf,
		validator:      validate,
	}
}

// MountRoutes registers auth routes on provided router.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/csrf", h.csrfToken)
	r.Post("/login", h.handleLogin)
	r.Post("/logout", h.handleLogout)
	r.With(RequireClaims).Post("/business-unit", h.switchBusinessUnit)
	r.With(RequireClaims).Get("/me", h.me)
}

func (h *Handler) csrfToken(w http.ResponseWriter, r *http.Request) {
	token, err := h.csrfManager.EnsureToken(shared.SessionFromContext(r.Context()))
	if err != nil {
		h.logger.ErrorContext(r.Context(), "ensure csrf token", slog.Any("error", err))
		httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "")
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]string{"csrf_token": token})
}

func (h *Handler) handleLogin(w http.ResponseWriter, r *http.Request) {
	sess := shared.SessionFromContext(r.Context())
	if sess == nil {
		h.logger.ErrorContext(r.Context(), "session missing during login")
		httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "")
		return
	}
	var in LoginInput
	if err := httpx.Bind(r, h.validator, &in); err != nil {
		httpx.RespondError(w, err)
		return
	}
	user, err := h.service.Authenticate(r.Context(), in.Email, in.Password)
	if err != nil {
		h.respondAuthError(w, r, err)
		return
	}
	claims, user, memberships, err := h.service.ResolveClaims(r.Context(), user.ID, uuid.Nil)
	if err != nil {
		h.respondAuthError(w, r, err)
		return
	}

	sess.Renew()
	sess.SetUser(user.ID.String())
	if claims.BusinessUnitID != uuid.Nil {
		sess.SetBusinessUnit(claims.BusinessUnitID)
	}
	token, err := h.csrfManager.EnsureToken(sess)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "ensure csrf token", slog.Any("error", err))
		httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "")
		return
	}
	h.logger.InfoContext(r.Context(), "login", slog.String("user_id", user.ID.String()))
	httpx.JSON(w, http.StatusOK, Profile{
		User:           user,
		BusinessUnitID: claims.BusinessUnitID,
		Role:           claims.Role,
		Memberships:    memberships,
		CSRFToken:      token,
	})
}

func (h *Handler) handleLogout(w http.ResponseWriter, r *http.Request) {
	h.sessionManager.Destroy(shared.SessionFromContext(r.Context()))
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) switchBusinessUnit(w http.ResponseWriter, r *http.Request) {
	var in SwitchInput
	if err := httpx.Bind(r, h.validator, &in); err != nil {
		httpx.RespondError(w, err)
		return
	}
	requested := uuid.MustParse(in.BusinessUnitID)
	current, _ := reqctx.ClaimsFromContext(r.Context())
	claims, user, memberships, err := h.service.ResolveClaims(r.Context(), current.UserID, requested)
	if err != nil {
		h.respondAuthError(w, r, err)
		return
	}
	if claims.BusinessUnitID != requested {
		httpx.Problem(w, http.StatusForbidden, "Forbidden", "not a member of the requested business unit")
		return
	}
	if sess := shared.SessionFromContext(r.Context()); sess != nil {
		sess.SetBusinessUnit(requested)
	}
	httpx.JSON(w, http.StatusOK, Profile{User: user, BusinessUnitID: claims.BusinessUnitID, Role: claims.Role, Memberships: memberships})
}

func (h *Handler) me(w http.ResponseWriter, r *http.Request) {
	current, _ := reqctx.ClaimsFromContext(r.Context())
	claims, user, memberships, err := h.service.ResolveClaims(r.Context(), current.UserID, current.BusinessUnitID)
	if err != nil {
		h.respondAuthError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, Profile{User: user, BusinessUnitID: claims.BusinessUnitID, Role: claims.Role, Memberships: memberships})
}

func (h *Handler) respondAuthError(w http.ResponseWriter, r *http.Request, err error) {
	if errors.Is(err, shared.ErrInvalidCredentials) {
		httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "invalid email or password")
		return
	}
	h.logger.WarnContext(r.Context(), "authentication failed", slog.Any("error", err))
	httpx.RespondError(w, err)
}
