package reqctx

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/rentora/rentora/internal/platform/httpx"
	"github.com/rentora/rentora/internal/shared"
)

// HeaderTenantID carries the tenant for trusted system callers.
const HeaderTenantID = "X-Tenant-Id"

// TenantValidator confirms a tenant exists and is active.
type TenantValidator interface {
	ValidateActive(ctx context.Context, tenantID uuid.UUID) error
}

// Middleware binds authenticated principals into the request context.
type Middleware struct {
	Logger *slog.Logger
}

// Strict binds the principal from verified claims. Requests without claims continue
// unbound, so tenant-scoped access further down fails closed.
func (m Middleware) Strict() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			claims, ok := ClaimsFromContext(r.Context())
			if !ok {
				next.ServeHTTP(w, r)
				return
			}
			p := claims.Principal()
			if m.Logger != nil {
				m.Logger.Debug("request context bound",
					slog.String("user_id", p.UserID.String()),
					slog.String("tenant_id", p.TenantID.String()),
					slog.String("business_unit_id", p.BusinessUnitID.String()))
			}
			next.ServeHTTP(w, r.WithContext(With(r.Context(), p)))
		})
	}
}

// TrustedHeader binds a system principal for the tenant named in X-Tenant-Id.
//
// It must only be mounted on routes that are not publicly reachable. The tenant is always
// validated before the context is bound; a TrustedHeader cannot be built without a validator.
type TrustedHeader struct {
	validator TenantValidator
	logger    *slog.Logger
}

// NewTrustedHeader builds the trusted-header binder. It panics when validator is nil.
func NewTrustedHeader(validator TenantValidator, logger *slog.Logger) *TrustedHeader {
	if validator == nil {
		panic("reqctx: trusted header mode requires a tenant validator")
	}
	return &TrustedHeader{validator: validator, logger: logger}
}

// Handler wraps next with tenant validation and context binding.
func (t *TrustedHeader) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw := strings.TrimSpace(r.Header.Get(HeaderTenantID))
		if raw == "" {
			httpx.Problem(w, http.StatusBadRequest, "Bad Request", "missing "+HeaderTenantID+" header")
			return
		}
		tenantID, err := uuid.Parse(raw)
		if err != nil {
			httpx.Problem(w, http.StatusBadRequest, "Bad Request", "malformed "+HeaderTenantID+" header")
			return
		}
		if err := t.validator.ValidateActive(r.Context(), tenantID); err != nil {
			if t.logger != nil {
				t.logger.Warn("trusted header rejected",
					slog.String("tenant_id", tenantID.String()),
					slog.String("path", r.URL.Path),
					slog.Any("error", err))
			}
			switch {
			case errors.Is(err, shared.ErrTenantInactive), errors.Is(err, shared.ErrNotFound):
				httpx.RespondError(w, err)
			default:
				httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "")
			}
			return
		}
		next.ServeHTTP(w, r.WithContext(With(r.Context(), SystemPrincipal(tenantID))))
	})
}
