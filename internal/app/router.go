package app

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/rentora/rentora/internal/assets"
	"github.com/rentora/rentora/internal/auth"
	"github.com/rentora/rentora/internal/observability"
	"github.com/rentora/rentora/internal/platform/httpx"
	"github.com/rentora/rentora/internal/rbac"
	"github.com/rentora/rentora/internal/reqctx"
	"github.com/rentora/rentora/internal/roles"
	"github.com/rentora/rentora/internal/shared"
	"github.com/rentora/rentora/internal/tenancy"
	"github.com/rentora/rentora/internal/users"
	"github.com/rentora/rentora/jobs"
)

// RouterParams groups dependencies for building the HTTP router.
type RouterParams struct {
	Logger         *slog.Logger
	Config         *Config
	SessionManager *shared.SessionManager
	CSRFManager    *shared.CSRFManager
	Metrics        *observability.Metrics

	Authenticator      *auth.Authenticator
	TrustedHeader      *reqctx.TrustedHeader
	AuthHandler        *auth.Handler
	TenancyHandler     *tenancy.Handler
	RolesHandler       *roles.Handler
	UsersHandler       *users.Handler
	AssetsHandler      *assets.Handler
	PermissionsHandler *rbac.PermissionsHandler
	JobHandler         *jobs.Handler
}

// Router builds the HTTP router over the container's services.
func (c *Container) Router(jobHandler *jobs.Handler) http.Handler {
	mw := rbac.Middleware{Evaluator: c.Evaluator, Logger: c.Logger}
	return NewRouter(RouterParams{
		Logger:             c.Logger,
		Config:             c.Config,
		SessionManager:     c.Sessions,
		CSRFManager:        c.CSRF,
		Metrics:            c.Metrics,
		Authenticator:      auth.NewAuthenticator(c.Auth, c.Sessions, c.Logger),
		TrustedHeader:      reqctx.NewTrustedHeader(c.Tenants, c.Logger),
		AuthHandler:        auth.NewHandler(c.Logger, c.Auth, c.Sessions, c.CSRF, c.Validate),
		TenancyHandler:     tenancy.NewHandler(c.Logger, c.Tenants, c.BusinessUnits, c.Validate, mw).WithIdempotency(c.Idempotency),
		RolesHandler:       roles.NewHandler(c.Logger, c.Roles, c.Validate, mw),
		UsersHandler:       users.NewHandler(c.Logger, c.Users, c.Validate, mw),
		AssetsHandler:      assets.NewHandler(c.Logger, c.Assets, c.Validate, mw),
		PermissionsHandler: rbac.NewPermissionsHandler(c.Logger, c.Evaluator, c.Validate, mw),
		JobHandler:         jobHandler,
	})
}

// NewRouter constructs the chi.Router.
//
// /auth and /api run with sessions and CSRF checks. /api additionally requires resolved
// claims and binds the principal. /system is only mounted when a system token is set.
func NewRouter(params RouterParams) http.Handler {
	r := chi.NewRouter()
	mwCfg := MiddlewareConfig{
		Logger:         params.Logger,
		Config:         params.Config,
		SessionManager: params.SessionManager,
		CSRFManager:    params.CSRFManager,
		Metrics:        params.Metrics,
	}
	for _, mw := range MiddlewareStack(mwCfg) {
		r.Use(mw)
	}
	r.Use(chimw.Logger)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		httpx.JSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	if params.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", params.Metrics.Handler())
	}

	r.Group(func(r chi.Router) {
		r.Use(SessionMiddleware(mwCfg), CSRFMiddleware(mwCfg))
		r.Route("/auth", params.AuthHandler.MountRoutes)

		r.Route("/api", func(r chi.Router) {
			r.Use(params.Authenticator.Middleware, auth.RequireClaims, reqctx.Middleware{Logger: params.Logger}.Strict())
			r.Route("/tenants", params.TenancyHandler.MountTenantRoutes)
			r.Route("/business-units", params.TenancyHandler.MountBusinessUnitRoutes)
			r.Route("/roles", params.RolesHandler.MountRoutes)
			r.Route("/permissions", params.PermissionsHandler.MountRoutes)
			r.Route("/users", params.UsersHandler.MountRoutes)
			r.Route("/assets", params.AssetsHandler.MountRoutes)
		})
	})

	if params.Config != nil && params.Config.SystemToken != "" {
		r.Route("/system", func(r chi.Router) {
			r.Use(SystemTokenMiddleware(params.Config.SystemToken, params.Logger))
			if params.JobHandler != nil {
				r.Route("/jobs", params.JobHandler.MountRoutes)
			}
			r.Group(func(r chi.Router) {
				r.Use(params.TrustedHeader.Handler)
				r.Route("/business-units", params.TenancyHandler.MountSystemRoutes)
				r.Route("/permissions", params.PermissionsHandler.MountSystemRoutes)
			})
		})
	}
	return r
}
