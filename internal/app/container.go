package app

import (
	"errors"
	"log/slog"

	"github.com/go-playground/validator/v10"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/rentora/rentora/internal/assets"
	"github.com/rentora/rentora/internal/auth"
	"github.com/rentora/rentora/internal/datastore"
	"github.com/rentora/rentora/internal/observability"
	"github.com/rentora/rentora/internal/rbac"
	"github.com/rentora/rentora/internal/roles"
	"github.com/rentora/rentora/internal/shared"
	"github.com/rentora/rentora/internal/tenancy"
	"github.com/rentora/rentora/internal/users"
)

// Deps are the process-level resources the container is built from.
type Deps struct {
	Config   *Config
	Logger   *slog.Logger
	Metrics  *observability.Metrics
	Pool     *pgxpool.Pool
	Redis    *redis.Client
	Enqueuer tenancy.WelcomeEnqueuer
}

// Container holds every service of the application, wired once at startup.
type Container struct {
	Config    *Config
	Logger    *slog.Logger
	Metrics   *observability.Metrics
	Validate  *validator.Validate
	Registry  *datastore.Registry
	Store     *datastore.Guard
	Catalog   *rbac.Catalog
	Grants    *rbac.CachedGrants
	Evaluator *rbac.Evaluator
	Sessions  *shared.SessionManager
	CSRF      *shared.CSRFManager

	Idempotency *shared.IdempotencyStore

	Auth          *auth.Service
	Tenants       *tenancy.Service
	BusinessUnits *tenancy.BusinessUnits
	Roles         *roles.Service
	Users         *users.Service
	Assets        *assets.Service
}

// NewRegistry lists every tenant-scoped entity the guarded datastore serves.
func NewRegistry() (*datastore.Registry, error) {
	return datastore.NewRegistry(
		tenancy.BusinessUnitSpec,
		users.UserSpec,
		users.MembershipSpec,
		assets.Spec,
	)
}

// NewContainer wires the services. It fails when a required dependency is missing.
func NewContainer(d Deps) (*Container, error) {
	if d.Config == nil || d.Pool == nil {
		return nil, errors.New("app: config and database pool are required")
	}
	if d.Enqueuer == nil {
		return nil, errors.New("app: welcome enqueuer is required")
	}
	logger := d.Logger
	if logger == nil {
		logger = slog.Default()
	}

	registry, err := NewRegistry()
	if err != nil {
		return nil, err
	}
	store := datastore.NewGuard(datastore.NewPostgres(d.Pool, registry), registry, d.Config.GuardMode(), logger, d.Metrics)

	catalog := rbac.DefaultCatalog()
	grants := rbac.NewCachedGrants(rbac.NewPGGrants(d.Pool), d.Redis, d.Config.PermissionCacheTTL, logger)
	evaluator := rbac.NewEvaluator(catalog, grants, logger, d.Metrics)

	roleRepo := roles.NewRepository(d.Pool)

	c := &Container{
		Config:    d.Config,
		Logger:    logger,
		Metrics:   d.Metrics,
		Validate:  validator.New(),
		Registry:  registry,
		Store:     store,
		Catalog:   catalog,
		Grants:    grants,
		Evaluator: evaluator,
		CSRF:      shared.NewCSRFManager(d.Config.CSRFSecret),

		Idempotency: shared.NewIdempotencyStore(d.Pool),

		Auth:          auth.NewService(auth.NewRepository(d.Pool), logger),
		Tenants:       tenancy.NewService(tenancy.NewRepository(d.Pool), d.Enqueuer, logger),
		BusinessUnits: tenancy.NewBusinessUnits(store, evaluator, grants, logger),
		Roles:         roles.NewService(roleRepo, catalog, evaluator, grants, logger),
		Users:         users.NewService(store, roleRepo, evaluator, grants, logger),
		Assets:        assets.NewService(store, evaluator, logger),
	}
	if d.Redis != nil {
		c.Sessions = shared.NewSessionManager(d.Redis, d.Config.SessionCookie, d.Config.SessionTTL, d.Config.IsProduction())
	}
	return c, nil
}
