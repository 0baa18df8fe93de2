package app

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rentora/rentora/internal/assets"
	"github.com/rentora/rentora/internal/auth"
	"github.com/rentora/rentora/internal/datastore"
	"github.com/rentora/rentora/internal/rbac"
	"github.com/rentora/rentora/internal/reqctx"
	"github.com/rentora/rentora/internal/roles"
	"github.com/rentora/rentora/internal/shared"
	"github.com/rentora/rentora/internal/tenancy"
	"github.com/rentora/rentora/internal/users"
	_ "github.com/rentora/rentora/testing"
)

const systemToken = "system-token-0123456789abcdef"

type activeTenants map[uuid.UUID]bool

func (a activeTenants) ValidateActive(ctx context.Context, id uuid.UUID) error {
	active, ok := a[id]
	switch {
	case !ok:
		return shared.ErrNotFound
	case !active:
		return shared.ErrTenantInactive
	}
	return nil
}

type allowAll struct{}

func (allowAll) Authorize(ctx context.Context, resource rbac.Resource, action rbac.Action) error {
	return nil
}

type noGrants struct{}

func (noGrants) Grant(ctx context.Context, tenant, user, bu uuid.UUID) (rbac.Grant, bool, error) {
	return rbac.Grant{}, false, nil
}

type routerFixture struct {
	handler   http.Handler
	tenant    uuid.UUID
	suspended uuid.UUID
}

func newRouterFixture(t *testing.T, token string) routerFixture {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	cfg := validConfig()
	cfg.SystemToken = token

	registry, err := NewRegistry()
	require.NoError(t, err)
	memory := datastore.NewMemory(registry)
	store := datastore.NewGuard(memory, registry, datastore.ModeStrict, logger, nil)

	tenant, suspended := uuid.New(), uuid.New()
	_, err = memory.Insert(context.Background(), tenancy.EntityBusinessUnits, datastore.Record{
		"tenant_id": tenant, "name": "Main", "slug": "main", "settings": map[string]any{},
	})
	require.NoError(t, err)

	sessions := shared.NewSessionManager(client, "rentora_session", time.Hour, false)
	csrf := shared.NewCSRFManager(cfg.CSRFSecret)
	validate := validator.New()
	evaluator := rbac.NewEvaluator(rbac.DefaultCatalog(), noGrants{}, logger, nil)
	mw := rbac.Middleware{Evaluator: evaluator, Logger: logger}
	units := tenancy.NewBusinessUnits(store, allowAll{}, nil, logger)
	authService := auth.NewService(nil, logger)
	roleService := roles.NewService(nil, rbac.DefaultCatalog(), evaluator, nil, logger)

	handler := NewRouter(RouterParams{
		Logger:             logger,
		Config:             cfg,
		SessionManager:     sessions,
		CSRFManager:        csrf,
		Authenticator:      auth.NewAuthenticator(authService, sessions, logger),
		TrustedHeader:      reqctx.NewTrustedHeader(activeTenants{tenant: true, suspended: false}, logger),
		AuthHandler:        auth.NewHandler(logger, authService, sessions, csrf, validate),
		TenancyHandler:     tenancy.NewHandler(logger, nil, units, validate, mw),
		RolesHandler:       roles.NewHandler(logger, roleService, validate, mw),
		UsersHandler:       users.NewHandler(logger, users.NewService(store, nil, evaluator, nil, logger), validate, mw),
		AssetsHandler:      assets.NewHandler(logger, assets.NewService(store, evaluator, logger), validate, mw),
		PermissionsHandler: rbac.NewPermissionsHandler(logger, evaluator, validate, mw),
	})
	return routerFixture{handler: handler, tenant: tenant, suspended: suspended}
}

func (f routerFixture) do(req *http.Request) *httptest.ResponseRecorder {
	rr := httptest.NewRecorder()
	f.handler.ServeHTTP(rr, req)
	return rr
}

func TestRouterHealth(t *testing.T) {
	f := newRouterFixture(t, "")
	rr := f.do(httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "DENY", rr.Header().Get("X-Frame-Options"))
}

func TestSystemRoutesNeedToken(t *testing.T) {
	f := newRouterFixture(t, "")
	rr := f.do(httptest.NewRequest(http.MethodGet, "/system/business-units", nil))
	assert.Equal(t, http.StatusNotFound, rr.Code)

	f = newRouterFixture(t, systemToken)
	req := httptest.NewRequest(http.MethodGet, "/system/business-units", nil)
	req.Header.Set(HeaderSystemToken, "wrong")
	req.Header.Set(reqctx.HeaderTenantID, f.tenant.String())
	assert.Equal(t, http.StatusUnauthorized, f.do(req).Code)
}

func TestSystemRoutesBindTenant(t *testing.T) {
	f := newRouterFixture(t, systemToken)
	call := func(tenantHeader string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodGet, "/system/business-units", nil)
		req.Header.Set(HeaderSystemToken, systemToken)
		if tenantHeader != "" {
			req.Header.Set(reqctx.HeaderTenantID, tenantHeader)
		}
		return f.do(req)
	}

	assert.Equal(t, http.StatusBadRequest, call("").Code)
	assert.Equal(t, http.StatusBadRequest, call("not-a-uuid").Code)
	assert.Equal(t, http.StatusNotFound, call(uuid.NewString()).Code)
	assert.Equal(t, http.StatusForbidden, call(f.suspended.String()).Code)

	rr := call(f.tenant.String())
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	var body struct {
		BusinessUnits []tenancy.BusinessUnit `json:"business_units"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	require.Len(t, body.BusinessUnits, 1)
	assert.Equal(t, f.tenant, body.BusinessUnits[0].TenantID)
}

func TestAPIRequiresSession(t *testing.T) {
	f := newRouterFixture(t, "")
	for _, path := range []string{
		"/api/tenants/", "/api/business-units/", "/api/roles/", "/api/permissions/",
		"/api/users/", "/api/assets/",
	} {
		rr := f.do(httptest.NewRequest(http.MethodGet, path, nil))
		assert.Equal(t, http.StatusUnauthorized, rr.Code, path)
	}
}

func TestUnsafeMethodsNeedCSRF(t *testing.T) {
	f := newRouterFixture(t, "")
	rr := f.do(httptest.NewRequest(http.MethodPost, "/auth/login", strings.NewReader(`{}`)))
	assert.Equal(t, http.StatusForbidden, rr.Code)

	rr = f.do(httptest.NewRequest(http.MethodGet, "/auth/csrf", nil))
	require.Equal(t, http.StatusOK, rr.Code)
	var tok map[string]string
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &tok))
	require.NotEmpty(t, tok["csrf_token"])

	req := httptest.NewRequest(http.MethodPost, "/auth/login", strings.NewReader(`{}`))
	for _, c := range rr.Result().Cookies() {
		req.AddCookie(c)
	}
	req.Header.Set(shared.CSRFHeader, tok["csrf_token"])
	assert.Equal(t, http.StatusBadRequest, f.do(req).Code)
}
