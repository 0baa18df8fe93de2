package rbac

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/rentora/rentora/internal/reqctx"
)

func serveWith(h func(http.Handler) http.Handler, ctx context.Context) int {
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})
	req := httptest.NewRequest(http.MethodPost, "/api/assets", nil).WithContext(ctx)
	rr := httptest.NewRecorder()
	h(next).ServeHTTP(rr, req)
	return rr.Code
}

func TestMiddlewareRequire(t *testing.T) {
	catalog := DefaultCatalog()
	grants := newStubGrants()
	p, k := member(RoleEmployee)
	grants.assign(k.tenant, k.user, k.bu, systemGrant(RoleEmployee, catalog))
	mw := Middleware{Evaluator: NewEvaluator(catalog, grants, nil, nil)}
	bound := reqctx.With(context.Background(), p)

	assert.Equal(t, http.StatusUnauthorized, serveWith(mw.Require(ResourceAssets, ActionCreate), context.Background()))
	assert.Equal(t, http.StatusNoContent, serveWith(mw.Require(ResourceAssets, ActionCreate), bound))
	assert.Equal(t, http.StatusForbidden, serveWith(mw.Require(ResourceAssets, ActionDelete), bound))
}

func TestMiddlewareAnyAndAll(t *testing.T) {
	catalog := DefaultCatalog()
	grants := newStubGrants()
	p, k := member(RoleViewer)
	grants.assign(k.tenant, k.user, k.bu, systemGrant(RoleViewer, catalog))
	mw := Middleware{Evaluator: NewEvaluator(catalog, grants, nil, nil)}
	bound := reqctx.With(context.Background(), p)

	read := Perm(ResourceAssets, ActionRead)
	write := Perm(ResourceAssets, ActionUpdate)

	assert.Equal(t, http.StatusNoContent, serveWith(mw.RequireAny(write, read), bound))
	assert.Equal(t, http.StatusForbidden, serveWith(mw.RequireAll(write, read), bound))
}

func TestMiddlewareWithoutPermissionsFailsClosed(t *testing.T) {
	catalog := DefaultCatalog()
	grants := newStubGrants()
	p, k := member(RoleOwner)
	grants.assign(k.tenant, k.user, k.bu, systemGrant(RoleOwner, catalog))
	mw := Middleware{Evaluator: NewEvaluator(catalog, grants, nil, nil)}
	bound := reqctx.With(context.Background(), p)

	assert.Equal(t, http.StatusInternalServerError, serveWith(mw.RequireAll(), bound))
	assert.Equal(t, http.StatusInternalServerError, serveWith(mw.RequireAny(), bound))
	assert.Equal(t, http.StatusInternalServerError, serveWith(mw.RequireAll(Permission{Resource: ResourceAssets}), bound))
}

func TestMiddlewareGrantFailureIsServerError(t *testing.T) {
	grants := newStubGrants()
	grants.err = errors.New("timeout")
	p, _ := member(RoleManager)
	mw := Middleware{Evaluator: NewEvaluator(DefaultCatalog(), grants, nil, nil)}

	assert.Equal(t, http.StatusInternalServerError, serveWith(mw.Require(ResourceAssets, ActionRead), reqctx.With(context.Background(), p)))
}
