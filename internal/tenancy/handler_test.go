package tenancy

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rentora/rentora/internal/rbac"
	"github.com/rentora/rentora/internal/reqctx"
	"github.com/rentora/rentora/internal/shared"
)

type keySet map[string]bool

func (k keySet) CheckAndInsert(ctx context.Context, key, module string) error {
	if k[module+"/"+key] {
		return shared.ErrIdempotencyConflict
	}
	k[module+"/"+key] = true
	return nil
}

func (k keySet) Delete(ctx context.Context, key, module string) error {
	delete(k, module+"/"+key)
	return nil
}

func tenantRouter(svc *Service, keys keySet) http.Handler {
	h := NewHandler(nil, svc, nil, validator.New(), rbac.Middleware{}).WithIdempotency(keys)
	r := chi.NewRouter()
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			p, _ := reqctx.Get(superCtx())
			next.ServeHTTP(w, req.WithContext(reqctx.With(req.Context(), p)))
		})
	})
	r.Route("/tenants", h.MountTenantRoutes)
	return r
}

func postTenant(t *testing.T, router http.Handler, in CreateTenantInput, key string) *httptest.ResponseRecorder {
	t.Helper()
	body, err := json.Marshal(in)
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodPost, "/tenants/", bytes.NewReader(body))
	if key != "" {
		req.Header.Set(shared.IdempotencyHeader, key)
	}
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	return rr
}

func TestCreateTenantHandlerIdempotency(t *testing.T) {
	repo := newMemRepo()
	keys := keySet{}
	router := tenantRouter(NewService(repo, nil, nil), keys)

	rr := postTenant(t, router, acmeInput(), "req-1")
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
	var res CreateTenantResult
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &res))
	assert.Equal(t, "acme-rentals-principal", res.BusinessUnit.Slug)

	rr = postTenant(t, router, acmeInput(), "req-1")
	assert.Equal(t, http.StatusConflict, rr.Code)
	assert.Len(t, repo.tenants, 1)

	rr = postTenant(t, router, acmeInput(), "req-2")
	assert.Equal(t, http.StatusConflict, rr.Code, "duplicate slug")
	assert.False(t, keys["tenants/req-2"], "failed request releases its key")
}

func TestCreateTenantHandlerValidation(t *testing.T) {
	router := tenantRouter(NewService(newMemRepo(), nil, nil), keySet{})
	in := acmeInput()
	in.OwnerEmail = "not-an-email"
	assert.Equal(t, http.StatusBadRequest, postTenant(t, router, in, "").Code)
}
