package roles

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rentora/rentora/internal/rbac"
	"github.com/rentora/rentora/internal/reqctx"
)

type ownerGrants struct{}

func (ownerGrants) Grant(ctx context.Context, tenant, user, bu uuid.UUID) (rbac.Grant, bool, error) {
	return rbac.Grant{RoleID: rbac.OwnerRoleID, RoleName: rbac.RoleOwner}, true, nil
}

func newTestRouter(t *testing.T, ctx context.Context) (http.Handler, *memRepo) {
	t.Helper()
	svc, repo, _ := provisioned(t)
	mw := rbac.Middleware{Evaluator: rbac.NewEvaluator(rbac.DefaultCatalog(), ownerGrants{}, nil, nil)}
	h := NewHandler(nil, svc, validator.New(), mw)

	r := chi.NewRouter()
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			if p, err := reqctx.Get(ctx); err == nil {
				req = req.WithContext(reqctx.With(req.Context(), p))
			}
			next.ServeHTTP(w, req)
		})
	})
	r.Route("/roles", h.MountRoutes)
	return r, repo
}

func TestHandlerCreateAndDelete(t *testing.T) {
	tenant := uuid.New()
	router, repo := newTestRouter(t, adminCtx(tenant))

	body := strings.NewReader(`{"name":"Dispatcher","permissions":["assets:read","clients:read"]}`)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/roles/", body))
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())

	var created Role
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &created))
	assert.Equal(t, "Dispatcher", created.Name)
	assert.Len(t, repo.edges[created.ID], 2)

	rr = httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodDelete, "/roles/"+rbac.OwnerRoleID.String(), nil))
	assert.Equal(t, http.StatusConflict, rr.Code)

	rr = httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodDelete, "/roles/"+created.ID.String(), nil))
	assert.Equal(t, http.StatusNoContent, rr.Code)
}

func TestHandlerRejectsBadInput(t *testing.T) {
	router, _ := newTestRouter(t, adminCtx(uuid.New()))

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/roles/", strings.NewReader(`{"permissions":["assets:read"]}`)))
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	rr = httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodPut, "/roles/not-a-uuid/permissions", strings.NewReader(`{}`)))
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	rr = httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodPut, "/roles/"+rbac.OwnerRoleID.String()+"/permissions", strings.NewReader(`{"permissions":[]}`)))
	assert.Equal(t, http.StatusForbidden, rr.Code)
}

func TestHandlerRequiresPrincipal(t *testing.T) {
	router, _ := newTestRouter(t, context.Background())

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/roles/", nil))
	assert.Equal(t, http.StatusUnauthorized, rr.Code)
}
