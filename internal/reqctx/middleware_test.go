package reqctx

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rentora/rentora/internal/shared"
)

type stubValidator struct {
	err   error
	calls int
}

func (s *stubValidator) ValidateActive(ctx context.Context, tenantID uuid.UUID) error {
	s.calls++
	return s.err
}

func captureHandler(got *Principal, bound *bool) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		p, err := Get(r.Context())
		*bound = err == nil
		*got = p
		w.WriteHeader(http.StatusNoContent)
	})
}

func TestStrictBindsClaims(t *testing.T) {
	claims := Claims{UserID: uuid.New(), TenantID: uuid.New(), BusinessUnitID: uuid.New(), Role: "MANAGER"}

	var got Principal
	var bound bool
	h := Middleware{}.Strict()(captureHandler(&got, &bound))

	req := httptest.NewRequest(http.MethodGet, "/api/assets", nil)
	req = req.WithContext(WithClaims(req.Context(), claims))
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)

	require.True(t, bound)
	assert.Equal(t, claims.TenantID, got.TenantID)
	assert.Equal(t, claims.BusinessUnitID, got.BusinessUnitID)
	assert.Equal(t, []string{"MANAGER"}, got.Roles)
}

func TestStrictWithoutClaimsLeavesContextUnbound(t *testing.T) {
	var got Principal
	var bound bool
	h := Middleware{}.Strict()(captureHandler(&got, &bound))

	req := httptest.NewRequest(http.MethodGet, "/api/assets", nil)
	req.Header.Set(HeaderTenantID, uuid.NewString())
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)

	assert.False(t, bound, "strict mode must never fall back to headers")
	assert.Equal(t, http.StatusNoContent, rr.Code)
}

func TestTrustedHeaderBindsSystemPrincipal(t *testing.T) {
	tenant := uuid.New()
	validator := &stubValidator{}

	var got Principal
	var bound bool
	h := NewTrustedHeader(validator, nil).Handler(captureHandler(&got, &bound))

	req := httptest.NewRequest(http.MethodGet, "/system/business-units", nil)
	req.Header.Set(HeaderTenantID, tenant.String())
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)

	require.True(t, bound)
	assert.Equal(t, 1, validator.calls)
	assert.Equal(t, tenant, got.TenantID)
	assert.Equal(t, SystemUserID, got.UserID)
	assert.True(t, got.System)
}

func TestTrustedHeaderRejections(t *testing.T) {
	cases := []struct {
		name   string
		header string
		err    error
		status int
	}{
		{name: "missing header", header: "", status: http.StatusBadRequest},
		{name: "malformed header", header: "acme", status: http.StatusBadRequest},
		{name: "inactive tenant", header: uuid.NewString(), err: shared.ErrTenantInactive, status: http.StatusForbidden},
		{name: "unknown tenant", header: uuid.NewString(), err: shared.ErrNotFound, status: http.StatusNotFound},
		{name: "lookup failure", header: uuid.NewString(), err: errors.New("db down"), status: http.StatusInternalServerError},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			var got Principal
			var bound bool
			h := NewTrustedHeader(&stubValidator{err: tc.err}, nil).Handler(captureHandler(&got, &bound))

			req := httptest.NewRequest(http.MethodGet, "/system/business-units", nil)
			if tc.header != "" {
				req.Header.Set(HeaderTenantID, tc.header)
			}
			rr := httptest.NewRecorder()
			h.ServeHTTP(rr, req)

			assert.Equal(t, tc.status, rr.Code)
			assert.False(t, bound)
		})
	}
}

func TestTrustedHeaderRequiresValidator(t *testing.T) {
	assert.Panics(t, func() { NewTrustedHeader(nil, nil) })
}
