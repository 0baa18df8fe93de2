package httpx

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rentora/rentora/internal/shared"
)

func TestRespondErrorMapsSentinels(t *testing.T) {
	cases := []struct {
		err    error
		status int
	}{
		{fmt.Errorf("wrap: %w", shared.ErrNotFound), http.StatusNotFound},
		{shared.ErrDuplicateSlug, http.StatusConflict},
		{shared.ErrRoleInUse, http.StatusConflict},
		{shared.ErrPermissionDenied, http.StatusForbidden},
		{shared.ErrTenantInactive, http.StatusForbidden},
		{shared.ErrContextUnavailable, http.StatusUnauthorized},
		{shared.ErrValidation, http.StatusBadRequest},
		{fmt.Errorf("boom"), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		rr := httptest.NewRecorder()
		RespondError(rr, tc.err)
		assert.Equal(t, tc.status, rr.Code, tc.err.Error())
		assert.Equal(t, problemContentType, rr.Header().Get("Content-Type"))

		var doc ProblemDetail
		require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &doc))
		assert.Equal(t, tc.status, doc.Status)
	}

	rr := httptest.NewRecorder()
	RespondError(rr, fmt.Errorf("db password is hunter2"))
	assert.NotContains(t, rr.Body.String(), "hunter2")
}

func TestBind(t *testing.T) {
	type input struct {
		Name string `json:"name" validate:"required"`
	}
	v := validator.New()
	bind := func(body string) error {
		var in input
		return Bind(httptest.NewRequest(http.MethodPost, "/", strings.NewReader(body)), v, &in)
	}

	assert.NoError(t, bind(`{"name":"crane"}`))
	assert.ErrorIs(t, bind(``), ErrValidation)
	assert.ErrorIs(t, bind(`{"name":"a"} {"name":"b"}`), ErrValidation)
	assert.ErrorIs(t, bind(`{"name":""}`), ErrValidation)
	assert.ErrorIs(t, bind(`{"name":`), ErrValidation)
}
