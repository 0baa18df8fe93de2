package app

import (
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSystemTokenMiddleware(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	ok := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusNoContent) })

	cases := []struct {
		name     string
		expected string
		given    string
		code     int
	}{
		{"match", systemToken, systemToken, http.StatusNoContent},
		{"mismatch", systemToken, systemToken + "x", http.StatusUnauthorized},
		{"missing", systemToken, "", http.StatusUnauthorized},
		{"unconfigured", "", "", http.StatusUnauthorized},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			if tc.given != "" {
				req.Header.Set(HeaderSystemToken, tc.given)
			}
			rr := httptest.NewRecorder()
			SystemTokenMiddleware(tc.expected, logger)(ok).ServeHTTP(rr, req)
			assert.Equal(t, tc.code, rr.Code)
		})
	}
}
