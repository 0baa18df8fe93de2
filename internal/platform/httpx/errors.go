// Package httpx provides HTTP response utilities.
package httpx

import (
	"errors"
	"net/http"

	"github.com/rentora/rentora/internal/shared"
)

// Sentinel errors for the HTTP layer.
var (
	ErrNotFound     = shared.ErrNotFound
	ErrDuplicate    = errors.New("duplicate entry")
	ErrValidation   = shared.ErrValidation
	ErrForbidden    = errors.New("forbidden")
	ErrUnauthorized = errors.New("unauthorized")
)

// RespondError maps domain errors to HTTP responses using RFC7807.
func RespondError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrNotFound):
		Problem(w, http.StatusNotFound, "Not Found", err.Error())
	case errors.Is(err, ErrDuplicate),
		errors.Is(err, shared.ErrDuplicateSlug),
		errors.Is(err, shared.ErrDuplicateEmail),
		errors.Is(err, shared.ErrDuplicateRole):
		Problem(w, http.StatusConflict, "Duplicate", err.Error())
	case errors.Is(err, shared.ErrIdempotencyConflict):
		Problem(w, http.StatusConflict, "Already Processed", err.Error())
	case errors.Is(err, shared.ErrRoleInUse):
		Problem(w, http.StatusConflict, "Role In Use", err.Error())
	case errors.Is(err, ErrValidation):
		Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
	case errors.Is(err, shared.ErrPermissionDenied),
		errors.Is(err, shared.ErrSystemRole),
		errors.Is(err, shared.ErrTenantMismatch),
		errors.Is(err, ErrForbidden):
		Problem(w, http.StatusForbidden, "Forbidden", err.Error())
	case errors.Is(err, shared.ErrTenantInactive):
		Problem(w, http.StatusForbidden, "Tenant Inactive", err.Error())
	case errors.Is(err, shared.ErrCSRFTokenMissing),
		errors.Is(err, shared.ErrCSRFTokenMismatch):
		Problem(w, http.StatusForbidden, "CSRF Rejected", err.Error())
	case errors.Is(err, shared.ErrContextUnavailable),
		errors.Is(err, shared.ErrContextFieldMissing),
		errors.Is(err, shared.ErrInvalidCredentials),
		errors.Is(err, ErrUnauthorized):
		Problem(w, http.StatusUnauthorized, "Unauthorized", err.Error())
	default:
		Problem(w, http.StatusInternalServerError, "Internal Error", "")
	}
}
