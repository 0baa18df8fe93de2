package shared

import "errors"

var (
	// ErrNotFound indicates resource not found.
	ErrNotFound = errors.New("not found")
	// ErrInvalidCredentials indicates login failure.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrCSRFTokenMissing occurs when CSRF token missing.
	ErrCSRFTokenMissing = errors.New("csrf token missing")
	// ErrCSRFTokenMismatch occurs when CSRF tokens do not match.
	ErrCSRFTokenMismatch = errors.New("csrf token mismatch")
	// ErrValidation wraps input validation failures.
	ErrValidation = errors.New("validation failed")

	// ErrContextUnavailable means a function needed the request context but none was bound.
	ErrContextUnavailable = errors.New("request context unavailable")
	// ErrContextFieldMissing means the bound request context lacks a required field.
	ErrContextFieldMissing = errors.New("request context field missing")
	// ErrMissingTenantFilter means a tenant-scoped data operation had no tenant constraint.
	ErrMissingTenantFilter = errors.New("missing tenant filter")
	// ErrTenantMismatch means a tenant constraint differs from the bound request tenant.
	ErrTenantMismatch = errors.New("tenant does not match request context")
	// ErrPermissionDenied means the evaluator refused the operation.
	ErrPermissionDenied = errors.New("permission denied")
	// ErrRoleInUse blocks deletion of system roles or roles still assigned.
	ErrRoleInUse = errors.New("role in use")
	// ErrSystemRole blocks edits of system role definitions outside provisioning.
	ErrSystemRole = errors.New("system role is read-only")
	// ErrTenantInactive means the tenant exists but is suspended or cancelled.
	ErrTenantInactive = errors.New("tenant inactive")
	// ErrDuplicateSlug indicates a tenant or business unit slug collision.
	ErrDuplicateSlug = errors.New("duplicate slug")
	// ErrDuplicateEmail indicates a user email collision.
	ErrDuplicateEmail = errors.New("duplicate email")
	// ErrDuplicateRole indicates a role name collision within a tenant.
	ErrDuplicateRole = errors.New("duplicate role")
)
