package rbac

import (
	"log/slog"
	"net/http"

	"github.com/rentora/rentora/internal/platform/httpx"
	"github.com/rentora/rentora/internal/reqctx"
)

// Middleware wires RBAC authorization helpers for HTTP handlers.
type Middleware struct {
	Evaluator *Evaluator
	Logger    *slog.Logger
}

// Require ensures the current principal may perform action on resource.
func (m Middleware) Require(resource Resource, action Action) func(http.Handler) http.Handler {
	return m.RequireAll(Perm(resource, action))
}

// RequireAny ensures the current principal holds at least one of the permissions.
func (m Middleware) RequireAny(perms ...Permission) func(http.Handler) http.Handler {
	return m.gate("rbac require any", perms, func(allowed, total int) bool {
		return allowed > 0
	})
}

// RequireAll ensures the current principal holds every permission.
func (m Middleware) RequireAll(perms ...Permission) func(http.Handler) http.Handler {
	return m.gate("rbac require all", perms, func(allowed, total int) bool {
		return allowed == total
	})
}

func (m Middleware) gate(op string, perms []Permission, pass func(allowed, total int) bool) func(http.Handler) http.Handler {
	required := normalizePermissions(perms)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if len(required) == 0 {
				if m.Logger != nil {
					m.Logger.Error(op, slog.String("error", "no permissions configured"), slog.String("path", r.URL.Path))
				}
				httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "")
				return
			}
			p, err := reqctx.Get(r.Context())
			if err != nil {
				httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "authentication required")
				return
			}
			allowed := 0
			for _, perm := range required {
				d, err := m.Evaluator.Check(r.Context(), p, perm)
				if err != nil {
					if m.Logger != nil {
						m.Logger.Error(op, slog.Any("error", err))
					}
					httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "")
					return
				}
				if d.Allowed {
					allowed++
				}
			}
			if pass(allowed, len(required)) {
				next.ServeHTTP(w, r)
				return
			}
			httpx.Problem(w, http.StatusForbidden, "Forbidden", "missing permission")
		})
	}
}

func normalizePermissions(perms []Permission) []Permission {
	seen := make(map[Permission]struct{}, len(perms))
	out := make([]Permission, 0, len(perms))
	for _, p := range perms {
		if p.Resource == "" || p.Action == "" {
			continue
		}
		if _, ok := seen[p]; ok {
			continue
		}
		seen[p] = struct{}{}
		out = append(out, p)
	}
	return out
}
