package auth

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/google/uuid"

	"github.com/rentora/rentora/internal/platform/httpx"
	"github.com/rentora/rentora/internal/reqctx"
	"github.com/rentora/rentora/internal/shared"
)

// Authenticator turns the session user into verified reqctx.Claims. Claims are rebuilt on
// every request so role, membership and tenant status changes apply immediately.
type Authenticator struct {
	service  *Service
	sessions *shared.SessionManager
	logger   *slog.Logger
}

// NewAuthenticator builds the middleware.
func NewAuthenticator(service *Service, sessions *shared.SessionManager, logger *slog.Logger) *Authenticator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Authenticator{service: service, sessions: sessions, logger: logger}
}

// Middleware stamps claims for logged-in sessions. Anonymous requests pass through without
// claims.
func (a *Authenticator) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sess := shared.SessionFromContext(r.Context())
		if sess == nil || sess.User() == "" {
			next.ServeHTTP(w, r)
			return
		}
		userID, err := uuid.Parse(sess.User())
		if err != nil {
			a.sessions.Destroy(sess)
			next.ServeHTTP(w, r)
			return
		}
		claims, _, _, err := a.service.ResolveClaims(r.Context(), userID, sess.BusinessUnit())
		switch {
		case err == nil:
		case errors.Is(err, shared.ErrInvalidCredentials):
			a.sessions.Destroy(sess)
			next.ServeHTTP(w, r)
			return
		case errors.Is(err, shared.ErrTenantInactive):
			a.logger.WarnContext(r.Context(), "inactive tenant session", slog.String("user_id", userID.String()))
			httpx.RespondError(w, err)
			return
		default:
			a.logger.ErrorContext(r.Context(), "resolve claims", slog.Any("error", err))
			httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "")
			return
		}
		if claims.BusinessUnitID != uuid.Nil && claims.BusinessUnitID != sess.BusinessUnit() {
			sess.SetBusinessUnit(claims.BusinessUnitID)
		}
		next.ServeHTTP(w, r.WithContext(reqctx.WithClaims(r.Context(), claims)))
	})
}

// RequireClaims answers 401 when no authenticated user is present.
func RequireClaims(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, ok := reqctx.ClaimsFromContext(r.Context()); !ok {
			httpx.RespondError(w, httpx.ErrUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}
