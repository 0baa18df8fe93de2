package app

import (
	"context"
	"crypto/subtle"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/httprate"
	"github.com/unrolled/secure"

	"github.com/rentora/rentora/internal/observability"
	"github.com/rentora/rentora/internal/platform/httpx"
	"github.com/rentora/rentora/internal/shared"
)

// HeaderSystemToken authenticates trusted system callers.
const HeaderSystemToken = "X-System-Token"

// MiddlewareConfig aggregates dependencies shared by the middleware stack.
type MiddlewareConfig struct {
	Logger         *slog.Logger
	Config         *Config
	SessionManager *shared.SessionManager
	CSRFManager    *shared.CSRFManager
	Metrics        *observability.Metrics
}

type responseWriterWithCommit struct {
	http.ResponseWriter
	sess          *shared.Session
	manager       *shared.SessionManager
	ctx           context.Context
	logger        *slog.Logger
	headerWritten bool
}

func (w *responseWriterWithCommit) WriteHeader(statusCode int) {
	if !w.headerWritten {
		w.headerWritten = true
		if err := w.manager.Commit(w.ctx, w.ResponseWriter, w.sess); err != nil {
			w.logger.ErrorContext(w.ctx, "commit session", slog.Any("error", err))
		}
	}
	w.ResponseWriter.WriteHeader(statusCode)
}

func (w *responseWriterWithCommit) Write(data []byte) (int, error) {
	if !w.headerWritten {
		w.WriteHeader(http.StatusOK)
	}
	return w.ResponseWriter.Write(data)
}

// MiddlewareStack installs the middleware chain shared by every route.
func MiddlewareStack(cfg MiddlewareConfig) []func(http.Handler) http.Handler {
	secureMiddleware := secure.New(secure.Options{
		FrameDeny:             true,
		ContentTypeNosniff:    true,
		BrowserXssFilter:      true,
		ReferrerPolicy:        "strict-origin-when-cross-origin",
		ContentSecurityPolicy: "default-src 'none'; frame-ancestors 'none'",
		SSLRedirect:           cfg.Config != nil && cfg.Config.IsProduction(),
		SSLProxyHeaders:       map[string]string{"X-Forwarded-Proto": "https"},
		IsDevelopment:         cfg.Config == nil || !cfg.Config.IsProduction(),
	})

	timeout := 30 * time.Second
	limit := 120
	if cfg.Config != nil {
		if cfg.Config.AppRequestTimeout > 0 {
			timeout = cfg.Config.AppRequestTimeout
		}
		if cfg.Config.RateLimitPerMin > 0 {
			limit = cfg.Config.RateLimitPerMin
		}
	}

	middlewares := []func(http.Handler) http.Handler{
		middleware.RealIP,
		middleware.RequestID,
		middleware.Recoverer,
		middleware.Timeout(timeout),
		func(next http.Handler) http.Handler {
			return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				if err := secureMiddleware.Process(w, r); err != nil {
					cfg.Logger.Warn("secure headers blocked request", slog.Any("error", err))
					http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
					return
				}
				next.ServeHTTP(w, r)
			})
		},
		httprate.Limit(limit, time.Minute, httprate.WithKeyFuncs(httprate.KeyByIP)),
	}
	if cfg.Metrics != nil {
		middlewares = append(middlewares, cfg.Metrics.Middleware)
	}
	return middlewares
}

// SessionMiddleware loads the session and commits it before the response header is sent.
func SessionMiddleware(cfg MiddlewareConfig) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			sess, err := cfg.SessionManager.Load(ctx, r)
			if err != nil {
				cfg.Logger.ErrorContext(ctx, "failed to load session", slog.Any("error", err))
				httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "")
				return
			}
			ctx = shared.ContextWithSession(ctx, sess)
			wrapped := &responseWriterWithCommit{
				ResponseWriter: w,
				sess:           sess,
				manager:        cfg.SessionManager,
				ctx:            ctx,
				logger:         cfg.Logger,
			}
			next.ServeHTTP(wrapped, r.WithContext(ctx))
		})
	}
}

// CSRFMiddleware verifies the X-CSRF-Token header on unsafe methods.
func CSRFMiddleware(cfg MiddlewareConfig) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			switch r.Method {
			case http.MethodGet, http.MethodHead, http.MethodOptions:
				next.ServeHTTP(w, r)
				return
			}
			sess := shared.SessionFromContext(r.Context())
			if err := cfg.CSRFManager.VerifyRequest(sess, r); err != nil {
				cfg.Logger.WarnContext(r.Context(), "csrf validation failed", slog.String("path", r.URL.Path))
				httpx.RespondError(w, err)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// SystemTokenMiddleware admits only callers presenting the shared system token.
func SystemTokenMiddleware(token string, logger *slog.Logger) func(http.Handler) http.Handler {
	expected := []byte(token)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			got := []byte(r.Header.Get(HeaderSystemToken))
			if len(expected) == 0 || subtle.ConstantTimeCompare(got, expected) != 1 {
				logger.WarnContext(r.Context(), "system token rejected", slog.String("path", r.URL.Path))
				httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "invalid system token")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
