// Package api assembles the casfad HTTP surface: middleware stack,
// route mounting, and server lifecycle.
package api

import (
	"context"
	stderrors "errors"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	v1 "github.com/casfa/casfa/pkg/api/v1"
	"github.com/casfa/casfa/pkg/auth"
	"github.com/casfa/casfa/pkg/authserver/server/handlers"
	"github.com/casfa/casfa/pkg/delegate"
	"github.com/casfa/casfa/pkg/logger"
	"github.com/casfa/casfa/pkg/metrics"
)

const (
	middlewareTimeout = 60 * time.Second
	readHeaderTimeout = 10 * time.Second
	shutdownTimeout   = 10 * time.Second
)

// Deps carries everything the router mounts.
type Deps struct {
	Manager       *delegate.Manager
	Authenticator *auth.Authenticator
	JWTValidator  *auth.JWTValidator
	OAuth         *handlers.Handler

	// MCP is the streamable MCP endpoint handler; nil disables the mount.
	MCP http.Handler
}

// headersMiddleware defaults API responses to JSON; handlers that write
// something else override it.
func headersMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.HasPrefix(r.URL.Path, "/api/") {
			w.Header().Set("Content-Type", "application/json")
		}
		next.ServeHTTP(w, r)
	})
}

// requestLogger writes one structured line per request.
func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		logger.Infow("request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"duration_ms", time.Since(start).Milliseconds(),
			"request_id", middleware.GetReqID(r.Context()))
	})
}

// NewRouter assembles the full route tree. Tests drive it directly
// through httptest without a listening server.
func NewRouter(deps Deps) chi.Router {
	r := chi.NewRouter()
	r.Use(
		middleware.RequestID,
		middleware.Timeout(middlewareTimeout),
		requestLogger,
		metrics.Middleware,
		headersMiddleware,
	)

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})
	r.Method(http.MethodGet, "/metrics", metrics.Handler())

	deps.OAuth.WellKnownRoutes(r)
	deps.OAuth.OAuthRoutes(r, deps.JWTValidator.Middleware)

	// User-credentialed surface.
	r.Group(func(r chi.Router) {
		r.Use(deps.JWTValidator.Middleware)
		r.Mount("/api/tokens/root", v1.RootRouter(deps.Manager))
	})

	// The refresh token is its own credential.
	r.Mount("/api/refresh", v1.RefreshRouter(deps.Manager))

	// Access-token surface.
	r.Group(func(r chi.Router) {
		r.Use(deps.Authenticator.Middleware)
		r.Mount("/api/realm/{realmId}/delegates", v1.DelegatesRouter(deps.Manager))
		if deps.MCP != nil {
			r.Mount("/api/mcp", deps.MCP)
		}
	})

	return r
}

// Serve runs the API server on address until ctx is cancelled, then
// shuts down gracefully. The caller sets up signal handling.
func Serve(ctx context.Context, address string, deps Deps) error {
	srv := &http.Server{
		BaseContext:       func(net.Listener) context.Context { return ctx },
		Addr:              address,
		Handler:           NewRouter(deps),
		ReadHeaderTimeout: readHeaderTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Infow("starting HTTP server", "address", address)
		if err := srv.ListenAndServe(); err != nil && !stderrors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	logger.Info("HTTP server stopped")
	return nil
}
