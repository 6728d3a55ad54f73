// Copyright (c) 2026 Unilink. All rights reserved.
// Author: tai.buivan.jp@gmail.com

/*
Package api wires the HTTP router, the middleware chain, and the domain
handlers into a runnable [http.Server].

Route layout (all JSON):

  - /health, /ready: probes, always public.
  - /api/v1/auth: sessions, profile, bearer tokens, and password recovery.
  - /api/v1/admin: user management and mail diagnostics (admin role).
  - /api/v1/accounts, /api/v1/dashboard: linked accounts (signed in).
  - /api/v1/webhooks/unipile: vendor callbacks (public, optional shared secret).
*/
package api

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/taibuivan/unilink/internal/accounts"
	"github.com/taibuivan/unilink/internal/platform/config"
	"github.com/taibuivan/unilink/internal/platform/constants"
	"github.com/taibuivan/unilink/internal/platform/middleware"
	"github.com/taibuivan/unilink/internal/platform/sec"
	"github.com/taibuivan/unilink/internal/platform/telemetry"
	"github.com/taibuivan/unilink/internal/users/admin"
	"github.com/taibuivan/unilink/internal/users/auth"
	"github.com/taibuivan/unilink/internal/users/recovery"
)

// # Server Definitions

// Server wraps the chi router and the [http.Server].
type Server struct {
	httpServer *http.Server
	router     *chi.Mux
	log        *slog.Logger
}

// Handlers groups the domain handler sets mounted by [NewServer].
type Handlers struct {
	Liveness  http.HandlerFunc
	Readiness http.HandlerFunc

	Auth     *auth.Handler
	Recovery *recovery.Handler
	Admin    *admin.Handler
	Accounts *accounts.Handler
}

// # Server Initialization

// NewServer builds the router with the full middleware chain and every route group.
// ctx bounds background work started by the middleware (rate limiter cleanup).
func NewServer(ctx context.Context, cfg *config.Config, log *slog.Logger, authenticator middleware.Authenticator, h Handlers) *Server {
	r := chi.NewRouter()

	// # Middleware Chain
	r.Use(middleware.RequestID())
	r.Use(middleware.StructuredLogger(log))
	r.Use(chimw.Timeout(constants.GlobalRequestTimeout))
	r.Use(middleware.RateLimit(ctx, constants.DefaultRateLimitRPS, constants.DefaultRateLimitBurst))
	r.Use(middleware.PanicRecovery(log))
	r.Use(middleware.CORS(cfg))
	r.Use(chimw.CleanPath)

	// # Infrastructure Endpoints
	r.Get("/health", h.Liveness)
	r.Get("/ready", h.Readiness)

	// # Application API
	r.Route("/api/v1", func(api chi.Router) {

		// Vendor callbacks carry no user credentials.
		api.Post("/webhooks/unipile", h.Accounts.ServeWebhook)

		api.Group(func(api chi.Router) {
			api.Use(middleware.Authenticate(authenticator))

			api.Route("/auth", func(router chi.Router) {
				h.Auth.RegisterRoutes(router)
				h.Recovery.RegisterRoutes(router)
			})

			api.With(middleware.RequireRole(sec.RoleAdmin)).Mount("/admin", h.Admin.Routes())

			api.Group(func(api chi.Router) {
				api.Use(middleware.RequireAuth)
				api.Get("/dashboard", h.Accounts.ServeDashboard)
				api.Mount("/accounts", h.Accounts.Routes())
			})
		})
	})

	return &Server{
		router: r,
		log:    log,
		httpServer: &http.Server{
			Addr:              ":" + cfg.ServerPort,
			Handler:           telemetry.Handler(r, constants.AppName),
			ReadTimeout:       constants.DefaultReadTimeout,
			WriteTimeout:      constants.DefaultWriteTimeout,
			IdleTimeout:       constants.DefaultIdleTimeout,
			ReadHeaderTimeout: constants.DefaultReadHeaderTimeout,
		},
	}
}

// Handler exposes the routed handler, without the tracing wrapper.
func (s *Server) Handler() http.Handler {
	return s.router
}

// # Server Lifecycle

// ListenAndServe starts the HTTP server and blocks until it is closed.
func (s *Server) ListenAndServe() error {
	s.log.Info("server_starting", slog.String("addr", s.httpServer.Addr))
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully stops the server, waiting for in-flight requests.
func (s *Server) Shutdown(timeout time.Duration) error {
	context, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	return s.httpServer.Shutdown(context)
}
