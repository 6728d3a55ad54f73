// Copyright (c) 2026 Unilink. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package cli

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/taibuivan/unilink/internal/accounts"
	"github.com/taibuivan/unilink/internal/api"
	"github.com/taibuivan/unilink/internal/platform/constants"
	"github.com/taibuivan/unilink/internal/platform/migration"
	"github.com/taibuivan/unilink/internal/platform/postgres"
	"github.com/taibuivan/unilink/internal/platform/redis"
	"github.com/taibuivan/unilink/internal/platform/telemetry"
	"github.com/taibuivan/unilink/internal/users/admin"
	"github.com/taibuivan/unilink/internal/users/auth"
	"github.com/taibuivan/unilink/internal/users/recovery"
)

func newServeCommand() *cobra.Command {
	var skipMigrations bool

	command := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API server",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return serve(cmd.Context(), skipMigrations)
		},
	}
	command.Flags().BoolVar(&skipMigrations, "skip-migrations", false, "do not apply pending migrations at startup")
	return command
}

/*
serve runs the API until SIGINT or SIGTERM.

# Startup Sequence

 1. Connect PostgreSQL, and Redis and the mail queue when configured.
 2. Apply migrations (idempotent).
 3. Install tracing.
 4. Wire services and handlers.
 5. Serve, then shut down gracefully.
*/
func serve(parent context.Context, skipMigrations bool) error {
	ctx, stop := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// ── 1. Dependencies ───────────────────────────────────────────────────
	rt, err := connect(ctx, connectOptions{redis: true, broker: true})
	if err != nil {
		return err
	}
	defer rt.Close()

	log := rt.log
	cfg := rt.cfg

	// ── 2. Migrations ─────────────────────────────────────────────────────
	if !skipMigrations {
		if err := migration.RunUp(cfg.DatabaseURL, cfg.MigrationPath, log); err != nil {
			return err
		}
	}

	// ── 3. Tracing ────────────────────────────────────────────────────────
	shutdownTracing, err := telemetry.Setup(ctx, constants.AppName, constants.AppVersion, cfg.Tracing, log)
	if err != nil {
		return err
	}
	defer func() {
		if err := shutdownTracing(context.Background()); err != nil {
			log.Error("tracing_shutdown_failed", slog.Any("error", err))
		}
	}()

	// ── 4. Wiring ─────────────────────────────────────────────────────────
	svc, err := rt.wire()
	if err != nil {
		return err
	}

	checks := []api.HealthCheck{{
		Name:  "postgres",
		Check: func(ctx context.Context) error { return postgres.Ping(ctx, rt.pool) },
	}}
	if rt.redis != nil {
		checks = append(checks, api.HealthCheck{
			Name:  "redis",
			Check: func(ctx context.Context) error { return redis.Ping(ctx, rt.redis) },
		})
	}
	liveness, readiness := api.NewHealthHandlers(log, checks...)

	server := api.NewServer(ctx, cfg, log, svc.auth, api.Handlers{
		Liveness:  liveness,
		Readiness: readiness,
		Auth:      auth.NewHandler(svc.auth, cfg.CookieSecure),
		Recovery:  recovery.NewHandler(svc.recovery, recovery.DefaultMinResponseTime),
		Admin:     admin.NewHandler(svc.admin),
		Accounts:  accounts.NewHandler(svc.accounts),
	})

	// ── 5. Serve ──────────────────────────────────────────────────────────
	serverErr := make(chan error, 1)
	go func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	select {
	case <-ctx.Done():
		log.Info("shutdown_signal_received")
	case err := <-serverErr:
		log.Error("server_failed", slog.Any("error", err))
		return err
	}

	log.Info("server_shutting_down", slog.Duration("timeout", constants.ShutdownTimeout))
	if err := server.Shutdown(constants.ShutdownTimeout); err != nil {
		return err
	}

	// Reset mails accepted before the signal are still delivered.
	svc.recovery.Wait()

	log.Info("server_stopped")
	return nil
}
