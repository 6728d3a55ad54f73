// Copyright (c) 2026 Unilink. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/jackc/pgx/v5/pgxpool"
	goredis "github.com/redis/go-redis/v9"

	"github.com/taibuivan/unilink/internal/accounts"
	"github.com/taibuivan/unilink/internal/notify"
	"github.com/taibuivan/unilink/internal/platform/config"
	"github.com/taibuivan/unilink/internal/platform/constants"
	"github.com/taibuivan/unilink/internal/platform/mail"
	"github.com/taibuivan/unilink/internal/platform/mq"
	"github.com/taibuivan/unilink/internal/platform/postgres"
	"github.com/taibuivan/unilink/internal/platform/redis"
	"github.com/taibuivan/unilink/internal/platform/sec"
	"github.com/taibuivan/unilink/internal/users/admin"
	"github.com/taibuivan/unilink/internal/users/auth"
	"github.com/taibuivan/unilink/internal/users/recovery"
)

// # Logger

// newLogger returns the JSON logger every command writes to.
func newLogger(debug bool) *slog.Logger {
	level := slog.LevelInfo
	if debug {
		level = slog.LevelDebug
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: level})).
		With(slog.String("app", constants.AppName))
	slog.SetDefault(logger)
	return logger
}

// # Runtime

// runtime holds the connections a command opened. Optional ones stay nil.
type runtime struct {
	cfg    *config.Config
	log    *slog.Logger
	pool   *pgxpool.Pool
	redis  *goredis.Client
	broker *mq.RabbitMQClient
}

// connectOptions selects which optional dependencies a command needs.
type connectOptions struct {
	redis  bool
	broker bool
}

/*
connect loads configuration and opens the dependencies a command needs.

Description: PostgreSQL is mandatory. Redis and the mail broker are only
dialled when requested and configured.
*/
func connect(ctx context.Context, options connectOptions) (*runtime, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}

	rt := &runtime{cfg: cfg, log: newLogger(cfg.Debug)}
	rt.log.Info("configuration_loaded",
		slog.String("environment", cfg.Environment),
		slog.String("port", cfg.ServerPort),
	)

	startupCtx, cancel := context.WithTimeout(ctx, constants.StartupTimeout)
	defer cancel()

	rt.pool, err = postgres.NewPool(startupCtx, cfg.DatabaseURL, rt.log)
	if err != nil {
		return nil, fmt.Errorf("connect to postgres: %w", err)
	}

	if options.redis && cfg.RedisURL != "" {
		rt.redis, err = redis.NewClient(startupCtx, cfg.RedisURL, rt.log)
		if err != nil {
			rt.Close()
			return nil, fmt.Errorf("connect to redis: %w", err)
		}
	}

	if options.broker && cfg.Queue.URL != "" {
		rt.broker, err = mq.NewRabbitMQClient(mq.RabbitMQConfig{URL: cfg.Queue.URL, PrefetchCount: cfg.Queue.Prefetch})
		if err != nil {
			rt.Close()
			return nil, fmt.Errorf("connect to mail queue: %w", err)
		}
		rt.log.Info("mail_queue_connected", slog.String("queue", cfg.Queue.QueueName))
	}

	return rt, nil
}

// Close releases every open connection.
func (rt *runtime) Close() {
	if rt.broker != nil {
		if err := rt.broker.Close(); err != nil {
			rt.log.Error("mail_queue_close_failed", slog.Any("error", err))
		}
	}
	if rt.redis != nil {
		if err := rt.redis.Close(); err != nil {
			rt.log.Error("redis_close_failed", slog.Any("error", err))
		}
	}
	if rt.pool != nil {
		rt.pool.Close()
	}
}

// smtpSettings maps configuration onto the mail package.
func (rt *runtime) smtpSettings() mail.Settings {
	smtp := rt.cfg.SMTP
	return mail.Settings{
		Host:     smtp.Host,
		Port:     smtp.Port,
		Username: smtp.Username,
		Password: smtp.Password,
		From:     smtp.From,
		TLS:      smtp.TLS,
		Timeout:  smtp.Timeout,
	}
}

// smtpSender returns the direct SMTP transport, or a disabled one when unset.
func (rt *runtime) smtpSender() (mail.Sender, error) {
	settings := rt.smtpSettings()
	if !settings.Configured() {
		return notify.DisabledSender{}, nil
	}
	mailer, err := mail.NewSMTPMailer(settings)
	if err != nil {
		return nil, err
	}
	return mailer, nil
}

// # Services

// services is the fully wired application layer.
type services struct {
	users      auth.UserRepository
	auth       *auth.Service
	recovery   *recovery.Service
	admin      *admin.Service
	accounts   *accounts.Service
	dispatcher *notify.Dispatcher
}

// wire builds every service on top of the open connections.
func (rt *runtime) wire() (*services, error) {
	cfg := rt.cfg

	tokens, err := sec.NewTokenService(cfg.SecretKey, constants.AuthIssuer)
	if err != nil {
		return nil, fmt.Errorf("initialize token service: %w", err)
	}

	users := auth.NewUserRepository(rt.pool)
	sessions := auth.NewSessionManager(auth.NewSessionRepository(rt.pool), users, cfg.SessionTTL)
	authService, err := auth.NewService(users, sessions, tokens)
	if err != nil {
		return nil, fmt.Errorf("initialize auth service: %w", err)
	}

	// Outbound mail goes through the queue when a broker is connected.
	var sender mail.Sender
	queued := rt.broker != nil
	if queued {
		sender = notify.NewQueueMailer(rt.broker, cfg.Queue.QueueName)
	} else if sender, err = rt.smtpSender(); err != nil {
		return nil, fmt.Errorf("initialize smtp: %w", err)
	}

	status := notify.NewTransportStatus(rt.smtpSettings(), queued)
	if status.Mode == notify.ModeDisabled {
		sender = notify.DisabledSender{}
	}
	dispatcher := notify.NewDispatcher(sender, cfg.AppBaseURL, status)
	rt.log.Info("mail_transport_selected", slog.String("mode", status.Mode))

	var recoveryOptions []recovery.Option
	if rt.redis != nil {
		recoveryOptions = append(recoveryOptions, recovery.WithThrottle(
			redis.NewFixedWindow(rt.redis, constants.RedisPrefixResetThrottle, cfg.ResetThrottleLimit, cfg.ResetThrottleWindow),
		))
	}
	recoveryService := recovery.NewService(users, recovery.NewTokenRepository(rt.pool), dispatcher, cfg.ResetTokenTTL, recoveryOptions...)

	vendor := accounts.NewClient(accounts.Settings{
		APIBase: cfg.Unipile.APIBase,
		APIHost: cfg.Unipile.APIHost,
		APIKey:  cfg.Unipile.APIKey,
		Timeout: cfg.Unipile.Timeout,
	})
	if !vendor.Configured() {
		rt.log.Warn("unipile_not_configured")
	}

	return &services{
		users:    users,
		auth:     authService,
		recovery: recoveryService,
		admin:    admin.NewService(users, authService, recoveryService, dispatcher),
		accounts: accounts.NewService(accounts.NewRepository(rt.pool), vendor, users, accounts.Config{
			BaseURL:       cfg.AppBaseURL,
			WebhookSecret: cfg.Unipile.WebhookSecret,
			LinkTTL:       cfg.Unipile.LinkTTL,
		}),
		dispatcher: dispatcher,
	}, nil
}
