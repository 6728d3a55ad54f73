// Copyright (c) 2026 Unilink. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package recovery

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/taibuivan/unilink/internal/notify"
	"github.com/taibuivan/unilink/internal/platform/apperr"
	"github.com/taibuivan/unilink/internal/platform/ctxutil"
	"github.com/taibuivan/unilink/internal/platform/sec"
	"github.com/taibuivan/unilink/internal/platform/validate"
	"github.com/taibuivan/unilink/internal/users/auth"
	"github.com/taibuivan/unilink/pkg/uuid"
)

// # Contracts

// Notifier delivers reset links and describes the mail transport.
type Notifier interface {
	SendPasswordReset(ctx context.Context, user *auth.User, token string, expiresAt time.Time) error
	Status() notify.TransportStatus
}

// Throttle limits reset requests per identifier.
type Throttle interface {
	Allow(ctx context.Context, key string) (bool, error)
}

// # Service

// DeliveryTimeout bounds a background reset mail once the request that asked
// for it has returned.
const DeliveryTimeout = 30 * time.Second

// Service issues and redeems password reset tokens.
type Service struct {
	users    auth.UserRepository
	tokens   TokenRepository
	notifier Notifier
	throttle Throttle
	ttl      time.Duration
	now      func() time.Time
	newToken func() (string, error)

	// pending tracks reset mails still being sent by RequestReset.
	pending sync.WaitGroup
}

// Option customizes a [Service].
type Option func(*Service)

// WithThrottle drops reset requests beyond the throttle's limit.
func WithThrottle(throttle Throttle) Option {
	return func(service *Service) { service.throttle = throttle }
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(service *Service) { service.now = now }
}

// WithTokenSource overrides the token generator.
func WithTokenSource(newToken func() (string, error)) Option {
	return func(service *Service) { service.newToken = newToken }
}

// NewService constructs a [Service]. A non-positive ttl uses [DefaultTokenTTL].
func NewService(users auth.UserRepository, tokens TokenRepository, notifier Notifier, ttl time.Duration, options ...Option) *Service {
	if ttl <= 0 {
		ttl = DefaultTokenTTL
	}

	service := &Service{
		users:    users,
		tokens:   tokens,
		notifier: notifier,
		ttl:      ttl,
		now:      func() time.Time { return time.Now().UTC() },
		newToken: sec.NewOpaqueToken,
	}
	for _, option := range options {
		option(service)
	}
	return service
}

// # Issue

/*
IssueResetToken starts a password reset for identifier (username or email).

Description: Unknown, inactive, and throttled identifiers return (nil, nil),
so the caller behaves the same either way. For a real account every older
token is revoked, a new one stored, and the link mailed before returning. A
mail failure returns the still-valid token together with a TransportFailure.

Parameters:
  - context: context.Context
  - identifier: string

Returns:
  - *Issued: The new token, or nil when nothing was issued
  - error: ValidationError, TransportFailure, or internal failures
*/
func (service *Service) IssueResetToken(context context.Context, identifier string) (*Issued, error) {
	issued, user, err := service.issue(context, identifier)
	if err != nil || issued == nil {
		return nil, err
	}

	if err := service.deliver(context, user, issued); err != nil {
		return issued, err
	}
	return issued, nil
}

/*
RequestReset is the request-path variant of [Service.IssueResetToken].

Description: The token is issued before returning, but the mail is sent in
the background so a real account answers as fast as an unknown one. Delivery
outlives the caller's context and is bounded by [DeliveryTimeout]; failures
are logged only.

Returns:
  - error: ValidationError or internal failures from issuance
*/
func (service *Service) RequestReset(ctx context.Context, identifier string) error {
	issued, user, err := service.issue(ctx, identifier)
	if err != nil || issued == nil {
		return err
	}

	detached := context.WithoutCancel(ctx)
	service.pending.Add(1)
	go func() {
		defer service.pending.Done()

		deliveryContext, cancel := context.WithTimeout(detached, DeliveryTimeout)
		defer cancel()
		_ = service.deliver(deliveryContext, user, issued)
	}()
	return nil
}

// Wait blocks until every reset mail started by RequestReset has finished.
func (service *Service) Wait() {
	service.pending.Wait()
}

// issue validates, throttles, and stores a new token. A nil Issued means
// nothing was issued and nothing should be mailed.
func (service *Service) issue(context context.Context, identifier string) (*Issued, *auth.User, error) {
	logger := ctxutil.GetLogger(context)

	identifier = strings.TrimSpace(identifier)
	validator := &validate.Validator{}
	validator.Required(FieldIdentifier, identifier).MaxLen(FieldIdentifier, identifier, 254)
	if err := validator.Err(); err != nil {
		return nil, nil, err
	}

	if service.throttle != nil {
		allowed, err := service.throttle.Allow(context, auth.NormalizeIdentifier(identifier))
		if err != nil {
			// Throttle errors fail open.
			logger.WarnContext(context, "password_reset_throttle_unavailable", slog.String("error", err.Error()))
		} else if !allowed {
			logger.WarnContext(context, "password_reset_throttled")
			return nil, nil, nil
		}
	}

	user, err := service.users.FindByLogin(context, identifier)
	if err != nil {
		if apperr.HasCode(err, "NOT_FOUND") {
			return nil, nil, nil
		}
		return nil, nil, fmt.Errorf("recovery_service_lookup_failed: %w", err)
	}
	if !user.IsActive {
		return nil, nil, nil
	}

	rawToken, err := service.newToken()
	if err != nil {
		return nil, nil, fmt.Errorf("recovery_service_token_generation_failed: %w", err)
	}

	now := service.now()
	token := &ResetToken{
		ID:        uuid.New(),
		UserID:    user.ID,
		TokenHash: sec.HashToken(rawToken),
		CreatedAt: now,
		ExpiresAt: now.Add(service.ttl),
	}

	if err := service.tokens.Issue(context, token); err != nil {
		if apperr.HasCode(err, "NOT_FOUND") {
			return nil, nil, nil
		}
		return nil, nil, fmt.Errorf("recovery_service_issue_failed: %w", err)
	}

	logger.InfoContext(context, "password_reset_issued",
		slog.String("user_id", user.ID),
		slog.Time("expires_at", token.ExpiresAt),
	)
	return &Issued{Token: rawToken, UserID: user.ID, ExpiresAt: token.ExpiresAt}, user, nil
}

// deliver mails the reset link, normalizing failures to TransportFailure.
func (service *Service) deliver(context context.Context, user *auth.User, issued *Issued) error {
	err := service.notifier.SendPasswordReset(context, user, issued.Token, issued.ExpiresAt)
	if err == nil {
		return nil
	}

	ctxutil.GetLogger(context).ErrorContext(context, "password_reset_mail_failed",
		slog.String("user_id", user.ID),
		slog.String("error", err.Error()),
	)
	if apperr.HasCode(err, "TRANSPORT_FAILURE") {
		return err
	}
	return apperr.TransportFailure("Reset email could not be sent", err)
}

// # Consume

/*
ConsumeResetToken sets a new password using a reset token.

Description: The password is hashed before any lock is taken. The redeem
transaction then re-checks the token, stores the hash, marks the token used,
revokes the user's other tokens, and ends every session of the user.

Returns:
  - error: ValidationError, ErrInvalidOrExpired, or internal failures
*/
func (service *Service) ConsumeResetToken(context context.Context, token, newPassword string) error {
	validator := &validate.Validator{}
	auth.CheckPassword(validator, FieldPassword, newPassword)
	if err := validator.Err(); err != nil {
		return err
	}

	if token == "" {
		return ErrInvalidOrExpired
	}

	passwordHash, err := sec.HashPassword(newPassword)
	if err != nil {
		return fmt.Errorf("recovery_service_hash_failed: %w", err)
	}

	userID, err := service.tokens.Redeem(context, sec.HashToken(token), passwordHash, service.now())
	if err != nil {
		if apperr.IsAppError(err) {
			return err
		}
		return fmt.Errorf("recovery_service_redeem_failed: %w", err)
	}

	ctxutil.GetLogger(context).InfoContext(context, "password_reset_consumed", slog.String("user_id", userID))
	return nil
}

// InspectResetToken reports whether token could be consumed right now, without
// consuming it.
func (service *Service) InspectResetToken(context context.Context, token string) (*ResetToken, error) {
	if token == "" {
		return nil, ErrInvalidOrExpired
	}

	stored, err := service.tokens.FindByHash(context, sec.HashToken(token))
	if err != nil {
		if apperr.HasCode(err, "NOT_FOUND") {
			return nil, ErrInvalidOrExpired
		}
		return nil, fmt.Errorf("recovery_service_inspect_failed: %w", err)
	}

	if !stored.Usable(service.now()) {
		return nil, ErrInvalidOrExpired
	}

	owner, err := service.users.FindByID(context, stored.UserID)
	if err != nil {
		if apperr.HasCode(err, "NOT_FOUND") {
			return nil, ErrInvalidOrExpired
		}
		return nil, fmt.Errorf("recovery_service_inspect_owner_failed: %w", err)
	}
	if !owner.IsActive {
		return nil, ErrInvalidOrExpired
	}
	return stored, nil
}

// CheckStatus reports which mail settings are configured. It never returns values.
func (service *Service) CheckStatus() notify.TransportStatus {
	return service.notifier.Status()
}

// PurgeStale removes expired reset tokens.
func (service *Service) PurgeStale(context context.Context) (int64, error) {
	removed, err := service.tokens.PurgeStale(context, service.now())
	if err != nil {
		return 0, err
	}

	ctxutil.GetLogger(context).InfoContext(context, "password_reset_purge", slog.Int64("removed", removed))
	return removed, nil
}
