// Copyright (c) 2026 Unilink. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package accounts

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/taibuivan/unilink/internal/platform/apperr"
	"github.com/taibuivan/unilink/internal/platform/ctxutil"
	"github.com/taibuivan/unilink/internal/platform/sec"
	"github.com/taibuivan/unilink/internal/platform/validate"
	"github.com/taibuivan/unilink/internal/users/auth"
	"github.com/taibuivan/unilink/pkg/pointer"
	"github.com/taibuivan/unilink/pkg/uuid"
)

// WebhookPath is where the vendor posts account notifications.
const WebhookPath = "/api/v1/webhooks/unipile"

// DefaultLinkTTL is how long a hosted wizard URL stays valid.
const DefaultLinkTTL = 15 * time.Minute

// Field names used in validation errors.
const (
	FieldProvider  = "provider"
	FieldStatus    = "status"
	FieldAccountID = "account_id"
)

// # Contracts

// Vendor is the slice of the Unipile API the service needs. [*Client] implements it.
type Vendor interface {
	Configured() bool
	APIHost() string
	CreateHostedLink(ctx context.Context, payload HostedLinkRequest) (string, error)
	GetAccount(ctx context.Context, accountID string) (*VendorAccount, error)
	DeleteAccount(ctx context.Context, accountID string) error
}

// # Service

// Config carries the public addresses the vendor calls back on.
type Config struct {
	BaseURL       string
	WebhookSecret string
	LinkTTL       time.Duration
}

// Service connects, mirrors, and disconnects vendor accounts.
type Service struct {
	repository Repository
	vendor     Vendor
	users      auth.UserRepository
	config     Config
	now        func() time.Time
}

// Option customizes a [Service].
type Option func(*Service)

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(service *Service) { service.now = now }
}

// NewService constructs a [Service].
func NewService(repository Repository, vendor Vendor, users auth.UserRepository, config Config, options ...Option) *Service {
	if config.LinkTTL <= 0 {
		config.LinkTTL = DefaultLinkTTL
	}
	config.BaseURL = strings.TrimRight(config.BaseURL, "/")

	service := &Service{
		repository: repository,
		vendor:     vendor,
		users:      users,
		config:     config,
		now:        func() time.Time { return time.Now().UTC() },
	}
	for _, option := range options {
		option(service)
	}
	return service
}

// NotifyURL is the webhook address handed to the vendor.
func (service *Service) NotifyURL() string {
	notifyURL := service.config.BaseURL + WebhookPath
	if service.config.WebhookSecret != "" {
		notifyURL += "?secret=" + url.QueryEscape(service.config.WebhookSecret)
	}
	return notifyURL
}

// # Connect

/*
Connect asks the vendor for a hosted wizard URL for principal.

Parameters:
  - context: context.Context
  - principal: *sec.Principal
  - provider: string (one of [Providers], case-insensitive)

Returns:
  - *ConnectLink: The wizard URL and its expiry
  - error: ValidationError, ServiceUnavailable, or TransportFailure
*/
func (service *Service) Connect(context context.Context, principal *sec.Principal, provider string) (*ConnectLink, error) {
	normalized, _ := NormalizeProvider(provider)
	validator := &validate.Validator{}
	validator.Required(FieldProvider, normalized)
	if normalized != "" {
		validator.OneOf(FieldProvider, normalized, Providers...)
	}
	if err := validator.Err(); err != nil {
		return nil, err
	}

	if !service.vendor.Configured() {
		return nil, ErrVendorNotConfigured
	}

	expiresAt := service.now().Add(service.config.LinkTTL)
	payload := HostedLinkRequest{
		Type:               "create",
		Providers:          []string{normalized},
		APIURL:             service.vendor.APIHost(),
		ExpiresOn:          FormatExpiresOn(expiresAt),
		SuccessRedirectURL: service.config.BaseURL + "/connect/success",
		FailureRedirectURL: service.config.BaseURL + "/connect/failure",
		NotifyURL:          service.NotifyURL(),
		Name:               principal.UserID,
	}

	link, err := service.vendor.CreateHostedLink(context, payload)
	if err != nil {
		return nil, err
	}

	ctxutil.GetLogger(context).InfoContext(context, "account_link_created",
		slog.String("user_id", principal.UserID),
		slog.String("provider", normalized),
	)

	return &ConnectLink{URL: link, ExpiresAt: expiresAt}, nil
}

// # Webhook

// VerifyWebhookSecret reports whether secret matches the configured one.
// Without a configured secret every call is accepted.
func (service *Service) VerifyWebhookSecret(secret string) bool {
	if service.config.WebhookSecret == "" {
		return true
	}
	return subtle.ConstantTimeCompare([]byte(secret), []byte(service.config.WebhookSecret)) == 1
}

/*
HandleNotification applies a vendor webhook.

Description: An existing record only changes when the status differs, so
replays are no-ops. A new record needs an owner: the notification name must be
the id of a live local user, otherwise the call is ignored.

Returns:
  - bool: Whether anything was written
  - error: ValidationError or persistence failures
*/
func (service *Service) HandleNotification(context context.Context, notification Notification) (bool, error) {
	logger := ctxutil.GetLogger(context)

	validator := &validate.Validator{}
	validator.Required(FieldStatus, notification.Status).
		Required(FieldAccountID, notification.AccountID)
	if err := validator.Err(); err != nil {
		return false, err
	}

	existing, err := service.repository.FindByAccountID(context, notification.AccountID)
	if err != nil && !apperr.HasCode(err, "NOT_FOUND") {
		return false, fmt.Errorf("accounts_service_lookup_failed: %w", err)
	}

	account := &ConnectedAccount{
		ID:          uuid.New(),
		AccountID:   notification.AccountID,
		Status:      notification.Status,
		ConnectedAt: service.now(),
	}

	if existing != nil {
		if existing.Status == notification.Status {
			return false, nil
		}
		account.UserID = existing.UserID
		account.Provider = existing.Provider
	} else {
		owner, ok := service.resolveOwner(context, notification.Name)
		if !ok {
			logger.WarnContext(context, "account_notification_unattributed",
				slog.String("account_id", notification.AccountID),
			)
			return false, nil
		}
		account.UserID = owner
		account.Provider = ProviderUnknown
		if provider, ok := NormalizeProvider(notification.Provider); ok && provider != ProviderAny {
			account.Provider = provider
		}
	}

	changed, err := service.repository.ApplyStatus(context, account)
	if err != nil {
		return false, fmt.Errorf("accounts_service_apply_failed: %w", err)
	}

	if changed {
		logger.InfoContext(context, "account_status_changed",
			slog.String("account_id", account.AccountID),
			slog.String("user_id", account.UserID),
			slog.String("status", account.Status),
		)
	}
	return changed, nil
}

func (service *Service) resolveOwner(context context.Context, name string) (string, bool) {
	validator := &validate.Validator{}
	if validator.UUID("name", name); validator.HasErrors() {
		return "", false
	}

	user, err := service.users.FindByID(context, name)
	if err != nil {
		if !apperr.HasCode(err, "NOT_FOUND") {
			ctxutil.GetLogger(context).ErrorContext(context, "account_owner_lookup_failed",
				slog.String("error", err.Error()),
			)
		}
		return "", false
	}
	return user.ID, true
}

// # Per-Account Operations

// owned loads accountID and hides it from anyone but its owner and admins.
func (service *Service) owned(context context.Context, principal *sec.Principal, accountID string) (*ConnectedAccount, error) {
	account, err := service.repository.FindByAccountID(context, accountID)
	if err != nil {
		return nil, err
	}
	if !principal.IsAdmin() && account.UserID != principal.UserID {
		return nil, apperr.NotFound("Account")
	}
	return account, nil
}

/*
Status refreshes one account from the vendor and returns the stored record.

Description: A vendor 404 marks the account DISCONNECTED.
*/
func (service *Service) Status(context context.Context, principal *sec.Principal, accountID string) (*ConnectedAccount, error) {
	account, err := service.owned(context, principal, accountID)
	if err != nil {
		return nil, err
	}

	remote, err := service.vendor.GetAccount(context, accountID)
	switch {
	case errors.Is(err, ErrVendorNotFound):
		return service.repository.Sync(context, accountID, StatusDisconnected, "", nil, service.now())
	case err != nil:
		return nil, err
	}

	status := remote.EffectiveStatus()
	if status == "" {
		status = account.Status
	}

	provider := ""
	if account.Provider == ProviderUnknown && remote.Type != "" {
		provider = strings.ToUpper(remote.Type)
	}

	return service.repository.Sync(context, accountID, status, provider, remote.Raw, service.now())
}

// Disconnect deletes the account at the vendor and marks it DISCONNECTED locally.
// An account the vendor no longer knows is treated as already deleted.
func (service *Service) Disconnect(context context.Context, principal *sec.Principal, accountID string) error {
	if _, err := service.owned(context, principal, accountID); err != nil {
		return err
	}

	if err := service.vendor.DeleteAccount(context, accountID); err != nil && !errors.Is(err, ErrVendorNotFound) {
		return err
	}

	if err := service.repository.SetStatus(context, accountID, StatusDisconnected, service.now()); err != nil {
		return fmt.Errorf("accounts_service_disconnect_failed: %w", err)
	}

	ctxutil.GetLogger(context).InfoContext(context, "account_disconnected",
		slog.String("account_id", accountID),
		slog.String("actor_id", principal.UserID),
	)
	return nil
}

// # Listings

// scope is the user filter for principal; admins see everything.
func scope(principal *sec.Principal) string {
	if principal.IsAdmin() {
		return ""
	}
	return principal.UserID
}

// List returns the accounts visible to principal, newest first.
func (service *Service) List(context context.Context, principal *sec.Principal) ([]*ConnectedAccount, error) {
	return service.repository.List(context, scope(principal))
}

// Dashboard returns account counters and the most recent accounts.
// Admins also get the number of users.
func (service *Service) Dashboard(context context.Context, principal *sec.Principal) (*Dashboard, error) {
	owner := scope(principal)

	stats, err := service.repository.Stats(context, owner)
	if err != nil {
		return nil, err
	}

	if principal.IsAdmin() {
		total, err := service.users.Count(context, auth.UserFilter{})
		if err != nil {
			return nil, fmt.Errorf("accounts_service_count_users_failed: %w", err)
		}
		stats.TotalUsers = pointer.To(total)
	}

	recent, err := service.repository.Recent(context, owner, DashboardRecentLimit)
	if err != nil {
		return nil, err
	}

	return &Dashboard{Stats: *stats, RecentAccounts: recent}, nil
}
