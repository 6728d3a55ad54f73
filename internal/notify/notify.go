// Copyright (c) 2026 Unilink. All rights reserved.
// Author: tai.buivan.jp@gmail.com

/*
Package notify composes the application's outbound email and hands it to a
[mail.Sender].

The sender is either the SMTP relay itself or a [QueueMailer] that publishes
onto RabbitMQ for the mail worker to deliver. Callers only ever see the
[Dispatcher], so switching between the two is a wiring decision.
*/
package notify

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/taibuivan/unilink/internal/platform/apperr"
	"github.com/taibuivan/unilink/internal/platform/ctxutil"
	"github.com/taibuivan/unilink/internal/platform/mail"
	"github.com/taibuivan/unilink/internal/platform/validate"
	"github.com/taibuivan/unilink/internal/users/auth"
)

// # Transport Status

// Delivery modes reported by [TransportStatus].
const (
	ModeSMTP     = "smtp"
	ModeQueue    = "queue"
	ModeDisabled = "disabled"
)

// TransportStatus describes which mail settings are present. It never carries
// the values themselves.
type TransportStatus struct {
	Mode               string `json:"mode"`
	Configured         bool   `json:"configured"`
	HostConfigured     bool   `json:"host_configured"`
	PortConfigured     bool   `json:"port_configured"`
	UsernameConfigured bool   `json:"username_configured"`
	PasswordConfigured bool   `json:"password_configured"`
	FromConfigured     bool   `json:"from_configured"`
}

// NewTransportStatus derives the status from SMTP settings. queued selects
// [ModeQueue] when SMTP itself is usable.
func NewTransportStatus(settings mail.Settings, queued bool) TransportStatus {
	status := TransportStatus{
		Configured:         settings.Configured(),
		HostConfigured:     settings.Host != "",
		PortConfigured:     settings.Port > 0,
		UsernameConfigured: settings.Username != "",
		PasswordConfigured: settings.Password != "",
		FromConfigured:     settings.From != "",
	}

	switch {
	case !status.Configured:
		status.Mode = ModeDisabled
	case queued:
		status.Mode = ModeQueue
	default:
		status.Mode = ModeSMTP
	}
	return status
}

// # Dispatcher

// Dispatcher builds the messages the application sends.
type Dispatcher struct {
	sender  mail.Sender
	baseURL string
	status  TransportStatus
}

// NewDispatcher creates a [Dispatcher]. baseURL is the public origin used in links.
func NewDispatcher(sender mail.Sender, baseURL string, status TransportStatus) *Dispatcher {
	return &Dispatcher{
		sender:  sender,
		baseURL: strings.TrimRight(baseURL, "/"),
		status:  status,
	}
}

// Status reports the configured transport.
func (dispatcher *Dispatcher) Status() TransportStatus {
	return dispatcher.status
}

// ResetLink returns the page a reset token is redeemed on.
func (dispatcher *Dispatcher) ResetLink(token string) string {
	return dispatcher.baseURL + "/reset-password?token=" + url.QueryEscape(token)
}

/*
SendPasswordReset mails the reset link for token to user.

Parameters:
  - context: context.Context
  - user: *auth.User (recipient)
  - token: string (raw reset token, only ever placed in the link)
  - expiresAt: time.Time

Returns:
  - error: ServiceUnavailable when mail is disabled, TransportFailure otherwise
*/
func (dispatcher *Dispatcher) SendPasswordReset(context context.Context, user *auth.User, token string, expiresAt time.Time) error {
	body, err := render(resetTemplate, resetView{
		Name:      displayName(user),
		Link:      dispatcher.ResetLink(token),
		ExpiresAt: expiresAt.UTC().Format("2006-01-02 15:04 MST"),
		Minutes:   int(time.Until(expiresAt).Round(time.Minute) / time.Minute),
	})
	if err != nil {
		return err
	}

	if err := dispatcher.sender.Send(context, mail.Message{
		To:      user.Email,
		Subject: "Reset your unilink password",
		Body:    body,
	}); err != nil {
		return err
	}

	ctxutil.GetLogger(context).InfoContext(context, "password_reset_mail_sent",
		slog.String("user_id", user.ID),
		slog.String("mode", dispatcher.status.Mode),
	)
	return nil
}

// SendTest delivers a short diagnostic message to recipient.
func (dispatcher *Dispatcher) SendTest(context context.Context, recipient string) error {
	recipient = strings.TrimSpace(recipient)

	validator := &validate.Validator{}
	validator.Required("to", recipient).Email("to", recipient)
	if err := validator.Err(); err != nil {
		return err
	}

	body, err := render(testTemplate, testView{SentAt: time.Now().UTC().Format(time.RFC3339), Mode: dispatcher.status.Mode})
	if err != nil {
		return err
	}

	return dispatcher.sender.Send(context, mail.Message{
		To:      recipient,
		Subject: "unilink mail transport test",
		Body:    body,
	})
}

func displayName(user *auth.User) string {
	if user.FullName != "" {
		return user.FullName
	}
	return user.Username
}

// # Disabled Transport

// DisabledSender rejects every message. It is wired when SMTP is not configured.
type DisabledSender struct{}

// Send always returns [mail.ErrNotConfigured].
func (DisabledSender) Send(context.Context, mail.Message) error {
	return mail.ErrNotConfigured
}

func renderFailure(name string, err error) error {
	return apperr.Internal(fmt.Errorf("notify_render_%s_failed: %w", name, err))
}
