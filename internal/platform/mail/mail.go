// Copyright (c) 2026 Unilink. All rights reserved.
// Author: tai.buivan.jp@gmail.com

/*
Package mail sends plain-text email over SMTP.

It wraps 'wneessen/go-mail' behind a one-method [Sender] so callers never see
transport details. Every failure is returned as an [apperr.TransportFailure]
whose client-facing message never contains credentials; the underlying error
is kept as the cause for server-side logs.

TLS modes (SMTP_TLS):

  - opportunistic: STARTTLS when the server offers it (default).
  - mandatory: STARTTLS is required.
  - ssl: implicit TLS (usually port 465).
  - none: plain text, for local test servers only.
*/
package mail

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	gomail "github.com/wneessen/go-mail"

	"github.com/taibuivan/unilink/internal/platform/apperr"
)

// ErrNotConfigured is returned when SMTP host or sender address is missing.
var ErrNotConfigured = apperr.ServiceUnavailable("Mail transport is not configured")

// Message is a single outbound plain-text email.
type Message struct {
	To      string `json:"to"`
	Subject string `json:"subject"`
	Body    string `json:"body"`
}

// Sender delivers a [Message].
type Sender interface {
	Send(ctx context.Context, message Message) error
}

// Settings configures an [SMTPMailer].
type Settings struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
	TLS      string
	Timeout  time.Duration
}

// Configured reports whether enough is set to attempt delivery.
func (settings Settings) Configured() bool {
	return settings.Host != "" && settings.From != ""
}

// SMTPMailer delivers messages through an SMTP relay.
type SMTPMailer struct {
	settings Settings
}

// NewSMTPMailer validates the TLS mode and returns a mailer.
func NewSMTPMailer(settings Settings) (*SMTPMailer, error) {
	if _, err := tlsPolicy(settings.TLS); err != nil {
		return nil, err
	}
	if settings.Timeout <= 0 {
		settings.Timeout = 10 * time.Second
	}
	return &SMTPMailer{settings: settings}, nil
}

// Settings returns the mailer configuration.
func (mailer *SMTPMailer) Settings() Settings {
	return mailer.settings
}

// Send dials the relay, authenticates when a username is set, and delivers message.
func (mailer *SMTPMailer) Send(ctx context.Context, message Message) error {
	if !mailer.settings.Configured() {
		return ErrNotConfigured
	}

	msg, err := buildMessage(mailer.settings.From, message)
	if err != nil {
		return err
	}

	client, err := gomail.NewClient(mailer.settings.Host, mailer.clientOptions()...)
	if err != nil {
		return apperr.TransportFailure("Mail transport is misconfigured", err)
	}

	sendCtx, cancel := context.WithTimeout(ctx, mailer.settings.Timeout)
	defer cancel()

	if err := client.DialAndSendWithContext(sendCtx, msg); err != nil {
		return apperr.TransportFailure(describeFailure(err), err)
	}
	return nil
}

func (mailer *SMTPMailer) clientOptions() []gomail.Option {
	policy, _ := tlsPolicy(mailer.settings.TLS)

	options := []gomail.Option{
		gomail.WithTimeout(mailer.settings.Timeout),
	}

	if mailer.settings.Port > 0 {
		options = append(options, gomail.WithPort(mailer.settings.Port))
	}

	if strings.EqualFold(mailer.settings.TLS, "ssl") {
		options = append(options, gomail.WithSSL())
	} else {
		options = append(options, gomail.WithTLSPolicy(policy))
	}

	if mailer.settings.Username != "" {
		options = append(options,
			gomail.WithSMTPAuth(gomail.SMTPAuthPlain),
			gomail.WithUsername(mailer.settings.Username),
			gomail.WithPassword(mailer.settings.Password),
		)
	}
	return options
}

func buildMessage(from string, message Message) (*gomail.Msg, error) {
	msg := gomail.NewMsg()
	if err := msg.From(from); err != nil {
		return nil, apperr.TransportFailure("Sender address is invalid", err)
	}
	if err := msg.To(message.To); err != nil {
		return nil, apperr.ValidationError("Recipient address is invalid")
	}
	msg.Subject(message.Subject)
	msg.SetBodyString(gomail.TypeTextPlain, message.Body)
	return msg, nil
}

func tlsPolicy(mode string) (gomail.TLSPolicy, error) {
	switch strings.ToLower(mode) {
	case "", "opportunistic", "ssl":
		return gomail.TLSOpportunistic, nil
	case "mandatory":
		return gomail.TLSMandatory, nil
	case "none":
		return gomail.NoTLS, nil
	default:
		return gomail.NoTLS, fmt.Errorf("mail: unknown SMTP_TLS mode %q", mode)
	}
}

// describeFailure turns a transport error into a message safe to show an admin.
func describeFailure(err error) string {
	if errors.Is(err, context.DeadlineExceeded) {
		return "Mail delivery timed out"
	}

	var sendErr *gomail.SendError
	if errors.As(err, &sendErr) {
		switch sendErr.Reason {
		case gomail.ErrSMTPMailFrom:
			return "Mail server rejected the sender address"
		case gomail.ErrSMTPRcptTo:
			return "Mail server rejected the recipient address"
		}
	}
	return "Mail delivery failed"
}
