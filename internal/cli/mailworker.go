// Copyright (c) 2026 Unilink. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package cli

import (
	"errors"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/taibuivan/unilink/internal/notify"
	"github.com/taibuivan/unilink/internal/platform/mail"
)

func newMailWorkerCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "mail-worker",
		Short: "Deliver queued mail over SMTP",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			rt, err := connect(ctx, connectOptions{broker: true})
			if err != nil {
				return err
			}
			defer rt.Close()

			if rt.broker == nil {
				return errors.New("MAIL_QUEUE_URL is not set")
			}

			settings := rt.smtpSettings()
			if !settings.Configured() {
				return mail.ErrNotConfigured
			}
			sender, err := mail.NewSMTPMailer(settings)
			if err != nil {
				return err
			}

			return notify.NewWorker(rt.broker, rt.cfg.Queue.QueueName, sender, rt.log).Run(ctx)
		},
	}
}
