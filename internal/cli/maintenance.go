// Copyright (c) 2026 Unilink. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package cli

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"
)

var errInvalidSteps = errors.New("steps must be a positive integer")

func newSessionsCommand() *cobra.Command {
	command := &cobra.Command{
		Use:   "sessions",
		Short: "Session maintenance",
	}

	command.AddCommand(&cobra.Command{
		Use:   "purge",
		Short: "Delete expired sessions and reset tokens",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()

			rt, err := connect(ctx, connectOptions{})
			if err != nil {
				return err
			}
			defer rt.Close()

			svc, err := rt.wire()
			if err != nil {
				return err
			}

			result, err := svc.admin.Purge(ctx)
			if err != nil {
				return err
			}

			rt.log.Info("purge_finished",
				slog.Int64("sessions", result.Sessions),
				slog.Int64("reset_tokens", result.ResetTokens),
			)
			_, err = fmt.Fprintf(cmd.OutOrStdout(), "removed %d sessions and %d reset tokens\n", result.Sessions, result.ResetTokens)
			return err
		},
	})

	return command
}
