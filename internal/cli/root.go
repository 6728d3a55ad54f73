// Copyright (c) 2026 Unilink. All rights reserved.
// Author: tai.buivan.jp@gmail.com

/*
Package cli defines the unilink command tree.

Commands:

  - serve: run the HTTP API (migrations are applied first).
  - migrate up|down: manage the database schema.
  - sessions purge: delete expired sessions and reset tokens.
  - mail-worker: deliver queued mail over SMTP.
  - create-admin: create or promote the first administrator.

Every command reads its settings from the environment (see config.Load).
*/
package cli

import (
	"github.com/spf13/cobra"

	"github.com/taibuivan/unilink/internal/platform/constants"
)

// NewRootCommand assembles the full command tree.
func NewRootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:           constants.AppName,
		Short:         "Accounts, sessions, and linked messaging accounts",
		Version:       constants.AppVersion,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.AddCommand(
		newServeCommand(),
		newMigrateCommand(),
		newSessionsCommand(),
		newMailWorkerCommand(),
		newCreateAdminCommand(),
	)
	return root
}
