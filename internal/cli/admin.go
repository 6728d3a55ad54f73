// Copyright (c) 2026 Unilink. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package cli

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/taibuivan/unilink/internal/platform/apperr"
	"github.com/taibuivan/unilink/internal/platform/sec"
	"github.com/taibuivan/unilink/internal/users/admin"
	"github.com/taibuivan/unilink/internal/users/auth"
	"github.com/taibuivan/unilink/pkg/pointer"
)

// Terminal seams, replaced in tests.
var (
	readPassword = term.ReadPassword
	isTerminal   = term.IsTerminal
)

// cliActor performs administrative changes made from the command line.
var cliActor = &sec.Principal{Username: "cli", Role: sec.RoleAdmin}

type createAdminFlags struct {
	username string
	email    string
	fullName string
}

func newCreateAdminCommand() *cobra.Command {
	flags := createAdminFlags{}

	command := &cobra.Command{
		Use:   "create-admin",
		Short: "Create an administrator, or promote an existing user",
		Long: "Creates an active administrator. When the username already exists the account\n" +
			"is promoted and reactivated instead, keeping its password.\n\n" +
			"The password is prompted for on a terminal, or read from the first line of stdin.",
		Args: cobra.NoArgs,
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

			stdin := int(os.Stdin.Fd())
			prompt := func() (string, error) {
				return readNewPassword(cmd.InOrStdin(), cmd.ErrOrStderr(), stdin, isTerminal(stdin))
			}

			user, created, err := ensureAdmin(ctx, svc.admin, svc.users, flags, prompt)
			if err != nil {
				return err
			}

			verb := "promoted"
			if created {
				verb = "created"
			}
			_, err = fmt.Fprintf(cmd.OutOrStdout(), "%s administrator %s (%s)\n", verb, user.Username, user.ID)
			return err
		},
	}

	command.Flags().StringVar(&flags.username, "username", "", "login name (required)")
	command.Flags().StringVar(&flags.email, "email", "", "email address, required for new accounts")
	command.Flags().StringVar(&flags.fullName, "full-name", "", "display name")
	_ = command.MarkFlagRequired("username")
	return command
}

// ensureAdmin promotes an existing account or creates a new administrator.
// The password is only requested when an account is created.
func ensureAdmin(ctx context.Context, admins *admin.Service, users auth.UserRepository, flags createAdminFlags, password func() (string, error)) (*auth.User, bool, error) {
	existing, err := users.FindByUsername(ctx, strings.TrimSpace(flags.username))
	switch {
	case err == nil:
		user, err := admins.UpdateUser(ctx, cliActor, existing.ID, admin.UpdateUserInput{
			Role:     pointer.To(string(sec.RoleAdmin)),
			IsActive: pointer.To(true),
		})
		return user, false, err
	case !apperr.HasCode(err, "NOT_FOUND"):
		return nil, false, err
	}

	secret, err := password()
	if err != nil {
		return nil, false, err
	}

	user, err := admins.CreateUser(ctx, admin.CreateUserInput{
		Username: flags.username,
		Email:    flags.email,
		Password: secret,
		FullName: flags.fullName,
		Role:     string(sec.RoleAdmin),
	})
	return user, err == nil, err
}

var errPasswordMismatch = errors.New("passwords do not match")

// readNewPassword asks twice on a terminal, or reads one line otherwise.
func readNewPassword(in io.Reader, out io.Writer, fd int, interactive bool) (string, error) {
	if !interactive {
		line, err := bufio.NewReader(in).ReadString('\n')
		if err != nil && !(errors.Is(err, io.EOF) && line != "") {
			return "", fmt.Errorf("read password: %w", err)
		}
		return strings.TrimRight(line, "\r\n"), nil
	}

	first, err := promptSecret(out, fd, "Password: ")
	if err != nil {
		return "", err
	}
	second, err := promptSecret(out, fd, "Confirm password: ")
	if err != nil {
		return "", err
	}
	if first != second {
		return "", errPasswordMismatch
	}
	return first, nil
}

func promptSecret(out io.Writer, fd int, prompt string) (string, error) {
	if _, err := fmt.Fprint(out, prompt); err != nil {
		return "", err
	}
	secret, err := readPassword(fd)
	fmt.Fprintln(out)
	if err != nil {
		return "", fmt.Errorf("read password: %w", err)
	}
	return string(secret), nil
}
