// Copyright (c) 2026 Unilink. All rights reserved.
// Author: tai.buivan.jp@gmail.com

/*
Package admin implements user management and operational diagnostics for
administrators.

Every operation here assumes the caller already passed
middleware.RequireRole(sec.RoleAdmin). The service still guards against an
administrator locking themselves out: they cannot delete, deactivate, or
demote their own account.
*/
package admin

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/taibuivan/unilink/internal/notify"
	"github.com/taibuivan/unilink/internal/platform/apperr"
	"github.com/taibuivan/unilink/internal/platform/ctxutil"
	"github.com/taibuivan/unilink/internal/platform/sec"
	"github.com/taibuivan/unilink/internal/platform/validate"
	"github.com/taibuivan/unilink/internal/users/auth"
	"github.com/taibuivan/unilink/pkg/pagination"
	"github.com/taibuivan/unilink/pkg/pointer"
)

// # Contracts

// MailTester sends a diagnostic message through the mail transport.
type MailTester interface {
	SendTest(ctx context.Context, recipient string) error
}

// Recovery is the part of the password reset service admins operate on.
type Recovery interface {
	PurgeStale(ctx context.Context) (int64, error)
	CheckStatus() notify.TransportStatus
}

var errSelfLockout = apperr.Unprocessable("You cannot delete, deactivate, or demote your own account")

// Service implements the admin use cases.
type Service struct {
	users    auth.UserRepository
	accounts *auth.Service
	recovery Recovery
	mail     MailTester
}

// NewService constructs a new [Service].
func NewService(users auth.UserRepository, accounts *auth.Service, recovery Recovery, mail MailTester) *Service {
	return &Service{users: users, accounts: accounts, recovery: recovery, mail: mail}
}

// # Users

// ListUsers returns one page of accounts and the total number matching filter.
func (service *Service) ListUsers(context context.Context, filter auth.UserFilter, page pagination.Params) ([]*auth.User, int, error) {
	users, err := service.users.List(context, filter, page)
	if err != nil {
		return nil, 0, fmt.Errorf("admin_service_list_failed: %w", err)
	}

	total, err := service.users.Count(context, filter)
	if err != nil {
		return nil, 0, fmt.Errorf("admin_service_count_failed: %w", err)
	}
	return users, total, nil
}

// CreateUserInput holds an administrator-created account.
type CreateUserInput struct {
	Username string
	Email    string
	Password string
	FullName string
	Role     string
	IsActive *bool
}

/*
CreateUser validates and persists an account with any role.

Returns:
  - *auth.User: Created entity
  - error: ValidationError or Conflict
*/
func (service *Service) CreateUser(context context.Context, input CreateUserInput) (*auth.User, error) {
	username := strings.TrimSpace(input.Username)
	email := auth.NormalizeEmail(input.Email)
	fullName := strings.TrimSpace(input.FullName)
	role := sec.UserRole(input.Role)
	if input.Role == "" {
		role = sec.RoleUser
	}

	validator := &validate.Validator{}
	auth.CheckUsername(validator, username)
	validator.Required(auth.FieldEmail, email).Email(auth.FieldEmail, email)
	auth.CheckPassword(validator, auth.FieldPassword, input.Password).
		MaxLen(auth.FieldFullName, fullName, auth.MaxFullNameLength).
		OneOf(auth.FieldRole, string(role), sec.RoleNames...)
	if err := validator.Err(); err != nil {
		return nil, err
	}

	user, err := service.accounts.CreateUser(context, &auth.User{
		Username: username,
		Email:    email,
		FullName: fullName,
		Role:     role,
		IsActive: pointer.Fallback(input.IsActive, true),
	}, input.Password)
	if err != nil {
		return nil, err
	}

	ctxutil.GetLogger(context).InfoContext(context, "admin_user_created",
		slog.String("user_id", user.ID),
		slog.String("role", string(user.Role)),
	)
	return user, nil
}

// UpdateUserInput carries a partial update. Nil fields are left unchanged.
type UpdateUserInput struct {
	Email    *string
	FullName *string
	Role     *string
	IsActive *bool
	Password *string
}

/*
UpdateUser applies a partial update to another account.

Description: Deactivation and password replacement both end every session
of the target account.

Parameters:
  - context: context.Context
  - actor: *sec.Principal (the administrator)
  - userID: string
  - input: UpdateUserInput

Returns:
  - *auth.User: Updated entity
  - error: ValidationError, Conflict, NotFound, or Unprocessable (self lockout)
*/
func (service *Service) UpdateUser(context context.Context, actor *sec.Principal, userID string, input UpdateUserInput) (*auth.User, error) {
	change := auth.AdminChange{}
	validator := &validate.Validator{}

	if input.Email != nil {
		email := auth.NormalizeEmail(*input.Email)
		validator.Required(auth.FieldEmail, email).Email(auth.FieldEmail, email)
		change.Email = &email
	}
	if input.FullName != nil {
		fullName := strings.TrimSpace(*input.FullName)
		validator.MaxLen(auth.FieldFullName, fullName, auth.MaxFullNameLength)
		change.FullName = &fullName
	}
	if input.Role != nil {
		role := sec.UserRole(*input.Role)
		validator.OneOf(auth.FieldRole, string(role), sec.RoleNames...)
		change.Role = pointer.To(role)
	}
	if input.Password != nil {
		auth.CheckPassword(validator, auth.FieldPassword, *input.Password)
	}
	change.IsActive = input.IsActive

	if err := validator.Err(); err != nil {
		return nil, err
	}

	if userID == actor.UserID {
		demoted := change.Role != nil && *change.Role != sec.RoleAdmin
		deactivated := change.IsActive != nil && !*change.IsActive
		if demoted || deactivated {
			return nil, errSelfLockout
		}
	}

	if change.Email != nil {
		if existing, err := service.users.FindByEmail(context, *change.Email); err == nil && existing.ID != userID {
			return nil, apperr.Conflict("Email is already registered")
		} else if err != nil && !apperr.HasCode(err, "NOT_FOUND") {
			return nil, fmt.Errorf("admin_service_email_check_failed: %w", err)
		}
	}

	if input.Password != nil {
		hashedPassword, err := sec.HashPassword(*input.Password)
		if err != nil {
			return nil, fmt.Errorf("admin_service_hash_failed: %w", err)
		}
		change.PasswordHash = &hashedPassword
	}

	user, err := service.users.UpdateAdmin(context, userID, change)
	if err != nil {
		return nil, err
	}

	if !user.IsActive || change.PasswordHash != nil {
		if _, err := service.accounts.Sessions().DestroyAllForUser(context, userID); err != nil {
			return nil, err
		}
	}

	ctxutil.GetLogger(context).InfoContext(context, "admin_user_updated",
		slog.String("user_id", userID),
		slog.String("actor_id", actor.UserID),
	)
	return user, nil
}

// SetActive enables or disables an account. Disabling ends its sessions.
func (service *Service) SetActive(context context.Context, actor *sec.Principal, userID string, active bool) error {
	if userID == actor.UserID && !active {
		return errSelfLockout
	}

	if err := service.users.SetActive(context, userID, active); err != nil {
		return err
	}

	if !active {
		if _, err := service.accounts.Sessions().DestroyAllForUser(context, userID); err != nil {
			return err
		}
	}

	ctxutil.GetLogger(context).InfoContext(context, "admin_user_active_changed",
		slog.String("user_id", userID),
		slog.Bool("active", active),
		slog.String("actor_id", actor.UserID),
	)
	return nil
}

// DeleteUser soft-deletes another account.
func (service *Service) DeleteUser(context context.Context, actor *sec.Principal, userID string) error {
	if userID == actor.UserID {
		return errSelfLockout
	}

	if err := service.users.SoftDelete(context, userID); err != nil {
		return err
	}

	ctxutil.GetLogger(context).InfoContext(context, "admin_user_deleted",
		slog.String("user_id", userID),
		slog.String("actor_id", actor.UserID),
	)
	return nil
}

// # Maintenance

// PurgeResult counts what [Service.Purge] removed.
type PurgeResult struct {
	Sessions    int64 `json:"sessions"`
	ResetTokens int64 `json:"reset_tokens"`
}

// Purge removes expired sessions and reset tokens.
func (service *Service) Purge(context context.Context) (*PurgeResult, error) {
	sessions, err := service.accounts.Sessions().PurgeExpired(context)
	if err != nil {
		return nil, err
	}

	tokens, err := service.recovery.PurgeStale(context)
	if err != nil {
		return nil, err
	}
	return &PurgeResult{Sessions: sessions, ResetTokens: tokens}, nil
}

// MailStatus reports which mail settings are present.
func (service *Service) MailStatus() notify.TransportStatus {
	return service.recovery.CheckStatus()
}

// SendTestMail sends a diagnostic message to recipient.
func (service *Service) SendTestMail(context context.Context, recipient string) error {
	return service.mail.SendTest(context, recipient)
}
