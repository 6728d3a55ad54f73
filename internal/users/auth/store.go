// Copyright (c) 2026 Unilink. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package auth

import (
	"context"
	"time"

	"github.com/taibuivan/unilink/internal/platform/sec"
	"github.com/taibuivan/unilink/pkg/pagination"
)

// # User Data Access

// UserRepository defines the data access contract for user accounts.
//
// Lookups exclude soft-deleted accounts and return [apperr.NotFound] when
// nothing matches. Duplicate usernames or emails surface as [apperr.Conflict].
type UserRepository interface {

	/*
		Create persists a brand-new user account.

		Parameters:
		  - context: context.Context
		  - user: *User (Email already normalized)

		Returns:
		  - error: Conflict on duplicate username/email, or persistence failures
	*/
	Create(context context.Context, user *User) error

	// FindByID returns the account with the given ID.
	FindByID(context context.Context, id string) (*User, error)

	/*
		FindByLogin resolves an identifier that may be a username or an email.

		Usernames compare case-insensitively; emails compare in normalized form.
	*/
	FindByLogin(context context.Context, identifier string) (*User, error)

	// FindByEmail returns the account with the given normalized email.
	FindByEmail(context context.Context, email string) (*User, error)

	// FindByUsername returns the account with the given username (case-insensitive).
	FindByUsername(context context.Context, username string) (*User, error)

	// UpdatePassword replaces only the password hash.
	UpdatePassword(context context.Context, userID, passwordHash string) error

	// UpdateProfile replaces the self-service profile fields and returns the fresh row.
	UpdateProfile(context context.Context, userID, email, fullName string) (*User, error)

	// UpdateAdmin applies the non-nil fields of an administrative change.
	UpdateAdmin(context context.Context, userID string, change AdminChange) (*User, error)

	// SetActive toggles the account's active flag.
	SetActive(context context.Context, userID string, active bool) error

	/*
		SoftDelete marks the account deleted and, in the same transaction,
		removes its sessions and revokes its outstanding reset tokens.
	*/
	SoftDelete(context context.Context, userID string) error

	// List returns a page of accounts matching filter, newest first.
	List(context context.Context, filter UserFilter, page pagination.Params) ([]*User, error)

	// Count returns how many accounts match filter.
	Count(context context.Context, filter UserFilter) (int, error)
}

// AdminChange carries the optional fields an administrator may change.
type AdminChange struct {
	Email        *string
	FullName     *string
	Role         *sec.UserRole
	IsActive     *bool
	PasswordHash *string
}

// UserFilter narrows [UserRepository.List].
type UserFilter struct {
	// Search matches username, email, or full name (case-insensitive substring).
	Search string
	// Active filters by the active flag when non-nil.
	Active *bool
}

// # Session Data Access

// SessionRepository defines the data access contract for login sessions.
type SessionRepository interface {

	// Create persists a new session.
	Create(context context.Context, session *Session) error

	// FindByTokenHash returns the session stored under tokenHash, expired or not.
	FindByTokenHash(context context.Context, tokenHash string) (*Session, error)

	// Touch records activity on a session.
	Touch(context context.Context, sessionID string, at time.Time) error

	// DeleteByTokenHash removes one session. Missing rows are not an error.
	DeleteByTokenHash(context context.Context, tokenHash string) error

	// DeleteAllForUser removes every session of a user and returns the count.
	DeleteAllForUser(context context.Context, userID string) (int64, error)

	// DeleteOthersForUser removes every session of a user except keepSessionID.
	DeleteOthersForUser(context context.Context, userID, keepSessionID string) (int64, error)

	// DeleteExpired removes sessions whose expiry is at or before now.
	DeleteExpired(context context.Context, now time.Time) (int64, error)
}
