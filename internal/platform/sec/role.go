// Copyright (c) 2026 Unilink. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package sec

import "github.com/taibuivan/unilink/internal/platform/apperr"

// # User Roles

// UserRole represents the authorization level granted to an account.
type UserRole string

const (
	// Manages users and the mail transport
	RoleAdmin UserRole = "admin"

	// Default role for registered users
	RoleUser UserRole = "user"
)

// RoleNames lists every assignable role, for input validation.
var RoleNames = []string{string(RoleAdmin), string(RoleUser)}

// # Role Hierarchy

// AtLeast checks if the current role meets or exceeds the required target role.
func (r UserRole) AtLeast(target UserRole) bool {
	return r.level() >= target.level()
}

func (r UserRole) level() int {
	switch r {
	case RoleAdmin:
		return 20
	case RoleUser:
		return 10
	default:
		return 0
	}
}

// Authorize returns a Forbidden error unless role satisfies required.
func Authorize(role, required UserRole) error {
	if !role.AtLeast(required) {
		return apperr.Forbidden("Insufficient permissions")
	}
	return nil
}

// # Principal

// Principal is the authenticated caller attached to a request context.
type Principal struct {
	UserID   string
	Username string
	Role     UserRole

	// SessionID is set when the caller authenticated with the session cookie.
	SessionID string
}

// IsAdmin reports whether the principal holds the admin role.
func (p *Principal) IsAdmin() bool {
	return p != nil && p.Role == RoleAdmin
}
