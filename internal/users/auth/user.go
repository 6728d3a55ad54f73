// Copyright (c) 2026 Unilink. All rights reserved.
// Author: tai.buivan.jp@gmail.com

/*
Package auth implements the credential store and the session lifecycle.

It defines the core entities (User, Session), the repositories that persist
them, the [SessionManager] that issues and validates opaque session tokens, and
the [Service] behind registration, login, profile, and password changes.

# Architecture

  - Service: Orchestrates use cases (Register, Login, ChangePassword).
  - SessionManager: Creates, validates, and destroys server-side sessions.
  - Repository: Postgres-backed stores behind small interfaces.
*/
package auth

import (
	"strings"
	"time"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"golang.org/x/text/unicode/norm"

	"github.com/taibuivan/unilink/internal/platform/sec"
)

// # Domain Entities

// User represents a registered account.
type User struct {
	ID           string       `json:"id"`
	Username     string       `json:"username"`
	Email        string       `json:"email"`
	PasswordHash string       `json:"-"` // Explicitly omitted from JSON for security.
	FullName     string       `json:"full_name"`
	Role         sec.UserRole `json:"role"`
	IsActive     bool         `json:"is_active"`
	CreatedAt    time.Time    `json:"created_at"`
	UpdatedAt    time.Time    `json:"updated_at"`

	// PasswordChangedAt moves forward on every password write.
	PasswordChangedAt time.Time `json:"-"`
}

// IsAdmin reports whether the user holds the admin role.
func (user *User) IsAdmin() bool {
	return user.Role == sec.RoleAdmin
}

// CredentialEpoch identifies the current password generation. Bearer tokens
// minted under an older epoch are rejected.
func (user *User) CredentialEpoch() int64 {
	return user.PasswordChangedAt.UnixMicro()
}

// Principal converts the user into the request-scoped caller identity.
func (user *User) Principal(sessionID string) *sec.Principal {
	return &sec.Principal{
		UserID:    user.ID,
		Username:  user.Username,
		Role:      user.Role,
		SessionID: sessionID,
	}
}

// Session is a server-side login session. The raw token only lives in the cookie.
type Session struct {
	ID         string    `json:"id"`
	UserID     string    `json:"user_id"`
	TokenHash  string    `json:"-"`
	UserAgent  string    `json:"user_agent"`
	IPAddress  string    `json:"ip_address"`
	CreatedAt  time.Time `json:"created_at"`
	ExpiresAt  time.Time `json:"expires_at"`
	LastSeenAt time.Time `json:"last_seen_at"`
}

// Expired reports whether the session is no longer valid at now.
// The boundary instant itself counts as expired.
func (session *Session) Expired(now time.Time) bool {
	return !now.Before(session.ExpiresAt)
}

// ClientMeta describes the client that opened a session.
type ClientMeta struct {
	UserAgent string
	IPAddress string
}

// # Identifier Normalization

var lowerCaser = cases.Lower(language.Und)

// NormalizeEmail trims, NFKC-normalizes, and lower-cases an address.
// Emails are stored in this form, so lookups must normalize first.
func NormalizeEmail(email string) string {
	return lowerCaser.String(norm.NFKC.String(strings.TrimSpace(email)))
}

// NormalizeIdentifier prepares a login identifier (username or email) for lookup.
func NormalizeIdentifier(identifier string) string {
	return NormalizeEmail(identifier)
}

// # Field Identifiers

// Field names for validation and JSON payloads in the authentication domain.
const (
	FieldUsername        = "username"
	FieldEmail           = "email"
	FieldPassword        = "password"
	FieldConfirmPassword = "confirm_password"
	FieldFullName        = "full_name"
	FieldRole            = "role"
	FieldIsActive        = "is_active"
	FieldLogin           = "login"
	FieldToken           = "token"
	FieldCurrentPassword = "current_password"
	FieldNewPassword     = "new_password"
	FieldAccessToken     = "access_token"
	FieldTokenType       = "token_type"
	FieldExpiresAt       = "expires_at"
	FieldUser            = "user"
	FieldMessage         = "message"
)
