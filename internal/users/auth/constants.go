// Copyright (c) 2026 Unilink. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package auth

import (
	"time"

	"github.com/taibuivan/unilink/internal/platform/validate"
)

// # Authentication Constraints

const (
	// DefaultSessionTTL is how long a login session stays valid.
	DefaultSessionTTL = 24 * time.Hour

	// SessionTouchInterval bounds how often lastseenat is rewritten for one session.
	SessionTouchInterval = 5 * time.Minute

	// APITokenTTL is the lifetime of bearer tokens issued from a session.
	APITokenTTL = 24 * time.Hour

	// MinUsernameLength and MaxUsernameLength bound usernames.
	MinUsernameLength = 3
	MaxUsernameLength = 32

	// MinPasswordLength is the minimum accepted password length.
	MinPasswordLength = 8

	// MaxPasswordLength is bcrypt's input limit in bytes; longer input is rejected
	// rather than silently truncated.
	MaxPasswordLength = 72

	// MaxFullNameLength bounds the optional display name.
	MaxFullNameLength = 120
)

// CheckPassword applies the password policy to value under field.
func CheckPassword(validator *validate.Validator, field, value string) *validate.Validator {
	return validator.
		Required(field, value).
		MinLen(field, value, MinPasswordLength).
		Custom(field, len(value) > MaxPasswordLength, "Maximum 72 bytes")
}

// CheckUsername applies the username policy to value.
func CheckUsername(validator *validate.Validator, value string) *validate.Validator {
	return validator.
		Required(FieldUsername, value).
		MinLen(FieldUsername, value, MinUsernameLength).
		MaxLen(FieldUsername, value, MaxUsernameLength).
		AlphaNumeric(FieldUsername, value)
}
