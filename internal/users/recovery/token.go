// Copyright (c) 2026 Unilink. All rights reserved.
// Author: tai.buivan.jp@gmail.com

/*
Package recovery implements password reset by emailed, single-use tokens.

A reset token is an opaque random string; only its SHA-256 digest is stored.
Its lifecycle has two terminal states and no way back:

	Issued ──consume──▶ Used
	   │
	   ├──newer token / successful reset──▶ Revoked
	   └──now >= expiresat──▶ Expired (computed at read time)

Issuing and consuming both lock the owner's account row, so a user never has
two usable tokens at once and a token cannot be redeemed while a newer one is
being issued.
*/
package recovery

import (
	"time"

	"github.com/taibuivan/unilink/internal/platform/apperr"
)

// DefaultTokenTTL is how long an emailed reset link stays usable.
const DefaultTokenTTL = 30 * time.Minute

// ErrInvalidOrExpired covers unknown, expired, used, and revoked tokens alike.
var ErrInvalidOrExpired = apperr.InvalidOrExpired("Reset link is invalid or has expired")

// ResetToken is the stored half of a password reset link.
type ResetToken struct {
	ID        string     `json:"id"`
	UserID    string     `json:"user_id"`
	TokenHash string     `json:"-"`
	CreatedAt time.Time  `json:"created_at"`
	ExpiresAt time.Time  `json:"expires_at"`
	UsedAt    *time.Time `json:"used_at,omitempty"`
	RevokedAt *time.Time `json:"revoked_at,omitempty"`
}

// Usable reports whether the token may still be redeemed at now.
// The expiry instant itself is already too late.
func (token *ResetToken) Usable(now time.Time) bool {
	return token.UsedAt == nil && token.RevokedAt == nil && now.Before(token.ExpiresAt)
}

// Issued is a freshly created token, returned once to be mailed.
type Issued struct {
	Token     string
	UserID    string
	ExpiresAt time.Time
}

// JSON field identifiers.
const (
	FieldIdentifier      = "identifier"
	FieldEmail           = "email"
	FieldToken           = "token"
	FieldPassword        = "password"
	FieldConfirmPassword = "confirm_password"
	FieldMessage         = "message"
	FieldValid           = "valid"
	FieldExpiresAt       = "expires_at"
)
