// Copyright (c) 2026 Unilink. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package recovery

import (
	"context"
	"time"
)

// TokenRepository persists reset tokens.
type TokenRepository interface {

	// Issue stores token after revoking every outstanding token of its owner.
	// It fails with NotFound when the owner is missing, deleted, or inactive.
	Issue(ctx context.Context, token *ResetToken) error

	// FindByHash returns the token for a digest, in whatever state it is in.
	FindByHash(ctx context.Context, tokenHash string) (*ResetToken, error)

	// Redeem atomically sets the owner's password hash, marks the token used,
	// revokes the owner's other tokens, and deletes the owner's sessions.
	// It returns [ErrInvalidOrExpired] when the token is not usable at now or
	// its owner is gone or inactive.
	Redeem(ctx context.Context, tokenHash, passwordHash string, now time.Time) (userID string, err error)

	// PurgeStale deletes tokens that expired at or before now.
	PurgeStale(ctx context.Context, now time.Time) (int64, error)
}
