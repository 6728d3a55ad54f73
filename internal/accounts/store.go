// Copyright (c) 2026 Unilink. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package accounts

import (
	"context"
	"encoding/json"
	"time"
)

// Repository persists connected accounts.
//
// userID filters accept "" to mean every user.
type Repository interface {
	FindByAccountID(ctx context.Context, accountID string) (*ConnectedAccount, error)

	// ApplyStatus inserts account, or updates status and data of the existing
	// row with the same account id when its status differs. It reports whether
	// anything was written.
	ApplyStatus(ctx context.Context, account *ConnectedAccount) (bool, error)

	// Sync stores a fresh vendor snapshot.
	Sync(ctx context.Context, accountID, status, provider string, data json.RawMessage, at time.Time) (*ConnectedAccount, error)

	SetStatus(ctx context.Context, accountID, status string, at time.Time) error
	List(ctx context.Context, userID string) ([]*ConnectedAccount, error)
	Recent(ctx context.Context, userID string, limit int) ([]*ConnectedAccount, error)
	Stats(ctx context.Context, userID string) (*Stats, error)
}
