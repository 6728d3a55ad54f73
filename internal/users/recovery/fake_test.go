// Copyright (c) 2026 Unilink. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package recovery_test

import (
	"context"
	"sync"
	"time"

	"github.com/taibuivan/unilink/internal/platform/apperr"
	"github.com/taibuivan/unilink/internal/users/auth/authtest"
	"github.com/taibuivan/unilink/internal/users/recovery"
)

// memTokens is a map-backed TokenRepository sharing state with the auth fakes.
type memTokens struct {
	mu       sync.Mutex
	users    *authtest.UserStore
	sessions *authtest.SessionStore
	byHash   map[string]*recovery.ResetToken
}

var _ recovery.TokenRepository = (*memTokens)(nil)

func newMemTokens(users *authtest.UserStore, sessions *authtest.SessionStore) *memTokens {
	return &memTokens{users: users, sessions: sessions, byHash: map[string]*recovery.ResetToken{}}
}

func (store *memTokens) activeOwner(ctx context.Context, userID string) bool {
	user, err := store.users.FindByID(ctx, userID)
	return err == nil && user.IsActive
}

func (store *memTokens) Issue(ctx context.Context, token *recovery.ResetToken) error {
	store.mu.Lock()
	defer store.mu.Unlock()

	if !store.activeOwner(ctx, token.UserID) {
		return apperr.NotFound("User")
	}

	for _, existing := range store.byHash {
		if existing.UserID == token.UserID && existing.UsedAt == nil && existing.RevokedAt == nil {
			revokedAt := token.CreatedAt
			existing.RevokedAt = &revokedAt
		}
	}

	clone := *token
	store.byHash[token.TokenHash] = &clone
	return nil
}

func (store *memTokens) FindByHash(_ context.Context, tokenHash string) (*recovery.ResetToken, error) {
	store.mu.Lock()
	defer store.mu.Unlock()

	token, ok := store.byHash[tokenHash]
	if !ok {
		return nil, apperr.NotFound("Reset token")
	}
	clone := *token
	return &clone, nil
}

// Redeem claims the token under the lock, then writes the password outside it
// because the user store's password hook calls back into revokeOutstanding.
func (store *memTokens) Redeem(ctx context.Context, tokenHash, passwordHash string, now time.Time) (string, error) {
	store.mu.Lock()
	token, ok := store.byHash[tokenHash]
	if !ok || !store.activeOwner(ctx, token.UserID) || !token.Usable(now) {
		store.mu.Unlock()
		return "", recovery.ErrInvalidOrExpired
	}
	usedAt := now
	token.UsedAt = &usedAt
	userID := token.UserID
	store.mu.Unlock()

	if err := store.users.UpdatePassword(ctx, userID, passwordHash); err != nil {
		return "", err
	}
	store.revokeOutstanding(userID)

	if _, err := store.sessions.DeleteAllForUser(ctx, userID); err != nil {
		return "", err
	}
	return userID, nil
}

// revokeOutstanding retires every unused token of userID.
func (store *memTokens) revokeOutstanding(userID string) {
	store.mu.Lock()
	defer store.mu.Unlock()

	revokedAt := time.Now().UTC()
	for _, token := range store.byHash {
		if token.UserID == userID && token.UsedAt == nil && token.RevokedAt == nil {
			token.RevokedAt = &revokedAt
		}
	}
}

func (store *memTokens) PurgeStale(_ context.Context, now time.Time) (int64, error) {
	store.mu.Lock()
	defer store.mu.Unlock()

	var removed int64
	for hash, token := range store.byHash {
		if !now.Before(token.ExpiresAt) {
			delete(store.byHash, hash)
			removed++
		}
	}
	return removed, nil
}

// countingThrottle allows limit calls per key.
type countingThrottle struct {
	mu    sync.Mutex
	limit int
	hits  map[string]int
	err   error
}

func (throttle *countingThrottle) Allow(_ context.Context, key string) (bool, error) {
	throttle.mu.Lock()
	defer throttle.mu.Unlock()

	if throttle.err != nil {
		return false, throttle.err
	}
	if throttle.hits == nil {
		throttle.hits = map[string]int{}
	}
	throttle.hits[key]++
	return throttle.hits[key] <= throttle.limit, nil
}
