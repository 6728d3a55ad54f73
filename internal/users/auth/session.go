// Copyright (c) 2026 Unilink. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package auth

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/taibuivan/unilink/internal/platform/apperr"
	"github.com/taibuivan/unilink/internal/platform/ctxutil"
	"github.com/taibuivan/unilink/internal/platform/sec"
	"github.com/taibuivan/unilink/pkg/uuid"
)

// ErrSessionInvalid is returned for every session that cannot be used: unknown,
// expired, or owned by an inactive or deleted account. Callers cannot tell which.
var ErrSessionInvalid = apperr.Unauthorized("Session is invalid or expired")

// SessionManager issues, validates, and destroys login sessions.
//
// Tokens are 256-bit random values; only their SHA-256 digest is stored, so a
// leaked database does not yield usable cookies.
type SessionManager struct {
	sessions SessionRepository
	users    UserRepository
	ttl      time.Duration
	now      func() time.Time
	newToken func() (string, error)
}

// SessionOption customizes a [SessionManager].
type SessionOption func(*SessionManager)

// WithSessionClock overrides the time source.
func WithSessionClock(now func() time.Time) SessionOption {
	return func(manager *SessionManager) { manager.now = now }
}

// WithTokenSource overrides the token generator.
func WithTokenSource(newToken func() (string, error)) SessionOption {
	return func(manager *SessionManager) { manager.newToken = newToken }
}

// NewSessionManager constructs a manager. A non-positive ttl uses [DefaultSessionTTL].
func NewSessionManager(sessions SessionRepository, users UserRepository, ttl time.Duration, options ...SessionOption) *SessionManager {
	if ttl <= 0 {
		ttl = DefaultSessionTTL
	}

	manager := &SessionManager{
		sessions: sessions,
		users:    users,
		ttl:      ttl,
		now:      func() time.Time { return time.Now().UTC() },
		newToken: sec.NewOpaqueToken,
	}
	for _, option := range options {
		option(manager)
	}
	return manager
}

// TTL returns the session lifetime (used for the cookie Max-Age).
func (manager *SessionManager) TTL() time.Duration {
	return manager.ttl
}

/*
Create opens a session for userID.

Returns:
  - string: The raw token for the cookie (never stored)
  - time.Time: Expiry instant
  - error: Token generation or persistence failures
*/
func (manager *SessionManager) Create(context context.Context, userID string, meta ClientMeta) (string, time.Time, error) {
	token, err := manager.newToken()
	if err != nil {
		return "", time.Time{}, fmt.Errorf("auth_session_token_failed: %w", err)
	}

	now := manager.now()
	session := &Session{
		ID:         uuid.New(),
		UserID:     userID,
		TokenHash:  sec.HashToken(token),
		UserAgent:  meta.UserAgent,
		IPAddress:  meta.IPAddress,
		CreatedAt:  now,
		ExpiresAt:  now.Add(manager.ttl),
		LastSeenAt: now,
	}

	if err := manager.sessions.Create(context, session); err != nil {
		return "", time.Time{}, fmt.Errorf("auth_session_create_failed: %w", err)
	}

	return token, session.ExpiresAt, nil
}

/*
Validate resolves a raw session token to its owner.

Description: The session must exist, be unexpired at now (the expiry instant
itself is expired), and belong to an active, non-deleted account. Expired
rows are removed on sight. Activity is recorded at most once per
[SessionTouchInterval].

Returns:
  - *User, *Session: The owner and the session
  - error: [ErrSessionInvalid] or storage failures
*/
func (manager *SessionManager) Validate(context context.Context, token string) (*User, *Session, error) {
	if token == "" {
		return nil, nil, ErrSessionInvalid
	}

	tokenHash := sec.HashToken(token)
	session, err := manager.sessions.FindByTokenHash(context, tokenHash)
	if err != nil {
		if apperr.HasCode(err, "NOT_FOUND") {
			return nil, nil, ErrSessionInvalid
		}
		return nil, nil, fmt.Errorf("auth_session_lookup_failed: %w", err)
	}

	now := manager.now()
	if session.Expired(now) {
		if err := manager.sessions.DeleteByTokenHash(context, tokenHash); err != nil {
			ctxutil.GetLogger(context).WarnContext(context, "session_expired_cleanup_failed", slog.Any("error", err))
		}
		return nil, nil, ErrSessionInvalid
	}

	user, err := manager.users.FindByID(context, session.UserID)
	if err != nil {
		if apperr.HasCode(err, "NOT_FOUND") {
			return nil, nil, ErrSessionInvalid
		}
		return nil, nil, fmt.Errorf("auth_session_owner_lookup_failed: %w", err)
	}

	if !user.IsActive {
		return nil, nil, ErrSessionInvalid
	}

	if now.Sub(session.LastSeenAt) >= SessionTouchInterval {
		if err := manager.sessions.Touch(context, session.ID, now); err != nil {
			ctxutil.GetLogger(context).WarnContext(context, "session_touch_failed", slog.Any("error", err))
		} else {
			session.LastSeenAt = now
		}
	}

	return user, session, nil
}

// Destroy removes the session behind token. It is idempotent.
func (manager *SessionManager) Destroy(context context.Context, token string) error {
	if token == "" {
		return nil
	}
	if err := manager.sessions.DeleteByTokenHash(context, sec.HashToken(token)); err != nil {
		return fmt.Errorf("auth_session_destroy_failed: %w", err)
	}
	return nil
}

// DestroyAllForUser removes every session of userID.
func (manager *SessionManager) DestroyAllForUser(context context.Context, userID string) (int64, error) {
	count, err := manager.sessions.DeleteAllForUser(context, userID)
	if err != nil {
		return 0, fmt.Errorf("auth_session_destroy_all_failed: %w", err)
	}
	return count, nil
}

// DestroyOthers removes every session of userID except keepSessionID.
// An empty keepSessionID removes all of them.
func (manager *SessionManager) DestroyOthers(context context.Context, userID, keepSessionID string) (int64, error) {
	if keepSessionID == "" {
		return manager.DestroyAllForUser(context, userID)
	}

	count, err := manager.sessions.DeleteOthersForUser(context, userID, keepSessionID)
	if err != nil {
		return 0, fmt.Errorf("auth_session_destroy_others_failed: %w", err)
	}
	return count, nil
}

// PurgeExpired deletes every expired session and reports how many were removed.
func (manager *SessionManager) PurgeExpired(context context.Context) (int64, error) {
	count, err := manager.sessions.DeleteExpired(context, manager.now())
	if err != nil {
		return 0, fmt.Errorf("auth_session_purge_failed: %w", err)
	}

	ctxutil.GetLogger(context).InfoContext(context, "session_purge", slog.Int64("removed", count))
	return count, nil
}
