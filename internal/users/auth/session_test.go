// Copyright (c) 2026 Unilink. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package auth_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/taibuivan/unilink/internal/platform/sec"
	"github.com/taibuivan/unilink/internal/users/auth"
	"github.com/taibuivan/unilink/internal/users/auth/authtest"
)

type sessionFixture struct {
	users    *authtest.UserStore
	sessions *authtest.SessionStore
	clock    *authtest.Clock
	manager  *auth.SessionManager
	alice    *auth.User
}

func newSessionFixture(t *testing.T) *sessionFixture {
	t.Helper()

	fixture := &sessionFixture{
		users:    authtest.NewUserStore(),
		sessions: authtest.NewSessionStore(),
		clock:    authtest.NewClock(time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)),
	}
	fixture.manager = auth.NewSessionManager(fixture.sessions, fixture.users, 24*time.Hour,
		auth.WithSessionClock(fixture.clock.Now))
	fixture.alice = fixture.users.Seed("alice", "alice@example.com", "correct-horse", sec.RoleUser)
	return fixture
}

/*
TestSessionManager_CreateValidate verifies the happy path and that only the digest is stored.
*/
func TestSessionManager_CreateValidate(t *testing.T) {
	fixture := newSessionFixture(t)
	ctx := context.Background()

	token, expiresAt, err := fixture.manager.Create(ctx, fixture.alice.ID, auth.ClientMeta{UserAgent: "test", IPAddress: "10.0.0.1"})
	require.NoError(t, err)
	assert.Equal(t, fixture.clock.Now().Add(24*time.Hour), expiresAt)

	// The raw token is never a lookup key.
	_, err = fixture.sessions.FindByTokenHash(ctx, token)
	assert.Error(t, err)

	user, session, err := fixture.manager.Validate(ctx, token)
	require.NoError(t, err)
	assert.Equal(t, fixture.alice.ID, user.ID)
	assert.Equal(t, "10.0.0.1", session.IPAddress)
}

/*
TestSessionManager_ExpiryBoundary verifies that the expiry instant itself is rejected.
*/
func TestSessionManager_ExpiryBoundary(t *testing.T) {
	fixture := newSessionFixture(t)
	ctx := context.Background()

	token, expiresAt, err := fixture.manager.Create(ctx, fixture.alice.ID, auth.ClientMeta{})
	require.NoError(t, err)

	fixture.clock.Set(expiresAt.Add(-time.Nanosecond))
	_, _, err = fixture.manager.Validate(ctx, token)
	require.NoError(t, err)

	fixture.clock.Set(expiresAt)
	_, _, err = fixture.manager.Validate(ctx, token)
	assert.ErrorIs(t, err, auth.ErrSessionInvalid)

	// Expired rows are removed on sight.
	assert.Equal(t, 0, fixture.sessions.Len())
}

/*
TestSessionManager_UniformRejection verifies that every invalid case yields the same error.
*/
func TestSessionManager_UniformRejection(t *testing.T) {
	fixture := newSessionFixture(t)
	ctx := context.Background()

	token, _, err := fixture.manager.Create(ctx, fixture.alice.ID, auth.ClientMeta{})
	require.NoError(t, err)

	_, _, unknownErr := fixture.manager.Validate(ctx, "not-a-real-token")
	_, _, emptyErr := fixture.manager.Validate(ctx, "")

	require.NoError(t, fixture.users.SetActive(ctx, fixture.alice.ID, false))
	_, _, inactiveErr := fixture.manager.Validate(ctx, token)

	require.NoError(t, fixture.users.SetActive(ctx, fixture.alice.ID, true))
	require.NoError(t, fixture.users.SoftDelete(ctx, fixture.alice.ID))
	_, _, deletedErr := fixture.manager.Validate(ctx, token)

	for _, err := range []error{unknownErr, emptyErr, inactiveErr, deletedErr} {
		assert.Same(t, auth.ErrSessionInvalid, err)
	}
}

/*
TestSessionManager_Destroy verifies logout semantics.
*/
func TestSessionManager_Destroy(t *testing.T) {
	fixture := newSessionFixture(t)
	ctx := context.Background()

	first, _, err := fixture.manager.Create(ctx, fixture.alice.ID, auth.ClientMeta{})
	require.NoError(t, err)
	second, _, err := fixture.manager.Create(ctx, fixture.alice.ID, auth.ClientMeta{})
	require.NoError(t, err)
	assert.NotEqual(t, first, second)

	require.NoError(t, fixture.manager.Destroy(ctx, first))
	require.NoError(t, fixture.manager.Destroy(ctx, first), "destroy is idempotent")

	_, _, err = fixture.manager.Validate(ctx, first)
	assert.ErrorIs(t, err, auth.ErrSessionInvalid)

	// Logging out one device leaves the other alone.
	_, _, err = fixture.manager.Validate(ctx, second)
	assert.NoError(t, err)

	removed, err := fixture.manager.DestroyAllForUser(ctx, fixture.alice.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), removed)
}

/*
TestSessionManager_Touch verifies that activity is written at most once per interval.
*/
func TestSessionManager_Touch(t *testing.T) {
	fixture := newSessionFixture(t)
	ctx := context.Background()

	token, _, err := fixture.manager.Create(ctx, fixture.alice.ID, auth.ClientMeta{})
	require.NoError(t, err)

	fixture.clock.Advance(time.Minute)
	_, _, err = fixture.manager.Validate(ctx, token)
	require.NoError(t, err)
	assert.Equal(t, 0, fixture.sessions.Touches())

	fixture.clock.Advance(auth.SessionTouchInterval)
	_, session, err := fixture.manager.Validate(ctx, token)
	require.NoError(t, err)
	assert.Equal(t, 1, fixture.sessions.Touches())
	assert.Equal(t, fixture.clock.Now(), session.LastSeenAt)
}

/*
TestSessionManager_PurgeExpired verifies bulk cleanup.
*/
func TestSessionManager_PurgeExpired(t *testing.T) {
	fixture := newSessionFixture(t)
	ctx := context.Background()

	_, _, err := fixture.manager.Create(ctx, fixture.alice.ID, auth.ClientMeta{})
	require.NoError(t, err)

	fixture.clock.Advance(12 * time.Hour)
	live, _, err := fixture.manager.Create(ctx, fixture.alice.ID, auth.ClientMeta{})
	require.NoError(t, err)

	fixture.clock.Advance(12 * time.Hour)
	removed, err := fixture.manager.PurgeExpired(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), removed)

	_, _, err = fixture.manager.Validate(ctx, live)
	assert.NoError(t, err)
}
