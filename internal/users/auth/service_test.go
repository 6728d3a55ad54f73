// Copyright (c) 2026 Unilink. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package auth_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/taibuivan/unilink/internal/platform/apperr"
	"github.com/taibuivan/unilink/internal/platform/sec"
	"github.com/taibuivan/unilink/internal/users/auth"
)

func newService(t *testing.T, fixture *sessionFixture) *auth.Service {
	t.Helper()

	tokens, err := sec.NewTokenService("test-secret-key-0123456789", "unilink")
	require.NoError(t, err)

	service, err := auth.NewService(fixture.users, fixture.manager, tokens)
	require.NoError(t, err)
	return service
}

/*
TestService_Register verifies validation, normalization, and conflicts.
*/
func TestService_Register(t *testing.T) {
	fixture := newSessionFixture(t)
	service := newService(t, fixture)
	ctx := context.Background()

	valid := auth.RegisterInput{
		Username:        "bob",
		Email:           "  Bob@Example.COM ",
		Password:        "hunter2hunter2",
		ConfirmPassword: "hunter2hunter2",
		FullName:        "Bob",
	}

	user, err := service.Register(ctx, valid)
	require.NoError(t, err)
	assert.Equal(t, "bob@example.com", user.Email)
	assert.Equal(t, sec.RoleUser, user.Role)
	assert.True(t, user.IsActive)
	assert.NotEqual(t, valid.Password, user.PasswordHash)

	tests := []struct {
		name   string
		mutate func(*auth.RegisterInput)
		code   string
	}{
		{"short password", func(in *auth.RegisterInput) { in.Password, in.ConfirmPassword = "short", "short" }, "VALIDATION_ERROR"},
		{"mismatched confirm", func(in *auth.RegisterInput) { in.ConfirmPassword = "different-pass" }, "VALIDATION_ERROR"},
		{"short username", func(in *auth.RegisterInput) { in.Username = "al" }, "VALIDATION_ERROR"},
		{"symbol username", func(in *auth.RegisterInput) { in.Username = "bob.smith" }, "VALIDATION_ERROR"},
		{"bad email", func(in *auth.RegisterInput) { in.Email = "nope" }, "VALIDATION_ERROR"},
		{"duplicate username any case", func(in *auth.RegisterInput) { in.Username, in.Email = "ALICE", "other@example.com" }, "CONFLICT"},
		{"duplicate email any case", func(in *auth.RegisterInput) { in.Username, in.Email = "carol", "ALICE@example.com" }, "CONFLICT"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			input := valid
			input.Username = "carol"
			input.Email = "carol@example.com"
			tt.mutate(&input)

			_, err := service.Register(ctx, input)
			require.Error(t, err)
			assert.Equal(t, tt.code, apperr.As(err).Code)
		})
	}
}

/*
TestService_Login verifies that every failure looks the same to the caller.
*/
func TestService_Login(t *testing.T) {
	fixture := newSessionFixture(t)
	service := newService(t, fixture)
	ctx := context.Background()

	byUsername, err := service.Login(ctx, auth.LoginInput{Login: "ALICE", Password: "correct-horse"})
	require.NoError(t, err)
	assert.Equal(t, fixture.alice.ID, byUsername.User.ID)
	assert.NotEmpty(t, byUsername.Token)

	byEmail, err := service.Login(ctx, auth.LoginInput{Login: "Alice@Example.com", Password: "correct-horse"})
	require.NoError(t, err)
	assert.NotEqual(t, byUsername.Token, byEmail.Token)

	_, wrongPassword := service.Login(ctx, auth.LoginInput{Login: "alice", Password: "wrong-horse"})
	_, unknownUser := service.Login(ctx, auth.LoginInput{Login: "mallory", Password: "correct-horse"})

	require.NoError(t, fixture.users.SetActive(ctx, fixture.alice.ID, false))
	_, inactive := service.Login(ctx, auth.LoginInput{Login: "alice", Password: "correct-horse"})

	for _, err := range []error{wrongPassword, unknownUser, inactive} {
		require.Error(t, err)
		assert.Equal(t, "UNAUTHORIZED", apperr.As(err).Code)
		assert.Equal(t, wrongPassword.Error(), err.Error())
	}
}

/*
TestService_ChangePassword verifies that the current session survives, other
sessions end, and earlier API tokens stop working.
*/
func TestService_ChangePassword(t *testing.T) {
	fixture := newSessionFixture(t)
	service := newService(t, fixture)
	ctx := context.Background()

	current, err := service.Login(ctx, auth.LoginInput{Login: "alice", Password: "correct-horse"})
	require.NoError(t, err)
	other, err := service.Login(ctx, auth.LoginInput{Login: "alice", Password: "correct-horse"})
	require.NoError(t, err)

	principal, err := service.AuthenticateSession(ctx, current.Token)
	require.NoError(t, err)
	bearer, err := service.IssueAPIToken(ctx, principal)
	require.NoError(t, err)

	err = service.ChangePassword(ctx, principal, auth.ChangePasswordInput{
		CurrentPassword: "wrong-horse",
		NewPassword:     "battery-staple",
		ConfirmPassword: "battery-staple",
	})
	assert.Equal(t, "UNAUTHORIZED", apperr.As(err).Code)

	err = service.ChangePassword(ctx, principal, auth.ChangePasswordInput{
		CurrentPassword: "correct-horse",
		NewPassword:     "battery-staple",
		ConfirmPassword: "battery-staple",
	})
	require.NoError(t, err)

	_, err = service.AuthenticateSession(ctx, current.Token)
	assert.NoError(t, err)
	_, err = service.AuthenticateSession(ctx, other.Token)
	assert.ErrorIs(t, err, auth.ErrSessionInvalid)

	_, err = service.AuthenticateBearer(ctx, bearer.AccessToken)
	assert.Equal(t, "UNAUTHORIZED", apperr.As(err).Code)

	fresh, err := service.IssueAPIToken(ctx, principal)
	require.NoError(t, err)
	_, err = service.AuthenticateBearer(ctx, fresh.AccessToken)
	assert.NoError(t, err)

	_, err = service.Login(ctx, auth.LoginInput{Login: "alice", Password: "battery-staple"})
	assert.NoError(t, err)
}

/*
TestService_UpdateProfile verifies email uniqueness across accounts.
*/
func TestService_UpdateProfile(t *testing.T) {
	fixture := newSessionFixture(t)
	service := newService(t, fixture)
	ctx := context.Background()

	fixture.users.Seed("bob", "bob@example.com", "bob-password", sec.RoleUser)

	user, err := service.UpdateProfile(ctx, fixture.alice.ID, auth.ProfileInput{Email: "Alice.New@example.com", FullName: " Alice A "})
	require.NoError(t, err)
	assert.Equal(t, "alice.new@example.com", user.Email)
	assert.Equal(t, "Alice A", user.FullName)

	// Keeping one's own email is fine.
	_, err = service.UpdateProfile(ctx, fixture.alice.ID, auth.ProfileInput{Email: "alice.new@example.com"})
	assert.NoError(t, err)

	_, err = service.UpdateProfile(ctx, fixture.alice.ID, auth.ProfileInput{Email: "BOB@example.com"})
	assert.Equal(t, "CONFLICT", apperr.As(err).Code)
}

/*
TestService_Bearer verifies API tokens and that deactivation revokes them.
*/
func TestService_Bearer(t *testing.T) {
	fixture := newSessionFixture(t)
	service := newService(t, fixture)
	ctx := context.Background()

	token, err := service.IssueAPIToken(ctx, fixture.alice.Principal("session-1"))
	require.NoError(t, err)
	assert.Equal(t, "Bearer", token.TokenType)
	assert.WithinDuration(t, time.Now().Add(auth.APITokenTTL), token.ExpiresAt, time.Minute)

	principal, err := service.AuthenticateBearer(ctx, token.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, fixture.alice.ID, principal.UserID)
	assert.Empty(t, principal.SessionID)

	_, err = service.AuthenticateBearer(ctx, "garbage")
	assert.Equal(t, "UNAUTHORIZED", apperr.As(err).Code)

	require.NoError(t, fixture.users.SetActive(ctx, fixture.alice.ID, false))
	_, err = service.AuthenticateBearer(ctx, token.AccessToken)
	assert.Equal(t, "UNAUTHORIZED", apperr.As(err).Code)

	_, err = service.IssueAPIToken(ctx, fixture.alice.Principal("session-1"))
	assert.Equal(t, "UNAUTHORIZED", apperr.As(err).Code)
}
