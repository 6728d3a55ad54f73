// Copyright (c) 2026 Unilink. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package auth_test

import (
	"context"
	"regexp"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/taibuivan/unilink/internal/platform/apperr"
	"github.com/taibuivan/unilink/internal/platform/sec"
	"github.com/taibuivan/unilink/internal/users/auth"
	"github.com/taibuivan/unilink/pkg/pagination"
)

var userRowColumns = []string{"id", "username", "email", "passwordhash", "fullname", "role", "isactive", "createdat", "updatedat", "passwordchangedat"}

func newMock(t *testing.T) pgxmock.PgxPoolIface {
	t.Helper()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(mock.Close)
	return mock
}

/*
TestUserRepository_CreateConflict verifies unique-index violations become Conflicts.
*/
func TestUserRepository_CreateConflict(t *testing.T) {
	tests := []struct {
		name       string
		constraint string
		message    string
	}{
		{"email", "account_email_key", "Email is already registered"},
		{"username", "account_username_key", "Username is already taken"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mock := newMock(t)
			repository := auth.NewUserRepository(mock)

			mock.ExpectExec(regexp.QuoteMeta("INSERT INTO users.account")).
				WillReturnError(&pgconn.PgError{Code: "23505", ConstraintName: tt.constraint})

			err := repository.Create(context.Background(), &auth.User{
				ID:       "0190c1b2-0000-7000-8000-000000000001",
				Username: "alice",
				Email:    "alice@example.com",
				Role:     sec.RoleUser,
				IsActive: true,
			})

			require.Error(t, err)
			assert.Equal(t, "CONFLICT", apperr.As(err).Code)
			assert.Equal(t, tt.message, apperr.As(err).Message)
			assert.NoError(t, mock.ExpectationsWereMet())
		})
	}
}

/*
TestUserRepository_FindByLogin verifies identifier routing and normalization.
*/
func TestUserRepository_FindByLogin(t *testing.T) {
	mock := newMock(t)
	repository := auth.NewUserRepository(mock)
	now := time.Now().UTC()

	mock.ExpectQuery(regexp.QuoteMeta("WHERE email = $1")).
		WithArgs("alice@example.com").
		WillReturnRows(pgxmock.NewRows(userRowColumns).
			AddRow("u1", "alice", "alice@example.com", "hash", "", sec.RoleUser, true, now, now, now))

	user, err := repository.FindByLogin(context.Background(), " Alice@Example.com")
	require.NoError(t, err)
	assert.Equal(t, "alice", user.Username)

	mock.ExpectQuery(regexp.QuoteMeta("WHERE lower(username) = lower($1)")).
		WithArgs("Alice").
		WillReturnError(pgx.ErrNoRows)

	_, err = repository.FindByLogin(context.Background(), "Alice")
	assert.Equal(t, "NOT_FOUND", apperr.As(err).Code)
	assert.NoError(t, mock.ExpectationsWereMet())
}

/*
TestUserRepository_UpdatePasswordMissing verifies that a missing row is NotFound.
*/
func TestUserRepository_UpdatePasswordMissing(t *testing.T) {
	mock := newMock(t)
	repository := auth.NewUserRepository(mock)

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("UPDATE users.account")).
		WithArgs("missing", "hash").
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))
	mock.ExpectRollback()

	err := repository.UpdatePassword(context.Background(), "missing", "hash")
	assert.Equal(t, "NOT_FOUND", apperr.As(err).Code)
	assert.NoError(t, mock.ExpectationsWereMet())
}

/*
TestUserRepository_UpdatePasswordRevokesResets verifies that a password write
advances the credential epoch and retires pending reset links atomically.
*/
func TestUserRepository_UpdatePasswordRevokesResets(t *testing.T) {
	mock := newMock(t)
	repository := auth.NewUserRepository(mock)

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("SET passwordhash = $2, passwordchangedat = now()")).
		WithArgs("u1", "hash").
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectExec(regexp.QuoteMeta("UPDATE users.password_reset")).WithArgs("u1").
		WillReturnResult(pgxmock.NewResult("UPDATE", 2))
	mock.ExpectCommit()

	require.NoError(t, repository.UpdatePassword(context.Background(), "u1", "hash"))
	assert.NoError(t, mock.ExpectationsWereMet())
}

/*
TestUserRepository_UpdateAdmin verifies that only a replaced password revokes
pending reset links.
*/
func TestUserRepository_UpdateAdmin(t *testing.T) {
	var (
		noText *string
		noFlag *bool
	)
	now := time.Now().UTC()
	row := func() *pgxmock.Rows {
		return pgxmock.NewRows(userRowColumns).
			AddRow("u1", "alice", "alice@example.com", "hash", "", sec.RoleUser, true, now, now, now)
	}

	t.Run("password", func(t *testing.T) {
		mock := newMock(t)
		repository := auth.NewUserRepository(mock)
		hash := "new-hash"

		mock.ExpectBegin()
		mock.ExpectQuery(regexp.QuoteMeta("passwordchangedat = CASE WHEN $6::text IS NULL")).
			WithArgs("u1", noText, noText, noText, noFlag, &hash).
			WillReturnRows(row())
		mock.ExpectExec(regexp.QuoteMeta("UPDATE users.password_reset")).WithArgs("u1").
			WillReturnResult(pgxmock.NewResult("UPDATE", 1))
		mock.ExpectCommit()

		user, err := repository.UpdateAdmin(context.Background(), "u1", auth.AdminChange{PasswordHash: &hash})
		require.NoError(t, err)
		assert.Equal(t, now, user.PasswordChangedAt)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("profile only", func(t *testing.T) {
		mock := newMock(t)
		repository := auth.NewUserRepository(mock)
		fullName := "Alice"

		mock.ExpectBegin()
		mock.ExpectQuery(regexp.QuoteMeta("UPDATE users.account")).
			WithArgs("u1", noText, &fullName, noText, noFlag, noText).
			WillReturnRows(row())
		mock.ExpectCommit()

		_, err := repository.UpdateAdmin(context.Background(), "u1", auth.AdminChange{FullName: &fullName})
		require.NoError(t, err)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

/*
TestUserRepository_SoftDelete verifies that sessions and reset tokens go in the same transaction.
*/
func TestUserRepository_SoftDelete(t *testing.T) {
	mock := newMock(t)
	repository := auth.NewUserRepository(mock)

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("SET deletedat = now()")).WithArgs("u1").
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM users.session")).WithArgs("u1").
		WillReturnResult(pgxmock.NewResult("DELETE", 2))
	mock.ExpectExec(regexp.QuoteMeta("UPDATE users.password_reset")).WithArgs("u1").
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectCommit()

	require.NoError(t, repository.SoftDelete(context.Background(), "u1"))
	assert.NoError(t, mock.ExpectationsWereMet())
}

/*
TestUserRepository_List verifies that search wildcards are escaped.
*/
func TestUserRepository_List(t *testing.T) {
	mock := newMock(t)
	repository := auth.NewUserRepository(mock)
	now := time.Now().UTC()
	active := true

	mock.ExpectQuery(regexp.QuoteMeta("FROM users.account")).
		WithArgs(`%50\%\_off%`, &active, 10, 10).
		WillReturnRows(pgxmock.NewRows(userRowColumns).
			AddRow("u1", "bob", "bob@example.com", "hash", "Bob", sec.RoleAdmin, true, now, now, now))

	users, err := repository.List(context.Background(),
		auth.UserFilter{Search: " 50%_off ", Active: &active},
		pagination.Params{Page: 2, Limit: 10})
	require.NoError(t, err)
	require.Len(t, users, 1)
	assert.Equal(t, sec.RoleAdmin, users[0].Role)
	assert.NoError(t, mock.ExpectationsWereMet())
}

/*
TestSessionRepository_DeleteExpired verifies the inclusive expiry boundary.
*/
func TestSessionRepository_DeleteExpired(t *testing.T) {
	mock := newMock(t)
	repository := auth.NewSessionRepository(mock)
	now := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)

	mock.ExpectExec(regexp.QuoteMeta("WHERE expiresat <= $1")).WithArgs(now).
		WillReturnResult(pgxmock.NewResult("DELETE", 3))

	removed, err := repository.DeleteExpired(context.Background(), now)
	require.NoError(t, err)
	assert.Equal(t, int64(3), removed)
	assert.NoError(t, mock.ExpectationsWereMet())
}
