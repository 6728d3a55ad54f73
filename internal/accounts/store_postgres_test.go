// Copyright (c) 2026 Unilink. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package accounts_test

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

	"github.com/taibuivan/unilink/internal/accounts"
	"github.com/taibuivan/unilink/internal/platform/apperr"
)

var accountRowColumns = []string{
	"id", "accountid", "userid", "provider", "status", "accountdata", "connectedat", "lastsync", "updatedat",
}

func newMockRepository(t *testing.T) (pgxmock.PgxPoolIface, *accounts.PostgresRepository) {
	t.Helper()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(mock.Close)
	return mock, accounts.NewRepository(mock)
}

/*
TestRepository_ApplyStatus verifies that an unchanged status reports no write.
*/
func TestRepository_ApplyStatus(t *testing.T) {
	mock, repository := newMockRepository(t)
	now := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	account := &accounts.ConnectedAccount{
		ID: "r1", AccountID: "acc-1", UserID: "u1", Provider: "LINKEDIN", Status: "OK", ConnectedAt: now,
	}

	upsert := regexp.QuoteMeta("WHERE links.connected_account.status IS DISTINCT FROM EXCLUDED.status")
	mock.ExpectExec(upsert).
		WithArgs("r1", "acc-1", "u1", "LINKEDIN", "OK", pgxmock.AnyArg(), now).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectExec(upsert).
		WithArgs("r1", "acc-1", "u1", "LINKEDIN", "OK", pgxmock.AnyArg(), now).
		WillReturnResult(pgxmock.NewResult("INSERT", 0))

	changed, err := repository.ApplyStatus(context.Background(), account)
	require.NoError(t, err)
	assert.True(t, changed)

	changed, err = repository.ApplyStatus(context.Background(), account)
	require.NoError(t, err)
	assert.False(t, changed)

	// A duplicate row id is reported against the connected account.
	mock.ExpectExec(upsert).
		WithArgs("r1", "acc-1", "u1", "LINKEDIN", "OK", pgxmock.AnyArg(), now).
		WillReturnError(&pgconn.PgError{Code: "23505", ConstraintName: "connected_account_pkey"})

	_, err = repository.ApplyStatus(context.Background(), account)
	require.Error(t, err)
	assert.Equal(t, "CONFLICT", apperr.As(err).Code)
	assert.Equal(t, "Account already exists", apperr.As(err).Message)

	assert.NoError(t, mock.ExpectationsWereMet())
}

/*
TestRepository_FindByAccountID verifies scanning and the not-found mapping.
*/
func TestRepository_FindByAccountID(t *testing.T) {
	mock, repository := newMockRepository(t)
	now := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

	mock.ExpectQuery(regexp.QuoteMeta("FROM links.connected_account WHERE accountid = $1")).
		WithArgs("acc-1").
		WillReturnRows(pgxmock.NewRows(accountRowColumns).
			AddRow("r1", "acc-1", "u1", "LINKEDIN", "OK", []byte(`{"id":"acc-1"}`), now, nil, now))
	mock.ExpectQuery(regexp.QuoteMeta("FROM links.connected_account WHERE accountid = $1")).
		WithArgs("missing").
		WillReturnError(pgx.ErrNoRows)

	account, err := repository.FindByAccountID(context.Background(), "acc-1")
	require.NoError(t, err)
	assert.Equal(t, "u1", account.UserID)
	assert.JSONEq(t, `{"id":"acc-1"}`, string(account.AccountData))
	assert.Nil(t, account.LastSync)

	_, err = repository.FindByAccountID(context.Background(), "missing")
	assert.True(t, apperr.HasCode(err, "NOT_FOUND"))

	assert.NoError(t, mock.ExpectationsWereMet())
}

/*
TestRepository_SetStatusMissing verifies NotFound when no row matches.
*/
func TestRepository_SetStatusMissing(t *testing.T) {
	mock, repository := newMockRepository(t)
	now := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

	mock.ExpectExec(regexp.QuoteMeta("UPDATE links.connected_account SET status = $2")).
		WithArgs("acc-9", accounts.StatusDisconnected, now).
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))

	err := repository.SetStatus(context.Background(), "acc-9", accounts.StatusDisconnected, now)
	assert.True(t, apperr.HasCode(err, "NOT_FOUND"))
	assert.NoError(t, mock.ExpectationsWereMet())
}

/*
TestRepository_Stats verifies the counter scan.
*/
func TestRepository_Stats(t *testing.T) {
	mock, repository := newMockRepository(t)

	mock.ExpectQuery(regexp.QuoteMeta("count(*) FILTER")).
		WithArgs(pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnRows(pgxmock.NewRows([]string{"total", "active", "pending"}).AddRow(4, 2, 1))

	stats, err := repository.Stats(context.Background(), "")
	require.NoError(t, err)
	assert.Equal(t, accounts.Stats{TotalAccounts: 4, ActiveAccounts: 2, PendingAccounts: 1}, *stats)
	assert.NoError(t, mock.ExpectationsWereMet())
}
