// Copyright (c) 2026 Unilink. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package accounts

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/taibuivan/unilink/internal/platform/apperr"
	"github.com/taibuivan/unilink/internal/platform/dberr"
	"github.com/taibuivan/unilink/internal/platform/postgres"
)

// PostgresRepository implements [Repository] on links.connected_account.
type PostgresRepository struct {
	db postgres.DB
}

// NewRepository creates a new PostgreSQL implementation of the Repository.
func NewRepository(db postgres.DB) *PostgresRepository {
	return &PostgresRepository{db: db}
}

const accountColumns = `id, accountid, userid, provider, status, accountdata, connectedat, lastsync, updatedat`

func scanAccount(row pgx.Row) (*ConnectedAccount, error) {
	account := &ConnectedAccount{}
	var data []byte
	err := row.Scan(
		&account.ID,
		&account.AccountID,
		&account.UserID,
		&account.Provider,
		&account.Status,
		&data,
		&account.ConnectedAt,
		&account.LastSync,
		&account.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if len(data) > 0 {
		account.AccountData = json.RawMessage(data)
	}
	return account, nil
}

// ownerFilter maps "" to NULL so one statement serves users and admins.
func ownerFilter(userID string) *string {
	if userID == "" {
		return nil
	}
	return &userID
}

// FindByAccountID returns the local record for a vendor account id.
func (repository *PostgresRepository) FindByAccountID(context context.Context, accountID string) (*ConnectedAccount, error) {
	query := `SELECT ` + accountColumns + ` FROM links.connected_account WHERE accountid = $1`

	account, err := scanAccount(repository.db.QueryRow(context, query, accountID))
	if err != nil {
		return nil, dberr.Wrap(err, "Account")
	}
	return account, nil
}

/*
ApplyStatus upserts by vendor account id.

Description: The conditional DO UPDATE leaves the row untouched when the
status is unchanged, so replayed webhooks affect zero rows.
*/
func (repository *PostgresRepository) ApplyStatus(context context.Context, account *ConnectedAccount) (bool, error) {
	const query = `
		INSERT INTO links.connected_account (
			id, accountid, userid, provider, status, accountdata, connectedat, updatedat
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $7)
		ON CONFLICT (accountid) DO UPDATE
		SET status      = EXCLUDED.status,
		    accountdata = COALESCE(EXCLUDED.accountdata, links.connected_account.accountdata),
		    updatedat   = EXCLUDED.updatedat
		WHERE links.connected_account.status IS DISTINCT FROM EXCLUDED.status`

	tag, err := repository.db.Exec(context, query,
		account.ID,
		account.AccountID,
		account.UserID,
		account.Provider,
		account.Status,
		nullableJSON(account.AccountData),
		account.ConnectedAt,
	)
	if err != nil {
		return false, dberr.Wrap(err, "Account")
	}
	return tag.RowsAffected() > 0, nil
}

// Sync stores the vendor's current view of an account.
func (repository *PostgresRepository) Sync(context context.Context, accountID, status, provider string, data json.RawMessage, at time.Time) (*ConnectedAccount, error) {
	query := `
		UPDATE links.connected_account
		SET status      = $2,
		    provider    = COALESCE(NULLIF($3, ''), provider),
		    accountdata = COALESCE($4, accountdata),
		    lastsync    = $5,
		    updatedat   = $5
		WHERE accountid = $1
		RETURNING ` + accountColumns

	account, err := scanAccount(repository.db.QueryRow(context, query, accountID, status, provider, nullableJSON(data), at))
	if err != nil {
		return nil, dberr.Wrap(err, "Account")
	}
	return account, nil
}

// SetStatus overwrites the local status.
func (repository *PostgresRepository) SetStatus(context context.Context, accountID, status string, at time.Time) error {
	tag, err := repository.db.Exec(context, `
		UPDATE links.connected_account SET status = $2, updatedat = $3 WHERE accountid = $1`,
		accountID, status, at)
	if err != nil {
		return fmt.Errorf("postgres_account_repo_set_status_failed: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return apperr.NotFound("Account")
	}
	return nil
}

func (repository *PostgresRepository) list(context context.Context, userID string, limit int) ([]*ConnectedAccount, error) {
	query := `SELECT ` + accountColumns + `
		FROM links.connected_account
		WHERE ($1::uuid IS NULL OR userid = $1)
		ORDER BY connectedat DESC, id DESC
		LIMIT $2`

	rows, err := repository.db.Query(context, query, ownerFilter(userID), limit)
	if err != nil {
		return nil, fmt.Errorf("postgres_account_repo_list_failed: %w", err)
	}
	defer rows.Close()

	accounts := []*ConnectedAccount{}
	for rows.Next() {
		account, err := scanAccount(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres_account_repo_scan_failed: %w", err)
		}
		accounts = append(accounts, account)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres_account_repo_rows_failed: %w", err)
	}
	return accounts, nil
}

// maxListedAccounts bounds List; a user links a handful of accounts at most.
const maxListedAccounts = 500

// List returns accounts newest first.
func (repository *PostgresRepository) List(context context.Context, userID string) ([]*ConnectedAccount, error) {
	return repository.list(context, userID, maxListedAccounts)
}

// Recent returns the limit most recently connected accounts.
func (repository *PostgresRepository) Recent(context context.Context, userID string, limit int) ([]*ConnectedAccount, error) {
	return repository.list(context, userID, limit)
}

// Stats counts accounts by state.
func (repository *PostgresRepository) Stats(context context.Context, userID string) (*Stats, error) {
	const query = `
		SELECT count(*),
		       count(*) FILTER (WHERE status = ANY($2)),
		       count(*) FILTER (WHERE status = ANY($3))
		FROM links.connected_account
		WHERE ($1::uuid IS NULL OR userid = $1)`

	stats := &Stats{}
	err := repository.db.QueryRow(context, query, ownerFilter(userID), activeStatuses, pendingStatuses).
		Scan(&stats.TotalAccounts, &stats.ActiveAccounts, &stats.PendingAccounts)
	if err != nil {
		return nil, fmt.Errorf("postgres_account_repo_stats_failed: %w", err)
	}
	return stats, nil
}

func nullableJSON(data json.RawMessage) []byte {
	if len(data) == 0 {
		return nil
	}
	return data
}
