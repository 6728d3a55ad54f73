// Copyright (c) 2026 Unilink. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package recovery

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/taibuivan/unilink/internal/platform/apperr"
	"github.com/taibuivan/unilink/internal/platform/dberr"
	"github.com/taibuivan/unilink/internal/platform/postgres"
)

// # Token Repository

// PostgresTokenRepository implements [TokenRepository] on users.password_reset.
type PostgresTokenRepository struct {
	db postgres.DB
}

// NewTokenRepository creates a new PostgreSQL implementation of the TokenRepository.
func NewTokenRepository(db postgres.DB) *PostgresTokenRepository {
	return &PostgresTokenRepository{db: db}
}

// lockOwner takes the per-user lock both issue and redeem serialize on.
func lockOwner(context context.Context, tx pgx.Tx, userID string) (bool, error) {
	var active bool
	err := tx.QueryRow(context, `
		SELECT isactive FROM users.account
		WHERE id = $1 AND deletedat IS NULL
		FOR UPDATE`, userID).Scan(&active)
	if errors.Is(err, pgx.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("postgres_reset_repo_lock_owner_failed: %w", err)
	}
	return active, nil
}

/*
Issue persists a new token for its owner.

Description: Runs in one transaction holding the owner's row lock: revoke
every unused, unrevoked token, then insert the new one.
*/
func (repository *PostgresTokenRepository) Issue(context context.Context, token *ResetToken) error {
	return postgres.InTx(context, repository.db, func(tx pgx.Tx) error {
		active, err := lockOwner(context, tx, token.UserID)
		if err != nil {
			return err
		}
		if !active {
			return apperr.NotFound("User")
		}

		if _, err := tx.Exec(context, `
			UPDATE users.password_reset
			SET revokedat = $2
			WHERE userid = $1 AND usedat IS NULL AND revokedat IS NULL`,
			token.UserID, token.CreatedAt); err != nil {
			return fmt.Errorf("postgres_reset_repo_revoke_failed: %w", err)
		}

		if _, err := tx.Exec(context, `
			INSERT INTO users.password_reset (id, userid, tokenhash, createdat, expiresat)
			VALUES ($1, $2, $3, $4, $5)`,
			token.ID, token.UserID, token.TokenHash, token.CreatedAt, token.ExpiresAt); err != nil {
			return fmt.Errorf("postgres_reset_repo_insert_failed: %w", err)
		}
		return nil
	})
}

const tokenColumns = `id, userid, tokenhash, createdat, expiresat, usedat, revokedat`

func scanToken(row pgx.Row) (*ResetToken, error) {
	token := &ResetToken{}
	err := row.Scan(
		&token.ID,
		&token.UserID,
		&token.TokenHash,
		&token.CreatedAt,
		&token.ExpiresAt,
		&token.UsedAt,
		&token.RevokedAt,
	)
	if err != nil {
		return nil, err
	}
	return token, nil
}

// FindByHash returns a token by digest.
func (repository *PostgresTokenRepository) FindByHash(context context.Context, tokenHash string) (*ResetToken, error) {
	query := `SELECT ` + tokenColumns + ` FROM users.password_reset WHERE tokenhash = $1`

	token, err := scanToken(repository.db.QueryRow(context, query, tokenHash))
	if err != nil {
		return nil, dberr.Wrap(err, "Reset token")
	}
	return token, nil
}

/*
Redeem consumes a token and applies the new password hash.

Description: The owner row is locked before the token row, the same order
[PostgresTokenRepository.Issue] uses, so the two never deadlock. Usability is
re-checked under the lock.
*/
func (repository *PostgresTokenRepository) Redeem(context context.Context, tokenHash, passwordHash string, now time.Time) (string, error) {
	var userID string

	err := postgres.InTx(context, repository.db, func(tx pgx.Tx) error {
		if err := tx.QueryRow(context,
			`SELECT userid FROM users.password_reset WHERE tokenhash = $1`, tokenHash).Scan(&userID); err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return ErrInvalidOrExpired
			}
			return fmt.Errorf("postgres_reset_repo_lookup_failed: %w", err)
		}

		active, err := lockOwner(context, tx, userID)
		if err != nil {
			return err
		}
		if !active {
			return ErrInvalidOrExpired
		}

		token, err := scanToken(tx.QueryRow(context,
			`SELECT `+tokenColumns+` FROM users.password_reset WHERE tokenhash = $1 FOR UPDATE`, tokenHash))
		if err != nil {
			return fmt.Errorf("postgres_reset_repo_relock_failed: %w", err)
		}
		if !token.Usable(now) {
			return ErrInvalidOrExpired
		}

		if _, err := tx.Exec(context, `
			UPDATE users.account SET passwordhash = $2, passwordchangedat = $3, updatedat = $3 WHERE id = $1`,
			userID, passwordHash, now); err != nil {
			return fmt.Errorf("postgres_reset_repo_password_failed: %w", err)
		}

		if _, err := tx.Exec(context,
			`UPDATE users.password_reset SET usedat = $2 WHERE id = $1`, token.ID, now); err != nil {
			return fmt.Errorf("postgres_reset_repo_mark_used_failed: %w", err)
		}

		if _, err := tx.Exec(context, `
			UPDATE users.password_reset
			SET revokedat = $2
			WHERE userid = $1 AND id <> $3 AND usedat IS NULL AND revokedat IS NULL`,
			userID, now, token.ID); err != nil {
			return fmt.Errorf("postgres_reset_repo_revoke_others_failed: %w", err)
		}

		if _, err := tx.Exec(context, `DELETE FROM users.session WHERE userid = $1`, userID); err != nil {
			return fmt.Errorf("postgres_reset_repo_sessions_failed: %w", err)
		}
		return nil
	})
	if err != nil {
		return "", err
	}
	return userID, nil
}

// PurgeStale removes tokens past their expiry.
func (repository *PostgresTokenRepository) PurgeStale(context context.Context, now time.Time) (int64, error) {
	tag, err := repository.db.Exec(context, `DELETE FROM users.password_reset WHERE expiresat <= $1`, now)
	if err != nil {
		return 0, fmt.Errorf("postgres_reset_repo_purge_failed: %w", err)
	}
	return tag.RowsAffected(), nil
}
