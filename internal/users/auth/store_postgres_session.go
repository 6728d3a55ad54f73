// Copyright (c) 2026 Unilink. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package auth

import (
	"context"
	"fmt"
	"time"

	"github.com/taibuivan/unilink/internal/platform/dberr"
	"github.com/taibuivan/unilink/internal/platform/postgres"
)

// # Session Repository

// PostgresSessionRepository implements [SessionRepository] on users.session.
type PostgresSessionRepository struct {
	db postgres.DB
}

// NewSessionRepository creates a new PostgreSQL implementation of the SessionRepository.
func NewSessionRepository(db postgres.DB) *PostgresSessionRepository {
	return &PostgresSessionRepository{db: db}
}

// Create records a new session.
func (repository *PostgresSessionRepository) Create(context context.Context, session *Session) error {
	const query = `
		INSERT INTO users.session (id, userid, tokenhash, useragent, ipaddress, createdat, expiresat, lastseenat)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $6)`

	_, err := repository.db.Exec(context, query,
		session.ID,
		session.UserID,
		session.TokenHash,
		session.UserAgent,
		session.IPAddress,
		session.CreatedAt,
		session.ExpiresAt,
	)
	if err != nil {
		return fmt.Errorf("postgres_session_repo_create_failed: %w", err)
	}
	return nil
}

// FindByTokenHash returns the session for a token hash, expired or not.
func (repository *PostgresSessionRepository) FindByTokenHash(context context.Context, tokenHash string) (*Session, error) {
	const query = `
		SELECT id, userid, tokenhash, useragent, ipaddress, createdat, expiresat, lastseenat
		FROM users.session
		WHERE tokenhash = $1`

	session := &Session{}
	err := repository.db.QueryRow(context, query, tokenHash).Scan(
		&session.ID,
		&session.UserID,
		&session.TokenHash,
		&session.UserAgent,
		&session.IPAddress,
		&session.CreatedAt,
		&session.ExpiresAt,
		&session.LastSeenAt,
	)
	if err != nil {
		return nil, dberr.Wrap(err, "Session")
	}
	return session, nil
}

// Touch records activity on a session.
func (repository *PostgresSessionRepository) Touch(context context.Context, sessionID string, at time.Time) error {
	if _, err := repository.db.Exec(context, `UPDATE users.session SET lastseenat = $2 WHERE id = $1`, sessionID, at); err != nil {
		return fmt.Errorf("postgres_session_repo_touch_failed: %w", err)
	}
	return nil
}

// DeleteByTokenHash removes one session. Deleting a missing session is not an error.
func (repository *PostgresSessionRepository) DeleteByTokenHash(context context.Context, tokenHash string) error {
	if _, err := repository.db.Exec(context, `DELETE FROM users.session WHERE tokenhash = $1`, tokenHash); err != nil {
		return fmt.Errorf("postgres_session_repo_delete_failed: %w", err)
	}
	return nil
}

// DeleteAllForUser removes every session belonging to userID.
func (repository *PostgresSessionRepository) DeleteAllForUser(context context.Context, userID string) (int64, error) {
	tag, err := repository.db.Exec(context, `DELETE FROM users.session WHERE userid = $1`, userID)
	if err != nil {
		return 0, fmt.Errorf("postgres_session_repo_delete_all_failed: %w", err)
	}
	return tag.RowsAffected(), nil
}

// DeleteOthersForUser removes every session of userID except keepSessionID.
func (repository *PostgresSessionRepository) DeleteOthersForUser(context context.Context, userID, keepSessionID string) (int64, error) {
	tag, err := repository.db.Exec(context, `DELETE FROM users.session WHERE userid = $1 AND id <> $2`, userID, keepSessionID)
	if err != nil {
		return 0, fmt.Errorf("postgres_session_repo_delete_others_failed: %w", err)
	}
	return tag.RowsAffected(), nil
}

// DeleteExpired removes sessions whose expiry is at or before now.
func (repository *PostgresSessionRepository) DeleteExpired(context context.Context, now time.Time) (int64, error) {
	tag, err := repository.db.Exec(context, `DELETE FROM users.session WHERE expiresat <= $1`, now)
	if err != nil {
		return 0, fmt.Errorf("postgres_session_repo_delete_expired_failed: %w", err)
	}
	return tag.RowsAffected(), nil
}
