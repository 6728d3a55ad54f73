// Copyright (c) 2026 Unilink. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package auth

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/taibuivan/unilink/internal/platform/apperr"
	"github.com/taibuivan/unilink/internal/platform/dberr"
	"github.com/taibuivan/unilink/internal/platform/postgres"
	"github.com/taibuivan/unilink/pkg/pagination"
)

// Unique index names from the users.account migration.
const (
	constraintUsername = "account_username_key"
	constraintEmail    = "account_email_key"
)

const userColumns = `id, username, email, passwordhash, COALESCE(fullname, ''), role, isactive, createdat, updatedat, passwordchangedat`

// revokeResetTokens retires every outstanding reset link of one account.
const revokeResetTokens = `
	UPDATE users.password_reset
	SET revokedat = now()
	WHERE userid = $1 AND usedat IS NULL AND revokedat IS NULL`

// # User Repository

// PostgresUserRepository implements [UserRepository] using pgx.
type PostgresUserRepository struct {
	db postgres.DB
}

// NewUserRepository creates a new PostgreSQL implementation of the UserRepository.
func NewUserRepository(db postgres.DB) *PostgresUserRepository {
	return &PostgresUserRepository{db: db}
}

func scanUser(row pgx.Row) (*User, error) {
	user := &User{}
	err := row.Scan(
		&user.ID,
		&user.Username,
		&user.Email,
		&user.PasswordHash,
		&user.FullName,
		&user.Role,
		&user.IsActive,
		&user.CreatedAt,
		&user.UpdatedAt,
		&user.PasswordChangedAt,
	)
	if err != nil {
		return nil, err
	}
	return user, nil
}

// uniqueConflict translates an account unique-index violation into a client-safe Conflict.
func uniqueConflict(err error) error {
	switch {
	case dberr.IsUniqueViolation(err, constraintEmail):
		return apperr.Conflict("Email is already registered")
	case dberr.IsUniqueViolation(err, constraintUsername):
		return apperr.Conflict("Username is already taken")
	}
	return nil
}

/*
Create persists a new user record into the users.account table.

Parameters:
  - context: context.Context
  - user: *User (Entity to persist)

Returns:
  - error: Conflict on duplicate identity, or connectivity errors
*/
func (repository *PostgresUserRepository) Create(context context.Context, user *User) error {
	const query = `
		INSERT INTO users.account (
			id, username, email, passwordhash, fullname, role, isactive, createdat, updatedat, passwordchangedat
		) VALUES ($1, $2, $3, $4, NULLIF($5, ''), $6, $7, $8, $8, $8)`

	if user.CreatedAt.IsZero() {
		user.CreatedAt = time.Now().UTC()
	}
	user.UpdatedAt = user.CreatedAt
	user.PasswordChangedAt = user.CreatedAt

	_, err := repository.db.Exec(context, query,
		user.ID,
		user.Username,
		user.Email,
		user.PasswordHash,
		user.FullName,
		string(user.Role),
		user.IsActive,
		user.CreatedAt,
	)
	if err != nil {
		if conflict := uniqueConflict(err); conflict != nil {
			return conflict
		}
		return fmt.Errorf("postgres_user_repo_create_failed: %w", err)
	}

	return nil
}

func (repository *PostgresUserRepository) findOne(context context.Context, where string, arg any) (*User, error) {
	query := `SELECT ` + userColumns + ` FROM users.account WHERE ` + where + ` AND deletedat IS NULL`

	user, err := scanUser(repository.db.QueryRow(context, query, arg))
	if err != nil {
		return nil, dberr.Wrap(err, "User")
	}
	return user, nil
}

// FindByID retrieves a user record by primary key.
func (repository *PostgresUserRepository) FindByID(context context.Context, id string) (*User, error) {
	return repository.findOne(context, `id = $1`, id)
}

// FindByEmail retrieves a user record by normalized email.
func (repository *PostgresUserRepository) FindByEmail(context context.Context, email string) (*User, error) {
	return repository.findOne(context, `email = $1`, NormalizeEmail(email))
}

// FindByUsername retrieves a user record by username, ignoring case.
func (repository *PostgresUserRepository) FindByUsername(context context.Context, username string) (*User, error) {
	return repository.findOne(context, `lower(username) = lower($1)`, strings.TrimSpace(username))
}

// FindByLogin resolves a username or an email. Usernames cannot contain '@'.
func (repository *PostgresUserRepository) FindByLogin(context context.Context, identifier string) (*User, error) {
	if strings.Contains(identifier, "@") {
		return repository.FindByEmail(context, identifier)
	}
	return repository.FindByUsername(context, identifier)
}

/*
UpdatePassword replaces the password hash and advances the credential epoch.

Description: Outstanding reset tokens are revoked in the same transaction so a
link mailed before the change cannot overwrite the new password.
*/
func (repository *PostgresUserRepository) UpdatePassword(context context.Context, userID, passwordHash string) error {
	return postgres.InTx(context, repository.db, func(tx pgx.Tx) error {
		tag, err := tx.Exec(context, `
			UPDATE users.account
			SET passwordhash = $2, passwordchangedat = now(), updatedat = now()
			WHERE id = $1 AND deletedat IS NULL`, userID, passwordHash)
		if err != nil {
			return fmt.Errorf("postgres_user_repo_update_password_failed: %w", err)
		}
		if tag.RowsAffected() == 0 {
			return apperr.NotFound("User")
		}

		if _, err := tx.Exec(context, revokeResetTokens, userID); err != nil {
			return fmt.Errorf("postgres_user_repo_update_password_resets_failed: %w", err)
		}
		return nil
	})
}

/*
UpdateProfile persists the self-service profile fields.

Parameters:
  - context: context.Context
  - userID: string
  - email: string (normalized)
  - fullName: string (empty clears it)

Returns:
  - *User: The updated row
  - error: Conflict if the email belongs to another account
*/
func (repository *PostgresUserRepository) UpdateProfile(context context.Context, userID, email, fullName string) (*User, error) {
	query := `
		UPDATE users.account
		SET email = $2, fullname = NULLIF($3, ''), updatedat = now()
		WHERE id = $1 AND deletedat IS NULL
		RETURNING ` + userColumns

	user, err := scanUser(repository.db.QueryRow(context, query, userID, email, fullName))
	if err != nil {
		if conflict := uniqueConflict(err); conflict != nil {
			return nil, conflict
		}
		return nil, dberr.Wrap(err, "User")
	}
	return user, nil
}

/*
UpdateAdmin applies the non-nil fields of change in a single statement.

Description: A replaced password advances the credential epoch and revokes the
account's outstanding reset tokens within the same transaction.
*/
func (repository *PostgresUserRepository) UpdateAdmin(context context.Context, userID string, change AdminChange) (*User, error) {
	query := `
		UPDATE users.account
		SET email             = COALESCE($2::text, email),
		    fullname          = CASE WHEN $3::text IS NULL THEN fullname ELSE NULLIF($3, '') END,
		    role              = COALESCE($4::text, role),
		    isactive          = COALESCE($5::boolean, isactive),
		    passwordhash      = COALESCE($6::text, passwordhash),
		    passwordchangedat = CASE WHEN $6::text IS NULL THEN passwordchangedat ELSE now() END,
		    updatedat         = now()
		WHERE id = $1 AND deletedat IS NULL
		RETURNING ` + userColumns

	var role *string
	if change.Role != nil {
		value := string(*change.Role)
		role = &value
	}

	var user *User
	err := postgres.InTx(context, repository.db, func(tx pgx.Tx) error {
		var err error
		user, err = scanUser(tx.QueryRow(context, query,
			userID,
			change.Email,
			change.FullName,
			role,
			change.IsActive,
			change.PasswordHash,
		))
		if err != nil {
			if conflict := uniqueConflict(err); conflict != nil {
				return conflict
			}
			return dberr.Wrap(err, "User")
		}

		if change.PasswordHash == nil {
			return nil
		}
		if _, err := tx.Exec(context, revokeResetTokens, userID); err != nil {
			return fmt.Errorf("postgres_user_repo_update_admin_resets_failed: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return user, nil
}

// SetActive toggles the account's active flag.
func (repository *PostgresUserRepository) SetActive(context context.Context, userID string, active bool) error {
	const query = `
		UPDATE users.account
		SET isactive = $2, updatedat = now()
		WHERE id = $1 AND deletedat IS NULL`

	tag, err := repository.db.Exec(context, query, userID, active)
	if err != nil {
		return fmt.Errorf("postgres_user_repo_set_active_failed: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return apperr.NotFound("User")
	}
	return nil
}

/*
SoftDelete marks the account as deleted and drops its credentials.

Description: The account row is kept for audit, but its sessions are removed
and its outstanding reset tokens revoked in the same transaction.
*/
func (repository *PostgresUserRepository) SoftDelete(context context.Context, userID string) error {
	return postgres.InTx(context, repository.db, func(tx pgx.Tx) error {
		tag, err := tx.Exec(context, `
			UPDATE users.account
			SET deletedat = now(), isactive = false, updatedat = now()
			WHERE id = $1 AND deletedat IS NULL`, userID)
		if err != nil {
			return fmt.Errorf("postgres_user_repo_soft_delete_failed: %w", err)
		}
		if tag.RowsAffected() == 0 {
			return apperr.NotFound("User")
		}

		if _, err := tx.Exec(context, `DELETE FROM users.session WHERE userid = $1`, userID); err != nil {
			return fmt.Errorf("postgres_user_repo_soft_delete_sessions_failed: %w", err)
		}

		if _, err := tx.Exec(context, revokeResetTokens, userID); err != nil {
			return fmt.Errorf("postgres_user_repo_soft_delete_resets_failed: %w", err)
		}
		return nil
	})
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

const userFilterClause = `
	deletedat IS NULL
	AND ($1 = '' OR username ILIKE $1 OR email ILIKE $1 OR fullname ILIKE $1)
	AND ($2::boolean IS NULL OR isactive = $2)`

func filterArgs(filter UserFilter) (string, *bool) {
	pattern := ""
	if search := strings.TrimSpace(filter.Search); search != "" {
		pattern = "%" + likeEscaper.Replace(search) + "%"
	}
	return pattern, filter.Active
}

// List returns a page of accounts, newest first.
func (repository *PostgresUserRepository) List(context context.Context, filter UserFilter, page pagination.Params) ([]*User, error) {
	query := `SELECT ` + userColumns + ` FROM users.account WHERE ` + userFilterClause + `
		ORDER BY createdat DESC, id DESC
		LIMIT $3 OFFSET $4`

	pattern, active := filterArgs(filter)
	rows, err := repository.db.Query(context, query, pattern, active, page.Limit, page.Offset())
	if err != nil {
		return nil, fmt.Errorf("postgres_user_repo_list_failed: %w", err)
	}
	defer rows.Close()

	users := make([]*User, 0, page.Limit)
	for rows.Next() {
		user, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres_user_repo_list_scan_failed: %w", err)
		}
		users = append(users, user)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres_user_repo_list_rows_failed: %w", err)
	}
	return users, nil
}

// Count returns how many accounts match filter.
func (repository *PostgresUserRepository) Count(context context.Context, filter UserFilter) (int, error) {
	query := `SELECT count(*) FROM users.account WHERE ` + userFilterClause

	pattern, active := filterArgs(filter)

	var total int
	if err := repository.db.QueryRow(context, query, pattern, active).Scan(&total); err != nil {
		return 0, fmt.Errorf("postgres_user_repo_count_failed: %w", err)
	}
	return total, nil
}
