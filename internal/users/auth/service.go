// Copyright (c) 2026 Unilink. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package auth

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/taibuivan/unilink/internal/platform/apperr"
	"github.com/taibuivan/unilink/internal/platform/ctxutil"
	"github.com/taibuivan/unilink/internal/platform/sec"
	"github.com/taibuivan/unilink/internal/platform/validate"
	"github.com/taibuivan/unilink/pkg/uuid"
)

// # Contracts & Types

// TokenProvider signs and verifies bearer API tokens.
type TokenProvider interface {
	GenerateAccessToken(userID, username, role string, epoch int64, timeToLive time.Duration) (string, time.Time, error)
	VerifyToken(tokenString string) (*sec.AuthClaims, error)
}

// errInvalidCredentials is shared by every login failure so callers cannot
// distinguish an unknown account from a wrong password or a disabled one.
var errInvalidCredentials = apperr.Unauthorized("Invalid username or password")

// errInvalidBearer covers malformed, expired, and orphaned API tokens.
var errInvalidBearer = apperr.Unauthorized("Invalid or expired token")

// Service implements the account use cases around credentials and sessions.
type Service struct {
	users    UserRepository
	sessions *SessionManager
	tokens   TokenProvider

	// dummyHash is compared against when the account does not exist, so the
	// response time of a failed login does not reveal whether it does.
	dummyHash string
}

// NewService constructs a new [Service] with necessary dependencies.
func NewService(users UserRepository, sessions *SessionManager, tokens TokenProvider) (*Service, error) {
	dummyHash, err := sec.HashPassword("unilink-timing-equalizer")
	if err != nil {
		return nil, fmt.Errorf("auth_service_init_failed: %w", err)
	}

	return &Service{
		users:     users,
		sessions:  sessions,
		tokens:    tokens,
		dummyHash: dummyHash,
	}, nil
}

// Sessions exposes the session manager to collaborators (admin, CLI).
func (service *Service) Sessions() *SessionManager {
	return service.sessions
}

// # Registration Flow

// RegisterInput holds the data required to create an account.
type RegisterInput struct {
	Username        string
	Email           string
	Password        string
	ConfirmPassword string
	FullName        string
}

/*
Register validates, hashes, and persists a new account with the user role.

Parameters:
  - context: context.Context
  - input: RegisterInput

Returns:
  - *User: Created entity
  - error: ValidationError, Conflict (identity exists), or storage errors
*/
func (service *Service) Register(context context.Context, input RegisterInput) (*User, error) {
	input.Username = strings.TrimSpace(input.Username)
	input.FullName = strings.TrimSpace(input.FullName)
	email := NormalizeEmail(input.Email)

	validator := &validate.Validator{}
	CheckUsername(validator, input.Username)
	validator.Required(FieldEmail, email).Email(FieldEmail, email)
	CheckPassword(validator, FieldPassword, input.Password).
		Matches(FieldConfirmPassword, input.ConfirmPassword, input.Password, "Passwords do not match").
		MaxLen(FieldFullName, input.FullName, MaxFullNameLength)

	if err := validator.Err(); err != nil {
		return nil, err
	}

	return service.createUser(context, &User{
		Username: input.Username,
		Email:    email,
		FullName: input.FullName,
		Role:     sec.RoleUser,
		IsActive: true,
	}, input.Password)
}

// CreateUser persists an account whose fields were already validated (admin, CLI).
func (service *Service) CreateUser(context context.Context, user *User, password string) (*User, error) {
	user.Email = NormalizeEmail(user.Email)
	return service.createUser(context, user, password)
}

func (service *Service) createUser(context context.Context, user *User, password string) (*User, error) {

	// Friendly pre-checks; the unique indexes still decide under races.
	if _, err := service.users.FindByEmail(context, user.Email); err == nil {
		return nil, apperr.Conflict("Email is already registered")
	} else if !apperr.HasCode(err, "NOT_FOUND") {
		return nil, fmt.Errorf("auth_service_email_check_failed: %w", err)
	}

	if _, err := service.users.FindByUsername(context, user.Username); err == nil {
		return nil, apperr.Conflict("Username is already taken")
	} else if !apperr.HasCode(err, "NOT_FOUND") {
		return nil, fmt.Errorf("auth_service_username_check_failed: %w", err)
	}

	hashedPassword, err := sec.HashPassword(password)
	if err != nil {
		return nil, fmt.Errorf("auth_service_hash_failed: %w", err)
	}

	user.ID = uuid.New()
	user.PasswordHash = hashedPassword

	if err := service.users.Create(context, user); err != nil {
		if apperr.IsAppError(err) {
			return nil, err
		}
		return nil, fmt.Errorf("auth_service_register_failed: %w", err)
	}

	ctxutil.GetLogger(context).InfoContext(context, "user_registered",
		slog.String("user_id", user.ID),
		slog.String("role", string(user.Role)),
	)
	return user, nil
}

// # Authentication Flow

// LoginInput defines credentials for an authentication attempt.
type LoginInput struct {
	Login    string // Username or email
	Password string
	Meta     ClientMeta
}

// LoginResult is a successfully established session.
type LoginResult struct {
	Token     string
	ExpiresAt time.Time
	User      *User
}

/*
Login verifies credentials and opens a session.

Description: Unknown accounts, wrong passwords, and inactive accounts all
yield the same 401. A bcrypt comparison runs on every path.

Returns:
  - *LoginResult: Raw session token and owner
  - error: Unauthorized or internal failures
*/
func (service *Service) Login(context context.Context, input LoginInput) (*LoginResult, error) {
	validator := &validate.Validator{}
	validator.Required(FieldLogin, input.Login).Required(FieldPassword, input.Password)
	if err := validator.Err(); err != nil {
		return nil, err
	}

	user, err := service.users.FindByLogin(context, strings.TrimSpace(input.Login))
	if err != nil {
		if !apperr.HasCode(err, "NOT_FOUND") {
			return nil, fmt.Errorf("auth_service_login_lookup_failed: %w", err)
		}
		sec.CheckPasswordHash(input.Password, service.dummyHash)
		return nil, errInvalidCredentials
	}

	if !sec.CheckPasswordHash(input.Password, user.PasswordHash) || !user.IsActive {
		return nil, errInvalidCredentials
	}

	token, expiresAt, err := service.sessions.Create(context, user.ID, input.Meta)
	if err != nil {
		return nil, err
	}

	return &LoginResult{Token: token, ExpiresAt: expiresAt, User: user}, nil
}

// Logout destroys the session behind token. Unknown tokens are ignored.
func (service *Service) Logout(context context.Context, token string) error {
	return service.sessions.Destroy(context, token)
}

// AuthenticateSession resolves a session cookie to a principal.
func (service *Service) AuthenticateSession(context context.Context, token string) (*sec.Principal, error) {
	user, session, err := service.sessions.Validate(context, token)
	if err != nil {
		return nil, err
	}
	return user.Principal(session.ID), nil
}

// AuthenticateBearer resolves an API token to a principal, reloading the user
// so deactivation and password changes take effect before the token expires.
func (service *Service) AuthenticateBearer(context context.Context, token string) (*sec.Principal, error) {
	claims, err := service.tokens.VerifyToken(token)
	if err != nil {
		return nil, errInvalidBearer
	}

	user, err := service.users.FindByID(context, claims.UserID)
	if err != nil {
		if apperr.HasCode(err, "NOT_FOUND") {
			return nil, errInvalidBearer
		}
		return nil, fmt.Errorf("auth_service_bearer_lookup_failed: %w", err)
	}

	if !user.IsActive || claims.Epoch != user.CredentialEpoch() {
		return nil, errInvalidBearer
	}
	return user.Principal(""), nil
}

// APIToken is a bearer credential for programmatic clients.
type APIToken struct {
	AccessToken string    `json:"access_token"`
	TokenType   string    `json:"token_type"`
	ExpiresAt   time.Time `json:"expires_at"`
}

// IssueAPIToken signs a bearer token for the calling principal under the
// account's current credential epoch.
func (service *Service) IssueAPIToken(context context.Context, principal *sec.Principal) (*APIToken, error) {
	user, err := service.users.FindByID(context, principal.UserID)
	if err != nil {
		if apperr.HasCode(err, "NOT_FOUND") {
			return nil, errInvalidBearer
		}
		return nil, fmt.Errorf("auth_service_token_user_lookup_failed: %w", err)
	}
	if !user.IsActive {
		return nil, errInvalidBearer
	}

	token, expiresAt, err := service.tokens.GenerateAccessToken(user.ID, user.Username, string(user.Role), user.CredentialEpoch(), APITokenTTL)
	if err != nil {
		return nil, fmt.Errorf("auth_service_token_generation_failed: %w", err)
	}
	return &APIToken{AccessToken: token, TokenType: "Bearer", ExpiresAt: expiresAt}, nil
}

// # Profile

// Profile returns the caller's account.
func (service *Service) Profile(context context.Context, userID string) (*User, error) {
	return service.users.FindByID(context, userID)
}

// ProfileInput holds the self-service profile fields.
type ProfileInput struct {
	Email    string
	FullName string
}

// UpdateProfile changes the caller's email and full name.
func (service *Service) UpdateProfile(context context.Context, userID string, input ProfileInput) (*User, error) {
	email := NormalizeEmail(input.Email)
	fullName := strings.TrimSpace(input.FullName)

	validator := &validate.Validator{}
	validator.Required(FieldEmail, email).
		Email(FieldEmail, email).
		MaxLen(FieldFullName, fullName, MaxFullNameLength)
	if err := validator.Err(); err != nil {
		return nil, err
	}

	if existing, err := service.users.FindByEmail(context, email); err == nil && existing.ID != userID {
		return nil, apperr.Conflict("Email is already registered")
	} else if err != nil && !apperr.HasCode(err, "NOT_FOUND") {
		return nil, fmt.Errorf("auth_service_profile_email_check_failed: %w", err)
	}

	return service.users.UpdateProfile(context, userID, email, fullName)
}

// ChangePasswordInput holds a self-service password change.
type ChangePasswordInput struct {
	CurrentPassword string
	NewPassword     string
	ConfirmPassword string
}

/*
ChangePassword verifies the current password, stores the new one, and ends
every other session of the caller.

Parameters:
  - context: context.Context
  - principal: *sec.Principal (SessionID is kept alive when set)
  - input: ChangePasswordInput

Returns:
  - error: ValidationError, Unauthorized (wrong current password), or storage failures
*/
func (service *Service) ChangePassword(context context.Context, principal *sec.Principal, input ChangePasswordInput) error {
	validator := &validate.Validator{}
	validator.Required(FieldCurrentPassword, input.CurrentPassword)
	CheckPassword(validator, FieldNewPassword, input.NewPassword).
		Matches(FieldConfirmPassword, input.ConfirmPassword, input.NewPassword, "Passwords do not match")
	if err := validator.Err(); err != nil {
		return err
	}

	user, err := service.users.FindByID(context, principal.UserID)
	if err != nil {
		return err
	}

	if !sec.CheckPasswordHash(input.CurrentPassword, user.PasswordHash) {
		return apperr.Unauthorized("Current password is incorrect")
	}

	hashedPassword, err := sec.HashPassword(input.NewPassword)
	if err != nil {
		return fmt.Errorf("auth_service_change_password_hash_failed: %w", err)
	}

	if err := service.users.UpdatePassword(context, user.ID, hashedPassword); err != nil {
		return fmt.Errorf("auth_service_change_password_update_failed: %w", err)
	}

	removed, err := service.sessions.DestroyOthers(context, user.ID, principal.SessionID)
	if err != nil {
		return err
	}

	ctxutil.GetLogger(context).InfoContext(context, "password_changed",
		slog.String("user_id", user.ID),
		slog.Int64("sessions_revoked", removed),
	)
	return nil
}
