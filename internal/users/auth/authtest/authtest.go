// Copyright (c) 2026 Unilink. All rights reserved.
// Author: tai.buivan.jp@gmail.com

// Package authtest provides in-memory implementations of the auth repositories
// for service and handler tests.
package authtest

import (
	"context"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/taibuivan/unilink/internal/platform/apperr"
	"github.com/taibuivan/unilink/internal/platform/sec"
	"github.com/taibuivan/unilink/internal/users/auth"
	"github.com/taibuivan/unilink/pkg/pagination"
	"github.com/taibuivan/unilink/pkg/uuid"
)

// # Users

// UserStore is a map-backed [auth.UserRepository].
type UserStore struct {
	mu      sync.Mutex
	users   map[string]*auth.User
	deleted map[string]bool

	// OnSoftDelete, when set, runs after a successful SoftDelete.
	OnSoftDelete func(userID string)

	// OnPasswordChange, when set, runs after UpdatePassword or an UpdateAdmin
	// that replaced the password. The postgres store revokes reset tokens here.
	OnPasswordChange func(userID string)
}

var _ auth.UserRepository = (*UserStore)(nil)

// NewUserStore returns an empty store.
func NewUserStore() *UserStore {
	return &UserStore{users: map[string]*auth.User{}, deleted: map[string]bool{}}
}

// Seed inserts a user with the given password and returns it.
func (store *UserStore) Seed(username, email, password string, role sec.UserRole) *auth.User {
	hash, err := sec.HashPassword(password)
	if err != nil {
		panic(err)
	}

	user := &auth.User{
		ID:           uuid.New(),
		Username:     username,
		Email:        auth.NormalizeEmail(email),
		PasswordHash: hash,
		Role:         role,
		IsActive:     true,
		CreatedAt:    time.Now().UTC(),
		UpdatedAt:    time.Now().UTC(),
	}
	if err := store.Create(context.Background(), user); err != nil {
		panic(err)
	}
	return user
}

// Get returns a copy of the stored user, including soft-deleted ones.
func (store *UserStore) Get(id string) (*auth.User, bool) {
	store.mu.Lock()
	defer store.mu.Unlock()

	user, ok := store.users[id]
	if !ok {
		return nil, false
	}
	clone := *user
	return &clone, true
}

func (store *UserStore) live(id string) (*auth.User, bool) {
	user, ok := store.users[id]
	if !ok || store.deleted[id] {
		return nil, false
	}
	return user, true
}

func (store *UserStore) Create(_ context.Context, user *auth.User) error {
	store.mu.Lock()
	defer store.mu.Unlock()

	for id, existing := range store.users {
		if store.deleted[id] {
			continue
		}
		if existing.Email == user.Email {
			return apperr.Conflict("Email is already registered")
		}
		if strings.EqualFold(existing.Username, user.Username) {
			return apperr.Conflict("Username is already taken")
		}
	}

	if user.CreatedAt.IsZero() {
		user.CreatedAt = time.Now().UTC()
	}
	user.UpdatedAt = user.CreatedAt
	if user.PasswordChangedAt.IsZero() {
		user.PasswordChangedAt = user.CreatedAt
	}
	clone := *user
	store.users[user.ID] = &clone
	return nil
}

func (store *UserStore) FindByID(_ context.Context, id string) (*auth.User, error) {
	store.mu.Lock()
	defer store.mu.Unlock()

	user, ok := store.live(id)
	if !ok {
		return nil, apperr.NotFound("User")
	}
	clone := *user
	return &clone, nil
}

func (store *UserStore) find(match func(*auth.User) bool) (*auth.User, error) {
	store.mu.Lock()
	defer store.mu.Unlock()

	for id, user := range store.users {
		if !store.deleted[id] && match(user) {
			clone := *user
			return &clone, nil
		}
	}
	return nil, apperr.NotFound("User")
}

func (store *UserStore) FindByEmail(_ context.Context, email string) (*auth.User, error) {
	normalized := auth.NormalizeEmail(email)
	return store.find(func(user *auth.User) bool { return user.Email == normalized })
}

func (store *UserStore) FindByUsername(_ context.Context, username string) (*auth.User, error) {
	trimmed := strings.TrimSpace(username)
	return store.find(func(user *auth.User) bool { return strings.EqualFold(user.Username, trimmed) })
}

func (store *UserStore) FindByLogin(ctx context.Context, identifier string) (*auth.User, error) {
	if strings.Contains(identifier, "@") {
		return store.FindByEmail(ctx, identifier)
	}
	return store.FindByUsername(ctx, identifier)
}

func (store *UserStore) mutate(id string, apply func(*auth.User) error) (*auth.User, error) {
	store.mu.Lock()
	defer store.mu.Unlock()

	user, ok := store.live(id)
	if !ok {
		return nil, apperr.NotFound("User")
	}
	if err := apply(user); err != nil {
		return nil, err
	}
	user.UpdatedAt = time.Now().UTC()
	clone := *user
	return &clone, nil
}

// bumpEpoch advances the credential epoch by at least one microsecond.
func bumpEpoch(user *auth.User) {
	next := time.Now().UTC()
	if floor := user.PasswordChangedAt.Add(time.Microsecond); next.Before(floor) {
		next = floor
	}
	user.PasswordChangedAt = next
}

func (store *UserStore) passwordChanged(userID string) {
	store.mu.Lock()
	hook := store.OnPasswordChange
	store.mu.Unlock()

	if hook != nil {
		hook(userID)
	}
}

func (store *UserStore) emailTaken(email, exceptID string) bool {
	for id, user := range store.users {
		if id != exceptID && !store.deleted[id] && user.Email == email {
			return true
		}
	}
	return false
}

func (store *UserStore) UpdatePassword(_ context.Context, userID, passwordHash string) error {
	_, err := store.mutate(userID, func(user *auth.User) error {
		user.PasswordHash = passwordHash
		bumpEpoch(user)
		return nil
	})
	if err != nil {
		return err
	}
	store.passwordChanged(userID)
	return nil
}

func (store *UserStore) UpdateProfile(_ context.Context, userID, email, fullName string) (*auth.User, error) {
	return store.mutate(userID, func(user *auth.User) error {
		if store.emailTaken(email, userID) {
			return apperr.Conflict("Email is already registered")
		}
		user.Email = email
		user.FullName = fullName
		return nil
	})
}

func (store *UserStore) UpdateAdmin(_ context.Context, userID string, change auth.AdminChange) (*auth.User, error) {
	updated, err := store.mutate(userID, func(user *auth.User) error {
		if change.Email != nil {
			if store.emailTaken(*change.Email, userID) {
				return apperr.Conflict("Email is already registered")
			}
			user.Email = *change.Email
		}
		if change.FullName != nil {
			user.FullName = *change.FullName
		}
		if change.Role != nil {
			user.Role = *change.Role
		}
		if change.IsActive != nil {
			user.IsActive = *change.IsActive
		}
		if change.PasswordHash != nil {
			user.PasswordHash = *change.PasswordHash
			bumpEpoch(user)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	if change.PasswordHash != nil {
		store.passwordChanged(userID)
	}
	return updated, nil
}

func (store *UserStore) SetActive(_ context.Context, userID string, active bool) error {
	_, err := store.mutate(userID, func(user *auth.User) error {
		user.IsActive = active
		return nil
	})
	return err
}

func (store *UserStore) SoftDelete(_ context.Context, userID string) error {
	store.mu.Lock()
	user, ok := store.live(userID)
	if ok {
		user.IsActive = false
		store.deleted[userID] = true
	}
	hook := store.OnSoftDelete
	store.mu.Unlock()

	if !ok {
		return apperr.NotFound("User")
	}
	if hook != nil {
		hook(userID)
	}
	return nil
}

func (store *UserStore) filtered(filter auth.UserFilter) []*auth.User {
	search := strings.ToLower(strings.TrimSpace(filter.Search))

	var result []*auth.User
	for id, user := range store.users {
		if store.deleted[id] {
			continue
		}
		if filter.Active != nil && user.IsActive != *filter.Active {
			continue
		}
		if search != "" &&
			!strings.Contains(strings.ToLower(user.Username), search) &&
			!strings.Contains(user.Email, search) &&
			!strings.Contains(strings.ToLower(user.FullName), search) {
			continue
		}
		clone := *user
		result = append(result, &clone)
	}

	slices.SortFunc(result, func(a, b *auth.User) int {
		if c := b.CreatedAt.Compare(a.CreatedAt); c != 0 {
			return c
		}
		return strings.Compare(b.ID, a.ID)
	})
	return result
}

func (store *UserStore) List(_ context.Context, filter auth.UserFilter, page pagination.Params) ([]*auth.User, error) {
	store.mu.Lock()
	defer store.mu.Unlock()

	all := store.filtered(filter)
	start := min(page.Offset(), len(all))
	end := min(start+page.Limit, len(all))
	return all[start:end], nil
}

func (store *UserStore) Count(_ context.Context, filter auth.UserFilter) (int, error) {
	store.mu.Lock()
	defer store.mu.Unlock()
	return len(store.filtered(filter)), nil
}

// # Sessions

// SessionStore is a map-backed [auth.SessionRepository] keyed by token hash.
type SessionStore struct {
	mu       sync.Mutex
	sessions map[string]*auth.Session
	touches  int
}

var _ auth.SessionRepository = (*SessionStore)(nil)

// NewSessionStore returns an empty store.
func NewSessionStore() *SessionStore {
	return &SessionStore{sessions: map[string]*auth.Session{}}
}

// Len returns how many sessions exist.
func (store *SessionStore) Len() int {
	store.mu.Lock()
	defer store.mu.Unlock()
	return len(store.sessions)
}

// CountForUser returns how many sessions belong to userID.
func (store *SessionStore) CountForUser(userID string) int {
	store.mu.Lock()
	defer store.mu.Unlock()

	count := 0
	for _, session := range store.sessions {
		if session.UserID == userID {
			count++
		}
	}
	return count
}

// Touches returns how many times Touch was called.
func (store *SessionStore) Touches() int {
	store.mu.Lock()
	defer store.mu.Unlock()
	return store.touches
}

func (store *SessionStore) Create(_ context.Context, session *auth.Session) error {
	store.mu.Lock()
	defer store.mu.Unlock()

	clone := *session
	store.sessions[session.TokenHash] = &clone
	return nil
}

func (store *SessionStore) FindByTokenHash(_ context.Context, tokenHash string) (*auth.Session, error) {
	store.mu.Lock()
	defer store.mu.Unlock()

	session, ok := store.sessions[tokenHash]
	if !ok {
		return nil, apperr.NotFound("Session")
	}
	clone := *session
	return &clone, nil
}

func (store *SessionStore) Touch(_ context.Context, sessionID string, at time.Time) error {
	store.mu.Lock()
	defer store.mu.Unlock()

	store.touches++
	for _, session := range store.sessions {
		if session.ID == sessionID {
			session.LastSeenAt = at
		}
	}
	return nil
}

func (store *SessionStore) DeleteByTokenHash(_ context.Context, tokenHash string) error {
	store.mu.Lock()
	defer store.mu.Unlock()

	delete(store.sessions, tokenHash)
	return nil
}

func (store *SessionStore) deleteWhere(match func(*auth.Session) bool) int64 {
	store.mu.Lock()
	defer store.mu.Unlock()

	var removed int64
	for hash, session := range store.sessions {
		if match(session) {
			delete(store.sessions, hash)
			removed++
		}
	}
	return removed
}

func (store *SessionStore) DeleteAllForUser(_ context.Context, userID string) (int64, error) {
	return store.deleteWhere(func(session *auth.Session) bool { return session.UserID == userID }), nil
}

func (store *SessionStore) DeleteOthersForUser(_ context.Context, userID, keepSessionID string) (int64, error) {
	return store.deleteWhere(func(session *auth.Session) bool {
		return session.UserID == userID && session.ID != keepSessionID
	}), nil
}

func (store *SessionStore) DeleteExpired(_ context.Context, now time.Time) (int64, error) {
	return store.deleteWhere(func(session *auth.Session) bool { return session.Expired(now) }), nil
}

// # Clock

// Clock is a manually advanced time source.
type Clock struct {
	mu  sync.Mutex
	now time.Time
}

// NewClock returns a clock frozen at start.
func NewClock(start time.Time) *Clock {
	return &Clock{now: start}
}

// Now returns the current fake time.
func (clock *Clock) Now() time.Time {
	clock.mu.Lock()
	defer clock.mu.Unlock()
	return clock.now
}

// Advance moves the clock forward by d.
func (clock *Clock) Advance(d time.Duration) {
	clock.mu.Lock()
	defer clock.mu.Unlock()
	clock.now = clock.now.Add(d)
}

// Set moves the clock to t.
func (clock *Clock) Set(t time.Time) {
	clock.mu.Lock()
	defer clock.mu.Unlock()
	clock.now = t
}
