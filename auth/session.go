package auth

import (
	"context"
	"time"

	"github.com/fuzzbed/gateway/apierr"
	"github.com/fuzzbed/gateway/common"
	"github.com/fuzzbed/gateway/db"
	"github.com/fuzzbed/gateway/model"
)

// Sessions issues and resolves server-side login sessions.
type Sessions struct {
	users      db.UserStore
	sessions   db.SessionStore
	expiration time.Duration
}

// NewSessions wires the session service.
func NewSessions(users db.UserStore, sessions db.SessionStore, expiration time.Duration) *Sessions {
	return &Sessions{users: users, sessions: sessions, expiration: expiration}
}

// Login verifies credentials and creates a session. Unknown usernames and
// wrong passwords are indistinguishable to the caller, and both cost one
// Argon2id verification.
func (s *Sessions) Login(ctx context.Context, username, password, metadata string) (*model.Session, *model.User, error) {
	user, err := s.users.GetByName(ctx, username, model.RemovalPresent)
	if err != nil {
		if apierr.IsCode(err, apierr.ErrUserNotFound.Code) {
			DummyVerify()
			return nil, nil, apierr.ErrLoginFailed
		}
		return nil, nil, err
	}
	ok, err := VerifyPassword(password, user.PasswordHash)
	if err != nil || !ok {
		return nil, nil, apierr.ErrLoginFailed
	}
	if user.IsDisabled || !user.IsConfirmed {
		return nil, nil, apierr.ErrLoginFailed
	}

	session := &model.Session{
		UserID:   user.ID,
		Metadata: metadata,
		Expires:  common.FormatTime(time.Now().UTC().Add(s.expiration)),
	}
	if err := s.sessions.Put(ctx, session); err != nil {
		return nil, nil, err
	}
	common.Logger.WithField("user", user.Name).Info("user logged in")
	return session, user, nil
}

// Logout drops a session. Missing sessions are not an error.
func (s *Sessions) Logout(ctx context.Context, sessionID string) error {
	return s.sessions.Delete(ctx, sessionID)
}

// Resolve maps a session cookie to its live user. Expired sessions are
// deleted on sight.
func (s *Sessions) Resolve(ctx context.Context, sessionID string) (*model.User, error) {
	session, err := s.sessions.Get(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if session.Expires <= common.FormatTime(time.Now().UTC()) {
		_ = s.sessions.Delete(ctx, sessionID)
		return nil, apierr.ErrSessionNotFound
	}
	user, err := s.users.GetByID(ctx, session.UserID)
	if err != nil {
		if apierr.IsCode(err, apierr.ErrUserNotFound.Code) {
			return nil, apierr.ErrSessionNotFound
		}
		return nil, err
	}
	if user.IsDisabled || !user.IsConfirmed || user.IsDeleted() {
		return nil, apierr.ErrSessionNotFound
	}
	return user, nil
}

// Expiration reports the configured session lifetime, used for cookie
// max-age.
func (s *Sessions) Expiration() time.Duration {
	return s.expiration
}
