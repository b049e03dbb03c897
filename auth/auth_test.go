package auth

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fuzzbed/gateway/apierr"
	"github.com/fuzzbed/gateway/common"
	"github.com/fuzzbed/gateway/db/dbtest"
	"github.com/fuzzbed/gateway/model"
)

func TestPasswordHashRoundTrip(t *testing.T) {
	hash, err := HashPassword("correct horse")
	require.NoError(t, err)

	ok, err := VerifyPassword("correct horse", hash)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = VerifyPassword("wrong horse", hash)
	require.NoError(t, err)
	assert.False(t, ok)

	_, err = VerifyPassword("x", "not-a-hash")
	assert.Error(t, err)
}

func seedUser(t *testing.T, store *dbtest.Fake, name, password string) *model.User {
	t.Helper()
	hash, err := HashPassword(password)
	require.NoError(t, err)
	user := &model.User{
		ID:           "user-" + name,
		Kind:         model.KindUser,
		Name:         name,
		PasswordHash: hash,
		IsConfirmed:  true,
		Rev:          "1",
	}
	store.Users[user.ID] = user
	return user
}

func TestLoginAndResolve(t *testing.T) {
	store, fake := dbtest.NewStore()
	seedUser(t, fake, "alice", "pw123456")
	sessions := NewSessions(store.Users, store.Sessions, time.Hour)

	session, user, err := sessions.Login(context.Background(), "alice", "pw123456", "ua=test")
	require.NoError(t, err)
	assert.Equal(t, "user-alice", user.ID)
	require.NotEmpty(t, session.ID)

	resolved, err := sessions.Resolve(context.Background(), session.ID)
	require.NoError(t, err)
	assert.Equal(t, "alice", resolved.Name)
}

func TestLoginFailures(t *testing.T) {
	store, fake := dbtest.NewStore()
	seedUser(t, fake, "alice", "pw123456")
	disabled := seedUser(t, fake, "bob", "pw123456")
	disabled.IsDisabled = true
	sessions := NewSessions(store.Users, store.Sessions, time.Hour)

	_, _, err := sessions.Login(context.Background(), "alice", "wrong", "")
	assert.True(t, apierr.IsCode(err, apierr.ErrLoginFailed.Code))

	_, _, err = sessions.Login(context.Background(), "nobody", "pw123456", "")
	assert.True(t, apierr.IsCode(err, apierr.ErrLoginFailed.Code))

	_, _, err = sessions.Login(context.Background(), "bob", "pw123456", "")
	assert.True(t, apierr.IsCode(err, apierr.ErrLoginFailed.Code))
}

func TestResolveRejectsUnusableAccounts(t *testing.T) {
	store, fake := dbtest.NewStore()
	user := seedUser(t, fake, "alice", "pw123456")
	sessions := NewSessions(store.Users, store.Sessions, time.Hour)

	session, _, err := sessions.Login(context.Background(), "alice", "pw123456", "")
	require.NoError(t, err)

	// An account unconfirmed after login loses its session.
	user.IsConfirmed = false
	_, err = sessions.Resolve(context.Background(), session.ID)
	assert.True(t, apierr.IsCode(err, apierr.ErrSessionNotFound.Code))

	user.IsConfirmed = true
	user.IsDisabled = true
	_, err = sessions.Resolve(context.Background(), session.ID)
	assert.True(t, apierr.IsCode(err, apierr.ErrSessionNotFound.Code))
}

func TestResolveExpiredSessionIsDeleted(t *testing.T) {
	store, fake := dbtest.NewStore()
	user := seedUser(t, fake, "alice", "pw123456")
	fake.Sessions["sess-1"] = &model.Session{
		ID:      "sess-1",
		UserID:  user.ID,
		Expires: common.FormatTime(time.Now().UTC().Add(-time.Minute)),
	}
	sessions := NewSessions(store.Users, store.Sessions, time.Hour)

	_, err := sessions.Resolve(context.Background(), "sess-1")
	assert.True(t, apierr.IsCode(err, apierr.ErrSessionNotFound.Code))
	assert.NotContains(t, fake.Sessions, "sess-1")
}

func TestCSRFIssueValidate(t *testing.T) {
	csrf := NewCSRF("secret", time.Hour)
	token, err := csrf.Issue("user-1")
	require.NoError(t, err)

	assert.NoError(t, csrf.Validate(token, "user-1"))
	assert.True(t, apierr.IsCode(csrf.Validate(token, "user-2"), apierr.ErrCSRFTokenUserMismatch.Code))
	assert.True(t, apierr.IsCode(csrf.Validate("garbage", "user-1"), apierr.ErrCSRFTokenInvalid.Code))

	other := NewCSRF("other-secret", time.Hour)
	assert.True(t, apierr.IsCode(other.Validate(token, "user-1"), apierr.ErrCSRFTokenInvalid.Code))
}

func TestCSRFExpiredToken(t *testing.T) {
	csrf := NewCSRF("secret", -time.Minute)
	token, err := csrf.Issue("user-1")
	require.NoError(t, err)
	assert.True(t, apierr.IsCode(csrf.Validate(token, "user-1"), apierr.ErrCSRFTokenInvalid.Code))
}

func TestProtectorLockoutFlow(t *testing.T) {
	store, _ := dbtest.NewStore()
	protector := NewProtector("bfp-secret", 3, time.Hour, store.Lockouts)
	ctx := context.Background()

	cookie, err := protector.IssueCookie("alice")
	require.NoError(t, err)

	// Below the threshold the device stays usable.
	require.NoError(t, protector.CheckLocked(ctx, "alice", cookie))
	require.NoError(t, protector.RegisterFailure(ctx, "alice", cookie))
	require.NoError(t, protector.RegisterFailure(ctx, "alice", cookie))
	require.NoError(t, protector.CheckLocked(ctx, "alice", cookie))

	// The third failure locks this device only.
	require.NoError(t, protector.RegisterFailure(ctx, "alice", cookie))
	err = protector.CheckLocked(ctx, "alice", cookie)
	assert.True(t, apierr.IsCode(err, apierr.ErrDeviceCookieLockout.Code))

	// Untrusted clients are unaffected by a trusted-device lockout.
	assert.NoError(t, protector.CheckLocked(ctx, "alice", ""))
}

func TestProtectorUntrustedBucket(t *testing.T) {
	store, _ := dbtest.NewStore()
	protector := NewProtector("bfp-secret", 2, time.Hour, store.Lockouts)
	ctx := context.Background()

	require.NoError(t, protector.RegisterFailure(ctx, "alice", ""))
	require.NoError(t, protector.RegisterFailure(ctx, "alice", "forged-cookie"))

	err := protector.CheckLocked(ctx, "alice", "")
	assert.True(t, apierr.IsCode(err, apierr.ErrDeviceCookieLockout.Code))

	// A valid device cookie still gets through.
	cookie, err := protector.IssueCookie("alice")
	require.NoError(t, err)
	assert.NoError(t, protector.CheckLocked(ctx, "alice", cookie))
}

func TestProtectorCookieForOtherUserIsUntrusted(t *testing.T) {
	store, fake := dbtest.NewStore()
	protector := NewProtector("bfp-secret", 1, time.Hour, store.Lockouts)

	cookie, err := protector.IssueCookie("bob")
	require.NoError(t, err)

	// A cookie issued for bob does not designate a trusted device for
	// alice; the failure lands in alice's untrusted bucket.
	require.NoError(t, protector.RegisterFailure(context.Background(), "alice", cookie))
	assert.Contains(t, fake.Lockouts, "alice|")
}
