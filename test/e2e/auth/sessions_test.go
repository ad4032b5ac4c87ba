package auth_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/aussiebroadwan/marquee/pkg/authsdk"
)

func TestPasswordLoginAndSessions(t *testing.T) {
	m := setupMarquee(t, relaxedThrottles)
	ctx := t.Context()
	m.createUser(t, "alice")

	t.Run("wrong password", func(t *testing.T) {
		_, err := m.client.Login(ctx, "alice", "not-the-password")
		assertAPIError(t, err, authsdk.ErrorCodeInvalidCredentials)
	})

	t.Run("unknown user", func(t *testing.T) {
		_, err := m.client.Login(ctx, "mallory", "not-the-password")
		assertAPIError(t, err, authsdk.ErrorCodeInvalidCredentials)
	})

	laptop := m.login(t, "alice", userPassword)
	phone := m.login(t, "alice", userPassword)

	me, err := laptop.Me(ctx)
	require.NoError(t, err)
	require.Equal(t, "alice", me.Username)
	require.Equal(t, []string{"pwd"}, me.AMR)
	require.Contains(t, me.Groups, "user")

	sessions, err := laptop.ListSessions(ctx)
	require.NoError(t, err)
	require.GreaterOrEqual(t, len(sessions), 2)

	n, err := laptop.RevokeOtherSessions(ctx)
	require.NoError(t, err)
	require.GreaterOrEqual(t, n, int64(1))

	_, err = phone.Me(ctx)
	assertAPIError(t, err, authsdk.ErrorCodeUnauthenticated)

	require.NoError(t, laptop.Logout(ctx))
	_, err = laptop.Me(ctx)
	assertAPIError(t, err, authsdk.ErrorCodeUnauthenticated)
}

func TestChangePassword(t *testing.T) {
	m := setupMarquee(t, relaxedThrottles)
	ctx := t.Context()
	m.createUser(t, "bob")

	s := m.login(t, "bob", userPassword)
	other := m.login(t, "bob", userPassword)

	_, err := s.ChangePassword(ctx, authsdk.PasswordChangeRequest{
		CurrentPassword: "wrong-password",
		NewPassword:     "a-brand-new-password",
	})
	assertAPIError(t, err, authsdk.ErrorCodeInvalidCredentials)

	_, err = s.ChangePassword(ctx, authsdk.PasswordChangeRequest{
		CurrentPassword: userPassword,
		NewPassword:     "a-brand-new-password",
	})
	require.NoError(t, err)

	_, err = other.Me(ctx)
	assertAPIError(t, err, authsdk.ErrorCodeUnauthenticated)
	_, err = s.Me(ctx)
	require.NoError(t, err)

	_, err = m.client.Login(ctx, "bob", userPassword)
	assertAPIError(t, err, authsdk.ErrorCodeInvalidCredentials)
	m.login(t, "bob", "a-brand-new-password")
}
