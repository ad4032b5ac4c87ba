package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/aussiebroadwan/marquee/internal/auth/domain"
)

func TestValidateSetting(t *testing.T) {
	t.Parallel()

	ok := map[string]string{
		domain.SettingMFARequired:       "true",
		domain.SettingMFAEnforcedAdmins: "0",
		domain.SettingSessionMaxAge:     "60",
	}
	for k, v := range ok {
		require.NoError(t, validateSetting(k, v), k)
	}

	bad := [][2]string{
		{domain.SettingMFARequired, "yes please"},
		{domain.SettingSessionMaxAge, "59"},
		{domain.SettingSessionMaxAge, "forever"},
		{"theme", "dark"},
	}
	for _, kv := range bad {
		require.ErrorIs(t, validateSetting(kv[0], kv[1]), domain.ErrInvalidRequest, kv[0])
	}
}

func TestPutSettingsIsAllOrNothing(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)

	err := env.admin.PutSettings(ctx, map[string]string{
		domain.SettingMFARequired:   "true",
		domain.SettingSessionMaxAge: "1",
	})
	require.ErrorIs(t, err, domain.ErrInvalidRequest)
	got, err := env.admin.Settings(ctx)
	require.NoError(t, err)
	require.NotContains(t, got, domain.SettingMFARequired)

	require.NoError(t, env.admin.PutSettings(ctx, map[string]string{domain.SettingMFARequired: "true"}))
	got, err = env.admin.Settings(ctx)
	require.NoError(t, err)
	require.Equal(t, "true", got[domain.SettingMFARequired])
}

func TestEnsureAdmin(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)

	require.ErrorIs(t, env.admin.EnsureAdmin(ctx), ErrNoAdmin)
	env.createAccount(t, "alice", "correct horse")
	require.ErrorIs(t, env.admin.EnsureAdmin(ctx), ErrNoAdmin)
	env.createAccount(t, "root", "correct horse", domain.GroupAdmin)
	require.NoError(t, env.admin.EnsureAdmin(ctx))
}

func TestSetGroups(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	acct := env.createAccount(t, "alice", "correct horse")

	// Warm the cache so the change has to invalidate it.
	_, err := env.cache.Get(ctx, acct.ID)
	require.NoError(t, err)

	require.ErrorIs(t, env.admin.SetGroups(ctx, "root", acct.ID, []string{"ok", "a,b"}), domain.ErrInvalidRequest)
	require.ErrorIs(t, env.admin.SetGroups(ctx, "root", acct.ID, []string{" "}), domain.ErrInvalidRequest)
	require.ErrorIs(t, env.admin.SetGroups(ctx, "root", "missing", []string{"user"}), domain.ErrNotFound)

	require.NoError(t, env.admin.SetGroups(ctx, "root", acct.ID, []string{"User", "admin", "user"}))
	cached, err := env.cache.Get(ctx, acct.ID)
	require.NoError(t, err)
	require.ElementsMatch(t, []string{"user", "admin"}, cached.Groups)
}

func TestAdminRevokeSessions(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	acct := env.createAccount(t, "alice", "correct horse")

	_, err := env.admin.RevokeSessions(ctx, "root", "missing")
	require.ErrorIs(t, err, domain.ErrNotFound)

	a, err := env.sessions.Create(ctx, nil, acct, testMeta, []string{domain.AMRPassword})
	require.NoError(t, err)
	_, err = env.sessions.Create(ctx, nil, acct, testMeta, []string{domain.AMRPassword})
	require.NoError(t, err)

	n, err := env.admin.RevokeSessions(ctx, "root", acct.ID)
	require.NoError(t, err)
	require.EqualValues(t, 2, n)

	_, err = env.gateway.Authenticate(ctx, a.Token)
	require.ErrorIs(t, err, domain.ErrUnauthenticated)

	last := env.audit.Events()[len(env.audit.Events())-1]
	require.Equal(t, domain.EventSessionsRevoked, last.Name)
	require.Equal(t, "root", last.Actor)
}

func TestAdminUnbanAndDelete(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	acct := env.createAccount(t, "alice", "correct horse")

	require.NoError(t, env.admin.SetBanned(ctx, "root", acct.ID, true))
	require.True(t, env.account(t, acct.ID).Banned)
	require.NoError(t, env.admin.SetBanned(ctx, "root", acct.ID, false))
	require.False(t, env.account(t, acct.ID).Banned)
	require.ErrorIs(t, env.admin.SetBanned(ctx, "root", "missing", true), domain.ErrNotFound)

	require.NoError(t, env.admin.DeleteAccount(ctx, "root", acct.ID))
	require.ErrorIs(t, env.admin.DeleteAccount(ctx, "root", acct.ID), domain.ErrNotFound)
	require.Contains(t, env.audit.Names(), domain.EventDeleted)
}
