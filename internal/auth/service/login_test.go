package service

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/aussiebroadwan/marquee/internal/auth/domain"
	"github.com/aussiebroadwan/marquee/pkg/cryptox"
	"github.com/stretchr/testify/require"
)

func TestPasswordLoginIssuesSession(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	acct := env.createAccount(t, "Alice", "correct horse")

	out, err := env.login.PasswordLogin(ctx, LoginRequest{
		Username: "  ALICE ",
		Password: "correct horse",
		Next:     "/requests",
		Meta:     testMeta,
	})
	require.NoError(t, err)
	require.Equal(t, domain.StateSessionIssued, out.State)
	require.Equal(t, acct.ID, out.Account.ID)
	require.Equal(t, "/requests", out.Next)
	require.Equal(t, []string{domain.AMRPassword}, out.Session.AMR)
	require.Equal(t, testMeta.IP, out.Session.IP)

	id, err := env.gateway.Authenticate(ctx, out.SessionToken)
	require.NoError(t, err)
	require.Equal(t, acct.ID, id.AccountID)

	events := env.audit.Events()
	require.NotEmpty(t, events)
	last := events[len(events)-1]
	require.Equal(t, domain.EventLogin, last.Name)
	require.Equal(t, "pwd", last.Attrs["amr"])
}

func TestPasswordLoginFailuresAreUniform(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	env.createAccount(t, "alice", "correct horse")
	_, err := env.accounts.Create(ctx, CreateAccountRequest{Username: "sso-only"})
	require.NoError(t, err)

	cases := []LoginRequest{
		{Username: "nobody", Password: "whatever1"},
		{Username: "alice", Password: "wrong password"},
		{Username: "sso-only", Password: "anything1"},
		{Username: "", Password: "x"},
		{Username: "alice", Password: ""},
	}
	for _, req := range cases {
		req.Meta = domain.RequestMeta{IP: "198.51.100." + req.Username}
		_, err := env.login.PasswordLogin(ctx, req)
		require.ErrorIs(t, err, domain.ErrCredentialInvalid, "user %q", req.Username)
		require.Equal(t, "invalid_credentials", domain.Code(err))
	}
	require.Contains(t, env.audit.Names(), domain.EventLoginFailed)
	for _, ev := range env.audit.Events() {
		require.NotContains(t, ev.Attrs["user"], "nobody", "usernames are redacted in audit attrs")
	}
}

func TestPasswordLoginLockout(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	env.createAccount(t, "alice", "correct horse")

	req := LoginRequest{Username: "alice", Password: "wrong password", Meta: testMeta}
	for i := 0; i < 5; i++ {
		_, err := env.login.PasswordLogin(ctx, req)
		require.ErrorIs(t, err, domain.ErrCredentialInvalid)
	}
	require.Contains(t, env.audit.Names(), domain.EventLockedOut)

	req.Password = "correct horse"
	_, err := env.login.PasswordLogin(ctx, req)
	require.ErrorIs(t, err, domain.ErrLockedOut)
	var locked *domain.LockedOutError
	require.ErrorAs(t, err, &locked)
	require.Greater(t, locked.RetryAfter, time.Duration(0))

	// Another client address is not affected.
	other := req
	other.Meta.IP = "203.0.113.7"
	out, err := env.login.PasswordLogin(ctx, other)
	require.NoError(t, err)
	require.Equal(t, domain.StateSessionIssued, out.State)

	env.clock.Advance(16 * time.Minute)
	_, err = env.login.PasswordLogin(ctx, req)
	require.NoError(t, err)
}

func TestPasswordLoginBannedOnlyAfterVerify(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	acct := env.createAccount(t, "alice", "correct horse")
	require.NoError(t, env.admin.SetBanned(ctx, "root", acct.ID, true))

	_, err := env.login.PasswordLogin(ctx, LoginRequest{Username: "alice", Password: "wrong password", Meta: testMeta})
	require.ErrorIs(t, err, domain.ErrCredentialInvalid)

	_, err = env.login.PasswordLogin(ctx, LoginRequest{Username: "alice", Password: "correct horse", Meta: testMeta})
	require.ErrorIs(t, err, domain.ErrForbidden)
}

func TestPasswordLoginRehashes(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	acct := env.createAccount(t, "alice", "correct horse")
	require.True(t, strings.HasPrefix(acct.PasswordHash, "$scrypt$ln=10,"))

	stronger := testScrypt
	stronger.LogN = 11
	h, err := cryptox.NewHasher(stronger, []byte("test-pepper"))
	require.NoError(t, err)
	env.login.Hasher = h

	_, err = env.login.PasswordLogin(ctx, LoginRequest{Username: "alice", Password: "correct horse", Meta: testMeta})
	require.NoError(t, err)

	updated := env.account(t, acct.ID)
	require.True(t, strings.HasPrefix(updated.PasswordHash, "$scrypt$ln=11,"))
	ok, err := h.Verify("correct horse", updated.PasswordHash)
	require.NoError(t, err)
	require.True(t, ok)
}

func TestChangePassword(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	acct := env.createAccount(t, "alice", "correct horse")

	keep, err := env.sessions.Create(ctx, nil, acct, testMeta, []string{domain.AMRPassword})
	require.NoError(t, err)
	other, err := env.sessions.Create(ctx, nil, acct, testMeta, []string{domain.AMRPassword})
	require.NoError(t, err)

	_, err = env.accounts.ChangePassword(ctx, ChangePasswordRequest{
		AccountID:       acct.ID,
		SessionID:       keep.Session.ID,
		CurrentPassword: "nope nope",
		NewPassword:     "new password",
	})
	require.ErrorIs(t, err, domain.ErrCredentialInvalid)

	_, err = env.accounts.ChangePassword(ctx, ChangePasswordRequest{
		AccountID:       acct.ID,
		SessionID:       keep.Session.ID,
		CurrentPassword: "correct horse",
		NewPassword:     "short",
	})
	require.ErrorIs(t, err, domain.ErrInvalidRequest)

	n, err := env.accounts.ChangePassword(ctx, ChangePasswordRequest{
		AccountID:       acct.ID,
		SessionID:       keep.Session.ID,
		CurrentPassword: "correct horse",
		NewPassword:     "new password",
	})
	require.NoError(t, err)
	require.EqualValues(t, 1, n)

	_, err = env.gateway.Authenticate(ctx, other.Token)
	require.ErrorIs(t, err, domain.ErrUnauthenticated)
	_, err = env.gateway.Authenticate(ctx, keep.Token)
	require.NoError(t, err)

	_, err = env.login.PasswordLogin(ctx, LoginRequest{Username: "alice", Password: "new password", Meta: testMeta})
	require.NoError(t, err)
	require.Contains(t, env.audit.Names(), domain.EventPasswordChanged)
}

func TestCreateAccount(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	env.createAccount(t, "alice", "correct horse")

	_, err := env.accounts.Create(ctx, CreateAccountRequest{Username: "ALICE", Password: "correct horse"})
	require.ErrorIs(t, err, domain.ErrConflict)

	_, err = env.accounts.Create(ctx, CreateAccountRequest{Username: "   ", Password: "correct horse"})
	require.ErrorIs(t, err, domain.ErrInvalidRequest)

	_, err = env.accounts.Create(ctx, CreateAccountRequest{Username: "bob", Password: "short"})
	require.ErrorIs(t, err, domain.ErrInvalidRequest)

	admin, err := env.accounts.Create(ctx, CreateAccountRequest{Username: "root", Password: "correct horse", Groups: []string{"admin", "admin"}})
	require.NoError(t, err)
	require.Equal(t, []string{domain.GroupAdmin}, admin.Groups)
	require.Len(t, admin.WebAuthnHandle, 16)
}
