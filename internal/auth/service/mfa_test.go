package service

import (
	"bytes"
	"context"
	"strings"
	"testing"
	"time"

	"github.com/aussiebroadwan/marquee/internal/auth/domain"
	"github.com/aussiebroadwan/marquee/pkg/cryptox"
	"github.com/pquerna/otp"
	"github.com/pquerna/otp/totp"
	"github.com/stretchr/testify/require"
)

func TestMatchTOTP(t *testing.T) {
	t.Parallel()

	key, err := newTOTPKey("Marquee", "alice")
	require.NoError(t, err)
	secret := key.Secret()
	at := time.Date(2026, 3, 1, 12, 0, 10, 0, time.UTC)
	cur := at.Unix() / totpPeriod

	codeAt := func(step int64) string {
		c, err := totp.GenerateCodeCustom(secret, time.Unix(step*totpPeriod, 0), totpOpts)
		require.NoError(t, err)
		return c
	}

	t.Run("current step", func(t *testing.T) {
		step, ok := matchTOTP(secret, codeAt(cur), at, 1, 0)
		require.True(t, ok)
		require.Equal(t, cur, step)
	})

	t.Run("within skew", func(t *testing.T) {
		step, ok := matchTOTP(secret, codeAt(cur-1), at, 1, 0)
		require.True(t, ok)
		require.Equal(t, cur-1, step)

		step, ok = matchTOTP(secret, " "+codeAt(cur+1)+" ", at, 1, 0)
		require.True(t, ok)
		require.Equal(t, cur+1, step)
	})

	t.Run("outside skew", func(t *testing.T) {
		_, ok := matchTOTP(secret, codeAt(cur-2), at, 1, 0)
		require.False(t, ok)
		_, ok = matchTOTP(secret, codeAt(cur-1), at, 0, 0)
		require.False(t, ok)
	})

	t.Run("used steps are refused", func(t *testing.T) {
		_, ok := matchTOTP(secret, codeAt(cur), at, 1, cur)
		require.False(t, ok)
		_, ok = matchTOTP(secret, codeAt(cur-1), at, 1, cur-1)
		require.False(t, ok)
	})

	t.Run("malformed", func(t *testing.T) {
		for _, code := range []string{"", "12345", "1234567", "abcdef"} {
			_, ok := matchTOTP(secret, code, at, 1, 0)
			require.False(t, ok, code)
		}
	})
}

func TestProvisioningURIRoundTrip(t *testing.T) {
	t.Parallel()

	key, err := newTOTPKey("Marquee", "alice")
	require.NoError(t, err)

	uri, err := provisioningURI("Marquee", "alice", key.Secret())
	require.NoError(t, err)
	parsed, err := otp.NewKeyFromURL(uri)
	require.NoError(t, err)
	require.Equal(t, key.Secret(), parsed.Secret())
	require.Equal(t, "Marquee", parsed.Issuer())
	require.Equal(t, "alice", parsed.AccountName())
}

func TestSatisfiesMFA(t *testing.T) {
	t.Parallel()

	require.True(t, satisfiesMFA([]string{domain.AMRHardware, domain.AMRUserVerified}))
	require.False(t, satisfiesMFA([]string{domain.AMRHardware}))
	require.False(t, satisfiesMFA([]string{domain.AMRPassword, domain.AMRUserVerified}))
}

func startVerify(t *testing.T, env *testEnv) (domain.Account, string, domain.LoginOutcome) {
	t.Helper()
	acct := env.createAccount(t, "alice", "correct horse")
	secret := env.enrollTOTP(t, acct.ID)

	out, err := env.login.PasswordLogin(context.Background(), LoginRequest{
		Username: "alice",
		Password: "correct horse",
		Next:     "/after",
		Meta:     testMeta,
	})
	require.NoError(t, err)
	require.Equal(t, domain.StateMFAPendingVerify, out.State)
	require.NotEmpty(t, out.MFAToken)
	require.Empty(t, out.SessionToken)
	return acct, secret, out
}

func TestMFAVerify(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	acct, secret, pending := startVerify(t, env)

	out, err := env.mfa.SubmitCode(ctx, pending.MFAToken, env.code(t, secret), testMeta)
	require.NoError(t, err)
	require.Equal(t, domain.StateSessionIssued, out.State)
	require.Equal(t, "/after", out.Next)
	require.Equal(t, []string{domain.AMRPassword, domain.AMROTP}, out.Session.AMR)

	id, err := env.gateway.Authenticate(ctx, out.SessionToken)
	require.NoError(t, err)
	require.Equal(t, acct.ID, id.AccountID)

	// The MFA token is single use.
	_, err = env.mfa.SubmitCode(ctx, pending.MFAToken, env.code(t, secret), testMeta)
	require.ErrorIs(t, err, domain.ErrInvalidChallenge)
}

func TestMFAReplayRejected(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	_, secret, first := startVerify(t, env)
	code := env.code(t, secret)

	_, err := env.mfa.SubmitCode(ctx, first.MFAToken, code, testMeta)
	require.NoError(t, err)

	second, err := env.login.PasswordLogin(ctx, LoginRequest{Username: "alice", Password: "correct horse", Meta: testMeta})
	require.NoError(t, err)
	_, err = env.mfa.SubmitCode(ctx, second.MFAToken, code, testMeta)
	require.ErrorIs(t, err, domain.ErrCredentialInvalid)

	// The next time step is accepted.
	env.clock.Advance(totpPeriod * time.Second)
	_, err = env.mfa.SubmitCode(ctx, second.MFAToken, env.code(t, secret), testMeta)
	require.NoError(t, err)
}

func TestMFAAttemptsExhausted(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	_, secret, pending := startVerify(t, env)

	for i := 1; i < DefaultMFAMaxAttempts; i++ {
		_, err := env.mfa.SubmitCode(ctx, pending.MFAToken, "000000", testMeta)
		require.ErrorIs(t, err, domain.ErrCredentialInvalid, "attempt %d", i)
	}
	_, err := env.mfa.SubmitCode(ctx, pending.MFAToken, "000000", testMeta)
	require.ErrorIs(t, err, domain.ErrMFAExhausted)
	require.Contains(t, env.audit.Names(), domain.EventLockedOut)

	_, err = env.mfa.SubmitCode(ctx, pending.MFAToken, env.code(t, secret), testMeta)
	require.ErrorIs(t, err, domain.ErrInvalidChallenge)
}

func TestMFASessionExpires(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	_, secret, pending := startVerify(t, env)

	env.clock.Advance(DefaultMFASessionTTL)
	_, err := env.mfa.SubmitCode(ctx, pending.MFAToken, env.code(t, secret), testMeta)
	require.ErrorIs(t, err, domain.ErrInvalidChallenge)

	_, err = env.store.MFASessions().GetMFASession(ctx, pending.MFAToken)
	require.Error(t, err, "expired session is deleted on access")

	_, err = env.mfa.SubmitCode(ctx, "", "123456", testMeta)
	require.ErrorIs(t, err, domain.ErrInvalidChallenge)
}

func TestMFASetupWhenRequired(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	acct := env.createAccount(t, "alice", "correct horse")
	require.NoError(t, env.admin.PutSettings(ctx, map[string]string{domain.SettingMFARequired: "true"}))

	out, err := env.login.PasswordLogin(ctx, LoginRequest{Username: "alice", Password: "correct horse", Meta: testMeta})
	require.NoError(t, err)
	require.Equal(t, domain.StateMFAPendingSetup, out.State)
	require.NotEmpty(t, out.ProvisioningURI)

	again, err := env.mfa.PendingSetup(ctx, out.MFAToken)
	require.NoError(t, err)
	require.Equal(t, out.ProvisioningURI, again.ProvisioningURI)

	key, err := otp.NewKeyFromURL(out.ProvisioningURI)
	require.NoError(t, err)
	require.False(t, env.account(t, acct.ID).HasMFA(), "secret is not stored before confirmation")

	done, err := env.mfa.SubmitCode(ctx, out.MFAToken, env.code(t, key.Secret()), testMeta)
	require.NoError(t, err)
	require.Equal(t, domain.StateSessionIssued, done.State)

	stored := env.account(t, acct.ID)
	require.True(t, stored.HasMFA())
	require.NotEqual(t, key.Secret(), stored.MFASecret, "secret is encrypted at rest")
	plain, err := env.cipher.DecryptString(stored.MFASecret)
	require.NoError(t, err)
	require.Equal(t, key.Secret(), plain)
	require.Contains(t, env.audit.Names(), domain.EventMFAEnabled)
}

func TestMFAEnforcedForAdmins(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	env.createAccount(t, "root", "correct horse", domain.GroupAdmin)
	env.createAccount(t, "alice", "correct horse")
	require.NoError(t, env.admin.PutSettings(ctx, map[string]string{domain.SettingMFAEnforcedAdmins: "true"}))

	out, err := env.login.PasswordLogin(ctx, LoginRequest{Username: "root", Password: "correct horse", Meta: testMeta})
	require.NoError(t, err)
	require.Equal(t, domain.StateMFAPendingSetup, out.State)

	out, err = env.login.PasswordLogin(ctx, LoginRequest{Username: "alice", Password: "correct horse", Meta: testMeta})
	require.NoError(t, err)
	require.Equal(t, domain.StateSessionIssued, out.State)
}

func TestPasskeyWithUserVerificationSkipsMFA(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	acct := env.createAccount(t, "alice", "correct horse")
	env.enrollTOTP(t, acct.ID)
	acct = env.account(t, acct.ID)

	out, err := env.mfa.AfterPrimary(ctx, acct, []string{domain.AMRHardware, domain.AMRUserVerified}, testMeta, "")
	require.NoError(t, err)
	require.Equal(t, domain.StateSessionIssued, out.State)

	out, err = env.mfa.AfterPrimary(ctx, acct, []string{domain.AMRHardware}, testMeta, "")
	require.NoError(t, err)
	require.Equal(t, domain.StateMFAPendingVerify, out.State)
}

func TestRequireReauth(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	acct := env.createAccount(t, "alice", "correct horse")

	require.NoError(t, env.mfa.RequireReauth(ctx, acct, ""), "accounts without mfa pass")

	secret := env.enrollTOTP(t, acct.ID)
	acct = env.account(t, acct.ID)

	require.ErrorIs(t, env.mfa.RequireReauth(ctx, acct, ""), domain.ErrReauthRequired)
	require.ErrorIs(t, env.mfa.RequireReauth(ctx, acct, "000000"), domain.ErrCredentialInvalid)

	code := env.code(t, secret)
	require.NoError(t, env.mfa.RequireReauth(ctx, acct, code))
	require.ErrorIs(t, env.mfa.RequireReauth(ctx, acct, code), domain.ErrCredentialInvalid, "codes work once")
}

func TestRequireReauthLocksOut(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	acct := env.createAccount(t, "alice", "correct horse")
	secret := env.enrollTOTP(t, acct.ID)
	acct = env.account(t, acct.ID)

	for i := 0; i < 5; i++ {
		require.ErrorIs(t, env.mfa.RequireReauth(ctx, acct, "000000"), domain.ErrCredentialInvalid)
	}
	require.ErrorIs(t, env.mfa.RequireReauth(ctx, acct, env.code(t, secret)), domain.ErrLockedOut)
}

func TestDisableMFA(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	acct := env.createAccount(t, "alice", "correct horse")

	require.ErrorIs(t, env.mfa.Disable(ctx, acct, ""), domain.ErrInvalidRequest)

	secret := env.enrollTOTP(t, acct.ID)
	acct = env.account(t, acct.ID)
	require.ErrorIs(t, env.mfa.Disable(ctx, acct, ""), domain.ErrReauthRequired)
	require.NoError(t, env.mfa.Disable(ctx, acct, env.code(t, secret)))

	require.False(t, env.account(t, acct.ID).HasMFA())
	require.Contains(t, env.audit.Names(), domain.EventMFADisabled)
}

func TestMFAVerifyReencryptsUnderCurrentKey(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	acct, secret, pending := startVerify(t, env)
	require.True(t, strings.HasPrefix(env.account(t, acct.ID).MFASecret, "v1:"))

	rotated, err := cryptox.NewSecretCipher(cryptox.Keyring{
		Current:  "v2",
		Fallback: []string{"v1"},
		Keys: map[string][]byte{
			"v1": bytes.Repeat([]byte{7}, 32),
			"v2": bytes.Repeat([]byte{8}, 32),
		},
	})
	require.NoError(t, err)
	env.mfa.Cipher = rotated

	_, err = env.mfa.SubmitCode(ctx, pending.MFAToken, env.code(t, secret), testMeta)
	require.NoError(t, err)

	stored := env.account(t, acct.ID).MFASecret
	require.True(t, strings.HasPrefix(stored, "v2:"), stored)
	plain, err := rotated.DecryptString(stored)
	require.NoError(t, err)
	require.Equal(t, secret, plain)
}
