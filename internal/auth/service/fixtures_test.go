package service

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/aussiebroadwan/marquee/internal/auth/audit"
	"github.com/aussiebroadwan/marquee/internal/auth/domain"
	"github.com/aussiebroadwan/marquee/internal/auth/store/drivers/sqlite"
	"github.com/aussiebroadwan/marquee/pkg/cryptox"
	"github.com/aussiebroadwan/marquee/pkg/guard"
	"github.com/aussiebroadwan/marquee/pkg/jwtx"
	"github.com/pquerna/otp/totp"
	"github.com/stretchr/testify/require"
)

// Cheap parameters so tests do not spend seconds in scrypt.
var testScrypt = cryptox.ScryptParams{LogN: 10, R: 8, P: 1, KeyLen: 32, SaltLen: 16}

type testClock struct {
	mu sync.Mutex
	t  time.Time
}

func newTestClock() *testClock {
	return &testClock{t: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

type testEnv struct {
	store  *sqlite.Store
	clock  *testClock
	audit  *audit.Recorder
	guard  *guard.Memory
	hasher *cryptox.Hasher
	cipher *cryptox.SecretCipher
	issuer *jwtx.SessionIssuer

	sessions *SessionService
	cache    *AccountCache
	gateway  *Gateway
	mfa      *MFAService
	login    *LoginService
	accounts *AccountService
	admin    *AdminService
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	st, err := sqlite.NewStore(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })
	require.NoError(t, st.ApplyMigrations())

	clock := newTestClock()
	hasher, err := cryptox.NewHasher(testScrypt, []byte("test-pepper"))
	require.NoError(t, err)
	cipher, err := cryptox.NewSecretCipher(cryptox.Keyring{
		Current: "v1",
		Keys:    map[string][]byte{"v1": bytes.Repeat([]byte{7}, 32)},
	})
	require.NoError(t, err)
	issuer, err := jwtx.NewSessionIssuer(
		[]jwtx.SessionKey{{ID: "k1", Secret: bytes.Repeat([]byte{9}, 32)}},
		jwtx.WithSessionIssuer("marquee-test"),
		jwtx.WithSessionClock(clock.Now),
	)
	require.NoError(t, err)

	rec := &audit.Recorder{}
	lim := guard.NewMemory(guard.WithClock(clock.Now))

	env := &testEnv{
		store:  st,
		clock:  clock,
		audit:  rec,
		guard:  lim,
		hasher: hasher,
		cipher: cipher,
		issuer: issuer,
	}
	env.sessions = &SessionService{Store: st, Issuer: issuer, Now: clock.Now}
	env.cache = NewAccountCache(st, time.Minute)
	env.cache.now = clock.Now
	env.gateway = &Gateway{Sessions: env.sessions, Accounts: env.cache}
	env.mfa = &MFAService{
		Store:    st,
		Sessions: env.sessions,
		Cipher:   cipher,
		Guard:    lim,
		Audit:    rec,
		Issuer:   "Marquee",
		Skew:     DefaultTOTPSkew,
		Now:      clock.Now,
	}
	env.login = &LoginService{Store: st, Hasher: hasher, Guard: lim, MFA: env.mfa, Audit: rec}
	env.accounts = &AccountService{
		Store:    st,
		Hasher:   hasher,
		Sessions: env.sessions,
		MFA:      env.mfa,
		Cache:    env.cache,
		Audit:    rec,
	}
	env.admin = &AdminService{Store: st, Sessions: env.sessions, Cache: env.cache, Audit: rec}
	return env
}

func (e *testEnv) createAccount(t *testing.T, username, password string, groups ...string) domain.Account {
	t.Helper()
	a, err := e.accounts.Create(context.Background(), CreateAccountRequest{
		Username: username,
		Password: password,
		Groups:   groups,
	})
	require.NoError(t, err)
	return a
}

// enrollTOTP gives the account a TOTP secret and returns it in plaintext.
func (e *testEnv) enrollTOTP(t *testing.T, accountID string) string {
	t.Helper()
	key, err := newTOTPKey("Marquee", accountID)
	require.NoError(t, err)
	enc, err := e.cipher.EncryptString(key.Secret())
	require.NoError(t, err)
	require.NoError(t, e.store.Accounts().SetMFA(context.Background(), accountID, enc, 0))
	return key.Secret()
}

func (e *testEnv) code(t *testing.T, secret string) string {
	t.Helper()
	c, err := totp.GenerateCodeCustom(secret, e.clock.Now(), totpOpts)
	require.NoError(t, err)
	return c
}

func (e *testEnv) account(t *testing.T, id string) domain.Account {
	t.Helper()
	a, err := e.store.Accounts().GetAccountByID(context.Background(), id)
	require.NoError(t, err)
	return a
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

var testMeta = domain.RequestMeta{UserAgent: "go-test", IP: "192.0.2.10"}
