package service

import (
	"bytes"
	"context"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/go-webauthn/webauthn/protocol"
	"github.com/go-webauthn/webauthn/protocol/webauthncbor"
	"github.com/stretchr/testify/require"

	"github.com/aussiebroadwan/marquee/internal/auth/domain"
	"github.com/aussiebroadwan/marquee/pkg/slogx"
)

const (
	testRPID   = "marquee.example"
	testOrigin = "https://marquee.example"
)

func newWebAuthnService(t *testing.T, env *testEnv) *WebAuthnService {
	t.Helper()
	wa, err := NewWebAuthn(WebAuthnConfig{
		RPID:          testRPID,
		RPDisplayName: "Marquee",
		RPOrigins:     []string{testOrigin},
	})
	require.NoError(t, err)
	return &WebAuthnService{
		Store:    env.store,
		WebAuthn: wa,
		MFA:      env.mfa,
		Audit:    env.audit,
		Now:      env.clock.Now,
	}
}

// softKey is a software authenticator holding one ES256 credential.
type softKey struct {
	id     []byte
	priv   *ecdsa.PrivateKey
	handle []byte
	count  uint32
	uv     bool
}

func newSoftKey(t *testing.T, uv bool) *softKey {
	t.Helper()
	priv, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)
	id := make([]byte, 32)
	_, err = rand.Read(id)
	require.NoError(t, err)
	return &softKey{id: id, priv: priv, uv: uv}
}

func b64(b []byte) string { return base64.RawURLEncoding.EncodeToString(b) }

func (k *softKey) flags(attested bool) byte {
	f := byte(0x01) // UP
	if k.uv {
		f |= 0x04
	}
	if attested {
		f |= 0x40
	}
	return f
}

func (k *softKey) authData(attested bool) []byte {
	rpHash := sha256.Sum256([]byte(testRPID))
	var buf bytes.Buffer
	buf.Write(rpHash[:])
	buf.WriteByte(k.flags(attested))
	_ = binary.Write(&buf, binary.BigEndian, k.count)
	return buf.Bytes()
}

func (k *softKey) coseKey(t *testing.T) []byte {
	t.Helper()
	pub, err := k.priv.PublicKey.ECDH()
	require.NoError(t, err)
	raw := pub.Bytes() // 0x04 || X || Y
	key, err := webauthncbor.Marshal(map[int]any{
		1:  2,  // kty: EC2
		3:  -7, // alg: ES256
		-1: 1,  // crv: P-256
		-2: raw[1:33],
		-3: raw[33:65],
	})
	require.NoError(t, err)
	return key
}

func clientData(typ string, challenge protocol.URLEncodedBase64) []byte {
	b, _ := json.Marshal(map[string]any{
		"type":        typ,
		"challenge":   b64(challenge),
		"origin":      testOrigin,
		"crossOrigin": false,
	})
	return b
}

// attest answers navigator.credentials.create.
func (k *softKey) attest(t *testing.T, opts *protocol.CredentialCreation) string {
	t.Helper()

	var ad bytes.Buffer
	ad.Write(k.authData(true))
	ad.Write(make([]byte, 16)) // aaguid
	_ = binary.Write(&ad, binary.BigEndian, uint16(len(k.id)))
	ad.Write(k.id)
	ad.Write(k.coseKey(t))

	att, err := webauthncbor.Marshal(map[string]any{
		"fmt":      "none",
		"attStmt":  map[string]any{},
		"authData": ad.Bytes(),
	})
	require.NoError(t, err)

	body, err := json.Marshal(map[string]any{
		"id":    b64(k.id),
		"rawId": b64(k.id),
		"type":  "public-key",
		"response": map[string]any{
			"clientDataJSON":    b64(clientData("webauthn.create", opts.Response.Challenge)),
			"attestationObject": b64(att),
		},
		"clientExtensionResults": map[string]any{},
	})
	require.NoError(t, err)
	return string(body)
}

// assert answers navigator.credentials.get.
func (k *softKey) assert(t *testing.T, opts *protocol.CredentialAssertion) string {
	t.Helper()
	k.count++
	ad := k.authData(false)
	cd := clientData("webauthn.get", opts.Response.Challenge)
	cdHash := sha256.Sum256(cd)
	digest := sha256.Sum256(append(append([]byte(nil), ad...), cdHash[:]...))
	sig, err := ecdsa.SignASN1(rand.Reader, k.priv, digest[:])
	require.NoError(t, err)

	body, err := json.Marshal(map[string]any{
		"id":    b64(k.id),
		"rawId": b64(k.id),
		"type":  "public-key",
		"response": map[string]any{
			"clientDataJSON":    b64(cd),
			"authenticatorData": b64(ad),
			"signature":         b64(sig),
			"userHandle":        b64(k.handle),
		},
		"clientExtensionResults": map[string]any{},
	})
	require.NoError(t, err)
	return string(body)
}

func registerSoftKey(t *testing.T, svc *WebAuthnService, acct domain.Account, uv bool) *softKey {
	t.Helper()
	ctx := context.Background()
	key := newSoftKey(t, uv)
	key.handle = acct.WebAuthnHandle

	reg, err := svc.BeginRegistration(ctx, acct)
	require.NoError(t, err)
	cred, err := svc.FinishRegistration(ctx, acct, reg.ChallengeID, "YubiKey", strings.NewReader(key.attest(t, reg.Options)))
	require.NoError(t, err)
	require.Equal(t, key.id, cred.ID)
	require.Equal(t, "YubiKey", cred.Name)
	require.Equal(t, domain.DeviceSingle, cred.DeviceType)
	return key
}

func TestWebAuthnPasskeyLogin(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	svc := newWebAuthnService(t, env)
	acct := env.createAccount(t, "alice", "correct horse")
	key := registerSoftKey(t, svc, acct, true)
	require.Contains(t, env.audit.Names(), domain.EventWebAuthnRegistered)

	// TOTP on the account is not asked for when the passkey verified the user.
	env.enrollTOTP(t, acct.ID)

	opts, err := svc.BeginLogin(ctx, "")
	require.NoError(t, err)
	require.Empty(t, opts.Options.Response.AllowedCredentials)

	out, err := svc.FinishLogin(ctx, FinishLoginRequest{
		ChallengeID: opts.ChallengeID,
		Body:        strings.NewReader(key.assert(t, opts.Options)),
		Meta:        testMeta,
		Next:        "/discover",
	})
	require.NoError(t, err)
	require.Equal(t, domain.StateSessionIssued, out.State)
	require.Equal(t, "/discover", out.Next)
	require.ElementsMatch(t, []string{domain.AMRHardware, domain.AMRUserVerified}, out.Session.AMR)

	creds, err := svc.ListCredentials(ctx, acct.ID)
	require.NoError(t, err)
	require.Len(t, creds, 1)
	require.EqualValues(t, 1, creds[0].SignCount)
	require.NotNil(t, creds[0].LastUsedAt)
}

func TestWebAuthnCounterRegressionRejected(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	svc := newWebAuthnService(t, env)
	acct := env.createAccount(t, "alice", "correct horse")
	key := registerSoftKey(t, svc, acct, true)

	login := func() (domain.LoginOutcome, error) {
		opts, err := svc.BeginLogin(ctx, "")
		require.NoError(t, err)
		return svc.FinishLogin(ctx, FinishLoginRequest{
			ChallengeID: opts.ChallengeID,
			Body:        strings.NewReader(key.assert(t, opts.Options)),
			Meta:        testMeta,
		})
	}

	for range 2 {
		_, err := login()
		require.NoError(t, err)
	}
	before, err := env.sessions.ListForAccount(ctx, acct.ID)
	require.NoError(t, err)
	require.Len(t, before, 2)

	// Equal counter (2 vs 2), then a lower one (1 vs 2). The warning carries
	// the value the key sent.
	var logs bytes.Buffer
	ctx = slogx.WithContext(ctx, slog.New(slog.NewTextHandler(&logs, nil)))
	for _, reset := range []uint32{1, 0} {
		logs.Reset()
		key.count = reset
		_, err := login()
		require.ErrorIs(t, err, domain.ErrCloneSuspected)
		require.Contains(t, logs.String(), "stored=2")
		require.Contains(t, logs.String(), fmt.Sprintf("reported=%d", reset+1))
	}

	after, err := env.sessions.ListForAccount(ctx, acct.ID)
	require.NoError(t, err)
	require.Len(t, after, 2)

	creds, err := svc.ListCredentials(ctx, acct.ID)
	require.NoError(t, err)
	require.EqualValues(t, 2, creds[0].SignCount)
}

func TestWebAuthnWithoutUserVerificationNeedsTOTP(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	svc := newWebAuthnService(t, env)
	acct := env.createAccount(t, "alice", "correct horse")
	key := registerSoftKey(t, svc, acct, false)
	secret := env.enrollTOTP(t, acct.ID)

	opts, err := svc.BeginLogin(ctx, "")
	require.NoError(t, err)
	out, err := svc.FinishLogin(ctx, FinishLoginRequest{
		ChallengeID: opts.ChallengeID,
		Body:        strings.NewReader(key.assert(t, opts.Options)),
		Meta:        testMeta,
	})
	require.NoError(t, err)
	require.Equal(t, domain.StateMFAPendingVerify, out.State)

	done, err := env.mfa.SubmitCode(ctx, out.MFAToken, env.code(t, secret), testMeta)
	require.NoError(t, err)
	require.Equal(t, []string{domain.AMRHardware, domain.AMROTP}, done.Session.AMR)
}

func TestWebAuthnAsSecondFactor(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	svc := newWebAuthnService(t, env)
	acct, _, pending := startVerify(t, env)
	key := registerSoftKey(t, svc, acct, false)

	opts, err := svc.BeginLogin(ctx, pending.MFAToken)
	require.NoError(t, err)
	require.Len(t, opts.Options.Response.AllowedCredentials, 1)

	out, err := svc.FinishLogin(ctx, FinishLoginRequest{
		ChallengeID: opts.ChallengeID,
		Body:        strings.NewReader(key.assert(t, opts.Options)),
		MFAToken:    pending.MFAToken,
		Meta:        testMeta,
	})
	require.NoError(t, err)
	require.Equal(t, domain.StateSessionIssued, out.State)
	require.Equal(t, "/after", out.Next)
	require.Equal(t, []string{domain.AMRPassword, domain.AMRHardware}, out.Session.AMR)

	_, err = env.mfa.SubmitCode(ctx, pending.MFAToken, "123456", testMeta)
	require.ErrorIs(t, err, domain.ErrInvalidChallenge)
}

func TestWebAuthnChallenges(t *testing.T) {
	ctx := context.Background()

	t.Run("single use", func(t *testing.T) {
		env := newTestEnv(t)
		svc := newWebAuthnService(t, env)
		acct := env.createAccount(t, "alice", "correct horse")
		key := newSoftKey(t, true)

		reg, err := svc.BeginRegistration(ctx, acct)
		require.NoError(t, err)
		body := key.attest(t, reg.Options)
		_, err = svc.FinishRegistration(ctx, acct, reg.ChallengeID, "", strings.NewReader(body))
		require.NoError(t, err)
		_, err = svc.FinishRegistration(ctx, acct, reg.ChallengeID, "", strings.NewReader(body))
		require.ErrorIs(t, err, domain.ErrInvalidChallenge)
	})

	t.Run("consumed even when the response is garbage", func(t *testing.T) {
		env := newTestEnv(t)
		svc := newWebAuthnService(t, env)

		opts, err := svc.BeginLogin(ctx, "")
		require.NoError(t, err)
		_, err = svc.FinishLogin(ctx, FinishLoginRequest{ChallengeID: opts.ChallengeID, Body: strings.NewReader("{}")})
		require.ErrorIs(t, err, domain.ErrCredentialInvalid)
		_, err = svc.FinishLogin(ctx, FinishLoginRequest{ChallengeID: opts.ChallengeID, Body: strings.NewReader("{}")})
		require.ErrorIs(t, err, domain.ErrInvalidChallenge)
	})

	t.Run("wrong purpose", func(t *testing.T) {
		env := newTestEnv(t)
		svc := newWebAuthnService(t, env)
		acct := env.createAccount(t, "alice", "correct horse")

		reg, err := svc.BeginRegistration(ctx, acct)
		require.NoError(t, err)
		_, err = svc.FinishLogin(ctx, FinishLoginRequest{ChallengeID: reg.ChallengeID, Body: strings.NewReader("{}")})
		require.ErrorIs(t, err, domain.ErrInvalidChallenge)
	})

	t.Run("other account", func(t *testing.T) {
		env := newTestEnv(t)
		svc := newWebAuthnService(t, env)
		alice := env.createAccount(t, "alice", "correct horse")
		bob := env.createAccount(t, "bob", "battery staple")

		reg, err := svc.BeginRegistration(ctx, alice)
		require.NoError(t, err)
		_, err = svc.FinishRegistration(ctx, bob, reg.ChallengeID, "", strings.NewReader("{}"))
		require.ErrorIs(t, err, domain.ErrInvalidChallenge)
	})

	t.Run("expired", func(t *testing.T) {
		env := newTestEnv(t)
		svc := newWebAuthnService(t, env)
		acct := env.createAccount(t, "alice", "correct horse")
		key := newSoftKey(t, true)

		reg, err := svc.BeginRegistration(ctx, acct)
		require.NoError(t, err)
		env.clock.Advance(DefaultChallengeTTL + time.Second)
		_, err = svc.FinishRegistration(ctx, acct, reg.ChallengeID, "", strings.NewReader(key.attest(t, reg.Options)))
		require.ErrorIs(t, err, domain.ErrInvalidChallenge)
	})

	t.Run("second factor needs a verify session with passkeys", func(t *testing.T) {
		env := newTestEnv(t)
		svc := newWebAuthnService(t, env)
		_, _, pending := startVerify(t, env)

		_, err := svc.BeginLogin(ctx, pending.MFAToken)
		require.ErrorIs(t, err, domain.ErrInvalidRequest)
		_, err = svc.BeginLogin(ctx, "unknown")
		require.ErrorIs(t, err, domain.ErrInvalidChallenge)
	})
}

func TestWebAuthnDeleteCredential(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	svc := newWebAuthnService(t, env)
	acct := env.createAccount(t, "alice", "correct horse")
	key := registerSoftKey(t, svc, acct, true)

	require.ErrorIs(t, svc.DeleteCredential(ctx, acct, []byte("nope"), ""), domain.ErrNotFound)
	require.NoError(t, svc.DeleteCredential(ctx, acct, key.id, ""))

	creds, err := svc.ListCredentials(ctx, acct.ID)
	require.NoError(t, err)
	require.Empty(t, creds)
}
