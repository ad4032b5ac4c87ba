package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/aussiebroadwan/marquee/internal/auth/domain"
	"github.com/aussiebroadwan/marquee/pkg/guard"
)

func TestHousekeepingCleanup(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	acct := env.createAccount(t, "alice", "correct horse")
	now := env.clock.Now()
	past, future := now.Add(-time.Minute), now.Add(time.Hour)

	for id, exp := range map[string]time.Time{"s-old": past, "s-live": future} {
		require.NoError(t, env.store.Sessions().CreateSession(ctx, domain.Session{
			ID: id, AccountID: acct.ID, AMR: []string{domain.AMRPassword},
			CreatedAt: past.Add(-time.Hour), LastSeenAt: past, ExpiresAt: exp,
		}))
	}
	for id, exp := range map[string]time.Time{"m-old": past, "m-live": future} {
		require.NoError(t, env.store.MFASessions().CreateMFASession(ctx, domain.MFASession{
			ID: id, AccountID: acct.ID, Kind: domain.MFAKindVerify,
			CreatedAt: past.Add(-time.Hour), ExpiresAt: exp,
		}))
	}
	for id, exp := range map[string]time.Time{"c-old": past, "c-live": future} {
		require.NoError(t, env.store.WebAuthn().CreateChallenge(ctx, domain.WebAuthnChallenge{
			ID: id, Purpose: domain.PurposeAuthentication, SessionData: []byte("{}"),
			CreatedAt: past.Add(-time.Hour), ExpiresAt: exp,
		}))
	}
	for state, issued := range map[string]time.Time{"h-old": now.Add(-domain.HandshakeMaxAge - time.Minute), "h-live": now} {
		require.NoError(t, env.store.Handshakes().SaveHandshake(ctx, domain.HandshakeState{
			State: state, Provider: "idp", Purpose: domain.HandshakeLogin, IssuedAt: issued,
		}))
	}

	// One lockout record that ages out before the sweep.
	_, err := env.guard.RecordFailure(ctx, "login:stale", guard.DefaultLoginLockout)
	require.NoError(t, err)
	env.clock.Advance(guard.DefaultLoginLockout.Window + time.Second)

	hk := NewHousekeepingService(env.store, discardLogger(), time.Hour)
	hk.Limiter = env.guard
	hk.Now = func() time.Time { return now }

	r := hk.Cleanup(ctx)
	require.Equal(t, CleanupReport{Sessions: 1, MFASessions: 1, Challenges: 1, Handshakes: 1, LimiterKeys: 1}, r)

	_, err = env.store.Sessions().GetSession(ctx, "s-live")
	require.NoError(t, err)
	_, err = env.store.MFASessions().GetMFASession(ctx, "m-live")
	require.NoError(t, err)
	h, err := env.store.Handshakes().ConsumeHandshake(ctx, "h-live")
	require.NoError(t, err)
	require.Equal(t, "idp", h.Provider)

	require.Equal(t, CleanupReport{}, hk.Cleanup(ctx))
}

func TestHousekeepingStartStop(t *testing.T) {
	env := newTestEnv(t)
	hk := NewHousekeepingService(env.store, discardLogger(), 0)
	require.Equal(t, time.Hour, hk.Interval)

	hk.Start()
	hk.Stop()
}
