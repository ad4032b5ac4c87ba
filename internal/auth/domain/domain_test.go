package domain

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestCheckSignCount(t *testing.T) {
	tests := []struct {
		name             string
		stored, reported uint32
		ok               bool
	}{
		{"both zero", 0, 0, true},
		{"increase", 5, 6, true},
		{"first use", 0, 1, true},
		{"equal", 5, 5, false},
		{"decrease", 5, 4, false},
		{"reset to zero", 5, 0, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := CheckSignCount(tt.stored, tt.reported)
			if tt.ok {
				require.NoError(t, err)
				return
			}
			require.ErrorIs(t, err, ErrCloneSuspected)
		})
	}
}

func TestRetryErrors(t *testing.T) {
	err := fmt.Errorf("login: %w", &LockedOutError{RetryAfter: time.Minute})
	require.ErrorIs(t, err, ErrLockedOut)
	require.NotErrorIs(t, err, ErrRateLimited)
	require.Equal(t, "locked_out", Code(err))

	var locked *LockedOutError
	require.True(t, errors.As(err, &locked))
	require.Equal(t, time.Minute, locked.RetryAfterDuration())

	err = &RateLimitedError{RetryAfter: time.Second}
	require.ErrorIs(t, err, ErrRateLimited)
	require.Equal(t, "rate_limited", Code(err))
}

func TestCode(t *testing.T) {
	require.Equal(t, "unauthenticated", Code(fmt.Errorf("x: %w", ErrUnauthenticated)))
	require.Equal(t, "server_error", Code(ErrSecretIntegrity))
	require.Equal(t, "server_error", Code(errors.New("boom")))
}

func TestHandshakeFresh(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	h := HandshakeState{IssuedAt: now}

	require.True(t, h.Fresh(now))
	require.True(t, h.Fresh(now.Add(HandshakeMaxAge)))
	require.False(t, h.Fresh(now.Add(HandshakeMaxAge+time.Second)))
	require.False(t, h.Fresh(now.Add(-2*time.Minute)))
}

func TestNormalizeUsername(t *testing.T) {
	require.Equal(t, "alice", NormalizeUsername("  Alice "))
	require.True(t, Account{Groups: []string{GroupAdmin}}.InGroup(GroupAdmin))
	require.False(t, Account{}.HasMFA())
}
