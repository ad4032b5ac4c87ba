package cryptox

import (
	"encoding/base64"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestGenerateToken(t *testing.T) {
	tests := []struct {
		name string
		size int
	}{
		{"128-bit token", TokenSize128},
		{"256-bit token", TokenSize256},
		{"512-bit token", TokenSize512},
		{"custom size", 24},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			token, err := GenerateToken(tt.size)
			require.NoError(t, err)

			raw, err := base64.RawURLEncoding.DecodeString(token)
			require.NoError(t, err)
			require.Len(t, raw, tt.size)

			other, err := GenerateToken(tt.size)
			require.NoError(t, err)
			require.NotEqual(t, token, other)
		})
	}
}

func TestGenerateTokenInvalidSize(t *testing.T) {
	for _, size := range []int{0, -1} {
		token, err := GenerateToken(size)
		require.Error(t, err)
		require.Empty(t, token)
	}
}

func TestFingerprintToken(t *testing.T) {
	a := FingerprintToken("token")
	require.Equal(t, a, FingerprintToken("token"))
	require.NotEqual(t, a, FingerprintToken("token2"))
	require.Len(t, a, 43)
}

func TestConstantTimeEqual(t *testing.T) {
	require.True(t, ConstantTimeEqual("abc", "abc"))
	require.False(t, ConstantTimeEqual("abc", "abd"))
	require.False(t, ConstantTimeEqual("abc", "abcd"))
	require.False(t, ConstantTimeEqual("", ""))
	require.False(t, ConstantTimeEqual("abc", ""))
}

func TestGenerateKeys(t *testing.T) {
	_, err := GenerateRSAKey(1024)
	require.Error(t, err)

	pemKey, err := GenerateES256Key()
	require.NoError(t, err)
	require.Contains(t, string(pemKey), "BEGIN PRIVATE KEY")

	_, err = GenerateSymmetricKey(16)
	require.Error(t, err)

	k, err := GenerateSymmetricKey(32)
	require.NoError(t, err)
	require.Len(t, k, 32)
}
