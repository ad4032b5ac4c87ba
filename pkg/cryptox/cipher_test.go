package cryptox_test

import (
	"bytes"
	"encoding/base64"
	"strings"
	"testing"

	"github.com/aussiebroadwan/marquee/pkg/cryptox"
	"github.com/stretchr/testify/require"
)

func material(b byte) []byte { return bytes.Repeat([]byte{b}, 32) }

func newCipher(t *testing.T, kr cryptox.Keyring) *cryptox.SecretCipher {
	t.Helper()
	c, err := cryptox.NewSecretCipher(kr)
	require.NoError(t, err)
	return c
}

func TestSecretCipherRoundTrip(t *testing.T) {
	c := newCipher(t, cryptox.Keyring{Current: "v1", Keys: map[string][]byte{"v1": material(1)}})

	inputs := [][]byte{
		{},
		[]byte("a"),
		[]byte("sonarr-api-key-0123456789"),
		bytes.Repeat([]byte{0x00, 0xff}, 2048),
	}

	for _, in := range inputs {
		payload, err := c.Encrypt(in)
		require.NoError(t, err)
		require.True(t, strings.HasPrefix(payload, "v1:"))
		require.Len(t, strings.Split(payload, ":"), 4)

		out, err := c.Decrypt(payload)
		require.NoError(t, err)
		require.Equal(t, in, out)
	}
}

func TestSecretCipherFreshNonce(t *testing.T) {
	c := newCipher(t, cryptox.Keyring{Current: "v1", Keys: map[string][]byte{"v1": material(1)}})

	a, err := c.EncryptString("same")
	require.NoError(t, err)
	b, err := c.EncryptString("same")
	require.NoError(t, err)
	require.NotEqual(t, a, b)
}

func TestSecretCipherTamperDetection(t *testing.T) {
	c := newCipher(t, cryptox.Keyring{Current: "v1", Keys: map[string][]byte{"v1": material(1)}})

	payload, err := c.EncryptString("top secret value")
	require.NoError(t, err)
	parts := strings.Split(payload, ":")

	// Flip every bit of the ciphertext and the tag in turn.
	for _, field := range []int{2, 3} {
		raw, err := base64.RawURLEncoding.DecodeString(parts[field])
		require.NoError(t, err)

		for i := range raw {
			for bit := 0; bit < 8; bit++ {
				mutated := append([]byte(nil), raw...)
				mutated[i] ^= 1 << bit

				tampered := append([]string(nil), parts...)
				tampered[field] = base64.RawURLEncoding.EncodeToString(mutated)

				out, err := c.Decrypt(strings.Join(tampered, ":"))
				require.ErrorIs(t, err, cryptox.ErrSecretIntegrity)
				require.Nil(t, out)
			}
		}
	}
}

func TestSecretCipherMalformed(t *testing.T) {
	c := newCipher(t, cryptox.Keyring{Current: "v1", Keys: map[string][]byte{"v1": material(1)}})

	for _, in := range []string{"", "v1", "v1:a:b", "v1:!!:!!:!!", "v1:a:b:c:d", "v1:AAAA:AAAA:AAAA"} {
		_, err := c.Decrypt(in)
		require.ErrorIs(t, err, cryptox.ErrSecretIntegrity, in)
	}
}

func TestSecretCipherRotation(t *testing.T) {
	old := newCipher(t, cryptox.Keyring{Current: "v1", Keys: map[string][]byte{"v1": material(1)}})
	payload, err := old.EncryptString("legacy token")
	require.NoError(t, err)

	t.Run("version matched fallback", func(t *testing.T) {
		rotated := newCipher(t, cryptox.Keyring{
			Current:  "v2",
			Keys:     map[string][]byte{"v2": material(2), "v1": material(1)},
			Fallback: []string{"v1"},
		})

		out, err := rotated.DecryptString(payload)
		require.NoError(t, err)
		require.Equal(t, "legacy token", out)
		require.True(t, rotated.NeedsRotation(payload))

		fresh, err := rotated.EncryptString("new")
		require.NoError(t, err)
		require.True(t, strings.HasPrefix(fresh, "v2:"))
		require.False(t, rotated.NeedsRotation(fresh))
	})

	t.Run("unknown version falls back", func(t *testing.T) {
		renamed := newCipher(t, cryptox.Keyring{
			Current:  "v3",
			Keys:     map[string][]byte{"v3": material(3), "archive": material(1)},
			Fallback: []string{"archive"},
		})

		out, err := renamed.DecryptString(payload)
		require.NoError(t, err)
		require.Equal(t, "legacy token", out)
	})

	t.Run("no matching key", func(t *testing.T) {
		other := newCipher(t, cryptox.Keyring{Current: "v1", Keys: map[string][]byte{"v1": material(9)}})

		_, err := other.DecryptString(payload)
		require.ErrorIs(t, err, cryptox.ErrSecretIntegrity)
	})
}

func TestNewSecretCipherValidation(t *testing.T) {
	tests := []struct {
		name string
		kr   cryptox.Keyring
	}{
		{"missing current", cryptox.Keyring{Current: "v2", Keys: map[string][]byte{"v1": material(1)}}},
		{"short key", cryptox.Keyring{Current: "v1", Keys: map[string][]byte{"v1": []byte("short")}}},
		{"bad version", cryptox.Keyring{Current: "v:1", Keys: map[string][]byte{"v:1": material(1)}}},
		{"unknown fallback", cryptox.Keyring{Current: "v1", Keys: map[string][]byte{"v1": material(1)}, Fallback: []string{"v0"}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := cryptox.NewSecretCipher(tt.kr)
			require.Error(t, err)
		})
	}
}

func TestParseKeyring(t *testing.T) {
	k2 := base64.StdEncoding.EncodeToString(material(2))
	k1 := base64.RawURLEncoding.EncodeToString(material(1))

	kr, err := cryptox.ParseKeyring("v2=" + k2 + ", v1=" + k1)
	require.NoError(t, err)
	require.Equal(t, "v2", kr.Current)
	require.Equal(t, []string{"v1"}, kr.Fallback)
	require.Equal(t, material(2), kr.Keys["v2"])
	require.Equal(t, material(1), kr.Keys["v1"])

	_, err = cryptox.ParseKeyring("")
	require.Error(t, err)

	_, err = cryptox.ParseKeyring("v1")
	require.Error(t, err)

	_, err = cryptox.ParseKeyring("v1=" + k1 + ",v1=" + k1)
	require.Error(t, err)
}
