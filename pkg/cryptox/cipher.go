package cryptox

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"regexp"
	"strings"

	"golang.org/x/crypto/hkdf"
)

// ErrSecretIntegrity is returned for any payload that cannot be
// authenticated under a configured key. It never carries partial plaintext.
var ErrSecretIntegrity = errors.New("cryptox: secret integrity failure")

const (
	secretKeySize  = 32 // AES-256
	minKeyMaterial = 32
	gcmTagSize     = 16
)

var (
	versionPattern = regexp.MustCompile(`^[A-Za-z0-9_-]{1,16}$`)
	hkdfInfo       = []byte("marquee secret cipher")
)

// Keyring names the key material available to a SecretCipher. Current
// encrypts; everything else only decrypts. Fallback orders the retired keys
// tried after the version-matched one.
type Keyring struct {
	Current  string
	Keys     map[string][]byte
	Fallback []string
}

// ParseKeyring reads "v2=<b64>,v1=<b64>". The first entry becomes Current and
// the rest are fallbacks in the order given. Standard and URL base64 are both
// accepted, padded or not.
func ParseKeyring(spec string) (Keyring, error) {
	kr := Keyring{Keys: map[string][]byte{}}
	for _, entry := range strings.Split(spec, ",") {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		version, encoded, ok := strings.Cut(entry, "=")
		if !ok {
			return Keyring{}, fmt.Errorf("cryptox: keyring entry %q missing '='", version)
		}
		material, err := decodeKeyMaterial(encoded)
		if err != nil {
			return Keyring{}, fmt.Errorf("cryptox: keyring entry %q: %w", version, err)
		}
		if _, dup := kr.Keys[version]; dup {
			return Keyring{}, fmt.Errorf("cryptox: duplicate key version %q", version)
		}
		kr.Keys[version] = material
		if kr.Current == "" {
			kr.Current = version
		} else {
			kr.Fallback = append(kr.Fallback, version)
		}
	}
	if kr.Current == "" {
		return Keyring{}, errors.New("cryptox: keyring is empty")
	}
	return kr, nil
}

func decodeKeyMaterial(s string) ([]byte, error) {
	s = strings.TrimRight(strings.TrimSpace(s), "=")
	if b, err := base64.RawStdEncoding.DecodeString(s); err == nil {
		return b, nil
	}
	return base64.RawURLEncoding.DecodeString(s)
}

// SecretCipher encrypts secrets at rest with AES-256-GCM. Payloads look like
//
//	version:nonce:ciphertext:tag
//
// with each binary field in unpadded base64url. Keys are fixed at
// construction, so a SecretCipher is safe for concurrent use.
type SecretCipher struct {
	current string
	aeads   map[string]cipher.AEAD
	order   []string
}

// NewSecretCipher derives one AEAD per key version. Key material shorter than
// 32 bytes is rejected; material of any length is expanded with HKDF-SHA256.
func NewSecretCipher(kr Keyring) (*SecretCipher, error) {
	if _, ok := kr.Keys[kr.Current]; !ok {
		return nil, fmt.Errorf("cryptox: current key version %q not in keyring", kr.Current)
	}

	c := &SecretCipher{
		current: kr.Current,
		aeads:   make(map[string]cipher.AEAD, len(kr.Keys)),
	}
	for version, material := range kr.Keys {
		if !versionPattern.MatchString(version) {
			return nil, fmt.Errorf("cryptox: invalid key version %q", version)
		}
		if len(material) < minKeyMaterial {
			return nil, fmt.Errorf("cryptox: key %q shorter than %d bytes", version, minKeyMaterial)
		}
		aead, err := newAEAD(material)
		if err != nil {
			return nil, err
		}
		c.aeads[version] = aead
	}

	c.order = append(c.order, kr.Current)
	for _, v := range kr.Fallback {
		if _, ok := c.aeads[v]; !ok {
			return nil, fmt.Errorf("cryptox: fallback key version %q not in keyring", v)
		}
		if v != kr.Current {
			c.order = append(c.order, v)
		}
	}
	return c, nil
}

func newAEAD(material []byte) (cipher.AEAD, error) {
	key := make([]byte, secretKeySize)
	if _, err := io.ReadFull(hkdf.New(sha256.New, material, nil, hkdfInfo), key); err != nil {
		return nil, fmt.Errorf("cryptox: derive key: %w", err)
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("cryptox: create cipher: %w", err)
	}
	return cipher.NewGCM(block)
}

// CurrentVersion is the version tag new payloads are written with.
func (c *SecretCipher) CurrentVersion() string { return c.current }

// Encrypt seals plaintext under the current key with a fresh random nonce.
func (c *SecretCipher) Encrypt(plaintext []byte) (string, error) {
	aead := c.aeads[c.current]

	nonce := make([]byte, aead.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", fmt.Errorf("cryptox: generate nonce: %w", err)
	}

	sealed := aead.Seal(nil, nonce, plaintext, nil)
	ct, tag := sealed[:len(sealed)-gcmTagSize], sealed[len(sealed)-gcmTagSize:]

	enc := base64.RawURLEncoding
	return strings.Join([]string{
		c.current,
		enc.EncodeToString(nonce),
		enc.EncodeToString(ct),
		enc.EncodeToString(tag),
	}, ":"), nil
}

// Decrypt opens payload with the key named by its version tag, then each
// other configured key in fallback order. Every failure is ErrSecretIntegrity.
func (c *SecretCipher) Decrypt(payload string) ([]byte, error) {
	parts := strings.Split(payload, ":")
	if len(parts) != 4 {
		return nil, fmt.Errorf("%w: malformed payload", ErrSecretIntegrity)
	}

	enc := base64.RawURLEncoding
	nonce, err1 := enc.DecodeString(parts[1])
	ct, err2 := enc.DecodeString(parts[2])
	tag, err3 := enc.DecodeString(parts[3])
	if err := errors.Join(err1, err2, err3); err != nil || len(tag) != gcmTagSize {
		return nil, fmt.Errorf("%w: malformed payload", ErrSecretIntegrity)
	}

	sealed := make([]byte, 0, len(ct)+len(tag))
	sealed = append(sealed, ct...)
	sealed = append(sealed, tag...)

	for _, version := range c.candidates(parts[0]) {
		aead := c.aeads[version]
		if len(nonce) != aead.NonceSize() {
			break
		}
		if plaintext, err := aead.Open(nil, nonce, sealed, nil); err == nil {
			if plaintext == nil {
				plaintext = []byte{}
			}
			return plaintext, nil
		}
	}
	return nil, ErrSecretIntegrity
}

func (c *SecretCipher) candidates(tagged string) []string {
	out := make([]string, 0, len(c.order)+1)
	if _, ok := c.aeads[tagged]; ok {
		out = append(out, tagged)
	}
	for _, v := range c.order {
		if v != tagged {
			out = append(out, v)
		}
	}
	return out
}

// EncryptString is Encrypt for string secrets.
func (c *SecretCipher) EncryptString(s string) (string, error) {
	return c.Encrypt([]byte(s))
}

// DecryptString is Decrypt for string secrets.
func (c *SecretCipher) DecryptString(payload string) (string, error) {
	b, err := c.Decrypt(payload)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// NeedsRotation reports whether payload was written under a key other than
// the current one.
func (c *SecretCipher) NeedsRotation(payload string) bool {
	version, _, _ := strings.Cut(payload, ":")
	return version != c.current
}
