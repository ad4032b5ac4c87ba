package cryptox

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"math/big"
	"strings"

	"golang.org/x/crypto/argon2"
	"golang.org/x/crypto/scrypt"
)

// ScryptParams controls the cost of newly derived password hashes. Stored
// hashes carry their own parameters, so changing these never breaks them.
type ScryptParams struct {
	LogN    uint8 // N = 1 << LogN
	R       int
	P       int
	KeyLen  int
	SaltLen int
}

// DefaultScryptParams is N=32768, r=8, p=1 (about 32 MiB per derivation).
var DefaultScryptParams = ScryptParams{
	LogN:    15,
	R:       8,
	P:       1,
	KeyLen:  32,
	SaltLen: 16,
}

// Legacy hashes are "salt:hex(key)" with the salt text used verbatim as the
// KDF salt and these fixed parameters. They were never peppered.
const (
	legacyN      = 16384
	legacyR      = 8
	legacyP      = 1
	legacyKeyLen = 64
)

// Upper bounds applied when parsing stored hashes.
const (
	maxLogN = 20
	maxRP   = 1 << 20
)

var ErrInvalidParams = errors.New("cryptox: invalid scrypt parameters")

// Hasher hashes and verifies passwords. It is safe for concurrent use.
type Hasher struct {
	params ScryptParams
	pepper []byte
}

// NewHasher validates params and returns a Hasher. pepper may be nil.
func NewHasher(params ScryptParams, pepper []byte) (*Hasher, error) {
	if params.LogN < 10 || params.LogN > maxLogN {
		return nil, fmt.Errorf("%w: ln=%d", ErrInvalidParams, params.LogN)
	}
	if params.R <= 0 || params.P <= 0 || params.R*params.P >= maxRP {
		return nil, fmt.Errorf("%w: r=%d p=%d", ErrInvalidParams, params.R, params.P)
	}
	if params.KeyLen < 16 || params.SaltLen < 16 {
		return nil, fmt.Errorf("%w: key or salt too short", ErrInvalidParams)
	}
	return &Hasher{params: params, pepper: append([]byte(nil), pepper...)}, nil
}

// Hash derives a new self-describing hash:
//
//	$scrypt$ln=15,r=8,p=1$<salt>$<key>
func (h *Hasher) Hash(password string) (string, error) {
	salt := make([]byte, h.params.SaltLen)
	if _, err := rand.Read(salt); err != nil {
		return "", fmt.Errorf("cryptox: salt: %w", err)
	}

	key, err := scrypt.Key(h.peppered(password), salt, 1<<h.params.LogN, h.params.R, h.params.P, h.params.KeyLen)
	if err != nil {
		return "", fmt.Errorf("cryptox: scrypt: %w", err)
	}

	return fmt.Sprintf("$scrypt$ln=%d,r=%d,p=%d$%s$%s",
		h.params.LogN,
		h.params.R,
		h.params.P,
		base64.RawStdEncoding.EncodeToString(salt),
		base64.RawStdEncoding.EncodeToString(key),
	), nil
}

// Verify reports whether password matches encoded. Malformed or empty hashes
// report false with a nil error. A non-nil error means the KDF itself failed
// and must be treated as an internal error, not a mismatch.
func (h *Hasher) Verify(password, encoded string) (bool, error) {
	switch {
	case encoded == "":
		return false, nil
	case strings.HasPrefix(encoded, "$scrypt$"):
		return h.verifyScrypt(password, encoded)
	case strings.HasPrefix(encoded, "$argon2id$"):
		return h.verifyArgon2id(password, encoded)
	case strings.Count(encoded, ":") == 1:
		return verifyLegacy(password, encoded)
	default:
		return false, nil
	}
}

// NeedsRehash reports whether encoded should be replaced by a fresh Hash on
// the next successful login.
func (h *Hasher) NeedsRehash(encoded string) bool {
	if !strings.HasPrefix(encoded, "$scrypt$") {
		return true
	}
	p, _, key, ok := parseScrypt(encoded)
	if !ok {
		return true
	}
	return p.LogN < h.params.LogN || p.R < h.params.R || p.P < h.params.P || len(key) < h.params.KeyLen
}

func (h *Hasher) peppered(password string) []byte {
	b := make([]byte, 0, len(password)+len(h.pepper))
	b = append(b, password...)
	return append(b, h.pepper...)
}

func (h *Hasher) verifyScrypt(password, encoded string) (bool, error) {
	p, salt, want, ok := parseScrypt(encoded)
	if !ok {
		return false, nil
	}

	got, err := scrypt.Key(h.peppered(password), salt, 1<<p.LogN, p.R, p.P, len(want))
	if err != nil {
		return false, fmt.Errorf("cryptox: scrypt: %w", err)
	}
	return subtle.ConstantTimeCompare(got, want) == 1, nil
}

// parseScrypt splits "$scrypt$ln=..,r=..,p=..$salt$key".
func parseScrypt(encoded string) (ScryptParams, []byte, []byte, bool) {
	parts := strings.Split(encoded, "$")
	if len(parts) != 5 || parts[0] != "" || parts[1] != "scrypt" {
		return ScryptParams{}, nil, nil, false
	}

	var p ScryptParams
	if _, err := fmt.Sscanf(parts[2], "ln=%d,r=%d,p=%d", &p.LogN, &p.R, &p.P); err != nil {
		return ScryptParams{}, nil, nil, false
	}
	if p.LogN < 1 || p.LogN > maxLogN || p.R <= 0 || p.P <= 0 || p.R*p.P >= maxRP {
		return ScryptParams{}, nil, nil, false
	}

	salt, err := base64.RawStdEncoding.DecodeString(parts[3])
	if err != nil || len(salt) == 0 {
		return ScryptParams{}, nil, nil, false
	}
	key, err := base64.RawStdEncoding.DecodeString(parts[4])
	if err != nil || len(key) == 0 {
		return ScryptParams{}, nil, nil, false
	}

	p.KeyLen = len(key)
	p.SaltLen = len(salt)
	return p, salt, key, true
}

// verifyArgon2id accepts hashes written before the switch to scrypt:
//
//	$argon2id$v=19$m=19456,t=2,p=1$<salt>$<key>
func (h *Hasher) verifyArgon2id(password, encoded string) (bool, error) {
	parts := strings.Split(encoded, "$")
	if len(parts) != 6 || parts[2] != "v=19" {
		return false, nil
	}

	var mem, iters uint32
	var par uint8
	if _, err := fmt.Sscanf(parts[3], "m=%d,t=%d,p=%d", &mem, &iters, &par); err != nil {
		return false, nil
	}
	if mem == 0 || mem > 1<<22 || iters == 0 || iters > 64 || par == 0 {
		return false, nil
	}

	salt, err := base64.RawStdEncoding.DecodeString(parts[4])
	if err != nil {
		return false, nil
	}
	want, err := base64.RawStdEncoding.DecodeString(parts[5])
	if err != nil || len(want) == 0 {
		return false, nil
	}

	got := argon2.IDKey(h.peppered(password), salt, iters, mem, par, uint32(len(want))) // #nosec G115
	return subtle.ConstantTimeCompare(got, want) == 1, nil
}

func verifyLegacy(password, encoded string) (bool, error) {
	salt, keyHex, _ := strings.Cut(encoded, ":")
	if salt == "" {
		return false, nil
	}
	want, err := hex.DecodeString(keyHex)
	if err != nil || len(want) != legacyKeyLen {
		return false, nil
	}

	got, err := scrypt.Key([]byte(password), []byte(salt), legacyN, legacyR, legacyP, legacyKeyLen)
	if err != nil {
		return false, fmt.Errorf("cryptox: scrypt: %w", err)
	}
	return subtle.ConstantTimeCompare(got, want) == 1, nil
}

// GeneratePassword returns a random 16 character alphanumeric password, used
// when an administrator creates an account without one.
func GeneratePassword() (string, error) {
	const charset = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
	const length = 16
	password := make([]byte, length)
	for i := range password {
		n, err := rand.Int(rand.Reader, big.NewInt(int64(len(charset))))
		if err != nil {
			return "", fmt.Errorf("cryptox: generate password: %w", err)
		}
		password[i] = charset[n.Int64()]
	}
	return string(password), nil
}
