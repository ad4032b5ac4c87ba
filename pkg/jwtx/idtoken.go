package jwtx

import (
	"crypto/ecdsa"
	"crypto/ed25519"
	"crypto/rsa"
	"crypto/subtle"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// DefaultIDTokenLeeway allows for drift between us and the provider.
const DefaultIDTokenLeeway = 2 * time.Minute

// IDTokenVerifier validates ID tokens returned from an authorization-code
// exchange: signature, issuer, audience, expiry and nonce.
type IDTokenVerifier struct {
	issuer   string
	audience string
	methods  []string
	keyFunc  jwt.Keyfunc
	leeway   time.Duration
	now      func() time.Time
}

type IDTokenOption func(*IDTokenVerifier)

// WithIDTokenLeeway overrides DefaultIDTokenLeeway.
func WithIDTokenLeeway(d time.Duration) IDTokenOption {
	return func(v *IDTokenVerifier) { v.leeway = d }
}

// WithIDTokenClock replaces time.Now, for tests.
func WithIDTokenClock(now func() time.Time) IDTokenOption {
	return func(v *IDTokenVerifier) { v.now = now }
}

// NewIDTokenVerifier verifies RS256, ES256 and EdDSA tokens against keys,
// usually the provider's JWKS.
func NewIDTokenVerifier(keys *KeySet, issuer, audience string, opts ...IDTokenOption) *IDTokenVerifier {
	v := &IDTokenVerifier{
		issuer:   issuer,
		audience: audience,
		methods: []string{
			jwt.SigningMethodRS256.Alg(),
			jwt.SigningMethodES256.Alg(),
			jwt.SigningMethodEdDSA.Alg(),
		},
		keyFunc: func(t *jwt.Token) (any, error) {
			kid, _ := t.Header["kid"].(string)
			pub, err := keys.Get(kid)
			if err != nil {
				return nil, fmt.Errorf("%w: %q", ErrUnknownKID, kid)
			}
			if !keyMatchesMethod(pub, t.Method) {
				return nil, ErrAlgMismatch
			}
			return pub, nil
		},
	}
	return v.apply(opts)
}

// NewHS512IDTokenVerifier verifies tokens signed with a shared secret, the
// way Duo signs its ID tokens with the client secret.
func NewHS512IDTokenVerifier(secret []byte, issuer, audience string, opts ...IDTokenOption) *IDTokenVerifier {
	key := append([]byte(nil), secret...)
	v := &IDTokenVerifier{
		issuer:   issuer,
		audience: audience,
		methods:  []string{jwt.SigningMethodHS512.Alg()},
		keyFunc:  func(*jwt.Token) (any, error) { return key, nil },
	}
	return v.apply(opts)
}

func (v *IDTokenVerifier) apply(opts []IDTokenOption) *IDTokenVerifier {
	v.leeway = DefaultIDTokenLeeway
	v.now = time.Now
	for _, opt := range opts {
		opt(v)
	}
	return v
}

func keyMatchesMethod(pub any, m jwt.SigningMethod) bool {
	switch pub.(type) {
	case *rsa.PublicKey:
		return m == jwt.SigningMethodRS256
	case *ecdsa.PublicKey:
		return m == jwt.SigningMethodES256
	case ed25519.PublicKey:
		return m == jwt.SigningMethodEdDSA
	default:
		return false
	}
}

// Verify parses token and checks it was minted for us in answer to the
// handshake that carried nonce. An empty nonce skips the nonce check.
func (v *IDTokenVerifier) Verify(token, nonce string) (*IDTokenClaims, error) {
	parser := jwt.NewParser(
		jwt.WithValidMethods(v.methods),
		jwt.WithIssuer(v.issuer),
		jwt.WithAudience(v.audience),
		jwt.WithExpirationRequired(),
		jwt.WithLeeway(v.leeway),
		jwt.WithTimeFunc(v.now),
	)

	claims := &IDTokenClaims{}
	tok, err := parser.ParseWithClaims(token, claims, v.keyFunc)
	if err != nil {
		if tok != nil && tok.Method != nil && !slices.Contains(v.methods, tok.Method.Alg()) {
			return nil, fmt.Errorf("%w: %s", ErrAlgMismatch, tok.Method.Alg())
		}
		return nil, classify(err)
	}
	if !tok.Valid || claims.Subject == "" {
		return nil, fmt.Errorf("%w: missing sub", ErrInvalidClaim)
	}
	if nonce != "" && subtle.ConstantTimeCompare([]byte(claims.Nonce), []byte(nonce)) != 1 {
		return nil, ErrNonce
	}
	return claims, nil
}

// classify maps jwt parser errors onto the jwtx sentinels.
func classify(err error) error {
	var target error
	switch {
	case errors.Is(err, jwt.ErrTokenMalformed):
		target = ErrMalformed
	case errors.Is(err, ErrUnknownKID):
		target = ErrUnknownKID
	case errors.Is(err, ErrAlgMismatch):
		target = ErrAlgMismatch
	case errors.Is(err, jwt.ErrTokenSignatureInvalid):
		target = ErrInvalidSig
	case errors.Is(err, jwt.ErrTokenInvalidIssuer):
		target = ErrIssuer
	case errors.Is(err, jwt.ErrTokenInvalidAudience):
		target = ErrAudience
	case errors.Is(err, jwt.ErrTokenExpired):
		target = ErrExpired
	case errors.Is(err, jwt.ErrTokenNotValidYet), errors.Is(err, jwt.ErrTokenUsedBeforeIssued):
		target = ErrNotYetValid
	default:
		target = ErrInvalidClaim
	}
	return fmt.Errorf("%w: %v", target, err)
}
