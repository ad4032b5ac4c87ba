package jwtx

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const (
	// MinSessionKeyLen is the shortest HS256 key we accept.
	MinSessionKeyLen = 32

	// DefaultSessionLeeway tolerates clock drift between instances.
	DefaultSessionLeeway = 2 * time.Minute
)

var ErrWeakKey = errors.New("jwtx: session signing key must be at least 32 bytes")

var errUnknownSessionKey = errors.New("jwtx: unknown session key")

// InvalidReason says why a session token was rejected. It is for logs only;
// callers must answer every reason with the same 401.
type InvalidReason string

const (
	ReasonNone         InvalidReason = ""
	ReasonMalformed    InvalidReason = "malformed"
	ReasonAlgMismatch  InvalidReason = "alg_mismatch"
	ReasonBadSignature InvalidReason = "bad_signature"
	ReasonExpired      InvalidReason = "expired"
	ReasonNotYetValid  InvalidReason = "not_yet_valid"
	ReasonIncomplete   InvalidReason = "incomplete"
	ReasonUnknownKey   InvalidReason = "unknown_key"
	ReasonWrongIssuer  InvalidReason = "wrong_issuer"
)

// VerifyResult is either valid claims or the reason there are none.
type VerifyResult struct {
	Claims *SessionClaims
	Reason InvalidReason
}

// Valid reports whether the token verified.
func (r VerifyResult) Valid() bool { return r.Reason == ReasonNone && r.Claims != nil }

// SessionKey is one HS256 key and the "kid" it is published under.
type SessionKey struct {
	ID     string
	Secret []byte
}

// SessionIssuer signs and verifies HS256 session tokens. The first key signs;
// the rest only verify, so keys can be rotated without logging everyone out.
type SessionIssuer struct {
	current SessionKey
	keys    map[string][]byte
	issuer  string
	leeway  time.Duration
	now     func() time.Time
}

type SessionIssuerOption func(*SessionIssuer)

// WithSessionIssuer sets the "iss" claim written and required.
func WithSessionIssuer(iss string) SessionIssuerOption {
	return func(s *SessionIssuer) { s.issuer = iss }
}

// WithSessionLeeway overrides DefaultSessionLeeway.
func WithSessionLeeway(d time.Duration) SessionIssuerOption {
	return func(s *SessionIssuer) { s.leeway = d }
}

// WithSessionClock replaces time.Now, for tests.
func WithSessionClock(now func() time.Time) SessionIssuerOption {
	return func(s *SessionIssuer) { s.now = now }
}

// NewSessionIssuer signs with keys[0] and verifies with all of them.
func NewSessionIssuer(keys []SessionKey, opts ...SessionIssuerOption) (*SessionIssuer, error) {
	if len(keys) == 0 {
		return nil, errors.New("jwtx: at least one session key is required")
	}

	s := &SessionIssuer{
		current: keys[0],
		keys:    make(map[string][]byte, len(keys)),
		leeway:  DefaultSessionLeeway,
		now:     time.Now,
	}
	for _, k := range keys {
		if k.ID == "" {
			return nil, errors.New("jwtx: session key id is required")
		}
		if len(k.Secret) < MinSessionKeyLen {
			return nil, fmt.Errorf("%w (kid %q has %d)", ErrWeakKey, k.ID, len(k.Secret))
		}
		if _, dup := s.keys[k.ID]; dup {
			return nil, fmt.Errorf("jwtx: duplicate session key id %q", k.ID)
		}
		s.keys[k.ID] = append([]byte(nil), k.Secret...)
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// KID is the id of the signing key.
func (s *SessionIssuer) KID() string { return s.current.ID }

// Issue signs a session token for accountID that expires after ttl.
func (s *SessionIssuer) Issue(accountID, username string, groups []string, ttl time.Duration, jti string) (string, error) {
	if accountID == "" || username == "" || jti == "" {
		return "", fmt.Errorf("%w: subject, username and jti are required", ErrInvalidClaim)
	}
	if ttl <= 0 {
		return "", fmt.Errorf("%w: ttl must be positive", ErrInvalidClaim)
	}

	now := s.now().UTC()
	claims := SessionClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    s.issuer,
			Subject:   accountID,
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			ID:        jti,
		},
		Username: username,
		Groups:   groups,
	}

	t := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	t.Header["kid"] = s.current.ID
	return t.SignedString(s.keys[s.current.ID])
}

// Verify checks signature, algorithm and time claims. It never returns an
// error: the outcome is in the result.
func (s *SessionIssuer) Verify(token string) VerifyResult {
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithLeeway(s.leeway),
		jwt.WithTimeFunc(s.now),
		jwt.WithExpirationRequired(),
		jwt.WithIssuedAt(),
	}
	if s.issuer != "" {
		opts = append(opts, jwt.WithIssuer(s.issuer))
	}

	claims := &SessionClaims{}
	tok, err := jwt.NewParser(opts...).ParseWithClaims(token, claims, s.keyFunc)
	if err != nil {
		return VerifyResult{Reason: reasonFor(tok, err)}
	}
	if !tok.Valid || claims.Subject == "" || claims.Username == "" || claims.ID == "" {
		return VerifyResult{Reason: ReasonIncomplete}
	}
	return VerifyResult{Claims: claims}
}

func (s *SessionIssuer) keyFunc(t *jwt.Token) (any, error) {
	kid, _ := t.Header["kid"].(string)
	key, ok := s.keys[kid]
	if !ok {
		return nil, errUnknownSessionKey
	}
	return key, nil
}

func reasonFor(tok *jwt.Token, err error) InvalidReason {
	switch {
	case errors.Is(err, jwt.ErrTokenMalformed):
		return ReasonMalformed
	case errors.Is(err, errUnknownSessionKey):
		return ReasonUnknownKey
	case tok == nil || tok.Method == nil || tok.Method.Alg() != jwt.SigningMethodHS256.Alg():
		return ReasonAlgMismatch
	case errors.Is(err, jwt.ErrTokenSignatureInvalid):
		return ReasonBadSignature
	case errors.Is(err, jwt.ErrTokenRequiredClaimMissing):
		return ReasonIncomplete
	case errors.Is(err, jwt.ErrTokenExpired):
		return ReasonExpired
	case errors.Is(err, jwt.ErrTokenNotValidYet), errors.Is(err, jwt.ErrTokenUsedBeforeIssued):
		return ReasonNotYetValid
	case errors.Is(err, jwt.ErrTokenInvalidIssuer):
		return ReasonWrongIssuer
	default:
		return ReasonMalformed
	}
}
