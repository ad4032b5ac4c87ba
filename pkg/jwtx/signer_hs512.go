package jwtx

import (
	"errors"

	"github.com/golang-jwt/jwt/v5"
)

// HS512Signer signs with a shared secret. Duo's Universal Prompt expects the
// authorize request object and the token client_assertion in this form,
// keyed by the client secret.
type HS512Signer struct {
	kid    string
	secret []byte
}

func newHS512Signer(kid string, secret []byte) (*HS512Signer, error) {
	if len(secret) == 0 {
		return nil, errors.New("jwtx: empty HS512 secret")
	}
	return &HS512Signer{kid: kid, secret: append([]byte(nil), secret...)}, nil
}

func (s *HS512Signer) Alg() string { return jwt.SigningMethodHS512.Alg() }
func (s *HS512Signer) KID() string { return s.kid }

// Sign signs claims, adding the kid header only when one is configured.
func (s *HS512Signer) Sign(claims jwt.Claims) (string, error) {
	t := jwt.NewWithClaims(jwt.SigningMethodHS512, claims)
	if s.kid != "" {
		t.Header["kid"] = s.kid
	}
	return t.SignedString(s.secret)
}

func (s *HS512Signer) Validate() error {
	if len(s.secret) == 0 {
		return errors.New("jwtx: empty HS512 secret")
	}
	return nil
}
