package jwtx

import (
	"crypto"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"errors"
	"fmt"

	"github.com/golang-jwt/jwt/v5"
)

// asymSigner signs with an RSA or ECDSA private key. Marquee never issues
// asymmetric tokens itself; these play the identity provider in tests.
type asymSigner struct {
	kid    string
	method jwt.SigningMethod
	key    crypto.Signer
	jwk    JWK
}

func newRS256Signer(kid string, pemKey []byte) (*asymSigner, error) {
	priv, err := parsePrivateKeyPEM(pemKey)
	if err != nil {
		return nil, err
	}
	rk, ok := priv.(*rsa.PrivateKey)
	if !ok {
		return nil, errors.New("jwtx: not RSA private key")
	}
	return &asymSigner{
		kid:    kid,
		method: jwt.SigningMethodRS256,
		key:    rk,
		jwk:    NewRSAJWK(kid, "sig", jwt.SigningMethodRS256.Alg(), &rk.PublicKey),
	}, nil
}

func newES256Signer(kid string, pemKey []byte) (*asymSigner, error) {
	block, _ := pem.Decode(pemKey)
	if block == nil {
		return nil, errors.New("jwtx: invalid PEM for ES256 key")
	}
	if block.Type != "PRIVATE KEY" {
		return nil, fmt.Errorf("jwtx: expected PRIVATE KEY, got %q (ES256 requires PKCS8)", block.Type)
	}
	priv, err := parsePrivateKeyPEM(pemKey)
	if err != nil {
		return nil, err
	}
	ek, ok := priv.(*ecdsa.PrivateKey)
	if !ok {
		return nil, errors.New("jwtx: not ECDSA private key")
	}
	if ek.Curve != elliptic.P256() {
		return nil, fmt.Errorf("jwtx: expected P-256 curve, got %s", ek.Curve.Params().Name)
	}
	return &asymSigner{
		kid:    kid,
		method: jwt.SigningMethodES256,
		key:    ek,
		jwk:    NewES256JWK(kid, "sig", jwt.SigningMethodES256.Alg(), &ek.PublicKey),
	}, nil
}

// parsePrivateKeyPEM accepts PKCS1 RSA and PKCS8 keys.
func parsePrivateKeyPEM(pemKey []byte) (any, error) {
	block, _ := pem.Decode(pemKey)
	if block == nil {
		return nil, errors.New("jwtx: invalid PEM private key")
	}
	switch block.Type {
	case "RSA PRIVATE KEY":
		k, err := x509.ParsePKCS1PrivateKey(block.Bytes)
		if err != nil {
			return nil, fmt.Errorf("jwtx: parse RSA key: %w", err)
		}
		return k, nil
	case "PRIVATE KEY":
		k, err := x509.ParsePKCS8PrivateKey(block.Bytes)
		if err != nil {
			return nil, fmt.Errorf("jwtx: parse PKCS8: %w", err)
		}
		return k, nil
	default:
		return nil, fmt.Errorf("jwtx: unsupported PEM type %q", block.Type)
	}
}

func (s *asymSigner) Alg() string    { return s.method.Alg() }
func (s *asymSigner) KID() string    { return s.kid }
func (s *asymSigner) PublicJWK() JWK { return s.jwk }

// Sign signs claims with the private key and stamps the kid header.
func (s *asymSigner) Sign(claims jwt.Claims) (string, error) {
	t := jwt.NewWithClaims(s.method, claims)
	t.Header["kid"] = s.kid
	return t.SignedString(s.key)
}

func (s *asymSigner) Validate() error {
	if s.key == nil {
		return errors.New("jwtx: nil signing key")
	}
	return nil
}
