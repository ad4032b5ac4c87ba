package jwtx

import "github.com/golang-jwt/jwt/v5"

// Signer is our interface for anything that can sign JWTs.
type Signer interface {
	Alg() string
	KID() string
	Sign(jwt.Claims) (string, error)
	Validate() error
}

// PublicSigner is a Signer whose verification key can be published in a JWKS.
type PublicSigner interface {
	Signer
	PublicJWK() JWK
}

// NewSignerRS256 creates an RS256 signer from PEM bytes.
func NewSignerRS256(kid string, pemKey []byte) (PublicSigner, error) {
	return newRS256Signer(kid, pemKey)
}

// NewSignerES256 creates an ES256 signer from PEM bytes.
// ECDSA P-256 keys must be in PKCS8 format.
func NewSignerES256(kid string, pemKey []byte) (PublicSigner, error) {
	return newES256Signer(kid, pemKey)
}

// NewSignerHS512 creates an HS512 signer over a shared secret.
func NewSignerHS512(kid string, secret []byte) (Signer, error) {
	return newHS512Signer(kid, secret)
}
