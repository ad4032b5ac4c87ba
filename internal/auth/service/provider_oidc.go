package service

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"golang.org/x/oauth2"

	"github.com/aussiebroadwan/marquee/internal/auth/domain"
	"github.com/aussiebroadwan/marquee/pkg/jwtx"
	"github.com/aussiebroadwan/marquee/pkg/slogx"
)

// oidcAdapter speaks OpenID Connect against a discovered issuer. It always
// sends a nonce and, when configured, a PKCE challenge.
type oidcAdapter struct {
	base
	discovery *DiscoveryCache
}

func (a *oidcAdapter) Endpoints(ctx context.Context) (Endpoints, error) {
	d, err := a.discovery.Get(ctx, a.cfg.Issuer)
	if err != nil {
		return Endpoints{}, err
	}
	return Endpoints{
		AuthorizeURL:  d.AuthorizationEndpoint,
		TokenURL:      d.TokenEndpoint,
		UserInfoURL:   d.UserInfoEndpoint,
		JWKSURL:       d.JWKSURI,
		EndSessionURL: d.EndSessionEndpoint,
		Issuer:        d.Issuer,
	}, nil
}

func (a *oidcAdapter) Scopes() []string   { return a.scopes("openid", "email", "profile") }
func (a *oidcAdapter) SupportsPKCE() bool { return a.cfg.PKCE }

func (a *oidcAdapter) AuthorizeOptions(h domain.HandshakeState) ([]oauth2.AuthCodeOption, error) {
	if h.Nonce == "" {
		return nil, errors.New("oidc handshake without nonce")
	}
	opts := pkceAuthorize(h)
	opts = append(opts, oauth2.SetAuthURLParam("nonce", h.Nonce))
	if h.LoginHint != "" {
		opts = append(opts, oauth2.SetAuthURLParam("login_hint", h.LoginHint))
	}
	return opts, nil
}

func (a *oidcAdapter) ExchangeOptions(h domain.HandshakeState) ([]oauth2.AuthCodeOption, error) {
	return pkceExchange(h), nil
}

func (a *oidcAdapter) Identity(ctx context.Context, client *http.Client, tok *oauth2.Token, h domain.HandshakeState) (domain.ExternalProfile, error) {
	raw, err := idToken(tok)
	if err != nil {
		return domain.ExternalProfile{}, err
	}

	claims, err := a.verify(ctx, raw, h.Nonce)
	if errors.Is(err, jwtx.ErrUnknownKID) {
		// The provider may have rotated keys since we cached its JWKS.
		a.discovery.Invalidate(a.cfg.Issuer)
		claims, err = a.verify(ctx, raw, h.Nonce)
	}
	if err != nil {
		if errors.Is(err, domain.ErrProviderUnavailable) {
			return domain.ExternalProfile{}, err
		}
		slogx.AuthDebug(ctx, "id token rejected", "provider", a.cfg.Name, "err", err)
		return domain.ExternalProfile{}, fmt.Errorf("%w: %v", domain.ErrCredentialInvalid, err)
	}

	p := domain.ExternalProfile{
		Subject:       claims.Subject,
		Email:         claims.Email,
		EmailVerified: claims.EmailVerified,
		Username:      claims.PreferredUsername,
		Name:          claims.Name,
	}
	if p.Email != "" {
		return p, nil
	}

	d, err := a.discovery.Get(ctx, a.cfg.Issuer)
	if err != nil || d.UserInfoEndpoint == "" {
		return p, nil
	}
	var info struct {
		Sub               string `json:"sub"`
		Email             string `json:"email"`
		EmailVerified     bool   `json:"email_verified"`
		PreferredUsername string `json:"preferred_username"`
	}
	if err := getJSON(ctx, client, d.UserInfoEndpoint, tok.AccessToken, &info); err != nil {
		slogx.FromContext(ctx).WarnContext(ctx, "userinfo fallback failed", "provider", a.cfg.Name, "err", err)
		return p, nil
	}
	// userinfo must describe the same subject as the ID token.
	if info.Sub == p.Subject {
		p.Email, p.EmailVerified = info.Email, info.EmailVerified
		if p.Username == "" {
			p.Username = info.PreferredUsername
		}
	}
	return p, nil
}

func (a *oidcAdapter) verify(ctx context.Context, raw, nonce string) (*jwtx.IDTokenClaims, error) {
	d, err := a.discovery.Get(ctx, a.cfg.Issuer)
	if err != nil {
		return nil, err
	}
	return jwtx.NewIDTokenVerifier(d.Keys, d.Issuer, a.cfg.ClientID).Verify(raw, nonce)
}
