package service

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"golang.org/x/oauth2"

	"github.com/aussiebroadwan/marquee/internal/auth/domain"
)

// oauth2Adapter covers providers without OpenID Connect, such as GitHub.
// The profile comes from a userinfo endpoint through a field mapping.
type oauth2Adapter struct {
	base
}

func (a *oauth2Adapter) Endpoints(context.Context) (Endpoints, error) {
	return Endpoints{
		AuthorizeURL: a.cfg.AuthorizeURL,
		TokenURL:     a.cfg.TokenURL,
		UserInfoURL:  a.cfg.UserInfoURL,
	}, nil
}

func (a *oauth2Adapter) Scopes() []string   { return a.scopes() }
func (a *oauth2Adapter) SupportsPKCE() bool { return a.cfg.PKCE }

func (a *oauth2Adapter) AuthorizeOptions(h domain.HandshakeState) ([]oauth2.AuthCodeOption, error) {
	return pkceAuthorize(h), nil
}

func (a *oauth2Adapter) ExchangeOptions(h domain.HandshakeState) ([]oauth2.AuthCodeOption, error) {
	return pkceExchange(h), nil
}

func (a *oauth2Adapter) fields() FieldMapping {
	f := a.cfg.Fields
	if f.Subject == "" {
		f.Subject = "id"
	}
	if f.Email == "" {
		f.Email = "email"
	}
	if f.Username == "" {
		f.Username = "login"
	}
	return f
}

func (a *oauth2Adapter) Identity(ctx context.Context, client *http.Client, tok *oauth2.Token, _ domain.HandshakeState) (domain.ExternalProfile, error) {
	var info map[string]json.RawMessage
	if err := getJSON(ctx, client, a.cfg.UserInfoURL, tok.AccessToken, &info); err != nil {
		return domain.ExternalProfile{}, err
	}

	f := a.fields()
	p := domain.ExternalProfile{
		Subject:  jsonScalar(info[f.Subject]),
		Email:    jsonScalar(info[f.Email]),
		Username: jsonScalar(info[f.Username]),
		Name:     jsonScalar(info["name"]),
	}
	if p.Subject == "" {
		return domain.ExternalProfile{}, fmt.Errorf("%w: userinfo has no %q field", domain.ErrProviderUnavailable, f.Subject)
	}
	return p, nil
}

// jsonScalar renders a JSON string or number as a string. Anything else,
// including null, is empty.
func jsonScalar(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	var n json.Number
	if err := json.Unmarshal(raw, &n); err == nil {
		return n.String()
	}
	return ""
}
