package service

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/oauth2"

	"github.com/aussiebroadwan/marquee/internal/auth/domain"
	"github.com/aussiebroadwan/marquee/pkg/jwtx"
	"github.com/aussiebroadwan/marquee/pkg/slogx"
)

const (
	duoJWTLifetime       = 5 * time.Minute
	clientAssertionType  = "urn:ietf:params:oauth:client-assertion-type:jwt-bearer"
	duoUsernameAttribute = "duo_uname"
	duoAuthorizeSuffix   = "/oauth/v1/authorize"
	duoTokenSuffix       = "/oauth/v1/token"
)

// duoAdapter speaks Duo's Universal Prompt: the authorize request and the
// token client assertion are HS512 JWTs keyed by the client secret, and so
// is the returned ID token.
type duoAdapter struct {
	base
	signer      jwtx.Signer
	callbackURL string
	now         func() time.Time
}

func newDuoAdapter(cfg ProviderConfig, callbackURL string) (*duoAdapter, error) {
	signer, err := jwtx.NewSignerHS512("", []byte(cfg.ClientSecret))
	if err != nil {
		return nil, fmt.Errorf("provider %s: %w", cfg.Name, err)
	}
	return &duoAdapter{base: base{cfg: cfg}, signer: signer, callbackURL: callbackURL, now: time.Now}, nil
}

func (a *duoAdapter) apiBase() string { return "https://" + a.cfg.APIHost }

func (a *duoAdapter) Endpoints(context.Context) (Endpoints, error) {
	return Endpoints{
		AuthorizeURL: a.apiBase() + duoAuthorizeSuffix,
		TokenURL:     a.apiBase() + duoTokenSuffix,
		Issuer:       a.apiBase() + duoTokenSuffix,
	}, nil
}

func (a *duoAdapter) Scopes() []string   { return a.scopes("openid") }
func (a *duoAdapter) SupportsPKCE() bool { return false }

// Client withholds the secret so it is never posted to the token endpoint;
// the client assertion proves possession instead.
func (a *duoAdapter) Client() ClientCredentials {
	return ClientCredentials{ID: a.cfg.ClientID, AuthStyle: oauth2.AuthStyleInParams}
}

func (a *duoAdapter) AuthorizeOptions(h domain.HandshakeState) ([]oauth2.AuthCodeOption, error) {
	if h.LoginHint == "" {
		return nil, fmt.Errorf("%w: duo requires a username", domain.ErrInvalidRequest)
	}
	now := a.now()
	request, err := a.signer.Sign(jwt.MapClaims{
		"response_type":          "code",
		"scope":                  "openid",
		"client_id":              a.cfg.ClientID,
		"redirect_uri":           a.callbackURL,
		"state":                  h.State,
		"nonce":                  h.Nonce,
		duoUsernameAttribute:     h.LoginHint,
		"use_duo_code_attribute": true,
		"iss":                    a.cfg.ClientID,
		"aud":                    a.apiBase(),
		"exp":                    now.Add(duoJWTLifetime).Unix(),
	})
	if err != nil {
		return nil, fmt.Errorf("sign duo request: %w", err)
	}
	return []oauth2.AuthCodeOption{oauth2.SetAuthURLParam("request", request)}, nil
}

func (a *duoAdapter) ExchangeOptions(domain.HandshakeState) ([]oauth2.AuthCodeOption, error) {
	now := a.now()
	jti, err := randomState()
	if err != nil {
		return nil, err
	}
	assertion, err := a.signer.Sign(jwt.RegisteredClaims{
		Issuer:    a.cfg.ClientID,
		Subject:   a.cfg.ClientID,
		Audience:  jwt.ClaimStrings{a.apiBase() + duoTokenSuffix},
		ExpiresAt: jwt.NewNumericDate(now.Add(duoJWTLifetime)),
		IssuedAt:  jwt.NewNumericDate(now),
		ID:        jti,
	})
	if err != nil {
		return nil, fmt.Errorf("sign duo client assertion: %w", err)
	}
	return []oauth2.AuthCodeOption{
		oauth2.SetAuthURLParam("client_assertion_type", clientAssertionType),
		oauth2.SetAuthURLParam("client_assertion", assertion),
	}, nil
}

func (a *duoAdapter) Identity(ctx context.Context, _ *http.Client, tok *oauth2.Token, h domain.HandshakeState) (domain.ExternalProfile, error) {
	raw, err := idToken(tok)
	if err != nil {
		return domain.ExternalProfile{}, err
	}
	v := jwtx.NewHS512IDTokenVerifier([]byte(a.cfg.ClientSecret), a.apiBase()+duoTokenSuffix, a.cfg.ClientID,
		jwtx.WithIDTokenClock(a.now))
	claims, err := v.Verify(raw, h.Nonce)
	if err != nil {
		slogx.AuthDebug(ctx, "duo id token rejected", "provider", a.cfg.Name, "err", err)
		return domain.ExternalProfile{}, fmt.Errorf("%w: %v", domain.ErrCredentialInvalid, err)
	}
	if h.LoginHint != "" && claims.PreferredUsername != "" && claims.PreferredUsername != h.LoginHint {
		return domain.ExternalProfile{}, fmt.Errorf("%w: %v", domain.ErrCredentialInvalid,
			errors.New("duo authenticated a different user"))
	}
	return domain.ExternalProfile{
		Subject:       claims.Subject,
		Email:         claims.Email,
		EmailVerified: claims.EmailVerified,
		Username:      claims.PreferredUsername,
		Name:          claims.Name,
	}, nil
}
