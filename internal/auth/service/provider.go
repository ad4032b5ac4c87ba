package service

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"golang.org/x/oauth2"

	"github.com/aussiebroadwan/marquee/internal/auth/domain"
)

// Endpoints are the URLs a handshake talks to.
type Endpoints struct {
	AuthorizeURL  string
	TokenURL      string
	UserInfoURL   string
	JWKSURL       string
	EndSessionURL string
	Issuer        string
}

// ClientCredentials is how we authenticate to a provider's token endpoint.
// An empty Secret means the adapter authenticates some other way.
type ClientCredentials struct {
	ID        string
	Secret    string
	AuthStyle oauth2.AuthStyle
}

// ProviderAdapter hides the differences between OIDC, plain OAuth2 and Duo.
type ProviderAdapter interface {
	Name() string
	Kind() domain.ProviderKind
	Endpoints(ctx context.Context) (Endpoints, error)
	Scopes() []string
	SupportsPKCE() bool
	AutoProvision() bool
	Client() ClientCredentials

	AuthorizeOptions(h domain.HandshakeState) ([]oauth2.AuthCodeOption, error)
	ExchangeOptions(h domain.HandshakeState) ([]oauth2.AuthCodeOption, error)

	// Identity reads the user's profile after a successful exchange.
	Identity(ctx context.Context, client *http.Client, tok *oauth2.Token, h domain.HandshakeState) (domain.ExternalProfile, error)
}

// FieldMapping names the userinfo JSON fields of a plain OAuth2 provider.
type FieldMapping struct {
	Subject  string
	Email    string
	Username string
}

// ProviderConfig describes one configured provider.
type ProviderConfig struct {
	Name string
	Kind domain.ProviderKind

	// oidc
	Issuer string

	// oauth2
	AuthorizeURL string
	TokenURL     string
	UserInfoURL  string
	Fields       FieldMapping

	// duo
	APIHost string

	ClientID      string
	ClientSecret  string
	Scopes        []string
	PKCE          bool
	AutoProvision bool
}

// NewProvider builds the adapter for cfg.Kind. callbackURL is the
// redirect_uri registered with the provider.
func NewProvider(cfg ProviderConfig, discovery *DiscoveryCache, callbackURL string) (ProviderAdapter, error) {
	if cfg.Name == "" {
		return nil, fmt.Errorf("provider: name is required")
	}
	if cfg.ClientID == "" {
		return nil, fmt.Errorf("provider %s: client_id is required", cfg.Name)
	}
	switch cfg.Kind {
	case domain.ProviderOIDC:
		if cfg.Issuer == "" {
			return nil, fmt.Errorf("provider %s: oidc requires issuer", cfg.Name)
		}
		return &oidcAdapter{base: base{cfg: cfg}, discovery: discovery}, nil
	case domain.ProviderOAuth2:
		if cfg.AuthorizeURL == "" || cfg.TokenURL == "" || cfg.UserInfoURL == "" {
			return nil, fmt.Errorf("provider %s: oauth2 requires authorize_url, token_url and userinfo_url", cfg.Name)
		}
		return &oauth2Adapter{base: base{cfg: cfg}}, nil
	case domain.ProviderDuo:
		if cfg.APIHost == "" || cfg.ClientSecret == "" {
			return nil, fmt.Errorf("provider %s: duo requires api_host and client_secret", cfg.Name)
		}
		return newDuoAdapter(cfg, callbackURL)
	default:
		return nil, fmt.Errorf("provider %s: unknown kind %q", cfg.Name, cfg.Kind)
	}
}

// base carries the config fields every adapter exposes the same way.
type base struct {
	cfg ProviderConfig
}

func (b base) Name() string              { return b.cfg.Name }
func (b base) Kind() domain.ProviderKind { return b.cfg.Kind }
func (b base) AutoProvision() bool       { return b.cfg.AutoProvision }

func (b base) Client() ClientCredentials {
	return ClientCredentials{ID: b.cfg.ClientID, Secret: b.cfg.ClientSecret, AuthStyle: oauth2.AuthStyleAutoDetect}
}

func (b base) scopes(defaults ...string) []string {
	if len(b.cfg.Scopes) > 0 {
		return b.cfg.Scopes
	}
	return defaults
}

// pkceAuthorize adds the S256 challenge when the handshake carries a verifier.
func pkceAuthorize(h domain.HandshakeState) []oauth2.AuthCodeOption {
	if h.PKCEVerifier == "" {
		return nil
	}
	return []oauth2.AuthCodeOption{oauth2.S256ChallengeOption(h.PKCEVerifier)}
}

func pkceExchange(h domain.HandshakeState) []oauth2.AuthCodeOption {
	if h.PKCEVerifier == "" {
		return nil
	}
	return []oauth2.AuthCodeOption{oauth2.VerifierOption(h.PKCEVerifier)}
}

// idToken pulls the raw ID token out of a token response.
func idToken(tok *oauth2.Token) (string, error) {
	raw, _ := tok.Extra("id_token").(string)
	if strings.TrimSpace(raw) == "" {
		return "", fmt.Errorf("%w: token response carried no id_token", domain.ErrCredentialInvalid)
	}
	return raw, nil
}
