package service

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"golang.org/x/oauth2"

	"github.com/aussiebroadwan/marquee/internal/auth/audit"
	"github.com/aussiebroadwan/marquee/internal/auth/domain"
	"github.com/aussiebroadwan/marquee/internal/auth/store"
	"github.com/aussiebroadwan/marquee/pkg/cryptox"
	"github.com/aussiebroadwan/marquee/pkg/slogx"
)

// HandshakeStart is what the caller needs to redirect the browser.
type HandshakeStart struct {
	RedirectURL string
	State       string
	PKCE        bool
}

// CallbackRequest is the provider's redirect back to us.
type CallbackRequest struct {
	Provider    string
	Code        string
	State       string
	CookieState string
	Session     *domain.Identity
	Meta        domain.RequestMeta
}

// CallbackResult is a login outcome for login handshakes, or the linked
// identity for link handshakes.
type CallbackResult struct {
	Purpose  domain.HandshakePurpose
	Outcome  domain.LoginOutcome
	Identity domain.ExternalIdentity
	Next     string
}

// HandshakeManager runs authorization-code handshakes with external
// providers. Nothing is written for a callback until the code exchange and
// profile fetch have both succeeded.
type HandshakeManager struct {
	Store       store.Store
	Handshakes  store.Handshakes
	Providers   map[string]ProviderAdapter
	MFA         *MFAService
	Cipher      *cryptox.SecretCipher
	Audit       audit.Emitter
	CallbackURL string
	HTTPClient  *http.Client
	Now         func() time.Time
}

func (m *HandshakeManager) now() time.Time {
	if m.Now != nil {
		return m.Now()
	}
	return time.Now()
}

func (m *HandshakeManager) handshakes() store.Handshakes {
	if m.Handshakes != nil {
		return m.Handshakes
	}
	return m.Store.Handshakes()
}

func (m *HandshakeManager) httpClient() *http.Client {
	if m.HTTPClient != nil {
		return m.HTTPClient
	}
	return &http.Client{Timeout: DefaultProviderTimeout}
}

func (m *HandshakeManager) provider(name string) (ProviderAdapter, error) {
	p, ok := m.Providers[name]
	if !ok {
		return nil, fmt.Errorf("%w: unknown provider %q", domain.ErrInvalidRequest, name)
	}
	return p, nil
}

// ProviderNames lists configured providers for the login page.
func (m *HandshakeManager) ProviderNames() []string {
	out := make([]string, 0, len(m.Providers))
	for name := range m.Providers {
		out = append(out, name)
	}
	return out
}

func (m *HandshakeManager) oauth2Config(p ProviderAdapter, ep Endpoints) *oauth2.Config {
	c := p.Client()
	return &oauth2.Config{
		ClientID:     c.ID,
		ClientSecret: c.Secret,
		Endpoint: oauth2.Endpoint{
			AuthURL:   ep.AuthorizeURL,
			TokenURL:  ep.TokenURL,
			AuthStyle: c.AuthStyle,
		},
		RedirectURL: m.CallbackURL,
		Scopes:      p.Scopes(),
	}
}

func randomState() (string, error) {
	return cryptox.GenerateToken(cryptox.TokenSize256)
}

// StartLogin begins a sign-in handshake. hint is a username for providers
// that need one up front.
func (m *HandshakeManager) StartLogin(ctx context.Context, provider, next, hint string) (HandshakeStart, error) {
	return m.start(ctx, provider, domain.HandshakeState{
		Purpose:      domain.HandshakeLogin,
		RedirectNext: next,
		LoginHint:    hint,
	})
}

// StartLink begins a handshake that attaches a provider identity to the
// signed-in account. It needs a re-auth code when the account has MFA.
func (m *HandshakeManager) StartLink(ctx context.Context, provider string, account domain.Account, code string) (HandshakeStart, error) {
	if err := m.MFA.RequireReauth(ctx, account, code); err != nil {
		return HandshakeStart{}, err
	}
	return m.start(ctx, provider, domain.HandshakeState{
		Purpose:        domain.HandshakeLink,
		BoundAccountID: account.ID,
		LoginHint:      account.Username,
	})
}

func (m *HandshakeManager) start(ctx context.Context, provider string, h domain.HandshakeState) (HandshakeStart, error) {
	p, err := m.provider(provider)
	if err != nil {
		return HandshakeStart{}, err
	}

	h.Provider = p.Name()
	h.IssuedAt = m.now()
	if h.State, err = randomState(); err != nil {
		return HandshakeStart{}, err
	}
	if p.Kind() == domain.ProviderOIDC || p.Kind() == domain.ProviderDuo {
		if h.Nonce, err = randomState(); err != nil {
			return HandshakeStart{}, err
		}
	}
	if p.SupportsPKCE() {
		h.PKCEVerifier = oauth2.GenerateVerifier()
	}

	ep, err := p.Endpoints(ctx)
	if err != nil {
		return HandshakeStart{}, err
	}
	opts, err := p.AuthorizeOptions(h)
	if err != nil {
		return HandshakeStart{}, err
	}
	redirect := m.oauth2Config(p, ep).AuthCodeURL(h.State, opts...)

	if err := m.handshakes().SaveHandshake(ctx, h); err != nil {
		return HandshakeStart{}, fmt.Errorf("save handshake: %w", err)
	}
	slogx.AuthDebug(ctx, "handshake started", "provider", h.Provider, "purpose", string(h.Purpose))
	return HandshakeStart{RedirectURL: redirect, State: h.State, PKCE: h.PKCEVerifier != ""}, nil
}

// HandleCallback completes a handshake.
func (m *HandshakeManager) HandleCallback(ctx context.Context, req CallbackRequest) (CallbackResult, error) {
	if req.State == "" || req.CookieState == "" || !cryptox.ConstantTimeEqual(req.State, req.CookieState) {
		return CallbackResult{}, domain.ErrInvalidChallenge
	}

	h, err := m.handshakes().ConsumeHandshake(ctx, req.State)
	if errors.Is(err, store.ErrNotFound) {
		return CallbackResult{}, domain.ErrInvalidChallenge
	}
	if err != nil {
		return CallbackResult{}, err
	}
	if !h.Fresh(m.now()) || (req.Provider != "" && req.Provider != h.Provider) {
		return CallbackResult{}, domain.ErrInvalidChallenge
	}
	if req.Code == "" {
		return CallbackResult{}, domain.ErrInvalidChallenge
	}

	p, err := m.provider(h.Provider)
	if err != nil {
		return CallbackResult{}, err
	}
	profile, tok, err := m.exchange(ctx, p, h, req.Code)
	if err != nil {
		return CallbackResult{}, err
	}

	var refresh string
	if tok.RefreshToken != "" {
		if refresh, err = m.Cipher.EncryptString(tok.RefreshToken); err != nil {
			return CallbackResult{}, fmt.Errorf("encrypt refresh token: %w", err)
		}
	}

	if h.Purpose == domain.HandshakeLink {
		return m.link(ctx, p, h, req, profile, refresh)
	}
	return m.login(ctx, p, h, req, profile, refresh)
}

func (m *HandshakeManager) exchange(ctx context.Context, p ProviderAdapter, h domain.HandshakeState, code string) (domain.ExternalProfile, *oauth2.Token, error) {
	ep, err := p.Endpoints(ctx)
	if err != nil {
		return domain.ExternalProfile{}, nil, err
	}
	opts, err := p.ExchangeOptions(h)
	if err != nil {
		return domain.ExternalProfile{}, nil, err
	}

	client := m.httpClient()
	xctx := context.WithValue(ctx, oauth2.HTTPClient, client)
	tok, err := m.oauth2Config(p, ep).Exchange(xctx, code, opts...)
	if err != nil {
		var re *oauth2.RetrieveError
		if errors.As(err, &re) && re.Response != nil && re.Response.StatusCode < 500 {
			slogx.AuthDebug(ctx, "code exchange refused", "provider", p.Name(), "error_code", re.ErrorCode)
			return domain.ExternalProfile{}, nil, domain.ErrInvalidChallenge
		}
		return domain.ExternalProfile{}, nil, fmt.Errorf("%w: exchange: %v", domain.ErrProviderUnavailable, err)
	}

	profile, err := p.Identity(ctx, client, tok, h)
	if err != nil {
		if domain.Code(err) == "server_error" {
			return domain.ExternalProfile{}, nil, fmt.Errorf("%w: %v", domain.ErrProviderUnavailable, err)
		}
		return domain.ExternalProfile{}, nil, err
	}
	if profile.Subject == "" {
		return domain.ExternalProfile{}, nil, fmt.Errorf("%w: empty subject", domain.ErrProviderUnavailable)
	}
	return profile, tok, nil
}

func (m *HandshakeManager) login(ctx context.Context, p ProviderAdapter, h domain.HandshakeState, req CallbackRequest, profile domain.ExternalProfile, refresh string) (CallbackResult, error) {
	ident, err := m.Store.Identities().GetIdentity(ctx, p.Name(), profile.Subject)
	switch {
	case errors.Is(err, store.ErrNotFound):
		if !p.AutoProvision() {
			slogx.AuthDebug(ctx, "external identity not linked", "provider", p.Name())
			return CallbackResult{}, domain.ErrAccountNotLinked
		}
		ident, err = m.provision(ctx, p, profile, refresh)
		if err != nil {
			return CallbackResult{}, err
		}
	case err != nil:
		return CallbackResult{}, err
	case refresh != "":
		if err := m.Store.Identities().UpdateRefreshToken(ctx, ident.Provider, ident.Subject, refresh); err != nil {
			slogx.FromContext(ctx).WarnContext(ctx, "store refresh token", "err", err)
		}
	}

	account, err := m.Store.Accounts().GetAccountByID(ctx, ident.AccountID)
	if err != nil {
		return CallbackResult{}, err
	}
	if account.Banned {
		return CallbackResult{}, domain.ErrForbidden
	}

	out, err := m.MFA.AfterPrimary(ctx, account, []string{domain.AMRExternal}, req.Meta, h.RedirectNext)
	if err != nil {
		return CallbackResult{}, err
	}
	return CallbackResult{Purpose: h.Purpose, Outcome: out, Identity: ident, Next: h.RedirectNext}, nil
}

// provisionRetries is how many random suffixes a taken username gets
// before falling back to the account id.
const provisionRetries = 3

var usernameSuffix = func() (string, error) { return cryptox.GenerateToken(3) }

// provision creates an account for a first-time external login together
// with its identity link.
func (m *HandshakeManager) provision(ctx context.Context, p ProviderAdapter, profile domain.ExternalProfile, refresh string) (domain.ExternalIdentity, error) {
	var ident domain.ExternalIdentity
	base := provisionUsername(p.Name(), profile)

	err := m.Store.WithTx(ctx, func(tx store.Tx) error {
		account, err := newAccount(base, profile.Email, "", []string{domain.GroupUser})
		if err != nil {
			return err
		}
		for attempt := 0; ; attempt++ {
			err = tx.Accounts().CreateAccount(ctx, account)
			if !errors.Is(err, store.ErrAlreadyExists) || attempt > provisionRetries {
				break
			}
			if attempt == provisionRetries {
				// The account id is a ULID and cannot be taken.
				account.Username = truncate(base, maxUsernameLength-len(account.ID)-1) + "-" + strings.ToLower(account.ID)
				continue
			}
			suffix, serr := usernameSuffix()
			if serr != nil {
				return serr
			}
			account.Username = base + "-" + strings.ToLower(suffix)
		}
		if err != nil {
			return fmt.Errorf("create account: %w", err)
		}

		ident = domain.ExternalIdentity{
			Provider:     p.Name(),
			Subject:      profile.Subject,
			AccountID:    account.ID,
			Email:        profile.Email,
			RefreshToken: refresh,
			CreatedAt:    m.now(),
		}
		return tx.Identities().CreateIdentity(ctx, ident)
	})
	if err != nil {
		return domain.ExternalIdentity{}, err
	}
	emit(ctx, m.Audit, audit.Event(domain.EventIdentityLinked, ident.AccountID, "provider", ident.Provider, "provisioned", "true"))
	return ident, nil
}

func provisionUsername(provider string, profile domain.ExternalProfile) string {
	switch {
	case profile.Username != "":
		return domain.NormalizeUsername(profile.Username)
	case profile.Email != "":
		local, _, _ := strings.Cut(profile.Email, "@")
		return domain.NormalizeUsername(local)
	default:
		return provider + "-" + truncate(profile.Subject, 16)
	}
}

func (m *HandshakeManager) link(ctx context.Context, p ProviderAdapter, h domain.HandshakeState, req CallbackRequest, profile domain.ExternalProfile, refresh string) (CallbackResult, error) {
	if req.Session == nil {
		return CallbackResult{}, domain.ErrUnauthenticated
	}
	if req.Session.AccountID != h.BoundAccountID {
		return CallbackResult{}, domain.ErrForbidden
	}

	existing, err := m.Store.Identities().GetIdentity(ctx, p.Name(), profile.Subject)
	switch {
	case err == nil && existing.AccountID != h.BoundAccountID:
		return CallbackResult{}, domain.ErrConflict
	case err == nil:
		return CallbackResult{Purpose: h.Purpose, Identity: existing, Next: h.RedirectNext}, nil
	case !errors.Is(err, store.ErrNotFound):
		return CallbackResult{}, err
	}

	ident := domain.ExternalIdentity{
		Provider:     p.Name(),
		Subject:      profile.Subject,
		AccountID:    h.BoundAccountID,
		Email:        profile.Email,
		RefreshToken: refresh,
		CreatedAt:    m.now(),
	}
	if err := m.Store.Identities().CreateIdentity(ctx, ident); err != nil {
		if errors.Is(err, store.ErrAlreadyExists) {
			return CallbackResult{}, domain.ErrConflict
		}
		return CallbackResult{}, err
	}

	ev := audit.Event(domain.EventIdentityLinked, ident.AccountID, "provider", ident.Provider)
	ev.IP = req.Meta.IP
	emit(ctx, m.Audit, ev)
	return CallbackResult{Purpose: h.Purpose, Identity: ident, Next: h.RedirectNext}, nil
}

// Unlink removes a provider identity after a re-auth code. The last way to
// sign in cannot be removed.
func (m *HandshakeManager) Unlink(ctx context.Context, account domain.Account, provider, code string) error {
	if err := m.MFA.RequireReauth(ctx, account, code); err != nil {
		return err
	}
	if !account.HasPassword() {
		idents, err := m.Store.Identities().ListIdentitiesForAccount(ctx, account.ID)
		if err != nil {
			return err
		}
		creds, err := m.Store.WebAuthn().ListCredentials(ctx, account.ID)
		if err != nil {
			return err
		}
		if len(idents) <= 1 && len(creds) == 0 {
			return fmt.Errorf("%w: cannot remove the last sign-in method", domain.ErrConflict)
		}
	}
	if err := m.Store.Identities().DeleteIdentity(ctx, account.ID, provider); err != nil {
		return mapNotFound(err)
	}
	emit(ctx, m.Audit, audit.Event(domain.EventIdentityUnlinked, account.ID, "provider", provider))
	return nil
}

func (m *HandshakeManager) ListIdentities(ctx context.Context, accountID string) ([]domain.ExternalIdentity, error) {
	return m.Store.Identities().ListIdentitiesForAccount(ctx, accountID)
}

// EndSessionURL is the provider's logout endpoint, or "" when it has none.
func (m *HandshakeManager) EndSessionURL(ctx context.Context, provider string) (string, error) {
	p, err := m.provider(provider)
	if err != nil {
		return "", err
	}
	ep, err := p.Endpoints(ctx)
	if err != nil {
		return "", err
	}
	return ep.EndSessionURL, nil
}
