package http

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/aussiebroadwan/marquee/internal/auth/domain"
	"github.com/aussiebroadwan/marquee/internal/auth/service"
	"github.com/aussiebroadwan/marquee/internal/auth/store"
	"github.com/aussiebroadwan/marquee/pkg/guard"
	"github.com/aussiebroadwan/marquee/pkg/httpx"
	"github.com/aussiebroadwan/marquee/pkg/slogx"

	_ "github.com/aussiebroadwan/marquee/api/auth" // Swagger docs
	httpSwagger "github.com/swaggo/http-swagger"
)

// Pinger is an optional dependency checked by /readyz.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Throttles are the per-IP token buckets in front of each route group.
type Throttles struct {
	Strict   httpx.ThrottleConfig // credential endpoints
	Moderate httpx.ThrottleConfig // authenticated account operations
	Public   httpx.ThrottleConfig // health and docs
}

// Router holds shared dependencies for HTTP handlers.
type Router struct {
	Mux         *http.ServeMux
	middlewares []httpx.Middleware

	buildVersion string
	startTime    time.Time
	logger       *slog.Logger
	store        store.Store

	Gateway    *service.Gateway
	Login      *service.LoginService
	MFA        *service.MFAService
	Accounts   *service.AccountService
	Admin      *service.AdminService
	WebAuthn   *service.WebAuthnService  // Optional: nil when no relying party is configured
	Handshakes *service.HandshakeManager // Optional: nil when no providers are configured

	Cookies      httpx.Cookies
	CSRF         *httpx.CSRFGuard
	Guard        guard.Limiter
	SSORate      guard.RatePolicy
	WebAuthnRate guard.RatePolicy
	Throttle     Throttles
	TrustProxy   bool
	Redis        Pinger // Optional
}

func NewRouter(buildVersion string, st store.Store, csrf *httpx.CSRFGuard, logger *slog.Logger) *Router {
	r := &Router{
		Mux:          http.NewServeMux(),
		buildVersion: buildVersion,
		startTime:    time.Now(),
		store:        st,
		logger:       logger,
		CSRF:         csrf,
		SSORate:      guard.DefaultSSORate,
		WebAuthnRate: guard.DefaultWebAuthnRate,
		Throttle: Throttles{
			Strict:   httpx.StrictThrottle,
			Moderate: httpx.ModerateThrottle,
			Public:   httpx.PublicThrottle,
		},
	}

	// Set default middleware chain
	r.middlewares = []httpx.Middleware{
		slogx.HTTPMiddleware(r.logger),
		csrf.Issue(),
	}

	return r
}

func (r *Router) ApplyRoutes() {
	r.registerLogin()
	r.registerSSO()
	r.registerWebAuthn()
	r.registerAccount()
	r.registerAdmin()
	r.registerSystem()

	r.Mux.Handle("/swagger/", httpx.Chain(httpSwagger.Handler(), httpx.Throttle(r.Throttle.Public, r.clientIP())))
}

// ServeHTTP implements http.Handler for Router and applies the global middleware chain.
//
//	@title			Marquee Authentication API
//	@version		0.1.0
//	@description	Session and credential endpoints for Marquee: password login, TOTP, passkeys and external identity providers.
//	@description
//	@description				Browser flows use the marquee_session cookie. Unsafe requests must echo the XSRF-TOKEN cookie in the X-XSRF-TOKEN header.
//
//	@contact.name				AussieBroadWAN Team
//	@contact.url				https://github.com/aussiebroadwan/marquee
//
//	@license.name				MIT
//	@license.url				https://opensource.org/licenses/MIT
//
//	@host						localhost:8080
//	@BasePath					/
//
//	@schemes					http https
//
//	@securityDefinitions.apikey	SessionAuth
//	@in							header
//	@name						Authorization
//	@description				Session token. Format: "Bearer {token}". Browsers send the marquee_session cookie instead.
func (r *Router) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	httpx.Chain(r.Mux, r.middlewares...).ServeHTTP(w, req)
}

func (r *Router) clientIP() httpx.KeyExtractor {
	return httpx.ClientIP(r.TrustProxy)
}

func (r *Router) meta(req *http.Request) domain.RequestMeta {
	return domain.RequestMeta{UserAgent: req.UserAgent(), IP: r.clientIP()(req)}
}

func (r *Router) authenticator() httpx.Authenticator {
	return gatewayAuthenticator{gw: r.Gateway}
}

// authed chains session authentication, CSRF and a per-IP throttle in front
// of h. Extra middleware runs after authentication.
func (r *Router) authed(h http.HandlerFunc, cfg httpx.ThrottleConfig, extra ...httpx.Middleware) http.Handler {
	mws := []httpx.Middleware{
		httpx.Throttle(cfg, r.clientIP()),
		httpx.Authenticate(r.authenticator(), httpx.CookieSession),
		r.CSRF.Require(),
	}
	return httpx.Chain(h, append(mws, extra...)...)
}

func (r *Router) registerLogin() {
	h := &LoginHandler{
		Login:   r.Login,
		MFA:     r.MFA,
		Cookies: r.Cookies,
		meta:    r.meta,
	}

	// Credential endpoints - strict throttle by IP, lockout is enforced by the services
	strict := func(fn http.HandlerFunc) http.Handler {
		return httpx.Chain(fn,
			httpx.Throttle(r.Throttle.Strict, r.clientIP()),
			r.CSRF.Require(),
		)
	}

	r.Mux.Handle("POST /login", strict(h.HandleLogin))
	r.Mux.Handle("POST /mfa", strict(h.HandleMFA))
	r.Mux.Handle("POST /mfa_setup", strict(h.HandleMFASetupSubmit))
	r.Mux.Handle("GET /mfa_setup", httpx.Chain(http.HandlerFunc(h.HandleMFASetup),
		httpx.Throttle(r.Throttle.Moderate, r.clientIP()),
	))

	logout := &LogoutHandler{
		Accounts:   r.Accounts,
		Handshakes: r.Handshakes,
		Cookies:    r.Cookies,
		meta:       r.meta,
	}
	r.Mux.Handle("GET /logout", httpx.Chain(logout,
		httpx.Throttle(r.Throttle.Moderate, r.clientIP()),
		httpx.OptionalAuthenticate(r.authenticator(), httpx.CookieSession),
	))
}

func (r *Router) registerSSO() {
	if r.Handshakes == nil {
		return
	}
	h := &SSOHandler{
		Handshakes: r.Handshakes,
		Accounts:   r.Accounts,
		Guard:      r.Guard,
		Rate:       r.SSORate,
		Cookies:    r.Cookies,
		clientIP:   r.clientIP(),
		meta:       r.meta,
	}

	// Redirect endpoints - strict throttle by IP, plus the shared SSO budget
	r.Mux.Handle("GET /sso/login", httpx.Chain(http.HandlerFunc(h.HandleLogin),
		httpx.Throttle(r.Throttle.Strict, r.clientIP()),
	))
	r.Mux.Handle("GET /sso/callback", httpx.Chain(http.HandlerFunc(h.HandleCallback),
		httpx.Throttle(r.Throttle.Strict, r.clientIP()),
		httpx.OptionalAuthenticate(r.authenticator(), httpx.CookieSession),
	))
	r.Mux.Handle("POST /sso/link", r.authed(h.HandleLink, r.Throttle.Strict))

	r.Mux.Handle("GET /v1/account/identities", r.authed(h.HandleListIdentities, r.Throttle.Moderate))
	r.Mux.Handle("DELETE /v1/account/identities/{provider}", r.authed(h.HandleUnlink, r.Throttle.Moderate))
}

func (r *Router) registerWebAuthn() {
	if r.WebAuthn == nil {
		return
	}
	h := &WebAuthnHandler{
		WebAuthn: r.WebAuthn,
		Accounts: r.Accounts,
		Guard:    r.Guard,
		Rate:     r.WebAuthnRate,
		Cookies:  r.Cookies,
		clientIP: r.clientIP(),
		meta:     r.meta,
	}

	// Registration needs a session
	r.Mux.Handle("POST /webauthn/register/options", r.authed(h.HandleRegisterOptions, r.Throttle.Moderate))
	r.Mux.Handle("POST /webauthn/register/verify", r.authed(h.HandleRegisterVerify, r.Throttle.Moderate))

	// Login is anonymous (passkey) or bound to a pending MFA session
	anon := func(fn http.HandlerFunc) http.Handler {
		return httpx.Chain(fn,
			httpx.Throttle(r.Throttle.Strict, r.clientIP()),
			r.CSRF.Require(),
		)
	}
	r.Mux.Handle("POST /webauthn/login/options", anon(h.HandleLoginOptions))
	r.Mux.Handle("POST /webauthn/login/verify", anon(h.HandleLoginVerify))

	r.Mux.Handle("GET /v1/account/webauthn", r.authed(h.HandleListCredentials, r.Throttle.Moderate))
	r.Mux.Handle("DELETE /v1/account/webauthn/{id}", r.authed(h.HandleDeleteCredential, r.Throttle.Moderate))
}

func (r *Router) registerAccount() {
	h := &AccountHandler{
		Accounts: r.Accounts,
		MFA:      r.MFA,
		Sessions: r.Gateway.Sessions,
		Cookies:  r.Cookies,
	}

	r.Mux.Handle("GET /v1/me", r.authed(h.HandleMe, r.Throttle.Moderate))
	r.Mux.Handle("GET /v1/sessions", r.authed(h.HandleListSessions, r.Throttle.Moderate))
	r.Mux.Handle("DELETE /v1/sessions/{jti}", r.authed(h.HandleRevokeSession, r.Throttle.Moderate))
	r.Mux.Handle("POST /v1/sessions/revoke-others", r.authed(h.HandleRevokeOthers, r.Throttle.Moderate))

	// Re-auth gated operations - strict throttle, the MFA lockout covers codes
	r.Mux.Handle("POST /v1/account/password", r.authed(h.HandleChangePassword, r.Throttle.Strict))
	r.Mux.Handle("POST /v1/account/mfa/disable", r.authed(h.HandleDisableMFA, r.Throttle.Strict))
}

func (r *Router) registerAdmin() {
	h := &AdminHandler{Admin: r.Admin}
	admin := func(fn http.HandlerFunc) http.Handler {
		return r.authed(fn, r.Throttle.Moderate, httpx.RequireRole(domain.GroupAdmin))
	}

	r.Mux.Handle("DELETE /v1/admin/accounts/{id}", admin(h.HandleDelete))
	r.Mux.Handle("POST /v1/admin/accounts/{id}/ban", admin(h.HandleBan))
	r.Mux.Handle("POST /v1/admin/accounts/{id}/unban", admin(h.HandleUnban))
	r.Mux.Handle("POST /v1/admin/accounts/{id}/groups", admin(h.HandleSetGroups))
	r.Mux.Handle("POST /v1/admin/accounts/{id}/revoke-sessions", admin(h.HandleRevokeSessions))
	r.Mux.Handle("GET /v1/admin/settings", admin(h.HandleGetSettings))
	r.Mux.Handle("PUT /v1/admin/settings", admin(h.HandlePutSettings))
}

func (r *Router) registerSystem() {
	// Health check endpoints - public throttle (monitoring systems may poll frequently)
	r.Mux.Handle("GET /livez",
		httpx.Chain(LivezHandler(r.startTime, r.buildVersion),
			httpx.Throttle(r.Throttle.Public, r.clientIP()),
		),
	)
	r.Mux.Handle("GET /readyz",
		httpx.Chain(ReadyzHandler(r.startTime, r.buildVersion, r.store, r.Redis),
			httpx.Throttle(r.Throttle.Public, r.clientIP()),
		),
	)
}

// gatewayAuthenticator adapts the session gateway to httpx.Authenticate.
type gatewayAuthenticator struct {
	gw *service.Gateway
}

func (a gatewayAuthenticator) Authenticate(ctx context.Context, token string) (httpx.Principal, error) {
	id, err := a.gw.Authenticate(ctx, token)
	if err != nil {
		return httpx.Principal{}, err
	}
	return httpx.Principal{
		AccountID: id.AccountID,
		Username:  id.Username,
		Groups:    id.Groups,
		SessionID: id.SessionID,
		AMR:       id.AMR,
	}, nil
}
