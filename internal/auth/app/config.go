package app

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"

	"github.com/aussiebroadwan/marquee/internal/auth/domain"
	"github.com/aussiebroadwan/marquee/internal/auth/service"
	"github.com/aussiebroadwan/marquee/pkg/cryptox"
	"github.com/aussiebroadwan/marquee/pkg/guard"
	"github.com/aussiebroadwan/marquee/pkg/httpx"
	"github.com/aussiebroadwan/marquee/pkg/jwtx"
	"github.com/aussiebroadwan/marquee/pkg/slogx"
)

// EnvPrefix prefixes every environment variable, e.g. MARQUEE_SERVER_PORT.
const EnvPrefix = "MARQUEE"

// ConfigFileEnv names the optional YAML file read before the environment.
const ConfigFileEnv = "MARQUEE_CONFIG_FILE"

type Config struct {
	Env          string             `yaml:"env" envconfig:"ENV"` // dev, staging, prod
	Server       ServerConfig       `yaml:"server" envconfig:"SERVER"`
	Database     DatabaseConfig     `yaml:"database" envconfig:"DATABASE"`
	Keys         KeysConfig         `yaml:"keys" envconfig:"KEYS"`
	Cookies      CookieConfig       `yaml:"cookies" envconfig:"COOKIES"`
	Session      SessionConfig      `yaml:"session" envconfig:"SESSION"`
	MFA          MFAConfig          `yaml:"mfa" envconfig:"MFA"`
	Guard        GuardConfig        `yaml:"guard" envconfig:"GUARD"`
	Throttle     ThrottleConfig     `yaml:"throttle" envconfig:"THROTTLE"`
	WebAuthn     WebAuthnConfig     `yaml:"webauthn" envconfig:"WEBAUTHN"`
	SSO          SSOConfig          `yaml:"sso" envconfig:"SSO"`
	Redis        RedisConfig        `yaml:"redis" envconfig:"REDIS"`
	AMQP         AMQPConfig         `yaml:"amqp" envconfig:"AMQP"`
	Logging      LoggingConfig      `yaml:"logging" envconfig:"LOGGING"`
	Housekeeping HousekeepingConfig `yaml:"housekeeping" envconfig:"HOUSEKEEPING"`

	// Providers only come from YAML.
	Providers []ProviderConfig `yaml:"providers" ignored:"true"`
}

type ServerConfig struct {
	Port          int           `yaml:"port" envconfig:"PORT"`
	BaseURL       string        `yaml:"base_url" envconfig:"BASE_URL"` // public origin, e.g. https://requests.example.com
	TrustProxy    bool          `yaml:"trust_proxy" envconfig:"TRUST_PROXY"`
	ShutdownGrace time.Duration `yaml:"shutdown_grace" envconfig:"SHUTDOWN_GRACE"`
}

type DatabaseConfig struct {
	File string `yaml:"file" envconfig:"FILE"`
}

// KeysConfig holds key material as "id=<base64>,id=<base64>". The first
// entry signs or encrypts; the rest only verify or decrypt.
type KeysConfig struct {
	Signing    string `yaml:"signing" envconfig:"SIGNING"`
	Secrets    string `yaml:"secrets" envconfig:"SECRETS"`
	PepperFile string `yaml:"pepper_file" envconfig:"PEPPER_FILE"`
}

type CookieConfig struct {
	Domain string `yaml:"domain" envconfig:"DOMAIN"`
	Secure bool   `yaml:"secure" envconfig:"SECURE"`
}

type SessionConfig struct {
	TTL           time.Duration `yaml:"ttl" envconfig:"TTL"`
	TouchInterval time.Duration `yaml:"touch_interval" envconfig:"TOUCH_INTERVAL"`
	CacheTTL      time.Duration `yaml:"cache_ttl" envconfig:"CACHE_TTL"`
	Issuer        string        `yaml:"issuer" envconfig:"ISSUER"`
}

type MFAConfig struct {
	Issuer      string        `yaml:"issuer" envconfig:"ISSUER"` // shown in authenticator apps
	Skew        uint          `yaml:"skew" envconfig:"SKEW"`
	MaxAttempts int           `yaml:"max_attempts" envconfig:"MAX_ATTEMPTS"`
	SessionTTL  time.Duration `yaml:"session_ttl" envconfig:"SESSION_TTL"`
}

type LockoutConfig struct {
	Window time.Duration `yaml:"window" envconfig:"WINDOW"`
	Max    int           `yaml:"max" envconfig:"MAX"`
	Ban    time.Duration `yaml:"ban" envconfig:"BAN"`
}

func (c LockoutConfig) Policy() guard.LockoutPolicy {
	return guard.LockoutPolicy{Window: c.Window, Max: c.Max, Ban: c.Ban}
}

type RateConfig struct {
	Window time.Duration `yaml:"window" envconfig:"WINDOW"`
	Max    int           `yaml:"max" envconfig:"MAX"`
}

func (c RateConfig) Policy() guard.RatePolicy {
	return guard.RatePolicy{Window: c.Window, Max: c.Max}
}

type GuardConfig struct {
	LoginLockout LockoutConfig `yaml:"login_lockout" envconfig:"LOGIN_LOCKOUT"`
	MFALockout   LockoutConfig `yaml:"mfa_lockout" envconfig:"MFA_LOCKOUT"`
	SSORate      RateConfig    `yaml:"sso_rate" envconfig:"SSO_RATE"`
	WebAuthnRate RateConfig    `yaml:"webauthn_rate" envconfig:"WEBAUTHN_RATE"`
}

// ThrottleConfig sets the per-IP token buckets in front of each route group.
type ThrottleConfig struct {
	Strict   httpx.ThrottleConfig `yaml:"strict" envconfig:"STRICT"`
	Moderate httpx.ThrottleConfig `yaml:"moderate" envconfig:"MODERATE"`
	Public   httpx.ThrottleConfig `yaml:"public" envconfig:"PUBLIC"`
}

// WebAuthnConfig enables passkeys when RPID is set.
type WebAuthnConfig struct {
	RPID         string        `yaml:"rp_id" envconfig:"RP_ID"`
	RPName       string        `yaml:"rp_name" envconfig:"RP_NAME"`
	Origins      []string      `yaml:"origins" envconfig:"ORIGINS"`
	ChallengeTTL time.Duration `yaml:"challenge_ttl" envconfig:"CHALLENGE_TTL"`
}

// SSOConfig tunes outbound calls to identity providers.
type SSOConfig struct {
	ProviderTimeout time.Duration `yaml:"provider_timeout" envconfig:"PROVIDER_TIMEOUT"`
	DiscoveryTTL    time.Duration `yaml:"discovery_ttl" envconfig:"DISCOVERY_TTL"`
}

// RedisConfig moves the guard and handshake state to Redis when URL is set.
type RedisConfig struct {
	URL       string `yaml:"url" envconfig:"URL"`
	KeyPrefix string `yaml:"key_prefix" envconfig:"KEY_PREFIX"`
}

// AMQPConfig publishes audit events when URL is set.
type AMQPConfig struct {
	URL   string `yaml:"url" envconfig:"URL"`
	Queue string `yaml:"queue" envconfig:"QUEUE"`
}

type LoggingConfig struct {
	Level     string `yaml:"level" envconfig:"LEVEL"`
	Format    string `yaml:"format" envconfig:"FORMAT"`
	AuthDebug bool   `yaml:"auth_debug" envconfig:"AUTH_DEBUG"`
}

type HousekeepingConfig struct {
	Interval time.Duration `yaml:"interval" envconfig:"INTERVAL"`
}

// ProviderConfig is one external identity provider.
type ProviderConfig struct {
	Name          string   `yaml:"name"`
	Kind          string   `yaml:"kind"` // oidc, oauth2, duo
	Issuer        string   `yaml:"issuer"`
	AuthorizeURL  string   `yaml:"authorize_url"`
	TokenURL      string   `yaml:"token_url"`
	UserInfoURL   string   `yaml:"userinfo_url"`
	APIHost       string   `yaml:"api_host"`
	ClientID      string   `yaml:"client_id"`
	ClientSecret  string   `yaml:"client_secret"`
	Scopes        []string `yaml:"scopes"`
	PKCE          bool     `yaml:"pkce"`
	AutoProvision bool     `yaml:"auto_provision"`
	Fields        struct {
		Subject  string `yaml:"subject"`
		Email    string `yaml:"email"`
		Username string `yaml:"username"`
	} `yaml:"fields"`
}

func (p ProviderConfig) service() service.ProviderConfig {
	return service.ProviderConfig{
		Name:         p.Name,
		Kind:         domain.ProviderKind(p.Kind),
		Issuer:       p.Issuer,
		AuthorizeURL: p.AuthorizeURL,
		TokenURL:     p.TokenURL,
		UserInfoURL:  p.UserInfoURL,
		Fields: service.FieldMapping{
			Subject:  p.Fields.Subject,
			Email:    p.Fields.Email,
			Username: p.Fields.Username,
		},
		APIHost:       p.APIHost,
		ClientID:      p.ClientID,
		ClientSecret:  p.ClientSecret,
		Scopes:        p.Scopes,
		PKCE:          p.PKCE,
		AutoProvision: p.AutoProvision,
	}
}

// LoadConfig layers defaults, the YAML file named by MARQUEE_CONFIG_FILE and
// the environment, then validates the result.
func LoadConfig() (Config, error) {
	return loadConfig(os.Getenv(ConfigFileEnv))
}

func loadConfig(file string) (Config, error) {
	cfg := defaultConfig()

	if file != "" {
		data, err := os.ReadFile(file)
		if err != nil {
			return Config{}, fmt.Errorf("read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse config file: %w", err)
		}
	}

	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return Config{}, fmt.Errorf("process environment: %w", err)
	}

	cfg.fillDerived()
	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

func defaultConfig() Config {
	return Config{
		Env: "dev",
		Server: ServerConfig{
			Port:          8080,
			BaseURL:       "http://localhost:8080",
			ShutdownGrace: 10 * time.Second,
		},
		Database: DatabaseConfig{File: "marquee.db"},
		Keys:     KeysConfig{PepperFile: "pepper"},
		Session: SessionConfig{
			TTL:           service.DefaultSessionTTL,
			TouchInterval: service.DefaultTouchInterval,
			CacheTTL:      service.DefaultAccountCacheTTL,
			Issuer:        "marquee",
		},
		MFA: MFAConfig{
			Issuer:      "Marquee",
			Skew:        service.DefaultTOTPSkew,
			MaxAttempts: service.DefaultMFAMaxAttempts,
			SessionTTL:  service.DefaultMFASessionTTL,
		},
		Guard: GuardConfig{
			LoginLockout: LockoutConfig(guard.DefaultLoginLockout),
			MFALockout:   LockoutConfig(guard.DefaultMFALockout),
			SSORate:      RateConfig(guard.DefaultSSORate),
			WebAuthnRate: RateConfig(guard.DefaultWebAuthnRate),
		},
		Throttle: ThrottleConfig{
			Strict:   httpx.StrictThrottle,
			Moderate: httpx.ModerateThrottle,
			Public:   httpx.PublicThrottle,
		},
		WebAuthn:     WebAuthnConfig{RPName: "Marquee", ChallengeTTL: service.DefaultChallengeTTL},
		SSO: SSOConfig{
			ProviderTimeout: service.DefaultProviderTimeout,
			DiscoveryTTL:    service.DefaultDiscoveryTTL,
		},
		Redis:        RedisConfig{KeyPrefix: "marquee:"},
		Logging:      LoggingConfig{Level: "info", Format: "json"},
		Housekeeping: HousekeepingConfig{Interval: time.Hour},
	}
}

// fillDerived sets values that default from other fields.
func (c *Config) fillDerived() {
	c.Server.BaseURL = strings.TrimRight(c.Server.BaseURL, "/")
	if c.WebAuthn.RPID != "" && len(c.WebAuthn.Origins) == 0 {
		c.WebAuthn.Origins = []string{c.Server.BaseURL}
	}
}

// CallbackURL is where providers send the browser back to.
func (c Config) CallbackURL() string {
	return c.Server.BaseURL + "/sso/callback"
}

// Validate checks the configuration is usable before anything is opened.
func (c Config) Validate() error {
	var errs []error

	if c.Server.Port < 1 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Errorf("invalid server port: %d", c.Server.Port))
	}
	if u, err := url.Parse(c.Server.BaseURL); err != nil || u.Scheme == "" || u.Host == "" {
		errs = append(errs, fmt.Errorf("server.base_url must be scheme://host[:port], got %q", c.Server.BaseURL))
	}
	if c.Database.File == "" {
		errs = append(errs, errors.New("database.file is required"))
	}

	if _, err := c.SessionKeys(); err != nil {
		errs = append(errs, err)
	}
	if c.Keys.Secrets == "" {
		errs = append(errs, errors.New("keys.secrets is required"))
	} else if kr, err := cryptox.ParseKeyring(c.Keys.Secrets); err != nil {
		errs = append(errs, err)
	} else if _, err := cryptox.NewSecretCipher(kr); err != nil {
		errs = append(errs, err)
	}

	if slogx.IsProd(c.Env) {
		if c.Logging.AuthDebug {
			errs = append(errs, slogx.ErrAuthDebugInProd)
		}
		if !c.Cookies.Secure {
			errs = append(errs, errors.New("cookies.secure must be true when env is prod"))
		}
	}

	if c.Session.TTL <= 0 {
		errs = append(errs, errors.New("session.ttl must be positive"))
	}
	if c.MFA.MaxAttempts < 1 {
		errs = append(errs, errors.New("mfa.max_attempts must be at least 1"))
	}
	if c.WebAuthn.ChallengeTTL <= 0 {
		errs = append(errs, errors.New("webauthn.challenge_ttl must be positive"))
	}
	if c.SSO.ProviderTimeout <= 0 || c.SSO.DiscoveryTTL <= 0 {
		errs = append(errs, errors.New("sso.provider_timeout and sso.discovery_ttl must be positive"))
	}

	seen := map[string]bool{}
	for i, p := range c.Providers {
		if p.Name == "" {
			errs = append(errs, fmt.Errorf("providers[%d]: name is required", i))
			continue
		}
		if seen[p.Name] {
			errs = append(errs, fmt.Errorf("providers[%d]: duplicate name %q", i, p.Name))
		}
		seen[p.Name] = true
		switch domain.ProviderKind(p.Kind) {
		case domain.ProviderOIDC, domain.ProviderOAuth2, domain.ProviderDuo:
		default:
			errs = append(errs, fmt.Errorf("provider %s: unknown kind %q (want oidc, oauth2 or duo)", p.Name, p.Kind))
		}
	}

	return errors.Join(errs...)
}

// SessionKeys parses Keys.Signing. The first key signs.
func (c Config) SessionKeys() ([]jwtx.SessionKey, error) {
	if c.Keys.Signing == "" {
		return nil, errors.New("keys.signing is required")
	}
	kr, err := cryptox.ParseKeyring(c.Keys.Signing)
	if err != nil {
		return nil, fmt.Errorf("keys.signing: %w", err)
	}
	ids := append([]string{kr.Current}, kr.Fallback...)
	keys := make([]jwtx.SessionKey, 0, len(ids))
	for _, id := range ids {
		secret := kr.Keys[id]
		if len(secret) < jwtx.MinSessionKeyLen {
			return nil, fmt.Errorf("keys.signing: key %q is %d bytes, need at least %d", id, len(secret), jwtx.MinSessionKeyLen)
		}
		keys = append(keys, jwtx.SessionKey{ID: id, Secret: secret})
	}
	return keys, nil
}

// ProviderNames lists configured providers, sorted.
func (c Config) ProviderNames() []string {
	names := make([]string, 0, len(c.Providers))
	for _, p := range c.Providers {
		names = append(names, p.Name)
	}
	sort.Strings(names)
	return names
}
