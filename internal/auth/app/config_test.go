package app

import (
	"encoding/base64"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/aussiebroadwan/marquee/internal/auth/service"
	"github.com/aussiebroadwan/marquee/pkg/guard"
	"github.com/aussiebroadwan/marquee/pkg/slogx"
)

func key(b byte, n int) string {
	return base64.RawURLEncoding.EncodeToString([]byte(strings.Repeat(string(rune(b)), n)))
}

func setKeys(t *testing.T) {
	t.Setenv("MARQUEE_KEYS_SIGNING", "s2="+key('a', 32)+",s1="+key('b', 32))
	t.Setenv("MARQUEE_KEYS_SECRETS", "v1="+key('c', 32))
}

func writeYAML(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "marquee.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadConfigDefaults(t *testing.T) {
	setKeys(t)

	cfg, err := loadConfig("")
	require.NoError(t, err)
	require.Equal(t, "dev", cfg.Env)
	require.Equal(t, 8080, cfg.Server.Port)
	require.Equal(t, "http://localhost:8080/sso/callback", cfg.CallbackURL())
	require.Equal(t, 30*24*time.Hour, cfg.Session.TTL)
	require.Equal(t, guard.DefaultLoginLockout, cfg.Guard.LoginLockout.Policy())
	require.Equal(t, guard.DefaultSSORate, cfg.Guard.SSORate.Policy())
	require.Equal(t, "marquee:", cfg.Redis.KeyPrefix)
	require.Empty(t, cfg.WebAuthn.Origins)
	require.Equal(t, service.DefaultChallengeTTL, cfg.WebAuthn.ChallengeTTL)
	require.Equal(t, service.DefaultProviderTimeout, cfg.SSO.ProviderTimeout)
	require.Equal(t, service.DefaultDiscoveryTTL, cfg.SSO.DiscoveryTTL)

	keys, err := cfg.SessionKeys()
	require.NoError(t, err)
	require.Len(t, keys, 2)
	require.Equal(t, "s2", keys[0].ID)
}

func TestLoadConfigYAMLThenEnv(t *testing.T) {
	setKeys(t)
	path := writeYAML(t, `
env: staging
server:
  port: 9000
  base_url: https://requests.example.com/
session:
  ttl: 72h
guard:
  login_lockout:
    max: 3
webauthn:
  rp_id: requests.example.com
  challenge_ttl: 2m
sso:
  discovery_ttl: 1h
providers:
  - name: google
    kind: oidc
    issuer: https://accounts.google.com
    client_id: abc
    pkce: true
  - name: duo
    kind: duo
    api_host: api-1.duosecurity.com
`)
	t.Setenv("MARQUEE_SERVER_PORT", "9100")
	t.Setenv("MARQUEE_GUARD_LOGIN_LOCKOUT_BAN", "1h")
	t.Setenv("MARQUEE_THROTTLE_STRICT_REQUESTS", "5")
	t.Setenv("MARQUEE_SSO_PROVIDER_TIMEOUT", "3s")

	cfg, err := loadConfig(path)
	require.NoError(t, err)
	require.Equal(t, "staging", cfg.Env)
	require.Equal(t, 9100, cfg.Server.Port)
	require.Equal(t, "https://requests.example.com", cfg.Server.BaseURL)
	require.Equal(t, 72*time.Hour, cfg.Session.TTL)
	require.Equal(t, guard.LockoutPolicy{Window: guard.DefaultLoginLockout.Window, Max: 3, Ban: time.Hour}, cfg.Guard.LoginLockout.Policy())
	require.Equal(t, 5, cfg.Throttle.Strict.RequestsPerWindow)
	require.Equal(t, []string{"https://requests.example.com"}, cfg.WebAuthn.Origins)
	require.Equal(t, 2*time.Minute, cfg.WebAuthn.ChallengeTTL)
	require.Equal(t, time.Hour, cfg.SSO.DiscoveryTTL)
	require.Equal(t, 3*time.Second, cfg.SSO.ProviderTimeout)
	require.Equal(t, []string{"duo", "google"}, cfg.ProviderNames())

	p := cfg.Providers[0].service()
	require.Equal(t, "google", p.Name)
	require.True(t, p.PKCE)
}

func TestLoadConfigMissingFile(t *testing.T) {
	setKeys(t)
	_, err := loadConfig(filepath.Join(t.TempDir(), "absent.yaml"))
	require.ErrorContains(t, err, "read config file")
}

func TestValidate(t *testing.T) {
	valid := func() Config {
		c := defaultConfig()
		c.Keys.Signing = "s1=" + key('a', 32)
		c.Keys.Secrets = "v1=" + key('c', 32)
		return c
	}
	require.NoError(t, valid().Validate())

	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"missing signing key", func(c *Config) { c.Keys.Signing = "" }, "keys.signing is required"},
		{"short signing key", func(c *Config) { c.Keys.Signing = "s1=" + key('a', 16) }, "need at least"},
		{"missing secrets", func(c *Config) { c.Keys.Secrets = "" }, "keys.secrets is required"},
		{"bad port", func(c *Config) { c.Server.Port = 0 }, "invalid server port"},
		{"relative base url", func(c *Config) { c.Server.BaseURL = "/app" }, "server.base_url"},
		{"auth debug in prod", func(c *Config) {
			c.Env = "prod"
			c.Cookies.Secure = true
			c.Logging.AuthDebug = true
		}, slogx.ErrAuthDebugInProd.Error()},
		{"insecure cookies in prod", func(c *Config) { c.Env = "prod" }, "cookies.secure"},
		{"zero session ttl", func(c *Config) { c.Session.TTL = 0 }, "session.ttl"},
		{"zero mfa attempts", func(c *Config) { c.MFA.MaxAttempts = 0 }, "mfa.max_attempts"},
		{"zero challenge ttl", func(c *Config) { c.WebAuthn.ChallengeTTL = 0 }, "webauthn.challenge_ttl"},
		{"zero provider timeout", func(c *Config) { c.SSO.ProviderTimeout = 0 }, "sso.provider_timeout"},
		{"unknown provider kind", func(c *Config) {
			c.Providers = []ProviderConfig{{Name: "x", Kind: "saml"}}
		}, "unknown kind"},
		{"duplicate provider", func(c *Config) {
			c.Providers = []ProviderConfig{{Name: "x", Kind: "oidc"}, {Name: "x", Kind: "oauth2"}}
		}, "duplicate name"},
		{"unnamed provider", func(c *Config) {
			c.Providers = []ProviderConfig{{Kind: "oidc"}}
		}, "name is required"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := valid()
			tt.mutate(&c)
			require.ErrorContains(t, c.Validate(), tt.want)
		})
	}
}

func TestValidateReportsEveryProblem(t *testing.T) {
	c := defaultConfig()
	c.Server.Port = -1
	err := c.Validate()
	require.ErrorContains(t, err, "invalid server port")
	require.ErrorContains(t, err, "keys.signing is required")
	require.ErrorContains(t, err, "keys.secrets is required")
}
