package service

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/aussiebroadwan/marquee/internal/auth/domain"
	"github.com/aussiebroadwan/marquee/pkg/jwtx"
)

const (
	DefaultProviderTimeout = 5 * time.Second
	DefaultDiscoveryTTL    = 30 * time.Minute

	maxProviderBody = 1 << 20
)

// Discovery is an issuer's OpenID configuration and its signing keys.
type Discovery struct {
	Issuer                string `json:"issuer"`
	AuthorizationEndpoint string `json:"authorization_endpoint"`
	TokenEndpoint         string `json:"token_endpoint"`
	UserInfoEndpoint      string `json:"userinfo_endpoint"`
	JWKSURI               string `json:"jwks_uri"`
	EndSessionEndpoint    string `json:"end_session_endpoint"`

	Keys *jwtx.KeySet `json:"-"`
}

type discoveryEntry struct {
	mu        sync.Mutex
	doc       *Discovery
	fetchedAt time.Time
}

// DiscoveryCache fetches and caches OpenID configurations per issuer.
// Concurrent callers for one issuer wait on a single fetch.
type DiscoveryCache struct {
	client *http.Client
	ttl    time.Duration
	now    func() time.Time

	mu      sync.Mutex
	entries map[string]*discoveryEntry
}

func NewDiscoveryCache(client *http.Client, ttl time.Duration) *DiscoveryCache {
	if client == nil {
		client = &http.Client{Timeout: DefaultProviderTimeout}
	}
	if ttl <= 0 {
		ttl = DefaultDiscoveryTTL
	}
	return &DiscoveryCache{client: client, ttl: ttl, now: time.Now, entries: make(map[string]*discoveryEntry)}
}

func (c *DiscoveryCache) entry(issuer string) *discoveryEntry {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[issuer]
	if !ok {
		e = &discoveryEntry{}
		c.entries[issuer] = e
	}
	return e
}

// Get returns the cached configuration, fetching it when missing or stale.
func (c *DiscoveryCache) Get(ctx context.Context, issuer string) (*Discovery, error) {
	e := c.entry(issuer)
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.doc != nil && c.now().Sub(e.fetchedAt) < c.ttl {
		return e.doc, nil
	}
	doc, err := c.fetch(ctx, issuer)
	if err != nil {
		return nil, err
	}
	e.doc, e.fetchedAt = doc, c.now()
	return doc, nil
}

// Invalidate drops the cached configuration so the next Get refetches,
// for example after an unknown signing key.
func (c *DiscoveryCache) Invalidate(issuer string) {
	e := c.entry(issuer)
	e.mu.Lock()
	e.doc = nil
	e.mu.Unlock()
}

func (c *DiscoveryCache) fetch(ctx context.Context, issuer string) (*Discovery, error) {
	var doc Discovery
	wellKnown := strings.TrimSuffix(issuer, "/") + "/.well-known/openid-configuration"
	if err := getJSON(ctx, c.client, wellKnown, "", &doc); err != nil {
		return nil, err
	}
	if strings.TrimSuffix(doc.Issuer, "/") != strings.TrimSuffix(issuer, "/") {
		return nil, fmt.Errorf("%w: discovery issuer %q does not match %q", domain.ErrProviderUnavailable, doc.Issuer, issuer)
	}
	if doc.AuthorizationEndpoint == "" || doc.TokenEndpoint == "" || doc.JWKSURI == "" {
		return nil, fmt.Errorf("%w: incomplete discovery document", domain.ErrProviderUnavailable)
	}

	var jwks jwtx.JWKS
	if err := getJSON(ctx, c.client, doc.JWKSURI, "", &jwks); err != nil {
		return nil, err
	}
	doc.Keys = jwtx.NewKeySet()
	if err := doc.Keys.ResetFromJWKS(jwks); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrProviderUnavailable, err)
	}
	return &doc, nil
}

// getJSON fetches url and decodes a 200 response into out. Transport
// failures and bad statuses are ErrProviderUnavailable.
func getJSON(ctx context.Context, client *http.Client, url, bearer string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("%w: %v", domain.ErrProviderUnavailable, err)
	}
	req.Header.Set("Accept", "application/json")
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}
	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", domain.ErrProviderUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%w: GET %s returned %d", domain.ErrProviderUnavailable, url, resp.StatusCode)
	}
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxProviderBody)).Decode(out); err != nil {
		return fmt.Errorf("%w: decode %s: %v", domain.ErrProviderUnavailable, url, err)
	}
	return nil
}
