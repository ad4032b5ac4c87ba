package service

import (
	"context"
	"sync"
	"time"

	"github.com/aussiebroadwan/marquee/internal/auth/store"
)

const DefaultAccountCacheTTL = 30 * time.Second

// CachedAccount is the part of an account the gateway checks per request.
type CachedAccount struct {
	ID       string
	Username string
	Groups   []string
	Banned   bool
}

type cacheEntry struct {
	account CachedAccount
	expires time.Time
}

// AccountCache memoizes account validity so authenticated requests do not
// read the accounts table every time. Writers that change an account must
// call Invalidate.
//
// gen and epoch count invalidations so a load that overlaps one is not
// written back.
type AccountCache struct {
	store store.Store
	ttl   time.Duration
	now   func() time.Time

	mu      sync.RWMutex
	entries map[string]cacheEntry
	gen     map[string]uint64
	epoch   uint64
}

func NewAccountCache(st store.Store, ttl time.Duration) *AccountCache {
	if ttl <= 0 {
		ttl = DefaultAccountCacheTTL
	}
	return &AccountCache{
		store:   st,
		ttl:     ttl,
		now:     time.Now,
		entries: make(map[string]cacheEntry),
		gen:     make(map[string]uint64),
	}
}

// Get returns the cached view, loading it on a miss. Missing accounts are
// not cached and return store.ErrNotFound.
func (c *AccountCache) Get(ctx context.Context, id string) (CachedAccount, error) {
	now := c.now()

	c.mu.RLock()
	e, ok := c.entries[id]
	gen, epoch := c.gen[id], c.epoch
	c.mu.RUnlock()
	if ok && now.Before(e.expires) {
		return e.account, nil
	}

	a, err := c.store.Accounts().GetAccountByID(ctx, id)
	if err != nil {
		return CachedAccount{}, err
	}
	ca := CachedAccount{ID: a.ID, Username: a.Username, Groups: a.Groups, Banned: a.Banned}

	c.mu.Lock()
	if c.gen[id] == gen && c.epoch == epoch {
		c.entries[id] = cacheEntry{account: ca, expires: now.Add(c.ttl)}
	}
	c.mu.Unlock()
	return ca, nil
}

func (c *AccountCache) Invalidate(id string) {
	c.mu.Lock()
	delete(c.entries, id)
	c.gen[id]++
	c.mu.Unlock()
}

func (c *AccountCache) InvalidateAll() {
	c.mu.Lock()
	c.entries = make(map[string]cacheEntry)
	c.epoch++
	c.mu.Unlock()
}

// Len is the number of cached entries, expired or not.
func (c *AccountCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}
