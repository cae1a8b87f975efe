package authbroker

import (
	"sync"
	"time"
)

type cacheKey struct {
	orgID   string
	apiType string
}

// cachedToken is one organization's live grant. ResourceURL rides along so
// the executor can route without re-opening the credential blob; it is not
// sensitive. ExpiresAt already includes the 60s safety margin.
type cachedToken struct {
	AccessToken string
	ResourceURL string
	ExpiresAt   time.Time
}

// tokenCache holds live tokens in memory only, one slot per organization and
// API type. Entries are overwritten on refresh and invalidated lazily; there
// is no background expiry sweep.
type tokenCache struct {
	mu      sync.RWMutex
	entries map[cacheKey]cachedToken
}

func newTokenCache() *tokenCache {
	return &tokenCache{entries: map[cacheKey]cachedToken{}}
}

func (c *tokenCache) get(k cacheKey) (cachedToken, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	t, ok := c.entries[k]
	return t, ok
}

func (c *tokenCache) put(k cacheKey, t cachedToken) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[k] = t
}

func (c *tokenCache) invalidate(k cacheKey) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, k)
}
