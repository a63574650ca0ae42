package session

import (
	"sync"
	"time"
)

const (
	// SafetyBuffer is how long before expiry a token stops being handed out.
	SafetyBuffer = 120 * time.Second
	// DefaultTTL applies when the bridge does not say how long a token lives.
	DefaultTTL = 3600 * time.Second
	// MaxTTL caps whatever lifetime the bridge advertises.
	MaxTTL = 24 * time.Hour
)

// TokenCache stores bridge access tokens per upstream account id.
type TokenCache interface {
	Get(accountID string) (string, bool)
	Set(accountID, token string, ttl time.Duration)
	Invalidate(accountID string)
}

// Token is a cached access token.
type Token struct {
	Value     string
	ExpiresAt time.Time
}

// MemoryCache is the in-process TokenCache. Concurrent misses may both log
// in; the later Set wins.
type MemoryCache struct {
	mu      sync.Mutex
	now     func() time.Time
	entries map[string]Token
}

// NewMemoryCache returns an empty cache on the wall clock.
func NewMemoryCache() *MemoryCache {
	return NewMemoryCacheWithClock(time.Now)
}

// NewMemoryCacheWithClock returns an empty cache reading time from now.
func NewMemoryCacheWithClock(now func() time.Time) *MemoryCache {
	return &MemoryCache{now: now, entries: make(map[string]Token)}
}

// Get returns the token while now < expiresAt - SafetyBuffer, evicting it
// from that boundary on.
func (c *MemoryCache) Get(accountID string) (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	t, ok := c.entries[accountID]
	if !ok {
		return "", false
	}
	if c.now().Before(t.ExpiresAt.Add(-SafetyBuffer)) {
		return t.Value, true
	}
	delete(c.entries, accountID)
	return "", false
}

// Set stores token for ttl; ttl <= 0 means DefaultTTL.
func (c *MemoryCache) Set(accountID, token string, ttl time.Duration) {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[accountID] = Token{Value: token, ExpiresAt: c.now().Add(ttl)}
}

// Invalidate evicts the account's token.
func (c *MemoryCache) Invalidate(accountID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, accountID)
}

// size is the number of entries, expired or not.
func (c *MemoryCache) size() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}
