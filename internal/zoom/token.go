package zoom

import (
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
)

// Token is a bearer credential with an absolute expiry.
type Token struct {
	Value     string
	ExpiresAt time.Time
}

// Valid reports whether the token may still be used at now.
func (t Token) Valid(now time.Time) bool {
	return t.Value != "" && now.Before(t.ExpiresAt)
}

// TokenCache holds a single access token for one credential scope.
// Concurrent callers may both see a miss and refresh; the last Store wins.
type TokenCache struct {
	clock clockwork.Clock

	mu    sync.Mutex
	token Token
}

// NewTokenCache creates an empty cache. A nil clock means the real clock.
func NewTokenCache(clock clockwork.Clock) *TokenCache {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &TokenCache{clock: clock}
}

// Get returns the cached token value while it is unexpired.
func (c *TokenCache) Get() (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.token.Valid(c.clock.Now()) {
		return "", false
	}
	return c.token.Value, true
}

// Store replaces the cached token with one valid for ttl from now.
func (c *TokenCache) Store(value string, ttl time.Duration) Token {
	t := Token{Value: value, ExpiresAt: c.clock.Now().Add(ttl)}
	c.mu.Lock()
	c.token = t
	c.mu.Unlock()
	return t
}

// Now is the cache's notion of the current time.
func (c *TokenCache) Now() time.Time {
	return c.clock.Now()
}
