package oauth2

import "sync"

// tokenCache holds fetched tokens keyed by endpoint+client+scope.
type tokenCache struct {
	mu     sync.RWMutex
	tokens map[string]*Token
}

func newTokenCache() *tokenCache {
	return &tokenCache{tokens: make(map[string]*Token)}
}

func (c *tokenCache) get(key string) *Token {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.tokens[key]
}

func (c *tokenCache) set(key string, token *Token) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.tokens[key] = token
}
