package token

import (
	"context"
	"sync"
	"time"
)

// RevokedTokenCache remembers the jti of revoked tokens until they would have expired anyway
type RevokedTokenCache interface {
	Add(ctx context.Context, jti string, exp time.Time) error
	IsRevoked(ctx context.Context, jti string) (bool, error)
	// Consume adds jti unless it is already present, reporting whether this call added it
	Consume(ctx context.Context, jti string, exp time.Time) (bool, error)
	Cleanup(ctx context.Context) // Remove expired entries
}

// InMemoryRevokedTokenCache is a process-local RevokedTokenCache
type InMemoryRevokedTokenCache struct {
	revoked map[string]time.Time
	mu      sync.RWMutex
	nowFunc func() time.Time
}

func NewInMemoryRevokedTokenCache(now func() time.Time) *InMemoryRevokedTokenCache {
	if now == nil {
		now = time.Now
	}
	return &InMemoryRevokedTokenCache{
		revoked: make(map[string]time.Time),
		nowFunc: now,
	}
}

func (c *InMemoryRevokedTokenCache) Add(_ context.Context, jti string, exp time.Time) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.revoked[jti] = exp
	return nil
}

func (c *InMemoryRevokedTokenCache) IsRevoked(_ context.Context, jti string) (bool, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	_, exists := c.revoked[jti]
	return exists, nil
}

func (c *InMemoryRevokedTokenCache) Consume(_ context.Context, jti string, exp time.Time) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, exists := c.revoked[jti]; exists {
		return false, nil
	}
	c.revoked[jti] = exp
	return true, nil
}

func (c *InMemoryRevokedTokenCache) Cleanup(_ context.Context) {
	c.mu.Lock()
	defer c.mu.Unlock()
	now := c.nowFunc()
	for jti, exp := range c.revoked {
		if !now.Before(exp) {
			delete(c.revoked, jti)
		}
	}
}

// Len reports how many jtis are currently held.
func (c *InMemoryRevokedTokenCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.revoked)
}
