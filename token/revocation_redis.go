package token

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
)

// RedisRevokedTokenCache shares revocations between processes. Entries expire
// through Redis TTLs so Cleanup has nothing to do.
type RedisRevokedTokenCache struct {
	client  redis.Cmdable
	prefix  string
	nowFunc func() time.Time
}

func NewRedisRevokedTokenCache(client redis.Cmdable, prefix string, now func() time.Time) *RedisRevokedTokenCache {
	if prefix == "" {
		prefix = "revoked:"
	}
	if now == nil {
		now = time.Now
	}
	return &RedisRevokedTokenCache{client: client, prefix: prefix, nowFunc: now}
}

func (c *RedisRevokedTokenCache) Add(ctx context.Context, jti string, exp time.Time) error {
	ttl := exp.Sub(c.nowFunc())
	if ttl <= 0 {
		return nil
	}
	if err := c.client.Set(ctx, c.prefix+jti, exp.Unix(), ttl).Err(); err != nil {
		return errors.Wrap(err, "RedisRevokedTokenCache.Add")
	}
	return nil
}

func (c *RedisRevokedTokenCache) IsRevoked(ctx context.Context, jti string) (bool, error) {
	n, err := c.client.Exists(ctx, c.prefix+jti).Result()
	if err != nil {
		return false, errors.Wrap(err, "RedisRevokedTokenCache.IsRevoked")
	}
	return n > 0, nil
}

// Consume uses SET NX so only one process can claim a jti
func (c *RedisRevokedTokenCache) Consume(ctx context.Context, jti string, exp time.Time) (bool, error) {
	ttl := exp.Sub(c.nowFunc())
	if ttl <= 0 {
		return false, nil
	}
	added, err := c.client.SetNX(ctx, c.prefix+jti, exp.Unix(), ttl).Result()
	if err != nil {
		return false, errors.Wrap(err, "RedisRevokedTokenCache.Consume")
	}
	return added, nil
}

func (c *RedisRevokedTokenCache) Cleanup(context.Context) {}
