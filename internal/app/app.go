// Package app wires the configured credential stores and token manager for the binaries.
package app

import (
	"context"
	"fmt"
	"time"

	"github.com/guelfi/BarbeariaSaaS/internal/config"
	"github.com/guelfi/BarbeariaSaaS/tenants"
	tenantrepofakes "github.com/guelfi/BarbeariaSaaS/tenants/repofakes"
	"github.com/guelfi/BarbeariaSaaS/token"
	"github.com/guelfi/BarbeariaSaaS/users"
	"github.com/guelfi/BarbeariaSaaS/users/pgstore"
	fakeuserrepo "github.com/guelfi/BarbeariaSaaS/users/repofake"
	"github.com/guelfi/BarbeariaSaaS/users/sqlitestore"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

const revokedKeyPrefix = "barbearia:revoked:"

// Stores are the credential and barbershop repositories for the configured driver.
type Stores struct {
	Credentials users.CredentialStore
	Tenants     tenants.Repo
	close       func()
}

func (s *Stores) Close() {
	if s != nil && s.close != nil {
		s.close()
	}
}

func OpenStores(ctx context.Context, c config.StorageConfig, bcryptCost int) (*Stores, error) {
	switch c.GetStoreDriver() {
	case config.DriverSQLite:
		store, err := sqlitestore.Open(c.GetSQLitePath(), sqlitestore.WithBcryptCost(bcryptCost))
		if err != nil {
			return nil, fmt.Errorf("open sqlite store: %w", err)
		}
		log.Info().Str("path", c.GetSQLitePath()).Msg("using sqlite credential store")
		return &Stores{Credentials: store, Tenants: store.Tenants(), close: func() { _ = store.Close() }}, nil
	case config.DriverPostgres:
		store, err := pgstore.Connect(ctx, c.GetDatabaseURL(), pgstore.WithBcryptCost(bcryptCost))
		if err != nil {
			return nil, fmt.Errorf("connect postgres store: %w", err)
		}
		log.Info().Msg("using postgres credential store")
		return &Stores{Credentials: store, Tenants: store.Tenants(), close: store.Close}, nil
	case config.DriverMemory:
		log.Warn().Msg("using in-memory credential store, accounts are lost on exit")
		return &Stores{
			Credentials: fakeuserrepo.NewFakeUserRepo(fakeuserrepo.WithBcryptCost(bcryptCost)),
			Tenants:     tenantrepofakes.NewFakeTenantRepo(),
		}, nil
	default:
		return nil, fmt.Errorf("unsupported store driver %q", c.GetStoreDriver())
	}
}

// Tokens is the token manager plus the Redis client backing its revocations, if any.
type Tokens struct {
	*token.Manager
	redis *redis.Client
}

func (t *Tokens) Close() {
	if t != nil && t.redis != nil {
		_ = t.redis.Close()
	}
}

// NewTokenManager builds the signer from configuration. When REDIS_ADDR is set
// revocations are shared through Redis, otherwise they live in process memory.
func NewTokenManager(ctx context.Context, c config.Config) (*Tokens, error) {
	privateKeyPEM, err := c.GetTokenPrivateKeyPEM()
	if err != nil {
		return nil, err
	}
	signer, err := token.NewSigner(c.GetTokenAlgorithm(), c.GetTokenKey(), privateKeyPEM)
	if err != nil {
		return nil, fmt.Errorf("token signer: %w", err)
	}

	options := []token.ManagerOption{
		token.WithIssuer(c.GetTokenIssuer()),
		token.WithTokenExpiry(c.GetAccessTokenExpiry(), c.GetRefreshTokenExpiry()),
	}
	t := &Tokens{}
	if addr := c.GetRedisAddr(); addr != "" {
		t.redis = redis.NewClient(&redis.Options{Addr: addr, Password: c.GetRedisPassword(), DB: c.GetRedisDB()})
		pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		if err := t.redis.Ping(pingCtx).Err(); err != nil {
			t.Close()
			return nil, fmt.Errorf("ping redis: %w", err)
		}
		log.Info().Str("addr", addr).Msg("sharing token revocations through redis")
		options = append(options, token.WithRevokedTokenCache(token.NewRedisRevokedTokenCache(t.redis, revokedKeyPrefix, time.Now)))
	}

	if t.Manager, err = token.New(signer, options...); err != nil {
		t.Close()
		return nil, err
	}
	return t, nil
}

// SweepRevocations drops expired revocations every interval until ctx is done.
func SweepRevocations(ctx context.Context, tokens *token.Manager, interval time.Duration) {
	if interval <= 0 {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			tokens.CleanupRevokedTokens(ctx)
		}
	}
}
