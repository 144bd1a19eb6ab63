package auth

import (
	"context"
	"time"
)

// CheckExpiry logs out a session that still claims to be authenticated after
// its expiry. It reports whether a logout happened.
func (m *SessionManager) CheckExpiry(ctx context.Context) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	current := m.snapshot.Load()
	if current.State != StateAuthenticated && current.State != StateRefreshing {
		return false, nil
	}
	if current.at(m.nowFunc()).Authenticated {
		return false, nil
	}
	m.logger.Info().Time("expiresAt", current.ExpiresAt).Msg("session expired")
	return true, m.logoutLocked(ctx)
}

// RunExpirySweep calls CheckExpiry every sweep interval until ctx is done. It
// also drops expired entries from the token revocation cache.
func (m *SessionManager) RunExpirySweep(ctx context.Context) {
	interval := m.sweepInterval
	if interval <= 0 {
		interval = DefaultSweepInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := m.CheckExpiry(ctx); err != nil {
				m.logger.Error().Err(err).Msg("expiry sweep")
			}
			m.deps.Tokens.CleanupRevokedTokens(ctx)
		}
	}
}
