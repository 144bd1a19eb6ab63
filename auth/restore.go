package auth

import (
	"context"
	"errors"

	"github.com/guelfi/BarbeariaSaaS/token"
)

// Initialize restores a persisted session without contacting the credential
// store. A session is restored only when token, user and expiry are all present,
// the access token verifies, it belongs to the persisted user and it has not
// expired. Anything else clears the session keys and stays Unauthenticated.
// Offline snapshots and the replay queue are kept.
func (m *SessionManager) Initialize(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	p, err := m.loadPersisted(ctx)
	if err != nil {
		return unexpected(m.logger, "initialize", err)
	}

	if reason := m.restoreProblem(ctx, p); reason != nil {
		m.logger.Debug().Err(reason).Msg("no session to restore")
		if err := m.deps.Store.RemoveMany(ctx, m.keys.Session()...); err != nil {
			return unexpected(m.logger, "initialize", err)
		}
		if m.snapshot.Load().State != StateUnauthenticated {
			m.transition(Session{State: StateUnauthenticated})
		}
		return nil
	}

	offlineMode, err := m.isOfflineLocked(ctx)
	if err != nil {
		return unexpected(m.logger, "initialize", err)
	}
	m.transition(Session{
		State:        StateAuthenticated,
		User:         p.user,
		AccessToken:  p.accessToken,
		RefreshToken: p.refreshToken,
		ExpiresAt:    p.expiresAt,
		Offline:      offlineMode,
	})
	m.logger.Info().Str("user", p.user.ID).Msg(msgSessionRestored)
	return nil
}

func (m *SessionManager) restoreProblem(ctx context.Context, p *persisted) error {
	switch {
	case p.accessToken == "":
		return errors.New("no persisted access token")
	case p.userErr != nil:
		return p.userErr
	case p.expiryErr != nil:
		return p.expiryErr
	case !m.nowFunc().Before(p.expiresAt):
		return token.ErrTokenExpired
	}

	claims, err := m.deps.Tokens.Verify(ctx, p.accessToken, token.KindAccess)
	if err != nil {
		return err
	}
	if claims.Subject != p.user.ID {
		return errors.New("access token subject does not match persisted user")
	}
	if !claims.ExpiresAt.Time.Equal(p.expiresAt) {
		return errors.New("persisted expiry does not match access token")
	}
	return m.authenticator.CheckAudience(p.user, m.profile.Audience)
}
