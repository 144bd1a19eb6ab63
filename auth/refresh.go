package auth

import (
	"context"
	"errors"

	"github.com/guelfi/BarbeariaSaaS/token"
	"github.com/guelfi/BarbeariaSaaS/users"
)

// Refresh exchanges the persisted refresh token for a new pair and revokes the
// old one. Any failure logs the session out before the error is returned.
func (m *SessionManager) Refresh(ctx context.Context) (Result, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	session, err := m.refreshLocked(ctx)
	if err != nil {
		m.logger.Info().Str("reason", string(KindOf(err))).Msg("refresh failed, logging out")
		if logoutErr := m.logoutLocked(ctx); logoutErr != nil {
			m.logger.Error().Err(logoutErr).Msg("logout after failed refresh")
		}
		return Result{}, err
	}
	return Result{Session: session, Message: msgRefreshed, Offline: session.Offline}, nil
}

// refreshLocked must be called with mu held
func (m *SessionManager) refreshLocked(ctx context.Context) (Session, error) {
	p, err := m.loadPersisted(ctx)
	if err != nil {
		return Session{}, unexpected(m.logger, "refresh", err)
	}
	if p.refreshToken == "" {
		return Session{}, newAuthError(KindNoRefreshToken, errors.New("no persisted refresh token"))
	}
	if p.userErr != nil {
		return Session{}, newAuthError(KindUserNotFound, p.userErr)
	}

	previous := m.snapshot.Load()
	if previous.State == StateAuthenticated {
		refreshing := *previous
		refreshing.State = StateRefreshing
		m.transition(refreshing)
	}

	if err := m.waitLatency(ctx); err != nil {
		return Session{}, unexpected(m.logger, "refresh", err)
	}

	claims, err := m.deps.Tokens.Consume(ctx, p.refreshToken, token.KindRefresh)
	if err != nil {
		return Session{}, m.tokenError(err)
	}
	if claims.Subject != p.user.ID {
		return Session{}, newAuthError(KindUserNotFound, errors.New("refresh token subject does not match persisted user"))
	}

	offlineMode, err := m.isOfflineLocked(ctx)
	if err != nil {
		return Session{}, unexpected(m.logger, "refresh", err)
	}
	user := p.user
	if !offlineMode {
		if user, err = m.deps.Credentials.GetByID(ctx, p.user.ID); err != nil {
			return Session{}, m.authenticator.storeError("refresh lookup", err)
		}
		if !user.Active {
			return Session{}, newAuthError(KindUserInactive, users.ErrUserInactive)
		}
	}
	if err := m.authenticator.CheckAudience(user, m.profile.Audience); err != nil {
		return Session{}, err
	}

	pair, err := m.deps.Tokens.IssuePairWithExpiry(user, m.profile.AccessTTL, m.profile.RefreshTTL)
	if err != nil {
		return Session{}, unexpected(m.logger, "issue tokens", err)
	}
	sessionUser := user.Clone()
	sessionUser.PasswordHash = ""
	if err := m.persistSession(ctx, sessionUser, pair); err != nil {
		return Session{}, unexpected(m.logger, "persist session", err)
	}
	m.revoke(ctx, p.accessToken, p.refreshToken)

	m.logger.Info().Str("user", user.ID).Time("expiresAt", pair.Access.ExpiresAt).Msg("session refreshed")
	return m.transition(Session{
		State:        StateAuthenticated,
		User:         sessionUser,
		AccessToken:  pair.Access.Raw,
		RefreshToken: pair.Refresh.Raw,
		ExpiresAt:    pair.Access.ExpiresAt,
		Offline:      offlineMode,
	}), nil
}

func (m *SessionManager) tokenError(err error) *AuthError {
	switch {
	case errors.Is(err, token.ErrTokenExpired),
		errors.Is(err, token.ErrTokenMalformed),
		errors.Is(err, token.ErrWrongKind),
		errors.Is(err, token.ErrTokenRevoked):
		return newAuthError(KindTokenExpired, err)
	}
	return unexpected(m.logger, "verify token", err)
}
