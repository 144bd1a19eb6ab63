package auth

import (
	"context"
	"errors"

	"github.com/guelfi/BarbeariaSaaS/offline"
	"github.com/guelfi/BarbeariaSaaS/users"
)

// Login authenticates against the credential store, or the offline cache when
// offline mode is on, and replaces the current session. On failure nothing
// persisted is touched.
func (m *SessionManager) Login(ctx context.Context, email, password string) (Result, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	creds := Credentials{Email: email, Password: password}
	creds.Normalize()
	if err := creds.Validate(); err != nil {
		return Result{}, newAuthError(KindValidationError, err)
	}
	if err := m.waitLatency(ctx); err != nil {
		return Result{}, unexpected(m.logger, "login", err)
	}

	offlineMode, err := m.isOfflineLocked(ctx)
	if err != nil {
		return Result{}, unexpected(m.logger, "login", err)
	}
	if offlineMode {
		return m.loginOffline(ctx, creds)
	}

	user, err := m.authenticator.Authenticate(ctx, creds, m.profile.Audience)
	if err != nil {
		return Result{}, err
	}
	session, err := m.establish(ctx, user, false)
	if err != nil {
		return Result{}, err
	}
	m.logger.Info().Str("user", user.ID).Msg("login")
	return Result{Session: session, Message: msgLoginSucceeded}, nil
}

// loginOffline must be called with mu held
func (m *SessionManager) loginOffline(ctx context.Context, creds Credentials) (Result, error) {
	user, err := m.offline.Lookup(ctx, creds.Email, creds.Password)
	switch {
	case errors.Is(err, offline.ErrNoSnapshot):
		return Result{}, newAuthError(KindNetworkError, err)
	case errors.Is(err, offline.ErrInvalidCredentials):
		return Result{}, newAuthError(KindInvalidCredentials, err)
	case err != nil:
		return Result{}, unexpected(m.logger, "offline login", err)
	}
	if err := m.authenticator.CheckAudience(user, m.profile.Audience); err != nil {
		return Result{}, err
	}

	session, err := m.establish(ctx, user, true)
	if err != nil {
		return Result{}, err
	}
	if _, err := m.offline.Enqueue(ctx, offline.LoginAction{Email: user.Email}); err != nil {
		m.logger.Warn().Err(err).Msg("failed to queue offline login for replay")
	}
	m.logger.Info().Str("user", user.ID).Msg("login served from offline cache")
	return Result{Session: session, Message: msgOfflineLogin, Offline: true}, nil
}

// establish issues a token pair for user, persists it in one batch, revokes the
// replaced session's tokens and publishes Authenticated. It must be called with mu held.
func (m *SessionManager) establish(ctx context.Context, user *users.User, servedOffline bool) (Session, error) {
	pair, err := m.deps.Tokens.IssuePairWithExpiry(user, m.profile.AccessTTL, m.profile.RefreshTTL)
	if err != nil {
		return Session{}, unexpected(m.logger, "issue tokens", err)
	}

	sessionUser := user.Clone()
	sessionUser.PasswordHash = ""
	if err := m.persistSession(ctx, sessionUser, pair); err != nil {
		return Session{}, unexpected(m.logger, "persist session", err)
	}

	m.revoke(ctx, m.currentTokens()...)
	if m.offline != nil && !servedOffline && user.PasswordHash != "" {
		if err := m.offline.Remember(ctx, sessionUser, user.PasswordHash); err != nil {
			m.logger.Warn().Err(err).Msg("failed to store offline snapshot")
		}
	}

	return m.transition(Session{
		State:        StateAuthenticated,
		User:         sessionUser,
		AccessToken:  pair.Access.Raw,
		RefreshToken: pair.Refresh.Raw,
		ExpiresAt:    pair.Access.ExpiresAt,
		Offline:      servedOffline,
	}), nil
}

// Logout clears the persisted session and the offline replay queue and moves
// to Unauthenticated. Offline credential snapshots and the offline flag are
// kept so the device can still sign in while disconnected. It is a no-op
// success when already signed out.
func (m *SessionManager) Logout(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.logoutLocked(ctx)
}

// logoutLocked must be called with mu held. The in-memory session is dropped
// even when storage fails.
func (m *SessionManager) logoutLocked(ctx context.Context) error {
	current := m.snapshot.Load()
	m.revoke(ctx, current.AccessToken, current.RefreshToken)

	err := m.deps.Store.RemoveMany(ctx, m.keys.SignOut()...)
	if current.State != StateUnauthenticated {
		m.transition(Session{State: StateUnauthenticated})
		m.logger.Info().Msg("logout")
	}
	if err != nil {
		return unexpected(m.logger, "logout", err)
	}
	return nil
}
