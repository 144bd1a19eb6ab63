package auth

import (
	"context"
	"encoding/json"
	"sync"
	"sync/atomic"
	"time"

	"github.com/guelfi/BarbeariaSaaS/audience"
	"github.com/guelfi/BarbeariaSaaS/offline"
	"github.com/guelfi/BarbeariaSaaS/storage"
	"github.com/guelfi/BarbeariaSaaS/tenants"
	"github.com/guelfi/BarbeariaSaaS/token"
	"github.com/guelfi/BarbeariaSaaS/users"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

const DefaultSweepInterval = 60 * time.Second

// Dependencies holds the collaborators a SessionManager is composed of.
type Dependencies struct {
	Credentials users.CredentialStore // Live credential store
	Tokens      *token.Manager        // Issues and verifies the session tokens
	Gate        *audience.Gate        // Role policy for the profile's audience
	Store       storage.Store         // Where the session is persisted
	Tenants     tenants.Repo          // Optional, needed for registration
}

// SessionManager owns the single session of a frontend process. Mutations are
// serialized by one lock; State and IsAuthenticated read an atomic snapshot and
// never wait for an in-flight mutation.
type SessionManager struct {
	profile       audience.Profile
	keys          storage.Keys
	deps          Dependencies
	authenticator *Authenticator
	offline       *offline.Cache
	nowFunc       func() time.Time
	latency       time.Duration
	sweepInterval time.Duration
	bcryptCost    int
	logger        zerolog.Logger
	withOffline   bool

	mu       sync.Mutex
	snapshot atomic.Pointer[Session]

	listenersMu sync.Mutex
	listeners   []listenerEntry
	nextID      int
}

type listenerEntry struct {
	id int
	fn Listener
}

type SessionManagerOption func(*SessionManager)

// WithNowTime sets the clock (primarily for testing)
func WithNowTime(nowFunc func() time.Time) SessionManagerOption {
	return func(m *SessionManager) {
		m.nowFunc = nowFunc
	}
}

// WithLatency delays login, refresh and registration by d, honouring ctx while waiting.
func WithLatency(d time.Duration) SessionManagerOption {
	return func(m *SessionManager) {
		m.latency = d
	}
}

func WithLogger(logger zerolog.Logger) SessionManagerOption {
	return func(m *SessionManager) {
		m.logger = logger
	}
}

func WithSweepInterval(d time.Duration) SessionManagerOption {
	return func(m *SessionManager) {
		m.sweepInterval = d
	}
}

// WithBcryptCost sets the cost used to hash passwords of offline registrations
func WithBcryptCost(cost int) SessionManagerOption {
	return func(m *SessionManager) {
		m.bcryptCost = cost
	}
}

// WithOfflineCache keeps credential snapshots and a replay queue under the
// profile's keys so logins keep working while the credential store is unreachable.
func WithOfflineCache() SessionManagerOption {
	return func(m *SessionManager) {
		m.withOffline = true
	}
}

func NewSessionManager(profile audience.Profile, deps Dependencies, options ...SessionManagerOption) (*SessionManager, error) {
	switch {
	case deps.Credentials == nil:
		return nil, errors.New("auth: credential store is required")
	case deps.Tokens == nil:
		return nil, errors.New("auth: token manager is required")
	case deps.Gate == nil:
		return nil, errors.New("auth: audience gate is required")
	case deps.Store == nil:
		return nil, errors.New("auth: storage is required")
	case profile.Audience == "":
		return nil, errors.New("auth: profile audience is required")
	}

	m := &SessionManager{
		profile:       profile,
		keys:          storage.NewKeys(profile.StoragePrefix),
		deps:          deps,
		nowFunc:       time.Now,
		sweepInterval: DefaultSweepInterval,
		logger:        log.Logger,
	}
	for _, opt := range options {
		opt(m)
	}
	m.logger = m.logger.With().Str("audience", string(profile.Audience)).Logger()
	m.authenticator = NewAuthenticator(deps.Credentials, deps.Gate, m.logger)
	if m.withOffline {
		m.offline = offline.NewCache(deps.Store, m.keys, offline.WithNowFunc(m.nowFunc), offline.WithLogger(m.logger))
	}
	m.snapshot.Store(&Session{State: StateUnauthenticated})
	return m, nil
}

func (m *SessionManager) Profile() audience.Profile { return m.profile }
func (m *SessionManager) Keys() storage.Keys        { return m.keys }

// State returns the current snapshot. Expiry is evaluated on every call.
func (m *SessionManager) State() Session {
	return m.snapshot.Load().at(m.nowFunc())
}

// IsAuthenticated is true while the session is authenticated and now is before its expiry.
func (m *SessionManager) IsAuthenticated() bool {
	return m.State().Authenticated
}

// Subscribe registers l for every transition. Listeners are called in
// registration order. The returned func removes the listener.
func (m *SessionManager) Subscribe(l Listener) (unsubscribe func()) {
	m.listenersMu.Lock()
	defer m.listenersMu.Unlock()
	m.nextID++
	id := m.nextID
	m.listeners = append(m.listeners, listenerEntry{id: id, fn: l})

	return func() {
		m.listenersMu.Lock()
		defer m.listenersMu.Unlock()
		for i, entry := range m.listeners {
			if entry.id == id {
				m.listeners = append(m.listeners[:i:i], m.listeners[i+1:]...)
				return
			}
		}
	}
}

// transition must be called with mu held
func (m *SessionManager) transition(next Session) Session {
	next.User = next.User.Clone()
	if next.User != nil {
		next.User.PasswordHash = ""
	}
	m.snapshot.Store(&next)

	published := next.at(m.nowFunc())
	m.listenersMu.Lock()
	listeners := make([]listenerEntry, len(m.listeners))
	copy(listeners, m.listeners)
	m.listenersMu.Unlock()

	for _, entry := range listeners {
		entry.fn(published)
	}
	m.logger.Debug().Str("state", string(published.State)).Msg("session transition")
	return published
}

// waitLatency must be called with mu held
func (m *SessionManager) waitLatency(ctx context.Context) error {
	if m.latency <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(m.latency)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// persistSession writes every session key in one batch
func (m *SessionManager) persistSession(ctx context.Context, user *users.User, pair *token.Pair) error {
	rawUser, err := json.Marshal(user)
	if err != nil {
		return errors.Wrap(err, "encode user")
	}
	return m.deps.Store.SetMany(ctx, map[string]string{
		m.keys.Token:        pair.Access.Raw,
		m.keys.RefreshToken: pair.Refresh.Raw,
		m.keys.User:         string(rawUser),
		m.keys.TokenExpiry:  pair.Access.ExpiresAt.UTC().Format(time.RFC3339Nano),
	})
}

// persisted is the raw session as read back from storage.
type persisted struct {
	accessToken  string
	refreshToken string
	user         *users.User
	expiresAt    time.Time
	userErr      error
	expiryErr    error
}

func (m *SessionManager) loadPersisted(ctx context.Context) (*persisted, error) {
	p := &persisted{}
	var err error
	if p.accessToken, _, err = m.deps.Store.Get(ctx, m.keys.Token); err != nil {
		return nil, err
	}
	if p.refreshToken, _, err = m.deps.Store.Get(ctx, m.keys.RefreshToken); err != nil {
		return nil, err
	}

	rawUser, ok, err := m.deps.Store.Get(ctx, m.keys.User)
	if err != nil {
		return nil, err
	}
	p.user, p.userErr = decodeUser(rawUser, ok)

	rawExpiry, ok, err := m.deps.Store.Get(ctx, m.keys.TokenExpiry)
	if err != nil {
		return nil, err
	}
	if !ok || rawExpiry == "" {
		p.expiryErr = errors.New("no persisted expiry")
	} else if p.expiresAt, err = time.Parse(time.RFC3339Nano, rawExpiry); err != nil {
		p.expiryErr = errors.Wrap(err, "parse persisted expiry")
	}
	return p, nil
}

func decodeUser(raw string, ok bool) (*users.User, error) {
	if !ok || raw == "" {
		return nil, errors.New("no persisted user")
	}
	var u users.User
	if err := json.Unmarshal([]byte(raw), &u); err != nil {
		return nil, errors.Wrap(err, "decode persisted user")
	}
	if u.ID == "" || u.Email == "" || !u.Role.Valid() {
		return nil, errors.New("persisted user is incomplete")
	}
	return &u, nil
}

// revoke blacklists tokens from a session being replaced. Failures only lose
// the early invalidation so they are logged, not returned.
func (m *SessionManager) revoke(ctx context.Context, raws ...string) {
	for _, raw := range raws {
		if raw == "" {
			continue
		}
		if err := m.deps.Tokens.Revoke(ctx, raw); err != nil && !errors.Is(err, token.ErrTokenMalformed) {
			m.logger.Warn().Err(err).Msg("failed to revoke replaced token")
		}
	}
}

// currentTokens must be called with mu held
func (m *SessionManager) currentTokens() []string {
	s := m.snapshot.Load()
	return []string{s.AccessToken, s.RefreshToken}
}
