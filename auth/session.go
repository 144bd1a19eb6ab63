package auth

import (
	"time"

	"github.com/guelfi/BarbeariaSaaS/users"
)

// State is a position in the session lifecycle.
type State string

const (
	StateUnauthenticated State = "unauthenticated"
	StateAuthenticated   State = "authenticated"

	// StateRefreshing is held while a refresh is in flight; the previous tokens stay usable.
	StateRefreshing State = "refreshing"

	// StateExpired is reported once an authenticated session passes its expiry.
	// It keeps the last principal for display only.
	StateExpired State = "expired"
)

// Session is an immutable snapshot of the current session.
type Session struct {
	State         State       `json:"state"`
	Authenticated bool        `json:"authenticated"`
	User          *users.User `json:"user,omitempty"`
	AccessToken   string      `json:"-"`
	RefreshToken  string      `json:"-"`
	ExpiresAt     time.Time   `json:"expiresAt,omitempty"`
	Offline       bool        `json:"offline,omitempty"`
}

// at evaluates expiry lazily against now.
func (s Session) at(now time.Time) Session {
	live := s.State == StateAuthenticated || s.State == StateRefreshing
	if live && !now.Before(s.ExpiresAt) {
		s.State = StateExpired
		live = false
	}
	s.Authenticated = live
	s.User = s.User.Clone()
	return s
}

// Result is what a successful login, refresh or registration returns.
type Result struct {
	Session Session
	Message string
	// Offline is set when the result was served from the offline cache.
	Offline bool
}

// Listener receives every state transition. Listeners run synchronously on the
// goroutine performing the transition while the session lock is held, so they
// must not call back into mutating SessionManager methods.
type Listener func(Session)

const (
	msgLoginSucceeded  = "login successful"
	msgOfflineLogin    = "served from offline cache"
	msgRefreshed       = "session refreshed"
	msgRegistered      = "registration successful"
	msgOfflineRegister = "registration queued until online"
	msgSessionRestored = "session restored"
)
