// Package storage is the persisted key-value surface sessions are written to.
package storage

import (
	"context"
	"strings"
)

// Store is a string key-value store with all-or-nothing batch writes.
// Implementations must be safe for concurrent use.
type Store interface {
	// Get returns the value and whether the key exists
	Get(ctx context.Context, key string) (string, bool, error)

	// SetMany writes every entry or none of them
	SetMany(ctx context.Context, values map[string]string) error

	// RemoveMany deletes every key or none of them. Missing keys are not an error.
	RemoveMany(ctx context.Context, keys ...string) error
}

// Keys is the per-frontend layout of persisted session state.
type Keys struct {
	Token        string
	RefreshToken string
	User         string
	TokenExpiry  string
	Offline      string
	OfflineUsers string
	OfflineQueue string
}

// NewKeys derives the layout from a prefix such as "mobile" or "mobile_".
func NewKeys(prefix string) Keys {
	p := strings.TrimSuffix(strings.TrimSpace(prefix), "_")
	return Keys{
		Token:        p + "_token",
		RefreshToken: p + "_refresh_token",
		User:         p + "_user",
		TokenExpiry:  p + "_token_expiry",
		Offline:      p + "_offline",
		OfflineUsers: p + "_offline_users",
		OfflineQueue: p + "_offline_queue",
	}
}

// Session lists the keys that make up an authenticated session.
func (k Keys) Session() []string {
	return []string{k.Token, k.RefreshToken, k.User, k.TokenExpiry}
}

// SignOut lists the keys removed on logout: the session and the replay queue.
// Offline credential snapshots and the connectivity flag outlive the session.
func (k Keys) SignOut() []string {
	return append(k.Session(), k.OfflineQueue)
}

// All lists every key owned by the layout.
func (k Keys) All() []string {
	return append(k.Session(), k.Offline, k.OfflineUsers, k.OfflineQueue)
}
