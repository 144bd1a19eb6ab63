// Package audience decides which roles may sign in through which frontend.
package audience

import (
	"fmt"
	"strings"
	"time"

	"github.com/guelfi/BarbeariaSaaS/users"
)

// Audience is the frontend a login attempt targets.
type Audience string

const (
	Admin  Audience = "admin"
	Staff  Audience = "staff"
	Client Audience = "client"
)

// Policy maps an audience to the roles allowed through it.
type Policy map[Audience][]users.RoleType

// DefaultPolicy: the admin console takes admins, the desktop app takes barbers
// and receptionists, the mobile app takes clients.
func DefaultPolicy() Policy {
	return Policy{
		Admin:  {users.RoleAdmin},
		Staff:  {users.RoleBarber, users.RoleReceptionist},
		Client: {users.RoleClient},
	}
}

// Gate applies a Policy. The zero value rejects everything.
type Gate struct {
	policy Policy
}

// NewGate copies policy so later edits by the caller have no effect.
func NewGate(policy Policy) *Gate {
	copied := make(Policy, len(policy))
	for aud, roles := range policy {
		copied[aud] = append([]users.RoleType(nil), roles...)
	}
	return &Gate{policy: copied}
}

func (g *Gate) IsAllowed(role users.RoleType, aud Audience) bool {
	if g == nil {
		return false
	}
	for _, allowed := range g.policy[aud] {
		if allowed == role {
			return true
		}
	}
	return false
}

// Parse accepts the audience names plus the frontend aliases used in configuration.
func Parse(s string) (Audience, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "admin":
		return Admin, nil
	case "staff", "desktop", "barber":
		return Staff, nil
	case "client", "mobile":
		return Client, nil
	default:
		return "", fmt.Errorf("unknown audience %q", s)
	}
}

// Profile is the per-frontend session configuration.
type Profile struct {
	Audience      Audience
	StoragePrefix string
	AccessTTL     time.Duration
	RefreshTTL    time.Duration
}

const (
	DefaultAccessTTL  = time.Hour
	DefaultRefreshTTL = 7 * 24 * time.Hour
)

// DefaultProfiles keeps each frontend's persisted keys isolated under its own prefix.
func DefaultProfiles() map[Audience]Profile {
	return map[Audience]Profile{
		Admin:  {Audience: Admin, StoragePrefix: "admin", AccessTTL: DefaultAccessTTL, RefreshTTL: DefaultRefreshTTL},
		Staff:  {Audience: Staff, StoragePrefix: "desktop", AccessTTL: DefaultAccessTTL, RefreshTTL: DefaultRefreshTTL},
		Client: {Audience: Client, StoragePrefix: "mobile", AccessTTL: DefaultAccessTTL, RefreshTTL: DefaultRefreshTTL},
	}
}

// ProfileFor returns the default profile for aud with the TTLs overridden when positive.
func ProfileFor(aud Audience, accessTTL, refreshTTL time.Duration) (Profile, error) {
	p, ok := DefaultProfiles()[aud]
	if !ok {
		return Profile{}, fmt.Errorf("unknown audience %q", aud)
	}
	if accessTTL > 0 {
		p.AccessTTL = accessTTL
	}
	if refreshTTL > 0 {
		p.RefreshTTL = refreshTTL
	}
	return p, nil
}
