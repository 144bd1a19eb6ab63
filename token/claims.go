package token

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// claimPrecision is the resolution of iat and exp. Refreshes less than a
// second apart still move exp forward.
const claimPrecision = time.Millisecond

func init() {
	jwt.TimePrecision = claimPrecision
}

// Kind distinguishes access tokens from refresh tokens.
type Kind string

const (
	KindAccess  Kind = "access"
	KindRefresh Kind = "refresh"
)

// Claims is the payload of every token minted by Manager. Refresh tokens only
// carry the subject and the registered claims.
type Claims struct {
	Email    string `json:"email,omitempty"`
	Role     string `json:"role,omitempty"`
	TenantID string `json:"tenant_id,omitempty"`
	Type     Kind   `json:"type"`
	jwt.RegisteredClaims
}

// Token is a signed token together with the metadata callers need to persist it.
type Token struct {
	Raw       string
	ID        string
	Kind      Kind
	Subject   string
	IssuedAt  time.Time
	ExpiresAt time.Time
}

// Pair is the result of a login or refresh.
type Pair struct {
	Access  *Token
	Refresh *Token
}
