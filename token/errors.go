package token

import "errors"

var (
	ErrTokenExpired   = errors.New("token expired")
	ErrTokenMalformed = errors.New("token malformed")
	ErrWrongKind      = errors.New("wrong token kind")
	ErrTokenRevoked   = errors.New("token revoked")
	ErrWeakKey        = errors.New("signing key too short")
	ErrInvalidExpiry  = errors.New("token lifetime must be at least one second")
)
