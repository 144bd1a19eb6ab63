package users

import (
	"context"
	"errors"
)

var (
	ErrUserNotFound       = errors.New("user not found")
	ErrUserInactive       = errors.New("user inactive")
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrDuplicateEmail     = errors.New("email already registered")
	ErrMissingHash        = errors.New("password hash is required")
	ErrInvalidPrincipal   = errors.New("invalid principal")
)

// CredentialStore holds principals and their password hashes.
// Implementations must be safe for concurrent use.
type CredentialStore interface {
	// FindByEmail returns the active principal for the address, ErrUserNotFound otherwise
	FindByEmail(ctx context.Context, email string) (*User, error)

	// Validate returns the principal when the address exists, is active and the password matches.
	// Unknown addresses and wrong passwords both yield ErrInvalidCredentials; a correct
	// password on an inactive principal yields ErrUserInactive.
	Validate(ctx context.Context, email, password string) (*User, error)

	// Create registers a new principal, hashing the password. ErrDuplicateEmail on collision.
	Create(ctx context.Context, user *User, password string) (*User, error)

	// Import stores a principal that already carries a PasswordHash
	Import(ctx context.Context, user *User) error

	GetByID(ctx context.Context, id string) (*User, error)
	Delete(ctx context.Context, email string) error
	SetActive(ctx context.Context, email string, active bool) error
	List(ctx context.Context, tenantID string, offset, limit int) ([]*User, error)
}
