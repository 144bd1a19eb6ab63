package users

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// PrepareNew normalises and validates a principal about to be created and
// hashes its password. The returned copy is what a store persists.
func PrepareNew(user *User, password string, cost int, now time.Time) (*User, error) {
	if user == nil {
		return nil, fmt.Errorf("%w: nil user", ErrInvalidPrincipal)
	}
	if err := ValidatePasswordStrength(password); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPrincipal, err)
	}
	hash, err := HashPassword(password, cost)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}
	u := user.Clone()
	u.PasswordHash = hash
	return finishPrepare(u, now)
}

// PrepareImport normalises and validates a principal carrying an existing hash
func PrepareImport(user *User, now time.Time) (*User, error) {
	if user == nil {
		return nil, fmt.Errorf("%w: nil user", ErrInvalidPrincipal)
	}
	if user.PasswordHash == "" {
		return nil, ErrMissingHash
	}
	return finishPrepare(user.Clone(), now)
}

func finishPrepare(u *User, now time.Time) (*User, error) {
	u.Email = NormalizeEmail(u.Email)
	if err := u.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPrincipal, err)
	}
	if u.ID == "" {
		u.ID = uuid.New().String()
	}
	if u.CreatedAt.IsZero() {
		u.CreatedAt = now.UTC()
	}
	return u, nil
}
