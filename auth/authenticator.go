package auth

import (
	"context"
	"errors"

	"github.com/guelfi/BarbeariaSaaS/audience"
	"github.com/guelfi/BarbeariaSaaS/users"
	"github.com/rs/zerolog"
)

// Authenticator checks credentials and the audience policy without keeping any
// session state. SessionManager builds on it; the HTTP API uses it directly.
type Authenticator struct {
	credentials users.CredentialStore
	gate        *audience.Gate
	logger      zerolog.Logger
}

func NewAuthenticator(credentials users.CredentialStore, gate *audience.Gate, logger zerolog.Logger) *Authenticator {
	return &Authenticator{credentials: credentials, gate: gate, logger: logger}
}

// Authenticate validates the credentials and, when aud is not empty, the
// audience policy. Failures are always *AuthError. The returned principal
// still carries its password hash.
func (a *Authenticator) Authenticate(ctx context.Context, creds Credentials, aud audience.Audience) (*users.User, error) {
	creds.Normalize()
	if err := creds.Validate(); err != nil {
		return nil, newAuthError(KindValidationError, err)
	}

	user, err := a.credentials.Validate(ctx, creds.Email, creds.Password)
	if err != nil {
		return nil, a.storeError("validate credentials", err)
	}
	if err := a.CheckAudience(user, aud); err != nil {
		return nil, err
	}
	return user, nil
}

// CheckAudience applies the gate. An empty audience allows every role.
func (a *Authenticator) CheckAudience(user *users.User, aud audience.Audience) error {
	if aud == "" || a.gate.IsAllowed(user.Role, aud) {
		return nil
	}
	a.logger.Info().Str("role", string(user.Role)).Str("audience", string(aud)).Msg("login rejected by audience policy")
	return newAuthError(KindUnauthorizedAudience, errors.New("role "+string(user.Role)+" not allowed for "+string(aud)))
}

// storeError maps credential store failures onto error kinds. Anything
// unexpected is logged and downgraded to KindUnknownError.
func (a *Authenticator) storeError(op string, err error) *AuthError {
	switch {
	case errors.Is(err, users.ErrInvalidCredentials):
		return newAuthError(KindInvalidCredentials, err)
	case errors.Is(err, users.ErrUserInactive):
		return newAuthError(KindUserInactive, err)
	case errors.Is(err, users.ErrUserNotFound):
		return newAuthError(KindUserNotFound, err)
	case errors.Is(err, users.ErrDuplicateEmail):
		return newAuthError(KindDuplicateEmail, err)
	case errors.Is(err, users.ErrInvalidPrincipal), errors.Is(err, users.ErrMissingHash):
		return newAuthError(KindValidationError, err)
	}
	return unexpected(a.logger, op, err)
}

func unexpected(logger zerolog.Logger, op string, err error) *AuthError {
	var authErr *AuthError
	if errors.As(err, &authErr) {
		return authErr
	}
	if isNetworkError(err) {
		logger.Warn().Err(err).Str("op", op).Msg("network failure")
		return newAuthError(KindNetworkError, err)
	}
	logger.Error().Err(err).Str("op", op).Msg("unexpected auth failure")
	return newAuthError(KindUnknownError, err)
}
